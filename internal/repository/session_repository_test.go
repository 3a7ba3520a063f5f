package repository_test

import (
	"context"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"studysprint/backend/internal/db"
	"studysprint/backend/internal/model"
	"studysprint/backend/internal/repository"
)

func setupRepo(t *testing.T) *repository.SessionRepository {
	t.Helper()

	database, err := db.OpenSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = database.Close()
	})

	_, currentFile, _, _ := runtime.Caller(0)
	migrationsDir := filepath.Join(filepath.Dir(currentFile), "..", "..", "migrations")
	require.NoError(t, db.RunMigrations(database, migrationsDir, zap.NewNop()))

	return repository.NewSessionRepository(database)
}

func sampleSession(id, ownerID string, startedAt time.Time) model.Session {
	pdfID := "pdf-7"
	return model.Session{
		ID:                     id,
		OwnerID:                ownerID,
		PDFID:                  &pdfID,
		SessionName:            "evening reading",
		Status:                 model.StatusActive,
		PlannedDurationSeconds: 3600,
		StartedAt:              startedAt,
		ActiveSeconds:          120,
		IdleSeconds:            30,
		BreakSeconds:           10,
		TotalPausedSeconds:     5,
		LastActivityAt:         startedAt.Add(150 * time.Second),
		CurrentPage:            4,
		PagesVisited:           3,
		PagesCompleted:         3,
		CreatedAt:              startedAt,
		UpdatedAt:              startedAt.Add(160 * time.Second),
	}
}

func TestSessionRoundTrip(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()
	startedAt := time.Date(2026, 3, 1, 19, 0, 0, 0, time.UTC)

	sess := sampleSession("sess-1", "owner-1", startedAt)
	require.NoError(t, repo.CreateSession(ctx, &sess))

	got, err := repo.GetLatestCheckpoint(ctx, "sess-1")
	require.NoError(t, err)
	require.Equal(t, sess.OwnerID, got.OwnerID)
	require.NotNil(t, got.PDFID)
	require.Equal(t, "pdf-7", *got.PDFID)
	require.Nil(t, got.TopicID)
	require.Equal(t, sess.ActiveSeconds, got.ActiveSeconds)
	require.Equal(t, sess.IdleSeconds, got.IdleSeconds)
	require.Equal(t, sess.BreakSeconds, got.BreakSeconds)
	require.True(t, got.StartedAt.Equal(startedAt))
	require.True(t, got.LastActivityAt.Equal(sess.LastActivityAt))
	require.Nil(t, got.EndedAt)
	require.False(t, got.AutoEnded)

	endedAt := startedAt.Add(time.Hour)
	sess.Status = model.StatusEnded
	sess.EndedAt = &endedAt
	sess.FocusScore = 80.0
	sess.AutoEnded = true
	sess.Notes = "fell asleep"
	sess.UpdatedAt = endedAt
	require.NoError(t, repo.UpdateSession(ctx, &sess))

	got, err = repo.GetLatestCheckpoint(ctx, "sess-1")
	require.NoError(t, err)
	require.Equal(t, model.StatusEnded, got.Status)
	require.NotNil(t, got.EndedAt)
	require.True(t, got.EndedAt.Equal(endedAt))
	require.Equal(t, 80.0, got.FocusScore)
	require.True(t, got.AutoEnded)
	require.Equal(t, "fell asleep", got.Notes)
}

func TestUpdateMissingSessionReturnsNotFound(t *testing.T) {
	repo := setupRepo(t)

	sess := sampleSession("sess-ghost", "owner-1", time.Now().UTC())
	err := repo.UpdateSession(context.Background(), &sess)
	require.ErrorIs(t, err, repository.ErrNotFound)

	_, err = repo.GetLatestCheckpoint(context.Background(), "sess-ghost")
	require.ErrorIs(t, err, repository.ErrNotFound)
}

func TestListSessionsScopedToOwnerMostRecentFirst(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

	for i, id := range []string{"sess-a", "sess-b", "sess-c"} {
		sess := sampleSession(id, "owner-1", base.Add(time.Duration(i)*time.Hour))
		require.NoError(t, repo.CreateSession(ctx, &sess))
	}
	other := sampleSession("sess-x", "owner-2", base)
	require.NoError(t, repo.CreateSession(ctx, &other))

	sessions, err := repo.ListSessions(ctx, "owner-1", 10)
	require.NoError(t, err)
	require.Len(t, sessions, 3)
	require.Equal(t, "sess-c", sessions[0].ID)
	require.Equal(t, "sess-a", sessions[2].ID)

	limited, err := repo.ListSessions(ctx, "owner-1", 2)
	require.NoError(t, err)
	require.Len(t, limited, 2)

	empty, err := repo.ListSessions(ctx, "owner-3", 10)
	require.NoError(t, err)
	require.Empty(t, empty)
}

func TestGetActiveSessionForOwnerSkipsEndedRows(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

	endedAt := base.Add(time.Hour)
	finished := sampleSession("sess-done", "owner-1", base)
	finished.Status = model.StatusEnded
	finished.EndedAt = &endedAt
	require.NoError(t, repo.CreateSession(ctx, &finished))

	older := sampleSession("sess-older", "owner-1", base.Add(2*time.Hour))
	older.Status = model.StatusPaused
	require.NoError(t, repo.CreateSession(ctx, &older))

	newest := sampleSession("sess-newest", "owner-1", base.Add(3*time.Hour))
	require.NoError(t, repo.CreateSession(ctx, &newest))

	other := sampleSession("sess-other", "owner-2", base.Add(4*time.Hour))
	require.NoError(t, repo.CreateSession(ctx, &other))

	got, err := repo.GetActiveSessionForOwner(ctx, "owner-1")
	require.NoError(t, err)
	require.Equal(t, "sess-newest", got.ID)

	// Paused counts as live once the newer session is gone.
	newest.Status = model.StatusEnded
	newest.EndedAt = &endedAt
	require.NoError(t, repo.UpdateSession(ctx, &newest))

	got, err = repo.GetActiveSessionForOwner(ctx, "owner-1")
	require.NoError(t, err)
	require.Equal(t, "sess-older", got.ID)
	require.Equal(t, model.StatusPaused, got.Status)

	_, err = repo.GetActiveSessionForOwner(ctx, "owner-3")
	require.ErrorIs(t, err, repository.ErrNotFound)
}

func TestCycleRoundTrip(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()
	startedAt := time.Date(2026, 3, 1, 19, 0, 0, 0, time.UTC)

	sess := sampleSession("sess-1", "owner-1", startedAt)
	require.NoError(t, repo.CreateSession(ctx, &sess))

	work := model.PomodoroCycle{
		ID:                     "cycle-1",
		SessionID:              "sess-1",
		CycleType:              model.CycleWork,
		CycleNumber:            1,
		PlannedDurationSeconds: 1500,
		RemainingSeconds:       1500,
		StartedAt:              startedAt,
	}
	require.NoError(t, repo.CreateCycle(ctx, &work))

	rest := model.PomodoroCycle{
		ID:                     "cycle-2",
		SessionID:              "sess-1",
		CycleType:              model.CycleShortBreak,
		CycleNumber:            1,
		PlannedDurationSeconds: 300,
		RemainingSeconds:       300,
		StartedAt:              startedAt.Add(25 * time.Minute),
	}
	require.NoError(t, repo.CreateCycle(ctx, &rest))

	rating := 4
	completedAt := startedAt.Add(25 * time.Minute)
	work.RemainingSeconds = 0
	work.Completed = true
	work.FocusRating = &rating
	work.CompletedAt = &completedAt
	require.NoError(t, repo.CompleteCycle(ctx, &work))

	cycles, err := repo.ListCycles(ctx, "sess-1")
	require.NoError(t, err)
	require.Len(t, cycles, 2)

	require.Equal(t, "cycle-1", cycles[0].ID)
	require.True(t, cycles[0].Completed)
	require.NotNil(t, cycles[0].FocusRating)
	require.Equal(t, 4, *cycles[0].FocusRating)
	require.NotNil(t, cycles[0].CompletedAt)
	require.True(t, cycles[0].CompletedAt.Equal(completedAt))

	require.Equal(t, "cycle-2", cycles[1].ID)
	require.False(t, cycles[1].Completed)
	require.Nil(t, cycles[1].FocusRating)
	require.Nil(t, cycles[1].CompletedAt)
}

func TestCompleteMissingCycleReturnsNotFound(t *testing.T) {
	repo := setupRepo(t)

	cycle := model.PomodoroCycle{ID: "cycle-ghost", SessionID: "sess-1"}
	err := repo.CompleteCycle(context.Background(), &cycle)
	require.ErrorIs(t, err, repository.ErrNotFound)
}
