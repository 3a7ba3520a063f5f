package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"studysprint/backend/internal/model"
	"studysprint/backend/internal/repository"
)

type flakyRepo struct {
	mu       sync.Mutex
	failures int
	calls    int
	err      error
	sessions []model.Session
}

func (r *flakyRepo) CreateSession(ctx context.Context, s *model.Session) error { return r.record(s) }
func (r *flakyRepo) UpdateSession(ctx context.Context, s *model.Session) error { return r.record(s) }
func (r *flakyRepo) CreateCycle(ctx context.Context, c *model.PomodoroCycle) error {
	return r.record(nil)
}
func (r *flakyRepo) CompleteCycle(ctx context.Context, c *model.PomodoroCycle) error {
	return r.record(nil)
}
func (r *flakyRepo) GetLatestCheckpoint(ctx context.Context, id string) (*model.Session, error) {
	return nil, repository.ErrNotFound
}

func (r *flakyRepo) GetActiveSessionForOwner(ctx context.Context, ownerID string) (*model.Session, error) {
	return nil, repository.ErrNotFound
}

func (r *flakyRepo) record(s *model.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if r.failures > 0 {
		r.failures--
		if r.err != nil {
			return r.err
		}
		return errors.New("disk full")
	}
	if s != nil {
		r.sessions = append(r.sessions, *s)
	}
	return nil
}

func (r *flakyRepo) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

func TestPersisterRetriesTransientFailures(t *testing.T) {
	repo := &flakyRepo{failures: 2}
	p := NewPersister(repo, zap.NewNop(), 8, 3, time.Millisecond)

	var giveUps []string
	var mu sync.Mutex
	p.SetGiveUpHandler(func(sessionID string) {
		mu.Lock()
		giveUps = append(giveUps, sessionID)
		mu.Unlock()
	})

	p.Start()
	p.UpdateSession(model.Session{ID: "sess-1", Status: model.StatusActive})
	p.Close()

	require.Equal(t, 3, repo.callCount())
	mu.Lock()
	require.Empty(t, giveUps)
	mu.Unlock()

	repo.mu.Lock()
	defer repo.mu.Unlock()
	require.Len(t, repo.sessions, 1)
}

func TestPersisterGivesUpAfterExhaustedRetries(t *testing.T) {
	repo := &flakyRepo{failures: 10}
	p := NewPersister(repo, zap.NewNop(), 8, 3, time.Millisecond)

	var giveUps []string
	var mu sync.Mutex
	p.SetGiveUpHandler(func(sessionID string) {
		mu.Lock()
		giveUps = append(giveUps, sessionID)
		mu.Unlock()
	})

	p.Start()
	p.UpdateSession(model.Session{ID: "sess-1", Status: model.StatusActive})
	p.Close()

	require.Equal(t, 3, repo.callCount())
	mu.Lock()
	require.Equal(t, []string{"sess-1"}, giveUps)
	mu.Unlock()
}

func TestPersisterDoesNotRetryMissingRows(t *testing.T) {
	repo := &flakyRepo{failures: 10, err: repository.ErrNotFound}
	p := NewPersister(repo, zap.NewNop(), 8, 3, time.Millisecond)

	var giveUps []string
	var mu sync.Mutex
	p.SetGiveUpHandler(func(sessionID string) {
		mu.Lock()
		giveUps = append(giveUps, sessionID)
		mu.Unlock()
	})

	p.Start()
	p.CompleteCycle(model.PomodoroCycle{ID: "cycle-1", SessionID: "sess-1"})
	p.Close()

	require.Equal(t, 1, repo.callCount())
	mu.Lock()
	require.Equal(t, []string{"sess-1"}, giveUps)
	mu.Unlock()
}

func TestPersisterDropsWhenQueueFull(t *testing.T) {
	repo := &flakyRepo{}
	p := NewPersister(repo, zap.NewNop(), 1, 3, time.Millisecond)

	var giveUps []string
	var mu sync.Mutex
	p.SetGiveUpHandler(func(sessionID string) {
		mu.Lock()
		giveUps = append(giveUps, sessionID)
		mu.Unlock()
	})

	// Worker not started: the queue holds one op, the second is dropped
	// without blocking the caller.
	p.UpdateSession(model.Session{ID: "sess-1"})
	p.UpdateSession(model.Session{ID: "sess-2"})

	mu.Lock()
	require.Equal(t, []string{"sess-2"}, giveUps)
	mu.Unlock()

	p.Start()
	p.Close()
	require.Equal(t, 1, repo.callCount())
}
