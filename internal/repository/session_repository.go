package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"studysprint/backend/internal/model"
)

var ErrNotFound = errors.New("not found")

// SessionRepository persists session and cycle records. It is an ordinary
// store: the state machine writes to it at lifecycle boundaries and on
// checkpoints but never depends on the write having happened.
type SessionRepository struct {
	db *sql.DB
}

func NewSessionRepository(db *sql.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

func (r *SessionRepository) CreateSession(ctx context.Context, s *model.Session) error {
	_, err := r.db.ExecContext(
		ctx,
		`INSERT INTO study_sessions (
			id, owner_id, pdf_id, topic_id, session_name, status,
			planned_duration_seconds, started_at, ended_at,
			active_seconds, idle_seconds, break_seconds, total_paused_seconds,
			last_activity_at, current_page, pages_visited, pages_completed,
			focus_score, auto_ended, notes, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID,
		s.OwnerID,
		nullableString(s.PDFID),
		nullableString(s.TopicID),
		s.SessionName,
		s.Status,
		s.PlannedDurationSeconds,
		formatTime(s.StartedAt),
		nullableTime(s.EndedAt),
		s.ActiveSeconds,
		s.IdleSeconds,
		s.BreakSeconds,
		s.TotalPausedSeconds,
		formatTime(s.LastActivityAt),
		s.CurrentPage,
		s.PagesVisited,
		s.PagesCompleted,
		s.FocusScore,
		boolToInt(s.AutoEnded),
		s.Notes,
		formatTime(s.CreatedAt),
		formatTime(s.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

func (r *SessionRepository) UpdateSession(ctx context.Context, s *model.Session) error {
	result, err := r.db.ExecContext(
		ctx,
		`UPDATE study_sessions
		 SET status = ?,
		     ended_at = ?,
		     active_seconds = ?,
		     idle_seconds = ?,
		     break_seconds = ?,
		     total_paused_seconds = ?,
		     last_activity_at = ?,
		     current_page = ?,
		     pages_visited = ?,
		     pages_completed = ?,
		     focus_score = ?,
		     auto_ended = ?,
		     notes = ?,
		     updated_at = ?
		 WHERE id = ?`,
		s.Status,
		nullableTime(s.EndedAt),
		s.ActiveSeconds,
		s.IdleSeconds,
		s.BreakSeconds,
		s.TotalPausedSeconds,
		formatTime(s.LastActivityAt),
		s.CurrentPage,
		s.PagesVisited,
		s.PagesCompleted,
		s.FocusScore,
		boolToInt(s.AutoEnded),
		s.Notes,
		formatTime(s.UpdatedAt),
		s.ID,
	)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update session rows: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// GetLatestCheckpoint returns the last persisted state of a session, used to
// revive a machine after a process restart.
func (r *SessionRepository) GetLatestCheckpoint(ctx context.Context, id string) (*model.Session, error) {
	row := r.db.QueryRowContext(
		ctx,
		`SELECT `+sessionColumns+`
		 FROM study_sessions
		 WHERE id = ?`,
		id,
	)
	return scanSession(row)
}

// GetActiveSessionForOwner returns the owner's most recent non-ended session,
// used to enforce one concurrent session per owner across process restarts.
func (r *SessionRepository) GetActiveSessionForOwner(ctx context.Context, ownerID string) (*model.Session, error) {
	row := r.db.QueryRowContext(
		ctx,
		`SELECT `+sessionColumns+`
		 FROM study_sessions
		 WHERE owner_id = ? AND status != ?
		 ORDER BY started_at DESC
		 LIMIT 1`,
		ownerID,
		model.StatusEnded,
	)
	return scanSession(row)
}

// ListSessions returns the owner's sessions, most recent first.
func (r *SessionRepository) ListSessions(ctx context.Context, ownerID string, limit int) ([]model.Session, error) {
	rows, err := r.db.QueryContext(
		ctx,
		`SELECT `+sessionColumns+`
		 FROM study_sessions
		 WHERE owner_id = ?
		 ORDER BY started_at DESC
		 LIMIT ?`,
		ownerID,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	sessions := make([]model.Session, 0, limit)
	for rows.Next() {
		s, scanErr := scanSession(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		sessions = append(sessions, *s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}

	return sessions, nil
}

func (r *SessionRepository) CreateCycle(ctx context.Context, c *model.PomodoroCycle) error {
	_, err := r.db.ExecContext(
		ctx,
		`INSERT INTO pomodoro_cycles (
			id, session_id, cycle_type, cycle_number,
			planned_duration_seconds, remaining_seconds, completed,
			focus_rating, started_at, completed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID,
		c.SessionID,
		c.CycleType,
		c.CycleNumber,
		c.PlannedDurationSeconds,
		c.RemainingSeconds,
		boolToInt(c.Completed),
		nullableInt(c.FocusRating),
		formatTime(c.StartedAt),
		nullableTime(c.CompletedAt),
	)
	if err != nil {
		return fmt.Errorf("create cycle: %w", err)
	}
	return nil
}

// CompleteCycle records a cycle's terminal state, completed or discarded.
func (r *SessionRepository) CompleteCycle(ctx context.Context, c *model.PomodoroCycle) error {
	result, err := r.db.ExecContext(
		ctx,
		`UPDATE pomodoro_cycles
		 SET remaining_seconds = ?,
		     completed = ?,
		     focus_rating = ?,
		     completed_at = ?
		 WHERE id = ?`,
		c.RemainingSeconds,
		boolToInt(c.Completed),
		nullableInt(c.FocusRating),
		nullableTime(c.CompletedAt),
		c.ID,
	)
	if err != nil {
		return fmt.Errorf("complete cycle: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("complete cycle rows: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListCycles returns a session's cycles in start order.
func (r *SessionRepository) ListCycles(ctx context.Context, sessionID string) ([]model.PomodoroCycle, error) {
	rows, err := r.db.QueryContext(
		ctx,
		`SELECT id, session_id, cycle_type, cycle_number,
		        planned_duration_seconds, remaining_seconds, completed,
		        focus_rating, started_at, completed_at
		 FROM pomodoro_cycles
		 WHERE session_id = ?
		 ORDER BY started_at ASC`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("list cycles: %w", err)
	}
	defer rows.Close()

	var cycles []model.PomodoroCycle
	for rows.Next() {
		c, scanErr := scanCycle(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		cycles = append(cycles, *c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cycles: %w", err)
	}

	return cycles, nil
}

const sessionColumns = `id, owner_id, pdf_id, topic_id, session_name, status,
	planned_duration_seconds, started_at, ended_at,
	active_seconds, idle_seconds, break_seconds, total_paused_seconds,
	last_activity_at, current_page, pages_visited, pages_completed,
	focus_score, auto_ended, notes, created_at, updated_at`

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanSession(s scanner) (*model.Session, error) {
	sess := model.Session{}
	var pdfID, topicID, endedAt sql.NullString
	var startedAt, lastActivityAt, createdAt, updatedAt string
	var autoEnded int
	err := s.Scan(
		&sess.ID,
		&sess.OwnerID,
		&pdfID,
		&topicID,
		&sess.SessionName,
		&sess.Status,
		&sess.PlannedDurationSeconds,
		&startedAt,
		&endedAt,
		&sess.ActiveSeconds,
		&sess.IdleSeconds,
		&sess.BreakSeconds,
		&sess.TotalPausedSeconds,
		&lastActivityAt,
		&sess.CurrentPage,
		&sess.PagesVisited,
		&sess.PagesCompleted,
		&sess.FocusScore,
		&autoEnded,
		&sess.Notes,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan session: %w", err)
	}

	if pdfID.Valid {
		value := pdfID.String
		sess.PDFID = &value
	}
	if topicID.Valid {
		value := topicID.String
		sess.TopicID = &value
	}
	sess.AutoEnded = autoEnded != 0

	if sess.StartedAt, err = parseTime(startedAt); err != nil {
		return nil, fmt.Errorf("parse session started_at: %w", err)
	}
	if endedAt.Valid {
		parsed, parseErr := parseTime(endedAt.String)
		if parseErr != nil {
			return nil, fmt.Errorf("parse session ended_at: %w", parseErr)
		}
		sess.EndedAt = &parsed
	}
	if sess.LastActivityAt, err = parseTime(lastActivityAt); err != nil {
		return nil, fmt.Errorf("parse session last_activity_at: %w", err)
	}
	if sess.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parse session created_at: %w", err)
	}
	if sess.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("parse session updated_at: %w", err)
	}

	return &sess, nil
}

func scanCycle(s scanner) (*model.PomodoroCycle, error) {
	cycle := model.PomodoroCycle{}
	var completed int
	var focusRating sql.NullInt64
	var startedAt string
	var completedAt sql.NullString
	err := s.Scan(
		&cycle.ID,
		&cycle.SessionID,
		&cycle.CycleType,
		&cycle.CycleNumber,
		&cycle.PlannedDurationSeconds,
		&cycle.RemainingSeconds,
		&completed,
		&focusRating,
		&startedAt,
		&completedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan cycle: %w", err)
	}

	cycle.Completed = completed != 0
	if focusRating.Valid {
		value := int(focusRating.Int64)
		cycle.FocusRating = &value
	}
	if cycle.StartedAt, err = parseTime(startedAt); err != nil {
		return nil, fmt.Errorf("parse cycle started_at: %w", err)
	}
	if completedAt.Valid {
		parsed, parseErr := parseTime(completedAt.String)
		if parseErr != nil {
			return nil, fmt.Errorf("parse cycle completed_at: %w", parseErr)
		}
		cycle.CompletedAt = &parsed
	}

	return &cycle, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func nullableTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func nullableString(s *string) interface{} {
	if s == nil {
		return nil
	}
	return *s
}

func nullableInt(i *int) interface{} {
	if i == nil {
		return nil
	}
	return *i
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
