package session

import (
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"studysprint/backend/internal/apperrors"
	"studysprint/backend/internal/model"
)

// Pomodoro cycle control. The cycle is composed with the session: it refuses
// to operate unless the session is active, its countdown rides the session's
// tick (so pausing the session suspends the cycle for free), and cycle
// sequencing is always client-initiated: exhaustion raises a flag, it never
// auto-starts the next cycle.

// StartCycle begins a work or break cycle against an active session. Work
// cycles advance the per-session cycle counter; break cycles reuse it.
func (m *Machine) StartCycle(cycleType string, durationSeconds int) (model.Snapshot, *apperrors.Error) {
	if !model.ValidCycleType(cycleType) {
		return model.Snapshot{}, apperrors.Invalid("cycleType must be one of work, short_break, long_break")
	}
	if durationSeconds <= 0 {
		return model.Snapshot{}, apperrors.Invalid("durationSeconds must be positive")
	}

	m.mu.Lock()
	now := m.clk.Now()

	if m.sess.Status != model.StatusActive {
		m.mu.Unlock()
		return model.Snapshot{}, apperrors.Precondition("session is not active")
	}
	if m.cycle != nil {
		m.mu.Unlock()
		return model.Snapshot{}, apperrors.Precondition("a cycle is already running")
	}

	if cycleType == model.CycleWork {
		m.cycleCounter++
	} else if m.cycleCounter == 0 {
		m.cycleCounter = 1
	}

	m.cycle = &model.PomodoroCycle{
		ID:                     uuid.NewString(),
		SessionID:              m.sess.ID,
		CycleType:              cycleType,
		CycleNumber:            m.cycleCounter,
		PlannedDurationSeconds: durationSeconds,
		RemainingSeconds:       durationSeconds,
		StartedAt:              now,
	}
	m.cycleExhausted = false
	m.writer.CreateCycle(*m.cycle)

	snap := m.snapshot(now)
	m.mu.Unlock()
	m.log.Info("cycle started",
		zap.String("cycle_type", cycleType),
		zap.Int("cycle_number", snap.Pomodoro.CycleNumber),
		zap.Int("duration_seconds", durationSeconds),
	)
	m.emit(snap)
	return snap, nil
}

// CompleteCycle marks the running cycle completed, early or at exhaustion,
// with an optional 1-5 focus rating, and clears the active-cycle slot.
func (m *Machine) CompleteCycle(focusRating *int) (model.Snapshot, *apperrors.Error) {
	if focusRating != nil && (*focusRating < 1 || *focusRating > 5) {
		return model.Snapshot{}, apperrors.Invalid("focusRating must be between 1 and 5")
	}

	m.mu.Lock()
	now := m.clk.Now()

	if m.sess.Status != model.StatusActive {
		m.mu.Unlock()
		return model.Snapshot{}, apperrors.Precondition("session is not active")
	}
	if m.cycle == nil {
		m.mu.Unlock()
		return model.Snapshot{}, apperrors.Precondition("no cycle is running")
	}

	m.cycle.Completed = true
	completedAt := now
	m.cycle.CompletedAt = &completedAt
	m.cycle.FocusRating = focusRating
	m.writer.CompleteCycle(*m.cycle)
	m.cycle = nil
	m.cycleExhausted = false

	snap := m.snapshot(now)
	m.mu.Unlock()
	m.log.Info("cycle completed")
	m.emit(snap)
	return snap, nil
}

// exhaustCycle handles a countdown reaching zero without an explicit
// completion: the cycle is auto-completed and the exhaustion flag is raised
// so the client can prompt the user. Callers hold the lock.
func (m *Machine) exhaustCycle(now time.Time) {
	m.cycle.RemainingSeconds = 0
	m.cycle.Completed = true
	completedAt := now
	m.cycle.CompletedAt = &completedAt
	m.writer.CompleteCycle(*m.cycle)

	m.log.Info("cycle exhausted",
		zap.String("cycle_type", m.cycle.CycleType),
		zap.Int("cycle_number", m.cycle.CycleNumber),
	)

	m.cycle = nil
	m.cycleExhausted = true
}
