package session

import (
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"studysprint/backend/internal/apperrors"
	"studysprint/backend/internal/clock"
	"studysprint/backend/internal/model"
)

// Writer is the asynchronous write side of the repository. Implementations
// must not block: the in-memory transition has already taken effect by the
// time a write is handed over, and must stay observable even under storage
// backpressure.
type Writer interface {
	CreateSession(s model.Session)
	UpdateSession(s model.Session)
	CreateCycle(c model.PomodoroCycle)
	CompleteCycle(c model.PomodoroCycle)
}

// Policy holds the timer classification thresholds.
type Policy struct {
	IdleThresholdSeconds int
	AutoEndIdleSeconds   int
	CheckpointSeconds    int
	ActivityThrottle     time.Duration
}

func (p Policy) withDefaults() Policy {
	if p.IdleThresholdSeconds <= 0 {
		p.IdleThresholdSeconds = 60
	}
	if p.AutoEndIdleSeconds == 0 {
		p.AutoEndIdleSeconds = 4 * 60 * 60
	}
	if p.CheckpointSeconds == 0 {
		p.CheckpointSeconds = 30
	}
	if p.ActivityThrottle <= 0 {
		p.ActivityThrottle = time.Second
	}
	return p
}

// EndInput carries the optional summary supplied when a session ends.
type EndInput struct {
	Notes      string
	EndingPage int
	AutoEnded  bool
}

// Machine is the authoritative state machine for one study session. It is
// the sole mutator of the session's accumulators; every transition
// serializes on its lock, and its tick loop is an owned task torn down at
// end. There is no process-wide timer.
type Machine struct {
	mu sync.Mutex

	clk      clock.Clock
	policy   Policy
	writer   Writer
	detector *Detector
	log      *zap.Logger

	sess    model.Session
	maxPage int

	cycle          *model.PomodoroCycle
	cycleCounter   int
	cycleExhausted bool

	pausedAt             time.Time
	idleStreakSeconds    int
	ticksSinceCheckpoint int
	persisted            bool

	onSnapshot func(model.Snapshot)
	onEnded    func(*Machine)

	stop     chan struct{}
	stopOnce sync.Once
}

func newMachine(sess model.Session, clk clock.Clock, policy Policy, writer Writer, log *zap.Logger) *Machine {
	return &Machine{
		clk:       clk,
		policy:    policy,
		writer:    writer,
		detector:  NewDetector(policy.ActivityThrottle),
		log:       log.With(zap.String("session_id", sess.ID)),
		sess:      sess,
		maxPage:   sess.CurrentPage,
		persisted: true,
		stop:      make(chan struct{}),
	}
}

func (m *Machine) ID() string      { return m.sess.ID }
func (m *Machine) OwnerID() string { return m.sess.OwnerID }

// terminalState copies the session record after the machine has ended.
func (m *Machine) terminalState() model.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sess
}

// Run starts the tick loop. One logical timer per active session; the loop
// exits when the session ends or the machine is shut down.
func (m *Machine) Run(interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-m.stop:
				return
			case <-ticker.C:
				m.Tick()
			}
		}
	}()
}

func (m *Machine) stopLoop() {
	m.stopOnce.Do(func() { close(m.stop) })
}

// Tick advances the machine by one second. Exactly one accumulator advances
// per tick while the session is active; ticks are no-ops while paused or
// ended.
func (m *Machine) Tick() {
	m.mu.Lock()
	if m.sess.Status != model.StatusActive {
		m.mu.Unlock()
		return
	}
	now := m.clk.Now()

	switch {
	case m.cycle != nil && m.cycle.IsBreak():
		m.sess.BreakSeconds++
	case m.secondsSinceActivity(now) > m.policy.IdleThresholdSeconds:
		m.sess.IdleSeconds++
		m.idleStreakSeconds++
	default:
		m.sess.ActiveSeconds++
		m.idleStreakSeconds = 0
	}

	if m.cycle != nil {
		m.cycle.RemainingSeconds--
		if m.cycle.RemainingSeconds <= 0 {
			m.exhaustCycle(now)
		}
	}

	if m.policy.AutoEndIdleSeconds > 0 && m.idleStreakSeconds >= m.policy.AutoEndIdleSeconds {
		snap := m.end(EndInput{AutoEnded: true}, now)
		m.mu.Unlock()
		m.emit(snap)
		m.notifyEnded()
		return
	}

	m.ticksSinceCheckpoint++
	if m.policy.CheckpointSeconds > 0 && m.ticksSinceCheckpoint >= m.policy.CheckpointSeconds {
		m.ticksSinceCheckpoint = 0
		m.sess.UpdatedAt = now
		m.writer.UpdateSession(m.sess)
	}

	snap := m.snapshot(now)
	m.mu.Unlock()
	m.emit(snap)
}

// RegisterActivity feeds a user-interaction signal through the detector. It
// never advances counters itself; it only influences the next tick's
// classification. Signals on a paused session are ignored, and signals on an
// ended session are a stale no-op returning the terminal snapshot.
func (m *Machine) RegisterActivity(sig model.ActivitySignal) (model.Snapshot, *apperrors.Error) {
	m.mu.Lock()
	now := m.clk.Now()

	if m.sess.Status != model.StatusActive {
		snap := m.snapshot(now)
		m.mu.Unlock()
		return snap, nil
	}

	if sig.At.IsZero() {
		sig.At = now
	}
	if m.detector.Accept(sig) {
		m.sess.LastActivityAt = sig.At
		m.idleStreakSeconds = 0
	}

	snap := m.snapshot(now)
	m.mu.Unlock()
	m.emit(snap)
	return snap, nil
}

// Pause freezes all accumulators. Legal only from active.
func (m *Machine) Pause() (model.Snapshot, *apperrors.Error) {
	m.mu.Lock()
	now := m.clk.Now()

	switch m.sess.Status {
	case model.StatusEnded:
		snap := m.snapshot(now)
		m.mu.Unlock()
		return snap, nil
	case model.StatusActive:
	default:
		m.mu.Unlock()
		return model.Snapshot{}, apperrors.InvalidState("session is not active")
	}

	m.sess.Status = model.StatusPaused
	m.pausedAt = now
	m.sess.UpdatedAt = now
	m.writer.UpdateSession(m.sess)

	snap := m.snapshot(now)
	m.mu.Unlock()
	m.log.Info("session paused")
	m.emit(snap)
	return snap, nil
}

// Resume returns a paused session to active, folding the pause window into
// the total-paused counter. Legal only from paused.
func (m *Machine) Resume() (model.Snapshot, *apperrors.Error) {
	m.mu.Lock()
	now := m.clk.Now()

	switch m.sess.Status {
	case model.StatusEnded:
		snap := m.snapshot(now)
		m.mu.Unlock()
		return snap, nil
	case model.StatusPaused:
	default:
		m.mu.Unlock()
		return model.Snapshot{}, apperrors.InvalidState("session is not paused")
	}

	m.sess.TotalPausedSeconds += int(now.Sub(m.pausedAt).Seconds())
	m.pausedAt = time.Time{}
	m.sess.Status = model.StatusActive
	m.sess.LastActivityAt = now
	m.idleStreakSeconds = 0
	m.sess.UpdatedAt = now
	m.writer.UpdateSession(m.sess)

	snap := m.snapshot(now)
	m.mu.Unlock()
	m.log.Info("session resumed")
	m.emit(snap)
	return snap, nil
}

// End finalizes the session. Idempotent: ending an ended session returns the
// existing terminal snapshot without a second repository write.
func (m *Machine) End(in EndInput) (model.Snapshot, *apperrors.Error) {
	m.mu.Lock()
	now := m.clk.Now()

	if m.sess.Status == model.StatusEnded {
		snap := m.snapshot(now)
		m.mu.Unlock()
		return snap, nil
	}

	snap := m.end(in, now)
	m.mu.Unlock()
	m.emit(snap)
	m.notifyEnded()
	return snap, nil
}

// end performs the terminal transition. Callers hold the lock and are
// responsible for emitting the snapshot and the ended notification after
// releasing it.
func (m *Machine) end(in EndInput, now time.Time) model.Snapshot {
	if m.sess.Status == model.StatusPaused {
		m.sess.TotalPausedSeconds += int(now.Sub(m.pausedAt).Seconds())
		m.pausedAt = time.Time{}
	}

	if in.EndingPage > 0 {
		m.applyPage(in.EndingPage)
	}
	if in.Notes != "" {
		m.sess.Notes = in.Notes
	}

	if m.cycle != nil {
		// An in-flight cycle interrupted by session end stays incomplete.
		m.cycle.Completed = false
		completedAt := now
		m.cycle.CompletedAt = &completedAt
		m.writer.CompleteCycle(*m.cycle)
		m.cycle = nil
	}

	m.sess.Status = model.StatusEnded
	endedAt := now
	m.sess.EndedAt = &endedAt
	m.sess.AutoEnded = in.AutoEnded
	m.sess.FocusScore = round1(m.sess.ComputeFocusScore())
	m.sess.UpdatedAt = now
	m.writer.UpdateSession(m.sess)
	m.stopLoop()

	m.log.Info("session ended",
		zap.Bool("auto_ended", in.AutoEnded),
		zap.Int("active_seconds", m.sess.ActiveSeconds),
		zap.Int("idle_seconds", m.sess.IdleSeconds),
		zap.Int("break_seconds", m.sess.BreakSeconds),
		zap.Float64("focus_score", m.sess.FocusScore),
	)

	return m.snapshot(now)
}

// UpdatePage is the reading-progress side channel: it never touches timer
// state and is not a state-machine transition, so it does not broadcast.
func (m *Machine) UpdatePage(page int) (model.Snapshot, *apperrors.Error) {
	if page < 1 {
		return model.Snapshot{}, apperrors.Invalid("page must be positive")
	}

	m.mu.Lock()
	now := m.clk.Now()

	if m.sess.Status == model.StatusEnded {
		snap := m.snapshot(now)
		m.mu.Unlock()
		return snap, nil
	}

	m.applyPage(page)
	m.sess.UpdatedAt = now
	snap := m.snapshot(now)
	m.mu.Unlock()
	return snap, nil
}

func (m *Machine) applyPage(page int) {
	if page != m.sess.CurrentPage {
		m.sess.PagesVisited++
	}
	if page > m.maxPage {
		m.sess.PagesCompleted += page - m.maxPage
		m.maxPage = page
	}
	m.sess.CurrentPage = page
}

// Snapshot is the pure projection of current state; safe in any status.
func (m *Machine) Snapshot() model.Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshot(m.clk.Now())
}

func (m *Machine) snapshot(now time.Time) model.Snapshot {
	s := &m.sess
	elapsed := s.ElapsedSeconds()

	progress := 0.0
	if s.PlannedDurationSeconds > 0 {
		progress = math.Min(100, float64(elapsed)/float64(s.PlannedDurationSeconds)*100)
	}

	focus := s.FocusScore
	if s.Status != model.StatusEnded {
		focus = round1(s.ComputeFocusScore())
	}

	snap := model.Snapshot{
		SessionID:              s.ID,
		Status:                 s.Status,
		ElapsedSeconds:         elapsed,
		ActiveSeconds:          s.ActiveSeconds,
		IdleSeconds:            s.IdleSeconds,
		BreakSeconds:           s.BreakSeconds,
		PlannedDurationSeconds: s.PlannedDurationSeconds,
		ProgressPercent:        round1(progress),
		CurrentPage:            s.CurrentPage,
		FocusScore:             focus,
		IsIdle:                 s.Status == model.StatusActive && m.secondsSinceActivity(now) > m.policy.IdleThresholdSeconds,
		AutoEnded:              s.AutoEnded,
		CycleExhausted:         m.cycleExhausted,
		Persisted:              m.persisted,
		StartedAt:              s.StartedAt,
		EndedAt:                s.EndedAt,
		ServerTime:             now,
	}

	if m.cycle != nil {
		snap.Pomodoro = &model.CycleProjection{
			ID:                     m.cycle.ID,
			CycleType:              m.cycle.CycleType,
			CycleNumber:            m.cycle.CycleNumber,
			PlannedDurationSeconds: m.cycle.PlannedDurationSeconds,
			RemainingSeconds:       m.cycle.RemainingSeconds,
		}
	}

	return snap
}

// MarkUnpersisted flags the session after repository retries were exhausted,
// so observers can warn the user without losing the live timer.
func (m *Machine) MarkUnpersisted() {
	m.mu.Lock()
	m.persisted = false
	m.mu.Unlock()
}

func (m *Machine) secondsSinceActivity(now time.Time) int {
	return int(now.Sub(m.sess.LastActivityAt).Seconds())
}

func (m *Machine) emit(snap model.Snapshot) {
	if m.onSnapshot != nil {
		m.onSnapshot(snap)
	}
}

func (m *Machine) notifyEnded() {
	if m.onEnded != nil {
		m.onEnded(m)
	}
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
