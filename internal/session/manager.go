package session

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"studysprint/backend/internal/apperrors"
	"studysprint/backend/internal/clock"
	"studysprint/backend/internal/model"
	"studysprint/backend/internal/repository"
)

// StartInput carries the configuration supplied when a session starts.
type StartInput struct {
	OwnerID                string
	PlannedDurationSeconds int
	PDFID                  *string
	TopicID                *string
	SessionName            string
	StartingPage           int
}

// Manager owns every live Machine: it enforces one active session per owner,
// routes actions to the right machine, and revives machines from repository
// checkpoints after a process restart. Actions for one session serialize on
// the machine's lock; different sessions are independent.
type Manager struct {
	policy       Policy
	tickInterval time.Duration
	clk          clock.Clock
	repo         Repository
	writer       Writer
	log          *zap.Logger

	mu          sync.Mutex
	machines    map[string]*Machine
	ownerActive map[string]string
	ended       map[string]model.Session

	onSnapshot func(sessionID string, snap model.Snapshot)
}

func NewManager(policy Policy, tickInterval time.Duration, clk clock.Clock, repo Repository, writer Writer, log *zap.Logger) *Manager {
	if tickInterval <= 0 {
		tickInterval = time.Second
	}
	return &Manager{
		policy:       policy.withDefaults(),
		tickInterval: tickInterval,
		clk:          clk,
		repo:         repo,
		writer:       writer,
		log:          log,
		machines:     make(map[string]*Machine),
		ownerActive:  make(map[string]string),
		ended:        make(map[string]model.Session),
	}
}

// SetSnapshotSink wires the broadcast destination. Must be called before the
// first session starts.
func (mgr *Manager) SetSnapshotSink(fn func(sessionID string, snap model.Snapshot)) {
	mgr.onSnapshot = fn
}

// Start creates a session in active status and begins its tick loop. At most
// one active or paused session per owner.
func (mgr *Manager) Start(in StartInput) (model.Snapshot, *apperrors.Error) {
	if in.OwnerID == "" {
		return model.Snapshot{}, apperrors.Invalid("ownerId is required")
	}
	if in.PlannedDurationSeconds < 0 {
		return model.Snapshot{}, apperrors.Invalid("plannedDurationSeconds must be positive")
	}
	if in.PlannedDurationSeconds == 0 {
		in.PlannedDurationSeconds = model.DefaultPlannedDurationSeconds
	}
	if in.StartingPage < 1 {
		in.StartingPage = 1
	}

	now := mgr.clk.Now()
	sess := model.Session{
		ID:                     uuid.NewString(),
		OwnerID:                in.OwnerID,
		PDFID:                  in.PDFID,
		TopicID:                in.TopicID,
		SessionName:            in.SessionName,
		Status:                 model.StatusActive,
		PlannedDurationSeconds: in.PlannedDurationSeconds,
		StartedAt:              now,
		LastActivityAt:         now,
		CurrentPage:            in.StartingPage,
		CreatedAt:              now,
		UpdatedAt:              now,
	}

	mgr.mu.Lock()
	if existing, ok := mgr.ownerActive[in.OwnerID]; ok {
		mgr.mu.Unlock()
		return model.Snapshot{}, ownerBusy(existing)
	}
	mgr.mu.Unlock()

	// A restart may have left a live checkpoint behind that no machine is
	// serving yet. Revive it and reject, instead of letting the owner run
	// two sessions at once. Checkpoints for sessions this process already
	// ended are skipped: their terminal write may still be in the queue.
	if cp, lookupErr := mgr.repo.GetActiveSessionForOwner(context.Background(), in.OwnerID); lookupErr == nil {
		mgr.mu.Lock()
		_, alreadyEnded := mgr.ended[cp.ID]
		mgr.mu.Unlock()
		if !alreadyEnded {
			m := mgr.revive(cp)
			return model.Snapshot{}, ownerBusy(m.ID())
		}
	} else if !errors.Is(lookupErr, repository.ErrNotFound) {
		mgr.log.Warn("owner session lookup failed",
			zap.String("owner_id", in.OwnerID),
			zap.Error(lookupErr),
		)
	}

	mgr.mu.Lock()
	if existing, ok := mgr.ownerActive[in.OwnerID]; ok {
		mgr.mu.Unlock()
		return model.Snapshot{}, ownerBusy(existing)
	}
	m := mgr.register(sess)
	mgr.mu.Unlock()

	mgr.writer.CreateSession(sess)
	m.Run(mgr.tickInterval)

	mgr.log.Info("session started",
		zap.String("session_id", sess.ID),
		zap.String("owner_id", sess.OwnerID),
		zap.Int("planned_duration_seconds", sess.PlannedDurationSeconds),
	)

	return m.Snapshot(), nil
}

// register builds a machine for the session and indexes it. Callers hold
// mgr.mu. The owner slot is claimed only when free, so a revived machine
// never steals it from a newer live session.
func (mgr *Manager) register(sess model.Session) *Machine {
	m := newMachine(sess, mgr.clk, mgr.policy, mgr.writer, mgr.log)
	m.onSnapshot = func(snap model.Snapshot) {
		if mgr.onSnapshot != nil {
			mgr.onSnapshot(sess.ID, snap)
		}
	}
	m.onEnded = mgr.machineEnded
	mgr.machines[sess.ID] = m
	if _, ok := mgr.ownerActive[sess.OwnerID]; !ok {
		mgr.ownerActive[sess.OwnerID] = sess.ID
	}
	return m
}

// machineEnded retires a finished machine, keeping its terminal state as a
// tombstone. The terminal repository write is asynchronous and may lag or be
// dropped, so a stale checkpoint must never be consulted for a session this
// process has already ended.
func (mgr *Manager) machineEnded(m *Machine) {
	sess := m.terminalState()
	mgr.mu.Lock()
	mgr.ended[sess.ID] = sess
	delete(mgr.machines, sess.ID)
	if mgr.ownerActive[sess.OwnerID] == sess.ID {
		delete(mgr.ownerActive, sess.OwnerID)
	}
	mgr.mu.Unlock()
}

func ownerBusy(sessionID string) *apperrors.Error {
	err := apperrors.InvalidState("an active session already exists for this owner")
	err.Details = map[string]string{"sessionId": sessionID}
	return err
}

func (mgr *Manager) Pause(sessionID string) (model.Snapshot, *apperrors.Error) {
	m, terminal, err := mgr.resolve(sessionID)
	if err != nil {
		return model.Snapshot{}, err
	}
	if terminal != nil {
		return mgr.terminalSnapshot(terminal), nil
	}
	return m.Pause()
}

func (mgr *Manager) Resume(sessionID string) (model.Snapshot, *apperrors.Error) {
	m, terminal, err := mgr.resolve(sessionID)
	if err != nil {
		return model.Snapshot{}, err
	}
	if terminal != nil {
		return mgr.terminalSnapshot(terminal), nil
	}
	return m.Resume()
}

func (mgr *Manager) End(sessionID string, in EndInput) (model.Snapshot, *apperrors.Error) {
	m, terminal, err := mgr.resolve(sessionID)
	if err != nil {
		return model.Snapshot{}, err
	}
	if terminal != nil {
		return mgr.terminalSnapshot(terminal), nil
	}
	return m.End(in)
}

func (mgr *Manager) RegisterActivity(sessionID string, sig model.ActivitySignal) (model.Snapshot, *apperrors.Error) {
	m, terminal, err := mgr.resolve(sessionID)
	if err != nil {
		return model.Snapshot{}, err
	}
	if terminal != nil {
		return mgr.terminalSnapshot(terminal), nil
	}
	return m.RegisterActivity(sig)
}

func (mgr *Manager) StartCycle(sessionID, cycleType string, durationSeconds int) (model.Snapshot, *apperrors.Error) {
	m, terminal, err := mgr.resolve(sessionID)
	if err != nil {
		return model.Snapshot{}, err
	}
	if terminal != nil {
		return model.Snapshot{}, apperrors.Precondition("session is not active")
	}
	return m.StartCycle(cycleType, durationSeconds)
}

func (mgr *Manager) CompleteCycle(sessionID string, focusRating *int) (model.Snapshot, *apperrors.Error) {
	m, terminal, err := mgr.resolve(sessionID)
	if err != nil {
		return model.Snapshot{}, err
	}
	if terminal != nil {
		return model.Snapshot{}, apperrors.Precondition("session is not active")
	}
	return m.CompleteCycle(focusRating)
}

func (mgr *Manager) UpdatePage(sessionID string, page int) (model.Snapshot, *apperrors.Error) {
	m, terminal, err := mgr.resolve(sessionID)
	if err != nil {
		return model.Snapshot{}, err
	}
	if terminal != nil {
		return mgr.terminalSnapshot(terminal), nil
	}
	return m.UpdatePage(page)
}

func (mgr *Manager) Snapshot(sessionID string) (model.Snapshot, *apperrors.Error) {
	m, terminal, err := mgr.resolve(sessionID)
	if err != nil {
		return model.Snapshot{}, err
	}
	if terminal != nil {
		return mgr.terminalSnapshot(terminal), nil
	}
	return m.Snapshot(), nil
}

// CurrentForOwner returns the owner's live session snapshot, if any.
func (mgr *Manager) CurrentForOwner(ownerID string) (model.Snapshot, bool) {
	mgr.mu.Lock()
	sessionID, ok := mgr.ownerActive[ownerID]
	var m *Machine
	if ok {
		m = mgr.machines[sessionID]
	}
	mgr.mu.Unlock()
	if m == nil {
		return model.Snapshot{}, false
	}
	return m.Snapshot(), true
}

// MarkUnpersisted is the persister's give-up callback.
func (mgr *Manager) MarkUnpersisted(sessionID string) {
	mgr.mu.Lock()
	m := mgr.machines[sessionID]
	mgr.mu.Unlock()
	if m != nil {
		m.MarkUnpersisted()
	}
}

// ActiveCount reports the number of live machines, for health reporting.
func (mgr *Manager) ActiveCount() int {
	mgr.mu.Lock()
	defer mgr.mu.Unlock()
	return len(mgr.machines)
}

// Shutdown stops every tick loop and writes a final checkpoint per session.
// Sessions are left active in the repository; the next process revives them
// with the downtime credited as idle.
func (mgr *Manager) Shutdown() {
	mgr.mu.Lock()
	machines := make([]*Machine, 0, len(mgr.machines))
	for _, m := range mgr.machines {
		machines = append(machines, m)
	}
	mgr.mu.Unlock()

	for _, m := range machines {
		m.stopLoop()
		m.mu.Lock()
		m.sess.UpdatedAt = mgr.clk.Now()
		sess := m.sess
		m.mu.Unlock()
		mgr.writer.UpdateSession(sess)
	}
}

// resolve finds the live machine for a session, reviving it from the last
// persisted checkpoint when the hosting process has restarted. Terminal state
// is returned as-is so stale actions resolve to no-op successes. Sessions
// ended by this process answer from the tombstone, never from the repository:
// the checkpoint there may still read active while the terminal write is in
// flight.
func (mgr *Manager) resolve(sessionID string) (*Machine, *model.Session, *apperrors.Error) {
	if sessionID == "" {
		return nil, nil, apperrors.Invalid("sessionId is required")
	}

	mgr.mu.Lock()
	if m, ok := mgr.machines[sessionID]; ok {
		mgr.mu.Unlock()
		return m, nil, nil
	}
	if terminal, ok := mgr.ended[sessionID]; ok {
		mgr.mu.Unlock()
		return nil, &terminal, nil
	}
	mgr.mu.Unlock()

	cp, err := mgr.repo.GetLatestCheckpoint(context.Background(), sessionID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil, apperrors.InvalidState("session not started")
		}
		mgr.log.Error("checkpoint lookup failed", zap.String("session_id", sessionID), zap.Error(err))
		return nil, nil, apperrors.Internal("failed to load session")
	}

	if cp.Status == model.StatusEnded {
		mgr.mu.Lock()
		mgr.ended[cp.ID] = *cp
		mgr.mu.Unlock()
		return nil, cp, nil
	}

	m := mgr.revive(cp)
	return m, nil, nil
}

// revive rebuilds a machine from a checkpoint. The restart gap is never
// silently credited as active: it lands in idleSeconds (or in the paused
// counter when the checkpoint was paused), and lastActivityAt keeps its
// persisted value so ticks stay idle until a fresh signal arrives.
func (mgr *Manager) revive(cp *model.Session) *Machine {
	now := mgr.clk.Now()
	gap := int(now.Sub(cp.UpdatedAt).Seconds())
	if gap > 0 {
		if cp.Status == model.StatusPaused {
			cp.TotalPausedSeconds += gap
		} else {
			cp.IdleSeconds += gap
		}
	}
	cp.UpdatedAt = now

	mgr.mu.Lock()
	if existing, ok := mgr.machines[cp.ID]; ok {
		// Lost the revival race; the winner's machine is authoritative.
		mgr.mu.Unlock()
		return existing
	}
	if terminal, ok := mgr.ended[cp.ID]; ok {
		// Ended concurrently. An unregistered machine over the terminal
		// state answers every action with the stale no-op snapshot.
		mgr.mu.Unlock()
		return newMachine(terminal, mgr.clk, mgr.policy, mgr.writer, mgr.log)
	}
	m := mgr.register(*cp)
	if cp.Status == model.StatusPaused {
		m.pausedAt = now
	}
	mgr.mu.Unlock()

	mgr.writer.UpdateSession(*cp)
	m.Run(mgr.tickInterval)

	mgr.log.Info("session revived from checkpoint",
		zap.String("session_id", cp.ID),
		zap.String("status", cp.Status),
		zap.Int("restart_gap_seconds", gap),
	)

	return m
}

func (mgr *Manager) terminalSnapshot(cp *model.Session) model.Snapshot {
	elapsed := cp.ElapsedSeconds()
	progress := 0.0
	if cp.PlannedDurationSeconds > 0 {
		progress = math.Min(100, float64(elapsed)/float64(cp.PlannedDurationSeconds)*100)
	}
	return model.Snapshot{
		SessionID:              cp.ID,
		Status:                 cp.Status,
		ElapsedSeconds:         elapsed,
		ActiveSeconds:          cp.ActiveSeconds,
		IdleSeconds:            cp.IdleSeconds,
		BreakSeconds:           cp.BreakSeconds,
		PlannedDurationSeconds: cp.PlannedDurationSeconds,
		ProgressPercent:        round1(progress),
		CurrentPage:            cp.CurrentPage,
		FocusScore:             cp.FocusScore,
		AutoEnded:              cp.AutoEnded,
		Persisted:              true,
		StartedAt:              cp.StartedAt,
		EndedAt:                cp.EndedAt,
		ServerTime:             mgr.clk.Now(),
	}
}
