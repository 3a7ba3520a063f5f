package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"studysprint/backend/internal/model"
	"studysprint/backend/internal/repository"
)

// Repository is the persistence collaborator consumed by the persister and
// the manager's checkpoint revival. Implementations return
// repository.ErrNotFound when no record exists.
type Repository interface {
	CreateSession(ctx context.Context, s *model.Session) error
	UpdateSession(ctx context.Context, s *model.Session) error
	CreateCycle(ctx context.Context, c *model.PomodoroCycle) error
	CompleteCycle(ctx context.Context, c *model.PomodoroCycle) error
	GetLatestCheckpoint(ctx context.Context, id string) (*model.Session, error)
	GetActiveSessionForOwner(ctx context.Context, ownerID string) (*model.Session, error)
}

type opKind int

const (
	opCreateSession opKind = iota
	opUpdateSession
	opCreateCycle
	opCompleteCycle
)

type op struct {
	kind    opKind
	session model.Session
	cycle   model.PomodoroCycle
}

func (o op) sessionID() string {
	switch o.kind {
	case opCreateCycle, opCompleteCycle:
		return o.cycle.SessionID
	default:
		return o.session.ID
	}
}

// Persister drains repository writes off the transition path. Writes are
// applied in enqueue order by a single worker and retried with backoff;
// exhausted retries flag the session unpersisted instead of failing the
// transition, and a full queue drops the write the same way.
type Persister struct {
	repo      Repository
	log       *zap.Logger
	attempts  int
	baseDelay time.Duration

	ops       chan op
	wg        sync.WaitGroup
	closeOnce sync.Once

	onGiveUp func(sessionID string)
}

func NewPersister(repo Repository, log *zap.Logger, queueSize, attempts int, baseDelay time.Duration) *Persister {
	if queueSize <= 0 {
		queueSize = 256
	}
	if attempts <= 0 {
		attempts = 3
	}
	if baseDelay <= 0 {
		baseDelay = 250 * time.Millisecond
	}
	return &Persister{
		repo:      repo,
		log:       log,
		attempts:  attempts,
		baseDelay: baseDelay,
		ops:       make(chan op, queueSize),
	}
}

// SetGiveUpHandler registers the callback invoked when a write is abandoned.
// Must be called before Start.
func (p *Persister) SetGiveUpHandler(fn func(sessionID string)) {
	p.onGiveUp = fn
}

func (p *Persister) Start() {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		for o := range p.ops {
			p.apply(o)
		}
	}()
}

// Close drains outstanding writes. Enqueue nothing after calling it.
func (p *Persister) Close() {
	p.closeOnce.Do(func() { close(p.ops) })
	p.wg.Wait()
}

func (p *Persister) CreateSession(s model.Session)      { p.enqueue(op{kind: opCreateSession, session: s}) }
func (p *Persister) UpdateSession(s model.Session)      { p.enqueue(op{kind: opUpdateSession, session: s}) }
func (p *Persister) CreateCycle(c model.PomodoroCycle)  { p.enqueue(op{kind: opCreateCycle, cycle: c}) }
func (p *Persister) CompleteCycle(c model.PomodoroCycle) { p.enqueue(op{kind: opCompleteCycle, cycle: c}) }

func (p *Persister) enqueue(o op) {
	select {
	case p.ops <- o:
	default:
		p.log.Warn("persist queue full, dropping write",
			zap.String("session_id", o.sessionID()),
		)
		p.giveUp(o)
	}
}

func (p *Persister) apply(o op) {
	var err error
	for attempt := 1; attempt <= p.attempts; attempt++ {
		err = p.write(o)
		if err == nil {
			return
		}
		if errors.Is(err, repository.ErrNotFound) {
			// The row this write targets was never created; retrying
			// cannot succeed.
			break
		}
		if attempt < p.attempts {
			time.Sleep(p.baseDelay * time.Duration(attempt))
		}
	}

	p.log.Error("repository write failed, giving up",
		zap.String("session_id", o.sessionID()),
		zap.Error(err),
	)
	p.giveUp(o)
}

func (p *Persister) write(o op) error {
	ctx := context.Background()
	switch o.kind {
	case opCreateSession:
		return p.repo.CreateSession(ctx, &o.session)
	case opUpdateSession:
		return p.repo.UpdateSession(ctx, &o.session)
	case opCreateCycle:
		return p.repo.CreateCycle(ctx, &o.cycle)
	default:
		return p.repo.CompleteCycle(ctx, &o.cycle)
	}
}

func (p *Persister) giveUp(o op) {
	if p.onGiveUp != nil {
		p.onGiveUp(o.sessionID())
	}
}
