// Package hub fans session snapshots out to observers and translates wire
// actions into state-machine transitions. The protocol is state transfer,
// not event sourcing: every frame carries a full snapshot, so a dropped or
// missed frame is superseded by the next one and reconnecting observers just
// get a fresh snapshot, never a replay.
package hub

import (
	"sync"

	"go.uber.org/zap"

	"studysprint/backend/internal/apperrors"
	"studysprint/backend/internal/model"
)

const (
	MessageSnapshot = "snapshot"
	MessageError    = "error"
)

// Envelope is one outbound wire message.
type Envelope struct {
	Type     string                `json:"type"`
	Snapshot *model.Snapshot       `json:"snapshot,omitempty"`
	Error    *apperrors.Descriptor `json:"error,omitempty"`
}

// Subscriber is one observer's outbound queue. Error envelopes go to a
// single subscriber; snapshots are broadcast to every subscriber of the
// session.
type Subscriber struct {
	sessionID string
	ch        chan Envelope
	closed    bool
}

// Receive returns the subscriber's message stream. The channel is closed on
// unsubscribe.
func (s *Subscriber) Receive() <-chan Envelope { return s.ch }

func (s *Subscriber) SessionID() string { return s.sessionID }

type Hub struct {
	mu   sync.Mutex
	subs map[string]map[*Subscriber]struct{}
	log  *zap.Logger
}

func New(log *zap.Logger) *Hub {
	return &Hub{
		subs: make(map[string]map[*Subscriber]struct{}),
		log:  log,
	}
}

// Subscribe registers an observer and immediately queues one full snapshot
// of current state. Multiple observers per session receive identical
// broadcasts.
func (h *Hub) Subscribe(sessionID string, current model.Snapshot) *Subscriber {
	sub := &Subscriber{
		sessionID: sessionID,
		ch:        make(chan Envelope, 16),
	}

	h.mu.Lock()
	set, ok := h.subs[sessionID]
	if !ok {
		set = make(map[*Subscriber]struct{})
		h.subs[sessionID] = set
	}
	set[sub] = struct{}{}
	h.deliver(sub, Envelope{Type: MessageSnapshot, Snapshot: &current})
	h.mu.Unlock()

	return sub
}

// Unsubscribe removes an observer. The underlying session keeps running
// regardless of observer count, including zero.
func (h *Hub) Unsubscribe(sub *Subscriber) {
	h.mu.Lock()
	if set, ok := h.subs[sub.sessionID]; ok {
		delete(set, sub)
		if len(set) == 0 {
			delete(h.subs, sub.sessionID)
		}
	}
	if !sub.closed {
		sub.closed = true
		close(sub.ch)
	}
	h.mu.Unlock()
}

// Broadcast queues a snapshot for every subscriber of the session.
func (h *Hub) Broadcast(sessionID string, snap model.Snapshot) {
	h.mu.Lock()
	for sub := range h.subs[sessionID] {
		h.deliver(sub, Envelope{Type: MessageSnapshot, Snapshot: &snap})
	}
	h.mu.Unlock()
}

// SendError delivers an error descriptor to the requesting observer only;
// other observers are never notified of rejected actions.
func (h *Hub) SendError(sub *Subscriber, apiErr *apperrors.Error) {
	desc := apiErr.Descriptor()
	h.mu.Lock()
	h.deliver(sub, Envelope{Type: MessageError, Error: &desc})
	h.mu.Unlock()
}

// deliver queues an envelope without blocking; a backlogged subscriber loses
// the frame and catches up on the next snapshot. Callers hold h.mu.
func (h *Hub) deliver(sub *Subscriber, env Envelope) {
	if sub.closed {
		return
	}
	select {
	case sub.ch <- env:
	default:
		h.log.Debug("subscriber backlogged, dropping frame",
			zap.String("session_id", sub.sessionID),
		)
	}
}

// SubscriberCount reports the number of connected observers across all
// sessions, for health reporting.
func (h *Hub) SubscriberCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	total := 0
	for _, set := range h.subs {
		total += len(set)
	}
	return total
}
