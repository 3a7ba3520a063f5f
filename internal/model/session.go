package model

import "time"

const (
	StatusNotStarted = "not_started"
	StatusActive     = "active"
	StatusPaused     = "paused"
	StatusEnded      = "ended"
)

const (
	CycleWork       = "work"
	CycleShortBreak = "short_break"
	CycleLongBreak  = "long_break"
)

const (
	SignalPointer    = "pointer"
	SignalKeyboard   = "keyboard"
	SignalNavigation = "navigation"
)

const DefaultPlannedDurationSeconds = 60 * 60

// Session is the authoritative record of one study session. The in-memory
// state machine is the sole mutator of the accumulators; rows in the
// repository are checkpoints of this struct.
type Session struct {
	ID                     string     `json:"id"`
	OwnerID                string     `json:"ownerId"`
	PDFID                  *string    `json:"pdfId,omitempty"`
	TopicID                *string    `json:"topicId,omitempty"`
	SessionName            string     `json:"sessionName,omitempty"`
	Status                 string     `json:"status"`
	PlannedDurationSeconds int        `json:"plannedDurationSeconds"`
	StartedAt              time.Time  `json:"startedAt"`
	EndedAt                *time.Time `json:"endedAt,omitempty"`
	ActiveSeconds          int        `json:"activeSeconds"`
	IdleSeconds            int        `json:"idleSeconds"`
	BreakSeconds           int        `json:"breakSeconds"`
	TotalPausedSeconds     int        `json:"totalPausedSeconds"`
	LastActivityAt         time.Time  `json:"lastActivityAt"`
	CurrentPage            int        `json:"currentPage"`
	PagesVisited           int        `json:"pagesVisited"`
	PagesCompleted         int        `json:"pagesCompleted"`
	FocusScore             float64    `json:"focusScore"`
	AutoEnded              bool       `json:"autoEnded"`
	Notes                  string     `json:"notes,omitempty"`
	CreatedAt              time.Time  `json:"createdAt"`
	UpdatedAt              time.Time  `json:"updatedAt"`
}

// ElapsedSeconds is the session's accounted time: the accumulators are the
// authority, not wall-clock arithmetic, so the identity
// active + idle == elapsed - break always holds exactly.
func (s *Session) ElapsedSeconds() int {
	return s.ActiveSeconds + s.IdleSeconds + s.BreakSeconds
}

// ComputeFocusScore derives the focus score in [0,100] from the ratio of
// active to engaged (active+idle) time. Never authoritative; recomputed on
// every snapshot.
func (s *Session) ComputeFocusScore() float64 {
	engaged := s.ActiveSeconds + s.IdleSeconds
	if engaged == 0 {
		return 0
	}
	return float64(s.ActiveSeconds) / float64(engaged) * 100
}

type PomodoroCycle struct {
	ID                     string     `json:"id"`
	SessionID              string     `json:"sessionId"`
	CycleType              string     `json:"cycleType"`
	CycleNumber            int        `json:"cycleNumber"`
	PlannedDurationSeconds int        `json:"plannedDurationSeconds"`
	RemainingSeconds       int        `json:"remainingSeconds"`
	Completed              bool       `json:"completed"`
	FocusRating            *int       `json:"focusRating,omitempty"`
	StartedAt              time.Time  `json:"startedAt"`
	CompletedAt            *time.Time `json:"completedAt,omitempty"`
}

// IsBreak reports whether elapsed session time during this cycle accrues to
// the break accumulator instead of being classified active/idle.
func (c *PomodoroCycle) IsBreak() bool {
	return c.CycleType == CycleShortBreak || c.CycleType == CycleLongBreak
}

func ValidCycleType(t string) bool {
	return t == CycleWork || t == CycleShortBreak || t == CycleLongBreak
}

// ActivitySignal is a transient user-interaction event. Consumed immediately
// by the activity detector, never stored.
type ActivitySignal struct {
	At   time.Time `json:"at"`
	Kind string    `json:"kind"`
}

func ValidSignalKind(k string) bool {
	return k == SignalPointer || k == SignalKeyboard || k == SignalNavigation
}
