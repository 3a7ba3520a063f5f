package model

import "time"

// Snapshot is the read-only projection of a session (plus its active pomodoro
// cycle, if any) pushed to observers. It is fully derivable from Session
// state and never authoritative.
type Snapshot struct {
	SessionID              string           `json:"sessionId"`
	Status                 string           `json:"status"`
	ElapsedSeconds         int              `json:"elapsedSeconds"`
	ActiveSeconds          int              `json:"activeSeconds"`
	IdleSeconds            int              `json:"idleSeconds"`
	BreakSeconds           int              `json:"breakSeconds"`
	PlannedDurationSeconds int              `json:"plannedDurationSeconds"`
	ProgressPercent        float64          `json:"progressPercent"`
	CurrentPage            int              `json:"currentPage"`
	FocusScore             float64          `json:"focusScore"`
	IsIdle                 bool             `json:"isIdle"`
	AutoEnded              bool             `json:"autoEnded,omitempty"`
	CycleExhausted         bool             `json:"cycleExhausted,omitempty"`
	Persisted              bool             `json:"persisted"`
	StartedAt              time.Time        `json:"startedAt"`
	EndedAt                *time.Time       `json:"endedAt,omitempty"`
	ServerTime             time.Time        `json:"serverTime"`
	Pomodoro               *CycleProjection `json:"pomodoro,omitempty"`
}

// CycleProjection is the wire view of the active pomodoro cycle.
type CycleProjection struct {
	ID                     string `json:"id"`
	CycleType              string `json:"cycleType"`
	CycleNumber            int    `json:"cycleNumber"`
	PlannedDurationSeconds int    `json:"plannedDurationSeconds"`
	RemainingSeconds       int    `json:"remainingSeconds"`
}
