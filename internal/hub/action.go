package hub

import (
	"encoding/json"
	"fmt"
	"time"

	"studysprint/backend/internal/apperrors"
	"studysprint/backend/internal/model"
	"studysprint/backend/internal/session"
)

const (
	ActionPause            = "pause"
	ActionResume           = "resume"
	ActionEnd              = "end"
	ActionRegisterActivity = "registerActivity"
	ActionStartCycle       = "startCycle"
	ActionCompleteCycle    = "completeCycle"
)

// Action is the closed, tagged-variant wire form of a client request.
// Validation happens here, at the synchronizer boundary, so malformed or
// unknown actions are rejected uniformly before reaching the state machine.
type Action struct {
	Type string `json:"type"`

	// registerActivity
	At   *time.Time `json:"at,omitempty"`
	Kind string     `json:"kind,omitempty"`

	// startCycle
	CycleType       string `json:"cycleType,omitempty"`
	DurationSeconds int    `json:"durationSeconds,omitempty"`

	// completeCycle
	FocusRating *int `json:"focusRating,omitempty"`

	// end
	Notes      string `json:"notes,omitempty"`
	EndingPage int    `json:"endingPage,omitempty"`
}

// ParseAction decodes and validates one inbound frame.
func ParseAction(raw []byte) (Action, *apperrors.Error) {
	var a Action
	if err := json.Unmarshal(raw, &a); err != nil {
		return Action{}, apperrors.Invalid("malformed action payload")
	}

	switch a.Type {
	case ActionPause, ActionResume, ActionEnd, ActionCompleteCycle:
	case ActionRegisterActivity:
		if a.Kind == "" {
			a.Kind = model.SignalPointer
		}
		if !model.ValidSignalKind(a.Kind) {
			return Action{}, apperrors.Invalid("kind must be one of pointer, keyboard, navigation")
		}
	case ActionStartCycle:
		if !model.ValidCycleType(a.CycleType) {
			return Action{}, apperrors.Invalid("cycleType must be one of work, short_break, long_break")
		}
		if a.DurationSeconds <= 0 {
			return Action{}, apperrors.Invalid("durationSeconds must be positive")
		}
	case "":
		return Action{}, apperrors.Invalid("action type is required")
	default:
		return Action{}, apperrors.Invalid(fmt.Sprintf("unknown action type %q", a.Type))
	}

	return a, nil
}

// Dispatch applies a validated action to the session. Session creation is
// not dispatchable over an established per-session channel; clients start
// sessions through the REST surface and then subscribe.
func Dispatch(mgr *session.Manager, sessionID string, a Action) (model.Snapshot, *apperrors.Error) {
	switch a.Type {
	case ActionPause:
		return mgr.Pause(sessionID)
	case ActionResume:
		return mgr.Resume(sessionID)
	case ActionEnd:
		return mgr.End(sessionID, session.EndInput{Notes: a.Notes, EndingPage: a.EndingPage})
	case ActionRegisterActivity:
		sig := model.ActivitySignal{Kind: a.Kind}
		if a.At != nil {
			sig.At = a.At.UTC()
		}
		return mgr.RegisterActivity(sessionID, sig)
	case ActionStartCycle:
		return mgr.StartCycle(sessionID, a.CycleType, a.DurationSeconds)
	case ActionCompleteCycle:
		return mgr.CompleteCycle(sessionID, a.FocusRating)
	default:
		return model.Snapshot{}, apperrors.Invalid(fmt.Sprintf("unknown action type %q", a.Type))
	}
}
