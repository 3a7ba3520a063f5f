package session

import (
	"time"

	"studysprint/backend/internal/model"
)

// Detector applies the single throttling policy for raw activity signals,
// however many UI surfaces generate them. Signals inside the throttle window
// collapse into the previous one, so repeated pointer events within the same
// second cost one last-activity update at most.
//
// A Detector belongs to one Machine and is guarded by the machine's lock.
type Detector struct {
	throttle     time.Duration
	lastAccepted time.Time
}

func NewDetector(throttle time.Duration) *Detector {
	if throttle <= 0 {
		throttle = time.Second
	}
	return &Detector{throttle: throttle}
}

// Accept reports whether the signal should update the session's
// last-activity timestamp.
func (d *Detector) Accept(sig model.ActivitySignal) bool {
	if !model.ValidSignalKind(sig.Kind) {
		return false
	}
	if !d.lastAccepted.IsZero() && sig.At.Sub(d.lastAccepted) < d.throttle {
		return false
	}
	d.lastAccepted = sig.At
	return true
}
