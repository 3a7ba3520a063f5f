package apperrors

import "net/http"

const (
	KindInvalidState = "invalid_state"
	KindPrecondition = "precondition_failed"
	KindPersistence  = "persistence_failed"
	KindNotFound     = "not_found"
	KindInvalid      = "invalid_request"
	KindInternal     = "internal_error"
)

// Error is the typed error surfaced to the calling observer. Status is the
// HTTP mapping for the REST surface; the WebSocket surface sends only the
// kind/message descriptor.
type Error struct {
	Status  int         `json:"-"`
	Kind    string      `json:"kind"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

func (e *Error) Error() string {
	return e.Message
}

// Descriptor is the wire form of an Error.
type Descriptor struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

func (e *Error) Descriptor() Descriptor {
	return Descriptor{Kind: e.Kind, Message: e.Message}
}

func New(status int, kind, message string) *Error {
	return &Error{
		Status:  status,
		Kind:    kind,
		Message: message,
	}
}

// InvalidState reports an action that is illegal for the session's current
// status. Session state is unchanged.
func InvalidState(message string) *Error {
	return New(http.StatusConflict, KindInvalidState, message)
}

// Precondition reports a pomodoro action attempted against a non-active
// session or while another cycle is running.
func Precondition(message string) *Error {
	return New(http.StatusConflict, KindPrecondition, message)
}

func NotFound(message string) *Error {
	if message == "" {
		message = "not found"
	}
	return New(http.StatusNotFound, KindNotFound, message)
}

func Invalid(message string) *Error {
	return New(http.StatusBadRequest, KindInvalid, message)
}

func Internal(message string) *Error {
	if message == "" {
		message = "internal server error"
	}
	return New(http.StatusInternalServerError, KindInternal, message)
}
