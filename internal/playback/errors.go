package playback

import "errors"

var (
	// ErrSessionNotFound is returned for an unknown session id.
	ErrSessionNotFound = errors.New("session not found")

	// ErrSessionClosed is returned when an operation needs a live session.
	ErrSessionClosed = errors.New("session closed")

	// ErrInvalidIntent is returned when no trusted destination can be
	// derived from a playback intent.
	ErrInvalidIntent = errors.New("invalid playback intent")

	// ErrIllegalTransition is returned when an event is not allowed in the
	// session's current state.
	ErrIllegalTransition = errors.New("illegal session transition")

	// ErrRecoveryExhausted means the trusted destination could not be
	// restored. Fatal for the session; the player must start over.
	ErrRecoveryExhausted = errors.New("recovery exhausted")

	// ErrTransientLoad means the trusted destination failed to load for
	// reasons unrelated to policy. Retrying the load may help.
	ErrTransientLoad = errors.New("transient load failure")
)

// ErrorKind classifies a player error for the presentation layer.
type ErrorKind string

const (
	KindRecoveryExhausted ErrorKind = "recovery_exhausted"
	KindTransientLoad     ErrorKind = "transient_load"
)

// Recommended user actions attached to a PlayerError.
const (
	ActionRestart = "restart"
	ActionRetry   = "retry"
)

// PlayerError is a user-visible playback error. Policy violations never
// become PlayerErrors.
type PlayerError struct {
	Kind      ErrorKind `json:"kind"`
	Retryable bool      `json:"retryable"`
	Action    string    `json:"action"`
	Message   string    `json:"message"`
	Err       error     `json:"-"`
}

func (e *PlayerError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Message
}

func (e *PlayerError) Unwrap() error { return e.Err }

func newRecoveryExhausted(err error) *PlayerError {
	return &PlayerError{
		Kind:    KindRecoveryExhausted,
		Action:  ActionRestart,
		Message: "Playback could not be restored. Start the title again.",
		Err:     err,
	}
}

func newTransientLoad(err error) *PlayerError {
	return &PlayerError{
		Kind:      KindTransientLoad,
		Retryable: true,
		Action:    ActionRetry,
		Message:   "Cannot load video player. Please try again.",
		Err:       err,
	}
}
