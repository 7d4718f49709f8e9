package playback

import "time"

// EventType names an output from the engine to the embedding surface.
type EventType string

const (
	// EventState reports a lifecycle state change.
	EventState EventType = "state"
	// EventNavigate instructs the surface to load URL. "about:blank" means
	// tear the current page down.
	EventNavigate EventType = "navigate"
	// EventInstallEnforcement asks the surface to (re)install the
	// enforcement script for the freshly loaded page.
	EventInstallEnforcement EventType = "install_enforcement"
	// EventError carries a user-visible player error.
	EventError EventType = "error"
)

// Event is one engine output for a session.
type Event struct {
	SessionID string       `json:"session_id"`
	Type      EventType    `json:"type"`
	State     State        `json:"state,omitempty"`
	From      State        `json:"from,omitempty"`
	URL       string       `json:"url,omitempty"`
	Error     *PlayerError `json:"error,omitempty"`
	At        time.Time    `json:"at"`
}

// Sink receives session events. Publish is called with the session lock
// held, so implementations must not block and must not call back into the
// session.
type Sink interface {
	Publish(ev Event)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ev Event)

func (fn SinkFunc) Publish(ev Event) { fn(ev) }

// Recorder receives decision counters. *metrics.Metrics satisfies it.
type Recorder interface {
	GateDecision(allowed bool, class string)
	Drift()
	Recovery(outcome string)
	LoadFailure()
	EventDropped()
}

// Recovery outcomes passed to Recorder.Recovery.
const (
	RecoveryScheduled = "scheduled"
	RecoveryReloaded  = "reloaded"
	RecoveryExhausted = "exhausted"
	RecoveryCancelled = "cancelled"
)

type nopRecorder struct{}

func (nopRecorder) GateDecision(bool, string) {}
func (nopRecorder) Drift()                    {}
func (nopRecorder) Recovery(string)           {}
func (nopRecorder) LoadFailure()              {}
func (nopRecorder) EventDropped()             {}

type nopSink struct{}

func (nopSink) Publish(Event) {}
