package playback

import (
	"time"

	"navguard/internal/policy"
)

// Kind is the content kind of a playback intent.
type Kind string

const (
	KindMovie  Kind = "movie"
	KindSeries Kind = "series"
)

// Intent is the request to play one title, handed over by the catalog
// layer. It is consumed once to derive the session's trusted destination.
type Intent struct {
	ID      string
	Kind    Kind
	Season  int // series only; 0 means 1
	Episode int // series only; 0 means 1
}

// State is the lifecycle state of a playback session.
type State string

const (
	StateIdle       State = "idle"
	StateLoading    State = "loading"
	StatePlaying    State = "playing"
	StateRecovering State = "recovering"
	StateClosed     State = "closed"
)

// DriftDecision is the Post-Navigation Monitor's verdict on a settled
// navigation.
type DriftDecision int

const (
	NoDrift DriftDecision = iota
	Drift
)

func (d DriftDecision) String() string {
	if d == Drift {
		return "drift"
	}
	return "no_drift"
}

// Stage tells where a violation was observed.
type Stage string

const (
	StageRequest    Stage = "request"
	StageNavigation Stage = "navigation"
)

// Violation is one entry of a session's violation history.
type Violation struct {
	URL            string                `json:"url"`
	Classification policy.Classification `json:"classification"`
	Rule           string                `json:"rule,omitempty"`
	Stage          Stage                 `json:"stage"`
	At             time.Time             `json:"at"`
}

// Snapshot is a read-only copy of a session, safe to hand to callers.
type Snapshot struct {
	ID              string       `json:"id"`
	Surface         string       `json:"surface"`
	Destination     string       `json:"destination,omitempty"`
	State           State        `json:"state"`
	ViolationCount  int          `json:"violation_count"`
	LastObservedURL string       `json:"last_observed_url,omitempty"`
	Violations      []Violation  `json:"violations,omitempty"`
	Error           *PlayerError `json:"error,omitempty"`
	CreatedAt       time.Time    `json:"created_at"`
}
