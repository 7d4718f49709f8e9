package playback

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// maxViolationHistory bounds the per-session violation history.
const maxViolationHistory = 32

// Session ties one playback attempt to its trusted destination.
//
// Fields are only ever mutated by the Gate, the Monitor and the recovery
// Controller, always under mu. Everyone else reads through Snapshot.
type Session struct {
	id        string
	surface   string
	createdAt time.Time

	mu              sync.Mutex
	destination     string
	state           State
	violationCount  int
	lastObservedURL string
	history         []Violation
	lastErr         *PlayerError

	limiter *rate.Limiter
	pending Timer
	// generation is bumped whenever a pending reload becomes stale.
	generation uint64
}

func newSession(id, surface, destination string, limiter *rate.Limiter, now time.Time) *Session {
	return &Session{
		id:          id,
		surface:     surface,
		createdAt:   now,
		destination: destination,
		state:       StateIdle,
		limiter:     limiter,
	}
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// Surface returns the player surface the session is bound to.
func (s *Session) Surface() string { return s.surface }

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Snapshot returns a copy of the session's current fields.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		ID:              s.id,
		Surface:         s.surface,
		Destination:     s.destination,
		State:           s.state,
		ViolationCount:  s.violationCount,
		LastObservedURL: s.lastObservedURL,
		CreatedAt:       s.createdAt,
	}
	if len(s.history) > 0 {
		snap.Violations = append([]Violation(nil), s.history...)
	}
	if s.lastErr != nil {
		e := *s.lastErr
		snap.Error = &e
	}
	return snap
}

// recordLocked appends v to the bounded history. Caller holds s.mu.
func (s *Session) recordLocked(v Violation) {
	if len(s.history) == maxViolationHistory {
		copy(s.history, s.history[1:])
		s.history = s.history[:maxViolationHistory-1]
	}
	s.history = append(s.history, v)
}

// cancelPendingLocked stops a scheduled reload and invalidates its
// callback. Caller holds s.mu.
func (s *Session) cancelPendingLocked() bool {
	s.generation++
	if s.pending == nil {
		return false
	}
	s.pending.Stop()
	s.pending = nil
	return true
}
