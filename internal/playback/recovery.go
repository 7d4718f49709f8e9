package playback

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"navguard/internal/policy"
)

// DefaultRecoveryDelay is the pause between tearing the surface down and
// reloading the destination.
const DefaultRecoveryDelay = 500 * time.Millisecond

// RecoveryLimit bounds how often one session may recover: Burst recoveries
// at once, refilled one per Every. Every <= 0 means no refill; a negative
// Burst disables the bound. The zero value selects DefaultRecoveryLimit.
type RecoveryLimit struct {
	Burst int
	Every time.Duration
}

// DefaultRecoveryLimit allows five back-to-back recoveries and one more
// every thirty seconds.
var DefaultRecoveryLimit = RecoveryLimit{Burst: 5, Every: 30 * time.Second}

func (l RecoveryLimit) newLimiter() *rate.Limiter {
	switch {
	case l.Burst <= 0:
		return rate.NewLimiter(rate.Inf, 0)
	case l.Every <= 0:
		return rate.NewLimiter(0, l.Burst)
	default:
		return rate.NewLimiter(rate.Every(l.Every), l.Burst)
	}
}

// Controller is the Recovery Controller: it owns every session state
// transition and the single delayed action in the engine, the reload that
// follows a teardown.
type Controller struct {
	rules     *policy.RuleSet
	delay     time.Duration
	scheduler Scheduler
	sink      Sink
	rec       Recorder
	log       *slog.Logger
	now       func() time.Time
}

// NewController builds a Controller from opts (defaults applied).
func NewController(rules *policy.RuleSet, opts Options) *Controller {
	opts = opts.withDefaults()
	return &Controller{
		rules:     rules,
		delay:     opts.RecoveryDelay,
		scheduler: opts.Scheduler,
		sink:      opts.Sink,
		rec:       opts.Recorder,
		log:       opts.Logger,
		now:       opts.Now,
	}
}

// Start moves a fresh session from idle to loading and asks the surface to
// load the destination.
func (c *Controller) Start(s *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := c.moveLocked(s, evStart); !ok {
		return fmt.Errorf("%w: start from %s", ErrIllegalTransition, s.state)
	}
	c.emitLocked(s, Event{Type: EventNavigate, URL: s.destination})
	return nil
}

// Close forces the session to closed from any state, cancelling a pending
// reload. Closing twice is a no-op.
func (c *Controller) Close(s *Session) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateClosed {
		return
	}
	c.closeLocked(s, evClose)
	c.log.Info("session closed",
		slog.String("event", "session.closed"),
		slog.String("session_id", s.id),
		slog.Int("violation_count", s.violationCount))
}

// Retry reloads the destination after a transient load failure.
func (c *Controller) Retry(s *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateClosed {
		return ErrSessionClosed
	}
	if _, ok := c.moveLocked(s, evRetry); !ok {
		return fmt.Errorf("%w: retry from %s", ErrIllegalTransition, s.state)
	}
	s.lastErr = nil
	c.emitLocked(s, Event{Type: EventNavigate, URL: s.destination})
	return nil
}

// ReportLoadFailure records that the embedded engine failed to load failedURL.
// Failures for about:blank, for URLs other than the trusted destination or
// a trusted domain, and for closed sessions are ignored and return nil.
// Otherwise the retryable player error is published and returned.
func (c *Controller) ReportLoadFailure(s *Session, failedURL, description string) *PlayerError {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateClosed || policy.HasScheme(failedURL, blankURL) {
		return nil
	}
	if failedURL != s.destination && policy.Classify(failedURL, c.rules) != policy.TrustedDomain {
		return nil
	}

	perr := newTransientLoad(fmt.Errorf("%w: %s: %s", ErrTransientLoad, failedURL, description))
	s.lastErr = perr
	c.rec.LoadFailure()
	c.emitLocked(s, Event{Type: EventError, Error: perr})
	c.log.Warn("trusted destination failed to load",
		slog.String("event", "recovery.load_failed"),
		slog.String("session_id", s.id),
		slog.String("url", failedURL),
		slog.String("description", description))
	return perr
}

// onSettledTrustedLocked handles the first trusted settle of a page load.
// Caller holds s.mu.
func (c *Controller) onSettledTrustedLocked(s *Session) {
	if s.state != StateLoading {
		return
	}
	c.moveLocked(s, evSettledTrusted)
	s.lastErr = nil
	c.emitLocked(s, Event{Type: EventInstallEnforcement})
}

// onDriftLocked starts a recovery unless one is already running. Caller
// holds s.mu and has already counted the violation.
func (c *Controller) onDriftLocked(s *Session) {
	if s.state == StateRecovering {
		return
	}
	if !s.limiter.AllowN(c.now(), 1) {
		c.exhaustLocked(s, errors.New("recovery rate limit reached"))
		return
	}
	if _, ok := c.moveLocked(s, evDrift); !ok {
		return
	}

	c.emitLocked(s, Event{Type: EventNavigate, URL: blankURL})

	s.cancelPendingLocked()
	gen := s.generation
	s.pending = c.scheduler.AfterFunc(c.delay, func() { c.reload(s, gen) })
	c.rec.Recovery(RecoveryScheduled)
	c.log.Info("recovery scheduled",
		slog.String("event", "recovery.scheduled"),
		slog.String("session_id", s.id),
		slog.Duration("delay", c.delay),
		slog.Int("violation_count", s.violationCount))
}

// reload is the scheduled second half of a recovery.
func (c *Controller) reload(s *Session, gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Stale: the session was closed or the reload superseded after the
	// timer fired but before it got the lock.
	if s.generation != gen || s.state != StateRecovering {
		return
	}
	s.pending = nil

	if err := checkDestination(s.destination, c.rules); err != nil {
		c.exhaustLocked(s, err)
		return
	}

	c.moveLocked(s, evReload)
	c.emitLocked(s, Event{Type: EventNavigate, URL: s.destination})
	c.rec.Recovery(RecoveryReloaded)
	c.log.Info("destination reloaded",
		slog.String("event", "recovery.reloaded"),
		slog.String("session_id", s.id))
}

// exhaustLocked surfaces a fatal recovery error and closes the session
// instead of looping. Caller holds s.mu.
func (c *Controller) exhaustLocked(s *Session, cause error) {
	perr := newRecoveryExhausted(fmt.Errorf("%w: %v", ErrRecoveryExhausted, cause))
	s.lastErr = perr
	c.rec.Recovery(RecoveryExhausted)
	c.emitLocked(s, Event{Type: EventError, Error: perr})
	c.log.Warn("recovery exhausted",
		slog.String("event", "recovery.exhausted"),
		slog.String("session_id", s.id),
		slog.Int("violation_count", s.violationCount),
		slog.String("error", cause.Error()))
	c.closeLocked(s, evExhausted)
}

func (c *Controller) closeLocked(s *Session, ev trigger) {
	if s.cancelPendingLocked() {
		c.rec.Recovery(RecoveryCancelled)
	}
	c.moveLocked(s, ev)
	s.destination = ""
}

// moveLocked applies ev and publishes the state change. Caller holds s.mu.
func (c *Controller) moveLocked(s *Session, ev trigger) (State, bool) {
	from := s.state
	to, ok := nextState(from, ev)
	if !ok {
		return from, false
	}
	s.state = to
	if to != from {
		c.emitLocked(s, Event{Type: EventState, State: to, From: from})
		c.log.Debug("session state changed",
			slog.String("event", "session.transition"),
			slog.String("session_id", s.id),
			slog.String("old_state", string(from)),
			slog.String("new_state", string(to)),
			slog.String("trigger", string(ev)))
	}
	return to, true
}

func (c *Controller) emitLocked(s *Session, ev Event) {
	ev.SessionID = s.id
	ev.At = c.now()
	c.sink.Publish(ev)
}
