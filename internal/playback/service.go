package playback

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"navguard/internal/policy"
)

// DefaultSurface is used when a caller does not name its player surface.
const DefaultSurface = "default"

// Options configures a Service. Zero fields take defaults.
type Options struct {
	Templates     Templates
	RecoveryDelay time.Duration
	RecoveryLimit RecoveryLimit
	Scheduler     Scheduler
	Sink          Sink
	Recorder      Recorder
	Logger        *slog.Logger
	Now           func() time.Time
	NewID         func() string
}

func (o Options) withDefaults() Options {
	o.Templates = o.Templates.WithDefaults()
	if o.RecoveryDelay <= 0 {
		o.RecoveryDelay = DefaultRecoveryDelay
	}
	if o.RecoveryLimit == (RecoveryLimit{}) {
		o.RecoveryLimit = DefaultRecoveryLimit
	}
	if o.Scheduler == nil {
		o.Scheduler = RealScheduler
	}
	if o.Sink == nil {
		o.Sink = nopSink{}
	}
	if o.Recorder == nil {
		o.Recorder = nopRecorder{}
	}
	if o.Logger == nil {
		o.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.NewID == nil {
		o.NewID = uuid.NewString
	}
	return o
}

// Service is the engine's entry point: it starts and closes playback
// sessions and routes surface callbacks to the Gate, the Monitor and the
// recovery Controller.
type Service struct {
	repo      Repository
	rules     *policy.RuleSet
	templates Templates
	limit     RecoveryLimit
	gate      *Gate
	monitor   *Monitor
	recovery  *Controller
	log       *slog.Logger
	now       func() time.Time
	newID     func() string
}

// NewService returns a Service over repo and rules.
func NewService(repo Repository, rules *policy.RuleSet, opts Options) *Service {
	opts = opts.withDefaults()
	recovery := NewController(rules, opts)
	gate := NewGate(rules, opts.Recorder, opts.Logger)
	gate.now = opts.Now
	monitor := NewMonitor(rules, recovery, opts.Recorder, opts.Logger)
	monitor.now = opts.Now
	return &Service{
		repo:      repo,
		rules:     rules,
		templates: opts.Templates,
		limit:     opts.RecoveryLimit,
		gate:      gate,
		monitor:   monitor,
		recovery:  recovery,
		log:       opts.Logger,
		now:       opts.Now,
		newID:     opts.NewID,
	}
}

// Rules returns the rule set the service enforces.
func (s *Service) Rules() *policy.RuleSet { return s.rules }

// StartPlayback derives the trusted destination for in and starts a session
// on surface, closing the surface's previous session if there was one.
func (s *Service) StartPlayback(surface string, in Intent) (*Session, error) {
	dest, err := s.templates.Destination(in, s.rules)
	if err != nil {
		return nil, err
	}
	surface = strings.TrimSpace(surface)
	if surface == "" {
		surface = DefaultSurface
	}

	sess := newSession(s.newID(), surface, dest, s.limit.newLimiter(), s.now())
	if prev := s.repo.Put(sess); prev != nil {
		s.recovery.Close(prev)
	}
	if err := s.recovery.Start(sess); err != nil {
		s.repo.Remove(sess.ID())
		return nil, err
	}

	s.log.Info("playback started",
		slog.String("event", "session.started"),
		slog.String("session_id", sess.ID()),
		slog.String("surface", surface),
		slog.String("kind", string(in.Kind)),
		slog.String("destination", dest))
	return sess, nil
}

// ClosePlayback closes and releases the session.
func (s *Service) ClosePlayback(id string) error {
	sess, ok := s.repo.Remove(id)
	if !ok {
		return ErrSessionNotFound
	}
	s.recovery.Close(sess)
	return nil
}

// Get returns a snapshot of the session.
func (s *Service) Get(id string) (Snapshot, error) {
	sess, ok := s.repo.Get(id)
	if !ok {
		return Snapshot{}, ErrSessionNotFound
	}
	return sess.Snapshot(), nil
}

// ShouldAllow runs the Pre-Navigation Gate for a request of session id.
func (s *Service) ShouldAllow(id, requestedURL string) (bool, error) {
	sess, ok := s.repo.Get(id)
	if !ok {
		return false, ErrSessionNotFound
	}
	return s.gate.ShouldAllow(requestedURL, sess), nil
}

// Observe runs the Post-Navigation Monitor for a navigation event of
// session id and returns the decision with the resulting state.
func (s *Service) Observe(id, settledURL string, loading bool) (DriftDecision, State, error) {
	sess, ok := s.repo.Get(id)
	if !ok {
		return NoDrift, "", ErrSessionNotFound
	}
	d := s.monitor.Observe(settledURL, loading, sess)
	return d, sess.State(), nil
}

// ReportLoadFailure forwards an engine load error. It returns the player
// error surfaced to the user, or nil when the failure was ignored.
func (s *Service) ReportLoadFailure(id, failedURL, description string) (*PlayerError, error) {
	sess, ok := s.repo.Get(id)
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s.recovery.ReportLoadFailure(sess, failedURL, description), nil
}

// Retry reloads the destination of session id after a transient failure.
func (s *Service) Retry(id string) error {
	sess, ok := s.repo.Get(id)
	if !ok {
		return ErrSessionNotFound
	}
	if err := s.recovery.Retry(sess); err != nil {
		return fmt.Errorf("retry session %s: %w", id, err)
	}
	return nil
}

// ActiveSessionCount returns the number of sessions that are not closed.
func (s *Service) ActiveSessionCount() int {
	return s.repo.ActiveCount()
}
