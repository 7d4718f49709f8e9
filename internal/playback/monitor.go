package playback

import (
	"log/slog"
	"strings"
	"time"

	"navguard/internal/policy"
)

// Monitor is the Post-Navigation Monitor. It inspects navigations the
// embedded engine reports as settled, which includes client-side redirect
// chains the Gate never saw as discrete requests.
type Monitor struct {
	rules    *policy.RuleSet
	recovery *Controller
	rec      Recorder
	log      *slog.Logger
	now      func() time.Time
}

// NewMonitor returns a Monitor that hands drift to recovery. rec may be nil.
func NewMonitor(rules *policy.RuleSet, recovery *Controller, rec Recorder, log *slog.Logger) *Monitor {
	if rec == nil {
		rec = nopRecorder{}
	}
	return &Monitor{rules: rules, recovery: recovery, rec: rec, log: log, now: time.Now}
}

// Observe evaluates a navigation event. Only settled (not loading),
// non-empty URLs are considered. Drift is a settled URL that is not on a
// trusted domain, not about: or data:, and not the destination itself; it
// bumps the violation count and triggers recovery. A settle on a trusted
// domain while loading moves the session to playing.
func (m *Monitor) Observe(settledURL string, loading bool, s *Session) DriftDecision {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateClosed || s.state == StateIdle {
		return NoDrift
	}
	if loading || strings.TrimSpace(settledURL) == "" {
		return NoDrift
	}

	v := m.rules.Evaluate(settledURL, s.destination)
	if !m.drifted(settledURL, v, s.destination) {
		// Only clean URLs may become the exact-match essential resource.
		s.lastObservedURL = settledURL
		if v.Class == policy.TrustedDomain {
			m.recovery.onSettledTrustedLocked(s)
		}
		return NoDrift
	}

	s.violationCount++
	s.recordLocked(Violation{
		URL:            settledURL,
		Classification: v.Class,
		Rule:           v.Rule,
		Stage:          StageNavigation,
		At:             m.now(),
	})
	m.rec.Drift()
	m.log.Info("navigation drift",
		slog.String("event", "monitor.drift"),
		slog.String("session_id", s.id),
		slog.String("url", settledURL),
		slog.String("classification", v.Class.String()),
		slog.String("state", string(s.state)),
		slog.Int("violation_count", s.violationCount))

	m.recovery.onDriftLocked(s)
	return Drift
}

func (m *Monitor) drifted(settledURL string, v policy.Verdict, destination string) bool {
	if v.Class == policy.TrustedDomain {
		return false
	}
	if policy.HasScheme(settledURL, "about:") || policy.HasScheme(settledURL, "data:") {
		return false
	}
	return settledURL != destination
}
