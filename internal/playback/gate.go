package playback

import (
	"log/slog"
	"strings"
	"time"

	"navguard/internal/policy"
)

const blankURL = "about:blank"

// Gate is the Pre-Navigation Gate. It is consulted synchronously before the
// embedded engine loads anything and never blocks or does I/O.
type Gate struct {
	rules *policy.RuleSet
	rec   Recorder
	log   *slog.Logger
	now   func() time.Time
}

// NewGate returns a Gate over rules. rec may be nil.
func NewGate(rules *policy.RuleSet, rec Recorder, log *slog.Logger) *Gate {
	if rec == nil {
		rec = nopRecorder{}
	}
	return &Gate{rules: rules, rec: rec, log: log, now: time.Now}
}

// ShouldAllow reports whether the embedded engine may load requestedURL.
// about:blank is always allowed; otherwise the URL must classify as a
// trusted domain or an essential resource, where the session's destination
// and last observed URL count as essential. A closed session only allows
// about:blank and no longer records violations. Denials are routine and
// logged at debug level.
func (g *Gate) ShouldAllow(requestedURL string, s *Session) bool {
	if strings.EqualFold(strings.TrimSpace(requestedURL), blankURL) {
		g.rec.GateDecision(true, policy.EssentialResource.String())
		return true
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var v policy.Verdict
	if s.state != StateClosed {
		v = g.rules.Evaluate(requestedURL, s.destination, s.lastObservedURL)
	}
	allowed := v.Class == policy.TrustedDomain || v.Class == policy.EssentialResource
	g.rec.GateDecision(allowed, v.Class.String())
	if allowed {
		return true
	}
	if s.state == StateClosed {
		return false
	}

	s.recordLocked(Violation{
		URL:            requestedURL,
		Classification: v.Class,
		Rule:           v.Rule,
		Stage:          StageRequest,
		At:             g.now(),
	})
	g.log.Debug("request denied",
		slog.String("event", "gate.deny"),
		slog.String("session_id", s.id),
		slog.String("url", requestedURL),
		slog.String("classification", v.Class.String()),
		slog.String("rule", v.Rule),
		slog.String("state", string(s.state)))
	return false
}
