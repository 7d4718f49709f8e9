package enforcement

import (
	"regexp"
	"strings"
)

// hostPattern extracts the authority of an absolute or scheme-relative web
// URL. Backslashes end the authority the way browsers treat them. The
// injected script uses the same expression.
var hostPattern = regexp.MustCompile(`(?i)^(?:https?:)?[/\\]{2}([^/\\?#]*)`)

var schemePattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9+.\-]*:`)

// hostOf returns the lowercase host of u, without userinfo or port.
func hostOf(u string) (string, bool) {
	m := hostPattern.FindStringSubmatch(strings.TrimSpace(u))
	if m == nil {
		return "", false
	}
	h := m[1]
	if at := strings.LastIndex(h, "@"); at >= 0 {
		h = h[at+1:]
	}
	if strings.HasPrefix(h, "[") {
		if end := strings.Index(h, "]"); end >= 0 {
			h = h[:end+1]
		}
	} else if c := strings.Index(h, ":"); c >= 0 {
		h = h[:c]
	}
	return strings.TrimSuffix(strings.ToLower(h), "."), true
}

func (e *Enforcer) trustedHost(h string) bool {
	if h == "" {
		return false
	}
	for _, d := range e.rules.TrustedDomains {
		if h == d || strings.HasSuffix(h, "."+d) {
			return true
		}
	}
	return false
}

// TrustedURL reports whether u is an http(s) URL on a trusted domain.
func (e *Enforcer) TrustedURL(u string) bool {
	h, ok := hostOf(u)
	return ok && e.trustedHost(h)
}

// AllowLocation reports whether a page-initiated location write from
// current to target is let through. Allowed schemes always pass, web URLs
// pass when their host is trusted, other schemes never pass and relative
// targets inherit the verdict of the current page.
func (e *Enforcer) AllowLocation(target, current string) bool {
	t := strings.TrimSpace(target)
	if t == "" {
		return false
	}
	lower := strings.ToLower(t)
	for _, s := range e.rules.AllowedSchemes {
		if strings.HasPrefix(lower, s) {
			return true
		}
	}
	if h, ok := hostOf(t); ok {
		return e.trustedHost(h)
	}
	if schemePattern.MatchString(t) {
		return false
	}
	return e.TrustedURL(current)
}

// SuppressClick reports whether a click on an element with the given href
// and onclick attribute must be swallowed.
func (e *Enforcer) SuppressClick(href, onclick string) bool {
	if href != "" && e.TrustedURL(href) {
		return false
	}
	return containsAny(href, e.rules.ClickMarkers) || containsAny(onclick, e.rules.ClickMarkers)
}

// RemoveLink reports whether an anchor with href is a suspicious link the
// sweep deletes.
func (e *Enforcer) RemoveLink(href string) bool {
	if href == "" || e.TrustedURL(href) {
		return false
	}
	return containsAny(href, e.rules.LinkMarkers)
}

// LocationWatch mirrors the script's location poll: every change of the
// page location is checked once.
type LocationWatch struct {
	e    *Enforcer
	last string
}

// NewLocationWatch starts a watch at initial.
func (e *Enforcer) NewLocationWatch(initial string) *LocationWatch {
	return &LocationWatch{e: e, last: initial}
}

// Check reports whether the page must go back because its location changed
// to an untrusted URL.
func (w *LocationWatch) Check(current string) bool {
	if current == w.last {
		return false
	}
	w.last = current
	return !w.e.TrustedURL(current)
}

func containsAny(s string, markers []string) bool {
	if s == "" {
		return false
	}
	s = strings.ToLower(s)
	for _, m := range markers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}
