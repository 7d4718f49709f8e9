package policy

import (
	"net/url"
	"strings"
)

// Classification is the outcome of running a URL through the classifier.
//
// Precedence, highest first: BlockedPattern, then TrustedDomain and
// EssentialResource (equal rank, TrustedDomain is reported when both hold),
// then Unclassified.
type Classification int

const (
	Unclassified Classification = iota
	TrustedDomain
	EssentialResource
	BlockedPattern
)

func (c Classification) String() string {
	switch c {
	case TrustedDomain:
		return "trusted_domain"
	case EssentialResource:
		return "essential_resource"
	case BlockedPattern:
		return "blocked_pattern"
	default:
		return "unclassified"
	}
}

// MarshalText renders the classification by name.
func (c Classification) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// RuleExact is reported as the matched rule when a URL is essential because
// it equals one of the caller's exact URLs.
const RuleExact = "exact"

// Verdict is a classification together with the rule entry that produced it.
type Verdict struct {
	Class Classification
	Rule  string
}

// Classify maps rawURL to a Classification. It is pure and total: empty or
// malformed input yields Unclassified. exact lists URLs that count as
// essential resources when rawURL equals one of them verbatim.
func Classify(rawURL string, rs *RuleSet, exact ...string) Classification {
	return rs.Evaluate(rawURL, exact...).Class
}

// Evaluate is Classify with the matched rule attached.
func (rs *RuleSet) Evaluate(rawURL string, exact ...string) Verdict {
	if rs == nil || strings.TrimSpace(rawURL) == "" {
		return Verdict{Class: Unclassified}
	}
	lower := strings.ToLower(strings.TrimSpace(rawURL))

	for _, p := range rs.blockedPatterns {
		if strings.Contains(lower, p) {
			return Verdict{Class: BlockedPattern, Rule: p}
		}
	}
	if host := navigableHost(rawURL); host != "" {
		if d, ok := rs.matchDomain(host); ok {
			return Verdict{Class: TrustedDomain, Rule: d}
		}
	}
	for _, p := range rs.essentialPrefixes {
		if strings.HasPrefix(lower, p) {
			return Verdict{Class: EssentialResource, Rule: p}
		}
	}
	for _, e := range exact {
		if e != "" && rawURL == e {
			return Verdict{Class: EssentialResource, Rule: RuleExact}
		}
	}
	return Verdict{Class: Unclassified}
}

// IsTrustedHost reports whether host equals or is a subdomain of a trusted
// domain. Comparison is case-insensitive and ignores a trailing dot.
func (rs *RuleSet) IsTrustedHost(host string) bool {
	_, ok := rs.matchDomain(strings.TrimSuffix(strings.ToLower(host), "."))
	return ok
}

func (rs *RuleSet) matchDomain(host string) (string, bool) {
	if rs == nil || host == "" {
		return "", false
	}
	for _, d := range rs.trustedDomains {
		if host == d || strings.HasSuffix(host, "."+d) {
			return d, true
		}
	}
	return "", false
}

// navigableHost returns the lower-cased host of a web URL, or "" when the
// URL does not parse or uses a scheme that cannot carry a page (javascript:,
// blob:, mailto: ...). Only the host component is ever compared, so
// "videasy.net.evil.com" and "evil.com/?videasy.net" do not match.
func navigableHost(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return ""
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https", "ws", "wss":
	default:
		return ""
	}
	return strings.TrimSuffix(strings.ToLower(u.Hostname()), ".")
}

// HasScheme reports whether rawURL starts with the given scheme prefix
// (for example "about:"), ignoring case and leading whitespace.
func HasScheme(rawURL, prefix string) bool {
	s := strings.TrimSpace(rawURL)
	return len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix)
}
