package policy

import (
	"errors"
	"fmt"
	"strings"
)

// ErrConfiguration is returned when a rule set cannot be built. The engine
// must not start without a valid rule set.
var ErrConfiguration = errors.New("invalid policy configuration")

// Defaults observed on the player the engine was built for.
var (
	DefaultTrustedDomains = []string{"videasy.net", "player.videasy.net", "videasy.org"}

	DefaultEssentialPrefixes = []string{"blob:", "data:", "about:"}

	DefaultBlockedPatterns = []string{
		"aliexpress",
		"alibaba",
		"muermoabject",
		"click.",
		"redirect",
		"popup",
		"ad",
		"promo",
		"/e/_",
		"scontext",
		"affiliate",
	}
)

// Rules is the raw, user-supplied form of a rule set. A nil slice means
// "use the default"; an empty non-nil slice is taken literally.
type Rules struct {
	TrustedDomains    []string `yaml:"trusted_domains"`
	EssentialPrefixes []string `yaml:"essential_prefixes"`
	BlockedPatterns   []string `yaml:"blocked_patterns"`
}

// WithDefaults fills every nil list with its default.
func (r Rules) WithDefaults() Rules {
	if r.TrustedDomains == nil {
		r.TrustedDomains = append([]string(nil), DefaultTrustedDomains...)
	}
	if r.EssentialPrefixes == nil {
		r.EssentialPrefixes = append([]string(nil), DefaultEssentialPrefixes...)
	}
	if r.BlockedPatterns == nil {
		r.BlockedPatterns = append([]string(nil), DefaultBlockedPatterns...)
	}
	return r
}

// RuleSet is the validated, normalised rule set. It is immutable after
// construction and safe for concurrent use without synchronisation.
type RuleSet struct {
	trustedDomains    []string
	essentialPrefixes []string
	blockedPatterns   []string
}

// NewRuleSet validates r and returns the immutable rule set built from it.
// All entries are trimmed and lower-cased; duplicates are dropped.
func NewRuleSet(r Rules) (*RuleSet, error) {
	domains, err := normalise("trusted_domains", r.TrustedDomains, validDomain)
	if err != nil {
		return nil, err
	}
	if len(domains) == 0 {
		return nil, fmt.Errorf("%w: trusted_domains: at least one domain is required", ErrConfiguration)
	}
	prefixes, err := normalise("essential_prefixes", r.EssentialPrefixes, validPrefix)
	if err != nil {
		return nil, err
	}
	patterns, err := normalise("blocked_patterns", r.BlockedPatterns, nil)
	if err != nil {
		return nil, err
	}
	return &RuleSet{
		trustedDomains:    domains,
		essentialPrefixes: prefixes,
		blockedPatterns:   patterns,
	}, nil
}

// TrustedDomains returns a copy of the trusted domain suffixes.
func (rs *RuleSet) TrustedDomains() []string {
	return append([]string(nil), rs.trustedDomains...)
}

// EssentialPrefixes returns a copy of the essential scheme prefixes.
func (rs *RuleSet) EssentialPrefixes() []string {
	return append([]string(nil), rs.essentialPrefixes...)
}

// BlockedPatterns returns a copy of the blocked substrings.
func (rs *RuleSet) BlockedPatterns() []string {
	return append([]string(nil), rs.blockedPatterns...)
}

func normalise(field string, in []string, check func(string) (string, error)) ([]string, error) {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for i, raw := range in {
		v := strings.ToLower(strings.TrimSpace(raw))
		if v == "" {
			return nil, fmt.Errorf("%w: %s[%d]: empty entry", ErrConfiguration, field, i)
		}
		if check != nil {
			var err error
			if v, err = check(v); err != nil {
				return nil, fmt.Errorf("%w: %s[%d] %q: %v", ErrConfiguration, field, i, raw, err)
			}
		}
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out, nil
}

// validDomain accepts "example.com", ".example.com" and "example.com.".
func validDomain(d string) (string, error) {
	if strings.ContainsAny(d, "/:@?#* \t") {
		return "", errors.New("must be a bare host name")
	}
	d = strings.Trim(d, ".")
	if d == "" {
		return "", errors.New("must contain a label")
	}
	return d, nil
}

func validPrefix(p string) (string, error) {
	if !strings.HasSuffix(p, ":") {
		return "", errors.New("must be a scheme ending in ':'")
	}
	if strings.ContainsAny(p, " \t/") {
		return "", errors.New("must not contain whitespace or '/'")
	}
	return p, nil
}
