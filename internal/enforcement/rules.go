// Package enforcement holds the in-page defence layer: declarative rules,
// the Go decisions that mirror the injected script, a server-side DOM sweep
// and the adapter that renders the script for an embedded browsing engine.
package enforcement

import (
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"

	"navguard/internal/policy"
)

// Defaults taken from the hostile pages the player is known to wrap.
var (
	DefaultSelectors = []string{
		`[id*="ad"]`, `[class*="ad"]`, `[id*="banner"]`,
		`[class*="banner"]`, `[id*="popup"]`, `[class*="popup"]`,
		`iframe[src*="ads"]`, `iframe[src*="doubleclick"]`,
		`[id*="google_ads"]`, `[class*="google-ad"]`,
		`.advertisement`, `.ads`, `.ad-container`,
		`[data-ad-slot]`, `[data-ad-client]`,
		`[href*="alibaba"]`, `[href*="aliexpress"]`,
		`[href*="deignsaspalax"]`, `[onclick*="redirect"]`,
	}

	DefaultLinkMarkers  = []string{"alibaba", "aliexpress", "deignsaspalax", "redirect"}
	DefaultClickMarkers = []string{"alibaba", "aliexpress", "deignsaspalax", "redirect"}

	DefaultAllowedSchemes = []string{"blob:", "data:"}
)

const (
	DefaultScanInterval          = time.Second
	DefaultLocationCheckInterval = 500 * time.Millisecond
	DefaultReportChannel         = "ReactNativeWebView"
)

// Rules is the enforcement layer expressed as data. Nil lists and zero
// intervals take defaults; the Allow* switches turn a protection off.
type Rules struct {
	TrustedDomains        []string
	AllowedSchemes        []string
	Selectors             []string
	LinkMarkers           []string
	ClickMarkers          []string
	ScanInterval          time.Duration
	LocationCheckInterval time.Duration
	ReportChannel         string

	AllowPopups         bool
	AllowDialogs        bool
	AllowFocusChanges   bool
	AllowContextMenu    bool
	AllowLocationWrites bool
}

// WithDefaults fills nil lists and zero values.
func (r Rules) WithDefaults() Rules {
	if r.TrustedDomains == nil {
		r.TrustedDomains = policy.DefaultTrustedDomains
	}
	if r.AllowedSchemes == nil {
		r.AllowedSchemes = DefaultAllowedSchemes
	}
	if r.Selectors == nil {
		r.Selectors = DefaultSelectors
	}
	if r.LinkMarkers == nil {
		r.LinkMarkers = DefaultLinkMarkers
	}
	if r.ClickMarkers == nil {
		r.ClickMarkers = DefaultClickMarkers
	}
	if r.ScanInterval == 0 {
		r.ScanInterval = DefaultScanInterval
	}
	if r.LocationCheckInterval == 0 {
		r.LocationCheckInterval = DefaultLocationCheckInterval
	}
	if r.ReportChannel == "" {
		r.ReportChannel = DefaultReportChannel
	}
	return r
}

// Enforcer is a validated rule set. It is immutable and safe for
// concurrent use.
type Enforcer struct {
	rules    Rules
	matchers []goquery.Matcher
}

// New validates r (after defaults) and returns an Enforcer.
func New(r Rules) (*Enforcer, error) {
	r = r.WithDefaults()
	if r.ScanInterval < 0 || r.LocationCheckInterval < 0 {
		return nil, fmt.Errorf("%w: enforcement intervals must be positive", policy.ErrConfiguration)
	}
	if strings.ContainsAny(r.ReportChannel, " .[]()'\"") {
		return nil, fmt.Errorf("%w: report channel %q is not an identifier", policy.ErrConfiguration, r.ReportChannel)
	}

	r.TrustedDomains = lowerAll(r.TrustedDomains)
	if len(r.TrustedDomains) == 0 {
		return nil, fmt.Errorf("%w: enforcement needs at least one trusted domain", policy.ErrConfiguration)
	}
	r.AllowedSchemes = lowerAll(r.AllowedSchemes)
	r.LinkMarkers = lowerAll(r.LinkMarkers)
	r.ClickMarkers = lowerAll(r.ClickMarkers)

	matchers := make([]goquery.Matcher, 0, len(r.Selectors))
	for _, sel := range r.Selectors {
		m, err := cascadia.Compile(sel)
		if err != nil {
			return nil, fmt.Errorf("%w: selector %q: %v", policy.ErrConfiguration, sel, err)
		}
		matchers = append(matchers, m)
	}
	return &Enforcer{rules: r, matchers: matchers}, nil
}

// Rules returns the normalised rules.
func (e *Enforcer) Rules() Rules { return e.rules }

func lowerAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, v := range in {
		v = strings.Trim(strings.ToLower(strings.TrimSpace(v)), ".")
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}
