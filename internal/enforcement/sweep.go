package enforcement

import (
	"fmt"
	"io"

	"github.com/PuerkitoBio/goquery"
)

// RuleSuspiciousLink is reported for anchors removed by link markers.
const RuleSuspiciousLink = "suspicious_link"

// Removal is one element deleted by a sweep.
type Removal struct {
	Rule string `json:"rule"`
	Tag  string `json:"tag"`
	Href string `json:"href,omitempty"`
}

// Sweep removes every element matched by the ad selectors and every
// suspicious link from doc, in that order, and reports what it removed.
// It is the server-side twin of the script's periodic scan.
func (e *Enforcer) Sweep(doc *goquery.Document) []Removal {
	var out []Removal
	for i, m := range e.matchers {
		sel := doc.FindMatcher(m)
		if sel.Length() == 0 {
			continue
		}
		rule := e.rules.Selectors[i]
		sel.Each(func(_ int, n *goquery.Selection) {
			href, _ := n.Attr("href")
			out = append(out, Removal{Rule: rule, Tag: goquery.NodeName(n), Href: href})
		})
		sel.Remove()
	}

	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		if !e.RemoveLink(href) {
			return
		}
		out = append(out, Removal{Rule: RuleSuspiciousLink, Tag: goquery.NodeName(a), Href: href})
		a.Remove()
	})
	return out
}

// SweepHTML parses r, sweeps it and renders the cleaned document.
func (e *Enforcer) SweepHTML(r io.Reader) (string, []Removal, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return "", nil, fmt.Errorf("parse document: %w", err)
	}
	removed := e.Sweep(doc)
	html, err := doc.Html()
	if err != nil {
		return "", nil, fmt.Errorf("render document: %w", err)
	}
	return html, removed, nil
}
