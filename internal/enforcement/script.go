package enforcement

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"
	"text/template"
)

//go:embed enforcement.js.tmpl
var scriptSource string

var scriptTemplate = template.Must(template.New("enforcement").Parse(scriptSource))

// scriptConfig is the JSON object the injected script reads its rules from.
type scriptConfig struct {
	SessionID               string   `json:"sessionId"`
	TrustedDomains          []string `json:"trustedDomains"`
	AllowedSchemes          []string `json:"allowedSchemes"`
	Selectors               []string `json:"selectors"`
	LinkMarkers             []string `json:"linkMarkers"`
	ClickMarkers            []string `json:"clickMarkers"`
	ScanIntervalMs          int64    `json:"scanIntervalMs"`
	LocationCheckIntervalMs int64    `json:"locationCheckIntervalMs"`
	ReportChannel           string   `json:"reportChannel"`
	BlockPopups             bool     `json:"blockPopups"`
	GuardLocation           bool     `json:"guardLocation"`
	SuppressDialogs         bool     `json:"suppressDialogs"`
	SuppressFocus           bool     `json:"suppressFocus"`
	SuppressContextMenu     bool     `json:"suppressContextMenu"`
}

// Script renders the enforcement script for one session. The output is
// self-contained, installs at most once per page and per session, and
// evaluates to true as embedded engines expect of injected code.
func (e *Enforcer) Script(sessionID string) (string, error) {
	r := e.rules
	cfg := scriptConfig{
		SessionID:               sessionID,
		TrustedDomains:          nonNil(r.TrustedDomains),
		AllowedSchemes:          nonNil(r.AllowedSchemes),
		Selectors:               nonNil(r.Selectors),
		LinkMarkers:             nonNil(r.LinkMarkers),
		ClickMarkers:            nonNil(r.ClickMarkers),
		ScanIntervalMs:          r.ScanInterval.Milliseconds(),
		LocationCheckIntervalMs: r.LocationCheckInterval.Milliseconds(),
		ReportChannel:           r.ReportChannel,
		BlockPopups:             !r.AllowPopups,
		GuardLocation:           !r.AllowLocationWrites,
		SuppressDialogs:         !r.AllowDialogs,
		SuppressFocus:           !r.AllowFocusChanges,
		SuppressContextMenu:     !r.AllowContextMenu,
	}
	raw, err := json.Marshal(cfg)
	if err != nil {
		return "", fmt.Errorf("encode script config: %w", err)
	}

	var b strings.Builder
	if err := scriptTemplate.Execute(&b, struct{ Config string }{Config: string(raw)}); err != nil {
		return "", fmt.Errorf("render script: %w", err)
	}
	return b.String(), nil
}

func nonNil(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}
