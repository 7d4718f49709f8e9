package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"navguard/internal/policy"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"PORT", "LOG_LEVEL", "LOG_FORMAT", "LOG_FILE", "RULES_FILE", "API_RATE_LIMIT",
		"TRUSTED_DOMAINS", "ESSENTIAL_PREFIXES", "BLOCKED_PATTERNS",
		"ENFORCEMENT_SELECTORS", "ENFORCEMENT_LINK_MARKERS", "ENFORCEMENT_CLICK_MARKERS",
		"PLAYER_HOST", "PLAYER_ACCENT", "MOVIE_TEMPLATE", "SERIES_TEMPLATE",
		"RECOVERY_DELAY", "RECOVERY_EVERY", "RECOVERY_BURST",
		"SCAN_INTERVAL", "LOCATION_CHECK_INTERVAL",
	} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
}

func writeRules(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadSettings_defaults(t *testing.T) {
	clearEnv(t)

	s, err := LoadSettings()
	require.NoError(t, err)
	assert.Equal(t, "8080", s.Port)
	assert.Equal(t, "info", s.LogLevel)
	assert.Equal(t, DefaultRateLimit, s.RateLimit)
	assert.Nil(t, s.Policy.TrustedDomains, "nil means default")
	assert.Zero(t, s.Recovery.Delay)
}

func TestLoadSettings_file(t *testing.T) {
	clearEnv(t)
	t.Setenv("RULES_FILE", writeRules(t, `
policy:
  trusted_domains: [example.net]
  blocked_patterns: []
player:
  host: play.example.net
  accent: 00FF00
recovery:
  delay: 750ms
  burst: 3
  every: 1m
enforcement:
  selectors: ['.sponsor']
  scan_interval: 2s
  allow_context_menu: true
`))

	s, err := LoadSettings()
	require.NoError(t, err)
	assert.Equal(t, []string{"example.net"}, s.Policy.TrustedDomains)
	assert.NotNil(t, s.Policy.BlockedPatterns)
	assert.Empty(t, s.Policy.BlockedPatterns, "explicit empty list is kept")
	assert.Nil(t, s.Policy.EssentialPrefixes)
	assert.Equal(t, "play.example.net", s.Templates.Host)
	assert.Equal(t, "00FF00", s.Templates.Accent)
	assert.Equal(t, 750*time.Millisecond, s.Recovery.Delay)
	assert.Equal(t, 3, s.Recovery.Limit.Burst)
	assert.Equal(t, time.Minute, s.Recovery.Limit.Every)
	assert.Equal(t, []string{".sponsor"}, s.Enforcement.Selectors)
	assert.Equal(t, 2*time.Second, s.Enforcement.ScanInterval)
	assert.True(t, s.Enforcement.AllowContextMenu)
}

func TestLoadSettingsFrom_explicitPathWinsOverEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("RULES_FILE", writeRules(t, "policy:\n  trusted_domain: [broken.example]\n"))
	path := writeRules(t, "policy:\n  trusted_domains: [example.net]\n")

	s, err := LoadSettingsFrom(path)
	require.NoError(t, err)
	assert.Equal(t, path, s.RulesFile)
	assert.Equal(t, []string{"example.net"}, s.Policy.TrustedDomains)

	s, err = LoadSettingsFrom("")
	require.NoError(t, err)
	assert.Empty(t, s.RulesFile)
	assert.Nil(t, s.Policy.TrustedDomains)
}

func TestLoadSettings_envOverridesFile(t *testing.T) {
	clearEnv(t)
	t.Setenv("RULES_FILE", writeRules(t, "policy:\n  trusted_domains: [example.net]\nrecovery:\n  delay: 750ms\n"))
	t.Setenv("TRUSTED_DOMAINS", "a.example, b.example,")
	t.Setenv("BLOCKED_PATTERNS", "")
	t.Setenv("RECOVERY_DELAY", "1s")
	t.Setenv("ENFORCEMENT_SELECTORS", `[id*="ad"] | .ads`)
	t.Setenv("API_RATE_LIMIT", "0")

	s, err := LoadSettings()
	require.NoError(t, err)
	assert.Equal(t, []string{"a.example", "b.example"}, s.Policy.TrustedDomains)
	assert.Equal(t, []string{}, s.Policy.BlockedPatterns)
	assert.Equal(t, time.Second, s.Recovery.Delay)
	assert.Equal(t, []string{`[id*="ad"]`, ".ads"}, s.Enforcement.Selectors)
	assert.Zero(t, s.RateLimit)
}

func TestLoadSettings_errors(t *testing.T) {
	cases := map[string]func(t *testing.T){
		"unknown_key": func(t *testing.T) {
			t.Setenv("RULES_FILE", writeRules(t, "policy:\n  trusted_domain: [x.example]\n"))
		},
		"two_documents": func(t *testing.T) {
			t.Setenv("RULES_FILE", writeRules(t, "policy: {}\n---\npolicy: {}\n"))
		},
		"missing_file": func(t *testing.T) {
			t.Setenv("RULES_FILE", filepath.Join(t.TempDir(), "missing.yaml"))
		},
		"not_yaml": func(t *testing.T) {
			t.Setenv("RULES_FILE", filepath.Join(t.TempDir(), "rules.json"))
		},
		"bad_duration": func(t *testing.T) {
			t.Setenv("RECOVERY_DELAY", "soon")
		},
		"negative_duration": func(t *testing.T) {
			t.Setenv("SCAN_INTERVAL", "-1s")
		},
		"bad_burst": func(t *testing.T) {
			t.Setenv("RECOVERY_BURST", "many")
		},
		"negative_rate_limit": func(t *testing.T) {
			t.Setenv("API_RATE_LIMIT", "-5")
		},
	}
	for name, setup := range cases {
		t.Run(name, func(t *testing.T) {
			clearEnv(t)
			setup(t)
			_, err := LoadSettings()
			require.Error(t, err)
			assert.True(t, errors.Is(err, policy.ErrConfiguration), "got %v", err)
		})
	}
}

func TestParseFile_empty(t *testing.T) {
	fc, err := ParseFile(nil)
	require.NoError(t, err)
	assert.Equal(t, &FileConfig{}, fc)
}

func TestGetEnvList(t *testing.T) {
	clearEnv(t)

	_, ok := GetEnvList("TRUSTED_DOMAINS", ",")
	assert.False(t, ok)

	t.Setenv("TRUSTED_DOMAINS", " , ")
	list, ok := GetEnvList("TRUSTED_DOMAINS", ",")
	assert.True(t, ok)
	assert.Equal(t, []string{}, list)
}
