package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"navguard/internal/enforcement"
	"navguard/internal/playback"
	"navguard/internal/policy"
)

// Settings is the fully resolved configuration of the engine and server.
type Settings struct {
	Port      string
	LogLevel  string
	LogFormat string
	LogFile   string
	RulesFile string
	// RateLimit is the number of session starts and sweeps allowed per
	// client IP and minute; 0 disables limiting. Engine callbacks are never
	// limited.
	RateLimit int

	Policy      policy.Rules
	Templates   playback.Templates
	Recovery    Recovery
	Enforcement enforcement.Rules
}

// Recovery holds the recovery timing knobs.
type Recovery struct {
	Delay time.Duration
	Limit playback.RecoveryLimit
}

// FileConfig is the YAML rules file. Every key is optional; an absent list
// keeps the default while an explicit empty list is taken literally.
type FileConfig struct {
	Policy      policy.Rules    `yaml:"policy"`
	Player      PlayerFile      `yaml:"player"`
	Recovery    RecoveryFile    `yaml:"recovery"`
	Enforcement EnforcementFile `yaml:"enforcement"`
}

type PlayerFile struct {
	Host           string `yaml:"host"`
	Accent         string `yaml:"accent"`
	MovieTemplate  string `yaml:"movie_template"`
	SeriesTemplate string `yaml:"series_template"`
}

type RecoveryFile struct {
	Delay time.Duration `yaml:"delay"`
	Burst int           `yaml:"burst"`
	Every time.Duration `yaml:"every"`
}

type EnforcementFile struct {
	AllowedSchemes        []string      `yaml:"allowed_schemes"`
	Selectors             []string      `yaml:"selectors"`
	LinkMarkers           []string      `yaml:"link_markers"`
	ClickMarkers          []string      `yaml:"click_markers"`
	ScanInterval          time.Duration `yaml:"scan_interval"`
	LocationCheckInterval time.Duration `yaml:"location_check_interval"`
	ReportChannel         string        `yaml:"report_channel"`
	AllowPopups           bool          `yaml:"allow_popups"`
	AllowDialogs          bool          `yaml:"allow_dialogs"`
	AllowFocusChanges     bool          `yaml:"allow_focus_changes"`
	AllowContextMenu      bool          `yaml:"allow_context_menu"`
	AllowLocationWrites   bool          `yaml:"allow_location_writes"`
}

// DefaultRateLimit is the default RateLimit.
const DefaultRateLimit = 600

// LoadSettings resolves the configuration: the optional RULES_FILE first,
// then environment variables on top. Values that do not parse are
// configuration errors; nothing falls back silently.
func LoadSettings() (Settings, error) {
	return LoadSettingsFrom(GetEnv("RULES_FILE", ""))
}

// LoadSettingsFrom is LoadSettings with an explicit rules file path; an
// empty path means no rules file.
func LoadSettingsFrom(rulesFile string) (Settings, error) {
	s := Settings{
		Port:      GetEnv("PORT", "8080"),
		LogLevel:  GetEnv("LOG_LEVEL", "info"),
		LogFormat: GetEnv("LOG_FORMAT", "json"),
		LogFile:   GetEnv("LOG_FILE", ""),
		RulesFile: rulesFile,
	}

	if s.RulesFile != "" {
		fc, err := LoadFile(s.RulesFile)
		if err != nil {
			return Settings{}, err
		}
		fc.apply(&s)
	}

	if err := s.applyEnv(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// LoadFile decodes a rules file in strict mode: unknown keys and trailing
// documents are configuration errors.
func LoadFile(path string) (*FileConfig, error) {
	path = filepath.Clean(path)
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" {
		return nil, fmt.Errorf("%w: unsupported rules file format %q (only YAML supported)", policy.ErrConfiguration, ext)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read rules file: %v", policy.ErrConfiguration, err)
	}
	return ParseFile(data)
}

// ParseFile is LoadFile on in-memory YAML.
func ParseFile(data []byte) (*FileConfig, error) {
	var fc FileConfig
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&fc); err != nil {
		if errors.Is(err, io.EOF) {
			return &FileConfig{}, nil
		}
		return nil, fmt.Errorf("%w: strict rules file parse: %v", policy.ErrConfiguration, err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: rules file contains multiple documents or trailing content", policy.ErrConfiguration)
	}
	return &fc, nil
}

func (fc *FileConfig) apply(s *Settings) {
	s.Policy = fc.Policy
	s.Templates = playback.Templates{
		Host:   fc.Player.Host,
		Accent: fc.Player.Accent,
		Movie:  fc.Player.MovieTemplate,
		Series: fc.Player.SeriesTemplate,
	}
	s.Recovery = Recovery{
		Delay: fc.Recovery.Delay,
		Limit: playback.RecoveryLimit{Burst: fc.Recovery.Burst, Every: fc.Recovery.Every},
	}
	e := fc.Enforcement
	s.Enforcement = enforcement.Rules{
		AllowedSchemes:        e.AllowedSchemes,
		Selectors:             e.Selectors,
		LinkMarkers:           e.LinkMarkers,
		ClickMarkers:          e.ClickMarkers,
		ScanInterval:          e.ScanInterval,
		LocationCheckInterval: e.LocationCheckInterval,
		ReportChannel:         e.ReportChannel,
		AllowPopups:           e.AllowPopups,
		AllowDialogs:          e.AllowDialogs,
		AllowFocusChanges:     e.AllowFocusChanges,
		AllowContextMenu:      e.AllowContextMenu,
		AllowLocationWrites:   e.AllowLocationWrites,
	}
}

func (s *Settings) applyEnv() error {
	lists := []struct {
		key string
		sep string
		dst *[]string
	}{
		{"TRUSTED_DOMAINS", ",", &s.Policy.TrustedDomains},
		{"ESSENTIAL_PREFIXES", ",", &s.Policy.EssentialPrefixes},
		{"BLOCKED_PATTERNS", ",", &s.Policy.BlockedPatterns},
		{"ENFORCEMENT_SELECTORS", "|", &s.Enforcement.Selectors},
		{"ENFORCEMENT_LINK_MARKERS", ",", &s.Enforcement.LinkMarkers},
		{"ENFORCEMENT_CLICK_MARKERS", ",", &s.Enforcement.ClickMarkers},
	}
	for _, l := range lists {
		if v, ok := GetEnvList(l.key, l.sep); ok {
			*l.dst = v
		}
	}

	s.Templates.Host = GetEnv("PLAYER_HOST", s.Templates.Host)
	s.Templates.Accent = GetEnv("PLAYER_ACCENT", s.Templates.Accent)
	s.Templates.Movie = GetEnv("MOVIE_TEMPLATE", s.Templates.Movie)
	s.Templates.Series = GetEnv("SERIES_TEMPLATE", s.Templates.Series)

	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"RECOVERY_DELAY", &s.Recovery.Delay},
		{"RECOVERY_EVERY", &s.Recovery.Limit.Every},
		{"SCAN_INTERVAL", &s.Enforcement.ScanInterval},
		{"LOCATION_CHECK_INTERVAL", &s.Enforcement.LocationCheckInterval},
	}
	for _, d := range durations {
		if err := envDuration(d.key, d.dst); err != nil {
			return err
		}
	}

	if err := envInt("RECOVERY_BURST", &s.Recovery.Limit.Burst); err != nil {
		return err
	}
	s.RateLimit = DefaultRateLimit
	if err := envInt("API_RATE_LIMIT", &s.RateLimit); err != nil {
		return err
	}
	if s.RateLimit < 0 {
		return fmt.Errorf("%w: API_RATE_LIMIT must not be negative", policy.ErrConfiguration)
	}
	return nil
}

func envDuration(key string, dst *time.Duration) error {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", policy.ErrConfiguration, key, err)
	}
	if d < 0 {
		return fmt.Errorf("%w: %s must not be negative", policy.ErrConfiguration, key)
	}
	*dst = d
	return nil
}

func envInt(key string, dst *int) error {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", policy.ErrConfiguration, key, err)
	}
	*dst = n
	return nil
}
