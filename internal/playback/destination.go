package playback

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"navguard/internal/policy"
)

// Destination template defaults. Placeholders: {host}, {id}, {season},
// {episode}, {accent}.
const (
	DefaultTrustedHost    = "player.videasy.net"
	DefaultAccent         = "E50914"
	DefaultMovieTemplate  = "https://{host}/movie/{id}?overlay=true&color={accent}"
	DefaultSeriesTemplate = "https://{host}/tv/{id}/{season}/{episode}?nextEpisode=true&autoplayNextEpisode=true&episodeSelector=true&overlay=true&color={accent}"
)

// Templates derives trusted destinations from playback intents.
type Templates struct {
	Host   string
	Accent string
	Movie  string
	Series string
}

// WithDefaults fills empty fields with the defaults.
func (t Templates) WithDefaults() Templates {
	if t.Host == "" {
		t.Host = DefaultTrustedHost
	}
	if t.Accent == "" {
		t.Accent = DefaultAccent
	}
	if t.Movie == "" {
		t.Movie = DefaultMovieTemplate
	}
	if t.Series == "" {
		t.Series = DefaultSeriesTemplate
	}
	return t
}

// Destination computes the one trusted URL for in. The result is always an
// absolute http(s) URL on a trusted domain that no blocked pattern matches.
func (t Templates) Destination(in Intent, rules *policy.RuleSet) (string, error) {
	id := strings.TrimSpace(in.ID)
	if id == "" {
		return "", fmt.Errorf("%w: missing id", ErrInvalidIntent)
	}

	var tmpl string
	season, episode := in.Season, in.Episode
	switch in.Kind {
	case KindMovie:
		tmpl = t.Movie
	case KindSeries:
		tmpl = t.Series
		if season < 0 || episode < 0 {
			return "", fmt.Errorf("%w: season %d episode %d", ErrInvalidIntent, season, episode)
		}
		if season == 0 {
			season = 1
		}
		if episode == 0 {
			episode = 1
		}
	default:
		return "", fmt.Errorf("%w: unknown kind %q", ErrInvalidIntent, in.Kind)
	}

	dest := strings.NewReplacer(
		"{host}", t.Host,
		"{id}", url.PathEscape(id),
		"{season}", strconv.Itoa(season),
		"{episode}", strconv.Itoa(episode),
		"{accent}", url.QueryEscape(t.Accent),
	).Replace(tmpl)

	if err := checkDestination(dest, rules); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidIntent, err)
	}
	return dest, nil
}

// Validate derives a sample movie and series destination so template or
// host mistakes surface as configuration errors at startup.
func (t Templates) Validate(rules *policy.RuleSet) error {
	for _, in := range []Intent{
		{ID: "1", Kind: KindMovie},
		{ID: "1", Kind: KindSeries, Season: 1, Episode: 1},
	} {
		if _, err := t.Destination(in, rules); err != nil {
			return fmt.Errorf("%w: %s template: %v", policy.ErrConfiguration, in.Kind, err)
		}
	}
	return nil
}

func checkDestination(dest string, rules *policy.RuleSet) error {
	if dest == "" {
		return fmt.Errorf("empty destination")
	}
	u, err := url.Parse(dest)
	if err != nil {
		return fmt.Errorf("parse destination: %w", err)
	}
	if !u.IsAbs() || (u.Scheme != "https" && u.Scheme != "http") || u.Host == "" {
		return fmt.Errorf("destination %q is not an absolute web URL", dest)
	}
	if c := policy.Classify(dest, rules); c != policy.TrustedDomain {
		return fmt.Errorf("destination %q classifies as %s", dest, c)
	}
	return nil
}
