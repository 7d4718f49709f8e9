package policy

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRuleSet_defaults(t *testing.T) {
	rs, err := NewRuleSet(Rules{}.WithDefaults())
	require.NoError(t, err)

	assert.Equal(t, DefaultTrustedDomains, rs.TrustedDomains())
	assert.Equal(t, DefaultEssentialPrefixes, rs.EssentialPrefixes())
	assert.Equal(t, DefaultBlockedPatterns, rs.BlockedPatterns())
}

func TestNewRuleSet_normalises(t *testing.T) {
	rs, err := NewRuleSet(Rules{
		TrustedDomains:    []string{" Videasy.NET ", ".videasy.net", "videasy.org."},
		EssentialPrefixes: []string{"BLOB:"},
		BlockedPatterns:   []string{"Promo", "promo", ".Track"},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"videasy.net", "videasy.org"}, rs.TrustedDomains())
	assert.Equal(t, []string{"blob:"}, rs.EssentialPrefixes())
	assert.Equal(t, []string{"promo", ".track"}, rs.BlockedPatterns())
}

func TestNewRuleSet_configurationErrors(t *testing.T) {
	tests := []struct {
		name  string
		rules Rules
	}{
		{"no trusted domains", Rules{}},
		{"explicitly empty trusted domains", Rules{TrustedDomains: []string{}}.WithDefaults()},
		{"blank domain", Rules{TrustedDomains: []string{"  "}}},
		{"domain with path", Rules{TrustedDomains: []string{"videasy.net/movie"}}},
		{"domain with port", Rules{TrustedDomains: []string{"videasy.net:443"}}},
		{"wildcard domain", Rules{TrustedDomains: []string{"*.videasy.net"}}},
		{"only dots", Rules{TrustedDomains: []string{"..."}}},
		{"prefix without colon", Rules{TrustedDomains: []string{"videasy.net"}, EssentialPrefixes: []string{"blob"}}},
		{"empty pattern", Rules{TrustedDomains: []string{"videasy.net"}, BlockedPatterns: []string{""}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rs, err := NewRuleSet(tt.rules)
			require.Error(t, err)
			assert.Nil(t, rs)
			assert.True(t, errors.Is(err, ErrConfiguration), "got %v", err)
		})
	}
}

func TestRuleSet_accessorsReturnCopies(t *testing.T) {
	rs, err := NewRuleSet(Rules{}.WithDefaults())
	require.NoError(t, err)

	domains := rs.TrustedDomains()
	domains[0] = "evil.com"
	assert.False(t, rs.IsTrustedHost("evil.com"))
}
