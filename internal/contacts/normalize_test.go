package contacts

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/acme/voicecampaign/internal/config"
)

func TestNormalize(t *testing.T) {
	cfg := config.ContactsConfig{
		DefaultCountryCode: "+1",
		DomesticPrefixes:   []string{"2", "3", "4", "5", "6", "7", "8", "9"},
	}

	cases := []struct {
		name string
		raw  string
		want string
		ok   bool
	}{
		{"already e164", "+15550001234", "+15550001234", true},
		{"e164 with formatting", "+1 (555) 000-1234", "+15550001234", true},
		{"domestic ten digit", "5550001234", "+15550001234", true},
		{"eleven digit gains plus", "15550001234", "+15550001234", true},
		{"thirteen digit gains plus", "4401234567890", "+4401234567890", true},
		{"dots and spaces", "555.000.1234", "+15550001234", true},
		{"too short", "12345", "", false},
		{"too short with plus", "+1234567", "", false},
		{"too long with plus", "+1234567890123456", "", false},
		{"letters", "555CALLNOW", "", false},
		{"empty", "", "", false},
		{"whitespace only", "   ", "", false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := Normalize(tc.raw, cfg)
			require.Equal(t, tc.ok, ok)
			require.Equal(t, tc.want, got)
		})
	}
}

func TestNormalizeWithoutDomesticPrefixes(t *testing.T) {
	cfg := config.ContactsConfig{DefaultCountryCode: "+1"}

	// Ten-digit numbers are ambiguous without a trunk prefix table.
	_, ok := Normalize("5550001234", cfg)
	require.False(t, ok)
}
