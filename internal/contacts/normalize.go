package contacts

import (
	"strings"

	"github.com/acme/voicecampaign/internal/config"
)

// Normalize converts a raw phone number to E.164 using a best-effort
// country-code heuristic. The second return is false when the number is
// unusable and the contact should be dropped.
//
// Rules, in order:
//   - formatting characters (spaces, dashes, dots, parentheses) are stripped
//   - numbers already prefixed with "+" pass through when 8-15 digits remain
//   - exactly 10 digits starting with a configured domestic trunk prefix are
//     assumed domestic and get the default country code
//   - 11-15 all-digit numbers are assumed to already carry a country code
//     and only gain the "+"
//   - anything else is rejected
func Normalize(raw string, cfg config.ContactsConfig) (string, bool) {
	cleaned := stripFormatting(raw)
	if cleaned == "" {
		return "", false
	}

	if strings.HasPrefix(cleaned, "+") {
		digits := cleaned[1:]
		if !allDigits(digits) || len(digits) < 8 || len(digits) > 15 {
			return "", false
		}
		return cleaned, true
	}

	if !allDigits(cleaned) {
		return "", false
	}

	switch {
	case len(cleaned) == 10 && hasDomesticPrefix(cleaned, cfg.DomesticPrefixes):
		return cfg.DefaultCountryCode + cleaned, true
	case len(cleaned) >= 11 && len(cleaned) <= 15:
		return "+" + cleaned, true
	default:
		return "", false
	}
}

func stripFormatting(raw string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(raw) {
		switch r {
		case ' ', '-', '.', '(', ')':
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func allDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func hasDomesticPrefix(number string, prefixes []string) bool {
	for _, p := range prefixes {
		if p != "" && strings.HasPrefix(number, p) {
			return true
		}
	}
	return false
}
