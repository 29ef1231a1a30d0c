// Package normalize provides the canonical forms used as join and storage keys.
package normalize

import "strings"

// DefaultCountryCode replaces the local trunk prefix of phone numbers.
const DefaultCountryCode = "358"

// NormalizePhoneNumber canonicalizes raw with the default country code.
func NormalizePhoneNumber(raw string) string {
	return NormalizePhoneNumberWithCode(raw, DefaultCountryCode)
}

// NormalizePhoneNumberWithCode strips every non-digit from raw and replaces a
// leading trunk prefix "0" with countryCode. The result has no '+' and is the
// key used to match device contacts with registered users.
func NormalizePhoneNumberWithCode(raw, countryCode string) string {
	digits := digitsOnly(raw)
	rest, ok := strings.CutPrefix(digits, "0")
	if !ok {
		return digits
	}

	// A code that is empty or starts with 0 would leave the result
	// trunk-prefixed, so such codes collapse every leading zero instead.
	code := strings.TrimLeft(digitsOnly(countryCode), "0")
	if code == "" {
		return strings.TrimLeft(digits, "0")
	}
	return code + rest
}

func digitsOnly(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// SanitizeKey replaces every rune outside [A-Za-z0-9_] with '_'.
func SanitizeKey(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		if isKeyRune(r) {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	return b.String()
}

func isKeyRune(r rune) bool {
	return r == '_' ||
		(r >= 'a' && r <= 'z') ||
		(r >= 'A' && r <= 'Z') ||
		(r >= '0' && r <= '9')
}
