package luma

import (
	"regexp"
	"strings"
	"unicode"
)

// DefaultCountryCode is prefixed to numbers entered without a leading '+'.
const DefaultCountryCode = "+91"

// InitialMobile is the mobile entry a fresh attempt starts with.
const InitialMobile = DefaultCountryCode + " "

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// ValidEmail reports whether v has the local@domain.tld shape.
func ValidEmail(v string) bool {
	return emailPattern.MatchString(v)
}

// NormalizePhone returns v in E.164 form. A leading '+' is kept and every
// other non-digit dropped; without one the default country code is
// prefixed. It returns "" when v holds no digits.
func NormalizePhone(v string) string {
	v = strings.TrimSpace(v)
	digits := onlyDigits(v)
	if digits == "" {
		return ""
	}
	if strings.HasPrefix(v, "+") {
		return "+" + digits
	}
	return DefaultCountryCode + digits
}

// MaskPhone hides all but the last two characters of an E.164 number.
func MaskPhone(e164 string) string {
	if len(e164) <= 2 {
		return e164
	}
	return strings.Repeat("*", len(e164)-2) + e164[len(e164)-2:]
}

func onlyDigits(v string) string {
	var b strings.Builder
	for _, r := range v {
		if r < unicode.MaxASCII && unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}
