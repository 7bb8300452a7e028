package utils

import (
	"strings"
)

// Digits keeps only the ASCII digits of s.
func Digits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// StripWhatsApp removes the "whatsapp:" channel prefix Twilio puts on addresses.
func StripWhatsApp(addr string) string {
	return strings.TrimPrefix(strings.TrimSpace(addr), "whatsapp:")
}

// NormalizePhone returns the phone in +<digits> form, or "" when it has no digits.
func NormalizePhone(phone string) string {
	d := Digits(StripWhatsApp(phone))
	if d == "" {
		return ""
	}
	return "+" + d
}

// WithPlus prefixes a phone with "+" unless it already has one.
func WithPlus(phone string) string {
	phone = strings.TrimSpace(phone)
	if strings.HasPrefix(phone, "+") {
		return phone
	}
	return "+" + phone
}

// SamePhone compares two phone numbers by their digits.
func SamePhone(a, b string) bool {
	da, db := Digits(a), Digits(b)
	return da != "" && da == db
}
