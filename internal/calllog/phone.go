package calllog

import "strings"

// NormalizeNumber strips everything except digits and a leading "+".
// Returns "" for empty or unusable input. Idempotent.
func NormalizeNumber(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ""
	}
	var b strings.Builder
	for i, ch := range s {
		if ch >= '0' && ch <= '9' {
			b.WriteRune(ch)
			continue
		}
		if ch == '+' && i == 0 {
			b.WriteRune(ch)
		}
	}
	out := b.String()
	if out == "" || out == "+" {
		return ""
	}
	return out
}

// LastTenDigits returns the rightmost 10 digits of the number, discarding any
// country code. Outbound records are matched against locally stored 10-digit
// subscriber numbers, so this is the storage form for the outbound path.
// Shorter inputs are returned as their digits. Idempotent.
func LastTenDigits(raw string) string {
	n := NormalizeNumber(raw)
	if n == "" {
		return ""
	}
	digits := strings.TrimPrefix(n, "+")
	if len(digits) >= 10 {
		return digits[len(digits)-10:]
	}
	return digits
}
