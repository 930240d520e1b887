package intake

import "strings"

// NormalizePhone reduces an Indonesian phone number to its international
// digit form (62...). Leading 00 and trunk 0 are rewritten; a bare 8...
// gets the country code. The second return is false for anything that does
// not end up as 9 to 16 digits starting with 62.
func NormalizePhone(raw string) (string, bool) {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if digits == "" {
		return "", false
	}

	digits = strings.TrimPrefix(digits, "00")
	switch {
	case strings.HasPrefix(digits, "0"):
		digits = "62" + digits[1:]
	case strings.HasPrefix(digits, "8"):
		digits = "62" + digits
	}

	if !strings.HasPrefix(digits, "62") {
		return "", false
	}
	if len(digits) < 9 || len(digits) > 16 {
		return "", false
	}
	return digits, true
}
