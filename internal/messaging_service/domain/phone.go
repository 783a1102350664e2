package domain

import (
	"fmt"
	"strings"
)

// defaultCountryCode is prepended to national-format numbers. The product
// operates in Brazil, so bare 10/11-digit numbers are treated as Brazilian.
const defaultCountryCode = "55"

// NormalizePhone converts a raw phone or WhatsApp JID into digits-only
// international form ("5511999998888"). It accepts "+55 11 99999-8888",
// "11999998888" and "5511999998888@s.whatsapp.net" alike.
func NormalizePhone(raw string) (string, error) {
	s := raw
	if i := strings.IndexByte(s, '@'); i >= 0 { // strip JID suffixes like @s.whatsapp.net
		s = s[:i]
	}

	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()

	switch {
	case len(digits) == 0:
		return "", fmt.Errorf("%w: %q has no digits", ErrInvalidPhone, raw)
	case len(digits) == 10 || len(digits) == 11:
		// National format without country code.
		digits = defaultCountryCode + digits
	}

	if len(digits) < 12 || len(digits) > 15 {
		return "", fmt.Errorf("%w: %q normalizes to %d digits", ErrInvalidPhone, raw, len(digits))
	}
	return digits, nil
}
