package utils

import (
	"fmt"
	"strings"
)

// addressSuffix is the transport address suffix for individual contacts.
const addressSuffix = "@c.us"

// NormalizePhone turns a human-entered phone number into a canonical
// transport address. Formatting characters are stripped; an already
// canonical address passes through unchanged.
func NormalizePhone(phone string) (string, error) {
	phone = strings.TrimSpace(phone)
	if strings.HasSuffix(phone, addressSuffix) {
		phone = strings.TrimSuffix(phone, addressSuffix)
	}

	var digits strings.Builder
	for _, r := range phone {
		switch {
		case r >= '0' && r <= '9':
			digits.WriteRune(r)
		case r == '+' || r == ' ' || r == '-' || r == '(' || r == ')' || r == '.':
			// formatting only
		default:
			return "", fmt.Errorf("invalid character %q in phone number", r)
		}
	}

	n := digits.Len()
	if n < 7 || n > 15 {
		return "", fmt.Errorf("phone number must have 7 to 15 digits, got %d", n)
	}
	return digits.String() + addressSuffix, nil
}
