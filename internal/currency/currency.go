package currency

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalid indicates a code that is not 3-8 uppercase letters.
	ErrInvalid = errors.New("invalid currency code")

	// ErrNotAllowed indicates a well-formed code outside the configured
	// allow-list.
	ErrNotAllowed = errors.New("currency not allowed")
)

// Normalize upper-cases and trims a currency code, validates its shape
// (3-8 letters) and checks it against the allow-list.
func Normalize(code string, allowed []string) (string, error) {
	normalized := strings.ToUpper(strings.TrimSpace(code))
	if len(normalized) < 3 || len(normalized) > 8 {
		return "", fmt.Errorf("%w: %q", ErrInvalid, code)
	}
	for _, r := range normalized {
		if r < 'A' || r > 'Z' {
			return "", fmt.Errorf("%w: %q", ErrInvalid, code)
		}
	}
	for _, a := range allowed {
		if normalized == a {
			return normalized, nil
		}
	}
	return "", fmt.Errorf("%w: %q (allowed: %s)", ErrNotAllowed, normalized, strings.Join(allowed, ","))
}
