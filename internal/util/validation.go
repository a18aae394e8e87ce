package util

import (
	"regexp"
)

var (
	emailRegex = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
	// Matches the generator alphabet: uppercase letters and digits with
	// ambiguous O/I/0/1 excluded.
	activationCodeRegex = regexp.MustCompile(`^[A-HJ-NP-Z2-9]{6}$`)
	uuidRegex           = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)
)

func IsValidEmail(s string) bool {
	return emailRegex.MatchString(s)
}

func IsValidActivationCode(s string) bool {
	return activationCodeRegex.MatchString(s)
}

func IsValidUUID(s string) bool {
	if s == "" {
		return false
	}
	return uuidRegex.MatchString(s)
}
