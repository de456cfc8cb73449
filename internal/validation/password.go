package validation

import (
	"errors"
	"strings"
)

// ValidatePassword checks a candidate admin password before it is hashed.
// Minimum 12 characters, bcrypt's 72 byte ceiling, no common fragments.
func ValidatePassword(password string) error {
	if len(password) < 12 {
		return errors.New("password must be at least 12 characters")
	}

	// bcrypt silently truncates anything past 72 bytes
	if len(password) > 72 {
		return errors.New("password must not exceed 72 bytes")
	}

	lower := strings.ToLower(password)
	commonPatterns := []string{
		"password", "123456", "qwerty", "admin", "letmein",
		"welcome", "changeme", "change-this", "console", "qabox",
	}

	for _, pattern := range commonPatterns {
		if strings.Contains(lower, pattern) {
			return errors.New("password is too common, please choose a stronger one")
		}
	}

	return nil
}
