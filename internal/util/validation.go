package util

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// ValidateNotEmpty checks if a string is not empty and returns an error if it is.
// This eliminates repeated empty string checks.
//
// Example:
//
//	if err := util.ValidateNotEmpty(chatID, "chat ID"); err != nil {
//	    return err
//	}
func ValidateNotEmpty(value, fieldName string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("%s cannot be empty", fieldName)
	}
	return nil
}

// ValidateRange checks if an integer is within a specified range (inclusive).
//
// Example:
//
//	if err := util.ValidateRange(attempts, 1, 100, "reconnect attempts"); err != nil {
//	    return err
//	}
func ValidateRange(value, min, max int, fieldName string) error {
	if value < min || value > max {
		return fmt.Errorf("%s must be between %d and %d, got %d", fieldName, min, max, value)
	}
	return nil
}

// ValidatePositiveDuration checks if a duration is strictly positive.
func ValidatePositiveDuration(value time.Duration, fieldName string) error {
	if value <= 0 {
		return fmt.Errorf("%s must be positive, got %v", fieldName, value)
	}
	return nil
}

// MaxURLLength is the maximum allowed length for configured URLs.
const MaxURLLength = 2048

// ValidateURL checks that rawURL parses, has a host, and uses one of the
// allowed schemes.
//
// Example:
//
//	if err := util.ValidateURL(socketURL, "ws", "wss"); err != nil {
//	    return err
//	}
func ValidateURL(rawURL string, schemes ...string) error {
	if rawURL == "" {
		return errors.New("URL cannot be empty")
	}

	if len(rawURL) > MaxURLLength {
		return fmt.Errorf("URL exceeds maximum length of %d characters", MaxURLLength)
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}

	scheme := strings.ToLower(u.Scheme)
	allowed := false
	for _, s := range schemes {
		if scheme == s {
			allowed = true
			break
		}
	}
	if !allowed {
		return fmt.Errorf("URL scheme %q is not allowed; expected one of %v", u.Scheme, schemes)
	}

	if u.Hostname() == "" {
		return errors.New("URL must have a hostname")
	}

	return nil
}
