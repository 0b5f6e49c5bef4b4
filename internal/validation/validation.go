// Package validation checks admin input before it reaches the store.
package validation

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"muenzbox/internal/timewindow"
)

var (
	emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)
	pinRegex   = regexp.MustCompile(`^[0-9]{4,8}$`)
	clockRegex = regexp.MustCompile(`^([01][0-9]|2[0-3]):[0-5][0-9]$`)
)

const (
	MaxNameLength = 50
	MaxCoins      = 100
)

// ValidationError represents a validation error
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateEmail checks if an email address is valid
func ValidateEmail(email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return ValidationError{Field: "email", Message: "email is required"}
	}
	if !emailRegex.MatchString(email) {
		return ValidationError{Field: "email", Message: "invalid email format"}
	}
	return nil
}

// ValidateName checks if a display name is valid
func ValidateName(field, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ValidationError{Field: field, Message: "name is required"}
	}
	if utf8.RuneCountInString(name) > MaxNameLength {
		return ValidationError{Field: field, Message: fmt.Sprintf("name must be at most %d characters", MaxNameLength)}
	}
	return nil
}

// ValidatePIN checks that a PIN has 4 to 8 digits
func ValidatePIN(pin string) error {
	if pin == "" {
		return ValidationError{Field: "pin", Message: "pin is required"}
	}
	if !pinRegex.MatchString(pin) {
		return ValidationError{Field: "pin", Message: "pin must be 4 to 8 digits"}
	}
	return nil
}

// ValidateCoinSettings checks a weekly refill amount and cap
func ValidateCoinSettings(field string, weekly, max int) error {
	if weekly < 0 || weekly > MaxCoins {
		return ValidationError{Field: field + "_weekly", Message: fmt.Sprintf("must be between 0 and %d", MaxCoins)}
	}
	if max < 0 || max > MaxCoins {
		return ValidationError{Field: field + "_max", Message: fmt.Sprintf("must be between 0 and %d", MaxCoins)}
	}
	return nil
}

// ValidateIntervals checks that every interval is HH:MM–HH:MM with from before to
func ValidateIntervals(field string, intervals []timewindow.Interval) error {
	for i, iv := range intervals {
		if !clockRegex.MatchString(iv.From) || !clockRegex.MatchString(iv.To) {
			return ValidationError{Field: field, Message: fmt.Sprintf("interval %d must use HH:MM", i+1)}
		}
		// Zero-padded HH:MM compares correctly as a string
		if iv.From >= iv.To {
			return ValidationError{Field: field, Message: fmt.Sprintf("interval %d must start before it ends", i+1)}
		}
	}
	return nil
}
