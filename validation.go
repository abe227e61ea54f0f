package authcore

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/MrEthical07/authcore/internal"
)

var (
	emailPattern    = regexp.MustCompile(`^[A-Za-z0-9._%+\-]+@[A-Za-z0-9](?:[A-Za-z0-9\-]*[A-Za-z0-9])?(?:\.[A-Za-z0-9](?:[A-Za-z0-9\-]*[A-Za-z0-9])?)*\.[A-Za-z]{2,}$`)
	usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)
	otpPattern      = regexp.MustCompile(`^[0-9]{6}$`)
	tokenPattern    = regexp.MustCompile(`^[0-9a-f]+$`)
)

const maxEmailLength = 254

// NormalizeEmail trims and lowercases an address. Every flow normalizes
// before lookups and rate-limit keys.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func invalid(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

func validateEmail(email string) error {
	if email == "" {
		return invalid("email", "Email is required")
	}
	if len(email) > maxEmailLength || !emailPattern.MatchString(email) {
		return invalid("email", "Invalid email address")
	}
	return nil
}

func (e *Engine) validateUsername(username string) error {
	v := e.config.Validation
	n := utf8.RuneCountInString(username)
	switch {
	case n < v.UsernameMinLength:
		return invalid("username", fmt.Sprintf("Username must be at least %d characters long", v.UsernameMinLength))
	case n > v.UsernameMaxLength:
		return invalid("username", fmt.Sprintf("Username must be at most %d characters long", v.UsernameMaxLength))
	case !usernamePattern.MatchString(username):
		return invalid("username", "Username can only contain letters, numbers, underscores and hyphens")
	}
	return nil
}

func (e *Engine) validatePassword(field, password string) error {
	v := e.config.Validation
	switch {
	case len(password) < v.PasswordMinLength:
		return invalid(field, fmt.Sprintf("Password must be at least %d characters long", v.PasswordMinLength))
	case len(password) > v.PasswordMaxLength:
		return invalid(field, fmt.Sprintf("Password must be at most %d characters long", v.PasswordMaxLength))
	}
	return nil
}

// validateLoginPassword bounds only the length fed to argon2. Short
// passwords go through verification so they fail as wrong credentials.
func (e *Engine) validateLoginPassword(password string) error {
	if limit := e.config.Validation.PasswordMaxLength; len(password) > limit {
		return invalid("password", fmt.Sprintf("Password must be at most %d characters long", limit))
	}
	return nil
}

func validateConfirmation(field, password, confirm string) error {
	if password != confirm {
		return invalid(field, "Passwords do not match")
	}
	return nil
}

func validateOTP(otp string) error {
	if !otpPattern.MatchString(otp) {
		return invalid("otp", "OTP must be 6 digits")
	}
	return nil
}

func validateResetToken(token string) error {
	if len(token) != internal.ResetTokenLength || !tokenPattern.MatchString(token) {
		return invalid("token", "Invalid reset token")
	}
	return nil
}
