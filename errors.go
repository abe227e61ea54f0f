package authcore

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrValidation marks malformed input. Concrete errors are *ValidationError.
	ErrValidation = errors.New("validation failed")
	// ErrConflict marks a duplicate username or email. Concrete errors are *ConflictError.
	ErrConflict = errors.New("already taken")
	// ErrInvalidCredentials is the single login failure for unknown email and wrong password.
	ErrInvalidCredentials = errors.New("invalid email or password")
	// ErrAccountLocked marks a login against a locked account. Concrete errors are *LockedError.
	ErrAccountLocked = errors.New("account locked")
	// ErrEmailNotVerified is returned by Login when the password is right but the email is unverified.
	ErrEmailNotVerified = errors.New("email not verified")
	// ErrInvalidOrExpired merges unknown email, wrong code and expired code in VerifyEmail.
	ErrInvalidOrExpired = errors.New("invalid or expired otp")
	// ErrInvalidOrExpiredToken merges unknown and expired reset tokens.
	ErrInvalidOrExpiredToken = errors.New("invalid or expired reset token")
	// ErrRateLimited marks a denied rate-limit check. Concrete errors are *RateLimitError.
	ErrRateLimited = errors.New("rate limited")
	// ErrResendCooldown marks a ResendOTP call within the cooldown. Concrete errors are *CooldownError.
	ErrResendCooldown = errors.New("otp resend cooldown")
	// ErrInternal wraps every unexpected collaborator failure.
	ErrInternal = errors.New("internal error")
	// ErrSessionNotFound is returned for unknown, expired or malformed session ids.
	ErrSessionNotFound = errors.New("session not found")
	// ErrUnauthorized is returned by Logout when there is no session to end.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrEngineNotReady is returned when a nil or partially built Engine is used.
	ErrEngineNotReady = errors.New("engine not initialized")

	// ErrNotFound is returned by CredentialStore lookups that match nothing.
	ErrNotFound = errors.New("not found")
)

// ValidationError reports the first malformed field of a request.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// ConflictError reports which unique field collided.
type ConflictError struct {
	Field string
}

func (e *ConflictError) Error() string {
	return e.Field + " already taken"
}

func (e *ConflictError) Unwrap() error { return ErrConflict }

// LockedError carries the time left on an account lock.
type LockedError struct {
	Until     time.Time
	Remaining time.Duration
}

func (e *LockedError) Error() string {
	return fmt.Sprintf("account locked for %s", e.Remaining.Round(time.Second))
}

func (e *LockedError) Unwrap() error { return ErrAccountLocked }

// RateLimitError carries a retry-after hint.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited, retry after %s", e.RetryAfter.Round(time.Second))
}

func (e *RateLimitError) Unwrap() error { return ErrRateLimited }

// CooldownError carries the time until another OTP may be requested.
type CooldownError struct {
	RetryAfter time.Duration
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("otp resend available in %s", e.RetryAfter.Round(time.Second))
}

func (e *CooldownError) Unwrap() error { return ErrResendCooldown }

// InternalError hides a collaborator failure behind ErrInternal while
// keeping the cause for server-side logs.
type InternalError struct {
	Op  string
	Err error
}

func (e *InternalError) Error() string {
	if e.Err == nil {
		return "internal error: " + e.Op
	}
	return "internal error: " + e.Op + ": " + e.Err.Error()
}

func (e *InternalError) Unwrap() []error { return []error{ErrInternal, e.Err} }

func internalError(op string, err error) error {
	return &InternalError{Op: op, Err: err}
}

// RetryAfter extracts a retry hint from rate-limit, cooldown and lock errors.
func RetryAfter(err error) (time.Duration, bool) {
	var rl *RateLimitError
	if errors.As(err, &rl) {
		return rl.RetryAfter, true
	}
	var cd *CooldownError
	if errors.As(err, &cd) {
		return cd.RetryAfter, true
	}
	var le *LockedError
	if errors.As(err, &le) {
		return le.Remaining, true
	}
	return 0, false
}

const genericFailure = "Something went wrong. Please try again."

// PublicMessage maps err to text that is safe to show an end user. Unknown
// and internal errors collapse to a generic message.
func PublicMessage(err error) string {
	if err == nil {
		return ""
	}

	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Message
	}
	var ce *ConflictError
	if errors.As(err, &ce) {
		switch ce.Field {
		case "username":
			return "Username already taken"
		case "email":
			return "Email already taken"
		}
		return "Account already exists"
	}

	switch {
	case errors.Is(err, ErrInternal):
		return genericFailure
	case errors.Is(err, ErrInvalidCredentials):
		return "Invalid email or password"
	case errors.Is(err, ErrAccountLocked):
		if d, ok := RetryAfter(err); ok {
			return fmt.Sprintf("Account locked. Try again in %s.", humanDuration(d))
		}
		return "Account locked. Try again later."
	case errors.Is(err, ErrEmailNotVerified):
		return "Please verify your email before logging in"
	case errors.Is(err, ErrInvalidOrExpired):
		return "Invalid OTP or expired OTP"
	case errors.Is(err, ErrInvalidOrExpiredToken):
		return "Invalid or expired reset token"
	case errors.Is(err, ErrRateLimited):
		return "Too many requests. Please try again later."
	case errors.Is(err, ErrResendCooldown):
		return "You can only request a new OTP once every minute."
	case errors.Is(err, ErrSessionNotFound), errors.Is(err, ErrUnauthorized):
		return "Unauthorized"
	default:
		return genericFailure
	}
}

func humanDuration(d time.Duration) string {
	if d < time.Minute {
		s := int(d.Round(time.Second) / time.Second)
		if s < 1 {
			s = 1
		}
		return fmt.Sprintf("%d seconds", s)
	}
	m := int((d + time.Minute - 1) / time.Minute)
	if m == 1 {
		return "1 minute"
	}
	return fmt.Sprintf("%d minutes", m)
}

func isNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
