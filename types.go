package authcore

import (
	"context"
	"time"

	internalaudit "github.com/MrEthical07/authcore/internal/audit"
	"github.com/MrEthical07/authcore/session"
)

// User is the persisted account row.
type User struct {
	ID            string
	Username      string
	Email         string
	PasswordHash  *string
	EmailVerified bool
	LoginAttempts int
	LockoutUntil  *time.Time
	LockoutReason *string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// EmailVerification is a pending OTP for one (email, user) pair. At most
// one is active per pair.
type EmailVerification struct {
	Email     string
	UserID    string
	OTP       string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// PasswordResetToken is a pending reset for one (email, user) pair.
type PasswordResetToken struct {
	Email     string
	UserID    string
	Token     string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// UserUpdate is a partial update. Nil pointers leave the column alone.
// When SetLockout is true LockoutUntil and LockoutReason are written as
// given, nil meaning NULL.
type UserUpdate struct {
	PasswordHash  *string
	EmailVerified *bool
	LoginAttempts *int

	SetLockout    bool
	LockoutUntil  *time.Time
	LockoutReason *string
}

// ClearLockout returns an update that resets the attempt counter and
// removes any lock.
func ClearLockout() UserUpdate {
	zero := 0
	return UserUpdate{LoginAttempts: &zero, SetLockout: true}
}

// CredentialStore persists users, OTPs and reset tokens.
//
// Username and email lookups and uniqueness are case-insensitive. Lookups
// that match nothing return ErrNotFound. CreateUser returns a
// *ConflictError when the username or email is taken; the unique index is
// the final arbiter under concurrent registration.
type CredentialStore interface {
	FindUserByEmail(ctx context.Context, email string) (*User, error)
	FindUserByUsername(ctx context.Context, username string) (*User, error)
	FindUserByID(ctx context.Context, id string) (*User, error)
	CreateUser(ctx context.Context, user *User) error
	UpdateUser(ctx context.Context, id string, update UserUpdate) error
	// IncrementLoginAttempts atomically adds one and returns the new count.
	IncrementLoginAttempts(ctx context.Context, id string) (int, error)

	// CreateEmailVerification replaces any record for (Email, UserID).
	CreateEmailVerification(ctx context.Context, v EmailVerification) error
	FindActiveEmailVerification(ctx context.Context, email, otp string, now time.Time) (*EmailVerification, error)
	// FindLatestEmailVerification returns the record for (email, userID)
	// whether or not it has expired.
	FindLatestEmailVerification(ctx context.Context, email, userID string) (*EmailVerification, error)
	// DeleteEmailVerification is idempotent.
	DeleteEmailVerification(ctx context.Context, email, userID string) error

	// CreatePasswordResetToken replaces any record for (Email, UserID).
	CreatePasswordResetToken(ctx context.Context, t PasswordResetToken) error
	FindActivePasswordResetToken(ctx context.Context, token string, now time.Time) (*PasswordResetToken, error)
	// DeletePasswordResetToken is idempotent.
	DeletePasswordResetToken(ctx context.Context, email, userID string) error
}

// PasswordHasher hashes and verifies passwords. VerifyDummy performs a
// verification of equal cost whose result is discarded.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(password, encodedHash string) (bool, error)
	VerifyDummy(password string)
}

// EmailKind selects the template an EmailSender renders.
type EmailKind string

const (
	EmailVerifyAccount EmailKind = "verify_email"
	EmailResetPassword EmailKind = "reset_password"
)

// Email is an outbound message request.
type Email struct {
	To   string
	Kind EmailKind
	Data map[string]string
}

// EmailSender delivers transactional email. Failures are logged by the
// engine and never roll back the flow that triggered them.
type EmailSender interface {
	Send(ctx context.Context, msg Email) error
}

// Cookie and CookieSink are the transport-neutral cookie types produced by
// Login, Logout and ValidateSession.
type (
	Cookie     = session.Cookie
	CookieSink = session.Sink
)

// CookieSinkFunc adapts a function to CookieSink.
type CookieSinkFunc func(Cookie)

func (f CookieSinkFunc) SetCookie(c Cookie) { f(c) }

// NextStep tells the presentation layer where the caller goes after a
// successful flow.
type NextStep string

const (
	NextNone        NextStep = ""
	NextVerifyEmail NextStep = "verify_email"
	NextLogin       NextStep = "login"
	NextHome        NextStep = "home"
)

// Outcome is the success result shared by every flow.
type Outcome struct {
	Message string
	Next    NextStep
}

// RegisterRequest is the input to Engine.Register.
type RegisterRequest struct {
	Username        string
	Email           string
	Password        string
	ConfirmPassword string
}

// RegisterResult reports the created account.
type RegisterResult struct {
	Outcome
	UserID string
}

// LoginRequest is the input to Engine.Login.
type LoginRequest struct {
	Email    string
	Password string
}

// LoginResult reports the issued session.
type LoginResult struct {
	Outcome
	UserID    string
	SessionID string
	ExpiresAt time.Time
}

// VerifyEmailRequest is the input to Engine.VerifyEmail.
type VerifyEmailRequest struct {
	Email string
	OTP   string
}

// ResetPasswordRequest is the input to Engine.ResetPassword.
type ResetPasswordRequest struct {
	Token              string
	NewPassword        string
	ConfirmNewPassword string
}

// SessionResult is returned by Engine.ValidateSession.
type SessionResult struct {
	User    *User
	Session *session.Session
}

// AuditEvent is one emitted audit record.
type AuditEvent = internalaudit.Event

// AuditSink receives audit events from the engine's dispatcher.
type AuditSink = internalaudit.Sink

// NoOpSink discards audit events.
type NoOpSink = internalaudit.NoOpSink

// ChannelSink buffers audit events in a channel.
type ChannelSink = internalaudit.ChannelSink

// JSONWriterSink writes audit events as JSON lines.
type JSONWriterSink = internalaudit.JSONWriterSink

// SlogSink logs audit events through slog.
type SlogSink = internalaudit.SlogSink

var (
	// NewChannelSink creates a ChannelSink with the given buffer.
	NewChannelSink = internalaudit.NewChannelSink
	// NewJSONWriterSink creates a JSONWriterSink.
	NewJSONWriterSink = internalaudit.NewJSONWriterSink
	// NewSlogSink creates a SlogSink.
	NewSlogSink = internalaudit.NewSlogSink
)
