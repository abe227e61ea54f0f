package authcore

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/MrEthical07/authcore/internal/limiters"
	"github.com/MrEthical07/authcore/password"
	"github.com/MrEthical07/authcore/session"
)

// Config holds every tunable of the engine. Build with DefaultConfig and
// override fields before passing it to Builder.WithConfig.
type Config struct {
	Password      PasswordConfig
	OTP           OTPConfig
	PasswordReset PasswordResetConfig
	Lockout       LockoutConfig
	RateLimits    RateLimitConfig
	Session       SessionConfig
	Validation    ValidationConfig
	Audit         AuditConfig
	Metrics       MetricsConfig
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig is the argon2id cost profile. It must stay constant across
// replicas so every hash verifies everywhere.
type PasswordConfig struct {
	Memory      uint32 // in KiB
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

/*
====================================
OTP / RESET CONFIG
====================================
*/

// OTPConfig controls email verification codes.
type OTPConfig struct {
	TTL            time.Duration
	ResendCooldown time.Duration
}

// PasswordResetConfig controls reset tokens. ResetURL is the page the
// emailed link points at; the token is appended as ?token=.
type PasswordResetConfig struct {
	TTL      time.Duration
	ResetURL string
}

/*
====================================
LOCKOUT CONFIG
====================================
*/

// LockoutConfig controls automatic account lockout.
type LockoutConfig struct {
	Threshold int
	Duration  time.Duration
	Reason    string
}

/*
====================================
RATE LIMIT CONFIG
====================================
*/

// FlowLimit bounds one flow over a sliding window. IdentifierLimit applies
// to the normalized email (or reset token), IPLimit to the client IP.
// A zero limit disables that key.
type FlowLimit struct {
	IdentifierLimit int
	IPLimit         int
	Window          time.Duration
}

// RateLimitConfig holds one FlowLimit per throttled flow.
type RateLimitConfig struct {
	RedisPrefix    string
	Register       FlowLimit
	Login          FlowLimit
	VerifyEmail    FlowLimit
	ResendOTP      FlowLimit
	ForgotPassword FlowLimit
	ResetPassword  FlowLimit
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig controls session lifetime and cookie shape.
type SessionConfig struct {
	RedisPrefix string
	Lifetime    time.Duration
	CookieName  string
	Secure      bool
	SameSite    session.SameSite
	Path        string
	Domain      string
	// PersistentCookie sets Max-Age on the cookie; otherwise it is a
	// browser-session cookie.
	PersistentCookie bool
}

/*
====================================
VALIDATION / AUDIT / METRICS
====================================
*/

// ValidationConfig bounds user input.
type ValidationConfig struct {
	UsernameMinLength int
	UsernameMaxLength int
	PasswordMinLength int
	PasswordMaxLength int
}

// AuditConfig controls the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig toggles in-process counters and latency histograms.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	pw := password.DefaultConfig()
	return Config{
		Password: PasswordConfig{
			Memory:      pw.Memory,
			Time:        pw.Time,
			Parallelism: pw.Parallelism,
			SaltLength:  pw.SaltLength,
			KeyLength:   pw.KeyLength,
		},
		OTP: OTPConfig{
			TTL:            10 * time.Minute,
			ResendCooldown: time.Minute,
		},
		PasswordReset: PasswordResetConfig{
			TTL:      10 * time.Minute,
			ResetURL: "http://localhost:3000/reset-password",
		},
		Lockout: LockoutConfig{
			Threshold: 5,
			Duration:  15 * time.Minute,
			Reason:    "Too many failed login attempts",
		},
		RateLimits: RateLimitConfig{
			RedisPrefix:    "ac:",
			Register:       FlowLimit{IdentifierLimit: 5, IPLimit: 20, Window: 30 * time.Minute},
			Login:          FlowLimit{IdentifierLimit: 10, IPLimit: 50, Window: 10 * time.Minute},
			VerifyEmail:    FlowLimit{IdentifierLimit: 5, IPLimit: 20, Window: time.Minute},
			ResendOTP:      FlowLimit{IdentifierLimit: 3, IPLimit: 10, Window: 10 * time.Minute},
			ForgotPassword: FlowLimit{IdentifierLimit: 3, IPLimit: 10, Window: 15 * time.Minute},
			ResetPassword:  FlowLimit{IdentifierLimit: 5, IPLimit: 10, Window: 15 * time.Minute},
		},
		Session: SessionConfig{
			RedisPrefix: "ac:",
			Lifetime:    30 * 24 * time.Hour,
			CookieName:  "auth_session",
			Secure:      true,
			SameSite:    session.SameSiteLax,
			Path:        "/",
		},
		Validation: ValidationConfig{
			UsernameMinLength: 3,
			UsernameMaxLength: 32,
			PasswordMinLength: password.MinPasswordBytes,
			PasswordMaxLength: 256,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 true,
			EnableLatencyHistograms: false,
		},
	}
}

// Validate rejects configurations the engine cannot run safely with.
func (c *Config) Validate() error {
	// Password
	if _, err := password.NewArgon2(c.passwordConfig()); err != nil {
		return fmt.Errorf("Password: %w", err)
	}

	// OTP / reset
	if c.OTP.TTL <= 0 {
		return errors.New("OTP TTL must be > 0")
	}
	if c.OTP.ResendCooldown < 0 {
		return errors.New("OTP ResendCooldown must be >= 0")
	}
	if c.OTP.ResendCooldown >= c.OTP.TTL {
		return errors.New("OTP ResendCooldown must be shorter than TTL")
	}
	if c.PasswordReset.TTL <= 0 {
		return errors.New("PasswordReset TTL must be > 0")
	}
	if c.PasswordReset.ResetURL == "" {
		return errors.New("PasswordReset ResetURL is required")
	}
	if u, err := url.Parse(c.PasswordReset.ResetURL); err != nil || u.Scheme == "" || u.Host == "" {
		return errors.New("PasswordReset ResetURL must be an absolute URL")
	}

	// Lockout
	if c.Lockout.Threshold <= 0 {
		return errors.New("Lockout Threshold must be > 0")
	}
	if c.Lockout.Duration <= 0 {
		return errors.New("Lockout Duration must be > 0")
	}

	// Rate limits
	for name, fl := range c.flowLimits() {
		if fl.Window <= 0 {
			return fmt.Errorf("RateLimits %s Window must be > 0", name)
		}
		if fl.IdentifierLimit < 0 || fl.IPLimit < 0 {
			return fmt.Errorf("RateLimits %s limits must be >= 0", name)
		}
		if fl.IdentifierLimit == 0 && fl.IPLimit == 0 {
			return fmt.Errorf("RateLimits %s must bound at least one key", name)
		}
	}
	if c.RateLimits.Login.IdentifierLimit > 0 && c.RateLimits.Login.IdentifierLimit <= c.Lockout.Threshold {
		return errors.New("RateLimits Login IdentifierLimit must exceed Lockout Threshold")
	}

	// Session
	if c.Session.Lifetime < time.Minute {
		return errors.New("Session Lifetime must be >= 1m")
	}
	if c.Session.CookieName == "" {
		return errors.New("Session CookieName is required")
	}
	switch c.Session.SameSite {
	case session.SameSiteLax, session.SameSiteStrict, session.SameSiteNone:
	default:
		return fmt.Errorf("Session SameSite %q is not lax, strict or none", c.Session.SameSite)
	}

	// Validation
	v := c.Validation
	if v.UsernameMinLength < 1 || v.UsernameMaxLength < v.UsernameMinLength {
		return errors.New("Validation username bounds are invalid")
	}
	if v.PasswordMinLength < password.MinPasswordBytes || v.PasswordMaxLength < v.PasswordMinLength {
		return errors.New("Validation password bounds are invalid")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when enabled")
	}

	return nil
}

func (c *Config) passwordConfig() password.Config {
	return password.Config{
		Memory:      c.Password.Memory,
		Time:        c.Password.Time,
		Parallelism: c.Password.Parallelism,
		SaltLength:  c.Password.SaltLength,
		KeyLength:   c.Password.KeyLength,
	}
}

func (c *Config) flowLimits() map[string]FlowLimit {
	return map[string]FlowLimit{
		"Register":       c.RateLimits.Register,
		"Login":          c.RateLimits.Login,
		"VerifyEmail":    c.RateLimits.VerifyEmail,
		"ResendOTP":      c.RateLimits.ResendOTP,
		"ForgotPassword": c.RateLimits.ForgotPassword,
		"ResetPassword":  c.RateLimits.ResetPassword,
	}
}

func (c *Config) flowPolicies() map[limiters.Flow]limiters.Policy {
	conv := func(fl FlowLimit) limiters.Policy {
		return limiters.Policy{IdentifierLimit: fl.IdentifierLimit, IPLimit: fl.IPLimit, Window: fl.Window}
	}
	return map[limiters.Flow]limiters.Policy{
		limiters.FlowRegister:       conv(c.RateLimits.Register),
		limiters.FlowLogin:          conv(c.RateLimits.Login),
		limiters.FlowVerifyEmail:    conv(c.RateLimits.VerifyEmail),
		limiters.FlowResendOTP:      conv(c.RateLimits.ResendOTP),
		limiters.FlowForgotPassword: conv(c.RateLimits.ForgotPassword),
		limiters.FlowResetPassword:  conv(c.RateLimits.ResetPassword),
	}
}
