package authcore

import (
	"testing"
	"time"

	"github.com/MrEthical07/authcore/session"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantValid bool
	}{
		{
			name:      "argon2 memory too low",
			mutate:    func(c *Config) { c.Password.Memory = 1 },
			wantValid: false,
		},
		{
			name:      "otp ttl zero",
			mutate:    func(c *Config) { c.OTP.TTL = 0 },
			wantValid: false,
		},
		{
			name:      "cooldown not shorter than ttl",
			mutate:    func(c *Config) { c.OTP.ResendCooldown = c.OTP.TTL },
			wantValid: false,
		},
		{
			name:      "relative reset url",
			mutate:    func(c *Config) { c.PasswordReset.ResetURL = "/reset-password" },
			wantValid: false,
		},
		{
			name:      "reset url with query",
			mutate:    func(c *Config) { c.PasswordReset.ResetURL = "https://app.example.com/reset?lang=en" },
			wantValid: true,
		},
		{
			name:      "lockout threshold zero",
			mutate:    func(c *Config) { c.Lockout.Threshold = 0 },
			wantValid: false,
		},
		{
			name:      "login identifier limit must exceed lockout threshold",
			mutate:    func(c *Config) { c.RateLimits.Login.IdentifierLimit = c.Lockout.Threshold },
			wantValid: false,
		},
		{
			name:      "window zero",
			mutate:    func(c *Config) { c.RateLimits.VerifyEmail.Window = 0 },
			wantValid: false,
		},
		{
			name: "flow with no keys",
			mutate: func(c *Config) {
				c.RateLimits.ResendOTP.IdentifierLimit = 0
				c.RateLimits.ResendOTP.IPLimit = 0
			},
			wantValid: false,
		},
		{
			name:      "ip only flow",
			mutate:    func(c *Config) { c.RateLimits.ResetPassword.IdentifierLimit = 0 },
			wantValid: true,
		},
		{
			name:      "session lifetime too short",
			mutate:    func(c *Config) { c.Session.Lifetime = 30 * time.Second },
			wantValid: false,
		},
		{
			name:      "unknown samesite",
			mutate:    func(c *Config) { c.Session.SameSite = "sometimes" },
			wantValid: false,
		},
		{
			name:      "samesite none",
			mutate:    func(c *Config) { c.Session.SameSite = session.SameSiteNone },
			wantValid: true,
		},
		{
			name:      "password min below floor",
			mutate:    func(c *Config) { c.Validation.PasswordMinLength = 4 },
			wantValid: false,
		},
		{
			name: "audit enabled without buffer",
			mutate: func(c *Config) {
				c.Audit.Enabled = true
				c.Audit.BufferSize = 0
			},
			wantValid: false,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Password.Memory = 8 * 1024
			cfg.Password.Time = 1
			tc.mutate(&cfg)
			err := cfg.Validate()
			if tc.wantValid && err != nil {
				t.Fatalf("expected valid, got %v", err)
			}
			if !tc.wantValid && err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestFlowPoliciesCoverEveryFlow(t *testing.T) {
	cfg := DefaultConfig()
	policies := cfg.flowPolicies()
	if len(policies) != 6 {
		t.Fatalf("expected 6 flow policies, got %d", len(policies))
	}
	for flow, p := range policies {
		if p.Window <= 0 {
			t.Fatalf("flow %s has no window", flow)
		}
	}
}
