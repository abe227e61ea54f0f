package security

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func strongInput() ReportInput {
	return ReportInput{
		Password:         PasswordReport{Memory: 19 * 1024, Time: 2, Parallelism: 1, SaltLength: 16, KeyLength: 32},
		LockoutThreshold: 5,
		LockoutDuration:  15 * time.Minute,
		Flows: map[string]FlowLimit{
			"Login":    {IdentifierLimit: 10, IPLimit: 50, Window: 10 * time.Minute},
			"Register": {IdentifierLimit: 5, IPLimit: 20, Window: 30 * time.Minute},
		},
		SessionLifetime: 30 * 24 * time.Hour,
		CookieSecure:    true,
		CookieSameSite:  "lax",
		OTPTTL:          10 * time.Minute,
		ResetTokenTTL:   10 * time.Minute,
	}
}

func TestBuildReport_StrongConfigHasNoWarnings(t *testing.T) {
	r := BuildReport(strongInput())
	require.True(t, r.Argon2Recommended)
	require.Equal(t, []string{"Login", "Register"}, r.RateLimitedFlows)
	require.Empty(t, r.UnthrottledFlows)
	require.Empty(t, r.Warnings)
}

func TestBuildReport_FlagsWeakSettings(t *testing.T) {
	in := strongInput()
	in.Password.Memory = 8 * 1024
	in.CookieSecure = false
	in.CookieSameSite = "none"
	in.Flows["Login"] = FlowLimit{}
	in.ResetTokenTTL = 2 * time.Hour
	in.AuditEnabled = true
	in.AuditDropIfFull = true

	r := BuildReport(in)
	require.False(t, r.Argon2Recommended)
	require.Equal(t, []string{"Login"}, r.UnthrottledFlows)
	require.True(t, r.AuditDropsWhenFull)
	require.Len(t, r.Warnings, 5)
	require.Contains(t, r.Warnings, "Login is not rate limited")
	require.Contains(t, r.Warnings, "session cookie is not Secure")
}
