package security

import (
	"fmt"
	"sort"
	"time"
)

// Recommended argon2id floor (19 MiB, two passes, one lane).
const (
	MinRecommendedMemory = 19 * 1024
	MinRecommendedTime   = 2
)

type PasswordReport struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// FlowLimit mirrors one throttled flow's limits.
type FlowLimit struct {
	IdentifierLimit int
	IPLimit         int
	Window          time.Duration
}

type Report struct {
	Argon2             PasswordReport
	Argon2Recommended  bool
	LockoutThreshold   int
	LockoutDuration    time.Duration
	RateLimitedFlows   []string
	UnthrottledFlows   []string
	SessionLifetime    time.Duration
	CookieSecure       bool
	CookieSameSite     string
	PersistentCookie   bool
	OTPTTL             time.Duration
	ResetTokenTTL      time.Duration
	AuditEnabled       bool
	AuditDropsWhenFull bool
	LatencyHistograms  bool
	Warnings           []string
}

type ReportInput struct {
	Password         PasswordReport
	LockoutThreshold int
	LockoutDuration  time.Duration
	Flows            map[string]FlowLimit
	SessionLifetime  time.Duration
	CookieSecure     bool
	CookieSameSite   string
	PersistentCookie bool
	OTPTTL           time.Duration
	ResetTokenTTL    time.Duration
	AuditEnabled     bool
	AuditDropIfFull  bool
	Histograms       bool
}

func BuildReport(input ReportInput) Report {
	r := Report{
		Argon2:             input.Password,
		Argon2Recommended:  input.Password.Memory >= MinRecommendedMemory && input.Password.Time >= MinRecommendedTime,
		LockoutThreshold:   input.LockoutThreshold,
		LockoutDuration:    input.LockoutDuration,
		SessionLifetime:    input.SessionLifetime,
		CookieSecure:       input.CookieSecure,
		CookieSameSite:     input.CookieSameSite,
		PersistentCookie:   input.PersistentCookie,
		OTPTTL:             input.OTPTTL,
		ResetTokenTTL:      input.ResetTokenTTL,
		AuditEnabled:       input.AuditEnabled,
		AuditDropsWhenFull: input.AuditEnabled && input.AuditDropIfFull,
		LatencyHistograms:  input.Histograms,
	}

	names := make([]string, 0, len(input.Flows))
	for name := range input.Flows {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fl := input.Flows[name]
		if fl.Window > 0 && (fl.IdentifierLimit > 0 || fl.IPLimit > 0) {
			r.RateLimitedFlows = append(r.RateLimitedFlows, name)
		} else {
			r.UnthrottledFlows = append(r.UnthrottledFlows, name)
		}
	}

	if !r.Argon2Recommended {
		r.Warnings = append(r.Warnings, fmt.Sprintf(
			"argon2id cost below recommended floor (memory=%dKiB time=%d)", input.Password.Memory, input.Password.Time))
	}
	if !input.CookieSecure {
		r.Warnings = append(r.Warnings, "session cookie is not Secure")
	}
	if input.CookieSameSite == "none" && !input.CookieSecure {
		r.Warnings = append(r.Warnings, "SameSite=None without Secure is rejected by browsers")
	}
	for _, name := range r.UnthrottledFlows {
		r.Warnings = append(r.Warnings, name+" is not rate limited")
	}
	if input.ResetTokenTTL > time.Hour {
		r.Warnings = append(r.Warnings, "password reset tokens live longer than one hour")
	}
	return r
}
