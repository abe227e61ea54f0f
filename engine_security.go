package authcore

import "github.com/MrEthical07/authcore/internal/security"

// SecurityReport summarizes the active configuration.
type SecurityReport = security.Report

// SecurityReport returns a posture summary of the engine configuration with
// warnings for settings weaker than recommended.
func (e *Engine) SecurityReport() SecurityReport {
	cfg := e.config
	flows := make(map[string]security.FlowLimit)
	for name, fl := range cfg.flowLimits() {
		flows[name] = security.FlowLimit(fl)
	}
	return security.BuildReport(security.ReportInput{
		Password:         security.PasswordReport(cfg.Password),
		LockoutThreshold: cfg.Lockout.Threshold,
		LockoutDuration:  cfg.Lockout.Duration,
		Flows:            flows,
		SessionLifetime:  cfg.Session.Lifetime,
		CookieSecure:     cfg.Session.Secure,
		CookieSameSite:   string(cfg.Session.SameSite),
		PersistentCookie: cfg.Session.PersistentCookie,
		OTPTTL:           cfg.OTP.TTL,
		ResetTokenTTL:    cfg.PasswordReset.TTL,
		AuditEnabled:     cfg.Audit.Enabled,
		AuditDropIfFull:  cfg.Audit.DropIfFull,
		Histograms:       cfg.Metrics.EnableLatencyHistograms,
	})
}
