package internaldefs

import (
	"github.com/MrEthical07/authcore"
)

// CounterDef names one engine counter for exporters.
type CounterDef struct {
	ID   authcore.MetricID
	Name string
	Help string
}

// HistogramDef names one latency histogram for exporters.
type HistogramDef struct {
	ID   authcore.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter in a stable order.
var CounterDefs = []CounterDef{
	{ID: authcore.MetricRegisterSuccess, Name: "authcore_register_success_total", Help: "Accounts created."},
	{ID: authcore.MetricRegisterConflict, Name: "authcore_register_conflict_total", Help: "Registrations rejected for a taken username or email."},
	{ID: authcore.MetricLoginSuccess, Name: "authcore_login_success_total", Help: "Successful logins."},
	{ID: authcore.MetricLoginFailure, Name: "authcore_login_failure_total", Help: "Logins rejected with invalid credentials."},
	{ID: authcore.MetricLoginLocked, Name: "authcore_login_locked_total", Help: "Logins rejected because the account is locked."},
	{ID: authcore.MetricLoginUnverified, Name: "authcore_login_unverified_total", Help: "Logins rejected because the email is unverified."},
	{ID: authcore.MetricAccountLocked, Name: "authcore_account_locked_total", Help: "Accounts locked after repeated failures."},
	{ID: authcore.MetricEmailVerificationSuccess, Name: "authcore_email_verification_success_total", Help: "Successful email verifications."},
	{ID: authcore.MetricEmailVerificationFailure, Name: "authcore_email_verification_failure_total", Help: "Failed email verifications."},
	{ID: authcore.MetricOTPResent, Name: "authcore_otp_resent_total", Help: "Verification codes re-sent."},
	{ID: authcore.MetricOTPResendCooldown, Name: "authcore_otp_resend_cooldown_total", Help: "Resend requests rejected by the cooldown."},
	{ID: authcore.MetricPasswordResetRequest, Name: "authcore_password_reset_request_total", Help: "Password reset requests."},
	{ID: authcore.MetricPasswordResetSuccess, Name: "authcore_password_reset_success_total", Help: "Completed password resets."},
	{ID: authcore.MetricPasswordResetFailure, Name: "authcore_password_reset_failure_total", Help: "Password resets with an invalid or expired token."},
	{ID: authcore.MetricRateLimitHit, Name: "authcore_rate_limit_hit_total", Help: "Requests denied by a rate limit."},
	{ID: authcore.MetricRateLimiterUnavailable, Name: "authcore_rate_limiter_unavailable_total", Help: "Requests denied because the limiter store failed."},
	{ID: authcore.MetricSessionCreated, Name: "authcore_session_created_total", Help: "Sessions created."},
	{ID: authcore.MetricSessionRenewed, Name: "authcore_session_renewed_total", Help: "Sessions renewed during validation."},
	{ID: authcore.MetricSessionInvalidated, Name: "authcore_session_invalidated_total", Help: "Session lookups that found no valid session."},
	{ID: authcore.MetricLogout, Name: "authcore_logout_total", Help: "Sessions ended by logout."},
	{ID: authcore.MetricEmailSendFailure, Name: "authcore_email_send_failure_total", Help: "Emails the sender failed to accept."},
	{ID: authcore.MetricInternalError, Name: "authcore_internal_error_total", Help: "Flows that failed with an internal error."},
	{ID: authcore.MetricAuditDropped, Name: "authcore_audit_dropped_total", Help: "Audit events dropped under backpressure."},
}

// HistogramDefs lists every exported latency histogram.
var HistogramDefs = []HistogramDef{
	{ID: authcore.MetricRegisterLatency, Name: "authcore_register_latency_seconds", Help: "Register latency."},
	{ID: authcore.MetricLoginLatency, Name: "authcore_login_latency_seconds", Help: "Login latency."},
	{ID: authcore.MetricValidateLatency, Name: "authcore_validate_latency_seconds", Help: "Session validation latency."},
}

// HistogramBoundSuffix names each bucket for exporters without native
// histogram labels. The last bucket is +Inf.
var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// UpperBounds returns the finite bucket bounds in seconds, omitting the
// trailing +Inf bucket.
func UpperBounds() []float64 {
	b := authcore.HistogramBounds
	return append([]float64(nil), b[:len(b)-1]...)
}

// CumulativeBuckets converts per-bucket counts to running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
