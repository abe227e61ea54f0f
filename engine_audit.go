package authcore

import (
	"context"
	"errors"
	"log/slog"
	"time"

	internalaudit "github.com/MrEthical07/authcore/internal/audit"
	"github.com/MrEthical07/authcore/internal/limiters"
)

const (
	auditEventRegisterSuccess         = "register_success"
	auditEventRegisterFailure         = "register_failure"
	auditEventRegisterDuplicate       = "register_duplicate"
	auditEventLoginSuccess            = "login_success"
	auditEventLoginFailure            = "login_failure"
	auditEventLoginLocked             = "login_locked"
	auditEventLoginUnverified         = "login_unverified"
	auditEventAccountLocked           = "account_locked"
	auditEventEmailVerificationOK     = "email_verification_confirm"
	auditEventEmailVerificationFailed = "email_verification_failure"
	auditEventOTPResent               = "otp_resent"
	auditEventOTPResendSkipped        = "otp_resend_skipped"
	auditEventOTPResendCooldown       = "otp_resend_cooldown"
	auditEventPasswordResetRequest    = "password_reset_request"
	auditEventPasswordResetConfirm    = "password_reset_confirm"
	auditEventPasswordResetInvalid    = "password_reset_invalid"
	auditEventSessionInvalid          = "session_invalid"
	auditEventLogoutSession           = "logout_session"
	auditEventRateLimitTriggered      = "rate_limit_triggered"
	auditEventEmailSendFailure        = "email_send_failure"
)

const auditFlushTimeout = 5 * time.Second

// criticalAuditEvent marks events that are never dropped when the audit
// buffer is full.
func criticalAuditEvent(ev internalaudit.Event) bool {
	switch ev.EventType {
	case auditEventAccountLocked, auditEventPasswordResetConfirm:
		return true
	}
	return false
}

// AuditErrorCode is the stable, non-sensitive error label written to audit
// events.
type AuditErrorCode string

const (
	auditErrValidation         AuditErrorCode = "validation"
	auditErrDuplicate          AuditErrorCode = "duplicate"
	auditErrInvalidCredentials AuditErrorCode = "invalid_credentials"
	auditErrAccountLocked      AuditErrorCode = "account_locked"
	auditErrAccountUnverified  AuditErrorCode = "account_unverified"
	auditErrInvalidOTP         AuditErrorCode = "invalid_otp"
	auditErrInvalidToken       AuditErrorCode = "invalid_token"
	auditErrRateLimited        AuditErrorCode = "rate_limited"
	auditErrCooldown           AuditErrorCode = "cooldown"
	auditErrSessionNotFound    AuditErrorCode = "session_not_found"
	auditErrUnauthorized       AuditErrorCode = "unauthorized"
	auditErrInternal           AuditErrorCode = "internal_error"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	userID string,
	sessionID string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	event := internalaudit.NewEvent(eventType, success)
	event.Timestamp = e.now().UTC()
	event.UserID = userID
	event.SessionID = sessionID
	event.IP = clientIPFromContext(ctx)
	if metadataBuilder != nil {
		event.Metadata = metadataBuilder()
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func (e *Engine) emitRateLimit(ctx context.Context, flow limiters.Flow, verdict limiters.Verdict) {
	e.metricInc(MetricRateLimitHit)
	e.logger.LogAttrs(ctx, slog.LevelWarn, "rate limit exceeded",
		slog.String("flow", string(flow)),
		slog.String("scope", string(verdict.Scope)),
		slog.String("ip", clientIPFromContext(ctx)),
		slog.Duration("retry_after", verdict.RetryAfter),
	)
	e.emitAudit(ctx, auditEventRateLimitTriggered, false, "", "", ErrRateLimited, func() map[string]string {
		return map[string]string{
			"flow":  string(flow),
			"scope": string(verdict.Scope),
		}
	})
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrInternal):
		return auditErrInternal
	case errors.Is(err, ErrValidation):
		return auditErrValidation
	case errors.Is(err, ErrConflict):
		return auditErrDuplicate
	case errors.Is(err, ErrInvalidCredentials):
		return auditErrInvalidCredentials
	case errors.Is(err, ErrAccountLocked):
		return auditErrAccountLocked
	case errors.Is(err, ErrEmailNotVerified):
		return auditErrAccountUnverified
	case errors.Is(err, ErrInvalidOrExpired):
		return auditErrInvalidOTP
	case errors.Is(err, ErrInvalidOrExpiredToken):
		return auditErrInvalidToken
	case errors.Is(err, ErrRateLimited):
		return auditErrRateLimited
	case errors.Is(err, ErrResendCooldown):
		return auditErrCooldown
	case errors.Is(err, ErrSessionNotFound):
		return auditErrSessionNotFound
	case errors.Is(err, ErrUnauthorized):
		return auditErrUnauthorized
	default:
		return auditErrInternal
	}
}
