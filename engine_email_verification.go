package authcore

import (
	"context"
	"log/slog"

	"github.com/MrEthical07/authcore/internal/limiters"
)

// resendOTPMessage is returned for every accepted ResendOTP call so the
// response never reveals whether the account exists.
const resendOTPMessage = "If you have an account with us, you will receive an OTP."

// VerifyEmail consumes a verification OTP and marks the account verified.
// No session is created.
//
// An unknown email, a wrong code and an expired code all return
// ErrInvalidOrExpired.
func (e *Engine) VerifyEmail(ctx context.Context, req VerifyEmailRequest) (*Outcome, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	email := NormalizeEmail(req.Email)
	if err := firstError(validateEmail(email), validateOTP(req.OTP)); err != nil {
		return nil, err
	}

	if err := e.enforce(ctx, limiters.FlowVerifyEmail, email); err != nil {
		return nil, err
	}

	user, err := e.lookupUser(ctx, "verify email: find user", func() (*User, error) {
		return e.store.FindUserByEmail(ctx, email)
	})
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, e.verifyEmailFailed(ctx, "", "unknown_account")
	}

	record, err := e.store.FindActiveEmailVerification(ctx, email, req.OTP, e.now())
	if err != nil {
		if isNotFound(err) {
			return nil, e.verifyEmailFailed(ctx, user.ID, "no_match")
		}
		return nil, e.fail(ctx, "verify email: find otp", err)
	}
	if record.UserID != user.ID {
		return nil, e.verifyEmailFailed(ctx, user.ID, "owner_mismatch")
	}

	verified := true
	if err := e.store.UpdateUser(ctx, user.ID, UserUpdate{EmailVerified: &verified}); err != nil {
		return nil, e.fail(ctx, "verify email: mark verified", err)
	}
	if err := e.store.DeleteEmailVerification(ctx, email, user.ID); err != nil {
		return nil, e.fail(ctx, "verify email: delete otp", err)
	}

	e.metricInc(MetricEmailVerificationSuccess)
	e.emitAudit(ctx, auditEventEmailVerificationOK, true, user.ID, "", nil, nil)

	return &Outcome{Message: "Email verified. You can now log in.", Next: NextLogin}, nil
}

func (e *Engine) verifyEmailFailed(ctx context.Context, userID, reason string) error {
	e.metricInc(MetricEmailVerificationFailure)
	e.emitAudit(ctx, auditEventEmailVerificationFailed, false, userID, "", ErrInvalidOrExpired, func() map[string]string {
		return map[string]string{"reason": reason}
	})
	return ErrInvalidOrExpired
}

// ResendOTP replaces the pending verification OTP and emails it.
//
// Unknown and already verified accounts get the same generic outcome as
// the success path. A request within the resend cooldown of the previous
// OTP returns *CooldownError.
func (e *Engine) ResendOTP(ctx context.Context, email string) (*Outcome, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	email = NormalizeEmail(email)
	if err := validateEmail(email); err != nil {
		return nil, err
	}

	if err := e.enforce(ctx, limiters.FlowResendOTP, email); err != nil {
		return nil, err
	}

	generic := &Outcome{Message: resendOTPMessage, Next: NextVerifyEmail}

	user, err := e.lookupUser(ctx, "resend otp: find user", func() (*User, error) {
		return e.store.FindUserByEmail(ctx, email)
	})
	if err != nil {
		return nil, err
	}
	if user == nil {
		e.resendSkipped(ctx, "", "unknown_account")
		return generic, nil
	}
	if user.EmailVerified {
		e.resendSkipped(ctx, user.ID, "already_verified")
		return generic, nil
	}

	latest, err := e.store.FindLatestEmailVerification(ctx, email, user.ID)
	if err != nil && !isNotFound(err) {
		return nil, e.fail(ctx, "resend otp: find latest", err)
	}
	if latest != nil {
		now := e.now()
		if latest.ExpiresAt.After(now) {
			if wait := latest.CreatedAt.Add(e.config.OTP.ResendCooldown).Sub(now); wait > 0 {
				e.metricInc(MetricOTPResendCooldown)
				e.emitAudit(ctx, auditEventOTPResendCooldown, false, user.ID, "", ErrResendCooldown, nil)
				return nil, &CooldownError{RetryAfter: wait}
			}
		}
	}

	if err := e.issueVerificationOTP(ctx, user); err != nil {
		return nil, err
	}

	e.metricInc(MetricOTPResent)
	e.emitAudit(ctx, auditEventOTPResent, true, user.ID, "", nil, nil)

	return generic, nil
}

func (e *Engine) resendSkipped(ctx context.Context, userID, reason string) {
	e.logger.LogAttrs(ctx, slog.LevelInfo, "otp resend skipped",
		slog.String("reason", reason),
		slog.String("user_id", userID),
	)
	e.emitAudit(ctx, auditEventOTPResendSkipped, true, userID, "", nil, func() map[string]string {
		return map[string]string{"reason": reason}
	})
}
