package authcore

import (
	"context"
	"net/url"
	"strconv"

	"github.com/MrEthical07/authcore/internal"
	"github.com/MrEthical07/authcore/internal/limiters"
)

const forgotPasswordMessage = "If you have an account with us, you will receive a password reset email."

// ForgotPassword emails a password reset link when the account exists. The
// outcome is identical whether or not it does.
func (e *Engine) ForgotPassword(ctx context.Context, email string) (*Outcome, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	email = NormalizeEmail(email)
	if err := validateEmail(email); err != nil {
		return nil, err
	}

	if err := e.enforce(ctx, limiters.FlowForgotPassword, email); err != nil {
		return nil, err
	}

	e.metricInc(MetricPasswordResetRequest)
	generic := &Outcome{Message: forgotPasswordMessage, Next: NextNone}

	user, err := e.lookupUser(ctx, "forgot password: find user", func() (*User, error) {
		return e.store.FindUserByEmail(ctx, email)
	})
	if err != nil {
		return nil, err
	}
	if user == nil {
		e.emitAudit(ctx, auditEventPasswordResetRequest, true, "", "", nil, func() map[string]string {
			return map[string]string{"account": "unknown"}
		})
		return generic, nil
	}

	token, err := internal.NewResetToken()
	if err != nil {
		return nil, e.fail(ctx, "forgot password: generate token", err)
	}

	now := e.now()
	record := PasswordResetToken{
		Email:     user.Email,
		UserID:    user.ID,
		Token:     token,
		ExpiresAt: now.Add(e.config.PasswordReset.TTL),
		CreatedAt: now,
	}
	if err := e.store.CreatePasswordResetToken(ctx, record); err != nil {
		return nil, e.fail(ctx, "forgot password: store token", err)
	}

	e.sendEmail(ctx, user.ID, Email{
		To:   user.Email,
		Kind: EmailResetPassword,
		Data: map[string]string{
			"username":        user.Username,
			"reset_url":       e.resetLink(token),
			"expires_minutes": strconv.Itoa(int(e.config.PasswordReset.TTL.Minutes())),
		},
	})

	e.emitAudit(ctx, auditEventPasswordResetRequest, true, user.ID, "", nil, nil)
	return generic, nil
}

func (e *Engine) resetLink(token string) string {
	u, err := url.Parse(e.config.PasswordReset.ResetURL)
	if err != nil {
		// Config.Validate rejects unparsable URLs.
		return e.config.PasswordReset.ResetURL + "?token=" + token
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String()
}

// ResetPassword sets a new password using an emailed reset token.
//
// On success the account lock is cleared, every live session of the user is
// revoked and the token is consumed. An unknown or expired token returns
// ErrInvalidOrExpiredToken without touching the stored password.
func (e *Engine) ResetPassword(ctx context.Context, req ResetPasswordRequest) (*Outcome, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	if err := firstError(
		validateResetToken(req.Token),
		e.validatePassword("newPassword", req.NewPassword),
		validateConfirmation("confirmNewPassword", req.NewPassword, req.ConfirmNewPassword),
	); err != nil {
		return nil, err
	}

	if err := e.enforce(ctx, limiters.FlowResetPassword, req.Token); err != nil {
		return nil, err
	}

	record, err := e.store.FindActivePasswordResetToken(ctx, req.Token, e.now())
	if err != nil {
		if isNotFound(err) {
			e.metricInc(MetricPasswordResetFailure)
			e.emitAudit(ctx, auditEventPasswordResetInvalid, false, "", "", ErrInvalidOrExpiredToken, nil)
			return nil, ErrInvalidOrExpiredToken
		}
		return nil, e.fail(ctx, "reset password: find token", err)
	}

	hash, err := e.hasher.Hash(req.NewPassword)
	if err != nil {
		return nil, e.fail(ctx, "reset password: hash", err)
	}

	update := ClearLockout()
	update.PasswordHash = &hash
	if err := e.store.UpdateUser(ctx, record.UserID, update); err != nil {
		if isNotFound(err) {
			e.metricInc(MetricPasswordResetFailure)
			return nil, ErrInvalidOrExpiredToken
		}
		return nil, e.fail(ctx, "reset password: update user", err)
	}

	// Sessions go before the token so a failure here leaves the token
	// usable for a retry.
	revoked, err := e.sessions.DeleteAllForUser(ctx, record.UserID)
	if err != nil {
		return nil, e.fail(ctx, "reset password: revoke sessions", err)
	}
	for i := 0; i < revoked; i++ {
		e.metricInc(MetricSessionInvalidated)
	}

	if err := e.store.DeletePasswordResetToken(ctx, record.Email, record.UserID); err != nil {
		return nil, e.fail(ctx, "reset password: delete token", err)
	}

	e.metricInc(MetricPasswordResetSuccess)
	e.emitAudit(ctx, auditEventPasswordResetConfirm, true, record.UserID, "", nil, func() map[string]string {
		return map[string]string{"sessions_revoked": strconv.Itoa(revoked)}
	})

	return &Outcome{Message: "Password reset successfully", Next: NextLogin}, nil
}
