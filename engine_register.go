package authcore

import (
	"context"
	"errors"
	"strconv"

	"github.com/MrEthical07/authcore/internal"
	"github.com/MrEthical07/authcore/internal/limiters"
)

// Register creates an unverified account and emails it a verification OTP.
//
// Register returns a *ValidationError for malformed input, a *RateLimitError
// when the email or client IP exhausted its budget, and a *ConflictError
// when the username or email is taken (username is checked first). A mail
// delivery failure does not fail the call.
func (e *Engine) Register(ctx context.Context, req RegisterRequest) (*RegisterResult, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	defer e.observe(MetricRegisterLatency, e.now())

	username := req.Username
	email := NormalizeEmail(req.Email)

	if err := firstError(
		validateEmail(email),
		e.validateUsername(username),
		e.validatePassword("password", req.Password),
		validateConfirmation("confirmPassword", req.Password, req.ConfirmPassword),
	); err != nil {
		return nil, err
	}

	if err := e.enforce(ctx, limiters.FlowRegister, email); err != nil {
		return nil, err
	}

	existing, err := e.lookupUser(ctx, "register: find username", func() (*User, error) {
		return e.store.FindUserByUsername(ctx, username)
	})
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, e.registerConflict(ctx, "username")
	}

	existing, err = e.lookupUser(ctx, "register: find email", func() (*User, error) {
		return e.store.FindUserByEmail(ctx, email)
	})
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, e.registerConflict(ctx, "email")
	}

	hash, err := e.hasher.Hash(req.Password)
	if err != nil {
		return nil, e.fail(ctx, "register: hash password", err)
	}

	userID, err := internal.NewUserID()
	if err != nil {
		return nil, e.fail(ctx, "register: user id", err)
	}

	now := e.now()
	user := &User{
		ID:           userID,
		Username:     username,
		Email:        email,
		PasswordHash: &hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := e.store.CreateUser(ctx, user); err != nil {
		var conflict *ConflictError
		if errors.As(err, &conflict) {
			// Lost a race with a concurrent registration.
			return nil, e.registerConflict(ctx, conflict.Field)
		}
		e.emitAudit(ctx, auditEventRegisterFailure, false, "", "", ErrInternal, nil)
		return nil, e.fail(ctx, "register: create user", err)
	}

	if err := e.issueVerificationOTP(ctx, user); err != nil {
		return nil, err
	}

	e.metricInc(MetricRegisterSuccess)
	e.emitAudit(ctx, auditEventRegisterSuccess, true, userID, "", nil, nil)

	return &RegisterResult{
		Outcome: Outcome{
			Message: "Account created. Check your email for a verification code.",
			Next:    NextVerifyEmail,
		},
		UserID: userID,
	}, nil
}

func (e *Engine) registerConflict(ctx context.Context, field string) error {
	e.metricInc(MetricRegisterConflict)
	e.emitAudit(ctx, auditEventRegisterDuplicate, false, "", "", ErrConflict, func() map[string]string {
		return map[string]string{"field": field}
	})
	return &ConflictError{Field: field}
}

// issueVerificationOTP replaces the user's pending OTP and mails the new one.
func (e *Engine) issueVerificationOTP(ctx context.Context, user *User) error {
	otp, err := internal.NewOTP()
	if err != nil {
		return e.fail(ctx, "otp: generate", err)
	}

	now := e.now()
	record := EmailVerification{
		Email:     user.Email,
		UserID:    user.ID,
		OTP:       otp,
		ExpiresAt: now.Add(e.config.OTP.TTL),
		CreatedAt: now,
	}
	if err := e.store.CreateEmailVerification(ctx, record); err != nil {
		return e.fail(ctx, "otp: store", err)
	}

	e.sendEmail(ctx, user.ID, Email{
		To:   user.Email,
		Kind: EmailVerifyAccount,
		Data: map[string]string{
			"username":        user.Username,
			"otp":             otp,
			"expires_minutes": strconv.Itoa(int(e.config.OTP.TTL.Minutes())),
		},
	})
	return nil
}

func firstError(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
