package authcore

import (
	"context"
	"log/slog"
	"time"

	"github.com/MrEthical07/authcore/internal/limiters"
)

// Login authenticates email and password and issues a session cookie
// through sink.
//
// Unknown emails and wrong passwords both return ErrInvalidCredentials
// after a full hash verification. A locked account returns *LockedError
// before the password is checked. The failure that reaches the lockout
// threshold still returns ErrInvalidCredentials; the next attempt sees the
// lock. A correct password on an unverified account returns
// ErrEmailNotVerified and leaves the attempt counter as is.
func (e *Engine) Login(ctx context.Context, req LoginRequest, sink CookieSink) (*LoginResult, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	defer e.observe(MetricLoginLatency, e.now())

	email := NormalizeEmail(req.Email)
	if err := firstError(
		validateEmail(email),
		e.validateLoginPassword(req.Password),
	); err != nil {
		return nil, err
	}

	if err := e.enforce(ctx, limiters.FlowLogin, email); err != nil {
		return nil, err
	}

	user, err := e.lookupUser(ctx, "login: find user", func() (*User, error) {
		return e.store.FindUserByEmail(ctx, email)
	})
	if err != nil {
		return nil, err
	}
	if user == nil || user.PasswordHash == nil {
		e.hasher.VerifyDummy(req.Password)
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, "", "", ErrInvalidCredentials, func() map[string]string {
			return map[string]string{"reason": "unknown_account"}
		})
		return nil, ErrInvalidCredentials
	}

	now := e.now()
	state, remaining := e.lockout.Evaluate(user.LockoutUntil, now)
	switch state {
	case limiters.LockLocked:
		e.metricInc(MetricLoginLocked)
		e.emitAudit(ctx, auditEventLoginLocked, false, user.ID, "", ErrAccountLocked, nil)
		return nil, &LockedError{Until: *user.LockoutUntil, Remaining: remaining}
	case limiters.LockExpired:
		if err := e.store.UpdateUser(ctx, user.ID, ClearLockout()); err != nil {
			return nil, e.fail(ctx, "login: clear expired lock", err)
		}
		user.LoginAttempts = 0
		user.LockoutUntil = nil
		user.LockoutReason = nil
	}

	ok, err := e.hasher.Verify(req.Password, *user.PasswordHash)
	if err != nil {
		return nil, e.fail(ctx, "login: verify password", err)
	}
	if !ok {
		return nil, e.loginFailed(ctx, user, now)
	}

	if !user.EmailVerified {
		e.metricInc(MetricLoginUnverified)
		e.emitAudit(ctx, auditEventLoginUnverified, false, user.ID, "", ErrEmailNotVerified, nil)
		return nil, ErrEmailNotVerified
	}

	if user.LoginAttempts != 0 || user.LockoutUntil != nil || user.LockoutReason != nil {
		if err := e.store.UpdateUser(ctx, user.ID, ClearLockout()); err != nil {
			return nil, e.fail(ctx, "login: reset attempts", err)
		}
	}

	sess, err := e.sessions.Create(ctx, user.ID)
	if err != nil {
		return nil, e.fail(ctx, "login: create session", err)
	}
	if sink != nil {
		sink.SetCookie(e.cookies.Session(sess, now))
	}

	e.metricInc(MetricLoginSuccess)
	e.metricInc(MetricSessionCreated)
	e.emitAudit(ctx, auditEventLoginSuccess, true, user.ID, sess.ID, nil, nil)

	return &LoginResult{
		Outcome:   Outcome{Message: "Logged in", Next: NextHome},
		UserID:    user.ID,
		SessionID: sess.ID,
		ExpiresAt: sess.ExpiresAt,
	}, nil
}

// loginFailed counts a wrong password and locks the account once the
// stored counter reaches the threshold.
func (e *Engine) loginFailed(ctx context.Context, user *User, now time.Time) error {
	attempts, err := e.store.IncrementLoginAttempts(ctx, user.ID)
	if err != nil {
		return e.fail(ctx, "login: increment attempts", err)
	}
	e.metricInc(MetricLoginFailure)

	if lock, until := e.lockout.OnFailure(attempts, now); lock {
		reason := e.lockout.Reason()
		update := UserUpdate{SetLockout: true, LockoutUntil: &until, LockoutReason: &reason}
		if err := e.store.UpdateUser(ctx, user.ID, update); err != nil {
			return e.fail(ctx, "login: lock account", err)
		}
		e.metricInc(MetricAccountLocked)
		e.logger.LogAttrs(ctx, slog.LevelWarn, "account locked",
			slog.String("user_id", user.ID),
			slog.Int("attempts", attempts),
			slog.Time("until", until),
		)
		e.emitAudit(ctx, auditEventAccountLocked, true, user.ID, "", nil, func() map[string]string {
			return map[string]string{"until": until.UTC().Format(time.RFC3339)}
		})
	}

	e.emitAudit(ctx, auditEventLoginFailure, false, user.ID, "", ErrInvalidCredentials, func() map[string]string {
		return map[string]string{"reason": "wrong_password"}
	})
	return ErrInvalidCredentials
}
