package authcore

import (
	"context"
	"errors"

	"github.com/MrEthical07/authcore/session"
)

// ValidateSession resolves a session cookie value to its user.
//
// Unknown, expired and malformed ids return ErrSessionNotFound and write a
// blank cookie to sink. When the session was renewed the cookie is written
// again with the same id and the extended lifetime.
func (e *Engine) ValidateSession(ctx context.Context, sessionID string, sink CookieSink) (*SessionResult, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	defer e.observe(MetricValidateLatency, e.now())

	if sessionID == "" {
		return nil, ErrSessionNotFound
	}

	sess, err := e.sessions.Validate(ctx, sessionID)
	if err != nil {
		if errors.Is(err, session.ErrSessionNotFound) || errors.Is(err, session.ErrCorruptSession) {
			e.clearCookie(sink)
			e.emitAudit(ctx, auditEventSessionInvalid, false, "", "", ErrSessionNotFound, nil)
			return nil, ErrSessionNotFound
		}
		return nil, e.fail(ctx, "validate session", err)
	}

	user, err := e.store.FindUserByID(ctx, sess.UserID)
	if err != nil {
		if isNotFound(err) {
			_ = e.sessions.Delete(ctx, sess.ID)
			e.clearCookie(sink)
			return nil, ErrSessionNotFound
		}
		return nil, e.fail(ctx, "validate session: find user", err)
	}

	if sess.Fresh {
		e.metricInc(MetricSessionRenewed)
		if sink != nil {
			sink.SetCookie(e.cookies.Session(sess, e.now()))
		}
	}

	return &SessionResult{User: user, Session: sess}, nil
}

// Logout revokes the session and clears the cookie. It returns
// ErrUnauthorized when there is no live session to end.
func (e *Engine) Logout(ctx context.Context, sessionID string, sink CookieSink) error {
	if err := e.ready(); err != nil {
		return err
	}

	if sessionID == "" {
		return ErrUnauthorized
	}

	sess, err := e.sessions.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, session.ErrSessionNotFound) || errors.Is(err, session.ErrCorruptSession) {
			e.clearCookie(sink)
			return ErrUnauthorized
		}
		return e.fail(ctx, "logout: get session", err)
	}

	if err := e.sessions.Delete(ctx, sess.ID); err != nil {
		return e.fail(ctx, "logout: delete session", err)
	}
	e.clearCookie(sink)

	e.metricInc(MetricLogout)
	e.metricInc(MetricSessionInvalidated)
	e.emitAudit(ctx, auditEventLogoutSession, true, sess.UserID, sess.ID, nil, nil)
	return nil
}

func (e *Engine) clearCookie(sink CookieSink) {
	if sink != nil {
		sink.SetCookie(e.cookies.Blank())
	}
}
