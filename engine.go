package authcore

import (
	"context"
	"errors"
	"log/slog"
	"time"

	internalaudit "github.com/MrEthical07/authcore/internal/audit"
	"github.com/MrEthical07/authcore/internal/limiters"
	"github.com/MrEthical07/authcore/session"
)

// Engine runs the account-security flows. It holds no per-request state and
// is safe for concurrent use once built.
type Engine struct {
	config   Config
	store    CredentialStore
	hasher   PasswordHasher
	sessions *session.Store
	cookies  session.CookieFactory
	limiter  *limiters.FlowLimiter
	lockout  limiters.LockoutPolicy
	mailer   EmailSender
	audit    *internalaudit.Dispatcher
	metrics  *Metrics
	logger   *slog.Logger
	now      func() time.Time
}

// Close flushes and stops the audit dispatcher.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped reports how many audit events were discarded.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot returns point-in-time copies of every counter and, when
// enabled, the latency histograms.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil {
		return (*Metrics)(nil).Snapshot()
	}
	return e.metrics.Snapshot()
}

// Config returns a copy of the active configuration.
func (e *Engine) Config() Config {
	return e.config
}

// CookieName is the name of the session cookie Login sets.
func (e *Engine) CookieName() string {
	return e.cookies.Name()
}

func (e *Engine) ready() error {
	if e == nil || e.store == nil || e.hasher == nil || e.sessions == nil || e.mailer == nil {
		return ErrEngineNotReady
	}
	return nil
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) observe(id MetricID, start time.Time) {
	if !e.metrics.LatencyEnabled() {
		return
	}
	e.metrics.Observe(id, e.now().Sub(start))
}

// enforce records one attempt against the flow's identifier and IP budgets.
// A counter store failure denies the request.
func (e *Engine) enforce(ctx context.Context, flow limiters.Flow, identifier string) error {
	verdict, err := e.limiter.Enforce(ctx, flow, identifier, clientIPFromContext(ctx))
	if err != nil {
		e.metricInc(MetricRateLimiterUnavailable)
		return e.fail(ctx, "rate limit "+string(flow), err)
	}
	if !verdict.Allowed {
		e.emitRateLimit(ctx, flow, verdict)
		return &RateLimitError{RetryAfter: verdict.RetryAfter}
	}
	return nil
}

// fail logs an unexpected collaborator error and hides it behind ErrInternal.
func (e *Engine) fail(ctx context.Context, op string, err error) error {
	e.metricInc(MetricInternalError)
	e.logger.LogAttrs(ctx, slog.LevelError, "auth operation failed",
		slog.String("op", op),
		slog.String("ip", clientIPFromContext(ctx)),
		slog.Any("error", err),
	)
	return internalError(op, err)
}

// sendEmail delivers msg. Delivery failures are logged and counted but
// never fail the calling flow.
func (e *Engine) sendEmail(ctx context.Context, userID string, msg Email) {
	if err := e.mailer.Send(ctx, msg); err != nil {
		e.metricInc(MetricEmailSendFailure)
		e.logger.LogAttrs(ctx, slog.LevelError, "email delivery failed",
			slog.String("kind", string(msg.Kind)),
			slog.String("user_id", userID),
			slog.Any("error", err),
		)
		e.emitAudit(ctx, auditEventEmailSendFailure, false, userID, "", err, func() map[string]string {
			return map[string]string{"kind": string(msg.Kind)}
		})
	}
}

// lookupUser maps ErrNotFound to a nil user.
func (e *Engine) lookupUser(ctx context.Context, op string, find func() (*User, error)) (*User, error) {
	user, err := find()
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, e.fail(ctx, op, err)
	}
	return user, nil
}
