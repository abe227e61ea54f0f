package authcore

import (
	"errors"
	"log/slog"
	"time"

	internalaudit "github.com/MrEthical07/authcore/internal/audit"
	"github.com/MrEthical07/authcore/internal/limiters"
	"github.com/MrEthical07/authcore/internal/rate"
	"github.com/MrEthical07/authcore/password"
	"github.com/MrEthical07/authcore/session"
	"github.com/redis/go-redis/v9"
)

// Builder assembles an Engine. Configure it during initialization, call
// Build once, and discard it.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	store     CredentialStore
	mailer    EmailSender
	hasher    PasswordHasher
	auditSink AuditSink
	logger    *slog.Logger
	now       func() time.Time

	built bool
}

// New returns a Builder seeded with DefaultConfig.
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

// WithConfig replaces the whole configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cfg
	return b
}

// WithRedis sets the client backing rate limits and sessions.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithCredentialStore sets the persistent account store. Required.
func (b *Builder) WithCredentialStore(store CredentialStore) *Builder {
	b.store = store
	return b
}

// WithEmailSender sets the outbound mail collaborator.
func (b *Builder) WithEmailSender(sender EmailSender) *Builder {
	b.mailer = sender
	return b
}

// WithPasswordHasher overrides the argon2id hasher built from
// Config.Password.
func (b *Builder) WithPasswordHasher(hasher PasswordHasher) *Builder {
	b.hasher = hasher
	return b
}

// WithAuditSink sets the audit destination. It only takes effect when
// Config.Audit.Enabled is true.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithLogger sets the logger for flow failures and lock events. Defaults
// to a discarding logger.
func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

// WithClock replaces time.Now for every component the engine builds.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// WithMetricsEnabled overrides Config.Metrics.Enabled.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms overrides Config.Metrics.EnableLatencyHistograms.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and wires every component.
//
// Build may return an error when a required collaborator is missing or the
// configuration is rejected by Config.Validate. A Builder can be used once.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := b.config

	if b.redis == nil {
		return nil, errors.New("redis client required")
	}
	if b.store == nil {
		return nil, errors.New("credential store required")
	}
	if b.mailer == nil {
		return nil, errors.New("email sender required")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	hasher := b.hasher
	if hasher == nil {
		h, err := password.NewArgon2(cfg.passwordConfig())
		if err != nil {
			return nil, err
		}
		hasher = h
	}

	logger := b.logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	now := b.now
	if now == nil {
		now = time.Now
	}

	metrics := NewMetrics(cfg.Metrics)

	limiter := limiters.NewFlowLimiter(
		rate.New(b.redis).WithClock(now),
		cfg.RateLimits.RedisPrefix,
		cfg.flowPolicies(),
	).WithClock(now)

	sessions := session.NewStore(b.redis, cfg.Session.RedisPrefix, cfg.Session.Lifetime).WithClock(now)

	cookies := session.NewCookieFactory(session.CookieConfig{
		Name:       cfg.Session.CookieName,
		Secure:     cfg.Session.Secure,
		SameSite:   cfg.Session.SameSite,
		Path:       cfg.Session.Path,
		Domain:     cfg.Session.Domain,
		Persistent: cfg.Session.PersistentCookie,
	})

	lockout := limiters.NewLockoutPolicy(limiters.LockoutConfig{
		Threshold: cfg.Lockout.Threshold,
		Duration:  cfg.Lockout.Duration,
		Reason:    cfg.Lockout.Reason,
	})

	dispatcher := internalaudit.NewDispatcher(internalaudit.Config{
		Enabled:      cfg.Audit.Enabled,
		BufferSize:   cfg.Audit.BufferSize,
		DropIfFull:   cfg.Audit.DropIfFull,
		Critical:     criticalAuditEvent,
		FlushTimeout: auditFlushTimeout,
		OnDrop: func(internalaudit.Event) {
			metrics.Inc(MetricAuditDropped)
		},
	}, b.auditSink)

	b.built = true

	return &Engine{
		config:   cfg,
		store:    b.store,
		hasher:   hasher,
		sessions: sessions,
		cookies:  cookies,
		limiter:  limiter,
		lockout:  lockout,
		mailer:   b.mailer,
		audit:    dispatcher,
		metrics:  metrics,
		logger:   logger,
		now:      now,
	}, nil
}
