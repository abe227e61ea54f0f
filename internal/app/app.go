// Package app wires the authcore server: configuration, the Redis client,
// the credential store, the mailer, the engine, the HTTP router and the
// housekeeping scheduler.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/authcore"
	"github.com/MrEthical07/authcore/internal/housekeeping"
	"github.com/MrEthical07/authcore/internal/httpapi"
	"github.com/MrEthical07/authcore/mailer"
	promexport "github.com/MrEthical07/authcore/metrics/export/prometheus"
	"github.com/MrEthical07/authcore/store/memory"
	"github.com/MrEthical07/authcore/store/postgres"
	"github.com/MrEthical07/authcore/store/sqlite"
)

// backend is a credential store the housekeeping job can purge.
type backend interface {
	authcore.CredentialStore
	housekeeping.Purger
}

type pinger interface {
	Ping(ctx context.Context) error
}

// App owns every long-lived dependency of the server.
type App struct {
	cfg       Config
	logger    *slog.Logger
	redis     *redis.Client
	store     backend
	engine    *authcore.Engine
	scheduler *housekeeping.Scheduler
	handler   http.Handler
	closers   []func() error
}

// New connects every dependency. On error, anything already opened is
// closed.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (_ *App, err error) {
	a := &App{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	if a.redis, err = newRedis(ctx, cfg.RedisURL); err != nil {
		return nil, err
	}
	a.closers = append(a.closers, a.redis.Close)

	if a.store, err = a.openStore(ctx); err != nil {
		return nil, err
	}

	sender, err := a.openMailer()
	if err != nil {
		return nil, err
	}

	builder := authcore.New().
		WithConfig(cfg.EngineConfig()).
		WithRedis(a.redis).
		WithCredentialStore(a.store).
		WithEmailSender(sender).
		WithLogger(logger)
	if cfg.AuditEnabled {
		builder = builder.WithAuditSink(authcore.NewSlogSink(logger.With("component", "audit")))
	}
	if a.engine, err = builder.Build(); err != nil {
		return nil, fmt.Errorf("build engine: %w", err)
	}
	a.closers = append(a.closers, func() error { a.engine.Close(); return nil })
	logReport(logger, a.engine.SecurityReport())

	a.scheduler = housekeeping.NewScheduler(a.store, logger.With("component", "housekeeping"))

	health := map[string]httpapi.HealthCheck{
		"redis": func(ctx context.Context) error { return a.redis.Ping(ctx).Err() },
	}
	if p, ok := a.store.(pinger); ok {
		health["store"] = p.Ping
	}
	a.handler = httpapi.NewRouter(httpapi.Config{
		Engine:         a.engine,
		Logger:         logger,
		TrustProxy:     cfg.TrustProxy,
		AllowedOrigins: cfg.CORSOrigins,
		RequestTimeout: cfg.RequestTimeout,
		Flood: httpapi.FloodConfig{
			RequestsPerWindow: cfg.FloodRequests,
			Window:            cfg.FloodWindow,
			Burst:             cfg.FloodBurst,
		},
		Metrics: promexport.Handler(a.engine),
		Health:  health,
	})
	return a, nil
}

func logReport(logger *slog.Logger, r authcore.SecurityReport) {
	logger.Info("security posture",
		"argon2_memory_kib", r.Argon2.Memory,
		"argon2_time", r.Argon2.Time,
		"lockout_threshold", r.LockoutThreshold,
		"lockout_duration", r.LockoutDuration,
		"rate_limited_flows", r.RateLimitedFlows,
		"session_lifetime", r.SessionLifetime,
		"audit", r.AuditEnabled,
	)
	for _, w := range r.Warnings {
		logger.Warn("security posture", "warning", w)
	}
}

func newRedis(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}
	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}

func (a *App) openStore(ctx context.Context) (backend, error) {
	switch a.cfg.StoreDriver {
	case "memory":
		a.logger.Warn("using in-memory credential store, data is lost on restart")
		return memory.New(), nil
	case "sqlite":
		s, err := sqlite.NewStore(a.cfg.SQLiteDSN)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		a.closers = append(a.closers, s.Close)
		if err := s.ApplyMigrations(); err != nil {
			return nil, fmt.Errorf("sqlite migrations: %w", err)
		}
		return s, nil
	case "postgres":
		s, err := postgres.Open(ctx, a.cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, s.Close)
		if err := s.RunMigrations(ctx); err != nil {
			return nil, fmt.Errorf("postgres migrations: %w", err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown STORE_DRIVER %q", a.cfg.StoreDriver)
	}
}

func (a *App) openMailer() (authcore.EmailSender, error) {
	switch a.cfg.Mailer {
	case "amqp":
		s, err := mailer.NewAMQPSender(mailer.AMQPConfig{
			URL:      a.cfg.AMQPURL,
			Exchange: a.cfg.AMQPExchange,
			Logger:   a.logger.With("component", "mailer"),
		})
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, s.Close)
		return s, nil
	default:
		return mailer.NewLogSender(a.logger.With("component", "mailer")), nil
	}
}

// Handler returns the HTTP handler for every route.
func (a *App) Handler() http.Handler { return a.handler }

// Engine returns the wired engine.
func (a *App) Engine() *authcore.Engine { return a.engine }

// Run serves HTTP and the housekeeping job until ctx is cancelled, then
// shuts both down within ShutdownTimeout.
func (a *App) Run(ctx context.Context) error {
	if err := a.scheduler.Start(a.cfg.PurgeSchedule); err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           a.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("http server listening", "addr", a.cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()
	a.logger.Info("shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		serveErr = errors.Join(serveErr, fmt.Errorf("http shutdown: %w", err))
	}
	select {
	case <-a.scheduler.Stop().Done():
	case <-shutdownCtx.Done():
		a.logger.Warn("housekeeping job still running at shutdown")
	}
	return serveErr
}

// Close releases dependencies in reverse order of creation.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	return errors.Join(errs...)
}
