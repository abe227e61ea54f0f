package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/MrEthical07/authcore"
	"github.com/MrEthical07/authcore/internal/logx"
	"github.com/MrEthical07/authcore/middleware"
)

// HealthCheck reports whether one dependency is usable.
type HealthCheck func(ctx context.Context) error

// Config wires a router.
type Config struct {
	Engine *authcore.Engine
	Logger *slog.Logger

	// TrustProxy makes X-Forwarded-For and X-Real-IP authoritative for the
	// client IP.
	TrustProxy     bool
	AllowedOrigins []string
	RequestTimeout time.Duration
	Flood          FloodConfig

	// Metrics is mounted at /metrics when non-nil.
	Metrics http.Handler
	Health  map[string]HealthCheck
}

// NewRouter builds the chi router for every authentication route.
func NewRouter(cfg Config) *chi.Mux {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	h := &handler{engine: cfg.Engine, trustProxy: cfg.TrustProxy}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(requestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(timeout))
	if len(cfg.AllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   cfg.AllowedOrigins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID"},
			ExposedHeaders:   []string{"Retry-After"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}

	r.Get("/healthz", healthHandler(cfg.Health))
	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.Metrics)
	}

	r.Group(func(r chi.Router) {
		if cfg.Flood.enabled() {
			r.Use(newFloodGuard(cfg.Flood).middleware(cfg.TrustProxy))
		}
		r.Post("/register", h.register)
		r.Post("/login", h.login)
		r.Post("/logout", h.logout)
		r.Post("/verify-email", h.verifyEmail)
		r.Post("/resend-otp", h.resendOTP)
		r.Post("/forgot-password", h.forgotPassword)
		r.Post("/reset-password", h.resetPassword)
		r.With(middleware.RequireSession(cfg.Engine, writeError)).Get("/session", h.session)
	})

	return r
}

// requestLogger attaches a request-scoped logger and logs each response.
func requestLogger(base *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			logger := base.With(
				"req_id", middleware.GetReqID(r.Context()),
				"method", r.Method,
				"path", r.URL.Path,
			)
			r = r.WithContext(logx.WithContext(r.Context(), logger))

			next.ServeHTTP(ww, r)

			logger.Info("http_request",
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration_ms", time.Since(start).Milliseconds(),
			)
		})
	}
}

func healthHandler(checks map[string]HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		results := make(map[string]string, len(checks))
		for name, check := range checks {
			if err := check(ctx); err != nil {
				logx.FromContext(r.Context()).Warn("health check failed", "check", name, "error", err)
				results[name] = "down"
				status = http.StatusServiceUnavailable
				continue
			}
			results[name] = "ok"
		}
		WriteJSON(w, status, map[string]any{"status": http.StatusText(status), "checks": results})
	}
}
