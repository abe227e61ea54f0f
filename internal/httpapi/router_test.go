package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/MrEthical07/authcore"
	"github.com/MrEthical07/authcore/store/memory"
)

type outbox struct {
	mu   sync.Mutex
	sent []authcore.Email
}

func (o *outbox) Send(_ context.Context, msg authcore.Email) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.sent = append(o.sent, msg)
	return nil
}

func (o *outbox) last(t *testing.T) authcore.Email {
	t.Helper()
	o.mu.Lock()
	defer o.mu.Unlock()
	require.NotEmpty(t, o.sent)
	return o.sent[len(o.sent)-1]
}

type apiEnv struct {
	router http.Handler
	engine *authcore.Engine
	mail   *outbox
}

func newAPIEnv(t *testing.T, mutate func(*Config)) *apiEnv {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = rdb.Close() })

	cfg := authcore.DefaultConfig()
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Session.Secure = false

	mail := &outbox{}
	engine, err := authcore.New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithCredentialStore(memory.New()).
		WithEmailSender(mail).
		Build()
	require.NoError(t, err)
	t.Cleanup(engine.Close)

	rc := Config{Engine: engine, Logger: slog.New(slog.DiscardHandler)}
	if mutate != nil {
		mutate(&rc)
	}
	return &apiEnv{router: NewRouter(rc), engine: engine, mail: mail}
}

func (env *apiEnv) do(t *testing.T, method, path, body string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.RemoteAddr = "203.0.113.7:5555"
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rr := httptest.NewRecorder()
	env.router.ServeHTTP(rr, req)
	return rr
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out))
	return out
}

func sessionCookieFrom(t *testing.T, rr *httptest.ResponseRecorder, name string) *http.Cookie {
	t.Helper()
	for _, c := range rr.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	t.Fatalf("cookie %s not set", name)
	return nil
}

func (env *apiEnv) registerVerified(t *testing.T, username, email, password string) {
	t.Helper()
	rr := env.do(t, http.MethodPost, "/register", fmt.Sprintf(
		`{"username":%q,"email":%q,"password":%q,"confirmPassword":%q}`, username, email, password, password))
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	require.Equal(t, "verify_email", decodeBody(t, rr)["next"])

	otp := env.mail.last(t).Data["otp"]
	rr = env.do(t, http.MethodPost, "/verify-email", fmt.Sprintf(`{"email":%q,"otp":%q}`, email, otp))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
}

func TestSessionLifecycleOverHTTP(t *testing.T) {
	env := newAPIEnv(t, nil)
	env.registerVerified(t, "alice", "alice@example.com", "correct horse")

	rr := env.do(t, http.MethodPost, "/login", `{"email":"alice@example.com","password":"correct horse"}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	require.Equal(t, "home", decodeBody(t, rr)["next"])
	cookie := sessionCookieFrom(t, rr, env.engine.CookieName())
	require.True(t, cookie.HttpOnly)
	require.NotEmpty(t, cookie.Value)

	rr = env.do(t, http.MethodGet, "/session", "", cookie)
	require.Equal(t, http.StatusOK, rr.Code)
	body := decodeBody(t, rr)
	require.Equal(t, "alice", body["username"])
	require.Equal(t, true, body["emailVerified"])

	rr = env.do(t, http.MethodPost, "/logout", "", cookie)
	require.Equal(t, http.StatusOK, rr.Code)
	cleared := sessionCookieFrom(t, rr, env.engine.CookieName())
	require.Empty(t, cleared.Value)
	require.Negative(t, cleared.MaxAge)

	rr = env.do(t, http.MethodGet, "/session", "", cookie)
	require.Equal(t, http.StatusUnauthorized, rr.Code)
	require.Equal(t, "unauthorized", decodeBody(t, rr)["error"])
}

func TestLoginErrorsMapToStatus(t *testing.T) {
	env := newAPIEnv(t, nil)
	env.registerVerified(t, "bob", "bob@example.com", "correct horse")

	rr := env.do(t, http.MethodPost, "/login", `{"email":"bob@example.com","password":"wrong horse"}`)
	require.Equal(t, http.StatusUnauthorized, rr.Code)
	body := decodeBody(t, rr)
	require.Equal(t, "invalid_credentials", body["error"])
	require.Equal(t, "Invalid email or password", body["message"])

	rr = env.do(t, http.MethodPost, "/login", `{"email":"not-an-email","password":"correct horse"}`)
	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Equal(t, "email", decodeBody(t, rr)["field"])
}

func TestLockedAccountReturns423WithRetryAfter(t *testing.T) {
	env := newAPIEnv(t, nil)
	env.registerVerified(t, "carol", "carol@example.com", "correct horse")

	threshold := env.engine.Config().Lockout.Threshold
	for i := 0; i < threshold; i++ {
		rr := env.do(t, http.MethodPost, "/login", `{"email":"carol@example.com","password":"wrong horse"}`)
		require.Equal(t, http.StatusUnauthorized, rr.Code)
	}

	rr := env.do(t, http.MethodPost, "/login", `{"email":"carol@example.com","password":"correct horse"}`)
	require.Equal(t, http.StatusLocked, rr.Code)
	require.NotEmpty(t, rr.Header().Get("Retry-After"))
	require.Equal(t, "account_locked", decodeBody(t, rr)["error"])
}

func TestUnverifiedLoginIsForbidden(t *testing.T) {
	env := newAPIEnv(t, nil)
	rr := env.do(t, http.MethodPost, "/register", `{"username":"dave","email":"dave@example.com","password":"correct horse","confirmPassword":"correct horse"}`)
	require.Equal(t, http.StatusCreated, rr.Code)

	rr = env.do(t, http.MethodPost, "/register", `{"username":"dave","email":"other@example.com","password":"correct horse","confirmPassword":"correct horse"}`)
	require.Equal(t, http.StatusConflict, rr.Code)

	rr = env.do(t, http.MethodPost, "/login", `{"email":"dave@example.com","password":"correct horse"}`)
	require.Equal(t, http.StatusForbidden, rr.Code)
	require.Equal(t, "email_not_verified", decodeBody(t, rr)["error"])
}

func TestGenericResponsesForUnknownEmail(t *testing.T) {
	env := newAPIEnv(t, nil)

	rr := env.do(t, http.MethodPost, "/forgot-password", `{"email":"ghost@example.com"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	rr = env.do(t, http.MethodPost, "/resend-otp", `{"email":"ghost@example.com"}`)
	require.Equal(t, http.StatusOK, rr.Code)

	rr = env.do(t, http.MethodPost, "/reset-password", fmt.Sprintf(
		`{"token":%q,"newPassword":"new password","confirmNewPassword":"new password"}`, strings.Repeat("a", 64)))
	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Equal(t, "invalid_token", decodeBody(t, rr)["error"])
}

func TestMalformedBodyRejected(t *testing.T) {
	env := newAPIEnv(t, nil)
	rr := env.do(t, http.MethodPost, "/login", `{"email":`)
	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Equal(t, "invalid_request", decodeBody(t, rr)["error"])

	rr = env.do(t, http.MethodPost, "/login", `{"email":"a@b.co","password":"x","extra":1}`)
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestFloodGuardTrips(t *testing.T) {
	env := newAPIEnv(t, func(c *Config) {
		c.Flood = FloodConfig{RequestsPerWindow: 2, Window: time.Minute, Burst: 2}
	})

	for i := 0; i < 2; i++ {
		rr := env.do(t, http.MethodPost, "/forgot-password", `{"email":"x@example.com"}`)
		require.Equal(t, http.StatusOK, rr.Code)
	}
	rr := env.do(t, http.MethodPost, "/forgot-password", `{"email":"x@example.com"}`)
	require.Equal(t, http.StatusTooManyRequests, rr.Code)
	require.NotEmpty(t, rr.Header().Get("Retry-After"))

	rr = env.do(t, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rr.Code)
}

func TestHealthAndMetrics(t *testing.T) {
	env := newAPIEnv(t, func(c *Config) {
		c.Health = map[string]HealthCheck{
			"redis": func(context.Context) error { return nil },
			"store": func(context.Context) error { return errors.New("down") },
		}
		c.Metrics = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte("authcore_login_success_total 0\n"))
		})
	})

	rr := env.do(t, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
	checks := decodeBody(t, rr)["checks"].(map[string]any)
	require.Equal(t, "ok", checks["redis"])
	require.Equal(t, "down", checks["store"])

	rr = env.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), "authcore_login_success_total")
}
