package authcore_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/authcore"
	"github.com/MrEthical07/authcore/store/memory"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type recordingMailer struct {
	mu   sync.Mutex
	sent []authcore.Email
	err  error
}

func (m *recordingMailer) Send(_ context.Context, msg authcore.Email) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, msg)
	return m.err
}

func (m *recordingMailer) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

func (m *recordingMailer) last(t *testing.T) authcore.Email {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sent) == 0 {
		t.Fatal("no email sent")
	}
	return m.sent[len(m.sent)-1]
}

type cookieJar struct {
	cookies []authcore.Cookie
}

func (j *cookieJar) SetCookie(c authcore.Cookie) {
	j.cookies = append(j.cookies, c)
}

func (j *cookieJar) last(t *testing.T) authcore.Cookie {
	t.Helper()
	if len(j.cookies) == 0 {
		t.Fatal("no cookie set")
	}
	return j.cookies[len(j.cookies)-1]
}

// countingStore counts user lookups so tests can assert a flow stopped
// before reaching the store.
type countingStore struct {
	*memory.Store
	mu      sync.Mutex
	lookups int
}

func (s *countingStore) FindUserByEmail(ctx context.Context, email string) (*authcore.User, error) {
	s.mu.Lock()
	s.lookups++
	s.mu.Unlock()
	return s.Store.FindUserByEmail(ctx, email)
}

func (s *countingStore) lookupCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lookups
}

type testEnv struct {
	engine *authcore.Engine
	store  *countingStore
	mailer *recordingMailer
	clock  *testClock
	redis  *miniredis.Miniredis
	audit  *authcore.ChannelSink
}

func testConfig() authcore.Config {
	cfg := authcore.DefaultConfig()
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Session.Secure = false
	cfg.Metrics.EnableLatencyHistograms = true
	cfg.Audit.Enabled = true
	cfg.Audit.BufferSize = 1024
	return cfg
}

func newTestEnv(t *testing.T, mutate ...func(*authcore.Config)) *testEnv {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = rdb.Close() })

	cfg := testConfig()
	for _, m := range mutate {
		m(&cfg)
	}

	env := &testEnv{
		store:  &countingStore{Store: memory.New()},
		mailer: &recordingMailer{},
		clock:  &testClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)},
		redis:  mr,
		audit:  authcore.NewChannelSink(1024),
	}

	engine, err := authcore.New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithCredentialStore(env.store).
		WithEmailSender(env.mailer).
		WithAuditSink(env.audit).
		WithClock(env.clock.Now).
		Build()
	if err != nil {
		t.Fatalf("build engine: %v", err)
	}
	t.Cleanup(engine.Close)

	env.engine = engine
	return env
}

// advance moves both the engine clock and miniredis TTLs.
func (env *testEnv) advance(d time.Duration) {
	env.clock.Advance(d)
	env.redis.FastForward(d)
}

func (env *testEnv) ctx(ip string) context.Context {
	return authcore.WithClientIP(context.Background(), ip)
}

func (env *testEnv) register(t *testing.T, username, email, password string) string {
	t.Helper()
	res, err := env.engine.Register(env.ctx("198.51.100.1"), authcore.RegisterRequest{
		Username:        username,
		Email:           email,
		Password:        password,
		ConfirmPassword: password,
	})
	if err != nil {
		t.Fatalf("register %s: %v", email, err)
	}
	return res.UserID
}

func (env *testEnv) lastOTP(t *testing.T) string {
	t.Helper()
	msg := env.mailer.last(t)
	if msg.Kind != authcore.EmailVerifyAccount {
		t.Fatalf("expected verify email, got %s", msg.Kind)
	}
	return msg.Data["otp"]
}

// registerVerified registers and verifies an account.
func (env *testEnv) registerVerified(t *testing.T, username, email, password string) string {
	t.Helper()
	id := env.register(t, username, email, password)
	_, err := env.engine.VerifyEmail(env.ctx("198.51.100.1"), authcore.VerifyEmailRequest{
		Email: email,
		OTP:   env.lastOTP(t),
	})
	if err != nil {
		t.Fatalf("verify %s: %v", email, err)
	}
	return id
}

func (env *testEnv) user(t *testing.T, email string) *authcore.User {
	t.Helper()
	u, err := env.store.Store.FindUserByEmail(context.Background(), email)
	if err != nil {
		t.Fatalf("find user %s: %v", email, err)
	}
	return u
}

func (env *testEnv) login(email, password string) (*authcore.LoginResult, *cookieJar, error) {
	jar := &cookieJar{}
	res, err := env.engine.Login(env.ctx("203.0.113.9"), authcore.LoginRequest{Email: email, Password: password}, jar)
	return res, jar, err
}

func (env *testEnv) auditEvents() []authcore.AuditEvent {
	var events []authcore.AuditEvent
	for {
		select {
		case ev := <-env.audit.Events():
			events = append(events, ev)
		case <-time.After(50 * time.Millisecond):
			return events
		}
	}
}

func requireErrorIs(t *testing.T, err, target error) {
	t.Helper()
	if !errors.Is(err, target) {
		t.Fatalf("expected %v, got %v", target, err)
	}
}
