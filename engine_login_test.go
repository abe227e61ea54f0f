package authcore_test

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/MrEthical07/authcore"
)

func TestLoginSuccessIssuesSessionCookie(t *testing.T) {
	env := newTestEnv(t)
	id := env.registerVerified(t, "alice", "alice@x.com", "Password1!")

	res, jar, err := env.login("ALICE@x.com", "Password1!")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if res.UserID != id || res.SessionID == "" || res.Next != authcore.NextHome {
		t.Fatalf("unexpected result: %+v", res)
	}

	c := jar.last(t)
	if c.Name != "auth_session" || c.Value != res.SessionID {
		t.Fatalf("unexpected cookie: %+v", c)
	}
	if !c.Attributes.HTTPOnly || c.Attributes.SameSite != "lax" || c.Attributes.Path != "/" {
		t.Fatalf("unexpected cookie attributes: %+v", c.Attributes)
	}
	if !env.redis.Exists("ac:s:" + res.SessionID) {
		t.Fatal("session not stored")
	}
}

func TestLoginUnknownEmailAndWrongPasswordAreIndistinguishable(t *testing.T) {
	env := newTestEnv(t)
	env.registerVerified(t, "alice", "alice@x.com", "Password1!")

	_, jarA, errUnknown := env.login("nobody@x.com", "Password1!")
	_, jarB, errWrong := env.login("alice@x.com", "WrongPass1!")

	if errUnknown != errWrong {
		t.Fatalf("errors differ: %v vs %v", errUnknown, errWrong)
	}
	requireErrorIs(t, errUnknown, authcore.ErrInvalidCredentials)
	if authcore.PublicMessage(errUnknown) != authcore.PublicMessage(errWrong) {
		t.Fatal("public messages differ")
	}
	if len(jarA.cookies) != 0 || len(jarB.cookies) != 0 {
		t.Fatal("failed logins must not set cookies")
	}
}

func TestLoginSuccessResetsAttempts(t *testing.T) {
	env := newTestEnv(t)
	env.registerVerified(t, "alice", "alice@x.com", "Password1!")

	for i := 0; i < 3; i++ {
		if _, _, err := env.login("alice@x.com", "WrongPass1!"); !errors.Is(err, authcore.ErrInvalidCredentials) {
			t.Fatalf("attempt %d: %v", i+1, err)
		}
	}
	if got := env.user(t, "alice@x.com").LoginAttempts; got != 3 {
		t.Fatalf("expected 3 attempts, got %d", got)
	}

	if _, _, err := env.login("alice@x.com", "Password1!"); err != nil {
		t.Fatalf("login: %v", err)
	}
	u := env.user(t, "alice@x.com")
	if u.LoginAttempts != 0 || u.LockoutUntil != nil || u.LockoutReason != nil {
		t.Fatalf("expected clean lockout state, got attempts=%d until=%v", u.LoginAttempts, u.LockoutUntil)
	}
}

func TestLoginLocksAfterFiveFailures(t *testing.T) {
	env := newTestEnv(t)
	env.registerVerified(t, "alice", "alice@x.com", "Password1!")

	for i := 0; i < 5; i++ {
		_, _, err := env.login("alice@x.com", "WrongPass1!")
		if !errors.Is(err, authcore.ErrInvalidCredentials) {
			t.Fatalf("attempt %d: expected invalid credentials, got %v", i+1, err)
		}
	}

	u := env.user(t, "alice@x.com")
	if u.LockoutUntil == nil {
		t.Fatal("account not locked after 5 failures")
	}
	if want := env.clock.Now().Add(15 * time.Minute); !u.LockoutUntil.Equal(want) {
		t.Fatalf("expected lock until %v, got %v", want, u.LockoutUntil)
	}
	if u.LockoutReason == nil || *u.LockoutReason == "" {
		t.Fatal("lock reason missing")
	}

	_, jar, err := env.login("alice@x.com", "Password1!")
	var locked *authcore.LockedError
	if !errors.As(err, &locked) {
		t.Fatalf("expected LockedError, got %v", err)
	}
	if locked.Remaining != 15*time.Minute {
		t.Fatalf("expected 15m remaining, got %v", locked.Remaining)
	}
	if len(jar.cookies) != 0 {
		t.Fatal("locked login must not set a cookie")
	}
	if got := authcore.PublicMessage(err); got != "Account locked. Try again in 15 minutes." {
		t.Fatalf("unexpected public message %q", got)
	}
}

func TestLoginShortWrongPasswordsLockAccount(t *testing.T) {
	env := newTestEnv(t)
	env.registerVerified(t, "alice", "alice@x.com", "Password1!")

	for i := 0; i < 5; i++ {
		_, _, err := env.login("alice@x.com", "wrong")
		if !errors.Is(err, authcore.ErrInvalidCredentials) {
			t.Fatalf("attempt %d: expected invalid credentials, got %v", i+1, err)
		}
	}
	if got := env.user(t, "alice@x.com").LoginAttempts; got != 5 {
		t.Fatalf("expected 5 recorded attempts, got %d", got)
	}

	_, _, err := env.login("alice@x.com", "Password1!")
	var locked *authcore.LockedError
	if !errors.As(err, &locked) {
		t.Fatalf("expected LockedError on 6th login, got %v", err)
	}
}

func TestLoginShortPasswordIsInvalidCredentials(t *testing.T) {
	env := newTestEnv(t)
	env.registerVerified(t, "alice", "alice@x.com", "Password1!")

	_, _, errUnknown := env.login("nobody@x.com", "short")
	_, _, errKnown := env.login("alice@x.com", "short")
	requireErrorIs(t, errUnknown, authcore.ErrInvalidCredentials)
	requireErrorIs(t, errKnown, authcore.ErrInvalidCredentials)
	if errUnknown != errKnown {
		t.Fatalf("errors differ: %v vs %v", errUnknown, errKnown)
	}
}

func TestLoginOversizedPasswordRejectedBeforeStore(t *testing.T) {
	env := newTestEnv(t)

	_, _, err := env.login("alice@x.com", strings.Repeat("p", 257))
	var ve *authcore.ValidationError
	if !errors.As(err, &ve) || ve.Field != "password" {
		t.Fatalf("expected password validation error, got %v", err)
	}
	if env.store.lookupCount() != 0 {
		t.Fatal("oversized password reached the store")
	}
}

func TestLoginLockExpires(t *testing.T) {
	env := newTestEnv(t)
	env.registerVerified(t, "alice", "alice@x.com", "Password1!")

	for i := 0; i < 5; i++ {
		_, _, _ = env.login("alice@x.com", "WrongPass1!")
	}
	env.advance(15*time.Minute + time.Second)

	if _, _, err := env.login("alice@x.com", "Password1!"); err != nil {
		t.Fatalf("login after lock expiry: %v", err)
	}
	u := env.user(t, "alice@x.com")
	if u.LoginAttempts != 0 || u.LockoutUntil != nil {
		t.Fatalf("lock state not cleared: %+v", u)
	}
}

func TestLoginExpiredLockRestartsCount(t *testing.T) {
	env := newTestEnv(t)
	env.registerVerified(t, "alice", "alice@x.com", "Password1!")

	for i := 0; i < 5; i++ {
		_, _, _ = env.login("alice@x.com", "WrongPass1!")
	}
	env.advance(16 * time.Minute)

	_, _, err := env.login("alice@x.com", "WrongPass1!")
	requireErrorIs(t, err, authcore.ErrInvalidCredentials)
	u := env.user(t, "alice@x.com")
	if u.LoginAttempts != 1 || u.LockoutUntil != nil {
		t.Fatalf("expected fresh count of 1 and no lock, got attempts=%d until=%v", u.LoginAttempts, u.LockoutUntil)
	}
}

func TestLoginUnverifiedDoesNotResetAttempts(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "bob", "bob@x.com", "Password1!")

	_, _, _ = env.login("bob@x.com", "WrongPass1!")
	_, jar, err := env.login("bob@x.com", "Password1!")
	requireErrorIs(t, err, authcore.ErrEmailNotVerified)
	if len(jar.cookies) != 0 {
		t.Fatal("unverified login must not set a cookie")
	}
	if got := env.user(t, "bob@x.com").LoginAttempts; got != 1 {
		t.Fatalf("expected attempts to stay at 1, got %d", got)
	}
}

func TestLoginRateLimitedBeforeStore(t *testing.T) {
	env := newTestEnv(t)
	env.registerVerified(t, "alice", "alice@x.com", "Password1!")
	// Keep lockout out of the way.
	for i := 0; i < 10; i++ {
		if i%4 == 3 {
			if _, _, err := env.login("alice@x.com", "Password1!"); err != nil {
				t.Fatalf("attempt %d: %v", i+1, err)
			}
			continue
		}
		_, _, _ = env.login("alice@x.com", "WrongPass1!")
	}

	before := env.store.lookupCount()
	_, _, err := env.login("alice@x.com", "Password1!")
	var rl *authcore.RateLimitError
	if !errors.As(err, &rl) {
		t.Fatalf("expected RateLimitError, got %v", err)
	}
	if env.store.lookupCount() != before {
		t.Fatal("rate limited login reached the store")
	}

	env.advance(10*time.Minute + time.Second)
	if _, _, err := env.login("alice@x.com", "Password1!"); err != nil {
		t.Fatalf("login after window: %v", err)
	}
}

func TestLoginValidation(t *testing.T) {
	env := newTestEnv(t)

	_, _, err := env.login("bad", "Password1!")
	var ve *authcore.ValidationError
	if !errors.As(err, &ve) || ve.Field != "email" {
		t.Fatalf("expected email validation error, got %v", err)
	}
}

func TestLoginMetricsAndAudit(t *testing.T) {
	env := newTestEnv(t)
	env.registerVerified(t, "alice", "alice@x.com", "Password1!")

	_, _, _ = env.login("alice@x.com", "WrongPass1!")
	if _, _, err := env.login("alice@x.com", "Password1!"); err != nil {
		t.Fatalf("login: %v", err)
	}

	snap := env.engine.MetricsSnapshot()
	if snap.Counters[authcore.MetricLoginSuccess] != 1 || snap.Counters[authcore.MetricLoginFailure] != 1 {
		t.Fatalf("unexpected counters: %+v", snap.Counters)
	}
	if snap.Histograms[authcore.MetricLoginLatency].Count() != 2 {
		t.Fatalf("expected 2 login latency samples")
	}

	var sawSuccess, sawFailure bool
	for _, ev := range env.auditEvents() {
		switch ev.EventType {
		case "login_success":
			sawSuccess = ev.Success && ev.SessionID != ""
		case "login_failure":
			sawFailure = !ev.Success && ev.Error == "invalid_credentials" && ev.IP == "203.0.113.9"
		}
	}
	if !sawSuccess || !sawFailure {
		t.Fatalf("missing audit events: success=%v failure=%v", sawSuccess, sawFailure)
	}
}
