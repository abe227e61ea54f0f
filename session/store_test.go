package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

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

func newSessionStoreTest(t *testing.T) (*Store, *testClock, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	clock := &testClock{now: time.Unix(1_700_000_000, 0)}
	return NewStore(rdb, "as:", 30*24*time.Hour).WithClock(clock.Now), clock, mr
}

func TestCreateAndValidate(t *testing.T) {
	store, _, mr := newSessionStoreTest(t)
	ctx := context.Background()

	sess, err := store.Create(ctx, "user-1")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if sess.ID == "" || sess.UserID != "user-1" {
		t.Fatalf("unexpected session: %+v", sess)
	}
	if !mr.Exists("as:s:" + sess.ID) {
		t.Fatal("session key missing")
	}
	if ok, _ := mr.SIsMember("as:u:user-1", sess.ID); !ok {
		t.Fatal("session not indexed under user")
	}

	got, err := store.Validate(ctx, sess.ID)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if got.UserID != "user-1" || got.Fresh {
		t.Fatalf("unexpected validated session: %+v", got)
	}
}

func TestValidateRenewsPastHalfLife(t *testing.T) {
	store, clock, _ := newSessionStoreTest(t)
	ctx := context.Background()

	sess, _ := store.Create(ctx, "user-1")

	clock.Advance(14 * 24 * time.Hour)
	got, err := store.Validate(ctx, sess.ID)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if got.Fresh {
		t.Fatal("session with more than half its life left must not renew")
	}

	clock.Advance(2 * 24 * time.Hour)
	got, err = store.Validate(ctx, sess.ID)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if !got.Fresh {
		t.Fatal("session past half-life should renew")
	}
	want := clock.Now().Add(30 * 24 * time.Hour)
	if !got.ExpiresAt.Equal(want) {
		t.Fatalf("expires=%s want %s", got.ExpiresAt, want)
	}

	again, _ := store.Validate(ctx, sess.ID)
	if again.Fresh {
		t.Fatal("renewed session should not renew again immediately")
	}
}

func TestValidateExpired(t *testing.T) {
	store, clock, mr := newSessionStoreTest(t)
	ctx := context.Background()

	sess, _ := store.Create(ctx, "user-1")
	clock.Advance(31 * 24 * time.Hour)

	if _, err := store.Validate(ctx, sess.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
	if mr.Exists("as:s:" + sess.ID) {
		t.Fatal("expired session should be removed")
	}
}

func TestValidateUnknownAndMalformed(t *testing.T) {
	store, _, _ := newSessionStoreTest(t)
	ctx := context.Background()

	if _, err := store.Validate(ctx, "not-a-session"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("malformed id: %v", err)
	}
	if _, err := store.Validate(ctx, "AAAAAAAAAAAAAAAAAAAAAAAAAAA"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("unknown id: %v", err)
	}
}

func TestDeleteIsIdempotent(t *testing.T) {
	store, _, mr := newSessionStoreTest(t)
	ctx := context.Background()

	sess, _ := store.Create(ctx, "user-1")
	if err := store.Delete(ctx, sess.ID); err != nil {
		t.Fatalf("first delete: %v", err)
	}
	if err := store.Delete(ctx, sess.ID); err != nil {
		t.Fatalf("second delete: %v", err)
	}
	if mr.Exists("as:u:user-1") {
		t.Fatal("empty user index should be removed")
	}
	if _, err := store.Validate(ctx, sess.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("deleted session still valid: %v", err)
	}
}

func TestDeleteAllForUser(t *testing.T) {
	store, _, _ := newSessionStoreTest(t)
	ctx := context.Background()

	a, _ := store.Create(ctx, "user-1")
	b, _ := store.Create(ctx, "user-1")
	other, _ := store.Create(ctx, "user-2")

	n, err := store.DeleteAllForUser(ctx, "user-1")
	if err != nil {
		t.Fatalf("delete all: %v", err)
	}
	if n != 2 {
		t.Fatalf("deleted=%d want 2", n)
	}

	for _, id := range []string{a.ID, b.ID} {
		if _, err := store.Validate(ctx, id); !errors.Is(err, ErrSessionNotFound) {
			t.Fatalf("session %s survived: %v", id, err)
		}
	}
	if _, err := store.Validate(ctx, other.ID); err != nil {
		t.Fatalf("other user's session revoked: %v", err)
	}

	n, err = store.DeleteAllForUser(ctx, "nobody")
	if err != nil || n != 0 {
		t.Fatalf("empty delete: n=%d err=%v", n, err)
	}
}

func TestRedisDown(t *testing.T) {
	store, _, mr := newSessionStoreTest(t)
	mr.Close()

	if _, err := store.Create(context.Background(), "user-1"); !errors.Is(err, ErrRedisUnavailable) {
		t.Fatalf("expected ErrRedisUnavailable, got %v", err)
	}
}

func TestEncodeDecode(t *testing.T) {
	in := &Session{
		UserID:    "01HZX3K1Q6R2J8Y5V7T9W0N4MB",
		CreatedAt: time.UnixMilli(1_700_000_000_123),
		ExpiresAt: time.UnixMilli(1_702_592_000_456),
	}
	data, err := Encode(in)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	out, err := Decode(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.UserID != in.UserID || !out.CreatedAt.Equal(in.CreatedAt) || !out.ExpiresAt.Equal(in.ExpiresAt) {
		t.Fatalf("mismatch: %+v vs %+v", out, in)
	}

	if _, err := Decode(data[:len(data)-1]); !errors.Is(err, ErrCorruptSession) {
		t.Fatalf("truncated blob: %v", err)
	}
}
