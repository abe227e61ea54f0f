package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/authcore/internal"
	"github.com/redis/go-redis/v9"
)

var (
	// ErrRedisUnavailable reports a failed session store round trip.
	ErrRedisUnavailable = errors.New("redis unavailable")
	// ErrSessionNotFound is returned for unknown, expired or malformed session ids.
	ErrSessionNotFound = errors.New("session not found")
)

// deleteSessionScript removes the session blob and its entry in the user
// index in one step. Returns 1 when the session existed.
var deleteSessionScript = redis.NewScript(`
local existed = redis.call("DEL", KEYS[1])
redis.call("SREM", KEYS[2], ARGV[1])
if redis.call("SCARD", KEYS[2]) == 0 then
  redis.call("DEL", KEYS[2])
end
return existed
`)

// Store is a Redis-backed session store with sliding renewal.
//
// Each session lives under <prefix>s:<id> with a TTL equal to its remaining
// lifetime. <prefix>u:<userID> is a set of the user's session ids so all of
// them can be revoked at once.
type Store struct {
	redis    redis.UniversalClient
	prefix   string
	lifetime time.Duration
	now      func() time.Time
}

// NewStore creates a session [Store]. lifetime is the full session length;
// a session is renewed once less than half of it remains.
func NewStore(rdb redis.UniversalClient, prefix string, lifetime time.Duration) *Store {
	return &Store{
		redis:    rdb,
		prefix:   prefix,
		lifetime: lifetime,
		now:      time.Now,
	}
}

// WithClock replaces the store clock. Intended for tests.
func (s *Store) WithClock(now func() time.Time) *Store {
	if now != nil {
		s.now = now
	}
	return s
}

// Lifetime returns the configured session lifetime.
func (s *Store) Lifetime() time.Duration {
	return s.lifetime
}

func (s *Store) key(sessionID string) string {
	return s.prefix + "s:" + sessionID
}

func (s *Store) userKey(userID string) string {
	return s.prefix + "u:" + userID
}

// Create opens a new session for userID.
//
//	Performance: one MULTI/EXEC (SET + SADD + EXPIRE).
func (s *Store) Create(ctx context.Context, userID string) (*Session, error) {
	sid, err := internal.NewSessionID()
	if err != nil {
		return nil, err
	}

	now := s.now()
	sess := &Session{
		ID:        sid.String(),
		UserID:    userID,
		CreatedAt: now,
		ExpiresAt: now.Add(s.lifetime),
	}

	data, err := Encode(sess)
	if err != nil {
		return nil, err
	}

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.key(sess.ID), data, s.lifetime)
		pipe.SAdd(ctx, s.userKey(userID), sess.ID)
		pipe.Expire(ctx, s.userKey(userID), s.lifetime)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	return sess, nil
}

// Get loads a session without renewing it.
func (s *Store) Get(ctx context.Context, sessionID string) (*Session, error) {
	if _, err := internal.ParseSessionID(sessionID); err != nil {
		return nil, ErrSessionNotFound
	}

	data, err := s.redis.Get(ctx, s.key(sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	sess, err := Decode(data)
	if err != nil {
		return nil, err
	}
	sess.ID = sessionID

	if sess.Expired(s.now()) {
		if err := s.delete(ctx, sess); err != nil {
			return nil, err
		}
		return nil, ErrSessionNotFound
	}

	return sess, nil
}

// Validate loads a session and extends it when less than half of the
// lifetime remains. An extended session comes back with Fresh set.
//
//	Performance: 1 GET, plus SET XX + EXPIRE when renewed.
func (s *Store) Validate(ctx context.Context, sessionID string) (*Session, error) {
	sess, err := s.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if sess.ExpiresAt.Sub(now) >= s.lifetime/2 {
		return sess, nil
	}

	sess.ExpiresAt = now.Add(s.lifetime)
	data, err := Encode(sess)
	if err != nil {
		return nil, err
	}

	var renewed *redis.StatusCmd
	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		renewed = pipe.SetArgs(ctx, s.key(sess.ID), data, redis.SetArgs{Mode: "XX", TTL: s.lifetime})
		pipe.Expire(ctx, s.userKey(sess.UserID), s.lifetime)
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if errors.Is(renewed.Err(), redis.Nil) {
		// Deleted between the read and the renewal.
		return nil, ErrSessionNotFound
	}

	sess.Fresh = true
	return sess, nil
}

// Delete revokes one session. Unknown ids are not an error.
func (s *Store) Delete(ctx context.Context, sessionID string) error {
	sess, err := s.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return nil
		}
		if !errors.Is(err, ErrCorruptSession) {
			return err
		}
		if err := s.redis.Del(ctx, s.key(sessionID)).Err(); err != nil {
			return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
		return nil
	}
	return s.delete(ctx, sess)
}

func (s *Store) delete(ctx context.Context, sess *Session) error {
	err := deleteSessionScript.Run(ctx, s.redis, []string{s.key(sess.ID), s.userKey(sess.UserID)}, sess.ID).Err()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// DeleteAllForUser revokes every session indexed under userID.
//
// The index read and the deletes are separate round trips; a session
// created in between survives until its own expiry.
func (s *Store) DeleteAllForUser(ctx context.Context, userID string) (int, error) {
	userKey := s.userKey(userID)

	ids, err := s.redis.SMembers(ctx, userKey).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	keys := make([]string, 0, len(ids)+1)
	for _, id := range ids {
		keys = append(keys, s.key(id))
	}
	keys = append(keys, userKey)

	var deleted *redis.IntCmd
	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		deleted = pipe.Del(ctx, keys...)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	n := int(deleted.Val())
	if n > 0 && len(ids) > 0 {
		// The index key itself is counted by DEL.
		n--
	}
	return n, nil
}

// ActiveSessionIDs returns the ids currently indexed for userID. Entries
// whose blob already expired may still be listed until the next cleanup.
func (s *Store) ActiveSessionIDs(ctx context.Context, userID string) ([]string, error) {
	ids, err := s.redis.SMembers(ctx, s.userKey(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return ids, nil
}
