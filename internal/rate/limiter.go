package rate

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// slidingWindowScript prunes entries that fell out of the window, counts
// what remains, and records the current hit only when it fits. Denied hits
// leave no trace so a client hammering a closed window cannot extend it.
//
// KEYS[1] = log key
// ARGV[1] = now (unix ms), ARGV[2] = cutoff (now - window, unix ms),
// ARGV[3] = limit, ARGV[4] = window (ms), ARGV[5] = member,
// ARGV[6] = record flag ("1" records, "0" peeks)
//
// Returns {allowed, count, resetAtMs}.
var slidingWindowScript = redis.NewScript(`
local key = KEYS[1]
local limit = tonumber(ARGV[3])
local window = tonumber(ARGV[4])

redis.call("ZREMRANGEBYSCORE", key, "-inf", ARGV[2])
local count = redis.call("ZCARD", key)

local allowed = 0
if count < limit then
  allowed = 1
  if ARGV[6] == "1" then
    redis.call("ZADD", key, ARGV[1], ARGV[5])
    redis.call("PEXPIRE", key, ARGV[4])
    count = count + 1
  end
end

local resetAt = tonumber(ARGV[1]) + window
local oldest = redis.call("ZRANGE", key, 0, 0, "WITHSCORES")
if oldest[2] then
  resetAt = tonumber(oldest[2]) + window
end

return {allowed, count, resetAt}
`)

// Decision is the outcome of a single limiter evaluation.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// RetryAfter reports how long the caller should wait before the window
// admits another hit. Zero when the decision was allowed.
func (d Decision) RetryAfter(now time.Time) time.Duration {
	if d.Allowed || !d.ResetAt.After(now) {
		return 0
	}
	return d.ResetAt.Sub(now)
}

// Limiter is a sliding-window log limiter backed by Redis sorted sets.
// One sorted set per key holds the timestamps of admitted hits.
type Limiter struct {
	redis redis.UniversalClient
	now   func() time.Time
}

// New creates a rate [Limiter] backed by the given Redis client.
func New(redisClient redis.UniversalClient) *Limiter {
	return &Limiter{
		redis: redisClient,
		now:   time.Now,
	}
}

// WithClock replaces the limiter clock. Intended for tests.
func (l *Limiter) WithClock(now func() time.Time) *Limiter {
	if now != nil {
		l.now = now
	}
	return l
}

// Allow records a hit against key when fewer than limit hits were admitted
// during the trailing window. Store failures surface as
// [ErrRedisUnavailable]; callers must treat them as a denial.
func (l *Limiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (Decision, error) {
	return l.eval(ctx, key, limit, window, true)
}

// Peek evaluates key like [Limiter.Allow] without recording a hit.
func (l *Limiter) Peek(ctx context.Context, key string, limit int, window time.Duration) (Decision, error) {
	return l.eval(ctx, key, limit, window, false)
}

// Reset forgets every hit recorded for key.
func (l *Limiter) Reset(ctx context.Context, key string) error {
	if err := l.redis.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

func (l *Limiter) eval(ctx context.Context, key string, limit int, window time.Duration, record bool) (Decision, error) {
	if key == "" {
		return Decision{}, ErrEmptyKey
	}
	if limit <= 0 || window <= 0 {
		return Decision{}, fmt.Errorf("%w: limit=%d window=%s", ErrInvalidPolicy, limit, window)
	}

	now := l.now()
	nowMS := now.UnixMilli()

	member, err := newMember(now)
	if err != nil {
		return Decision{}, err
	}

	flag := "0"
	if record {
		flag = "1"
	}

	res, err := slidingWindowScript.Run(ctx, l.redis, []string{key},
		nowMS, nowMS-window.Milliseconds(), limit, window.Milliseconds(), member, flag).Int64Slice()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Decision{}, fmt.Errorf("%w: empty script reply", ErrRedisUnavailable)
		}
		return Decision{}, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if len(res) != 3 {
		return Decision{}, fmt.Errorf("%w: unexpected script reply %v", ErrRedisUnavailable, res)
	}

	count := int(res[1])
	remaining := limit - count
	if remaining < 0 {
		remaining = 0
	}

	return Decision{
		Allowed:   res[0] == 1,
		Limit:     limit,
		Remaining: remaining,
		ResetAt:   time.UnixMilli(res[2]),
	}, nil
}

// newMember builds a unique sorted-set member so concurrent hits in the
// same millisecond are all kept.
func newMember(now time.Time) (string, error) {
	var suffix [6]byte
	if _, err := rand.Read(suffix[:]); err != nil {
		return "", fmt.Errorf("rate: member entropy: %w", err)
	}
	return strconv.FormatInt(now.UnixNano(), 10) + "-" + hex.EncodeToString(suffix[:]), nil
}
