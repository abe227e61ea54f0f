// Package rate provides the Redis-backed sliding-window primitive used by
// every throttled authentication flow.
//
// # Window semantics
//
// Each key is a sorted set whose scores are the unix-millisecond timestamps
// of admitted hits. A single Lua script prunes entries at or before
// now-window, counts the remainder, and adds the current hit only when the
// count is below the limit. Denied hits are not recorded.
//
// The key TTL is refreshed to the window on every admitted hit so idle keys
// disappear on their own.
//
// # Failure mode
//
// Any store error is reported as [ErrRedisUnavailable]. The limiter never
// decides on its own to let traffic through; callers fail closed.
//
// # What this package must NOT do
//
//   - Implement domain-specific policies (those live in internal/limiters).
//   - Be imported outside the authcore module.
package rate
