// Package limiters provides the authentication policies built on top of
// the internal/rate primitive.
//
// # Components
//
//   - [FlowLimiter] applies a per-flow identifier + IP sliding-window budget.
//   - [LockoutPolicy] classifies stored account locks and decides when a
//     failed login locks the account.
//
// [FlowLimiter] is nil-safe: a nil receiver admits every request.
//
// # What this package must NOT do
//
//   - Import authcore or any sibling internal package except internal/rate.
//   - Persist lockout state; the login flow owns that write.
package limiters
