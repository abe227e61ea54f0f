// Package internal holds helpers private to authcore, chiefly the secure
// random generators for session ids, user ids, OTPs and reset tokens.
//
// # Sub-packages
//
//   - audit: async event dispatch (Dispatcher + Sink implementations)
//   - limiters: per-flow rate limits and the account lockout policy
//   - rate: Redis sliding-window primitive
//   - httpapi: JSON HTTP transport over the engine
//   - housekeeping: scheduled purge of expired verification and reset rows
//   - app: server configuration and wiring
//   - logx: slog construction helpers
//   - security: configuration posture report
//
// # What this package must NOT do
//
//   - Export types that appear in the public authcore API.
//   - Be imported by any package outside the authcore module.
package internal
