// Package authcore is the account-security core of a web application:
// registration, login with Redis-backed sessions, email verification by
// one-time code, password reset by emailed token, per-flow sliding-window
// rate limiting and timed account lockout.
//
// The package is designed for concurrent server workloads: Engine methods are
// safe to call from multiple goroutines after initialization through
// [Builder.Build]. Several engine replicas may share one Redis and one
// [CredentialStore]; every race between them is settled by the store's
// unique indexes and atomic increments or by Redis Lua scripts, never by
// in-process locks.
//
// # Architecture boundaries
//
// authcore is the public surface. It exposes [Engine], [Builder], [Config],
// the collaborator interfaces ([CredentialStore], [PasswordHasher],
// [EmailSender], [CookieSink]) and the error taxonomy in errors.go. Rate
// limiting, lockout, random value generation and audit dispatch live under
// internal/. Shipped collaborators live in sub-packages: store/sqlite,
// store/postgres and store/memory, mailer, password and session.
//
// # What this package must NOT do
//
//   - Reveal whether an email is registered through Login, ResendOTP or
//     ForgotPassword responses.
//   - Log raw passwords, OTPs, reset tokens or session ids.
//   - Admit a request when the rate-limit store is unreachable.
//   - Return collaborator error text to callers; see [PublicMessage].
package authcore
