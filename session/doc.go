// Package session provides opaque, Redis-backed login sessions and the
// cookies that carry them.
//
// # Lifecycle
//
// [Store.Create] stores a compact binary blob under a random id.
// [Store.Validate] reads it back and, once less than half the lifetime
// remains, pushes the expiry out by a full lifetime and marks the session
// Fresh so the caller re-issues the cookie. Sessions are revoked one at a
// time with [Store.Delete] or per user with [Store.DeleteAllForUser].
//
// # Cookies
//
// [CookieFactory] shapes session and blank cookies. Cookies are always
// HttpOnly; Secure, SameSite and persistence come from [CookieConfig].
//
// # What this package must NOT do
//
//   - Import authcore (no upward imports).
//   - Decide whether a user may log in.
//   - Put anything but the session id in a cookie.
package session
