// Package middleware adapts authcore session cookies to net/http.
//
// # Guards
//
//   - [RequireSession] resolves the session cookie through
//     Engine.ValidateSession and stores the result in the request context.
//   - [SessionFromContext] reads it back in downstream handlers.
//
// # Cookies
//
// [ResponseSink] turns the engine's transport-neutral cookies into
// Set-Cookie headers, so Login, ValidateSession and Logout can be called
// from any handler.
//
// This package translates HTTP semantics into Engine calls. It does not
// touch Redis or the credential store itself.
package middleware
