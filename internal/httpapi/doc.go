// Package httpapi is the JSON HTTP transport over an authcore.Engine.
//
// Handlers decode a request, attach the client IP to the context, call one
// engine flow and translate the result. Session cookies reach the browser
// through middleware.ResponseSink, and GET /session sits behind
// middleware.RequireSession. Engine errors map to
// status codes in writeError; the body never carries more than
// authcore.PublicMessage.
//
// # What this package must NOT do
//
//   - Make authentication decisions. The engine owns every rule.
//   - Log request bodies.
package httpapi
