// Package audit buffers security events from the authentication flows and
// hands them to a sink on a background goroutine.
//
//   - [Event]: one record with id, timestamp, type, user, session, IP and metadata.
//   - [Sink]: where events end up (channel, JSON lines, slog, no-op).
//   - [Dispatcher]: bounded queue between the flows and the sink. Under
//     DropIfFull ordinary events are discarded on overflow while events
//     marked critical still wait for space.
//
// The engine decides which events exist and which are critical. This
// package must not import authcore or do I/O beyond what a Sink does.
package audit
