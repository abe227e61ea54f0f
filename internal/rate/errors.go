package rate

import "errors"

var (
	// ErrRedisUnavailable reports that the counter store could not be reached
	// or returned a malformed reply.
	ErrRedisUnavailable = errors.New("redis unavailable")
	// ErrEmptyKey is returned when a limiter is asked to evaluate an empty key.
	ErrEmptyKey = errors.New("rate: empty key")
	// ErrInvalidPolicy is returned for non-positive limits or windows.
	ErrInvalidPolicy = errors.New("rate: invalid policy")
)
