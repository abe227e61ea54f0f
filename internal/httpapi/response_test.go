package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/MrEthical07/authcore"
)

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{&authcore.ValidationError{Field: "email", Message: "Invalid email address"}, http.StatusBadRequest, "validation_error"},
		{&authcore.ConflictError{Field: "username"}, http.StatusConflict, "conflict"},
		{authcore.ErrInvalidCredentials, http.StatusUnauthorized, "invalid_credentials"},
		{&authcore.LockedError{Remaining: time.Minute}, http.StatusLocked, "account_locked"},
		{authcore.ErrEmailNotVerified, http.StatusForbidden, "email_not_verified"},
		{authcore.ErrInvalidOrExpired, http.StatusBadRequest, "invalid_otp"},
		{authcore.ErrInvalidOrExpiredToken, http.StatusBadRequest, "invalid_token"},
		{&authcore.RateLimitError{RetryAfter: time.Second}, http.StatusTooManyRequests, "rate_limited"},
		{&authcore.CooldownError{RetryAfter: time.Second}, http.StatusTooManyRequests, "cooldown"},
		{authcore.ErrSessionNotFound, http.StatusUnauthorized, "unauthorized"},
		{authcore.ErrUnauthorized, http.StatusUnauthorized, "unauthorized"},
		{&authcore.InternalError{Op: "login", Err: errors.New("db down")}, http.StatusInternalServerError, "internal_error"},
		{errors.New("surprise"), http.StatusInternalServerError, "internal_error"},
	}
	for _, tc := range cases {
		t.Run(tc.code+"/"+tc.err.Error(), func(t *testing.T) {
			status, code := statusFor(tc.err)
			require.Equal(t, tc.status, status)
			require.Equal(t, tc.code, code)
		})
	}
}

func TestWriteErrorHidesInternalCause(t *testing.T) {
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/login", nil)
	writeError(rr, req, &authcore.InternalError{Op: "login", Err: errors.New("pq: password authentication failed")})

	require.Equal(t, http.StatusInternalServerError, rr.Code)
	require.NotContains(t, rr.Body.String(), "pq:")
	require.Equal(t, "no-store", rr.Header().Get("Cache-Control"))
}

func TestWriteErrorRetryAfterRoundsUp(t *testing.T) {
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/resend-otp", nil)
	writeError(rr, req, &authcore.CooldownError{RetryAfter: 41500 * time.Millisecond})
	require.Equal(t, "42", rr.Header().Get("Retry-After"))

	rr = httptest.NewRecorder()
	writeError(rr, req, fmt.Errorf("wrapped: %w", &authcore.RateLimitError{RetryAfter: 10 * time.Millisecond}))
	require.Equal(t, "1", rr.Header().Get("Retry-After"))
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.168.1.1:12345"
	require.Equal(t, "192.168.1.1", ClientIP(req, true))

	req.Header.Set("X-Real-IP", "203.0.113.2")
	require.Equal(t, "203.0.113.2", ClientIP(req, true))

	req.Header.Set("X-Forwarded-For", "203.0.113.1, 192.168.1.1")
	require.Equal(t, "203.0.113.1", ClientIP(req, true))

	require.Equal(t, "192.168.1.1", ClientIP(req, false), "headers ignored without a trusted proxy")
}
