package httpapi

import (
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/MrEthical07/authcore"
	"github.com/MrEthical07/authcore/internal/logx"
)

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

// WriteJSON writes v with the given status. Responses are never cached.
func WriteJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Pragma", "no-cache")
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// statusFor maps an engine error to an HTTP status and a stable code.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, authcore.ErrValidation):
		return http.StatusBadRequest, "validation_error"
	case errors.Is(err, authcore.ErrConflict):
		return http.StatusConflict, "conflict"
	case errors.Is(err, authcore.ErrInvalidCredentials):
		return http.StatusUnauthorized, "invalid_credentials"
	case errors.Is(err, authcore.ErrAccountLocked):
		return http.StatusLocked, "account_locked"
	case errors.Is(err, authcore.ErrEmailNotVerified):
		return http.StatusForbidden, "email_not_verified"
	case errors.Is(err, authcore.ErrInvalidOrExpired):
		return http.StatusBadRequest, "invalid_otp"
	case errors.Is(err, authcore.ErrInvalidOrExpiredToken):
		return http.StatusBadRequest, "invalid_token"
	case errors.Is(err, authcore.ErrRateLimited):
		return http.StatusTooManyRequests, "rate_limited"
	case errors.Is(err, authcore.ErrResendCooldown):
		return http.StatusTooManyRequests, "cooldown"
	case errors.Is(err, authcore.ErrSessionNotFound), errors.Is(err, authcore.ErrUnauthorized):
		return http.StatusUnauthorized, "unauthorized"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

// writeError renders err. Retry-After is set, in whole seconds rounded up,
// for rate limits, cooldowns and locks.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusFor(err)
	if status == http.StatusInternalServerError {
		logx.FromContext(r.Context()).ErrorContext(r.Context(), "request failed", "error", err)
	}
	if d, ok := authcore.RetryAfter(err); ok {
		w.Header().Set("Retry-After", strconv.Itoa(retrySeconds(d)))
	}

	body := errorBody{Error: code, Message: authcore.PublicMessage(err)}
	var ve *authcore.ValidationError
	if errors.As(err, &ve) {
		body.Field = ve.Field
	}
	WriteJSON(w, status, body)
}

func retrySeconds(d time.Duration) int {
	return max(int(math.Ceil(d.Seconds())), 1)
}
