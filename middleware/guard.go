package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/MrEthical07/authcore"
)

type sessionContextKey struct{}

// ErrorWriter renders a rejected request.
type ErrorWriter func(w http.ResponseWriter, r *http.Request, err error)

// SessionFromContext returns the session resolved by RequireSession.
func SessionFromContext(ctx context.Context) (*authcore.SessionResult, bool) {
	res, ok := ctx.Value(sessionContextKey{}).(*authcore.SessionResult)
	return res, ok
}

// SessionCookie returns the raw session id sent with r, or "".
func SessionCookie(engine *authcore.Engine, r *http.Request) string {
	c, err := r.Cookie(engine.CookieName())
	if err != nil {
		return ""
	}
	return c.Value
}

// RequireSession rejects requests without a live session. Renewed and
// cleared cookies are written to the response before next runs. onError
// may be nil, in which case a plain 401 or 500 is written.
func RequireSession(engine *authcore.Engine, onError ErrorWriter) func(http.Handler) http.Handler {
	if onError == nil {
		onError = plainError
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				onError(w, r, authcore.ErrUnauthorized)
				return
			}

			res, err := engine.ValidateSession(r.Context(), SessionCookie(engine, r), ResponseSink(w))
			if err != nil {
				onError(w, r, err)
				return
			}

			ctx := context.WithValue(r.Context(), sessionContextKey{}, res)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func plainError(w http.ResponseWriter, _ *http.Request, err error) {
	if errors.Is(err, authcore.ErrSessionNotFound) || errors.Is(err, authcore.ErrUnauthorized) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
}
