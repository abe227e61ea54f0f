package middleware

import (
	"net/http"

	"github.com/MrEthical07/authcore"
	"github.com/MrEthical07/authcore/session"
)

type responseSink struct {
	w http.ResponseWriter
}

// ResponseSink writes engine cookies as Set-Cookie headers on w.
func ResponseSink(w http.ResponseWriter) authcore.CookieSink {
	return responseSink{w: w}
}

func (s responseSink) SetCookie(c authcore.Cookie) {
	http.SetCookie(s.w, HTTPCookie(c))
}

// HTTPCookie converts an engine cookie to its net/http form.
func HTTPCookie(c authcore.Cookie) *http.Cookie {
	return &http.Cookie{
		Name:     c.Name,
		Value:    c.Value,
		Path:     c.Attributes.Path,
		Domain:   c.Attributes.Domain,
		MaxAge:   c.Attributes.MaxAge,
		Secure:   c.Attributes.Secure,
		HttpOnly: c.Attributes.HTTPOnly,
		SameSite: httpSameSite(c.Attributes.SameSite),
	}
}

func httpSameSite(s session.SameSite) http.SameSite {
	switch s {
	case session.SameSiteStrict:
		return http.SameSiteStrictMode
	case session.SameSiteNone:
		return http.SameSiteNoneMode
	case session.SameSiteLax:
		return http.SameSiteLaxMode
	default:
		return http.SameSiteDefaultMode
	}
}
