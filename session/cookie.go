package session

import (
	"strings"
	"time"
)

// SameSite mirrors the cookie SameSite attribute.
type SameSite string

const (
	SameSiteLax    SameSite = "lax"
	SameSiteStrict SameSite = "strict"
	SameSiteNone   SameSite = "none"
)

// CookieConfig controls how session cookies are shaped.
type CookieConfig struct {
	Name     string
	Secure   bool
	SameSite SameSite
	Path     string
	Domain   string
	// Persistent adds a Max-Age matching the session expiry. When false the
	// cookie lives until the browser closes.
	Persistent bool
}

// Attributes are the cookie attributes handed to the transport.
//
// MaxAge follows net/http: zero omits the attribute, a negative value
// expires the cookie immediately.
type Attributes struct {
	Secure   bool
	HTTPOnly bool
	SameSite SameSite
	Path     string
	Domain   string
	MaxAge   int
}

// Cookie is a transport-neutral Set-Cookie instruction.
type Cookie struct {
	Name       string
	Value      string
	Attributes Attributes
}

// Sink receives cookies produced by authentication flows.
type Sink interface {
	SetCookie(Cookie)
}

// CookieFactory builds session and blank cookies from one [CookieConfig].
type CookieFactory struct {
	config CookieConfig
}

// NewCookieFactory normalizes cfg and returns a factory.
func NewCookieFactory(cfg CookieConfig) CookieFactory {
	if cfg.Name == "" {
		cfg.Name = "auth_session"
	}
	if cfg.Path == "" {
		cfg.Path = "/"
	}
	cfg.SameSite = SameSite(strings.ToLower(string(cfg.SameSite)))
	if cfg.SameSite == "" {
		cfg.SameSite = SameSiteLax
	}
	// Browsers drop SameSite=None cookies without Secure.
	if cfg.SameSite == SameSiteNone {
		cfg.Secure = true
	}
	return CookieFactory{config: cfg}
}

// Name returns the cookie name.
func (f CookieFactory) Name() string {
	return f.config.Name
}

// Session returns the cookie carrying sess.ID.
func (f CookieFactory) Session(sess *Session, now time.Time) Cookie {
	attrs := f.base()
	if f.config.Persistent {
		if left := int(sess.ExpiresAt.Sub(now) / time.Second); left > 0 {
			attrs.MaxAge = left
		}
	}
	return Cookie{Name: f.config.Name, Value: sess.ID, Attributes: attrs}
}

// Blank returns a cookie that clears the session cookie on the client.
func (f CookieFactory) Blank() Cookie {
	attrs := f.base()
	attrs.MaxAge = -1
	return Cookie{Name: f.config.Name, Value: "", Attributes: attrs}
}

func (f CookieFactory) base() Attributes {
	return Attributes{
		Secure:   f.config.Secure,
		HTTPOnly: true,
		SameSite: f.config.SameSite,
		Path:     f.config.Path,
		Domain:   f.config.Domain,
	}
}
