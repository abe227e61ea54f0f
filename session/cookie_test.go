package session

import (
	"testing"
	"time"
)

func TestCookieFactoryDefaults(t *testing.T) {
	f := NewCookieFactory(CookieConfig{Secure: true})
	now := time.Unix(1_700_000_000, 0)

	c := f.Session(&Session{ID: "abc", ExpiresAt: now.Add(time.Hour)}, now)
	if c.Name != "auth_session" || c.Value != "abc" {
		t.Fatalf("unexpected cookie: %+v", c)
	}
	a := c.Attributes
	if !a.HTTPOnly || !a.Secure || a.SameSite != SameSiteLax || a.Path != "/" {
		t.Fatalf("unexpected attributes: %+v", a)
	}
	if a.MaxAge != 0 {
		t.Fatalf("non-persistent cookie must not carry Max-Age, got %d", a.MaxAge)
	}
}

func TestCookieFactoryPersistent(t *testing.T) {
	f := NewCookieFactory(CookieConfig{Persistent: true})
	now := time.Unix(1_700_000_000, 0)

	c := f.Session(&Session{ID: "abc", ExpiresAt: now.Add(2 * time.Hour)}, now)
	if c.Attributes.MaxAge != 7200 {
		t.Fatalf("max-age=%d", c.Attributes.MaxAge)
	}
}

func TestCookieFactoryBlank(t *testing.T) {
	f := NewCookieFactory(CookieConfig{Name: "sid", SameSite: "Strict"})
	c := f.Blank()
	if c.Name != "sid" || c.Value != "" || c.Attributes.MaxAge >= 0 {
		t.Fatalf("unexpected blank cookie: %+v", c)
	}
	if c.Attributes.SameSite != SameSiteStrict || !c.Attributes.HTTPOnly {
		t.Fatalf("unexpected attributes: %+v", c.Attributes)
	}
}

func TestCookieFactorySameSiteNoneForcesSecure(t *testing.T) {
	f := NewCookieFactory(CookieConfig{SameSite: SameSiteNone})
	if !f.Blank().Attributes.Secure {
		t.Fatal("SameSite=None requires Secure")
	}
}
