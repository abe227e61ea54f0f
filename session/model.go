package session

import "time"

// Session is a server-side login session. Only ID travels to the client.
type Session struct {
	ID        string
	UserID    string
	CreatedAt time.Time
	ExpiresAt time.Time

	// Fresh is set by [Store.Validate] when the expiry was just extended and
	// the client cookie must be re-issued.
	Fresh bool
}

// Expired reports whether the session has passed its expiry at now.
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}
