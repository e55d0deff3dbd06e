package session

import "time"

// Session is the server-side record tying an identity to a continuous
// authenticated period. The CSRF secret is allocated at creation and never
// changes for the session's lifetime; only LastActivity mutates afterwards.
type Session struct {
	SessionID  string `json:"sid"`
	UserID     string `json:"uid"`
	Role       string `json:"role,omitempty"`
	Plan       string `json:"plan,omitempty"`
	CSRFSecret string `json:"csrf"`
	Origin     Origin `json:"origin"`
	Active     bool   `json:"active"`

	CreatedAt    int64 `json:"cat"`
	LastActivity int64 `json:"lat"`
	ExpiresAt    int64 `json:"exp"`
}

// Expired reports whether the session's stored expiry has elapsed.
func (s *Session) Expired(now time.Time) bool {
	return now.Unix() > s.ExpiresAt
}

// Info is the redacted session view returned to session-listing endpoints.
// It never carries the CSRF secret.
type Info struct {
	SessionID    string
	CreatedAt    time.Time
	LastActivity time.Time
	ExpiresAt    time.Time
	IP           string
	Platform     string
	Browser      string
}

// InfoOf redacts a session for external listing.
func InfoOf(s *Session) Info {
	return Info{
		SessionID:    s.SessionID,
		CreatedAt:    time.Unix(s.CreatedAt, 0),
		LastActivity: time.Unix(s.LastActivity, 0),
		ExpiresAt:    time.Unix(s.ExpiresAt, 0),
		IP:           s.Origin.IP,
		Platform:     s.Origin.Platform,
		Browser:      s.Origin.Browser,
	}
}
