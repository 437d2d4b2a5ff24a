package domain

import "time"

// Status is the resolved state of a session for a given (account, session id) pair.
type Status int

const (
	// StatusActive means the row exists, matches, and is unexpired.
	StatusActive Status = iota
	// StatusExpired means the row matches but its TTL has lapsed. Expired
	// sessions can be renewed in place through the refresh flow.
	StatusExpired
	// StatusInvalid means no matching row is live: superseded by a newer
	// login, revoked, or never created. Terminal.
	StatusInvalid
)

func (s Status) String() string {
	switch s {
	case StatusActive:
		return "active"
	case StatusExpired:
		return "expired"
	default:
		return "invalid"
	}
}

// Session is the server-side record that decides whether a token lineage is
// still honored. SessionID is the jti shared by the access token, this row,
// and the bound refresh credentials across rotations.
type Session struct {
	ID          string
	AccountID   string
	SessionID   string
	TokenHash   string // HMAC of the currently live access token; empty until recorded
	Device      string
	Origin      string
	CreatedAt   time.Time
	ExpiresAt   time.Time
	RevokedAt   *time.Time // nil while not superseded or logged out
	Active      bool
}

// Summary is the caller-facing view of an active session, shown when a login
// without force hits an existing session.
type Summary struct {
	Device    string    `json:"device"`
	Origin    string    `json:"originAddress"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}
