package domain

import "time"

// RefreshCredential is one issued refresh token, stored hash-only. It is
// bound to the session id of the access token it was minted with; rotation
// keeps the session id and replaces the credential.
type RefreshCredential struct {
	ID         string
	TokenHash  string // SHA-256 of the plaintext; the plaintext is never stored
	SessionID  string
	AccountID  string
	Origin     string
	IssuedAt   time.Time
	ExpiresAt  time.Time
	Used       bool
	Revoked    bool
	LastUsedAt *time.Time
}
