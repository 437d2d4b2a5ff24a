package repository

import (
	"context"
	"errors"

	"audit-central/backend/internal/refresh/domain"
)

// Redemption failures, surfaced in this priority order: a missing hash wins
// over an expired row, expiry over revocation, revocation over replay.
var (
	ErrNotFound    = errors.New("refresh token not found")
	ErrExpired     = errors.New("refresh token has expired")
	ErrRevoked     = errors.New("refresh token has been revoked")
	ErrAlreadyUsed = errors.New("refresh token has already been used")
)

// Store issues, redeems, and revokes refresh credentials. Lookup is by token
// hash only; no implementation may support lookup by plaintext. Redeem's
// check-then-mark-used must be a single atomic step so that two concurrent
// calls presenting the same token cannot both succeed.
type Store interface {
	// Issue mints a fresh 256-bit credential bound to sessionID. The plaintext
	// is returned exactly once; only its hash is persisted.
	Issue(ctx context.Context, sessionID, accountID, origin string) (plaintext string, rec *domain.RefreshCredential, err error)
	// Redeem exchanges a presented token for its record, marking it used
	// atomically. Fails with ErrNotFound, ErrExpired, ErrRevoked, or
	// ErrAlreadyUsed, checked in that order.
	Redeem(ctx context.Context, plaintext string) (*domain.RefreshCredential, error)
	// RevokeAllForSession revokes every un-used credential bound to sessionID
	// except the record with exceptID (pass "" to revoke them all). Used
	// during rotation to kill stale credentials left from a prior mint.
	RevokeAllForSession(ctx context.Context, sessionID, exceptID string) error
	// RevokeSessions revokes all credentials bound to the given session ids
	// (sessions superseded by a newer login).
	RevokeSessions(ctx context.Context, sessionIDs []string) error
	// DeleteAllForAccount removes every credential for the account (logout).
	DeleteAllForAccount(ctx context.Context, accountID string) error
}
