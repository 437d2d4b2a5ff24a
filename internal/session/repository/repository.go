package repository

import (
	"context"
	"errors"
	"time"

	"audit-central/backend/internal/session/domain"
)

// ErrNotRenewable is returned by RenewExpired when the session is missing or
// was superseded; only an existing, non-revoked row can be extended in place.
var ErrNotRenewable = errors.New("session is not renewable")

// Registry tracks one logical session per account and enforces the
// single-active-session policy. Implementations must make
// InvalidatePreviousAndCreate a single atomic unit: two concurrent logins for
// the same account must leave exactly one row active.
type Registry interface {
	// HasActive reports whether the account currently has an active, unexpired session.
	HasActive(ctx context.Context, accountID string) (bool, error)
	// ListActive returns summaries of the account's active sessions for
	// "another session is active" prompts.
	ListActive(ctx context.Context, accountID string) ([]domain.Summary, error)
	// InvalidatePreviousAndCreate atomically supersedes any active session for
	// the account and creates a new one keyed by sessionID. It returns the new
	// row id and the session ids that were superseded (so their refresh
	// credentials can be revoked).
	InvalidatePreviousAndCreate(ctx context.Context, accountID, sessionID string, ttl time.Duration, device, origin string) (rowID string, superseded []string, err error)
	// CheckStatus resolves the session's status; this lookup is what lets a
	// correctly signed, unexpired token be rejected after a newer login.
	CheckStatus(ctx context.Context, accountID, sessionID string) (domain.Status, error)
	// RenewExpired extends an expired session in place (same session id).
	// Returns ErrNotRenewable when no matching non-revoked row exists.
	RenewExpired(ctx context.Context, accountID, sessionID string, ttl time.Duration) error
	// RecordTokenHash binds the issued access token's hash and exact expiry to
	// the session row after minting.
	RecordTokenHash(ctx context.Context, accountID, sessionID, tokenHash string, expiresAt time.Time) error
	// RevokeAll invalidates every active session for the account (logout,
	// password reset) and returns the superseded session ids.
	RevokeAll(ctx context.Context, accountID string) ([]string, error)
}
