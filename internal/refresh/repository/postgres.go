package repository

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"time"

	"github.com/google/uuid"

	"audit-central/backend/internal/refresh/domain"
	"audit-central/backend/internal/security"
)

// PostgresStore persists refresh credentials in the refresh_tokens table.
type PostgresStore struct {
	db  *sql.DB
	ttl time.Duration
}

// NewPostgresStore returns a refresh store backed by db. ttl is the fixed
// expiry horizon applied to every issued credential.
func NewPostgresStore(db *sql.DB, ttl time.Duration) *PostgresStore {
	return &PostgresStore{db: db, ttl: ttl}
}

// Issue mints a random 256-bit credential and persists its hash.
func (s *PostgresStore) Issue(ctx context.Context, sessionID, accountID, origin string) (string, *domain.RefreshCredential, error) {
	plaintext, err := generateToken()
	if err != nil {
		return "", nil, err
	}
	now := time.Now().UTC()
	rec := &domain.RefreshCredential{
		ID:        uuid.New().String(),
		TokenHash: security.HashRefreshToken(plaintext),
		SessionID: sessionID,
		AccountID: accountID,
		Origin:    origin,
		IssuedAt:  now,
		ExpiresAt: now.Add(s.ttl),
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO refresh_tokens (id, token_hash, session_id, account_id, origin, issued_at, expires_at, is_used, is_revoked)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, $7, false, false)`,
		rec.ID, rec.TokenHash, rec.SessionID, rec.AccountID, rec.Origin, rec.IssuedAt, rec.ExpiresAt)
	if err != nil {
		return "", nil, err
	}
	return plaintext, rec, nil
}

// Redeem locks the row by hash, classifies its state in priority order, and
// marks it used before returning, all inside one transaction.
func (s *PostgresStore) Redeem(ctx context.Context, plaintext string) (*domain.RefreshCredential, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	hash := security.HashRefreshToken(plaintext)
	rec := &domain.RefreshCredential{TokenHash: hash}
	var origin sql.NullString
	err = tx.QueryRowContext(ctx, `
		SELECT id, session_id, account_id, origin, issued_at, expires_at, is_used, is_revoked
		FROM refresh_tokens WHERE token_hash = $1
		FOR UPDATE`, hash).
		Scan(&rec.ID, &rec.SessionID, &rec.AccountID, &origin, &rec.IssuedAt, &rec.ExpiresAt, &rec.Used, &rec.Revoked)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	rec.Origin = origin.String

	now := time.Now().UTC()
	switch {
	case !rec.ExpiresAt.After(now):
		return nil, ErrExpired
	case rec.Revoked:
		return nil, ErrRevoked
	case rec.Used:
		return nil, ErrAlreadyUsed
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE refresh_tokens SET is_used = true, last_used_at = $2
		WHERE id = $1`, rec.ID, now); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	rec.Used = true
	rec.LastUsedAt = &now
	return rec, nil
}

// RevokeAllForSession revokes un-used credentials bound to sessionID,
// keeping exceptID alive when given.
func (s *PostgresStore) RevokeAllForSession(ctx context.Context, sessionID, exceptID string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE refresh_tokens SET is_revoked = true
		WHERE session_id = $1 AND id <> $2 AND NOT is_used AND NOT is_revoked`,
		sessionID, exceptID)
	return err
}

// RevokeSessions revokes every credential bound to the given session ids.
func (s *PostgresStore) RevokeSessions(ctx context.Context, sessionIDs []string) error {
	if len(sessionIDs) == 0 {
		return nil
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE refresh_tokens SET is_revoked = true, is_used = true
		WHERE session_id = ANY($1) AND NOT is_revoked`, sessionIDs)
	return err
}

// DeleteAllForAccount removes every credential for the account.
func (s *PostgresStore) DeleteAllForAccount(ctx context.Context, accountID string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM refresh_tokens WHERE account_id = $1`, accountID)
	return err
}

func generateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(b), nil
}
