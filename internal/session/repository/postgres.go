package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"audit-central/backend/internal/session/domain"
)

// PostgresRegistry persists sessions in the user_sessions table.
type PostgresRegistry struct {
	db     *sql.DB
	maxTTL time.Duration
}

// NewPostgresRegistry returns a session registry backed by db. maxTTL caps
// any longer duration a caller requests.
func NewPostgresRegistry(db *sql.DB, maxTTL time.Duration) *PostgresRegistry {
	return &PostgresRegistry{db: db, maxTTL: maxTTL}
}

func (r *PostgresRegistry) clamp(ttl time.Duration) time.Duration {
	if r.maxTTL > 0 && ttl > r.maxTTL {
		return r.maxTTL
	}
	return ttl
}

// HasActive reports whether the account has an unexpired active session.
func (r *PostgresRegistry) HasActive(ctx context.Context, accountID string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM user_sessions
			WHERE account_id = $1 AND is_active AND expires_at > now()
		)`, accountID).Scan(&exists)
	return exists, err
}

// ListActive returns summaries of the account's active, unexpired sessions.
func (r *PostgresRegistry) ListActive(ctx context.Context, accountID string) ([]domain.Summary, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT COALESCE(device, ''), COALESCE(origin, ''), created_at, expires_at
		FROM user_sessions
		WHERE account_id = $1 AND is_active AND expires_at > now()
		ORDER BY created_at DESC`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Summary
	for rows.Next() {
		var s domain.Summary
		if err := rows.Scan(&s.Device, &s.Origin, &s.CreatedAt, &s.ExpiresAt); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// InvalidatePreviousAndCreate supersedes the account's active sessions and
// inserts the new one inside a single transaction. A per-account advisory
// lock serializes racing logins so exactly one session ends up active.
func (r *PostgresRegistry) InvalidatePreviousAndCreate(ctx context.Context, accountID, sessionID string, ttl time.Duration, device, origin string) (string, []string, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return "", nil, err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`SELECT pg_advisory_xact_lock(hashtext($1))`, accountID); err != nil {
		return "", nil, err
	}

	rows, err := tx.QueryContext(ctx, `
		UPDATE user_sessions
		SET is_active = false, revoked_at = now()
		WHERE account_id = $1 AND session_id <> $2 AND is_active
		RETURNING session_id`, accountID, sessionID)
	if err != nil {
		return "", nil, err
	}
	var superseded []string
	for rows.Next() {
		var sid string
		if err := rows.Scan(&sid); err != nil {
			rows.Close()
			return "", nil, err
		}
		superseded = append(superseded, sid)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return "", nil, err
	}

	rowID := uuid.New().String()
	_, err = tx.ExecContext(ctx, `
		INSERT INTO user_sessions (id, account_id, session_id, device, origin, created_at, expires_at, is_active)
		VALUES ($1, $2, $3, $4, $5, now(), now() + $6::interval, true)`,
		rowID, accountID, sessionID, device, origin, r.clamp(ttl).String())
	if err != nil {
		return "", nil, err
	}

	if err := tx.Commit(); err != nil {
		return "", nil, err
	}
	return rowID, superseded, nil
}

// CheckStatus resolves the session's status from its row.
func (r *PostgresRegistry) CheckStatus(ctx context.Context, accountID, sessionID string) (domain.Status, error) {
	var active bool
	var expiresAt time.Time
	err := r.db.QueryRowContext(ctx, `
		SELECT is_active, expires_at FROM user_sessions
		WHERE account_id = $1 AND session_id = $2`, accountID, sessionID).
		Scan(&active, &expiresAt)
	if err == sql.ErrNoRows {
		return domain.StatusInvalid, nil
	}
	if err != nil {
		return domain.StatusInvalid, err
	}
	if !active {
		return domain.StatusInvalid, nil
	}
	if !expiresAt.After(time.Now().UTC()) {
		return domain.StatusExpired, nil
	}
	return domain.StatusActive, nil
}

// RenewExpired extends the session in place; superseded rows stay dead.
func (r *PostgresRegistry) RenewExpired(ctx context.Context, accountID, sessionID string, ttl time.Duration) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE user_sessions
		SET expires_at = now() + $3::interval, is_active = true
		WHERE account_id = $1 AND session_id = $2 AND revoked_at IS NULL`,
		accountID, sessionID, r.clamp(ttl).String())
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotRenewable
	}
	return nil
}

// RecordTokenHash binds the minted token's hash and exact expiry to the row.
func (r *PostgresRegistry) RecordTokenHash(ctx context.Context, accountID, sessionID, tokenHash string, expiresAt time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE user_sessions SET token_hash = $3, expires_at = $4
		WHERE account_id = $1 AND session_id = $2`,
		accountID, sessionID, tokenHash, expiresAt)
	return err
}

// RevokeAll invalidates every active session for the account.
func (r *PostgresRegistry) RevokeAll(ctx context.Context, accountID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		UPDATE user_sessions
		SET is_active = false, revoked_at = now()
		WHERE account_id = $1 AND is_active
		RETURNING session_id`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var superseded []string
	for rows.Next() {
		var sid string
		if err := rows.Scan(&sid); err != nil {
			return nil, err
		}
		superseded = append(superseded, sid)
	}
	return superseded, rows.Err()
}
