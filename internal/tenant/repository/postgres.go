package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// PostgresLookup implements Lookup on the tenants and organization_tax_configs
// tables.
type PostgresLookup struct {
	db *sql.DB
}

func NewPostgresLookup(db *sql.DB) *PostgresLookup {
	return &PostgresLookup{db: db}
}

func (l *PostgresLookup) LicenseExpiry(ctx context.Context, tenantID string) (time.Time, error) {
	var expires time.Time
	err := l.db.QueryRowContext(ctx,
		`SELECT license_expires_at FROM tenants WHERE id = $1`, tenantID).Scan(&expires)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, ErrNotFound
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("license expiry: %w", err)
	}
	return expires, nil
}

func (l *PostgresLookup) TaxConfig(ctx context.Context, organizationID string) (json.RawMessage, error) {
	var raw []byte
	err := l.db.QueryRowContext(ctx, `
		SELECT config FROM organization_tax_configs
		WHERE organization_id = $1 AND is_active`, organizationID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("tax config: %w", err)
	}
	return json.RawMessage(raw), nil
}
