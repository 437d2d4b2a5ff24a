package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"audit-central/backend/internal/account/domain"
)

// PostgresRepository implements Repository and ContextResolver on the
// accounts, user_grants, user_contexts and financial_years tables.
type PostgresRepository struct {
	db *sql.DB
}

func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const accountColumns = `id, email, name, mobile, password_hash, is_active, is_super,
	COALESCE(tenant_id::text, ''), COALESCE(last_module_id, ''), COALESCE(timezone, '')`

func scanAccount(row *sql.Row) (*domain.Account, error) {
	var a domain.Account
	err := row.Scan(&a.ID, &a.Email, &a.Name, &a.Mobile, &a.PasswordHash,
		&a.Active, &a.Super, &a.TenantID, &a.LastModuleID, &a.Timezone)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan account: %w", err)
	}
	return &a, nil
}

func (r *PostgresRepository) GetByEmail(ctx context.Context, email string) (*domain.Account, error) {
	return scanAccount(r.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE lower(email) = lower($1)`, email))
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.Account, error) {
	return scanAccount(r.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id))
}

func (r *PostgresRepository) UpdatePasswordHash(ctx context.Context, id, hash string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE accounts SET password_hash = $2, updated_at = now() WHERE id = $1`, id, hash)
	if err != nil {
		return fmt.Errorf("update password hash: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresRepository) UpdateLastModule(ctx context.Context, id, moduleID string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE accounts SET last_module_id = $2, updated_at = now() WHERE id = $1`, id, moduleID)
	return err
}

func (r *PostgresRepository) LastContext(ctx context.Context, accountID string) (*domain.Context, error) {
	var c domain.Context
	err := r.db.QueryRowContext(ctx, `
		SELECT tenant_id::text, organization_id::text, role_id::text,
		       COALESCE(year_id::text, ''), COALESCE(module_id, ''), COALESCE(timezone, '')
		FROM user_contexts WHERE account_id = $1`, accountID).
		Scan(&c.TenantID, &c.OrganizationID, &c.RoleID, &c.YearID, &c.ModuleID, &c.Timezone)
	if err == nil {
		return &c, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("last context: %w", err)
	}

	// No recorded context; fall back to the account's first grant.
	err = r.db.QueryRowContext(ctx, `
		SELECT tenant_id::text, organization_id::text, role_id::text, COALESCE(timezone, '')
		FROM user_grants WHERE account_id = $1
		ORDER BY created_at ASC LIMIT 1`, accountID).
		Scan(&c.TenantID, &c.OrganizationID, &c.RoleID, &c.Timezone)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("first grant: %w", err)
	}
	c.YearID, err = r.LatestYear(ctx, c.OrganizationID)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *PostgresRepository) RoleFor(ctx context.Context, accountID, organizationID string) (*domain.Grant, error) {
	var g domain.Grant
	err := r.db.QueryRowContext(ctx, `
		SELECT account_id::text, tenant_id::text, organization_id::text, role_id::text,
		       COALESCE(timezone, '')
		FROM user_grants WHERE account_id = $1 AND organization_id = $2`,
		accountID, organizationID).
		Scan(&g.AccountID, &g.TenantID, &g.OrganizationID, &g.RoleID, &g.Timezone)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("role for organization: %w", err)
	}
	return &g, nil
}

func (r *PostgresRepository) LatestYear(ctx context.Context, organizationID string) (string, error) {
	var yearID string
	err := r.db.QueryRowContext(ctx, `
		SELECT id::text FROM financial_years
		WHERE organization_id = $1
		ORDER BY starts_on DESC LIMIT 1`, organizationID).Scan(&yearID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("latest year: %w", err)
	}
	return yearID, nil
}

func (r *PostgresRepository) YearBelongs(ctx context.Context, organizationID, yearID string) (bool, error) {
	var ok bool
	// Both ids are caller-supplied; comparing as text keeps a malformed uuid a
	// plain mismatch instead of a query error.
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM financial_years
			WHERE organization_id::text = $1 AND id::text = $2
		)`, organizationID, yearID).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("year lookup: %w", err)
	}
	return ok, nil
}

func (r *PostgresRepository) RecordContext(ctx context.Context, accountID string, c *domain.Context) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO user_contexts (account_id, tenant_id, organization_id, role_id, year_id, module_id, timezone, updated_at)
		VALUES ($1, $2, $3, $4, NULLIF($5, '')::uuid, NULLIF($6, ''), NULLIF($7, ''), now())
		ON CONFLICT (account_id) DO UPDATE SET
			tenant_id = EXCLUDED.tenant_id,
			organization_id = EXCLUDED.organization_id,
			role_id = EXCLUDED.role_id,
			year_id = EXCLUDED.year_id,
			module_id = EXCLUDED.module_id,
			timezone = EXCLUDED.timezone,
			updated_at = now()`,
		accountID, c.TenantID, c.OrganizationID, c.RoleID, c.YearID, c.ModuleID, c.Timezone)
	return err
}
