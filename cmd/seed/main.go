// seed inserts development sample data for local testing.
// Idempotent: skips inserts if the dev account (dev@example.com) already exists.
package main

import (
	"context"
	"database/sql"
	"log"
	"time"

	"audit-central/backend/internal/config"
	"audit-central/backend/internal/db"
	"audit-central/backend/internal/security"
)

const (
	devTenantID  = "11111111-1111-1111-1111-111111111111"
	devOrgID     = "22222222-2222-2222-2222-222222222222"
	devRoleID    = "33333333-3333-3333-3333-333333333333"
	devAccountID = "44444444-4444-4444-4444-444444444444"
	// legacyAccountID keeps a pre-migration digest hash so the rehash-on-login
	// path can be exercised locally.
	legacyAccountID = "55555555-5555-5555-5555-555555555555"

	devEmail    = "dev@example.com"
	legacyEmail = "legacy@example.com"
	devPassword = "password123"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL is not set; create a .env from .env.example or set DATABASE_URL")
	}

	conn, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var existing string
	err = conn.QueryRowContext(ctx, `SELECT id FROM accounts WHERE lower(email) = lower($1)`, devEmail).Scan(&existing)
	if err == nil {
		log.Printf("seed: %s already exists, nothing to do", devEmail)
		return
	}
	if err != sql.ErrNoRows {
		log.Fatalf("seed: check existing: %v", err)
	}

	hasher := security.NewHasher(cfg.BcryptCost)
	bcryptHash, err := hasher.Hash(devPassword)
	if err != nil {
		log.Fatalf("seed: hash: %v", err)
	}

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		log.Fatalf("seed: begin: %v", err)
	}
	defer tx.Rollback()

	stmts := []struct {
		sql  string
		args []any
	}{
		{`INSERT INTO tenants (id, name, license_expires_at) VALUES ($1, $2, now() + interval '365 days')`,
			[]any{devTenantID, "Dev Tenant"}},
		{`INSERT INTO accounts (id, email, name, mobile, password_hash, is_active, tenant_id, timezone)
		  VALUES ($1, $2, 'Dev User', '9000000001', $3, true, $4, 'Asia/Kolkata')`,
			[]any{devAccountID, devEmail, bcryptHash, devTenantID}},
		{`INSERT INTO accounts (id, email, name, mobile, password_hash, is_active, tenant_id, timezone)
		  VALUES ($1, $2, 'Legacy User', '9000000002', $3, true, $4, 'Asia/Kolkata')`,
			[]any{legacyAccountID, legacyEmail, security.LegacyDigest(devPassword), devTenantID}},
		{`INSERT INTO user_grants (account_id, tenant_id, organization_id, role_id)
		  VALUES ($1, $2, $3, $4), ($5, $2, $3, $4)`,
			[]any{devAccountID, devTenantID, devOrgID, devRoleID, legacyAccountID}},
		{`INSERT INTO financial_years (organization_id, label, starts_on, ends_on)
		  VALUES ($1, 'FY 2026-27', '2026-04-01', '2027-03-31')`,
			[]any{devOrgID}},
		{`INSERT INTO organization_tax_configs (organization_id, config, is_active)
		  VALUES ($1, '{"gstin": "29ABCDE1234F1Z5", "scheme": "regular"}', true)`,
			[]any{devOrgID}},
	}
	for _, s := range stmts {
		if _, err := tx.ExecContext(ctx, s.sql, s.args...); err != nil {
			log.Fatalf("seed: insert: %v", err)
		}
	}

	if err := tx.Commit(); err != nil {
		log.Fatalf("seed: commit: %v", err)
	}
	log.Printf("seed: created %s and %s (password %q)", devEmail, legacyEmail, devPassword)
}
