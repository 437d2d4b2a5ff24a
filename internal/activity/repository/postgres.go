package repository

import (
	"context"
	"database/sql"
	"fmt"

	"audit-central/backend/internal/activity/domain"
)

// PostgresRepository persists activity entries in the activity_logs table.
type PostgresRepository struct {
	db *sql.DB
}

func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, entry *domain.Entry) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO activity_logs (id, account_id, action, origin, device, detail, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		entry.ID, entry.AccountID, entry.Action, entry.Origin, entry.Device, entry.Detail, entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert activity: %w", err)
	}
	return nil
}

func (r *PostgresRepository) ListByAccount(ctx context.Context, accountID string, limit int) ([]domain.Entry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, account_id, action, origin, device, detail, created_at
		FROM activity_logs WHERE account_id = $1
		ORDER BY created_at DESC LIMIT $2`, accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("list activity: %w", err)
	}
	defer rows.Close()

	var out []domain.Entry
	for rows.Next() {
		var e domain.Entry
		if err := rows.Scan(&e.ID, &e.AccountID, &e.Action, &e.Origin, &e.Device, &e.Detail, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan activity: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
