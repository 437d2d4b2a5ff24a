package repository

import (
	"context"

	"audit-central/backend/internal/activity/domain"
)

// Repository persists authentication activity entries.
type Repository interface {
	Create(ctx context.Context, entry *domain.Entry) error
	// ListByAccount returns the account's most recent entries, newest first.
	ListByAccount(ctx context.Context, accountID string, limit int) ([]domain.Entry, error)
}
