package repository

import (
	"context"
	"sync"

	"audit-central/backend/internal/activity/domain"
)

// MemoryRepository keeps activity entries in memory for tests.
type MemoryRepository struct {
	mu      sync.Mutex
	entries []domain.Entry
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{}
}

func (r *MemoryRepository) Create(ctx context.Context, entry *domain.Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, *entry)
	return nil
}

func (r *MemoryRepository) ListByAccount(ctx context.Context, accountID string, limit int) ([]domain.Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Entry
	for i := len(r.entries) - 1; i >= 0 && len(out) < limit; i-- {
		if r.entries[i].AccountID == accountID {
			out = append(out, r.entries[i])
		}
	}
	return out, nil
}
