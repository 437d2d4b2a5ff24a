package repository

import (
	"context"
	"strings"
	"sync"

	"audit-central/backend/internal/account/domain"
)

// MemoryRepository implements Repository and ContextResolver in memory for
// tests and development.
type MemoryRepository struct {
	mu       sync.RWMutex
	accounts map[string]*domain.Account // keyed by id
	grants   []domain.Grant             // insertion order stands in for created_at
	contexts map[string]*domain.Context // keyed by account id
	years    map[string][]string        // organization id -> year ids, newest first
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		accounts: make(map[string]*domain.Account),
		contexts: make(map[string]*domain.Context),
		years:    make(map[string][]string),
	}
}

// Seed inserts or replaces an account.
func (r *MemoryRepository) Seed(a *domain.Account) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *a
	r.accounts[a.ID] = &cp
}

// SeedGrant appends a grant. Order of calls determines the first-grant
// fallback in LastContext.
func (r *MemoryRepository) SeedGrant(g domain.Grant) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.grants = append(r.grants, g)
}

// SeedYears records financial years for an organization, newest first.
func (r *MemoryRepository) SeedYears(organizationID string, yearIDs ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.years[organizationID] = yearIDs
}

func (r *MemoryRepository) GetByEmail(ctx context.Context, email string) (*domain.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, a := range r.accounts {
		if strings.EqualFold(a.Email, email) {
			cp := *a
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (r *MemoryRepository) GetByID(ctx context.Context, id string) (*domain.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.accounts[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (r *MemoryRepository) UpdatePasswordHash(ctx context.Context, id, hash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[id]
	if !ok {
		return ErrNotFound
	}
	a.PasswordHash = hash
	return nil
}

func (r *MemoryRepository) UpdateLastModule(ctx context.Context, id, moduleID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if a, ok := r.accounts[id]; ok {
		a.LastModuleID = moduleID
	}
	return nil
}

func (r *MemoryRepository) LastContext(ctx context.Context, accountID string) (*domain.Context, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if c, ok := r.contexts[accountID]; ok {
		cp := *c
		return &cp, nil
	}
	for _, g := range r.grants {
		if g.AccountID == accountID {
			c := &domain.Context{
				TenantID:       g.TenantID,
				OrganizationID: g.OrganizationID,
				RoleID:         g.RoleID,
				Timezone:       g.Timezone,
			}
			if ys := r.years[g.OrganizationID]; len(ys) > 0 {
				c.YearID = ys[0]
			}
			return c, nil
		}
	}
	return nil, ErrNotFound
}

func (r *MemoryRepository) RoleFor(ctx context.Context, accountID, organizationID string) (*domain.Grant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, g := range r.grants {
		if g.AccountID == accountID && g.OrganizationID == organizationID {
			cp := g
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (r *MemoryRepository) LatestYear(ctx context.Context, organizationID string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if ys := r.years[organizationID]; len(ys) > 0 {
		return ys[0], nil
	}
	return "", nil
}

func (r *MemoryRepository) YearBelongs(ctx context.Context, organizationID, yearID string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, y := range r.years[organizationID] {
		if y == yearID {
			return true, nil
		}
	}
	return false, nil
}

func (r *MemoryRepository) RecordContext(ctx context.Context, accountID string, c *domain.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *c
	r.contexts[accountID] = &cp
	return nil
}
