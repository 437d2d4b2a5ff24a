package repository

import (
	"context"
	"errors"

	"audit-central/backend/internal/account/domain"
)

// ErrNotFound is returned when no account or grant matches the lookup.
var ErrNotFound = errors.New("account: not found")

// Repository loads and updates accounts.
type Repository interface {
	// GetByEmail matches case-insensitively on the stored address.
	GetByEmail(ctx context.Context, email string) (*domain.Account, error)
	GetByID(ctx context.Context, id string) (*domain.Account, error)
	UpdatePasswordHash(ctx context.Context, id, hash string) error
	UpdateLastModule(ctx context.Context, id, moduleID string) error
}

// ContextResolver answers which tenant/organization/role scope an account
// lands in after authenticating, and validates requested scope switches.
type ContextResolver interface {
	// LastContext returns the account's most recently used working scope,
	// falling back to its first grant when none is recorded.
	LastContext(ctx context.Context, accountID string) (*domain.Context, error)
	// RoleFor returns the account's role in the given organization, or
	// ErrNotFound when the account holds no grant there.
	RoleFor(ctx context.Context, accountID, organizationID string) (*domain.Grant, error)
	// LatestYear returns the most recent financial year open for the
	// organization, empty when the organization has none.
	LatestYear(ctx context.Context, organizationID string) (string, error)
	// YearBelongs reports whether the financial year exists under the
	// organization.
	YearBelongs(ctx context.Context, organizationID, yearID string) (bool, error)
	// RecordContext persists the scope so LastContext can restore it.
	RecordContext(ctx context.Context, accountID string, c *domain.Context) error
}
