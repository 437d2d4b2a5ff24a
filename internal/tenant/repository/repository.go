package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// ErrNotFound is returned when no tenant matches the lookup.
var ErrNotFound = errors.New("tenant: not found")

// Lookup answers tenant licensing and per-organization tax questions during
// token issuance and validation.
type Lookup interface {
	// LicenseExpiry returns when the tenant's license lapses.
	LicenseExpiry(ctx context.Context, tenantID string) (time.Time, error)
	// TaxConfig returns the organization's tax registration as a raw JSON
	// object, nil when none is configured.
	TaxConfig(ctx context.Context, organizationID string) (json.RawMessage, error)
}
