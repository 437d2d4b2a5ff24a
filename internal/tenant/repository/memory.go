package repository

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// MemoryLookup implements Lookup in memory for tests and development.
type MemoryLookup struct {
	mu       sync.RWMutex
	licenses map[string]time.Time       // tenant id -> expiry
	taxes    map[string]json.RawMessage // organization id -> config
}

func NewMemoryLookup() *MemoryLookup {
	return &MemoryLookup{
		licenses: make(map[string]time.Time),
		taxes:    make(map[string]json.RawMessage),
	}
}

func (l *MemoryLookup) SeedLicense(tenantID string, expires time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.licenses[tenantID] = expires
}

func (l *MemoryLookup) SeedTaxConfig(organizationID string, config json.RawMessage) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.taxes[organizationID] = config
}

func (l *MemoryLookup) LicenseExpiry(ctx context.Context, tenantID string) (time.Time, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	expires, ok := l.licenses[tenantID]
	if !ok {
		return time.Time{}, ErrNotFound
	}
	return expires, nil
}

func (l *MemoryLookup) TaxConfig(ctx context.Context, organizationID string) (json.RawMessage, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.taxes[organizationID], nil
}
