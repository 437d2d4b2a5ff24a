package repository

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"audit-central/backend/internal/session/domain"
)

// MemoryRegistry is an in-memory Registry used in tests and development. A
// single mutex gives it the same atomicity the Postgres transaction provides.
type MemoryRegistry struct {
	mu     sync.Mutex
	rows   map[string]*domain.Session // keyed by sessionID
	maxTTL time.Duration
	nowF   func() time.Time
}

// NewMemoryRegistry returns an empty in-memory session registry.
func NewMemoryRegistry(maxTTL time.Duration) *MemoryRegistry {
	return &MemoryRegistry{
		rows:   make(map[string]*domain.Session),
		maxTTL: maxTTL,
		nowF:   func() time.Time { return time.Now().UTC() },
	}
}

// SetNow overrides the clock; tests use it to expire sessions.
func (r *MemoryRegistry) SetNow(f func() time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nowF = f
}

func (r *MemoryRegistry) clamp(ttl time.Duration) time.Duration {
	if r.maxTTL > 0 && ttl > r.maxTTL {
		return r.maxTTL
	}
	return ttl
}

func (r *MemoryRegistry) HasActive(ctx context.Context, accountID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.nowF()
	for _, s := range r.rows {
		if s.AccountID == accountID && s.Active && s.ExpiresAt.After(now) {
			return true, nil
		}
	}
	return false, nil
}

func (r *MemoryRegistry) ListActive(ctx context.Context, accountID string) ([]domain.Summary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.nowF()
	var out []domain.Summary
	for _, s := range r.rows {
		if s.AccountID == accountID && s.Active && s.ExpiresAt.After(now) {
			out = append(out, domain.Summary{
				Device:    s.Device,
				Origin:    s.Origin,
				CreatedAt: s.CreatedAt,
				ExpiresAt: s.ExpiresAt,
			})
		}
	}
	return out, nil
}

func (r *MemoryRegistry) InvalidatePreviousAndCreate(ctx context.Context, accountID, sessionID string, ttl time.Duration, device, origin string) (string, []string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.nowF()
	var superseded []string
	for _, s := range r.rows {
		if s.AccountID == accountID && s.SessionID != sessionID && s.Active {
			s.Active = false
			t := now
			s.RevokedAt = &t
			superseded = append(superseded, s.SessionID)
		}
	}
	rowID := uuid.New().String()
	r.rows[sessionID] = &domain.Session{
		ID:        rowID,
		AccountID: accountID,
		SessionID: sessionID,
		Device:    device,
		Origin:    origin,
		CreatedAt: now,
		ExpiresAt: now.Add(r.clamp(ttl)),
		Active:    true,
	}
	return rowID, superseded, nil
}

func (r *MemoryRegistry) CheckStatus(ctx context.Context, accountID, sessionID string) (domain.Status, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.rows[sessionID]
	if !ok || s.AccountID != accountID || !s.Active {
		return domain.StatusInvalid, nil
	}
	if !s.ExpiresAt.After(r.nowF()) {
		return domain.StatusExpired, nil
	}
	return domain.StatusActive, nil
}

func (r *MemoryRegistry) RenewExpired(ctx context.Context, accountID, sessionID string, ttl time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.rows[sessionID]
	if !ok || s.AccountID != accountID || s.RevokedAt != nil {
		return ErrNotRenewable
	}
	s.ExpiresAt = r.nowF().Add(r.clamp(ttl))
	s.Active = true
	return nil
}

func (r *MemoryRegistry) RecordTokenHash(ctx context.Context, accountID, sessionID, tokenHash string, expiresAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.rows[sessionID]; ok && s.AccountID == accountID {
		s.TokenHash = tokenHash
		s.ExpiresAt = expiresAt
	}
	return nil
}

func (r *MemoryRegistry) RevokeAll(ctx context.Context, accountID string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.nowF()
	var superseded []string
	for _, s := range r.rows {
		if s.AccountID == accountID && s.Active {
			s.Active = false
			t := now
			s.RevokedAt = &t
			superseded = append(superseded, s.SessionID)
		}
	}
	return superseded, nil
}
