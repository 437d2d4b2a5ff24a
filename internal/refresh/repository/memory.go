package repository

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"sync"
	"time"

	"github.com/google/uuid"

	"audit-central/backend/internal/refresh/domain"
	"audit-central/backend/internal/security"
)

// MemoryStore is an in-memory Store used in tests and development. The mutex
// makes Redeem's check-then-mark-used atomic, matching the Postgres
// transaction's guarantee.
type MemoryStore struct {
	mu   sync.Mutex
	rows map[string]*domain.RefreshCredential // keyed by token hash
	ttl  time.Duration
	nowF func() time.Time
}

// NewMemoryStore returns an empty in-memory refresh store with the given
// expiry horizon.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		rows: make(map[string]*domain.RefreshCredential),
		ttl:  ttl,
		nowF: func() time.Time { return time.Now().UTC() },
	}
}

// SetNow overrides the clock; tests use it to expire credentials.
func (s *MemoryStore) SetNow(f func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nowF = f
}

func (s *MemoryStore) Issue(ctx context.Context, sessionID, accountID, origin string) (string, *domain.RefreshCredential, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", nil, err
	}
	plaintext := base64.StdEncoding.EncodeToString(b)

	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.nowF()
	rec := &domain.RefreshCredential{
		ID:        uuid.New().String(),
		TokenHash: security.HashRefreshToken(plaintext),
		SessionID: sessionID,
		AccountID: accountID,
		Origin:    origin,
		IssuedAt:  now,
		ExpiresAt: now.Add(s.ttl),
	}
	s.rows[rec.TokenHash] = rec
	return plaintext, rec, nil
}

func (s *MemoryStore) Redeem(ctx context.Context, plaintext string) (*domain.RefreshCredential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.rows[security.HashRefreshToken(plaintext)]
	if !ok {
		return nil, ErrNotFound
	}
	now := s.nowF()
	switch {
	case !rec.ExpiresAt.After(now):
		return nil, ErrExpired
	case rec.Revoked:
		return nil, ErrRevoked
	case rec.Used:
		return nil, ErrAlreadyUsed
	}
	rec.Used = true
	rec.LastUsedAt = &now
	cp := *rec
	return &cp, nil
}

func (s *MemoryStore) RevokeAllForSession(ctx context.Context, sessionID, exceptID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range s.rows {
		if rec.SessionID == sessionID && rec.ID != exceptID && !rec.Used && !rec.Revoked {
			rec.Revoked = true
		}
	}
	return nil
}

func (s *MemoryStore) RevokeSessions(ctx context.Context, sessionIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range s.rows {
		for _, sid := range sessionIDs {
			if rec.SessionID == sid && !rec.Revoked {
				rec.Revoked = true
				rec.Used = true
			}
		}
	}
	return nil
}

func (s *MemoryStore) DeleteAllForAccount(ctx context.Context, accountID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for hash, rec := range s.rows {
		if rec.AccountID == accountID {
			delete(s.rows, hash)
		}
	}
	return nil
}
