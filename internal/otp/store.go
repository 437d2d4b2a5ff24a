package otp

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix   = "pwreset"
	maxAttempts = 5
)

var (
	// ErrNotFound is returned when no code is pending for the account or it
	// already expired.
	ErrNotFound = errors.New("otp: no pending code")
	// ErrMismatch is returned when the presented code does not match.
	ErrMismatch = errors.New("otp: code mismatch")
	// ErrAttemptsExceeded is returned once too many wrong codes were tried;
	// the pending code is destroyed.
	ErrAttemptsExceeded = errors.New("otp: attempts exceeded")
)

// Store keeps pending password-reset codes in Redis, hash-at-rest with a TTL.
// Redis expiry is the only cleanup needed.
type Store struct {
	redis  redis.Cmdable
	ttl    time.Duration
	prefix string
}

func NewStore(client redis.Cmdable, ttl time.Duration) *Store {
	return &Store{redis: client, ttl: ttl, prefix: keyPrefix}
}

func (s *Store) key(accountID string) string {
	return s.prefix + ":" + accountID
}

func (s *Store) attemptsKey(accountID string) string {
	return s.prefix + ":att:" + accountID
}

// Put stores the code's hash for the account, replacing any pending code and
// resetting the attempt counter.
func (s *Store) Put(ctx context.Context, accountID, code string) error {
	if err := s.redis.Set(ctx, s.key(accountID), Hash(code), s.ttl).Err(); err != nil {
		return fmt.Errorf("otp: save: %w", err)
	}
	if err := s.redis.Del(ctx, s.attemptsKey(accountID)).Err(); err != nil {
		return fmt.Errorf("otp: reset attempts: %w", err)
	}
	return nil
}

// Consume checks the presented code against the pending one. On a match the
// code is deleted so it redeems at most once. Wrong guesses count toward a cap
// and the code self-destructs when the cap is hit.
func (s *Store) Consume(ctx context.Context, accountID, code string) error {
	storedHash, err := s.redis.Get(ctx, s.key(accountID)).Result()
	if errors.Is(err, redis.Nil) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("otp: load: %w", err)
	}

	if !Equal(code, storedHash) {
		attempts, err := s.redis.Incr(ctx, s.attemptsKey(accountID)).Result()
		if err != nil {
			return fmt.Errorf("otp: count attempt: %w", err)
		}
		if err := s.redis.Expire(ctx, s.attemptsKey(accountID), s.ttl).Err(); err != nil {
			return fmt.Errorf("otp: expire attempts: %w", err)
		}
		if attempts >= maxAttempts {
			if err := s.redis.Del(ctx, s.key(accountID), s.attemptsKey(accountID)).Err(); err != nil {
				return fmt.Errorf("otp: destroy: %w", err)
			}
			return ErrAttemptsExceeded
		}
		return ErrMismatch
	}

	if err := s.redis.Del(ctx, s.key(accountID), s.attemptsKey(accountID)).Err(); err != nil {
		return fmt.Errorf("otp: consume: %w", err)
	}
	return nil
}
