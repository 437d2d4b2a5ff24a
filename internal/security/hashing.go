package security

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// ErrEmptyPassword is returned when a caller passes an empty password to Verify or Migrate.
var ErrEmptyPassword = errors.New("password must not be empty")

// Hasher verifies and (re)hashes account passwords. Stored hashes come in two
// schemes: modern bcrypt, and a legacy unsalted base64(SHA-256) digest kept
// for accounts that have not logged in since the migration. Callers must not
// log or persist plaintext passwords.
type Hasher struct {
	Cost int
}

// NewHasher returns a Hasher with the given bcrypt cost (4–31). Cost 12 is a
// reasonable default for interactive login.
func NewHasher(cost int) *Hasher {
	if cost <= 0 {
		cost = bcrypt.DefaultCost
	}
	if cost < bcrypt.MinCost {
		cost = bcrypt.MinCost
	}
	if cost > bcrypt.MaxCost {
		cost = bcrypt.MaxCost
	}
	return &Hasher{Cost: cost}
}

// Verify reports whether password matches the stored hash. The scheme is
// detected from the hash's format marker: bcrypt hashes start with "$2a$" or
// "$2b$"; anything else is treated as a legacy digest and compared by
// recomputation. A failed comparison returns (false, nil), never an error;
// only an empty password is an input error.
func (h *Hasher) Verify(password, storedHash string) (bool, error) {
	if password == "" {
		return false, ErrEmptyPassword
	}
	if isBcrypt(storedHash) {
		err := bcrypt.CompareHashAndPassword([]byte(storedHash), []byte(password))
		return err == nil, nil
	}
	digest := legacyDigest(password)
	return subtle.ConstantTimeCompare([]byte(digest), []byte(storedHash)) == 1, nil
}

// NeedsMigration reports whether the stored hash is still in the legacy
// scheme and should be rehashed on the next successful login.
func (h *Hasher) NeedsMigration(storedHash string) bool {
	return !isBcrypt(storedHash)
}

// Migrate computes a fresh bcrypt hash for password. It has no side effects;
// the caller persists the result, and must only call it after Verify
// succeeded against the legacy hash.
func (h *Hasher) Migrate(password string) (string, error) {
	return h.Hash(password)
}

// Hash produces a bcrypt hash of password suitable for storage.
func (h *Hasher) Hash(password string) (string, error) {
	if password == "" {
		return "", ErrEmptyPassword
	}
	b, err := bcrypt.GenerateFromPassword([]byte(password), h.Cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func isBcrypt(hash string) bool {
	return strings.HasPrefix(hash, "$2a$") || strings.HasPrefix(hash, "$2b$")
}

// legacyDigest is the historical unsalted scheme: base64 of a single SHA-256
// pass over the password. Kept only so pre-migration accounts can still log in.
func legacyDigest(password string) string {
	sum := sha256.Sum256([]byte(password))
	return base64.StdEncoding.EncodeToString(sum[:])
}

// LegacyDigest exposes the legacy scheme for seeding and tests.
func LegacyDigest(password string) string {
	return legacyDigest(password)
}
