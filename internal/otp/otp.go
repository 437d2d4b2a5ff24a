package otp

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
)

const digits = 6

// Generate returns a 6-digit numeric reset code (e.g. "482913").
// Uses crypto/rand for randomness.
func Generate() (string, error) {
	b := make([]byte, digits)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	s := make([]byte, digits)
	for i := 0; i < digits; i++ {
		s[i] = '0' + (b[i] % 10)
	}
	return string(s), nil
}

// Hash returns a SHA-256 hash of the code, hex-encoded. Only hashes are stored.
func Hash(code string) string {
	h := sha256.Sum256([]byte(code))
	return hex.EncodeToString(h[:])
}

// Equal performs constant-time comparison of the provided code's hash with the
// stored hash.
func Equal(providedCode, storedHash string) bool {
	providedHash := Hash(providedCode)
	return subtle.ConstantTimeCompare([]byte(providedHash), []byte(storedHash)) == 1
}
