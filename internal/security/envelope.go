package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrDecryptionFailed is returned when no decoding variant yields a
// structurally valid token.
var ErrDecryptionFailed = errors.New("token decryption failed")

const envelopeIVSize = 16

// Codec is the transport envelope for tokens that cross a boundary needing
// extra confidentiality (cookies, redirect URLs). It is a framing layer only:
// a decrypt that "succeeds" proves nothing about authenticity, and callers
// must still run the result through token validation.
//
// Envelope format: base64(iv || ciphertext) with a fresh random 16-byte IV
// per call. Decoding tolerates the three base64 variants historical callers
// produced: standard, URL-safe, and an ad-hoc one that swapped only '/'
// for '_'.
type Codec struct {
	key []byte
}

// NewCodec returns a Codec keyed from key, which is space-padded or truncated
// to 32 bytes (AES-256) as the historical envelope scheme did.
func NewCodec(key string) *Codec {
	k := []byte(key)
	if len(k) < 32 {
		padded := make([]byte, 32)
		copy(padded, k)
		for i := len(k); i < 32; i++ {
			padded[i] = ' '
		}
		k = padded
	}
	return &Codec{key: k[:32]}
}

// Encrypt wraps text in a fresh envelope. A new IV is drawn from crypto/rand
// on every call; IVs are never reused.
func (c *Codec) Encrypt(text string) (string, error) {
	if text == "" {
		return "", errors.New("text must not be empty")
	}
	block, err := aes.NewCipher(c.key)
	if err != nil {
		return "", err
	}
	iv := make([]byte, envelopeIVSize)
	if _, err := rand.Read(iv); err != nil {
		return "", err
	}
	out := make([]byte, envelopeIVSize+len(text))
	copy(out, iv)
	cipher.NewCTR(block, iv).XORKeyStream(out[envelopeIVSize:], []byte(text))
	return base64.StdEncoding.EncodeToString(out), nil
}

// Decrypt unwraps an envelope back to the token it carries. Input that
// already looks like a plain signed token is returned unchanged (treated as
// already decrypted); a leading "Bearer " prefix is stripped. Each base64
// normalization is attempted in sequence and the first result that parses as
// a structurally valid token wins. When every attempt fails, the error wraps
// ErrDecryptionFailed and the last underlying cause.
func (c *Codec) Decrypt(envelope string) (string, error) {
	if envelope == "" {
		return "", fmt.Errorf("%w: empty input", ErrDecryptionFailed)
	}
	if LooksLikeToken(envelope) {
		return envelope, nil
	}
	envelope = strings.TrimSpace(strings.TrimPrefix(envelope, "Bearer "))
	if LooksLikeToken(envelope) {
		return envelope, nil
	}

	normalizers := []func(string) string{
		func(s string) string { return s },
		func(s string) string {
			return strings.NewReplacer("-", "+", "_", "/").Replace(s)
		},
		func(s string) string {
			return strings.ReplaceAll(s, "_", "/")
		},
	}

	var lastErr error = errors.New("no decodable variant")
	for _, normalize := range normalizers {
		plain, err := c.tryDecrypt(restorePadding(normalize(envelope)))
		if err != nil {
			lastErr = err
			continue
		}
		if LooksLikeToken(plain) {
			return plain, nil
		}
		lastErr = errors.New("decrypted payload is not a token")
	}
	return "", fmt.Errorf("%w: %v", ErrDecryptionFailed, lastErr)
}

func (c *Codec) tryDecrypt(encoded string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", err
	}
	if len(raw) < envelopeIVSize {
		return "", errors.New("envelope shorter than IV")
	}
	block, err := aes.NewCipher(c.key)
	if err != nil {
		return "", err
	}
	iv, ct := raw[:envelopeIVSize], raw[envelopeIVSize:]
	plain := make([]byte, len(ct))
	cipher.NewCTR(block, iv).XORKeyStream(plain, ct)
	return string(plain), nil
}

// LooksLikeToken reports whether s has the shape of a signed token: three
// dot-separated base64url segments whose first segment decodes to a small
// JSON object. Shape only; no signature check happens here.
func LooksLikeToken(s string) bool {
	parts := strings.Split(s, ".")
	if len(parts) != 3 {
		return false
	}
	header, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(parts[0], "="))
	if err != nil {
		return false
	}
	var obj map[string]any
	return json.Unmarshal(header, &obj) == nil
}

func restorePadding(s string) string {
	switch len(s) % 4 {
	case 2:
		return s + "=="
	case 3:
		return s + "="
	}
	return s
}
