package security

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrInvalidToken is returned when a token is malformed, mis-signed, or
	// carries the wrong issuer/audience.
	ErrInvalidToken = errors.New("invalid token")
	// ErrTokenExpired is returned when the token's signature is fine but its
	// expiry has lapsed. Clock-skew tolerance is zero.
	ErrTokenExpired = errors.New("token expired")
)

// AccessClaims holds the JWT claims for an access token. The registered ID
// (jti) doubles as the session identifier shared across rotations.
type AccessClaims struct {
	jwt.RegisteredClaims
	Email          string          `json:"email,omitempty"`
	AccountID      string          `json:"account_id"`
	TenantID       string          `json:"tenant_id,omitempty"`
	OrganizationID string          `json:"organization_id,omitempty"`
	RoleID         string          `json:"role_id,omitempty"`
	YearID         string          `json:"year_id,omitempty"`
	ModuleID       string          `json:"module_id,omitempty"`
	Timezone       string          `json:"timezone,omitempty"`
	SessionRef     string          `json:"session_ref,omitempty"`
	TaxConfig      json.RawMessage `json:"tax,omitempty"`
}

// SessionID returns the session identifier carried in the jti claim.
func (c *AccessClaims) SessionID() string { return c.ID }

// Elevated reports whether the claims belong to an elevated account, which
// carries no tenant and is exempt from license and tenant-scoping checks.
func (c *AccessClaims) Elevated() bool { return c.TenantID == "" }

// TokenProvider signs and parses access tokens with a shared HMAC key (HS256).
type TokenProvider struct {
	key       []byte
	issuer    string
	audience  string
	accessTTL time.Duration

	// now is swappable in tests.
	now func() time.Time
}

// NewTokenProvider returns a TokenProvider signing with key. issuer and
// audience are stamped on every token and enforced on parse.
func NewTokenProvider(key []byte, issuer, audience string, accessTTL time.Duration) *TokenProvider {
	return &TokenProvider{
		key:       key,
		issuer:    issuer,
		audience:  audience,
		accessTTL: accessTTL,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Sign stamps the registered claims (iss, aud, iat, exp; jti = sessionID) onto
// claims and returns the signed token string and its exact expiry.
func (p *TokenProvider) Sign(claims *AccessClaims, sessionID string) (string, time.Time, error) {
	now := p.now()
	expiresAt := now.Add(p.accessTTL)
	claims.RegisteredClaims = jwt.RegisteredClaims{
		ID:        sessionID,
		Subject:   claims.AccountID,
		Issuer:    p.issuer,
		Audience:  jwt.ClaimStrings{p.audience},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := t.SignedString(p.key)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// Parse verifies the token's signature, issuer, audience, and expiry (no
// leeway) and returns its claims. It distinguishes ErrTokenExpired from
// ErrInvalidToken so callers can report the failure reason; it never panics
// on malformed input.
func (p *TokenProvider) Parse(tokenString string) (*AccessClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &AccessClaims{},
		func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, ErrInvalidToken
			}
			return p.key, nil
		},
		jwt.WithIssuer(p.issuer),
		jwt.WithAudience(p.audience),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrInvalidToken
	}
	claims, ok := token.Claims.(*AccessClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// AccessTTL returns the configured access-token lifetime.
func (p *TokenProvider) AccessTTL() time.Duration { return p.accessTTL }
