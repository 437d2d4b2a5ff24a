package token

import (
	"context"
	"errors"
	"fmt"
	"time"

	acctrepo "audit-central/backend/internal/account/repository"
	"audit-central/backend/internal/security"
	sessiondomain "audit-central/backend/internal/session/domain"
	sessionrepo "audit-central/backend/internal/session/repository"
	tenantrepo "audit-central/backend/internal/tenant/repository"
)

// Outcome classifies a validation attempt.
type Outcome int

const (
	OutcomeValid Outcome = iota
	// OutcomeMalformed covers garbage, bad signatures, and wrong issuer or
	// audience.
	OutcomeMalformed
	// OutcomeExpired covers both a lapsed token expiry and a lapsed session.
	OutcomeExpired
	// OutcomeRevoked means the signature and expiry were fine but the session
	// behind the token was revoked or superseded by a newer login.
	OutcomeRevoked
	OutcomeAccountInactive
	OutcomeLicenseExpired
)

func (o Outcome) String() string {
	switch o {
	case OutcomeValid:
		return "valid"
	case OutcomeMalformed:
		return "malformed"
	case OutcomeExpired:
		return "expired"
	case OutcomeRevoked:
		return "revoked"
	case OutcomeAccountInactive:
		return "account_inactive"
	case OutcomeLicenseExpired:
		return "license_expired"
	default:
		return "unknown"
	}
}

// Result is the full verdict on a presented token. Claims is populated only
// when the signature checked out, so callers can log who presented a revoked
// token.
type Result struct {
	Outcome Outcome
	Claims  *security.AccessClaims
	Message string
}

// Valid reports whether the token passed every check.
func (r *Result) Valid() bool { return r.Outcome == OutcomeValid }

// Validator verifies presented access tokens. Signature validity alone is not
// enough: the backing session must still be active, and for tenant-scoped
// tokens the account must be active and the tenant's license current.
type Validator struct {
	provider *security.TokenProvider
	sessions sessionrepo.Registry
	accounts acctrepo.Repository
	tenants  tenantrepo.Lookup

	now func() time.Time
}

func NewValidator(provider *security.TokenProvider, sessions sessionrepo.Registry, accounts acctrepo.Repository, tenants tenantrepo.Lookup) *Validator {
	return &Validator{
		provider: provider,
		sessions: sessions,
		accounts: accounts,
		tenants:  tenants,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Validate classifies the presented token. It returns an error only for
// infrastructure failures; every bad-token shape comes back as a Result.
func (v *Validator) Validate(ctx context.Context, tokenString string) (*Result, error) {
	claims, err := v.provider.Parse(tokenString)
	if err != nil {
		if errors.Is(err, security.ErrTokenExpired) {
			return &Result{Outcome: OutcomeExpired, Message: "token has expired"}, nil
		}
		return &Result{Outcome: OutcomeMalformed, Message: "token is not valid"}, nil
	}

	status, err := v.sessions.CheckStatus(ctx, claims.AccountID, claims.SessionID())
	if err != nil {
		return nil, fmt.Errorf("check session: %w", err)
	}
	switch status {
	case sessiondomain.StatusInvalid:
		return &Result{Outcome: OutcomeRevoked, Claims: claims, Message: "session has been revoked"}, nil
	case sessiondomain.StatusExpired:
		return &Result{Outcome: OutcomeExpired, Claims: claims, Message: "session has expired"}, nil
	}

	if !claims.Elevated() {
		acct, err := v.accounts.GetByID(ctx, claims.AccountID)
		if err != nil {
			if errors.Is(err, acctrepo.ErrNotFound) {
				return &Result{Outcome: OutcomeAccountInactive, Claims: claims, Message: "account no longer exists"}, nil
			}
			return nil, fmt.Errorf("load account: %w", err)
		}
		if !acct.Active {
			return &Result{Outcome: OutcomeAccountInactive, Claims: claims, Message: "account is inactive"}, nil
		}

		expiry, err := v.tenants.LicenseExpiry(ctx, claims.TenantID)
		if err != nil {
			if errors.Is(err, tenantrepo.ErrNotFound) {
				return &Result{Outcome: OutcomeLicenseExpired, Claims: claims, Message: "tenant no longer exists"}, nil
			}
			return nil, fmt.Errorf("license expiry: %w", err)
		}
		if !expiry.After(v.now()) {
			return &Result{Outcome: OutcomeLicenseExpired, Claims: claims, Message: "tenant license has expired"}, nil
		}
	}

	return &Result{Outcome: OutcomeValid, Claims: claims}, nil
}
