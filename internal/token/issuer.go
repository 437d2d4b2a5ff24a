package token

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	acctdomain "audit-central/backend/internal/account/domain"
	refreshrepo "audit-central/backend/internal/refresh/repository"
	"audit-central/backend/internal/security"
	sessiondomain "audit-central/backend/internal/session/domain"
	sessionrepo "audit-central/backend/internal/session/repository"
	tenantrepo "audit-central/backend/internal/tenant/repository"
)

// ErrSessionInvalid is returned when minting is asked to reuse a session that
// was revoked or superseded by a newer login.
var ErrSessionInvalid = errors.New("token: session is no longer valid")

// MintRequest describes one token issuance.
type MintRequest struct {
	Account *acctdomain.Account
	Context *acctdomain.Context
	Device  string
	Origin  string
	// ReuseSessionID keeps the caller on its existing session (context switch,
	// refresh rotation). Empty starts a fresh session, superseding any other.
	ReuseSessionID string
}

// Pair is the outcome of a successful mint.
type Pair struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	SessionID    string
	// Superseded lists session ids invalidated by this login, empty on reuse.
	Superseded []string
}

// Issuer mints access/refresh token pairs. Every pair is bound to exactly one
// session row; fresh mints supersede any other active session for the account
// and revoke the refresh credentials those sessions held.
type Issuer struct {
	provider *security.TokenProvider
	sessions sessionrepo.Registry
	refresh  refreshrepo.Store
	tenants  tenantrepo.Lookup

	tokenHashKey []byte
	sessionTTL   time.Duration
}

func NewIssuer(provider *security.TokenProvider, sessions sessionrepo.Registry, refresh refreshrepo.Store, tenants tenantrepo.Lookup, tokenHashKey string, sessionTTL time.Duration) *Issuer {
	return &Issuer{
		provider:     provider,
		sessions:     sessions,
		refresh:      refresh,
		tenants:      tenants,
		tokenHashKey: []byte(tokenHashKey),
		sessionTTL:   sessionTTL,
	}
}

// Mint issues a token pair for the account in the given working context.
func (i *Issuer) Mint(ctx context.Context, req MintRequest) (*Pair, error) {
	sessionID := req.ReuseSessionID
	var superseded []string

	if sessionID == "" {
		sessionID = uuid.New().String()
		_, prior, err := i.sessions.InvalidatePreviousAndCreate(ctx, req.Account.ID, sessionID, i.sessionTTL, req.Device, req.Origin)
		if err != nil {
			return nil, fmt.Errorf("create session: %w", err)
		}
		superseded = prior
		if len(prior) > 0 {
			if err := i.refresh.RevokeSessions(ctx, prior); err != nil {
				return nil, fmt.Errorf("revoke superseded refresh credentials: %w", err)
			}
		}
	} else {
		status, err := i.sessions.CheckStatus(ctx, req.Account.ID, sessionID)
		if err != nil {
			return nil, fmt.Errorf("check session: %w", err)
		}
		if status == sessiondomain.StatusInvalid {
			return nil, ErrSessionInvalid
		}
		// Extends the expired or still-active row in place so the session id,
		// and therefore the jti, survives the rotation.
		if err := i.sessions.RenewExpired(ctx, req.Account.ID, sessionID, i.sessionTTL); err != nil {
			if errors.Is(err, sessionrepo.ErrNotRenewable) {
				return nil, ErrSessionInvalid
			}
			return nil, fmt.Errorf("renew session: %w", err)
		}
	}

	claims := &security.AccessClaims{
		Email:     req.Account.Email,
		AccountID: req.Account.ID,
		Timezone:  req.Account.Timezone,
	}
	if req.Context != nil {
		claims.TenantID = req.Context.TenantID
		claims.OrganizationID = req.Context.OrganizationID
		claims.RoleID = req.Context.RoleID
		claims.YearID = req.Context.YearID
		claims.ModuleID = req.Context.ModuleID
		if req.Context.Timezone != "" {
			claims.Timezone = req.Context.Timezone
		}
		if req.Context.OrganizationID != "" {
			tax, err := i.tenants.TaxConfig(ctx, req.Context.OrganizationID)
			if err != nil {
				return nil, fmt.Errorf("tax config: %w", err)
			}
			claims.TaxConfig = tax
		}
	}

	signed, expiresAt, err := i.provider.Sign(claims, sessionID)
	if err != nil {
		return nil, fmt.Errorf("sign token: %w", err)
	}

	hash := security.HashAccessToken(signed, i.tokenHashKey)
	if err := i.sessions.RecordTokenHash(ctx, req.Account.ID, sessionID, hash, expiresAt); err != nil {
		return nil, fmt.Errorf("record token hash: %w", err)
	}

	refreshPlain, rec, err := i.refresh.Issue(ctx, sessionID, req.Account.ID, req.Origin)
	if err != nil {
		return nil, fmt.Errorf("issue refresh credential: %w", err)
	}
	if req.ReuseSessionID != "" {
		// Rotation: older credentials on this session stop working now, not
		// when someone tries to replay them.
		if err := i.refresh.RevokeAllForSession(ctx, sessionID, rec.ID); err != nil {
			return nil, fmt.Errorf("revoke rotated refresh credentials: %w", err)
		}
	}

	return &Pair{
		AccessToken:  signed,
		RefreshToken: refreshPlain,
		ExpiresAt:    expiresAt,
		SessionID:    sessionID,
		Superseded:   superseded,
	}, nil
}
