package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"audit-central/backend/internal/account/domain"
	acctrepo "audit-central/backend/internal/account/repository"
	"audit-central/backend/internal/activity"
	"audit-central/backend/internal/notify"
	"audit-central/backend/internal/otp"
	refreshrepo "audit-central/backend/internal/refresh/repository"
	"audit-central/backend/internal/security"
	sessionrepo "audit-central/backend/internal/session/repository"
	tenantrepo "audit-central/backend/internal/tenant/repository"
	"audit-central/backend/internal/token"
)

const minPasswordLength = 8

// Service orchestrates the authentication flows: credential checks, session
// lifecycle, token issuance and password resets. It never logs plaintext
// passwords, tokens or reset codes.
type Service struct {
	accounts acctrepo.Repository
	resolver acctrepo.ContextResolver
	sessions sessionrepo.Registry
	refresh  refreshrepo.Store
	tenants  tenantrepo.Lookup

	hasher    *security.Hasher
	issuer    *token.Issuer
	validator *token.Validator

	codes    *otp.Store
	notifier notify.Notifier
	recorder *activity.Recorder
	log      *slog.Logger

	now func() time.Time
}

func NewService(
	accounts acctrepo.Repository,
	resolver acctrepo.ContextResolver,
	sessions sessionrepo.Registry,
	refresh refreshrepo.Store,
	tenants tenantrepo.Lookup,
	hasher *security.Hasher,
	issuer *token.Issuer,
	validator *token.Validator,
	codes *otp.Store,
	notifier notify.Notifier,
	recorder *activity.Recorder,
	log *slog.Logger,
) *Service {
	return &Service{
		accounts:  accounts,
		resolver:  resolver,
		sessions:  sessions,
		refresh:   refresh,
		tenants:   tenants,
		hasher:    hasher,
		issuer:    issuer,
		validator: validator,
		codes:     codes,
		notifier:  notifier,
		recorder:  recorder,
		log:       log,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// LoginRequest carries one login attempt.
type LoginRequest struct {
	Email    string
	Password string
	// Force displaces any active session instead of reporting a conflict.
	Force  bool
	Device string
	Origin string
}

// TokenResult is returned by Login, Refresh and SwitchContext.
type TokenResult struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	Account      *domain.Account
	Context      *domain.Context

	PreviousSessionRevoked bool
	SessionMessage         string
}

// Login verifies credentials and mints a token pair on a fresh session. When
// the account already holds an active session and Force is false it returns a
// *SessionConflictError listing the sessions that would be displaced.
func (s *Service) Login(ctx context.Context, req LoginRequest) (*TokenResult, error) {
	email := strings.TrimSpace(req.Email)
	if email == "" || req.Password == "" {
		return nil, fmt.Errorf("%w: email and password are required", ErrInvalidArgument)
	}

	acct, err := s.accounts.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, acctrepo.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("load account: %w", err)
	}
	if !acct.Active {
		return nil, ErrAccountInactive
	}

	ok, err := s.hasher.Verify(req.Password, acct.PasswordHash)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	if !ok {
		s.recorder.Record(ctx, acct.ID, activity.ActionLoginFailed, req.Origin, req.Device, "wrong password")
		return nil, ErrInvalidCredentials
	}

	// Rehash legacy digests now that we hold the verified plaintext. A
	// failure here must not block the login.
	if s.hasher.NeedsMigration(acct.PasswordHash) {
		if rehash, err := s.hasher.Migrate(req.Password); err == nil {
			if err := s.accounts.UpdatePasswordHash(ctx, acct.ID, rehash); err != nil {
				s.log.WarnContext(ctx, "password rehash not persisted",
					slog.String("account_id", acct.ID), slog.String("error", err.Error()))
			}
		}
	}

	if !acct.Elevated() {
		if err := s.checkLicense(ctx, acct.TenantID); err != nil {
			return nil, err
		}
	}

	if !req.Force {
		active, err := s.sessions.HasActive(ctx, acct.ID)
		if err != nil {
			return nil, fmt.Errorf("check sessions: %w", err)
		}
		if active {
			summaries, err := s.sessions.ListActive(ctx, acct.ID)
			if err != nil {
				return nil, fmt.Errorf("list sessions: %w", err)
			}
			return nil, &SessionConflictError{Sessions: summaries}
		}
	}

	workCtx, err := s.resolveContext(ctx, acct)
	if err != nil {
		return nil, err
	}

	pair, err := s.issuer.Mint(ctx, token.MintRequest{
		Account: acct,
		Context: workCtx,
		Device:  req.Device,
		Origin:  req.Origin,
	})
	if err != nil {
		return nil, err
	}

	if workCtx != nil {
		if err := s.resolver.RecordContext(ctx, acct.ID, workCtx); err != nil {
			s.log.WarnContext(ctx, "context not recorded",
				slog.String("account_id", acct.ID), slog.String("error", err.Error()))
		}
		if workCtx.ModuleID != "" && workCtx.ModuleID != acct.LastModuleID {
			if err := s.accounts.UpdateLastModule(ctx, acct.ID, workCtx.ModuleID); err != nil {
				s.log.WarnContext(ctx, "last module not persisted",
					slog.String("account_id", acct.ID), slog.String("error", err.Error()))
			}
		}
	}
	s.recorder.Record(ctx, acct.ID, activity.ActionLogin, req.Origin, req.Device, "")

	res := &TokenResult{
		AccessToken:            pair.AccessToken,
		RefreshToken:           pair.RefreshToken,
		ExpiresAt:              pair.ExpiresAt,
		Account:                acct,
		Context:                workCtx,
		PreviousSessionRevoked: len(pair.Superseded) > 0,
	}
	if res.PreviousSessionRevoked {
		res.SessionMessage = "Your session on another device has been signed out."
	}
	return res, nil
}

// Refresh redeems a refresh token and rotates the pair on the same session.
// The raw token may arrive URL-encoded; both forms are accepted.
func (s *Service) Refresh(ctx context.Context, rawToken, device, origin string) (*TokenResult, error) {
	rawToken = strings.TrimSpace(rawToken)
	if rawToken == "" {
		return nil, fmt.Errorf("%w: refresh token is required", ErrInvalidArgument)
	}
	rec, err := s.refresh.Redeem(ctx, rawToken)
	if errors.Is(err, refreshrepo.ErrNotFound) {
		// Tokens arriving via form posts or cookies may be URL-encoded; a raw
		// token can itself contain '+', so the decoded form is only a fallback.
		if unescaped, uerr := url.QueryUnescape(rawToken); uerr == nil && unescaped != rawToken {
			rec, err = s.refresh.Redeem(ctx, unescaped)
		}
	}
	if err != nil {
		switch {
		case errors.Is(err, refreshrepo.ErrNotFound):
			return nil, ErrRefreshUnknown
		case errors.Is(err, refreshrepo.ErrExpired):
			return nil, ErrRefreshExpired
		case errors.Is(err, refreshrepo.ErrRevoked):
			return nil, ErrRefreshRevoked
		case errors.Is(err, refreshrepo.ErrAlreadyUsed):
			s.log.WarnContext(ctx, "refresh token replay detected")
			return nil, ErrRefreshReplayed
		}
		return nil, fmt.Errorf("redeem refresh token: %w", err)
	}

	acct, err := s.accounts.GetByID(ctx, rec.AccountID)
	if err != nil {
		if errors.Is(err, acctrepo.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("load account: %w", err)
	}
	if !acct.Active {
		return nil, ErrAccountInactive
	}
	if !acct.Elevated() {
		if err := s.checkLicense(ctx, acct.TenantID); err != nil {
			return nil, err
		}
	}

	workCtx, err := s.resolveContext(ctx, acct)
	if err != nil {
		return nil, err
	}

	pair, err := s.issuer.Mint(ctx, token.MintRequest{
		Account:        acct,
		Context:        workCtx,
		Device:         device,
		Origin:         origin,
		ReuseSessionID: rec.SessionID,
	})
	if err != nil {
		if errors.Is(err, token.ErrSessionInvalid) {
			return nil, ErrSessionInvalid
		}
		return nil, err
	}

	s.recorder.Record(ctx, acct.ID, activity.ActionRefresh, origin, device, "")

	return &TokenResult{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		ExpiresAt:    pair.ExpiresAt,
		Account:      acct,
		Context:      workCtx,
	}, nil
}

// Logout revokes every session and refresh credential of the account.
func (s *Service) Logout(ctx context.Context, claims *security.AccessClaims, device, origin string) error {
	if claims == nil || claims.AccountID == "" {
		return fmt.Errorf("%w: missing account", ErrInvalidArgument)
	}
	superseded, err := s.sessions.RevokeAll(ctx, claims.AccountID)
	if err != nil {
		return fmt.Errorf("revoke sessions: %w", err)
	}
	if err := s.refresh.RevokeSessions(ctx, superseded); err != nil {
		return fmt.Errorf("revoke refresh credentials: %w", err)
	}
	s.recorder.Record(ctx, claims.AccountID, activity.ActionLogout, origin, device, "")
	return nil
}

// SwitchContext re-issues tokens for a different organization on the same
// session. The session id, and therefore the jti, is preserved.
func (s *Service) SwitchContext(ctx context.Context, claims *security.AccessClaims, organizationID, yearID, device, origin string) (*TokenResult, error) {
	if claims == nil || claims.AccountID == "" {
		return nil, fmt.Errorf("%w: missing account", ErrInvalidArgument)
	}
	if organizationID == "" {
		return nil, fmt.Errorf("%w: organizationId is required", ErrInvalidArgument)
	}

	acct, err := s.accounts.GetByID(ctx, claims.AccountID)
	if err != nil {
		if errors.Is(err, acctrepo.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("load account: %w", err)
	}
	if !acct.Active {
		return nil, ErrAccountInactive
	}
	if !acct.Elevated() {
		if err := s.checkLicense(ctx, acct.TenantID); err != nil {
			return nil, err
		}
	}

	grant, err := s.resolver.RoleFor(ctx, acct.ID, organizationID)
	if err != nil {
		if errors.Is(err, acctrepo.ErrNotFound) {
			return nil, ErrNoGrants
		}
		return nil, fmt.Errorf("resolve role: %w", err)
	}
	if yearID == "" {
		yearID, err = s.resolver.LatestYear(ctx, organizationID)
		if err != nil {
			return nil, fmt.Errorf("resolve year: %w", err)
		}
	} else {
		ok, err := s.resolver.YearBelongs(ctx, organizationID, yearID)
		if err != nil {
			return nil, fmt.Errorf("resolve year: %w", err)
		}
		if !ok {
			return nil, fmt.Errorf("%w: year does not belong to the organization", ErrInvalidArgument)
		}
	}

	workCtx := &domain.Context{
		TenantID:       grant.TenantID,
		OrganizationID: grant.OrganizationID,
		RoleID:         grant.RoleID,
		YearID:         yearID,
		ModuleID:       claims.ModuleID,
		Timezone:       grant.Timezone,
	}

	pair, err := s.issuer.Mint(ctx, token.MintRequest{
		Account:        acct,
		Context:        workCtx,
		Device:         device,
		Origin:         origin,
		ReuseSessionID: claims.SessionID(),
	})
	if err != nil {
		if errors.Is(err, token.ErrSessionInvalid) {
			return nil, ErrSessionInvalid
		}
		return nil, err
	}

	if err := s.resolver.RecordContext(ctx, acct.ID, workCtx); err != nil {
		s.log.WarnContext(ctx, "context not recorded",
			slog.String("account_id", acct.ID), slog.String("error", err.Error()))
	}
	s.recorder.Record(ctx, acct.ID, activity.ActionSwitchContext, origin, device, "organization "+organizationID)

	return &TokenResult{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		ExpiresAt:    pair.ExpiresAt,
		Account:      acct,
		Context:      workCtx,
	}, nil
}

// ForgotPassword generates a reset code and delivers it to the account's
// email. The outcome is identical whether or not the address exists, so the
// endpoint cannot be used to enumerate accounts.
func (s *Service) ForgotPassword(ctx context.Context, email, origin string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return fmt.Errorf("%w: email is required", ErrInvalidArgument)
	}

	acct, err := s.accounts.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, acctrepo.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("load account: %w", err)
	}
	if !acct.Active {
		return nil
	}

	code, err := otp.Generate()
	if err != nil {
		return fmt.Errorf("generate code: %w", err)
	}
	if err := s.codes.Put(ctx, acct.ID, code); err != nil {
		return err
	}
	if err := s.notifier.SendResetCode(ctx, acct.Email, acct.Name, code); err != nil {
		return fmt.Errorf("send reset code: %w", err)
	}
	s.recorder.Record(ctx, acct.ID, activity.ActionResetRequest, origin, "", "")
	return nil
}

// ResetPassword consumes a reset code, stores the new password hash, and
// revokes every session and refresh credential the account holds.
func (s *Service) ResetPassword(ctx context.Context, email, code, newPassword, origin string) error {
	email = strings.TrimSpace(email)
	if email == "" || code == "" {
		return fmt.Errorf("%w: email and code are required", ErrInvalidArgument)
	}
	if len(newPassword) < minPasswordLength {
		return ErrWeakPassword
	}

	acct, err := s.accounts.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, acctrepo.ErrNotFound) {
			return ErrResetCodeInvalid
		}
		return fmt.Errorf("load account: %w", err)
	}

	if err := s.codes.Consume(ctx, acct.ID, code); err != nil {
		switch {
		case errors.Is(err, otp.ErrNotFound), errors.Is(err, otp.ErrMismatch), errors.Is(err, otp.ErrAttemptsExceeded):
			return ErrResetCodeInvalid
		}
		return err
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.accounts.UpdatePasswordHash(ctx, acct.ID, hash); err != nil {
		return fmt.Errorf("store password: %w", err)
	}

	// A reset implies the old password may be compromised; nothing issued
	// under it survives.
	if _, err := s.sessions.RevokeAll(ctx, acct.ID); err != nil {
		return fmt.Errorf("revoke sessions: %w", err)
	}
	if err := s.refresh.DeleteAllForAccount(ctx, acct.ID); err != nil {
		return fmt.Errorf("delete refresh credentials: %w", err)
	}

	s.recorder.Record(ctx, acct.ID, activity.ActionResetDone, origin, "", "")
	return nil
}

// Me returns the account behind validated claims.
func (s *Service) Me(ctx context.Context, claims *security.AccessClaims) (*domain.Account, error) {
	if claims == nil || claims.AccountID == "" {
		return nil, fmt.Errorf("%w: missing account", ErrInvalidArgument)
	}
	acct, err := s.accounts.GetByID(ctx, claims.AccountID)
	if err != nil {
		if errors.Is(err, acctrepo.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("load account: %w", err)
	}
	return acct, nil
}

// Validate exposes the token validator for the validate-token endpoint and
// the auth middleware.
func (s *Service) Validate(ctx context.Context, tokenString string) (*token.Result, error) {
	return s.validator.Validate(ctx, tokenString)
}

func (s *Service) checkLicense(ctx context.Context, tenantID string) error {
	expiry, err := s.tenants.LicenseExpiry(ctx, tenantID)
	if err != nil {
		if errors.Is(err, tenantrepo.ErrNotFound) {
			return ErrLicenseExpired
		}
		return fmt.Errorf("license expiry: %w", err)
	}
	if !expiry.After(s.now()) {
		return ErrLicenseExpired
	}
	return nil
}

// resolveContext picks the account's working scope. Elevated accounts carry
// none.
func (s *Service) resolveContext(ctx context.Context, acct *domain.Account) (*domain.Context, error) {
	if acct.Elevated() {
		return nil, nil
	}
	workCtx, err := s.resolver.LastContext(ctx, acct.ID)
	if err != nil {
		if errors.Is(err, acctrepo.ErrNotFound) {
			return nil, ErrNoGrants
		}
		return nil, fmt.Errorf("resolve context: %w", err)
	}
	if workCtx.ModuleID == "" {
		workCtx.ModuleID = acct.LastModuleID
	}
	return workCtx, nil
}
