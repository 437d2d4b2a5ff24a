package token

import (
	"context"
	"errors"
	"testing"
	"time"

	acctdomain "audit-central/backend/internal/account/domain"
	acctrepo "audit-central/backend/internal/account/repository"
	refreshrepo "audit-central/backend/internal/refresh/repository"
	"audit-central/backend/internal/security"
	sessiondomain "audit-central/backend/internal/session/domain"
	sessionrepo "audit-central/backend/internal/session/repository"
	tenantrepo "audit-central/backend/internal/tenant/repository"
)

type fixture struct {
	provider *security.TokenProvider
	sessions *sessionrepo.MemoryRegistry
	refresh  *refreshrepo.MemoryStore
	accounts *acctrepo.MemoryRepository
	tenants  *tenantrepo.MemoryLookup

	issuer    *Issuer
	validator *Validator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		provider: security.NewTokenProvider([]byte("test-signing-key"), "audit-central", "audit-central-api", 15*time.Minute),
		sessions: sessionrepo.NewMemoryRegistry(24 * time.Hour),
		refresh:  refreshrepo.NewMemoryStore(7 * 24 * time.Hour),
		accounts: acctrepo.NewMemoryRepository(),
		tenants:  tenantrepo.NewMemoryLookup(),
	}
	f.issuer = NewIssuer(f.provider, f.sessions, f.refresh, f.tenants, "hash-key", 12*time.Hour)
	f.validator = NewValidator(f.provider, f.sessions, f.accounts, f.tenants)
	return f
}

func (f *fixture) seedTenantAccount() *acctdomain.Account {
	acct := &acctdomain.Account{
		ID:       "acct-1",
		Email:    "auditor@firm.example",
		Name:     "Auditor",
		Active:   true,
		TenantID: "tenant-1",
		Timezone: "Asia/Kolkata",
	}
	f.accounts.Seed(acct)
	f.tenants.SeedLicense("tenant-1", time.Now().UTC().Add(365*24*time.Hour))
	return acct
}

func tenantContext() *acctdomain.Context {
	return &acctdomain.Context{
		TenantID:       "tenant-1",
		OrganizationID: "org-1",
		RoleID:         "role-1",
		YearID:         "fy-2026",
	}
}

func TestMintAndValidate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	acct := f.seedTenantAccount()

	pair, err := f.issuer.Mint(ctx, MintRequest{Account: acct, Context: tenantContext(), Device: "Chrome/Linux", Origin: "10.0.0.1"})
	if err != nil {
		t.Fatalf("Mint: %v", err)
	}
	if pair.AccessToken == "" || pair.RefreshToken == "" || pair.SessionID == "" {
		t.Fatalf("incomplete pair: %+v", pair)
	}

	res, err := f.validator.Validate(ctx, pair.AccessToken)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if !res.Valid() {
		t.Fatalf("want valid, got %s (%s)", res.Outcome, res.Message)
	}
	if res.Claims.SessionID() != pair.SessionID {
		t.Fatalf("jti %q does not match session %q", res.Claims.SessionID(), pair.SessionID)
	}
	if res.Claims.OrganizationID != "org-1" || res.Claims.YearID != "fy-2026" {
		t.Fatalf("context claims missing: %+v", res.Claims)
	}
}

func TestMintBindsSessionExpiryToToken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	acct := f.seedTenantAccount()

	pair, err := f.issuer.Mint(ctx, MintRequest{Account: acct, Context: tenantContext()})
	if err != nil {
		t.Fatalf("Mint: %v", err)
	}

	// Recording the token hash rebinds the session row to the access token's
	// expiry, not the longer TTL the row was created with.
	f.sessions.SetNow(func() time.Time { return pair.ExpiresAt.Add(-time.Second) })
	if st, _ := f.sessions.CheckStatus(ctx, acct.ID, pair.SessionID); st != sessiondomain.StatusActive {
		t.Fatalf("status before token expiry = %v, want active", st)
	}
	f.sessions.SetNow(func() time.Time { return pair.ExpiresAt.Add(time.Second) })
	if st, _ := f.sessions.CheckStatus(ctx, acct.ID, pair.SessionID); st != sessiondomain.StatusExpired {
		t.Fatalf("status past token expiry = %v, want expired", st)
	}
}

func TestFreshMintSupersedesPreviousSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	acct := f.seedTenantAccount()

	first, err := f.issuer.Mint(ctx, MintRequest{Account: acct, Context: tenantContext()})
	if err != nil {
		t.Fatalf("first Mint: %v", err)
	}
	second, err := f.issuer.Mint(ctx, MintRequest{Account: acct, Context: tenantContext()})
	if err != nil {
		t.Fatalf("second Mint: %v", err)
	}
	if len(second.Superseded) != 1 || second.Superseded[0] != first.SessionID {
		t.Fatalf("want first session superseded, got %v", second.Superseded)
	}

	// The first access token still has a valid signature but its session is gone.
	res, err := f.validator.Validate(ctx, first.AccessToken)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if res.Outcome != OutcomeRevoked {
		t.Fatalf("want revoked, got %s", res.Outcome)
	}

	// Its refresh credential is revoked too, not merely orphaned.
	if _, err := f.refresh.Redeem(ctx, first.RefreshToken); !errors.Is(err, refreshrepo.ErrRevoked) {
		t.Fatalf("first refresh token: want ErrRevoked, got %v", err)
	}
	if _, err := f.refresh.Redeem(ctx, second.RefreshToken); err != nil {
		t.Fatalf("second refresh token should redeem: %v", err)
	}
}

func TestReuseKeepsSessionIDAndRotatesRefresh(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	acct := f.seedTenantAccount()

	first, err := f.issuer.Mint(ctx, MintRequest{Account: acct, Context: tenantContext()})
	if err != nil {
		t.Fatalf("Mint: %v", err)
	}

	switched := tenantContext()
	switched.OrganizationID = "org-2"
	switched.RoleID = "role-2"
	second, err := f.issuer.Mint(ctx, MintRequest{Account: acct, Context: switched, ReuseSessionID: first.SessionID})
	if err != nil {
		t.Fatalf("reuse Mint: %v", err)
	}
	if second.SessionID != first.SessionID {
		t.Fatalf("session id changed on reuse: %q vs %q", second.SessionID, first.SessionID)
	}
	if len(second.Superseded) != 0 {
		t.Fatalf("reuse must not supersede: %v", second.Superseded)
	}

	// The old refresh credential died with the rotation.
	if _, err := f.refresh.Redeem(ctx, first.RefreshToken); !errors.Is(err, refreshrepo.ErrRevoked) {
		t.Fatalf("rotated-out refresh token: want ErrRevoked, got %v", err)
	}
	if _, err := f.refresh.Redeem(ctx, second.RefreshToken); err != nil {
		t.Fatalf("new refresh token should redeem: %v", err)
	}

	res, err := f.validator.Validate(ctx, second.AccessToken)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if !res.Valid() || res.Claims.OrganizationID != "org-2" {
		t.Fatalf("switched claims wrong: %s %+v", res.Outcome, res.Claims)
	}
}

func TestReuseOfRevokedSessionFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	acct := f.seedTenantAccount()

	first, err := f.issuer.Mint(ctx, MintRequest{Account: acct, Context: tenantContext()})
	if err != nil {
		t.Fatalf("Mint: %v", err)
	}
	if _, err := f.sessions.RevokeAll(ctx, acct.ID); err != nil {
		t.Fatalf("RevokeAll: %v", err)
	}

	_, err = f.issuer.Mint(ctx, MintRequest{Account: acct, Context: tenantContext(), ReuseSessionID: first.SessionID})
	if !errors.Is(err, ErrSessionInvalid) {
		t.Fatalf("want ErrSessionInvalid, got %v", err)
	}
}

func TestReuseRenewsExpiredSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	acct := f.seedTenantAccount()

	first, err := f.issuer.Mint(ctx, MintRequest{Account: acct, Context: tenantContext()})
	if err != nil {
		t.Fatalf("Mint: %v", err)
	}

	// Push the registry's clock past the session expiry.
	f.sessions.SetNow(func() time.Time { return time.Now().UTC().Add(48 * time.Hour) })

	second, err := f.issuer.Mint(ctx, MintRequest{Account: acct, Context: tenantContext(), ReuseSessionID: first.SessionID})
	if err != nil {
		t.Fatalf("Mint on expired session: %v", err)
	}
	if second.SessionID != first.SessionID {
		t.Fatal("renewal must keep the session id")
	}

	// The renewed session carries the new token's expiry, so on the current
	// clock both the token and its session check out.
	f.sessions.SetNow(func() time.Time { return time.Now().UTC() })
	res, err := f.validator.Validate(ctx, second.AccessToken)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if !res.Valid() {
		t.Fatalf("renewed session should validate, got %s (%s)", res.Outcome, res.Message)
	}
}

func TestValidateMalformedAndForeignTokens(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, raw := range []string{"", "garbage", "a.b.c"} {
		res, err := f.validator.Validate(ctx, raw)
		if err != nil {
			t.Fatalf("Validate(%q): %v", raw, err)
		}
		if res.Outcome != OutcomeMalformed {
			t.Fatalf("Validate(%q): want malformed, got %s", raw, res.Outcome)
		}
	}

	// A token signed with a different key is malformed, not expired.
	other := security.NewTokenProvider([]byte("other-key"), "audit-central", "audit-central-api", time.Minute)
	signed, _, err := other.Sign(&security.AccessClaims{AccountID: "acct-1"}, "sess-x")
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	res, err := f.validator.Validate(ctx, signed)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if res.Outcome != OutcomeMalformed {
		t.Fatalf("foreign-key token: want malformed, got %s", res.Outcome)
	}
}

func TestValidateInactiveAccountAndLapsedLicense(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	acct := f.seedTenantAccount()

	pair, err := f.issuer.Mint(ctx, MintRequest{Account: acct, Context: tenantContext()})
	if err != nil {
		t.Fatalf("Mint: %v", err)
	}

	acct.Active = false
	f.accounts.Seed(acct)
	res, err := f.validator.Validate(ctx, pair.AccessToken)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if res.Outcome != OutcomeAccountInactive {
		t.Fatalf("want account_inactive, got %s", res.Outcome)
	}

	acct.Active = true
	f.accounts.Seed(acct)
	f.tenants.SeedLicense("tenant-1", time.Now().UTC().Add(-time.Hour))
	res, err = f.validator.Validate(ctx, pair.AccessToken)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if res.Outcome != OutcomeLicenseExpired {
		t.Fatalf("want license_expired, got %s", res.Outcome)
	}
}

func TestElevatedAccountSkipsTenantChecks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	super := &acctdomain.Account{ID: "super-1", Email: "ops@platform.example", Active: true, Super: true}
	f.accounts.Seed(super)

	pair, err := f.issuer.Mint(ctx, MintRequest{Account: super})
	if err != nil {
		t.Fatalf("Mint: %v", err)
	}
	res, err := f.validator.Validate(ctx, pair.AccessToken)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if !res.Valid() {
		t.Fatalf("elevated token should validate, got %s (%s)", res.Outcome, res.Message)
	}
	if !res.Claims.Elevated() {
		t.Fatal("claims should be elevated")
	}
}
