package security

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func newTestProvider(ttl time.Duration) *TokenProvider {
	return NewTokenProvider([]byte("unit-test-signing-key"), "audit-central", "audit-api", ttl)
}

func TestSignAndParseRoundTrip(t *testing.T) {
	p := newTestProvider(time.Minute)
	claims := &AccessClaims{
		AccountID:      "acc-1",
		Email:          "a@example.com",
		TenantID:       "ten-1",
		OrganizationID: "org-1",
		RoleID:         "role-1",
		YearID:         "year-1",
		ModuleID:       "mod-1",
		Timezone:       "Asia/Kolkata",
		TaxConfig:      json.RawMessage(`{"code":"GST"}`),
	}
	signed, expiresAt, err := p.Sign(claims, "sess-1")
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if time.Until(expiresAt) <= 0 {
		t.Fatal("expiry not in the future")
	}

	got, err := p.Parse(signed)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got.SessionID() != "sess-1" {
		t.Errorf("SessionID = %q, want sess-1", got.SessionID())
	}
	if got.AccountID != "acc-1" || got.OrganizationID != "org-1" || got.RoleID != "role-1" {
		t.Errorf("claims round-trip mismatch: %+v", got)
	}
	if got.Elevated() {
		t.Error("claims with tenant id reported as elevated")
	}
	if string(got.TaxConfig) != `{"code":"GST"}` {
		t.Errorf("TaxConfig = %s", got.TaxConfig)
	}
}

func TestElevatedClaims(t *testing.T) {
	c := &AccessClaims{AccountID: "acc-1"}
	if !c.Elevated() {
		t.Error("claims without tenant id not reported as elevated")
	}
}

func TestParseRejectsWrongKey(t *testing.T) {
	p := newTestProvider(time.Minute)
	signed, _, err := p.Sign(&AccessClaims{AccountID: "acc-1"}, "sess-1")
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	other := NewTokenProvider([]byte("different-key"), "audit-central", "audit-api", time.Minute)
	if _, err := other.Parse(signed); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("Parse with wrong key = %v, want ErrInvalidToken", err)
	}
}

func TestParseRejectsWrongIssuerAudience(t *testing.T) {
	p := newTestProvider(time.Minute)
	signed, _, _ := p.Sign(&AccessClaims{AccountID: "acc-1"}, "sess-1")

	wrongIss := NewTokenProvider([]byte("unit-test-signing-key"), "someone-else", "audit-api", time.Minute)
	if _, err := wrongIss.Parse(signed); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("wrong issuer accepted: %v", err)
	}
	wrongAud := NewTokenProvider([]byte("unit-test-signing-key"), "audit-central", "other-api", time.Minute)
	if _, err := wrongAud.Parse(signed); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("wrong audience accepted: %v", err)
	}
}

func TestParseExpiredNoLeeway(t *testing.T) {
	p := newTestProvider(time.Minute)
	p.now = func() time.Time { return time.Now().UTC().Add(-2 * time.Minute) }
	signed, _, err := p.Sign(&AccessClaims{AccountID: "acc-1"}, "sess-1")
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	fresh := newTestProvider(time.Minute)
	if _, err := fresh.Parse(signed); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("Parse expired = %v, want ErrTokenExpired", err)
	}
}

func TestParseMalformed(t *testing.T) {
	p := newTestProvider(time.Minute)
	for _, tok := range []string{"", "garbage", "a.b", "a.b.c.d"} {
		if _, err := p.Parse(tok); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("Parse(%q) = %v, want ErrInvalidToken", tok, err)
		}
	}
}
