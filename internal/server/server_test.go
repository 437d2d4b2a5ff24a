package server

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	acctdomain "audit-central/backend/internal/account/domain"
	acctrepo "audit-central/backend/internal/account/repository"
	"audit-central/backend/internal/activity"
	activityrepo "audit-central/backend/internal/activity/repository"
	"audit-central/backend/internal/auth"
	"audit-central/backend/internal/notify"
	"audit-central/backend/internal/otp"
	refreshrepo "audit-central/backend/internal/refresh/repository"
	"audit-central/backend/internal/security"
	sessionrepo "audit-central/backend/internal/session/repository"
	tenantrepo "audit-central/backend/internal/tenant/repository"
	"audit-central/backend/internal/token"
)

const testPassword = "correct horse battery"

type env struct {
	srv      *httptest.Server
	codec    *security.Codec
	notifier *notify.MemoryNotifier
}

func newEnv(t *testing.T) *env {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	accounts := acctrepo.NewMemoryRepository()
	sessions := sessionrepo.NewMemoryRegistry(24 * time.Hour)
	refresh := refreshrepo.NewMemoryStore(7 * 24 * time.Hour)
	tenants := tenantrepo.NewMemoryLookup()
	notifier := notify.NewMemoryNotifier()
	hasher := security.NewHasher(4)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	provider := security.NewTokenProvider([]byte("test-signing-key"), "audit-central", "audit-central-api", 15*time.Minute)
	issuer := token.NewIssuer(provider, sessions, refresh, tenants, "hash-key", 12*time.Hour)
	validator := token.NewValidator(provider, sessions, accounts, tenants)
	codes := otp.NewStore(client, 10*time.Minute)
	recorder := activity.NewRecorder(activityrepo.NewMemoryRepository(), log)

	svc := auth.NewService(accounts, accounts, sessions, refresh, tenants,
		hasher, issuer, validator, codes, notifier, recorder, log)

	hash, err := hasher.Hash(testPassword)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	accounts.Seed(&acctdomain.Account{
		ID:           "acct-1",
		Email:        "auditor@firm.example",
		Name:         "Auditor",
		Mobile:       "9000000001",
		PasswordHash: hash,
		Active:       true,
		TenantID:     "tenant-1",
		Timezone:     "Asia/Kolkata",
	})
	accounts.SeedGrant(acctdomain.Grant{
		AccountID: "acct-1", TenantID: "tenant-1", OrganizationID: "org-1", RoleID: "role-1",
	})
	accounts.SeedGrant(acctdomain.Grant{
		AccountID: "acct-1", TenantID: "tenant-1", OrganizationID: "org-2", RoleID: "role-9",
	})
	accounts.SeedYears("org-1", "fy-2026")
	accounts.SeedYears("org-2", "fy-2026")
	tenants.SeedLicense("tenant-1", time.Now().UTC().Add(365*24*time.Hour))

	codec := security.NewCodec("0123456789abcdef0123456789abcdef")
	s := New("127.0.0.1:0", svc, codec, log)
	ts := httptest.NewServer(s.Router())
	t.Cleanup(ts.Close)
	return &env{srv: ts, codec: codec, notifier: notifier}
}

func (e *env) post(t *testing.T, path string, body any, headers map[string]string) (*http.Response, map[string]any) {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	req, err := http.NewRequest(http.MethodPost, e.srv.URL+path, bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := e.srv.Client().Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	defer resp.Body.Close()
	var decoded map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp, decoded
}

func (e *env) login(t *testing.T, force bool) map[string]any {
	t.Helper()
	resp, body := e.post(t, "/api/auth/login", map[string]any{
		"email": "auditor@firm.example", "password": testPassword, "force": force,
	}, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login status %d: %v", resp.StatusCode, body)
	}
	return body
}

func TestLoginEndpoint(t *testing.T) {
	e := newEnv(t)
	body := e.login(t, false)

	access, _ := body["accessToken"].(string)
	if access == "" || body["refreshToken"] == "" {
		t.Fatalf("tokens missing: %v", body)
	}
	// The access token ships sealed, not as a bare JWT.
	if strings.Count(access, ".") == 2 {
		t.Fatal("access token is not enveloped")
	}
	plain, err := e.codec.Decrypt(access)
	if err != nil {
		t.Fatalf("unseal: %v", err)
	}
	if strings.Count(plain, ".") != 2 {
		t.Fatalf("unsealed value is not a JWT: %q", plain)
	}
	if body["organizationId"] != "org-1" || body["accountId"] != "acct-1" {
		t.Fatalf("profile fields wrong: %v", body)
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	e := newEnv(t)
	resp, _ := e.post(t, "/api/auth/login", map[string]any{
		"email": "auditor@firm.example", "password": "wrong",
	}, nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("want 401, got %d", resp.StatusCode)
	}
}

func TestLoginConflictThenForce(t *testing.T) {
	e := newEnv(t)
	e.login(t, false)

	resp, body := e.post(t, "/api/auth/login", map[string]any{
		"email": "auditor@firm.example", "password": testPassword,
	}, nil)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("want 409, got %d: %v", resp.StatusCode, body)
	}
	sessions, ok := body["activeSessions"].([]any)
	if !ok || len(sessions) != 1 {
		t.Fatalf("activeSessions missing: %v", body)
	}

	forced := e.login(t, true)
	if forced["previousSessionRevoked"] != true {
		t.Fatalf("forced login should report displacement: %v", forced)
	}
}

func TestRefreshEndpointRotates(t *testing.T) {
	e := newEnv(t)
	first := e.login(t, false)

	resp, body := e.post(t, "/api/auth/refresh-token", map[string]any{
		"refreshToken": first["refreshToken"],
	}, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("refresh status %d: %v", resp.StatusCode, body)
	}
	if body["refreshToken"] == first["refreshToken"] {
		t.Fatal("refresh token not rotated")
	}

	// Replay of the consumed token.
	resp, _ = e.post(t, "/api/auth/refresh-token", map[string]any{
		"refreshToken": first["refreshToken"],
	}, nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("replay: want 401, got %d", resp.StatusCode)
	}
}

func TestProtectedEndpointsRequireAuth(t *testing.T) {
	e := newEnv(t)
	resp, _ := e.post(t, "/api/auth/logout", map[string]any{}, nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("want 401, got %d", resp.StatusCode)
	}
	resp, _ = e.post(t, "/api/auth/logout", map[string]any{}, map[string]string{"Authorization": "Bearer garbage"})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("garbage token: want 401, got %d", resp.StatusCode)
	}
}

func TestMeAndLogout(t *testing.T) {
	e := newEnv(t)
	body := e.login(t, false)
	authz := map[string]string{"Authorization": body["accessToken"].(string)}

	req, _ := http.NewRequest(http.MethodGet, e.srv.URL+"/api/auth/me", nil)
	req.Header.Set("Authorization", authz["Authorization"])
	resp, err := e.srv.Client().Do(req)
	if err != nil {
		t.Fatalf("me: %v", err)
	}
	var me map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&me); err != nil {
		t.Fatalf("decode: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || me["email"] != "auditor@firm.example" {
		t.Fatalf("me: %d %v", resp.StatusCode, me)
	}

	lresp, _ := e.post(t, "/api/auth/logout", map[string]any{}, authz)
	if lresp.StatusCode != http.StatusOK {
		t.Fatalf("logout: %d", lresp.StatusCode)
	}

	// The same token no longer opens the door.
	lresp, _ = e.post(t, "/api/auth/logout", map[string]any{}, authz)
	if lresp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("post-logout: want 401, got %d", lresp.StatusCode)
	}
}

func TestSwitchContextEndpoint(t *testing.T) {
	e := newEnv(t)
	body := e.login(t, false)
	authz := map[string]string{"Authorization": body["accessToken"].(string)}

	resp, switched := e.post(t, "/api/auth/switch-context", map[string]any{
		"organizationId": "org-2",
	}, authz)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("switch: %d %v", resp.StatusCode, switched)
	}
	if switched["organizationId"] != "org-2" || switched["roleId"] != "role-9" {
		t.Fatalf("switched fields wrong: %v", switched)
	}

	resp, _ = e.post(t, "/api/auth/switch-context", map[string]any{
		"organizationId": "org-forbidden",
	}, map[string]string{"Authorization": switched["accessToken"].(string)})
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("forbidden org: want 403, got %d", resp.StatusCode)
	}
}

func TestValidateTokenEndpoint(t *testing.T) {
	e := newEnv(t)
	body := e.login(t, false)

	resp, verdict := e.post(t, "/api/auth/validate-token", map[string]any{
		"token": body["accessToken"],
	}, nil)
	if resp.StatusCode != http.StatusOK || verdict["valid"] != true {
		t.Fatalf("validate: %d %v", resp.StatusCode, verdict)
	}
	if verdict["accountId"] != "acct-1" {
		t.Fatalf("claims missing: %v", verdict)
	}

	resp, verdict = e.post(t, "/api/auth/validate-token", map[string]any{
		"token": "not-a-token",
	}, nil)
	if resp.StatusCode != http.StatusOK || verdict["valid"] != false {
		t.Fatalf("bad token should be valid=false with 200: %d %v", resp.StatusCode, verdict)
	}
}

func TestForgotAndResetPasswordEndpoints(t *testing.T) {
	e := newEnv(t)

	resp, _ := e.post(t, "/api/auth/forgot-password", map[string]any{"email": "auditor@firm.example"}, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("forgot: %d", resp.StatusCode)
	}
	// Unknown address gets the same answer.
	resp2, _ := e.post(t, "/api/auth/forgot-password", map[string]any{"email": "nobody@firm.example"}, nil)
	if resp2.StatusCode != http.StatusOK {
		t.Fatalf("forgot unknown: %d", resp2.StatusCode)
	}

	code := e.notifier.LastCode("auditor@firm.example")
	if code == "" {
		t.Fatal("no code delivered")
	}

	resp, _ = e.post(t, "/api/auth/reset-password", map[string]any{
		"email": "auditor@firm.example", "otp": "000000", "newPassword": "a whole new password",
	}, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("wrong code: want 400, got %d", resp.StatusCode)
	}

	resp, _ = e.post(t, "/api/auth/reset-password", map[string]any{
		"email": "auditor@firm.example", "otp": code, "newPassword": "a whole new password",
	}, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("reset: %d", resp.StatusCode)
	}

	lresp, body := e.post(t, "/api/auth/login", map[string]any{
		"email": "auditor@firm.example", "password": "a whole new password",
	}, nil)
	if lresp.StatusCode != http.StatusOK {
		t.Fatalf("login with new password: %d %v", lresp.StatusCode, body)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	e := newEnv(t)
	for _, path := range []string{"/healthz", "/metrics"} {
		resp, err := e.srv.Client().Get(e.srv.URL + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("GET %s: %d", path, resp.StatusCode)
		}
	}
}
