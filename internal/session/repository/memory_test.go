package repository

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"audit-central/backend/internal/session/domain"
)

func TestInvalidatePreviousAndCreateSupersedes(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRegistry(time.Hour)

	_, superseded, err := r.InvalidatePreviousAndCreate(ctx, "acc-1", "sess-1", time.Hour, "laptop", "10.0.0.1")
	if err != nil {
		t.Fatalf("create first: %v", err)
	}
	if len(superseded) != 0 {
		t.Fatalf("first login superseded %v, want none", superseded)
	}

	_, superseded, err = r.InvalidatePreviousAndCreate(ctx, "acc-1", "sess-2", time.Hour, "phone", "10.0.0.2")
	if err != nil {
		t.Fatalf("create second: %v", err)
	}
	if len(superseded) != 1 || superseded[0] != "sess-1" {
		t.Fatalf("superseded = %v, want [sess-1]", superseded)
	}

	if st, _ := r.CheckStatus(ctx, "acc-1", "sess-1"); st != domain.StatusInvalid {
		t.Errorf("superseded session status = %v, want invalid", st)
	}
	if st, _ := r.CheckStatus(ctx, "acc-1", "sess-2"); st != domain.StatusActive {
		t.Errorf("current session status = %v, want active", st)
	}
}

func TestSingleActiveSessionUnderConcurrentLogins(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRegistry(time.Hour)

	const logins = 32
	var wg sync.WaitGroup
	for i := 0; i < logins; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, _ = r.InvalidatePreviousAndCreate(ctx, "acc-1", uuid.New().String(), time.Hour, "", "")
		}()
	}
	wg.Wait()

	list, err := r.ListActive(ctx, "acc-1")
	if err != nil {
		t.Fatalf("ListActive: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("active sessions after %d racing logins = %d, want 1", logins, len(list))
	}
}

func TestCheckStatusExpiredAndRenew(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRegistry(time.Hour)
	_, _, err := r.InvalidatePreviousAndCreate(ctx, "acc-1", "sess-1", time.Minute, "", "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	r.SetNow(func() time.Time { return time.Now().UTC().Add(2 * time.Minute) })
	if st, _ := r.CheckStatus(ctx, "acc-1", "sess-1"); st != domain.StatusExpired {
		t.Fatalf("status after ttl lapse = %v, want expired", st)
	}

	if err := r.RenewExpired(ctx, "acc-1", "sess-1", time.Minute); err != nil {
		t.Fatalf("RenewExpired: %v", err)
	}
	if st, _ := r.CheckStatus(ctx, "acc-1", "sess-1"); st != domain.StatusActive {
		t.Fatalf("status after renew = %v, want active", st)
	}
}

func TestRenewRevokedFails(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRegistry(time.Hour)
	_, _, _ = r.InvalidatePreviousAndCreate(ctx, "acc-1", "sess-1", time.Minute, "", "")
	if _, err := r.RevokeAll(ctx, "acc-1"); err != nil {
		t.Fatalf("RevokeAll: %v", err)
	}
	if err := r.RenewExpired(ctx, "acc-1", "sess-1", time.Minute); err != ErrNotRenewable {
		t.Fatalf("RenewExpired on revoked = %v, want ErrNotRenewable", err)
	}
	if st, _ := r.CheckStatus(ctx, "acc-1", "sess-1"); st != domain.StatusInvalid {
		t.Fatalf("status = %v, want invalid", st)
	}
}

func TestRenewUnknownSessionFails(t *testing.T) {
	r := NewMemoryRegistry(time.Hour)
	if err := r.RenewExpired(context.Background(), "acc-1", "nope", time.Minute); err != ErrNotRenewable {
		t.Fatalf("RenewExpired = %v, want ErrNotRenewable", err)
	}
}

func TestRecordTokenHash(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRegistry(time.Hour)
	_, _, _ = r.InvalidatePreviousAndCreate(ctx, "acc-1", "sess-1", time.Minute, "", "")

	exp := time.Now().UTC().Add(30 * time.Minute)
	if err := r.RecordTokenHash(ctx, "acc-1", "sess-1", "abc123", exp); err != nil {
		t.Fatalf("RecordTokenHash: %v", err)
	}
	if r.rows["sess-1"].TokenHash != "abc123" {
		t.Error("token hash not recorded")
	}
	if !r.rows["sess-1"].ExpiresAt.Equal(exp) {
		t.Error("expiry not updated to token expiry")
	}
}

func TestTTLClamp(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRegistry(10 * time.Minute)
	_, _, _ = r.InvalidatePreviousAndCreate(ctx, "acc-1", "sess-1", 5*time.Hour, "", "")
	got := r.rows["sess-1"].ExpiresAt.Sub(r.rows["sess-1"].CreatedAt)
	if got != 10*time.Minute {
		t.Fatalf("session ttl = %v, want clamped 10m", got)
	}
}
