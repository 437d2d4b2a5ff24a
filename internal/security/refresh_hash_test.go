package security

import "testing"

func TestHashRefreshTokenDeterministic(t *testing.T) {
	a := HashRefreshToken("token-a")
	b := HashRefreshToken("token-a")
	if a != b {
		t.Fatalf("same token hashed differently: %q vs %q", a, b)
	}
	if len(a) != 64 {
		t.Fatalf("hash length = %d, want 64 hex chars", len(a))
	}
	if a == "token-a" {
		t.Fatal("hash equals plaintext")
	}
}

func TestRefreshTokenHashEqual(t *testing.T) {
	stored := HashRefreshToken("secret")
	if !RefreshTokenHashEqual("secret", stored) {
		t.Error("matching token rejected")
	}
	if RefreshTokenHashEqual("other", stored) {
		t.Error("non-matching token accepted")
	}
}

func TestHashAccessTokenKeyed(t *testing.T) {
	h1 := HashAccessToken("tok", []byte("key-one"))
	h2 := HashAccessToken("tok", []byte("key-two"))
	if h1 == h2 {
		t.Error("different keys produced the same hash")
	}
	if h1 != HashAccessToken("tok", []byte("key-one")) {
		t.Error("hash not deterministic for same key")
	}
}
