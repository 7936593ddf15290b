package storage

import (
	"testing"
	"time"
)

func TestAccessTokenSetAlgorithm(t *testing.T) {
	tok := &AccessToken{Type: TokenTypeBearer, Secret: "s3cret"}

	if err := tok.SetAlgorithm("hmac-sha-256"); err != nil {
		t.Fatalf("SetAlgorithm(hmac-sha-256) = %v", err)
	}
	if tok.Algorithm != "hmac-sha-256" {
		t.Errorf("Algorithm = %q, want hmac-sha-256", tok.Algorithm)
	}

	if err := tok.SetAlgorithm("hmac-md5"); err == nil {
		t.Error("expected error for unrecognized algorithm")
	}
	if tok.Algorithm != "hmac-sha-256" {
		t.Errorf("failed SetAlgorithm must not change Algorithm, got %q", tok.Algorithm)
	}

	if err := tok.SetAlgorithm(""); err != nil {
		t.Fatalf("SetAlgorithm(\"\") = %v", err)
	}
	if tok.Algorithm != "" || tok.Secret != "" {
		t.Errorf("clearing algorithm must clear secret, got alg=%q secret=%q", tok.Algorithm, tok.Secret)
	}
}

func TestAccessTokenExpired(t *testing.T) {
	now := time.Now()

	perpetual := &AccessToken{Validity: 0, CreatedAt: now.Add(-24 * 365 * time.Hour)}
	if perpetual.Expired(now) {
		t.Error("token with validity 0 must never expire")
	}

	live := &AccessToken{Validity: 3600, CreatedAt: now.Add(-30 * time.Minute)}
	if live.Expired(now) {
		t.Error("token within its validity window must not be expired")
	}

	stale := &AccessToken{Validity: 3600, CreatedAt: now.Add(-2 * time.Hour)}
	if !stale.Expired(now) {
		t.Error("token past its validity window must be expired")
	}
}

func TestGrantExpired(t *testing.T) {
	now := time.Now()

	fresh := &Grant{CreatedAt: now.Add(-59 * time.Second), ExpiresAt: now.Add(time.Second)}
	if fresh.Expired(now) {
		t.Error("grant inside the 60s window must not be expired")
	}

	stale := &Grant{CreatedAt: now.Add(-61 * time.Second), ExpiresAt: now.Add(-time.Second)}
	if !stale.Expired(now) {
		t.Error("grant past the 60s window must be expired")
	}
}
