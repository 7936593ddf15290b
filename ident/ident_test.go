package ident

import (
	"strings"
	"testing"
)

func TestNewID(t *testing.T) {
	id := NewID()
	if len(id) != 22 {
		t.Errorf("NewID() length = %d, want 22", len(id))
	}
	if strings.ContainsAny(id, "+/=") {
		t.Errorf("NewID() = %q, must be URL-safe without padding", id)
	}
}

func TestNewSecret(t *testing.T) {
	secret := NewSecret()
	if len(secret) != 44 {
		t.Errorf("NewSecret() length = %d, want 44", len(secret))
	}
	if strings.ContainsAny(secret, "+/=") {
		t.Errorf("NewSecret() = %q, must be URL-safe without padding", secret)
	}
}

func TestNewIDUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := NewID()
		if seen[id] {
			t.Fatalf("NewID() produced duplicate %q", id)
		}
		seen[id] = true
	}
}
