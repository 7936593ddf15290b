package storage

import (
	"fmt"
	"time"
)

// TokenTypeBearer is the default access token type.
const TokenTypeBearer = "bearer"

// MACAlgorithms lists the algorithms accepted for MAC-type tokens.
// The MAC token type is modeled but not exercised by any flow; the
// algorithm field is validated on write and otherwise inert.
var MACAlgorithms = []string{"hmac-sha-1", "hmac-sha-256"}

// Client is a registered OAuth client application.
//
// The key is globally unique and immutable after creation. The secret is
// shared with the client once at registration and never exposed again.
// Clients are deactivated (Active=false) rather than deleted.
type Client struct {
	Key         string // public identifier, 22 characters
	Secret      string // confidential, 44 characters
	Title       string // human-readable application title
	Website     string // application website
	Owner       string // user who registered the client (registry UI only)
	RedirectURI string // registered callback URI
	Active      bool
	// Trusted clients skip the interactive consent step and may use the
	// password grant. The user must still authenticate; trust bypasses
	// consent UI, not authentication.
	Trusted   bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Grant is a short-lived, single-use authorization code linking a user,
// client, scope, and redirect target.
type Grant struct {
	Code        string // opaque code value, 44 characters
	UserID      string
	ClientKey   string
	Scope       Scope
	RedirectURI string // the URI the code was issued against
	CreatedAt   time.Time
	ExpiresAt   time.Time
	Used        bool
}

// Expired reports whether the grant's validity window has passed at the
// given instant. Grant expiry is strict: no clock-skew grace applies to a
// 60-second credential.
func (g *Grant) Expired(now time.Time) bool {
	return now.After(g.ExpiresAt)
}

// AccessToken is an opaque bearer credential granting a client, optionally
// on behalf of a user, access to resources within a scope.
type AccessToken struct {
	Token        string // opaque token value, 22 characters, unique
	RefreshToken string
	Type         string // TokenTypeBearer by default
	Algorithm    string // MAC algorithm, empty for bearer tokens
	Secret       string // MAC secret, set only when Algorithm is set
	ClientKey    string
	UserID       string // empty for client-only grants
	Scope        Scope
	Validity     int64 // seconds; 0 = non-expiring unless revoked
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// SetAlgorithm sets the MAC algorithm for the token, validating it against
// the fixed algorithm set. Clearing the algorithm also clears the secret.
func (t *AccessToken) SetAlgorithm(algorithm string) error {
	if algorithm == "" {
		t.Algorithm = ""
		t.Secret = ""
		return nil
	}
	for _, a := range MACAlgorithms {
		if algorithm == a {
			t.Algorithm = algorithm
			return nil
		}
	}
	return fmt.Errorf("unrecognized token algorithm %q", algorithm)
}

// Expired reports whether the token's validity window has passed.
// Tokens with Validity 0 never expire.
func (t *AccessToken) Expired(now time.Time) bool {
	if t.Validity == 0 {
		return false
	}
	return now.After(t.CreatedAt.Add(time.Duration(t.Validity) * time.Second))
}
