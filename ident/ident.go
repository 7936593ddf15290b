// Package ident generates the opaque identifiers and secrets used for client
// keys, authorization codes, and access tokens.
package ident

import (
	"encoding/base64"

	"github.com/google/uuid"
)

// NewID returns a 22-character URL-safe identifier derived from a random
// UUID: the 16 raw bytes, base64url-encoded without padding. Collision
// resistance is that of UUIDv4.
func NewID() string {
	u := uuid.New()
	return base64.RawURLEncoding.EncodeToString(u[:])
}

// NewSecret returns a 44-character URL-safe secret, the concatenation of two
// independent identifiers. Used for client secrets and authorization codes.
func NewSecret() string {
	return NewID() + NewID()
}
