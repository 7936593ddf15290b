package storage

import (
	"context"
	"errors"
)

// Sentinel errors returned by store implementations. Callers match with
// errors.Is; implementations may wrap them with additional detail.
var (
	// ErrClientNotFound indicates no client is registered under the given key.
	// "Found but inactive" is not an error: the caller inspects Client.Active.
	ErrClientNotFound = errors.New("client not found")

	// ErrGrantNotFound indicates no authorization grant exists for the given
	// code and client.
	ErrGrantNotFound = errors.New("authorization grant not found")

	// ErrGrantUsed indicates the grant was already claimed by a previous
	// exchange. Exactly one concurrent claim for a code may succeed; all
	// others observe this error.
	ErrGrantUsed = errors.New("authorization grant already used")

	// ErrGrantExpired indicates the grant's validity window has passed.
	ErrGrantExpired = errors.New("authorization grant expired")

	// ErrTokenNotFound indicates no access token exists for the given value.
	ErrTokenNotFound = errors.New("access token not found")
)

// ClientStore manages registered OAuth client applications.
// The protocol engine only reads clients; writes come from the
// registration collaborator.
// All methods accept context.Context for tracing and cancellation.
type ClientStore interface {
	// GetClientByKey retrieves a client by its public key.
	// Returns ErrClientNotFound for unknown keys.
	GetClientByKey(ctx context.Context, key string) (*Client, error)

	// SaveClient creates or updates a registered client.
	SaveClient(ctx context.Context, client *Client) error
}

// GrantStore manages short-lived, single-use authorization grants.
// All methods accept context.Context for tracing and cancellation.
type GrantStore interface {
	// SaveGrant persists a newly issued grant.
	SaveGrant(ctx context.Context, grant *Grant) error

	// GetGrant retrieves a grant by code and owning client without
	// claiming it. Returns ErrGrantNotFound if absent.
	GetGrant(ctx context.Context, code, clientKey string) (*Grant, error)

	// ClaimGrant atomically checks that the grant exists, is unexpired, and
	// is unused, and marks it used. Only one concurrent claim for the same
	// code may succeed; losers observe ErrGrantUsed. Unknown code/client
	// pairs yield ErrGrantNotFound, expired grants ErrGrantExpired.
	//
	// SECURITY: this operation MUST be atomic. Claim-then-issue is the only
	// defense against concurrent redemption of the same code.
	ClaimGrant(ctx context.Context, code, clientKey string) (*Grant, error)
}

// TokenStore manages issued access tokens.
// All methods accept context.Context for tracing and cancellation.
type TokenStore interface {
	// SaveToken persists an issued access token.
	SaveToken(ctx context.Context, token *AccessToken) error

	// GetToken retrieves a token by its opaque value.
	// Returns ErrTokenNotFound if absent.
	GetToken(ctx context.Context, value string) (*AccessToken, error)

	// DeleteToken removes a token. Revocation is an administrative action;
	// resource servers observe it as the token no longer resolving.
	DeleteToken(ctx context.Context, value string) error
}
