package server

import (
	"log/slog"
	"time"
)

const (
	// DefaultGrantValidity is the lifetime of an authorization code.
	DefaultGrantValidity = 60 * time.Second

	// DefaultTokenValidity is the access token lifetime in seconds.
	// 0 means tokens do not expire unless explicitly revoked.
	DefaultTokenValidity = 0
)

// Config holds protocol engine configuration.
type Config struct {
	// SupportedScopes is the scope token set the engine grants. Authorization
	// requests must ask for exactly this set. Default: {"id"}.
	SupportedScopes []string

	// GrantValidity is the authorization code lifetime.
	// Default: 60 seconds.
	GrantValidity time.Duration

	// TokenValidity is the access token lifetime in seconds. 0 means issued
	// tokens never expire; revocation is the only way to invalidate them.
	TokenValidity int64

	// ServerURL is the public base URL of the authorization server, used for
	// security header decisions (HSTS only on https).
	ServerURL string

	// LoginURL is where the HTTP layer sends unauthenticated users, with a
	// "next" query parameter pointing back at the authorization request.
	LoginURL string

	// TrustProxy enables X-Forwarded-For / X-Real-IP parsing. Only set when
	// a trusted reverse proxy fronts the server.
	TrustProxy bool

	// TrustedProxyCount is the number of trusted proxies in the chain.
	TrustedProxyCount int

	// AuditEnabled turns on security audit logging.
	AuditEnabled bool
}

// applyDefaults fills in unset configuration values.
func applyDefaults(config *Config, logger *slog.Logger) *Config {
	if config == nil {
		config = &Config{}
	}
	if len(config.SupportedScopes) == 0 {
		config.SupportedScopes = []string{"id"}
	}
	if config.GrantValidity <= 0 {
		config.GrantValidity = DefaultGrantValidity
	}
	if config.TokenValidity < 0 {
		logger.Warn("Negative token validity, using non-expiring tokens", "token_validity", config.TokenValidity)
		config.TokenValidity = DefaultTokenValidity
	}
	if config.LoginURL == "" {
		config.LoginURL = "/login"
	}
	return config
}
