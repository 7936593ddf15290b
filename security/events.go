package security

// Event type constants for security audit logging. Using constants keeps
// event names consistent across the codebase.
const (
	// Authorization flow events

	// EventAuthorizationCodeIssued is logged when an authorization code is issued.
	EventAuthorizationCodeIssued = "authorization_code_issued"

	// EventAuthorizationDenied is logged when the user denies consent.
	EventAuthorizationDenied = "authorization_denied"

	// EventCodeReuseDetected is logged when an already-claimed authorization
	// code is presented again. Reuse is a strong indicator of code theft.
	EventCodeReuseDetected = "authorization_code_reuse_detected"

	// EventInvalidRedirect is logged when a redirect URI fails validation.
	EventInvalidRedirect = "invalid_redirect"

	// Token lifecycle events

	// EventTokenIssued is logged when a new access token is issued.
	EventTokenIssued = "token_issued"

	// EventTokenRevoked is logged when a token is revoked.
	EventTokenRevoked = "token_revoked"

	// Failure events

	// EventAuthFailure is logged when client or user authentication fails.
	EventAuthFailure = "auth_failure"

	// EventRateLimitExceeded is logged when a rate limit is exceeded.
	EventRateLimitExceeded = "rate_limit_exceeded"

	// Registry events

	// EventClientRegistered is logged when a new client application is registered.
	EventClientRegistered = "client_registered"
)
