// Package security provides the cross-cutting security utilities for the
// authorization server: audit logging with PII hashing, per-client rate
// limiting, response security headers, client IP extraction behind proxies,
// and request ID propagation.
package security
