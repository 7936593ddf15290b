// Package server implements the authorization server's protocol engine: the
// Authorization Flow (interactive consent and code issuance) and the Token
// Exchange Flow (code, client_credentials, and password grants). The engine
// is transport-agnostic; the root package adapts it to HTTP.
package server
