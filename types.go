package oauthserver

import "net/http"

// SessionReader resolves the authenticated user for a request. It is the
// session mechanism's contract with the authorization endpoint; cookies,
// headers, or reverse-proxy auth all fit behind it.
type SessionReader interface {
	// CurrentUser returns the user ID for the request's session, or the
	// empty string when the request is unauthenticated.
	CurrentUser(r *http.Request) string
}

// TokenResponse is the JSON body returned by the token endpoint on success.
// ExpiresIn and RefreshToken are present only for expiring tokens.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	Scope        string `json:"scope"`
	ExpiresIn    int64  `json:"expires_in,omitempty"`
	RefreshToken string `json:"refresh_token,omitempty"`
}

// ErrorResponse is the JSON body returned by the token endpoint on protocol
// errors.
type ErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
	ErrorURI         string `json:"error_uri,omitempty"`
}
