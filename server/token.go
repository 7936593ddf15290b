package server

import (
	"context"
	"crypto/subtle"
	"errors"
	"time"

	"github.com/ferrolog/oauth-server/identity"
	"github.com/ferrolog/oauth-server/instrumentation"
	"github.com/ferrolog/oauth-server/storage"
)

// Supported grant types. refresh_token is intentionally absent: issued
// tokens are non-expiring by default, so there is nothing to refresh.
const (
	GrantTypeAuthorizationCode = "authorization_code"
	GrantTypeClientCredentials = "client_credentials"
	GrantTypePassword          = "password"
)

// TokenRequest is a non-interactive, server-to-server token request.
type TokenRequest struct {
	GrantType    string
	ClientID     string
	ClientSecret string
	Scope        string

	// authorization_code fields
	Code        string
	RedirectURI string

	// password fields
	Username string
	Password string

	// ClientIP is used for audit logging only.
	ClientIP string
}

// TokenResponse is a successful token issuance. ExpiresIn and RefreshToken
// are present only when the token has a finite validity.
type TokenResponse struct {
	AccessToken  string
	TokenType    string
	Scope        storage.Scope
	ExpiresIn    int64
	RefreshToken string
}

// ExchangeToken runs the Token Exchange Flow under one of the three grant
// types and returns either a token response or a protocol error.
func (s *Server) ExchangeToken(ctx context.Context, req *TokenRequest) (*TokenResponse, *Error) {
	ctx, span := s.startSpan(ctx, "server.exchange_token")
	defer span.End()
	instrumentation.AddFlowAttributes(span, req.ClientID, "", req.Scope)

	// 1. Required parameters.
	if req.GrantType == "" {
		return nil, invalidRequest("grant_type missing")
	}
	if req.ClientID == "" {
		return nil, invalidRequest("client_id missing")
	}
	if req.ClientSecret == "" {
		return nil, invalidRequest("client_secret missing")
	}

	// 2. Grant type vocabulary.
	switch req.GrantType {
	case GrantTypeAuthorizationCode, GrantTypeClientCredentials, GrantTypePassword:
	default:
		return nil, unsupportedGrantType("Unsupported grant_type")
	}

	// 3. Client authentication.
	client, protoErr := s.authenticateClient(ctx, req.ClientID, req.ClientSecret, req.ClientIP)
	if protoErr != nil {
		instrumentation.SetSpanError(span, protoErr.Code)
		return nil, protoErr
	}

	// 4. The password grant is reserved for trusted clients.
	if req.GrantType == GrantTypePassword && !client.Trusted {
		return nil, unauthorizedClient("Client is not trusted")
	}

	var resp *TokenResponse
	switch req.GrantType {
	case GrantTypeAuthorizationCode:
		resp, protoErr = s.exchangeAuthorizationCode(ctx, client, req)
	case GrantTypeClientCredentials:
		resp, protoErr = s.exchangeClientCredentials(ctx, client, req)
	case GrantTypePassword:
		resp, protoErr = s.exchangePassword(ctx, client, req)
	}
	if protoErr != nil {
		instrumentation.SetSpanError(span, protoErr.Code)
		return nil, protoErr
	}
	instrumentation.SetSpanSuccess(span)
	return resp, nil
}

// authenticateClient resolves the client and verifies its secret. Unknown
// key, inactive client, and secret mismatch are all invalid_client; the
// descriptions differ because clients are authenticated parties, not users.
func (s *Server) authenticateClient(ctx context.Context, clientID, clientSecret, clientIP string) (*storage.Client, *Error) {
	client, err := s.clients.GetClientByKey(ctx, clientID)
	if err != nil {
		if errors.Is(err, storage.ErrClientNotFound) {
			return nil, invalidClient("Unknown client_id")
		}
		s.Logger.Error("Client lookup failed", "error", err, "client_key", clientID)
		return nil, serverError("Client lookup failed")
	}
	if !client.Active {
		return nil, invalidClient("Client is inactive")
	}

	if subtle.ConstantTimeCompare([]byte(client.Secret), []byte(clientSecret)) != 1 {
		if s.Auditor != nil {
			s.Auditor.LogAuthFailure("", client.Key, clientIP, "client_secret mismatch")
		}
		return nil, invalidClient("client_secret mismatch")
	}
	return client, nil
}

// exchangeAuthorizationCode redeems a single-use authorization code.
func (s *Server) exchangeAuthorizationCode(ctx context.Context, client *storage.Client, req *TokenRequest) (*TokenResponse, *Error) {
	if req.Code == "" {
		return nil, invalidRequest("code missing")
	}

	grant, err := s.grants.GetGrant(ctx, req.Code, client.Key)
	if err != nil {
		if errors.Is(err, storage.ErrGrantNotFound) {
			return nil, invalidGrant("Unknown auth code")
		}
		s.Logger.Error("Grant lookup failed", "error", err, "client_key", client.Key)
		return nil, serverError("Grant lookup failed")
	}
	if grant.Expired(time.Now()) {
		return nil, invalidGrant("Expired auth code")
	}

	// Scope containment: an omitted scope inherits the grant's scope; a
	// supplied one must be a non-empty subset. Mismatch is returned as
	// invalid_scope like every other failure on this path.
	scope := grant.Scope
	if requested := storage.ParseScope(req.Scope); !requested.IsEmpty() {
		if !grant.Scope.Contains(requested) {
			return nil, invalidScope("Scope expanded")
		}
		scope = requested
	}

	// The redirect URI must be the exact one the code was issued against.
	if req.RedirectURI != grant.RedirectURI {
		return nil, invalidClient("redirect_uri does not match")
	}

	// Atomic claim: of any number of concurrent exchanges for this code,
	// exactly one passes. Validation precedes the claim so a rejected
	// request does not burn the code.
	if _, err := s.grants.ClaimGrant(ctx, req.Code, client.Key); err != nil {
		switch {
		case errors.Is(err, storage.ErrGrantUsed):
			// Reuse is a strong signal the code leaked.
			if s.Auditor != nil {
				s.Auditor.LogCodeReuse(client.Key, req.ClientIP)
			}
			if m := s.metrics(); m != nil {
				m.RecordCodeReuseDetected(ctx)
			}
			s.Logger.Warn("Authorization code reuse detected", "client_key", client.Key)
			return nil, invalidGrant("Auth code has already been used")
		case errors.Is(err, storage.ErrGrantExpired):
			return nil, invalidGrant("Expired auth code")
		case errors.Is(err, storage.ErrGrantNotFound):
			return nil, invalidGrant("Unknown auth code")
		default:
			s.Logger.Error("Grant claim failed", "error", err, "client_key", client.Key)
			return nil, serverError("Grant claim failed")
		}
	}

	if m := s.metrics(); m != nil {
		m.RecordCodeExchange(ctx, client.Key)
	}

	token, protoErr := s.issueToken(ctx, client, grant.UserID, scope, GrantTypeAuthorizationCode, req.ClientIP)
	if protoErr != nil {
		return nil, protoErr
	}
	return tokenResponse(token), nil
}

// exchangeClientCredentials issues a token bound to the client alone.
func (s *Server) exchangeClientCredentials(ctx context.Context, client *storage.Client, req *TokenRequest) (*TokenResponse, *Error) {
	scope := storage.ParseScope(req.Scope)

	token, protoErr := s.issueToken(ctx, client, "", scope, GrantTypeClientCredentials, req.ClientIP)
	if protoErr != nil {
		return nil, protoErr
	}
	return tokenResponse(token), nil
}

// exchangePassword issues a token for a user authenticated by credentials.
// Only trusted clients reach this point.
func (s *Server) exchangePassword(ctx context.Context, client *storage.Client, req *TokenRequest) (*TokenResponse, *Error) {
	if req.Username == "" {
		return nil, invalidRequest("username missing")
	}
	if req.Password == "" {
		return nil, invalidRequest("password missing")
	}

	userID, err := s.users.VerifyCredentials(ctx, req.Username, req.Password)
	if err != nil {
		if errors.Is(err, identity.ErrInvalidCredentials) {
			if s.Auditor != nil {
				s.Auditor.LogAuthFailure("", client.Key, req.ClientIP, "invalid user credentials")
			}
			// invalid_client rather than invalid_grant: the response does
			// not reveal which credential was wrong.
			return nil, invalidClient("Username or password do not match")
		}
		s.Logger.Error("Credential verification failed", "error", err, "client_key", client.Key)
		return nil, serverError("Credential verification failed")
	}

	scope := storage.ParseScope(req.Scope)

	token, protoErr := s.issueToken(ctx, client, userID, scope, GrantTypePassword, req.ClientIP)
	if protoErr != nil {
		return nil, protoErr
	}
	return tokenResponse(token), nil
}

func tokenResponse(token *storage.AccessToken) *TokenResponse {
	resp := &TokenResponse{
		AccessToken: token.Token,
		TokenType:   token.Type,
		Scope:       token.Scope,
	}
	if token.Validity > 0 {
		resp.ExpiresIn = token.Validity
		resp.RefreshToken = token.RefreshToken
	}
	return resp
}
