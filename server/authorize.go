package server

import (
	"context"
	"errors"
	"time"

	"github.com/ferrolog/oauth-server/ident"
	"github.com/ferrolog/oauth-server/instrumentation"
	"github.com/ferrolog/oauth-server/storage"
)

// ResponseTypeCode is the only supported authorization response type.
const ResponseTypeCode = "code"

// Decision is the user's consent decision on an authorization request.
type Decision int

const (
	// DecisionNone means no decision has been made yet (initial GET).
	DecisionNone Decision = iota
	// DecisionAccept grants the authorization.
	DecisionAccept
	// DecisionDeny refuses the authorization.
	DecisionDeny
)

// AuthorizeRequest is an interactive authorization request. UserID comes
// from the session collaborator; the engine never authenticates users.
type AuthorizeRequest struct {
	ResponseType string
	ClientID     string
	RedirectURI  string
	Scope        string
	State        string

	UserID   string
	Decision Decision

	// ClientIP is used for audit logging only.
	ClientIP string
}

// OutcomeKind classifies the result of an authorization request.
type OutcomeKind int

const (
	// OutcomeRedirect sends the browser to RedirectURL, which carries either
	// a code or a protocol error in its query parameters.
	OutcomeRedirect OutcomeKind = iota
	// OutcomeConsent asks the UI to display the consent prompt.
	OutcomeConsent
	// OutcomeForbidden renders a direct error page. Used whenever no
	// validated redirect target exists: an unverified URI is never followed.
	OutcomeForbidden
)

// AuthorizeResult is the outcome of an authorization request.
type AuthorizeResult struct {
	Kind OutcomeKind

	// RedirectURL is set for OutcomeRedirect.
	RedirectURL string

	// Reason is set for OutcomeForbidden.
	Reason string

	// Client and Scope are set for OutcomeConsent, for the consent UI.
	Client *storage.Client
	Scope  storage.Scope
}

func redirectOutcome(url string) *AuthorizeResult {
	return &AuthorizeResult{Kind: OutcomeRedirect, RedirectURL: url}
}

func forbiddenOutcome(reason string) *AuthorizeResult {
	return &AuthorizeResult{Kind: OutcomeForbidden, Reason: reason}
}

// errorRedirect delivers a protocol error via redirect query parameters.
func errorRedirect(redirectURI, state string, protoErr *Error) *AuthorizeResult {
	return redirectOutcome(makeRedirectURL(redirectURI,
		"error", protoErr.Code,
		"error_description", protoErr.Description,
		"state", state,
	))
}

// Authorize runs the Authorization Flow. The validation order determines
// whether a failure can be delivered via redirect or must be rendered
// directly: until a redirect target is validated, errors that would require
// one become OutcomeForbidden.
func (s *Server) Authorize(ctx context.Context, req *AuthorizeRequest) *AuthorizeResult {
	ctx, span := s.startSpan(ctx, "server.authorize")
	defer span.End()
	instrumentation.AddFlowAttributes(span, req.ClientID, req.UserID, req.Scope)

	if m := s.metrics(); m != nil {
		m.RecordAuthorizationRequest(ctx, req.ClientID)
	}

	// Authentication is the session collaborator's job; the engine only
	// refuses to proceed without it.
	if req.UserID == "" {
		instrumentation.SetSpanError(span, "unauthenticated")
		return forbiddenOutcome("Authentication required")
	}

	// 1. client_id presence. With a supplied redirect_uri the error goes
	// back by redirect; with nothing to redirect to, render directly.
	if req.ClientID == "" {
		instrumentation.SetSpanError(span, "missing client_id")
		if req.RedirectURI != "" {
			return errorRedirect(req.RedirectURI, req.State, invalidRequest("client_id missing"))
		}
		return forbiddenOutcome("Missing client_id")
	}

	// 2. Client resolution.
	client, err := s.clients.GetClientByKey(ctx, req.ClientID)
	if err != nil {
		if errors.Is(err, storage.ErrClientNotFound) {
			instrumentation.SetSpanError(span, "unknown client")
			if req.RedirectURI != "" {
				return errorRedirect(req.RedirectURI, req.State, unauthorizedClient("Unknown client_id"))
			}
			return forbiddenOutcome("Unknown client_id")
		}
		s.Logger.Error("Client lookup failed", "error", err, "client_key", req.ClientID)
		instrumentation.RecordError(span, err)
		if req.RedirectURI != "" {
			return errorRedirect(req.RedirectURI, req.State, serverError("Client lookup failed"))
		}
		return forbiddenOutcome("Server error")
	}

	// 3. Active check. The registered redirect URI is trustworthy now.
	if !client.Active {
		instrumentation.SetSpanError(span, "inactive client")
		return errorRedirect(client.RedirectURI, req.State, unauthorizedClient("Client is inactive"))
	}

	// 4. Redirect URI cross-check (hostname rule). Errors go to the
	// registered URI, never the rejected one.
	redirectURI, protoErr := validateRedirectURI(client, req.RedirectURI)
	if protoErr != nil {
		if s.Auditor != nil {
			s.Auditor.LogInvalidRedirect(client.Key, req.ClientIP, req.RedirectURI)
		}
		if m := s.metrics(); m != nil {
			m.RecordInvalidRedirect(ctx, client.Key)
		}
		instrumentation.SetSpanError(span, "invalid redirect_uri")
		return errorRedirect(client.RedirectURI, req.State, protoErr)
	}

	// 5. response_type.
	if req.ResponseType == "" {
		return errorRedirect(redirectURI, req.State, invalidRequest("response_type missing"))
	}
	if req.ResponseType != ResponseTypeCode {
		return errorRedirect(redirectURI, req.State, unsupportedResponseType("Only code is supported"))
	}

	// 6. Scope: must be exactly the supported set.
	scope := storage.ParseScope(req.Scope)
	if scope.IsEmpty() {
		return errorRedirect(redirectURI, req.State, invalidRequest("Scope not specified"))
	}
	if !scope.Equal(s.supportedScope()) {
		return errorRedirect(redirectURI, req.State, invalidScope("Unknown scope"))
	}

	switch {
	case req.Decision == DecisionNone && client.Trusted:
		// Trusted clients skip the consent prompt, not authentication.
		return s.issueGrantRedirect(ctx, client, req, redirectURI, scope)

	case req.Decision == DecisionAccept:
		return s.issueGrantRedirect(ctx, client, req, redirectURI, scope)

	case req.Decision == DecisionDeny:
		if s.Auditor != nil {
			s.Auditor.LogAuthorizationDenied(req.UserID, client.Key, req.ClientIP)
		}
		return errorRedirect(redirectURI, req.State, accessDenied("User denied the request"))

	default:
		// No decision yet: present consent. Idempotent, nothing is stored.
		return &AuthorizeResult{
			Kind:   OutcomeConsent,
			Client: client,
			Scope:  scope,
		}
	}
}

// issueGrantRedirect creates a single-use authorization grant and redirects
// with the code (and state when present).
func (s *Server) issueGrantRedirect(ctx context.Context, client *storage.Client, req *AuthorizeRequest, redirectURI string, scope storage.Scope) *AuthorizeResult {
	now := time.Now()
	grant := &storage.Grant{
		Code:        ident.NewSecret(),
		UserID:      req.UserID,
		ClientKey:   client.Key,
		Scope:       scope,
		RedirectURI: redirectURI,
		CreatedAt:   now,
		ExpiresAt:   now.Add(s.Config.GrantValidity),
	}

	if err := s.grants.SaveGrant(ctx, grant); err != nil {
		s.Logger.Error("Failed to save grant", "error", err, "client_key", client.Key)
		return errorRedirect(redirectURI, req.State, serverError("Could not issue authorization code"))
	}

	if s.Auditor != nil {
		s.Auditor.LogCodeIssued(req.UserID, client.Key, req.ClientIP, scope.String())
	}
	if m := s.metrics(); m != nil {
		m.RecordCodeIssued(ctx, client.Key)
	}

	s.Logger.Info("Issued authorization code",
		"client_key", client.Key,
		"trusted", client.Trusted,
		"scope", scope.String())

	return redirectOutcome(makeRedirectURL(redirectURI,
		"code", grant.Code,
		"state", req.State,
	))
}
