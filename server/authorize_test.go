package server

import (
	"context"
	"net/url"
	"testing"

	"github.com/ferrolog/oauth-server/storage"
)

// validAuthRequest returns an authorization request that passes every
// validation step for the test client.
func validAuthRequest() *AuthorizeRequest {
	return &AuthorizeRequest{
		ResponseType: ResponseTypeCode,
		ClientID:     testClientKey,
		RedirectURI:  testRedirectURI,
		Scope:        "id",
		State:        "xyzzy",
		UserID:       testUserID,
	}
}

// redirectQuery fails the test unless the result is a redirect, and returns
// its parsed query parameters.
func redirectQuery(t *testing.T, result *AuthorizeResult) url.Values {
	t.Helper()
	if result.Kind != OutcomeRedirect {
		t.Fatalf("result kind = %v, want OutcomeRedirect", result.Kind)
	}
	u, err := url.Parse(result.RedirectURL)
	if err != nil {
		t.Fatalf("redirect URL %q: %v", result.RedirectURL, err)
	}
	return u.Query()
}

func TestAuthorizeUnauthenticated(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	req := validAuthRequest()
	req.UserID = ""
	result := srv.Authorize(context.Background(), req)

	if result.Kind != OutcomeForbidden {
		t.Errorf("result kind = %v, want OutcomeForbidden", result.Kind)
	}
}

func TestAuthorizeMissingClientID(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	t.Run("no redirect target yields direct error", func(t *testing.T) {
		req := validAuthRequest()
		req.ClientID = ""
		req.RedirectURI = ""
		result := srv.Authorize(context.Background(), req)

		if result.Kind != OutcomeForbidden {
			t.Errorf("result kind = %v, want OutcomeForbidden", result.Kind)
		}
	})

	t.Run("supplied redirect carries the error", func(t *testing.T) {
		req := validAuthRequest()
		req.ClientID = ""
		result := srv.Authorize(context.Background(), req)

		q := redirectQuery(t, result)
		if q.Get("error") != ErrorInvalidRequest {
			t.Errorf("error = %q, want invalid_request", q.Get("error"))
		}
		if q.Get("state") != "xyzzy" {
			t.Errorf("state = %q, want xyzzy", q.Get("state"))
		}
	})
}

func TestAuthorizeUnknownClient(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	req := validAuthRequest()
	req.ClientID = "nosuchclient"
	result := srv.Authorize(context.Background(), req)

	q := redirectQuery(t, result)
	if q.Get("error") != ErrorUnauthorizedClient {
		t.Errorf("error = %q, want unauthorized_client", q.Get("error"))
	}

	req.RedirectURI = ""
	result = srv.Authorize(context.Background(), req)
	if result.Kind != OutcomeForbidden {
		t.Errorf("without redirect_uri, kind = %v, want OutcomeForbidden", result.Kind)
	}
}

func TestAuthorizeInactiveClient(t *testing.T) {
	srv, store := newTestServer(t, nil)
	setClient(t, store, func(c *storage.Client) { c.Active = false })

	result := srv.Authorize(context.Background(), validAuthRequest())

	q := redirectQuery(t, result)
	if q.Get("error") != ErrorUnauthorizedClient {
		t.Errorf("error = %q, want unauthorized_client", q.Get("error"))
	}
}

func TestAuthorizeRedirectHostnameRule(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	t.Run("foreign hostname rejected", func(t *testing.T) {
		req := validAuthRequest()
		req.RedirectURI = "https://evil.example.net/callback"
		result := srv.Authorize(context.Background(), req)

		if result.Kind != OutcomeRedirect {
			t.Fatalf("result kind = %v, want OutcomeRedirect", result.Kind)
		}
		u, _ := url.Parse(result.RedirectURL)
		if u.Hostname() != "app.example.com" {
			t.Errorf("error redirected to %q, must go to the registered host", u.Hostname())
		}
		if u.Query().Get("error") != ErrorInvalidRequest {
			t.Errorf("error = %q, want invalid_request", u.Query().Get("error"))
		}
	})

	t.Run("same hostname different path accepted", func(t *testing.T) {
		req := validAuthRequest()
		req.RedirectURI = "https://app.example.com/alternate/cb"
		result := srv.Authorize(context.Background(), req)

		// Untrusted client with no decision: consent prompt.
		if result.Kind != OutcomeConsent {
			t.Fatalf("result kind = %v, want OutcomeConsent", result.Kind)
		}
	})
}

func TestAuthorizeResponseType(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	req := validAuthRequest()
	req.ResponseType = ""
	if q := redirectQuery(t, srv.Authorize(context.Background(), req)); q.Get("error") != ErrorInvalidRequest {
		t.Errorf("missing response_type: error = %q, want invalid_request", q.Get("error"))
	}

	req = validAuthRequest()
	req.ResponseType = "token"
	if q := redirectQuery(t, srv.Authorize(context.Background(), req)); q.Get("error") != ErrorUnsupportedResponseType {
		t.Errorf("implicit flow: error = %q, want unsupported_response_type", q.Get("error"))
	}
}

func TestAuthorizeScope(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	req := validAuthRequest()
	req.Scope = ""
	if q := redirectQuery(t, srv.Authorize(context.Background(), req)); q.Get("error") != ErrorInvalidRequest {
		t.Errorf("empty scope: error = %q, want invalid_request", q.Get("error"))
	}

	req = validAuthRequest()
	req.Scope = "id email"
	if q := redirectQuery(t, srv.Authorize(context.Background(), req)); q.Get("error") != ErrorInvalidScope {
		t.Errorf("unknown scope: error = %q, want invalid_scope", q.Get("error"))
	}
}

func TestAuthorizeConsentPrompt(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	ctx := context.Background()

	result := srv.Authorize(ctx, validAuthRequest())

	if result.Kind != OutcomeConsent {
		t.Fatalf("result kind = %v, want OutcomeConsent", result.Kind)
	}
	if result.Client == nil || result.Client.Key != testClientKey {
		t.Errorf("consent client = %+v", result.Client)
	}
	if !result.Scope.Equal(storage.Scope{"id"}) {
		t.Errorf("consent scope = %v", result.Scope)
	}

	// Re-display is idempotent: no grant was created.
	again := srv.Authorize(ctx, validAuthRequest())
	if again.Kind != OutcomeConsent {
		t.Errorf("repeat kind = %v, want OutcomeConsent", again.Kind)
	}
}

func TestAuthorizeAccept(t *testing.T) {
	srv, store := newTestServer(t, nil)
	ctx := context.Background()

	req := validAuthRequest()
	req.Decision = DecisionAccept
	result := srv.Authorize(ctx, req)

	q := redirectQuery(t, result)
	code := q.Get("code")
	if len(code) != 44 {
		t.Errorf("code length = %d, want 44", len(code))
	}
	if q.Get("state") != "xyzzy" {
		t.Errorf("state = %q, want xyzzy", q.Get("state"))
	}

	grant, err := store.GetGrant(ctx, code, testClientKey)
	if err != nil {
		t.Fatalf("GetGrant: %v", err)
	}
	if grant.UserID != testUserID || !grant.Scope.Equal(storage.Scope{"id"}) {
		t.Errorf("unexpected grant: %+v", grant)
	}
	if grant.RedirectURI != testRedirectURI {
		t.Errorf("grant redirect = %q, want %q", grant.RedirectURI, testRedirectURI)
	}
}

func TestAuthorizeAcceptPreservesQueryParams(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	req := validAuthRequest()
	req.RedirectURI = "https://app.example.com/cb?x=1"
	req.Decision = DecisionAccept
	req.State = ""
	result := srv.Authorize(context.Background(), req)

	q := redirectQuery(t, result)
	if q.Get("x") != "1" {
		t.Errorf("existing query param lost: %v", q)
	}
	if q.Get("code") == "" {
		t.Error("code missing from redirect")
	}
	if _, ok := q["state"]; ok {
		t.Error("absent state must not appear in the redirect")
	}
}

func TestAuthorizeDeny(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	req := validAuthRequest()
	req.Decision = DecisionDeny
	result := srv.Authorize(context.Background(), req)

	q := redirectQuery(t, result)
	if q.Get("error") != ErrorAccessDenied {
		t.Errorf("error = %q, want access_denied", q.Get("error"))
	}
	if q.Get("state") != "xyzzy" {
		t.Errorf("state = %q, want xyzzy", q.Get("state"))
	}
}

func TestAuthorizeTrustedBypass(t *testing.T) {
	srv, store := newTestServer(t, nil)
	setClient(t, store, func(c *storage.Client) { c.Trusted = true })

	// No decision, trusted client: code issued with no consent step.
	result := srv.Authorize(context.Background(), validAuthRequest())

	q := redirectQuery(t, result)
	if q.Get("code") == "" {
		t.Fatal("trusted client should receive a code without consent")
	}

	// Trust bypasses consent, not authentication.
	req := validAuthRequest()
	req.UserID = ""
	if result := srv.Authorize(context.Background(), req); result.Kind != OutcomeForbidden {
		t.Errorf("unauthenticated trusted request kind = %v, want OutcomeForbidden", result.Kind)
	}
}
