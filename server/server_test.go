package server

import (
	"context"
	"testing"
	"time"

	"github.com/ferrolog/oauth-server/identity"
	"github.com/ferrolog/oauth-server/storage"
	"github.com/ferrolog/oauth-server/storage/memory"
)

const (
	testClientKey    = "testclientkey-22chars0"
	testClientSecret = "testclientsecret-44chars-0000000000000000000"
	testRedirectURI  = "https://app.example.com/callback"
	testUserID       = "user-1"
)

// newTestServer builds an engine over in-memory stores with one registered
// client and one directory user.
func newTestServer(t *testing.T, cfg *Config) (*Server, *memory.Store) {
	t.Helper()

	store := memory.New()
	t.Cleanup(store.Stop)

	now := time.Now()
	err := store.SaveClient(context.Background(), &storage.Client{
		Key:         testClientKey,
		Secret:      testClientSecret,
		Title:       "Test App",
		RedirectURI: testRedirectURI,
		Active:      true,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	if err != nil {
		t.Fatalf("SaveClient: %v", err)
	}

	users := identity.NewDirectory()
	if err := users.AddUser(&identity.User{ID: testUserID, Username: "alice", Email: "alice@example.com"}, "correct horse"); err != nil {
		t.Fatalf("AddUser: %v", err)
	}

	srv, err := New(store, store, store, users, cfg, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return srv, store
}

// setClient mutates the test client record in place.
func setClient(t *testing.T, store *memory.Store, mutate func(*storage.Client)) {
	t.Helper()
	ctx := context.Background()
	client, err := store.GetClientByKey(ctx, testClientKey)
	if err != nil {
		t.Fatalf("GetClientByKey: %v", err)
	}
	mutate(client)
	if err := store.SaveClient(ctx, client); err != nil {
		t.Fatalf("SaveClient: %v", err)
	}
}

func TestNewRequiresCollaborators(t *testing.T) {
	store := memory.New()
	t.Cleanup(store.Stop)
	users := identity.NewDirectory()

	if _, err := New(nil, store, store, users, nil, nil); err == nil {
		t.Error("expected error for nil client store")
	}
	if _, err := New(store, nil, store, users, nil, nil); err == nil {
		t.Error("expected error for nil grant store")
	}
	if _, err := New(store, store, nil, users, nil, nil); err == nil {
		t.Error("expected error for nil token store")
	}
	if _, err := New(store, store, store, nil, nil, nil); err == nil {
		t.Error("expected error for nil identity verifier")
	}
}

func TestConfigDefaults(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	if got := srv.Config.GrantValidity; got != 60*time.Second {
		t.Errorf("GrantValidity = %v, want 60s", got)
	}
	if got := srv.Config.TokenValidity; got != 0 {
		t.Errorf("TokenValidity = %d, want 0", got)
	}
	if !srv.supportedScope().Equal(storage.Scope{"id"}) {
		t.Errorf("SupportedScopes = %v, want [id]", srv.Config.SupportedScopes)
	}
	if srv.Config.LoginURL != "/login" {
		t.Errorf("LoginURL = %q, want /login", srv.Config.LoginURL)
	}
}

func TestRevokeToken(t *testing.T) {
	srv, store := newTestServer(t, nil)
	ctx := context.Background()

	token := &storage.AccessToken{
		Token:     "tokenvalue",
		Type:      storage.TokenTypeBearer,
		ClientKey: testClientKey,
		UserID:    testUserID,
		CreatedAt: time.Now(),
	}
	if err := store.SaveToken(ctx, token); err != nil {
		t.Fatalf("SaveToken: %v", err)
	}

	if err := srv.RevokeToken(ctx, "tokenvalue", "203.0.113.7"); err != nil {
		t.Fatalf("RevokeToken: %v", err)
	}
	if _, err := store.GetToken(ctx, "tokenvalue"); err == nil {
		t.Error("token should be gone after revocation")
	}

	if err := srv.RevokeToken(ctx, "missing", ""); err == nil {
		t.Error("expected error revoking an unknown token")
	}
}
