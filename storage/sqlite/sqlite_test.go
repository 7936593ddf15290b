package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/ferrolog/oauth-server/storage"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(filepath.Join(t.TempDir(), "oauth.db"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	// Grants and tokens reference a client row.
	now := time.Now()
	err = store.SaveClient(context.Background(), &storage.Client{
		Key:         "clientkey",
		Secret:      "clientsecret",
		Title:       "Test App",
		RedirectURI: "https://app.example.com/callback",
		Active:      true,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	if err != nil {
		t.Fatalf("SaveClient: %v", err)
	}
	return store
}

func testGrant(code string) *storage.Grant {
	now := time.Now()
	return &storage.Grant{
		Code:        code,
		UserID:      "user-1",
		ClientKey:   "clientkey",
		Scope:       storage.Scope{"id"},
		RedirectURI: "https://app.example.com/callback",
		CreatedAt:   now,
		ExpiresAt:   now.Add(time.Minute),
	}
}

func TestClientRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	got, err := store.GetClientByKey(ctx, "clientkey")
	if err != nil {
		t.Fatalf("GetClientByKey: %v", err)
	}
	if got.Title != "Test App" || !got.Active || got.Trusted {
		t.Errorf("unexpected client: %+v", got)
	}

	// Upsert updates in place.
	got.Trusted = true
	got.UpdatedAt = time.Now()
	if err := store.SaveClient(ctx, got); err != nil {
		t.Fatalf("SaveClient update: %v", err)
	}
	again, err := store.GetClientByKey(ctx, "clientkey")
	if err != nil {
		t.Fatalf("GetClientByKey: %v", err)
	}
	if !again.Trusted {
		t.Error("client update was not persisted")
	}

	if _, err := store.GetClientByKey(ctx, "missing"); !errors.Is(err, storage.ErrClientNotFound) {
		t.Errorf("error = %v, want ErrClientNotFound", err)
	}
}

func TestGrantRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.SaveGrant(ctx, testGrant("code-1")); err != nil {
		t.Fatalf("SaveGrant: %v", err)
	}

	got, err := store.GetGrant(ctx, "code-1", "clientkey")
	if err != nil {
		t.Fatalf("GetGrant: %v", err)
	}
	if got.UserID != "user-1" || got.Used || !got.Scope.Equal(storage.Scope{"id"}) {
		t.Errorf("unexpected grant: %+v", got)
	}

	if _, err := store.GetGrant(ctx, "code-1", "otherclient"); !errors.Is(err, storage.ErrGrantNotFound) {
		t.Errorf("error = %v, want ErrGrantNotFound", err)
	}
}

func TestClaimGrant(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.SaveGrant(ctx, testGrant("code-1")); err != nil {
		t.Fatalf("SaveGrant: %v", err)
	}

	grant, err := store.ClaimGrant(ctx, "code-1", "clientkey")
	if err != nil {
		t.Fatalf("ClaimGrant: %v", err)
	}
	if !grant.Used {
		t.Error("claimed grant should be marked used")
	}

	if _, err := store.ClaimGrant(ctx, "code-1", "clientkey"); !errors.Is(err, storage.ErrGrantUsed) {
		t.Errorf("second claim error = %v, want ErrGrantUsed", err)
	}
}

func TestClaimGrantExpired(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	grant := testGrant("code-1")
	grant.CreatedAt = time.Now().Add(-2 * time.Minute)
	grant.ExpiresAt = time.Now().Add(-time.Minute)
	if err := store.SaveGrant(ctx, grant); err != nil {
		t.Fatalf("SaveGrant: %v", err)
	}

	if _, err := store.ClaimGrant(ctx, "code-1", "clientkey"); !errors.Is(err, storage.ErrGrantExpired) {
		t.Errorf("error = %v, want ErrGrantExpired", err)
	}
}

func TestClaimGrantUnknown(t *testing.T) {
	store := newTestStore(t)

	if _, err := store.ClaimGrant(context.Background(), "missing", "clientkey"); !errors.Is(err, storage.ErrGrantNotFound) {
		t.Errorf("error = %v, want ErrGrantNotFound", err)
	}
}

func TestClaimGrantConcurrent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.SaveGrant(ctx, testGrant("code-1")); err != nil {
		t.Fatalf("SaveGrant: %v", err)
	}

	const workers = 10
	var wg sync.WaitGroup
	results := make(chan error, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.ClaimGrant(ctx, "code-1", "clientkey")
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	successes := 0
	for err := range results {
		switch {
		case err == nil:
			successes++
		case errors.Is(err, storage.ErrGrantUsed):
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if successes != 1 {
		t.Errorf("successes = %d, want exactly 1", successes)
	}
}

func TestTokenRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	now := time.Now()
	token := &storage.AccessToken{
		Token:     "tokenvalue",
		Type:      storage.TokenTypeBearer,
		ClientKey: "clientkey",
		UserID:    "user-1",
		Scope:     storage.Scope{"id", "email"},
		Validity:  3600,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := store.SaveToken(ctx, token); err != nil {
		t.Fatalf("SaveToken: %v", err)
	}

	got, err := store.GetToken(ctx, "tokenvalue")
	if err != nil {
		t.Fatalf("GetToken: %v", err)
	}
	if got.UserID != "user-1" || got.Validity != 3600 || !got.Scope.Equal(storage.Scope{"id", "email"}) {
		t.Errorf("unexpected token: %+v", got)
	}

	if err := store.DeleteToken(ctx, "tokenvalue"); err != nil {
		t.Fatalf("DeleteToken: %v", err)
	}
	if _, err := store.GetToken(ctx, "tokenvalue"); !errors.Is(err, storage.ErrTokenNotFound) {
		t.Errorf("error after delete = %v, want ErrTokenNotFound", err)
	}
}

func TestCleanup(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	expired := testGrant("expired-code")
	expired.CreatedAt = time.Now().Add(-2 * time.Minute)
	expired.ExpiresAt = time.Now().Add(-time.Minute)
	if err := store.SaveGrant(ctx, expired); err != nil {
		t.Fatalf("SaveGrant: %v", err)
	}
	if err := store.SaveGrant(ctx, testGrant("live-code")); err != nil {
		t.Fatalf("SaveGrant: %v", err)
	}

	stale := &storage.AccessToken{
		Token:     "stale",
		ClientKey: "clientkey",
		Validity:  1,
		CreatedAt: time.Now().Add(-time.Hour),
		UpdatedAt: time.Now().Add(-time.Hour),
	}
	if err := store.SaveToken(ctx, stale); err != nil {
		t.Fatalf("SaveToken: %v", err)
	}
	perpetual := &storage.AccessToken{
		Token:     "perpetual",
		ClientKey: "clientkey",
		Validity:  0,
		CreatedAt: time.Now().Add(-time.Hour),
		UpdatedAt: time.Now().Add(-time.Hour),
	}
	if err := store.SaveToken(ctx, perpetual); err != nil {
		t.Fatalf("SaveToken: %v", err)
	}

	if err := store.Cleanup(ctx); err != nil {
		t.Fatalf("Cleanup: %v", err)
	}

	if _, err := store.GetGrant(ctx, "expired-code", "clientkey"); !errors.Is(err, storage.ErrGrantNotFound) {
		t.Error("expired grant should have been removed")
	}
	if _, err := store.GetGrant(ctx, "live-code", "clientkey"); err != nil {
		t.Errorf("live grant was removed: %v", err)
	}
	if _, err := store.GetToken(ctx, "stale"); !errors.Is(err, storage.ErrTokenNotFound) {
		t.Error("expired token should have been removed")
	}
	if _, err := store.GetToken(ctx, "perpetual"); err != nil {
		t.Errorf("non-expiring token was removed: %v", err)
	}
}
