package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"

	"github.com/ferrolog/oauth-server/storage"
)

const schema = `
CREATE TABLE IF NOT EXISTS clients (
	key          TEXT PRIMARY KEY,
	secret       TEXT NOT NULL,
	title        TEXT NOT NULL DEFAULT '',
	website      TEXT NOT NULL DEFAULT '',
	owner        TEXT NOT NULL DEFAULT '',
	redirect_uri TEXT NOT NULL DEFAULT '',
	active       INTEGER NOT NULL DEFAULT 1,
	trusted      INTEGER NOT NULL DEFAULT 0,
	created_at   INTEGER NOT NULL,
	updated_at   INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS grants (
	code         TEXT PRIMARY KEY,
	user_id      TEXT NOT NULL,
	client_key   TEXT NOT NULL REFERENCES clients(key),
	scope        TEXT NOT NULL DEFAULT '',
	redirect_uri TEXT NOT NULL DEFAULT '',
	created_at   INTEGER NOT NULL,
	expires_at   INTEGER NOT NULL,
	used         INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_grants_expires_at ON grants(expires_at);

CREATE TABLE IF NOT EXISTS tokens (
	token         TEXT PRIMARY KEY,
	refresh_token TEXT NOT NULL DEFAULT '',
	type          TEXT NOT NULL DEFAULT 'bearer',
	algorithm     TEXT NOT NULL DEFAULT '',
	secret        TEXT NOT NULL DEFAULT '',
	client_key    TEXT NOT NULL REFERENCES clients(key),
	user_id       TEXT NOT NULL DEFAULT '',
	scope         TEXT NOT NULL DEFAULT '',
	validity      INTEGER NOT NULL DEFAULT 0,
	created_at    INTEGER NOT NULL,
	updated_at    INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_tokens_client_user ON tokens(client_key, user_id);
`

// Store is a SQLite-backed implementation of all storage interfaces.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Compile-time interface checks
var (
	_ storage.ClientStore = (*Store)(nil)
	_ storage.GrantStore  = (*Store)(nil)
	_ storage.TokenStore  = (*Store)(nil)
)

// New opens or creates the SQLite database at path and prepares the schema.
func New(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// WAL mode for concurrent reads
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &Store{db: db, logger: slog.Default()}, nil
}

// SetLogger sets a custom logger
func (s *Store) SetLogger(logger *slog.Logger) {
	s.logger = logger
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// ============================================================
// ClientStore Implementation
// ============================================================

// GetClientByKey retrieves a client by its public key.
func (s *Store) GetClientByKey(ctx context.Context, key string) (*storage.Client, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT key, secret, title, website, owner, redirect_uri, active, trusted, created_at, updated_at
		FROM clients WHERE key = ?`, key)

	var c storage.Client
	var createdAt, updatedAt int64
	err := row.Scan(&c.Key, &c.Secret, &c.Title, &c.Website, &c.Owner,
		&c.RedirectURI, &c.Active, &c.Trusted, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrClientNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query client: %w", err)
	}

	c.CreatedAt = time.UnixMilli(createdAt)
	c.UpdatedAt = time.UnixMilli(updatedAt)
	return &c, nil
}

// SaveClient creates or updates a registered client.
func (s *Store) SaveClient(ctx context.Context, client *storage.Client) error {
	if client == nil {
		return fmt.Errorf("client cannot be nil")
	}
	if client.Key == "" {
		return fmt.Errorf("client key cannot be empty")
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO clients (key, secret, title, website, owner, redirect_uri, active, trusted, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			secret = excluded.secret,
			title = excluded.title,
			website = excluded.website,
			owner = excluded.owner,
			redirect_uri = excluded.redirect_uri,
			active = excluded.active,
			trusted = excluded.trusted,
			updated_at = excluded.updated_at`,
		client.Key, client.Secret, client.Title, client.Website, client.Owner,
		client.RedirectURI, client.Active, client.Trusted,
		client.CreatedAt.UnixMilli(), client.UpdatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to save client: %w", err)
	}

	s.logger.Debug("Saved client", "client_key", client.Key)
	return nil
}

// ============================================================
// GrantStore Implementation
// ============================================================

// SaveGrant persists a newly issued authorization grant.
func (s *Store) SaveGrant(ctx context.Context, grant *storage.Grant) error {
	if grant == nil {
		return fmt.Errorf("grant cannot be nil")
	}
	if grant.Code == "" {
		return fmt.Errorf("grant code cannot be empty")
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO grants (code, user_id, client_key, scope, redirect_uri, created_at, expires_at, used)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		grant.Code, grant.UserID, grant.ClientKey, grant.Scope.String(),
		grant.RedirectURI, grant.CreatedAt.UnixMilli(), grant.ExpiresAt.UnixMilli(), grant.Used)
	if err != nil {
		return fmt.Errorf("failed to save grant: %w", err)
	}
	return nil
}

// GetGrant retrieves a grant without claiming it.
func (s *Store) GetGrant(ctx context.Context, code, clientKey string) (*storage.Grant, error) {
	return s.queryGrant(ctx, code, clientKey)
}

// ClaimGrant atomically checks that the grant is live and marks it used.
//
// SECURITY: the claim is a single conditional UPDATE, so only one concurrent
// exchange can flip used from 0 to 1. Losers then query the row to find out
// whether the grant was missing, expired, or already claimed.
func (s *Store) ClaimGrant(ctx context.Context, code, clientKey string) (*storage.Grant, error) {
	now := time.Now()

	res, err := s.db.ExecContext(ctx, `
		UPDATE grants SET used = 1
		WHERE code = ? AND client_key = ? AND used = 0 AND expires_at >= ?`,
		code, clientKey, now.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("failed to claim grant: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to read claim result: %w", err)
	}
	if affected == 1 {
		return s.queryGrant(ctx, code, clientKey)
	}

	// The claim did not land. Distinguish why.
	grant, err := s.queryGrant(ctx, code, clientKey)
	if err != nil {
		return nil, err
	}
	if grant.Used {
		return grant, storage.ErrGrantUsed
	}
	if grant.Expired(now) {
		return nil, storage.ErrGrantExpired
	}
	// A concurrent claim raced past between the UPDATE and the SELECT.
	return grant, storage.ErrGrantUsed
}

func (s *Store) queryGrant(ctx context.Context, code, clientKey string) (*storage.Grant, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT code, user_id, client_key, scope, redirect_uri, created_at, expires_at, used
		FROM grants WHERE code = ? AND client_key = ?`, code, clientKey)

	var g storage.Grant
	var scope string
	var createdAt, expiresAt int64
	err := row.Scan(&g.Code, &g.UserID, &g.ClientKey, &scope, &g.RedirectURI,
		&createdAt, &expiresAt, &g.Used)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrGrantNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query grant: %w", err)
	}

	g.Scope = storage.ParseScope(scope)
	g.CreatedAt = time.UnixMilli(createdAt)
	g.ExpiresAt = time.UnixMilli(expiresAt)
	return &g, nil
}

// ============================================================
// TokenStore Implementation
// ============================================================

// SaveToken persists an issued access token.
func (s *Store) SaveToken(ctx context.Context, token *storage.AccessToken) error {
	if token == nil {
		return fmt.Errorf("token cannot be nil")
	}
	if token.Token == "" {
		return fmt.Errorf("token value cannot be empty")
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO tokens (token, refresh_token, type, algorithm, secret, client_key, user_id, scope, validity, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		token.Token, token.RefreshToken, token.Type, token.Algorithm, token.Secret,
		token.ClientKey, token.UserID, token.Scope.String(), token.Validity,
		token.CreatedAt.UnixMilli(), token.UpdatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to save token: %w", err)
	}
	return nil
}

// GetToken retrieves a token by its opaque value.
func (s *Store) GetToken(ctx context.Context, value string) (*storage.AccessToken, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT token, refresh_token, type, algorithm, secret, client_key, user_id, scope, validity, created_at, updated_at
		FROM tokens WHERE token = ?`, value)

	var t storage.AccessToken
	var scope string
	var createdAt, updatedAt int64
	err := row.Scan(&t.Token, &t.RefreshToken, &t.Type, &t.Algorithm, &t.Secret,
		&t.ClientKey, &t.UserID, &scope, &t.Validity, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrTokenNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query token: %w", err)
	}

	t.Scope = storage.ParseScope(scope)
	t.CreatedAt = time.UnixMilli(createdAt)
	t.UpdatedAt = time.UnixMilli(updatedAt)
	return &t, nil
}

// DeleteToken removes a token.
func (s *Store) DeleteToken(ctx context.Context, value string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM tokens WHERE token = ?`, value); err != nil {
		return fmt.Errorf("failed to delete token: %w", err)
	}
	return nil
}

// Cleanup removes expired grants and expired tokens. Intended to be run
// periodically by the host application.
func (s *Store) Cleanup(ctx context.Context) error {
	now := time.Now().UnixMilli()

	if _, err := s.db.ExecContext(ctx, `DELETE FROM grants WHERE expires_at < ?`, now); err != nil {
		return fmt.Errorf("failed to clean up grants: %w", err)
	}

	// validity 0 means the token never expires.
	if _, err := s.db.ExecContext(ctx, `
		DELETE FROM tokens WHERE validity > 0 AND created_at + validity * 1000 < ?`, now); err != nil {
		return fmt.Errorf("failed to clean up tokens: %w", err)
	}
	return nil
}
