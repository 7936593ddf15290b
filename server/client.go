package server

import (
	"context"
	"fmt"
	"time"

	"github.com/ferrolog/oauth-server/ident"
	"github.com/ferrolog/oauth-server/internal/util"
	"github.com/ferrolog/oauth-server/storage"
)

// RegisterClient creates a new client application with a generated key and
// secret. The secret is available on the returned client this one time; it
// is never exposed again after registration.
func (s *Server) RegisterClient(ctx context.Context, owner, title, website, redirectURI string, trusted bool) (*storage.Client, error) {
	if redirectURI == "" {
		return nil, fmt.Errorf("redirect URI is required")
	}

	now := time.Now()
	client := &storage.Client{
		Key:         ident.NewID(),
		Secret:      ident.NewSecret(),
		Title:       title,
		Website:     util.NormalizeURL(website),
		Owner:       owner,
		RedirectURI: redirectURI,
		Active:      true,
		Trusted:     trusted,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.clients.SaveClient(ctx, client); err != nil {
		return nil, fmt.Errorf("failed to register client: %w", err)
	}

	if s.Auditor != nil {
		s.Auditor.LogClientRegistered(client.Key, owner, "")
	}
	if m := s.metrics(); m != nil {
		m.RecordClientRegistration(ctx, trusted)
	}

	s.Logger.Info("Registered client",
		"client_key", client.Key,
		"title", title,
		"trusted", trusted)
	return client, nil
}

// DeactivateClient marks a client inactive. Clients are never deleted:
// issued tokens keep their owning client reference.
func (s *Server) DeactivateClient(ctx context.Context, key string) error {
	client, err := s.clients.GetClientByKey(ctx, key)
	if err != nil {
		return err
	}

	client.Active = false
	client.UpdatedAt = time.Now()
	if err := s.clients.SaveClient(ctx, client); err != nil {
		return fmt.Errorf("failed to deactivate client: %w", err)
	}

	s.Logger.Info("Deactivated client", "client_key", key)
	return nil
}
