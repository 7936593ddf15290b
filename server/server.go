package server

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/ferrolog/oauth-server/ident"
	"github.com/ferrolog/oauth-server/identity"
	"github.com/ferrolog/oauth-server/instrumentation"
	"github.com/ferrolog/oauth-server/security"
	"github.com/ferrolog/oauth-server/storage"
)

// Server implements the authorization and token exchange flows. It
// coordinates the client registry, grant store, token store, and the
// identity collaborator; all of the protocol's branching lives here.
type Server struct {
	clients storage.ClientStore
	grants  storage.GrantStore
	tokens  storage.TokenStore
	users   identity.Verifier

	Auditor     *security.Auditor
	RateLimiter *security.RateLimiter // per-IP limiter for the token endpoint
	Logger      *slog.Logger
	Config      *Config

	instrumentation *instrumentation.Instrumentation
	tracer          trace.Tracer
}

// New creates a new protocol engine.
func New(
	clients storage.ClientStore,
	grants storage.GrantStore,
	tokens storage.TokenStore,
	users identity.Verifier,
	config *Config,
	logger *slog.Logger,
) (*Server, error) {
	if clients == nil {
		return nil, fmt.Errorf("client store is required")
	}
	if grants == nil {
		return nil, fmt.Errorf("grant store is required")
	}
	if tokens == nil {
		return nil, fmt.Errorf("token store is required")
	}
	if users == nil {
		return nil, fmt.Errorf("identity verifier is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	config = applyDefaults(config, logger)

	return &Server{
		clients: clients,
		grants:  grants,
		tokens:  tokens,
		users:   users,
		Config:  config,
		Logger:  logger,
	}, nil
}

// SetAuditor sets the security auditor
func (s *Server) SetAuditor(aud *security.Auditor) {
	s.Auditor = aud
}

// SetRateLimiter sets the per-IP rate limiter used by the token endpoint.
func (s *Server) SetRateLimiter(rl *security.RateLimiter) {
	s.RateLimiter = rl
}

// SetInstrumentation sets OpenTelemetry instrumentation for the engine.
func (s *Server) SetInstrumentation(inst *instrumentation.Instrumentation) {
	s.instrumentation = inst
	if inst != nil {
		s.tracer = inst.Tracer("server")
	}
}

// Instrumentation returns the configured instrumentation, or nil.
func (s *Server) Instrumentation() *instrumentation.Instrumentation {
	return s.instrumentation
}

// supportedScope returns the configured scope set.
func (s *Server) supportedScope() storage.Scope {
	return storage.Scope(s.Config.SupportedScopes)
}

// metrics returns the metrics holder, or nil when instrumentation is off.
func (s *Server) metrics() *instrumentation.Metrics {
	if s.instrumentation == nil {
		return nil
	}
	return s.instrumentation.Metrics()
}

func (s *Server) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	if s.tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return s.tracer.Start(ctx, name)
}

// issueToken creates, persists, and audit-logs an access token bound to the
// given client, optional user, and scope.
func (s *Server) issueToken(ctx context.Context, client *storage.Client, userID string, scope storage.Scope, grantType, clientIP string) (*storage.AccessToken, *Error) {
	now := time.Now()
	token := &storage.AccessToken{
		Token:     ident.NewID(),
		Type:      storage.TokenTypeBearer,
		ClientKey: client.Key,
		UserID:    userID,
		Scope:     scope,
		Validity:  s.Config.TokenValidity,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if token.Validity > 0 {
		token.RefreshToken = ident.NewID()
	}

	if err := s.tokens.SaveToken(ctx, token); err != nil {
		s.Logger.Error("Failed to save token", "error", err, "client_key", client.Key)
		return nil, serverError("Could not issue token")
	}

	if s.Auditor != nil {
		s.Auditor.LogTokenIssued(userID, client.Key, clientIP, grantType, scope.String())
	}
	if m := s.metrics(); m != nil {
		m.RecordTokenIssued(ctx, client.Key, grantType)
	}

	s.Logger.Info("Issued access token",
		"client_key", client.Key,
		"grant_type", grantType,
		"scope", scope.String(),
		"has_user", userID != "")
	return token, nil
}

// RevokeToken deletes an issued token. Administrative action: resource
// servers observe revocation as the token no longer resolving.
func (s *Server) RevokeToken(ctx context.Context, value, clientIP string) error {
	token, err := s.tokens.GetToken(ctx, value)
	if err != nil {
		return err
	}
	if err := s.tokens.DeleteToken(ctx, value); err != nil {
		return err
	}

	if s.Auditor != nil {
		s.Auditor.LogTokenRevoked(token.UserID, token.ClientKey, clientIP)
	}
	if m := s.metrics(); m != nil {
		m.RecordTokenRevocation(ctx, token.ClientKey)
	}
	return nil
}
