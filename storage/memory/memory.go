package memory

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ferrolog/oauth-server/instrumentation"
	"github.com/ferrolog/oauth-server/internal/util"
	"github.com/ferrolog/oauth-server/storage"
)

// codeLogLength is the number of characters to include when logging
// authorization codes. Enough for correlation, useless to an attacker.
const codeLogLength = 8

// Store is an in-memory implementation of all storage interfaces.
type Store struct {
	mu sync.RWMutex

	clients map[string]*storage.Client      // client key -> client
	grants  map[string]*storage.Grant       // code -> grant
	tokens  map[string]*storage.AccessToken // token value -> token

	// Instrumentation
	instrumentation *instrumentation.Instrumentation
	tracer          trace.Tracer

	// Atomic counters for lock-free metric collection
	clientsCountAtomic atomic.Int64
	grantsCountAtomic  atomic.Int64
	tokensCountAtomic  atomic.Int64

	// Cleanup
	cleanupInterval time.Duration
	stopCleanup     chan struct{}
	logger          *slog.Logger
}

// Compile-time interface checks
var (
	_ storage.ClientStore = (*Store)(nil)
	_ storage.GrantStore  = (*Store)(nil)
	_ storage.TokenStore  = (*Store)(nil)
)

// New creates a new in-memory store with the default cleanup interval of
// one minute.
func New() *Store {
	return NewWithInterval(time.Minute)
}

// NewWithInterval creates a new in-memory store with a custom cleanup
// interval. Zero or negative intervals fall back to one minute.
func NewWithInterval(cleanupInterval time.Duration) *Store {
	if cleanupInterval <= 0 {
		cleanupInterval = time.Minute
	}

	s := &Store{
		clients:         make(map[string]*storage.Client),
		grants:          make(map[string]*storage.Grant),
		tokens:          make(map[string]*storage.AccessToken),
		cleanupInterval: cleanupInterval,
		stopCleanup:     make(chan struct{}),
		logger:          slog.Default(),
	}

	go s.cleanupLoop()

	return s
}

// SetLogger sets a custom logger
func (s *Store) SetLogger(logger *slog.Logger) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logger = logger
}

// SetInstrumentation sets OpenTelemetry instrumentation for the store
func (s *Store) SetInstrumentation(inst *instrumentation.Instrumentation) {
	s.mu.Lock()
	s.instrumentation = inst
	if inst != nil {
		s.tracer = inst.Tracer("storage")
	}
	s.clientsCountAtomic.Store(int64(len(s.clients)))
	s.grantsCountAtomic.Store(int64(len(s.grants)))
	s.tokensCountAtomic.Store(int64(len(s.tokens)))
	s.mu.Unlock()

	if inst != nil {
		err := inst.RegisterStorageSizeCallbacks(
			func() int64 { return s.clientsCountAtomic.Load() },
			func() int64 { return s.grantsCountAtomic.Load() },
			func() int64 { return s.tokensCountAtomic.Load() },
		)
		if err != nil {
			s.logger.Warn("Failed to register storage size callbacks", "error", err)
		}
	}
}

// Stop gracefully stops the cleanup goroutine
func (s *Store) Stop() {
	close(s.stopCleanup)
}

// ============================================================
// ClientStore Implementation
// ============================================================

// GetClientByKey retrieves a client by its public key.
func (s *Store) GetClientByKey(ctx context.Context, key string) (*storage.Client, error) {
	ctx, span := s.startStorageSpan(ctx, "get_client")
	defer span.End()

	startTime := time.Now()
	var err error
	defer func() {
		s.recordStorageOperation(ctx, span, "get_client", err, startTime)
	}()

	s.mu.RLock()
	client, ok := s.clients[key]
	s.mu.RUnlock()

	if !ok {
		err = storage.ErrClientNotFound
		return nil, err
	}

	// Return a copy so callers cannot mutate the stored client.
	clientCopy := *client
	return &clientCopy, nil
}

// SaveClient creates or updates a registered client.
func (s *Store) SaveClient(ctx context.Context, client *storage.Client) error {
	ctx, span := s.startStorageSpan(ctx, "save_client")
	defer span.End()

	startTime := time.Now()
	var err error
	defer func() {
		s.recordStorageOperation(ctx, span, "save_client", err, startTime)
	}()

	if client == nil {
		err = fmt.Errorf("client cannot be nil")
		return err
	}
	if client.Key == "" {
		err = fmt.Errorf("client key cannot be empty")
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, existed := s.clients[client.Key]
	clientCopy := *client
	s.clients[client.Key] = &clientCopy
	if !existed {
		s.clientsCountAtomic.Add(1)
	}

	s.logger.Debug("Saved client", "client_key", client.Key)
	return nil
}

// ============================================================
// GrantStore Implementation
// ============================================================

// SaveGrant persists a newly issued authorization grant.
func (s *Store) SaveGrant(ctx context.Context, grant *storage.Grant) error {
	ctx, span := s.startStorageSpan(ctx, "save_grant")
	defer span.End()

	startTime := time.Now()
	var err error
	defer func() {
		s.recordStorageOperation(ctx, span, "save_grant", err, startTime)
	}()

	if grant == nil {
		err = fmt.Errorf("grant cannot be nil")
		return err
	}
	if grant.Code == "" {
		err = fmt.Errorf("grant code cannot be empty")
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, existed := s.grants[grant.Code]
	grantCopy := *grant
	s.grants[grant.Code] = &grantCopy
	if !existed {
		s.grantsCountAtomic.Add(1)
	}

	s.logger.Debug("Saved grant",
		"code_prefix", util.SafeTruncate(grant.Code, codeLogLength),
		"client_key", grant.ClientKey)
	return nil
}

// GetGrant retrieves a grant without claiming it.
func (s *Store) GetGrant(ctx context.Context, code, clientKey string) (*storage.Grant, error) {
	ctx, span := s.startStorageSpan(ctx, "get_grant")
	defer span.End()

	startTime := time.Now()
	var err error
	defer func() {
		s.recordStorageOperation(ctx, span, "get_grant", err, startTime)
	}()

	s.mu.RLock()
	grant, ok := s.grants[code]
	s.mu.RUnlock()

	if !ok || grant.ClientKey != clientKey {
		err = storage.ErrGrantNotFound
		return nil, err
	}

	grantCopy := *grant
	return &grantCopy, nil
}

// ClaimGrant atomically checks that the grant is live and marks it used.
//
// SECURITY: this is an atomic check-and-set under the write lock. Only one
// concurrent claim for the same code can succeed; all others observe
// ErrGrantUsed. Grant expiry is strict, with no clock skew grace: a
// 60-second credential does not get an extension.
func (s *Store) ClaimGrant(ctx context.Context, code, clientKey string) (*storage.Grant, error) {
	ctx, span := s.startStorageSpan(ctx, "claim_grant")
	defer span.End()

	startTime := time.Now()
	var err error
	defer func() {
		s.recordStorageOperation(ctx, span, "claim_grant", err, startTime)
	}()

	s.mu.Lock() // write lock for atomic check-and-set
	defer s.mu.Unlock()

	grant, ok := s.grants[code]
	if !ok || grant.ClientKey != clientKey {
		err = storage.ErrGrantNotFound
		return nil, err
	}

	if grant.Expired(time.Now()) {
		err = storage.ErrGrantExpired
		return nil, err
	}

	if grant.Used {
		// Reuse attempt. The caller needs the grant for audit context.
		err = storage.ErrGrantUsed
		grantCopy := *grant
		return &grantCopy, err
	}

	grant.Used = true
	s.logger.Debug("Claimed grant",
		"code_prefix", util.SafeTruncate(code, codeLogLength),
		"client_key", clientKey)

	grantCopy := *grant
	return &grantCopy, nil
}

// ============================================================
// TokenStore Implementation
// ============================================================

// SaveToken persists an issued access token.
func (s *Store) SaveToken(ctx context.Context, token *storage.AccessToken) error {
	ctx, span := s.startStorageSpan(ctx, "save_token")
	defer span.End()

	startTime := time.Now()
	var err error
	defer func() {
		s.recordStorageOperation(ctx, span, "save_token", err, startTime)
	}()

	if token == nil {
		err = fmt.Errorf("token cannot be nil")
		return err
	}
	if token.Token == "" {
		err = fmt.Errorf("token value cannot be empty")
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, existed := s.tokens[token.Token]
	tokenCopy := *token
	s.tokens[token.Token] = &tokenCopy
	if !existed {
		s.tokensCountAtomic.Add(1)
	}

	s.logger.Debug("Saved token",
		"token_prefix", util.SafeTruncate(token.Token, codeLogLength),
		"client_key", token.ClientKey)
	return nil
}

// GetToken retrieves a token by its opaque value.
func (s *Store) GetToken(ctx context.Context, value string) (*storage.AccessToken, error) {
	ctx, span := s.startStorageSpan(ctx, "get_token")
	defer span.End()

	startTime := time.Now()
	var err error
	defer func() {
		s.recordStorageOperation(ctx, span, "get_token", err, startTime)
	}()

	s.mu.RLock()
	token, ok := s.tokens[value]
	s.mu.RUnlock()

	if !ok {
		err = storage.ErrTokenNotFound
		return nil, err
	}

	tokenCopy := *token
	return &tokenCopy, nil
}

// DeleteToken removes a token.
func (s *Store) DeleteToken(ctx context.Context, value string) error {
	ctx, span := s.startStorageSpan(ctx, "delete_token")
	defer span.End()

	startTime := time.Now()
	var err error
	defer func() {
		s.recordStorageOperation(ctx, span, "delete_token", err, startTime)
	}()

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tokens[value]; ok {
		delete(s.tokens, value)
		s.tokensCountAtomic.Add(-1)
		s.logger.Debug("Deleted token",
			"token_prefix", util.SafeTruncate(value, codeLogLength))
	}
	return nil
}

// ============================================================
// Cleanup
// ============================================================

func (s *Store) cleanupLoop() {
	ticker := time.NewTicker(s.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCleanup:
			return
		case <-ticker.C:
			s.cleanup()
		}
	}
}

// cleanup removes expired grants and expired tokens. Used grants are kept
// until expiry so reuse attempts within the window are still detected.
func (s *Store) cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	cleaned := 0

	for code, grant := range s.grants {
		if grant.Expired(now) {
			delete(s.grants, code)
			s.grantsCountAtomic.Add(-1)
			cleaned++
		}
	}

	for value, token := range s.tokens {
		if token.Expired(now) {
			delete(s.tokens, value)
			s.tokensCountAtomic.Add(-1)
			cleaned++
		}
	}

	if cleaned > 0 {
		s.logger.Debug("Storage cleanup completed",
			"cleaned", cleaned,
			"grants", len(s.grants),
			"tokens", len(s.tokens))
	}
}

// ============================================================
// Instrumentation helpers
// ============================================================

func (s *Store) startStorageSpan(ctx context.Context, operation string) (context.Context, trace.Span) {
	if s.tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}

	return s.tracer.Start(ctx, fmt.Sprintf("storage.%s", operation),
		trace.WithAttributes(
			attribute.String("operation", operation),
		))
}

// recordStorageOperation records metrics for a storage operation and sets
// span status.
func (s *Store) recordStorageOperation(ctx context.Context, span trace.Span, operation string, err error, startTime time.Time) {
	if s.instrumentation == nil {
		return
	}

	durationMs := float64(time.Since(startTime).Milliseconds())
	result := "success"
	if err != nil {
		result = "error"
		if span != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	} else if span != nil {
		span.SetStatus(codes.Ok, "")
	}

	s.instrumentation.Metrics().RecordStorageOperation(ctx, operation, result, durationMs)
}
