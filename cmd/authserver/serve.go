package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	oauthserver "github.com/ferrolog/oauth-server"
	"github.com/ferrolog/oauth-server/ident"
	"github.com/ferrolog/oauth-server/identity"
	"github.com/ferrolog/oauth-server/instrumentation"
	"github.com/ferrolog/oauth-server/security"
	"github.com/ferrolog/oauth-server/server"
	"github.com/ferrolog/oauth-server/storage/memory"
	"github.com/ferrolog/oauth-server/storage/sqlite"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the authorization server",
	Long: `Starts the HTTP server with the authorization endpoint (/auth), the
token endpoint (/token), and a login form (/login) backed by the users
given with --user.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("addr", ":8080", "Address to listen on")
	serveCmd.Flags().String("db", "", "Path to SQLite database (empty for in-memory storage)")
	serveCmd.Flags().String("server-url", "", "Public base URL of this server")
	serveCmd.Flags().Int64("token-validity", 0, "Access token lifetime in seconds (0 = non-expiring)")
	serveCmd.Flags().StringSlice("scope", nil, "Supported scope set (default: id)")
	serveCmd.Flags().Bool("trust-proxy", false, "Trust X-Forwarded-For from a fronting proxy")
	serveCmd.Flags().Int("proxy-count", 1, "Number of trusted proxies in the chain")
	serveCmd.Flags().Bool("audit", true, "Enable security audit logging")
	serveCmd.Flags().Int("rate", 10, "Token endpoint requests per second per IP")
	serveCmd.Flags().Int("burst", 20, "Token endpoint burst per IP")
	serveCmd.Flags().Bool("otel", false, "Enable OpenTelemetry instrumentation")
	serveCmd.Flags().StringArray("user", nil, "Add a user as username:email:password (repeatable)")
}

func runServe(cmd *cobra.Command, _ []string) error {
	addr, _ := cmd.Flags().GetString("addr")
	dbPath, _ := cmd.Flags().GetString("db")
	serverURL, _ := cmd.Flags().GetString("server-url")
	tokenValidity, _ := cmd.Flags().GetInt64("token-validity")
	scopes, _ := cmd.Flags().GetStringSlice("scope")
	trustProxy, _ := cmd.Flags().GetBool("trust-proxy")
	proxyCount, _ := cmd.Flags().GetInt("proxy-count")
	audit, _ := cmd.Flags().GetBool("audit")
	rate, _ := cmd.Flags().GetInt("rate")
	burst, _ := cmd.Flags().GetInt("burst")
	otelEnabled, _ := cmd.Flags().GetBool("otel")
	userSpecs, _ := cmd.Flags().GetStringArray("user")

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	users := identity.NewDirectory()
	for _, spec := range userSpecs {
		if err := addUser(users, spec); err != nil {
			return err
		}
	}
	if len(userSpecs) == 0 {
		logger.Warn("No users configured, authorization endpoint has nobody to log in; pass --user")
	}

	config := &server.Config{
		SupportedScopes:   scopes,
		TokenValidity:     tokenValidity,
		ServerURL:         serverURL,
		LoginURL:          "/login",
		TrustProxy:        trustProxy,
		TrustedProxyCount: proxyCount,
		AuditEnabled:      audit,
	}

	var inst *instrumentation.Instrumentation
	if otelEnabled {
		var err error
		inst, err = instrumentation.New(instrumentation.Config{
			ServiceName:    "authserver",
			ServiceVersion: Version,
			Enabled:        true,
		})
		if err != nil {
			return fmt.Errorf("failed to initialize instrumentation: %w", err)
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = inst.Shutdown(ctx)
		}()
	}

	var srv *server.Server
	if dbPath != "" {
		store, err := sqlite.New(dbPath)
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer store.Close()
		store.SetLogger(logger)

		srv, err = server.New(store, store, store, users, config, logger)
		if err != nil {
			return err
		}

		// Expired grants and tokens are checked at use time; the sweep just
		// keeps the tables from growing.
		go func() {
			ticker := time.NewTicker(time.Minute)
			defer ticker.Stop()
			for range ticker.C {
				if err := store.Cleanup(context.Background()); err != nil {
					logger.Error("Storage cleanup failed", "error", err)
				}
			}
		}()
	} else {
		store := memory.New()
		defer store.Stop()
		store.SetLogger(logger)
		store.SetInstrumentation(inst)

		var err error
		srv, err = server.New(store, store, store, users, config, logger)
		if err != nil {
			return err
		}
	}

	srv.SetAuditor(security.NewAuditor(logger, audit))
	srv.SetInstrumentation(inst)

	limiter := security.NewRateLimiter(rate, burst, logger)
	defer limiter.Stop()
	srv.SetRateLimiter(limiter)

	sessions := newCookieSessions(users, logger)
	handler := oauthserver.NewHandler(srv, sessions, logger)

	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)
	mux.HandleFunc("/login", sessions.ServeLogin)

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           security.RequestIDMiddleware(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting authorization server", "addr", addr, "storage", storageName(dbPath))
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		logger.Info("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
	}
	return nil
}

// addUser parses a username:email:password spec and adds it to the
// directory with a generated user ID.
func addUser(users *identity.Directory, spec string) error {
	parts := strings.SplitN(spec, ":", 3)
	if len(parts) != 3 || parts[0] == "" || parts[2] == "" {
		return fmt.Errorf("invalid --user %q, want username:email:password", spec)
	}
	return users.AddUser(&identity.User{
		ID:       ident.NewID(),
		Username: parts[0],
		Email:    parts[1],
	}, parts[2])
}

func storageName(dbPath string) string {
	if dbPath == "" {
		return "memory"
	}
	return "sqlite:" + dbPath
}
