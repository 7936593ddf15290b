package oauthserver

import (
	"bytes"
	"context"
	"encoding/json"
	"html/template"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/ferrolog/oauth-server/instrumentation"
	"github.com/ferrolog/oauth-server/security"
	"github.com/ferrolog/oauth-server/server"
)

// Handler is a thin HTTP adapter over the protocol engine. It parses
// requests, resolves the session user, and renders the engine's outcomes;
// all protocol decisions live in the server package.
type Handler struct {
	server   *server.Server
	sessions SessionReader
	logger   *slog.Logger
	tracer   trace.Tracer
}

// NewHandler creates the HTTP adapter. sessions may be nil for deployments
// that only serve the token endpoint; the authorization endpoint then treats
// every request as unauthenticated.
func NewHandler(srv *server.Server, sessions SessionReader, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}

	h := &Handler{
		server:   srv,
		sessions: sessions,
		logger:   logger,
	}
	if inst := srv.Instrumentation(); inst != nil {
		h.tracer = inst.Tracer("http")
	}
	return h
}

// RegisterRoutes registers the authorization and token endpoints on mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/auth", h.ServeAuthorization)
	mux.HandleFunc("/token", h.ServeToken)
}

// Routes returns the complete endpoint handler with request ID middleware
// applied.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)
	return security.RequestIDMiddleware(mux)
}

// consentTemplate is the minimal consent prompt. The POST round-trips every
// authorization parameter so the engine re-validates the request with the
// decision attached.
const consentTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <title>Authorize {{.ClientTitle}}</title>
</head>
<body>
    <h1>Authorize {{.ClientTitle}}</h1>
    {{if .ClientWebsite}}<p><a href="{{.ClientWebsite}}">{{.ClientWebsite}}</a></p>{{end}}
    <p>This application is requesting access to:</p>
    <ul>
    {{range .Scope}}<li>{{.}}</li>{{end}}
    </ul>
    <form method="POST">
        <input type="hidden" name="response_type" value="{{.ResponseType}}">
        <input type="hidden" name="client_id" value="{{.ClientID}}">
        <input type="hidden" name="redirect_uri" value="{{.RedirectURI}}">
        <input type="hidden" name="scope" value="{{.RawScope}}">
        <input type="hidden" name="state" value="{{.State}}">
        <button type="submit" name="accept" value="1">Allow</button>
        <button type="submit" name="deny" value="1">Deny</button>
    </form>
</body>
</html>`

var consentTmpl = template.Must(template.New("consent").Parse(consentTemplate))

type consentData struct {
	ClientTitle   string
	ClientWebsite string
	Scope         []string
	RawScope      string

	ResponseType string
	ClientID     string
	RedirectURI  string
	State        string
}

// ServeAuthorization handles the authorization endpoint. GET presents the
// request (consent prompt for untrusted clients); POST carries the consent
// decision. Unauthenticated requests are sent to the login URL.
func (h *Handler) ServeAuthorization(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()
	ctx := r.Context()

	var span trace.Span
	if h.tracer != nil {
		ctx, span = h.tracer.Start(ctx, "http.authorization")
		defer span.End()
		r = r.WithContext(ctx)
	}

	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		h.recordHTTPMetrics(ctx, "authorization", r.Method, http.StatusMethodNotAllowed, startTime)
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	security.SetSecurityHeaders(w, h.server.Config.ServerURL)

	if err := r.ParseForm(); err != nil {
		h.recordHTTPMetrics(ctx, "authorization", r.Method, http.StatusBadRequest, startTime)
		http.Error(w, "Failed to parse request", http.StatusBadRequest)
		return
	}

	userID := ""
	if h.sessions != nil {
		userID = h.sessions.CurrentUser(r)
	}
	if userID == "" {
		h.recordHTTPMetrics(ctx, "authorization", r.Method, http.StatusFound, startTime)
		h.redirectToLogin(w, r)
		return
	}

	req := &server.AuthorizeRequest{
		ResponseType: r.Form.Get("response_type"),
		ClientID:     r.Form.Get("client_id"),
		RedirectURI:  r.Form.Get("redirect_uri"),
		Scope:        r.Form.Get("scope"),
		State:        r.Form.Get("state"),
		UserID:       userID,
		Decision:     formDecision(r),
		ClientIP:     h.clientIP(r),
	}
	instrumentation.AddFlowAttributes(span, req.ClientID, req.UserID, req.Scope)

	result := h.server.Authorize(ctx, req)

	switch result.Kind {
	case server.OutcomeRedirect:
		h.recordHTTPMetrics(ctx, "authorization", r.Method, http.StatusFound, startTime)
		instrumentation.SetSpanSuccess(span)
		http.Redirect(w, r, result.RedirectURL, http.StatusFound)

	case server.OutcomeConsent:
		h.recordHTTPMetrics(ctx, "authorization", r.Method, http.StatusOK, startTime)
		instrumentation.SetSpanSuccess(span)
		h.renderConsent(w, req, result)

	default:
		h.recordHTTPMetrics(ctx, "authorization", r.Method, http.StatusForbidden, startTime)
		instrumentation.SetSpanError(span, result.Reason)
		http.Error(w, result.Reason, http.StatusForbidden)
	}
}

// formDecision maps the consent form's submit buttons to a decision. Only
// POST carries a decision; a bare GET is always the initial presentation.
func formDecision(r *http.Request) server.Decision {
	if r.Method != http.MethodPost {
		return server.DecisionNone
	}
	if r.PostForm.Get("accept") != "" {
		return server.DecisionAccept
	}
	if r.PostForm.Get("deny") != "" {
		return server.DecisionDeny
	}
	return server.DecisionNone
}

// redirectToLogin sends the browser to the login URL with the full
// authorization request in the next parameter, so the flow resumes after
// authentication.
func (h *Handler) redirectToLogin(w http.ResponseWriter, r *http.Request) {
	next := r.URL.RequestURI()
	loginURL := h.server.Config.LoginURL + "?next=" + url.QueryEscape(next)
	http.Redirect(w, r, loginURL, http.StatusFound)
}

func (h *Handler) renderConsent(w http.ResponseWriter, req *server.AuthorizeRequest, result *server.AuthorizeResult) {
	data := consentData{
		ClientTitle:   result.Client.Title,
		ClientWebsite: result.Client.Website,
		Scope:         []string(result.Scope),
		RawScope:      result.Scope.String(),
		ResponseType:  req.ResponseType,
		ClientID:      req.ClientID,
		RedirectURI:   req.RedirectURI,
		State:         req.State,
	}

	// Buffered execute so a template failure never leaves a partial page.
	var buf bytes.Buffer
	if err := consentTmpl.Execute(&buf, data); err != nil {
		h.logger.Error("Failed to render consent page", "error", err)
		http.Error(w, "Server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = buf.WriteTo(w)
}

// ServeToken handles the token endpoint. Form-encoded request, JSON
// response, rate limited per client IP.
func (h *Handler) ServeToken(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()
	ctx := r.Context()

	var span trace.Span
	if h.tracer != nil {
		ctx, span = h.tracer.Start(ctx, "http.token")
		defer span.End()
	}

	security.SetSecurityHeaders(w, h.server.Config.ServerURL)

	if r.Method != http.MethodPost {
		h.recordHTTPMetrics(ctx, "token", r.Method, http.StatusMethodNotAllowed, startTime)
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	clientIP := h.clientIP(r)
	if h.checkRateLimit(w, r, clientIP) {
		h.recordHTTPMetrics(ctx, "token", r.Method, http.StatusTooManyRequests, startTime)
		instrumentation.SetSpanError(span, "rate limited")
		return
	}

	if err := r.ParseForm(); err != nil {
		h.recordHTTPMetrics(ctx, "token", r.Method, http.StatusBadRequest, startTime)
		h.writeError(w, &server.Error{
			Code:        server.ErrorInvalidRequest,
			Description: "Failed to parse request",
			Status:      http.StatusBadRequest,
		})
		return
	}

	req := &server.TokenRequest{
		GrantType:    r.PostForm.Get("grant_type"),
		ClientID:     r.PostForm.Get("client_id"),
		ClientSecret: r.PostForm.Get("client_secret"),
		Scope:        r.PostForm.Get("scope"),
		Code:         r.PostForm.Get("code"),
		RedirectURI:  r.PostForm.Get("redirect_uri"),
		Username:     r.PostForm.Get("username"),
		Password:     r.PostForm.Get("password"),
		ClientIP:     clientIP,
	}
	instrumentation.AddFlowAttributes(span, req.ClientID, "", req.Scope)

	resp, protoErr := h.server.ExchangeToken(ctx, req)
	if protoErr != nil {
		h.recordHTTPMetrics(ctx, "token", r.Method, protoErr.Status, startTime)
		instrumentation.SetSpanError(span, protoErr.Code)
		h.writeError(w, protoErr)
		return
	}

	h.recordHTTPMetrics(ctx, "token", r.Method, http.StatusOK, startTime)
	instrumentation.SetSpanSuccess(span)
	h.writeTokenResponse(w, resp)
}

// checkRateLimit enforces the per-IP limiter. Returns true when the request
// was rejected and the response already written.
func (h *Handler) checkRateLimit(w http.ResponseWriter, r *http.Request, clientIP string) bool {
	if h.server.RateLimiter == nil || h.server.RateLimiter.Allow(clientIP) {
		return false
	}

	h.logger.Warn("Rate limit exceeded", "ip", clientIP, "endpoint", r.URL.Path)
	if inst := h.server.Instrumentation(); inst != nil {
		inst.Metrics().RecordRateLimitExceeded(r.Context(), "ip")
	}
	if h.server.Auditor != nil {
		h.server.Auditor.LogRateLimitExceeded(clientIP, "")
	}

	w.Header().Set("Retry-After", "60")
	h.writeError(w, &server.Error{
		Code:        server.ErrorInvalidRequest,
		Description: "Rate limit exceeded. Please try again later.",
		Status:      http.StatusTooManyRequests,
	})
	return true
}

func (h *Handler) clientIP(r *http.Request) string {
	return security.GetClientIP(r, h.server.Config.TrustProxy, h.server.Config.TrustedProxyCount)
}

func (h *Handler) writeTokenResponse(w http.ResponseWriter, resp *server.TokenResponse) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(TokenResponse{
		AccessToken:  resp.AccessToken,
		TokenType:    resp.TokenType,
		Scope:        resp.Scope.String(),
		ExpiresIn:    resp.ExpiresIn,
		RefreshToken: resp.RefreshToken,
	})
}

func (h *Handler) writeError(w http.ResponseWriter, protoErr *server.Error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(protoErr.Status)
	_ = json.NewEncoder(w).Encode(ErrorResponse{
		Error:            protoErr.Code,
		ErrorDescription: protoErr.Description,
		ErrorURI:         protoErr.URI,
	})
}

func (h *Handler) recordHTTPMetrics(ctx context.Context, endpoint, method string, status int, startTime time.Time) {
	inst := h.server.Instrumentation()
	if inst == nil {
		return
	}
	durationMs := float64(time.Since(startTime).Microseconds()) / 1000.0
	inst.Metrics().RecordHTTPRequest(ctx, method, endpoint, status, durationMs)
}
