package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/ashita-ai/monban/internal/auth"
	"github.com/ashita-ai/monban/internal/ctxutil"
	"github.com/ashita-ai/monban/internal/model"
	"github.com/ashita-ai/monban/internal/ratelimit"
	"github.com/ashita-ai/monban/internal/storage"
)

// Server is the Monban ops HTTP server.
type Server struct {
	httpServer *http.Server
	handler    http.Handler
	handlers   *Handlers
	keyCache   *auth.KeyCache
	logger     *slog.Logger
}

// RoleMiddlewareFn builds RBAC middleware for a minimum role. Passed to
// ExtraRoutes registrars so embedded routes share the auth chain.
type RoleMiddlewareFn func(min model.KeyRole) func(http.Handler) http.Handler

// Handler returns the root HTTP handler for use in tests.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// ServerConfig holds all dependencies and configuration for creating a
// Server. Optional fields (nil-safe): Commands, Tokens, Limiter, Broker,
// OpenAPISpec.
type ServerConfig struct {
	// Required dependencies.
	Store   storage.Store
	Engine  Engine
	Applier Applier
	Logger  *slog.Logger

	// Optional dependencies (nil = disabled).
	Commands CommandGateway
	Tokens   *auth.TokenManager
	Limiter  ratelimit.Limiter
	Broker   *Broker

	// HTTP server settings.
	ListenAddr          string
	ReadTimeout         time.Duration
	WriteTimeout        time.Duration
	Version             string
	MaxRequestBodyBytes int64

	// KeyCacheTTL bounds how long a verified API key skips re-verification.
	// Zero disables the cache; revocation then takes effect immediately
	// instead of within the TTL.
	KeyCacheTTL time.Duration

	// Optional embedded assets.
	OpenAPISpec []byte // Embedded OpenAPI YAML.

	// Extension points for embedding code.
	ExtraRoutes []func(mux *http.ServeMux, roleFn RoleMiddlewareFn)
	Middlewares []func(http.Handler) http.Handler
}

// New creates a new HTTP server with all routes configured.
func New(cfg ServerConfig) *Server {
	h := NewHandlers(HandlersDeps{
		Store:               cfg.Store,
		Engine:              cfg.Engine,
		Applier:             cfg.Applier,
		Commands:            cfg.Commands,
		Tokens:              cfg.Tokens,
		Broker:              cfg.Broker,
		Logger:              cfg.Logger,
		Version:             cfg.Version,
		MaxRequestBodyBytes: cfg.MaxRequestBodyBytes,
		OpenAPISpec:         cfg.OpenAPISpec,
	})

	// Request ID extractor for rate limit error responses.
	reqIDFunc := func(r *http.Request) string {
		return RequestIDFromContext(r.Context())
	}

	rl := ratelimit.Middleware(cfg.Limiter, apiKeyFunc, reqIDFunc)
	exportRL := ratelimit.Middleware(cfg.Limiter, ipKeyFunc, reqIDFunc)

	mux := http.NewServeMux()

	readRole := requireRole(model.RoleReader)
	agentRole := requireRole(model.RoleAgent)
	adminOnly := requireRole(model.RoleAdmin)

	// Status and read endpoints (reader+, rate limited).
	mux.Handle("GET /v1/status", rl(readRole(http.HandlerFunc(h.HandleStatus))))
	mux.Handle("GET /v1/whitelist", rl(readRole(http.HandlerFunc(h.HandleListWhitelist))))
	mux.Handle("GET /v1/cooldowns", rl(readRole(http.HandlerFunc(h.HandleListCooldowns))))
	mux.Handle("GET /v1/interviews", rl(readRole(http.HandlerFunc(h.HandleListInterviews))))
	mux.Handle("GET /v1/audit", rl(readRole(http.HandlerFunc(h.HandleListAudit))))
	mux.Handle("GET /v1/audit/verify", rl(readRole(http.HandlerFunc(h.HandleVerifyAudit))))

	// Event stream (reader+, no rate limit, long-lived connection).
	mux.Handle("GET /v1/events", readRole(http.HandlerFunc(h.HandleEvents)))

	// Bridge command ingestion (agent+, rate limited).
	mux.Handle("POST /v1/commands", rl(agentRole(http.HandlerFunc(h.HandleCommands))))

	// Mutations (admin-only, no rate limit, admin is exempt).
	mux.Handle("POST /v1/whitelist", adminOnly(http.HandlerFunc(h.HandleAddWhitelist)))
	mux.Handle("DELETE /v1/whitelist/{player}", adminOnly(http.HandlerFunc(h.HandleRemoveWhitelist)))
	mux.Handle("DELETE /v1/cooldowns/{requester}/{player}", adminOnly(http.HandlerFunc(h.HandleClearCooldown)))
	mux.Handle("DELETE /v1/interviews/{requester}/{channel}", adminOnly(http.HandlerFunc(h.HandleCancelInterview)))

	// Audit export: token issuance is admin-only; the download itself is
	// token-gated inside the handler and rate limited by client IP.
	mux.Handle("POST /v1/audit/export-token", adminOnly(http.HandlerFunc(h.HandleExportToken)))
	mux.Handle("GET /v1/audit/export", exportRL(http.HandlerFunc(h.HandleExportAudit)))

	// Key management (admin-only).
	mux.Handle("POST /v1/keys", adminOnly(http.HandlerFunc(h.HandleCreateKey)))
	mux.Handle("GET /v1/keys", adminOnly(http.HandlerFunc(h.HandleListKeys)))
	mux.Handle("DELETE /v1/keys/{id}", adminOnly(http.HandlerFunc(h.HandleRevokeKey)))

	// API description (no auth, no rate limit).
	mux.HandleFunc("GET /openapi.yaml", h.HandleOpenAPISpec)

	// Health (no auth, no rate limit).
	mux.HandleFunc("GET /health", h.HandleHealth)

	// Embedded routes share the mux and RBAC chain.
	for _, register := range cfg.ExtraRoutes {
		register(mux, requireRole)
	}

	var keyCache *auth.KeyCache
	if cfg.KeyCacheTTL > 0 {
		keyCache = auth.NewKeyCache(cfg.KeyCacheTTL)
	}

	// Middleware chain (outermost executes first):
	// request ID → security headers → tracing → logging → auth → recovery → handler.
	var handler http.Handler = mux
	handler = recoveryMiddleware(cfg.Logger, handler)
	handler = authMiddleware(cfg.Store, keyCache, cfg.Logger, handler)
	handler = loggingMiddleware(cfg.Logger, handler)
	handler = tracingMiddleware(handler)
	handler = securityHeadersMiddleware(handler)
	handler = requestIDMiddleware(handler)

	// Embedder middlewares wrap everything, first registered outermost.
	for i := len(cfg.Middlewares) - 1; i >= 0; i-- {
		handler = cfg.Middlewares[i](handler)
	}

	return &Server{
		httpServer: &http.Server{
			Addr:         cfg.ListenAddr,
			Handler:      handler,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		},
		handler:  handler,
		handlers: h,
		keyCache: keyCache,
		logger:   cfg.Logger,
	}
}

// apiKeyFunc names the rate limit bucket for authenticated callers.
// Admin keys are exempt.
func apiKeyFunc(r *http.Request) string {
	key, ok := ctxutil.APIKeyFromContext(r.Context())
	if !ok {
		return ""
	}
	if model.RoleRank(key.Role) >= model.RoleRank(model.RoleAdmin) {
		return ""
	}
	return "key:" + key.Prefix
}

// ipKeyFunc names the bucket for unauthenticated requests by client IP.
func ipKeyFunc(r *http.Request) string {
	if ip := ratelimit.IPKeyFunc(r); ip != "" {
		return "ip:" + ip
	}
	return ""
}

// Handlers returns the underlying Handlers for access to SeedAdminKey etc.
func (s *Server) Handlers() *Handlers {
	return s.handlers
}

// Start begins serving HTTP requests.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("http server shutting down")
	err := s.httpServer.Shutdown(ctx)
	if s.keyCache != nil {
		s.keyCache.Close()
	}
	return err
}
