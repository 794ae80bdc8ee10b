package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/ashita-ai/monban/internal/auth"
	"github.com/ashita-ai/monban/internal/ctxutil"
	"github.com/ashita-ai/monban/internal/gateway"
	"github.com/ashita-ai/monban/internal/model"
	"github.com/ashita-ai/monban/internal/storage"
)

// Engine is the slice of the interview engine the ops API reads and resets.
type Engine interface {
	Snapshot() []model.InterviewSnapshot
	Cancel(ctx context.Context, requester, channel string) error
	Cooldowns() []model.CooldownEntry
	ClearCooldown(ctx context.Context, requester, player string) error
	ActiveInterviews() int
	LockedNames() int
	ActiveCooldowns() int
}

// Applier applies and revokes allow-list entries, local mirror first.
type Applier interface {
	Apply(ctx context.Context, entry model.WhitelistEntry) (remoteOK bool)
	Revoke(ctx context.Context, player string) (remoteOK bool, err error)
}

// CommandGateway ingests one bridge chat line and returns the synchronous
// reply, empty when the line warrants silence.
type CommandGateway interface {
	Handle(ctx context.Context, msg gateway.Message) string
}

// Handlers holds HTTP handler dependencies.
type Handlers struct {
	store               storage.Store
	engine              Engine
	applier             Applier
	commands            CommandGateway
	tokens              *auth.TokenManager
	broker              *Broker
	logger              *slog.Logger
	startedAt           time.Time
	version             string
	maxRequestBodyBytes int64
	openapiSpec         []byte
}

// HandlersDeps holds all dependencies for constructing Handlers.
// Optional (nil-safe): Commands, Broker, OpenAPISpec.
type HandlersDeps struct {
	Store               storage.Store
	Engine              Engine
	Applier             Applier
	Commands            CommandGateway
	Tokens              *auth.TokenManager
	Broker              *Broker
	Logger              *slog.Logger
	Version             string
	MaxRequestBodyBytes int64
	OpenAPISpec         []byte
}

// NewHandlers creates a new Handlers with all dependencies.
func NewHandlers(d HandlersDeps) *Handlers {
	return &Handlers{
		store:               d.Store,
		engine:              d.Engine,
		applier:             d.Applier,
		commands:            d.Commands,
		tokens:              d.Tokens,
		broker:              d.Broker,
		logger:              d.Logger,
		startedAt:           time.Now(),
		version:             d.Version,
		maxRequestBodyBytes: d.MaxRequestBodyBytes,
		openapiSpec:         d.OpenAPISpec,
	}
}

// HandleHealth handles GET /health (public). Cheap by design: one store
// ping, no table scans.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	storeStatus := "connected"
	status := "healthy"
	httpStatus := http.StatusOK

	if err := h.store.Ping(r.Context()); err != nil {
		storeStatus = "disconnected"
		status = "unhealthy"
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, r, httpStatus, model.HealthResponse{
		Status:        status,
		Version:       h.version,
		Store:         storeStatus,
		UptimeSeconds: int64(time.Since(h.startedAt).Seconds()),
	})
}

// HandleStatus handles GET /v1/status (reader+).
func (h *Handlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	whitelistSize, err := h.store.CountWhitelist(r.Context())
	if err != nil {
		h.writeInternalError(w, r, "failed to count whitelist", err)
		return
	}

	writeJSON(w, r, http.StatusOK, model.StatusResponse{
		Status:           "ok",
		Version:          h.version,
		UptimeSeconds:    int64(time.Since(h.startedAt).Seconds()),
		ActiveInterviews: h.engine.ActiveInterviews(),
		LockedPlayers:    h.engine.LockedNames(),
		ActiveCooldowns:  h.engine.ActiveCooldowns(),
		WhitelistSize:    whitelistSize,
		Time:             time.Now().UTC(),
	})
}

// HandleCommands handles POST /v1/commands (agent+): one chat line from a
// bridge that is not a built-in transport. The reply text, if any, goes
// back synchronously; questions and verdicts flow through the configured
// deliverer like any other interview traffic.
func (h *Handlers) HandleCommands(w http.ResponseWriter, r *http.Request) {
	if h.commands == nil {
		writeError(w, r, http.StatusServiceUnavailable, model.ErrCodeInternalError,
			"command gateway not configured")
		return
	}

	var req model.CommandRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}
	if req.Requester == "" || req.Channel == "" {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput,
			"requester and channel are required")
		return
	}
	if req.Text == "" {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "text is required")
		return
	}

	reply := h.commands.Handle(r.Context(), gateway.Message{
		Requester: req.Requester,
		Channel:   req.Channel,
		Text:      req.Text,
	})

	writeJSON(w, r, http.StatusOK, model.CommandResponse{Reply: reply})
}

// HandleOpenAPISpec serves the embedded OpenAPI specification.
func (h *Handlers) HandleOpenAPISpec(w http.ResponseWriter, r *http.Request) {
	if len(h.openapiSpec) == 0 {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/yaml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(h.openapiSpec)
}

// SeedAdminKey creates the bootstrap admin API key when no keys exist yet.
// Without it the key endpoints are unreachable: creating a key requires an
// admin key. The raw key comes from configuration and must be in the
// standard mb_ format (generate one with `monbanctl genkey`).
func (h *Handlers) SeedAdminKey(ctx context.Context, rawKey string) error {
	count, err := h.store.CountAPIKeys(ctx)
	if err != nil {
		return fmt.Errorf("seed admin key: count keys: %w", err)
	}
	if count > 0 {
		if rawKey != "" {
			h.logger.Info("api keys exist, skipping admin key seed")
		}
		return nil
	}
	if rawKey == "" {
		h.logger.Warn("no api keys exist and no admin key configured; the ops API will reject all requests until a key is seeded")
		return nil
	}

	prefix, err := model.ParseRawKey(rawKey)
	if err != nil {
		return fmt.Errorf("seed admin key: %w (generate one with `monbanctl genkey`)", err)
	}

	hash, err := auth.HashAPIKey(rawKey)
	if err != nil {
		return fmt.Errorf("seed admin key: hash key: %w", err)
	}

	if err := h.store.InsertAPIKey(ctx, model.APIKey{
		Prefix:  prefix,
		KeyHash: hash,
		Name:    "bootstrap-admin",
		Role:    model.RoleAdmin,
	}); err != nil {
		return fmt.Errorf("seed admin key: insert: %w", err)
	}

	h.logger.Info("seeded bootstrap admin api key", "prefix", prefix)
	return nil
}

// actorName names the caller for log lines on mutating endpoints.
func actorName(r *http.Request) string {
	if key, ok := ctxutil.APIKeyFromContext(r.Context()); ok {
		return key.Name
	}
	return "unknown"
}
