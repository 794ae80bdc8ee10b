package monban

import (
	"context"
	"net/http"

	"github.com/ashita-ai/monban/internal/config"
	"github.com/ashita-ai/monban/internal/storage"
)

// Config is the daemon configuration, normally loaded from MONBAN_* env
// vars inside New. Use WithConfig to bypass the environment entirely, for
// tests or embedders that manage configuration themselves.
type Config = config.Config

// LoadConfig reads and validates configuration from environment variables.
func LoadConfig() (Config, error) {
	return config.Load()
}

// Store is the persistence contract: whitelist mirror, cooldown ledger,
// hash-chained audit trail, API keys. WithStore injects an already opened
// store, mainly as a test seam; New otherwise opens one from config.
type Store = storage.Store

// Examiner generates interview questions and scores finished transcripts.
// When provided via WithExaminer, replaces the config-selected provider
// (OpenAI, Ollama, Gemini, question bank, or none).
type Examiner interface {
	GenerateQuestions(ctx context.Context, n int) ([]string, error)
	Score(ctx context.Context, transcript []QA) (int, error)
}

// Executor runs a raw command against the game server console. When
// provided via WithExecutor, replaces the RCON client so embedders can
// target consoles that speak something other than the Source RCON
// protocol.
type Executor interface {
	Execute(ctx context.Context, command string) (string, error)
}

// Deliverer sends fire-and-forget text (questions, verdicts, expiry
// notices) to a channel. When provided via WithDeliverer, it becomes the
// delivery fallback for channels no built-in transport claims; the
// Telegram transport keeps handling "tg:" channels when enabled.
type Deliverer interface {
	Deliver(ctx context.Context, channel, text string) error
}

// EventHook receives interview lifecycle notifications. Multiple hooks may
// be registered via multiple WithEventHook calls. Hook methods run on
// their own goroutines; failures are logged, never propagated to the
// interview.
type EventHook interface {
	OnInterviewStarted(ctx context.Context, iv Interview) error
	OnInterviewEnded(ctx context.Context, rec AuditRecord) error
}

// RouteRegistrar registers additional routes on the ops API mux.
// Registered routes share the mux, auth chain, and instrumentation with
// the built-in routes. Called once during New after the built-in routes
// are registered.
type RouteRegistrar func(mux *http.ServeMux, auth AuthHelper)

// AuthHelper provides RBAC middleware for use in RouteRegistrar, wrapping
// the server's role check so embedded routes use the same auth chain
// without reaching into internal packages.
type AuthHelper interface {
	RequireRole(role Role) func(http.Handler) http.Handler
}

// Middleware wraps the root HTTP handler. Applied outermost, before
// routing, so it sees every request including /health. Multiple
// middlewares apply in registration order, first registered outermost.
type Middleware func(http.Handler) http.Handler
