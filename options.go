package monban

import (
	"log/slog"
	"time"
)

// Option configures an App.
type Option func(*resolvedOptions)

// resolvedOptions holds all extension points after applying defaults.
// Unexported — callers use the With* functions.
type resolvedOptions struct {
	logger          *slog.Logger
	version         string
	listenAddr      string
	databaseURL     string
	config          *Config
	store           Store
	examiner        Examiner
	executor        Executor
	deliverer       Deliverer
	clock           func() time.Time
	eventHooks      []EventHook
	middlewares     []Middleware
	routeRegistrars []RouteRegistrar
}

// WithLogger sets the structured logger for the App.
// If not set, the default slog logger is used.
func WithLogger(logger *slog.Logger) Option {
	return func(o *resolvedOptions) { o.logger = logger }
}

// WithVersion sets the version string reported in the health endpoint and logs.
func WithVersion(version string) Option {
	return func(o *resolvedOptions) { o.version = version }
}

// WithListenAddr overrides the ops API listen address from config
// (MONBAN_LISTEN_ADDR env var).
func WithListenAddr(addr string) Option {
	return func(o *resolvedOptions) { o.listenAddr = addr }
}

// WithDatabaseURL overrides the database connection string from config
// (MONBAN_DATABASE_URL env var).
func WithDatabaseURL(url string) Option {
	return func(o *resolvedOptions) { o.databaseURL = url }
}

// WithConfig supplies the full configuration directly, skipping the
// environment. The config is validated in New; WithListenAddr and
// WithDatabaseURL still apply on top.
func WithConfig(cfg Config) Option {
	return func(o *resolvedOptions) { o.config = &cfg }
}

// WithStore injects an opened store, skipping storage.Open and the
// embedded migrations. The caller keeps ownership: Shutdown does not
// close an injected store.
func WithStore(s Store) Option {
	return func(o *resolvedOptions) { o.store = s }
}

// WithExaminer replaces the config-selected examiner provider.
// Only the last call wins.
func WithExaminer(e Examiner) Option {
	return func(o *resolvedOptions) { o.examiner = e }
}

// WithExecutor replaces the RCON executor for pushing allow-list changes
// to the game server. Only the last call wins.
func WithExecutor(x Executor) Option {
	return func(o *resolvedOptions) { o.executor = x }
}

// WithDeliverer sets the delivery fallback for channels no built-in
// transport claims. Only the last call wins.
func WithDeliverer(d Deliverer) Option {
	return func(o *resolvedOptions) { o.deliverer = d }
}

// WithClock overrides the engine's time source. A test seam: deadlines,
// cooldown expiry, and audit timestamps all read this clock.
func WithClock(now func() time.Time) Option {
	return func(o *resolvedOptions) { o.clock = now }
}

// WithEventHook registers an event hook to receive interview lifecycle
// notifications. Multiple hooks may be registered; all registered hooks
// receive every event.
func WithEventHook(hook EventHook) Option {
	return func(o *resolvedOptions) { o.eventHooks = append(o.eventHooks, hook) }
}

// WithMiddleware registers an outermost HTTP middleware.
// Multiple middlewares may be registered. Applied in registration order:
// the first-registered middleware is outermost (called first by every request).
func WithMiddleware(mw Middleware) Option {
	return func(o *resolvedOptions) { o.middlewares = append(o.middlewares, mw) }
}

// WithRouteRegistrar registers additional routes on the ops API mux.
// Multiple registrars may be registered; all are called in registration order.
func WithRouteRegistrar(fn RouteRegistrar) Option {
	return func(o *resolvedOptions) { o.routeRegistrars = append(o.routeRegistrars, fn) }
}
