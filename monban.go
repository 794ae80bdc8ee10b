// Package monban is the public API for embedding the Monban admission
// daemon.
//
// Operators usually run cmd/monban, which is a thin wrapper around this
// package. Embedding consumers construct and extend the daemon without
// forking it:
//
//	app, err := monban.New(ctx,
//	    monban.WithVersion(version),
//	    monban.WithLogger(logger),
//	    monban.WithEventHook(myHook{}),
//	    monban.WithRouteRegistrar(myRoutes),
//	)
//	if err != nil { ... }
//	if err := app.Run(ctx); err != nil { ... }
//
// The import graph enforces a strict no-cycle rule: monban (root) imports
// internal/*, but internal/* never imports monban (root). Public types
// (Interview, AuditRecord, QA) are standalone structs with no internal
// imports; conversion helpers live here because this is the only file that
// sees both sides of the boundary.
package monban

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/joho/godotenv"

	"github.com/ashita-ai/monban/api"
	"github.com/ashita-ai/monban/internal/admission"
	"github.com/ashita-ai/monban/internal/auth"
	"github.com/ashita-ai/monban/internal/config"
	"github.com/ashita-ai/monban/internal/engine"
	"github.com/ashita-ai/monban/internal/examiner"
	"github.com/ashita-ai/monban/internal/gateway"
	"github.com/ashita-ai/monban/internal/model"
	"github.com/ashita-ai/monban/internal/ratelimit"
	"github.com/ashita-ai/monban/internal/rcon"
	"github.com/ashita-ai/monban/internal/server"
	"github.com/ashita-ai/monban/internal/storage"
	"github.com/ashita-ai/monban/internal/telemetry"
	"github.com/ashita-ai/monban/internal/transport"
	"github.com/ashita-ai/monban/internal/transport/telegram"
	"github.com/ashita-ai/monban/internal/transport/webhook"
	"github.com/ashita-ai/monban/migrations"
)

// App is the Monban daemon lifecycle. Construct with New(), run with Run().
// App has no public fields — use New() options to configure it.
type App struct {
	cfg          config.Config
	store        storage.Store
	ownStore     bool
	engine       *engine.Engine
	examiner     engine.Examiner
	bot          *telegram.Bot
	bankWatcher  *examiner.BankWatcher
	srv          *server.Server
	limiter      ratelimit.Limiter
	otelShutdown telemetry.Shutdown
	logger       *slog.Logger
	version      string
}

// New initialises the daemon. It connects to storage, runs migrations,
// hydrates persisted cooldowns, wires all subsystems, and returns a
// ready-to-run App. It does NOT start any goroutines or accept HTTP
// connections — call Run(). ctx bounds initialisation only.
func New(ctx context.Context, opts ...Option) (*App, error) {
	// Apply options.
	o := resolvedOptions{}
	for _, fn := range opts {
		fn(&o)
	}

	logger := o.logger
	if logger == nil {
		logger = slog.Default()
	}

	// Load .env file if present (non-fatal; production won't have one).
	_ = godotenv.Load()

	// Load configuration (env vars), then apply option overrides.
	var cfg config.Config
	if o.config != nil {
		cfg = *o.config
	} else {
		loaded, err := config.Load()
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
	}
	if o.listenAddr != "" {
		cfg.ListenAddr = o.listenAddr
	}
	if o.databaseURL != "" {
		cfg.DatabaseURL = o.databaseURL
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	version := o.version
	if version == "" {
		version = "dev"
	}

	logger.Info("monban starting", "version", version, "addr", cfg.ListenAddr)

	// Initialize OpenTelemetry.
	otelShutdown, err := telemetry.Init(ctx, cfg.OTELEndpoint, cfg.ServiceName, version, cfg.OTELInsecure)
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}

	// Open storage and run migrations, unless the caller injected a store
	// it manages itself.
	store := o.store
	ownStore := store == nil
	if ownStore {
		store, err = storage.Open(ctx, cfg.DBDriver, cfg.DatabaseURL, logger)
		if err != nil {
			_ = otelShutdown(context.Background())
			return nil, fmt.Errorf("storage: %w", err)
		}
		migrationFS, err := migrations.ForDriver(cfg.DBDriver)
		if err != nil {
			_ = store.Close(context.Background())
			_ = otelShutdown(context.Background())
			return nil, err
		}
		if err := store.RunMigrations(ctx, migrationFS); err != nil {
			_ = store.Close(context.Background())
			_ = otelShutdown(context.Background())
			return nil, fmt.Errorf("migrations: %w", err)
		}
	}

	// fail unwinds partial construction. Deferred cleanup would also close
	// everything on success, so unwinding is explicit.
	fail := func(err error) (*App, error) {
		if ownStore {
			_ = store.Close(context.Background())
		}
		_ = otelShutdown(context.Background())
		return nil, err
	}

	// Question bank: embedded questions unless a file is configured.
	bank, err := examiner.NewBank(cfg.QuestionsFile)
	if err != nil {
		return fail(fmt.Errorf("question bank: %w", err))
	}
	var bankWatcher *examiner.BankWatcher
	if cfg.QuestionsWatch {
		if cfg.QuestionsFile == "" {
			logger.Warn("MONBAN_QUESTIONS_WATCH set without MONBAN_QUESTIONS_FILE, nothing to watch")
		} else {
			bankWatcher, err = examiner.NewBankWatcher(bank, logger)
			if err != nil {
				return fail(fmt.Errorf("question bank watcher: %w", err))
			}
		}
	}

	// Examiner — external override takes priority over the config-selected
	// provider.
	var exam engine.Examiner
	if o.examiner != nil {
		exam = &examinerAdapter{e: o.examiner}
	} else {
		exam, err = examiner.New(examiner.Config{
			Provider: cfg.ExaminerProvider,
			BaseURL:  cfg.ExaminerURL,
			APIKey:   cfg.ExaminerKey,
			Model:    cfg.ExaminerModel,
			Timeout:  cfg.ExaminerTimeout,
		}, bank)
		if err != nil {
			return fail(fmt.Errorf("examiner: %w", err))
		}
	}

	// Remote executor (RCON unless overridden; disabled without an address).
	var executor rcon.Executor
	if o.executor != nil {
		executor = o.executor
	} else {
		executor = rcon.New(rcon.Config{
			Address:     cfg.RCONAddr,
			Password:    cfg.RCONPassword,
			DialTimeout: cfg.RCONTimeout,
			Deadline:    cfg.RCONTimeout,
		})
	}

	applier := admission.New(store, executor, admission.Config{
		Policy: admission.ConfirmPolicy(cfg.ConfirmPolicy),
		Commands: rcon.Commands{
			Add:    cfg.CmdAdd,
			Remove: cfg.CmdRemove,
			List:   cfg.CmdList,
		},
	}, logger)

	// Delivery mux. The engine is built before the transports that consume
	// its output, so transports register on the mux afterwards; channels no
	// transport claims go to the fallback.
	var fallback transport.Deliverer
	switch {
	case o.deliverer != nil:
		fallback = o.deliverer
	case cfg.BridgeWebhookURL != "":
		fallback = webhook.New(cfg.BridgeWebhookURL, cfg.BridgeWebhookToken, 0)
		logger.Info("bridge webhook deliverer enabled", "url", cfg.BridgeWebhookURL)
	default:
		fallback = transport.Drop{Logger: logger}
	}
	deliveryMux := transport.NewMux(fallback, logger)

	// SSE broker doubles as the first event hook.
	broker := server.NewBroker(logger)
	hooks := []engine.EventHook{broker}
	for _, h := range o.eventHooks {
		hooks = append(hooks, &eventHookAdapter{hook: h})
	}

	eng, err := engine.New(ctx, engine.Config{
		QuestionCount:    cfg.QuestionCount,
		PassScore:        cfg.PassScore,
		AnswerTimeout:    cfg.AnswerTimeout,
		CooldownDuration: cfg.Cooldown,
		MaxPerRequester:  cfg.MaxPerRequester,
		QuotaCountsAdmin: cfg.QuotaCountsAdmin,
		AnswerMaxRunes:   cfg.AnswerMaxLen,
		IdleTimeout:      cfg.IdleTimeout,
		ReapInterval:     cfg.ReaperInterval,
		SweepInterval:    cfg.SweepInterval,
		ChannelAllowed:   cfg.ChannelAllowed,
	}, engine.Deps{
		Store:     store,
		Examiner:  exam,
		Bank:      bank,
		Applier:   applier,
		Deliverer: deliveryMux,
		Logger:    logger,
		Clock:     o.clock,
		Hooks:     hooks,
	})
	if err != nil {
		return fail(fmt.Errorf("engine: %w", err))
	}
	eng.RegisterMetrics()

	gw := gateway.New(eng, applier, store, gateway.Config{
		Prefix: cfg.CommandPrefix,
		Admins: cfg.Admins,
	}, logger)

	// Telegram transport.
	var bot *telegram.Bot
	if cfg.TelegramToken != "" {
		bot, err = telegram.New(cfg.TelegramToken, gw, logger)
		if err != nil {
			return fail(err)
		}
		deliveryMux.Register("tg:", bot)
	} else {
		logger.Info("telegram transport disabled (no MONBAN_TELEGRAM_TOKEN)")
	}

	// Export token signer. Without key files it generates an ephemeral
	// keypair, which invalidates outstanding export links on restart.
	tokens, err := auth.NewTokenManager(cfg.JWTPrivateKeyPath, cfg.JWTPublicKeyPath)
	if err != nil {
		return fail(fmt.Errorf("auth: %w", err))
	}

	// Rate limiter.
	var limiter ratelimit.Limiter
	if cfg.RateRPS > 0 {
		limiter = ratelimit.NewMemoryLimiter(float64(cfg.RateRPS), cfg.RateBurst)
		logger.Info("rate limiting: memory (in-process token bucket)",
			"rps", cfg.RateRPS, "burst", cfg.RateBurst)
	} else {
		limiter = ratelimit.NoopLimiter{}
		logger.Info("rate limiting: disabled")
	}

	// Adapt route registrars from public monban.RouteRegistrar to the
	// internal server format.
	var extraRoutes []func(*http.ServeMux, server.RoleMiddlewareFn)
	for _, fn := range o.routeRegistrars {
		fn := fn // capture
		extraRoutes = append(extraRoutes, func(mux *http.ServeMux, roleFn server.RoleMiddlewareFn) {
			fn(mux, &authHelperImpl{roleFn: roleFn})
		})
	}

	// Adapt middlewares from monban.Middleware to func(http.Handler) http.Handler.
	var middlewares []func(http.Handler) http.Handler
	for _, mw := range o.middlewares {
		mw := mw // capture
		middlewares = append(middlewares, func(h http.Handler) http.Handler { return mw(h) })
	}

	srv := server.New(server.ServerConfig{
		Store:               store,
		Engine:              eng,
		Applier:             applier,
		Commands:            gw,
		Tokens:              tokens,
		Limiter:             limiter,
		Broker:              broker,
		Logger:              logger,
		ListenAddr:          cfg.ListenAddr,
		ReadTimeout:         cfg.ReadTimeout,
		WriteTimeout:        cfg.WriteTimeout,
		Version:             version,
		MaxRequestBodyBytes: cfg.MaxRequestBodyBytes,
		KeyCacheTTL:         cfg.KeyCacheTTL,
		OpenAPISpec:         api.OpenAPISpec,
		ExtraRoutes:         extraRoutes,
		Middlewares:         middlewares,
	})

	// Register the bootstrap admin key.
	if err := srv.Handlers().SeedAdminKey(ctx, cfg.BootstrapAPIKey); err != nil {
		return fail(fmt.Errorf("admin key seed: %w", err))
	}

	return &App{
		cfg:          cfg,
		store:        store,
		ownStore:     ownStore,
		engine:       eng,
		examiner:     exam,
		bot:          bot,
		bankWatcher:  bankWatcher,
		srv:          srv,
		limiter:      limiter,
		otelShutdown: otelShutdown,
		logger:       logger,
		version:      version,
	}, nil
}

// Run starts the ops server, the interview reaper, the cooldown sweeper,
// the question bank watcher, and the Telegram poller (where configured),
// then blocks until ctx is cancelled or one of them fails fatally. On
// return, Shutdown has been called. Run once per App.
func (a *App) Run(ctx context.Context) error {
	go a.engine.RunReaper(ctx)
	go a.engine.RunCooldownSweeper(ctx)

	if a.bankWatcher != nil {
		go func() {
			if err := a.bankWatcher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				a.logger.Warn("question bank watcher stopped", "error", err)
			}
		}()
	}

	errCh := make(chan error, 2)
	if a.bot != nil {
		go func() {
			if err := a.bot.Run(ctx); err != nil && ctx.Err() == nil {
				errCh <- fmt.Errorf("telegram: %w", err)
			}
		}()
	}
	go func() {
		if err := a.srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// Block until signal or fatal subsystem error.
	select {
	case <-ctx.Done():
		return a.Shutdown(context.Background())
	case err := <-errCh:
		if sErr := a.Shutdown(context.Background()); sErr != nil {
			a.logger.Error("shutdown after fatal error", "error", sErr)
		}
		return err
	}
}

// Shutdown performs a phased graceful stop:
// (1) stop accepting ops requests and drain in-flight ones,
// (2) end every live interview through the normal release sequence
// (audit reason "shutdown", no cooldown) and wait for detached work.
// It then closes the examiner, rate limiter, OTEL provider, and storage.
// Run calls Shutdown automatically; call it directly only when the App is
// driven without Run.
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("monban shutting down")

	var firstErr error

	// Phase 1: HTTP drain. The Telegram poller and background loops stop
	// via the Run context.
	if err := a.srv.Shutdown(ctx); err != nil {
		a.logger.Error("http shutdown error", "error", err)
		firstErr = err
	}

	// Phase 2: release every live interview and persist its audit record.
	if err := a.engine.Shutdown(ctx); err != nil {
		a.logger.Error("engine shutdown error", "error", err)
		if firstErr == nil {
			firstErr = err
		}
	}

	// Cleanup.
	if c, ok := a.examiner.(io.Closer); ok {
		_ = c.Close()
	}
	_ = a.limiter.Close()
	_ = a.otelShutdown(context.Background())
	if a.ownStore {
		if err := a.store.Close(context.Background()); err != nil {
			a.logger.Error("storage close error", "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	a.logger.Info("monban stopped")
	return firstErr
}

// ── Adapters (defined here because this file imports both sides) ───────────────

// examinerAdapter wraps a monban.Examiner to satisfy engine.Examiner.
// It converts internal model types to public monban types at the boundary.
type examinerAdapter struct {
	e Examiner
}

func (a *examinerAdapter) GenerateQuestions(ctx context.Context, n int) ([]string, error) {
	return a.e.GenerateQuestions(ctx, n)
}

func (a *examinerAdapter) Score(ctx context.Context, transcript []model.QA) (int, error) {
	return a.e.Score(ctx, toPublicTranscript(transcript))
}

// eventHookAdapter wraps a monban.EventHook to satisfy engine.EventHook.
type eventHookAdapter struct {
	hook EventHook
}

func (a *eventHookAdapter) OnInterviewStarted(ctx context.Context, iv model.Interview) error {
	return a.hook.OnInterviewStarted(ctx, toPublicInterview(iv))
}

func (a *eventHookAdapter) OnInterviewEnded(ctx context.Context, rec model.AuditRecord) error {
	return a.hook.OnInterviewEnded(ctx, toPublicRecord(rec))
}

// authHelperImpl implements monban.AuthHelper using an internal
// server.RoleMiddlewareFn. Constructed in the route registrar adapter
// closure; bridges the public interface to the internal RBAC middleware
// without embedders importing internal/server.
type authHelperImpl struct {
	roleFn server.RoleMiddlewareFn
}

func (a *authHelperImpl) RequireRole(role Role) func(http.Handler) http.Handler {
	return a.roleFn(model.KeyRole(role))
}

// ── Type converters ────────────────────────────────────────────────────────────

// toPublicInterview converts an internal model.Interview to the public
// monban.Interview. The question texts never cross the boundary.
func toPublicInterview(iv model.Interview) Interview {
	return Interview{
		ID:            iv.ID,
		Requester:     iv.Requester,
		Channel:       iv.Channel,
		Player:        iv.Player,
		QuestionCount: len(iv.Questions),
		CreatedAt:     iv.CreatedAt,
	}
}

// toPublicRecord converts an internal model.AuditRecord to the public
// monban.AuditRecord.
func toPublicRecord(rec model.AuditRecord) AuditRecord {
	return AuditRecord{
		ID:          rec.ID,
		Requester:   rec.Requester,
		Channel:     rec.Channel,
		Player:      rec.Player,
		Transcript:  toPublicTranscript(rec.Transcript),
		Score:       rec.Score,
		Passed:      rec.Passed,
		Reason:      string(rec.Reason),
		TimedOutAt:  rec.TimedOutAt,
		StartedAt:   rec.StartedAt,
		EndedAt:     rec.EndedAt,
		ContentHash: rec.ContentHash,
		PrevHash:    rec.PrevHash,
	}
}

func toPublicTranscript(qa []model.QA) []QA {
	out := make([]QA, len(qa))
	for i, p := range qa {
		out[i] = QA{Question: p.Question, Answer: p.Answer}
	}
	return out
}
