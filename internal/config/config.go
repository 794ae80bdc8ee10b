// Package config loads and validates application configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	// Server settings.
	ListenAddr          string
	ReadTimeout         time.Duration
	WriteTimeout        time.Duration
	MaxRequestBodyBytes int64
	KeyCacheTTL         time.Duration // Verified API keys skip argon2id for this long; 0 disables.

	// Database settings.
	DBDriver    string // "postgres" or "sqlite".
	DatabaseURL string // Postgres DSN, or the SQLite file path.

	// Interview settings.
	AllowedChannels  []string // Channels authorized for interviews; empty allows all.
	Admins           []string // Requester IDs permitted to use admin verbs.
	CommandPrefix    string   // Chat command keyword, e.g. "wl" for "wl apply".
	QuestionCount    int
	PassScore        int
	AnswerTimeout    time.Duration
	Cooldown         time.Duration
	MaxPerRequester  int
	QuotaCountsAdmin bool // Whether admin-added entries count toward the requester quota.
	AnswerMaxLen     int  // Longer answers are truncated to this many runes.
	ReaperInterval   time.Duration
	SweepInterval    time.Duration // How often expired cooldowns are purged from storage.
	IdleTimeout      time.Duration

	// Examiner settings.
	ExaminerProvider string // "openai", "ollama", "gemini", "bank", or "none".
	ExaminerURL      string
	ExaminerKey      string
	ExaminerModel    string
	ExaminerTimeout  time.Duration
	QuestionsFile    string // Optional YAML question bank overriding the bundled one.
	QuestionsWatch   bool   // Hot-reload the question file on change.

	// Remote executor settings.
	RCONAddr      string // Empty disables the remote executor.
	RCONPassword  string
	RCONTimeout   time.Duration
	CmdAdd        string
	CmdRemove     string
	CmdList       string
	ConfirmPolicy string // "never", "on-ambiguous", or "always".

	// Transport settings.
	TelegramToken      string // Empty disables the Telegram transport.
	BridgeWebhookURL   string // Async reply webhook for HTTP-ingested commands; empty drops them.
	BridgeWebhookToken string // Optional bearer token for the reply webhook.

	// Auth settings.
	JWTPrivateKeyPath string // Path to Ed25519 private key PEM file.
	JWTPublicKeyPath  string // Path to Ed25519 public key PEM file.
	BootstrapAPIKey   string // Raw admin key registered at startup when no keys exist.

	// OTEL settings.
	OTELEndpoint string
	OTELInsecure bool
	ServiceName  string

	// Operational settings.
	LogLevel  string
	RateRPS   int // Ops API rate limit: sustained requests per second per key.
	RateBurst int // Ops API rate limit: burst size per key.
}

// Load reads configuration from environment variables with sensible defaults.
// All malformed variables are reported together in a single error.
func Load() (Config, error) {
	var errs []string

	intVal := func(key string, def int) int {
		v, err := envInt(key, def)
		if err != nil {
			errs = append(errs, err.Error())
		}
		return v
	}
	boolVal := func(key string, def bool) bool {
		v, err := envBool(key, def)
		if err != nil {
			errs = append(errs, err.Error())
		}
		return v
	}
	durVal := func(key string, def time.Duration) time.Duration {
		v, err := envDuration(key, def)
		if err != nil {
			errs = append(errs, err.Error())
		}
		return v
	}

	cfg := Config{
		ListenAddr:          envStr("MONBAN_LISTEN_ADDR", ":8787"),
		ReadTimeout:         durVal("MONBAN_READ_TIMEOUT", 30*time.Second),
		WriteTimeout:        durVal("MONBAN_WRITE_TIMEOUT", 30*time.Second),
		MaxRequestBodyBytes: int64(intVal("MONBAN_MAX_REQUEST_BODY_BYTES", 1*1024*1024)),
		KeyCacheTTL:         durVal("MONBAN_KEY_CACHE_TTL", time.Minute),

		DBDriver:    envStr("MONBAN_DB_DRIVER", "sqlite"),
		DatabaseURL: envStr("MONBAN_DATABASE_URL", "monban.db"),

		AllowedChannels:  envList("MONBAN_ALLOWED_CHANNELS"),
		Admins:           envList("MONBAN_ADMINS"),
		CommandPrefix:    envStr("MONBAN_COMMAND_PREFIX", "wl"),
		QuestionCount:    intVal("MONBAN_QUESTION_COUNT", 10),
		PassScore:        intVal("MONBAN_PASS_SCORE", 60),
		AnswerTimeout:    durVal("MONBAN_ANSWER_TIMEOUT", 3*time.Minute),
		Cooldown:         durVal("MONBAN_COOLDOWN", time.Hour),
		MaxPerRequester:  intVal("MONBAN_MAX_WHITELIST_PER_USER", 1),
		QuotaCountsAdmin: boolVal("MONBAN_QUOTA_COUNTS_ADMIN", true),
		AnswerMaxLen:     intVal("MONBAN_ANSWER_MAX_LEN", 500),
		ReaperInterval:   durVal("MONBAN_REAPER_INTERVAL", 5*time.Minute),
		SweepInterval:    durVal("MONBAN_SWEEP_INTERVAL", 10*time.Minute),
		IdleTimeout:      durVal("MONBAN_IDLE_TIMEOUT", 30*time.Minute),

		ExaminerProvider: envStr("MONBAN_EXAMINER_PROVIDER", "bank"),
		ExaminerURL:      envStr("MONBAN_EXAMINER_URL", ""),
		ExaminerKey:      envStr("MONBAN_EXAMINER_KEY", ""),
		ExaminerModel:    envStr("MONBAN_EXAMINER_MODEL", ""),
		ExaminerTimeout:  durVal("MONBAN_EXAMINER_TIMEOUT", time.Minute),
		QuestionsFile:    envStr("MONBAN_QUESTIONS_FILE", ""),
		QuestionsWatch:   boolVal("MONBAN_QUESTIONS_WATCH", false),

		RCONAddr:      envStr("MONBAN_RCON_ADDR", ""),
		RCONPassword:  envStr("MONBAN_RCON_PASSWORD", ""),
		RCONTimeout:   durVal("MONBAN_RCON_TIMEOUT", 10*time.Second),
		CmdAdd:        envStr("MONBAN_CMD_ADD", "whitelist add {player}"),
		CmdRemove:     envStr("MONBAN_CMD_REMOVE", "whitelist remove {player}"),
		CmdList:       envStr("MONBAN_CMD_LIST", "whitelist list"),
		ConfirmPolicy: envStr("MONBAN_CONFIRM_POLICY", "on-ambiguous"),

		TelegramToken:      envStr("MONBAN_TELEGRAM_TOKEN", ""),
		BridgeWebhookURL:   envStr("MONBAN_BRIDGE_WEBHOOK_URL", ""),
		BridgeWebhookToken: envStr("MONBAN_BRIDGE_WEBHOOK_TOKEN", ""),

		JWTPrivateKeyPath: envStr("MONBAN_JWT_PRIVATE_KEY", ""),
		JWTPublicKeyPath:  envStr("MONBAN_JWT_PUBLIC_KEY", ""),
		BootstrapAPIKey:   envStr("MONBAN_BOOTSTRAP_API_KEY", ""),

		OTELEndpoint: envStr("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		OTELInsecure: boolVal("OTEL_EXPORTER_OTLP_INSECURE", false),
		ServiceName:  envStr("OTEL_SERVICE_NAME", "monban"),

		LogLevel:  envStr("MONBAN_LOG_LEVEL", "info"),
		RateRPS:   intVal("MONBAN_RATE_RPS", 20),
		RateBurst: intVal("MONBAN_RATE_BURST", 40),
	}

	if len(errs) > 0 {
		return Config{}, fmt.Errorf("config: %s", strings.Join(errs, "; "))
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints after loading.
func (c Config) Validate() error {
	switch c.DBDriver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("config: MONBAN_DB_DRIVER must be postgres or sqlite, got %q", c.DBDriver)
	}
	if c.DatabaseURL == "" {
		return fmt.Errorf("config: MONBAN_DATABASE_URL is required")
	}
	if c.QuestionCount <= 0 {
		return fmt.Errorf("config: MONBAN_QUESTION_COUNT must be positive")
	}
	if c.PassScore < 0 || c.PassScore > 10*c.QuestionCount {
		return fmt.Errorf("config: MONBAN_PASS_SCORE must be within [0, %d] for %d questions", 10*c.QuestionCount, c.QuestionCount)
	}
	if c.AnswerTimeout <= 0 {
		return fmt.Errorf("config: MONBAN_ANSWER_TIMEOUT must be positive")
	}
	if c.MaxPerRequester <= 0 {
		return fmt.Errorf("config: MONBAN_MAX_WHITELIST_PER_USER must be positive")
	}
	if c.AnswerMaxLen <= 0 {
		return fmt.Errorf("config: MONBAN_ANSWER_MAX_LEN must be positive")
	}
	if c.ReaperInterval <= 0 {
		return fmt.Errorf("config: MONBAN_REAPER_INTERVAL must be positive")
	}
	if c.SweepInterval <= 0 {
		return fmt.Errorf("config: MONBAN_SWEEP_INTERVAL must be positive")
	}
	if c.MaxRequestBodyBytes <= 0 {
		return fmt.Errorf("config: MONBAN_MAX_REQUEST_BODY_BYTES must be positive")
	}
	if c.KeyCacheTTL < 0 {
		return fmt.Errorf("config: MONBAN_KEY_CACHE_TTL must not be negative")
	}
	switch c.ExaminerProvider {
	case "openai", "ollama", "gemini", "bank", "none":
	default:
		return fmt.Errorf("config: MONBAN_EXAMINER_PROVIDER must be one of openai, ollama, gemini, bank, none; got %q", c.ExaminerProvider)
	}
	switch c.ConfirmPolicy {
	case "never", "on-ambiguous", "always":
	default:
		return fmt.Errorf("config: MONBAN_CONFIRM_POLICY must be never, on-ambiguous, or always; got %q", c.ConfirmPolicy)
	}
	if !strings.Contains(c.CmdAdd, "{player}") {
		return fmt.Errorf("config: MONBAN_CMD_ADD must contain a {player} placeholder")
	}
	if !strings.Contains(c.CmdRemove, "{player}") {
		return fmt.Errorf("config: MONBAN_CMD_REMOVE must contain a {player} placeholder")
	}
	return nil
}

// ChannelAllowed reports whether a channel may host interviews.
// An empty allow-list authorizes every channel.
func (c Config) ChannelAllowed(channel string) bool {
	if len(c.AllowedChannels) == 0 {
		return true
	}
	for _, ch := range c.AllowedChannels {
		if ch == channel {
			return true
		}
	}
	return false
}

// IsAdmin reports whether a requester may use admin verbs.
func (c Config) IsAdmin(requester string) bool {
	for _, a := range c.Admins {
		if a == requester {
			return true
		}
	}
	return false
}

func envStr(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envList(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func envInt(key string, defaultVal int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal, fmt.Errorf("%s=%q is not a valid integer", key, v)
	}
	return n, nil
}

func envBool(key string, defaultVal bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal, fmt.Errorf("%s=%q is not a valid boolean", key, v)
	}
	return b, nil
}

func envDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal, fmt.Errorf("%s=%q is not a valid duration", key, v)
	}
	return d, nil
}
