// Package storage provides durable persistence for Monban: the whitelist
// mirror, the cooldown ledger, the hash-chained audit log, and ops API keys.
//
// Two backends implement the Store interface: PostgreSQL (pgx connection
// pool) for shared deployments and SQLite (modernc, CGO-free) for
// single-node installs. Both run the same embedded, forward-only migration
// files at startup.
package storage

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/google/uuid"

	"github.com/ashita-ai/monban/internal/model"
)

// Store is the persistence surface used by the engine, the admission
// applier, and the ops server. Implementations must be safe for concurrent
// use. Lookups that find nothing return ErrNotFound.
type Store interface {
	// Whitelist mirror.
	UpsertWhitelist(ctx context.Context, e model.WhitelistEntry) error
	DeleteWhitelist(ctx context.Context, player string) error
	GetWhitelist(ctx context.Context, player string) (model.WhitelistEntry, error)
	ListWhitelist(ctx context.Context) ([]model.WhitelistEntry, error)
	// CountWhitelistByRequester counts a requester's approved entries for
	// quota checks. When includeAdmin is false, admin-added entries are
	// excluded from the count.
	CountWhitelistByRequester(ctx context.Context, requester string, includeAdmin bool) (int, error)
	CountWhitelist(ctx context.Context) (int, error)

	// Cooldown ledger.
	UpsertCooldown(ctx context.Context, e model.CooldownEntry) error
	DeleteCooldown(ctx context.Context, requester, player string) error
	ListCooldowns(ctx context.Context) ([]model.CooldownEntry, error)

	// Audit log. AppendAudit links the record into the hash chain (PrevHash,
	// ContentHash) and returns the stored record; appends are serialized so
	// the chain never forks. ListAudit returns records in append order.
	AppendAudit(ctx context.Context, rec model.AuditRecord) (model.AuditRecord, error)
	ListAudit(ctx context.Context, f model.AuditFilter) ([]model.AuditRecord, error)
	CountAudit(ctx context.Context) (int, error)

	// Ops API keys.
	InsertAPIKey(ctx context.Context, k model.APIKey) error
	ListAPIKeys(ctx context.Context) ([]model.APIKey, error)
	GetActiveAPIKeysByPrefix(ctx context.Context, prefix string) ([]model.APIKey, error)
	RevokeAPIKey(ctx context.Context, id uuid.UUID) error
	TouchAPIKey(ctx context.Context, id uuid.UUID) error
	CountAPIKeys(ctx context.Context) (int, error)

	// RunMigrations applies pending migration files from migrationsFS in
	// lexical order, tracking applied versions in schema_migrations.
	RunMigrations(ctx context.Context, migrationsFS fs.FS) error

	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

// Open creates a Store for the configured driver. For "postgres" the URL is
// a DSN; for "sqlite" it is a file path (":memory:" works for tests).
func Open(ctx context.Context, driver, url string, logger *slog.Logger) (Store, error) {
	switch driver {
	case "postgres":
		return NewPostgres(ctx, url, logger)
	case "sqlite":
		return NewSQLite(ctx, url, logger)
	default:
		return nil, fmt.Errorf("storage: unknown driver %q", driver)
	}
}
