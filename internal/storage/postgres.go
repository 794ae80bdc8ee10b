package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ashita-ai/monban/internal/integrity"
	"github.com/ashita-ai/monban/internal/model"
)

// auditChainLockKey is the advisory lock key serializing audit appends so
// two concurrent completions cannot both link to the same predecessor.
const auditChainLockKey = 0x6d6f6e62 // "monb"

// Postgres is the pgx-backed Store implementation.
type Postgres struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewPostgres creates a Postgres store with a connection pool and verifies
// connectivity before returning.
func NewPostgres(ctx context.Context, dsn string, logger *slog.Logger) (*Postgres, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("storage: parse postgres DSN: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("storage: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("storage: ping pool: %w", err)
	}

	return &Postgres{pool: pool, logger: logger}, nil
}

// Pool returns the underlying connection pool for use by other packages.
func (db *Postgres) Pool() *pgxpool.Pool {
	return db.pool
}

// Ping checks connectivity to the database.
func (db *Postgres) Ping(ctx context.Context) error {
	return db.pool.Ping(ctx)
}

// Close shuts down the connection pool.
func (db *Postgres) Close(_ context.Context) error {
	db.pool.Close()
	return nil
}

// RunMigrations executes unapplied SQL migration files from the provided
// filesystem in lexical order. Applied versions are tracked in a
// schema_migrations table so each file runs at most once.
func (db *Postgres) RunMigrations(ctx context.Context, migrationsFS fs.FS) error {
	if _, err := db.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`); err != nil {
		return fmt.Errorf("storage: create schema_migrations: %w", err)
	}

	applied, err := db.loadAppliedMigrations(ctx)
	if err != nil {
		return fmt.Errorf("storage: load applied migrations: %w", err)
	}

	entries, err := fs.ReadDir(migrationsFS, ".")
	if err != nil {
		return fmt.Errorf("storage: read migrations dir: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		name := entry.Name()
		if applied[name] {
			db.logger.Debug("migration already applied, skipping", "file", name)
			continue
		}

		content, err := fs.ReadFile(migrationsFS, name)
		if err != nil {
			return fmt.Errorf("storage: read migration %s: %w", name, err)
		}

		db.logger.Info("running migration", "file", name)
		if _, err := db.pool.Exec(ctx, string(content)); err != nil {
			return fmt.Errorf("storage: execute migration %s: %w", name, err)
		}

		if _, err := db.pool.Exec(ctx,
			`INSERT INTO schema_migrations (version) VALUES ($1) ON CONFLICT DO NOTHING`, name,
		); err != nil {
			return fmt.Errorf("storage: record migration %s: %w", name, err)
		}
	}

	return nil
}

func (db *Postgres) loadAppliedMigrations(ctx context.Context) (map[string]bool, error) {
	rows, err := db.pool.Query(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	applied := make(map[string]bool)
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		applied[v] = true
	}
	return applied, rows.Err()
}

// --- Whitelist mirror ---

// UpsertWhitelist inserts or replaces the entry for a player name.
func (db *Postgres) UpsertWhitelist(ctx context.Context, e model.WhitelistEntry) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	_, err := db.pool.Exec(ctx,
		`INSERT INTO whitelist_entries (player, requester, approved_by, source, score, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (player) DO UPDATE SET
		   requester = EXCLUDED.requester,
		   approved_by = EXCLUDED.approved_by,
		   source = EXCLUDED.source,
		   score = EXCLUDED.score,
		   created_at = EXCLUDED.created_at`,
		e.Player, e.Requester, e.ApprovedBy, e.Source, e.Score, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("storage: upsert whitelist: %w", err)
	}
	return nil
}

// DeleteWhitelist removes a player's entry. Returns ErrNotFound when no
// entry exists.
func (db *Postgres) DeleteWhitelist(ctx context.Context, player string) error {
	tag, err := db.pool.Exec(ctx, `DELETE FROM whitelist_entries WHERE player = $1`, player)
	if err != nil {
		return fmt.Errorf("storage: delete whitelist: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// GetWhitelist fetches the entry for a player name.
func (db *Postgres) GetWhitelist(ctx context.Context, player string) (model.WhitelistEntry, error) {
	var e model.WhitelistEntry
	err := db.pool.QueryRow(ctx,
		`SELECT player, requester, approved_by, source, score, created_at
		 FROM whitelist_entries WHERE player = $1`,
		player,
	).Scan(&e.Player, &e.Requester, &e.ApprovedBy, &e.Source, &e.Score, &e.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.WhitelistEntry{}, ErrNotFound
		}
		return model.WhitelistEntry{}, fmt.Errorf("storage: get whitelist: %w", err)
	}
	return e, nil
}

// ListWhitelist returns all entries ordered by player name.
func (db *Postgres) ListWhitelist(ctx context.Context) ([]model.WhitelistEntry, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT player, requester, approved_by, source, score, created_at
		 FROM whitelist_entries ORDER BY player`,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: list whitelist: %w", err)
	}
	defer rows.Close()

	var out []model.WhitelistEntry
	for rows.Next() {
		var e model.WhitelistEntry
		if err := rows.Scan(&e.Player, &e.Requester, &e.ApprovedBy, &e.Source, &e.Score, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("storage: scan whitelist: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// CountWhitelistByRequester counts a requester's entries for quota checks.
func (db *Postgres) CountWhitelistByRequester(ctx context.Context, requester string, includeAdmin bool) (int, error) {
	q := `SELECT COUNT(*) FROM whitelist_entries WHERE requester = $1`
	if !includeAdmin {
		q += ` AND source = 'interview'`
	}
	var n int
	if err := db.pool.QueryRow(ctx, q, requester).Scan(&n); err != nil {
		return 0, fmt.Errorf("storage: count whitelist by requester: %w", err)
	}
	return n, nil
}

// CountWhitelist returns the total number of entries.
func (db *Postgres) CountWhitelist(ctx context.Context) (int, error) {
	var n int
	if err := db.pool.QueryRow(ctx, `SELECT COUNT(*) FROM whitelist_entries`).Scan(&n); err != nil {
		return 0, fmt.Errorf("storage: count whitelist: %w", err)
	}
	return n, nil
}

// --- Cooldown ledger ---

// UpsertCooldown inserts or replaces the cooldown for (requester, player).
func (db *Postgres) UpsertCooldown(ctx context.Context, e model.CooldownEntry) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	_, err := db.pool.Exec(ctx,
		`INSERT INTO cooldown_entries (requester, player, reason, expires_at, created_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (requester, player) DO UPDATE SET
		   reason = EXCLUDED.reason,
		   expires_at = EXCLUDED.expires_at,
		   created_at = EXCLUDED.created_at`,
		e.Requester, e.Player, e.Reason, e.ExpiresAt, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("storage: upsert cooldown: %w", err)
	}
	return nil
}

// DeleteCooldown removes the cooldown for (requester, player). Deleting a
// missing row is not an error; expiry sweeps race with admin clears.
func (db *Postgres) DeleteCooldown(ctx context.Context, requester, player string) error {
	_, err := db.pool.Exec(ctx,
		`DELETE FROM cooldown_entries WHERE requester = $1 AND player = $2`,
		requester, player,
	)
	if err != nil {
		return fmt.Errorf("storage: delete cooldown: %w", err)
	}
	return nil
}

// ListCooldowns returns all cooldown rows, expired ones included. Callers
// filter by expiry themselves.
func (db *Postgres) ListCooldowns(ctx context.Context) ([]model.CooldownEntry, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT requester, player, reason, expires_at, created_at
		 FROM cooldown_entries ORDER BY expires_at`,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: list cooldowns: %w", err)
	}
	defer rows.Close()

	var out []model.CooldownEntry
	for rows.Next() {
		var e model.CooldownEntry
		if err := rows.Scan(&e.Requester, &e.Player, &e.Reason, &e.ExpiresAt, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("storage: scan cooldown: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// --- Audit log ---

// AppendAudit links rec into the hash chain and inserts it. The advisory
// transaction lock serializes appends across all connections, so the read
// of the current head and the insert of the new record are atomic.
func (db *Postgres) AppendAudit(ctx context.Context, rec model.AuditRecord) (model.AuditRecord, error) {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	// Postgres timestamps carry microseconds. Truncate before hashing so the
	// stored record re-verifies after a round trip.
	rec.StartedAt = rec.StartedAt.UTC().Truncate(time.Microsecond)
	rec.EndedAt = rec.EndedAt.UTC().Truncate(time.Microsecond)

	transcript, err := json.Marshal(rec.Transcript)
	if err != nil {
		return model.AuditRecord{}, fmt.Errorf("storage: marshal transcript: %w", err)
	}

	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return model.AuditRecord{}, fmt.Errorf("storage: begin audit tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, auditChainLockKey); err != nil {
		return model.AuditRecord{}, fmt.Errorf("storage: acquire audit chain lock: %w", err)
	}

	var prev string
	err = tx.QueryRow(ctx, `SELECT content_hash FROM audit_records ORDER BY seq DESC LIMIT 1`).Scan(&prev)
	if errors.Is(err, pgx.ErrNoRows) {
		prev = integrity.GenesisHash
	} else if err != nil {
		return model.AuditRecord{}, fmt.Errorf("storage: read audit chain head: %w", err)
	}

	rec.PrevHash = prev
	rec.ContentHash = integrity.ComputeContentHash(rec)

	_, err = tx.Exec(ctx,
		`INSERT INTO audit_records (id, requester, channel, player, transcript, score, passed, reason, timed_out_at, started_at, ended_at, content_hash, prev_hash)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		rec.ID, rec.Requester, rec.Channel, rec.Player, transcript, rec.Score,
		rec.Passed, rec.Reason, rec.TimedOutAt, rec.StartedAt, rec.EndedAt,
		rec.ContentHash, rec.PrevHash,
	)
	if err != nil {
		return model.AuditRecord{}, fmt.Errorf("storage: insert audit record: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return model.AuditRecord{}, fmt.Errorf("storage: commit audit tx: %w", err)
	}
	return rec, nil
}

// ListAudit returns records matching the filter in append order.
func (db *Postgres) ListAudit(ctx context.Context, f model.AuditFilter) ([]model.AuditRecord, error) {
	q := `SELECT id, requester, channel, player, transcript, score, passed, reason, timed_out_at, started_at, ended_at, content_hash, prev_hash
	      FROM audit_records`
	var (
		conds []string
		args  []any
	)
	if f.Requester != "" {
		args = append(args, f.Requester)
		conds = append(conds, fmt.Sprintf("requester = $%d", len(args)))
	}
	if f.Player != "" {
		args = append(args, f.Player)
		conds = append(conds, fmt.Sprintf("player = $%d", len(args)))
	}
	if f.Passed != nil {
		args = append(args, *f.Passed)
		conds = append(conds, fmt.Sprintf("passed = $%d", len(args)))
	}
	if len(conds) > 0 {
		q += " WHERE " + strings.Join(conds, " AND ")
	}
	q += " ORDER BY seq"
	if f.Limit > 0 {
		args = append(args, f.Limit)
		q += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if f.Offset > 0 {
		args = append(args, f.Offset)
		q += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := db.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("storage: list audit: %w", err)
	}
	defer rows.Close()

	var out []model.AuditRecord
	for rows.Next() {
		var (
			rec        model.AuditRecord
			transcript []byte
		)
		if err := rows.Scan(
			&rec.ID, &rec.Requester, &rec.Channel, &rec.Player, &transcript,
			&rec.Score, &rec.Passed, &rec.Reason, &rec.TimedOutAt,
			&rec.StartedAt, &rec.EndedAt, &rec.ContentHash, &rec.PrevHash,
		); err != nil {
			return nil, fmt.Errorf("storage: scan audit record: %w", err)
		}
		if err := json.Unmarshal(transcript, &rec.Transcript); err != nil {
			return nil, fmt.Errorf("storage: unmarshal transcript: %w", err)
		}
		rec.StartedAt = rec.StartedAt.UTC()
		rec.EndedAt = rec.EndedAt.UTC()
		out = append(out, rec)
	}
	return out, rows.Err()
}

// CountAudit returns the total number of audit records.
func (db *Postgres) CountAudit(ctx context.Context) (int, error) {
	var n int
	if err := db.pool.QueryRow(ctx, `SELECT COUNT(*) FROM audit_records`).Scan(&n); err != nil {
		return 0, fmt.Errorf("storage: count audit: %w", err)
	}
	return n, nil
}

// --- Ops API keys ---

// InsertAPIKey stores a new key row.
func (db *Postgres) InsertAPIKey(ctx context.Context, k model.APIKey) error {
	if k.ID == uuid.Nil {
		k.ID = uuid.New()
	}
	if k.CreatedAt.IsZero() {
		k.CreatedAt = time.Now().UTC()
	}
	_, err := db.pool.Exec(ctx,
		`INSERT INTO api_keys (id, prefix, key_hash, name, role, created_at, last_used_at, revoked_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		k.ID, k.Prefix, k.KeyHash, k.Name, k.Role, k.CreatedAt, k.LastUsedAt, k.RevokedAt,
	)
	if err != nil {
		return fmt.Errorf("storage: insert api key: %w", err)
	}
	return nil
}

// ListAPIKeys returns all keys, newest first, revoked ones included.
func (db *Postgres) ListAPIKeys(ctx context.Context) ([]model.APIKey, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT id, prefix, key_hash, name, role, created_at, last_used_at, revoked_at
		 FROM api_keys ORDER BY created_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: list api keys: %w", err)
	}
	defer rows.Close()

	var out []model.APIKey
	for rows.Next() {
		var k model.APIKey
		if err := rows.Scan(&k.ID, &k.Prefix, &k.KeyHash, &k.Name, &k.Role, &k.CreatedAt, &k.LastUsedAt, &k.RevokedAt); err != nil {
			return nil, fmt.Errorf("storage: scan api key: %w", err)
		}
		out = append(out, k)
	}
	return out, rows.Err()
}

// GetActiveAPIKeysByPrefix returns non-revoked keys with the given prefix.
// The prefix pre-filter keeps argon2 verification to a handful of candidates.
func (db *Postgres) GetActiveAPIKeysByPrefix(ctx context.Context, prefix string) ([]model.APIKey, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT id, prefix, key_hash, name, role, created_at, last_used_at, revoked_at
		 FROM api_keys WHERE prefix = $1 AND revoked_at IS NULL`,
		prefix,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: get api keys by prefix: %w", err)
	}
	defer rows.Close()

	var out []model.APIKey
	for rows.Next() {
		var k model.APIKey
		if err := rows.Scan(&k.ID, &k.Prefix, &k.KeyHash, &k.Name, &k.Role, &k.CreatedAt, &k.LastUsedAt, &k.RevokedAt); err != nil {
			return nil, fmt.Errorf("storage: scan api key: %w", err)
		}
		out = append(out, k)
	}
	return out, rows.Err()
}

// RevokeAPIKey marks a key revoked. Returns ErrNotFound if the key does not
// exist or is already revoked.
func (db *Postgres) RevokeAPIKey(ctx context.Context, id uuid.UUID) error {
	tag, err := db.pool.Exec(ctx,
		`UPDATE api_keys SET revoked_at = now() WHERE id = $1 AND revoked_at IS NULL`, id,
	)
	if err != nil {
		return fmt.Errorf("storage: revoke api key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// TouchAPIKey updates last_used_at. Best-effort bookkeeping; callers may
// ignore the error.
func (db *Postgres) TouchAPIKey(ctx context.Context, id uuid.UUID) error {
	_, err := db.pool.Exec(ctx, `UPDATE api_keys SET last_used_at = now() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("storage: touch api key: %w", err)
	}
	return nil
}

// CountAPIKeys returns the number of non-revoked keys.
func (db *Postgres) CountAPIKeys(ctx context.Context) (int, error) {
	var n int
	if err := db.pool.QueryRow(ctx, `SELECT COUNT(*) FROM api_keys WHERE revoked_at IS NULL`).Scan(&n); err != nil {
		return 0, fmt.Errorf("storage: count api keys: %w", err)
	}
	return n, nil
}
