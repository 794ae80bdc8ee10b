package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/ashita-ai/monban/internal/integrity"
	"github.com/ashita-ai/monban/internal/model"
)

// SQLite is the single-node Store implementation backed by modernc.org/sqlite
// (pure Go, no CGO). The pool is capped at one connection so writes never
// contend and audit appends serialize without an explicit lock.
type SQLite struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLite opens (creating if needed) the database at path. ":memory:"
// yields a throwaway in-memory database, which tests use.
func NewSQLite(ctx context.Context, path string, logger *slog.Logger) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage: open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, `PRAGMA journal_mode=WAL; PRAGMA busy_timeout=5000;`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("storage: set sqlite pragmas: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("storage: ping sqlite: %w", err)
	}

	return &SQLite{db: db, logger: logger}, nil
}

// Ping checks that the database file is still reachable.
func (s *SQLite) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database.
func (s *SQLite) Close(_ context.Context) error {
	return s.db.Close()
}

// RunMigrations executes unapplied SQL migration files from the provided
// filesystem in lexical order, tracked in schema_migrations.
func (s *SQLite) RunMigrations(ctx context.Context, migrationsFS fs.FS) error {
	if _, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at INTEGER NOT NULL
		)
	`); err != nil {
		return fmt.Errorf("storage: create schema_migrations: %w", err)
	}

	applied := make(map[string]bool)
	rows, err := s.db.QueryContext(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return fmt.Errorf("storage: load applied migrations: %w", err)
	}
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			rows.Close()
			return fmt.Errorf("storage: scan migration version: %w", err)
		}
		applied[v] = true
	}
	rows.Close()
	if err := rows.Err(); err != nil {
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
			s.logger.Debug("migration already applied, skipping", "file", name)
			continue
		}

		content, err := fs.ReadFile(migrationsFS, name)
		if err != nil {
			return fmt.Errorf("storage: read migration %s: %w", name, err)
		}

		s.logger.Info("running migration", "file", name)
		if _, err := s.db.ExecContext(ctx, string(content)); err != nil {
			return fmt.Errorf("storage: execute migration %s: %w", name, err)
		}

		if _, err := s.db.ExecContext(ctx,
			`INSERT OR IGNORE INTO schema_migrations (version, applied_at) VALUES (?, ?)`,
			name, time.Now().UTC().UnixMicro(),
		); err != nil {
			return fmt.Errorf("storage: record migration %s: %w", name, err)
		}
	}

	return nil
}

// Timestamps are stored as unix microseconds so audit records round-trip
// exactly for hash verification.

func toUsec(t time.Time) int64 {
	return t.UTC().UnixMicro()
}

func fromUsec(n int64) time.Time {
	return time.UnixMicro(n).UTC()
}

func toUsecPtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().UnixMicro()
}

func fromUsecPtr(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}
	t := fromUsec(n.Int64)
	return &t
}

// --- Whitelist mirror ---

func (s *SQLite) UpsertWhitelist(ctx context.Context, e model.WhitelistEntry) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO whitelist_entries (player, requester, approved_by, source, score, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (player) DO UPDATE SET
		   requester = excluded.requester,
		   approved_by = excluded.approved_by,
		   source = excluded.source,
		   score = excluded.score,
		   created_at = excluded.created_at`,
		e.Player, e.Requester, e.ApprovedBy, string(e.Source), e.Score, toUsec(e.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("storage: upsert whitelist: %w", err)
	}
	return nil
}

func (s *SQLite) DeleteWhitelist(ctx context.Context, player string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM whitelist_entries WHERE player = ?`, player)
	if err != nil {
		return fmt.Errorf("storage: delete whitelist: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("storage: delete whitelist rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLite) GetWhitelist(ctx context.Context, player string) (model.WhitelistEntry, error) {
	var (
		e       model.WhitelistEntry
		source  string
		created int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT player, requester, approved_by, source, score, created_at
		 FROM whitelist_entries WHERE player = ?`,
		player,
	).Scan(&e.Player, &e.Requester, &e.ApprovedBy, &source, &e.Score, &created)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.WhitelistEntry{}, ErrNotFound
		}
		return model.WhitelistEntry{}, fmt.Errorf("storage: get whitelist: %w", err)
	}
	e.Source = model.WhitelistSource(source)
	e.CreatedAt = fromUsec(created)
	return e, nil
}

func (s *SQLite) ListWhitelist(ctx context.Context) ([]model.WhitelistEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT player, requester, approved_by, source, score, created_at
		 FROM whitelist_entries ORDER BY player`,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: list whitelist: %w", err)
	}
	defer rows.Close()

	var out []model.WhitelistEntry
	for rows.Next() {
		var (
			e       model.WhitelistEntry
			source  string
			created int64
		)
		if err := rows.Scan(&e.Player, &e.Requester, &e.ApprovedBy, &source, &e.Score, &created); err != nil {
			return nil, fmt.Errorf("storage: scan whitelist: %w", err)
		}
		e.Source = model.WhitelistSource(source)
		e.CreatedAt = fromUsec(created)
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *SQLite) CountWhitelistByRequester(ctx context.Context, requester string, includeAdmin bool) (int, error) {
	q := `SELECT COUNT(*) FROM whitelist_entries WHERE requester = ?`
	if !includeAdmin {
		q += ` AND source = 'interview'`
	}
	var n int
	if err := s.db.QueryRowContext(ctx, q, requester).Scan(&n); err != nil {
		return 0, fmt.Errorf("storage: count whitelist by requester: %w", err)
	}
	return n, nil
}

func (s *SQLite) CountWhitelist(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM whitelist_entries`).Scan(&n); err != nil {
		return 0, fmt.Errorf("storage: count whitelist: %w", err)
	}
	return n, nil
}

// --- Cooldown ledger ---

func (s *SQLite) UpsertCooldown(ctx context.Context, e model.CooldownEntry) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO cooldown_entries (requester, player, reason, expires_at, created_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (requester, player) DO UPDATE SET
		   reason = excluded.reason,
		   expires_at = excluded.expires_at,
		   created_at = excluded.created_at`,
		e.Requester, e.Player, string(e.Reason), toUsec(e.ExpiresAt), toUsec(e.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("storage: upsert cooldown: %w", err)
	}
	return nil
}

func (s *SQLite) DeleteCooldown(ctx context.Context, requester, player string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM cooldown_entries WHERE requester = ? AND player = ?`,
		requester, player,
	)
	if err != nil {
		return fmt.Errorf("storage: delete cooldown: %w", err)
	}
	return nil
}

func (s *SQLite) ListCooldowns(ctx context.Context) ([]model.CooldownEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT requester, player, reason, expires_at, created_at
		 FROM cooldown_entries ORDER BY expires_at`,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: list cooldowns: %w", err)
	}
	defer rows.Close()

	var out []model.CooldownEntry
	for rows.Next() {
		var (
			e       model.CooldownEntry
			reason  string
			expires int64
			created int64
		)
		if err := rows.Scan(&e.Requester, &e.Player, &reason, &expires, &created); err != nil {
			return nil, fmt.Errorf("storage: scan cooldown: %w", err)
		}
		e.Reason = model.TerminalReason(reason)
		e.ExpiresAt = fromUsec(expires)
		e.CreatedAt = fromUsec(created)
		out = append(out, e)
	}
	return out, rows.Err()
}

// --- Audit log ---

// AppendAudit links rec into the hash chain and inserts it. The
// single-connection pool means the transaction holds the only writer, so the
// head read and insert cannot interleave with another append.
func (s *SQLite) AppendAudit(ctx context.Context, rec model.AuditRecord) (model.AuditRecord, error) {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	rec.StartedAt = rec.StartedAt.UTC().Truncate(time.Microsecond)
	rec.EndedAt = rec.EndedAt.UTC().Truncate(time.Microsecond)

	transcript, err := json.Marshal(rec.Transcript)
	if err != nil {
		return model.AuditRecord{}, fmt.Errorf("storage: marshal transcript: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.AuditRecord{}, fmt.Errorf("storage: begin audit tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var prev string
	err = tx.QueryRowContext(ctx, `SELECT content_hash FROM audit_records ORDER BY seq DESC LIMIT 1`).Scan(&prev)
	if errors.Is(err, sql.ErrNoRows) {
		prev = integrity.GenesisHash
	} else if err != nil {
		return model.AuditRecord{}, fmt.Errorf("storage: read audit chain head: %w", err)
	}

	rec.PrevHash = prev
	rec.ContentHash = integrity.ComputeContentHash(rec)

	var timedOut any
	if rec.TimedOutAt != nil {
		timedOut = *rec.TimedOutAt
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO audit_records (id, requester, channel, player, transcript, score, passed, reason, timed_out_at, started_at, ended_at, content_hash, prev_hash)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID.String(), rec.Requester, rec.Channel, rec.Player, string(transcript),
		rec.Score, rec.Passed, string(rec.Reason), timedOut,
		toUsec(rec.StartedAt), toUsec(rec.EndedAt), rec.ContentHash, rec.PrevHash,
	)
	if err != nil {
		return model.AuditRecord{}, fmt.Errorf("storage: insert audit record: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return model.AuditRecord{}, fmt.Errorf("storage: commit audit tx: %w", err)
	}
	return rec, nil
}

func (s *SQLite) ListAudit(ctx context.Context, f model.AuditFilter) ([]model.AuditRecord, error) {
	q := `SELECT id, requester, channel, player, transcript, score, passed, reason, timed_out_at, started_at, ended_at, content_hash, prev_hash
	      FROM audit_records`
	var (
		conds []string
		args  []any
	)
	if f.Requester != "" {
		conds = append(conds, "requester = ?")
		args = append(args, f.Requester)
	}
	if f.Player != "" {
		conds = append(conds, "player = ?")
		args = append(args, f.Player)
	}
	if f.Passed != nil {
		conds = append(conds, "passed = ?")
		args = append(args, *f.Passed)
	}
	if len(conds) > 0 {
		q += " WHERE " + strings.Join(conds, " AND ")
	}
	q += " ORDER BY seq"
	if f.Limit > 0 {
		q += " LIMIT ?"
		args = append(args, f.Limit)
	}
	if f.Offset > 0 {
		if f.Limit <= 0 {
			// SQLite requires LIMIT before OFFSET; -1 means unbounded.
			q += " LIMIT -1"
		}
		q += " OFFSET ?"
		args = append(args, f.Offset)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("storage: list audit: %w", err)
	}
	defer rows.Close()

	var out []model.AuditRecord
	for rows.Next() {
		var (
			rec        model.AuditRecord
			id         string
			transcript string
			reason     string
			timedOut   sql.NullInt64
			started    int64
			ended      int64
		)
		if err := rows.Scan(
			&id, &rec.Requester, &rec.Channel, &rec.Player, &transcript,
			&rec.Score, &rec.Passed, &reason, &timedOut,
			&started, &ended, &rec.ContentHash, &rec.PrevHash,
		); err != nil {
			return nil, fmt.Errorf("storage: scan audit record: %w", err)
		}
		rec.ID, err = uuid.Parse(id)
		if err != nil {
			return nil, fmt.Errorf("storage: parse audit record id: %w", err)
		}
		if err := json.Unmarshal([]byte(transcript), &rec.Transcript); err != nil {
			return nil, fmt.Errorf("storage: unmarshal transcript: %w", err)
		}
		rec.Reason = model.TerminalReason(reason)
		if timedOut.Valid {
			v := int(timedOut.Int64)
			rec.TimedOutAt = &v
		}
		rec.StartedAt = fromUsec(started)
		rec.EndedAt = fromUsec(ended)
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *SQLite) CountAudit(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM audit_records`).Scan(&n); err != nil {
		return 0, fmt.Errorf("storage: count audit: %w", err)
	}
	return n, nil
}

// --- Ops API keys ---

func (s *SQLite) InsertAPIKey(ctx context.Context, k model.APIKey) error {
	if k.ID == uuid.Nil {
		k.ID = uuid.New()
	}
	if k.CreatedAt.IsZero() {
		k.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO api_keys (id, prefix, key_hash, name, role, created_at, last_used_at, revoked_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		k.ID.String(), k.Prefix, k.KeyHash, k.Name, string(k.Role),
		toUsec(k.CreatedAt), toUsecPtr(k.LastUsedAt), toUsecPtr(k.RevokedAt),
	)
	if err != nil {
		return fmt.Errorf("storage: insert api key: %w", err)
	}
	return nil
}

func (s *SQLite) ListAPIKeys(ctx context.Context) ([]model.APIKey, error) {
	return s.queryAPIKeys(ctx,
		`SELECT id, prefix, key_hash, name, role, created_at, last_used_at, revoked_at
		 FROM api_keys ORDER BY created_at DESC`,
	)
}

func (s *SQLite) GetActiveAPIKeysByPrefix(ctx context.Context, prefix string) ([]model.APIKey, error) {
	return s.queryAPIKeys(ctx,
		`SELECT id, prefix, key_hash, name, role, created_at, last_used_at, revoked_at
		 FROM api_keys WHERE prefix = ? AND revoked_at IS NULL`,
		prefix,
	)
}

func (s *SQLite) queryAPIKeys(ctx context.Context, query string, args ...any) ([]model.APIKey, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("storage: query api keys: %w", err)
	}
	defer rows.Close()

	var out []model.APIKey
	for rows.Next() {
		var (
			k        model.APIKey
			id       string
			role     string
			created  int64
			lastUsed sql.NullInt64
			revoked  sql.NullInt64
		)
		if err := rows.Scan(&id, &k.Prefix, &k.KeyHash, &k.Name, &role, &created, &lastUsed, &revoked); err != nil {
			return nil, fmt.Errorf("storage: scan api key: %w", err)
		}
		k.ID, err = uuid.Parse(id)
		if err != nil {
			return nil, fmt.Errorf("storage: parse api key id: %w", err)
		}
		k.Role = model.KeyRole(role)
		k.CreatedAt = fromUsec(created)
		k.LastUsedAt = fromUsecPtr(lastUsed)
		k.RevokedAt = fromUsecPtr(revoked)
		out = append(out, k)
	}
	return out, rows.Err()
}

func (s *SQLite) RevokeAPIKey(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE api_keys SET revoked_at = ? WHERE id = ? AND revoked_at IS NULL`,
		time.Now().UTC().UnixMicro(), id.String(),
	)
	if err != nil {
		return fmt.Errorf("storage: revoke api key: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("storage: revoke api key rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLite) TouchAPIKey(ctx context.Context, id uuid.UUID) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE api_keys SET last_used_at = ? WHERE id = ?`,
		time.Now().UTC().UnixMicro(), id.String(),
	)
	if err != nil {
		return fmt.Errorf("storage: touch api key: %w", err)
	}
	return nil
}

func (s *SQLite) CountAPIKeys(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM api_keys WHERE revoked_at IS NULL`).Scan(&n); err != nil {
		return 0, fmt.Errorf("storage: count api keys: %w", err)
	}
	return n, nil
}
