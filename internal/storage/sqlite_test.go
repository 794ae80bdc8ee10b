package storage_test

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/monban/internal/integrity"
	"github.com/ashita-ai/monban/internal/model"
	"github.com/ashita-ai/monban/internal/storage"
	"github.com/ashita-ai/monban/migrations"
)

func newSQLiteStore(t *testing.T) *storage.SQLite {
	t.Helper()
	ctx := context.Background()

	path := filepath.Join(t.TempDir(), "monban.db")
	s, err := storage.NewSQLite(ctx, path, slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close(ctx) })

	migFS, err := migrations.ForDriver("sqlite")
	require.NoError(t, err)
	require.NoError(t, s.RunMigrations(ctx, migFS))
	return s
}

func TestSQLiteMigrationsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := newSQLiteStore(t)

	migFS, err := migrations.ForDriver("sqlite")
	require.NoError(t, err)
	require.NoError(t, s.RunMigrations(ctx, migFS))
	require.NoError(t, s.Ping(ctx))
}

func TestSQLiteWhitelistRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newSQLiteStore(t)

	score := 91
	require.NoError(t, s.UpsertWhitelist(ctx, model.WhitelistEntry{
		Player:     "Herobrine",
		Requester:  "tg:1",
		ApprovedBy: "interview",
		Source:     model.SourceInterview,
		Score:      &score,
	}))
	require.NoError(t, s.UpsertWhitelist(ctx, model.WhitelistEntry{
		Player:     "Notch_",
		Requester:  "tg:1",
		ApprovedBy: "admin:2",
		Source:     model.SourceAdmin,
	}))

	got, err := s.GetWhitelist(ctx, "Herobrine")
	require.NoError(t, err)
	require.NotNil(t, got.Score)
	assert.Equal(t, 91, *got.Score)
	assert.Equal(t, model.SourceInterview, got.Source)

	list, err := s.ListWhitelist(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "Herobrine", list[0].Player) // ordered by player

	n, err := s.CountWhitelistByRequester(ctx, "tg:1", false)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	n, err = s.CountWhitelistByRequester(ctx, "tg:1", true)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	total, err := s.CountWhitelist(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, total)

	require.NoError(t, s.DeleteWhitelist(ctx, "Notch_"))
	assert.ErrorIs(t, s.DeleteWhitelist(ctx, "Notch_"), storage.ErrNotFound)
	_, err = s.GetWhitelist(ctx, "Notch_")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestSQLiteCooldownRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newSQLiteStore(t)

	expires := time.Now().UTC().Add(30 * time.Minute).Truncate(time.Microsecond)
	require.NoError(t, s.UpsertCooldown(ctx, model.CooldownEntry{
		Requester: "tg:5",
		Player:    "zed_k",
		Reason:    model.ReasonTimeout,
		ExpiresAt: expires,
	}))

	list, err := s.ListCooldowns(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, model.ReasonTimeout, list[0].Reason)
	// Timestamps survive the round trip exactly.
	assert.True(t, list[0].ExpiresAt.Equal(expires))

	require.NoError(t, s.DeleteCooldown(ctx, "tg:5", "zed_k"))
	require.NoError(t, s.DeleteCooldown(ctx, "tg:5", "zed_k"))

	list, err = s.ListCooldowns(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestSQLiteAuditChain(t *testing.T) {
	ctx := context.Background()
	s := newSQLiteStore(t)

	timedOut := 2
	r1, err := s.AppendAudit(ctx, model.AuditRecord{
		Requester: "tg:9",
		Channel:   "chan:1",
		Player:    "first_rec",
		Transcript: []model.QA{
			{Question: "How long have you played?", Answer: "three years"},
			{Question: "Griefing?", Answer: model.AnswerSentinel},
		},
		Score:      0,
		Passed:     false,
		Reason:     model.ReasonTimeout,
		TimedOutAt: &timedOut,
		StartedAt:  time.Now().UTC().Add(-3 * time.Minute),
		EndedAt:    time.Now().UTC(),
	})
	require.NoError(t, err)
	assert.Equal(t, integrity.GenesisHash, r1.PrevHash)

	r2, err := s.AppendAudit(ctx, model.AuditRecord{
		Requester:  "tg:9",
		Channel:    "chan:1",
		Player:     "second_rec",
		Transcript: []model.QA{{Question: "q", Answer: "a"}},
		Score:      88,
		Passed:     true,
		Reason:     model.ReasonCompleted,
		StartedAt:  time.Now().UTC().Add(-2 * time.Minute),
		EndedAt:    time.Now().UTC(),
	})
	require.NoError(t, err)
	assert.Equal(t, r1.ContentHash, r2.PrevHash)

	all, err := s.ListAudit(ctx, model.AuditFilter{})
	require.NoError(t, err)
	require.Len(t, all, 2)

	// Round-tripped records must re-verify, including the *int and time fields.
	require.NotNil(t, all[0].TimedOutAt)
	assert.Equal(t, 2, *all[0].TimedOutAt)
	ok, bad := integrity.VerifyChain(all)
	assert.True(t, ok, "chain broken at index %d", bad)

	n, err := s.CountAudit(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	passed := true
	onlyPassed, err := s.ListAudit(ctx, model.AuditFilter{Passed: &passed})
	require.NoError(t, err)
	require.Len(t, onlyPassed, 1)
	assert.Equal(t, "second_rec", onlyPassed[0].Player)

	offset, err := s.ListAudit(ctx, model.AuditFilter{Offset: 1})
	require.NoError(t, err)
	require.Len(t, offset, 1)
	assert.Equal(t, "second_rec", offset[0].Player)
}

func TestSQLiteAPIKeyLifecycle(t *testing.T) {
	ctx := context.Background()
	s := newSQLiteStore(t)

	key := model.APIKey{
		ID:      uuid.New(),
		Prefix:  "deadbeef",
		KeyHash: "h",
		Name:    "ops",
		Role:    model.RoleAdmin,
	}
	require.NoError(t, s.InsertAPIKey(ctx, key))

	active, err := s.GetActiveAPIKeysByPrefix(ctx, "deadbeef")
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, model.RoleAdmin, active[0].Role)

	require.NoError(t, s.TouchAPIKey(ctx, key.ID))
	list, err := s.ListAPIKeys(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.NotNil(t, list[0].LastUsedAt)

	n, err := s.CountAPIKeys(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.NoError(t, s.RevokeAPIKey(ctx, key.ID))
	assert.ErrorIs(t, s.RevokeAPIKey(ctx, key.ID), storage.ErrNotFound)

	n, err = s.CountAPIKeys(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}
