package admission

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/monban/internal/model"
	"github.com/ashita-ai/monban/internal/rcon"
	"github.com/ashita-ai/monban/internal/storage"
	"github.com/ashita-ai/monban/migrations"
)

// fakeExecutor answers commands from a script and records what ran.
type fakeExecutor struct {
	mu        sync.Mutex
	responses map[string]string
	errs      map[string]error
	commands  []string
	listDelay time.Duration
}

func newFakeExecutor() *fakeExecutor {
	return &fakeExecutor{
		responses: make(map[string]string),
		errs:      make(map[string]error),
	}
}

func (f *fakeExecutor) Execute(_ context.Context, command string) (string, error) {
	f.mu.Lock()
	f.commands = append(f.commands, command)
	err := f.errs[command]
	out := f.responses[command]
	delay := f.listDelay
	f.mu.Unlock()

	if delay > 0 && command == "whitelist list" {
		time.Sleep(delay)
	}
	if err != nil {
		return "", err
	}
	return out, nil
}

func (f *fakeExecutor) set(command, response string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses[command] = response
}

func (f *fakeExecutor) fail(command string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[command] = err
}

func (f *fakeExecutor) ran() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.commands...)
}

func (f *fakeExecutor) count(command string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.commands {
		if c == command {
			n++
		}
	}
	return n
}

func newTestStore(t *testing.T) storage.Store {
	t.Helper()
	ctx := context.Background()
	logger := slog.New(slog.DiscardHandler)

	store, err := storage.NewSQLite(ctx, filepath.Join(t.TempDir(), "admission.db"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close(context.Background()) })

	fsys, err := migrations.ForDriver("sqlite")
	require.NoError(t, err)
	require.NoError(t, store.RunMigrations(ctx, fsys))
	return store
}

func newTestApplier(t *testing.T, policy ConfirmPolicy) (*Applier, *fakeExecutor, storage.Store) {
	t.Helper()
	store := newTestStore(t)
	exec := newFakeExecutor()
	applier := New(store, exec, Config{Policy: policy}, slog.New(slog.DiscardHandler))
	return applier, exec, store
}

func testEntry(player string) model.WhitelistEntry {
	score := 24
	return model.WhitelistEntry{
		Player:    player,
		Requester: "qq:10001",
		Source:    model.SourceInterview,
		Score:     &score,
		CreatedAt: time.Now().UTC(),
	}
}

func TestApplyWritesLocallyAndRemotely(t *testing.T) {
	applier, exec, store := newTestApplier(t, ConfirmOnAmbiguous)
	exec.set("whitelist add Steve", "Added Steve to the whitelist")

	remoteOK := applier.Apply(context.Background(), testEntry("Steve"))
	assert.True(t, remoteOK)
	assert.Equal(t, []string{"whitelist add Steve"}, exec.ran())

	got, err := store.GetWhitelist(context.Background(), "Steve")
	require.NoError(t, err)
	assert.Equal(t, "qq:10001", got.Requester)
	assert.Equal(t, model.SourceInterview, got.Source)
}

func TestApplyLocalEntrySurvivesRemoteFailure(t *testing.T) {
	applier, exec, store := newTestApplier(t, ConfirmOnAmbiguous)
	exec.fail("whitelist add Steve", errors.New("connection refused"))

	remoteOK := applier.Apply(context.Background(), testEntry("Steve"))
	assert.False(t, remoteOK)

	_, err := store.GetWhitelist(context.Background(), "Steve")
	assert.NoError(t, err)
}

func TestApplyTreatsDisabledExecutorAsSkip(t *testing.T) {
	store := newTestStore(t)
	applier := New(store, rcon.Disabled{}, Config{}, slog.New(slog.DiscardHandler))

	remoteOK := applier.Apply(context.Background(), testEntry("Steve"))
	assert.False(t, remoteOK)

	_, err := store.GetWhitelist(context.Background(), "Steve")
	assert.NoError(t, err)
}

func TestApplyAlreadyWhitelistedCountsAsSuccess(t *testing.T) {
	applier, exec, _ := newTestApplier(t, ConfirmOnAmbiguous)
	exec.set("whitelist add Steve", "Player is already whitelisted")

	assert.True(t, applier.Apply(context.Background(), testEntry("Steve")))
	assert.Equal(t, []string{"whitelist add Steve"}, exec.ran())
}

func TestApplyAmbiguousOutputTriggersListConfirm(t *testing.T) {
	applier, exec, _ := newTestApplier(t, ConfirmOnAmbiguous)
	exec.set("whitelist add Steve", "")
	exec.set("whitelist list", "There are 2 whitelisted player(s): Steve, Alex")

	assert.True(t, applier.Apply(context.Background(), testEntry("Steve")))
	assert.Equal(t, []string{"whitelist add Steve", "whitelist list"}, exec.ran())
}

func TestApplyConfirmRejectsPrefixMatch(t *testing.T) {
	applier, exec, _ := newTestApplier(t, ConfirmOnAmbiguous)
	exec.set("whitelist add Steve", "")
	exec.set("whitelist list", "There are 1 whitelisted player(s): Steve123")

	assert.False(t, applier.Apply(context.Background(), testEntry("Steve")))
}

func TestApplyPolicyNeverSkipsConfirm(t *testing.T) {
	applier, exec, _ := newTestApplier(t, ConfirmNever)
	exec.set("whitelist add Steve", "some unrecognised proxy banner")

	assert.False(t, applier.Apply(context.Background(), testEntry("Steve")))
	assert.Equal(t, []string{"whitelist add Steve"}, exec.ran())
}

func TestApplyPolicyAlwaysConfirmsEvenCleanSuccess(t *testing.T) {
	applier, exec, _ := newTestApplier(t, ConfirmAlways)
	exec.set("whitelist add Steve", "Added Steve to the whitelist")
	exec.set("whitelist list", "There are no whitelisted players")

	assert.False(t, applier.Apply(context.Background(), testEntry("Steve")))
	assert.Equal(t, []string{"whitelist add Steve", "whitelist list"}, exec.ran())
}

func TestApplyUnknownPlayerIsFailure(t *testing.T) {
	applier, exec, _ := newTestApplier(t, ConfirmOnAmbiguous)
	exec.set("whitelist add Ghost", "That player does not exist")

	assert.False(t, applier.Apply(context.Background(), testEntry("Ghost")))
	assert.Equal(t, []string{"whitelist add Ghost"}, exec.ran())
}

func TestRevokeRemovesLocallyAndRemotely(t *testing.T) {
	applier, exec, store := newTestApplier(t, ConfirmOnAmbiguous)
	exec.set("whitelist add Steve", "Added Steve to the whitelist")
	exec.set("whitelist remove Steve", "Removed Steve from the whitelist")

	applier.Apply(context.Background(), testEntry("Steve"))

	remoteOK, err := applier.Revoke(context.Background(), "Steve")
	require.NoError(t, err)
	assert.True(t, remoteOK)

	_, err = store.GetWhitelist(context.Background(), "Steve")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestRevokeIsIdempotent(t *testing.T) {
	applier, exec, _ := newTestApplier(t, ConfirmOnAmbiguous)
	exec.set("whitelist remove Ghost", "Player is not whitelisted")

	remoteOK, err := applier.Revoke(context.Background(), "Ghost")
	require.NoError(t, err)
	assert.True(t, remoteOK)
}

func TestRevokeAmbiguousConfirmsAbsence(t *testing.T) {
	applier, exec, _ := newTestApplier(t, ConfirmOnAmbiguous)
	exec.set("whitelist remove Steve", "")
	exec.set("whitelist list", "There are 1 whitelisted player(s): Alex")

	remoteOK, err := applier.Revoke(context.Background(), "Steve")
	require.NoError(t, err)
	assert.True(t, remoteOK)
	assert.Equal(t, []string{"whitelist remove Steve", "whitelist list"}, exec.ran())
}

func TestRevokeDisabledExecutor(t *testing.T) {
	store := newTestStore(t)
	applier := New(store, rcon.Disabled{}, Config{}, slog.New(slog.DiscardHandler))
	require.NoError(t, store.UpsertWhitelist(context.Background(), testEntry("Steve")))

	remoteOK, err := applier.Revoke(context.Background(), "Steve")
	require.NoError(t, err)
	assert.False(t, remoteOK)

	_, err = store.GetWhitelist(context.Background(), "Steve")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestConcurrentConfirmsShareListCalls(t *testing.T) {
	applier, exec, _ := newTestApplier(t, ConfirmAlways)
	names := make([]string, 8)
	for i := range names {
		names[i] = fmt.Sprintf("player_%d", i)
		exec.set("whitelist add "+names[i], "Added "+names[i]+" to the whitelist")
	}
	exec.set("whitelist list",
		"There are 8 whitelisted player(s): "+
			"player_0, player_1, player_2, player_3, player_4, player_5, player_6, player_7")
	exec.listDelay = 20 * time.Millisecond

	var passed atomic.Int32
	var wg sync.WaitGroup
	for _, name := range names {
		wg.Add(1)
		go func(player string) {
			defer wg.Done()
			if applier.Apply(context.Background(), testEntry(player)) {
				passed.Add(1)
			}
		}(name)
	}
	wg.Wait()

	assert.Equal(t, int32(8), passed.Load())
	// The exact dedup factor is timing-dependent; the invariant is that
	// waiters share in-flight list calls rather than each issuing one.
	assert.GreaterOrEqual(t, exec.count("whitelist list"), 1)
	assert.LessOrEqual(t, exec.count("whitelist list"), 8)
}

func TestClassify(t *testing.T) {
	cases := []struct {
		out  string
		want outcome
	}{
		{"Added Steve to the whitelist", outcomeOK},
		{"Removed Steve from the whitelist", outcomeOK},
		{"Player is already whitelisted", outcomeOK},
		{"Player is not whitelisted", outcomeOK},
		{"That player does not exist", outcomeFailed},
		{"Unknown command. Type help for help.", outcomeFailed},
		{"", outcomeAmbiguous},
		{"Whitelist has 4 entries", outcomeAmbiguous},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, classify(tc.out), "output %q", tc.out)
	}
}

func TestContainsName(t *testing.T) {
	out := "There are 3 whitelisted player(s): Steve, alex_99, Notch"
	assert.True(t, containsName(out, "Steve"))
	assert.True(t, containsName(out, "steve"))
	assert.True(t, containsName(out, "alex_99"))
	assert.False(t, containsName(out, "Stev"))
	assert.False(t, containsName(out, "otch"))
	assert.False(t, containsName("", "Steve"))
}
