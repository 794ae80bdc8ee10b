// Package admission turns interview verdicts and operator decisions into
// allow-list state. The local store is written first, always: approval state
// must never depend on the game server being reachable. Remote writes are
// best-effort and only influence the reported outcome.
package admission

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/ashita-ai/monban/internal/model"
	"github.com/ashita-ai/monban/internal/rcon"
	"github.com/ashita-ai/monban/internal/storage"
)

// ConfirmPolicy controls when an apply double-checks the remote allow list
// with the list command.
type ConfirmPolicy string

const (
	// ConfirmNever trusts the add command's output classification.
	ConfirmNever ConfirmPolicy = "never"
	// ConfirmOnAmbiguous lists the remote allow list only when the add
	// output is neither a clear success nor a clean error.
	ConfirmOnAmbiguous ConfirmPolicy = "on-ambiguous"
	// ConfirmAlways lists the remote allow list after every attempt and
	// lets membership decide the outcome.
	ConfirmAlways ConfirmPolicy = "always"
)

// confirmTimeout bounds the follow-up list command. Confirmations run on
// their own context (see confirm).
const confirmTimeout = 10 * time.Second

// Config holds the applier's tunables.
type Config struct {
	Policy   ConfirmPolicy
	Commands rcon.Commands
}

// Applier pushes approved names to the local store and the game server.
type Applier struct {
	store    storage.Store
	executor rcon.Executor
	cmds     rcon.Commands
	policy   ConfirmPolicy
	logger   *slog.Logger

	// listGroup deduplicates concurrent membership confirmations; a burst
	// of passing interviews issues one list command, not one per verdict.
	listGroup singleflight.Group
}

// New creates an applier. An empty policy defaults to ConfirmOnAmbiguous,
// which matches how much the add command's output can actually be trusted
// across server implementations.
func New(store storage.Store, executor rcon.Executor, cfg Config, logger *slog.Logger) *Applier {
	if logger == nil {
		logger = slog.Default()
	}
	policy := cfg.Policy
	if policy == "" {
		policy = ConfirmOnAmbiguous
	}
	return &Applier{
		store:    store,
		executor: executor,
		cmds:     cfg.Commands.Normalize(),
		policy:   policy,
		logger:   logger,
	}
}

// Apply records the entry locally, then attempts one remote add. It never
// returns an error: callers only need to know whether the game server now
// has the name, and a failed local write is an operational problem that
// must not turn an earned approval into a rejection.
func (a *Applier) Apply(ctx context.Context, entry model.WhitelistEntry) (remoteOK bool) {
	if err := a.store.UpsertWhitelist(ctx, entry); err != nil {
		a.logger.Error("admission: local whitelist write failed",
			"player", entry.Player, "requester", entry.Requester, "error", err)
	}

	out, err := a.executor.Execute(ctx, a.cmds.AddPlayer(entry.Player))
	switch {
	case errors.Is(err, rcon.ErrDisabled):
		a.logger.Debug("admission: remote console disabled, add skipped", "player", entry.Player)
		return false
	case err != nil:
		a.logger.Warn("admission: remote add failed", "player", entry.Player, "error", err)
		if a.policy == ConfirmAlways {
			return a.confirmMember(entry.Player)
		}
		return false
	}

	verdict := classify(out)
	a.logger.Info("admission: remote add executed",
		"player", entry.Player, "output", out, "verdict", verdict)

	switch {
	case a.policy == ConfirmAlways:
		return a.confirmMember(entry.Player)
	case a.policy == ConfirmOnAmbiguous && verdict == outcomeAmbiguous:
		return a.confirmMember(entry.Player)
	default:
		return verdict == outcomeOK
	}
}

// Revoke removes the entry locally and best-effort from the game server.
// A missing local entry is not an error; revoke is idempotent. The returned
// flag reports whether the game server is known to no longer list the name.
func (a *Applier) Revoke(ctx context.Context, player string) (remoteOK bool, err error) {
	if err := a.store.DeleteWhitelist(ctx, player); err != nil && !errors.Is(err, storage.ErrNotFound) {
		return false, fmt.Errorf("admission: delete %s: %w", player, err)
	}

	out, err := a.executor.Execute(ctx, a.cmds.RemovePlayer(player))
	switch {
	case errors.Is(err, rcon.ErrDisabled):
		a.logger.Debug("admission: remote console disabled, remove skipped", "player", player)
		return false, nil
	case err != nil:
		a.logger.Warn("admission: remote remove failed", "player", player, "error", err)
		if a.policy == ConfirmAlways {
			return a.confirmAbsent(player), nil
		}
		return false, nil
	}

	verdict := classify(out)
	a.logger.Info("admission: remote remove executed",
		"player", player, "output", out, "verdict", verdict)

	switch {
	case a.policy == ConfirmAlways:
		return a.confirmAbsent(player), nil
	case a.policy == ConfirmOnAmbiguous && verdict == outcomeAmbiguous:
		return a.confirmAbsent(player), nil
	default:
		return verdict == outcomeOK, nil
	}
}

func (a *Applier) confirmMember(player string) bool {
	out, ok := a.listRemote()
	if !ok {
		a.logger.Warn("admission: membership check unavailable", "player", player)
		return false
	}
	member := containsName(out, player)
	a.logger.Info("admission: membership confirmed", "player", player, "member", member)
	return member
}

func (a *Applier) confirmAbsent(player string) bool {
	out, ok := a.listRemote()
	if !ok {
		a.logger.Warn("admission: absence check unavailable", "player", player)
		return false
	}
	absent := !containsName(out, player)
	a.logger.Info("admission: absence confirmed", "player", player, "absent", absent)
	return absent
}

// listRemote runs the list command once for all concurrent confirmations.
// The closure uses its own context because singleflight reuses the first
// caller's context; if that caller cancelled, every waiter would see a
// spurious failure.
func (a *Applier) listRemote() (string, bool) {
	out, err, _ := a.listGroup.Do("list", func() (any, error) {
		ctx, cancel := context.WithTimeout(context.Background(), confirmTimeout)
		defer cancel()
		return a.executor.Execute(ctx, a.cmds.ListPlayers())
	})
	if err != nil {
		a.logger.Warn("admission: list command failed", "error", err)
		return "", false
	}
	return out.(string), true
}

type outcome int

const (
	outcomeOK outcome = iota
	outcomeFailed
	outcomeAmbiguous
)

func (o outcome) String() string {
	switch o {
	case outcomeOK:
		return "ok"
	case outcomeFailed:
		return "failed"
	default:
		return "ambiguous"
	}
}

// classify sorts a console reply into success, failure or ambiguous.
// Vanilla answers "Added X to the whitelist" / "Player is already
// whitelisted" for add and "Removed X from the whitelist" / "Player is not
// whitelisted" for remove; the already/not variants still leave the list in
// the desired state, so they count as success. Replies naming a missing
// player or an unknown command are real failures. Anything else, including
// the empty reply some proxies produce for accepted commands, is ambiguous.
func classify(out string) outcome {
	s := strings.ToLower(strings.TrimSpace(out))
	switch {
	case s == "":
		return outcomeAmbiguous
	case strings.Contains(s, "added"),
		strings.Contains(s, "removed"),
		strings.Contains(s, "already whitelisted"),
		strings.Contains(s, "already on the whitelist"),
		strings.Contains(s, "not whitelisted"):
		return outcomeOK
	case strings.Contains(s, "does not exist"),
		strings.Contains(s, "not found"),
		strings.Contains(s, "unknown"):
		return outcomeFailed
	default:
		return outcomeAmbiguous
	}
}

// containsName reports whether the list output names the player. Matching
// is token-wise and case-insensitive so "Steve" never matches "Steve123".
func containsName(out, player string) bool {
	fields := strings.FieldsFunc(out, func(r rune) bool {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			return false
		}
		return true
	})
	for _, f := range fields {
		if strings.EqualFold(f, player) {
			return true
		}
	}
	return false
}
