// Package gateway routes inbound chat commands to the interview engine and
// the admission applier and formats the replies. One gateway serves every
// transport; a transport only translates its native updates into Messages
// and sends back whatever non-empty reply Handle returns.
package gateway

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/ashita-ai/monban/internal/engine"
	"github.com/ashita-ai/monban/internal/model"
	"github.com/ashita-ai/monban/internal/storage"
)

// Engine is the slice of the interview engine the gateway drives.
type Engine interface {
	Begin(ctx context.Context, requester, channel, player string) error
	Answer(ctx context.Context, requester, channel, text string) error
	Status(requester, channel string) (model.InterviewSnapshot, error)
	Cancel(ctx context.Context, requester, channel string) error
	ClearCooldown(ctx context.Context, requester, player string) error
	Snapshot() []model.InterviewSnapshot
	Rules() engine.Config
}

// Applier is the slice of the admission applier the gateway drives.
type Applier interface {
	Apply(ctx context.Context, entry model.WhitelistEntry) (remoteOK bool)
	Revoke(ctx context.Context, player string) (remoteOK bool, err error)
}

// Message is one inbound chat line, already normalized by the transport.
// Requester and Channel use the transport's stable IDs ("tg:12345").
type Message struct {
	Requester string
	Channel   string
	Text      string
}

// Config holds the gateway's tunables.
type Config struct {
	// Prefix is the command keyword. Defaults to "wl".
	Prefix string
	// Admins lists requester IDs allowed to use admin verbs.
	Admins []string
}

// Gateway parses commands and talks to the engine. It holds no state of its
// own beyond configuration, so a single instance is shared by all
// transports.
type Gateway struct {
	engine  Engine
	applier Applier
	store   storage.Store
	prefix  string
	admins  map[string]struct{}
	logger  *slog.Logger
	now     func() time.Time
}

// New creates a gateway.
func New(eng Engine, applier Applier, store storage.Store, cfg Config, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "wl"
	}
	admins := make(map[string]struct{}, len(cfg.Admins))
	for _, a := range cfg.Admins {
		admins[a] = struct{}{}
	}
	return &Gateway{
		engine:  eng,
		applier: applier,
		store:   store,
		prefix:  prefix,
		admins:  admins,
		logger:  logger,
		now:     time.Now,
	}
}

// Handle routes one inbound message and returns the synchronous reply.
// An empty reply means the message was not addressed to us; transports
// must send nothing in that case. Questions and verdicts arrive
// asynchronously through the engine's Deliverer.
func (g *Gateway) Handle(ctx context.Context, msg Message) string {
	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return ""
	}
	token, rest := splitToken(text)
	if !strings.EqualFold(token, g.prefix) {
		return g.plainAnswer(ctx, msg, text)
	}

	verb, rest := splitToken(rest)
	switch strings.ToLower(verb) {
	case "apply":
		return g.apply(ctx, msg, rest)
	case "answer":
		return g.answer(ctx, msg, rest)
	case "status":
		return g.status(ctx, msg)
	case "admin":
		return g.admin(ctx, msg, rest)
	default:
		return replyUsage(g.prefix, g.isAdmin(msg.Requester))
	}
}

func (g *Gateway) isAdmin(requester string) bool {
	_, ok := g.admins[requester]
	return ok
}

// plainAnswer feeds free text into an active interview. Ordinary chat from
// people without an interview must stay silent, so ErrNoInterview is not an
// error here.
func (g *Gateway) plainAnswer(ctx context.Context, msg Message, text string) string {
	err := g.engine.Answer(ctx, msg.Requester, msg.Channel, text)
	switch {
	case err == nil:
		return ""
	case errors.Is(err, engine.ErrNoInterview):
		return ""
	case errors.Is(err, engine.ErrNotReady):
		return replyPreparing
	case errors.Is(err, engine.ErrScoringInProgress):
		return replyScoring
	case errors.Is(err, engine.ErrDeadlineExpired):
		// The engine already delivered the timeout verdict.
		return ""
	case errors.Is(err, engine.ErrShuttingDown):
		return ""
	default:
		g.logger.Error("gateway: answer failed",
			"requester", msg.Requester, "channel", msg.Channel, "error", err)
		return replyInternal
	}
}

func (g *Gateway) apply(ctx context.Context, msg Message, rest string) string {
	player, extra := splitToken(rest)
	if player == "" || extra != "" {
		return "Usage: " + g.prefix + " apply <player>"
	}

	err := g.engine.Begin(ctx, msg.Requester, msg.Channel, player)
	var cd *engine.CooldownActiveError
	switch {
	case err == nil:
		return applyAck(player, g.engine.Rules())
	case errors.Is(err, engine.ErrChannelNotAllowed):
		// Interviews are not offered here; stay silent.
		return ""
	case errors.Is(err, engine.ErrBadPlayerName):
		return replyBadName
	case errors.Is(err, engine.ErrInterviewActive):
		return replyInterviewActive
	case errors.Is(err, engine.ErrQuotaExceeded):
		return quotaReply(g.engine.Rules().MaxPerRequester)
	case errors.Is(err, engine.ErrAlreadyWhitelisted):
		return replyAlreadyWhitelisted
	case errors.As(err, &cd):
		return cooldownReply(cd.Remaining)
	case errors.Is(err, engine.ErrNameLocked):
		return replyNameLocked
	case errors.Is(err, engine.ErrShuttingDown):
		return replyRestarting
	default:
		g.logger.Error("gateway: begin failed",
			"requester", msg.Requester, "player", player, "error", err)
		return replyInternal
	}
}

func (g *Gateway) answer(ctx context.Context, msg Message, text string) string {
	if text == "" {
		return replyEmptyAnswer(g.prefix)
	}
	err := g.engine.Answer(ctx, msg.Requester, msg.Channel, text)
	switch {
	case err == nil:
		return ""
	case errors.Is(err, engine.ErrNoInterview):
		return replyNoInterview(g.prefix)
	case errors.Is(err, engine.ErrNotReady):
		return replyPreparing
	case errors.Is(err, engine.ErrScoringInProgress):
		return replyScoring
	case errors.Is(err, engine.ErrDeadlineExpired):
		return ""
	case errors.Is(err, engine.ErrEmptyAnswer):
		return replyEmptyAnswer(g.prefix)
	case errors.Is(err, engine.ErrShuttingDown):
		return replyRestarting
	default:
		g.logger.Error("gateway: answer failed",
			"requester", msg.Requester, "channel", msg.Channel, "error", err)
		return replyInternal
	}
}

func (g *Gateway) status(ctx context.Context, msg Message) string {
	snap, err := g.engine.Status(msg.Requester, msg.Channel)
	if err == nil {
		return statusReply(snap, g.now())
	}
	if !errors.Is(err, engine.ErrNoInterview) {
		g.logger.Error("gateway: status failed", "requester", msg.Requester, "error", err)
		return replyInternal
	}

	rules := g.engine.Rules()
	used, cerr := g.store.CountWhitelistByRequester(ctx, msg.Requester, rules.QuotaCountsAdmin)
	if cerr != nil {
		g.logger.Warn("gateway: quota count failed", "requester", msg.Requester, "error", cerr)
		return replyNoInterview(g.prefix)
	}
	return idleStatusReply(g.prefix, used, rules.MaxPerRequester)
}

func (g *Gateway) admin(ctx context.Context, msg Message, rest string) string {
	if !g.isAdmin(msg.Requester) {
		return replyNotAdmin
	}

	sub, rest := splitToken(rest)
	switch strings.ToLower(sub) {
	case "approve":
		return g.adminApprove(ctx, msg, rest)
	case "revoke":
		return g.adminRevoke(ctx, rest)
	case "reset":
		return g.adminReset(ctx, rest)
	case "cooldown":
		return g.adminCooldown(ctx, rest)
	case "list":
		return g.adminList(ctx)
	case "pending":
		return g.adminPending()
	case "sync":
		return g.adminSync(ctx)
	default:
		return replyAdminUsage(g.prefix)
	}
}

func (g *Gateway) adminApprove(ctx context.Context, msg Message, rest string) string {
	player, extra := splitToken(rest)
	if player == "" || extra != "" {
		return "Usage: " + g.prefix + " admin approve <player>"
	}
	if err := model.ValidatePlayerName(player); err != nil {
		return replyBadName
	}

	entry := model.WhitelistEntry{
		Player:     player,
		Requester:  msg.Requester,
		ApprovedBy: msg.Requester,
		Source:     model.SourceAdmin,
		CreatedAt:  g.now().UTC(),
	}
	remoteOK := g.applier.Apply(ctx, entry)
	return approveReply(player, remoteOK)
}

func (g *Gateway) adminRevoke(ctx context.Context, rest string) string {
	player, extra := splitToken(rest)
	if player == "" || extra != "" {
		return "Usage: " + g.prefix + " admin revoke <player>"
	}

	if _, err := g.store.GetWhitelist(ctx, player); errors.Is(err, storage.ErrNotFound) {
		return "That name is not on the allow list."
	}
	remoteOK, err := g.applier.Revoke(ctx, player)
	if err != nil {
		g.logger.Error("gateway: revoke failed", "player", player, "error", err)
		return replyInternal
	}
	return revokeReply(player, remoteOK)
}

func (g *Gateway) adminReset(ctx context.Context, rest string) string {
	requester, rest := splitToken(rest)
	channel, extra := splitToken(rest)
	if requester == "" || channel == "" || extra != "" {
		return "Usage: " + g.prefix + " admin reset <requester> <channel>"
	}

	err := g.engine.Cancel(ctx, requester, channel)
	switch {
	case err == nil:
		return "Interview reset. The requester may start over immediately."
	case errors.Is(err, engine.ErrNoInterview):
		return "No active interview for that requester and channel."
	default:
		g.logger.Error("gateway: reset failed", "requester", requester, "error", err)
		return replyInternal
	}
}

func (g *Gateway) adminCooldown(ctx context.Context, rest string) string {
	action, rest := splitToken(rest)
	requester, rest := splitToken(rest)
	player, extra := splitToken(rest)
	if !strings.EqualFold(action, "clear") || requester == "" || player == "" || extra != "" {
		return "Usage: " + g.prefix + " admin cooldown clear <requester> <player>"
	}

	err := g.engine.ClearCooldown(ctx, requester, player)
	switch {
	case err == nil:
		return "Cooldown cleared. The requester may apply again immediately."
	case errors.Is(err, engine.ErrNoCooldown):
		return "No cooldown found for that requester and player."
	default:
		g.logger.Error("gateway: cooldown clear failed",
			"requester", requester, "player", player, "error", err)
		return replyInternal
	}
}

func (g *Gateway) adminList(ctx context.Context) string {
	entries, err := g.store.ListWhitelist(ctx)
	if err != nil {
		g.logger.Error("gateway: whitelist list failed", "error", err)
		return replyInternal
	}
	return listReply(entries)
}

func (g *Gateway) adminPending() string {
	snaps := g.engine.Snapshot()
	sort.Slice(snaps, func(i, j int) bool {
		return snaps[i].CreatedAt.Before(snaps[j].CreatedAt)
	})
	return pendingReply(snaps, g.now())
}

// adminSync replays every local entry through the applier, repairing drift
// after a game server wipe or a long RCON outage.
func (g *Gateway) adminSync(ctx context.Context) string {
	entries, err := g.store.ListWhitelist(ctx)
	if err != nil {
		g.logger.Error("gateway: whitelist list failed", "error", err)
		return replyInternal
	}
	if len(entries) == 0 {
		return "The allow list is empty; nothing to sync."
	}

	var ok, failed int
	details := make([]string, 0, len(entries))
	for _, e := range entries {
		if g.applier.Apply(ctx, e) {
			ok++
			details = append(details, e.Player+": ok")
		} else {
			failed++
			details = append(details, e.Player+": failed")
		}
	}
	return syncReply(ok, failed, details)
}

// splitToken splits s into its first whitespace-delimited token and the
// remainder with surrounding whitespace removed. Answers keep their internal
// spacing because only the verb tokens are split off.
func splitToken(s string) (token, rest string) {
	s = strings.TrimSpace(s)
	i := strings.IndexFunc(s, unicode.IsSpace)
	if i < 0 {
		return s, ""
	}
	return s[:i], strings.TrimSpace(s[i:])
}
