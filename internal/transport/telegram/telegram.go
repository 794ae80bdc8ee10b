// Package telegram bridges a Telegram bot to the gateway over long polling.
// Telegram user IDs become requesters and chat IDs become channels, both in
// the "tg:<id>" form, so one Monban instance can tell its transports apart.
package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/ashita-ai/monban/internal/gateway"
)

const idPrefix = "tg:"

// pollTimeout is the long-poll window in seconds, after which Telegram
// returns an empty update batch and we re-poll.
const pollTimeout = 60

// Bot long-polls Telegram for messages, routes them through the gateway,
// and implements the engine's Deliverer for asynchronous sends.
type Bot struct {
	api     *tgbotapi.BotAPI
	gateway *gateway.Gateway
	logger  *slog.Logger
}

// New authenticates the bot token. The HTTP client carries its own timeout
// so a hung Telegram API call cannot wedge a delivery goroutine; it must
// exceed the long-poll window or GetUpdatesChan would time out every cycle.
func New(token string, gw *gateway.Gateway, logger *slog.Logger) (*Bot, error) {
	if logger == nil {
		logger = slog.Default()
	}
	client := &http.Client{Timeout: (pollTimeout + 10) * time.Second}
	api, err := tgbotapi.NewBotAPIWithClient(token, tgbotapi.APIEndpoint, client)
	if err != nil {
		return nil, fmt.Errorf("telegram: authenticate bot: %w", err)
	}
	logger.Info("telegram bot authorized", "username", api.Self.UserName)
	return &Bot{api: api, gateway: gw, logger: logger}, nil
}

// Run consumes updates until ctx is cancelled. Messages are handled
// serially; every gateway call returns quickly because slow work (question
// generation, scoring, RCON) is detached inside the engine.
func (b *Bot) Run(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = pollTimeout
	updates := b.api.GetUpdatesChan(u)

	b.logger.Info("telegram bot polling for updates")
	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return nil
		case update := <-updates:
			m := update.Message
			if m == nil || m.From == nil || m.Text == "" {
				continue
			}
			b.handleMessage(ctx, m)
		}
	}
}

func (b *Bot) handleMessage(ctx context.Context, m *tgbotapi.Message) {
	reply := b.gateway.Handle(ctx, gateway.Message{
		Requester: RequesterID(m.From.ID),
		Channel:   ChannelID(m.Chat.ID),
		Text:      m.Text,
	})
	if reply == "" {
		return
	}

	out := tgbotapi.NewMessage(m.Chat.ID, reply)
	out.ReplyToMessageID = m.MessageID
	if _, err := b.api.Send(out); err != nil {
		b.logger.Error("telegram: send reply failed", "chat", m.Chat.ID, "error", err)
	}
}

// Deliver implements the engine's asynchronous send path for channels this
// transport produced.
func (b *Bot) Deliver(ctx context.Context, channel, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	chatID, err := ParseChannel(channel)
	if err != nil {
		return err
	}
	if _, err := b.api.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		return fmt.Errorf("telegram: send to %s: %w", channel, err)
	}
	return nil
}

// RequesterID renders a Telegram user ID in the form the engine stores.
func RequesterID(userID int64) string {
	return idPrefix + strconv.FormatInt(userID, 10)
}

// ChannelID renders a chat ID. Group chat IDs are negative; the sign is
// part of the identifier.
func ChannelID(chatID int64) string {
	return idPrefix + strconv.FormatInt(chatID, 10)
}

// ParseChannel extracts the chat ID from a "tg:<id>" channel.
func ParseChannel(channel string) (int64, error) {
	raw, ok := strings.CutPrefix(channel, idPrefix)
	if !ok {
		return 0, fmt.Errorf("telegram: channel %q does not belong to this transport", channel)
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("telegram: channel %q: %w", channel, err)
	}
	return id, nil
}
