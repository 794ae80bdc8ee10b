// Package transport holds the chat bridges that feed commands into the
// gateway and carry the engine's asynchronous messages (questions,
// verdicts) back out.
package transport

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"unicode/utf8"
)

// Deliverer sends a message to a channel. It mirrors the engine's
// Deliverer so transports can be registered without importing the engine.
type Deliverer interface {
	Deliver(ctx context.Context, channel, text string) error
}

// Mux routes deliveries to transports by channel prefix. Channel IDs are
// namespaced by their transport ("tg:<chat>" for Telegram), so the longest
// registered prefix decides where a message goes; unmatched channels fall
// through to the fallback.
//
// The engine is constructed before the transports that consume its output,
// so Register runs after New. Registration must finish before the first
// interview starts.
type Mux struct {
	mu       sync.RWMutex
	routes   map[string]Deliverer
	fallback Deliverer
}

// NewMux creates a Mux that sends unmatched channels to fallback. A nil
// fallback drops them with a warning.
func NewMux(fallback Deliverer, logger *slog.Logger) *Mux {
	if fallback == nil {
		fallback = Drop{Logger: logger}
	}
	return &Mux{routes: make(map[string]Deliverer), fallback: fallback}
}

// Register routes channels beginning with prefix to d.
func (m *Mux) Register(prefix string, d Deliverer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.routes[prefix] = d
}

func (m *Mux) Deliver(ctx context.Context, channel, text string) error {
	m.mu.RLock()
	var best string
	var dest Deliverer
	for prefix, d := range m.routes {
		if strings.HasPrefix(channel, prefix) && len(prefix) > len(best) {
			best, dest = prefix, d
		}
	}
	m.mu.RUnlock()
	if dest == nil {
		dest = m.fallback
	}
	return dest.Deliver(ctx, channel, text)
}

// Drop is a Deliverer that logs and discards every message. It serves
// HTTP-ingest deployments with no webhook configured: replies there are
// returned synchronously and asynchronous sends have nowhere to go.
type Drop struct {
	Logger *slog.Logger
}

func (d Drop) Deliver(_ context.Context, channel, text string) error {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Warn("transport: dropping message, no deliverer configured",
		"channel", channel, "chars", utf8.RuneCountInString(text))
	return nil
}
