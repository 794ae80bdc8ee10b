package engine

import (
	"sync"
	"time"

	"github.com/ashita-ai/monban/internal/model"
)

type cooldownKey struct {
	Requester string
	Player    string
}

// cooldownLedger is the in-memory view of retry lockouts, consulted on every
// Begin without touching storage. The engine hydrates it at startup and
// writes every mutation through to the store.
type cooldownLedger struct {
	mu      sync.Mutex
	entries map[cooldownKey]model.CooldownEntry
}

func newCooldownLedger() *cooldownLedger {
	return &cooldownLedger{entries: make(map[cooldownKey]model.CooldownEntry)}
}

// Hydrate loads persisted entries, dropping any that expired while the
// service was down.
func (c *cooldownLedger) Hydrate(entries []model.CooldownEntry, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range entries {
		if !e.Active(now) {
			continue
		}
		c.entries[cooldownKey{Requester: e.Requester, Player: e.Player}] = e
	}
}

// Remaining returns the time left on an active cooldown for (requester,
// player), or zero if none is in force. Expired entries are dropped lazily.
func (c *cooldownLedger) Remaining(requester, player string, now time.Time) time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := cooldownKey{Requester: requester, Player: player}
	e, ok := c.entries[key]
	if !ok {
		return 0
	}
	if !e.Active(now) {
		delete(c.entries, key)
		return 0
	}
	return e.Remaining(now)
}

func (c *cooldownLedger) Set(e model.CooldownEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[cooldownKey{Requester: e.Requester, Player: e.Player}] = e
}

// Clear removes a cooldown. Reports whether an entry existed.
func (c *cooldownLedger) Clear(requester, player string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := cooldownKey{Requester: requester, Player: player}
	if _, ok := c.entries[key]; !ok {
		return false
	}
	delete(c.entries, key)
	return true
}

// Sweep removes expired entries and returns them so the engine can delete
// the persisted rows.
func (c *cooldownLedger) Sweep(now time.Time) []model.CooldownEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	var expired []model.CooldownEntry
	for k, e := range c.entries {
		if !e.Active(now) {
			expired = append(expired, e)
			delete(c.entries, k)
		}
	}
	return expired
}

// Active counts entries still in force at now.
func (c *cooldownLedger) Active(now time.Time) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, e := range c.entries {
		if e.Active(now) {
			n++
		}
	}
	return n
}

// List returns all active entries, for the ops API.
func (c *cooldownLedger) List(now time.Time) []model.CooldownEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]model.CooldownEntry, 0, len(c.entries))
	for _, e := range c.entries {
		if e.Active(now) {
			out = append(out, e)
		}
	}
	return out
}
