package auth

import (
	"crypto/sha256"
	"sync"
	"time"

	"github.com/ashita-ai/monban/internal/model"
)

// KeyCache is a short-TTL in-memory cache for verified API keys. It lets
// repeat requests from the same caller skip the per-request argon2id check,
// which is deliberately slow.
//
// Entries are keyed by the SHA-256 of the raw bearer key; raw keys are never
// stored. A revoked key keeps authenticating until its entry expires, so the
// TTL must stay short.
type KeyCache struct {
	mu      sync.RWMutex
	entries map[[sha256.Size]byte]cachedKey
	ttl     time.Duration
	done    chan struct{}
}

type cachedKey struct {
	key       model.APIKey
	expiresAt time.Time
}

// NewKeyCache creates a new cache with the given TTL.
// Call Close to stop the background eviction goroutine.
func NewKeyCache(ttl time.Duration) *KeyCache {
	c := &KeyCache{
		entries: make(map[[sha256.Size]byte]cachedKey),
		ttl:     ttl,
		done:    make(chan struct{}),
	}
	go c.evictLoop()
	return c
}

// Get returns the verified key for rawKey and true if a valid entry exists.
// Returns a zero key and false on miss or expiry.
func (c *KeyCache) Get(rawKey string) (model.APIKey, bool) {
	id := sha256.Sum256([]byte(rawKey))

	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[id]
	if !ok || time.Now().After(entry.expiresAt) {
		return model.APIKey{}, false
	}
	return entry.key, true
}

// Set records that rawKey verified against key, with the configured TTL.
func (c *KeyCache) Set(rawKey string, key model.APIKey) {
	id := sha256.Sum256([]byte(rawKey))

	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[id] = cachedKey{
		key:       key,
		expiresAt: time.Now().Add(c.ttl),
	}
}

// Close stops the background eviction goroutine.
func (c *KeyCache) Close() {
	close(c.done)
}

// evictLoop removes expired entries every minute.
func (c *KeyCache) evictLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.evictExpired()
		}
	}
}

func (c *KeyCache) evictExpired() {
	now := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()

	for k, v := range c.entries {
		if now.After(v.expiresAt) {
			delete(c.entries, k)
		}
	}
}
