package model

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// KeyRole is the access level of an ops API key.
type KeyRole string

const (
	// RoleReader may read status, whitelist, cooldowns, and audit records.
	RoleReader KeyRole = "reader"
	// RoleAgent may additionally ingest bridge commands.
	RoleAgent KeyRole = "agent"
	// RoleAdmin may mutate the whitelist, cooldowns, interviews, and keys.
	RoleAdmin KeyRole = "admin"
)

// RoleRank orders roles for privilege comparisons. Unknown roles rank lowest.
func RoleRank(r KeyRole) int {
	switch r {
	case RoleAdmin:
		return 3
	case RoleAgent:
		return 2
	case RoleReader:
		return 1
	default:
		return 0
	}
}

// ValidKeyRole reports whether r is a recognized role.
func ValidKeyRole(r KeyRole) bool {
	return RoleRank(r) > 0
}

// APIKey authenticates a caller of the ops API. Multiple keys may exist,
// enabling rotation and per-bridge credentials. Only the argon2id hash is
// stored; the raw key is visible exactly once, at creation.
type APIKey struct {
	ID         uuid.UUID  `json:"id"`
	Prefix     string     `json:"prefix"`
	KeyHash    string     `json:"-"` // Never serialized.
	Name       string     `json:"name"`
	Role       KeyRole    `json:"role"`
	CreatedAt  time.Time  `json:"created_at"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
	RevokedAt  *time.Time `json:"revoked_at,omitempty"`
}

// APIKeyWithRawKey is returned only on creation, the only time the raw key
// is available. After this, only the prefix is visible.
type APIKeyWithRawKey struct {
	APIKey
	RawKey string `json:"raw_key"`
}

const (
	// keyPrefixLen is the number of random bytes used for the key prefix (8 hex chars).
	keyPrefixLen = 4
	// keySecretLen is the number of random bytes for the secret portion (32 hex chars).
	keySecretLen = 16
	// keyFormatPrefix is the static prefix for all Monban API keys.
	keyFormatPrefix = "mb_"
)

// GenerateRawKey produces a new raw API key in the format
// mb_<8-char-prefix>_<32-char-secret>. Returns the full raw key and the
// prefix separately.
func GenerateRawKey() (rawKey, prefix string, err error) {
	prefixBytes := make([]byte, keyPrefixLen)
	if _, err := rand.Read(prefixBytes); err != nil {
		return "", "", fmt.Errorf("model: generate key prefix: %w", err)
	}

	secretBytes := make([]byte, keySecretLen)
	if _, err := rand.Read(secretBytes); err != nil {
		return "", "", fmt.Errorf("model: generate key secret: %w", err)
	}

	prefix = hex.EncodeToString(prefixBytes)
	secret := hex.EncodeToString(secretBytes)
	rawKey = keyFormatPrefix + prefix + "_" + secret

	return rawKey, prefix, nil
}

// ParseRawKey extracts the prefix from a raw key string. Returns an error if
// the format is invalid.
func ParseRawKey(rawKey string) (prefix string, err error) {
	if !strings.HasPrefix(rawKey, keyFormatPrefix) {
		return "", fmt.Errorf("model: invalid key format: missing %s prefix", keyFormatPrefix)
	}

	rest := rawKey[len(keyFormatPrefix):]
	underIdx := strings.IndexByte(rest, '_')
	if underIdx < 1 || underIdx == len(rest)-1 {
		return "", fmt.Errorf("model: invalid key format: expected mb_<prefix>_<secret>")
	}

	return rest[:underIdx], nil
}

// ValidateKeyName checks that a key name is reasonable.
func ValidateKeyName(name string) error {
	if name == "" {
		return fmt.Errorf("name is required")
	}
	if len(name) > 255 {
		return fmt.Errorf("name must be at most 255 characters")
	}
	return nil
}
