// Package ctxutil provides shared context key accessors.
//
// The ops API's auth middleware resolves the caller's API key and stores it
// here; handlers, role checks and the rate-limit key function read it back.
// Keeping the typed keys in one small package spares the server package
// from exporting context plumbing alongside its handlers.
package ctxutil

import (
	"context"

	"github.com/ashita-ai/monban/internal/model"
)

type contextKey string

const keyAPIKey contextKey = "api_key"

// WithAPIKey returns a new context carrying the authenticated API key.
func WithAPIKey(ctx context.Context, key model.APIKey) context.Context {
	return context.WithValue(ctx, keyAPIKey, key)
}

// APIKeyFromContext extracts the authenticated API key from the context.
// The second return is false for unauthenticated requests.
func APIKeyFromContext(ctx context.Context) (model.APIKey, bool) {
	v, ok := ctx.Value(keyAPIKey).(model.APIKey)
	return v, ok
}
