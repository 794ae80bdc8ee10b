package ratelimit_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/monban/internal/model"
	"github.com/ashita-ai/monban/internal/ratelimit"
)

func keyFromHeader(r *http.Request) string {
	return r.Header.Get("X-Test-Key")
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func doRequest(t *testing.T, h http.Handler, key string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/v1/status", nil)
	if key != "" {
		req.Header.Set("X-Test-Key", key)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestMiddlewareDeniesOverBurst(t *testing.T) {
	limiter := ratelimit.NewMemoryLimiter(1, 2)
	defer limiter.Close()

	reqID := func(*http.Request) string { return "req-test-1" }
	h := ratelimit.Middleware(limiter, keyFromHeader, reqID)(okHandler())

	assert.Equal(t, http.StatusOK, doRequest(t, h, "key:mb_aa").Code)
	assert.Equal(t, http.StatusOK, doRequest(t, h, "key:mb_aa").Code)

	rec := doRequest(t, h, "key:mb_aa")
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body model.APIError
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, model.ErrCodeRateLimited, body.Error.Code)
	assert.Equal(t, "req-test-1", body.Meta.RequestID)
}

func TestMiddlewareKeysAreIndependent(t *testing.T) {
	limiter := ratelimit.NewMemoryLimiter(1, 1)
	defer limiter.Close()

	h := ratelimit.Middleware(limiter, keyFromHeader, nil)(okHandler())

	assert.Equal(t, http.StatusOK, doRequest(t, h, "key:mb_aa").Code)
	assert.Equal(t, http.StatusTooManyRequests, doRequest(t, h, "key:mb_aa").Code)
	assert.Equal(t, http.StatusOK, doRequest(t, h, "key:mb_bb").Code)
}

func TestMiddlewareSkipsEmptyKey(t *testing.T) {
	limiter := ratelimit.NewMemoryLimiter(1, 1)
	defer limiter.Close()

	h := ratelimit.Middleware(limiter, keyFromHeader, nil)(okHandler())

	// No key header means the keyFunc opts the request out of limiting.
	for i := 0; i < 5; i++ {
		assert.Equal(t, http.StatusOK, doRequest(t, h, "").Code)
	}
}

func TestMiddlewareNilLimiterPassesThrough(t *testing.T) {
	h := ratelimit.Middleware(nil, keyFromHeader, nil)(okHandler())
	for i := 0; i < 5; i++ {
		assert.Equal(t, http.StatusOK, doRequest(t, h, "key:mb_aa").Code)
	}
}

type failingLimiter struct{}

func (failingLimiter) Allow(context.Context, string) (bool, error) {
	return false, errors.New("limiter backend unreachable")
}

func (failingLimiter) Close() error { return nil }

func TestMiddlewareFailsOpenOnLimiterError(t *testing.T) {
	h := ratelimit.Middleware(failingLimiter{}, keyFromHeader, nil)(okHandler())
	assert.Equal(t, http.StatusOK, doRequest(t, h, "key:mb_aa").Code)
}

func TestIPKeyFunc(t *testing.T) {
	tests := []struct {
		remoteAddr string
		want       string
	}{
		{"192.0.2.7:54321", "192.0.2.7"},
		{"[2001:db8::1]:443", "[2001:db8::1]"},
		{"192.0.2.7", "192.0.2.7"},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = tt.remoteAddr
		assert.Equal(t, tt.want, ratelimit.IPKeyFunc(req), "remote addr %q", tt.remoteAddr)
	}
}
