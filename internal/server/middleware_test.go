package server

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/monban/internal/ctxutil"
	"github.com/ashita-ai/monban/internal/model"
)

func TestPublicPath(t *testing.T) {
	tests := []struct {
		method string
		path   string
		want   bool
	}{
		{http.MethodGet, "/health", true},
		{http.MethodGet, "/openapi.yaml", true},
		{http.MethodGet, "/v1/audit/export", true},
		{http.MethodPost, "/v1/audit/export", false},
		{http.MethodGet, "/v1/status", false},
		{http.MethodGet, "/v1/audit", false},
		{http.MethodGet, "/", false},
	}
	for _, tt := range tests {
		r := httptest.NewRequest(tt.method, tt.path, nil)
		assert.Equal(t, tt.want, publicPath(r), "%s %s", tt.method, tt.path)
	}
}

func TestQueryLimit(t *testing.T) {
	tests := []struct {
		query string
		want  int
	}{
		{"", 50},
		{"limit=10", 10},
		{"limit=0", 1},
		{"limit=-5", 1},
		{"limit=99999", maxQueryLimit},
		{"limit=abc", 50},
	}
	for _, tt := range tests {
		r := httptest.NewRequest(http.MethodGet, "/v1/audit?"+tt.query, nil)
		assert.Equal(t, tt.want, queryLimit(r, 50), "query %q", tt.query)
	}
}

func TestQueryOffset(t *testing.T) {
	tests := []struct {
		query string
		want  int
	}{
		{"", 0},
		{"offset=25", 25},
		{"offset=-1", 0},
		{"offset=junk", 0},
	}
	for _, tt := range tests {
		r := httptest.NewRequest(http.MethodGet, "/v1/audit?"+tt.query, nil)
		assert.Equal(t, tt.want, queryOffset(r), "query %q", tt.query)
	}
}

func TestRequireRole(t *testing.T) {
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	guarded := requireRole(model.RoleAgent)(inner)

	tests := []struct {
		name string
		role model.KeyRole
		want int
	}{
		{"no identity", "", http.StatusUnauthorized},
		{"below minimum", model.RoleReader, http.StatusForbidden},
		{"exact minimum", model.RoleAgent, http.StatusOK},
		{"above minimum", model.RoleAdmin, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/v1/status", nil)
			if tt.role != "" {
				ctx := ctxutil.WithAPIKey(r.Context(), model.APIKey{Name: "t", Role: tt.role})
				r = r.WithContext(ctx)
			}
			w := httptest.NewRecorder()
			guarded.ServeHTTP(w, r)
			assert.Equal(t, tt.want, w.Code)
		})
	}
}

func TestHandleDecodeError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"body too large", &http.MaxBytesError{Limit: 16}, http.StatusRequestEntityTooLarge},
		{"empty body", io.EOF, http.StatusBadRequest},
		{"malformed json", errors.New("invalid character 'x'"), http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/v1/whitelist", nil)
			w := httptest.NewRecorder()
			handleDecodeError(w, r, tt.err)
			assert.Equal(t, tt.wantStatus, w.Code)

			var env model.APIError
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
			assert.Equal(t, model.ErrCodeInvalidInput, env.Error.Code)
		})
	}
}

func TestDecodeJSONRejectsUnknownFields(t *testing.T) {
	body := strings.NewReader(`{"player":"Steve_1","surprise":true}`)
	r := httptest.NewRequest(http.MethodPost, "/v1/whitelist", body)
	w := httptest.NewRecorder()

	var req model.WhitelistAddRequest
	err := decodeJSON(w, r, &req, 1<<20)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "surprise")
}

func TestRecoveryMiddleware(t *testing.T) {
	panicking := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})
	h := recoveryMiddleware(slog.New(slog.DiscardHandler), panicking)

	r := httptest.NewRequest(http.MethodGet, "/v1/status", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	var env model.APIError
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	assert.Equal(t, model.ErrCodeInternalError, env.Error.Code)
}

func TestStatusWriterUnwrap(t *testing.T) {
	rec := httptest.NewRecorder()
	sw := &statusWriter{ResponseWriter: rec, statusCode: http.StatusOK}
	assert.Same(t, http.ResponseWriter(rec), sw.Unwrap())

	sw.WriteHeader(http.StatusTeapot)
	assert.Equal(t, http.StatusTeapot, sw.statusCode)
	assert.Equal(t, http.StatusTeapot, rec.Code)
}
