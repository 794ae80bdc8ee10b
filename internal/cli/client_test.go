package cli

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/monban/internal/model"
)

func testClient(srv *httptest.Server) *apiClient {
	return &apiClient{baseURL: srv.URL, apiKey: "mb_test", hc: srv.Client()}
}

func TestClientUnwrapsEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer mb_test", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": model.StatusResponse{Status: "ok", WhitelistSize: 7},
			"meta": map[string]any{"request_id": "r1"},
		})
	}))
	defer srv.Close()

	var st model.StatusResponse
	require.NoError(t, testClient(srv).get(context.Background(), "/v1/status", &st))
	assert.Equal(t, "ok", st.Status)
	assert.Equal(t, 7, st.WhitelistSize)
}

func TestClientDecodesListEnvelopeRaw(t *testing.T) {
	total := 1
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(auditPage{
			Records: []model.AuditRecord{{Player: "Steve", Passed: true}},
			Total:   &total,
			Limit:   50,
		})
	}))
	defer srv.Close()

	var page auditPage
	require.NoError(t, testClient(srv).getList(context.Background(), "/v1/audit", &page))
	require.Len(t, page.Records, 1)
	assert.Equal(t, "Steve", page.Records[0].Player)
	require.NotNil(t, page.Total)
	assert.Equal(t, 1, *page.Total)
}

func TestClientMapsServerErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{"code": "NOT_FOUND", "message": "player not on the whitelist"},
		})
	}))
	defer srv.Close()

	err := testClient(srv).del(context.Background(), "/v1/whitelist/Ghost", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "player not on the whitelist")
	assert.Contains(t, err.Error(), "NOT_FOUND")
}

func TestClientFallsBackOnBareErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gateway exploded", http.StatusBadGateway)
	}))
	defer srv.Close()

	err := testClient(srv).get(context.Background(), "/v1/status", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Bad Gateway")
}

func TestClientAcceptsNoContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	require.NoError(t, testClient(srv).del(context.Background(), "/v1/cooldowns/a/b", nil))
}

func TestProbeClientOmitsAuthHeader(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": model.HealthResponse{Status: "ok"},
		})
	}))
	defer srv.Close()

	client := &apiClient{baseURL: srv.URL, hc: srv.Client()}
	var h model.HealthResponse
	require.NoError(t, client.get(context.Background(), "/health", &h))
	assert.Equal(t, "ok", h.Status)
}
