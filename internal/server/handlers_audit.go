package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/ashita-ai/monban/internal/ctxutil"
	"github.com/ashita-ai/monban/internal/integrity"
	"github.com/ashita-ai/monban/internal/model"
)

// HandleListAudit handles GET /v1/audit (reader+). Records come back in
// append order, the order the chain is verified in. Filters: requester,
// player, passed, limit, offset.
func (h *Handlers) HandleListAudit(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filter := model.AuditFilter{
		Requester: q.Get("requester"),
		Player:    q.Get("player"),
		Limit:     queryLimit(r, 50),
		Offset:    queryOffset(r),
	}
	if v := q.Get("passed"); v != "" {
		passed, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput,
				"passed must be true or false")
			return
		}
		filter.Passed = &passed
	}

	records, err := h.store.ListAudit(r.Context(), filter)
	if err != nil {
		h.writeInternalError(w, r, "failed to list audit records", err)
		return
	}
	if records == nil {
		records = []model.AuditRecord{}
	}

	list := model.ListResponse{
		Data:    records,
		HasMore: len(records) == filter.Limit,
		Limit:   filter.Limit,
		Offset:  filter.Offset,
	}

	// The cheap unfiltered count gives an exact total and HasMore; filtered
	// listings fall back to the page-full heuristic.
	if filter.Requester == "" && filter.Player == "" && filter.Passed == nil {
		total, err := h.store.CountAudit(r.Context())
		if err != nil {
			h.writeInternalError(w, r, "failed to count audit records", err)
			return
		}
		list.Total = &total
		list.HasMore = filter.Offset+len(records) < total
	}

	writeListJSON(w, r, list)
}

// HandleVerifyAudit handles GET /v1/audit/verify (reader+). Recomputes every
// content hash and walks the chain from genesis; any mutation, deletion or
// reorder of a stored record surfaces as bad_index.
func (h *Handlers) HandleVerifyAudit(w http.ResponseWriter, r *http.Request) {
	records, err := h.store.ListAudit(r.Context(), model.AuditFilter{})
	if err != nil {
		h.writeInternalError(w, r, "failed to load audit records", err)
		return
	}

	ok, badIndex := integrity.VerifyChain(records)
	resp := model.ChainVerifyResponse{OK: ok, Records: len(records)}
	if !ok {
		resp.BadIndex = &badIndex
		h.logger.Error("audit chain verification failed",
			"records", len(records), "bad_index", badIndex)
	}

	writeJSON(w, r, http.StatusOK, resp)
}

// HandleExportToken handles POST /v1/audit/export-token (admin-only). Issues
// a short-lived token that authenticates exactly one thing: downloading the
// audit export. The body is optional; without it the default TTL applies.
func (h *Handlers) HandleExportToken(w http.ResponseWriter, r *http.Request) {
	if h.tokens == nil {
		writeError(w, r, http.StatusServiceUnavailable, model.ErrCodeInternalError,
			"export tokens not configured")
		return
	}

	key, ok := ctxutil.APIKeyFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, model.ErrCodeUnauthorized, "no credentials in context")
		return
	}

	var req model.ExportTokenRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil && !errors.Is(err, io.EOF) {
		handleDecodeError(w, r, err)
		return
	}
	if req.TTLSeconds < 0 {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput,
			"ttl_seconds must not be negative")
		return
	}

	token, expiresAt, err := h.tokens.IssueExportToken(key, time.Duration(req.TTLSeconds)*time.Second)
	if err != nil {
		h.writeInternalError(w, r, "failed to issue export token", err)
		return
	}

	h.logger.Info("audit export token issued",
		"key_name", key.Name, "expires_at", expiresAt)

	writeJSON(w, r, http.StatusOK, model.ExportTokenResponse{
		Token:     token,
		ExpiresAt: expiresAt,
	})
}

// exportPageSize bounds how many audit records are loaded per page while
// streaming an export.
const exportPageSize = 500

// HandleExportAudit handles GET /v1/audit/export?token=... . The endpoint is
// reachable without an API key; the token from HandleExportToken is the
// credential, so plain download links work from browsers and curl. Streams
// the full audit log as NDJSON, one record per line, in chain order.
func (h *Handlers) HandleExportAudit(w http.ResponseWriter, r *http.Request) {
	if h.tokens == nil {
		writeError(w, r, http.StatusServiceUnavailable, model.ErrCodeInternalError,
			"export tokens not configured")
		return
	}

	tokenStr := r.URL.Query().Get("token")
	if tokenStr == "" {
		writeError(w, r, http.StatusUnauthorized, model.ErrCodeUnauthorized, "token is required")
		return
	}

	claims, err := h.tokens.ValidateExportToken(tokenStr)
	if err != nil {
		writeError(w, r, http.StatusUnauthorized, model.ErrCodeUnauthorized,
			"invalid or expired export token")
		return
	}

	filename := fmt.Sprintf("monban-audit-%s.ndjson", time.Now().UTC().Format("20060102-150405"))
	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	w.Header().Set("Cache-Control", "no-cache")

	encoder := json.NewEncoder(w)
	flusher, _ := w.(http.Flusher)

	exported := 0
	for offset := 0; ; offset += exportPageSize {
		records, err := h.store.ListAudit(r.Context(), model.AuditFilter{
			Limit:  exportPageSize,
			Offset: offset,
		})
		if err != nil {
			h.logger.Error("audit export failed", "error", err, "offset", offset)
			if offset == 0 {
				writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternalError, "export failed")
			}
			return
		}

		for _, rec := range records {
			if err := encoder.Encode(rec); err != nil {
				return // Client disconnected.
			}
			exported++
		}

		if flusher != nil {
			flusher.Flush()
		}

		if len(records) < exportPageSize {
			break // Last page.
		}
	}

	h.logger.Info("audit export served",
		"key_name", claims.KeyName, "records", exported)
}
