package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/ashita-ai/monban/internal/auth"
	"github.com/ashita-ai/monban/internal/model"
	"github.com/ashita-ai/monban/internal/storage"
)

// HandleCreateKey handles POST /v1/keys (admin-only). Mints a new API key
// and returns the raw key exactly once. After this response, only the
// prefix is available.
func (h *Handlers) HandleCreateKey(w http.ResponseWriter, r *http.Request) {
	var req model.CreateKeyRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}

	if err := model.ValidateKeyName(req.Name); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
		return
	}
	if !model.ValidKeyRole(req.Role) {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput,
			"role must be reader, agent or admin")
		return
	}

	rawKey, prefix, err := model.GenerateRawKey()
	if err != nil {
		h.writeInternalError(w, r, "failed to generate api key", err)
		return
	}

	hash, err := auth.HashAPIKey(rawKey)
	if err != nil {
		h.writeInternalError(w, r, "failed to hash api key", err)
		return
	}

	apiKey := model.APIKey{
		ID:        uuid.New(),
		Prefix:    prefix,
		KeyHash:   hash,
		Name:      req.Name,
		Role:      req.Role,
		CreatedAt: time.Now().UTC(),
	}
	if err := h.store.InsertAPIKey(r.Context(), apiKey); err != nil {
		h.writeInternalError(w, r, "failed to create api key", err)
		return
	}

	h.logger.Info("api key created",
		"name", apiKey.Name, "role", apiKey.Role, "prefix", prefix, "created_by", actorName(r))

	writeJSON(w, r, http.StatusCreated, model.APIKeyWithRawKey{
		APIKey: apiKey,
		RawKey: rawKey,
	})
}

// HandleListKeys handles GET /v1/keys (admin-only). Returns all keys,
// revoked ones included. Key hashes are never exposed.
func (h *Handlers) HandleListKeys(w http.ResponseWriter, r *http.Request) {
	keys, err := h.store.ListAPIKeys(r.Context())
	if err != nil {
		h.writeInternalError(w, r, "failed to list api keys", err)
		return
	}
	if keys == nil {
		keys = []model.APIKey{}
	}

	writeJSON(w, r, http.StatusOK, map[string]any{
		"keys":  keys,
		"total": len(keys),
	})
}

// HandleRevokeKey handles DELETE /v1/keys/{id} (admin-only). Revokes a key
// by setting revoked_at. The key immediately stops working.
func (h *Handlers) HandleRevokeKey(w http.ResponseWriter, r *http.Request) {
	keyID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "invalid key id")
		return
	}

	if err := h.store.RevokeAPIKey(r.Context(), keyID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, model.ErrCodeNotFound, "api key not found")
			return
		}
		h.writeInternalError(w, r, "failed to revoke api key", err)
		return
	}

	h.logger.Info("api key revoked", "key_id", keyID, "revoked_by", actorName(r))

	w.WriteHeader(http.StatusNoContent)
}
