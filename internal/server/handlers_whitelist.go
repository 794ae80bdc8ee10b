package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/ashita-ai/monban/internal/model"
	"github.com/ashita-ai/monban/internal/storage"
)

// HandleListWhitelist handles GET /v1/whitelist (reader+). Returns the full
// local mirror; the game server's copy may lag behind it after RCON outages.
func (h *Handlers) HandleListWhitelist(w http.ResponseWriter, r *http.Request) {
	entries, err := h.store.ListWhitelist(r.Context())
	if err != nil {
		h.writeInternalError(w, r, "failed to list whitelist", err)
		return
	}
	if entries == nil {
		entries = []model.WhitelistEntry{}
	}

	writeJSON(w, r, http.StatusOK, map[string]any{
		"entries": entries,
		"total":   len(entries),
	})
}

// HandleAddWhitelist handles POST /v1/whitelist (admin-only). Adds a player
// directly, bypassing the interview. The local mirror is written even when
// the remote add fails; remote_ok reports whether the game server confirmed.
func (h *Handlers) HandleAddWhitelist(w http.ResponseWriter, r *http.Request) {
	var req model.WhitelistAddRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}

	if err := model.ValidatePlayerName(req.Player); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
		return
	}

	// Attribute the entry to the caller unless the request names the person
	// it is being added for; the requester field feeds quota counting.
	requester := req.Requester
	if requester == "" {
		requester = actorName(r)
	}

	entry := model.WhitelistEntry{
		Player:     req.Player,
		Requester:  requester,
		ApprovedBy: actorName(r),
		Source:     model.SourceAdmin,
		CreatedAt:  time.Now().UTC(),
	}
	remoteOK := h.applier.Apply(r.Context(), entry)

	h.logger.Info("whitelist add via ops api",
		"player", entry.Player, "approved_by", entry.ApprovedBy, "remote_ok", remoteOK)

	writeJSON(w, r, http.StatusCreated, map[string]any{
		"entry":     entry,
		"remote_ok": remoteOK,
	})
}

// HandleRemoveWhitelist handles DELETE /v1/whitelist/{player} (admin-only).
func (h *Handlers) HandleRemoveWhitelist(w http.ResponseWriter, r *http.Request) {
	player := r.PathValue("player")
	if player == "" {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "player is required")
		return
	}

	if _, err := h.store.GetWhitelist(r.Context(), player); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, model.ErrCodeNotFound, "player not on the whitelist")
			return
		}
		h.writeInternalError(w, r, "failed to look up whitelist entry", err)
		return
	}

	remoteOK, err := h.applier.Revoke(r.Context(), player)
	if err != nil {
		h.writeInternalError(w, r, "failed to revoke whitelist entry", err)
		return
	}

	h.logger.Info("whitelist remove via ops api",
		"player", player, "removed_by", actorName(r), "remote_ok", remoteOK)

	writeJSON(w, r, http.StatusOK, map[string]any{
		"player":    player,
		"remote_ok": remoteOK,
	})
}
