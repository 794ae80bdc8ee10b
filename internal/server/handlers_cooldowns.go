package server

import (
	"errors"
	"net/http"

	"github.com/ashita-ai/monban/internal/engine"
	"github.com/ashita-ai/monban/internal/model"
)

// HandleListCooldowns handles GET /v1/cooldowns (reader+). Lists cooldowns
// still in force from the engine's in-memory table.
func (h *Handlers) HandleListCooldowns(w http.ResponseWriter, r *http.Request) {
	cooldowns := h.engine.Cooldowns()
	if cooldowns == nil {
		cooldowns = []model.CooldownEntry{}
	}

	writeJSON(w, r, http.StatusOK, map[string]any{
		"cooldowns": cooldowns,
		"total":     len(cooldowns),
	})
}

// HandleClearCooldown handles DELETE /v1/cooldowns/{requester}/{player}
// (admin-only). The requester may apply again immediately.
func (h *Handlers) HandleClearCooldown(w http.ResponseWriter, r *http.Request) {
	requester := r.PathValue("requester")
	player := r.PathValue("player")
	if requester == "" || player == "" {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput,
			"requester and player are required")
		return
	}

	err := h.engine.ClearCooldown(r.Context(), requester, player)
	switch {
	case err == nil:
	case errors.Is(err, engine.ErrNoCooldown):
		writeError(w, r, http.StatusNotFound, model.ErrCodeNotFound,
			"no cooldown for that requester and player")
		return
	default:
		h.writeInternalError(w, r, "failed to clear cooldown", err)
		return
	}

	h.logger.Info("cooldown cleared via ops api",
		"requester", requester, "player", player, "cleared_by", actorName(r))

	w.WriteHeader(http.StatusNoContent)
}
