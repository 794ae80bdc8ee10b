package server

import (
	"errors"
	"net/http"

	"github.com/ashita-ai/monban/internal/engine"
	"github.com/ashita-ai/monban/internal/model"
)

// HandleListInterviews handles GET /v1/interviews (reader+). Snapshots of
// every live session; questions of live interviews are never included.
func (h *Handlers) HandleListInterviews(w http.ResponseWriter, r *http.Request) {
	interviews := h.engine.Snapshot()
	if interviews == nil {
		interviews = []model.InterviewSnapshot{}
	}

	writeJSON(w, r, http.StatusOK, map[string]any{
		"interviews": interviews,
		"total":      len(interviews),
	})
}

// HandleCancelInterview handles DELETE /v1/interviews/{requester}/{channel}
// (admin-only). Cancels without penalty: no cooldown, audit reason
// "cancelled".
func (h *Handlers) HandleCancelInterview(w http.ResponseWriter, r *http.Request) {
	requester := r.PathValue("requester")
	channel := r.PathValue("channel")
	if requester == "" || channel == "" {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput,
			"requester and channel are required")
		return
	}

	err := h.engine.Cancel(r.Context(), requester, channel)
	switch {
	case err == nil:
	case errors.Is(err, engine.ErrNoInterview):
		writeError(w, r, http.StatusNotFound, model.ErrCodeNotFound,
			"no active interview for that requester and channel")
		return
	default:
		h.writeInternalError(w, r, "failed to cancel interview", err)
		return
	}

	h.logger.Info("interview cancelled via ops api",
		"requester", requester, "channel", channel, "cancelled_by", actorName(r))

	w.WriteHeader(http.StatusNoContent)
}
