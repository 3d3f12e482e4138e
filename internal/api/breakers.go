package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// ResetBreaker forces a channel breaker closed after an operator has fixed
// the provider, instead of waiting out the recovery timeout
func (h *Handler) ResetBreaker(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdmin(w, r) {
		return
	}

	name := chi.URLParam(r, "name")
	b, ok := h.breakers[name]
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", "Resource not found", "unknown breaker "+name)
		return
	}

	before := b.String()
	b.Reset()

	actorID, _ := ActorFrom(r.Context())
	h.logger.Info("circuit breaker reset",
		zap.String("before", before),
		zap.String("actor_id", actorID.String()),
	)
	writeJSON(w, http.StatusOK, b.Stats())
}
