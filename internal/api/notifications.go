package api

import (
	"net/http"
)

const defaultCleanupDays = 90

func (h *Handler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	actorID, ok := h.actorOrReject(w, r)
	if !ok {
		return
	}

	// invalid paging values fall back to the inbox defaults
	limit, _ := queryInt(r, "limit", 0)
	offset, _ := queryInt(r, "offset", 0)

	page, err := h.inbox.GetUserNotifications(r.Context(), actorID, limit, offset)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (h *Handler) MarkRead(w http.ResponseWriter, r *http.Request) {
	actorID, ok := h.actorOrReject(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	if err := h.inbox.MarkAsRead(r.Context(), id, actorID); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	actorID, ok := h.actorOrReject(w, r)
	if !ok {
		return
	}

	n, err := h.inbox.MarkAllAsRead(r.Context(), actorID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"updated": n})
}

func (h *Handler) CleanupNotifications(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdmin(w, r) {
		return
	}

	days, err := queryInt(r, "days", defaultCleanupDays)
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_error", "Invalid request", "days must be an integer")
		return
	}

	n, err := h.inbox.CleanupOld(r.Context(), days)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"deleted": n})
}
