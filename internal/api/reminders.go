package api

import (
	"context"
	"net/http"

	"go.uber.org/zap"
)

func (h *Handler) ReminderStats(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdmin(w, r) {
		return
	}
	stats, err := h.reminders.GetStats(r.Context())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *Handler) ReminderCandidates(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdmin(w, r) {
		return
	}
	candidates, err := h.reminders.ListProjectsNeedingReminder(r.Context())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list(candidates))
}

// TriggerReminders starts a pass and returns before it finishes
func (h *Handler) TriggerReminders(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdmin(w, r) {
		return
	}

	ctx := context.WithoutCancel(r.Context())
	h.background.Add(1)
	go func() {
		defer h.background.Done()
		defer func() {
			if rec := recover(); rec != nil {
				h.logger.Error("manual reminder pass panicked", zap.Any("panic", rec))
			}
		}()

		result, err := h.reminders.TriggerManually(ctx)
		if err != nil {
			h.logger.Error("manual reminder pass failed", zap.Error(err))
			return
		}
		h.logger.Info("manual reminder pass finished",
			zap.Int("selected", result.Selected),
			zap.Int("reminded", result.Reminded),
			zap.Int("failed", result.Failed),
		)
	}()

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "reminder pass started"})
}
