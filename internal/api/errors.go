package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/lalithlochan/quorum/internal/errs"
)

// ErrorResponse represents an error in problem+json format
type ErrorResponse struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, errType, title, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)

	_ = json.NewEncoder(w).Encode(ErrorResponse{
		Type:   errType,
		Title:  title,
		Status: status,
		Detail: detail,
	})
}

// writeServiceError maps the error taxonomy onto problem responses. A
// soft-deleted entity matches NotFound first and is reported as 404.
// Anything outside the taxonomy is a 500 without detail.
func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	detail := errs.Message(err)

	switch {
	case errors.Is(err, errs.ErrForbidden):
		writeError(w, http.StatusForbidden, "forbidden", "Forbidden", detail)
	case errors.Is(err, errs.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", "Resource not found", detail)
	case errors.Is(err, errs.ErrValidation):
		writeError(w, http.StatusBadRequest, "validation_error", "Invalid request", detail)
	case errors.Is(err, errs.ErrConflict):
		writeError(w, http.StatusConflict, "conflict", "Conflict", detail)
	default:
		h.logger.Error("request failed",
			zap.Error(err),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
		)
		writeError(w, http.StatusInternalServerError, "internal_error", "Internal server error", "")
	}
}
