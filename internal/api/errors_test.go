package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"

	"github.com/lalithlochan/quorum/internal/errs"
)

func TestWriteServiceError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantType   string
		wantDetail string
	}{
		{"validation", errs.Validation("title is required"), http.StatusBadRequest, "validation_error", "title is required"},
		{"not found", errs.NotFound("project not found"), http.StatusNotFound, "not_found", "project not found"},
		{"forbidden", errs.Forbidden("admin access required"), http.StatusForbidden, "forbidden", "admin access required"},
		{"conflict", errs.Conflict("already accepted"), http.StatusConflict, "conflict", "already accepted"},
		{"deleted reads as not found", errs.Deleted("project has been deleted"), http.StatusNotFound, "not_found", "project has been deleted"},
		{"wrapped", fmt.Errorf("accept: %w", errs.Conflict("already accepted")), http.StatusConflict, "conflict", "already accepted"},
		{"internal", errors.New("connection refused"), http.StatusInternalServerError, "internal_error", ""},
	}

	h := NewHandler(Services{}, zap.NewNop())

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.writeServiceError(rec, httptest.NewRequest("GET", "/x", nil), tt.err)

			if rec.Code != tt.wantStatus {
				t.Fatalf("expected %d, got %d", tt.wantStatus, rec.Code)
			}
			if ct := rec.Header().Get("Content-Type"); ct != "application/problem+json" {
				t.Errorf("content type = %q", ct)
			}

			var resp ErrorResponse
			if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if resp.Type != tt.wantType {
				t.Errorf("type = %q, want %q", resp.Type, tt.wantType)
			}
			if resp.Detail != tt.wantDetail {
				t.Errorf("detail = %q, want %q", resp.Detail, tt.wantDetail)
			}
			if resp.Status != tt.wantStatus {
				t.Errorf("status field = %d", resp.Status)
			}
		})
	}
}
