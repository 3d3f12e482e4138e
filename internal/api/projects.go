package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lalithlochan/quorum/internal/db"
	"github.com/lalithlochan/quorum/internal/metrics"
	"github.com/lalithlochan/quorum/internal/project"
	"github.com/lalithlochan/quorum/internal/redis"
)

const acceptScope = "accept"

type listResponse[T any] struct {
	Items []T `json:"items"`
	Count int `json:"count"`
}

func list[T any](items []T) listResponse[T] {
	return listResponse[T]{Items: items, Count: len(items)}
}

type acceptRequest struct {
	Notes *string `json:"notes"`
}

type acceptResponse struct {
	Acceptance   *db.Acceptance `json:"acceptance"`
	Project      *db.Project    `json:"project"`
	JustApproved bool           `json:"just_approved"`
}

type assignRequest struct {
	UserID uuid.UUID `json:"user_id"`
}

func (h *Handler) ListProjects(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := db.ProjectFilter{Status: db.ProjectStatus(q.Get("status"))}

	var ok bool
	if filter.CreatedByID, ok = queryID(w, r, "created_by"); !ok {
		return
	}
	if filter.AssignedToID, ok = queryID(w, r, "assigned_to"); !ok {
		return
	}

	if v := q.Get("include_deleted"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", "Invalid query", "include_deleted must be a boolean")
			return
		}
		filter.IncludeDeleted = b
	}

	h.writeProjects(w, r, filter)
}

// queryID parses an optional uuid query parameter
func queryID(w http.ResponseWriter, r *http.Request, key string) (*uuid.UUID, bool) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return nil, true
	}
	id, err := uuid.Parse(v)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_id", "Invalid ID", key+" must be a valid UUID")
		return nil, false
	}
	return &id, true
}

func (h *Handler) writeProjects(w http.ResponseWriter, r *http.Request, filter db.ProjectFilter) {
	projects, err := h.projects.ListProjects(r.Context(), filter)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list(projects))
}

func (h *Handler) AssignedToMe(w http.ResponseWriter, r *http.Request) {
	actorID, ok := h.actorOrReject(w, r)
	if !ok {
		return
	}
	h.writeProjects(w, r, db.ProjectFilter{AssignedToID: &actorID})
}

func (h *Handler) CreatedByMe(w http.ResponseWriter, r *http.Request) {
	actorID, ok := h.actorOrReject(w, r)
	if !ok {
		return
	}
	h.writeProjects(w, r, db.ProjectFilter{CreatedByID: &actorID})
}

func (h *Handler) PendingForMe(w http.ResponseWriter, r *http.Request) {
	actorID, ok := h.actorOrReject(w, r)
	if !ok {
		return
	}
	projects, err := h.projects.PendingForUser(r.Context(), actorID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list(projects))
}

func (h *Handler) ProjectStats(w http.ResponseWriter, r *http.Request) {
	counts, err := h.projects.Stats(r.Context())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, counts)
}

func (h *Handler) CreateProject(w http.ResponseWriter, r *http.Request) {
	actorID, ok := h.actorOrReject(w, r)
	if !ok {
		return
	}

	var in project.CreateInput
	if !decodeBody(w, r, &in) {
		return
	}

	p, err := h.projects.CreateProject(r.Context(), actorID, in)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (h *Handler) GetProject(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	p, err := h.projects.GetProject(r.Context(), id, false)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *Handler) UpdateProject(w http.ResponseWriter, r *http.Request) {
	actorID, ok := h.actorOrReject(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	var patch db.ProjectPatch
	if !decodeBody(w, r, &patch) {
		return
	}

	p, err := h.projects.UpdateProject(r.Context(), id, actorID, patch)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *Handler) DeleteProject(w http.ResponseWriter, r *http.Request) {
	actorID, ok := h.actorOrReject(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	p, err := h.projects.DeleteProject(r.Context(), id, actorID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *Handler) AssignProject(w http.ResponseWriter, r *http.Request) {
	actorID, ok := h.actorOrReject(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	var req assignRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.UserID == uuid.Nil {
		writeError(w, http.StatusBadRequest, "validation_error", "Invalid request", "user_id is required")
		return
	}

	p, err := h.projects.AssignProject(r.Context(), id, req.UserID, actorID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *Handler) ListAcceptances(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	acceptances, err := h.projects.ListAcceptances(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list(acceptances))
}

// AcceptProject records the actor's acceptance. With an Idempotency-Key a
// retried request replays the first response instead of failing as a
// duplicate acceptance.
func (h *Handler) AcceptProject(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	actorID, ok := h.actorOrReject(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	var req acceptRequest
	if !decodeBody(w, r, &req) {
		return
	}

	key := r.Header.Get("Idempotency-Key")
	reserved := false
	if key != "" && h.idempotency != nil {
		cached, err := h.idempotency.CheckOrReserve(ctx, acceptScope, actorID.String(), key)
		switch {
		case errors.Is(err, redis.ErrInFlight):
			writeError(w, http.StatusConflict, "request_in_progress", "Request in progress",
				"a request with this Idempotency-Key is still being processed")
			return
		case err != nil:
			// Redis trouble degrades to a plain accept
			h.logger.Warn("idempotency check failed", zap.Error(err))
		case cached != nil:
			metrics.RecordIdempotencyHit()
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("X-Idempotency-Replayed", "true")
			w.WriteHeader(cached.StatusCode)
			_, _ = w.Write(cached.Body)
			return
		default:
			reserved = true
		}
	}

	outcome, err := h.projects.AcceptProject(ctx, id, actorID, req.Notes)
	if err != nil {
		if reserved {
			if rerr := h.idempotency.Release(ctx, acceptScope, actorID.String(), key); rerr != nil {
				h.logger.Warn("failed to release idempotency key", zap.Error(rerr))
			}
		}
		h.writeServiceError(w, r, err)
		return
	}

	body, err := json.Marshal(acceptResponse{
		Acceptance:   outcome.Acceptance,
		Project:      outcome.Project,
		JustApproved: outcome.JustApproved,
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	if reserved {
		result := &redis.IdempotencyResult{
			ResourceID: outcome.Acceptance.ID.String(),
			StatusCode: http.StatusCreated,
			Body:       body,
		}
		if err := h.idempotency.Store(ctx, acceptScope, actorID.String(), key, result); err != nil {
			h.logger.Warn("failed to store idempotency result", zap.Error(err))
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_, _ = w.Write(body)
}
