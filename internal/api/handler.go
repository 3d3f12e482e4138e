// Package api exposes the project, notification and reminder operations
// over HTTP. Authentication and rate limiting are middleware; handlers read
// the actor from the request context.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lalithlochan/quorum/internal/circuitbreaker"
	"github.com/lalithlochan/quorum/internal/db"
	"github.com/lalithlochan/quorum/internal/notify"
	"github.com/lalithlochan/quorum/internal/project"
	"github.com/lalithlochan/quorum/internal/redis"
	"github.com/lalithlochan/quorum/internal/reminder"
)

// ProjectService is satisfied by *project.Service
type ProjectService interface {
	CreateProject(ctx context.Context, actorID uuid.UUID, in project.CreateInput) (*db.Project, error)
	AcceptProject(ctx context.Context, projectID, userID uuid.UUID, notes *string) (*db.AcceptOutcome, error)
	AssignProject(ctx context.Context, projectID, assigneeID, actorID uuid.UUID) (*db.Project, error)
	UpdateProject(ctx context.Context, projectID, actorID uuid.UUID, patch db.ProjectPatch) (*db.Project, error)
	DeleteProject(ctx context.Context, projectID, actorID uuid.UUID) (*db.Project, error)
	GetProject(ctx context.Context, id uuid.UUID, includeDeleted bool) (*db.Project, error)
	ListProjects(ctx context.Context, filter db.ProjectFilter) ([]*db.Project, error)
	ListAcceptances(ctx context.Context, projectID uuid.UUID) ([]*db.Acceptance, error)
	PendingForUser(ctx context.Context, userID uuid.UUID) ([]*db.Project, error)
	Stats(ctx context.Context) (*db.ProjectCounts, error)
}

// Inbox is satisfied by *notify.Inbox
type Inbox interface {
	GetUserNotifications(ctx context.Context, userID uuid.UUID, limit, offset int) (*notify.Page, error)
	MarkAsRead(ctx context.Context, notificationID, userID uuid.UUID) error
	MarkAllAsRead(ctx context.Context, userID uuid.UUID) (int64, error)
	CleanupOld(ctx context.Context, daysOld int) (int64, error)
}

// Reminders is satisfied by *reminder.Scheduler
type Reminders interface {
	GetStats(ctx context.Context) (*reminder.Stats, error)
	ListProjectsNeedingReminder(ctx context.Context) ([]reminder.Candidate, error)
	TriggerManually(ctx context.Context) (reminder.PassResult, error)
}

// Directory resolves the actor for admin-only routes
type Directory interface {
	GetUser(ctx context.Context, id uuid.UUID) (*db.User, error)
}

// Idempotency is satisfied by *redis.IdempotencyService
type Idempotency interface {
	CheckOrReserve(ctx context.Context, scope, actorID, key string) (*redis.IdempotencyResult, error)
	Store(ctx context.Context, scope, actorID, key string, result *redis.IdempotencyResult) error
	Release(ctx context.Context, scope, actorID, key string) error
}

type Services struct {
	Projects  ProjectService
	Inbox     Inbox
	Reminders Reminders
	Users     Directory
	// Breakers guard the channel adapters; admins can force one closed.
	Breakers []*circuitbreaker.Breaker
}

type Handler struct {
	logger      *zap.Logger
	projects    ProjectService
	inbox       Inbox
	reminders   Reminders
	users       Directory
	idempotency Idempotency
	breakers    map[string]*circuitbreaker.Breaker

	// background reminder passes started by the trigger endpoint
	background sync.WaitGroup
}

func NewHandler(svc Services, logger *zap.Logger) *Handler {
	breakers := make(map[string]*circuitbreaker.Breaker, len(svc.Breakers))
	for _, b := range svc.Breakers {
		breakers[b.Name()] = b
	}
	return &Handler{
		logger:    logger,
		projects:  svc.Projects,
		inbox:     svc.Inbox,
		reminders: svc.Reminders,
		users:     svc.Users,
		breakers:  breakers,
	}
}

// WithIdempotency enables Idempotency-Key handling on accept
func (h *Handler) WithIdempotency(idem Idempotency) *Handler {
	h.idempotency = idem
	return h
}

// Wait blocks until background reminder passes have finished
func (h *Handler) Wait() {
	h.background.Wait()
}

// Routes registers every authenticated route on r
func (h *Handler) Routes(r chi.Router) {
	r.Route("/projects", func(r chi.Router) {
		r.Get("/", h.ListProjects)
		r.Post("/", h.CreateProject)
		r.Get("/stats", h.ProjectStats)
		r.Get("/pending/me", h.PendingForMe)
		r.Get("/assigned/me", h.AssignedToMe)
		r.Get("/created/me", h.CreatedByMe)

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.GetProject)
			r.Patch("/", h.UpdateProject)
			r.Delete("/", h.DeleteProject)
			r.Post("/accept", h.AcceptProject)
			r.Post("/assign", h.AssignProject)
			r.Get("/acceptances", h.ListAcceptances)
		})
	})

	r.Route("/notifications", func(r chi.Router) {
		r.Get("/", h.ListNotifications)
		r.Patch("/read-all", h.MarkAllRead)
		r.Patch("/{id}/read", h.MarkRead)
		r.Delete("/cleanup", h.CleanupNotifications)
	})

	r.Route("/reminders", func(r chi.Router) {
		r.Get("/stats", h.ReminderStats)
		r.Get("/projects", h.ReminderCandidates)
		r.Post("/trigger", h.TriggerReminders)
	})

	r.Post("/breakers/{name}/reset", h.ResetBreaker)
}

func (h *Handler) actorOrReject(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, ok := ActorFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "Authentication required", "")
	}
	return id, ok
}

// requireAdmin resolves the actor and rejects anyone without admin capability
func (h *Handler) requireAdmin(w http.ResponseWriter, r *http.Request) bool {
	actorID, ok := h.actorOrReject(w, r)
	if !ok {
		return false
	}

	user, err := h.users.GetUser(r.Context(), actorID)
	if err != nil {
		h.logger.Debug("admin lookup failed", zap.Error(err), zap.String("actor_id", actorID.String()))
	}
	if !user.IsAdmin() {
		writeError(w, http.StatusForbidden, "forbidden", "Forbidden", "admin access required")
		return false
	}
	return true
}

func pathID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_id", "Invalid ID",
			name+" must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

// decodeBody decodes a JSON body; an empty body leaves v untouched
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid_request", "Invalid request body", err.Error())
		return false
	}
	return true
}

func queryInt(r *http.Request, key string, def int) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def, nil
	}
	return strconv.Atoi(v)
}
