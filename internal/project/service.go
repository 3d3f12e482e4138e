// Package project owns the approval lifecycle of a project:
// PENDING -> APPROVED -> ASSIGNED, with a soft DELETE from any live state.
// Mutations publish notify events only after the store has committed them.
package project

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lalithlochan/quorum/internal/db"
	"github.com/lalithlochan/quorum/internal/errs"
	"github.com/lalithlochan/quorum/internal/metrics"
	"github.com/lalithlochan/quorum/internal/notify"
)

// Store is the persistence the state machine needs. AcceptProject must run
// the PENDING check, insert, increment and threshold transition atomically.
type Store interface {
	CreateProject(ctx context.Context, p *db.Project) error
	GetProject(ctx context.Context, id uuid.UUID) (*db.Project, error)
	ListProjects(ctx context.Context, filter db.ProjectFilter) ([]*db.Project, error)
	AcceptProject(ctx context.Context, projectID, userID uuid.UUID, notes *string) (*db.AcceptOutcome, error)
	UpdateProject(ctx context.Context, id uuid.UUID, patch db.ProjectPatch) (*db.Project, error)
	AssignProject(ctx context.Context, id, assigneeID uuid.UUID) (*db.Project, error)
	SoftDeleteProject(ctx context.Context, id uuid.UUID, at time.Time) (*db.Project, error)
	ListAcceptances(ctx context.Context, projectID uuid.UUID) ([]*db.Acceptance, error)
	ListAcceptanceUserIDs(ctx context.Context, projectID uuid.UUID) ([]uuid.UUID, error)
	PendingProjectsForUser(ctx context.Context, userID uuid.UUID) ([]*db.Project, error)
	CountProjects(ctx context.Context) (*db.ProjectCounts, error)
}

// Directory resolves actors
type Directory interface {
	GetUser(ctx context.Context, id uuid.UUID) (*db.User, error)
}

// Service is the approval state machine
type Service struct {
	store     Store
	directory Directory
	events    notify.Publisher
	logger    *zap.Logger
	now       func() time.Time
}

func NewService(store Store, directory Directory, events notify.Publisher, logger *zap.Logger) *Service {
	return &Service{
		store:     store,
		directory: directory,
		events:    events,
		logger:    logger,
		now:       time.Now,
	}
}

// publish hands ev to the fan-out. The mutation has already committed, so a
// publish failure is only logged.
func (s *Service) publish(ctx context.Context, ev notify.Event) {
	ev.OccurredAt = s.now()
	if err := s.events.Publish(ctx, ev); err != nil {
		s.logger.Error("failed to publish project event",
			zap.Error(err),
			zap.String("kind", string(ev.Kind)),
			zap.String("project_id", ev.ProjectID.String()),
		)
	}
}

// actor loads the acting user. An unknown actor carries no capability.
func (s *Service) actor(ctx context.Context, id uuid.UUID) (*db.User, error) {
	u, err := s.directory.GetUser(ctx, id)
	if errors.Is(err, errs.ErrNotFound) {
		return nil, nil
	}
	return u, err
}

// CreateProject stores a new PENDING project and announces it to reviewers
func (s *Service) CreateProject(ctx context.Context, actorID uuid.UUID, in CreateInput) (*db.Project, error) {
	in.normalize()
	if err := in.validate(); err != nil {
		return nil, err
	}

	creator, err := s.actor(ctx, actorID)
	if err != nil {
		return nil, err
	}
	if !creator.IsAdmin() {
		return nil, errs.Forbidden("only admins can create projects")
	}

	p := &db.Project{
		ID:                uuid.New(),
		Title:             in.Title,
		Description:       in.Description,
		ProposedAmount:    in.ProposedAmount,
		RequiredApprovals: in.RequiredApprovals,
		CurrentApprovals:  0,
		Status:            db.ProjectPending,
		CreatedByID:       creator.ID,
	}
	if err := s.store.CreateProject(ctx, p); err != nil {
		return nil, err
	}
	metrics.RecordTransition(string(db.ProjectPending))

	s.logger.Info("project created",
		zap.String("project_id", p.ID.String()),
		zap.String("user_id", creator.ID.String()),
		zap.Int("required_approvals", p.RequiredApprovals),
	)

	s.publish(ctx, notify.Event{
		Kind:         notify.EventSubmitted,
		ProjectID:    p.ID,
		ProjectTitle: p.Title,
		CreatorID:    p.CreatedByID,
		ActorID:      creator.ID,
		ActorName:    creator.Name,
	})
	return p, nil
}

// AcceptProject records userID's approval. The creator always hears about
// the acceptance; the approved milestone is published only by the acceptance
// whose increment crossed the threshold.
func (s *Service) AcceptProject(ctx context.Context, projectID, userID uuid.UUID, notes *string) (*db.AcceptOutcome, error) {
	notes, err := normalizeNotes(notes)
	if err != nil {
		return nil, err
	}

	outcome, err := s.store.AcceptProject(ctx, projectID, userID, notes)
	if err != nil {
		return nil, err
	}
	p := outcome.Project

	s.publish(ctx, notify.Event{
		Kind:         notify.EventAccepted,
		ProjectID:    p.ID,
		ProjectTitle: p.Title,
		CreatorID:    p.CreatedByID,
		ActorID:      userID,
	})

	if outcome.JustApproved {
		metrics.RecordTransition(string(db.ProjectApproved))
		s.logger.Info("project approved",
			zap.String("project_id", p.ID.String()),
			zap.Int("current_approvals", p.CurrentApprovals),
			zap.Int("required_approvals", p.RequiredApprovals),
		)
		s.publish(ctx, notify.Event{
			Kind:         notify.EventApproved,
			ProjectID:    p.ID,
			ProjectTitle: p.Title,
			CreatorID:    p.CreatedByID,
			ActorID:      userID,
		})
	}

	return outcome, nil
}

// AssignProject hands the project to assigneeID; every other acceptor is
// told they were not picked
func (s *Service) AssignProject(ctx context.Context, projectID, assigneeID, actorID uuid.UUID) (*db.Project, error) {
	admin, err := s.actor(ctx, actorID)
	if err != nil {
		return nil, err
	}
	if !admin.IsAdmin() {
		return nil, errs.Forbidden("only admins can assign projects")
	}

	p, err := s.store.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if p.IsDeleted() {
		return nil, errs.Deleted("cannot assign deleted project")
	}
	if p.Status == db.ProjectAssigned {
		return nil, errs.Validation("project is already assigned")
	}

	assignee, err := s.directory.GetUser(ctx, assigneeID)
	if errors.Is(err, errs.ErrNotFound) || (err == nil && !assignee.Active) {
		return nil, errs.NotFound("assigned user not found or inactive")
	}
	if err != nil {
		return nil, err
	}

	acceptors, err := s.store.ListAcceptanceUserIDs(ctx, projectID)
	if err != nil {
		return nil, err
	}
	declined := make([]uuid.UUID, 0, len(acceptors))
	for _, id := range acceptors {
		if id != assigneeID {
			declined = append(declined, id)
		}
	}

	updated, err := s.store.AssignProject(ctx, projectID, assigneeID)
	if err != nil {
		return nil, err
	}
	metrics.RecordTransition(string(db.ProjectAssigned))

	s.logger.Info("project assigned",
		zap.String("project_id", projectID.String()),
		zap.String("assignee_id", assigneeID.String()),
		zap.String("user_id", admin.ID.String()),
		zap.Int("declined", len(declined)),
	)

	s.publish(ctx, notify.Event{
		Kind:         notify.EventAssigned,
		ProjectID:    updated.ID,
		ProjectTitle: updated.Title,
		CreatorID:    updated.CreatedByID,
		ActorID:      admin.ID,
		ActorName:    admin.Name,
		Recipients:   []uuid.UUID{assigneeID},
	})
	if len(declined) > 0 {
		s.publish(ctx, notify.Event{
			Kind:         notify.EventDeclined,
			ProjectID:    updated.ID,
			ProjectTitle: updated.Title,
			CreatorID:    updated.CreatedByID,
			ActorID:      admin.ID,
			Recipients:   declined,
		})
	}

	return updated, nil
}

// ownedForWrite loads the project and checks actorID may mutate it
func (s *Service) ownedForWrite(ctx context.Context, projectID, actorID uuid.UUID, verb string) (*db.Project, error) {
	p, err := s.store.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}

	if p.CreatedByID != actorID {
		u, err := s.actor(ctx, actorID)
		if err != nil {
			return nil, err
		}
		if !u.IsAdmin() {
			return nil, errs.Forbidden("you do not have permission to %s this project", verb)
		}
	}
	return p, nil
}

// UpdateProject applies patch. Changing the required approvals never moves
// the project between states.
func (s *Service) UpdateProject(ctx context.Context, projectID, actorID uuid.UUID, patch db.ProjectPatch) (*db.Project, error) {
	patch = normalizePatch(patch)
	if err := validatePatch(patch); err != nil {
		return nil, err
	}

	p, err := s.ownedForWrite(ctx, projectID, actorID, "update")
	if err != nil {
		return nil, err
	}
	if p.IsDeleted() {
		return nil, errs.Deleted("cannot update deleted project")
	}
	if patch.Empty() {
		return p, nil
	}

	updated, err := s.store.UpdateProject(ctx, projectID, patch)
	if err != nil {
		return nil, err
	}

	s.logger.Info("project updated",
		zap.String("project_id", projectID.String()),
		zap.String("user_id", actorID.String()),
	)
	return updated, nil
}

// DeleteProject soft-deletes the project and tells acceptors and the assignee
func (s *Service) DeleteProject(ctx context.Context, projectID, actorID uuid.UUID) (*db.Project, error) {
	p, err := s.ownedForWrite(ctx, projectID, actorID, "delete")
	if err != nil {
		return nil, err
	}
	if p.IsDeleted() {
		return nil, errs.Deleted("project is already deleted")
	}

	affected, err := s.store.ListAcceptanceUserIDs(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if p.AssignedToID != nil && !containsID(affected, *p.AssignedToID) {
		affected = append(affected, *p.AssignedToID)
	}

	deleted, err := s.store.SoftDeleteProject(ctx, projectID, s.now())
	if err != nil {
		return nil, err
	}
	metrics.RecordTransition(string(db.ProjectDeleted))

	s.logger.Info("project deleted",
		zap.String("project_id", projectID.String()),
		zap.String("user_id", actorID.String()),
		zap.Int("affected", len(affected)),
	)

	if len(affected) > 0 {
		s.publish(ctx, notify.Event{
			Kind:         notify.EventDeleted,
			ProjectID:    deleted.ID,
			ProjectTitle: deleted.Title,
			CreatorID:    deleted.CreatedByID,
			ActorID:      actorID,
			Recipients:   affected,
		})
	}
	return deleted, nil
}

func containsID(ids []uuid.UUID, id uuid.UUID) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
