package project

import (
	"context"

	"github.com/google/uuid"

	"github.com/lalithlochan/quorum/internal/db"
	"github.com/lalithlochan/quorum/internal/errs"
)

// GetProject returns a project; soft-deleted ones only when includeDeleted
func (s *Service) GetProject(ctx context.Context, id uuid.UUID, includeDeleted bool) (*db.Project, error) {
	p, err := s.store.GetProject(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.IsDeleted() && !includeDeleted {
		return nil, errs.NotFound("project not found")
	}
	return p, nil
}

// ListProjects returns matching projects, newest first
func (s *Service) ListProjects(ctx context.Context, filter db.ProjectFilter) ([]*db.Project, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, errs.Validation("invalid status %q", filter.Status)
	}
	projects, err := s.store.ListProjects(ctx, filter)
	if err != nil {
		return nil, err
	}
	if projects == nil {
		projects = []*db.Project{}
	}
	return projects, nil
}

// ListAcceptances returns the acceptances of a live project, newest first
func (s *Service) ListAcceptances(ctx context.Context, projectID uuid.UUID) ([]*db.Acceptance, error) {
	if _, err := s.GetProject(ctx, projectID, false); err != nil {
		return nil, err
	}
	acceptances, err := s.store.ListAcceptances(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if acceptances == nil {
		acceptances = []*db.Acceptance{}
	}
	return acceptances, nil
}

// PendingForUser lists PENDING projects userID has not accepted yet
func (s *Service) PendingForUser(ctx context.Context, userID uuid.UUID) ([]*db.Project, error) {
	projects, err := s.store.PendingProjectsForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if projects == nil {
		projects = []*db.Project{}
	}
	return projects, nil
}

// Stats returns per-status project counts
func (s *Service) Stats(ctx context.Context) (*db.ProjectCounts, error) {
	return s.store.CountProjects(ctx)
}
