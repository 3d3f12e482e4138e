package project

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lalithlochan/quorum/internal/db"
	"github.com/lalithlochan/quorum/internal/errs"
	"github.com/lalithlochan/quorum/internal/notify"
)

// memStore mirrors the repository semantics; one mutex makes AcceptProject
// atomic the way the row lock does in Postgres
type memStore struct {
	mu          sync.Mutex
	projects    map[uuid.UUID]*db.Project
	acceptances map[uuid.UUID][]*db.Acceptance
	users       map[uuid.UUID]*db.User
	clock       time.Time
}

func newMemStore(users ...*db.User) *memStore {
	s := &memStore{
		projects:    make(map[uuid.UUID]*db.Project),
		acceptances: make(map[uuid.UUID][]*db.Acceptance),
		users:       make(map[uuid.UUID]*db.User),
		clock:       time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC),
	}
	for _, u := range users {
		s.users[u.ID] = u
	}
	return s
}

func (s *memStore) tick() time.Time {
	s.clock = s.clock.Add(time.Second)
	return s.clock
}

func (s *memStore) GetUser(ctx context.Context, id uuid.UUID) (*db.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, errs.NotFound("user %s not found", id)
	}
	cp := *u
	return &cp, nil
}

func (s *memStore) CreateProject(ctx context.Context, p *db.Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[p.CreatedByID]; !ok {
		return errs.NotFound("creator %s not found", p.CreatedByID)
	}
	p.CreatedAt = s.tick()
	p.UpdatedAt = p.CreatedAt
	cp := *p
	s.projects[p.ID] = &cp
	return nil
}

func (s *memStore) GetProject(ctx context.Context, id uuid.UUID) (*db.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.projects[id]
	if !ok {
		return nil, errs.NotFound("project not found")
	}
	cp := *p
	return &cp, nil
}

func (s *memStore) ListProjects(ctx context.Context, f db.ProjectFilter) ([]*db.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*db.Project
	for _, p := range s.projects {
		if f.Status != "" && p.Status != f.Status {
			continue
		}
		if f.CreatedByID != nil && p.CreatedByID != *f.CreatedByID {
			continue
		}
		if f.AssignedToID != nil && (p.AssignedToID == nil || *p.AssignedToID != *f.AssignedToID) {
			continue
		}
		if !f.IncludeDeleted && p.DeletedAt != nil {
			continue
		}
		cp := *p
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *memStore) AcceptProject(ctx context.Context, projectID, userID uuid.UUID, notes *string) (*db.AcceptOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.projects[projectID]
	if !ok {
		return nil, errs.NotFound("project not found")
	}
	if p.IsDeleted() {
		return nil, errs.Deleted("project has been deleted")
	}
	if p.Status != db.ProjectPending {
		return nil, errs.Validation("project is no longer accepting approvals")
	}
	for _, a := range s.acceptances[projectID] {
		if a.UserID == userID {
			return nil, errs.Validation("you have already accepted this project")
		}
	}
	if _, ok := s.users[userID]; !ok {
		return nil, errs.NotFound("user %s not found", userID)
	}

	a := &db.Acceptance{ID: uuid.New(), ProjectID: projectID, UserID: userID, Notes: notes, AcceptedAt: s.tick()}
	s.acceptances[projectID] = append(s.acceptances[projectID], a)

	p.CurrentApprovals++
	if p.CurrentApprovals >= p.RequiredApprovals {
		p.Status = db.ProjectApproved
	}
	cp := *p
	return &db.AcceptOutcome{Acceptance: a, Project: &cp, JustApproved: cp.Status == db.ProjectApproved}, nil
}

func (s *memStore) UpdateProject(ctx context.Context, id uuid.UUID, patch db.ProjectPatch) (*db.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.projects[id]
	if !ok || p.DeletedAt != nil {
		return nil, errs.Validation("cannot update deleted project")
	}
	if patch.Title != nil {
		p.Title = *patch.Title
	}
	if patch.Description != nil {
		p.Description = *patch.Description
	}
	if patch.ProposedAmount != nil {
		p.ProposedAmount = *patch.ProposedAmount
	}
	if patch.RequiredApprovals != nil {
		p.RequiredApprovals = *patch.RequiredApprovals
	}
	cp := *p
	return &cp, nil
}

func (s *memStore) AssignProject(ctx context.Context, id, assigneeID uuid.UUID) (*db.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.projects[id]
	if !ok || p.DeletedAt != nil {
		return nil, errs.Validation("cannot assign deleted project")
	}
	p.AssignedToID = &assigneeID
	p.Status = db.ProjectAssigned
	cp := *p
	return &cp, nil
}

func (s *memStore) SoftDeleteProject(ctx context.Context, id uuid.UUID, at time.Time) (*db.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.projects[id]
	if !ok || p.DeletedAt != nil {
		return nil, errs.Validation("project is already deleted")
	}
	p.Status = db.ProjectDeleted
	p.DeletedAt = &at
	cp := *p
	return &cp, nil
}

func (s *memStore) ListAcceptances(ctx context.Context, projectID uuid.UUID) ([]*db.Acceptance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	src := s.acceptances[projectID]
	out := make([]*db.Acceptance, 0, len(src))
	for i := len(src) - 1; i >= 0; i-- {
		out = append(out, src[i])
	}
	return out, nil
}

func (s *memStore) ListAcceptanceUserIDs(ctx context.Context, projectID uuid.UUID) ([]uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []uuid.UUID
	for _, a := range s.acceptances[projectID] {
		ids = append(ids, a.UserID)
	}
	return ids, nil
}

func (s *memStore) PendingProjectsForUser(ctx context.Context, userID uuid.UUID) ([]*db.Project, error) {
	all, _ := s.ListProjects(ctx, db.ProjectFilter{Status: db.ProjectPending})
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*db.Project
	for _, p := range all {
		accepted := false
		for _, a := range s.acceptances[p.ID] {
			if a.UserID == userID {
				accepted = true
			}
		}
		if !accepted {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *memStore) CountProjects(ctx context.Context) (*db.ProjectCounts, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var c db.ProjectCounts
	for _, p := range s.projects {
		if p.DeletedAt != nil {
			c.Deleted++
			continue
		}
		c.Total++
		switch p.Status {
		case db.ProjectPending:
			c.Pending++
		case db.ProjectApproved:
			c.Approved++
		case db.ProjectAssigned:
			c.Assigned++
		}
	}
	return &c, nil
}

func (s *memStore) project(id uuid.UUID) *db.Project {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *s.projects[id]
	return &cp
}

// recordingPublisher keeps every published event
type recordingPublisher struct {
	mu     sync.Mutex
	events []notify.Event
	err    error
}

func (p *recordingPublisher) Publish(ctx context.Context, ev notify.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return p.err
}

func (p *recordingPublisher) ofKind(kind notify.EventKind) []notify.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []notify.Event
	for _, ev := range p.events {
		if ev.Kind == kind {
			out = append(out, ev)
		}
	}
	return out
}

func newUser(name, role string) *db.User {
	return &db.User{ID: uuid.New(), Name: name, Role: role, Active: true, Preferences: db.DefaultPreferences()}
}
