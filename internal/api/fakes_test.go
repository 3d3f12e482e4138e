package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lalithlochan/quorum/internal/db"
	"github.com/lalithlochan/quorum/internal/errs"
	"github.com/lalithlochan/quorum/internal/notify"
	"github.com/lalithlochan/quorum/internal/project"
	"github.com/lalithlochan/quorum/internal/redis"
	"github.com/lalithlochan/quorum/internal/reminder"
)

type fakeProjects struct {
	mu sync.Mutex

	acceptErr   error
	acceptCalls int
	lastFilter  db.ProjectFilter
	lastCreate  project.CreateInput
	lastAssign  uuid.UUID
}

func (f *fakeProjects) CreateProject(ctx context.Context, actorID uuid.UUID, in project.CreateInput) (*db.Project, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastCreate = in
	return &db.Project{ID: uuid.New(), Title: in.Title, Status: db.ProjectPending, CreatedByID: actorID,
		RequiredApprovals: in.RequiredApprovals}, nil
}

func (f *fakeProjects) AcceptProject(ctx context.Context, projectID, userID uuid.UUID, notes *string) (*db.AcceptOutcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.acceptCalls++
	if f.acceptErr != nil {
		return nil, f.acceptErr
	}
	return &db.AcceptOutcome{
		Acceptance:   &db.Acceptance{ID: uuid.New(), ProjectID: projectID, UserID: userID, Notes: notes},
		Project:      &db.Project{ID: projectID, Status: db.ProjectApproved, CurrentApprovals: 1, RequiredApprovals: 1},
		JustApproved: true,
	}, nil
}

func (f *fakeProjects) AssignProject(ctx context.Context, projectID, assigneeID, actorID uuid.UUID) (*db.Project, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastAssign = assigneeID
	return &db.Project{ID: projectID, Status: db.ProjectAssigned, AssignedToID: &assigneeID}, nil
}

func (f *fakeProjects) UpdateProject(ctx context.Context, projectID, actorID uuid.UUID, patch db.ProjectPatch) (*db.Project, error) {
	p := &db.Project{ID: projectID}
	if patch.Title != nil {
		p.Title = *patch.Title
	}
	return p, nil
}

func (f *fakeProjects) DeleteProject(ctx context.Context, projectID, actorID uuid.UUID) (*db.Project, error) {
	return nil, errs.Forbidden("only the creator or an admin can delete this project")
}

func (f *fakeProjects) GetProject(ctx context.Context, id uuid.UUID, includeDeleted bool) (*db.Project, error) {
	return nil, errs.NotFound("project not found")
}

func (f *fakeProjects) ListProjects(ctx context.Context, filter db.ProjectFilter) ([]*db.Project, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastFilter = filter
	return []*db.Project{}, nil
}

func (f *fakeProjects) ListAcceptances(ctx context.Context, projectID uuid.UUID) ([]*db.Acceptance, error) {
	return []*db.Acceptance{{ID: uuid.New(), ProjectID: projectID}}, nil
}

func (f *fakeProjects) PendingForUser(ctx context.Context, userID uuid.UUID) ([]*db.Project, error) {
	return []*db.Project{{ID: uuid.New(), Status: db.ProjectPending}}, nil
}

func (f *fakeProjects) Stats(ctx context.Context) (*db.ProjectCounts, error) {
	return &db.ProjectCounts{Total: 3, Pending: 2, Approved: 1}, nil
}

type fakeInbox struct {
	mu          sync.Mutex
	limit       int
	offset      int
	cleanupDays int
	readErr     error
}

func (f *fakeInbox) GetUserNotifications(ctx context.Context, userID uuid.UUID, limit, offset int) (*notify.Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.limit, f.offset = limit, offset
	return &notify.Page{Notifications: []*db.Notification{}, Limit: 20}, nil
}

func (f *fakeInbox) MarkAsRead(ctx context.Context, notificationID, userID uuid.UUID) error {
	return f.readErr
}

func (f *fakeInbox) MarkAllAsRead(ctx context.Context, userID uuid.UUID) (int64, error) {
	return 4, nil
}

func (f *fakeInbox) CleanupOld(ctx context.Context, daysOld int) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cleanupDays = daysOld
	if daysOld <= 0 {
		return 0, errs.Validation("days must be positive")
	}
	return 7, nil
}

type fakeReminders struct {
	passes atomic.Int32
	panics bool
}

func (f *fakeReminders) GetStats(ctx context.Context) (*reminder.Stats, error) {
	return &reminder.Stats{ThresholdDays: 7, Schedule: "0 9 * * *"}, nil
}

func (f *fakeReminders) ListProjectsNeedingReminder(ctx context.Context) ([]reminder.Candidate, error) {
	return []reminder.Candidate{}, nil
}

func (f *fakeReminders) TriggerManually(ctx context.Context) (reminder.PassResult, error) {
	f.passes.Add(1)
	if f.panics {
		panic("store driver crashed")
	}
	return reminder.PassResult{Selected: 1, Reminded: 1}, nil
}

type fakeUsers map[uuid.UUID]*db.User

func (f fakeUsers) GetUser(ctx context.Context, id uuid.UUID) (*db.User, error) {
	u, ok := f[id]
	if !ok {
		return nil, errs.NotFound("user not found")
	}
	return u, nil
}

type fixture struct {
	handler   *Handler
	router    http.Handler
	projects  *fakeProjects
	inbox     *fakeInbox
	reminders *fakeReminders
	admin     uuid.UUID
	user      uuid.UUID
}

// newFixture mounts the routes behind a middleware that trusts X-Actor
func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		projects:  &fakeProjects{},
		inbox:     &fakeInbox{},
		reminders: &fakeReminders{},
		admin:     uuid.New(),
		user:      uuid.New(),
	}
	users := fakeUsers{
		f.admin: {ID: f.admin, Name: "Ada", Role: db.RoleAdmin, Active: true},
		f.user:  {ID: f.user, Name: "Bob", Role: db.RoleUser, Active: true},
	}

	f.handler = NewHandler(Services{
		Projects:  f.projects,
		Inbox:     f.inbox,
		Reminders: f.reminders,
		Users:     users,
	}, zap.NewNop())

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if id, err := uuid.Parse(r.Header.Get("X-Actor")); err == nil {
				r = r.WithContext(WithActor(r.Context(), id))
			}
			next.ServeHTTP(w, r)
		})
	})
	f.handler.Routes(r)
	f.router = r
	return f
}

func (f *fixture) do(t *testing.T, method, path string, actor uuid.UUID, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()

	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	if actor != uuid.Nil {
		req.Header.Set("X-Actor", actor.String())
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	port, err := strconv.Atoi(mr.Port())
	if err != nil {
		t.Fatalf("miniredis port: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client, err := redis.New(ctx, redis.Config{Host: mr.Host(), Port: port}, zap.NewNop())
	if err != nil {
		t.Fatalf("connect to miniredis: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client, mr
}
