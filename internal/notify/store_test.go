package notify

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lalithlochan/quorum/internal/db"
	"github.com/lalithlochan/quorum/internal/errs"
)

// memStore is an in-memory Store, Directory and InboxStore
type memStore struct {
	mu            sync.Mutex
	users         map[uuid.UUID]*db.User
	notifications map[uuid.UUID]*db.Notification
	deliveries    []*db.Delivery
	order         []uuid.UUID

	deleteCutoff time.Time
}

func newMemStore(users ...*db.User) *memStore {
	s := &memStore{
		users:         make(map[uuid.UUID]*db.User),
		notifications: make(map[uuid.UUID]*db.Notification),
	}
	for _, u := range users {
		s.users[u.ID] = u
	}
	return s
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

func (s *memStore) ListActiveUsersByRole(ctx context.Context, role string) ([]*db.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*db.User
	for _, u := range s.users {
		if u.Active && u.Role == role {
			cp := *u
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *memStore) CreateNotification(ctx context.Context, n *db.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *n
	s.notifications[n.ID] = &cp
	s.order = append(s.order, n.ID)
	return nil
}

func (s *memStore) CreateDelivery(ctx context.Context, d *db.Delivery) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *d
	s.deliveries = append(s.deliveries, &cp)
	return nil
}

func (s *memStore) FinalizeNotification(ctx context.Context, id uuid.UUID, status string, sentAt *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.notifications[id]
	if !ok {
		return errs.NotFound("notification not found")
	}
	n.Status = status
	n.SentAt = sentAt
	return nil
}

func (s *memStore) notification(id uuid.UUID) *db.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.notifications[id]
}

func (s *memStore) deliveriesFor(id uuid.UUID) []*db.Delivery {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*db.Delivery
	for _, d := range s.deliveries {
		if d.NotificationID == id {
			out = append(out, d)
		}
	}
	return out
}

func (s *memStore) notificationsFor(userID uuid.UUID) []*db.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*db.Notification
	for _, id := range s.order {
		if n := s.notifications[id]; n.UserID == userID {
			out = append(out, n)
		}
	}
	return out
}

func (s *memStore) ListNotificationsByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*db.Notification, error) {
	all := s.notificationsFor(userID)
	for i, j := 0, len(all)-1; i < j; i, j = i+1, j-1 {
		all[i], all[j] = all[j], all[i]
	}
	if offset >= len(all) {
		return nil, nil
	}
	all = all[offset:]
	if len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

func (s *memStore) CountUnread(ctx context.Context, userID uuid.UUID) (int, error) {
	n := 0
	for _, notif := range s.notificationsFor(userID) {
		if !notif.IsRead {
			n++
		}
	}
	return n, nil
}

func (s *memStore) MarkNotificationRead(ctx context.Context, id, userID uuid.UUID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.notifications[id]
	if !ok || n.UserID != userID {
		return errs.NotFound("notification not found")
	}
	n.IsRead = true
	n.ReadAt = &at
	return nil
}

func (s *memStore) MarkAllNotificationsRead(ctx context.Context, userID uuid.UUID, at time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var changed int64
	for _, n := range s.notifications {
		if n.UserID == userID && !n.IsRead {
			n.IsRead = true
			n.ReadAt = &at
			changed++
		}
	}
	return changed, nil
}

func (s *memStore) DeleteReadNotificationsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleteCutoff = cutoff
	var deleted int64
	for id, n := range s.notifications {
		if n.IsRead && n.CreatedAt.Before(cutoff) {
			delete(s.notifications, id)
			deleted++
		}
	}
	return deleted, nil
}

func strPtr(s string) *string { return &s }

func newUser(name string, opts ...func(*db.User)) *db.User {
	u := &db.User{
		ID:          uuid.New(),
		Name:        name,
		Email:       strPtr(name + "@example.com"),
		Phone:       strPtr("+15550100"),
		PushToken:   strPtr("token-" + name),
		Role:        db.RoleUser,
		Active:      true,
		Preferences: db.DefaultPreferences(),
	}
	for _, o := range opts {
		o(u)
	}
	return u
}
