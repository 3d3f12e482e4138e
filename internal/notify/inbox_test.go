package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/lalithlochan/quorum/internal/db"
	"github.com/lalithlochan/quorum/internal/errs"
)

var inboxNow = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

func seedNotification(s *memStore, userID uuid.UUID, age time.Duration, read bool) uuid.UUID {
	n := &db.Notification{
		ID:        uuid.New(),
		UserID:    userID,
		Type:      db.TypeReminder,
		Title:     "t",
		Message:   "m",
		Status:    db.StatusSent,
		IsRead:    read,
		CreatedAt: inboxNow.Add(-age),
	}
	_ = s.CreateNotification(context.Background(), n)
	return n.ID
}

func newTestInbox(s *memStore) *Inbox {
	in := NewInbox(s)
	in.now = func() time.Time { return inboxNow }
	return in
}

func TestCleanupOld(t *testing.T) {
	store := newMemStore()
	user := uuid.New()
	day := 24 * time.Hour

	oldRead := seedNotification(store, user, 100*day, true)
	oldUnread := seedNotification(store, user, 100*day, false)
	recentRead := seedNotification(store, user, 10*day, true)

	inbox := newTestInbox(store)
	deleted, err := inbox.CleanupOld(context.Background(), 90)
	if err != nil {
		t.Fatal(err)
	}

	if deleted != 1 {
		t.Fatalf("deleted %d, want 1", deleted)
	}
	if want := inboxNow.AddDate(0, 0, -90); !store.deleteCutoff.Equal(want) {
		t.Fatalf("cutoff = %s, want %s", store.deleteCutoff, want)
	}
	if store.notification(oldRead) != nil {
		t.Error("old read notification should be gone")
	}
	if store.notification(oldUnread) == nil || store.notification(recentRead) == nil {
		t.Error("unread and recent notifications must survive")
	}
}

func TestCleanupOld_RejectsNonPositiveDays(t *testing.T) {
	inbox := newTestInbox(newMemStore())
	for _, days := range []int{0, -5} {
		if _, err := inbox.CleanupOld(context.Background(), days); !errors.Is(err, errs.ErrValidation) {
			t.Errorf("days=%d: expected validation error, got %v", days, err)
		}
	}
}

func TestMarkAsRead(t *testing.T) {
	store := newMemStore()
	owner, stranger := uuid.New(), uuid.New()
	id := seedNotification(store, owner, time.Hour, false)
	inbox := newTestInbox(store)

	if err := inbox.MarkAsRead(context.Background(), id, stranger); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("expected NotFound for non-owner, got %v", err)
	}
	if store.notification(id).IsRead {
		t.Fatal("non-owner must not mark read")
	}

	if err := inbox.MarkAsRead(context.Background(), id, owner); err != nil {
		t.Fatal(err)
	}
	n := store.notification(id)
	if !n.IsRead || n.ReadAt == nil || !n.ReadAt.Equal(inboxNow) {
		t.Fatalf("unexpected notification: %+v", n)
	}
}

func TestMarkAllAsRead(t *testing.T) {
	store := newMemStore()
	user := uuid.New()
	seedNotification(store, user, time.Hour, false)
	seedNotification(store, user, time.Hour, false)
	seedNotification(store, user, time.Hour, true)
	seedNotification(store, uuid.New(), time.Hour, false)

	changed, err := newTestInbox(store).MarkAllAsRead(context.Background(), user)
	if err != nil {
		t.Fatal(err)
	}
	if changed != 2 {
		t.Fatalf("changed %d, want 2", changed)
	}
}

func TestGetUserNotifications(t *testing.T) {
	store := newMemStore()
	user := uuid.New()
	for i := 0; i < 3; i++ {
		seedNotification(store, user, time.Duration(i)*time.Hour, i == 0)
	}
	inbox := newTestInbox(store)

	tests := []struct {
		name             string
		limit, offset    int
		wantLimit, wantN int
	}{
		{"default limit", 0, 0, 20, 3},
		{"capped limit", 500, 0, 100, 3},
		{"offset", 2, 1, 2, 2},
		{"past the end", 10, 5, 10, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page, err := inbox.GetUserNotifications(context.Background(), user, tt.limit, tt.offset)
			if err != nil {
				t.Fatal(err)
			}
			if page.Limit != tt.wantLimit || len(page.Notifications) != tt.wantN {
				t.Fatalf("limit=%d n=%d", page.Limit, len(page.Notifications))
			}
			if page.UnreadCount != 2 {
				t.Fatalf("unread = %d", page.UnreadCount)
			}
			if page.Notifications == nil {
				t.Fatal("notifications should encode as an empty list")
			}
		})
	}
}
