package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/lalithlochan/quorum/internal/db"
	"github.com/lalithlochan/quorum/internal/errs"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// InboxStore is the read side of notification persistence
type InboxStore interface {
	ListNotificationsByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*db.Notification, error)
	CountUnread(ctx context.Context, userID uuid.UUID) (int, error)
	MarkNotificationRead(ctx context.Context, id, userID uuid.UUID, at time.Time) error
	MarkAllNotificationsRead(ctx context.Context, userID uuid.UUID, at time.Time) (int64, error)
	DeleteReadNotificationsBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Page is one page of a user's notifications
type Page struct {
	Notifications []*db.Notification `json:"notifications"`
	UnreadCount   int                `json:"unread_count"`
	Limit         int                `json:"limit"`
	Offset        int                `json:"offset"`
}

// Inbox serves the per-user notification list
type Inbox struct {
	store InboxStore
	now   func() time.Time
}

func NewInbox(store InboxStore) *Inbox {
	return &Inbox{store: store, now: time.Now}
}

// GetUserNotifications returns newest-first notifications and the unread count
func (i *Inbox) GetUserNotifications(ctx context.Context, userID uuid.UUID, limit, offset int) (*Page, error) {
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	if offset < 0 {
		offset = 0
	}

	notifications, err := i.store.ListNotificationsByUser(ctx, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	if notifications == nil {
		notifications = []*db.Notification{}
	}

	unread, err := i.store.CountUnread(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("count unread: %w", err)
	}

	return &Page{
		Notifications: notifications,
		UnreadCount:   unread,
		Limit:         limit,
		Offset:        offset,
	}, nil
}

// MarkAsRead marks one notification read; someone else's notification is NotFound
func (i *Inbox) MarkAsRead(ctx context.Context, notificationID, userID uuid.UUID) error {
	return i.store.MarkNotificationRead(ctx, notificationID, userID, i.now())
}

// MarkAllAsRead returns how many notifications changed
func (i *Inbox) MarkAllAsRead(ctx context.Context, userID uuid.UUID) (int64, error) {
	n, err := i.store.MarkAllNotificationsRead(ctx, userID, i.now())
	if err != nil {
		return 0, fmt.Errorf("mark all read: %w", err)
	}
	return n, nil
}

// CleanupOld deletes read notifications older than daysOld; unread ones stay
func (i *Inbox) CleanupOld(ctx context.Context, daysOld int) (int64, error) {
	if daysOld < 1 {
		return 0, errs.Validation("days must be at least 1")
	}
	cutoff := i.now().AddDate(0, 0, -daysOld)

	n, err := i.store.DeleteReadNotificationsBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("cleanup notifications: %w", err)
	}
	return n, nil
}
