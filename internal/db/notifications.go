package db

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/lalithlochan/quorum/internal/errs"
)

func channelStrings(chs []Channel) []string {
	out := make([]string, len(chs))
	for i, c := range chs {
		out[i] = string(c)
	}
	return out
}

// CreateNotification inserts a notification record
func (r *Repository) CreateNotification(ctx context.Context, n *Notification) error {
	query := `
		INSERT INTO notifications (
			id, user_id, project_id, type, title, message, channels, status
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8
		)
		RETURNING created_at
	`

	err := r.db.Pool().QueryRow(ctx, query,
		n.ID,
		n.UserID,
		n.ProjectID,
		string(n.Type),
		n.Title,
		n.Message,
		channelStrings(n.Channels),
		n.Status,
	).Scan(&n.CreatedAt)
	if err != nil {
		r.logger.Error("failed to create notification",
			zap.Error(err),
			zap.String("notification_id", n.ID.String()),
		)
		return fmt.Errorf("insert notification: %w", err)
	}

	return nil
}

// CreateDelivery records one channel attempt
func (r *Repository) CreateDelivery(ctx context.Context, d *Delivery) error {
	err := r.db.Pool().QueryRow(ctx, `
		INSERT INTO notification_deliveries (
			id, notification_id, channel, status, error_message, delivered_at
		) VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`,
		d.ID,
		d.NotificationID,
		string(d.Channel),
		d.Status,
		d.ErrorMessage,
		d.DeliveredAt,
	).Scan(&d.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert delivery: %w", err)
	}
	return nil
}

// FinalizeNotification moves a notification out of PENDING
func (r *Repository) FinalizeNotification(ctx context.Context, id uuid.UUID, status string, sentAt *time.Time) error {
	result, err := r.db.Pool().Exec(ctx,
		`UPDATE notifications SET status = $2, sent_at = $3 WHERE id = $1`,
		id, status, sentAt,
	)
	if err != nil {
		return fmt.Errorf("finalize notification: %w", err)
	}
	if result.RowsAffected() == 0 {
		return errs.NotFound("notification %s not found", id)
	}
	return nil
}

// ListNotificationsByUser returns a user's notifications, newest first, with
// their deliveries attached
func (r *Repository) ListNotificationsByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*Notification, error) {
	rows, err := r.db.Pool().Query(ctx, `
		SELECT id, user_id, project_id, type, title, message, channels,
		       status, is_read, created_at, sent_at, read_at
		FROM notifications
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("query notifications: %w", err)
	}
	defer rows.Close()

	var (
		notifications []*Notification
		ids           []uuid.UUID
		byID          = make(map[uuid.UUID]*Notification)
	)
	for rows.Next() {
		var (
			n        Notification
			typ      string
			channels []string
		)
		if err := rows.Scan(
			&n.ID,
			&n.UserID,
			&n.ProjectID,
			&typ,
			&n.Title,
			&n.Message,
			&channels,
			&n.Status,
			&n.IsRead,
			&n.CreatedAt,
			&n.SentAt,
			&n.ReadAt,
		); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		n.Type = NotificationType(typ)
		for _, c := range channels {
			n.Channels = append(n.Channels, Channel(c))
		}
		notifications = append(notifications, &n)
		ids = append(ids, n.ID)
		byID[n.ID] = &n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	rows.Close()

	if len(ids) == 0 {
		return notifications, nil
	}

	drows, err := r.db.Pool().Query(ctx, `
		SELECT id, notification_id, channel, status, error_message, delivered_at, created_at
		FROM notification_deliveries
		WHERE notification_id = ANY($1)
		ORDER BY created_at ASC
	`, ids)
	if err != nil {
		return nil, fmt.Errorf("query deliveries: %w", err)
	}

	deliveries, err := pgx.CollectRows(drows, func(row pgx.CollectableRow) (*Delivery, error) {
		var (
			d       Delivery
			channel string
		)
		err := row.Scan(&d.ID, &d.NotificationID, &channel, &d.Status, &d.ErrorMessage, &d.DeliveredAt, &d.CreatedAt)
		d.Channel = Channel(channel)
		return &d, err
	})
	if err != nil {
		return nil, fmt.Errorf("collect deliveries: %w", err)
	}
	for _, d := range deliveries {
		if n, ok := byID[d.NotificationID]; ok {
			n.Deliveries = append(n.Deliveries, d)
		}
	}

	return notifications, nil
}

// CountUnread counts a user's unread notifications
func (r *Repository) CountUnread(ctx context.Context, userID uuid.UUID) (int, error) {
	var n int
	err := r.db.Pool().QueryRow(ctx,
		`SELECT COUNT(*) FROM notifications WHERE user_id = $1 AND NOT is_read`,
		userID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count unread: %w", err)
	}
	return n, nil
}

// MarkNotificationRead marks one of the user's notifications read
func (r *Repository) MarkNotificationRead(ctx context.Context, id, userID uuid.UUID, at time.Time) error {
	result, err := r.db.Pool().Exec(ctx, `
		UPDATE notifications
		SET is_read = TRUE, read_at = COALESCE(read_at, $3)
		WHERE id = $1 AND user_id = $2
	`, id, userID, at)
	if err != nil {
		return fmt.Errorf("mark notification read: %w", err)
	}
	if result.RowsAffected() == 0 {
		return errs.NotFound("notification not found")
	}
	return nil
}

// MarkAllNotificationsRead marks every unread notification of the user read
func (r *Repository) MarkAllNotificationsRead(ctx context.Context, userID uuid.UUID, at time.Time) (int64, error) {
	result, err := r.db.Pool().Exec(ctx, `
		UPDATE notifications
		SET is_read = TRUE, read_at = $2
		WHERE user_id = $1 AND NOT is_read
	`, userID, at)
	if err != nil {
		return 0, fmt.Errorf("mark all read: %w", err)
	}
	return result.RowsAffected(), nil
}

// DeleteReadNotificationsBefore removes read notifications created before cutoff
func (r *Repository) DeleteReadNotificationsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.Pool().Exec(ctx,
		`DELETE FROM notifications WHERE is_read AND created_at < $1`,
		cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("delete read notifications: %w", err)
	}

	r.logger.Info("cleaned up read notifications",
		zap.Int64("deleted", result.RowsAffected()),
		zap.Time("cutoff", cutoff),
	)
	return result.RowsAffected(), nil
}
