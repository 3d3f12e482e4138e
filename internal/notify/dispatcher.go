// Package notify delivers project notifications. The Dispatcher sends one
// notification to one user over every eligible channel and records a
// delivery per attempt; the Notifier fans events out to recipient sets.
package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lalithlochan/quorum/internal/channel"
	"github.com/lalithlochan/quorum/internal/db"
	"github.com/lalithlochan/quorum/internal/metrics"
)

// Store is what the dispatcher needs from persistence
type Store interface {
	GetUser(ctx context.Context, id uuid.UUID) (*db.User, error)
	CreateNotification(ctx context.Context, n *db.Notification) error
	CreateDelivery(ctx context.Context, d *db.Delivery) error
	FinalizeNotification(ctx context.Context, id uuid.UUID, status string, sentAt *time.Time) error
}

// Request describes one notification for one recipient
type Request struct {
	UserID    uuid.UUID
	ProjectID *uuid.UUID
	Type      db.NotificationType
	Title     string
	Message   string
	// Channels restricts delivery; empty means push, SMS and email.
	Channels []db.Channel
	// Data is attached to push notifications.
	Data map[string]string
}

// DeliveryResult is the outcome of one channel attempt
type DeliveryResult struct {
	Channel db.Channel `json:"channel"`
	Success bool       `json:"success"`
	Error   string     `json:"error,omitempty"`
}

// Result is what Dispatch reports back
type Result struct {
	NotificationID uuid.UUID        `json:"notification_id"`
	Status         string           `json:"status"`
	Deliveries     []DeliveryResult `json:"deliveries"`
}

var errNotConfigured = errors.New("channel not configured")

// Dispatcher sends notifications over the configured channel adapters
type Dispatcher struct {
	store    Store
	channels channel.Set
	renderer *Renderer
	logger   *zap.Logger
	now      func() time.Time
}

func NewDispatcher(store Store, channels channel.Set, renderer *Renderer, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		store:    store,
		channels: channels,
		renderer: renderer,
		logger:   logger,
		now:      time.Now,
	}
}

type attempt struct {
	channel  db.Channel
	fallback string
	send     func(ctx context.Context) (bool, error)
}

// Dispatch persists a PENDING notification, sends it on every eligible
// channel concurrently and finalizes it as SENT when any channel succeeded.
// Channel failures are reported in the result, never as an error; an
// unknown recipient is returned as NotFound.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) (*Result, error) {
	user, err := d.store.GetUser(ctx, req.UserID)
	if err != nil {
		return nil, err
	}

	channels := normalizeChannels(req.Channels)

	n := &db.Notification{
		ID:        uuid.New(),
		UserID:    user.ID,
		ProjectID: req.ProjectID,
		Type:      req.Type,
		Title:     req.Title,
		Message:   req.Message,
		Channels:  channels,
		Status:    db.StatusPending,
	}
	if err := d.store.CreateNotification(ctx, n); err != nil {
		return nil, fmt.Errorf("create notification: %w", err)
	}

	attempts := d.plan(user, channels, req)
	results := make([]DeliveryResult, len(attempts))

	var wg sync.WaitGroup
	for i, a := range attempts {
		wg.Add(1)
		go func(i int, a attempt) {
			defer wg.Done()
			results[i] = d.deliver(ctx, n.ID, a)
		}(i, a)
	}
	wg.Wait()

	status := db.StatusFailed
	var sentAt *time.Time
	for _, r := range results {
		if r.Success {
			status = db.StatusSent
			t := d.now()
			sentAt = &t
			break
		}
	}

	if err := d.store.FinalizeNotification(ctx, n.ID, status, sentAt); err != nil {
		return nil, fmt.Errorf("finalize notification %s: %w", n.ID, err)
	}
	metrics.RecordDispatch(string(req.Type), status)

	succeeded := 0
	for _, r := range results {
		if r.Success {
			succeeded++
		}
	}
	d.logger.Info("notification dispatched",
		zap.String("notification_id", n.ID.String()),
		zap.String("user_id", user.ID.String()),
		zap.String("type", string(req.Type)),
		zap.String("status", status),
		zap.Int("succeeded", succeeded),
		zap.Int("attempted", len(results)),
	)

	return &Result{
		NotificationID: n.ID,
		Status:         status,
		Deliveries:     results,
	}, nil
}

// normalizeChannels applies the default set and drops duplicates and unknowns
func normalizeChannels(requested []db.Channel) []db.Channel {
	if len(requested) == 0 {
		return append([]db.Channel(nil), db.DefaultChannels...)
	}

	seen := make(map[db.Channel]bool, len(requested))
	out := make([]db.Channel, 0, len(requested))
	for _, c := range requested {
		switch c {
		case db.ChannelPush, db.ChannelSMS, db.ChannelEmail:
		default:
			continue
		}
		if !seen[c] {
			seen[c] = true
			out = append(out, c)
		}
	}
	return out
}

func present(s *string) bool {
	return s != nil && *s != ""
}

// plan picks the channels that are requested, enabled by preference and
// reachable with the contact info on file
func (d *Dispatcher) plan(user *db.User, channels []db.Channel, req Request) []attempt {
	prefs := user.Preferences
	var attempts []attempt

	for _, c := range channels {
		switch c {
		case db.ChannelPush:
			if !prefs.Push || !present(user.PushToken) {
				continue
			}
			token := *user.PushToken
			title, body := d.renderer.Push(req.Title, req.Message)
			attempts = append(attempts, attempt{
				channel:  c,
				fallback: "push notification failed",
				send: func(ctx context.Context) (bool, error) {
					if d.channels.Push == nil {
						return false, errNotConfigured
					}
					return d.channels.Push.SendPush(ctx, token, title, body, req.Data)
				},
			})

		case db.ChannelSMS:
			if !prefs.SMS || !present(user.Phone) {
				continue
			}
			phone := *user.Phone
			text := d.renderer.SMS(req.Title, req.Message)
			attempts = append(attempts, attempt{
				channel:  c,
				fallback: "sms sending failed",
				send: func(ctx context.Context) (bool, error) {
					if d.channels.SMS == nil {
						return false, errNotConfigured
					}
					return d.channels.SMS.SendSMS(ctx, phone, text)
				},
			})

		case db.ChannelEmail:
			if !prefs.Email || !present(user.Email) {
				continue
			}
			to := *user.Email
			attempts = append(attempts, attempt{
				channel:  c,
				fallback: "email sending failed",
				send: func(ctx context.Context) (bool, error) {
					if d.channels.Email == nil {
						return false, errNotConfigured
					}
					subject, html, text, err := d.renderer.Email(req.Title, req.Message, req.ProjectID, req.Type == db.TypeReminder)
					if err != nil {
						return false, err
					}
					return d.channels.Email.SendEmail(ctx, to, subject, html, text)
				},
			})
		}
	}
	return attempts
}

// deliver runs one adapter call and records its Delivery row. Adapter errors
// and panics become FAILED deliveries.
func (d *Dispatcher) deliver(ctx context.Context, notificationID uuid.UUID, a attempt) DeliveryResult {
	start := d.now()
	ok, err := safeSend(ctx, a.send)
	latency := d.now().Sub(start)

	result := DeliveryResult{Channel: a.channel, Success: ok && err == nil}
	delivery := &db.Delivery{
		ID:             uuid.New(),
		NotificationID: notificationID,
		Channel:        a.channel,
		Status:         db.DeliverySuccess,
	}

	if result.Success {
		t := d.now()
		delivery.DeliveredAt = &t
	} else {
		detail := a.fallback
		if err != nil {
			detail = err.Error()
		}
		result.Error = detail
		delivery.Status = db.DeliveryFailed
		delivery.ErrorMessage = &detail

		d.logger.Warn("channel delivery failed",
			zap.String("notification_id", notificationID.String()),
			zap.String("channel", string(a.channel)),
			zap.String("error", detail),
		)
	}

	if err := d.store.CreateDelivery(ctx, delivery); err != nil {
		d.logger.Error("failed to record delivery",
			zap.Error(err),
			zap.String("notification_id", notificationID.String()),
			zap.String("channel", string(a.channel)),
		)
	}
	metrics.RecordDelivery(string(a.channel), delivery.Status, latency)

	return result
}

func safeSend(ctx context.Context, send func(context.Context) (bool, error)) (ok bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
			err = fmt.Errorf("adapter panic: %v", r)
		}
	}()
	return send(ctx)
}
