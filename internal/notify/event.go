package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// EventKind names a project transition that triggers fan-out
type EventKind string

const (
	EventSubmitted EventKind = "submitted"
	EventAccepted  EventKind = "accepted"
	EventApproved  EventKind = "approved"
	EventAssigned  EventKind = "assigned"
	EventDeclined  EventKind = "declined"
	EventDeleted   EventKind = "deleted"
)

// Event is a committed project transition, serialisable so it can travel
// through a queue as well as a goroutine
type Event struct {
	Kind         EventKind   `json:"kind"`
	ProjectID    uuid.UUID   `json:"project_id"`
	ProjectTitle string      `json:"project_title"`
	CreatorID    uuid.UUID   `json:"creator_id"`
	ActorID      uuid.UUID   `json:"actor_id"`
	ActorName    string      `json:"actor_name,omitempty"`
	Recipients   []uuid.UUID `json:"recipients,omitempty"`
	OccurredAt   time.Time   `json:"occurred_at"`
}

// Publisher hands events to whatever executes the fan-out
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// EventHandler executes one event
type EventHandler interface {
	HandleEvent(ctx context.Context, ev Event) error
}

const unknownActor = "A user"

// actorName resolves the display name lazily so the mutating call never
// waits on a directory lookup
func (n *Notifier) actorName(ctx context.Context, ev Event) string {
	if ev.ActorName != "" {
		return ev.ActorName
	}
	u, err := n.directory.GetUser(ctx, ev.ActorID)
	if err != nil || u.Name == "" {
		n.logger.Debug("actor name unavailable",
			zap.String("actor_id", ev.ActorID.String()),
			zap.Error(err),
		)
		return unknownActor
	}
	return u.Name
}

// HandleEvent runs the fan-out for ev
func (n *Notifier) HandleEvent(ctx context.Context, ev Event) error {
	var err error

	switch ev.Kind {
	case EventSubmitted:
		_, err = n.NotifyProjectSubmitted(ctx, ev.ProjectID, ev.ProjectTitle, ev.CreatorID, n.actorName(ctx, ev))
	case EventAccepted:
		_, err = n.NotifyProjectAccepted(ctx, ev.ProjectID, ev.ProjectTitle, ev.ActorID, n.actorName(ctx, ev), ev.CreatorID)
	case EventApproved:
		_, err = n.NotifyProjectApproved(ctx, ev.ProjectID, ev.ProjectTitle, ev.CreatorID)
	case EventAssigned:
		if len(ev.Recipients) == 0 {
			return fmt.Errorf("assigned event for project %s has no assignee", ev.ProjectID)
		}
		_, err = n.NotifyProjectAssigned(ctx, ev.ProjectID, ev.ProjectTitle, ev.Recipients[0], n.actorName(ctx, ev))
	case EventDeclined:
		_, err = n.NotifyProjectDeclined(ctx, ev.ProjectID, ev.ProjectTitle, ev.Recipients)
	case EventDeleted:
		_, err = n.NotifyProjectDeleted(ctx, ev.ProjectID, ev.ProjectTitle, ev.Recipients)
	default:
		return fmt.Errorf("unknown event kind %q", ev.Kind)
	}

	if err != nil {
		return fmt.Errorf("handle %s event for project %s: %w", ev.Kind, ev.ProjectID, err)
	}
	return nil
}
