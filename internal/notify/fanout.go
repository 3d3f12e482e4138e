package notify

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/lalithlochan/quorum/internal/db"
)

// Directory is the user lookup the fan-out helpers need
type Directory interface {
	GetUser(ctx context.Context, id uuid.UUID) (*db.User, error)
	ListActiveUsersByRole(ctx context.Context, role string) ([]*db.User, error)
}

// Sender is satisfied by *Dispatcher
type Sender interface {
	Dispatch(ctx context.Context, req Request) (*Result, error)
}

// Report summarises one fan-out
type Report struct {
	Recipients int
	Sent       int // notifications finalized as SENT
	Failed     int // FAILED notifications plus dispatch errors
}

// Notifier computes recipient sets and message text for each project event
// and dispatches once per recipient
type Notifier struct {
	sender      Sender
	directory   Directory
	concurrency int
	logger      *zap.Logger
}

func NewNotifier(sender Sender, directory Directory, concurrency int, logger *zap.Logger) *Notifier {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Notifier{
		sender:      sender,
		directory:   directory,
		concurrency: concurrency,
		logger:      logger,
	}
}

// fanout dispatches to every recipient, settling all: one recipient's failure
// never stops the others
func (n *Notifier) fanout(ctx context.Context, kind string, recipients []uuid.UUID, build func(userID uuid.UUID) Request) Report {
	var sent, failed atomic.Int32

	var g errgroup.Group
	g.SetLimit(n.concurrency)

	for _, userID := range recipients {
		userID := userID
		g.Go(func() error {
			res, err := n.sender.Dispatch(ctx, build(userID))
			switch {
			case err != nil:
				failed.Add(1)
				n.logger.Error("fan-out dispatch failed",
					zap.Error(err),
					zap.String("kind", kind),
					zap.String("user_id", userID.String()),
				)
			case res.Status == db.StatusSent:
				sent.Add(1)
			default:
				failed.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	report := Report{Recipients: len(recipients), Sent: int(sent.Load()), Failed: int(failed.Load())}
	n.logger.Info("fan-out complete",
		zap.String("kind", kind),
		zap.Int("recipients", report.Recipients),
		zap.Int("sent", report.Sent),
		zap.Int("failed", report.Failed),
	)
	return report
}

func projectData(projectID uuid.UUID, action string) map[string]string {
	return map[string]string{"projectId": projectID.String(), "action": action}
}

// NotifyProjectSubmitted tells every active standard user except the creator
// about a new project
func (n *Notifier) NotifyProjectSubmitted(ctx context.Context, projectID uuid.UUID, title string, creatorID uuid.UUID, creatorName string) (Report, error) {
	users, err := n.directory.ListActiveUsersByRole(ctx, db.RoleUser)
	if err != nil {
		return Report{}, fmt.Errorf("list reviewers: %w", err)
	}

	recipients := make([]uuid.UUID, 0, len(users))
	for _, u := range users {
		if u.ID != creatorID {
			recipients = append(recipients, u.ID)
		}
	}

	return n.fanout(ctx, "submitted", recipients, func(userID uuid.UUID) Request {
		return Request{
			UserID:    userID,
			ProjectID: &projectID,
			Type:      db.TypeProjectSubmitted,
			Title:     "New Project: " + title,
			Message:   fmt.Sprintf("%s has submitted a new project for your review. Check it out and accept if you're interested!", creatorName),
			Data:      projectData(projectID, "view_project"),
		}
	}), nil
}

// NotifyProjectAccepted tells the creator that someone accepted
func (n *Notifier) NotifyProjectAccepted(ctx context.Context, projectID uuid.UUID, title string, accepterID uuid.UUID, accepterName string, creatorID uuid.UUID) (Report, error) {
	return n.fanout(ctx, "accepted", []uuid.UUID{creatorID}, func(userID uuid.UUID) Request {
		data := projectData(projectID, "view_acceptances")
		data["acceptedBy"] = accepterID.String()
		return Request{
			UserID:    userID,
			ProjectID: &projectID,
			Type:      db.TypeProjectAccepted,
			Title:     "Project Accepted: " + title,
			Message:   fmt.Sprintf("%s has accepted your project %q. View the project details to see all acceptances.", accepterName, title),
			Data:      data,
		}
	}), nil
}

// NotifyProjectApproved tells the creator the approval threshold was reached
func (n *Notifier) NotifyProjectApproved(ctx context.Context, projectID uuid.UUID, title string, creatorID uuid.UUID) (Report, error) {
	return n.fanout(ctx, "approved", []uuid.UUID{creatorID}, func(userID uuid.UUID) Request {
		return Request{
			UserID:    userID,
			ProjectID: &projectID,
			Type:      db.TypeProjectAccepted,
			Title:     "Project Approved: " + title,
			Message:   fmt.Sprintf("Great news! Your project %q has received enough acceptances and is now approved. You can assign it to a user.", title),
			Data:      projectData(projectID, "assign_project"),
		}
	}), nil
}

// NotifyProjectAssigned tells the assignee
func (n *Notifier) NotifyProjectAssigned(ctx context.Context, projectID uuid.UUID, title string, assigneeID uuid.UUID, assignedByName string) (Report, error) {
	return n.fanout(ctx, "assigned", []uuid.UUID{assigneeID}, func(userID uuid.UUID) Request {
		return Request{
			UserID:    userID,
			ProjectID: &projectID,
			Type:      db.TypeProjectAssigned,
			Title:     "Project Assigned: " + title,
			Message:   fmt.Sprintf("Congratulations! %s has assigned the project %q to you. Check the project details to get started.", assignedByName, title),
			Data:      projectData(projectID, "view_assigned_project"),
		}
	}), nil
}

// NotifyProjectDeclined tells acceptors who were not picked
func (n *Notifier) NotifyProjectDeclined(ctx context.Context, projectID uuid.UUID, title string, userIDs []uuid.UUID) (Report, error) {
	return n.fanout(ctx, "declined", userIDs, func(userID uuid.UUID) Request {
		return Request{
			UserID:    userID,
			ProjectID: &projectID,
			Type:      db.TypeProjectDeclined,
			Title:     "Project Update: " + title,
			Message:   fmt.Sprintf("The project %q has been assigned to another user. Thank you for your interest!", title),
			Data:      projectData(projectID, "view_projects"),
		}
	}), nil
}

// NotifyProjectDeleted tells acceptors and the assignee
func (n *Notifier) NotifyProjectDeleted(ctx context.Context, projectID uuid.UUID, title string, userIDs []uuid.UUID) (Report, error) {
	return n.fanout(ctx, "deleted", userIDs, func(userID uuid.UUID) Request {
		return Request{
			UserID:    userID,
			ProjectID: &projectID,
			Type:      db.TypeProjectDeleted,
			Title:     "Project Deleted: " + title,
			Message:   fmt.Sprintf("The project %q has been deleted by the admin.", title),
			Data:      projectData(projectID, "view_projects"),
		}
	}), nil
}

// SendProjectReminder nudges users who have not reviewed a stale project.
// Stamping the project is left to the caller.
func (n *Notifier) SendProjectReminder(ctx context.Context, projectID uuid.UUID, title string, userIDs []uuid.UUID) (Report, error) {
	return n.fanout(ctx, "reminder", userIDs, func(userID uuid.UUID) Request {
		return Request{
			UserID:    userID,
			ProjectID: &projectID,
			Type:      db.TypeReminder,
			Title:     "Reminder: Review " + title,
			Message:   fmt.Sprintf("Don't forget! The project %q is still awaiting your review and approval.", title),
			Data:      projectData(projectID, "review_project"),
		}
	}), nil
}
