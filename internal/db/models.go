package db

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ProjectStatus is the approval lifecycle state of a project
type ProjectStatus string

const (
	ProjectPending  ProjectStatus = "PENDING"
	ProjectApproved ProjectStatus = "APPROVED"
	ProjectAssigned ProjectStatus = "ASSIGNED"
	ProjectDeleted  ProjectStatus = "DELETED"
)

// Valid reports whether s is a known project status
func (s ProjectStatus) Valid() bool {
	switch s {
	case ProjectPending, ProjectApproved, ProjectAssigned, ProjectDeleted:
		return true
	}
	return false
}

// Project is a proposal collecting approvals
type Project struct {
	ID                uuid.UUID       `json:"id"`
	Title             string          `json:"title"`
	Description       string          `json:"description"`
	ProposedAmount    decimal.Decimal `json:"proposed_amount"`
	RequiredApprovals int             `json:"required_approvals"`
	CurrentApprovals  int             `json:"current_approvals"`
	Status            ProjectStatus   `json:"status"`
	CreatedByID       uuid.UUID       `json:"created_by_id"`
	AssignedToID      *uuid.UUID      `json:"assigned_to_id,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
	DeletedAt         *time.Time      `json:"deleted_at,omitempty"`
	ReminderSentAt    *time.Time      `json:"reminder_sent_at,omitempty"`
}

// IsDeleted reports whether the project was soft-deleted
func (p *Project) IsDeleted() bool {
	return p.DeletedAt != nil || p.Status == ProjectDeleted
}

// Acceptance is one user's approval of one project
type Acceptance struct {
	ID         uuid.UUID `json:"id"`
	ProjectID  uuid.UUID `json:"project_id"`
	UserID     uuid.UUID `json:"user_id"`
	Notes      *string   `json:"notes,omitempty"`
	AcceptedAt time.Time `json:"accepted_at"`
}

// AcceptOutcome is what the atomic accept primitive reports back
type AcceptOutcome struct {
	Acceptance *Acceptance
	Project    *Project
	// JustApproved is true only for the acceptance whose increment moved the
	// project from PENDING to APPROVED.
	JustApproved bool
}

// ProjectFilter narrows project listings
type ProjectFilter struct {
	Status         ProjectStatus
	CreatedByID    *uuid.UUID
	AssignedToID   *uuid.UUID
	IncludeDeleted bool
}

// ProjectPatch holds the mutable fields of a project; nil means unchanged
type ProjectPatch struct {
	Title             *string          `json:"title,omitempty"`
	Description       *string          `json:"description,omitempty"`
	ProposedAmount    *decimal.Decimal `json:"proposed_amount,omitempty"`
	RequiredApprovals *int             `json:"required_approvals,omitempty"`
}

// Empty reports whether the patch changes nothing
func (p ProjectPatch) Empty() bool {
	return p.Title == nil && p.Description == nil && p.ProposedAmount == nil && p.RequiredApprovals == nil
}

// ProjectCounts are the per-status totals of non-deleted projects
type ProjectCounts struct {
	Total    int `json:"total"`
	Pending  int `json:"pending"`
	Approved int `json:"approved"`
	Assigned int `json:"assigned"`
	Deleted  int `json:"deleted"`
}

// Role constants
const (
	RoleAdmin = "ADMIN"
	RoleUser  = "USER"
)

// User is the directory view of an account
type User struct {
	ID          uuid.UUID   `json:"id"`
	Name        string      `json:"name"`
	Email       *string     `json:"email,omitempty"`
	Phone       *string     `json:"phone,omitempty"`
	PushToken   *string     `json:"-"`
	Role        string      `json:"role"`
	Active      bool        `json:"active"`
	Preferences Preferences `json:"notification_preferences"`
}

// IsAdmin reports whether the user carries admin capability
func (u *User) IsAdmin() bool {
	return u != nil && u.Role == RoleAdmin
}

// Preferences are the per-channel opt-ins of a user
type Preferences struct {
	Push  bool `json:"push"`
	SMS   bool `json:"sms"`
	Email bool `json:"email"`
	InApp bool `json:"inApp"`
}

// DefaultPreferences enables every channel
func DefaultPreferences() Preferences {
	return Preferences{Push: true, SMS: true, Email: true, InApp: true}
}

type storedPreferences struct {
	Push  *bool `json:"push"`
	SMS   *bool `json:"sms"`
	Email *bool `json:"email"`
	InApp *bool `json:"inApp"`
}

// ResolvePreferences decodes the stored preference document. Missing
// documents, missing fields and undecodable documents resolve to true.
func ResolvePreferences(raw []byte) Preferences {
	prefs := DefaultPreferences()
	if len(raw) == 0 {
		return prefs
	}

	var stored storedPreferences
	if err := json.Unmarshal(raw, &stored); err != nil {
		return prefs
	}

	if stored.Push != nil {
		prefs.Push = *stored.Push
	}
	if stored.SMS != nil {
		prefs.SMS = *stored.SMS
	}
	if stored.Email != nil {
		prefs.Email = *stored.Email
	}
	if stored.InApp != nil {
		prefs.InApp = *stored.InApp
	}
	return prefs
}

// NotificationType classifies a fan-out event
type NotificationType string

const (
	TypeProjectSubmitted NotificationType = "PROJECT_SUBMITTED"
	TypeProjectAccepted  NotificationType = "PROJECT_ACCEPTED"
	TypeProjectAssigned  NotificationType = "PROJECT_ASSIGNED"
	TypeProjectDeclined  NotificationType = "PROJECT_DECLINED"
	TypeProjectDeleted   NotificationType = "PROJECT_DELETED"
	TypeReminder         NotificationType = "REMINDER"
)

// NotificationStatus constants
const (
	StatusPending = "PENDING"
	StatusSent    = "SENT"
	StatusFailed  = "FAILED"
)

// Channel is a delivery channel
type Channel string

const (
	ChannelPush  Channel = "PUSH"
	ChannelSMS   Channel = "SMS"
	ChannelEmail Channel = "EMAIL"
)

// DefaultChannels is used when a dispatch request names none
var DefaultChannels = []Channel{ChannelPush, ChannelSMS, ChannelEmail}

// Delivery status constants
const (
	DeliverySuccess = "SUCCESS"
	DeliveryFailed  = "FAILED"
)

// Notification is one fan-out event for one recipient
type Notification struct {
	ID        uuid.UUID        `json:"id"`
	UserID    uuid.UUID        `json:"user_id"`
	ProjectID *uuid.UUID       `json:"project_id,omitempty"`
	Type      NotificationType `json:"type"`
	Title     string           `json:"title"`
	Message   string           `json:"message"`
	Channels  []Channel        `json:"channels"`
	Status    string           `json:"status"`
	IsRead    bool             `json:"is_read"`
	CreatedAt time.Time        `json:"created_at"`
	SentAt    *time.Time       `json:"sent_at,omitempty"`
	ReadAt    *time.Time       `json:"read_at,omitempty"`

	Deliveries []*Delivery `json:"deliveries,omitempty"`
}

// Delivery is one channel attempt belonging to a notification
type Delivery struct {
	ID             uuid.UUID  `json:"id"`
	NotificationID uuid.UUID  `json:"notification_id"`
	Channel        Channel    `json:"channel"`
	Status         string     `json:"status"`
	ErrorMessage   *string    `json:"error_message,omitempty"`
	DeliveredAt    *time.Time `json:"delivered_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}
