// Package reminder re-notifies reviewers about projects that have sat in
// PENDING longer than the configured threshold.
package reminder

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/lalithlochan/quorum/internal/db"
	"github.com/lalithlochan/quorum/internal/metrics"
	"github.com/lalithlochan/quorum/internal/notify"
)

// Store is the project state the scheduler reads, plus the one field it writes
type Store interface {
	ListProjectsNeedingReminder(ctx context.Context, cutoff time.Time) ([]*db.Project, error)
	ListAcceptanceUserIDs(ctx context.Context, projectID uuid.UUID) ([]uuid.UUID, error)
	MarkReminderSent(ctx context.Context, id uuid.UUID, at time.Time) error
	CountPendingProjects(ctx context.Context) (int, error)
	CountProjectsNeedingReminder(ctx context.Context, cutoff time.Time) (int, error)
	CountRemindedSince(ctx context.Context, since time.Time) (int, error)
}

// Directory lists the users who review projects
type Directory interface {
	ListActiveUsersByRole(ctx context.Context, role string) ([]*db.User, error)
}

// Reminder sends the reminder fan-out; *notify.Notifier satisfies it
type Reminder interface {
	SendProjectReminder(ctx context.Context, projectID uuid.UUID, title string, userIDs []uuid.UUID) (notify.Report, error)
}

type Config struct {
	ThresholdDays int
	Schedule      string
}

// PassResult summarises one reminder pass
type PassResult struct {
	Selected int `json:"selected"`
	Reminded int `json:"reminded"`
	Skipped  int `json:"skipped"`
	Failed   int `json:"failed"`
}

// Stats is reported by the admin endpoint
type Stats struct {
	ThresholdDays int    `json:"threshold_days"`
	Schedule      string `json:"schedule"`
	Running       bool   `json:"is_running"`
	Counts        Counts `json:"stats"`
}

type Counts struct {
	PendingTotal           int `json:"pending_total"`
	PendingNeedingReminder int `json:"pending_needing_reminder"`
	RemindedToday          int `json:"reminded_today"`
}

// Candidate is a project the next pass would remind about
type Candidate struct {
	*db.Project
	DaysOld               int  `json:"days_old"`
	DaysSinceLastReminder *int `json:"days_since_last_reminder"`
}

// Scheduler runs reminder passes on a cron schedule. Passes are not locked
// against each other; a manual trigger may overlap a scheduled one.
type Scheduler struct {
	store     Store
	directory Directory
	reminder  Reminder
	config    Config
	logger    *zap.Logger
	now       func() time.Time

	mu   sync.Mutex
	cron *cron.Cron
}

func NewScheduler(store Store, directory Directory, reminder Reminder, cfg Config, logger *zap.Logger) (*Scheduler, error) {
	if cfg.ThresholdDays < 1 {
		return nil, fmt.Errorf("reminder threshold must be at least 1 day, got %d", cfg.ThresholdDays)
	}
	if cfg.Schedule == "" {
		cfg.Schedule = "0 9 * * *"
	}
	if _, err := cron.ParseStandard(cfg.Schedule); err != nil {
		return nil, fmt.Errorf("parse reminder schedule %q: %w", cfg.Schedule, err)
	}

	return &Scheduler{
		store:     store,
		directory: directory,
		reminder:  reminder,
		config:    cfg,
		logger:    logger,
		now:       time.Now,
	}, nil
}

// Start begins scheduled passes. Starting a running scheduler only warns.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron != nil {
		s.logger.Warn("reminder scheduler already running")
		return nil
	}

	c := cron.New(cron.WithChain(cron.Recover(cron.PrintfLogger(zap.NewStdLog(s.logger)))))
	_, err := c.AddFunc(s.config.Schedule, func() {
		if _, err := s.RunPass(context.Background()); err != nil {
			s.logger.Error("scheduled reminder pass failed", zap.Error(err))
		}
	})
	if err != nil {
		return fmt.Errorf("schedule reminders: %w", err)
	}
	c.Start()
	s.cron = c

	s.logger.Info("reminder scheduler started",
		zap.String("schedule", s.config.Schedule),
		zap.Int("threshold_days", s.config.ThresholdDays),
	)
	return nil
}

// Stop prevents future passes. The returned context is done once an
// in-flight pass has finished; stopping an idle scheduler is a no-op.
func (s *Scheduler) Stop() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron == nil {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		return ctx
	}
	done := s.cron.Stop()
	s.cron = nil
	s.logger.Info("reminder scheduler stopped")
	return done
}

// Running reports whether scheduled passes are active
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cron != nil
}

// TriggerManually runs one pass synchronously, outside the schedule
func (s *Scheduler) TriggerManually(ctx context.Context) (PassResult, error) {
	s.logger.Info("manually triggering reminder pass")
	return s.RunPass(ctx)
}

func (s *Scheduler) cutoff() time.Time {
	return s.now().AddDate(0, 0, -s.config.ThresholdDays)
}

// RunPass reminds about every stale project. A failure on one project is
// logged and the pass moves on; only failing to load the batch is returned.
func (s *Scheduler) RunPass(ctx context.Context) (PassResult, error) {
	var result PassResult
	start := s.now()

	projects, err := s.store.ListProjectsNeedingReminder(ctx, s.cutoff())
	if err != nil {
		metrics.RecordReminderPass("error")
		return result, fmt.Errorf("list projects needing reminder: %w", err)
	}
	result.Selected = len(projects)
	if len(projects) == 0 {
		metrics.RecordReminderPass("ok")
		s.logger.Info("no projects requiring reminders")
		return result, nil
	}

	reviewers, err := s.directory.ListActiveUsersByRole(ctx, db.RoleUser)
	if err != nil {
		metrics.RecordReminderPass("error")
		return result, fmt.Errorf("list reviewers: %w", err)
	}

	for _, p := range projects {
		sent, err := s.safeRemind(ctx, p, reviewers)
		switch {
		case err != nil:
			result.Failed++
			s.logger.Error("failed to send project reminders",
				zap.Error(err),
				zap.String("project_id", p.ID.String()),
			)
		case sent:
			result.Reminded++
		default:
			result.Skipped++
		}
	}

	outcome := "ok"
	if result.Failed > 0 {
		outcome = "partial"
	}
	metrics.RecordReminderPass(outcome)

	s.logger.Info("reminder pass complete",
		zap.Int("selected", result.Selected),
		zap.Int("reminded", result.Reminded),
		zap.Int("skipped", result.Skipped),
		zap.Int("failed", result.Failed),
		zap.Duration("took", s.now().Sub(start)),
	)
	return result, nil
}

// safeRemind turns a panic while reminding about one project into an error
// so the rest of the batch still runs
func (s *Scheduler) safeRemind(ctx context.Context, p *db.Project, reviewers []*db.User) (sent bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			sent = false
			err = fmt.Errorf("reminder panic: %v", r)
		}
	}()
	return s.remindProject(ctx, p, reviewers)
}

// remindProject fans a reminder out to reviewers who are neither the creator
// nor an acceptor, then stamps the project. An empty set changes nothing.
func (s *Scheduler) remindProject(ctx context.Context, p *db.Project, reviewers []*db.User) (bool, error) {
	accepted, err := s.store.ListAcceptanceUserIDs(ctx, p.ID)
	if err != nil {
		return false, err
	}
	exclude := make(map[uuid.UUID]bool, len(accepted)+1)
	exclude[p.CreatedByID] = true
	for _, id := range accepted {
		exclude[id] = true
	}

	var recipients []uuid.UUID
	for _, u := range reviewers {
		if !exclude[u.ID] {
			recipients = append(recipients, u.ID)
		}
	}
	if len(recipients) == 0 {
		s.logger.Info("no users to remind",
			zap.String("project_id", p.ID.String()),
		)
		return false, nil
	}

	report, err := s.reminder.SendProjectReminder(ctx, p.ID, p.Title, recipients)
	if err != nil {
		return false, err
	}
	if err := s.store.MarkReminderSent(ctx, p.ID, s.now()); err != nil {
		return false, fmt.Errorf("stamp reminder: %w", err)
	}
	metrics.RecordReminderSent()

	s.logger.Info("sent project reminders",
		zap.String("project_id", p.ID.String()),
		zap.Int("recipients", report.Recipients),
		zap.Int("sent", report.Sent),
		zap.Int("days_old", daysSince(s.now(), p.CreatedAt)),
	)
	return true, nil
}

// GetStats reports the configuration and current reminder counts
func (s *Scheduler) GetStats(ctx context.Context) (*Stats, error) {
	now := s.now()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	pending, err := s.store.CountPendingProjects(ctx)
	if err != nil {
		return nil, err
	}
	needing, err := s.store.CountProjectsNeedingReminder(ctx, s.cutoff())
	if err != nil {
		return nil, err
	}
	today, err := s.store.CountRemindedSince(ctx, midnight)
	if err != nil {
		return nil, err
	}

	return &Stats{
		ThresholdDays: s.config.ThresholdDays,
		Schedule:      s.config.Schedule,
		Running:       s.Running(),
		Counts: Counts{
			PendingTotal:           pending,
			PendingNeedingReminder: needing,
			RemindedToday:          today,
		},
	}, nil
}

// ListProjectsNeedingReminder returns what the next pass would select,
// oldest first
func (s *Scheduler) ListProjectsNeedingReminder(ctx context.Context) ([]Candidate, error) {
	projects, err := s.store.ListProjectsNeedingReminder(ctx, s.cutoff())
	if err != nil {
		return nil, err
	}

	now := s.now()
	out := make([]Candidate, 0, len(projects))
	for _, p := range projects {
		c := Candidate{Project: p, DaysOld: daysSince(now, p.CreatedAt)}
		if p.ReminderSentAt != nil {
			d := daysSince(now, *p.ReminderSentAt)
			c.DaysSinceLastReminder = &d
		}
		out = append(out, c)
	}
	return out, nil
}

func daysSince(now, t time.Time) int {
	d := now.Sub(t)
	if d < 0 {
		d = -d
	}
	return int(d / (24 * time.Hour))
}
