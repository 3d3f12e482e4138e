package notify

import (
	"context"
	"time"

	"go.uber.org/zap"
)

type JanitorConfig struct {
	Interval      time.Duration
	RetentionDays int
}

// Janitor periodically removes old read notifications
type Janitor struct {
	inbox  *Inbox
	config JanitorConfig
	logger *zap.Logger
}

func NewJanitor(inbox *Inbox, cfg JanitorConfig, logger *zap.Logger) *Janitor {
	if cfg.Interval == 0 {
		cfg.Interval = 24 * time.Hour
	}
	if cfg.RetentionDays == 0 {
		cfg.RetentionDays = 90
	}
	return &Janitor{inbox: inbox, config: cfg, logger: logger}
}

// Run blocks until ctx is cancelled
func (j *Janitor) Run(ctx context.Context) {
	ticker := time.NewTicker(j.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			j.logger.Info("notification janitor stopping")
			return
		case <-ticker.C:
			j.sweep(ctx)
		}
	}
}

func (j *Janitor) sweep(ctx context.Context) {
	deleted, err := j.inbox.CleanupOld(ctx, j.config.RetentionDays)
	if err != nil {
		j.logger.Error("notification cleanup failed", zap.Error(err))
		return
	}
	if deleted > 0 {
		j.logger.Info("old notifications removed",
			zap.Int64("deleted", deleted),
			zap.Int("retention_days", j.config.RetentionDays),
		)
	}
}
