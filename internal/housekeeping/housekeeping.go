// Package housekeeping runs periodic cleanup against the credential store.
// Expired OTPs and reset tokens are already unusable; purging them only
// bounds table growth.
package housekeeping

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Purger deletes verification and reset rows that expired at or before now.
type Purger interface {
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
}

// DefaultSchedule runs the purge every fifteen minutes.
const DefaultSchedule = "@every 15m"

type Scheduler struct {
	cron    *cron.Cron
	purger  Purger
	logger  *slog.Logger
	now     func() time.Time
	timeout time.Duration
}

func NewScheduler(purger Purger, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	cronLogger := cron.PrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelInfo))
	return &Scheduler{
		cron:    cron.New(cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger))),
		purger:  purger,
		logger:  logger,
		now:     time.Now,
		timeout: time.Minute,
	}
}

// Start registers the purge job on schedule and starts the scheduler.
func (s *Scheduler) Start(schedule string) error {
	if schedule == "" {
		schedule = DefaultSchedule
	}
	if _, err := s.cron.AddFunc(schedule, s.RunOnce); err != nil {
		return fmt.Errorf("schedule purge job %q: %w", schedule, err)
	}
	s.logger.Info("scheduled expired token purge", "schedule", schedule)
	s.cron.Start()
	return nil
}

// RunOnce purges expired rows now.
func (s *Scheduler) RunOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	start := time.Now()
	n, err := s.purger.PurgeExpired(ctx, s.now())
	if err != nil {
		s.logger.Error("expired token purge failed", "error", err)
		return
	}
	s.logger.Info("expired token purge finished",
		"deleted", n,
		"duration_ms", time.Since(start).Milliseconds(),
	)
}

// Stop stops scheduling and returns a context that is done once running
// jobs finish.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}
