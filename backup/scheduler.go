package backup

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"
)

// Scheduler runs backups at a fixed interval.
type Scheduler struct {
	runner   *Runner
	interval time.Duration
	logger   *slog.Logger
	sched    gocron.Scheduler
}

// NewScheduler creates a scheduler; call Start to begin.
func NewScheduler(runner *Runner, interval time.Duration, logger *slog.Logger) (*Scheduler, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("backup interval must be positive")
	}
	if logger == nil {
		logger = slog.Default()
	}

	sched, err := gocron.NewScheduler(gocron.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}
	return &Scheduler{runner: runner, interval: interval, logger: logger, sched: sched}, nil
}

// Start registers the backup job and starts the scheduler. The first run
// happens immediately when the last recorded backup is older than one
// interval, or missing.
func (s *Scheduler) Start(ctx context.Context) error {
	opts := []gocron.JobOption{
		gocron.WithName("backup"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	}

	last, err := s.runner.store.LastBackup(ctx)
	if err != nil {
		s.logger.Warn("Could not read last backup time", "error", err)
	}
	if last.IsZero() || s.runner.store.Now().Sub(last) >= s.interval {
		opts = append(opts, gocron.WithStartAt(gocron.WithStartImmediately()))
	}

	_, err = s.sched.NewJob(
		gocron.DurationJob(s.interval),
		gocron.NewTask(func() {
			if _, err := s.runner.Run(ctx); err != nil {
				s.logger.Error("Scheduled backup failed", "error", err)
			}
		}),
		opts...,
	)
	if err != nil {
		return fmt.Errorf("schedule backup: %w", err)
	}

	s.sched.Start()
	s.logger.Info("Backup scheduler started", "interval", s.interval, "last_backup", last)
	return nil
}

// Stop shuts the scheduler down, waiting for a running backup to finish.
func (s *Scheduler) Stop() error {
	return s.sched.Shutdown()
}
