/**
 * @description
 * Cron scheduler setup for the maintenance jobs.
 */
package app

import (
	"log/slog"

	"github.com/robfig/cron/v3"
)

// SchedulerConfig carries the cron expressions for the maintenance jobs.
type SchedulerConfig struct {
	SessionCleanupSchedule string
	ReconcileSchedule      string
}

// Scheduler manages the cron jobs.
type Scheduler struct {
	cron   *cron.Cron
	jobs   *Jobs
	logger *slog.Logger
	config SchedulerConfig
}

// NewScheduler creates a scheduler that recovers from job panics.
func NewScheduler(jobs *Jobs, logger *slog.Logger, cfg SchedulerConfig) *Scheduler {
	cronLogger := cron.PrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelInfo))
	c := cron.New(cron.WithChain(cron.Recover(cronLogger)))

	return &Scheduler{cron: c, jobs: jobs, logger: logger, config: cfg}
}

// Start registers the jobs and starts the cron scheduler.
func (s *Scheduler) Start() {
	if _, err := s.cron.AddFunc(s.config.SessionCleanupSchedule, s.jobs.CleanupSessions); err != nil {
		s.logger.Error("failed to schedule session cleanup job", "error", err)
	} else {
		s.logger.Info("scheduled session cleanup job", "schedule", s.config.SessionCleanupSchedule)
	}

	if _, err := s.cron.AddFunc(s.config.ReconcileSchedule, s.jobs.ReconcileOptimisticActivations); err != nil {
		s.logger.Error("failed to schedule activation reconciliation job", "error", err)
	} else {
		s.logger.Info("scheduled activation reconciliation job", "schedule", s.config.ReconcileSchedule)
	}

	s.cron.Start()
}

// Stop halts the scheduler; running jobs finish.
func (s *Scheduler) Stop() {
	s.cron.Stop()
}
