package scheduler

import (
	"time"

	"gangkeeper-backend/internal/jobs"
	"gangkeeper-backend/internal/logger"

	"github.com/robfig/cron/v3"
)

// Scheduler manages cron job scheduling
type Scheduler struct {
	cron       *cron.Cron
	jobs       *jobs.JobRunner
	registered int
}

// NewScheduler creates a new scheduler with the provided job runner
func NewScheduler(jobRunner *jobs.JobRunner) *Scheduler {
	// Create cron with UTC timezone and seconds precision
	c := cron.New(
		cron.WithLocation(time.UTC),
		cron.WithSeconds(),
	)

	s := &Scheduler{
		cron: c,
		jobs: jobRunner,
	}

	s.registerJobs()
	return s
}

// registerJobs registers all scheduled jobs with the cron scheduler
func (s *Scheduler) registerJobs() {
	cfg := s.jobs.Config().Scheduler

	entries := []struct {
		name string
		spec string
		fn   func()
	}{
		// Pollers
		{jobs.JobStartDueSessions, cfg.StartDueSessions, s.jobs.StartDueSessions},
		{jobs.JobCloseDueSessions, cfg.CloseDueSessions, s.jobs.CloseDueSessions},
		{jobs.JobCompleteDueTransfers, cfg.CompleteDueTransfers, s.jobs.CompleteDueTransfers},

		// Periodic maintenance
		{jobs.JobSyncRoles, cfg.SyncRoles, s.jobs.SyncRoles},
		{jobs.JobReconcileBalances, cfg.ReconcileBalances, s.jobs.ReconcileBalances},
	}

	for _, e := range entries {
		if e.spec == "" {
			logger.Warn("Job has no schedule, skipping", "job", e.name)
			continue
		}
		if _, err := s.cron.AddFunc(e.spec, e.fn); err != nil {
			logger.Error("Failed to register job", "job", e.name, "spec", e.spec, "error", err)
			continue
		}
		s.registered++
	}

	logger.Info("Cron jobs registered", "count", s.registered)
}

// Start begins the cron scheduler
func (s *Scheduler) Start() {
	logger.Info("Starting cron scheduler...")
	s.cron.Start()
	logger.Info("Cron scheduler started successfully")
}

// Stop gracefully stops the cron scheduler
func (s *Scheduler) Stop() {
	logger.Info("Stopping cron scheduler...")
	ctx := s.cron.Stop()
	<-ctx.Done()
	logger.Info("Cron scheduler stopped")
}

// IsRunning returns true if the scheduler has jobs to run
func (s *Scheduler) IsRunning() bool {
	return len(s.cron.Entries()) > 0
}
