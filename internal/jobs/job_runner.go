package jobs

import (
	"context"
	"fmt"
	"sort"
	"time"

	"gangkeeper-backend/internal/config"
	"gangkeeper-backend/internal/domain"
	"gangkeeper-backend/internal/logger"
	"gangkeeper-backend/internal/service"
)

const (
	JobStartDueSessions     = "start_due_sessions"
	JobCloseDueSessions     = "close_due_sessions"
	JobCompleteDueTransfers = "complete_due_transfers"
	JobSyncRoles            = "sync_roles"
	JobReconcileBalances    = "reconcile_balances"
)

// GangLister is the part of the gang repository the nightly jobs need.
type GangLister interface {
	ListActive(ctx context.Context) ([]domain.Gang, error)
}

type jobFunc func(ctx context.Context) error

// JobRunner coordinates all scheduled jobs
type JobRunner struct {
	services *service.Services
	gangs    GangLister
	config   *config.Config
	now      func() time.Time
}

// NewJobRunner creates a new job runner with all dependencies
func NewJobRunner(services *service.Services, gangs GangLister, cfg *config.Config) *JobRunner {
	return &JobRunner{
		services: services,
		gangs:    gangs,
		config:   cfg,
		now:      time.Now,
	}
}

func (jr *JobRunner) Config() *config.Config {
	return jr.config
}

func (jr *JobRunner) registry() map[string]jobFunc {
	return map[string]jobFunc{
		JobStartDueSessions:     jr.startDueSessions,
		JobCloseDueSessions:     jr.closeDueSessions,
		JobCompleteDueTransfers: jr.completeDueTransfers,
		JobSyncRoles:            jr.syncRoles,
		JobReconcileBalances:    jr.reconcileBalances,
	}
}

// Names lists every job Run accepts.
func (jr *JobRunner) Names() []string {
	names := make([]string, 0, len(jr.registry()))
	for name := range jr.registry() {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Run executes one job by name.
func (jr *JobRunner) Run(ctx context.Context, name string) error {
	fn, ok := jr.registry()[name]
	if !ok {
		return fmt.Errorf("%w: unknown job %q", domain.ErrNotFound, name)
	}
	return jr.runWithRecovery(ctx, name, fn)
}

// runWithRecovery wraps job execution with panic recovery
func (jr *JobRunner) runWithRecovery(ctx context.Context, jobName string, fn jobFunc) (err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Job panicked", "job", jobName, "panic", r)
			err = fmt.Errorf("job %s panicked: %v", jobName, r)
		}
	}()

	logger.Info("Starting job", "job", jobName)
	start := time.Now()
	if err = fn(ctx); err != nil {
		logger.Error("Job failed", "job", jobName, "error", err)
		return err
	}
	logger.Info("Job completed", "job", jobName, "duration", time.Since(start))
	return nil
}

// RunAllPollers runs every time-driven transition once (for manual execution)
func (jr *JobRunner) RunAllPollers() {
	jr.StartDueSessions()
	jr.CloseDueSessions()
	jr.CompleteDueTransfers()
}

// RunAllNightlyJobs runs all nightly jobs (for manual execution)
func (jr *JobRunner) RunAllNightlyJobs() {
	jr.SyncRoles()
	jr.ReconcileBalances()
}

// The exported entry points are the cron callbacks. Failures are logged by
// runWithRecovery.

func (jr *JobRunner) StartDueSessions() {
	_ = jr.Run(context.Background(), JobStartDueSessions)
}

func (jr *JobRunner) CloseDueSessions() {
	_ = jr.Run(context.Background(), JobCloseDueSessions)
}

func (jr *JobRunner) CompleteDueTransfers() {
	_ = jr.Run(context.Background(), JobCompleteDueTransfers)
}

func (jr *JobRunner) SyncRoles() {
	_ = jr.Run(context.Background(), JobSyncRoles)
}

func (jr *JobRunner) ReconcileBalances() {
	_ = jr.Run(context.Background(), JobReconcileBalances)
}
