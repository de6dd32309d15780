package scheduler

import (
	"testing"

	"gangkeeper-backend/internal/config"
	"gangkeeper-backend/internal/jobs"
	"gangkeeper-backend/internal/repository/memory"
	"gangkeeper-backend/internal/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRunner(t *testing.T, sched config.SchedulerConfig) *jobs.JobRunner {
	t.Helper()
	store := memory.NewStore()
	svc := service.New(store, service.Options{}, nil, nil)
	return jobs.NewJobRunner(svc, store.Repos().Gangs, &config.Config{Scheduler: sched})
}

func TestScheduler_RegistersConfiguredJobs(t *testing.T) {
	s := NewScheduler(newRunner(t, config.SchedulerConfig{
		StartDueSessions:     "@every 30s",
		CloseDueSessions:     "@every 30s",
		CompleteDueTransfers: "@every 1m",
		SyncRoles:            "0 0 */6 * * *",
		ReconcileBalances:    "0 30 3 * * *",
	}))
	assert.Equal(t, 5, s.registered)
	assert.True(t, s.IsRunning())

	s.Start()
	s.Stop()
}

func TestScheduler_SkipsBadSpecs(t *testing.T) {
	s := NewScheduler(newRunner(t, config.SchedulerConfig{
		StartDueSessions: "@every 30s",
		CloseDueSessions: "not a cron spec",
	}))
	require.Equal(t, 1, s.registered)
	assert.Len(t, s.cron.Entries(), 1)
}
