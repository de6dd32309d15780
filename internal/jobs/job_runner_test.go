package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"gangkeeper-backend/internal/config"
	"gangkeeper-backend/internal/domain"
	"gangkeeper-backend/internal/repository/memory"
	"gangkeeper-backend/internal/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type jobFixture struct {
	ctx    context.Context
	store  *memory.Store
	svc    *service.Services
	runner *JobRunner
	gang   *domain.Gang
	owner  domain.Actor
}

func newJobFixture(t *testing.T) *jobFixture {
	t.Helper()
	ctx := context.Background()
	store := memory.NewStore()
	svc := service.New(store, service.Options{MaxAmount: 10_000, StaleClosingAfter: time.Minute}, nil, nil)

	owner := domain.UserActor("owner")
	gang := &domain.Gang{Name: "Crew", PenaltyAmount: 10}
	_, err := svc.Membership.CreateGang(ctx, owner, gang, "Boss")
	require.NoError(t, err)

	return &jobFixture{
		ctx:    ctx,
		store:  store,
		svc:    svc,
		runner: NewJobRunner(svc, store.Repos().Gangs, &config.Config{}),
		gang:   gang,
		owner:  owner,
	}
}

func TestJobRunner_UnknownJob(t *testing.T) {
	f := newJobFixture(t)
	err := f.runner.Run(f.ctx, "feed_the_cat")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Equal(t, []string{
		JobCloseDueSessions, JobCompleteDueTransfers, JobReconcileBalances, JobStartDueSessions, JobSyncRoles,
	}, f.runner.Names())
}

func TestJobRunner_RecoversPanics(t *testing.T) {
	f := newJobFixture(t)
	err := f.runner.runWithRecovery(f.ctx, "boom", func(context.Context) error { panic("kaboom") })
	assert.ErrorContains(t, err, "kaboom")

	want := errors.New("plain failure")
	assert.Equal(t, want, f.runner.runWithRecovery(f.ctx, "fail", func(context.Context) error { return want }))
}

func TestJobRunner_SessionPollers(t *testing.T) {
	f := newJobFixture(t)
	start := time.Now().Add(-time.Hour)
	session, err := f.svc.Attendance.Create(f.ctx, f.owner, f.gang.ID, "Raid", start, start.Add(30*time.Minute))
	require.NoError(t, err)

	require.NoError(t, f.runner.Run(f.ctx, JobStartDueSessions))
	got, err := f.store.Repos().Attendance.GetSession(f.ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SessionStatusActive, got.Status)

	require.NoError(t, f.runner.Run(f.ctx, JobCloseDueSessions))
	got, err = f.store.Repos().Attendance.GetSession(f.ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SessionStatusClosed, got.Status)

	gang, err := f.store.Repos().Gangs.GetByID(f.ctx, f.gang.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), gang.Balance, "penalties only move member balances")

	owner, err := f.store.Repos().Members.GetByExternalID(f.ctx, f.gang.ID, "owner")
	require.NoError(t, err)
	assert.Equal(t, int64(-10), owner.Balance)
}

func TestJobRunner_CompleteDueTransfers(t *testing.T) {
	f := newJobFixture(t)
	_, err := f.svc.Transfers.Start(f.ctx, f.owner, f.gang.ID, time.Now().Add(time.Hour))
	require.NoError(t, err)

	require.NoError(t, f.runner.Run(f.ctx, JobCompleteDueTransfers))
	gang, err := f.store.Repos().Gangs.GetByID(f.ctx, f.gang.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.GangTransferStatusActive, gang.TransferStatus, "deadline not reached")

	f.runner.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	require.NoError(t, f.runner.Run(f.ctx, JobCompleteDueTransfers))
	gang, err = f.store.Repos().Gangs.GetByID(f.ctx, f.gang.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.GangTransferStatusNone, gang.TransferStatus)
}

func TestJobRunner_ReconcileAndSync(t *testing.T) {
	f := newJobFixture(t)
	_, err := f.svc.Ledger.PostTransaction(f.ctx, f.owner, service.PostRequest{
		GangID: f.gang.ID, Type: domain.TransactionTypeIncome, Amount: 100,
	})
	require.NoError(t, err)
	require.NoError(t, f.runner.Run(f.ctx, JobReconcileBalances))

	// a balance change that bypassed the ledger is drift, reported but not fatal
	_, err = f.store.Repos().Gangs.AdjustBalance(f.ctx, f.gang.ID, 7, false)
	require.NoError(t, err)
	require.NoError(t, f.runner.Run(f.ctx, JobReconcileBalances))

	// no provisioner configured: every member is skipped
	require.NoError(t, f.runner.Run(f.ctx, JobSyncRoles))
}
