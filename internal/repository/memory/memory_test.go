package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"gangkeeper-backend/internal/domain"
	"gangkeeper-backend/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedGang(t *testing.T, s *Store) *domain.Gang {
	g := &domain.Gang{Name: "Crows", ChatID: -100}
	require.NoError(t, s.Repos().Gangs.Create(context.Background(), g))
	return g
}

func TestWithTx_RollbackRestoresSnapshot(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	g := seedGang(t, s)
	boom := errors.New("boom")

	err := s.WithTx(ctx, func(repos *repository.Repositories) error {
		if _, err := repos.Gangs.AdjustBalance(ctx, g.ID, 500, false); err != nil {
			return err
		}
		if err := repos.Transactions.Create(ctx, &domain.Transaction{GangID: g.ID, Type: domain.TransactionTypeIncome, Amount: 500}); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	got, err := s.Repos().Gangs.GetByID(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), got.Balance)

	txs, total, err := s.Repos().Transactions.ListByGang(ctx, g.ID, nil, 1, 10)
	require.NoError(t, err)
	assert.Empty(t, txs)
	assert.Equal(t, int32(0), total)
}

func TestGangRepository_GuardedAdjust(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	g := seedGang(t, s)

	_, err := s.Repos().Gangs.AdjustBalance(ctx, g.ID, -1, true)
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)

	balance, err := s.Repos().Gangs.AdjustBalance(ctx, g.ID, -1, false)
	require.NoError(t, err)
	assert.Equal(t, int64(-1), balance)

	_, err = s.Repos().Gangs.AdjustBalance(ctx, 999, 1, false)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestGangRepository_ConcurrentAdjust(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	g := seedGang(t, s)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = s.Repos().Gangs.AdjustBalance(ctx, g.ID, 10, false)
		}()
	}
	wg.Wait()

	got, err := s.Repos().Gangs.GetByID(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(500), got.Balance)
}

func TestMemberRepository_UpsertKeepsBalance(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	g := seedGang(t, s)
	repos := s.Repos()

	m := &domain.Member{GangID: g.ID, ExternalID: "7", DisplayName: "Ash", Status: domain.MemberStatusApproved}
	require.NoError(t, repos.Members.Upsert(ctx, m))
	_, err := repos.Members.AdjustBalance(ctx, m.ID, -40)
	require.NoError(t, err)
	require.NoError(t, repos.Members.Deactivate(ctx, m.ID))

	again := &domain.Member{GangID: g.ID, ExternalID: "7", DisplayName: "Ash K", Status: domain.MemberStatusPending}
	require.NoError(t, repos.Members.Upsert(ctx, again))
	assert.Equal(t, m.ID, again.ID)
	assert.Equal(t, int64(-40), again.Balance)
	assert.True(t, again.IsActive)
	assert.Equal(t, "Ash K", again.DisplayName)
}

func TestMemberRepository_RejoinDropsRole(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	g := seedGang(t, s)
	repos := s.Repos()

	m := &domain.Member{GangID: g.ID, ExternalID: "8", Status: domain.MemberStatusApproved}
	require.NoError(t, repos.Members.Upsert(ctx, m))
	require.NoError(t, repos.Members.UpdateRole(ctx, m.ID, domain.PermissionAdmin))
	_, err := repos.Members.AdjustBalance(ctx, m.ID, 25)
	require.NoError(t, err)
	require.NoError(t, repos.Members.Deactivate(ctx, m.ID))

	again := &domain.Member{GangID: g.ID, ExternalID: "8", Status: domain.MemberStatusPending}
	require.NoError(t, repos.Members.Upsert(ctx, again))
	assert.Equal(t, domain.PermissionMember, again.GangRole)
	assert.Equal(t, int64(25), again.Balance)
}

func TestMemberRepository_EnrollInTransfer(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	g := seedGang(t, s)
	repos := s.Repos()

	m := &domain.Member{GangID: g.ID, ExternalID: "9", Status: domain.MemberStatusApproved}
	require.NoError(t, repos.Members.Upsert(ctx, m))

	won, err := repos.Members.EnrollInTransfer(ctx, m.ID)
	require.NoError(t, err)
	assert.False(t, won, "no transfer in progress")

	deadline := time.Now().Add(time.Hour)
	ok, err := repos.Gangs.SwapTransferStatus(ctx, g.ID, domain.GangTransferStatusNone, domain.GangTransferStatusActive, &deadline)
	require.NoError(t, err)
	require.True(t, ok)

	won, err = repos.Members.EnrollInTransfer(ctx, m.ID)
	require.NoError(t, err)
	assert.True(t, won)

	got, err := repos.Members.GetByID(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.MemberTransferStatusPending, got.TransferStatus)

	require.NoError(t, repos.Members.Deactivate(ctx, m.ID))
	won, err = repos.Members.EnrollInTransfer(ctx, m.ID)
	require.NoError(t, err)
	assert.False(t, won, "inactive members are not enrolled")
}

func TestMemberRepository_DepartPendingRequiresActiveTransfer(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	g := seedGang(t, s)
	repos := s.Repos()

	m := &domain.Member{GangID: g.ID, ExternalID: "1", Status: domain.MemberStatusApproved}
	require.NoError(t, repos.Members.Upsert(ctx, m))
	require.NoError(t, repos.Members.ResetTransferStatuses(ctx, g.ID))

	won, err := repos.Members.DepartPending(ctx, m.ID)
	require.NoError(t, err)
	assert.False(t, won, "gang transfer is not active")

	deadline := time.Now().Add(time.Hour)
	ok, err := repos.Gangs.SwapTransferStatus(ctx, g.ID, domain.GangTransferStatusNone, domain.GangTransferStatusActive, &deadline)
	require.NoError(t, err)
	require.True(t, ok)

	won, err = repos.Members.DepartPending(ctx, m.ID)
	require.NoError(t, err)
	assert.True(t, won)

	got, err := repos.Members.GetByID(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.MemberTransferStatusLeft, got.TransferStatus)
	assert.False(t, got.IsActive)
}

func TestAttendanceRepository_RecordUniqueness(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	g := seedGang(t, s)
	repos := s.Repos()

	sess := &domain.AttendanceSession{GangID: g.ID, Name: "Raid", StartTime: time.Now(), EndTime: time.Now().Add(time.Hour)}
	require.NoError(t, repos.Attendance.CreateSession(ctx, sess))

	first, err := repos.Attendance.CreateRecord(ctx, &domain.AttendanceRecord{SessionID: sess.ID, GangID: g.ID, MemberID: 1, Status: domain.AttendanceStatusPresent})
	require.NoError(t, err)
	second, err := repos.Attendance.CreateRecord(ctx, &domain.AttendanceRecord{SessionID: sess.ID, GangID: g.ID, MemberID: 1, Status: domain.AttendanceStatusAbsent})
	require.NoError(t, err)
	assert.True(t, first)
	assert.False(t, second)

	records, err := repos.Attendance.ListRecords(ctx, sess.ID)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, domain.AttendanceStatusPresent, records[0].Status)
}

func TestAttendanceRepository_SwapSessionStatus(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	g := seedGang(t, s)
	repos := s.Repos()

	sess := &domain.AttendanceSession{GangID: g.ID, Name: "Raid", StartTime: time.Now(), EndTime: time.Now()}
	require.NoError(t, repos.Attendance.CreateSession(ctx, sess))

	active := []domain.SessionStatus{domain.SessionStatusActive}
	won, err := repos.Attendance.SwapSessionStatus(ctx, sess.ID, active, domain.SessionStatusClosing)
	require.NoError(t, err)
	assert.False(t, won, "still scheduled")

	won, err = repos.Attendance.SwapSessionStatus(ctx, sess.ID, []domain.SessionStatus{domain.SessionStatusScheduled}, domain.SessionStatusActive)
	require.NoError(t, err)
	assert.True(t, won)

	won, err = repos.Attendance.SwapSessionStatus(ctx, sess.ID, active, domain.SessionStatusClosing)
	require.NoError(t, err)
	assert.True(t, won)

	got, err := repos.Attendance.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.NotNil(t, got.ClosingStarted)

	stale, err := repos.Attendance.ListStaleClosing(ctx, time.Now().Add(time.Minute))
	require.NoError(t, err)
	assert.Len(t, stale, 1)

	reclaimed, err := repos.Attendance.ReclaimClosing(ctx, sess.ID, time.Now().Add(-time.Minute))
	require.NoError(t, err)
	assert.False(t, reclaimed, "claim is fresh")
}

func TestLeaveRepository_ListApprovedOverlapping(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	g := seedGang(t, s)
	repos := s.Repos()

	day := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	l := &domain.LeaveRequest{GangID: g.ID, MemberID: 1, Type: domain.LeaveTypeFull, StartDate: day, EndDate: day.AddDate(0, 0, 2)}
	require.NoError(t, repos.Leaves.Create(ctx, l))

	sessionStart := day.AddDate(0, 0, 2).Add(20 * time.Hour)
	found, err := repos.Leaves.ListApprovedOverlapping(ctx, g.ID, sessionStart, sessionStart.Add(time.Hour))
	require.NoError(t, err)
	assert.Empty(t, found, "pending leaves do not count")

	won, err := repos.Leaves.SwapStatus(ctx, l.ID, []domain.LeaveStatus{domain.LeaveStatusPending}, domain.LeaveStatusApproved, "admin")
	require.NoError(t, err)
	require.True(t, won)

	found, err = repos.Leaves.ListApprovedOverlapping(ctx, g.ID, sessionStart, sessionStart.Add(time.Hour))
	require.NoError(t, err)
	assert.Len(t, found, 1)

	found, err = repos.Leaves.ListApprovedOverlapping(ctx, g.ID, day.AddDate(0, 0, 3), day.AddDate(0, 0, 3).Add(time.Hour))
	require.NoError(t, err)
	assert.Empty(t, found)
}

func TestAuditRepository_NewestFirst(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	repos := s.Repos()

	for i := 0; i < 3; i++ {
		require.NoError(t, repos.Audit.Append(ctx, &domain.AuditLogEntry{GangID: 1, Action: domain.AuditActionTransactionPosted}))
	}
	require.NoError(t, repos.Audit.Append(ctx, &domain.AuditLogEntry{GangID: 2, Action: domain.AuditActionGangCreated}))

	entries, err := repos.Audit.ListByGang(ctx, 1, 2)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, int64(3), entries[0].ID)
	assert.Equal(t, int64(2), entries[1].ID)
}
