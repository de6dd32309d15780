package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gangkeeper-backend/internal/domain"
	"gangkeeper-backend/internal/logger"
	"gangkeeper-backend/internal/repository"
)

type attendanceMachine struct {
	store      repository.Store
	perms      PermissionResolver
	ledger     *LedgerService
	audit      *AuditLog
	staleAfter time.Duration
}

func NewAttendanceSessionMachine(store repository.Store, perms PermissionResolver, ledger *LedgerService, audit *AuditLog, staleAfter time.Duration) AttendanceSessionMachine {
	if staleAfter <= 0 {
		staleAfter = 5 * time.Minute
	}
	return &attendanceMachine{store: store, perms: perms, ledger: ledger, audit: audit, staleAfter: staleAfter}
}

func (m *attendanceMachine) Create(ctx context.Context, actor domain.Actor, gangID int32, name string, start, end time.Time) (*domain.AttendanceSession, error) {
	if _, err := m.perms.Require(ctx, actor, gangID, domain.PermissionAdmin); err != nil {
		return nil, err
	}
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("%w: session name is required", domain.ErrValidation)
	}
	if !end.After(start) {
		return nil, fmt.Errorf("%w: session must end after it starts", domain.ErrValidation)
	}

	session := &domain.AttendanceSession{
		GangID:    gangID,
		Name:      name,
		Status:    domain.SessionStatusScheduled,
		StartTime: start,
		EndTime:   end,
		CreatedBy: actor.String(),
	}
	err := m.store.WithTx(ctx, func(repos *repository.Repositories) error {
		if err := repos.Attendance.CreateSession(ctx, session); err != nil {
			return fmt.Errorf("failed to create session: %w", err)
		}
		return m.audit.record(ctx, repos, gangID, actor, domain.AuditActionSessionCreated, target("session", session.ID), nil, session)
	})
	if err != nil {
		return nil, err
	}
	return session, nil
}

// loadForAdmin fetches the session and checks the actor may drive it.
func (m *attendanceMachine) loadForAdmin(ctx context.Context, actor domain.Actor, sessionID int32) (*domain.AttendanceSession, error) {
	session, err := m.store.Repos().Attendance.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if _, err := m.perms.Require(ctx, actor, session.GangID, domain.PermissionAdmin); err != nil {
		return nil, err
	}
	return session, nil
}

func (m *attendanceMachine) Start(ctx context.Context, actor domain.Actor, sessionID int32) (*domain.AttendanceSession, error) {
	session, err := m.loadForAdmin(ctx, actor, sessionID)
	if err != nil {
		return nil, err
	}
	if _, err := m.start(ctx, actor, session); err != nil {
		return nil, err
	}
	return session, nil
}

// start moves SCHEDULED to ACTIVE. Starting an ACTIVE session is a no-op and
// reports false.
func (m *attendanceMachine) start(ctx context.Context, actor domain.Actor, session *domain.AttendanceSession) (bool, error) {
	var started bool
	err := m.store.WithTx(ctx, func(repos *repository.Repositories) error {
		won, err := repos.Attendance.SwapSessionStatus(ctx, session.ID,
			[]domain.SessionStatus{domain.SessionStatusScheduled}, domain.SessionStatusActive)
		if err != nil {
			return err
		}
		if !won {
			current, err := repos.Attendance.GetSession(ctx, session.ID)
			if err != nil {
				return err
			}
			*session = *current
			if current.Status == domain.SessionStatusActive {
				return nil
			}
			return fmt.Errorf("%w: session %d is %s", domain.ErrInvalidState, session.ID, current.Status)
		}
		started = true
		return m.audit.record(ctx, repos, session.GangID, actor, domain.AuditActionSessionStarted, target("session", session.ID),
			map[string]any{"status": domain.SessionStatusScheduled}, map[string]any{"status": domain.SessionStatusActive})
	})
	if err != nil {
		return false, err
	}
	if started {
		session.Status = domain.SessionStatusActive
		logger.StateTransition(ctx, "session", session.ID, string(domain.SessionStatusScheduled), string(domain.SessionStatusActive))
	}
	return started, nil
}

// CheckIn records the actor PRESENT. A second check-in returns the call as a
// no-op with false.
func (m *attendanceMachine) CheckIn(ctx context.Context, actor domain.Actor, sessionID int32) (*domain.AttendanceRecord, bool, error) {
	repos := m.store.Repos()
	session, err := repos.Attendance.GetSession(ctx, sessionID)
	if err != nil {
		return nil, false, err
	}
	member, err := eligibleMember(ctx, repos, actor, session.GangID)
	if err != nil {
		return nil, false, err
	}
	if session.Status != domain.SessionStatusActive {
		return nil, false, fmt.Errorf("%w: session %d is %s", domain.ErrInvalidState, sessionID, session.Status)
	}

	record := &domain.AttendanceRecord{
		SessionID: sessionID,
		GangID:    session.GangID,
		MemberID:  member.ID,
		Status:    domain.AttendanceStatusPresent,
	}
	inserted, err := repos.Attendance.CreateRecord(ctx, record)
	if err != nil {
		return nil, false, fmt.Errorf("failed to record check-in: %w", err)
	}
	if inserted {
		logger.InfoContext(ctx, "Member checked in", "sessionID", sessionID, "memberID", member.ID)
	}
	return record, inserted, nil
}

func (m *attendanceMachine) Close(ctx context.Context, actor domain.Actor, sessionID int32) (*domain.CloseSummary, error) {
	session, err := m.loadForAdmin(ctx, actor, sessionID)
	if err != nil {
		return nil, err
	}
	return m.close(ctx, actor, session)
}

// close claims the session by moving it ACTIVE -> CLOSING. Whoever loses the
// claim gets a no-op summary.
func (m *attendanceMachine) close(ctx context.Context, actor domain.Actor, session *domain.AttendanceSession) (*domain.CloseSummary, error) {
	repos := m.store.Repos()
	won, err := repos.Attendance.SwapSessionStatus(ctx, session.ID,
		[]domain.SessionStatus{domain.SessionStatusActive}, domain.SessionStatusClosing)
	if err != nil {
		return nil, fmt.Errorf("failed to claim session: %w", err)
	}
	if !won {
		current, err := repos.Attendance.GetSession(ctx, session.ID)
		if err != nil {
			return nil, err
		}
		switch current.Status {
		case domain.SessionStatusClosing, domain.SessionStatusClosed:
			return &domain.CloseSummary{SessionID: session.ID, NoOp: true}, nil
		}
		return nil, fmt.Errorf("%w: session %d is %s", domain.ErrInvalidState, session.ID, current.Status)
	}
	logger.StateTransition(ctx, "session", session.ID, string(domain.SessionStatusActive), string(domain.SessionStatusClosing))
	return m.sweep(ctx, actor, session)
}

// sweep resolves every eligible member without a record to LEAVE or ABSENT and
// posts penalties, then marks the session CLOSED. Each member is its own
// storage transaction; the (session, member) unique record makes a resumed
// sweep skip members already handled.
func (m *attendanceMachine) sweep(ctx context.Context, actor domain.Actor, session *domain.AttendanceSession) (*domain.CloseSummary, error) {
	repos := m.store.Repos()
	gang, err := repos.Gangs.GetByID(ctx, session.GangID)
	if err != nil {
		return nil, err
	}
	members, err := repos.Members.ListEligible(ctx, session.GangID)
	if err != nil {
		return nil, err
	}
	leaves, err := repos.Leaves.ListApprovedOverlapping(ctx, session.GangID, session.StartTime, session.EndTime)
	if err != nil {
		return nil, err
	}
	onLeave := make(map[int32]bool, len(leaves))
	for _, l := range leaves {
		onLeave[l.MemberID] = true
	}

	summary := &domain.CloseSummary{SessionID: session.ID}
	for i := range members {
		member := &members[i]
		status := domain.AttendanceStatusAbsent
		if onLeave[member.ID] {
			status = domain.AttendanceStatusLeave
		}
		if err := m.resolveMember(ctx, actor, session, gang, member, status); err != nil {
			summary.Failures++
			logger.ErrorContext(ctx, "Failed to resolve attendance", "sessionID", session.ID, "memberID", member.ID, "error", err)
		}
	}

	err = m.store.WithTx(ctx, func(repos *repository.Repositories) error {
		records, err := repos.Attendance.ListRecords(ctx, session.ID)
		if err != nil {
			return err
		}
		tally(summary, records)
		if err := repos.Attendance.SetCloseFailures(ctx, session.ID, int32(summary.Failures)); err != nil {
			return err
		}
		won, err := repos.Attendance.SwapSessionStatus(ctx, session.ID,
			[]domain.SessionStatus{domain.SessionStatusClosing}, domain.SessionStatusClosed)
		if err != nil {
			return err
		}
		if !won {
			summary.NoOp = true
			return nil
		}
		return m.audit.record(ctx, repos, session.GangID, actor, domain.AuditActionSessionClosed, target("session", session.ID),
			map[string]any{"status": domain.SessionStatusActive}, summary)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to finalize session %d: %w", session.ID, err)
	}

	if !summary.NoOp {
		session.Status = domain.SessionStatusClosed
		logger.StateTransition(ctx, "session", session.ID, string(domain.SessionStatusClosing), string(domain.SessionStatusClosed),
			"absent", summary.Absent, "penalized", summary.Penalized, "failures", summary.Failures)
	}
	return summary, nil
}

// resolveMember inserts the member's record and, for a penalised absence, the
// PENALTY post in the same transaction. An existing record means the member
// was already handled.
func (m *attendanceMachine) resolveMember(ctx context.Context, actor domain.Actor, session *domain.AttendanceSession,
	gang *domain.Gang, member *domain.Member, status domain.AttendanceStatus) error {
	return m.store.WithTx(ctx, func(repos *repository.Repositories) error {
		record := &domain.AttendanceRecord{
			SessionID: session.ID,
			GangID:    session.GangID,
			MemberID:  member.ID,
			Status:    status,
		}
		inserted, err := repos.Attendance.CreateRecord(ctx, record)
		if err != nil || !inserted {
			return err
		}
		if status != domain.AttendanceStatusAbsent || gang.PenaltyAmount <= 0 {
			return nil
		}

		result, err := m.ledger.post(ctx, repos, actor, PostRequest{
			GangID:      gang.ID,
			Type:        domain.TransactionTypePenalty,
			Amount:      gang.PenaltyAmount,
			MemberID:    &member.ID,
			Description: fmt.Sprintf("Absent from %s", session.Name),
		})
		if err != nil {
			return fmt.Errorf("failed to post penalty: %w", err)
		}
		return repos.Attendance.AttachPenalty(ctx, record.ID, gang.PenaltyAmount, result.Transaction.ID)
	})
}

func tally(summary *domain.CloseSummary, records []domain.AttendanceRecord) {
	summary.Present, summary.Leave, summary.Absent, summary.Penalized = 0, 0, 0, 0
	for _, r := range records {
		switch r.Status {
		case domain.AttendanceStatusPresent:
			summary.Present++
		case domain.AttendanceStatusLeave:
			summary.Leave++
		case domain.AttendanceStatusAbsent:
			summary.Absent++
		}
		if r.PenaltyTransactionID != nil {
			summary.Penalized++
		}
	}
}

// Cancel ends a SCHEDULED or ACTIVE session without penalties and drops any
// check-ins. Cancelling twice is a no-op.
func (m *attendanceMachine) Cancel(ctx context.Context, actor domain.Actor, sessionID int32) error {
	session, err := m.loadForAdmin(ctx, actor, sessionID)
	if err != nil {
		return err
	}
	if session.Status == domain.SessionStatusCancelled {
		return nil
	}

	err = m.store.WithTx(ctx, func(repos *repository.Repositories) error {
		won, err := repos.Attendance.SwapSessionStatus(ctx, sessionID,
			[]domain.SessionStatus{domain.SessionStatusScheduled, domain.SessionStatusActive}, domain.SessionStatusCancelled)
		if err != nil {
			return err
		}
		if !won {
			current, err := repos.Attendance.GetSession(ctx, sessionID)
			if err != nil {
				return err
			}
			if current.Status == domain.SessionStatusCancelled {
				return nil
			}
			return fmt.Errorf("%w: session %d is %s", domain.ErrInvalidState, sessionID, current.Status)
		}
		if err := repos.Attendance.DeleteRecords(ctx, sessionID); err != nil {
			return err
		}
		return m.audit.record(ctx, repos, session.GangID, actor, domain.AuditActionSessionCancelled, target("session", sessionID),
			map[string]any{"status": session.Status}, map[string]any{"status": domain.SessionStatusCancelled})
	})
	if err != nil {
		return err
	}
	logger.StateTransition(ctx, "session", sessionID, string(session.Status), string(domain.SessionStatusCancelled))
	return nil
}

func (m *attendanceMachine) ListSessions(ctx context.Context, actor domain.Actor, gangID int32) ([]domain.AttendanceSession, error) {
	if _, err := m.perms.Require(ctx, actor, gangID, domain.PermissionMember); err != nil {
		return nil, err
	}
	return m.store.Repos().Attendance.ListSessions(ctx, gangID)
}

func (m *attendanceMachine) ListRecords(ctx context.Context, actor domain.Actor, sessionID int32) ([]domain.AttendanceRecord, error) {
	repos := m.store.Repos()
	session, err := repos.Attendance.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if _, err := m.perms.Require(ctx, actor, session.GangID, domain.PermissionMember); err != nil {
		return nil, err
	}
	return repos.Attendance.ListRecords(ctx, sessionID)
}

func (m *attendanceMachine) StartDue(ctx context.Context, now time.Time) (int, error) {
	due, err := m.store.Repos().Attendance.ListDueToStart(ctx, now)
	if err != nil {
		return 0, err
	}
	actor := domain.SystemActor("attendance-poller")
	started := 0
	for i := range due {
		ok, err := m.start(ctx, actor, &due[i])
		if err != nil {
			logger.ErrorContext(ctx, "Failed to start session", "sessionID", due[i].ID, "error", err)
			continue
		}
		if ok {
			started++
		}
	}
	return started, nil
}

// CloseDue closes ACTIVE sessions past their end time and resumes sweeps whose
// closer stopped before finishing.
func (m *attendanceMachine) CloseDue(ctx context.Context, now time.Time) (int, error) {
	repos := m.store.Repos()
	actor := domain.SystemActor("attendance-poller")
	closed := 0

	due, err := repos.Attendance.ListDueToClose(ctx, now)
	if err != nil {
		return 0, err
	}
	for i := range due {
		summary, err := m.close(ctx, actor, &due[i])
		if err != nil {
			logger.ErrorContext(ctx, "Failed to close session", "sessionID", due[i].ID, "error", err)
			continue
		}
		if !summary.NoOp {
			closed++
		}
	}

	staleBefore := now.Add(-m.staleAfter)
	stale, err := repos.Attendance.ListStaleClosing(ctx, staleBefore)
	if err != nil {
		return closed, err
	}
	for i := range stale {
		won, err := repos.Attendance.ReclaimClosing(ctx, stale[i].ID, staleBefore)
		if err != nil || !won {
			continue
		}
		logger.WarnContext(ctx, "Resuming interrupted session close", "sessionID", stale[i].ID)
		summary, err := m.sweep(ctx, actor, &stale[i])
		if err != nil {
			logger.ErrorContext(ctx, "Failed to resume session close", "sessionID", stale[i].ID, "error", err)
			continue
		}
		if !summary.NoOp {
			closed++
		}
	}
	return closed, nil
}
