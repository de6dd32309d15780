package memory

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"time"

	"gangkeeper-backend/internal/domain"
)

func sortedValues[V any](m map[int32]V, keep func(V) bool, less func(a, b V) int) []V {
	var out []V
	for _, v := range m {
		if keep(v) {
			out = append(out, v)
		}
	}
	slices.SortFunc(out, less)
	return out
}

// gangs

type gangRepository struct{ base }

func (r *gangRepository) Create(_ context.Context, g *domain.Gang) error {
	defer r.lock()()
	st := r.st()
	st.nextGang++
	g.ID = st.nextGang
	g.Balance = 0
	if g.SubscriptionTier == "" {
		g.SubscriptionTier = domain.SubscriptionTierFree
	}
	g.TransferStatus = domain.GangTransferStatusNone
	g.IsActive = true
	g.CreatedAt = time.Now()
	st.gangs[g.ID] = *g
	return nil
}

func (r *gangRepository) get(id int32) (domain.Gang, error) {
	g, ok := r.st().gangs[id]
	if !ok {
		return g, fmt.Errorf("gang %d: %w", id, domain.ErrNotFound)
	}
	return g, nil
}

func (r *gangRepository) GetByID(_ context.Context, id int32) (*domain.Gang, error) {
	defer r.lock()()
	g, err := r.get(id)
	if err != nil {
		return nil, err
	}
	return &g, nil
}

func (r *gangRepository) GetByChatID(_ context.Context, chatID int64) (*domain.Gang, error) {
	defer r.lock()()
	gangs := sortedValues(r.st().gangs, func(g domain.Gang) bool { return g.IsActive && g.ChatID == chatID },
		func(a, b domain.Gang) int { return cmp.Compare(a.ID, b.ID) })
	if len(gangs) == 0 {
		return nil, fmt.Errorf("gang for chat %d: %w", chatID, domain.ErrNotFound)
	}
	return &gangs[0], nil
}

func (r *gangRepository) ListActive(_ context.Context) ([]domain.Gang, error) {
	defer r.lock()()
	return sortedValues(r.st().gangs, func(g domain.Gang) bool { return g.IsActive },
		func(a, b domain.Gang) int { return cmp.Compare(a.ID, b.ID) }), nil
}

func (r *gangRepository) ListTransfersDue(_ context.Context, now time.Time) ([]domain.Gang, error) {
	defer r.lock()()
	return sortedValues(r.st().gangs, func(g domain.Gang) bool { return g.IsActive && g.TransferDue(now) },
		func(a, b domain.Gang) int { return cmp.Compare(a.ID, b.ID) }), nil
}

func (r *gangRepository) AdjustBalance(_ context.Context, gangID int32, delta int64, guard bool) (int64, error) {
	defer r.lock()()
	g, err := r.get(gangID)
	if err != nil {
		return 0, err
	}
	if guard && g.Balance+delta < 0 {
		return 0, domain.ErrInsufficientFunds
	}
	g.Balance += delta
	r.st().gangs[gangID] = g
	return g.Balance, nil
}

func (r *gangRepository) ResetBalance(_ context.Context, gangID int32) error {
	defer r.lock()()
	g, err := r.get(gangID)
	if err != nil {
		return err
	}
	g.Balance = 0
	r.st().gangs[gangID] = g
	return nil
}

func (r *gangRepository) SwapTransferStatus(_ context.Context, gangID int32, from, to domain.GangTransferStatus, deadline *time.Time) (bool, error) {
	defer r.lock()()
	g, ok := r.st().gangs[gangID]
	if !ok || g.TransferStatus != from {
		return false, nil
	}
	g.TransferStatus = to
	g.TransferDeadline = deadline
	r.st().gangs[gangID] = g
	return true, nil
}

// members

type memberRepository struct{ base }

func (r *memberRepository) Upsert(_ context.Context, m *domain.Member) error {
	defer r.lock()()
	st := r.st()
	now := time.Now()
	for id, existing := range st.members {
		if existing.GangID == m.GangID && existing.ExternalID == m.ExternalID {
			existing.DisplayName = m.DisplayName
			existing.Status = m.Status
			existing.GangRole = m.GangRole
			if existing.GangRole == domain.PermissionNone {
				existing.GangRole = domain.PermissionMember
			}
			existing.IsActive = true
			existing.UpdatedAt = now
			st.members[id] = existing
			*m = existing
			return nil
		}
	}
	st.nextMember++
	m.ID = st.nextMember
	if m.GangRole == domain.PermissionNone {
		m.GangRole = domain.PermissionMember
	}
	m.Balance = 0
	m.IsActive = true
	m.JoinedAt = now
	m.UpdatedAt = now
	st.members[m.ID] = *m
	return nil
}

func (r *memberRepository) get(id int32) (domain.Member, error) {
	m, ok := r.st().members[id]
	if !ok {
		return m, fmt.Errorf("member %d: %w", id, domain.ErrNotFound)
	}
	return m, nil
}

func (r *memberRepository) GetByID(_ context.Context, id int32) (*domain.Member, error) {
	defer r.lock()()
	m, err := r.get(id)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *memberRepository) GetByExternalID(_ context.Context, gangID int32, externalID string) (*domain.Member, error) {
	defer r.lock()()
	for _, m := range r.st().members {
		if m.GangID == gangID && m.ExternalID == externalID {
			return &m, nil
		}
	}
	return nil, fmt.Errorf("member %s in gang %d: %w", externalID, gangID, domain.ErrNotFound)
}

func (r *memberRepository) filter(keep func(domain.Member) bool) []domain.Member {
	return sortedValues(r.st().members, keep, func(a, b domain.Member) int { return cmp.Compare(a.ID, b.ID) })
}

func (r *memberRepository) ListByGang(_ context.Context, gangID int32) ([]domain.Member, error) {
	defer r.lock()()
	return r.filter(func(m domain.Member) bool { return m.GangID == gangID }), nil
}

func (r *memberRepository) ListEligible(_ context.Context, gangID int32) ([]domain.Member, error) {
	defer r.lock()()
	return r.filter(func(m domain.Member) bool { return m.GangID == gangID && m.Eligible() }), nil
}

func (r *memberRepository) ListByTransferStatus(_ context.Context, gangID int32, status domain.MemberTransferStatus) ([]domain.Member, error) {
	defer r.lock()()
	return r.filter(func(m domain.Member) bool { return m.GangID == gangID && m.TransferStatus == status }), nil
}

func (r *memberRepository) update(id int32, fn func(m *domain.Member) bool) (bool, error) {
	m, err := r.get(id)
	if err != nil {
		return false, err
	}
	if !fn(&m) {
		return false, nil
	}
	m.UpdatedAt = time.Now()
	r.st().members[id] = m
	return true, nil
}

func (r *memberRepository) AdjustBalance(_ context.Context, memberID int32, delta int64) (int64, error) {
	defer r.lock()()
	var balance int64
	_, err := r.update(memberID, func(m *domain.Member) bool {
		m.Balance += delta
		balance = m.Balance
		return true
	})
	return balance, err
}

func (r *memberRepository) ResetBalances(_ context.Context, gangID int32) error {
	defer r.lock()()
	st := r.st()
	for id, m := range st.members {
		if m.GangID == gangID {
			m.Balance = 0
			st.members[id] = m
		}
	}
	return nil
}

func (r *memberRepository) SwapStatus(_ context.Context, memberID int32, from, to domain.MemberStatus) (bool, error) {
	defer r.lock()()
	return swapped(r.update(memberID, func(m *domain.Member) bool {
		if m.Status != from {
			return false
		}
		m.Status = to
		return true
	}))
}

func (r *memberRepository) UpdateRole(_ context.Context, memberID int32, role domain.PermissionLevel) error {
	defer r.lock()()
	_, err := r.update(memberID, func(m *domain.Member) bool {
		m.GangRole = role
		return true
	})
	return err
}

func (r *memberRepository) ResetTransferStatuses(_ context.Context, gangID int32) error {
	defer r.lock()()
	st := r.st()
	for id, m := range st.members {
		if m.GangID != gangID || !m.IsActive {
			continue
		}
		if m.GangRole == domain.PermissionOwner {
			m.TransferStatus = domain.MemberTransferStatusConfirmed
		} else {
			m.TransferStatus = domain.MemberTransferStatusPending
		}
		st.members[id] = m
	}
	return nil
}

func (r *memberRepository) SwapTransferStatus(_ context.Context, memberID int32, from, to domain.MemberTransferStatus) (bool, error) {
	defer r.lock()()
	return swapped(r.update(memberID, func(m *domain.Member) bool {
		if m.TransferStatus != from {
			return false
		}
		m.TransferStatus = to
		return true
	}))
}

func (r *memberRepository) DepartPending(_ context.Context, memberID int32) (bool, error) {
	defer r.lock()()
	return swapped(r.update(memberID, func(m *domain.Member) bool {
		g, ok := r.st().gangs[m.GangID]
		if !ok || g.TransferStatus != domain.GangTransferStatusActive || m.TransferStatus != domain.MemberTransferStatusPending {
			return false
		}
		m.TransferStatus = domain.MemberTransferStatusLeft
		m.IsActive = false
		return true
	}))
}

func (r *memberRepository) EnrollInTransfer(_ context.Context, memberID int32) (bool, error) {
	defer r.lock()()
	return swapped(r.update(memberID, func(m *domain.Member) bool {
		g, ok := r.st().gangs[m.GangID]
		if !ok || g.TransferStatus != domain.GangTransferStatusActive || !m.Eligible() {
			return false
		}
		m.TransferStatus = domain.MemberTransferStatusPending
		return true
	}))
}

func (r *memberRepository) Deactivate(_ context.Context, memberID int32) error {
	defer r.lock()()
	_, err := r.update(memberID, func(m *domain.Member) bool {
		m.IsActive = false
		return true
	})
	return err
}

// swapped treats a missing row like a lost race, matching a conditional UPDATE.
func swapped(won bool, err error) (bool, error) {
	if err != nil {
		return false, nil
	}
	return won, nil
}

// transactions

type transactionRepository struct{ base }

func (r *transactionRepository) Create(_ context.Context, tx *domain.Transaction) error {
	defer r.lock()()
	st := r.st()
	st.nextTx++
	tx.ID = st.nextTx
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now()
	}
	st.transactions[tx.ID] = *tx
	return nil
}

func (r *transactionRepository) GetByID(_ context.Context, id int32) (*domain.Transaction, error) {
	defer r.lock()()
	tx, ok := r.st().transactions[id]
	if !ok {
		return nil, fmt.Errorf("transaction %d: %w", id, domain.ErrNotFound)
	}
	return &tx, nil
}

func (r *transactionRepository) Resolve(_ context.Context, id int32, status domain.TransactionStatus, resolvedBy string) (*domain.Transaction, error) {
	defer r.lock()()
	tx, ok := r.st().transactions[id]
	if !ok || tx.Status != domain.TransactionStatusPending {
		return nil, nil
	}
	now := time.Now()
	tx.Status = status
	tx.ResolvedBy = resolvedBy
	tx.ResolvedAt = &now
	r.st().transactions[id] = tx
	return &tx, nil
}

func (r *transactionRepository) SetBalanceAfter(_ context.Context, id int32, balanceAfter int64) error {
	defer r.lock()()
	tx, ok := r.st().transactions[id]
	if !ok {
		return fmt.Errorf("transaction %d: %w", id, domain.ErrNotFound)
	}
	tx.BalanceAfter = &balanceAfter
	r.st().transactions[id] = tx
	return nil
}

func (r *transactionRepository) ListByGang(_ context.Context, gangID int32, statuses []domain.TransactionStatus, page, pageSize int32) ([]domain.Transaction, int32, error) {
	defer r.lock()()
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	all := sortedValues(r.st().transactions, func(tx domain.Transaction) bool {
		return tx.GangID == gangID && (len(statuses) == 0 || slices.Contains(statuses, tx.Status))
	}, func(a, b domain.Transaction) int { return cmp.Compare(b.ID, a.ID) })

	total := int32(len(all))
	start := min((page-1)*pageSize, total)
	end := min(start+pageSize, total)
	return all[start:end], total, nil
}

func (r *transactionRepository) ListApproved(_ context.Context, gangID int32) ([]domain.Transaction, error) {
	defer r.lock()()
	return sortedValues(r.st().transactions, func(tx domain.Transaction) bool {
		return tx.GangID == gangID && tx.Status == domain.TransactionStatusApproved
	}, func(a, b domain.Transaction) int { return cmp.Compare(a.ID, b.ID) }), nil
}

func (r *transactionRepository) DeleteByGang(_ context.Context, gangID int32) (int64, error) {
	defer r.lock()()
	var n int64
	for id, tx := range r.st().transactions {
		if tx.GangID == gangID {
			delete(r.st().transactions, id)
			n++
		}
	}
	return n, nil
}

// attendance

type attendanceRepository struct{ base }

func (r *attendanceRepository) CreateSession(_ context.Context, s *domain.AttendanceSession) error {
	defer r.lock()()
	st := r.st()
	st.nextSession++
	s.ID = st.nextSession
	if s.Status == "" {
		s.Status = domain.SessionStatusScheduled
	}
	s.CreatedAt = time.Now()
	st.sessions[s.ID] = *s
	return nil
}

func (r *attendanceRepository) GetSession(_ context.Context, id int32) (*domain.AttendanceSession, error) {
	defer r.lock()()
	s, ok := r.st().sessions[id]
	if !ok {
		return nil, fmt.Errorf("session %d: %w", id, domain.ErrNotFound)
	}
	return &s, nil
}

func (r *attendanceRepository) sessions(keep func(domain.AttendanceSession) bool) []domain.AttendanceSession {
	return sortedValues(r.st().sessions, keep, func(a, b domain.AttendanceSession) int { return cmp.Compare(a.ID, b.ID) })
}

func (r *attendanceRepository) ListSessions(_ context.Context, gangID int32) ([]domain.AttendanceSession, error) {
	defer r.lock()()
	out := r.sessions(func(s domain.AttendanceSession) bool { return s.GangID == gangID })
	slices.SortFunc(out, func(a, b domain.AttendanceSession) int { return b.StartTime.Compare(a.StartTime) })
	return out, nil
}

func (r *attendanceRepository) ListDueToStart(_ context.Context, now time.Time) ([]domain.AttendanceSession, error) {
	defer r.lock()()
	return r.sessions(func(s domain.AttendanceSession) bool {
		return s.Status == domain.SessionStatusScheduled && !s.StartTime.After(now)
	}), nil
}

func (r *attendanceRepository) ListDueToClose(_ context.Context, now time.Time) ([]domain.AttendanceSession, error) {
	defer r.lock()()
	return r.sessions(func(s domain.AttendanceSession) bool {
		return s.Status == domain.SessionStatusActive && !s.EndTime.After(now)
	}), nil
}

func (r *attendanceRepository) ListStaleClosing(_ context.Context, before time.Time) ([]domain.AttendanceSession, error) {
	defer r.lock()()
	return r.sessions(func(s domain.AttendanceSession) bool {
		return s.Status == domain.SessionStatusClosing && s.ClosingStarted != nil && !s.ClosingStarted.After(before)
	}), nil
}

func (r *attendanceRepository) SwapSessionStatus(_ context.Context, id int32, from []domain.SessionStatus, to domain.SessionStatus) (bool, error) {
	defer r.lock()()
	s, ok := r.st().sessions[id]
	if !ok || !slices.Contains(from, s.Status) {
		return false, nil
	}
	now := time.Now()
	s.Status = to
	switch to {
	case domain.SessionStatusClosing:
		s.ClosingStarted = &now
	case domain.SessionStatusClosed, domain.SessionStatusCancelled:
		s.ClosedAt = &now
	}
	r.st().sessions[id] = s
	return true, nil
}

func (r *attendanceRepository) ReclaimClosing(_ context.Context, id int32, staleBefore time.Time) (bool, error) {
	defer r.lock()()
	s, ok := r.st().sessions[id]
	if !ok || s.Status != domain.SessionStatusClosing || s.ClosingStarted == nil || s.ClosingStarted.After(staleBefore) {
		return false, nil
	}
	now := time.Now()
	s.ClosingStarted = &now
	r.st().sessions[id] = s
	return true, nil
}

func (r *attendanceRepository) SetCloseFailures(_ context.Context, id int32, failures int32) error {
	defer r.lock()()
	s, ok := r.st().sessions[id]
	if !ok {
		return fmt.Errorf("session %d: %w", id, domain.ErrNotFound)
	}
	s.CloseFailures = failures
	r.st().sessions[id] = s
	return nil
}

func (r *attendanceRepository) CreateRecord(_ context.Context, rec *domain.AttendanceRecord) (bool, error) {
	defer r.lock()()
	st := r.st()
	for _, existing := range st.records {
		if existing.SessionID == rec.SessionID && existing.MemberID == rec.MemberID {
			return false, nil
		}
	}
	st.nextRecord++
	rec.ID = st.nextRecord
	if rec.RecordedAt.IsZero() {
		rec.RecordedAt = time.Now()
	}
	st.records[rec.ID] = *rec
	return true, nil
}

func (r *attendanceRepository) AttachPenalty(_ context.Context, recordID int32, amount int64, transactionID int32) error {
	defer r.lock()()
	rec, ok := r.st().records[recordID]
	if !ok {
		return fmt.Errorf("attendance record %d: %w", recordID, domain.ErrNotFound)
	}
	rec.PenaltyAmount = &amount
	rec.PenaltyTransactionID = &transactionID
	r.st().records[recordID] = rec
	return nil
}

func (r *attendanceRepository) ListRecords(_ context.Context, sessionID int32) ([]domain.AttendanceRecord, error) {
	defer r.lock()()
	return sortedValues(r.st().records, func(rec domain.AttendanceRecord) bool { return rec.SessionID == sessionID },
		func(a, b domain.AttendanceRecord) int { return cmp.Compare(a.MemberID, b.MemberID) }), nil
}

func (r *attendanceRepository) DeleteRecords(_ context.Context, sessionID int32) error {
	defer r.lock()()
	for id, rec := range r.st().records {
		if rec.SessionID == sessionID {
			delete(r.st().records, id)
		}
	}
	return nil
}

func (r *attendanceRepository) DeleteByGang(_ context.Context, gangID int32) (int64, error) {
	defer r.lock()()
	st := r.st()
	var n int64
	for id, s := range st.sessions {
		if s.GangID == gangID {
			delete(st.sessions, id)
			n++
		}
	}
	for id, rec := range st.records {
		if rec.GangID == gangID {
			delete(st.records, id)
		}
	}
	return n, nil
}

// leaves

type leaveRepository struct{ base }

func (r *leaveRepository) Create(_ context.Context, l *domain.LeaveRequest) error {
	defer r.lock()()
	st := r.st()
	st.nextLeave++
	l.ID = st.nextLeave
	if l.Status == "" {
		l.Status = domain.LeaveStatusPending
	}
	l.CreatedAt = time.Now()
	st.leaves[l.ID] = *l
	return nil
}

func (r *leaveRepository) GetByID(_ context.Context, id int32) (*domain.LeaveRequest, error) {
	defer r.lock()()
	l, ok := r.st().leaves[id]
	if !ok {
		return nil, fmt.Errorf("leave request %d: %w", id, domain.ErrNotFound)
	}
	return &l, nil
}

func (r *leaveRepository) SwapStatus(_ context.Context, id int32, from []domain.LeaveStatus, to domain.LeaveStatus, reviewedBy string) (bool, error) {
	defer r.lock()()
	l, ok := r.st().leaves[id]
	if !ok || !slices.Contains(from, l.Status) {
		return false, nil
	}
	l.Status = to
	if reviewedBy != "" {
		l.ReviewedBy = reviewedBy
	}
	r.st().leaves[id] = l
	return true, nil
}

func (r *leaveRepository) ListByGang(_ context.Context, gangID int32, statuses []domain.LeaveStatus) ([]domain.LeaveRequest, error) {
	defer r.lock()()
	return sortedValues(r.st().leaves, func(l domain.LeaveRequest) bool {
		return l.GangID == gangID && (len(statuses) == 0 || slices.Contains(statuses, l.Status))
	}, func(a, b domain.LeaveRequest) int {
		if c := b.StartDate.Compare(a.StartDate); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	}), nil
}

func (r *leaveRepository) ListApprovedOverlapping(_ context.Context, gangID int32, start, end time.Time) ([]domain.LeaveRequest, error) {
	defer r.lock()()
	return sortedValues(r.st().leaves, func(l domain.LeaveRequest) bool {
		return l.GangID == gangID && l.Status == domain.LeaveStatusApproved && l.Overlaps(start, end)
	}, func(a, b domain.LeaveRequest) int { return cmp.Compare(a.ID, b.ID) }), nil
}

func (r *leaveRepository) DeleteByGang(_ context.Context, gangID int32) (int64, error) {
	defer r.lock()()
	var n int64
	for id, l := range r.st().leaves {
		if l.GangID == gangID {
			delete(r.st().leaves, id)
			n++
		}
	}
	return n, nil
}

// audit

type auditRepository struct{ base }

func (r *auditRepository) Append(_ context.Context, e *domain.AuditLogEntry) error {
	defer r.lock()()
	st := r.st()
	st.nextAudit++
	e.ID = st.nextAudit
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	st.audit = append(st.audit, *e)
	return nil
}

func (r *auditRepository) ListByGang(_ context.Context, gangID int32, limit int32) ([]domain.AuditLogEntry, error) {
	defer r.lock()()
	if limit <= 0 {
		limit = 100
	}
	var out []domain.AuditLogEntry
	for i := len(r.st().audit) - 1; i >= 0 && int32(len(out)) < limit; i-- {
		if e := r.st().audit[i]; e.GangID == gangID {
			out = append(out, e)
		}
	}
	return out, nil
}
