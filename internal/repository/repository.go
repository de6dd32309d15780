package repository

import (
	"context"
	"time"

	"gangkeeper-backend/internal/domain"
)

type GangRepository interface {
	Create(ctx context.Context, gang *domain.Gang) error
	GetByID(ctx context.Context, id int32) (*domain.Gang, error)
	GetByChatID(ctx context.Context, chatID int64) (*domain.Gang, error)
	ListActive(ctx context.Context) ([]domain.Gang, error)

	// AdjustBalance applies delta in a single arithmetic update and returns the
	// new balance. With guard set the update only happens when the result stays
	// non-negative; otherwise domain.ErrInsufficientFunds is returned.
	AdjustBalance(ctx context.Context, gangID int32, delta int64, guard bool) (int64, error)
	ResetBalance(ctx context.Context, gangID int32) error

	// SwapTransferStatus moves the gang from one transfer status to another and
	// reports whether this caller won the transition.
	SwapTransferStatus(ctx context.Context, gangID int32, from, to domain.GangTransferStatus, deadline *time.Time) (bool, error)
	ListTransfersDue(ctx context.Context, now time.Time) ([]domain.Gang, error)
}

type MemberRepository interface {
	// Upsert inserts the member or, on rejoin, refreshes the existing row for
	// the same (gang, external id) while keeping its balance. A rejoin takes
	// the role of the incoming row, so earlier privileges are not restored.
	Upsert(ctx context.Context, member *domain.Member) error
	GetByID(ctx context.Context, id int32) (*domain.Member, error)
	GetByExternalID(ctx context.Context, gangID int32, externalID string) (*domain.Member, error)
	ListByGang(ctx context.Context, gangID int32) ([]domain.Member, error)
	ListEligible(ctx context.Context, gangID int32) ([]domain.Member, error)

	AdjustBalance(ctx context.Context, memberID int32, delta int64) (int64, error)
	ResetBalances(ctx context.Context, gangID int32) error

	SwapStatus(ctx context.Context, memberID int32, from, to domain.MemberStatus) (bool, error)
	UpdateRole(ctx context.Context, memberID int32, role domain.PermissionLevel) error

	// ResetTransferStatuses marks every active member PENDING and the owner CONFIRMED.
	ResetTransferStatuses(ctx context.Context, gangID int32) error
	SwapTransferStatus(ctx context.Context, memberID int32, from, to domain.MemberTransferStatus) (bool, error)
	// DepartPending marks a still-PENDING member LEFT and deactivates it, but
	// only while the gang transfer is ACTIVE.
	DepartPending(ctx context.Context, memberID int32) (bool, error)
	// EnrollInTransfer marks an active approved member PENDING when its gang
	// has a transfer in progress.
	EnrollInTransfer(ctx context.Context, memberID int32) (bool, error)
	Deactivate(ctx context.Context, memberID int32) error
	ListByTransferStatus(ctx context.Context, gangID int32, status domain.MemberTransferStatus) ([]domain.Member, error)
}

type TransactionRepository interface {
	Create(ctx context.Context, tx *domain.Transaction) error
	GetByID(ctx context.Context, id int32) (*domain.Transaction, error)
	// Resolve moves a PENDING transaction to a terminal status. It returns nil
	// when the transaction is not PENDING (anymore).
	Resolve(ctx context.Context, id int32, status domain.TransactionStatus, resolvedBy string) (*domain.Transaction, error)
	SetBalanceAfter(ctx context.Context, id int32, balanceAfter int64) error
	ListByGang(ctx context.Context, gangID int32, statuses []domain.TransactionStatus, page, pageSize int32) ([]domain.Transaction, int32, error)
	ListApproved(ctx context.Context, gangID int32) ([]domain.Transaction, error)
	DeleteByGang(ctx context.Context, gangID int32) (int64, error)
}

type AttendanceRepository interface {
	CreateSession(ctx context.Context, session *domain.AttendanceSession) error
	GetSession(ctx context.Context, id int32) (*domain.AttendanceSession, error)
	ListSessions(ctx context.Context, gangID int32) ([]domain.AttendanceSession, error)
	// SwapSessionStatus moves the session to `to` when its status is one of
	// `from`, reporting whether this caller won.
	SwapSessionStatus(ctx context.Context, id int32, from []domain.SessionStatus, to domain.SessionStatus) (bool, error)
	SetCloseFailures(ctx context.Context, id int32, failures int32) error
	ListDueToStart(ctx context.Context, now time.Time) ([]domain.AttendanceSession, error)
	ListDueToClose(ctx context.Context, now time.Time) ([]domain.AttendanceSession, error)
	ListStaleClosing(ctx context.Context, before time.Time) ([]domain.AttendanceSession, error)
	// ReclaimClosing refreshes closing_started on a CLOSING session whose claim
	// is older than staleBefore, so only one poller resumes it.
	ReclaimClosing(ctx context.Context, id int32, staleBefore time.Time) (bool, error)

	// CreateRecord inserts a record unless one exists for (session, member);
	// it reports whether a row was inserted.
	CreateRecord(ctx context.Context, record *domain.AttendanceRecord) (bool, error)
	AttachPenalty(ctx context.Context, recordID int32, amount int64, transactionID int32) error
	ListRecords(ctx context.Context, sessionID int32) ([]domain.AttendanceRecord, error)
	DeleteRecords(ctx context.Context, sessionID int32) error
	DeleteByGang(ctx context.Context, gangID int32) (int64, error)
}

type LeaveRepository interface {
	Create(ctx context.Context, leave *domain.LeaveRequest) error
	GetByID(ctx context.Context, id int32) (*domain.LeaveRequest, error)
	SwapStatus(ctx context.Context, id int32, from []domain.LeaveStatus, to domain.LeaveStatus, reviewedBy string) (bool, error)
	ListByGang(ctx context.Context, gangID int32, statuses []domain.LeaveStatus) ([]domain.LeaveRequest, error)
	ListApprovedOverlapping(ctx context.Context, gangID int32, start, end time.Time) ([]domain.LeaveRequest, error)
	DeleteByGang(ctx context.Context, gangID int32) (int64, error)
}

type AuditRepository interface {
	Append(ctx context.Context, entry *domain.AuditLogEntry) error
	ListByGang(ctx context.Context, gangID int32, limit int32) ([]domain.AuditLogEntry, error)
}

// Repositories bundles every repository bound to one connection or transaction.
type Repositories struct {
	Gangs        GangRepository
	Members      MemberRepository
	Transactions TransactionRepository
	Attendance   AttendanceRepository
	Leaves       LeaveRepository
	Audit        AuditRepository
}

// Store is the storage boundary. Reads and single-statement writes go through
// Repos; anything that must be all-or-nothing goes through WithTx, whose
// callback must only use the repositories it is handed.
type Store interface {
	Repos() *Repositories
	WithTx(ctx context.Context, fn func(repos *Repositories) error) error
}
