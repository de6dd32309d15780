package service

import (
	"context"
	"time"

	"gangkeeper-backend/internal/domain"
	"gangkeeper-backend/internal/repository"
)

// Notifier delivers a notice to a gang's channel. Implementations live in
// internal/notify; failures are logged by the caller and never roll back.
type Notifier interface {
	Notify(ctx context.Context, notice domain.Notice) error
}

// RoleProvisioner reports the role a platform account currently holds in the
// gang's chat.
type RoleProvisioner interface {
	PlatformRole(ctx context.Context, gang *domain.Gang, externalID string) (domain.PlatformRole, error)
}

type PermissionResolver interface {
	// Resolve returns the actor's level in the gang, PermissionNone when the
	// actor has no active approved membership.
	Resolve(ctx context.Context, actor domain.Actor, gangID int32) (domain.PermissionLevel, error)
	// Require fails with domain.ErrPermissionDenied below min.
	Require(ctx context.Context, actor domain.Actor, gangID int32, min domain.PermissionLevel) (domain.PermissionLevel, error)
}

type RoleSync interface {
	SyncMember(ctx context.Context, gang *domain.Gang, member *domain.Member) (bool, error)
	SyncGang(ctx context.Context, actor domain.Actor, gangID int32) (*SyncReport, error)
	SyncAll(ctx context.Context) (*SyncReport, error)
}

type AuditService interface {
	List(ctx context.Context, actor domain.Actor, gangID int32, limit int32) ([]domain.AuditLogEntry, error)
}

type PostRequest struct {
	GangID      int32
	Type        domain.TransactionType
	Amount      int64
	MemberID    *int32
	Description string
}

type Ledger interface {
	PostTransaction(ctx context.Context, actor domain.Actor, req PostRequest) (*domain.PostResult, error)
	ResolvePending(ctx context.Context, actor domain.Actor, transactionID int32, decision domain.Decision) (*domain.PostResult, error)
	ListTransactions(ctx context.Context, actor domain.Actor, gangID int32, statuses []domain.TransactionStatus, page, pageSize int32) ([]domain.Transaction, int32, error)
	Reconcile(ctx context.Context, actor domain.Actor, gangID int32) (*domain.Drift, error)
}

type ApprovalWorkflow interface {
	Submit(ctx context.Context, actor domain.Actor, gangID int32, txType domain.TransactionType, amount int64, description string) (*domain.Transaction, error)
	Resolve(ctx context.Context, actor domain.Actor, transactionID int32, decision domain.Decision) (*domain.PostResult, error)
}

type MembershipService interface {
	CreateGang(ctx context.Context, actor domain.Actor, gang *domain.Gang, ownerName string) (*domain.Member, error)
	GetGang(ctx context.Context, actor domain.Actor, gangID int32) (*domain.Gang, error)
	GetGangByChat(ctx context.Context, chatID int64) (*domain.Gang, error)
	Register(ctx context.Context, actor domain.Actor, gangID int32, displayName string) (*domain.Member, error)
	Review(ctx context.Context, actor domain.Actor, memberID int32, approve bool) (*domain.Member, error)
	Deactivate(ctx context.Context, actor domain.Actor, memberID int32) error
	ListMembers(ctx context.Context, actor domain.Actor, gangID int32) ([]domain.Member, error)
	Me(ctx context.Context, actor domain.Actor, gangID int32) (*domain.Member, error)
}

type LeaveService interface {
	Request(ctx context.Context, actor domain.Actor, gangID int32, leaveType domain.LeaveType, start, end time.Time, reason string) (*domain.LeaveRequest, error)
	Resolve(ctx context.Context, actor domain.Actor, leaveID int32, approve bool) (*domain.LeaveRequest, error)
	Cancel(ctx context.Context, actor domain.Actor, leaveID int32) (*domain.LeaveRequest, error)
	List(ctx context.Context, actor domain.Actor, gangID int32, statuses []domain.LeaveStatus) ([]domain.LeaveRequest, error)
}

type AttendanceSessionMachine interface {
	Create(ctx context.Context, actor domain.Actor, gangID int32, name string, start, end time.Time) (*domain.AttendanceSession, error)
	Start(ctx context.Context, actor domain.Actor, sessionID int32) (*domain.AttendanceSession, error)
	CheckIn(ctx context.Context, actor domain.Actor, sessionID int32) (*domain.AttendanceRecord, bool, error)
	Close(ctx context.Context, actor domain.Actor, sessionID int32) (*domain.CloseSummary, error)
	Cancel(ctx context.Context, actor domain.Actor, sessionID int32) error
	ListSessions(ctx context.Context, actor domain.Actor, gangID int32) ([]domain.AttendanceSession, error)
	ListRecords(ctx context.Context, actor domain.Actor, sessionID int32) ([]domain.AttendanceRecord, error)

	// Poller entry points; they act as the system.
	StartDue(ctx context.Context, now time.Time) (int, error)
	CloseDue(ctx context.Context, now time.Time) (int, error)
}

type ServerTransferMachine interface {
	Start(ctx context.Context, actor domain.Actor, gangID int32, deadline time.Time) (*domain.Gang, error)
	Confirm(ctx context.Context, actor domain.Actor, gangID int32) (*domain.Member, error)
	Leave(ctx context.Context, actor domain.Actor, gangID int32) (*domain.Member, error)
	Complete(ctx context.Context, actor domain.Actor, gangID int32) (*domain.TransferSummary, error)
	Cancel(ctx context.Context, actor domain.Actor, gangID int32) error

	// CompleteDue completes every transfer whose deadline has passed.
	CompleteDue(ctx context.Context, now time.Time) (int, error)
}

// Options carries the config values services depend on.
type Options struct {
	MaxAmount         int64
	SuperUsers        []string
	StaleClosingAfter time.Duration
}

// Services bundles every core service wired to one store.
type Services struct {
	Permissions PermissionResolver
	Roles       RoleSync
	Audit       AuditService
	Ledger      Ledger
	Approvals   ApprovalWorkflow
	Membership  MembershipService
	Leaves      LeaveService
	Attendance  AttendanceSessionMachine
	Transfers   ServerTransferMachine
}

// New wires the services. notifier and provisioner may be nil.
func New(store repository.Store, opts Options, notifier Notifier, provisioner RoleProvisioner) *Services {
	perms := NewPermissionResolver(store.Repos(), opts.SuperUsers)
	audit := NewAuditLog(store.Repos(), perms)
	ledger := NewLedger(store, perms, audit, notifier, opts.MaxAmount)
	return &Services{
		Permissions: perms,
		Roles:       NewRoleSync(store, perms, audit, provisioner),
		Audit:       audit,
		Ledger:      ledger,
		Approvals:   NewApprovalWorkflow(store, perms, ledger, audit, notifier, opts.MaxAmount),
		Membership:  NewMembershipService(store, perms, audit, notifier),
		Leaves:      NewLeaveService(store, perms, audit, notifier),
		Attendance:  NewAttendanceSessionMachine(store, perms, ledger, audit, opts.StaleClosingAfter),
		Transfers:   NewServerTransferMachine(store, perms, audit, notifier),
	}
}
