package domain

import (
	"encoding/json"
	"time"
)

type AuditAction string

const (
	AuditActionTransactionPosted    AuditAction = "TRANSACTION_POSTED"
	AuditActionTransactionRequested AuditAction = "TRANSACTION_REQUESTED"
	AuditActionTransactionApproved  AuditAction = "TRANSACTION_APPROVED"
	AuditActionTransactionRejected  AuditAction = "TRANSACTION_REJECTED"
	AuditActionSessionCreated       AuditAction = "SESSION_CREATED"
	AuditActionSessionStarted       AuditAction = "SESSION_STARTED"
	AuditActionSessionClosed        AuditAction = "SESSION_CLOSED"
	AuditActionSessionCancelled     AuditAction = "SESSION_CANCELLED"
	AuditActionLeaveRequested       AuditAction = "LEAVE_REQUESTED"
	AuditActionLeaveResolved        AuditAction = "LEAVE_RESOLVED"
	AuditActionLeaveCancelled       AuditAction = "LEAVE_CANCELLED"
	AuditActionTransferStarted      AuditAction = "TRANSFER_STARTED"
	AuditActionTransferConfirmed    AuditAction = "TRANSFER_CONFIRMED"
	AuditActionTransferLeft         AuditAction = "TRANSFER_LEFT"
	AuditActionTransferCompleted    AuditAction = "TRANSFER_COMPLETED"
	AuditActionTransferCancelled    AuditAction = "TRANSFER_CANCELLED"
	AuditActionMemberRegistered     AuditAction = "MEMBER_REGISTERED"
	AuditActionMemberReviewed       AuditAction = "MEMBER_REVIEWED"
	AuditActionMemberDeactivated    AuditAction = "MEMBER_DEACTIVATED"
	AuditActionRoleSynced           AuditAction = "ROLE_SYNCED"
	AuditActionGangCreated          AuditAction = "GANG_CREATED"
)

// AuditLogEntry is append-only: never updated, never deleted.
type AuditLogEntry struct {
	ID         int64           `json:"id"`
	RequestID  string          `json:"request_id"`
	GangID     int32           `json:"gang_id"`
	Actor      string          `json:"actor"`
	Action     AuditAction     `json:"action"`
	TargetType string          `json:"target_type"`
	TargetID   string          `json:"target_id"`
	Before     json.RawMessage `json:"before,omitempty"`
	After      json.RawMessage `json:"after,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}
