package domain

import "time"

type MemberStatus string

const (
	MemberStatusPending  MemberStatus = "PENDING"
	MemberStatusApproved MemberStatus = "APPROVED"
	MemberStatusRejected MemberStatus = "REJECTED"
)

type MemberTransferStatus string

const (
	MemberTransferStatusPending   MemberTransferStatus = "PENDING"
	MemberTransferStatusConfirmed MemberTransferStatus = "CONFIRMED"
	MemberTransferStatusLeft      MemberTransferStatus = "LEFT"
)

// Final reports whether the member already answered the current transfer.
func (s MemberTransferStatus) Final() bool {
	return s == MemberTransferStatusConfirmed || s == MemberTransferStatusLeft
}

type Member struct {
	ID             int32                `json:"id"`
	GangID         int32                `json:"gang_id"`
	ExternalID     string               `json:"external_id"` // platform account id
	DisplayName    string               `json:"display_name"`
	Status         MemberStatus         `json:"status"`
	IsActive       bool                 `json:"is_active"`
	GangRole       PermissionLevel      `json:"gang_role"`
	Balance        int64                `json:"balance"` // negative = owes the gang
	TransferStatus MemberTransferStatus `json:"transfer_status,omitempty"`
	JoinedAt       time.Time            `json:"joined_at"`
	UpdatedAt      time.Time            `json:"updated_at"`
}

// Eligible reports whether the membership currently grants any permission.
func (m *Member) Eligible() bool {
	return m.IsActive && m.Status == MemberStatusApproved
}
