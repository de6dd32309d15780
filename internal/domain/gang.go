package domain

import "time"

type GangTransferStatus string

const (
	GangTransferStatusNone   GangTransferStatus = "NONE"
	GangTransferStatusActive GangTransferStatus = "ACTIVE"
)

type SubscriptionTier string

const (
	SubscriptionTierFree    SubscriptionTier = "FREE"
	SubscriptionTierPremium SubscriptionTier = "PREMIUM"
)

type Gang struct {
	ID               int32              `json:"id"`
	Name             string             `json:"name"`
	Balance          int64              `json:"balance"`
	SubscriptionTier SubscriptionTier   `json:"subscription_tier"`
	TransferStatus   GangTransferStatus `json:"transfer_status"`
	TransferDeadline *time.Time         `json:"transfer_deadline,omitempty"`
	PenaltyAmount    int64              `json:"penalty_amount"`
	ChatID           int64              `json:"chat_id"`       // Telegram chat the bot posts into
	ContactEmail     string             `json:"contact_email"` // optional outcome notices
	IsActive         bool               `json:"is_active"`
	DissolvedAt      *time.Time         `json:"dissolved_at,omitempty"`
	CreatedAt        time.Time          `json:"created_at"`
}

// TransferDue reports whether an active transfer has passed its deadline.
func (g *Gang) TransferDue(now time.Time) bool {
	return g.TransferStatus == GangTransferStatusActive && g.TransferDeadline != nil && !now.Before(*g.TransferDeadline)
}
