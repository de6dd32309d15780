package domain

import (
	"fmt"
	"time"
)

type TransactionType string

const (
	TransactionTypeIncome    TransactionType = "INCOME"
	TransactionTypeExpense   TransactionType = "EXPENSE"
	TransactionTypeLoan      TransactionType = "LOAN"
	TransactionTypeRepayment TransactionType = "REPAYMENT"
	TransactionTypeDeposit   TransactionType = "DEPOSIT"
	TransactionTypePenalty   TransactionType = "PENALTY"
	TransactionTypeGangFee   TransactionType = "GANG_FEE"
)

type TransactionStatus string

const (
	TransactionStatusPending  TransactionStatus = "PENDING"
	TransactionStatusApproved TransactionStatus = "APPROVED"
	TransactionStatusRejected TransactionStatus = "REJECTED"
)

type Decision string

const (
	DecisionApprove Decision = "APPROVE"
	DecisionReject  Decision = "REJECT"
)

// signRule is the only place transaction signs are defined. Every balance
// mutation and every reconciliation goes through it.
type signRule struct {
	gang          int64 // multiplier applied to the gang balance
	member        int64 // multiplier applied to the member balance
	memberRef     bool  // a member reference is mandatory
	guardFunds    bool  // reject when the gang cannot cover the amount
	memberRequest bool  // may be submitted by a member for review
}

var signRules = map[TransactionType]signRule{
	TransactionTypeIncome:    {gang: +1},
	TransactionTypeExpense:   {gang: -1, guardFunds: true},
	TransactionTypeLoan:      {gang: -1, member: -1, memberRef: true, memberRequest: true},
	TransactionTypeRepayment: {gang: +1, member: +1, memberRef: true, memberRequest: true},
	TransactionTypeDeposit:   {gang: +1, member: +1, memberRef: true},
	TransactionTypePenalty:   {gang: 0, member: -1, memberRef: true},
	TransactionTypeGangFee:   {gang: +1, member: -1, memberRef: true},
}

func (t TransactionType) rule() (signRule, error) {
	r, ok := signRules[t]
	if !ok {
		return signRule{}, fmt.Errorf("%w: unknown transaction type %q", ErrValidation, t)
	}
	return r, nil
}

func (t TransactionType) Valid() bool {
	_, ok := signRules[t]
	return ok
}

// GangDelta is the signed change to the gang balance for amount.
func (t TransactionType) GangDelta(amount int64) int64 {
	return signRules[t].gang * amount
}

// MemberDelta is the signed change to the referenced member's balance.
func (t TransactionType) MemberDelta(amount int64) int64 {
	return signRules[t].member * amount
}

func (t TransactionType) RequiresMember() bool {
	return signRules[t].memberRef
}

func (t TransactionType) GuardsFunds() bool {
	return signRules[t].guardFunds
}

// MemberRequestable reports whether members may submit this type for review.
func (t TransactionType) MemberRequestable() bool {
	return signRules[t].memberRequest
}

// ValidateEntry checks type, amount and member reference before any mutation.
func ValidateEntry(t TransactionType, amount, maxAmount int64, memberID *int32) error {
	r, err := t.rule()
	if err != nil {
		return err
	}
	if amount <= 0 {
		return fmt.Errorf("%w: amount must be positive", ErrValidation)
	}
	if maxAmount > 0 && amount > maxAmount {
		return fmt.Errorf("%w: amount exceeds limit of %d", ErrValidation, maxAmount)
	}
	if r.memberRef && memberID == nil {
		return fmt.Errorf("%w: %s requires a member", ErrValidation, t)
	}
	return nil
}

type Transaction struct {
	ID           int32             `json:"id"`
	GangID       int32             `json:"gang_id"`
	MemberID     *int32            `json:"member_id,omitempty"`
	Type         TransactionType   `json:"type"`
	Amount       int64             `json:"amount"` // always positive; sign comes from Type
	Status       TransactionStatus `json:"status"`
	BalanceAfter *int64            `json:"balance_after,omitempty"`
	Description  string            `json:"description"`
	CreatedBy    string            `json:"created_by"`
	ResolvedBy   string            `json:"resolved_by,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
	ResolvedAt   *time.Time        `json:"resolved_at,omitempty"`
}

// PostResult is what a successful posting hands back to callers.
type PostResult struct {
	Transaction *Transaction `json:"transaction"`
	GangBalance int64        `json:"gang_balance"`
}

// Drift is the outcome of recomputing a gang's balances from its history.
// Members lists only the members whose stored balance disagrees.
type Drift struct {
	GangID   int32         `json:"gang_id"`
	Stored   int64         `json:"stored"`
	Computed int64         `json:"computed"`
	Members  []MemberDrift `json:"members,omitempty"`
}

type MemberDrift struct {
	MemberID int32 `json:"member_id"`
	Stored   int64 `json:"stored"`
	Computed int64 `json:"computed"`
}

func (d Drift) Consistent() bool {
	return d.Stored == d.Computed && len(d.Members) == 0
}
