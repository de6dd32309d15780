package service

import (
	"context"
	"errors"
	"fmt"

	"gangkeeper-backend/internal/domain"
	"gangkeeper-backend/internal/logger"
	"gangkeeper-backend/internal/repository"
)

type approvalWorkflow struct {
	store     repository.Store
	perms     PermissionResolver
	ledger    Ledger
	audit     *AuditLog
	notifier  Notifier
	maxAmount int64
}

func NewApprovalWorkflow(store repository.Store, perms PermissionResolver, ledger Ledger, audit *AuditLog, notifier Notifier, maxAmount int64) ApprovalWorkflow {
	return &approvalWorkflow{
		store:     store,
		perms:     perms,
		ledger:    ledger,
		audit:     audit,
		notifier:  notifier,
		maxAmount: maxAmount,
	}
}

// Submit records a member's own LOAN or REPAYMENT as PENDING and routes it to
// the gang's reviewers. No balance moves until it is approved.
func (w *approvalWorkflow) Submit(ctx context.Context, actor domain.Actor, gangID int32, txType domain.TransactionType, amount int64, description string) (*domain.Transaction, error) {
	logger.EnterMethod("approvalWorkflow.Submit", "gangID", gangID, "type", txType, "amount", amount)

	if !txType.MemberRequestable() {
		return nil, fmt.Errorf("%w: members may not request %s", domain.ErrValidation, txType)
	}
	member, err := eligibleMember(ctx, w.store.Repos(), actor, gangID)
	if err != nil {
		return nil, err
	}
	if err := domain.ValidateEntry(txType, amount, w.maxAmount, &member.ID); err != nil {
		return nil, err
	}

	tx := &domain.Transaction{
		GangID:      gangID,
		MemberID:    &member.ID,
		Type:        txType,
		Amount:      amount,
		Status:      domain.TransactionStatusPending,
		Description: description,
		CreatedBy:   actor.String(),
	}
	err = w.store.WithTx(ctx, func(repos *repository.Repositories) error {
		if err := repos.Transactions.Create(ctx, tx); err != nil {
			return fmt.Errorf("failed to insert pending transaction: %w", err)
		}
		return w.audit.record(ctx, repos, gangID, actor, domain.AuditActionTransactionRequested, target("transaction", tx.ID), nil, tx)
	})
	if err != nil {
		logger.ExitMethodWithError("approvalWorkflow.Submit", err)
		return nil, err
	}

	notify(ctx, w.notifier, domain.Notice{
		GangID:  gangID,
		Subject: "Approval needed",
		Message: fmt.Sprintf("%s requests a %s of %d. %s", displayName(member), txType, amount, description),
		Review:  &domain.Review{Kind: domain.ReviewTransaction, TargetID: tx.ID},
	})

	logger.ExitMethod("approvalWorkflow.Submit", "transactionID", tx.ID)
	return tx, nil
}

// Resolve is the reviewer side; the ledger enforces TREASURER+ and
// first-writer-wins.
func (w *approvalWorkflow) Resolve(ctx context.Context, actor domain.Actor, transactionID int32, decision domain.Decision) (*domain.PostResult, error) {
	return w.ledger.ResolvePending(ctx, actor, transactionID, decision)
}

// eligibleMember loads the actor's own active, approved membership.
func eligibleMember(ctx context.Context, repos *repository.Repositories, actor domain.Actor, gangID int32) (*domain.Member, error) {
	member, err := repos.Members.GetByExternalID(ctx, gangID, actor.ExternalID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s is not a member of gang %d", domain.ErrPermissionDenied, actor, gangID)
	}
	if err != nil {
		return nil, err
	}
	if !member.Eligible() {
		return nil, fmt.Errorf("%w: membership of %s is not active", domain.ErrPermissionDenied, actor)
	}
	return member, nil
}

func displayName(m *domain.Member) string {
	if m.DisplayName != "" {
		return m.DisplayName
	}
	return m.ExternalID
}
