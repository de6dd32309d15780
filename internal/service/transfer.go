package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gangkeeper-backend/internal/domain"
	"gangkeeper-backend/internal/logger"
	"gangkeeper-backend/internal/repository"
)

type transferMachine struct {
	store    repository.Store
	perms    PermissionResolver
	audit    *AuditLog
	notifier Notifier
}

func NewServerTransferMachine(store repository.Store, perms PermissionResolver, audit *AuditLog, notifier Notifier) ServerTransferMachine {
	return &transferMachine{store: store, perms: perms, audit: audit, notifier: notifier}
}

// Start opens a transfer: every active member must answer before deadline,
// the owner is confirmed up front.
func (t *transferMachine) Start(ctx context.Context, actor domain.Actor, gangID int32, deadline time.Time) (*domain.Gang, error) {
	logger.EnterMethod("transferMachine.Start", "gangID", gangID, "deadline", deadline)

	if _, err := t.perms.Require(ctx, actor, gangID, domain.PermissionAdmin); err != nil {
		return nil, err
	}
	if !deadline.After(time.Now()) {
		return nil, fmt.Errorf("%w: transfer deadline must be in the future", domain.ErrValidation)
	}

	err := t.store.WithTx(ctx, func(repos *repository.Repositories) error {
		won, err := repos.Gangs.SwapTransferStatus(ctx, gangID, domain.GangTransferStatusNone, domain.GangTransferStatusActive, &deadline)
		if err != nil {
			return err
		}
		if !won {
			return fmt.Errorf("%w: gang %d already has a transfer in progress", domain.ErrInvalidState, gangID)
		}
		if err := repos.Members.ResetTransferStatuses(ctx, gangID); err != nil {
			return fmt.Errorf("failed to reset member transfer statuses: %w", err)
		}
		return t.audit.record(ctx, repos, gangID, actor, domain.AuditActionTransferStarted, target("gang", gangID),
			map[string]any{"transfer_status": domain.GangTransferStatusNone},
			map[string]any{"transfer_status": domain.GangTransferStatusActive, "deadline": deadline})
	})
	if err != nil {
		logger.ExitMethodWithError("transferMachine.Start", err, "gangID", gangID)
		return nil, err
	}

	gang, err := t.store.Repos().Gangs.GetByID(ctx, gangID)
	if err != nil {
		return nil, err
	}
	logger.StateTransition(ctx, "gang_transfer", gangID, string(domain.GangTransferStatusNone), string(domain.GangTransferStatusActive))
	notify(ctx, t.notifier, domain.Notice{
		GangID:  gangID,
		Subject: "Server transfer started",
		Message: fmt.Sprintf("%s is moving. Confirm or leave before %s; members who do not answer are removed.",
			gang.Name, deadline.Format(time.RFC1123)),
	})

	logger.ExitMethod("transferMachine.Start", "gangID", gangID)
	return gang, nil
}

func (t *transferMachine) Confirm(ctx context.Context, actor domain.Actor, gangID int32) (*domain.Member, error) {
	return t.answer(ctx, actor, gangID, domain.MemberTransferStatusConfirmed, domain.AuditActionTransferConfirmed)
}

// Leave marks the actor LEFT and deactivates it at once. The owner cannot leave.
func (t *transferMachine) Leave(ctx context.Context, actor domain.Actor, gangID int32) (*domain.Member, error) {
	return t.answer(ctx, actor, gangID, domain.MemberTransferStatusLeft, domain.AuditActionTransferLeft)
}

// answer records one member's reply. Only the member's own row changes, so
// replies from different members never contend.
func (t *transferMachine) answer(ctx context.Context, actor domain.Actor, gangID int32, to domain.MemberTransferStatus, action domain.AuditAction) (*domain.Member, error) {
	repos := t.store.Repos()
	gang, err := repos.Gangs.GetByID(ctx, gangID)
	if err != nil {
		return nil, err
	}
	if gang.TransferStatus != domain.GangTransferStatusActive {
		return nil, fmt.Errorf("%w: gang %d has no transfer in progress", domain.ErrInvalidState, gangID)
	}

	// A member who already left is inactive, so the answer is checked before
	// eligibility: repeating it reports AlreadyFinal, not PermissionDenied.
	member, err := repos.Members.GetByExternalID(ctx, gangID, actor.ExternalID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s is not a member of gang %d", domain.ErrPermissionDenied, actor, gangID)
	}
	if err != nil {
		return nil, err
	}
	if to == domain.MemberTransferStatusLeft && member.GangRole == domain.PermissionOwner {
		return nil, fmt.Errorf("%w: the owner cannot leave during a transfer", domain.ErrPermissionDenied)
	}
	if member.TransferStatus.Final() {
		return nil, fmt.Errorf("member %d is %s: %w", member.ID, member.TransferStatus, domain.ErrAlreadyFinal)
	}
	if !member.Eligible() {
		return nil, fmt.Errorf("%w: membership of %s is not active", domain.ErrPermissionDenied, actor)
	}

	err = t.store.WithTx(ctx, func(repos *repository.Repositories) error {
		won, err := repos.Members.SwapTransferStatus(ctx, member.ID, domain.MemberTransferStatusPending, to)
		if err != nil {
			return err
		}
		if !won {
			return fmt.Errorf("member %d: %w", member.ID, domain.ErrAlreadyFinal)
		}
		if to == domain.MemberTransferStatusLeft {
			if err := repos.Members.Deactivate(ctx, member.ID); err != nil {
				return err
			}
		}
		return t.audit.record(ctx, repos, gangID, actor, action, target("member", member.ID),
			map[string]any{"transfer_status": domain.MemberTransferStatusPending}, map[string]any{"transfer_status": to})
	})
	if err != nil {
		return nil, err
	}

	member.TransferStatus = to
	if to == domain.MemberTransferStatusLeft {
		member.IsActive = false
	}
	logger.StateTransition(ctx, "member_transfer", member.ID, string(domain.MemberTransferStatusPending), string(to))
	return member, nil
}

func (t *transferMachine) Complete(ctx context.Context, actor domain.Actor, gangID int32) (*domain.TransferSummary, error) {
	if _, err := t.perms.Require(ctx, actor, gangID, domain.PermissionAdmin); err != nil {
		return nil, err
	}
	return t.complete(ctx, actor, gangID)
}

// complete departs every member still PENDING, then ends the transfer and
// wipes the gang's history in one transaction. The ACTIVE -> NONE swap gates
// the wipe, so a racing second completion is a no-op.
func (t *transferMachine) complete(ctx context.Context, actor domain.Actor, gangID int32) (*domain.TransferSummary, error) {
	logger.EnterMethod("transferMachine.complete", "gangID", gangID, "actor", actor)
	summary := &domain.TransferSummary{GangID: gangID}

	repos := t.store.Repos()
	gang, err := repos.Gangs.GetByID(ctx, gangID)
	if err != nil {
		return nil, err
	}
	if gang.TransferStatus != domain.GangTransferStatusActive {
		summary.NoOp = true
		return summary, nil
	}

	pending, err := repos.Members.ListByTransferStatus(ctx, gangID, domain.MemberTransferStatusPending)
	if err != nil {
		return nil, err
	}
	var departed []int32
	for _, m := range pending {
		won, err := repos.Members.DepartPending(ctx, m.ID)
		if err != nil {
			summary.Failures = append(summary.Failures, m.ID)
			logger.ErrorContext(ctx, "Failed to depart member", "gangID", gangID, "memberID", m.ID, "error", err)
			continue
		}
		if won {
			departed = append(departed, m.ID)
		}
	}
	summary.Departed = len(departed)

	err = t.store.WithTx(ctx, func(repos *repository.Repositories) error {
		won, err := repos.Gangs.SwapTransferStatus(ctx, gangID, domain.GangTransferStatusActive, domain.GangTransferStatusNone, nil)
		if err != nil {
			return err
		}
		if !won {
			summary.NoOp = true
			return nil
		}
		if err := t.wipe(ctx, repos, summary); err != nil {
			return err
		}
		return t.audit.record(ctx, repos, gangID, actor, domain.AuditActionTransferCompleted, target("gang", gangID),
			map[string]any{"balance": gang.Balance, "transfer_status": domain.GangTransferStatusActive},
			map[string]any{"summary": summary, "departed_members": departed})
	})
	if err != nil {
		logger.ExitMethodWithError("transferMachine.complete", err, "gangID", gangID)
		return nil, err
	}
	if summary.NoOp {
		return summary, nil
	}

	logger.StateTransition(ctx, "gang_transfer", gangID, string(domain.GangTransferStatusActive), string(domain.GangTransferStatusNone),
		"departed", summary.Departed, "failures", len(summary.Failures))
	notify(ctx, t.notifier, domain.Notice{
		GangID:  gangID,
		Subject: "Server transfer completed",
		Message: fmt.Sprintf("Transfer of %s is complete. %d member(s) removed; balances and history were reset.",
			gang.Name, summary.Departed),
	})
	logger.ExitMethod("transferMachine.complete", "gangID", gangID, "departed", summary.Departed)
	return summary, nil
}

// wipe resets balances and clears the gang's attendance, leave and
// transaction history. The audit log is kept.
func (t *transferMachine) wipe(ctx context.Context, repos *repository.Repositories, summary *domain.TransferSummary) error {
	var err error
	if summary.SessionsWiped, err = repos.Attendance.DeleteByGang(ctx, summary.GangID); err != nil {
		return fmt.Errorf("failed to wipe sessions: %w", err)
	}
	if summary.LeavesWiped, err = repos.Leaves.DeleteByGang(ctx, summary.GangID); err != nil {
		return fmt.Errorf("failed to wipe leave requests: %w", err)
	}
	if summary.TransactionsWiped, err = repos.Transactions.DeleteByGang(ctx, summary.GangID); err != nil {
		return fmt.Errorf("failed to wipe transactions: %w", err)
	}
	if err := repos.Gangs.ResetBalance(ctx, summary.GangID); err != nil {
		return fmt.Errorf("failed to reset gang balance: %w", err)
	}
	if err := repos.Members.ResetBalances(ctx, summary.GangID); err != nil {
		return fmt.Errorf("failed to reset member balances: %w", err)
	}
	return nil
}

func (t *transferMachine) Cancel(ctx context.Context, actor domain.Actor, gangID int32) error {
	if _, err := t.perms.Require(ctx, actor, gangID, domain.PermissionAdmin); err != nil {
		return err
	}
	err := t.store.WithTx(ctx, func(repos *repository.Repositories) error {
		won, err := repos.Gangs.SwapTransferStatus(ctx, gangID, domain.GangTransferStatusActive, domain.GangTransferStatusNone, nil)
		if err != nil {
			return err
		}
		if !won {
			return fmt.Errorf("%w: gang %d has no transfer in progress", domain.ErrInvalidState, gangID)
		}
		return t.audit.record(ctx, repos, gangID, actor, domain.AuditActionTransferCancelled, target("gang", gangID),
			map[string]any{"transfer_status": domain.GangTransferStatusActive},
			map[string]any{"transfer_status": domain.GangTransferStatusNone})
	})
	if err != nil {
		return err
	}
	logger.StateTransition(ctx, "gang_transfer", gangID, string(domain.GangTransferStatusActive), string(domain.GangTransferStatusNone), "cancelled", true)
	notify(ctx, t.notifier, domain.Notice{GangID: gangID, Subject: "Server transfer cancelled", Message: "The server transfer was cancelled."})
	return nil
}

func (t *transferMachine) CompleteDue(ctx context.Context, now time.Time) (int, error) {
	due, err := t.store.Repos().Gangs.ListTransfersDue(ctx, now)
	if err != nil {
		return 0, err
	}
	actor := domain.SystemActor("transfer-poller")
	completed := 0
	for _, g := range due {
		summary, err := t.complete(ctx, actor, g.ID)
		if err != nil {
			logger.ErrorContext(ctx, "Failed to complete transfer", "gangID", g.ID, "error", err)
			continue
		}
		if !summary.NoOp {
			completed++
		}
	}
	return completed, nil
}
