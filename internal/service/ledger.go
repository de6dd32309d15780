package service

import (
	"context"
	"fmt"
	"time"

	"gangkeeper-backend/internal/domain"
	"gangkeeper-backend/internal/logger"
	"gangkeeper-backend/internal/repository"
)

// LedgerService owns transaction posting and the balance invariants. Every
// balance mutation in the system goes through post.
type LedgerService struct {
	store     repository.Store
	perms     PermissionResolver
	audit     *AuditLog
	notifier  Notifier
	maxAmount int64
}

func NewLedger(store repository.Store, perms PermissionResolver, audit *AuditLog, notifier Notifier, maxAmount int64) *LedgerService {
	return &LedgerService{
		store:     store,
		perms:     perms,
		audit:     audit,
		notifier:  notifier,
		maxAmount: maxAmount,
	}
}

func (s *LedgerService) PostTransaction(ctx context.Context, actor domain.Actor, req PostRequest) (*domain.PostResult, error) {
	logger.EnterMethod("LedgerService.PostTransaction", "gangID", req.GangID, "type", req.Type, "amount", req.Amount)

	if err := domain.ValidateEntry(req.Type, req.Amount, s.maxAmount, req.MemberID); err != nil {
		logger.ExitMethodWithError("LedgerService.PostTransaction", err)
		return nil, err
	}
	if _, err := s.perms.Require(ctx, actor, req.GangID, domain.PermissionTreasurer); err != nil {
		logger.ExitMethodWithError("LedgerService.PostTransaction", err)
		return nil, err
	}

	var result *domain.PostResult
	err := s.store.WithTx(ctx, func(repos *repository.Repositories) error {
		var err error
		result, err = s.post(ctx, repos, actor, req)
		return err
	})
	if err != nil {
		logger.ExitMethodWithError("LedgerService.PostTransaction", err, "gangID", req.GangID)
		return nil, err
	}

	notify(ctx, s.notifier, domain.Notice{
		GangID:  req.GangID,
		Subject: "Transaction posted",
		Message: fmt.Sprintf("%s of %d posted. Gang balance: %d", req.Type, req.Amount, result.GangBalance),
	})

	logger.ExitMethod("LedgerService.PostTransaction", "transactionID", result.Transaction.ID, "balance", result.GangBalance)
	return result, nil
}

// post applies an already validated and authorised entry inside repos'
// transaction: gang delta, member delta, APPROVED row, audit entry.
func (s *LedgerService) post(ctx context.Context, repos *repository.Repositories, actor domain.Actor, req PostRequest) (*domain.PostResult, error) {
	tx := &domain.Transaction{
		GangID:      req.GangID,
		MemberID:    req.MemberID,
		Type:        req.Type,
		Amount:      req.Amount,
		Status:      domain.TransactionStatusApproved,
		Description: req.Description,
		CreatedBy:   actor.String(),
		ResolvedBy:  actor.String(),
	}
	now := time.Now()
	tx.ResolvedAt = &now

	balance, err := s.apply(ctx, repos, tx)
	if err != nil {
		return nil, err
	}
	tx.BalanceAfter = &balance

	if err := repos.Transactions.Create(ctx, tx); err != nil {
		return nil, fmt.Errorf("failed to insert transaction: %w", err)
	}
	if err := s.audit.record(ctx, repos, tx.GangID, actor, domain.AuditActionTransactionPosted,
		target("transaction", tx.ID), nil, tx); err != nil {
		return nil, err
	}
	return &domain.PostResult{Transaction: tx, GangBalance: balance}, nil
}

// apply moves both balances for tx using the shared sign table and returns
// the new gang balance. The gang update is one arithmetic statement, so
// concurrent postings for the same gang serialise on its row.
func (s *LedgerService) apply(ctx context.Context, repos *repository.Repositories, tx *domain.Transaction) (int64, error) {
	if tx.MemberID != nil {
		member, err := repos.Members.GetByID(ctx, *tx.MemberID)
		if err != nil {
			return 0, err
		}
		if member.GangID != tx.GangID {
			return 0, fmt.Errorf("%w: member %d is not in gang %d", domain.ErrValidation, member.ID, tx.GangID)
		}
	}

	balance, err := repos.Gangs.AdjustBalance(ctx, tx.GangID, tx.Type.GangDelta(tx.Amount), tx.Type.GuardsFunds())
	if err != nil {
		return 0, err
	}
	if delta := tx.Type.MemberDelta(tx.Amount); delta != 0 && tx.MemberID != nil {
		if _, err := repos.Members.AdjustBalance(ctx, *tx.MemberID, delta); err != nil {
			return 0, fmt.Errorf("failed to adjust member balance: %w", err)
		}
	}
	return balance, nil
}

func (s *LedgerService) ResolvePending(ctx context.Context, actor domain.Actor, transactionID int32, decision domain.Decision) (*domain.PostResult, error) {
	logger.EnterMethod("LedgerService.ResolvePending", "transactionID", transactionID, "decision", decision)

	status, action, err := decisionStatus(decision)
	if err != nil {
		return nil, err
	}
	pending, err := s.store.Repos().Transactions.GetByID(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	if _, err := s.perms.Require(ctx, actor, pending.GangID, domain.PermissionTreasurer); err != nil {
		return nil, err
	}

	var result *domain.PostResult
	err = s.store.WithTx(ctx, func(repos *repository.Repositories) error {
		tx, err := repos.Transactions.Resolve(ctx, transactionID, status, actor.String())
		if err != nil {
			return fmt.Errorf("failed to resolve transaction: %w", err)
		}
		if tx == nil {
			return fmt.Errorf("transaction %d: %w", transactionID, domain.ErrAlreadyResolved)
		}

		result = &domain.PostResult{Transaction: tx}
		if status == domain.TransactionStatusApproved {
			balance, err := s.apply(ctx, repos, tx)
			if err != nil {
				return err
			}
			if err := repos.Transactions.SetBalanceAfter(ctx, tx.ID, balance); err != nil {
				return err
			}
			tx.BalanceAfter = &balance
			result.GangBalance = balance
		} else {
			gang, err := repos.Gangs.GetByID(ctx, tx.GangID)
			if err != nil {
				return err
			}
			result.GangBalance = gang.Balance
		}

		return s.audit.record(ctx, repos, tx.GangID, actor, action, target("transaction", tx.ID),
			map[string]any{"status": domain.TransactionStatusPending}, tx)
	})
	if err != nil {
		logger.ExitMethodWithError("LedgerService.ResolvePending", err, "transactionID", transactionID)
		return nil, err
	}

	logger.StateTransition(ctx, "transaction", transactionID, string(domain.TransactionStatusPending), string(status))
	notify(ctx, s.notifier, domain.Notice{
		GangID:  result.Transaction.GangID,
		Subject: "Request " + string(status),
		Message: fmt.Sprintf("%s request #%d for %d was %s by %s",
			result.Transaction.Type, transactionID, result.Transaction.Amount, status, actor),
	})

	logger.ExitMethod("LedgerService.ResolvePending", "transactionID", transactionID, "status", status)
	return result, nil
}

func decisionStatus(d domain.Decision) (domain.TransactionStatus, domain.AuditAction, error) {
	switch d {
	case domain.DecisionApprove:
		return domain.TransactionStatusApproved, domain.AuditActionTransactionApproved, nil
	case domain.DecisionReject:
		return domain.TransactionStatusRejected, domain.AuditActionTransactionRejected, nil
	}
	return "", "", fmt.Errorf("%w: unknown decision %q", domain.ErrValidation, d)
}

func (s *LedgerService) ListTransactions(ctx context.Context, actor domain.Actor, gangID int32, statuses []domain.TransactionStatus, page, pageSize int32) ([]domain.Transaction, int32, error) {
	if _, err := s.perms.Require(ctx, actor, gangID, domain.PermissionMember); err != nil {
		return nil, 0, err
	}
	return s.store.Repos().Transactions.ListByGang(ctx, gangID, statuses, page, pageSize)
}

// Reconcile recomputes the gang balance and every member balance from the
// APPROVED history with the same sign table used when posting.
func (s *LedgerService) Reconcile(ctx context.Context, actor domain.Actor, gangID int32) (*domain.Drift, error) {
	if _, err := s.perms.Require(ctx, actor, gangID, domain.PermissionTreasurer); err != nil {
		return nil, err
	}

	var drift *domain.Drift
	err := s.store.WithTx(ctx, func(repos *repository.Repositories) error {
		gang, err := repos.Gangs.GetByID(ctx, gangID)
		if err != nil {
			return err
		}
		txs, err := repos.Transactions.ListApproved(ctx, gangID)
		if err != nil {
			return err
		}
		members, err := repos.Members.ListByGang(ctx, gangID)
		if err != nil {
			return err
		}

		drift = &domain.Drift{GangID: gangID, Stored: gang.Balance}
		memberSums := make(map[int32]int64)
		for _, tx := range txs {
			drift.Computed += tx.Type.GangDelta(tx.Amount)
			if tx.MemberID != nil {
				memberSums[*tx.MemberID] += tx.Type.MemberDelta(tx.Amount)
			}
		}
		for _, m := range members {
			if m.Balance != memberSums[m.ID] {
				drift.Members = append(drift.Members, domain.MemberDrift{MemberID: m.ID, Stored: m.Balance, Computed: memberSums[m.ID]})
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if !drift.Consistent() {
		logger.WarnContext(ctx, "Balance drift", "gangID", gangID, "stored", drift.Stored, "computed", drift.Computed,
			"membersDrifted", len(drift.Members))
	}
	return drift, nil
}
