package jobs

import (
	"context"
	"errors"
	"fmt"

	"gangkeeper-backend/internal/domain"
	"gangkeeper-backend/internal/logger"
)

// completeDueTransfers finishes every server transfer past its deadline.
func (jr *JobRunner) completeDueTransfers(ctx context.Context) error {
	completed, err := jr.services.Transfers.CompleteDue(ctx, jr.now())
	if err != nil {
		return fmt.Errorf("failed to complete due transfers: %w", err)
	}
	if completed > 0 {
		logger.Info("Completed due transfers", "count", completed)
	}
	return nil
}

// syncRoles pulls platform roles for every active gang.
func (jr *JobRunner) syncRoles(ctx context.Context) error {
	report, err := jr.services.Roles.SyncAll(ctx)
	if err != nil {
		return fmt.Errorf("failed to sync roles: %w", err)
	}
	logger.Info("Role sync finished", "checked", report.Checked, "changed", report.Changed, "failed", report.Failed)
	return nil
}

// reconcileBalances recomputes each active gang's balance from its history
// and logs drift. Nothing is corrected automatically.
func (jr *JobRunner) reconcileBalances(ctx context.Context) error {
	gangs, err := jr.gangs.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("failed to list gangs: %w", err)
	}

	actor := domain.SystemActor("reconcile")
	var errs []error
	drifted := 0
	for _, g := range gangs {
		drift, err := jr.services.Ledger.Reconcile(ctx, actor, g.ID)
		if err != nil {
			logger.Error("Failed to reconcile gang", "gangID", g.ID, "error", err)
			errs = append(errs, fmt.Errorf("gang %d: %w", g.ID, err))
			continue
		}
		if !drift.Consistent() {
			drifted++
			logger.Warn("Balance drift detected", "gangID", g.ID, "stored", drift.Stored, "computed", drift.Computed,
				"membersDrifted", len(drift.Members))
		}
	}
	logger.Info("Reconciled balances", "gangs", len(gangs), "drifted", drifted)
	return errors.Join(errs...)
}
