package service

import (
	"context"
	"fmt"
	"time"

	"gangkeeper-backend/internal/domain"
	"gangkeeper-backend/internal/logger"
	"gangkeeper-backend/internal/repository"
)

type leaveService struct {
	store    repository.Store
	perms    PermissionResolver
	audit    *AuditLog
	notifier Notifier
}

func NewLeaveService(store repository.Store, perms PermissionResolver, audit *AuditLog, notifier Notifier) LeaveService {
	return &leaveService{store: store, perms: perms, audit: audit, notifier: notifier}
}

// truncateDay drops the clock so leave ranges are whole days.
func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func (s *leaveService) Request(ctx context.Context, actor domain.Actor, gangID int32, leaveType domain.LeaveType, start, end time.Time, reason string) (*domain.LeaveRequest, error) {
	if leaveType != domain.LeaveTypeFull && leaveType != domain.LeaveTypeLate {
		return nil, fmt.Errorf("%w: unknown leave type %q", domain.ErrValidation, leaveType)
	}
	if start.IsZero() || end.IsZero() {
		return nil, fmt.Errorf("%w: start and end dates are required", domain.ErrValidation)
	}
	start, end = truncateDay(start), truncateDay(end)
	if end.Before(start) {
		return nil, fmt.Errorf("%w: leave ends before it starts", domain.ErrValidation)
	}

	member, err := eligibleMember(ctx, s.store.Repos(), actor, gangID)
	if err != nil {
		return nil, err
	}

	leave := &domain.LeaveRequest{
		GangID:    gangID,
		MemberID:  member.ID,
		Type:      leaveType,
		StartDate: start,
		EndDate:   end,
		Reason:    reason,
		Status:    domain.LeaveStatusPending,
	}
	err = s.store.WithTx(ctx, func(repos *repository.Repositories) error {
		if err := repos.Leaves.Create(ctx, leave); err != nil {
			return fmt.Errorf("failed to create leave request: %w", err)
		}
		return s.audit.record(ctx, repos, gangID, actor, domain.AuditActionLeaveRequested, target("leave", leave.ID), nil, leave)
	})
	if err != nil {
		return nil, err
	}

	notify(ctx, s.notifier, domain.Notice{
		GangID:  gangID,
		Subject: "Leave request",
		Message: fmt.Sprintf("%s requests %s leave %s to %s. %s", displayName(member), leaveType,
			start.Format(time.DateOnly), end.Format(time.DateOnly), reason),
		Review: &domain.Review{Kind: domain.ReviewLeave, TargetID: leave.ID},
	})
	return leave, nil
}

func (s *leaveService) Resolve(ctx context.Context, actor domain.Actor, leaveID int32, approve bool) (*domain.LeaveRequest, error) {
	leave, err := s.store.Repos().Leaves.GetByID(ctx, leaveID)
	if err != nil {
		return nil, err
	}
	if _, err := s.perms.Require(ctx, actor, leave.GangID, domain.PermissionAdmin); err != nil {
		return nil, err
	}

	to := domain.LeaveStatusRejected
	if approve {
		to = domain.LeaveStatusApproved
	}
	if err := s.swap(ctx, actor, leave, []domain.LeaveStatus{domain.LeaveStatusPending}, to, domain.AuditActionLeaveResolved); err != nil {
		return nil, err
	}

	notify(ctx, s.notifier, domain.Notice{
		GangID:  leave.GangID,
		Subject: "Leave " + string(to),
		Message: fmt.Sprintf("Leave request #%d was %s by %s", leaveID, to, actor),
	})
	return leave, nil
}

// Cancel withdraws the actor's own pending or approved leave.
func (s *leaveService) Cancel(ctx context.Context, actor domain.Actor, leaveID int32) (*domain.LeaveRequest, error) {
	repos := s.store.Repos()
	leave, err := repos.Leaves.GetByID(ctx, leaveID)
	if err != nil {
		return nil, err
	}
	member, err := repos.Members.GetByExternalID(ctx, leave.GangID, actor.ExternalID)
	if err != nil || member.ID != leave.MemberID {
		return nil, fmt.Errorf("%w: only the requesting member can cancel leave %d", domain.ErrPermissionDenied, leaveID)
	}

	from := []domain.LeaveStatus{domain.LeaveStatusPending, domain.LeaveStatusApproved}
	if err := s.swap(ctx, actor, leave, from, domain.LeaveStatusCancelled, domain.AuditActionLeaveCancelled); err != nil {
		return nil, err
	}
	return leave, nil
}

func (s *leaveService) swap(ctx context.Context, actor domain.Actor, leave *domain.LeaveRequest, from []domain.LeaveStatus, to domain.LeaveStatus, action domain.AuditAction) error {
	before := leave.Status
	err := s.store.WithTx(ctx, func(repos *repository.Repositories) error {
		won, err := repos.Leaves.SwapStatus(ctx, leave.ID, from, to, actor.String())
		if err != nil {
			return err
		}
		if !won {
			return fmt.Errorf("leave %d: %w", leave.ID, domain.ErrAlreadyResolved)
		}
		return s.audit.record(ctx, repos, leave.GangID, actor, action, target("leave", leave.ID),
			map[string]any{"status": before}, map[string]any{"status": to})
	})
	if err != nil {
		return err
	}
	leave.Status = to
	leave.ReviewedBy = actor.String()
	logger.StateTransition(ctx, "leave", leave.ID, string(before), string(to))
	return nil
}

func (s *leaveService) List(ctx context.Context, actor domain.Actor, gangID int32, statuses []domain.LeaveStatus) ([]domain.LeaveRequest, error) {
	if _, err := s.perms.Require(ctx, actor, gangID, domain.PermissionMember); err != nil {
		return nil, err
	}
	return s.store.Repos().Leaves.ListByGang(ctx, gangID, statuses)
}
