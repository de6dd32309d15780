package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gangkeeper-backend/internal/domain"
	"gangkeeper-backend/internal/logger"
	"gangkeeper-backend/internal/repository"
)

type membershipService struct {
	store    repository.Store
	perms    PermissionResolver
	audit    *AuditLog
	notifier Notifier
}

func NewMembershipService(store repository.Store, perms PermissionResolver, audit *AuditLog, notifier Notifier) MembershipService {
	return &membershipService{store: store, perms: perms, audit: audit, notifier: notifier}
}

// CreateGang creates the gang and makes the actor its approved OWNER.
func (s *membershipService) CreateGang(ctx context.Context, actor domain.Actor, gang *domain.Gang, ownerName string) (*domain.Member, error) {
	logger.EnterMethod("membershipService.CreateGang", "name", gang.Name, "owner", actor)

	if strings.TrimSpace(gang.Name) == "" {
		return nil, fmt.Errorf("%w: gang name is required", domain.ErrValidation)
	}
	if gang.PenaltyAmount < 0 {
		return nil, fmt.Errorf("%w: penalty amount must not be negative", domain.ErrValidation)
	}
	if actor.System || actor.ExternalID == "" {
		return nil, fmt.Errorf("%w: a gang needs a platform account as owner", domain.ErrValidation)
	}

	owner := &domain.Member{
		ExternalID:  actor.ExternalID,
		DisplayName: ownerName,
		Status:      domain.MemberStatusApproved,
		GangRole:    domain.PermissionOwner,
	}
	err := s.store.WithTx(ctx, func(repos *repository.Repositories) error {
		if err := repos.Gangs.Create(ctx, gang); err != nil {
			return fmt.Errorf("failed to create gang: %w", err)
		}
		owner.GangID = gang.ID
		if err := repos.Members.Upsert(ctx, owner); err != nil {
			return fmt.Errorf("failed to create owner membership: %w", err)
		}
		return s.audit.record(ctx, repos, gang.ID, actor, domain.AuditActionGangCreated, target("gang", gang.ID), nil, gang)
	})
	if err != nil {
		logger.ExitMethodWithError("membershipService.CreateGang", err)
		return nil, err
	}

	logger.ExitMethod("membershipService.CreateGang", "gangID", gang.ID)
	return owner, nil
}

func (s *membershipService) GetGang(ctx context.Context, actor domain.Actor, gangID int32) (*domain.Gang, error) {
	if _, err := s.perms.Require(ctx, actor, gangID, domain.PermissionMember); err != nil {
		return nil, err
	}
	return s.store.Repos().Gangs.GetByID(ctx, gangID)
}

func (s *membershipService) GetGangByChat(ctx context.Context, chatID int64) (*domain.Gang, error) {
	return s.store.Repos().Gangs.GetByChatID(ctx, chatID)
}

// Register creates or re-activates the actor's membership as PENDING. A rejoin
// reuses the existing row and keeps its balance; an already active approved
// member is returned unchanged.
func (s *membershipService) Register(ctx context.Context, actor domain.Actor, gangID int32, displayName string) (*domain.Member, error) {
	if actor.System || actor.ExternalID == "" {
		return nil, fmt.Errorf("%w: only platform accounts can register", domain.ErrValidation)
	}
	repos := s.store.Repos()
	gang, err := repos.Gangs.GetByID(ctx, gangID)
	if err != nil {
		return nil, err
	}
	if !gang.IsActive {
		return nil, fmt.Errorf("%w: gang %d is dissolved", domain.ErrInvalidState, gangID)
	}

	existing, err := repos.Members.GetByExternalID(ctx, gangID, actor.ExternalID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}
	if existing != nil && existing.Eligible() {
		return existing, nil
	}

	member := &domain.Member{
		GangID:      gangID,
		ExternalID:  actor.ExternalID,
		DisplayName: displayName,
		Status:      domain.MemberStatusPending,
	}
	err = s.store.WithTx(ctx, func(repos *repository.Repositories) error {
		if err := repos.Members.Upsert(ctx, member); err != nil {
			return fmt.Errorf("failed to register member: %w", err)
		}
		return s.audit.record(ctx, repos, gangID, actor, domain.AuditActionMemberRegistered, target("member", member.ID), existing, member)
	})
	if err != nil {
		return nil, err
	}

	notify(ctx, s.notifier, domain.Notice{
		GangID:  gangID,
		Subject: "Membership request",
		Message: fmt.Sprintf("%s asked to join %s", displayName, gang.Name),
		Review:  &domain.Review{Kind: domain.ReviewMember, TargetID: member.ID},
	})
	return member, nil
}

// Review approves or rejects a PENDING membership. The first reviewer wins.
func (s *membershipService) Review(ctx context.Context, actor domain.Actor, memberID int32, approve bool) (*domain.Member, error) {
	member, err := s.store.Repos().Members.GetByID(ctx, memberID)
	if err != nil {
		return nil, err
	}
	if _, err := s.perms.Require(ctx, actor, member.GangID, domain.PermissionAdmin); err != nil {
		return nil, err
	}

	to := domain.MemberStatusRejected
	if approve {
		to = domain.MemberStatusApproved
	}
	err = s.store.WithTx(ctx, func(repos *repository.Repositories) error {
		won, err := repos.Members.SwapStatus(ctx, memberID, domain.MemberStatusPending, to)
		if err != nil {
			return err
		}
		if !won {
			return fmt.Errorf("member %d: %w", memberID, domain.ErrAlreadyResolved)
		}
		member.Status = to
		if approve {
			// Joining mid-transfer still requires an answer before the deadline.
			enrolled, err := repos.Members.EnrollInTransfer(ctx, memberID)
			if err != nil {
				return fmt.Errorf("failed to enroll member in transfer: %w", err)
			}
			if enrolled {
				member.TransferStatus = domain.MemberTransferStatusPending
			}
		}
		return s.audit.record(ctx, repos, member.GangID, actor, domain.AuditActionMemberReviewed, target("member", memberID),
			map[string]any{"status": domain.MemberStatusPending}, map[string]any{"status": to})
	})
	if err != nil {
		return nil, err
	}

	logger.StateTransition(ctx, "member", memberID, string(domain.MemberStatusPending), string(to))
	notify(ctx, s.notifier, domain.Notice{
		GangID:  member.GangID,
		Subject: "Membership " + string(to),
		Message: fmt.Sprintf("Membership of %s was %s", displayName(member), to),
	})
	return member, nil
}

// Deactivate removes a member from the roster without touching its balance.
// The owner cannot be deactivated.
func (s *membershipService) Deactivate(ctx context.Context, actor domain.Actor, memberID int32) error {
	member, err := s.store.Repos().Members.GetByID(ctx, memberID)
	if err != nil {
		return err
	}
	if _, err := s.perms.Require(ctx, actor, member.GangID, domain.PermissionAdmin); err != nil {
		return err
	}
	if member.GangRole == domain.PermissionOwner {
		return fmt.Errorf("%w: the owner cannot be deactivated", domain.ErrPermissionDenied)
	}
	if !member.IsActive {
		return nil
	}

	return s.store.WithTx(ctx, func(repos *repository.Repositories) error {
		if err := repos.Members.Deactivate(ctx, memberID); err != nil {
			return err
		}
		return s.audit.record(ctx, repos, member.GangID, actor, domain.AuditActionMemberDeactivated, target("member", memberID),
			map[string]any{"is_active": true}, map[string]any{"is_active": false})
	})
}

func (s *membershipService) ListMembers(ctx context.Context, actor domain.Actor, gangID int32) ([]domain.Member, error) {
	if _, err := s.perms.Require(ctx, actor, gangID, domain.PermissionMember); err != nil {
		return nil, err
	}
	return s.store.Repos().Members.ListByGang(ctx, gangID)
}

// Me returns the actor's own membership row, whatever its status.
func (s *membershipService) Me(ctx context.Context, actor domain.Actor, gangID int32) (*domain.Member, error) {
	return s.store.Repos().Members.GetByExternalID(ctx, gangID, actor.ExternalID)
}
