package service

import (
	"context"
	"fmt"

	"gangkeeper-backend/internal/domain"
	"gangkeeper-backend/internal/logger"
	"gangkeeper-backend/internal/repository"
)

// SyncReport counts what a role sync pass did.
type SyncReport struct {
	Checked int `json:"checked"`
	Changed int `json:"changed"`
	Failed  int `json:"failed"`
}

func (r *SyncReport) add(o *SyncReport) {
	r.Checked += o.Checked
	r.Changed += o.Changed
	r.Failed += o.Failed
}

type roleSync struct {
	store       repository.Store
	perms       PermissionResolver
	audit       *AuditLog
	provisioner RoleProvisioner
}

func NewRoleSync(store repository.Store, perms PermissionResolver, audit *AuditLog, provisioner RoleProvisioner) RoleSync {
	return &roleSync{store: store, perms: perms, audit: audit, provisioner: provisioner}
}

// syncedLevel decides the stored role after observing a platform grant. A
// stored OWNER is never downgraded and no grant yields OWNER.
func syncedLevel(current domain.PermissionLevel, granted domain.PlatformRole) domain.PermissionLevel {
	if current == domain.PermissionOwner {
		return current
	}
	if level := granted.Level(); level != domain.PermissionNone {
		return level
	}
	return domain.PermissionMember
}

func (s *roleSync) SyncMember(ctx context.Context, gang *domain.Gang, member *domain.Member) (bool, error) {
	if s.provisioner == nil {
		return false, nil
	}
	if member.GangRole == domain.PermissionOwner {
		return false, nil
	}

	logger.ExternalServiceCall("platform", "PlatformRole", "gangID", gang.ID, "externalID", member.ExternalID)
	granted, err := s.provisioner.PlatformRole(ctx, gang, member.ExternalID)
	logger.ExternalServiceResult("platform", "PlatformRole", err, "gangID", gang.ID, "role", granted)
	if err != nil {
		return false, fmt.Errorf("%w: %v", domain.ErrExternalCollaborator, err)
	}

	level := syncedLevel(member.GangRole, granted)
	if level == member.GangRole {
		return false, nil
	}

	actor := domain.SystemActor("rolesync")
	err = s.store.WithTx(ctx, func(repos *repository.Repositories) error {
		if err := repos.Members.UpdateRole(ctx, member.ID, level); err != nil {
			return err
		}
		return s.audit.record(ctx, repos, gang.ID, actor, domain.AuditActionRoleSynced, target("member", member.ID),
			map[string]any{"role": member.GangRole}, map[string]any{"role": level, "platform_role": granted})
	})
	if err != nil {
		return false, err
	}
	logger.StateTransition(ctx, "member_role", member.ID, member.GangRole.String(), level.String())
	member.GangRole = level
	return true, nil
}

func (s *roleSync) SyncGang(ctx context.Context, actor domain.Actor, gangID int32) (*SyncReport, error) {
	if _, err := s.perms.Require(ctx, actor, gangID, domain.PermissionAdmin); err != nil {
		return nil, err
	}
	gang, err := s.store.Repos().Gangs.GetByID(ctx, gangID)
	if err != nil {
		return nil, err
	}
	return s.syncGang(ctx, gang)
}

func (s *roleSync) syncGang(ctx context.Context, gang *domain.Gang) (*SyncReport, error) {
	members, err := s.store.Repos().Members.ListEligible(ctx, gang.ID)
	if err != nil {
		return nil, err
	}

	report := &SyncReport{}
	for i := range members {
		report.Checked++
		changed, err := s.SyncMember(ctx, gang, &members[i])
		if err != nil {
			report.Failed++
			logger.WarnContext(ctx, "Role sync failed for member", "gangID", gang.ID, "memberID", members[i].ID, "error", err)
			continue
		}
		if changed {
			report.Changed++
		}
	}
	return report, nil
}

// SyncAll runs a pass over every active gang; used by the scheduler.
func (s *roleSync) SyncAll(ctx context.Context) (*SyncReport, error) {
	gangs, err := s.store.Repos().Gangs.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	total := &SyncReport{}
	for i := range gangs {
		report, err := s.syncGang(ctx, &gangs[i])
		if err != nil {
			logger.Error("Role sync failed for gang", "gangID", gangs[i].ID, "error", err)
			continue
		}
		total.add(report)
	}
	return total, nil
}
