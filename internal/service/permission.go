package service

import (
	"context"
	"errors"
	"fmt"

	"gangkeeper-backend/internal/domain"
	"gangkeeper-backend/internal/repository"
)

type permissionResolver struct {
	repos      *repository.Repositories
	superUsers map[string]bool
}

func NewPermissionResolver(repos *repository.Repositories, superUsers []string) PermissionResolver {
	su := make(map[string]bool, len(superUsers))
	for _, id := range superUsers {
		su[id] = true
	}
	return &permissionResolver{repos: repos, superUsers: su}
}

// Resolve applies the precedence super-user > stored membership > none. The
// system actor resolves to OWNER.
func (r *permissionResolver) Resolve(ctx context.Context, actor domain.Actor, gangID int32) (domain.PermissionLevel, error) {
	if actor.System || r.superUsers[actor.ExternalID] {
		return domain.PermissionOwner, nil
	}
	if actor.ExternalID == "" {
		return domain.PermissionNone, nil
	}

	member, err := r.repos.Members.GetByExternalID(ctx, gangID, actor.ExternalID)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.PermissionNone, nil
	}
	if err != nil {
		return domain.PermissionNone, fmt.Errorf("failed to load membership: %w", err)
	}
	if !member.Eligible() {
		return domain.PermissionNone, nil
	}
	return member.GangRole, nil
}

func (r *permissionResolver) Require(ctx context.Context, actor domain.Actor, gangID int32, min domain.PermissionLevel) (domain.PermissionLevel, error) {
	level, err := r.Resolve(ctx, actor, gangID)
	if err != nil {
		return domain.PermissionNone, err
	}
	if !level.AtLeast(min) {
		return level, fmt.Errorf("%w: %s needs %s in gang %d, has %s", domain.ErrPermissionDenied, actor, min, gangID, level)
	}
	return level, nil
}
