package service

import (
	"context"
	"encoding/json"
	"fmt"

	"gangkeeper-backend/internal/domain"
	"gangkeeper-backend/internal/logger"
	"gangkeeper-backend/internal/repository"

	"github.com/google/uuid"
)

// AuditLog appends entries inside the caller's storage transaction and serves
// the read side.
type AuditLog struct {
	repos *repository.Repositories
	perms PermissionResolver
}

func NewAuditLog(repos *repository.Repositories, perms PermissionResolver) *AuditLog {
	return &AuditLog{repos: repos, perms: perms}
}

type auditTarget struct {
	kind string
	id   any
}

func target(kind string, id any) auditTarget {
	return auditTarget{kind: kind, id: id}
}

// record appends one entry through repos, which must be the transaction the
// audited mutation runs in.
func (a *AuditLog) record(ctx context.Context, repos *repository.Repositories, gangID int32, actor domain.Actor,
	action domain.AuditAction, t auditTarget, before, after any) error {
	entry := &domain.AuditLogEntry{
		RequestID:  requestID(ctx),
		GangID:     gangID,
		Actor:      actor.String(),
		Action:     action,
		TargetType: t.kind,
		TargetID:   fmt.Sprint(t.id),
	}
	var err error
	if entry.Before, err = marshalPayload(before); err != nil {
		return err
	}
	if entry.After, err = marshalPayload(after); err != nil {
		return err
	}
	if err := repos.Audit.Append(ctx, entry); err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}
	return nil
}

func marshalPayload(v any) (json.RawMessage, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode audit payload: %w", err)
	}
	return b, nil
}

// requestID reuses the id the transport attached to ctx, or mints one.
func requestID(ctx context.Context) string {
	if id := logger.RequestID(ctx); id != "" {
		return id
	}
	return uuid.NewString()
}

func (a *AuditLog) List(ctx context.Context, actor domain.Actor, gangID int32, limit int32) ([]domain.AuditLogEntry, error) {
	if _, err := a.perms.Require(ctx, actor, gangID, domain.PermissionAdmin); err != nil {
		return nil, err
	}
	return a.repos.Audit.ListByGang(ctx, gangID, limit)
}
