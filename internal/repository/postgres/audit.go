package postgres

import (
	"context"
	"time"

	"gangkeeper-backend/internal/domain"
	"gangkeeper-backend/internal/repository"
)

type auditRepository struct {
	db DBTX
}

func NewAuditRepository(db DBTX) repository.AuditRepository {
	return &auditRepository{db: db}
}

// Append only ever inserts; audit rows are never updated or deleted.
func (r *auditRepository) Append(ctx context.Context, e *domain.AuditLogEntry) error {
	query := `INSERT INTO audit_log (request_id, gang_id, actor, action, target_type, target_id, before, after, created_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) RETURNING id`
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	return r.db.QueryRowContext(ctx, query, e.RequestID, e.GangID, e.Actor, e.Action, e.TargetType, e.TargetID,
		jsonOrNull(e.Before), jsonOrNull(e.After), e.CreatedAt).Scan(&e.ID)
}

func (r *auditRepository) ListByGang(ctx context.Context, gangID int32, limit int32) ([]domain.AuditLogEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT id, request_id, gang_id, actor, action, target_type, target_id, before, after, created_at
	          FROM audit_log WHERE gang_id = $1 ORDER BY id DESC LIMIT $2`
	rows, err := r.db.QueryContext(ctx, query, gangID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []domain.AuditLogEntry
	for rows.Next() {
		var e domain.AuditLogEntry
		var before, after []byte
		if err := rows.Scan(&e.ID, &e.RequestID, &e.GangID, &e.Actor, &e.Action, &e.TargetType, &e.TargetID,
			&before, &after, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Before = before
		e.After = after
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func jsonOrNull(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}
