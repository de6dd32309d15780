package postgres

import (
	"context"
	"fmt"
	"time"

	"gangkeeper-backend/internal/domain"
	"gangkeeper-backend/internal/repository"

	"github.com/lib/pq"
)

type leaveRepository struct {
	db DBTX
}

func NewLeaveRepository(db DBTX) repository.LeaveRepository {
	return &leaveRepository{db: db}
}

const leaveColumns = `id, gang_id, member_id, type, start_date, end_date, COALESCE(reason, ''), status,
	COALESCE(reviewed_by, ''), created_at`

func scanLeave(row interface{ Scan(...any) error }) (*domain.LeaveRequest, error) {
	l := &domain.LeaveRequest{}
	err := row.Scan(&l.ID, &l.GangID, &l.MemberID, &l.Type, &l.StartDate, &l.EndDate, &l.Reason, &l.Status,
		&l.ReviewedBy, &l.CreatedAt)
	if err != nil {
		return nil, err
	}
	return l, nil
}

func (r *leaveRepository) Create(ctx context.Context, l *domain.LeaveRequest) error {
	query := `INSERT INTO leave_requests (gang_id, member_id, type, start_date, end_date, reason, status, created_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING id`
	if l.Status == "" {
		l.Status = domain.LeaveStatusPending
	}
	l.CreatedAt = time.Now()
	return r.db.QueryRowContext(ctx, query, l.GangID, l.MemberID, l.Type, l.StartDate, l.EndDate,
		nullString(l.Reason), l.Status, l.CreatedAt).Scan(&l.ID)
}

func (r *leaveRepository) GetByID(ctx context.Context, id int32) (*domain.LeaveRequest, error) {
	query := `SELECT ` + leaveColumns + ` FROM leave_requests WHERE id = $1`
	l, err := scanLeave(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, notFound(err, fmt.Sprintf("leave request %d", id))
	}
	return l, nil
}

func (r *leaveRepository) SwapStatus(ctx context.Context, id int32, from []domain.LeaveStatus, to domain.LeaveStatus, reviewedBy string) (bool, error) {
	query := `UPDATE leave_requests SET status = $3, reviewed_by = COALESCE($4, reviewed_by)
	          WHERE id = $1 AND status = ANY($2)`
	return execSwapped(ctx, r.db, query, id, pq.Array(statusStrings(from)), to, nullString(reviewedBy))
}

func (r *leaveRepository) ListByGang(ctx context.Context, gangID int32, statuses []domain.LeaveStatus) ([]domain.LeaveRequest, error) {
	query := `SELECT ` + leaveColumns + ` FROM leave_requests
	          WHERE gang_id = $1 AND (cardinality($2::text[]) = 0 OR status = ANY($2))
	          ORDER BY start_date DESC, id DESC`
	return r.list(ctx, query, gangID, pq.Array(statusStrings(statuses)))
}

// ListApprovedOverlapping returns approved leaves whose day range touches
// [start, end]. end_date is inclusive.
func (r *leaveRepository) ListApprovedOverlapping(ctx context.Context, gangID int32, start, end time.Time) ([]domain.LeaveRequest, error) {
	query := `SELECT ` + leaveColumns + ` FROM leave_requests
	          WHERE gang_id = $1 AND status = 'APPROVED' AND start_date <= $3::date AND end_date >= $2::date
	          ORDER BY id`
	return r.list(ctx, query, gangID, start, end)
}

func (r *leaveRepository) list(ctx context.Context, query string, args ...any) ([]domain.LeaveRequest, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var leaves []domain.LeaveRequest
	for rows.Next() {
		l, err := scanLeave(rows)
		if err != nil {
			return nil, err
		}
		leaves = append(leaves, *l)
	}
	return leaves, rows.Err()
}

func (r *leaveRepository) DeleteByGang(ctx context.Context, gangID int32) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM leave_requests WHERE gang_id = $1`, gangID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
