package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"gangkeeper-backend/internal/domain"
	"gangkeeper-backend/internal/logger"
	"gangkeeper-backend/internal/repository"

	"github.com/lib/pq"
)

type attendanceRepository struct {
	db DBTX
}

func NewAttendanceRepository(db DBTX) repository.AttendanceRepository {
	return &attendanceRepository{db: db}
}

const sessionColumns = `id, gang_id, name, status, start_time, end_time, created_by, closing_started, closed_at,
	close_failures, created_at`

func scanSession(row interface{ Scan(...any) error }) (*domain.AttendanceSession, error) {
	s := &domain.AttendanceSession{}
	err := row.Scan(&s.ID, &s.GangID, &s.Name, &s.Status, &s.StartTime, &s.EndTime, &s.CreatedBy,
		&s.ClosingStarted, &s.ClosedAt, &s.CloseFailures, &s.CreatedAt)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (r *attendanceRepository) CreateSession(ctx context.Context, s *domain.AttendanceSession) error {
	query := `INSERT INTO attendance_sessions (gang_id, name, status, start_time, end_time, created_by, close_failures, created_at)
	          VALUES ($1, $2, $3, $4, $5, $6, 0, $7) RETURNING id`
	if s.Status == "" {
		s.Status = domain.SessionStatusScheduled
	}
	s.CreatedAt = time.Now()
	return r.db.QueryRowContext(ctx, query, s.GangID, s.Name, s.Status, s.StartTime, s.EndTime, s.CreatedBy, s.CreatedAt).Scan(&s.ID)
}

func (r *attendanceRepository) GetSession(ctx context.Context, id int32) (*domain.AttendanceSession, error) {
	query := `SELECT ` + sessionColumns + ` FROM attendance_sessions WHERE id = $1`
	s, err := scanSession(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, notFound(err, fmt.Sprintf("session %d", id))
	}
	return s, nil
}

func (r *attendanceRepository) ListSessions(ctx context.Context, gangID int32) ([]domain.AttendanceSession, error) {
	return r.listSessions(ctx, `SELECT `+sessionColumns+` FROM attendance_sessions WHERE gang_id = $1 ORDER BY start_time DESC`, gangID)
}

func (r *attendanceRepository) ListDueToStart(ctx context.Context, now time.Time) ([]domain.AttendanceSession, error) {
	return r.listSessions(ctx, `SELECT `+sessionColumns+` FROM attendance_sessions
	          WHERE status = 'SCHEDULED' AND start_time <= $1 ORDER BY id`, now)
}

func (r *attendanceRepository) ListDueToClose(ctx context.Context, now time.Time) ([]domain.AttendanceSession, error) {
	return r.listSessions(ctx, `SELECT `+sessionColumns+` FROM attendance_sessions
	          WHERE status = 'ACTIVE' AND end_time <= $1 ORDER BY id`, now)
}

func (r *attendanceRepository) ListStaleClosing(ctx context.Context, before time.Time) ([]domain.AttendanceSession, error) {
	return r.listSessions(ctx, `SELECT `+sessionColumns+` FROM attendance_sessions
	          WHERE status = 'CLOSING' AND closing_started <= $1 ORDER BY id`, before)
}

func (r *attendanceRepository) listSessions(ctx context.Context, query string, args ...any) ([]domain.AttendanceSession, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []domain.AttendanceSession
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *s)
	}
	return sessions, rows.Err()
}

func (r *attendanceRepository) SwapSessionStatus(ctx context.Context, id int32, from []domain.SessionStatus, to domain.SessionStatus) (bool, error) {
	logger.DatabaseCall("UPDATE", "attendance_sessions.status", "sessionID", id, "from", from, "to", to)
	query := `UPDATE attendance_sessions
	          SET status = $3::text,
	              closing_started = CASE WHEN $3::text = 'CLOSING' THEN NOW() ELSE closing_started END,
	              closed_at = CASE WHEN $3::text IN ('CLOSED', 'CANCELLED') THEN NOW() ELSE closed_at END
	          WHERE id = $1 AND status = ANY($2)`
	won, err := execSwapped(ctx, r.db, query, id, pq.Array(statusStrings(from)), to)
	logger.DatabaseResult("UPDATE", boolRows(won), err, "sessionID", id)
	return won, err
}

func (r *attendanceRepository) ReclaimClosing(ctx context.Context, id int32, staleBefore time.Time) (bool, error) {
	query := `UPDATE attendance_sessions SET closing_started = NOW()
	          WHERE id = $1 AND status = 'CLOSING' AND closing_started <= $2`
	return execSwapped(ctx, r.db, query, id, staleBefore)
}

func (r *attendanceRepository) SetCloseFailures(ctx context.Context, id int32, failures int32) error {
	_, err := r.db.ExecContext(ctx, `UPDATE attendance_sessions SET close_failures = $2 WHERE id = $1`, id, failures)
	return err
}

func (r *attendanceRepository) CreateRecord(ctx context.Context, rec *domain.AttendanceRecord) (bool, error) {
	query := `INSERT INTO attendance_records (session_id, gang_id, member_id, status, penalty_amount, penalty_transaction_id, recorded_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7)
	          ON CONFLICT (session_id, member_id) DO NOTHING
	          RETURNING id`
	if rec.RecordedAt.IsZero() {
		rec.RecordedAt = time.Now()
	}
	err := r.db.QueryRowContext(ctx, query, rec.SessionID, rec.GangID, rec.MemberID, rec.Status, rec.PenaltyAmount,
		rec.PenaltyTransactionID, rec.RecordedAt).Scan(&rec.ID)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (r *attendanceRepository) AttachPenalty(ctx context.Context, recordID int32, amount int64, transactionID int32) error {
	query := `UPDATE attendance_records SET penalty_amount = $2, penalty_transaction_id = $3 WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, recordID, amount, transactionID)
	return err
}

func (r *attendanceRepository) ListRecords(ctx context.Context, sessionID int32) ([]domain.AttendanceRecord, error) {
	query := `SELECT id, session_id, gang_id, member_id, status, penalty_amount, penalty_transaction_id, recorded_at
	          FROM attendance_records WHERE session_id = $1 ORDER BY member_id`
	rows, err := r.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []domain.AttendanceRecord
	for rows.Next() {
		var rec domain.AttendanceRecord
		var amount sql.NullInt64
		var txID sql.NullInt32
		if err := rows.Scan(&rec.ID, &rec.SessionID, &rec.GangID, &rec.MemberID, &rec.Status, &amount, &txID, &rec.RecordedAt); err != nil {
			return nil, err
		}
		if amount.Valid {
			rec.PenaltyAmount = &amount.Int64
		}
		if txID.Valid {
			rec.PenaltyTransactionID = &txID.Int32
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (r *attendanceRepository) DeleteRecords(ctx context.Context, sessionID int32) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM attendance_records WHERE session_id = $1`, sessionID)
	return err
}

// DeleteByGang removes every session of the gang; records go with them.
func (r *attendanceRepository) DeleteByGang(ctx context.Context, gangID int32) (int64, error) {
	logger.DatabaseCall("DELETE", "attendance_sessions", "gangID", gangID)
	res, err := r.db.ExecContext(ctx, `DELETE FROM attendance_sessions WHERE gang_id = $1`, gangID)
	if err != nil {
		logger.DatabaseResult("DELETE", 0, err)
		return 0, err
	}
	n, err := res.RowsAffected()
	logger.DatabaseResult("DELETE", n, err, "gangID", gangID)
	return n, err
}

func boolRows(won bool) int64 {
	if won {
		return 1
	}
	return 0
}
