package postgres

import (
	"context"
	"fmt"
	"time"

	"gangkeeper-backend/internal/domain"
	"gangkeeper-backend/internal/logger"
	"gangkeeper-backend/internal/repository"
)

type memberRepository struct {
	db DBTX
}

func NewMemberRepository(db DBTX) repository.MemberRepository {
	return &memberRepository{db: db}
}

const memberColumns = `id, gang_id, external_id, display_name, status, is_active, gang_role, balance,
	COALESCE(transfer_status, ''), joined_at, updated_at`

func scanMember(row interface{ Scan(...any) error }) (*domain.Member, error) {
	m := &domain.Member{}
	err := row.Scan(&m.ID, &m.GangID, &m.ExternalID, &m.DisplayName, &m.Status, &m.IsActive, &m.GangRole,
		&m.Balance, &m.TransferStatus, &m.JoinedAt, &m.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return m, nil
}

func (r *memberRepository) Upsert(ctx context.Context, m *domain.Member) error {
	logger.EnterMethod("memberRepository.Upsert", "gangID", m.GangID, "externalID", m.ExternalID)

	if m.GangRole == domain.PermissionNone {
		m.GangRole = domain.PermissionMember
	}
	now := time.Now()
	query := `INSERT INTO members (gang_id, external_id, display_name, status, is_active, gang_role, balance, joined_at, updated_at)
	          VALUES ($1, $2, $3, $4, TRUE, $5, 0, $6, $6)
	          ON CONFLICT (gang_id, external_id) DO UPDATE
	          SET display_name = EXCLUDED.display_name, status = EXCLUDED.status, gang_role = EXCLUDED.gang_role,
	              is_active = TRUE, updated_at = EXCLUDED.updated_at
	          RETURNING id, gang_role, balance, joined_at, updated_at`
	logger.DatabaseCall("UPSERT", "members", "gangID", m.GangID)

	err := r.db.QueryRowContext(ctx, query, m.GangID, m.ExternalID, m.DisplayName, m.Status, m.GangRole, now).
		Scan(&m.ID, &m.GangRole, &m.Balance, &m.JoinedAt, &m.UpdatedAt)
	logger.DatabaseResult("UPSERT", 1, err, "memberID", m.ID)
	if err != nil {
		logger.ExitMethodWithError("memberRepository.Upsert", err, "gangID", m.GangID)
		return err
	}
	m.IsActive = true

	logger.ExitMethod("memberRepository.Upsert", "memberID", m.ID)
	return nil
}

func (r *memberRepository) GetByID(ctx context.Context, id int32) (*domain.Member, error) {
	query := `SELECT ` + memberColumns + ` FROM members WHERE id = $1`
	m, err := scanMember(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, notFound(err, fmt.Sprintf("member %d", id))
	}
	return m, nil
}

func (r *memberRepository) GetByExternalID(ctx context.Context, gangID int32, externalID string) (*domain.Member, error) {
	query := `SELECT ` + memberColumns + ` FROM members WHERE gang_id = $1 AND external_id = $2`
	m, err := scanMember(r.db.QueryRowContext(ctx, query, gangID, externalID))
	if err != nil {
		return nil, notFound(err, fmt.Sprintf("member %s in gang %d", externalID, gangID))
	}
	return m, nil
}

func (r *memberRepository) ListByGang(ctx context.Context, gangID int32) ([]domain.Member, error) {
	return r.list(ctx, `SELECT `+memberColumns+` FROM members WHERE gang_id = $1 ORDER BY id`, gangID)
}

func (r *memberRepository) ListEligible(ctx context.Context, gangID int32) ([]domain.Member, error) {
	return r.list(ctx, `SELECT `+memberColumns+` FROM members
	          WHERE gang_id = $1 AND is_active AND status = 'APPROVED' ORDER BY id`, gangID)
}

func (r *memberRepository) ListByTransferStatus(ctx context.Context, gangID int32, status domain.MemberTransferStatus) ([]domain.Member, error) {
	return r.list(ctx, `SELECT `+memberColumns+` FROM members
	          WHERE gang_id = $1 AND transfer_status = $2 ORDER BY id`, gangID, status)
}

func (r *memberRepository) list(ctx context.Context, query string, args ...any) ([]domain.Member, error) {
	logger.DatabaseCall("SELECT", "members", args...)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		logger.DatabaseResult("SELECT", 0, err)
		return nil, err
	}
	defer rows.Close()

	var members []domain.Member
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			logger.DatabaseResult("SELECT", int64(len(members)), err)
			return nil, err
		}
		members = append(members, *m)
	}

	logger.DatabaseResult("SELECT", int64(len(members)), rows.Err())
	return members, rows.Err()
}

func (r *memberRepository) AdjustBalance(ctx context.Context, memberID int32, delta int64) (int64, error) {
	query := `UPDATE members SET balance = balance + $2, updated_at = NOW() WHERE id = $1 RETURNING balance`
	var balance int64
	if err := r.db.QueryRowContext(ctx, query, memberID, delta).Scan(&balance); err != nil {
		return 0, notFound(err, fmt.Sprintf("member %d", memberID))
	}
	return balance, nil
}

func (r *memberRepository) ResetBalances(ctx context.Context, gangID int32) error {
	_, err := r.db.ExecContext(ctx, `UPDATE members SET balance = 0, updated_at = NOW() WHERE gang_id = $1`, gangID)
	return err
}

func (r *memberRepository) SwapStatus(ctx context.Context, memberID int32, from, to domain.MemberStatus) (bool, error) {
	query := `UPDATE members SET status = $3, updated_at = NOW() WHERE id = $1 AND status = $2`
	return execSwapped(ctx, r.db, query, memberID, from, to)
}

func (r *memberRepository) UpdateRole(ctx context.Context, memberID int32, role domain.PermissionLevel) error {
	_, err := r.db.ExecContext(ctx, `UPDATE members SET gang_role = $2, updated_at = NOW() WHERE id = $1`, memberID, role)
	return err
}

func (r *memberRepository) ResetTransferStatuses(ctx context.Context, gangID int32) error {
	query := `UPDATE members
	          SET transfer_status = CASE WHEN gang_role = 'OWNER' THEN 'CONFIRMED' ELSE 'PENDING' END, updated_at = NOW()
	          WHERE gang_id = $1 AND is_active`
	_, err := r.db.ExecContext(ctx, query, gangID)
	return err
}

func (r *memberRepository) SwapTransferStatus(ctx context.Context, memberID int32, from, to domain.MemberTransferStatus) (bool, error) {
	query := `UPDATE members SET transfer_status = $3, updated_at = NOW() WHERE id = $1 AND transfer_status = $2`
	return execSwapped(ctx, r.db, query, memberID, from, to)
}

func (r *memberRepository) DepartPending(ctx context.Context, memberID int32) (bool, error) {
	query := `UPDATE members m SET transfer_status = 'LEFT', is_active = FALSE, updated_at = NOW()
	          FROM gangs g
	          WHERE m.id = $1 AND m.gang_id = g.id AND m.transfer_status = 'PENDING' AND g.transfer_status = 'ACTIVE'`
	return execSwapped(ctx, r.db, query, memberID)
}

func (r *memberRepository) EnrollInTransfer(ctx context.Context, memberID int32) (bool, error) {
	query := `UPDATE members m SET transfer_status = 'PENDING', updated_at = NOW()
	          FROM gangs g
	          WHERE m.id = $1 AND m.gang_id = g.id AND m.is_active AND m.status = 'APPROVED' AND g.transfer_status = 'ACTIVE'`
	return execSwapped(ctx, r.db, query, memberID)
}

func (r *memberRepository) Deactivate(ctx context.Context, memberID int32) error {
	_, err := r.db.ExecContext(ctx, `UPDATE members SET is_active = FALSE, updated_at = NOW() WHERE id = $1`, memberID)
	return err
}

// execSwapped runs a conditional update and reports whether exactly one row changed.
func execSwapped(ctx context.Context, db DBTX, query string, args ...any) (bool, error) {
	res, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
