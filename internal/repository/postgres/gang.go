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
)

type gangRepository struct {
	db DBTX
}

func NewGangRepository(db DBTX) repository.GangRepository {
	return &gangRepository{db: db}
}

const gangColumns = `id, name, balance, subscription_tier, transfer_status, transfer_deadline, penalty_amount,
	chat_id, COALESCE(contact_email, ''), is_active, dissolved_at, created_at`

func scanGang(row interface{ Scan(...any) error }) (*domain.Gang, error) {
	g := &domain.Gang{}
	err := row.Scan(&g.ID, &g.Name, &g.Balance, &g.SubscriptionTier, &g.TransferStatus, &g.TransferDeadline,
		&g.PenaltyAmount, &g.ChatID, &g.ContactEmail, &g.IsActive, &g.DissolvedAt, &g.CreatedAt)
	if err != nil {
		return nil, err
	}
	return g, nil
}

func (r *gangRepository) Create(ctx context.Context, g *domain.Gang) error {
	query := `INSERT INTO gangs (name, balance, subscription_tier, transfer_status, penalty_amount, chat_id, contact_email, is_active, created_at)
	          VALUES ($1, 0, $2, $3, $4, $5, $6, TRUE, $7) RETURNING id`
	if g.SubscriptionTier == "" {
		g.SubscriptionTier = domain.SubscriptionTierFree
	}
	g.TransferStatus = domain.GangTransferStatusNone
	g.IsActive = true
	g.CreatedAt = time.Now()
	return r.db.QueryRowContext(ctx, query, g.Name, g.SubscriptionTier, g.TransferStatus, g.PenaltyAmount, g.ChatID,
		nullString(g.ContactEmail), g.CreatedAt).Scan(&g.ID)
}

func (r *gangRepository) GetByID(ctx context.Context, id int32) (*domain.Gang, error) {
	query := `SELECT ` + gangColumns + ` FROM gangs WHERE id = $1`
	g, err := scanGang(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, notFound(err, fmt.Sprintf("gang %d", id))
	}
	return g, nil
}

func (r *gangRepository) GetByChatID(ctx context.Context, chatID int64) (*domain.Gang, error) {
	query := `SELECT ` + gangColumns + ` FROM gangs WHERE chat_id = $1 AND is_active ORDER BY id LIMIT 1`
	g, err := scanGang(r.db.QueryRowContext(ctx, query, chatID))
	if err != nil {
		return nil, notFound(err, fmt.Sprintf("gang for chat %d", chatID))
	}
	return g, nil
}

func (r *gangRepository) ListActive(ctx context.Context) ([]domain.Gang, error) {
	return r.list(ctx, `SELECT `+gangColumns+` FROM gangs WHERE is_active ORDER BY id`)
}

func (r *gangRepository) ListTransfersDue(ctx context.Context, now time.Time) ([]domain.Gang, error) {
	return r.list(ctx, `SELECT `+gangColumns+` FROM gangs
	          WHERE is_active AND transfer_status = 'ACTIVE' AND transfer_deadline <= $1 ORDER BY id`, now)
}

func (r *gangRepository) list(ctx context.Context, query string, args ...any) ([]domain.Gang, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var gangs []domain.Gang
	for rows.Next() {
		g, err := scanGang(rows)
		if err != nil {
			return nil, err
		}
		gangs = append(gangs, *g)
	}
	return gangs, rows.Err()
}

func (r *gangRepository) AdjustBalance(ctx context.Context, gangID int32, delta int64, guard bool) (int64, error) {
	logger.DatabaseCall("UPDATE", "gangs.balance", "gangID", gangID, "delta", delta, "guard", guard)

	// One statement: the row lock taken here serialises concurrent postings
	// for the same gang until the surrounding transaction ends.
	query := `UPDATE gangs SET balance = balance + $2
	          WHERE id = $1 AND (NOT $3 OR balance + $2 >= 0)
	          RETURNING balance`
	var balance int64
	err := r.db.QueryRowContext(ctx, query, gangID, delta, guard).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		var exists bool
		if err := r.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM gangs WHERE id = $1)`, gangID).Scan(&exists); err != nil {
			return 0, err
		}
		if !exists {
			err = fmt.Errorf("gang %d: %w", gangID, domain.ErrNotFound)
		} else {
			err = domain.ErrInsufficientFunds
		}
		logger.DatabaseResult("UPDATE", 0, err, "gangID", gangID)
		return 0, err
	}
	logger.DatabaseResult("UPDATE", 1, err, "gangID", gangID, "balance", balance)
	return balance, err
}

func (r *gangRepository) ResetBalance(ctx context.Context, gangID int32) error {
	_, err := r.db.ExecContext(ctx, `UPDATE gangs SET balance = 0 WHERE id = $1`, gangID)
	return err
}

func (r *gangRepository) SwapTransferStatus(ctx context.Context, gangID int32, from, to domain.GangTransferStatus, deadline *time.Time) (bool, error) {
	query := `UPDATE gangs SET transfer_status = $3, transfer_deadline = $4 WHERE id = $1 AND transfer_status = $2`
	res, err := r.db.ExecContext(ctx, query, gangID, from, to, deadline)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
