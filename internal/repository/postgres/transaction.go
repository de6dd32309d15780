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

type transactionRepository struct {
	db DBTX
}

func NewTransactionRepository(db DBTX) repository.TransactionRepository {
	return &transactionRepository{db: db}
}

const transactionColumns = `id, gang_id, member_id, type, amount, status, balance_after, COALESCE(description, ''),
	created_by, COALESCE(resolved_by, ''), created_at, resolved_at`

func scanTransaction(row interface{ Scan(...any) error }) (*domain.Transaction, error) {
	tx := &domain.Transaction{}
	var memberID sql.NullInt32
	var balanceAfter sql.NullInt64
	err := row.Scan(&tx.ID, &tx.GangID, &memberID, &tx.Type, &tx.Amount, &tx.Status, &balanceAfter, &tx.Description,
		&tx.CreatedBy, &tx.ResolvedBy, &tx.CreatedAt, &tx.ResolvedAt)
	if err != nil {
		return nil, err
	}
	if memberID.Valid {
		tx.MemberID = &memberID.Int32
	}
	if balanceAfter.Valid {
		tx.BalanceAfter = &balanceAfter.Int64
	}
	return tx, nil
}

func (r *transactionRepository) Create(ctx context.Context, tx *domain.Transaction) error {
	query := `INSERT INTO transactions (gang_id, member_id, type, amount, status, balance_after, description, created_by, resolved_by, created_at, resolved_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11) RETURNING id`
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now()
	}
	logger.DatabaseCall("INSERT", "transactions", "gangID", tx.GangID, "type", tx.Type, "status", tx.Status)
	err := r.db.QueryRowContext(ctx, query, tx.GangID, tx.MemberID, tx.Type, tx.Amount, tx.Status, tx.BalanceAfter,
		nullString(tx.Description), tx.CreatedBy, nullString(tx.ResolvedBy), tx.CreatedAt, tx.ResolvedAt).Scan(&tx.ID)
	logger.DatabaseResult("INSERT", 1, err, "transactionID", tx.ID)
	return err
}

func (r *transactionRepository) GetByID(ctx context.Context, id int32) (*domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE id = $1`
	tx, err := scanTransaction(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, notFound(err, fmt.Sprintf("transaction %d", id))
	}
	return tx, nil
}

func (r *transactionRepository) Resolve(ctx context.Context, id int32, status domain.TransactionStatus, resolvedBy string) (*domain.Transaction, error) {
	query := `UPDATE transactions SET status = $2, resolved_by = $3, resolved_at = NOW()
	          WHERE id = $1 AND status = 'PENDING'
	          RETURNING ` + transactionColumns
	logger.DatabaseCall("UPDATE", "transactions.status", "transactionID", id, "status", status)
	tx, err := scanTransaction(r.db.QueryRowContext(ctx, query, id, status, resolvedBy))
	if errors.Is(err, sql.ErrNoRows) {
		logger.DatabaseResult("UPDATE", 0, nil, "transactionID", id)
		return nil, nil
	}
	logger.DatabaseResult("UPDATE", 1, err, "transactionID", id)
	return tx, err
}

func (r *transactionRepository) SetBalanceAfter(ctx context.Context, id int32, balanceAfter int64) error {
	_, err := r.db.ExecContext(ctx, `UPDATE transactions SET balance_after = $2 WHERE id = $1`, id, balanceAfter)
	return err
}

func (r *transactionRepository) ListByGang(ctx context.Context, gangID int32, statuses []domain.TransactionStatus, page, pageSize int32) ([]domain.Transaction, int32, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize
	filter := pq.Array(statusStrings(statuses))

	var count int32
	countQuery := `SELECT count(*) FROM transactions WHERE gang_id = $1 AND (cardinality($2::text[]) = 0 OR status = ANY($2))`
	if err := r.db.QueryRowContext(ctx, countQuery, gangID, filter).Scan(&count); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + transactionColumns + ` FROM transactions
	          WHERE gang_id = $1 AND (cardinality($2::text[]) = 0 OR status = ANY($2))
	          ORDER BY id DESC LIMIT $3 OFFSET $4`
	txs, err := r.list(ctx, query, gangID, filter, pageSize, offset)
	if err != nil {
		return nil, 0, err
	}
	return txs, count, nil
}

func (r *transactionRepository) ListApproved(ctx context.Context, gangID int32) ([]domain.Transaction, error) {
	return r.list(ctx, `SELECT `+transactionColumns+` FROM transactions
	          WHERE gang_id = $1 AND status = 'APPROVED' ORDER BY id`, gangID)
}

func (r *transactionRepository) list(ctx context.Context, query string, args ...any) ([]domain.Transaction, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var txs []domain.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txs = append(txs, *tx)
	}
	return txs, rows.Err()
}

func (r *transactionRepository) DeleteByGang(ctx context.Context, gangID int32) (int64, error) {
	logger.DatabaseCall("DELETE", "transactions", "gangID", gangID)
	res, err := r.db.ExecContext(ctx, `DELETE FROM transactions WHERE gang_id = $1`, gangID)
	if err != nil {
		logger.DatabaseResult("DELETE", 0, err)
		return 0, err
	}
	n, err := res.RowsAffected()
	logger.DatabaseResult("DELETE", n, err, "gangID", gangID)
	return n, err
}
