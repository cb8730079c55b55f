package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"taskstream/internal/domain/record"
	"taskstream/internal/domain/transaction"
)

const transactionColumns = `id, user_id, amount, kind, status, idempotency_key, created_at, updated_at, queued, force_fail`

type TransactionRepository struct {
	pool *pgxpool.Pool
}

func NewTransactionRepository(pool *pgxpool.Pool) *TransactionRepository {
	return &TransactionRepository{pool: pool}
}

func scanTransaction(row pgx.Row) (transaction.Transaction, error) {
	var t transaction.Transaction
	err := row.Scan(&t.ID, &t.UserID, &t.Amount, &t.Kind, &t.Status, &t.IdempotencyKey, &t.CreatedAt, &t.UpdatedAt, &t.Queued, &t.ForceFail)
	return t, err
}

func (r *TransactionRepository) GetByID(ctx context.Context, id string) (transaction.Transaction, error) {
	const sql = `SELECT ` + transactionColumns + ` FROM transactions WHERE id = $1`

	t, err := scanTransaction(executor(ctx, r.pool).QueryRow(ctx, sql, id))
	return t, mapError("get transaction by id", err)
}

func (r *TransactionRepository) GetForUpdate(ctx context.Context, id string) (transaction.Transaction, error) {
	if GetTx(ctx) == nil {
		return r.GetByID(ctx, id)
	}
	const sql = `SELECT ` + transactionColumns + ` FROM transactions WHERE id = $1 FOR UPDATE`

	t, err := scanTransaction(executor(ctx, r.pool).QueryRow(ctx, sql, id))
	return t, mapError("lock transaction", err)
}

func (r *TransactionRepository) GetByIdempotencyKey(ctx context.Context, key string) (transaction.Transaction, error) {
	const sql = `SELECT ` + transactionColumns + ` FROM transactions WHERE idempotency_key = $1`

	t, err := scanTransaction(executor(ctx, r.pool).QueryRow(ctx, sql, key))
	return t, mapError("get transaction by key", err)
}

func (r *TransactionRepository) Create(ctx context.Context, t transaction.Transaction) error {
	const sql = `
		INSERT INTO transactions (` + transactionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := executor(ctx, r.pool).Exec(ctx, sql,
		t.ID, t.UserID, t.Amount, t.Kind, t.Status, t.IdempotencyKey, t.CreatedAt, t.UpdatedAt, t.Queued, t.ForceFail)
	return mapError("insert transaction", err)
}

func (r *TransactionRepository) Update(ctx context.Context, t transaction.Transaction) error {
	const sql = `
		UPDATE transactions
		SET status = $2, updated_at = $3
		WHERE id = $1
	`

	tag, err := executor(ctx, r.pool).Exec(ctx, sql, t.ID, t.Status, t.UpdatedAt)
	if err != nil {
		return mapError("update transaction", err)
	}
	if tag.RowsAffected() == 0 {
		return record.ErrNotFound
	}
	return nil
}

func (r *TransactionRepository) List(ctx context.Context, limit int) ([]transaction.Transaction, error) {
	const sql = `SELECT ` + transactionColumns + ` FROM transactions ORDER BY created_at DESC LIMIT $1`

	return r.query(ctx, "list transactions", sql, record.ClampLimit(limit))
}

func (r *TransactionRepository) ListStalePending(ctx context.Context, createdBefore time.Time, limit int) ([]transaction.Transaction, error) {
	const sql = `
		SELECT ` + transactionColumns + `
		FROM transactions
		WHERE status = 'pending' AND queued AND created_at < $1
		ORDER BY created_at
		LIMIT $2
	`

	return r.query(ctx, "list stale transactions", sql, createdBefore, record.ClampLimit(limit))
}

func (r *TransactionRepository) query(ctx context.Context, op, sql string, args ...any) ([]transaction.Transaction, error) {
	rows, err := executor(ctx, r.pool).Query(ctx, sql, args...)
	if err != nil {
		return nil, mapError(op, err)
	}
	defer rows.Close()

	var out []transaction.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, mapError(op, err)
		}
		out = append(out, t)
	}
	return out, mapError(op, rows.Err())
}
