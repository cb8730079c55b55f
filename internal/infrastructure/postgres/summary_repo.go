package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"taskstream/internal/domain/record"
	"taskstream/internal/domain/summary"
)

const summaryColumns = `id, source, text, status, result, error, idempotency_key, created_at, updated_at, queued, force_fail`

type SummaryRepository struct {
	pool *pgxpool.Pool
}

func NewSummaryRepository(pool *pgxpool.Pool) *SummaryRepository {
	return &SummaryRepository{pool: pool}
}

func scanSummary(row pgx.Row) (summary.Summary, error) {
	var s summary.Summary
	err := row.Scan(&s.ID, &s.Source, &s.Text, &s.Status, &s.Result, &s.Error, &s.IdempotencyKey, &s.CreatedAt, &s.UpdatedAt, &s.Queued, &s.ForceFail)
	return s, err
}

func (r *SummaryRepository) GetByID(ctx context.Context, id string) (summary.Summary, error) {
	const sql = `SELECT ` + summaryColumns + ` FROM summaries WHERE id = $1`

	s, err := scanSummary(executor(ctx, r.pool).QueryRow(ctx, sql, id))
	return s, mapError("get summary by id", err)
}

func (r *SummaryRepository) GetForUpdate(ctx context.Context, id string) (summary.Summary, error) {
	if GetTx(ctx) == nil {
		return r.GetByID(ctx, id)
	}
	const sql = `SELECT ` + summaryColumns + ` FROM summaries WHERE id = $1 FOR UPDATE`

	s, err := scanSummary(executor(ctx, r.pool).QueryRow(ctx, sql, id))
	return s, mapError("lock summary", err)
}

func (r *SummaryRepository) GetByIdempotencyKey(ctx context.Context, key string) (summary.Summary, error) {
	const sql = `SELECT ` + summaryColumns + ` FROM summaries WHERE idempotency_key = $1`

	s, err := scanSummary(executor(ctx, r.pool).QueryRow(ctx, sql, key))
	return s, mapError("get summary by key", err)
}

func (r *SummaryRepository) Create(ctx context.Context, s summary.Summary) error {
	const sql = `
		INSERT INTO summaries (` + summaryColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err := executor(ctx, r.pool).Exec(ctx, sql,
		s.ID, s.Source, s.Text, s.Status, s.Result, s.Error, s.IdempotencyKey, s.CreatedAt, s.UpdatedAt, s.Queued, s.ForceFail)
	return mapError("insert summary", err)
}

func (r *SummaryRepository) Update(ctx context.Context, s summary.Summary) error {
	const sql = `
		UPDATE summaries
		SET status = $2, result = $3, error = $4, updated_at = $5
		WHERE id = $1
	`

	tag, err := executor(ctx, r.pool).Exec(ctx, sql, s.ID, s.Status, s.Result, s.Error, s.UpdatedAt)
	if err != nil {
		return mapError("update summary", err)
	}
	if tag.RowsAffected() == 0 {
		return record.ErrNotFound
	}
	return nil
}

func (r *SummaryRepository) List(ctx context.Context, limit int) ([]summary.Summary, error) {
	const sql = `SELECT ` + summaryColumns + ` FROM summaries ORDER BY created_at DESC LIMIT $1`

	return r.query(ctx, "list summaries", sql, record.ClampLimit(limit))
}

func (r *SummaryRepository) ListStalePending(ctx context.Context, createdBefore time.Time, limit int) ([]summary.Summary, error) {
	const sql = `
		SELECT ` + summaryColumns + `
		FROM summaries
		WHERE status = 'pending' AND queued AND created_at < $1
		ORDER BY created_at
		LIMIT $2
	`

	return r.query(ctx, "list stale summaries", sql, createdBefore, record.ClampLimit(limit))
}

func (r *SummaryRepository) query(ctx context.Context, op, sql string, args ...any) ([]summary.Summary, error) {
	rows, err := executor(ctx, r.pool).Query(ctx, sql, args...)
	if err != nil {
		return nil, mapError(op, err)
	}
	defer rows.Close()

	var out []summary.Summary
	for rows.Next() {
		s, err := scanSummary(rows)
		if err != nil {
			return nil, mapError(op, err)
		}
		out = append(out, s)
	}
	return out, mapError(op, rows.Err())
}
