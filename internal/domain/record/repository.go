package record

import (
	"context"
	"time"
)

// Repository is the store contract for one entity type. Implementations must
// enforce idempotency-key uniqueness and report a violation as ErrDuplicateKey.
type Repository[T Entity] interface {
	GetByID(ctx context.Context, id string) (T, error)
	// GetForUpdate behaves like GetByID but locks the row for the
	// surrounding transaction when one is active.
	GetForUpdate(ctx context.Context, id string) (T, error)
	GetByIdempotencyKey(ctx context.Context, key string) (T, error)
	Create(ctx context.Context, item T) error
	Update(ctx context.Context, item T) error
	List(ctx context.Context, limit int) ([]T, error)
	// ListStalePending returns pending records created with a job
	// (Dispatch().Queued) before createdBefore, oldest first.
	ListStalePending(ctx context.Context, createdBefore time.Time, limit int) ([]T, error)
}

// Transactor runs fn inside a single store transaction.
type Transactor interface {
	WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

const (
	DefaultListLimit = 100
	MaxListLimit     = 500
)

// ClampLimit normalizes a caller-supplied list limit.
func ClampLimit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	if limit > MaxListLimit {
		return MaxListLimit
	}
	return limit
}
