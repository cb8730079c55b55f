// Package idempotency turns client retries into no-ops: a request whose key
// already maps to a record gets that record back instead of a new one.
package idempotency

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"taskstream/internal/domain/record"
)

// MaxKeyLength bounds caller-supplied keys; derived keys are 64 hex chars.
const MaxKeyLength = 255

var ErrKeyTooLong = fmt.Errorf("idempotency key longer than %d characters", MaxKeyLength)

// SelectKey picks the key for a request: the explicit (header) key, then the
// key embedded in the payload, then the derived fallback.
func SelectKey(supplied, embedded string, fallback func() string) string {
	if k := strings.TrimSpace(supplied); k != "" {
		return k
	}
	if k := strings.TrimSpace(embedded); k != "" {
		return k
	}
	return fallback()
}

type Resolver[T record.Entity] struct {
	repo   record.Repository[T]
	logger *slog.Logger
}

func NewResolver[T record.Entity](repo record.Repository[T], logger *slog.Logger) *Resolver[T] {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver[T]{repo: repo, logger: logger.With("component", "idempotency")}
}

// Resolve returns the record stored under key, creating it with build when
// absent. created is true only for the caller whose insert won; every other
// caller, including the losers of a concurrent first insert, gets the winner.
func (r *Resolver[T]) Resolve(ctx context.Context, key string, build func(key string) T) (item T, created bool, err error) {
	if len(key) > MaxKeyLength {
		return item, false, ErrKeyTooLong
	}

	existing, err := r.repo.GetByIdempotencyKey(ctx, key)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, record.ErrNotFound) {
		return item, false, fmt.Errorf("lookup idempotency key: %w", err)
	}

	candidate := build(key)
	err = r.repo.Create(ctx, candidate)
	if err == nil {
		return candidate, true, nil
	}
	if !errors.Is(err, record.ErrDuplicateKey) {
		return item, false, fmt.Errorf("create record: %w", err)
	}

	winner, lookupErr := r.repo.GetByIdempotencyKey(ctx, key)
	if lookupErr != nil {
		return item, false, fmt.Errorf("lookup idempotency key after conflict: %w", lookupErr)
	}
	r.logger.Debug("idempotency race resolved", "key", key, "id", winner.RecordID())
	return winner, false, nil
}
