package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"taskstream/internal/domain/record"
)

// GetRecord reads one record by id through an optional short-lived cache.
type GetRecord[T record.Entity] struct {
	repo     record.Repository[T]
	cache    Cache
	prefix   string
	cacheTTL time.Duration
}

// NewGetRecord builds a reader; cache may be nil. The TTL is kept short
// because status changes are pushed to observers while the entry lives.
func NewGetRecord[T record.Entity](repo record.Repository[T], cache Cache, prefix string, cacheTTL time.Duration) *GetRecord[T] {
	if cacheTTL <= 0 {
		cacheTTL = time.Second
	}
	return &GetRecord[T]{repo: repo, cache: cache, prefix: prefix, cacheTTL: cacheTTL}
}

func (uc *GetRecord[T]) Execute(ctx context.Context, id string) (T, error) {
	cacheKey := fmt.Sprintf("%s:%s", uc.prefix, id)

	if uc.cache != nil {
		if b, ok := uc.cache.Get(ctx, cacheKey); ok {
			var cached T
			if err := json.Unmarshal(b, &cached); err == nil {
				return cached, nil
			}
		}
	}

	item, err := uc.repo.GetByID(ctx, id)
	if err != nil {
		var zero T
		return zero, fmt.Errorf("get %s: %w", uc.prefix, err)
	}

	if uc.cache != nil {
		if data, err := json.Marshal(item); err == nil {
			uc.cache.Set(ctx, cacheKey, data, uc.cacheTTL)
		}
	}
	return item, nil
}

// ListRecords returns the most recent records first.
type ListRecords[T record.Entity] struct {
	repo record.Repository[T]
}

func NewListRecords[T record.Entity](repo record.Repository[T]) *ListRecords[T] {
	return &ListRecords[T]{repo: repo}
}

func (uc *ListRecords[T]) Execute(ctx context.Context, limit int) ([]T, error) {
	items, err := uc.repo.List(ctx, record.ClampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	return items, nil
}
