package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"taskstream/internal/domain/record"
)

// Store is an in-process record.Repository. The key index mirrors the unique
// constraint of the postgres schema.
type Store[T record.Entity] struct {
	mu    sync.RWMutex
	byID  map[string]T
	byKey map[string]string

	// txMu serializes WithinTransaction callers.
	txMu sync.Mutex
}

func NewStore[T record.Entity](seed ...T) *Store[T] {
	s := &Store[T]{
		byID:  make(map[string]T, len(seed)),
		byKey: make(map[string]string, len(seed)),
	}
	for _, item := range seed {
		s.byID[item.RecordID()] = item
		s.byKey[item.Key()] = item.RecordID()
	}
	return s
}

func (s *Store[T]) GetByID(_ context.Context, id string) (T, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	item, ok := s.byID[id]
	if !ok {
		var zero T
		return zero, record.ErrNotFound
	}
	return item, nil
}

func (s *Store[T]) GetForUpdate(ctx context.Context, id string) (T, error) {
	return s.GetByID(ctx, id)
}

func (s *Store[T]) GetByIdempotencyKey(_ context.Context, key string) (T, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byKey[key]
	if !ok {
		var zero T
		return zero, record.ErrNotFound
	}
	return s.byID[id], nil
}

func (s *Store[T]) Create(_ context.Context, item T) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byKey[item.Key()]; exists {
		return record.ErrDuplicateKey
	}
	s.byID[item.RecordID()] = item
	s.byKey[item.Key()] = item.RecordID()
	return nil
}

func (s *Store[T]) Update(_ context.Context, item T) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byID[item.RecordID()]; !exists {
		return record.ErrNotFound
	}
	s.byID[item.RecordID()] = item
	return nil
}

func (s *Store[T]) List(_ context.Context, limit int) ([]T, error) {
	s.mu.RLock()
	items := make([]T, 0, len(s.byID))
	for _, item := range s.byID {
		items = append(items, item)
	}
	s.mu.RUnlock()

	sortNewestFirst(items)
	if limit = record.ClampLimit(limit); len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

func (s *Store[T]) ListStalePending(_ context.Context, createdBefore time.Time, limit int) ([]T, error) {
	s.mu.RLock()
	items := make([]T, 0)
	for _, item := range s.byID {
		if item.State() == record.StatusPending && item.Dispatch().Queued && item.Created().Before(createdBefore) {
			items = append(items, item)
		}
	}
	s.mu.RUnlock()

	sort.Slice(items, func(i, j int) bool {
		return items[i].Created().Before(items[j].Created())
	})
	if limit = record.ClampLimit(limit); len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

func (s *Store[T]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}

// WithinTransaction gives fn exclusive access relative to other transactions,
// the closest in-memory analogue of SELECT ... FOR UPDATE.
func (s *Store[T]) WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	return fn(ctx)
}

func sortNewestFirst[T record.Entity](items []T) {
	sort.Slice(items, func(i, j int) bool {
		return items[i].Created().After(items[j].Created())
	})
}
