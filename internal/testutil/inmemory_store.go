package testutil

import (
	"context"
	"sort"
	"sync"

	ierr "github.com/revuo/revuo/internal/errors"
)

// InMemoryStore is a generic map-backed store used by the in-memory repositories.
type InMemoryStore[T any] struct {
	mu    sync.RWMutex
	items map[string]T
}

// NewInMemoryStore creates an empty store
func NewInMemoryStore[T any]() *InMemoryStore[T] {
	return &InMemoryStore[T]{
		items: make(map[string]T),
	}
}

func (s *InMemoryStore[T]) Create(_ context.Context, id string, item T) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.items[id]; exists {
		return ierr.NewErrorf("item %s already exists", id).
			Mark(ierr.ErrAlreadyExists)
	}
	s.items[id] = item
	return nil
}

func (s *InMemoryStore[T]) Get(_ context.Context, id string) (T, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	item, ok := s.items[id]
	if !ok {
		var zero T
		return zero, ierr.NewErrorf("item %s not found", id).
			Mark(ierr.ErrNotFound)
	}
	return item, nil
}

// List returns the items accepted by filterFn ordered by sortFn. Pagination is left to callers.
func (s *InMemoryStore[T]) List(ctx context.Context, filter interface{}, filterFn func(context.Context, T, interface{}) bool, sortFn func(i, j T) bool) ([]T, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]T, 0, len(s.items))
	for _, item := range s.items {
		if filterFn == nil || filterFn(ctx, item, filter) {
			result = append(result, item)
		}
	}
	if sortFn != nil {
		sort.SliceStable(result, func(i, j int) bool {
			return sortFn(result[i], result[j])
		})
	}
	return result, nil
}

func (s *InMemoryStore[T]) Count(ctx context.Context, filter interface{}, filterFn func(context.Context, T, interface{}) bool) (int, error) {
	items, err := s.List(ctx, filter, filterFn, nil)
	if err != nil {
		return 0, err
	}
	return len(items), nil
}

func (s *InMemoryStore[T]) Update(_ context.Context, id string, item T) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.items[id]; !ok {
		return ierr.NewErrorf("item %s not found", id).
			Mark(ierr.ErrNotFound)
	}
	s.items[id] = item
	return nil
}

// CompareAndSwap replaces the item under id only when check accepts the stored value.
func (s *InMemoryStore[T]) CompareAndSwap(_ context.Context, id string, check func(stored T) error, item T) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.items[id]
	if !ok {
		return ierr.NewErrorf("item %s not found", id).
			Mark(ierr.ErrNotFound)
	}
	if err := check(stored); err != nil {
		return err
	}
	s.items[id] = item
	return nil
}

func (s *InMemoryStore[T]) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.items[id]; !ok {
		return ierr.NewErrorf("item %s not found", id).
			Mark(ierr.ErrNotFound)
	}
	delete(s.items, id)
	return nil
}

// Clear removes every item.
func (s *InMemoryStore[T]) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = make(map[string]T)
}

// paginate applies limit/offset the way the postgres repositories do. Limit 0 means no limit.
func paginate[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return []T{}
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
