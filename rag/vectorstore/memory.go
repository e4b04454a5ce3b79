package vectorstore

import (
	"context"
	"fmt"
	"sync"
)

// MemoryStore is an in-process Store backed by a map.
//
// Intended for tests and ephemeral indexes; contents are lost on
// process exit. Exact brute-force cosine search.
type MemoryStore struct {
	mu    sync.RWMutex
	items map[string]Item
	dim   int
}

// NewMemoryStore creates an empty MemoryStore.
//
// The dimensionality is fixed by the first upserted item; subsequent
// items with a different dimension are rejected with ErrDimension.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[string]Item)}
}

// Upsert implements Store.
func (s *MemoryStore) Upsert(ctx context.Context, items []Item) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, item := range items {
		if item.ID == "" {
			return fmt.Errorf("item with empty ID")
		}
		if s.dim == 0 {
			s.dim = len(item.Vector)
		}
		if len(item.Vector) != s.dim {
			return fmt.Errorf("%w: store has %d, item %q has %d", ErrDimension, s.dim, item.ID, len(item.Vector))
		}

		stored := Item{
			ID:     item.ID,
			Vector: make([]float32, len(item.Vector)),
			Meta:   make(map[string]string, len(item.Meta)),
		}
		copy(stored.Vector, item.Vector)
		for k, v := range item.Meta {
			stored.Meta[k] = v
		}
		s.items[item.ID] = stored
	}
	return nil
}

// Query implements Store.
func (s *MemoryStore) Query(ctx context.Context, vec []float32, topK int) ([]Match, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if topK <= 0 {
		return []Match{}, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.items) > 0 && len(vec) != s.dim {
		return nil, fmt.Errorf("%w: store has %d, query has %d", ErrDimension, s.dim, len(vec))
	}

	collector := newTopKCollector(topK)
	for _, item := range s.items {
		meta := make(map[string]string, len(item.Meta))
		for k, v := range item.Meta {
			meta[k] = v
		}
		collector.add(Match{
			ID:    item.ID,
			Score: Cosine(vec, item.Vector),
			Meta:  meta,
		})
	}
	return collector.results(), nil
}

// Delete implements Store.
func (s *MemoryStore) Delete(ctx context.Context, ids []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		delete(s.items, id)
	}
	return nil
}

// Count implements Store.
func (s *MemoryStore) Count(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items), nil
}

// Close implements Store. It is a no-op for the memory backend.
func (s *MemoryStore) Close() error { return nil }
