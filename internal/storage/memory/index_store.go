package memory

import (
	"context"
	"sort"
	"sync"

	"tse-market-sync/internal/domain"
	"tse-market-sync/internal/storage"
)

// IndexStore is an in-memory implementation of storage.IndexStore.
type IndexStore struct {
	mu   sync.RWMutex
	data map[string]*domain.Index
}

// NewIndexStore creates a new in-memory index store.
func NewIndexStore() *IndexStore {
	return &IndexStore{data: make(map[string]*domain.Index)}
}

// Insert adds a new index. Returns ErrDuplicateKey if key exists.
func (s *IndexStore) Insert(_ context.Context, idx *domain.Index) error {
	if idx == nil || idx.Key == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[idx.Key]; exists {
		return storage.ErrDuplicateKey
	}
	idxCopy := *idx
	s.data[idx.Key] = &idxCopy
	return nil
}

// GetAll retrieves all indices ordered by key.
func (s *IndexStore) GetAll(_ context.Context) ([]*domain.Index, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.Index, 0, len(s.data))
	for _, idx := range s.data {
		idxCopy := *idx
		result = append(result, &idxCopy)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Key < result[j].Key
	})
	return result, nil
}

var _ storage.IndexStore = (*IndexStore)(nil)
