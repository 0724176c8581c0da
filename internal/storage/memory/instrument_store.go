package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"tse-market-sync/internal/domain"
	"tse-market-sync/internal/storage"
)

// InstrumentStore is an in-memory implementation of storage.InstrumentStore.
type InstrumentStore struct {
	mu   sync.RWMutex
	data map[string]*domain.Instrument // keyed by instrument key
	refs *ReferenceStore
}

// NewInstrumentStore creates a new in-memory instrument store backed by refs.
func NewInstrumentStore(refs *ReferenceStore) *InstrumentStore {
	return &InstrumentStore{
		data: make(map[string]*domain.Instrument),
		refs: refs,
	}
}

// GetAll retrieves all instruments ordered by key.
func (s *InstrumentStore) GetAll(_ context.Context) ([]*domain.Instrument, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.collect(func(*domain.Instrument) bool { return true }), nil
}

// GetByKey retrieves an instrument by its key. Returns ErrNotFound if not exists.
func (s *InstrumentStore) GetByKey(_ context.Context, key string) (*domain.Instrument, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	inst, exists := s.data[key]
	if !exists {
		return nil, storage.ErrNotFound
	}
	return inst.Clone(), nil
}

// GetByTicker retrieves all instruments whose ticker equals ticker.
func (s *InstrumentStore) GetByTicker(_ context.Context, ticker string) ([]*domain.Instrument, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.collect(func(i *domain.Instrument) bool { return i.Ticker == ticker }), nil
}

// Search retrieves instruments by key (exact) or ticker (contains).
func (s *InstrumentStore) Search(_ context.Context, by domain.SearchBy, term string) ([]*domain.Instrument, error) {
	if !by.IsValid() {
		return nil, storage.ErrInvalidInput
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if by == domain.SearchByKey {
		return s.collect(func(i *domain.Instrument) bool { return i.Key == term }), nil
	}
	return s.collect(func(i *domain.Instrument) bool { return strings.Contains(i.Ticker, term) }), nil
}

// Apply writes a change set atomically: either every write lands or none does.
func (s *InstrumentStore) Apply(_ context.Context, cs *domain.ChangeSet) error {
	if cs == nil {
		return storage.ErrInvalidInput
	}

	s.refs.mu.Lock()
	defer s.refs.mu.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.refs.validate(cs); err != nil {
		return err
	}

	batchKeys := make(map[string]struct{}, len(cs.Inserts))
	for _, inst := range cs.Inserts {
		if _, exists := s.data[inst.Key]; exists {
			return storage.ErrDuplicateKey
		}
		if _, exists := batchKeys[inst.Key]; exists {
			return storage.ErrDuplicateKey
		}
		batchKeys[inst.Key] = struct{}{}
	}
	for _, inst := range cs.Updates {
		if inst == nil {
			return storage.ErrInvalidInput
		}
		if _, exists := s.data[inst.Key]; !exists {
			return storage.ErrNotFound
		}
	}
	for _, inst := range cs.Reclassifications {
		if _, exists := s.data[inst.Key]; !exists {
			return storage.ErrNotFound
		}
	}

	s.refs.applyRefs(cs)
	for _, inst := range cs.Inserts {
		s.data[inst.Key] = inst.Clone()
	}
	for _, inst := range cs.Updates {
		stored := s.data[inst.Key]
		stored.Ticker = inst.Ticker
		stored.NameLocal = inst.NameLocal
		stored.NameForeign = inst.NameForeign
		stored.ShortCode = inst.ShortCode
	}
	for _, inst := range cs.Reclassifications {
		c := inst.Clone()
		stored := s.data[inst.Key]
		stored.SectorID = c.SectorID
		stored.SubSectorID = c.SubSectorID
		stored.MarketID = c.MarketID
	}
	return nil
}

// collect returns copies of matching instruments ordered by key. Caller must hold s.mu.
func (s *InstrumentStore) collect(match func(*domain.Instrument) bool) []*domain.Instrument {
	var result []*domain.Instrument
	for _, inst := range s.data {
		if match(inst) {
			result = append(result, inst.Clone())
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Key < result[j].Key
	})
	return result
}

var _ storage.InstrumentStore = (*InstrumentStore)(nil)
