package memory

import (
	"context"
	"sync"

	"tse-market-sync/internal/domain"
	"tse-market-sync/internal/storage"
)

// ReferenceStore is an in-memory implementation of storage.ReferenceStore.
// InstrumentStore writes new sectors, sub-sectors and markets through it.
type ReferenceStore struct {
	mu   sync.RWMutex
	refs *domain.ReferenceSet
}

// NewReferenceStore creates a new in-memory reference store.
func NewReferenceStore() *ReferenceStore {
	return &ReferenceStore{refs: domain.NewReferenceSet()}
}

// GetAll returns a copy of all reference tables.
func (s *ReferenceStore) GetAll(_ context.Context) (*domain.ReferenceSet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := domain.NewReferenceSet()
	for k, v := range s.refs.Types {
		out.Types[k] = v
	}
	for k, v := range s.refs.Sectors {
		out.Sectors[k] = v
	}
	for k, v := range s.refs.SubSectors {
		out.SubSectors[k] = v
	}
	for k, v := range s.refs.Markets {
		out.Markets[k] = v
	}
	return out, nil
}

// InsertTypes adds instrument types. Existing codes are left untouched.
func (s *ReferenceStore) InsertTypes(_ context.Context, types []domain.InstrumentType) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, t := range types {
		if _, exists := s.refs.Types[t.ID]; !exists {
			s.refs.Types[t.ID] = t
		}
	}
	return nil
}

// validate checks that every reference the change set needs exists either
// locally or in the change set itself. Caller must hold s.mu.
func (s *ReferenceStore) validate(cs *domain.ChangeSet) error {
	sectors := make(map[int]struct{}, len(cs.Sectors))
	for _, sec := range cs.Sectors {
		sectors[sec.ID] = struct{}{}
	}
	subSectors := make(map[int]struct{}, len(cs.SubSectors))
	for _, sub := range cs.SubSectors {
		if _, ok := sectors[sub.SectorID]; !ok && !s.refs.HasSector(sub.SectorID) {
			return storage.ErrInvalidInput
		}
		subSectors[sub.ID] = struct{}{}
	}
	markets := make(map[int]struct{}, len(cs.Markets))
	for _, m := range cs.Markets {
		markets[m.ID] = struct{}{}
	}

	check := func(inst *domain.Instrument) error {
		if inst == nil || inst.Key == "" {
			return storage.ErrInvalidInput
		}
		if !s.refs.HasType(inst.TypeID) {
			return storage.ErrInvalidInput
		}
		if inst.SectorID != nil {
			if _, ok := sectors[*inst.SectorID]; !ok && !s.refs.HasSector(*inst.SectorID) {
				return storage.ErrInvalidInput
			}
		}
		if inst.SubSectorID != nil {
			if _, ok := subSectors[*inst.SubSectorID]; !ok && !s.refs.HasSubSector(*inst.SubSectorID) {
				return storage.ErrInvalidInput
			}
		}
		if inst.MarketID != nil {
			if _, ok := markets[*inst.MarketID]; !ok && !s.refs.HasMarket(*inst.MarketID) {
				return storage.ErrInvalidInput
			}
		}
		return nil
	}

	for _, inst := range cs.Inserts {
		if err := check(inst); err != nil {
			return err
		}
	}
	for _, inst := range cs.Reclassifications {
		if err := check(inst); err != nil {
			return err
		}
	}
	return nil
}

// applyRefs writes the reference entries of a validated change set. Caller must hold s.mu.
func (s *ReferenceStore) applyRefs(cs *domain.ChangeSet) {
	for _, sec := range cs.Sectors {
		if !s.refs.HasSector(sec.ID) {
			s.refs.Sectors[sec.ID] = sec
		}
	}
	for _, sub := range cs.SubSectors {
		if !s.refs.HasSubSector(sub.ID) {
			s.refs.SubSectors[sub.ID] = sub
		}
	}
	for _, m := range cs.Markets {
		if !s.refs.HasMarket(m.ID) {
			s.refs.Markets[m.ID] = m
		}
	}
}

var _ storage.ReferenceStore = (*ReferenceStore)(nil)
