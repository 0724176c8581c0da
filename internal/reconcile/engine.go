// Package reconcile compares a normalized remote snapshot with local state and
// derives the writes that bring local state up to date.
package reconcile

import (
	"fmt"
	"sort"
	"strings"

	"tse-market-sync/internal/domain"
	"tse-market-sync/internal/report"
)

// Change is a local record whose mutable fields differ from the remote record.
type Change struct {
	Local  *domain.Instrument
	Remote *domain.Instrument
	Fields []string
}

// Stripped records an optional reference dropped from a new record because
// its code is unknown locally and the provider supplied no title for it.
type Stripped struct {
	Key   string
	Field string
	Code  int
}

// Outcome is the classification of one remote snapshot against local state.
type Outcome struct {
	New                   []*domain.RemoteInstrument
	Changed               []Change
	Unchanged             int
	UnknownClassification []*domain.RemoteInstrument
	Repeated              []*domain.RemoteInstrument

	// Reference entries to insert before New.
	Sectors    []domain.Sector
	SubSectors []domain.SubSector
	Markets    []domain.Market

	Stripped []Stripped
}

// Diff classifies remote against local. Records are matched by key only.
// Changes to type, sector, sub-sector or market of an existing record are not
// detected here; the identity flow reclassifies instruments explicitly. The
// unknown type filter applies to new records only. A nil local snapshot is
// treated as empty.
func Diff(remote []*domain.RemoteInstrument, local *domain.LocalSnapshot) *Outcome {
	if local == nil {
		local = &domain.LocalSnapshot{}
	}
	refs := local.References
	if refs == nil {
		refs = domain.NewReferenceSet()
	}

	out := &Outcome{}
	unique, repeated := PartitionByKey(remote)
	out.Repeated = repeated

	byKey := make(map[string]*domain.Instrument, len(local.Instruments))
	for _, inst := range local.Instruments {
		byKey[inst.Key] = inst
	}

	var candidates []*domain.RemoteInstrument
	for _, r := range unique {
		l, exists := byKey[r.Key]
		if !exists {
			candidates = append(candidates, r)
			continue
		}
		if l.MutableFieldsEqual(&r.Instrument) {
			out.Unchanged++
			continue
		}
		out.Changed = append(out.Changed, Change{
			Local:  l,
			Remote: r.Instrument.Clone(),
			Fields: l.ChangedFields(&r.Instrument),
		})
	}

	known, unknown := PartitionByClassification(candidates, refs)
	out.UnknownClassification = unknown

	pending := newPendingRefs(refs)
	for _, r := range known {
		out.New = append(out.New, pending.resolve(r, &out.Stripped))
	}

	out.Sectors = pending.sectors
	out.SubSectors = pending.subSectors
	out.Markets = pending.markets
	return out
}

// ChangeSet returns the writes the outcome implies: new reference entries,
// inserts of new records and mutable-field updates of changed ones.
func (o *Outcome) ChangeSet() *domain.ChangeSet {
	cs := &domain.ChangeSet{
		Sectors:    append([]domain.Sector(nil), o.Sectors...),
		SubSectors: append([]domain.SubSector(nil), o.SubSectors...),
		Markets:    append([]domain.Market(nil), o.Markets...),
	}
	for _, r := range o.New {
		cs.Inserts = append(cs.Inserts, r.Instrument.Clone())
	}
	for _, c := range o.Changed {
		cs.Updates = append(cs.Updates, c.Remote.Clone())
	}
	return cs
}

// UnknownCodes returns the distinct unknown type codes in ascending order.
func (o *Outcome) UnknownCodes() []int {
	seen := make(map[int]struct{})
	var codes []int
	for _, r := range o.UnknownClassification {
		if _, ok := seen[r.TypeID]; !ok {
			seen[r.TypeID] = struct{}{}
			codes = append(codes, r.TypeID)
		}
	}
	sort.Ints(codes)
	return codes
}

// Report writes the outcome to rep in a fixed order.
func (o *Outcome) Report(rep *report.Report) {
	rep.Infof("New instruments: %d", len(o.New))
	rep.Infof("Changed instruments: %d", len(o.Changed))
	rep.Infof("Unchanged instruments: %d", o.Unchanged)

	for _, c := range o.Changed {
		rep.Infof("Changed %s (%s): %s", c.Remote.Key, c.Remote.Ticker, strings.Join(c.Fields, ", "))
	}

	if len(o.UnknownClassification) > 0 {
		codes := make([]string, 0)
		for _, code := range o.UnknownCodes() {
			codes = append(codes, fmt.Sprint(code))
		}
		rep.Infof("Unknown instrument types: %s", strings.Join(codes, ", "))

		raw := make([]string, 0, len(o.UnknownClassification))
		for _, r := range o.UnknownClassification {
			raw = append(raw, fmt.Sprintf("%+v", r.Instrument))
		}
		rep.Warnf("Instruments with unknown type were not inserted: %s", strings.Join(raw, "; "))
	}

	for _, s := range o.Stripped {
		rep.Infof("Dropped unknown %s %d from %s", s.Field, s.Code, s.Key)
	}
	for _, r := range o.Repeated {
		rep.Warnf("Duplicate key %s in remote snapshot ignored (ticker %s)", r.Key, r.Ticker)
	}
}

// pendingRefs tracks reference entries that will be inserted in this run.
type pendingRefs struct {
	local      *domain.ReferenceSet
	sectors    []domain.Sector
	subSectors []domain.SubSector
	markets    []domain.Market

	sectorIDs    map[int]struct{}
	subSectorIDs map[int]struct{}
	marketIDs    map[int]struct{}
}

func newPendingRefs(local *domain.ReferenceSet) *pendingRefs {
	return &pendingRefs{
		local:        local,
		sectorIDs:    make(map[int]struct{}),
		subSectorIDs: make(map[int]struct{}),
		marketIDs:    make(map[int]struct{}),
	}
}

func (p *pendingRefs) hasSector(id int) bool {
	_, ok := p.sectorIDs[id]
	return ok || p.local.HasSector(id)
}

func (p *pendingRefs) hasSubSector(id int) bool {
	_, ok := p.subSectorIDs[id]
	return ok || p.local.HasSubSector(id)
}

func (p *pendingRefs) hasMarket(id int) bool {
	_, ok := p.marketIDs[id]
	return ok || p.local.HasMarket(id)
}

// resolve returns a copy of r whose optional references all exist locally or
// are scheduled for insertion. Unresolvable references are stripped.
func (p *pendingRefs) resolve(r *domain.RemoteInstrument, stripped *[]Stripped) *domain.RemoteInstrument {
	out := &domain.RemoteInstrument{Instrument: *r.Instrument.Clone()}
	inst := &out.Instrument

	if inst.SectorID == nil && r.Sector != nil {
		inst.SectorID = domain.IntPtr(r.Sector.ID)
	}
	if inst.SubSectorID == nil && r.SubSector != nil {
		inst.SubSectorID = domain.IntPtr(r.SubSector.ID)
	}
	if inst.MarketID == nil && r.Market != nil {
		inst.MarketID = domain.IntPtr(r.Market.ID)
	}

	if id := inst.SectorID; id != nil && !p.hasSector(*id) {
		if r.Sector != nil && r.Sector.ID == *id && r.Sector.Title != "" {
			p.sectors = append(p.sectors, *r.Sector)
			p.sectorIDs[*id] = struct{}{}
		} else {
			*stripped = append(*stripped, Stripped{Key: inst.Key, Field: "sector", Code: *id})
			inst.SectorID = nil
		}
	}

	if id := inst.SubSectorID; id != nil && !p.hasSubSector(*id) {
		sub := r.SubSector
		if sub != nil && sub.ID == *id && sub.Title != "" && p.hasSector(sub.SectorID) {
			p.subSectors = append(p.subSectors, *sub)
			p.subSectorIDs[*id] = struct{}{}
		} else {
			*stripped = append(*stripped, Stripped{Key: inst.Key, Field: "sub-sector", Code: *id})
			inst.SubSectorID = nil
		}
	}

	if id := inst.MarketID; id != nil && !p.hasMarket(*id) {
		if r.Market != nil && r.Market.ID == *id && r.Market.Title != "" {
			p.markets = append(p.markets, *r.Market)
			p.marketIDs[*id] = struct{}{}
		} else {
			*stripped = append(*stripped, Stripped{Key: inst.Key, Field: "market", Code: *id})
			inst.MarketID = nil
		}
	}

	out.Sector = r.Sector
	out.SubSector = r.SubSector
	out.Market = r.Market
	return out
}
