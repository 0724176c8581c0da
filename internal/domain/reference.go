package domain

// InstrumentType classifies instruments (shares, rights, bonds, funds...).
// Corresponds to instrument_type table in PostgreSQL.
type InstrumentType struct {
	ID    int
	Title string
}

// Sector is an industry sector.
// Corresponds to industry_sector table in PostgreSQL.
type Sector struct {
	ID    int
	Title string
}

// SubSector is a subset of a Sector.
// Corresponds to industry_sub_sector table in PostgreSQL.
type SubSector struct {
	ID       int
	SectorID int
	Title    string
}

// Market identifies the exchange board an instrument is traded on.
// Corresponds to exchange_market table in PostgreSQL.
type Market struct {
	ID    int
	Title string
}

// ReferenceSet holds the reference tables keyed by code.
type ReferenceSet struct {
	Types      map[int]InstrumentType
	Sectors    map[int]Sector
	SubSectors map[int]SubSector
	Markets    map[int]Market
}

// NewReferenceSet creates an empty ReferenceSet.
func NewReferenceSet() *ReferenceSet {
	return &ReferenceSet{
		Types:      make(map[int]InstrumentType),
		Sectors:    make(map[int]Sector),
		SubSectors: make(map[int]SubSector),
		Markets:    make(map[int]Market),
	}
}

// HasType reports whether the instrument type code is known.
func (r *ReferenceSet) HasType(id int) bool {
	_, ok := r.Types[id]
	return ok
}

// HasSector reports whether the sector code is known.
func (r *ReferenceSet) HasSector(id int) bool {
	_, ok := r.Sectors[id]
	return ok
}

// HasSubSector reports whether the sub-sector code is known.
func (r *ReferenceSet) HasSubSector(id int) bool {
	_, ok := r.SubSectors[id]
	return ok
}

// HasMarket reports whether the market code is known.
func (r *ReferenceSet) HasMarket(id int) bool {
	_, ok := r.Markets[id]
	return ok
}

// LocalSnapshot is the local state read once at the start of a reconciliation run.
type LocalSnapshot struct {
	Instruments []*Instrument
	References  *ReferenceSet
}

// ChangeSet is the set of writes produced by one reconciliation run.
// Stores apply it in a single transaction: reference entries first, then
// inserts, updates and reclassifications.
type ChangeSet struct {
	Sectors    []Sector
	SubSectors []SubSector
	Markets    []Market

	Inserts []*Instrument

	// Updates overwrite ticker, names and short code of existing instruments.
	Updates []*Instrument

	// Reclassifications overwrite sector, sub-sector and market of existing instruments.
	Reclassifications []*Instrument
}

// IsEmpty reports whether the change set holds no writes.
func (c *ChangeSet) IsEmpty() bool {
	return len(c.Sectors) == 0 && len(c.SubSectors) == 0 && len(c.Markets) == 0 &&
		len(c.Inserts) == 0 && len(c.Updates) == 0 && len(c.Reclassifications) == 0
}

// DefaultInstrumentTypes are the instrument types every store starts with.
// The Postgres migration seeds the same rows.
var DefaultInstrumentTypes = []InstrumentType{
	{ID: 300, Title: "Exchange shares"},
	{ID: 303, Title: "Fara-bourse shares"},
	{ID: 305, Title: "Investment funds"},
	{ID: 306, Title: "Debt securities"},
	{ID: 309, Title: "Base market shares"},
	{ID: 380, Title: "Exchange traded funds"},
	{ID: 400, Title: "Pre-emptive rights"},
	{ID: 403, Title: "Fara-bourse pre-emptive rights"},
}
