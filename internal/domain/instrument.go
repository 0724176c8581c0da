package domain

import "fmt"

// Instrument identifies a tradable entity.
// Corresponds to instrument_identification table in PostgreSQL.
type Instrument struct {
	Key         string // ISIN, PRIMARY KEY, never changes once assigned
	ShortCode   string // provider instrument code (mutable)
	Ticker      string // display symbol (mutable)
	NameLocal   string // Persian name (mutable)
	NameForeign string // English name (mutable)
	TypeID      int    // FK to instrument_type
	SectorID    *int   // FK to industry_sector (nullable)
	SubSectorID *int   // FK to industry_sub_sector (nullable)
	MarketID    *int   // FK to exchange_market (nullable)
}

// String renders the instrument for logs and report lines.
func (i *Instrument) String() string {
	return fmt.Sprintf("Instrument(key=%s, code=%s, ticker=%s)", i.Key, i.ShortCode, i.Ticker)
}

// Clone returns a deep copy of the instrument.
func (i *Instrument) Clone() *Instrument {
	c := *i
	c.SectorID = cloneInt(i.SectorID)
	c.SubSectorID = cloneInt(i.SubSectorID)
	c.MarketID = cloneInt(i.MarketID)
	return &c
}

// MutableFieldsEqual reports whether the fields reconciled on every run
// (ticker, names and short code) are identical.
func (i *Instrument) MutableFieldsEqual(o *Instrument) bool {
	return i.Ticker == o.Ticker &&
		i.NameLocal == o.NameLocal &&
		i.NameForeign == o.NameForeign &&
		i.ShortCode == o.ShortCode
}

// ChangedFields lists the mutable fields that differ between i and o.
func (i *Instrument) ChangedFields(o *Instrument) []string {
	var fields []string
	if i.Ticker != o.Ticker {
		fields = append(fields, "ticker")
	}
	if i.NameLocal != o.NameLocal {
		fields = append(fields, "name_local")
	}
	if i.NameForeign != o.NameForeign {
		fields = append(fields, "name_foreign")
	}
	if i.ShortCode != o.ShortCode {
		fields = append(fields, "short_code")
	}
	return fields
}

// RemoteInstrument is an instrument as reported by the provider, together with
// the reference entries the provider described alongside it. Entries are nil
// when the provider only supplied a code or nothing at all.
type RemoteInstrument struct {
	Instrument
	Sector    *Sector
	SubSector *SubSector
	Market    *Market
}

// Index identifies a market index.
// Corresponds to index_identification table in PostgreSQL.
type Index struct {
	Key         string // ISIN, PRIMARY KEY
	ShortCode   string // provider instrument code
	NameLocal   string
	NameForeign string
}

// String renders the index for logs.
func (i *Index) String() string {
	return fmt.Sprintf("Index(key=%s, code=%s)", i.Key, i.ShortCode)
}


// IntPtr returns a pointer to v.
func IntPtr(v int) *int {
	return &v
}

func cloneInt(p *int) *int {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
