// Package normalize canonicalizes provider text before it is compared with
// or written to local state.
package normalize

import (
	"strings"

	"golang.org/x/text/unicode/norm"

	"tse-market-sync/internal/domain"
)

// Arabic code points the provider mixes with their Persian equivalents.
var folder = strings.NewReplacer(
	"ك", "ک", // ARABIC LETTER KAF -> KEHEH
	"ي", "ی", // ARABIC LETTER YEH -> FARSI YEH
	"ى", "ی", // ALEF MAKSURA -> FARSI YEH
)

// Text folds Arabic letter variants to Persian forms, applies NFC and trims
// surrounding whitespace. Text is idempotent: Text(Text(s)) == Text(s).
func Text(s string) string {
	s = norm.NFC.String(s)
	s = folder.Replace(s)
	return strings.TrimSpace(s)
}

// Instrument normalizes the textual fields of inst in place and returns it.
func Instrument(inst *domain.Instrument) *domain.Instrument {
	inst.Key = strings.TrimSpace(inst.Key)
	inst.ShortCode = strings.TrimSpace(inst.ShortCode)
	inst.Ticker = Text(inst.Ticker)
	inst.NameLocal = Text(inst.NameLocal)
	inst.NameForeign = strings.TrimSpace(inst.NameForeign)
	return inst
}

// Remote normalizes a provider record together with its reference titles.
func Remote(r *domain.RemoteInstrument) *domain.RemoteInstrument {
	Instrument(&r.Instrument)
	if r.Sector != nil {
		r.Sector.Title = Text(r.Sector.Title)
	}
	if r.SubSector != nil {
		r.SubSector.Title = Text(r.SubSector.Title)
	}
	if r.Market != nil {
		r.Market.Title = Text(r.Market.Title)
	}
	return r
}

// Remotes normalizes every record of a snapshot.
func Remotes(rs []*domain.RemoteInstrument) []*domain.RemoteInstrument {
	for _, r := range rs {
		Remote(r)
	}
	return rs
}

// SearchItem normalizes a search result row.
func SearchItem(item *domain.SearchResultItem) *domain.SearchResultItem {
	item.Ticker = Text(item.Ticker)
	item.Name = Text(item.Name)
	item.ShortCode = strings.TrimSpace(item.ShortCode)
	return item
}
