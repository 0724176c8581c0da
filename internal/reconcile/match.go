package reconcile

import (
	"context"
	"errors"
	"fmt"

	"tse-market-sync/internal/domain"
	"tse-market-sync/internal/storage"
)

// MatchKind is the result class of matching a search term to local instruments.
type MatchKind int

const (
	NotFound MatchKind = iota
	Unique
	Ambiguous
)

// String returns the string representation of MatchKind.
func (k MatchKind) String() string {
	switch k {
	case Unique:
		return "unique"
	case Ambiguous:
		return "ambiguous"
	default:
		return "not_found"
	}
}

// Match is the result of resolving a key or ticker to local instruments.
// Instrument is set for Unique, Candidates for Ambiguous.
type Match struct {
	Kind       MatchKind
	Instrument *domain.Instrument
	Candidates []*domain.Instrument
}

// Resolve builds a Match from a key lookup and a ticker lookup.
// A key hit always wins over ticker hits.
func Resolve(byKey *domain.Instrument, byTicker []*domain.Instrument) Match {
	if byKey != nil {
		return Match{Kind: Unique, Instrument: byKey}
	}
	switch len(byTicker) {
	case 0:
		return Match{Kind: NotFound}
	case 1:
		return Match{Kind: Unique, Instrument: byTicker[0]}
	default:
		return Match{Kind: Ambiguous, Candidates: byTicker}
	}
}

// MatchInstrument looks term up as an instrument key, then as an exact ticker.
func MatchInstrument(ctx context.Context, store storage.InstrumentStore, term string) (Match, error) {
	byKey, err := store.GetByKey(ctx, term)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return Match{}, fmt.Errorf("match by key: %w", err)
	}
	if byKey != nil {
		return Resolve(byKey, nil), nil
	}

	byTicker, err := store.GetByTicker(ctx, term)
	if err != nil {
		return Match{}, fmt.Errorf("match by ticker: %w", err)
	}
	return Resolve(nil, byTicker), nil
}
