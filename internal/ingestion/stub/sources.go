package stub

import (
	"context"
	"sort"
	"strings"

	"tse-market-sync/internal/domain"
)

// Fetcher serves fixed in-memory provider data for testing.
// Implements ingestion.Fetcher interface.
type Fetcher struct {
	Snapshot  []*domain.RemoteInstrument
	Universe  []*domain.SearchResultItem // everything the search endpoint could return
	SearchCap int                        // rows returned per query; 0 means unlimited

	Identities map[string]*domain.RemoteInstrument // keyed by short code

	Candles     map[string][]*domain.DailyTradeCandle // keyed by short code
	ClientTypes map[string][]*domain.DailyClientType  // keyed by short code
	IndexValues map[string][]*domain.DailyIndexValue  // keyed by short code

	// Errors makes the matching call fail. Keys are short codes for identity
	// and history calls, search terms for Search, and "*" for FetchAll.
	Errors map[string]error

	// Queries records every search term in call order.
	Queries []string
}

// NewFetcher creates an empty stub fetcher.
func NewFetcher() *Fetcher {
	return &Fetcher{
		Identities:  make(map[string]*domain.RemoteInstrument),
		Candles:     make(map[string][]*domain.DailyTradeCandle),
		ClientTypes: make(map[string][]*domain.DailyClientType),
		IndexValues: make(map[string][]*domain.DailyIndexValue),
		Errors:      make(map[string]error),
	}
}

// FetchAll returns copies of the snapshot.
func (f *Fetcher) FetchAll(_ context.Context) ([]*domain.RemoteInstrument, error) {
	if err := f.Errors["*"]; err != nil {
		return nil, err
	}
	result := make([]*domain.RemoteInstrument, 0, len(f.Snapshot))
	for _, r := range f.Snapshot {
		result = append(result, cloneRemote(r))
	}
	return result, nil
}

// Search returns universe rows whose ticker starts with term. When more than
// SearchCap rows match, the page is truncated the way the provider does it:
// rows are taken round-robin across the next character after term, so every
// branch below term is represented while some rows are dropped.
func (f *Fetcher) Search(_ context.Context, term string) ([]*domain.SearchResultItem, error) {
	f.Queries = append(f.Queries, term)
	if err := f.Errors[term]; err != nil {
		return nil, err
	}

	var result []*domain.SearchResultItem
	for _, item := range f.Universe {
		if strings.HasPrefix(item.Ticker, term) {
			c := *item
			result = append(result, &c)
		}
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Ticker < result[j].Ticker
	})
	if f.SearchCap > 0 && len(result) > f.SearchCap {
		result = interleave(term, result)[:f.SearchCap]
	}
	for i, item := range result {
		item.ResultIndex = i
	}
	return result, nil
}

// FetchIdentity returns the identity registered for shortCode.
func (f *Fetcher) FetchIdentity(_ context.Context, shortCode string) (*domain.RemoteInstrument, error) {
	if err := f.Errors[shortCode]; err != nil {
		return nil, err
	}
	r, exists := f.Identities[shortCode]
	if !exists {
		return nil, nil
	}
	return cloneRemote(r), nil
}

// FetchTradeHistory returns candles registered for shortCode stamped with key.
func (f *Fetcher) FetchTradeHistory(_ context.Context, key, shortCode string) ([]*domain.DailyTradeCandle, error) {
	if err := f.Errors[shortCode]; err != nil {
		return nil, err
	}
	var result []*domain.DailyTradeCandle
	for _, c := range f.Candles[shortCode] {
		row := *c
		row.Key = key
		result = append(result, &row)
	}
	return result, nil
}

// FetchClientTypeHistory returns client type rows registered for shortCode stamped with key.
func (f *Fetcher) FetchClientTypeHistory(_ context.Context, key, shortCode string) ([]*domain.DailyClientType, error) {
	if err := f.Errors[shortCode]; err != nil {
		return nil, err
	}
	var result []*domain.DailyClientType
	for _, r := range f.ClientTypes[shortCode] {
		row := *r
		row.Key = key
		result = append(result, &row)
	}
	return result, nil
}

// FetchIndexHistory returns index values registered for shortCode stamped with key.
func (f *Fetcher) FetchIndexHistory(_ context.Context, key, shortCode string) ([]*domain.DailyIndexValue, error) {
	if err := f.Errors[shortCode]; err != nil {
		return nil, err
	}
	var result []*domain.DailyIndexValue
	for _, v := range f.IndexValues[shortCode] {
		row := *v
		row.Key = key
		result = append(result, &row)
	}
	return result, nil
}

// interleave reorders rows round-robin by the rune following term.
func interleave(term string, rows []*domain.SearchResultItem) []*domain.SearchResultItem {
	var order []string
	groups := make(map[string][]*domain.SearchResultItem)
	for _, item := range rows {
		next := ""
		if rest := []rune(strings.TrimPrefix(item.Ticker, term)); len(rest) > 0 {
			next = string(rest[0])
		}
		if _, ok := groups[next]; !ok {
			order = append(order, next)
		}
		groups[next] = append(groups[next], item)
	}

	out := make([]*domain.SearchResultItem, 0, len(rows))
	for len(out) < len(rows) {
		for _, next := range order {
			if g := groups[next]; len(g) > 0 {
				out = append(out, g[0])
				groups[next] = g[1:]
			}
		}
	}
	return out
}

func cloneRemote(r *domain.RemoteInstrument) *domain.RemoteInstrument {
	c := &domain.RemoteInstrument{Instrument: *r.Instrument.Clone()}
	if r.Sector != nil {
		s := *r.Sector
		c.Sector = &s
	}
	if r.SubSector != nil {
		s := *r.SubSector
		c.SubSector = &s
	}
	if r.Market != nil {
		m := *r.Market
		c.Market = &m
	}
	return c
}
