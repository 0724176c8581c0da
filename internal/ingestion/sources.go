package ingestion

import (
	"context"

	"tse-market-sync/internal/domain"
)

// SnapshotSource provides the full remote instrument list.
type SnapshotSource interface {
	// FetchAll returns every instrument the provider currently lists,
	// with whatever reference entries it describes for each.
	FetchAll(ctx context.Context) ([]*domain.RemoteInstrument, error)
}

// SearchSource queries the provider's truncating instrument search.
type SearchSource interface {
	// Search returns at most the provider's cap of rows matching term.
	Search(ctx context.Context, term string) ([]*domain.SearchResultItem, error)
}

// IdentitySource provides the detailed identity of a single instrument.
type IdentitySource interface {
	// FetchIdentity returns the instrument behind shortCode with its sector,
	// sub-sector and market titles filled in.
	FetchIdentity(ctx context.Context, shortCode string) (*domain.RemoteInstrument, error)
}

// HistorySource provides daily time series for instruments and indices.
// Rows are stamped with key; order is not guaranteed.
type HistorySource interface {
	FetchTradeHistory(ctx context.Context, key, shortCode string) ([]*domain.DailyTradeCandle, error)
	FetchClientTypeHistory(ctx context.Context, key, shortCode string) ([]*domain.DailyClientType, error)
	FetchIndexHistory(ctx context.Context, key, shortCode string) ([]*domain.DailyIndexValue, error)
}

// Fetcher is the full provider contract used by jobs.
type Fetcher interface {
	SnapshotSource
	SearchSource
	IdentitySource
	HistorySource
}
