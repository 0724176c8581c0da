package storage

import (
	"context"
	"time"

	"tse-market-sync/internal/domain"
)

// InstrumentStore provides access to instrument_identification storage.
type InstrumentStore interface {
	// GetAll retrieves all instruments ordered by key.
	GetAll(ctx context.Context) ([]*domain.Instrument, error)

	// GetByKey retrieves an instrument by its key. Returns ErrNotFound if not exists.
	GetByKey(ctx context.Context, key string) (*domain.Instrument, error)

	// GetByTicker retrieves all instruments whose ticker equals ticker exactly.
	GetByTicker(ctx context.Context, ticker string) ([]*domain.Instrument, error)

	// Search retrieves instruments by key (exact) or ticker (contains), ordered by key.
	Search(ctx context.Context, by domain.SearchBy, term string) ([]*domain.Instrument, error)

	// Apply writes a change set atomically. Reference entries are written first,
	// then inserts, updates and reclassifications. Nothing is ever deleted.
	// Returns ErrDuplicateKey if an insert collides with an existing key.
	Apply(ctx context.Context, cs *domain.ChangeSet) error
}

// ReferenceStore provides access to the reference tables
// (instrument_type, industry_sector, industry_sub_sector, exchange_market).
type ReferenceStore interface {
	// GetAll reads all reference tables.
	GetAll(ctx context.Context) (*domain.ReferenceSet, error)

	// InsertTypes adds instrument types. Existing codes are left untouched.
	InsertTypes(ctx context.Context, types []domain.InstrumentType) error
}

// IndexStore provides access to index_identification storage.
type IndexStore interface {
	// Insert adds a new index. Returns ErrDuplicateKey if key exists.
	Insert(ctx context.Context, idx *domain.Index) error

	// GetAll retrieves all indices ordered by key.
	GetAll(ctx context.Context) ([]*domain.Index, error)
}

// TradeCandleStore provides access to daily_trade_candle storage.
type TradeCandleStore interface {
	// InsertBulk adds multiple candles atomically. Fails entire batch on duplicate (key, record_date).
	InsertBulk(ctx context.Context, candles []*domain.DailyTradeCandle) error

	// LatestDates returns the maximum record_date per key.
	LatestDates(ctx context.Context) (map[string]time.Time, error)

	// GetByKey retrieves all candles for a key, ordered by record_date ASC.
	GetByKey(ctx context.Context, key string) ([]*domain.DailyTradeCandle, error)
}

// ClientTypeStore provides access to daily_client_type storage.
type ClientTypeStore interface {
	// InsertBulk adds multiple rows atomically. Fails entire batch on duplicate (key, record_date).
	InsertBulk(ctx context.Context, rows []*domain.DailyClientType) error

	// LatestDates returns the maximum record_date per key.
	LatestDates(ctx context.Context) (map[string]time.Time, error)

	// GetByKey retrieves all rows for a key, ordered by record_date ASC.
	GetByKey(ctx context.Context, key string) ([]*domain.DailyClientType, error)
}

// IndexValueStore provides access to daily_index_value storage.
type IndexValueStore interface {
	// InsertBulk adds multiple values atomically. Fails entire batch on duplicate (key, record_date).
	InsertBulk(ctx context.Context, values []*domain.DailyIndexValue) error

	// LatestDates returns the maximum record_date per key.
	LatestDates(ctx context.Context) (map[string]time.Time, error)

	// GetByKey retrieves all values for a key, ordered by record_date ASC.
	GetByKey(ctx context.Context, key string) ([]*domain.DailyIndexValue, error)
}

// TimeseriesStores groups the time-series stores of one backend.
type TimeseriesStores struct {
	Candles     TradeCandleStore
	ClientTypes ClientTypeStore
	IndexValues IndexValueStore
}
