package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"tse-market-sync/internal/domain"
	"tse-market-sync/internal/storage"
)

// seriesKey identifies one row of a daily time series.
type seriesKey struct {
	key  string
	date time.Time
}

// series is an append-only (key, record_date) table shared by the daily stores.
type series[T any] struct {
	mu    sync.RWMutex
	data  map[seriesKey]*T
	keyOf func(*T) (string, time.Time)
}

func newSeries[T any](keyOf func(*T) (string, time.Time)) *series[T] {
	return &series[T]{
		data:  make(map[seriesKey]*T),
		keyOf: keyOf,
	}
}

func (s *series[T]) rowKey(row *T) seriesKey {
	k, d := s.keyOf(row)
	return seriesKey{key: k, date: domain.DateOnly(d)}
}

func (s *series[T]) insertBulk(rows []*T) error {
	if len(rows) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	batchKeys := make(map[seriesKey]struct{}, len(rows))
	for _, row := range rows {
		if row == nil {
			return storage.ErrInvalidInput
		}
		k := s.rowKey(row)
		if k.key == "" {
			return storage.ErrInvalidInput
		}
		if _, exists := s.data[k]; exists {
			return storage.ErrDuplicateKey
		}
		if _, exists := batchKeys[k]; exists {
			return storage.ErrDuplicateKey
		}
		batchKeys[k] = struct{}{}
	}

	for _, row := range rows {
		rowCopy := *row
		s.data[s.rowKey(row)] = &rowCopy
	}
	return nil
}

func (s *series[T]) latestDates() map[string]time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()

	latest := make(map[string]time.Time)
	for k := range s.data {
		if cur, ok := latest[k.key]; !ok || k.date.After(cur) {
			latest[k.key] = k.date
		}
	}
	return latest
}

func (s *series[T]) getByKey(key string) []*T {
	s.mu.RLock()
	defer s.mu.RUnlock()

	type dated struct {
		date time.Time
		row  *T
	}
	var rows []dated
	for k, row := range s.data {
		if k.key == key {
			rowCopy := *row
			rows = append(rows, dated{date: k.date, row: &rowCopy})
		}
	}
	sort.Slice(rows, func(i, j int) bool {
		return rows[i].date.Before(rows[j].date)
	})

	result := make([]*T, len(rows))
	for i, r := range rows {
		result[i] = r.row
	}
	return result
}

// TradeCandleStore is an in-memory implementation of storage.TradeCandleStore.
type TradeCandleStore struct {
	rows *series[domain.DailyTradeCandle]
}

// NewTradeCandleStore creates a new in-memory trade candle store.
func NewTradeCandleStore() *TradeCandleStore {
	return &TradeCandleStore{rows: newSeries(func(c *domain.DailyTradeCandle) (string, time.Time) {
		return c.Key, c.RecordDate
	})}
}

// InsertBulk adds multiple candles. Fails entire batch on duplicate.
func (s *TradeCandleStore) InsertBulk(_ context.Context, candles []*domain.DailyTradeCandle) error {
	return s.rows.insertBulk(candles)
}

// LatestDates returns the maximum record_date per key.
func (s *TradeCandleStore) LatestDates(_ context.Context) (map[string]time.Time, error) {
	return s.rows.latestDates(), nil
}

// GetByKey retrieves all candles for a key, ordered by record_date ASC.
func (s *TradeCandleStore) GetByKey(_ context.Context, key string) ([]*domain.DailyTradeCandle, error) {
	return s.rows.getByKey(key), nil
}

// ClientTypeStore is an in-memory implementation of storage.ClientTypeStore.
type ClientTypeStore struct {
	rows *series[domain.DailyClientType]
}

// NewClientTypeStore creates a new in-memory client type store.
func NewClientTypeStore() *ClientTypeStore {
	return &ClientTypeStore{rows: newSeries(func(c *domain.DailyClientType) (string, time.Time) {
		return c.Key, c.RecordDate
	})}
}

// InsertBulk adds multiple rows. Fails entire batch on duplicate.
func (s *ClientTypeStore) InsertBulk(_ context.Context, rows []*domain.DailyClientType) error {
	return s.rows.insertBulk(rows)
}

// LatestDates returns the maximum record_date per key.
func (s *ClientTypeStore) LatestDates(_ context.Context) (map[string]time.Time, error) {
	return s.rows.latestDates(), nil
}

// GetByKey retrieves all rows for a key, ordered by record_date ASC.
func (s *ClientTypeStore) GetByKey(_ context.Context, key string) ([]*domain.DailyClientType, error) {
	return s.rows.getByKey(key), nil
}

// IndexValueStore is an in-memory implementation of storage.IndexValueStore.
type IndexValueStore struct {
	rows *series[domain.DailyIndexValue]
}

// NewIndexValueStore creates a new in-memory index value store.
func NewIndexValueStore() *IndexValueStore {
	return &IndexValueStore{rows: newSeries(func(v *domain.DailyIndexValue) (string, time.Time) {
		return v.Key, v.RecordDate
	})}
}

// InsertBulk adds multiple values. Fails entire batch on duplicate.
func (s *IndexValueStore) InsertBulk(_ context.Context, values []*domain.DailyIndexValue) error {
	return s.rows.insertBulk(values)
}

// LatestDates returns the maximum record_date per key.
func (s *IndexValueStore) LatestDates(_ context.Context) (map[string]time.Time, error) {
	return s.rows.latestDates(), nil
}

// GetByKey retrieves all values for a key, ordered by record_date ASC.
func (s *IndexValueStore) GetByKey(_ context.Context, key string) ([]*domain.DailyIndexValue, error) {
	return s.rows.getByKey(key), nil
}

// NewTimeseriesStores creates the in-memory time-series stores.
func NewTimeseriesStores() storage.TimeseriesStores {
	return storage.TimeseriesStores{
		Candles:     NewTradeCandleStore(),
		ClientTypes: NewClientTypeStore(),
		IndexValues: NewIndexValueStore(),
	}
}

var (
	_ storage.TradeCandleStore = (*TradeCandleStore)(nil)
	_ storage.ClientTypeStore  = (*ClientTypeStore)(nil)
	_ storage.IndexValueStore  = (*IndexValueStore)(nil)
)
