package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"tse-market-sync/internal/domain"
	"tse-market-sync/internal/storage"
)

// copyRows inserts rows into table in one transaction using COPY.
// A duplicate (key, record_date) fails the whole batch with ErrDuplicateKey.
func copyRows(ctx context.Context, pool *Pool, table string, columns []string, n int, row func(i int) ([]any, error)) (err error) {
	if n == 0 {
		return nil
	}
	start := time.Now()
	defer func() { observe(table+"_insert_bulk", start, err) }()

	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.CopyFrom(ctx, pgx.Identifier{table}, columns, pgx.CopyFromSlice(n, row)); err != nil {
		return mapWriteError(err, "copy into "+table)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// latestDates returns max(record_date) per key of table.
func latestDates(ctx context.Context, pool *Pool, table string) (map[string]time.Time, error) {
	latest := make(map[string]time.Time)
	err := collect(ctx, pool, `SELECT key, MAX(record_date) FROM `+table+` GROUP BY key`, func(rows pgx.Rows) error {
		var key string
		var date time.Time
		if err := rows.Scan(&key, &date); err != nil {
			return err
		}
		latest[key] = domain.DateOnly(date)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("latest dates of %s: %w", table, err)
	}
	return latest, nil
}

// TradeCandleStore implements storage.TradeCandleStore using PostgreSQL.
type TradeCandleStore struct {
	pool *Pool
}

// NewTradeCandleStore creates a new TradeCandleStore.
func NewTradeCandleStore(pool *Pool) *TradeCandleStore {
	return &TradeCandleStore{pool: pool}
}

var _ storage.TradeCandleStore = (*TradeCandleStore)(nil)

var candleColumns = []string{
	"key", "record_date", "previous_price", "open_price", "close_price", "last_price",
	"max_price", "min_price", "trade_num", "trade_volume", "trade_value",
}

// InsertBulk adds multiple candles atomically.
func (s *TradeCandleStore) InsertBulk(ctx context.Context, candles []*domain.DailyTradeCandle) error {
	return copyRows(ctx, s.pool, "daily_trade_candle", candleColumns, len(candles), func(i int) ([]any, error) {
		c := candles[i]
		return []any{
			c.Key, domain.DateOnly(c.RecordDate), c.PreviousPrice, c.OpenPrice, c.ClosePrice, c.LastPrice,
			c.MaxPrice, c.MinPrice, c.TradeNum, c.TradeVolume, c.TradeValue,
		}, nil
	})
}

// LatestDates returns the maximum record_date per key.
func (s *TradeCandleStore) LatestDates(ctx context.Context) (map[string]time.Time, error) {
	return latestDates(ctx, s.pool, "daily_trade_candle")
}

// GetByKey retrieves all candles for a key, ordered by record_date ASC.
func (s *TradeCandleStore) GetByKey(ctx context.Context, key string) ([]*domain.DailyTradeCandle, error) {
	var candles []*domain.DailyTradeCandle
	err := collect(ctx, s.pool, `
		SELECT key, record_date, previous_price, open_price, close_price, last_price,
		       max_price, min_price, trade_num, trade_volume, trade_value
		FROM daily_trade_candle
		WHERE key = $1
		ORDER BY record_date ASC
	`, func(rows pgx.Rows) error {
		var c domain.DailyTradeCandle
		err := rows.Scan(
			&c.Key, &c.RecordDate, &c.PreviousPrice, &c.OpenPrice, &c.ClosePrice, &c.LastPrice,
			&c.MaxPrice, &c.MinPrice, &c.TradeNum, &c.TradeVolume, &c.TradeValue,
		)
		if err != nil {
			return err
		}
		c.RecordDate = domain.DateOnly(c.RecordDate)
		candles = append(candles, &c)
		return nil
	}, key)
	if err != nil {
		return nil, fmt.Errorf("get candles by key: %w", err)
	}
	return candles, nil
}

// ClientTypeStore implements storage.ClientTypeStore using PostgreSQL.
type ClientTypeStore struct {
	pool *Pool
}

// NewClientTypeStore creates a new ClientTypeStore.
func NewClientTypeStore(pool *Pool) *ClientTypeStore {
	return &ClientTypeStore{pool: pool}
}

var _ storage.ClientTypeStore = (*ClientTypeStore)(nil)

var clientTypeColumns = []string{
	"key", "record_date",
	"natural_buy_num", "natural_buy_volume", "natural_buy_value",
	"natural_sell_num", "natural_sell_volume", "natural_sell_value",
	"legal_buy_num", "legal_buy_volume", "legal_buy_value",
	"legal_sell_num", "legal_sell_volume", "legal_sell_value",
}

// InsertBulk adds multiple rows atomically.
func (s *ClientTypeStore) InsertBulk(ctx context.Context, rows []*domain.DailyClientType) error {
	return copyRows(ctx, s.pool, "daily_client_type", clientTypeColumns, len(rows), func(i int) ([]any, error) {
		r := rows[i]
		return []any{
			r.Key, domain.DateOnly(r.RecordDate),
			r.NaturalBuy.Num, r.NaturalBuy.Volume, r.NaturalBuy.Value,
			r.NaturalSell.Num, r.NaturalSell.Volume, r.NaturalSell.Value,
			r.LegalBuy.Num, r.LegalBuy.Volume, r.LegalBuy.Value,
			r.LegalSell.Num, r.LegalSell.Volume, r.LegalSell.Value,
		}, nil
	})
}

// LatestDates returns the maximum record_date per key.
func (s *ClientTypeStore) LatestDates(ctx context.Context) (map[string]time.Time, error) {
	return latestDates(ctx, s.pool, "daily_client_type")
}

// GetByKey retrieves all rows for a key, ordered by record_date ASC.
func (s *ClientTypeStore) GetByKey(ctx context.Context, key string) ([]*domain.DailyClientType, error) {
	var result []*domain.DailyClientType
	err := collect(ctx, s.pool, `
		SELECT key, record_date,
		       natural_buy_num, natural_buy_volume, natural_buy_value,
		       natural_sell_num, natural_sell_volume, natural_sell_value,
		       legal_buy_num, legal_buy_volume, legal_buy_value,
		       legal_sell_num, legal_sell_volume, legal_sell_value
		FROM daily_client_type
		WHERE key = $1
		ORDER BY record_date ASC
	`, func(rows pgx.Rows) error {
		var r domain.DailyClientType
		err := rows.Scan(
			&r.Key, &r.RecordDate,
			&r.NaturalBuy.Num, &r.NaturalBuy.Volume, &r.NaturalBuy.Value,
			&r.NaturalSell.Num, &r.NaturalSell.Volume, &r.NaturalSell.Value,
			&r.LegalBuy.Num, &r.LegalBuy.Volume, &r.LegalBuy.Value,
			&r.LegalSell.Num, &r.LegalSell.Volume, &r.LegalSell.Value,
		)
		if err != nil {
			return err
		}
		r.RecordDate = domain.DateOnly(r.RecordDate)
		result = append(result, &r)
		return nil
	}, key)
	if err != nil {
		return nil, fmt.Errorf("get client types by key: %w", err)
	}
	return result, nil
}

// IndexValueStore implements storage.IndexValueStore using PostgreSQL.
type IndexValueStore struct {
	pool *Pool
}

// NewIndexValueStore creates a new IndexValueStore.
func NewIndexValueStore(pool *Pool) *IndexValueStore {
	return &IndexValueStore{pool: pool}
}

var _ storage.IndexValueStore = (*IndexValueStore)(nil)

// InsertBulk adds multiple values atomically.
func (s *IndexValueStore) InsertBulk(ctx context.Context, values []*domain.DailyIndexValue) error {
	columns := []string{"key", "record_date", "close_value", "max_value", "min_value"}
	return copyRows(ctx, s.pool, "daily_index_value", columns, len(values), func(i int) ([]any, error) {
		v := values[i]
		return []any{v.Key, domain.DateOnly(v.RecordDate), v.CloseValue, v.MaxValue, v.MinValue}, nil
	})
}

// LatestDates returns the maximum record_date per key.
func (s *IndexValueStore) LatestDates(ctx context.Context) (map[string]time.Time, error) {
	return latestDates(ctx, s.pool, "daily_index_value")
}

// GetByKey retrieves all values for a key, ordered by record_date ASC.
func (s *IndexValueStore) GetByKey(ctx context.Context, key string) ([]*domain.DailyIndexValue, error) {
	var values []*domain.DailyIndexValue
	err := collect(ctx, s.pool, `
		SELECT key, record_date, close_value, max_value, min_value
		FROM daily_index_value
		WHERE key = $1
		ORDER BY record_date ASC
	`, func(rows pgx.Rows) error {
		var v domain.DailyIndexValue
		if err := rows.Scan(&v.Key, &v.RecordDate, &v.CloseValue, &v.MaxValue, &v.MinValue); err != nil {
			return err
		}
		v.RecordDate = domain.DateOnly(v.RecordDate)
		values = append(values, &v)
		return nil
	}, key)
	if err != nil {
		return nil, fmt.Errorf("get index values by key: %w", err)
	}
	return values, nil
}

// NewTimeseriesStores returns the PostgreSQL time-series stores sharing pool.
func NewTimeseriesStores(pool *Pool) storage.TimeseriesStores {
	return storage.TimeseriesStores{
		Candles:     NewTradeCandleStore(pool),
		ClientTypes: NewClientTypeStore(pool),
		IndexValues: NewIndexValueStore(pool),
	}
}
