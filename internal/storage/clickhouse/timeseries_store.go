package clickhouse

import (
	"context"
	"fmt"
	"strings"
	"time"

	"tse-market-sync/internal/domain"
	"tse-market-sync/internal/storage"
)

type dayKey struct {
	key  string
	date time.Time
}

// insertRows appends n rows to table in one batch. MergeTree does not enforce
// uniqueness, so duplicates within the batch or against stored rows are
// rejected with ErrDuplicateKey before anything is sent.
func insertRows(ctx context.Context, conn *Conn, table string, columns []string, n int, keyOf func(i int) dayKey, row func(i int) []any) (err error) {
	if n == 0 {
		return nil
	}
	start := time.Now()
	defer func() { observe(table+"_insert_bulk", start, err) }()

	keys := make([]dayKey, n)
	seen := make(map[dayKey]struct{}, n)
	for i := 0; i < n; i++ {
		k := keyOf(i)
		k.date = domain.DateOnly(k.date)
		if _, exists := seen[k]; exists {
			return storage.ErrDuplicateKey
		}
		seen[k] = struct{}{}
		keys[i] = k
	}

	exists, err := anyExists(ctx, conn, table, keys)
	if err != nil {
		return fmt.Errorf("check exists: %w", err)
	}
	if exists {
		return storage.ErrDuplicateKey
	}

	batch, err := conn.PrepareBatch(ctx, fmt.Sprintf("INSERT INTO %s (%s)", table, strings.Join(columns, ", ")))
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}
	for i := 0; i < n; i++ {
		if err := batch.Append(row(i)...); err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}
	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// anyExists reports whether any of keys is already stored in table.
func anyExists(ctx context.Context, conn *Conn, table string, keys []dayKey) (bool, error) {
	wanted := make(map[dayKey]struct{}, len(keys))
	var distinct []string
	minDate, maxDate := keys[0].date, keys[0].date
	for _, k := range keys {
		if _, ok := wanted[dayKey{key: k.key}]; !ok {
			wanted[dayKey{key: k.key}] = struct{}{}
			distinct = append(distinct, k.key)
		}
		wanted[k] = struct{}{}
		if k.date.Before(minDate) {
			minDate = k.date
		}
		if k.date.After(maxDate) {
			maxDate = k.date
		}
	}

	rows, err := conn.Query(ctx, fmt.Sprintf(`
		SELECT key, record_date FROM %s
		WHERE key IN (?) AND record_date >= ? AND record_date <= ?
	`, table), distinct, minDate, maxDate)
	if err != nil {
		return false, err
	}
	defer rows.Close()

	for rows.Next() {
		var k dayKey
		if err := rows.Scan(&k.key, &k.date); err != nil {
			return false, err
		}
		k.date = domain.DateOnly(k.date)
		if _, ok := wanted[k]; ok {
			return true, nil
		}
	}
	return false, rows.Err()
}

// latestDates returns max(record_date) per key of table.
func latestDates(ctx context.Context, conn *Conn, table string) (map[string]time.Time, error) {
	rows, err := conn.Query(ctx, fmt.Sprintf(`SELECT key, max(record_date) FROM %s GROUP BY key`, table))
	if err != nil {
		return nil, fmt.Errorf("latest dates of %s: %w", table, err)
	}
	defer rows.Close()

	latest := make(map[string]time.Time)
	for rows.Next() {
		var key string
		var date time.Time
		if err := rows.Scan(&key, &date); err != nil {
			return nil, fmt.Errorf("scan latest date row: %w", err)
		}
		latest[key] = domain.DateOnly(date)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate latest date rows: %w", err)
	}
	return latest, nil
}

// TradeCandleStore implements storage.TradeCandleStore using ClickHouse.
type TradeCandleStore struct {
	conn *Conn
}

// NewTradeCandleStore creates a new TradeCandleStore.
func NewTradeCandleStore(conn *Conn) *TradeCandleStore {
	return &TradeCandleStore{conn: conn}
}

// Compile-time interface check.
var _ storage.TradeCandleStore = (*TradeCandleStore)(nil)

// InsertBulk adds multiple candles. Fails entire batch on duplicate (key, record_date).
func (s *TradeCandleStore) InsertBulk(ctx context.Context, candles []*domain.DailyTradeCandle) error {
	columns := []string{
		"key", "record_date", "previous_price", "open_price", "close_price", "last_price",
		"max_price", "min_price", "trade_num", "trade_volume", "trade_value",
	}
	return insertRows(ctx, s.conn, "daily_trade_candle", columns, len(candles),
		func(i int) dayKey { return dayKey{candles[i].Key, candles[i].RecordDate} },
		func(i int) []any {
			c := candles[i]
			return []any{
				c.Key, domain.DateOnly(c.RecordDate), c.PreviousPrice, c.OpenPrice, c.ClosePrice, c.LastPrice,
				c.MaxPrice, c.MinPrice, c.TradeNum, c.TradeVolume, c.TradeValue,
			}
		},
	)
}

// LatestDates returns the maximum record_date per key.
func (s *TradeCandleStore) LatestDates(ctx context.Context) (map[string]time.Time, error) {
	return latestDates(ctx, s.conn, "daily_trade_candle")
}

// GetByKey retrieves all candles for a key, ordered by record_date ASC.
func (s *TradeCandleStore) GetByKey(ctx context.Context, key string) ([]*domain.DailyTradeCandle, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT key, record_date, previous_price, open_price, close_price, last_price,
		       max_price, min_price, trade_num, trade_volume, trade_value
		FROM daily_trade_candle
		WHERE key = ?
		ORDER BY record_date ASC
	`, key)
	if err != nil {
		return nil, fmt.Errorf("query candles by key: %w", err)
	}
	defer rows.Close()

	return scanCandles(rows)
}

func scanCandles(rows chRows) ([]*domain.DailyTradeCandle, error) {
	var candles []*domain.DailyTradeCandle
	for rows.Next() {
		var c domain.DailyTradeCandle
		err := rows.Scan(
			&c.Key, &c.RecordDate, &c.PreviousPrice, &c.OpenPrice, &c.ClosePrice, &c.LastPrice,
			&c.MaxPrice, &c.MinPrice, &c.TradeNum, &c.TradeVolume, &c.TradeValue,
		)
		if err != nil {
			return nil, fmt.Errorf("scan candle row: %w", err)
		}
		c.RecordDate = domain.DateOnly(c.RecordDate)
		candles = append(candles, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate candle rows: %w", err)
	}
	return candles, nil
}

// ClientTypeStore implements storage.ClientTypeStore using ClickHouse.
type ClientTypeStore struct {
	conn *Conn
}

// NewClientTypeStore creates a new ClientTypeStore.
func NewClientTypeStore(conn *Conn) *ClientTypeStore {
	return &ClientTypeStore{conn: conn}
}

// Compile-time interface check.
var _ storage.ClientTypeStore = (*ClientTypeStore)(nil)

// InsertBulk adds multiple rows. Fails entire batch on duplicate (key, record_date).
func (s *ClientTypeStore) InsertBulk(ctx context.Context, rows []*domain.DailyClientType) error {
	columns := []string{
		"key", "record_date",
		"natural_buy_num", "natural_buy_volume", "natural_buy_value",
		"natural_sell_num", "natural_sell_volume", "natural_sell_value",
		"legal_buy_num", "legal_buy_volume", "legal_buy_value",
		"legal_sell_num", "legal_sell_volume", "legal_sell_value",
	}
	return insertRows(ctx, s.conn, "daily_client_type", columns, len(rows),
		func(i int) dayKey { return dayKey{rows[i].Key, rows[i].RecordDate} },
		func(i int) []any {
			r := rows[i]
			return []any{
				r.Key, domain.DateOnly(r.RecordDate),
				r.NaturalBuy.Num, r.NaturalBuy.Volume, r.NaturalBuy.Value,
				r.NaturalSell.Num, r.NaturalSell.Volume, r.NaturalSell.Value,
				r.LegalBuy.Num, r.LegalBuy.Volume, r.LegalBuy.Value,
				r.LegalSell.Num, r.LegalSell.Volume, r.LegalSell.Value,
			}
		},
	)
}

// LatestDates returns the maximum record_date per key.
func (s *ClientTypeStore) LatestDates(ctx context.Context) (map[string]time.Time, error) {
	return latestDates(ctx, s.conn, "daily_client_type")
}

// GetByKey retrieves all rows for a key, ordered by record_date ASC.
func (s *ClientTypeStore) GetByKey(ctx context.Context, key string) ([]*domain.DailyClientType, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT key, record_date,
		       natural_buy_num, natural_buy_volume, natural_buy_value,
		       natural_sell_num, natural_sell_volume, natural_sell_value,
		       legal_buy_num, legal_buy_volume, legal_buy_value,
		       legal_sell_num, legal_sell_volume, legal_sell_value
		FROM daily_client_type
		WHERE key = ?
		ORDER BY record_date ASC
	`, key)
	if err != nil {
		return nil, fmt.Errorf("query client types by key: %w", err)
	}
	defer rows.Close()

	return scanClientTypes(rows)
}

func scanClientTypes(rows chRows) ([]*domain.DailyClientType, error) {
	var result []*domain.DailyClientType
	for rows.Next() {
		var r domain.DailyClientType
		err := rows.Scan(
			&r.Key, &r.RecordDate,
			&r.NaturalBuy.Num, &r.NaturalBuy.Volume, &r.NaturalBuy.Value,
			&r.NaturalSell.Num, &r.NaturalSell.Volume, &r.NaturalSell.Value,
			&r.LegalBuy.Num, &r.LegalBuy.Volume, &r.LegalBuy.Value,
			&r.LegalSell.Num, &r.LegalSell.Volume, &r.LegalSell.Value,
		)
		if err != nil {
			return nil, fmt.Errorf("scan client type row: %w", err)
		}
		r.RecordDate = domain.DateOnly(r.RecordDate)
		result = append(result, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate client type rows: %w", err)
	}
	return result, nil
}

// IndexValueStore implements storage.IndexValueStore using ClickHouse.
type IndexValueStore struct {
	conn *Conn
}

// NewIndexValueStore creates a new IndexValueStore.
func NewIndexValueStore(conn *Conn) *IndexValueStore {
	return &IndexValueStore{conn: conn}
}

// Compile-time interface check.
var _ storage.IndexValueStore = (*IndexValueStore)(nil)

// InsertBulk adds multiple values. Fails entire batch on duplicate (key, record_date).
func (s *IndexValueStore) InsertBulk(ctx context.Context, values []*domain.DailyIndexValue) error {
	columns := []string{"key", "record_date", "close_value", "max_value", "min_value"}
	return insertRows(ctx, s.conn, "daily_index_value", columns, len(values),
		func(i int) dayKey { return dayKey{values[i].Key, values[i].RecordDate} },
		func(i int) []any {
			v := values[i]
			return []any{v.Key, domain.DateOnly(v.RecordDate), v.CloseValue, v.MaxValue, v.MinValue}
		},
	)
}

// LatestDates returns the maximum record_date per key.
func (s *IndexValueStore) LatestDates(ctx context.Context) (map[string]time.Time, error) {
	return latestDates(ctx, s.conn, "daily_index_value")
}

// GetByKey retrieves all values for a key, ordered by record_date ASC.
func (s *IndexValueStore) GetByKey(ctx context.Context, key string) ([]*domain.DailyIndexValue, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT key, record_date, close_value, max_value, min_value
		FROM daily_index_value
		WHERE key = ?
		ORDER BY record_date ASC
	`, key)
	if err != nil {
		return nil, fmt.Errorf("query index values by key: %w", err)
	}
	defer rows.Close()

	var values []*domain.DailyIndexValue
	for rows.Next() {
		var v domain.DailyIndexValue
		if err := rows.Scan(&v.Key, &v.RecordDate, &v.CloseValue, &v.MaxValue, &v.MinValue); err != nil {
			return nil, fmt.Errorf("scan index value row: %w", err)
		}
		v.RecordDate = domain.DateOnly(v.RecordDate)
		values = append(values, &v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate index value rows: %w", err)
	}
	return values, nil
}

// NewTimeseriesStores returns the ClickHouse time-series stores sharing conn.
func NewTimeseriesStores(conn *Conn) storage.TimeseriesStores {
	return storage.TimeseriesStores{
		Candles:     NewTradeCandleStore(conn),
		ClientTypes: NewClientTypeStore(conn),
		IndexValues: NewIndexValueStore(conn),
	}
}
