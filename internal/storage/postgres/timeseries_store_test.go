package postgres

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tse-market-sync/internal/domain"
	"tse-market-sync/internal/storage"
)

func TestTradeCandleStore_InsertBulkAndLatest(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	seedInstrument(t, ctx, pool, "IRO1FOLD0001", "1", "فولاد")
	seedInstrument(t, ctx, pool, "IRO1KHOD0001", "2", "خودرو")
	store := NewTradeCandleStore(pool)

	require.NoError(t, store.InsertBulk(ctx, nil))
	require.NoError(t, store.InsertBulk(ctx, []*domain.DailyTradeCandle{
		{Key: "IRO1FOLD0001", RecordDate: day(2), OpenPrice: 100, ClosePrice: 110, TradeVolume: 5},
		{Key: "IRO1FOLD0001", RecordDate: day(1), OpenPrice: 90, ClosePrice: 100, TradeVolume: 7},
		{Key: "IRO1KHOD0001", RecordDate: day(5), ClosePrice: 2000, TradeVolume: 1},
	}))

	got, err := store.GetByKey(ctx, "IRO1FOLD0001")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, day(1), got[0].RecordDate)
	assert.Equal(t, int64(110), got[1].ClosePrice)

	latest, err := store.LatestDates(ctx)
	require.NoError(t, err)
	assert.Equal(t, day(2), latest["IRO1FOLD0001"])
	assert.Equal(t, day(5), latest["IRO1KHOD0001"])
}

func TestTradeCandleStore_DuplicateFailsWholeBatch(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	seedInstrument(t, ctx, pool, "IRO1FOLD0001", "1", "فولاد")
	store := NewTradeCandleStore(pool)

	require.NoError(t, store.InsertBulk(ctx, []*domain.DailyTradeCandle{{Key: "IRO1FOLD0001", RecordDate: day(1)}}))
	err := store.InsertBulk(ctx, []*domain.DailyTradeCandle{
		{Key: "IRO1FOLD0001", RecordDate: day(2)},
		{Key: "IRO1FOLD0001", RecordDate: day(1)},
	})
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)

	got, err := store.GetByKey(ctx, "IRO1FOLD0001")
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestTradeCandleStore_UnknownInstrumentRejected(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	err := NewTradeCandleStore(pool).InsertBulk(context.Background(), []*domain.DailyTradeCandle{
		{Key: "IRO1NONE0001", RecordDate: day(1)},
	})
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
}

func TestClientTypeStore_RoundTrip(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	seedInstrument(t, ctx, pool, "IRO1FOLD0001", "1", "فولاد")
	store := NewClientTypeStore(pool)

	row := &domain.DailyClientType{
		Key:         "IRO1FOLD0001",
		RecordDate:  day(3),
		NaturalBuy:  domain.ClientTypeSide{Num: 10, Volume: 1000, Value: 50000},
		NaturalSell: domain.ClientTypeSide{Num: 4, Volume: 800, Value: 40000},
		LegalBuy:    domain.ClientTypeSide{Num: 1, Volume: 200, Value: 10000},
		LegalSell:   domain.ClientTypeSide{Num: 2, Volume: 400, Value: 20000},
	}
	require.NoError(t, store.InsertBulk(ctx, []*domain.DailyClientType{row}))

	got, err := store.GetByKey(ctx, "IRO1FOLD0001")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, *row, *got[0])

	latest, err := store.LatestDates(ctx)
	require.NoError(t, err)
	assert.Equal(t, day(3), latest["IRO1FOLD0001"])
}

func TestIndexValueStore_RoundTrip(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	require.NoError(t, NewIndexStore(pool).Insert(ctx, &domain.Index{Key: "IRX6XTPI0006", ShortCode: "32097828799138957"}))
	stores := NewTimeseriesStores(pool)

	require.NoError(t, stores.IndexValues.InsertBulk(ctx, []*domain.DailyIndexValue{
		{Key: "IRX6XTPI0006", RecordDate: day(1), CloseValue: 2000000.5, MaxValue: 2010000, MinValue: 1990000},
		{Key: "IRX6XTPI0006", RecordDate: day(2), CloseValue: 2020000.25, MaxValue: 2030000, MinValue: 2000000},
	}))

	got, err := stores.IndexValues.GetByKey(ctx, "IRX6XTPI0006")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.InDelta(t, 2020000.25, got[1].CloseValue, 0.001)

	latest, err := stores.IndexValues.LatestDates(ctx)
	require.NoError(t, err)
	assert.Equal(t, day(2), latest["IRX6XTPI0006"])
}
