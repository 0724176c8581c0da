package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tse-market-sync/internal/batch"
	"tse-market-sync/internal/domain"
	"tse-market-sync/internal/ingestion"
	"tse-market-sync/internal/ingestion/stub"
	"tse-market-sync/internal/report"
	"tse-market-sync/internal/storage/memory"
)

type fixture struct {
	fetcher *stub.Fetcher
	refs    *memory.ReferenceStore
	deps    Deps
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	refs := memory.NewReferenceStore()
	require.NoError(t, refs.InsertTypes(context.Background(), []domain.InstrumentType{
		{ID: 300, Title: "shares"},
		{ID: 305, Title: "funds"},
	}))
	fetcher := stub.NewFetcher()
	return &fixture{
		fetcher: fetcher,
		refs:    refs,
		deps: Deps{
			Fetcher:     fetcher,
			Instruments: memory.NewInstrumentStore(refs),
			References:  refs,
			Indices:     memory.NewIndexStore(),
			Timeseries:  memory.NewTimeseriesStores(),
			ChunkSize:   2,
		},
	}
}

func (f *fixture) seed(t *testing.T, instruments ...*domain.Instrument) {
	t.Helper()
	require.NoError(t, f.deps.Instruments.Apply(context.Background(), &domain.ChangeSet{Inserts: instruments}))
}

func instrument(key, code, ticker string) *domain.Instrument {
	return &domain.Instrument{Key: key, ShortCode: code, Ticker: ticker, NameLocal: ticker, TypeID: 300}
}

func remote(key, code, ticker string) *domain.RemoteInstrument {
	return &domain.RemoteInstrument{Instrument: *instrument(key, code, ticker)}
}

func day(d int) time.Time {
	return time.Date(2024, 1, d, 0, 0, 0, 0, time.UTC)
}

func candle(key string, d int, volume int64) *domain.DailyTradeCandle {
	return &domain.DailyTradeCandle{Key: key, RecordDate: day(d), ClosePrice: 1000, TradeVolume: volume}
}

func TestInstrumentsUpdater_AppliesDiff(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seed(t, instrument("IRO1AAAA0001", "11", "آ"), instrument("IRO1BBBB0001", "22", "ب"))

	renamed := remote("IRO1BBBB0001", "22", "بب")
	unknownType := remote("IRO1CCCC0001", "33", "ج")
	unknownType.TypeID = 999
	f.fetcher.Snapshot = []*domain.RemoteInstrument{
		remote("IRO1AAAA0001", "11", "آ"),
		renamed,
		remote("IRO1DDDD0001", "44", "د"),
		unknownType,
	}

	job := NewInstrumentsUpdater(f.deps)
	rep, err := DefaultTask[InstrumentsUpdaterParams](job).Run(ctx)
	require.NoError(t, err)
	assert.Contains(t, rep.Information(), "New instruments: 1")
	assert.Contains(t, rep.Information(), "Changed instruments: 1")
	assert.Contains(t, rep.Information(), "Unchanged instruments: 1")
	assert.True(t, rep.HasWarnings())

	got, err := f.deps.Instruments.GetByKey(ctx, "IRO1BBBB0001")
	require.NoError(t, err)
	assert.Equal(t, "بب", got.Ticker)

	_, err = f.deps.Instruments.GetByKey(ctx, "IRO1CCCC0001")
	assert.Error(t, err)

	// A second run over the same snapshot changes nothing.
	rep, err = job.Run(ctx, job.DefaultParameters())
	require.NoError(t, err)
	assert.Contains(t, rep.Information(), "New instruments: 0")
	assert.Contains(t, rep.Information(), "Changed instruments: 0")
	assert.Contains(t, rep.Information(), "Unchanged instruments: 3")
}

func TestInstrumentsUpdater_DryRunWritesNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fetcher.Snapshot = []*domain.RemoteInstrument{remote("IRO1AAAA0001", "11", "آ")}

	_, err := NewInstrumentsUpdater(f.deps).Run(ctx, InstrumentsUpdaterParams{DryRun: true})
	require.NoError(t, err)

	all, err := f.deps.Instruments.GetAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestInstrumentsUpdater_TransientFetchIsFailure(t *testing.T) {
	f := newFixture(t)
	f.fetcher.Errors["*"] = context.DeadlineExceeded

	_, err := NewInstrumentsUpdater(f.deps).Run(context.Background(), InstrumentsUpdaterParams{})
	var failure *Failure
	require.ErrorAs(t, err, &failure)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestInstrumentSearcher_AddsUnknownResults(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seed(t, instrument("IRO1AAAA0001", "11", "آ"))

	f.fetcher.Universe = []*domain.SearchResultItem{
		{Ticker: "آ", ShortCode: "11", IsActive: true},
		{Ticker: "ب", ShortCode: "22", IsActive: true},
		{Ticker: "پ", ShortCode: "33", IsActive: true},
		{Ticker: "ت", ShortCode: "44", IsActive: true},
	}
	f.fetcher.Identities["22"] = remote("IRO1BBBB0001", "22", "ب")
	f.fetcher.Identities["33"] = remote("IRO1PPPP0001", "33", "پ")
	f.fetcher.Errors["44"] = ingestion.ErrMalformedResponse

	rep, err := NewInstrumentSearcher(f.deps).Run(ctx, InstrumentSearcherParams{})
	require.NoError(t, err)
	assert.Contains(t, rep.Information(), "Unknown short codes: 3")
	assert.Contains(t, rep.Information(), "Identity catch success: 2")
	assert.Contains(t, rep.Information(), "Identity catch failure: 1")

	all, err := f.deps.Instruments.GetAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestInstrumentSearcher_MissingIdentityCountsAsFailure(t *testing.T) {
	f := newFixture(t)
	f.fetcher.Universe = []*domain.SearchResultItem{{Ticker: "ب", ShortCode: "22", IsActive: true}}

	rep, err := NewInstrumentSearcher(f.deps).Run(context.Background(), InstrumentSearcherParams{})
	require.NoError(t, err)
	assert.Contains(t, rep.Information(), "Identity catch failure: 1")
}

func TestIdentityCatcher_NotFound(t *testing.T) {
	f := newFixture(t)

	_, err := NewIdentityCatcher(f.deps).Run(context.Background(), IdentityCatcherParams{SearchBy: "missing"})
	var failure *Failure
	require.ErrorAs(t, err, &failure)
	assert.Equal(t, MsgNoMatch, failure.Message)
}

func TestIdentityCatcher_AmbiguousListsCandidates(t *testing.T) {
	f := newFixture(t)
	f.seed(t, instrument("IRO1AAAA0001", "11", "آ"), instrument("IRO3AAAA0001", "12", "آ"))

	_, err := NewIdentityCatcher(f.deps).Run(context.Background(), IdentityCatcherParams{SearchBy: "آ"})
	var failure *Failure
	require.ErrorAs(t, err, &failure)
	assert.Contains(t, failure.Message, MsgMultipleMatch)
	assert.Contains(t, failure.Message, "IRO1AAAA0001")
	assert.Contains(t, failure.HTMLMessage, "IRO3AAAA0001")
	assert.Contains(t, failure.HTMLMessage, "/instInfo/12")
}

func TestIdentityCatcher_Timeout(t *testing.T) {
	f := newFixture(t)
	f.seed(t, instrument("IRO1AAAA0001", "11", "آ"))
	f.fetcher.Errors["11"] = context.DeadlineExceeded

	_, err := NewIdentityCatcher(f.deps).Run(context.Background(), IdentityCatcherParams{SearchBy: "IRO1AAAA0001"})
	var failure *Failure
	require.ErrorAs(t, err, &failure)
	assert.Equal(t, MsgProviderTimeout, failure.Message)
}

func TestIdentityCatcher_Reclassifies(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seed(t, instrument("IRO1AAAA0001", "11", "آ"))

	identity := remote("IRO1AAAA0001", "11", "آ")
	identity.Sector = &domain.Sector{ID: 27, Title: "فلزات اساسی"}
	identity.SubSector = &domain.SubSector{ID: 2710, SectorID: 27, Title: "تولید آهن و فولاد"}
	identity.Market = &domain.Market{ID: 1, Title: "بازار اول"}
	f.fetcher.Identities["11"] = identity

	rep, err := NewIdentityCatcher(f.deps).Run(ctx, IdentityCatcherParams{SearchBy: "آ"})
	require.NoError(t, err)
	assert.Contains(t, rep.Information(), "Key: IRO1AAAA0001")
	assert.Contains(t, rep.Information(), "Industry: تولید آهن و فولاد")
	assert.Contains(t, rep.Information(), "Market: بازار اول")

	got, err := f.deps.Instruments.GetByKey(ctx, "IRO1AAAA0001")
	require.NoError(t, err)
	require.NotNil(t, got.SubSectorID)
	assert.Equal(t, 2710, *got.SubSectorID)
	require.NotNil(t, got.MarketID)
	assert.Equal(t, 1, *got.MarketID)

	refs, err := f.refs.GetAll(ctx)
	require.NoError(t, err)
	assert.True(t, refs.HasSector(27))
	assert.True(t, refs.HasSubSector(2710))
	assert.True(t, refs.HasMarket(1))
}

func TestIdentityCatcher_SubSectorOfUnknownSector(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seed(t, instrument("IRO1AAAA0001", "11", "آ"))

	identity := remote("IRO1AAAA0001", "11", "آ")
	identity.SubSector = &domain.SubSector{ID: 4420, SectorID: 44, Title: "پتروشیمی"}
	f.fetcher.Identities["11"] = identity

	_, err := NewIdentityCatcher(f.deps).Run(ctx, IdentityCatcherParams{SearchBy: "آ"})
	var failure *Failure
	require.ErrorAs(t, err, &failure)
	assert.Contains(t, failure.Message, MsgUnknownSector)
	assert.Contains(t, failure.Message, "44")

	got, err := f.deps.Instruments.GetByKey(ctx, "IRO1AAAA0001")
	require.NoError(t, err)
	assert.Nil(t, got.SubSectorID)
}

func TestIdentityCatcher_SubSectorImpliesKnownSector(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seed(t, instrument("IRO1AAAA0001", "11", "آ"))
	require.NoError(t, f.deps.Instruments.Apply(ctx, &domain.ChangeSet{
		Sectors: []domain.Sector{{ID: 27, Title: "فلزات اساسی"}},
	}))

	identity := remote("IRO1AAAA0001", "11", "آ")
	identity.SubSector = &domain.SubSector{ID: 2710, SectorID: 27, Title: "تولید آهن و فولاد"}
	f.fetcher.Identities["11"] = identity

	_, err := NewIdentityCatcher(f.deps).Run(ctx, IdentityCatcherParams{SearchBy: "آ"})
	require.NoError(t, err)

	got, err := f.deps.Instruments.GetByKey(ctx, "IRO1AAAA0001")
	require.NoError(t, err)
	require.NotNil(t, got.SectorID)
	assert.Equal(t, 27, *got.SectorID)
	assert.Equal(t, 2710, *got.SubSectorID)
}

func TestDailyHistorical_AppendOnlyWithFaultIsolation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seed(t,
		instrument("IRO1AAAA0001", "11", "آ"),
		instrument("IRO1BBBB0001", "22", "ب"),
		instrument("IRO1CCCC0001", "33", "ج"),
	)
	f.fetcher.Candles["11"] = []*domain.DailyTradeCandle{
		candle("IRO1AAAA0001", 3, 10), candle("IRO1AAAA0001", 1, 10), candle("IRO1AAAA0001", 2, 0),
	}
	f.fetcher.Candles["33"] = []*domain.DailyTradeCandle{
		candle("IRO1CCCC0001", 1, 5), candle("IRO1CCCC0001", 2, 5), candle("IRO1CCCC0001", 4, 5),
	}
	f.fetcher.Errors["22"] = context.DeadlineExceeded

	job := NewDailyHistorical(f.deps)
	params := DailyHistoricalParams{Trade: true}
	rep, err := job.Run(ctx, params)
	require.NoError(t, err)
	assert.Contains(t, rep.Information(), "Instruments count: 3")
	assert.Contains(t, rep.Information(), "Trade data inserted: 5")
	assert.Contains(t, rep.Information(), "Trade catch success: 2")
	assert.Contains(t, rep.Information(), "Trade catch failure: 1")

	stored, err := f.deps.Timeseries.Candles.GetByKey(ctx, "IRO1AAAA0001")
	require.NoError(t, err)
	require.Len(t, stored, 2)
	assert.Equal(t, day(1), stored[0].RecordDate)
	assert.Equal(t, day(3), stored[1].RecordDate)

	// Only rows after the stored maximum are appended on the next run.
	f.fetcher.Candles["11"] = append(f.fetcher.Candles["11"], candle("IRO1AAAA0001", 5, 7))
	delete(f.fetcher.Errors, "22")
	rep, err = job.Run(ctx, params)
	require.NoError(t, err)
	assert.Contains(t, rep.Information(), "Trade data inserted: 1")
	assert.Contains(t, rep.Information(), "Trade catch success: 3")
}

func TestDailyHistorical_SearchByAndClientType(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seed(t,
		instrument("IRO1AAAA0001", "11", "فولاد"),
		instrument("IRO1BBBB0001", "22", "فولاژ"),
		instrument("IRO1CCCC0001", "33", "خودرو"),
	)
	f.fetcher.ClientTypes["11"] = []*domain.DailyClientType{{
		Key: "IRO1AAAA0001", RecordDate: day(1),
		NaturalBuy: domain.ClientTypeSide{Num: 3, Volume: 100, Value: 1000},
	}}

	rep, err := NewDailyHistorical(f.deps).Run(ctx, DailyHistoricalParams{SearchBy: "فولا", ClientType: true})
	require.NoError(t, err)
	assert.Contains(t, rep.Information(), "Instruments count: 2")
	assert.Contains(t, rep.Information(), "Client type data inserted: 1")
	assert.Contains(t, rep.Information(), "Client type catch success: 2")
	assert.NotContains(t, rep.Information(), "Trade catch success: 2")
}

func TestDailyHistorical_NonTransientAborts(t *testing.T) {
	f := newFixture(t)
	f.seed(t, instrument("IRO1AAAA0001", "11", "آ"))
	boom := errors.New("boom")
	f.fetcher.Errors["11"] = boom

	_, err := NewDailyHistorical(f.deps).Run(context.Background(), DailyHistoricalParams{Trade: true})
	assert.ErrorIs(t, err, boom)
}

func TestIndexHistorical_AppendsNewValues(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.deps.Indices.Insert(ctx, &domain.Index{Key: "IRX6XTPI0006", ShortCode: "32097828799138957"}))
	require.NoError(t, f.deps.Timeseries.IndexValues.InsertBulk(ctx, []*domain.DailyIndexValue{
		{Key: "IRX6XTPI0006", RecordDate: day(2), CloseValue: 100},
	}))
	f.fetcher.IndexValues["32097828799138957"] = []*domain.DailyIndexValue{
		{Key: "IRX6XTPI0006", RecordDate: day(1), CloseValue: 90},
		{Key: "IRX6XTPI0006", RecordDate: day(2), CloseValue: 100},
		{Key: "IRX6XTPI0006", RecordDate: day(3), CloseValue: 110},
	}

	rep, err := NewIndexHistorical(f.deps).Run(ctx, IndexHistoricalParams{})
	require.NoError(t, err)
	assert.Contains(t, rep.Information(), "Index data inserted: 1")
	assert.Contains(t, rep.Information(), "Index catch success: 1")

	stored, err := f.deps.Timeseries.IndexValues.GetByKey(ctx, "IRX6XTPI0006")
	require.NoError(t, err)
	assert.Len(t, stored, 2)
}

func TestTask_NameAndFailureMessage(t *testing.T) {
	f := newFixture(t)
	task := NewTask[IdentityCatcherParams](NewIdentityCatcher(f.deps), IdentityCatcherParams{SearchBy: "x"})
	assert.Equal(t, IdentityCatcherName, task.Name())

	_, err := task.Run(context.Background())
	assert.EqualError(t, err, MsgNoMatch)
}

func TestAddSeries_RejectsOutOfOrderDates(t *testing.T) {
	var flushed []*domain.DailyIndexValue
	w := batch.NewWriter[*domain.DailyIndexValue](func(_ context.Context, rows []*domain.DailyIndexValue) error {
		flushed = append(flushed, rows...)
		return nil
	}, batch.WriterOptions{Table: "daily_index_value", ChunkSize: 10})
	dateOf := func(v *domain.DailyIndexValue) time.Time { return v.RecordDate }

	err := addSeries(context.Background(), w, []*domain.DailyIndexValue{
		{Key: "IRX6XTPI0006", RecordDate: day(2)},
		{Key: "IRX6XTPI0006", RecordDate: day(2)},
	}, dateOf)
	require.ErrorIs(t, err, ingestion.ErrInvalidOrdering)
	assert.Equal(t, 0, w.Pending())

	require.NoError(t, addSeries(context.Background(), w, []*domain.DailyIndexValue{
		{Key: "IRX6XTPI0006", RecordDate: day(2)},
		{Key: "IRX6XTPI0006", RecordDate: day(3)},
	}, dateOf))
	assert.Equal(t, 2, w.Pending())
	assert.Empty(t, flushed)
}

func TestFinish_ReportsUnwrittenRows(t *testing.T) {
	w := batch.NewWriter[int](func(context.Context, []int) error { return nil }, batch.WriterOptions{ChunkSize: 10})
	require.NoError(t, w.Add(context.Background(), 1, 2, 3))
	rep := report.New(DailyHistoricalName)

	err := finish(context.Background(), rep, "Trade", batch.Counts{Success: 1}, errors.New("disk full"), w)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "3 rows not written")
	assert.Contains(t, rep.Information(), "Trade data inserted: 0")
}
