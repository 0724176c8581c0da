package jobs

import (
	"context"
	"fmt"
	"time"

	"tse-market-sync/internal/batch"
	"tse-market-sync/internal/domain"
	"tse-market-sync/internal/ingestion"
	"tse-market-sync/internal/report"
)

// Table names used in flush logs and metrics.
const (
	tableTradeCandle = "daily_trade_candle"
	tableClientType  = "daily_client_type"
	tableIndexValue  = "daily_index_value"
)

// DailyHistoricalParams configures DailyHistorical.
type DailyHistoricalParams struct {
	// SearchBy restricts the run to instruments whose key equals or whose
	// ticker contains the term. Empty means all instruments.
	SearchBy   string `yaml:"search_by"`
	Trade      bool   `yaml:"trade"`
	ClientType bool   `yaml:"client_type"`
}

// DailyHistorical appends daily trade candles and client-type rows for local instruments.
type DailyHistorical struct {
	deps Deps
}

// NewDailyHistorical creates the job.
func NewDailyHistorical(deps Deps) *DailyHistorical {
	return &DailyHistorical{deps: deps.withDefaults()}
}

var _ Job[DailyHistoricalParams] = (*DailyHistorical)(nil)

// Name returns the job name.
func (j *DailyHistorical) Name() string { return DailyHistoricalName }

// DefaultParameters returns the parameters of a scheduled run.
func (j *DailyHistorical) DefaultParameters() DailyHistoricalParams {
	return DailyHistoricalParams{Trade: true, ClientType: true}
}

// Run fetches the history of every selected instrument and inserts rows newer
// than the stored maximum date of that instrument.
func (j *DailyHistorical) Run(ctx context.Context, params DailyHistoricalParams) (*report.Report, error) {
	rep := report.New(j.Name())
	logger := j.deps.Logger.Component(j.Name())

	instruments, err := j.selectInstruments(ctx, params.SearchBy)
	if err != nil {
		return nil, err
	}
	rep.Infof("Instruments count: %d", len(instruments))

	if params.Trade {
		latest, err := j.deps.Timeseries.Candles.LatestDates(ctx)
		if err != nil {
			return nil, fmt.Errorf("latest candle dates: %w", err)
		}
		writer := batch.NewWriter[*domain.DailyTradeCandle](j.deps.Timeseries.Candles.InsertBulk, batch.WriterOptions{
			Table:     tableTradeCandle,
			ChunkSize: j.deps.ChunkSize,
			Logger:    logger,
		})
		counts, err := batch.Run(ctx, instruments,
			func(ctx context.Context, inst *domain.Instrument) ([]*domain.DailyTradeCandle, error) {
				callCtx, cancel := j.deps.call(ctx)
				defer cancel()
				return j.deps.Fetcher.FetchTradeHistory(callCtx, inst.Key, inst.ShortCode)
			},
			func(inst *domain.Instrument, rows []*domain.DailyTradeCandle) error {
				return addSeries(ctx, writer, ingestion.NewCandles(rows, latest[inst.Key]), func(c *domain.DailyTradeCandle) time.Time { return c.RecordDate })
			},
			batch.Options{Label: "Trade", Describe: describeInstrument, Logger: logger},
		)
		if err := finish(ctx, rep, "Trade", counts, err, writer); err != nil {
			return nil, err
		}
	}

	if params.ClientType {
		latest, err := j.deps.Timeseries.ClientTypes.LatestDates(ctx)
		if err != nil {
			return nil, fmt.Errorf("latest client type dates: %w", err)
		}
		writer := batch.NewWriter[*domain.DailyClientType](j.deps.Timeseries.ClientTypes.InsertBulk, batch.WriterOptions{
			Table:     tableClientType,
			ChunkSize: j.deps.ChunkSize,
			Logger:    logger,
		})
		counts, err := batch.Run(ctx, instruments,
			func(ctx context.Context, inst *domain.Instrument) ([]*domain.DailyClientType, error) {
				callCtx, cancel := j.deps.call(ctx)
				defer cancel()
				return j.deps.Fetcher.FetchClientTypeHistory(callCtx, inst.Key, inst.ShortCode)
			},
			func(inst *domain.Instrument, rows []*domain.DailyClientType) error {
				return addSeries(ctx, writer, ingestion.NewClientTypes(rows, latest[inst.Key]), func(r *domain.DailyClientType) time.Time { return r.RecordDate })
			},
			batch.Options{Label: "Client type", Describe: describeInstrument, Logger: logger},
		)
		if err := finish(ctx, rep, "Client type", counts, err, writer); err != nil {
			return nil, err
		}
	}
	return rep, nil
}

// selectInstruments returns all local instruments, or the union of the key
// match and the ticker matches of term.
func (j *DailyHistorical) selectInstruments(ctx context.Context, term string) ([]*domain.Instrument, error) {
	if term == "" {
		all, err := j.deps.Instruments.GetAll(ctx)
		if err != nil {
			return nil, fmt.Errorf("load instruments: %w", err)
		}
		return all, nil
	}

	seen := make(map[string]bool)
	var out []*domain.Instrument
	for _, by := range []domain.SearchBy{domain.SearchByKey, domain.SearchByTicker} {
		found, err := j.deps.Instruments.Search(ctx, by, term)
		if err != nil {
			return nil, fmt.Errorf("search instruments by %s: %w", by, err)
		}
		for _, inst := range found {
			if !seen[inst.Key] {
				seen[inst.Key] = true
				out = append(out, inst)
			}
		}
	}
	return out, nil
}

// IndexHistoricalParams configures IndexHistorical.
type IndexHistoricalParams struct{}

// IndexHistorical appends daily values for local indices.
type IndexHistorical struct {
	deps Deps
}

// NewIndexHistorical creates the job.
func NewIndexHistorical(deps Deps) *IndexHistorical {
	return &IndexHistorical{deps: deps.withDefaults()}
}

var _ Job[IndexHistoricalParams] = (*IndexHistorical)(nil)

// Name returns the job name.
func (j *IndexHistorical) Name() string { return IndexHistoricalName }

// DefaultParameters returns the parameters of a scheduled run.
func (j *IndexHistorical) DefaultParameters() IndexHistoricalParams {
	return IndexHistoricalParams{}
}

// Run fetches the history of every local index and inserts values newer than
// the stored maximum date of that index.
func (j *IndexHistorical) Run(ctx context.Context, _ IndexHistoricalParams) (*report.Report, error) {
	rep := report.New(j.Name())
	logger := j.deps.Logger.Component(j.Name())

	indices, err := j.deps.Indices.GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("load indices: %w", err)
	}
	rep.Infof("Indices count: %d", len(indices))

	latest, err := j.deps.Timeseries.IndexValues.LatestDates(ctx)
	if err != nil {
		return nil, fmt.Errorf("latest index dates: %w", err)
	}
	writer := batch.NewWriter[*domain.DailyIndexValue](j.deps.Timeseries.IndexValues.InsertBulk, batch.WriterOptions{
		Table:     tableIndexValue,
		ChunkSize: j.deps.ChunkSize,
		Logger:    logger,
	})
	counts, err := batch.Run(ctx, indices,
		func(ctx context.Context, idx *domain.Index) ([]*domain.DailyIndexValue, error) {
			callCtx, cancel := j.deps.call(ctx)
			defer cancel()
			return j.deps.Fetcher.FetchIndexHistory(callCtx, idx.Key, idx.ShortCode)
		},
		func(idx *domain.Index, rows []*domain.DailyIndexValue) error {
			return addSeries(ctx, writer, ingestion.NewIndexValues(rows, latest[idx.Key]), func(v *domain.DailyIndexValue) time.Time { return v.RecordDate })
		},
		batch.Options{Label: "Index", Describe: describeIndex, Logger: logger},
	)
	if err := finish(ctx, rep, "Index", counts, err, writer); err != nil {
		return nil, err
	}
	return rep, nil
}

// addSeries buffers the rows of one series. Dates must be strictly
// increasing; a series that is not is rejected whole.
func addSeries[T any](ctx context.Context, w *batch.Writer[T], rows []T, dateOf func(T) time.Time) error {
	dates := make([]time.Time, len(rows))
	for i, r := range rows {
		dates[i] = dateOf(r)
	}
	if err := ingestion.ValidateOrdering(dates); err != nil {
		return err
	}
	return w.Add(ctx, rows...)
}

type flusher interface {
	Close(ctx context.Context) error
	Written() int
	Pending() int
}

// finish flushes the remainder of a batch and writes its report lines.
// Rows already flushed stay committed when the batch aborts.
func finish(ctx context.Context, rep *report.Report, label string, counts batch.Counts, runErr error, w flusher) error {
	if runErr == nil {
		runErr = w.Close(ctx)
	}
	rep.Infof("%s data inserted: %d", label, w.Written())
	for _, line := range counts.ReportLines(label) {
		rep.Info(line)
	}
	if runErr != nil {
		return fmt.Errorf("%s batch, %d rows not written: %w", label, w.Pending(), runErr)
	}
	return nil
}

func describeInstrument(item any) string {
	if inst, ok := item.(*domain.Instrument); ok {
		return inst.String()
	}
	return fmt.Sprintf("%v", item)
}

func describeIndex(item any) string {
	if idx, ok := item.(*domain.Index); ok {
		return idx.String()
	}
	return fmt.Sprintf("%v", item)
}

