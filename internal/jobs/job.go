// Package jobs implements the scheduled synchronization jobs.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"tse-market-sync/internal/ingestion"
	"tse-market-sync/internal/logging"
	"tse-market-sync/internal/observability"
	"tse-market-sync/internal/report"
	"tse-market-sync/internal/storage"
)

// Job names.
const (
	InstrumentsUpdaterName = "instruments_updater"
	InstrumentSearcherName = "instrument_searcher"
	IdentityCatcherName    = "identity_catcher"
	DailyHistoricalName    = "daily_historical"
	IndexHistoricalName    = "index_historical"
)

// DefaultCallTimeout bounds a single provider call made by a job.
const DefaultCallTimeout = 10 * time.Second

// Job is a unit of scheduled work with typed parameters.
type Job[P any] interface {
	Name() string
	DefaultParameters() P
	Run(ctx context.Context, params P) (*report.Report, error)
}

// Task is a job bound to its parameters, ready for the scheduler.
type Task struct {
	name string
	run  func(ctx context.Context) (*report.Report, error)
}

// NewTask binds job to params.
func NewTask[P any](job Job[P], params P) Task {
	return Task{
		name: job.Name(),
		run: func(ctx context.Context) (*report.Report, error) {
			return job.Run(ctx, params)
		},
	}
}

// DefaultTask binds job to its default parameters.
func DefaultTask[P any](job Job[P]) Task {
	return NewTask(job, job.DefaultParameters())
}

// Name returns the job name.
func (t Task) Name() string {
	return t.name
}

// Run executes the job and records run metrics.
func (t Task) Run(ctx context.Context) (*report.Report, error) {
	start := time.Now()
	rep, err := t.run(ctx)
	observability.RecordJobRun(t.name, time.Since(start), err)
	return rep, err
}

// Failure is a job-level failure meant for the operator. HTMLMessage, when
// set, is a rich variant of Message for notification channels.
type Failure struct {
	Message     string
	HTMLMessage string
	Err         error
}

func (f *Failure) Error() string {
	if f.Err != nil {
		return fmt.Sprintf("%s: %v", f.Message, f.Err)
	}
	return f.Message
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// Deps are the collaborators shared by all jobs.
type Deps struct {
	Fetcher     ingestion.Fetcher
	Instruments storage.InstrumentStore
	References  storage.ReferenceStore
	Indices     storage.IndexStore
	Timeseries  storage.TimeseriesStores

	ChunkSize   int           // Default: batch.DefaultChunkSize
	SearchCap   int           // Default: search.DefaultCap
	CallTimeout time.Duration // Default: DefaultCallTimeout

	Logger *logging.Logger
}

func (d Deps) withDefaults() Deps {
	if d.CallTimeout <= 0 {
		d.CallTimeout = DefaultCallTimeout
	}
	d.Logger = logging.OrSilent(d.Logger)
	return d
}

// call derives the per-call context for one provider request.
func (d Deps) call(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, d.CallTimeout)
}

// isTimeout reports whether err is a provider call timing out.
func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
