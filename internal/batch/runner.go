// Package batch runs per-item provider calls with fault isolation and
// persists their rows in bounded chunks.
package batch

import (
	"context"
	"fmt"

	"tse-market-sync/internal/ingestion"
	"tse-market-sync/internal/logging"
	"tse-market-sync/internal/observability"
)

// Counts holds the outcome of one batch.
type Counts struct {
	Success int
	Failure int
}

// Total returns the number of items attempted.
func (c Counts) Total() int {
	return c.Success + c.Failure
}

// ReportLines renders the counts as run report lines.
func (c Counts) ReportLines(label string) []string {
	return []string{
		fmt.Sprintf("%s catch success: %d", label, c.Success),
		fmt.Sprintf("%s catch failure: %d", label, c.Failure),
	}
}

// Options configures a batch run.
type Options struct {
	// Label names the batch in logs, metrics and report lines.
	Label string

	// IsTransient classifies fetch errors. Default: ingestion.IsTransient.
	IsTransient func(error) bool

	// Describe renders an item for the failure log. Default: fmt %v.
	Describe func(item any) string

	Logger *logging.Logger
}

// Run calls fetch for every item in order. Transient fetch errors are logged,
// counted as failures and skipped. Successful results are passed to consume in
// the same order. A non-transient fetch error, a consume error or cancellation
// of ctx aborts the run and is returned together with the counts so far.
func Run[I, R any](
	ctx context.Context,
	items []I,
	fetch func(context.Context, I) (R, error),
	consume func(I, R) error,
	opts Options,
) (Counts, error) {
	isTransient := opts.IsTransient
	if isTransient == nil {
		isTransient = ingestion.IsTransient
	}
	describe := opts.Describe
	if describe == nil {
		describe = func(item any) string { return fmt.Sprintf("%v", item) }
	}
	logger := logging.OrSilent(opts.Logger)

	var counts Counts
	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return counts, err
		}

		result, err := fetch(ctx, item)
		if err != nil {
			if ctx.Err() == nil && isTransient(err) {
				counts.Failure++
				observability.RecordBatchItem(opts.Label, false)
				logger.Error().
					Err(err).
					Str("batch", opts.Label).
					Str("item", describe(item)).
					Msg("fetch failed, skipping item")
				continue
			}
			return counts, fmt.Errorf("%s: fetch %s: %w", opts.Label, describe(item), err)
		}

		counts.Success++
		observability.RecordBatchItem(opts.Label, true)
		if consume != nil {
			if err := consume(item, result); err != nil {
				return counts, fmt.Errorf("%s: consume %s: %w", opts.Label, describe(item), err)
			}
		}
	}
	logger.Info().
		Str("batch", opts.Label).
		Int("total", counts.Total()).
		Int("success", counts.Success).
		Int("failure", counts.Failure).
		Msg("batch finished")
	return counts, nil
}
