package jobs

import (
	"context"
	"fmt"

	"tse-market-sync/internal/batch"
	"tse-market-sync/internal/domain"
	"tse-market-sync/internal/ingestion"
	"tse-market-sync/internal/normalize"
	"tse-market-sync/internal/observability"
	"tse-market-sync/internal/reconcile"
	"tse-market-sync/internal/report"
	"tse-market-sync/internal/search"
)

// InstrumentSearcherParams configures InstrumentSearcher.
type InstrumentSearcherParams struct {
	SearchBy  string `yaml:"search_by"`
	Recursive bool   `yaml:"recursive"`
}

// InstrumentSearcher discovers instruments through the provider search and
// adds the ones unknown locally.
type InstrumentSearcher struct {
	deps       Deps
	enumerator *search.Enumerator
}

// NewInstrumentSearcher creates the job.
func NewInstrumentSearcher(deps Deps) *InstrumentSearcher {
	deps = deps.withDefaults()
	return &InstrumentSearcher{
		deps: deps,
		enumerator: search.NewEnumerator(deps.Fetcher, search.Options{
			Cap:    deps.SearchCap,
			Logger: deps.Logger.Component("search"),
		}),
	}
}

var _ Job[InstrumentSearcherParams] = (*InstrumentSearcher)(nil)

// Name returns the job name.
func (j *InstrumentSearcher) Name() string { return InstrumentSearcherName }

// DefaultParameters returns the parameters of a scheduled run.
func (j *InstrumentSearcher) DefaultParameters() InstrumentSearcherParams {
	return InstrumentSearcherParams{SearchBy: "", Recursive: false}
}

// Run searches, fetches the identity of every active result not known
// locally and reconciles those identities into the store.
func (j *InstrumentSearcher) Run(ctx context.Context, params InstrumentSearcherParams) (*report.Report, error) {
	rep := report.New(j.Name())
	logger := j.deps.Logger.Component(j.Name())

	var items []*domain.SearchResultItem
	var err error
	if params.Recursive {
		items, err = j.enumerator.Enumerate(ctx, params.SearchBy, rep)
	} else {
		items, err = j.enumerator.Query(ctx, params.SearchBy, rep)
	}
	if err != nil {
		return nil, fmt.Errorf("search %q: %w", params.SearchBy, err)
	}
	rep.Infof("Search results: %d", len(items))

	local, err := loadSnapshot(ctx, j.deps)
	if err != nil {
		return nil, err
	}
	known, unknown := reconcile.PartitionBySearchResult(items, local.Instruments)
	rep.Infof("Already known: %d", len(known))
	rep.Infof("Unknown short codes: %d", len(unknown))
	if len(unknown) == 0 {
		return rep, nil
	}

	var remotes []*domain.RemoteInstrument
	counts, err := batch.Run(ctx, unknown,
		func(ctx context.Context, item *domain.SearchResultItem) (*domain.RemoteInstrument, error) {
			callCtx, cancel := j.deps.call(ctx)
			defer cancel()
			r, err := j.deps.Fetcher.FetchIdentity(callCtx, item.ShortCode)
			if err == nil && r == nil {
				err = fmt.Errorf("identity of %s: %w", item.ShortCode, ingestion.ErrMalformedResponse)
			}
			return r, err
		},
		func(_ *domain.SearchResultItem, r *domain.RemoteInstrument) error {
			remotes = append(remotes, normalize.Remote(r))
			return nil
		},
		batch.Options{
			Label:    "Identity",
			Describe: describeSearchItem,
			Logger:   logger,
		},
	)
	for _, line := range counts.ReportLines("Identity") {
		rep.Info(line)
	}
	if err != nil {
		return nil, err
	}

	outcome := reconcile.Diff(remotes, local)
	outcome.Report(rep)
	observability.RecordReconcile(len(outcome.New), len(outcome.Changed), outcome.Unchanged, len(outcome.UnknownClassification))

	if cs := outcome.ChangeSet(); !cs.IsEmpty() {
		if err := j.deps.Instruments.Apply(ctx, cs); err != nil {
			return nil, fmt.Errorf("apply searched instruments: %w", err)
		}
	}
	return rep, nil
}

func describeSearchItem(item any) string {
	if s, ok := item.(*domain.SearchResultItem); ok {
		return fmt.Sprintf("%s (%s)", s.Ticker, s.ShortCode)
	}
	return fmt.Sprintf("%v", item)
}
