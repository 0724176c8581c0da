package jobs

import (
	"context"
	"fmt"

	"tse-market-sync/internal/domain"
	"tse-market-sync/internal/ingestion"
	"tse-market-sync/internal/normalize"
	"tse-market-sync/internal/observability"
	"tse-market-sync/internal/reconcile"
	"tse-market-sync/internal/report"
)

// InstrumentsUpdaterParams configures InstrumentsUpdater.
type InstrumentsUpdaterParams struct {
	// DryRun computes and reports the diff without writing it.
	DryRun bool `yaml:"dry_run"`
}

// InstrumentsUpdater reconciles the provider's full instrument list into the local store.
type InstrumentsUpdater struct {
	deps Deps
}

// NewInstrumentsUpdater creates the job.
func NewInstrumentsUpdater(deps Deps) *InstrumentsUpdater {
	return &InstrumentsUpdater{deps: deps.withDefaults()}
}

var _ Job[InstrumentsUpdaterParams] = (*InstrumentsUpdater)(nil)

// Name returns the job name.
func (j *InstrumentsUpdater) Name() string { return InstrumentsUpdaterName }

// DefaultParameters returns the parameters of a scheduled run.
func (j *InstrumentsUpdater) DefaultParameters() InstrumentsUpdaterParams {
	return InstrumentsUpdaterParams{}
}

// Run fetches the snapshot, diffs it against local state and applies the result.
func (j *InstrumentsUpdater) Run(ctx context.Context, params InstrumentsUpdaterParams) (*report.Report, error) {
	rep := report.New(j.Name())
	logger := j.deps.Logger.Component(j.Name())

	callCtx, cancel := j.deps.call(ctx)
	snapshot, err := j.deps.Fetcher.FetchAll(callCtx)
	cancel()
	if err != nil {
		if ctx.Err() == nil && ingestion.IsTransient(err) {
			return nil, &Failure{Message: "Could not fetch the instrument list from the provider.", Err: err}
		}
		return nil, fmt.Errorf("fetch instrument list: %w", err)
	}
	normalize.Remotes(snapshot)
	rep.Infof("Remote instruments: %d", len(snapshot))

	local, err := loadSnapshot(ctx, j.deps)
	if err != nil {
		return nil, err
	}

	outcome := reconcile.Diff(snapshot, local)
	outcome.Report(rep)
	observability.RecordReconcile(len(outcome.New), len(outcome.Changed), outcome.Unchanged, len(outcome.UnknownClassification))

	cs := outcome.ChangeSet()
	if params.DryRun || cs.IsEmpty() {
		logger.Info().Bool("dry_run", params.DryRun).Msg("nothing written")
		return rep, nil
	}
	if err := j.deps.Instruments.Apply(ctx, cs); err != nil {
		return nil, fmt.Errorf("apply instrument changes: %w", err)
	}
	logger.Info().
		Int("inserted", len(cs.Inserts)).
		Int("updated", len(cs.Updates)).
		Int("references", len(cs.Sectors)+len(cs.SubSectors)+len(cs.Markets)).
		Msg("instrument changes applied")
	return rep, nil
}

// loadSnapshot reads local instruments and reference tables once per run.
func loadSnapshot(ctx context.Context, deps Deps) (*domain.LocalSnapshot, error) {
	instruments, err := deps.Instruments.GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("load local instruments: %w", err)
	}
	refs, err := deps.References.GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("load reference tables: %w", err)
	}
	return &domain.LocalSnapshot{Instruments: instruments, References: refs}, nil
}
