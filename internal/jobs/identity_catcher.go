package jobs

import (
	"context"
	"fmt"
	"html"
	"strings"

	"tse-market-sync/internal/domain"
	"tse-market-sync/internal/normalize"
	"tse-market-sync/internal/reconcile"
	"tse-market-sync/internal/report"
	"tse-market-sync/internal/tsetmc"
)

// Failure messages of IdentityCatcher.
const (
	MsgNoMatch         = "No instruments were matched with your search parameter."
	MsgMultipleMatch   = "Multiple instruments were matched with your search parameter."
	MsgProviderTimeout = "Timeout on provider request."
	MsgUnknownSector   = "The provider reported an industry whose sector is unknown locally."
)

// IdentityCatcherParams configures IdentityCatcher.
type IdentityCatcherParams struct {
	// SearchBy is an instrument key or an exact ticker.
	SearchBy string `yaml:"search_by"`
}

// IdentityCatcher refreshes the classification of one local instrument from
// its provider identity page.
type IdentityCatcher struct {
	deps Deps
}

// NewIdentityCatcher creates the job.
func NewIdentityCatcher(deps Deps) *IdentityCatcher {
	return &IdentityCatcher{deps: deps.withDefaults()}
}

var _ Job[IdentityCatcherParams] = (*IdentityCatcher)(nil)

// Name returns the job name.
func (j *IdentityCatcher) Name() string { return IdentityCatcherName }

// DefaultParameters returns empty parameters; the job needs a search term.
func (j *IdentityCatcher) DefaultParameters() IdentityCatcherParams {
	return IdentityCatcherParams{}
}

// Run matches params.SearchBy to exactly one local instrument, fetches its
// identity and writes the sector, sub-sector and market it reports.
func (j *IdentityCatcher) Run(ctx context.Context, params IdentityCatcherParams) (*report.Report, error) {
	rep := report.New(j.Name())
	term := normalize.Text(params.SearchBy)

	match, err := reconcile.MatchInstrument(ctx, j.deps.Instruments, term)
	if err != nil {
		return nil, err
	}
	switch match.Kind {
	case reconcile.NotFound:
		return nil, &Failure{Message: MsgNoMatch}
	case reconcile.Ambiguous:
		return nil, ambiguousFailure(match.Candidates)
	}
	inst := match.Instrument

	callCtx, cancel := j.deps.call(ctx)
	identity, err := j.deps.Fetcher.FetchIdentity(callCtx, inst.ShortCode)
	cancel()
	if err != nil {
		if ctx.Err() == nil && isTimeout(err) {
			return nil, &Failure{Message: MsgProviderTimeout, Err: err}
		}
		return nil, fmt.Errorf("fetch identity of %s: %w", inst.Key, err)
	}
	if identity == nil {
		return nil, &Failure{Message: MsgNoMatch}
	}
	normalize.Remote(identity)

	refs, err := j.deps.References.GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("load reference tables: %w", err)
	}
	cs, err := reclassification(inst, identity, refs)
	if err != nil {
		return nil, err
	}
	if err := j.deps.Instruments.Apply(ctx, cs); err != nil {
		return nil, fmt.Errorf("apply classification of %s: %w", inst.Key, err)
	}

	rep.Infof("Instrument: %s", tsetmc.HomepageLink(inst.Ticker, inst.ShortCode))
	rep.Infof("Key: %s", inst.Key)
	rep.Infof("Short code: %s", inst.ShortCode)
	rep.Infof("Local name: %s", inst.NameLocal)
	rep.Infof("Foreign name: %s", inst.NameForeign)
	if identity.SubSector != nil {
		rep.Infof("Industry: %s", identity.SubSector.Title)
	}
	if identity.Market != nil {
		rep.Infof("Market: %s", identity.Market.Title)
	}
	return rep, nil
}

// reclassification builds the writes for one identity: missing reference
// entries and the new classification of inst. The sector of a new sub-sector
// must be known locally or reported alongside it.
func reclassification(inst *domain.Instrument, identity *domain.RemoteInstrument, refs *domain.ReferenceSet) (*domain.ChangeSet, error) {
	cs := &domain.ChangeSet{}
	next := inst.Clone()

	if s := identity.Sector; s != nil {
		if !refs.HasSector(s.ID) {
			cs.Sectors = append(cs.Sectors, *s)
		}
		next.SectorID = domain.IntPtr(s.ID)
	}
	if s := identity.SubSector; s != nil {
		reported := identity.Sector != nil && identity.Sector.ID == s.SectorID
		if !reported && !refs.HasSector(s.SectorID) {
			return nil, &Failure{Message: fmt.Sprintf("%s Sector code: %d", MsgUnknownSector, s.SectorID)}
		}
		if !refs.HasSubSector(s.ID) {
			cs.SubSectors = append(cs.SubSectors, *s)
		}
		if identity.Sector == nil {
			next.SectorID = domain.IntPtr(s.SectorID)
		}
		next.SubSectorID = domain.IntPtr(s.ID)
	}
	if m := identity.Market; m != nil {
		if !refs.HasMarket(m.ID) {
			cs.Markets = append(cs.Markets, *m)
		}
		next.MarketID = domain.IntPtr(m.ID)
	}
	cs.Reclassifications = []*domain.Instrument{next}
	return cs, nil
}

func ambiguousFailure(candidates []*domain.Instrument) *Failure {
	var b strings.Builder
	b.WriteString(html.EscapeString(MsgMultipleMatch))
	b.WriteString("<ul>")
	for _, c := range candidates {
		fmt.Fprintf(&b, "<li>%s: %s</li>", tsetmc.HomepageLink(c.Ticker, c.ShortCode), html.EscapeString(c.Key))
	}
	b.WriteString("</ul>")

	keys := make([]string, 0, len(candidates))
	for _, c := range candidates {
		keys = append(keys, c.Key+" "+c.NameLocal)
	}
	return &Failure{
		Message:     MsgMultipleMatch + " " + strings.Join(keys, ", "),
		HTMLMessage: b.String(),
	}
}
