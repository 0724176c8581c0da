// Package search enumerates the provider's instrument search, which silently
// truncates its answers, by recursively refining the query prefix.
package search

import (
	"context"
	"sort"
	"strings"
	"unicode/utf8"

	"tse-market-sync/internal/domain"
	"tse-market-sync/internal/ingestion"
	"tse-market-sync/internal/logging"
	"tse-market-sync/internal/normalize"
	"tse-market-sync/internal/observability"
	"tse-market-sync/internal/report"
)

// DefaultCap is the number of rows after which the provider truncates a search.
const DefaultCap = 40

// Options configures an Enumerator.
type Options struct {
	Cap    int // Default: DefaultCap
	Logger *logging.Logger
}

// Enumerator walks the search space below a prefix.
type Enumerator struct {
	source ingestion.SearchSource
	cap    int
	logger *logging.Logger
}

// NewEnumerator creates an enumerator over source.
func NewEnumerator(source ingestion.SearchSource, opts Options) *Enumerator {
	limit := opts.Cap
	if limit <= 0 {
		limit = DefaultCap
	}
	return &Enumerator{
		source: source,
		cap:    limit,
		logger: logging.OrSilent(opts.Logger),
	}
}

// walk holds the state of one enumeration.
type walk struct {
	visited map[string]struct{}
	found   map[string]*domain.SearchResultItem // keyed by short code
	rep     *report.Report
}

// Enumerate returns every active instrument reachable from prefix, deduplicated
// by short code and ordered by ticker. A failed query is recorded as a warning
// on rep and its branch contributes nothing. Only cancellation of ctx is
// returned as an error.
func (e *Enumerator) Enumerate(ctx context.Context, prefix string, rep *report.Report) ([]*domain.SearchResultItem, error) {
	w := &walk{
		visited: make(map[string]struct{}),
		found:   make(map[string]*domain.SearchResultItem),
		rep:     rep,
	}
	if err := e.visit(ctx, w, normalize.Text(prefix), true); err != nil {
		return nil, err
	}

	result := w.results()
	observability.UpdateSearchResults(len(result))
	return result, nil
}

// Query runs a single search for term without refinement, keeping active rows.
func (e *Enumerator) Query(ctx context.Context, term string, rep *report.Report) ([]*domain.SearchResultItem, error) {
	w := &walk{
		visited: make(map[string]struct{}),
		found:   make(map[string]*domain.SearchResultItem),
		rep:     rep,
	}
	if err := e.visit(ctx, w, normalize.Text(term), false); err != nil {
		return nil, err
	}
	return w.results(), nil
}

func (e *Enumerator) visit(ctx context.Context, w *walk, prefix string, recursive bool) error {
	if _, seen := w.visited[prefix]; seen {
		return nil
	}
	w.visited[prefix] = struct{}{}

	items, err := e.source.Search(ctx, prefix)
	observability.RecordSearchQuery(err != nil)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		e.logger.Warn().Err(err).Str("prefix", prefix).Msg("search query failed")
		if w.rep != nil {
			w.rep.Warnf("search failed for prefix %q: %v", prefix, err)
		}
		return nil
	}

	obsolete := 0
	for _, item := range items {
		normalize.SearchItem(item)
		if !item.IsActive {
			obsolete++
			continue
		}
		if _, exists := w.found[item.ShortCode]; !exists {
			w.found[item.ShortCode] = item
		}
	}
	e.logger.Debug().Str("prefix", prefix).Int("rows", len(items)).Int("obsolete", obsolete).Msg("search query")

	if !recursive || len(items) < e.cap || obsolete > 0 {
		return nil
	}

	for _, next := range Extensions(prefix, items) {
		if err := e.visit(ctx, w, next, true); err != nil {
			return err
		}
	}
	return nil
}

func (w *walk) results() []*domain.SearchResultItem {
	result := make([]*domain.SearchResultItem, 0, len(w.found))
	for _, item := range w.found {
		result = append(result, item)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Ticker != result[j].Ticker {
			return result[i].Ticker < result[j].Ticker
		}
		return result[i].ShortCode < result[j].ShortCode
	})
	return result
}

// Extensions returns prefix extended by each distinct next character found in
// tickers that start with prefix and are longer than it, in sorted order.
func Extensions(prefix string, items []*domain.SearchResultItem) []string {
	seen := make(map[rune]struct{})
	for _, item := range items {
		if !strings.HasPrefix(item.Ticker, prefix) || len(item.Ticker) <= len(prefix) {
			continue
		}
		r, _ := utf8.DecodeRuneInString(item.Ticker[len(prefix):])
		if r == utf8.RuneError {
			continue
		}
		seen[r] = struct{}{}
	}

	next := make([]string, 0, len(seen))
	for r := range seen {
		next = append(next, prefix+string(r))
	}
	sort.Strings(next)
	return next
}
