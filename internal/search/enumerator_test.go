package search

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tse-market-sync/internal/domain"
	"tse-market-sync/internal/ingestion/stub"
	"tse-market-sync/internal/report"
)

var letters = []rune("ابپتثجچحخد")

// universe builds n active items with tickers prefix + two letters.
func universe(prefix string, n int) []*domain.SearchResultItem {
	items := make([]*domain.SearchResultItem, 0, n)
	for i := 0; i < n; i++ {
		ticker := prefix + string(letters[i/10%10]) + string(letters[i%10])
		items = append(items, &domain.SearchResultItem{
			Ticker:    ticker,
			ShortCode: fmt.Sprintf("%017d", i+1),
			IsActive:  true,
		})
	}
	return items
}

func TestEnumerate_Completeness(t *testing.T) {
	fetcher := stub.NewFetcher()
	fetcher.Universe = universe("ن", 100)
	fetcher.SearchCap = 40

	e := NewEnumerator(fetcher, Options{Cap: 40})
	rep := report.New("instrument_searcher")

	got, err := e.Enumerate(context.Background(), "ن", rep)
	require.NoError(t, err)

	assert.Len(t, got, 100)
	assert.True(t, sort.SliceIsSorted(got, func(i, j int) bool { return got[i].Ticker < got[j].Ticker }))
	assert.Empty(t, rep.Warnings())

	// One capped root query plus one query per next character.
	assert.Len(t, fetcher.Queries, 11)
	assert.Equal(t, "ن", fetcher.Queries[0])
}

func TestEnumerate_StopsBelowCap(t *testing.T) {
	fetcher := stub.NewFetcher()
	fetcher.Universe = universe("ن", 39)
	fetcher.SearchCap = 40

	got, err := NewEnumerator(fetcher, Options{}).Enumerate(context.Background(), "ن", nil)
	require.NoError(t, err)

	assert.Len(t, got, 39)
	assert.Equal(t, []string{"ن"}, fetcher.Queries)
}

func TestEnumerate_InactiveItemMeansComplete(t *testing.T) {
	items := universe("ن", 40)
	items[5].IsActive = false

	fetcher := stub.NewFetcher()
	fetcher.Universe = items
	fetcher.SearchCap = 40

	got, err := NewEnumerator(fetcher, Options{Cap: 40}).Enumerate(context.Background(), "ن", nil)
	require.NoError(t, err)

	assert.Len(t, got, 39)
	assert.Len(t, fetcher.Queries, 1)
	for _, item := range got {
		assert.True(t, item.IsActive)
	}
}

func TestEnumerate_NoExtensionsTerminates(t *testing.T) {
	var items []*domain.SearchResultItem
	for i := 0; i < 45; i++ {
		items = append(items, &domain.SearchResultItem{
			Ticker:    "وبملت",
			ShortCode: fmt.Sprintf("%d", i),
			IsActive:  true,
		})
	}
	fetcher := stub.NewFetcher()
	fetcher.Universe = items
	fetcher.SearchCap = 40

	got, err := NewEnumerator(fetcher, Options{Cap: 40}).Enumerate(context.Background(), "وبملت", nil)
	require.NoError(t, err)

	assert.Len(t, got, 40)
	assert.Len(t, fetcher.Queries, 1)
}

func TestEnumerate_FailedBranchIsIsolated(t *testing.T) {
	failing := "ن" + string(letters[1])

	// Rows of the failed branch already on the capped root page are kept.
	plain := stub.NewFetcher()
	plain.Universe = universe("ن", 100)
	plain.SearchCap = 40
	root, err := plain.Search(context.Background(), "ن")
	require.NoError(t, err)
	onRootPage := 0
	for _, item := range root {
		if strings.HasPrefix(item.Ticker, failing) {
			onRootPage++
		}
	}
	require.Positive(t, onRootPage)

	fetcher := stub.NewFetcher()
	fetcher.Universe = universe("ن", 100)
	fetcher.SearchCap = 40
	fetcher.Errors[failing] = errors.New("connection reset")

	rep := report.New("instrument_searcher")
	got, err := NewEnumerator(fetcher, Options{Cap: 40}).Enumerate(context.Background(), "ن", rep)
	require.NoError(t, err)

	assert.Len(t, got, 90+onRootPage)
	for _, item := range got {
		if strings.HasPrefix(item.Ticker, failing) {
			assert.Contains(t, tickers(root), item.Ticker)
		}
	}
	require.Len(t, rep.Warnings(), 1)
	assert.Contains(t, rep.Warnings()[0], failing)
}

func TestEnumerate_DeduplicatesByShortCode(t *testing.T) {
	items := universe("ن", 100)
	// Same instrument listed under two tickers.
	items = append(items, &domain.SearchResultItem{Ticker: "نالف", ShortCode: items[0].ShortCode, IsActive: true})

	fetcher := stub.NewFetcher()
	fetcher.Universe = items
	fetcher.SearchCap = 40

	got, err := NewEnumerator(fetcher, Options{Cap: 40}).Enumerate(context.Background(), "ن", nil)
	require.NoError(t, err)

	seen := make(map[string]bool)
	for _, item := range got {
		assert.False(t, seen[item.ShortCode], "duplicate short code %s", item.ShortCode)
		seen[item.ShortCode] = true
	}
	assert.Len(t, got, 100)
}

func TestEnumerate_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	fetcher := stub.NewFetcher()
	fetcher.Errors[""] = context.Canceled

	_, err := NewEnumerator(fetcher, Options{}).Enumerate(ctx, "", nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestQuery_DoesNotRecurse(t *testing.T) {
	fetcher := stub.NewFetcher()
	fetcher.Universe = universe("ن", 100)
	fetcher.SearchCap = 40

	got, err := NewEnumerator(fetcher, Options{Cap: 40}).Query(context.Background(), "ن", nil)
	require.NoError(t, err)

	assert.Len(t, got, 40)
	assert.Len(t, fetcher.Queries, 1)
}

func TestExtensions(t *testing.T) {
	items := []*domain.SearchResultItem{
		{Ticker: "فولاد"},
		{Ticker: "فولادح"},
		{Ticker: "فملی"},
		{Ticker: "فو"},
		{Ticker: "خودرو"}, // does not start with prefix
	}

	got := Extensions("فو", items)
	assert.Equal(t, []string{"فول"}, got)

	got = Extensions("ف", items)
	assert.Equal(t, []string{"فم", "فو"}, got)
}

func tickers(items []*domain.SearchResultItem) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		out = append(out, item.Ticker)
	}
	return out
}
