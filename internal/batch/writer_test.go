package batch

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriter_ChunkBoundary(t *testing.T) {
	var sizes []int
	var firsts []int
	w := NewWriter[int](func(_ context.Context, rows []int) error {
		sizes = append(sizes, len(rows))
		firsts = append(firsts, rows[0])
		return nil
	}, WriterOptions{Table: "daily_trade_candle", ChunkSize: 10000})

	ctx := context.Background()
	for i := 0; i < 25000; i++ {
		require.NoError(t, w.Add(ctx, i))
	}
	assert.Equal(t, []int{10000, 10000}, sizes)
	assert.Equal(t, 5000, w.Pending())

	require.NoError(t, w.Close(ctx))

	assert.Equal(t, []int{10000, 10000, 5000}, sizes)
	assert.Equal(t, []int{0, 10000, 20000}, firsts)
	assert.Equal(t, 25000, w.Written())
	assert.Equal(t, 3, w.Flushes())
}

func TestWriter_BulkAddSplitsIntoChunks(t *testing.T) {
	var sizes []int
	w := NewWriter[int](func(_ context.Context, rows []int) error {
		sizes = append(sizes, len(rows))
		return nil
	}, WriterOptions{ChunkSize: 3})

	rows := make([]int, 7)
	require.NoError(t, w.Add(context.Background(), rows...))
	require.NoError(t, w.Close(context.Background()))

	assert.Equal(t, []int{3, 3, 1}, sizes)
}

func TestWriter_ExactMultipleHasNoEmptyFlush(t *testing.T) {
	calls := 0
	w := NewWriter[int](func(_ context.Context, rows []int) error {
		calls++
		return nil
	}, WriterOptions{ChunkSize: 2})

	require.NoError(t, w.Add(context.Background(), 1, 2, 3, 4))
	require.NoError(t, w.Close(context.Background()))

	assert.Equal(t, 2, calls)
}

func TestWriter_FailedFlushKeepsCommittedChunks(t *testing.T) {
	dbErr := errors.New("constraint violation")
	var committed []int
	w := NewWriter[int](func(_ context.Context, rows []int) error {
		if rows[0] >= 4 {
			return dbErr
		}
		committed = append(committed, rows...)
		return nil
	}, WriterOptions{ChunkSize: 2})

	err := w.Add(context.Background(), 0, 1, 2, 3, 4, 5)

	require.ErrorIs(t, err, dbErr)
	assert.Equal(t, []int{0, 1, 2, 3}, committed)
	assert.Equal(t, 4, w.Written())
	assert.Equal(t, 2, w.Pending())
}

func TestWriter_DefaultChunkSize(t *testing.T) {
	w := NewWriter[string](func(context.Context, []string) error { return nil }, WriterOptions{})
	assert.Equal(t, DefaultChunkSize, w.chunkSize)
}
