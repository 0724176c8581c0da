package batch

import (
	"context"
	"fmt"

	"tse-market-sync/internal/logging"
	"tse-market-sync/internal/observability"
)

// DefaultChunkSize is the number of rows written per flush.
const DefaultChunkSize = 10000

// FlushFunc writes one chunk of rows in its own transaction.
type FlushFunc[T any] func(ctx context.Context, rows []T) error

// WriterOptions configures a Writer.
type WriterOptions struct {
	// Table names the destination in logs and metrics.
	Table string

	// ChunkSize is the flush threshold. Default: DefaultChunkSize.
	ChunkSize int

	Logger *logging.Logger
}

// Writer buffers rows of one record type and flushes them in chunks of exactly
// ChunkSize rows, with the remainder written on Close. Chunks are flushed in
// fill order. A failed flush leaves earlier chunks committed and is returned
// to the caller; the failed rows stay buffered.
type Writer[T any] struct {
	flush     FlushFunc[T]
	table     string
	chunkSize int
	logger    *logging.Logger

	buf     []T
	written int
	flushes int
}

// NewWriter creates a chunked writer around flush.
func NewWriter[T any](flush FlushFunc[T], opts WriterOptions) *Writer[T] {
	chunkSize := opts.ChunkSize
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &Writer[T]{
		flush:     flush,
		table:     opts.Table,
		chunkSize: chunkSize,
		logger:    logging.OrSilent(opts.Logger),
		buf:       make([]T, 0, chunkSize),
	}
}

// Add buffers rows and flushes every full chunk.
func (w *Writer[T]) Add(ctx context.Context, rows ...T) error {
	w.buf = append(w.buf, rows...)
	for len(w.buf) >= w.chunkSize {
		if err := w.write(ctx, w.chunkSize); err != nil {
			return err
		}
	}
	return nil
}

// Close writes any buffered remainder.
func (w *Writer[T]) Close(ctx context.Context) error {
	if len(w.buf) == 0 {
		return nil
	}
	return w.write(ctx, len(w.buf))
}

// Written returns the number of rows committed so far.
func (w *Writer[T]) Written() int {
	return w.written
}

// Flushes returns the number of chunks committed so far.
func (w *Writer[T]) Flushes() int {
	return w.flushes
}

// Pending returns the number of buffered rows not yet written.
func (w *Writer[T]) Pending() int {
	return len(w.buf)
}

func (w *Writer[T]) write(ctx context.Context, n int) error {
	chunk := w.buf[:n:n]
	if err := w.flush(ctx, chunk); err != nil {
		return fmt.Errorf("flush %d rows to %s: %w", n, w.table, err)
	}

	w.written += n
	w.flushes++
	observability.RecordFlush(w.table, n)
	w.logger.Info().Str("table", w.table).Int("rows", n).Int("total", w.written).Msg("chunk flushed")

	w.buf = w.buf[n:]
	return nil
}
