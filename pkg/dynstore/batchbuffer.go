package dynstore

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// DataBatchInserter is a generic interface for writing a batch of items of any
// type T to a durable store in one bulk operation. A call either succeeds for
// every item or is reported as failed.
type DataBatchInserter[T any] interface {
	InsertBatch(ctx context.Context, items []*T) error
	Close() error
}

// BatchBufferConfig holds configuration for the BatchBuffer.
type BatchBufferConfig struct {
	// Capacity is the buffer length at which an append triggers a flush.
	Capacity int
	// FlushTimeout bounds a single bulk write.
	FlushTimeout time.Duration
}

const (
	defaultCapacity     = 10
	defaultFlushTimeout = 10 * time.Second
)

// FlushOutcome reports what happened to a flush decision.
type FlushOutcome int

const (
	// NotAttempted means the flush trigger was not reached.
	NotAttempted FlushOutcome = iota
	// Flushed means a bulk write succeeded and the written items were removed.
	Flushed
	// Failed means a bulk write failed and the buffer was left untouched.
	Failed
)

func (o FlushOutcome) String() string {
	switch o {
	case Flushed:
		return "flushed"
	case Failed:
		return "failed"
	default:
		return "not_attempted"
	}
}

// BatchBuffer accumulates items and writes them in bulk once Capacity is
// reached, or when ForceFlush is called.
//
// A BatchBuffer is owned by whoever hosts the pipeline and handed to each
// invocation. It lives as long as the hosting process, which may or may not be
// reused between invocations; items still buffered when the process goes away
// are lost. It is not safe for concurrent use: invocations sharing a buffer
// must run one at a time.
type BatchBuffer[T any] struct {
	config   BatchBufferConfig
	inserter DataBatchInserter[T]
	logger   zerolog.Logger
	items    []*T
}

// NewBatchBuffer creates an empty buffer writing through inserter.
func NewBatchBuffer[T any](
	config BatchBufferConfig,
	inserter DataBatchInserter[T],
	logger zerolog.Logger,
) *BatchBuffer[T] {
	if config.Capacity <= 0 {
		logger.Warn().Int("provided_capacity", config.Capacity).Int("default_capacity", defaultCapacity).Msg("Capacity must be positive, applying default.")
		config.Capacity = defaultCapacity
	}
	if config.FlushTimeout <= 0 {
		config.FlushTimeout = defaultFlushTimeout
	}
	return &BatchBuffer[T]{
		config:   config,
		inserter: inserter,
		logger:   logger.With().Str("component", "BatchBuffer").Logger(),
		items:    make([]*T, 0, config.Capacity),
	}
}

// Append adds item to the buffer and flushes the whole buffer if its length
// has reached Capacity.
func (b *BatchBuffer[T]) Append(ctx context.Context, item *T) FlushOutcome {
	b.items = append(b.items, item)
	if len(b.items) < b.config.Capacity {
		b.logger.Debug().Int("buffer_size", len(b.items)).Int("capacity", b.config.Capacity).Msg("Buffer not full.")
		return NotAttempted
	}
	b.logger.Info().Int("buffer_size", len(b.items)).Msg("Buffer is full, flushing.")
	return b.flushSnapshot(ctx)
}

// ForceFlush writes everything currently buffered regardless of length. An
// empty buffer is a successful no-op.
func (b *BatchBuffer[T]) ForceFlush(ctx context.Context) FlushOutcome {
	if len(b.items) == 0 {
		return Flushed
	}
	b.logger.Info().Int("buffer_size", len(b.items)).Msg("Force-flushing buffer.")
	return b.flushSnapshot(ctx)
}

// Flush performs one bulk write of items. It does not touch the buffer.
func (b *BatchBuffer[T]) Flush(ctx context.Context, items []*T) error {
	if len(items) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, b.config.FlushTimeout)
	defer cancel()
	return b.inserter.InsertBatch(ctx, items)
}

// flushSnapshot writes a copy of the current contents and, on success, removes
// exactly those items. Items appended after the snapshot was taken survive.
func (b *BatchBuffer[T]) flushSnapshot(ctx context.Context) FlushOutcome {
	snapshot := make([]*T, len(b.items))
	copy(snapshot, b.items)

	if err := b.Flush(ctx, snapshot); err != nil {
		b.logger.Error().Err(err).Int("batch_size", len(snapshot)).Msg("Failed to write batch, items remain in buffer.")
		return Failed
	}

	// The snapshot is always a prefix of the live buffer since items are only
	// ever appended at the tail.
	remaining := make([]*T, 0, b.config.Capacity)
	remaining = append(remaining, b.items[len(snapshot):]...)
	b.items = remaining

	b.logger.Info().Int("batch_size", len(snapshot)).Int("buffer_size", len(b.items)).Msg("Batch written, buffer cleared.")
	return Flushed
}

// Len returns the number of buffered items.
func (b *BatchBuffer[T]) Len() int {
	return len(b.items)
}

// Capacity returns the configured flush trigger.
func (b *BatchBuffer[T]) Capacity() int {
	return b.config.Capacity
}

// Items returns a copy of the buffered items in append order.
func (b *BatchBuffer[T]) Items() []*T {
	out := make([]*T, len(b.items))
	copy(out, b.items)
	return out
}

// Close releases the underlying inserter. Buffered items are not written.
func (b *BatchBuffer[T]) Close() error {
	if len(b.items) > 0 {
		b.logger.Warn().Int("buffer_size", len(b.items)).Msg("Closing with unflushed items, they will be lost.")
	}
	return b.inserter.Close()
}
