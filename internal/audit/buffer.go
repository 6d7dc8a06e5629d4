package audit

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"flowaudit/internal/audit/metrics"
)

const (
	// DefaultBatchSize is the enqueue count that forces a flush.
	DefaultBatchSize = 100
	// DefaultFlushInterval is the periodic flush cadence.
	DefaultFlushInterval = 5 * time.Second
	// DefaultCapacity bounds the buffer, including requeued batches. When the
	// bound is hit the oldest events are dropped and counted, so a sustained
	// store outage degrades to bounded loss instead of unbounded growth.
	DefaultCapacity = 10000
	// shutdownFlushTimeout bounds the final flush attempt on Close.
	shutdownFlushTimeout = 10 * time.Second
)

// Buffer accumulates events in memory and writes them to the store in batches.
// A flush is triggered by the periodic ticker, by the buffer reaching the batch
// size, or immediately by a critical-severity event. Flushes are serialized:
// only one batch write is in flight at a time, which keeps cross-batch order
// monotonic with enqueue order.
type Buffer struct {
	store   Store
	sinks   []Sink
	log     *slog.Logger
	metrics *metrics.Metrics
	tracer  trace.Tracer

	batchSize int
	capacity  int
	interval  time.Duration

	mu      sync.Mutex
	pending []Event
	dropped int64

	// flushMu serializes flush execution. The pending slice is swapped out
	// under mu before the batch write starts, so enqueues arriving during the
	// write open a fresh batch instead of racing on the one being written.
	flushMu sync.Mutex

	kick chan struct{}
}

// BufferOption configures a Buffer.
type BufferOption func(*Buffer)

// WithBatchSize overrides the flush threshold.
func WithBatchSize(n int) BufferOption {
	return func(b *Buffer) {
		if n > 0 {
			b.batchSize = n
		}
	}
}

// WithFlushInterval overrides the periodic flush cadence.
func WithFlushInterval(d time.Duration) BufferOption {
	return func(b *Buffer) {
		if d > 0 {
			b.interval = d
		}
	}
}

// WithCapacity overrides the buffer bound.
func WithCapacity(n int) BufferOption {
	return func(b *Buffer) {
		if n > 0 {
			b.capacity = n
		}
	}
}

// WithSinks attaches best-effort sinks notified after each successful flush.
func WithSinks(sinks ...Sink) BufferOption {
	return func(b *Buffer) {
		b.sinks = append(b.sinks, sinks...)
	}
}

// WithMetrics attaches the pipeline metrics collector.
func WithMetrics(m *metrics.Metrics) BufferOption {
	return func(b *Buffer) {
		b.metrics = m
	}
}

// NewBuffer creates a batching buffer writing to store.
func NewBuffer(store Store, log *slog.Logger, opts ...BufferOption) *Buffer {
	b := &Buffer{
		store:     store,
		log:       log.With("component", "audit_buffer"),
		tracer:    otel.Tracer("flowaudit/audit"),
		batchSize: DefaultBatchSize,
		capacity:  DefaultCapacity,
		interval:  DefaultFlushInterval,
		kick:      make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Enqueue appends an event to the buffer. Critical-severity events and a full
// batch trigger an immediate flush via the background loop; the call itself
// never performs I/O.
func (b *Buffer) Enqueue(event Event) {
	b.mu.Lock()
	if len(b.pending) >= b.capacity {
		// Drop-oldest overflow policy.
		b.pending = b.pending[1:]
		b.dropped++
		b.metrics.AddOverflowDropped(1)
	}
	b.pending = append(b.pending, event)
	length := len(b.pending)
	b.mu.Unlock()

	b.metrics.SetBufferLength(length)

	if event.Severity == SeverityCritical || length >= b.batchSize {
		b.kickFlush()
	}
}

// kickFlush signals the run loop without blocking; a pending signal coalesces
// with new ones.
func (b *Buffer) kickFlush() {
	select {
	case b.kick <- struct{}{}:
	default:
	}
}

// Run drives the periodic flush loop until ctx is cancelled, then performs one
// final flush so a clean shutdown loses nothing that was already buffered.
func (b *Buffer) Run(ctx context.Context) error {
	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), shutdownFlushTimeout)
			b.Flush(flushCtx)
			cancel()
			return ctx.Err()
		case <-ticker.C:
			b.Flush(ctx)
		case <-b.kick:
			b.Flush(ctx)
		}
	}
}

// Flush writes the currently buffered events to the store as one batch. It is
// a no-op when the buffer is empty. On failure the batch is requeued at the
// front of the buffer, preserving relative order, to be retried on the next
// trigger.
func (b *Buffer) Flush(ctx context.Context) {
	b.flushMu.Lock()
	defer b.flushMu.Unlock()

	b.mu.Lock()
	batch := b.pending
	b.pending = nil
	b.mu.Unlock()

	if len(batch) == 0 {
		return
	}

	ctx, span := b.tracer.Start(ctx, "audit.flush",
		trace.WithAttributes(attribute.Int("audit.batch_size", len(batch))))
	defer span.End()

	if err := b.store.InsertBatch(ctx, batch); err != nil {
		b.log.Error("batch flush failed, requeueing",
			"events", len(batch),
			"error", err,
		)
		b.metrics.IncFlushFailures()
		b.metrics.AddEventsRequeued(len(batch))
		b.requeue(batch)
		return
	}

	b.metrics.IncFlushes()
	b.mu.Lock()
	length := len(b.pending)
	b.mu.Unlock()
	b.metrics.SetBufferLength(length)

	for _, sink := range b.sinks {
		if err := sink.Publish(ctx, batch); err != nil {
			b.log.Warn("sink publish failed", "error", err)
			b.metrics.IncSinkFailures()
		}
	}
}

// requeue prepends a failed batch so its events are retried before anything
// enqueued since, still within the capacity bound.
func (b *Buffer) requeue(batch []Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.pending = append(batch, b.pending...)
	if over := len(b.pending) - b.capacity; over > 0 {
		b.pending = b.pending[over:]
		b.dropped += int64(over)
		b.metrics.AddOverflowDropped(over)
	}
	b.metrics.SetBufferLength(len(b.pending))
}

// Len returns the current number of buffered events.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

// Dropped returns the total number of events lost to the overflow policy.
func (b *Buffer) Dropped() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}
