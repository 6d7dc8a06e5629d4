package audit_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flowaudit/internal/audit"
	"flowaudit/internal/audit/store/memory"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
}

func makeEvent(n int, severity audit.Severity) audit.Event {
	return audit.Event{
		ID:        uuid.New(),
		Type:      audit.EventCustomerUpdated,
		Timestamp: time.Now(),
		EntityID:  fmt.Sprintf("entity-%d", n),
		Severity:  severity,
		Success:   true,
	}
}

// trackingStore wraps the memory store, counting batch writes and optionally
// failing the next N of them.
type trackingStore struct {
	*memory.Store
	mu       sync.Mutex
	inserts  int
	failures int
}

func newTrackingStore() *trackingStore {
	return &trackingStore{Store: memory.New()}
}

func (s *trackingStore) FailNext(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = n
}

func (s *trackingStore) Inserts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inserts
}

func (s *trackingStore) InsertBatch(ctx context.Context, events []audit.Event) error {
	s.mu.Lock()
	if s.failures > 0 {
		s.failures--
		s.mu.Unlock()
		return errors.New("store unavailable")
	}
	s.inserts++
	s.mu.Unlock()
	return s.Store.InsertBatch(ctx, events)
}

func TestBuffer_CriticalSeverityFlushesImmediately(t *testing.T) {
	store := newTrackingStore()
	// Interval long enough that only the critical fast path can flush within
	// the assertion window.
	buf := audit.NewBuffer(store, testLogger(), audit.WithFlushInterval(time.Minute))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = buf.Run(ctx) }()

	buf.Enqueue(makeEvent(1, audit.SeverityCritical))

	require.Eventually(t, func() bool {
		return store.Len() == 1
	}, 2*time.Second, 10*time.Millisecond, "critical event should flush before the periodic tick")
}

func TestBuffer_BatchSizeTriggersSingleFlushInOrder(t *testing.T) {
	const batchSize = 5

	store := newTrackingStore()
	buf := audit.NewBuffer(store, testLogger(),
		audit.WithBatchSize(batchSize),
		audit.WithFlushInterval(time.Minute),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = buf.Run(ctx) }()

	for i := 0; i < batchSize; i++ {
		buf.Enqueue(makeEvent(i, audit.SeverityLow))
	}

	require.Eventually(t, func() bool {
		return store.Len() == batchSize
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, 1, store.Inserts(), "threshold should produce exactly one flush")

	stored := store.All()
	for i, e := range stored {
		assert.Equal(t, fmt.Sprintf("entity-%d", i), e.EntityID, "enqueue order must be preserved")
	}
}

func TestBuffer_PeriodicTimerFlushes(t *testing.T) {
	store := newTrackingStore()
	buf := audit.NewBuffer(store, testLogger(), audit.WithFlushInterval(20*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = buf.Run(ctx) }()

	buf.Enqueue(makeEvent(1, audit.SeverityLow))

	require.Eventually(t, func() bool {
		return store.Len() == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestBuffer_FailedFlushRequeuesWithoutLossOrDuplication(t *testing.T) {
	store := newTrackingStore()
	buf := audit.NewBuffer(store, testLogger(), audit.WithFlushInterval(time.Minute))

	buf.Enqueue(makeEvent(0, audit.SeverityLow))
	buf.Enqueue(makeEvent(1, audit.SeverityLow))

	store.FailNext(1)
	buf.Flush(context.Background())

	assert.Equal(t, 0, store.Len(), "failed batch must not be partially written")
	assert.Equal(t, 2, buf.Len(), "failed batch must be requeued in full")

	// New events enqueued after the failure flush behind the requeued batch.
	buf.Enqueue(makeEvent(2, audit.SeverityLow))

	buf.Flush(context.Background())

	require.Equal(t, 3, store.Len())
	assert.Equal(t, 0, buf.Len())
	stored := store.All()
	for i, e := range stored {
		assert.Equal(t, fmt.Sprintf("entity-%d", i), e.EntityID, "retried events keep original relative order")
	}
}

func TestBuffer_EmptyFlushIsNoOp(t *testing.T) {
	store := newTrackingStore()
	buf := audit.NewBuffer(store, testLogger())

	buf.Flush(context.Background())

	assert.Equal(t, 0, store.Inserts())
}

func TestBuffer_OverflowDropsOldest(t *testing.T) {
	store := newTrackingStore()
	buf := audit.NewBuffer(store, testLogger(),
		audit.WithCapacity(3),
		audit.WithBatchSize(100),
		audit.WithFlushInterval(time.Minute),
	)

	for i := 0; i < 5; i++ {
		buf.Enqueue(makeEvent(i, audit.SeverityLow))
	}

	assert.Equal(t, 3, buf.Len())
	assert.Equal(t, int64(2), buf.Dropped())

	buf.Flush(context.Background())

	stored := store.All()
	require.Len(t, stored, 3)
	assert.Equal(t, "entity-2", stored[0].EntityID, "oldest events are the ones dropped")
}

func TestBuffer_ShutdownPerformsFinalFlush(t *testing.T) {
	store := newTrackingStore()
	buf := audit.NewBuffer(store, testLogger(), audit.WithFlushInterval(time.Minute))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- buf.Run(ctx) }()

	buf.Enqueue(makeEvent(1, audit.SeverityLow))
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("buffer did not shut down")
	}

	assert.Equal(t, 1, store.Len(), "buffered events must be flushed on shutdown")
}

// failingSink always errors; flushes must still succeed.
type failingSink struct{ calls int }

func (s *failingSink) Publish(context.Context, []audit.Event) error {
	s.calls++
	return errors.New("sink down")
}

func TestBuffer_SinkFailureDoesNotAffectStorePath(t *testing.T) {
	store := newTrackingStore()
	sink := &failingSink{}
	buf := audit.NewBuffer(store, testLogger(), audit.WithSinks(sink))

	buf.Enqueue(makeEvent(1, audit.SeverityLow))
	buf.Flush(context.Background())

	assert.Equal(t, 1, store.Len())
	assert.Equal(t, 1, sink.calls)
	assert.Equal(t, 0, buf.Len(), "sink failures must not requeue the batch")
}
