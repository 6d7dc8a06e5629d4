package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for the audit pipeline.
type Metrics struct {
	EventsRecorded  prometheus.Counter
	InvalidDropped  prometheus.Counter
	OverflowDropped prometheus.Counter
	Flushes         prometheus.Counter
	FlushFailures   prometheus.Counter
	EventsRequeued  prometheus.Counter
	SinkFailures    prometheus.Counter
	SweptEvents     prometheus.Counter
	BufferLength    prometheus.Gauge
}

// New creates a Metrics instance with all pipeline metrics registered.
func New() *Metrics {
	return &Metrics{
		EventsRecorded: promauto.NewCounter(prometheus.CounterOpts{
			Name: "flowaudit_events_recorded_total",
			Help: "Total number of audit events accepted into the buffer",
		}),
		InvalidDropped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "flowaudit_events_invalid_total",
			Help: "Total number of audit drafts dropped by validation",
		}),
		OverflowDropped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "flowaudit_events_overflow_dropped_total",
			Help: "Total number of audit events dropped because the buffer was full",
		}),
		Flushes: promauto.NewCounter(prometheus.CounterOpts{
			Name: "flowaudit_flushes_total",
			Help: "Total number of successful batch flushes to the store",
		}),
		FlushFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "flowaudit_flush_failures_total",
			Help: "Total number of failed batch flushes",
		}),
		EventsRequeued: promauto.NewCounter(prometheus.CounterOpts{
			Name: "flowaudit_events_requeued_total",
			Help: "Total number of audit events requeued after a failed flush",
		}),
		SinkFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "flowaudit_sink_failures_total",
			Help: "Total number of best-effort sink publish failures",
		}),
		SweptEvents: promauto.NewCounter(prometheus.CounterOpts{
			Name: "flowaudit_swept_events_total",
			Help: "Total number of audit events deleted by the retention sweeper",
		}),
		BufferLength: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "flowaudit_buffer_length",
			Help: "Current number of audit events held in the in-memory buffer",
		}),
	}
}

// IncEventsRecorded increments the recorded counter.
func (m *Metrics) IncEventsRecorded() {
	if m != nil {
		m.EventsRecorded.Inc()
	}
}

// IncInvalidDropped increments the invalid-draft counter.
func (m *Metrics) IncInvalidDropped() {
	if m != nil {
		m.InvalidDropped.Inc()
	}
}

// AddOverflowDropped adds n dropped events to the overflow counter.
func (m *Metrics) AddOverflowDropped(n int) {
	if m != nil {
		m.OverflowDropped.Add(float64(n))
	}
}

// IncFlushes increments the successful-flush counter.
func (m *Metrics) IncFlushes() {
	if m != nil {
		m.Flushes.Inc()
	}
}

// IncFlushFailures increments the failed-flush counter.
func (m *Metrics) IncFlushFailures() {
	if m != nil {
		m.FlushFailures.Inc()
	}
}

// AddEventsRequeued adds n events to the requeued counter.
func (m *Metrics) AddEventsRequeued(n int) {
	if m != nil {
		m.EventsRequeued.Add(float64(n))
	}
}

// IncSinkFailures increments the sink-failure counter.
func (m *Metrics) IncSinkFailures() {
	if m != nil {
		m.SinkFailures.Inc()
	}
}

// AddSweptEvents adds n deleted rows to the sweep counter.
func (m *Metrics) AddSweptEvents(n int64) {
	if m != nil {
		m.SweptEvents.Add(float64(n))
	}
}

// SetBufferLength sets the buffer length gauge.
func (m *Metrics) SetBufferLength(n int) {
	if m != nil {
		m.BufferLength.Set(float64(n))
	}
}
