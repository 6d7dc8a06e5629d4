// Package retention enforces per-entity-type data-minimization policy over the
// audit log. Policies are static configuration loaded once at startup; the
// sweeper deletes expired rows for auto-delete policies on a fixed interval.
package retention

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"flowaudit/internal/audit"
	"flowaudit/internal/audit/metrics"
	"flowaudit/pkg/fields"
)

// DefaultSweepInterval is how often a sweep cycle runs.
const DefaultSweepInterval = 24 * time.Hour

// Policy governs how long one category of audit rows may be kept.
// Policies without AutoDelete are never swept automatically; removing their
// rows takes an explicit administrative action outside this subsystem.
type Policy struct {
	EntityType       string
	RetentionDays    int
	ArchiveAfterDays int
	Regulations      []audit.Regulation
	AutoDelete       bool
}

// DefaultPolicies covers the portal's entity types. Financial and test-report
// rows are retained for their statutory periods and only removed manually;
// session and operational rows age out automatically.
func DefaultPolicies() []Policy {
	return []Policy{
		{EntityType: "customer", RetentionDays: 2555, ArchiveAfterDays: 1095, Regulations: []audit.Regulation{audit.RegulationGDPR, audit.RegulationCCPA}, AutoDelete: false},
		{EntityType: "payment", RetentionDays: 2555, Regulations: []audit.Regulation{audit.RegulationPCIDSS}, AutoDelete: false},
		{EntityType: "report", RetentionDays: 3650, AutoDelete: false},
		{EntityType: "session", RetentionDays: 365, AutoDelete: true},
		{EntityType: "lead", RetentionDays: 730, Regulations: []audit.Regulation{audit.RegulationGDPR, audit.RegulationCCPA}, AutoDelete: true},
	}
}

// Sweeper deletes expired audit rows per policy on a fixed interval.
type Sweeper struct {
	store    audit.Store
	recorder *audit.Recorder
	policies map[string]Policy
	interval time.Duration
	log      *slog.Logger
	metrics  *metrics.Metrics
	tracer   trace.Tracer
}

// Option configures a Sweeper.
type Option func(*Sweeper)

// WithInterval overrides the sweep cadence.
func WithInterval(d time.Duration) Option {
	return func(s *Sweeper) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithMetrics attaches the pipeline metrics collector.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Sweeper) {
		s.metrics = m
	}
}

// New creates a sweeper over the given policies, keyed by entity type.
// The recorder is used to audit the sweeper's own deletions.
func New(store audit.Store, recorder *audit.Recorder, policies []Policy, log *slog.Logger, opts ...Option) *Sweeper {
	byEntity := make(map[string]Policy, len(policies))
	for _, p := range policies {
		byEntity[p.EntityType] = p
	}
	s := &Sweeper{
		store:    store,
		recorder: recorder,
		policies: byEntity,
		interval: DefaultSweepInterval,
		log:      log.With("component", "retention_sweeper"),
		tracer:   otel.Tracer("flowaudit/retention"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Policy returns the policy for an entity type, if one is configured.
func (s *Sweeper) Policy(entityType string) (Policy, bool) {
	p, ok := s.policies[entityType]
	return p, ok
}

// Run sweeps on the configured interval until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.SweepOnce(ctx, time.Now())
		}
	}
}

// SweepOnce runs one sweep cycle against the given reference time. A failure
// for one policy is logged and does not stop the remaining policies.
func (s *Sweeper) SweepOnce(ctx context.Context, now time.Time) {
	ctx, span := s.tracer.Start(ctx, "audit.retention_sweep")
	defer span.End()

	for _, policy := range s.policies {
		if policy.ArchiveAfterDays > 0 {
			// Archival itself is handled out of band; the sweep only surfaces
			// the window for operators.
			s.log.Debug("archive window open",
				"entity_type", policy.EntityType,
				"archive_cutoff", now.AddDate(0, 0, -policy.ArchiveAfterDays),
			)
		}
		if !policy.AutoDelete {
			continue
		}

		cutoff := now.AddDate(0, 0, -policy.RetentionDays)
		deleted, err := s.store.DeleteBefore(ctx, policy.EntityType, cutoff)
		if err != nil {
			s.log.Error("sweep failed for policy",
				"entity_type", policy.EntityType,
				"cutoff", cutoff,
				"error", err,
			)
			continue
		}
		if deleted == 0 {
			continue
		}

		s.log.Info("retention sweep deleted expired events",
			"entity_type", policy.EntityType,
			"cutoff", cutoff,
			"deleted", deleted,
		)
		s.metrics.AddSweptEvents(deleted)

		// The audit log documents its own housekeeping.
		s.recorder.Log(ctx, audit.Draft{
			Type:       audit.EventRetentionSweep,
			Severity:   audit.SeverityLow,
			Success:    true,
			EntityType: policy.EntityType,
			Metadata: fields.Map{
				"cutoff":  fields.String(cutoff.Format(time.RFC3339)),
				"deleted": fields.Number(float64(deleted)),
			},
		})
	}
}
