// Package report derives compliance reports from the audit log. Reports are
// computed on demand and never persisted.
package report

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"flowaudit/internal/audit"
)

// Score penalty weights. Critical events cost up to 50 points, failures up to
// 30, each scaled by their share of the total.
const (
	criticalPenaltyWeight = 50.0
	failurePenaltyWeight  = 30.0
	failureRateThreshold  = 0.10
)

// Summary aggregates the events matched by a report.
type Summary struct {
	TotalEvents    int                     `json:"totalEvents"`
	EventsByType   map[audit.EventType]int `json:"eventsByType"`
	CriticalEvents int                     `json:"criticalEvents"`
	FailedEvents   int                     `json:"failedEvents"`
}

// Report is a derived view over the audit log for one regulation and range.
type Report struct {
	Regulation      audit.Regulation `json:"regulation"`
	From            time.Time        `json:"from"`
	To              time.Time        `json:"to"`
	GeneratedAt     time.Time        `json:"generatedAt"`
	Summary         Summary          `json:"summary"`
	ComplianceScore int              `json:"complianceScore"`
	Recommendations []string         `json:"recommendations"`
	Events          []audit.Event    `json:"events"`
}

// Generator computes compliance reports.
type Generator struct {
	store  audit.Store
	tracer trace.Tracer
}

// NewGenerator creates a report generator reading from store.
func NewGenerator(store audit.Store) *Generator {
	return &Generator{
		store:  store,
		tracer: otel.Tracer("flowaudit/report"),
	}
}

// Generate builds the report for one regulation over [from, to]. Store errors
// propagate: reports are on-demand operations with an administrator waiting on
// the result.
func (g *Generator) Generate(ctx context.Context, regulation audit.Regulation, from, to time.Time) (*Report, error) {
	ctx, span := g.tracer.Start(ctx, "audit.compliance_report")
	defer span.End()

	events, err := g.store.Search(ctx, audit.Filter{
		Regulation: regulation,
		From:       from,
		To:         to,
	})
	if err != nil {
		return nil, fmt.Errorf("fetch events for %s report: %w", regulation, err)
	}

	summary := Summary{
		TotalEvents:  len(events),
		EventsByType: make(map[audit.EventType]int),
	}
	dataProcessing := 0
	for _, e := range events {
		summary.EventsByType[e.Type]++
		if e.Severity == audit.SeverityCritical {
			summary.CriticalEvents++
		}
		if !e.Success {
			summary.FailedEvents++
		}
		if e.Type.DataProcessing() {
			dataProcessing++
		}
	}

	return &Report{
		Regulation:      regulation,
		From:            from,
		To:              to,
		GeneratedAt:     time.Now(),
		Summary:         summary,
		ComplianceScore: score(summary),
		Recommendations: recommendations(regulation, summary, dataProcessing),
		Events:          events,
	}, nil
}

// score computes max(0, 100 - criticalPenalty - failurePenalty), rounded to
// the nearest integer. An empty range is vacuously compliant.
func score(s Summary) int {
	if s.TotalEvents == 0 {
		return 100
	}
	total := float64(s.TotalEvents)
	criticalPenalty := float64(s.CriticalEvents) / total * criticalPenaltyWeight
	failurePenalty := float64(s.FailedEvents) / total * failurePenaltyWeight
	value := 100 - criticalPenalty - failurePenalty
	if value < 0 {
		return 0
	}
	return int(math.Round(value))
}

func recommendations(regulation audit.Regulation, s Summary, dataProcessing int) []string {
	var recs []string
	if s.CriticalEvents > 0 {
		recs = append(recs, fmt.Sprintf("address %d critical events immediately", s.CriticalEvents))
	}
	if s.TotalEvents > 0 && float64(s.FailedEvents)/float64(s.TotalEvents) > failureRateThreshold {
		recs = append(recs, "failure rate exceeds 10% of events in range; investigate system stability")
	}
	if regulation == audit.RegulationGDPR && dataProcessing == 0 {
		recs = append(recs, "no data-processing events recorded in range; verify data-access logging is enabled")
	}
	return recs
}
