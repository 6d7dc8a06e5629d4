// Package export serializes filtered audit event sets to JSON, CSV or XML.
// Exporting the log is itself an auditable act: every successful export is
// recorded back through the pipeline as a data-export event.
package export

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"strings"
	"time"

	"flowaudit/internal/audit"
	"flowaudit/pkg/fields"
)

// Format selects the export serialization.
type Format string

const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
	FormatXML  Format = "xml"
)

// ParseFormat validates a format string from a request.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(s)) {
	case FormatJSON:
		return FormatJSON, nil
	case FormatCSV:
		return FormatCSV, nil
	case FormatXML:
		return FormatXML, nil
	default:
		return "", fmt.Errorf("unsupported export format %q", s)
	}
}

// ContentType returns the HTTP content type for the format.
func (f Format) ContentType() string {
	switch f {
	case FormatCSV:
		return "text/csv"
	case FormatXML:
		return "application/xml"
	default:
		return "application/json"
	}
}

// csvHeader is the fixed CSV header row. XML events carry the same columns
// plus the comma-joined regulations.
var csvHeader = []string{"timestamp", "eventType", "userId", "entityType", "entityId", "severity", "success"}

// Exporter serializes event sets read from the store.
type Exporter struct {
	store    audit.Store
	recorder *audit.Recorder
}

// New creates an Exporter. The recorder audits each export.
func New(store audit.Store, recorder *audit.Recorder) *Exporter {
	return &Exporter{store: store, recorder: recorder}
}

// Export fetches events matching the filter and serializes them. Store errors
// propagate to the caller; this is an on-demand administrative operation.
func (e *Exporter) Export(ctx context.Context, f audit.Filter, format Format) ([]byte, error) {
	events, err := e.store.Search(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("fetch events for export: %w", err)
	}

	var out []byte
	switch format {
	case FormatJSON:
		out, err = json.MarshalIndent(events, "", "  ")
	case FormatCSV:
		out = marshalCSV(events)
	case FormatXML:
		out, err = marshalXML(events)
	default:
		return nil, fmt.Errorf("unsupported export format %q", format)
	}
	if err != nil {
		return nil, fmt.Errorf("serialize export: %w", err)
	}

	e.recorder.Log(ctx, audit.Draft{
		Type:     audit.EventDataExport,
		Severity: audit.SeverityMedium,
		Success:  true,
		Metadata: fields.Map{
			"format":      fields.String(string(format)),
			"event_count": fields.Number(float64(len(events))),
		},
	})

	return out, nil
}

// marshalCSV renders the fixed header plus one quoted row per event. Every
// value is quoted, unlike encoding/csv which quotes only when required.
func marshalCSV(events []audit.Event) []byte {
	var sb strings.Builder
	sb.WriteString(strings.Join(csvHeader, ","))
	sb.WriteByte('\n')
	for _, e := range events {
		row := []string{
			e.Timestamp.UTC().Format(time.RFC3339),
			string(e.Type),
			e.UserID,
			e.EntityType,
			e.EntityID,
			string(e.Severity),
			boolString(e.Success),
		}
		for i, v := range row {
			if i > 0 {
				sb.WriteByte(',')
			}
			sb.WriteByte('"')
			sb.WriteString(strings.ReplaceAll(v, `"`, `""`))
			sb.WriteByte('"')
		}
		sb.WriteByte('\n')
	}
	return []byte(sb.String())
}

type xmlEvent struct {
	Timestamp   string `xml:"timestamp"`
	EventType   string `xml:"eventType"`
	UserID      string `xml:"userId"`
	EntityType  string `xml:"entityType"`
	EntityID    string `xml:"entityId"`
	Severity    string `xml:"severity"`
	Success     bool   `xml:"success"`
	Regulations string `xml:"regulations"`
}

type xmlLog struct {
	XMLName    xml.Name   `xml:"auditLog"`
	ExportDate string     `xml:"exportDate"`
	EventCount int        `xml:"eventCount"`
	Events     []xmlEvent `xml:"event"`
}

func marshalXML(events []audit.Event) ([]byte, error) {
	doc := xmlLog{
		ExportDate: time.Now().UTC().Format(time.RFC3339),
		EventCount: len(events),
		Events:     make([]xmlEvent, 0, len(events)),
	}
	for _, e := range events {
		regs := make([]string, len(e.Regulations))
		for i, r := range e.Regulations {
			regs[i] = string(r)
		}
		doc.Events = append(doc.Events, xmlEvent{
			Timestamp:   e.Timestamp.UTC().Format(time.RFC3339),
			EventType:   string(e.Type),
			UserID:      e.UserID,
			EntityType:  e.EntityType,
			EntityID:    e.EntityID,
			Severity:    string(e.Severity),
			Success:     e.Success,
			Regulations: strings.Join(regs, ","),
		})
	}
	body, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, err
	}
	return append([]byte(xml.Header), body...), nil
}

func boolString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
