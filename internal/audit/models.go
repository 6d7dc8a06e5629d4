package audit

import (
	"time"

	"github.com/google/uuid"

	"flowaudit/pkg/fields"
)

// EventType tags one kind of auditable occurrence in the portal.
type EventType string

const (
	// Auth events
	EventLoginSuccess   EventType = "auth.login_success"
	EventLoginFailure   EventType = "auth.login_failure"
	EventLogout         EventType = "auth.logout"
	EventSessionExpired EventType = "auth.session_expired"

	// Customer events
	EventCustomerCreated EventType = "customer.created"
	EventCustomerUpdated EventType = "customer.updated"
	EventCustomerDeleted EventType = "customer.deleted"
	EventCustomerViewed  EventType = "customer.viewed"

	// Payment events
	EventPaymentInitiated EventType = "payment.initiated"
	EventPaymentCompleted EventType = "payment.completed"
	EventPaymentFailed    EventType = "payment.failed"
	EventInvoiceSent      EventType = "invoice.sent"

	// Test report events
	EventReportSubmitted EventType = "report.submitted"
	EventReportApproved  EventType = "report.approved"

	// Admin events
	EventPermissionChanged EventType = "admin.permission_changed"
	EventSettingsChanged   EventType = "admin.settings_changed"

	// GDPR / data subject rights events
	EventDataRequest  EventType = "gdpr.data_request"
	EventDataDeletion EventType = "gdpr.data_deletion"
	EventConsentGiven EventType = "gdpr.consent_given"
	EventDataExport   EventType = "gdpr.data_export"

	// Housekeeping events emitted by the pipeline itself
	EventRetentionSweep EventType = "retention.sweep"
)

// Regulation tags the compliance regime an event is relevant to.
type Regulation string

const (
	RegulationGDPR   Regulation = "GDPR"
	RegulationCCPA   Regulation = "CCPA"
	RegulationPCIDSS Regulation = "PCI_DSS"
	// RegulationSOC2 is the baseline regime. Every event carries it so the
	// regulation set is never empty.
	RegulationSOC2 Regulation = "SOC2"
)

// dataProtection is the regime set for events touching personal data.
var dataProtection = []Regulation{RegulationGDPR, RegulationCCPA}

// eventRegulations maps each event type to the regimes it is relevant to,
// beyond the baseline. Built at compile time so regulation inference never
// depends on string matching against the event name.
var eventRegulations = map[EventType][]Regulation{
	EventLoginSuccess:   {RegulationGDPR},
	EventLoginFailure:   {RegulationGDPR},
	EventLogout:         nil,
	EventSessionExpired: nil,

	EventCustomerCreated: dataProtection,
	EventCustomerUpdated: dataProtection,
	EventCustomerDeleted: dataProtection,
	EventCustomerViewed:  dataProtection,

	EventPaymentInitiated: {RegulationPCIDSS},
	EventPaymentCompleted: {RegulationPCIDSS},
	EventPaymentFailed:    {RegulationPCIDSS},
	EventInvoiceSent:      {RegulationPCIDSS},

	EventReportSubmitted: nil,
	EventReportApproved:  nil,

	EventPermissionChanged: {RegulationGDPR},
	EventSettingsChanged:   nil,

	EventDataRequest:  dataProtection,
	EventDataDeletion: dataProtection,
	EventConsentGiven: dataProtection,
	EventDataExport:   dataProtection,

	EventRetentionSweep: dataProtection,
}

// dataProcessingTypes marks event types that evidence personal-data processing.
// Compliance reports for GDPR flag ranges where none of these occur.
var dataProcessingTypes = map[EventType]bool{
	EventCustomerCreated: true,
	EventCustomerUpdated: true,
	EventCustomerDeleted: true,
	EventCustomerViewed:  true,
	EventDataRequest:     true,
	EventDataDeletion:    true,
	EventConsentGiven:    true,
	EventDataExport:      true,
}

// Regulations returns the regimes this event type is relevant to. The baseline
// regime is always included; unknown types get the baseline only.
func (t EventType) Regulations() []Regulation {
	extra := eventRegulations[t]
	out := make([]Regulation, 0, len(extra)+1)
	out = append(out, extra...)
	return appendBaseline(out)
}

// DataProcessing reports whether this event type evidences personal-data
// processing for data-protection reporting purposes.
func (t EventType) DataProcessing() bool {
	return dataProcessingTypes[t]
}

// appendBaseline ensures the baseline regime is present exactly once.
func appendBaseline(regs []Regulation) []Regulation {
	for _, r := range regs {
		if r == RegulationSOC2 {
			return regs
		}
	}
	return append(regs, RegulationSOC2)
}

// Severity ranks how urgently an event must reach durable storage and how it
// weighs in compliance scoring.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

var severityRank = map[Severity]int{
	SeverityLow:      0,
	SeverityMedium:   1,
	SeverityHigh:     2,
	SeverityCritical: 3,
}

// Known reports whether s is one of the defined severity levels.
func (s Severity) Known() bool {
	_, ok := severityRank[s]
	return ok
}

// AtLeast reports whether s ranks at or above min.
func (s Severity) AtLeast(min Severity) bool {
	return severityRank[s] >= severityRank[min]
}

// Event is one immutable record of something that happened. Events are
// constructed by the Recorder and never mutated afterwards; stores and sinks
// treat them as append-only rows.
type Event struct {
	ID             uuid.UUID    `json:"id"`
	Type           EventType    `json:"eventType"`
	Timestamp      time.Time    `json:"timestamp"`
	UserID         string       `json:"userId,omitempty"`
	SessionID      string       `json:"sessionId,omitempty"`
	IPAddress      string       `json:"ipAddress,omitempty"`
	UserAgent      string       `json:"userAgent,omitempty"`
	RequestID      string       `json:"requestId,omitempty"`
	EntityType     string       `json:"entityType,omitempty"`
	EntityID       string       `json:"entityId,omitempty"`
	OldValues      fields.Map   `json:"oldValues,omitempty"`
	NewValues      fields.Map   `json:"newValues,omitempty"`
	Metadata       fields.Map   `json:"metadata,omitempty"`
	Regulations    []Regulation `json:"regulations"`
	Severity       Severity     `json:"severity"`
	Success        bool         `json:"success"`
	ErrorMessage   string       `json:"errorMessage,omitempty"`
	OrganizationID string       `json:"organizationId,omitempty"`
}

// Draft is a partial event supplied by a producer. The Recorder validates it,
// stamps identity and time, infers regulations, sanitizes the payload maps and
// turns it into an Event. Actor fields left empty are filled from the request
// context when available.
type Draft struct {
	Type           EventType
	Severity       Severity
	Success        bool
	UserID         string
	SessionID      string
	IPAddress      string
	UserAgent      string
	RequestID      string
	EntityType     string
	EntityID       string
	OldValues      fields.Map
	NewValues      fields.Map
	Metadata       fields.Map
	Regulations    []Regulation
	ErrorMessage   string
	OrganizationID string
}
