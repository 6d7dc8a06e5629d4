package audit

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"flowaudit/internal/audit/metrics"
	"flowaudit/pkg/fields"
	"flowaudit/pkg/requestcontext"
)

// Recorder is the producer-facing entry point of the pipeline. Log is
// fire-and-forget: invalid drafts are dropped with a local warning and a
// failing store never surfaces to the caller, so business handlers are never
// blocked or crashed by audit logging.
type Recorder struct {
	buf     *Buffer
	log     *slog.Logger
	metrics *metrics.Metrics
}

// NewRecorder creates a Recorder feeding the given buffer.
func NewRecorder(buf *Buffer, log *slog.Logger, m *metrics.Metrics) *Recorder {
	return &Recorder{
		buf:     buf,
		log:     log.With("component", "audit_recorder"),
		metrics: m,
	}
}

// Log validates, enriches and buffers a draft. The timestamp is stamped at the
// moment of acceptance into the buffer, which may trail the business action
// under batching delay. No I/O happens on this path.
func (r *Recorder) Log(ctx context.Context, draft Draft) {
	if draft.Type == "" || !draft.Severity.Known() {
		r.log.Warn("dropping invalid audit draft",
			"event_type", string(draft.Type),
			"severity", string(draft.Severity),
		)
		r.metrics.IncInvalidDropped()
		return
	}

	regs := draft.Regulations
	if len(regs) == 0 {
		regs = draft.Type.Regulations()
	} else {
		regs = appendBaseline(append([]Regulation(nil), regs...))
	}

	event := Event{
		ID:             uuid.New(),
		Type:           draft.Type,
		Timestamp:      requestcontext.Now(ctx),
		UserID:         firstNonEmpty(draft.UserID, requestcontext.UserID(ctx)),
		SessionID:      firstNonEmpty(draft.SessionID, requestcontext.SessionID(ctx)),
		IPAddress:      firstNonEmpty(draft.IPAddress, requestcontext.ClientIP(ctx)),
		UserAgent:      firstNonEmpty(draft.UserAgent, requestcontext.UserAgent(ctx)),
		RequestID:      firstNonEmpty(draft.RequestID, requestcontext.RequestID(ctx)),
		EntityType:     draft.EntityType,
		EntityID:       draft.EntityID,
		OldValues:      sanitizeFields(draft.OldValues),
		NewValues:      sanitizeFields(draft.NewValues),
		Metadata:       sanitizeFields(draft.Metadata),
		Regulations:    regs,
		Severity:       draft.Severity,
		Success:        draft.Success,
		ErrorMessage:   draft.ErrorMessage,
		OrganizationID: firstNonEmpty(draft.OrganizationID, requestcontext.OrganizationID(ctx)),
	}

	r.buf.Enqueue(event)
	r.metrics.IncEventsRecorded()
}

// LoginSuccess records a successful authentication for userID.
func (r *Recorder) LoginSuccess(ctx context.Context, userID string) {
	r.Log(ctx, Draft{
		Type:     EventLoginSuccess,
		Severity: SeverityLow,
		Success:  true,
		UserID:   userID,
	})
}

// LoginFailure records a failed authentication attempt.
func (r *Recorder) LoginFailure(ctx context.Context, userID, reason string) {
	r.Log(ctx, Draft{
		Type:         EventLoginFailure,
		Severity:     SeverityMedium,
		Success:      false,
		UserID:       userID,
		ErrorMessage: reason,
	})
}

// EntityChange records a create/update/delete of a business object with its
// before/after snapshots.
func (r *Recorder) EntityChange(ctx context.Context, eventType EventType, entityType, entityID string, oldValues, newValues fields.Map) {
	r.Log(ctx, Draft{
		Type:       eventType,
		Severity:   SeverityMedium,
		Success:    true,
		EntityType: entityType,
		EntityID:   entityID,
		OldValues:  oldValues,
		NewValues:  newValues,
	})
}

// Payment records a payment lifecycle event. Failed payments are recorded at
// high severity with the processor's message.
func (r *Recorder) Payment(ctx context.Context, eventType EventType, paymentID string, meta fields.Map, success bool, errMsg string) {
	severity := SeverityMedium
	if !success {
		severity = SeverityHigh
	}
	r.Log(ctx, Draft{
		Type:         eventType,
		Severity:     severity,
		Success:      success,
		EntityType:   "payment",
		EntityID:     paymentID,
		Metadata:     meta,
		ErrorMessage: errMsg,
	})
}

// DataSubjectRequest records a GDPR/CCPA data subject action at high severity;
// these must reach the store promptly and weigh heavily in reports.
func (r *Recorder) DataSubjectRequest(ctx context.Context, eventType EventType, subjectUserID string, meta fields.Map) {
	r.Log(ctx, Draft{
		Type:     eventType,
		Severity: SeverityHigh,
		Success:  true,
		UserID:   subjectUserID,
		Metadata: meta,
	})
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}
