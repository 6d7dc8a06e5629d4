package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"flowaudit/internal/audit"
	"flowaudit/pkg/fields"
)

// Store implements audit.Store on PostgreSQL. Batches go in as one multi-row
// INSERT so a flush costs a single round trip regardless of batch size.
type Store struct {
	db *sql.DB
}

// New creates a PostgreSQL audit store.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// eventColumns is the column list shared by insert and select statements.
const eventColumns = `id, event_type, timestamp, user_id, session_id, ip_address,
	user_agent, request_id, entity_type, entity_id, old_values, new_values,
	metadata, regulations, severity, success, error_message, organization_id`

// Migrate creates the audit_events table if it does not exist. Dev and test
// convenience; production schemas are managed by the portal's migration job.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS audit_events (
			id UUID PRIMARY KEY,
			event_type TEXT NOT NULL,
			timestamp TIMESTAMPTZ NOT NULL,
			user_id TEXT NOT NULL DEFAULT '',
			session_id TEXT NOT NULL DEFAULT '',
			ip_address TEXT NOT NULL DEFAULT '',
			user_agent TEXT NOT NULL DEFAULT '',
			request_id TEXT NOT NULL DEFAULT '',
			entity_type TEXT NOT NULL DEFAULT '',
			entity_id TEXT NOT NULL DEFAULT '',
			old_values JSONB,
			new_values JSONB,
			metadata JSONB,
			regulations TEXT[] NOT NULL,
			severity TEXT NOT NULL,
			success BOOLEAN NOT NULL,
			error_message TEXT NOT NULL DEFAULT '',
			organization_id TEXT NOT NULL DEFAULT ''
		);
		CREATE INDEX IF NOT EXISTS audit_events_timestamp_idx ON audit_events (timestamp DESC);
		CREATE INDEX IF NOT EXISTS audit_events_entity_idx ON audit_events (entity_type, timestamp);
		CREATE INDEX IF NOT EXISTS audit_events_regulations_idx ON audit_events USING GIN (regulations);
	`)
	if err != nil {
		return fmt.Errorf("migrate audit_events: %w", err)
	}
	return nil
}

// InsertBatch writes all events in one statement, preserving slice order.
func (s *Store) InsertBatch(ctx context.Context, events []audit.Event) error {
	if len(events) == 0 {
		return nil
	}

	const cols = 18
	placeholders := make([]string, 0, len(events))
	args := make([]any, 0, len(events)*cols)

	for i, e := range events {
		base := i * cols
		row := make([]string, cols)
		for j := range row {
			row[j] = fmt.Sprintf("$%d", base+j+1)
		}
		placeholders = append(placeholders, "("+strings.Join(row, ", ")+")")

		oldValues, err := marshalFields(e.OldValues)
		if err != nil {
			return fmt.Errorf("marshal old_values: %w", err)
		}
		newValues, err := marshalFields(e.NewValues)
		if err != nil {
			return fmt.Errorf("marshal new_values: %w", err)
		}
		metadata, err := marshalFields(e.Metadata)
		if err != nil {
			return fmt.Errorf("marshal metadata: %w", err)
		}

		args = append(args,
			e.ID,
			string(e.Type),
			e.Timestamp,
			e.UserID,
			e.SessionID,
			e.IPAddress,
			e.UserAgent,
			e.RequestID,
			e.EntityType,
			e.EntityID,
			oldValues,
			newValues,
			metadata,
			pq.Array(regulationStrings(e.Regulations)),
			string(e.Severity),
			e.Success,
			e.ErrorMessage,
			e.OrganizationID,
		)
	}

	query := fmt.Sprintf(
		"INSERT INTO audit_events (%s) VALUES %s",
		eventColumns,
		strings.Join(placeholders, ", "),
	)
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert audit batch: %w", err)
	}
	return nil
}

// Search returns matching events, newest first.
func (s *Store) Search(ctx context.Context, f audit.Filter) ([]audit.Event, error) {
	var (
		conditions []string
		args       []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if f.UserID != "" {
		conditions = append(conditions, "user_id = "+arg(f.UserID))
	}
	if f.OrganizationID != "" {
		conditions = append(conditions, "organization_id = "+arg(f.OrganizationID))
	}
	if f.EntityType != "" {
		conditions = append(conditions, "entity_type = "+arg(f.EntityType))
	}
	if f.EntityID != "" {
		conditions = append(conditions, "entity_id = "+arg(f.EntityID))
	}
	if len(f.Types) > 0 {
		types := make([]string, len(f.Types))
		for i, t := range f.Types {
			types[i] = string(t)
		}
		conditions = append(conditions, "event_type = ANY("+arg(pq.Array(types))+")")
	}
	if f.Regulation != "" {
		conditions = append(conditions, arg(string(f.Regulation))+" = ANY(regulations)")
	}
	if !f.From.IsZero() {
		conditions = append(conditions, "timestamp >= "+arg(f.From))
	}
	if !f.To.IsZero() {
		conditions = append(conditions, "timestamp <= "+arg(f.To))
	}
	if f.Severity != "" {
		conditions = append(conditions, "severity = "+arg(string(f.Severity)))
	}
	if f.Success != nil {
		conditions = append(conditions, "success = "+arg(*f.Success))
	}

	query := "SELECT " + eventColumns + " FROM audit_events"
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY timestamp DESC"
	if f.Limit > 0 {
		query += " LIMIT " + arg(f.Limit)
	}
	if f.Offset > 0 {
		query += " OFFSET " + arg(f.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

// DeleteBefore removes events of entityType strictly older than cutoff.
func (s *Store) DeleteBefore(ctx context.Context, entityType string, cutoff time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		"DELETE FROM audit_events WHERE entity_type = $1 AND timestamp < $2",
		entityType, cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("delete expired audit events: %w", err)
	}
	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("count deleted audit events: %w", err)
	}
	return deleted, nil
}

// scanEvents scans result rows into audit.Event values.
func scanEvents(rows *sql.Rows) ([]audit.Event, error) {
	events := make([]audit.Event, 0)

	for rows.Next() {
		var (
			e           audit.Event
			eventType   string
			severity    string
			oldValues   []byte
			newValues   []byte
			metadata    []byte
			regulations pq.StringArray
		)

		err := rows.Scan(
			&e.ID,
			&eventType,
			&e.Timestamp,
			&e.UserID,
			&e.SessionID,
			&e.IPAddress,
			&e.UserAgent,
			&e.RequestID,
			&e.EntityType,
			&e.EntityID,
			&oldValues,
			&newValues,
			&metadata,
			&regulations,
			&severity,
			&e.Success,
			&e.ErrorMessage,
			&e.OrganizationID,
		)
		if err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}

		e.Type = audit.EventType(eventType)
		e.Severity = audit.Severity(severity)
		for _, r := range regulations {
			e.Regulations = append(e.Regulations, audit.Regulation(r))
		}
		if e.OldValues, err = unmarshalFields(oldValues); err != nil {
			return nil, fmt.Errorf("decode old_values: %w", err)
		}
		if e.NewValues, err = unmarshalFields(newValues); err != nil {
			return nil, fmt.Errorf("decode new_values: %w", err)
		}
		if e.Metadata, err = unmarshalFields(metadata); err != nil {
			return nil, fmt.Errorf("decode metadata: %w", err)
		}

		events = append(events, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit events: %w", err)
	}
	return events, nil
}

func marshalFields(m fields.Map) ([]byte, error) {
	if m == nil {
		return nil, nil
	}
	return json.Marshal(m)
}

func unmarshalFields(data []byte) (fields.Map, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var m fields.Map
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}

func regulationStrings(regs []audit.Regulation) []string {
	out := make([]string, len(regs))
	for i, r := range regs {
		out[i] = string(r)
	}
	return out
}
