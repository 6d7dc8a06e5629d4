package audit

import (
	"strings"

	"flowaudit/pkg/fields"
)

// RedactionMarker replaces every sensitive value before an event is buffered.
// The original value never reaches a store, sink or export.
const RedactionMarker = "[REDACTED]"

// sensitiveKeyPatterns are matched as case-insensitive substrings of field
// keys. "authorization" style headers land under "token".
var sensitiveKeyPatterns = []string{
	"password",
	"ssn",
	"credit_card",
	"bank_account",
	"api_key",
	"token",
	"secret",
}

// sensitiveKey reports whether a field key must be redacted.
func sensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, pattern := range sensitiveKeyPatterns {
		if strings.Contains(lower, pattern) {
			return true
		}
	}
	return false
}

// sanitizeFields returns a copy of m with sensitive values redacted, recursing
// into nested maps. The input map is never mutated so callers keep their own
// view and events stay immutable once built.
func sanitizeFields(m fields.Map) fields.Map {
	if m == nil {
		return nil
	}
	out := make(fields.Map, len(m))
	for key, value := range m {
		if sensitiveKey(key) {
			out[key] = fields.String(RedactionMarker)
			continue
		}
		if nested, ok := value.AsMap(); ok {
			out[key] = fields.Nested(sanitizeFields(nested))
			continue
		}
		out[key] = value
	}
	return out
}
