// Package fields provides a closed variant type for audit payload snapshots.
//
// Audit events carry free-form before/after snapshots and metadata bags. Keeping
// them as a closed set of kinds (string, number, bool, null, nested map) instead
// of raw any values means the sanitizer can walk every value totally, and JSON
// round-trips are well defined.
package fields

import (
	"encoding/json"
	"fmt"
	"maps"
)

// Kind identifies the concrete type held by a Value.
type Kind int

const (
	KindNull Kind = iota
	KindString
	KindNumber
	KindBool
	KindMap
)

// Map is a string-keyed bag of Values. The zero value (nil) is a valid empty bag.
type Map map[string]Value

// Value is one field value. Construct with String, Number, Bool, Null or Nested.
type Value struct {
	kind   Kind
	str    string
	num    float64
	truth  bool
	nested Map
}

func String(s string) Value  { return Value{kind: KindString, str: s} }
func Number(n float64) Value { return Value{kind: KindNumber, num: n} }
func Bool(b bool) Value      { return Value{kind: KindBool, truth: b} }
func Null() Value            { return Value{kind: KindNull} }
func Nested(m Map) Value     { return Value{kind: KindMap, nested: m} }

// Kind returns the kind of the value.
func (v Value) Kind() Kind { return v.kind }

// AsString returns the string payload and whether the value holds one.
func (v Value) AsString() (string, bool) { return v.str, v.kind == KindString }

// AsNumber returns the numeric payload and whether the value holds one.
func (v Value) AsNumber() (float64, bool) { return v.num, v.kind == KindNumber }

// AsBool returns the boolean payload and whether the value holds one.
func (v Value) AsBool() (bool, bool) { return v.truth, v.kind == KindBool }

// AsMap returns the nested map and whether the value holds one.
func (v Value) AsMap() (Map, bool) { return v.nested, v.kind == KindMap }

// IsNull reports whether the value is the null variant.
func (v Value) IsNull() bool { return v.kind == KindNull }

// Text renders the value as a plain string for CSV/XML export and logging.
func (v Value) Text() string {
	switch v.kind {
	case KindString:
		return v.str
	case KindNumber:
		return trimFloat(v.num)
	case KindBool:
		if v.truth {
			return "true"
		}
		return "false"
	case KindMap:
		b, err := json.Marshal(v.nested)
		if err != nil {
			return ""
		}
		return string(b)
	default:
		return ""
	}
}

func trimFloat(f float64) string {
	b, _ := json.Marshal(f)
	return string(b)
}

// MarshalJSON renders the value as its natural JSON form.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindString:
		return json.Marshal(v.str)
	case KindNumber:
		return json.Marshal(v.num)
	case KindBool:
		return json.Marshal(v.truth)
	case KindMap:
		return json.Marshal(v.nested)
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON accepts any JSON scalar, object, or null. Arrays are rejected:
// audit snapshots are key/value shaped, and nothing in the write path emits them.
func (v *Value) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := FromGo(raw)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// FromGo converts a decoded-JSON Go value into a Value.
func FromGo(raw any) (Value, error) {
	switch t := raw.(type) {
	case nil:
		return Null(), nil
	case string:
		return String(t), nil
	case float64:
		return Number(t), nil
	case int:
		return Number(float64(t)), nil
	case int64:
		return Number(float64(t)), nil
	case bool:
		return Bool(t), nil
	case map[string]any:
		m := make(Map, len(t))
		for k, val := range t {
			converted, err := FromGo(val)
			if err != nil {
				return Value{}, err
			}
			m[k] = converted
		}
		return Nested(m), nil
	default:
		return Value{}, fmt.Errorf("fields: unsupported value type %T", raw)
	}
}

// Clone returns a deep copy so callers can mutate the result without
// affecting the original map.
func (m Map) Clone() Map {
	if m == nil {
		return nil
	}
	out := make(Map, len(m))
	for k, v := range m {
		if nested, ok := v.AsMap(); ok {
			out[k] = Nested(nested.Clone())
			continue
		}
		out[k] = v
	}
	return out
}

// Merge returns a new map with entries from other layered over m.
func (m Map) Merge(other Map) Map {
	out := m.Clone()
	if out == nil {
		out = make(Map, len(other))
	}
	maps.Copy(out, other)
	return out
}
