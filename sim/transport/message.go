package transport

import (
	"encoding/json"
	"fmt"
	"slices"
)

// Message is an opaque structured payload with typed field accessors. The
// session core never interprets field semantics; it passes messages between
// the brain service and user callbacks. Getters return (value, ok) and
// coerce from the widened numeric representation JSON decoding produces.
type Message struct {
	fields map[string]any
}

// NewMessage returns an empty message.
func NewMessage() *Message {
	return &Message{fields: make(map[string]any)}
}

// MessageFrom wraps an existing field map. The map is not copied.
func MessageFrom(fields map[string]any) *Message {
	if fields == nil {
		fields = make(map[string]any)
	}
	return &Message{fields: fields}
}

// Len returns the number of fields set on the message.
func (m *Message) Len() int {
	if m == nil {
		return 0
	}
	return len(m.fields)
}

// Keys returns the field names in sorted order.
func (m *Message) Keys() []string {
	if m == nil {
		return nil
	}
	keys := make([]string, 0, len(m.fields))
	for k := range m.fields {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// Clone returns a shallow copy of the message.
func (m *Message) Clone() *Message {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m.fields))
	for k, v := range m.fields {
		out[k] = v
	}
	return &Message{fields: out}
}

func (m *Message) SetFloat32(key string, v float32) { m.fields[key] = float64(v) }
func (m *Message) SetFloat64(key string, v float64) { m.fields[key] = v }
func (m *Message) SetInt8(key string, v int8)       { m.fields[key] = int64(v) }
func (m *Message) SetInt64(key string, v int64)     { m.fields[key] = v }
func (m *Message) SetString(key string, v string)   { m.fields[key] = v }
func (m *Message) SetBool(key string, v bool)       { m.fields[key] = v }

// Float32 returns the field as float32.
func (m *Message) Float32(key string) (float32, bool) {
	f, ok := m.Float64(key)
	return float32(f), ok
}

// Float64 returns the field as float64, coercing integer representations.
func (m *Message) Float64(key string) (float64, bool) {
	if m == nil {
		return 0, false
	}
	switch v := m.fields[key].(type) {
	case float64:
		return v, true
	case int64:
		return float64(v), true
	case int:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	}
	return 0, false
}

// Int64 returns the field as int64, coercing the float64 representation
// JSON decoding produces.
func (m *Message) Int64(key string) (int64, bool) {
	if m == nil {
		return 0, false
	}
	switch v := m.fields[key].(type) {
	case int64:
		return v, true
	case int:
		return int64(v), true
	case float64:
		return int64(v), true
	case json.Number:
		i, err := v.Int64()
		return i, err == nil
	}
	return 0, false
}

// Int8 returns the field as int8. The stored value is truncated; use
// Int8InRange when the field carries a bounded quantity.
func (m *Message) Int8(key string) (int8, bool) {
	i, ok := m.Int64(key)
	return int8(i), ok
}

// Int8InRange returns the field as int8 and errors when the field is absent
// or outside [min, max].
func (m *Message) Int8InRange(key string, min, max int8) (int8, error) {
	i, ok := m.Int64(key)
	if !ok {
		return 0, fmt.Errorf("field %q: not set", key)
	}
	if i < int64(min) || i > int64(max) {
		return 0, fmt.Errorf("field %q: value %d outside [%d, %d]", key, i, min, max)
	}
	return int8(i), nil
}

// String returns the field as a string.
func (m *Message) String(key string) (string, bool) {
	if m == nil {
		return "", false
	}
	s, ok := m.fields[key].(string)
	return s, ok
}

// Bool returns the field as a bool.
func (m *Message) Bool(key string) (bool, bool) {
	if m == nil {
		return false, false
	}
	b, ok := m.fields[key].(bool)
	return b, ok
}

// MarshalJSON encodes the message as a flat JSON object.
func (m *Message) MarshalJSON() ([]byte, error) {
	if m == nil || m.fields == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(m.fields)
}

// UnmarshalJSON decodes a flat JSON object into the message.
func (m *Message) UnmarshalJSON(data []byte) error {
	fields := make(map[string]any)
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	m.fields = fields
	return nil
}
