// Package record implements schema-filtered per-iteration telemetry: an
// enable-list of record keys, a closed set of scalar value kinds, and
// pluggable sinks (JSON-lines, CSV, Redis list) selected by path. The
// append path is hot — one lookup per call, silent drop for keys that were
// never enabled.
package record

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

// ErrUnsupportedValueKind reports a value outside the closed set of record
// scalar kinds. This is a caller contract violation, not a droppable value.
var ErrUnsupportedValueKind = errors.New("unsupported record value kind")

// Kind identifies one of the supported record scalar kinds.
type Kind string

const (
	KindInt64   Kind = "int64"
	KindSize    Kind = "size"
	KindFloat64 Kind = "float64"
	KindString  Kind = "string"
	KindBool    Kind = "bool"
)

// Value is a record scalar: exactly one of the supported kinds.
type Value struct {
	kind Kind
	i    int64
	u    uint64
	f    float64
	s    string
	b    bool
}

// ValueOf validates v against the closed kind set and widens it. All signed
// integers map to KindInt64, unsigned integers to KindSize, float32/64 to
// KindFloat64. Anything else fails with ErrUnsupportedValueKind.
func ValueOf(v any) (Value, error) {
	switch x := v.(type) {
	case int:
		return Value{kind: KindInt64, i: int64(x)}, nil
	case int8:
		return Value{kind: KindInt64, i: int64(x)}, nil
	case int16:
		return Value{kind: KindInt64, i: int64(x)}, nil
	case int32:
		return Value{kind: KindInt64, i: int64(x)}, nil
	case int64:
		return Value{kind: KindInt64, i: x}, nil
	case uint:
		return Value{kind: KindSize, u: uint64(x)}, nil
	case uint8:
		return Value{kind: KindSize, u: uint64(x)}, nil
	case uint16:
		return Value{kind: KindSize, u: uint64(x)}, nil
	case uint32:
		return Value{kind: KindSize, u: uint64(x)}, nil
	case uint64:
		return Value{kind: KindSize, u: x}, nil
	case uintptr:
		return Value{kind: KindSize, u: uint64(x)}, nil
	case float32:
		return Value{kind: KindFloat64, f: float64(x)}, nil
	case float64:
		return Value{kind: KindFloat64, f: x}, nil
	case string:
		return Value{kind: KindString, s: x}, nil
	case bool:
		return Value{kind: KindBool, b: x}, nil
	}
	return Value{}, fmt.Errorf("%w: %T", ErrUnsupportedValueKind, v)
}

// Kind returns the value's kind.
func (v Value) Kind() Kind { return v.kind }

// Interface returns the widened Go value.
func (v Value) Interface() any {
	switch v.kind {
	case KindInt64:
		return v.i
	case KindSize:
		return v.u
	case KindFloat64:
		return v.f
	case KindString:
		return v.s
	case KindBool:
		return v.b
	}
	return nil
}

// String renders the value as a CSV cell.
func (v Value) String() string {
	switch v.kind {
	case KindInt64:
		return strconv.FormatInt(v.i, 10)
	case KindSize:
		return strconv.FormatUint(v.u, 10)
	case KindFloat64:
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	case KindString:
		return v.s
	case KindBool:
		return strconv.FormatBool(v.b)
	}
	return ""
}

// MarshalJSON encodes the underlying scalar.
func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Interface())
}
