package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// Value is the content of one path: a JSON document, or absent.
//
// The zero Value is absent. Values are immutable; accessors return
// ok=false when the value is absent or of another JSON type, so callers
// can treat a wrong type the same as no value.
type Value struct {
	raw json.RawMessage
}

var jsonNull = []byte("null")

// Absent returns the value of a path that holds nothing.
func Absent() Value {
	return Value{}
}

// BoolValue wraps b.
func BoolValue(b bool) Value {
	return Value{raw: json.RawMessage(strconv.FormatBool(b))}
}

// IntValue wraps n.
func IntValue(n int) Value {
	return Value{raw: json.RawMessage(strconv.Itoa(n))}
}

// FloatValue wraps f. NaN and infinities have no JSON form and yield
// Absent.
func FloatValue(f float64) Value {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return Absent()
	}
	return Value{raw: json.RawMessage(strconv.FormatFloat(f, 'g', -1, 64))}
}

// RawValue parses a JSON document. An empty document or JSON null is
// Absent.
func RawValue(b []byte) (Value, error) {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, jsonNull) {
		return Absent(), nil
	}
	if !json.Valid(b) {
		return Absent(), fmt.Errorf("store: value is not valid JSON: %.32q", b)
	}
	return Value{raw: bytes.Clone(b)}, nil
}

// Present reports whether the path holds a value.
func (v Value) Present() bool {
	return len(v.raw) > 0
}

// Bool returns the value as a boolean.
func (v Value) Bool() (bool, bool) {
	var b bool
	if !v.Present() || json.Unmarshal(v.raw, &b) != nil {
		return false, false
	}
	return b, true
}

// Float returns the value as a number.
func (v Value) Float() (float64, bool) {
	var f float64
	if !v.Present() || json.Unmarshal(v.raw, &f) != nil {
		return 0, false
	}
	return f, true
}

// Int returns the value as a number rounded to the nearest integer.
// Hardware sometimes publishes integral readings as 90.0.
func (v Value) Int() (int, bool) {
	f, ok := v.Float()
	if !ok || f > math.MaxInt32 || f < math.MinInt32 {
		return 0, false
	}
	return int(math.Round(f)), true
}

// Raw returns a copy of the JSON document, or nil when absent.
func (v Value) Raw() json.RawMessage {
	if !v.Present() {
		return nil
	}
	return bytes.Clone(v.raw)
}

// Equal reports whether v and o hold the same JSON text.
func (v Value) Equal(o Value) bool {
	return bytes.Equal(v.raw, o.raw)
}

// String returns the JSON text or "absent".
func (v Value) String() string {
	if !v.Present() {
		return "absent"
	}
	return string(v.raw)
}

// MarshalJSON encodes an absent value as null.
func (v Value) MarshalJSON() ([]byte, error) {
	if !v.Present() {
		return jsonNull, nil
	}
	return v.raw, nil
}

// UnmarshalJSON decodes null as absent.
func (v *Value) UnmarshalJSON(b []byte) error {
	parsed, err := RawValue(b)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}
