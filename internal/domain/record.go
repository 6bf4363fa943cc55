package domain

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// Value is one decoded telemetry field: a number, a string, or nil.
type Value struct {
	num     float64
	text    string
	numeric bool
	valid   bool
}

// Number returns a numeric Value.
func Number(f float64) Value {
	return Value{num: f, numeric: true, valid: true}
}

// Text returns a textual Value.
func Text(s string) Value {
	return Value{text: s, valid: true}
}

// Nil is the absent value.
var Nil = Value{}

// ParseValue interprets a raw column according to field.
// A numeric field that does not parse yields Nil and ErrFieldParse.
func ParseValue(field Field, raw string) (Value, error) {
	if !field.Numeric() {
		return Text(raw), nil
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return Nil, ErrFieldParse
	}
	return Number(f), nil
}

// IsNil reports whether the value is absent.
func (v Value) IsNil() bool { return !v.valid }

// IsNumber reports whether the value is a parsed number.
func (v Value) IsNumber() bool { return v.valid && v.numeric }

// Float returns the numeric value and whether it is one.
func (v Value) Float() (float64, bool) {
	return v.num, v.valid && v.numeric
}

// String returns the textual form; empty for Nil.
func (v Value) String() string {
	switch {
	case !v.valid:
		return ""
	case v.numeric:
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	default:
		return v.text
	}
}

// Interface returns nil, a float64, or a string.
func (v Value) Interface() interface{} {
	switch {
	case !v.valid:
		return nil
	case v.numeric:
		return v.num
	default:
		return v.text
	}
}

// MarshalJSON encodes null, a JSON number, or a JSON string.
func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Interface())
}

// Record is one decoded frame. Values has exactly one entry per schema field.
type Record struct {
	Seq        uint64           `json:"seq"`
	ReceivedAt time.Time        `json:"received_at"`
	Raw        string           `json:"raw"`
	Columns    []string         `json:"-"`
	Values     map[string]Value `json:"values"`

	// ParseFailures lists numeric fields whose column did not parse.
	ParseFailures []string `json:"parse_failures,omitempty"`
}

// Get returns the value of name, Nil when absent.
func (r Record) Get(name string) Value {
	return r.Values[name]
}
