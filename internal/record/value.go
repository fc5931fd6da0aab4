package record

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// ID decodes a numeric identifier sent either as a JSON number or a numeric string.
type ID int64

func (id *ID) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(bytes.TrimSpace(b)), `"`)
	if s == "" || s == "null" {
		*id = 0
		return nil
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		*id = ID(n)
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		// Unknown shapes decode as absent rather than failing the whole event.
		*id = 0
		return nil
	}
	*id = ID(int64(f))
	return nil
}

func (id ID) Int64() int64 { return int64(id) }

func (id ID) String() string {
	if id == 0 {
		return ""
	}
	return strconv.FormatInt(int64(id), 10)
}

// Text decodes strings and numbers alike; null becomes "".
type Text string

func (t *Text) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*t = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*t = Text(s)
		return nil
	}
	*t = Text(b)
	return nil
}

func (t Text) String() string { return strings.TrimSpace(string(t)) }

// Value keeps a loosely typed field as sent so comparisons follow the raw JSON.
type Value struct {
	raw json.RawMessage
}

func (v *Value) UnmarshalJSON(b []byte) error {
	v.raw = append(json.RawMessage(nil), bytes.TrimSpace(b)...)
	return nil
}

func (v Value) MarshalJSON() ([]byte, error) {
	if len(v.raw) == 0 {
		return []byte("null"), nil
	}
	return v.raw, nil
}

func RawValue(s string) Value { return Value{raw: json.RawMessage(s)} }

// Set reports whether the field was present with a non-null value.
func (v Value) Set() bool { return len(v.raw) > 0 && string(v.raw) != "null" }

// Raw returns the JSON literal, or "" when absent.
func (v Value) Raw() string { return string(v.raw) }

// Display renders the value for humans: strings unquoted, absent as "—".
func (v Value) Display() string {
	if !v.Set() {
		return "—"
	}
	if v.raw[0] == '"' {
		var s string
		if err := json.Unmarshal(v.raw, &s); err == nil {
			return s
		}
	}
	return string(v.raw)
}

// Number converts like a loose numeric cast: strings are parsed, booleans map
// to 1/0, null and "" are 0. ok is false when absent or not numeric.
func (v Value) Number() (float64, bool) {
	if len(v.raw) == 0 {
		return math.NaN(), false
	}
	s := string(v.raw)
	switch s {
	case "null", "false":
		return 0, true
	case "true":
		return 1, true
	}
	if v.raw[0] == '"' {
		if err := json.Unmarshal(v.raw, &s); err != nil {
			return math.NaN(), false
		}
		s = strings.TrimSpace(s)
		if s == "" {
			return 0, true
		}
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return math.NaN(), false
	}
	return f, true
}

// IsTrue is strict boolean true.
func (v Value) IsTrue() bool { return string(v.raw) == "true" }

// Confirmed is the tri-state view of the "confirmed" flag.
type Confirmed struct{ Value }

// IsTrue accepts 1, "1" and true.
func (c Confirmed) IsTrue() bool {
	switch c.Raw() {
	case "1", `"1"`, "true":
		return true
	}
	if f, ok := c.number(); ok && f == 1 {
		return true
	}
	return false
}

// IsFalse accepts 0, "0", false, null and absent. Other values are neither.
func (c Confirmed) IsFalse() bool {
	switch c.Raw() {
	case "", "null", "0", `"0"`, "false":
		return true
	}
	if f, ok := c.number(); ok && f == 0 {
		return true
	}
	return false
}

// number only looks at bare JSON numbers, so "1.0" as a string stays unconfirmed.
func (c Confirmed) number() (float64, bool) {
	r := c.Raw()
	if r == "" || r[0] == '"' || r == "true" || r == "false" || r == "null" {
		return 0, false
	}
	f, err := strconv.ParseFloat(r, 64)
	return f, err == nil
}
