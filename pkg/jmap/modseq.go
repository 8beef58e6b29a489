package jmap

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// ModSeq is a modification sequence value. Servers send it either as a JSON
// number or as a string, so both are accepted and the original form is kept.
type ModSeq struct {
	Value   string
	Numeric bool
}

// UnmarshalJSON accepts a JSON number or string
func (m *ModSeq) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		m.Value = s
		m.Numeric = false
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("modSeq must be a number or string: %w", err)
	}
	m.Value = n.String()
	m.Numeric = true
	return nil
}

// MarshalJSON writes the value back in the form it was received
func (m ModSeq) MarshalJSON() ([]byte, error) {
	if m.Numeric {
		return []byte(m.Value), nil
	}
	return json.Marshal(m.Value)
}

// Compare orders two values numerically when both parse as unsigned integers.
// Otherwise the values are opaque: ok is false and only equality (cmp == 0) is
// reported.
func (m ModSeq) Compare(other ModSeq) (cmp int, ok bool) {
	a, errA := strconv.ParseUint(m.Value, 10, 64)
	b, errB := strconv.ParseUint(other.Value, 10, 64)
	if errA != nil || errB != nil {
		if m.Value == other.Value {
			return 0, false
		}
		return 1, false
	}
	switch {
	case a < b:
		return -1, true
	case a > b:
		return 1, true
	}
	return 0, true
}
