package models

import (
	"bytes"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strconv"
)

// EventLog holds decoded event arguments keyed by snake_case name.
// Integers are json.Number and addresses are checksummed hex strings.
type EventLog map[string]any

// Value implements driver.Valuer; a nil log is stored as SQL NULL
func (l EventLog) Value() (driver.Value, error) {
	if l == nil {
		return nil, nil
	}
	raw, err := json.Marshal(map[string]any(l))
	if err != nil {
		return nil, err
	}
	return string(raw), nil
}

// Scan implements sql.Scanner
func (l *EventLog) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*l = nil
		return nil
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return fmt.Errorf("cannot scan %T into EventLog", src)
	}

	decoded, err := ParseEventLog(raw)
	if err != nil {
		return err
	}
	*l = decoded
	return nil
}

// ParseEventLog decodes JSON keeping numbers exact
func ParseEventLog(raw []byte) (EventLog, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var out map[string]any
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("invalid event_log: %w", err)
	}
	return EventLog(out), nil
}

// String returns the string value for key
func (l EventLog) String(key string) (string, bool) {
	v, ok := l[key].(string)
	return v, ok
}

// Uint64 returns the integer value for key
func (l EventLog) Uint64(key string) (uint64, bool) {
	switch v := l[key].(type) {
	case json.Number:
		n, err := strconv.ParseUint(v.String(), 10, 64)
		return n, err == nil
	case uint64:
		return v, true
	default:
		return 0, false
	}
}
