package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// Headers stores decoded message headers as a JSON document in a text column,
// which keeps the schema portable between PostgreSQL and SQLite.
type Headers map[string][]string

// Value implements the driver.Valuer interface for Headers
func (h Headers) Value() (driver.Value, error) {
	if h == nil {
		return "{}", nil
	}
	b, err := json.Marshal(h)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements the sql.Scanner interface for Headers
func (h *Headers) Scan(value interface{}) error {
	if value == nil {
		*h = make(Headers)
		return nil
	}

	var raw []byte
	switch v := value.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("unsupported headers column type %T", value)
	}

	if len(raw) == 0 {
		*h = make(Headers)
		return nil
	}
	return json.Unmarshal(raw, h)
}

// Get returns the first value of a header, matching the key exactly.
func (h Headers) Get(key string) string {
	if values := h[key]; len(values) > 0 {
		return values[0]
	}
	return ""
}
