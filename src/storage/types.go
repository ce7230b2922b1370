package storage

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// JSONObject is a JSON object stored as text, used for the monadic context
// and the session parameters.
type JSONObject map[string]any

// Scan implements the sql.Scanner interface for JSONObject
func (j *JSONObject) Scan(value interface{}) error {
	if value == nil {
		*j = JSONObject{}
		return nil
	}

	var raw []byte
	switch v := value.(type) {
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return fmt.Errorf("cannot scan type %T into JSONObject", value)
	}
	if len(raw) == 0 || string(raw) == "null" {
		*j = JSONObject{}
		return nil
	}
	out := JSONObject{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return fmt.Errorf("failed to decode JSON object: %w", err)
	}
	*j = out
	return nil
}

// Value implements the driver.Valuer interface for JSONObject
func (j JSONObject) Value() (driver.Value, error) {
	if len(j) == 0 {
		return "{}", nil
	}
	b, err := json.Marshal(map[string]any(j))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// nullableJSON encodes v as JSON text, or nil when v is empty.
func nullableJSON[T any](v []T) (*string, error) {
	if len(v) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	s := string(b)
	return &s, nil
}

func decodeNullableJSON[T any](s *string) ([]T, error) {
	if s == nil || *s == "" {
		return nil, nil
	}
	var out []T
	if err := json.Unmarshal([]byte(*s), &out); err != nil {
		return nil, err
	}
	return out, nil
}
