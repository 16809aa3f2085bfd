package dbtypes

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
)

// JSONList stores an ordered slice as a JSON array column (jsonb on Postgres,
// text on sqlite).
type JSONList[T any] []T

func (l *JSONList[T]) Scan(src any) error {
	if src == nil {
		*l = JSONList[T]{}
		return nil
	}

	switch v := src.(type) {
	case string:
		return l.parse([]byte(v))
	case []byte:
		return l.parse(v)
	default:
		return fmt.Errorf("JSONList: unsupported Scan type %T", src)
	}
}

func (l JSONList[T]) Value() (driver.Value, error) {
	if len(l) == 0 {
		return "[]", nil
	}
	raw, err := json.Marshal([]T(l))
	if err != nil {
		return nil, fmt.Errorf("JSONList: marshal: %w", err)
	}
	return string(raw), nil
}

func (l *JSONList[T]) parse(raw []byte) error {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" || trimmed == "[]" {
		*l = JSONList[T]{}
		return nil
	}
	var out []T
	if err := json.Unmarshal([]byte(trimmed), &out); err != nil {
		return fmt.Errorf("JSONList: unmarshal: %w", err)
	}
	*l = JSONList[T](out)
	return nil
}
