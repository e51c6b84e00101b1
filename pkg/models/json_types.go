package models

import (
	"database/sql/driver"
	"fmt"

	"github.com/goccy/go-json"
)

// JSONStringArray stores a string slice as a JSON text column.
type JSONStringArray []string

// Scan implements sql.Scanner for JSONStringArray.
func (j *JSONStringArray) Scan(src interface{}) error {
	data, err := scanBytes("JSONStringArray", src)
	if err != nil || data == nil {
		*j = nil
		return err
	}
	return json.Unmarshal(data, j)
}

// Value implements driver.Valuer for JSONStringArray.
func (j JSONStringArray) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	data, err := json.Marshal(j)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// JSONRankedEntries stores ranked name/count pairs as a JSON text column.
type JSONRankedEntries []RankedEntry

// Scan implements sql.Scanner for JSONRankedEntries.
func (j *JSONRankedEntries) Scan(src interface{}) error {
	data, err := scanBytes("JSONRankedEntries", src)
	if err != nil || data == nil {
		*j = nil
		return err
	}
	return json.Unmarshal(data, j)
}

// Value implements driver.Valuer for JSONRankedEntries.
func (j JSONRankedEntries) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	data, err := json.Marshal(j)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func scanBytes(name string, src interface{}) ([]byte, error) {
	if src == nil {
		return nil, nil
	}
	var data []byte
	switch v := src.(type) {
	case string:
		data = []byte(v)
	case []byte:
		data = v
	default:
		return nil, fmt.Errorf("%s: unsupported type %T", name, src)
	}
	if len(data) == 0 {
		return nil, nil
	}
	return data, nil
}
