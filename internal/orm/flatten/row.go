// Package flatten turns path-shaped records into flat rows, fanning out
// collection navigations into one row per element combination.
package flatten

import (
	"bytes"
	"encoding/json"
)

// Row is an insertion-ordered mapping from flat key to scalar value
type Row struct {
	keys   []string
	values map[string]interface{}
}

// NewRow creates an empty row with room for n keys
func NewRow(n int) *Row {
	return &Row{
		keys:   make([]string, 0, n),
		values: make(map[string]interface{}, n),
	}
}

// Set stores value under key, appending the key if it is new
func (r *Row) Set(key string, value interface{}) {
	if _, exists := r.values[key]; !exists {
		r.keys = append(r.keys, key)
	}
	r.values[key] = value
}

// Get returns the value stored under key
func (r *Row) Get(key string) (interface{}, bool) {
	v, ok := r.values[key]
	return v, ok
}

// Keys returns the keys in insertion order
func (r *Row) Keys() []string {
	keys := make([]string, len(r.keys))
	copy(keys, r.keys)
	return keys
}

// Values returns the values in key order
func (r *Row) Values() []interface{} {
	values := make([]interface{}, len(r.keys))
	for i, k := range r.keys {
		values[i] = r.values[k]
	}
	return values
}

// Len returns the number of keys
func (r *Row) Len() int {
	return len(r.keys)
}

// Map returns an unordered copy of the row
func (r *Row) Map() map[string]interface{} {
	m := make(map[string]interface{}, len(r.values))
	for k, v := range r.values {
		m[k] = v
	}
	return m
}

// MarshalJSON encodes the row as a JSON object with keys in insertion order
func (r *Row) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range r.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		value, err := json.Marshal(r.values[k])
		if err != nil {
			return nil, err
		}
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
