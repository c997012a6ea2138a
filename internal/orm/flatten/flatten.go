package flatten

import (
	"errors"
	"fmt"
	"strings"

	"github.com/conduit-lang/flatquery/internal/orm/fieldspec"
	"github.com/conduit-lang/flatquery/internal/orm/query"
)

// ErrShape is returned when a record does not have the shape the selection
// describes (a scalar where a collection is expected, and so on)
var ErrShape = errors.New("record does not match selection")

type cell struct {
	key   string
	value interface{}
}

// Flattener flattens records produced for one selection
type Flattener struct {
	selection *fieldspec.Selection
}

// New creates a flattener for sel
func New(sel *fieldspec.Selection) *Flattener {
	return &Flattener{selection: sel}
}

// Flatten is shorthand for New(sel).Flatten(records)
func Flatten(sel *fieldspec.Selection, records []query.Record) ([]*Row, error) {
	return New(sel).Flatten(records)
}

// Flatten emits one row per combination of collection elements of each
// record, in record order. Scalars of the record and of its single-valued
// navigations repeat on every row. A record with an empty collection yields
// no rows; zero records yield an empty, non-nil slice.
func (f *Flattener) Flatten(records []query.Record) ([]*Row, error) {
	rows := make([]*Row, 0, len(records))
	width := len(f.selection.Leaves())
	for i, rec := range records {
		combos, err := expand(f.selection.Fields, rec)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		for _, combo := range combos {
			row := NewRow(width)
			for _, c := range combo {
				row.Set(c.key, c.value)
			}
			rows = append(rows, row)
		}
	}
	return rows, nil
}

func expand(nodes []*fieldspec.FieldNode, rec map[string]interface{}) ([][]cell, error) {
	partials := [][]cell{nil}
	for _, node := range nodes {
		switch node.Kind {
		case fieldspec.KindScalar:
			value := normalize(lookup(rec, node.Name))
			for i := range partials {
				partials[i] = append(partials[i], cell{key: node.Alias(), value: value})
			}

		case fieldspec.KindNavigation:
			sub, err := asRecord(lookup(rec, node.Name))
			if err != nil {
				return nil, fmt.Errorf("%s: %w", node.FullPath, err)
			}
			subRows, err := expand(node.Children, sub)
			if err != nil {
				return nil, err
			}
			partials = product(partials, subRows)

		case fieldspec.KindCollection:
			elems, err := asRecords(lookup(rec, node.Name))
			if err != nil {
				return nil, fmt.Errorf("%s: %w", node.FullPath, err)
			}
			var all [][]cell
			for _, elem := range elems {
				subRows, err := expand(node.Children, elem)
				if err != nil {
					return nil, err
				}
				all = append(all, subRows...)
			}
			partials = product(partials, all)
		}
		if len(partials) == 0 {
			return nil, nil
		}
	}
	return partials, nil
}

// product returns every left row followed by every right row, left-major
func product(left, right [][]cell) [][]cell {
	out := make([][]cell, 0, len(left)*len(right))
	for _, l := range left {
		for _, r := range right {
			row := make([]cell, 0, len(l)+len(r))
			row = append(row, l...)
			row = append(row, r...)
			out = append(out, row)
		}
	}
	return out
}

// lookup finds name in rec, falling back to a case-insensitive match
func lookup(rec map[string]interface{}, name string) interface{} {
	if rec == nil {
		return nil
	}
	if v, ok := rec[name]; ok {
		return v
	}
	for k, v := range rec {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return nil
}

func asRecord(v interface{}) (map[string]interface{}, error) {
	switch r := v.(type) {
	case nil:
		return nil, nil
	case query.Record:
		return r, nil
	case map[string]interface{}:
		return r, nil
	default:
		return nil, fmt.Errorf("%w: expected a record, got %T", ErrShape, v)
	}
}

func asRecords(v interface{}) ([]map[string]interface{}, error) {
	switch r := v.(type) {
	case nil:
		return nil, nil
	case []query.Record:
		out := make([]map[string]interface{}, len(r))
		for i, rec := range r {
			out[i] = rec
		}
		return out, nil
	case []map[string]interface{}:
		return r, nil
	case []interface{}:
		out := make([]map[string]interface{}, 0, len(r))
		for _, item := range r {
			rec, err := asRecord(item)
			if err != nil {
				return nil, err
			}
			if rec == nil {
				return nil, fmt.Errorf("%w: null collection element", ErrShape)
			}
			out = append(out, rec)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: expected a collection, got %T", ErrShape, v)
	}
}

func normalize(v interface{}) interface{} {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}
