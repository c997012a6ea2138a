package engine

import (
	"encoding/json"

	"github.com/conduit-lang/flatquery/internal/orm/flatten"
)

// Request is one query against the engine
type Request struct {
	Entity  string   `json:"entity"`
	Fields  []string `json:"fields"`
	Where   string   `json:"where,omitempty"`
	OrderBy string   `json:"orderBy,omitempty"`
	// First caps the number of rows; nil means no cap
	First *int `json:"first,omitempty"`
	// MaxDepth bounds path and wildcard depth; nil means the engine default
	MaxDepth *int `json:"maxDepth,omitempty"`
}

// Diagnostics carries the clause text a result was produced with
type Diagnostics struct {
	Projection string `json:"projection"`
	Filter     string `json:"filter"`
	Sort       string `json:"sort"`
	Statement  string `json:"statement"`
}

// Result is the response to a Request. On failure only Error is set.
type Result struct {
	Rows        []*flatten.Row `json:"rows"`
	TotalCount  int            `json:"totalCount"`
	Fields      []string       `json:"fields"`
	ActualDepth int            `json:"actualDepth"`
	Diagnostics *Diagnostics   `json:"diagnostics,omitempty"`
	Error       string         `json:"error,omitempty"`
}

// MarshalJSON renders a failed result as {"error": "..."} only
func (r *Result) MarshalJSON() ([]byte, error) {
	if r.Error != "" {
		return json.Marshal(struct {
			Error string `json:"error"`
		}{r.Error})
	}
	type plain Result
	return json.Marshal((*plain)(r))
}

// Int returns a pointer to v, for the optional Request fields
func Int(v int) *int {
	return &v
}
