package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/conduit-lang/flatquery/internal/orm/schema"
)

type entitySummary struct {
	Name        string `json:"name"`
	Table       string `json:"table"`
	Scalars     int    `json:"scalars"`
	Navigations int    `json:"navigations"`
}

type propertyView struct {
	Name       string `json:"name"`
	Column     string `json:"column"`
	Type       string `json:"type"`
	Nullable   bool   `json:"nullable"`
	PrimaryKey bool   `json:"primaryKey,omitempty"`
}

type navigationView struct {
	Name          string   `json:"name"`
	Target        string   `json:"target"`
	Cardinality   string   `json:"cardinality"`
	Inverse       string   `json:"inverse,omitempty"`
	JoinTable     string   `json:"joinTable,omitempty"`
	RecursionCap  int      `json:"recursionCap,omitempty"`
	DefaultFilter string   `json:"defaultFilter,omitempty"`
	DefaultSort   []string `json:"defaultSort,omitempty"`
}

type entityView struct {
	Name          string           `json:"name"`
	Table         string           `json:"table"`
	DefaultFilter string           `json:"defaultFilter,omitempty"`
	DefaultSort   []string         `json:"defaultSort,omitempty"`
	Scalars       []propertyView   `json:"scalars"`
	Navigations   []navigationView `json:"navigations"`
	// Neighbours lists the distinct entities one navigation away
	Neighbours []string `json:"neighbours"`
}

func (h *handler) listEntities(w http.ResponseWriter, r *http.Request) {
	entities := h.engine.Registry().Entities()
	out := make([]entitySummary, len(entities))
	for i, e := range entities {
		out[i] = entitySummary{
			Name:        e.Name,
			Table:       e.Table,
			Scalars:     len(e.Scalars),
			Navigations: len(e.Navigations),
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *handler) getEntity(w http.ResponseWriter, r *http.Request) {
	e, err := h.engine.Registry().Lookup(chi.URLParam(r, "name"))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	g, err := h.engine.Registry().Graph()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	view := newEntityView(e)
	if view.Neighbours, err = g.Neighbours(e.Name); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func newEntityView(e *schema.Entity) entityView {
	v := entityView{
		Name:          e.Name,
		Table:         e.Table,
		DefaultFilter: e.DefaultFilter,
		DefaultSort:   sortStrings(e.DefaultSort),
		Scalars:       make([]propertyView, len(e.Scalars)),
		Navigations:   make([]navigationView, len(e.Navigations)),
	}
	for i, p := range e.Scalars {
		v.Scalars[i] = propertyView{
			Name:       p.Name,
			Column:     p.Column,
			Type:       p.Type.String(),
			Nullable:   p.Nullable,
			PrimaryKey: p.PrimaryKey,
		}
	}
	for i, n := range e.Navigations {
		v.Navigations[i] = navigationView{
			Name:          n.Name,
			Target:        n.Target,
			Cardinality:   n.Cardinality.String(),
			Inverse:       n.Inverse,
			JoinTable:     n.JoinTable,
			RecursionCap:  n.RecursionCap,
			DefaultFilter: n.DefaultFilter,
			DefaultSort:   sortStrings(n.DefaultSort),
		}
	}
	return v
}

func sortStrings(specs []schema.SortSpec) []string {
	if len(specs) == 0 {
		return nil
	}
	out := make([]string, len(specs))
	for i, s := range specs {
		out[i] = s.String()
	}
	return out
}
