package query

import (
	"context"

	"github.com/conduit-lang/flatquery/internal/orm/fieldspec"
	"github.com/conduit-lang/flatquery/internal/orm/schema"
)

// Record is one raw result unit returned by a Store. Keys are canonical member
// names; single-valued navigations hold a nested Record and collections hold
// a []Record.
type Record map[string]interface{}

// Store turns a plan into an executable statement. Prepare may reject plans
// it cannot express.
type Store interface {
	Prepare(plan *Plan) (Statement, error)
}

// Statement is a prepared, not yet executed query. Query is the only
// blocking call of the pipeline.
type Statement interface {
	Query(ctx context.Context) ([]Record, error)
	String() string
}

// Relation is one entity scope of a plan: the root, or a navigation reached
// from its parent. The relation tree contains every navigation the
// projection, filter or sort touches.
type Relation struct {
	// Path is the dotted path from the root; empty for the root
	Path       string
	Entity     *schema.Entity
	Navigation *schema.Navigation
	Parent     *Relation
	Children   []*Relation

	// Columns projected from this relation, in selection order
	Columns []*Column

	// Filter is the default filter scoped to this collection. Paths inside it
	// are relative to this relation.
	Filter Expr
}

// IsRoot reports whether r is the plan root
func (r *Relation) IsRoot() bool {
	return r.Parent == nil
}

// IsCollection reports whether r was reached through a collection navigation
func (r *Relation) IsCollection() bool {
	return r.Navigation != nil && r.Navigation.IsCollection()
}

// Child returns the child relation reached through the named navigation
func (r *Relation) Child(name string) *Relation {
	for _, c := range r.Children {
		if c.Navigation.Name == name {
			return c
		}
	}
	return nil
}

func (r *Relation) addChild(nav *schema.Navigation, target *schema.Entity) *Relation {
	if existing := r.Child(nav.Name); existing != nil {
		return existing
	}
	path := nav.Name
	if r.Path != "" {
		path = r.Path + "." + nav.Name
	}
	child := &Relation{
		Path:       path,
		Entity:     target,
		Navigation: nav,
		Parent:     r,
	}
	r.Children = append(r.Children, child)
	return child
}

// Chain returns the relations from the root down to r, excluding the root
func (r *Relation) Chain() []*Relation {
	var chain []*Relation
	for cur := r; cur != nil && !cur.IsRoot(); cur = cur.Parent {
		chain = append([]*Relation{cur}, chain...)
	}
	return chain
}

func (r *Relation) walk(fn func(*Relation)) {
	fn(r)
	for _, c := range r.Children {
		c.walk(fn)
	}
}

// Column is one projected scalar
type Column struct {
	// Path is the full dotted path, Alias its flat key
	Path     string
	Alias    string
	Property *schema.Property
	Relation *Relation
}

// Plan is a composed, not yet executed query
type Plan struct {
	Entity    *schema.Entity
	Selection *fieldspec.Selection
	Root      *Relation
	Columns   []*Column

	// Filter is the root filter: the explicit filter or the root entity's
	// default. Collection-scoped defaults live on their relations.
	Filter Expr
	Sort   []SortKey
	// Limit caps the number of rows; zero means no cap
	Limit int

	ProjectionClause string
	FilterClause     string
	SortClause       string

	Statement Statement
}

// Relations returns every relation in depth-first order, root first
func (p *Plan) Relations() []*Relation {
	var out []*Relation
	p.Root.walk(func(r *Relation) {
		out = append(out, r)
	})
	return out
}

// Conditions returns the root filter followed by every scoped collection
// filter, in relation order. All of them must hold for a row to be returned.
func (p *Plan) Conditions() []Condition {
	var out []Condition
	if p.Filter != nil {
		out = append(out, Condition{Scope: p.Root, Expr: p.Filter})
	}
	for _, r := range p.Relations() {
		if r.Filter != nil {
			out = append(out, Condition{Scope: r, Expr: r.Filter})
		}
	}
	return out
}

// Condition is a filter expression together with the relation its paths are
// relative to
type Condition struct {
	Scope *Relation
	Expr  Expr
}
