package query

import (
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/conduit-lang/flatquery/internal/orm/errs"
	"github.com/conduit-lang/flatquery/internal/orm/fieldspec"
	"github.com/conduit-lang/flatquery/internal/orm/schema"
)

// Composition errors
var (
	// ErrComposition marks every failure raised while composing a plan
	ErrComposition = errors.New("plan composition failed")

	// ErrCollectionNotSelected is returned when a filter or sort path
	// traverses a collection that is not part of the selection
	ErrCollectionNotSelected = errors.New("collection is not part of the selection")

	// ErrNotAScalar is returned when a filter or sort path ends at a navigation
	ErrNotAScalar = errors.New("path does not end at a scalar")
)

// Composer builds query plans from parsed selections. It is stateless apart
// from its configuration and safe for concurrent use.
type Composer struct {
	registry *schema.Registry
	store    Store
	logger   *zap.Logger
}

// ComposerOption configures a Composer
type ComposerOption func(*Composer)

// WithLogger sets the composer logger
func WithLogger(logger *zap.Logger) ComposerOption {
	return func(c *Composer) {
		c.logger = logger
	}
}

// NewComposer creates a composer that prepares plans on store
func NewComposer(registry *schema.Registry, store Store, opts ...ComposerOption) *Composer {
	c := &Composer{registry: registry, store: store, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Compose builds a plan for sel. Empty filterText or sortText applies the
// declared defaults; supplying either replaces only the corresponding
// defaults. A zero limit means no row cap.
func (c *Composer) Compose(entityName string, sel *fieldspec.Selection, filterText, sortText string, limit int) (*Plan, error) {
	entity, err := c.registry.Lookup(entityName)
	if err != nil {
		return nil, compositionError(errs.ErrInvalidArgument, err)
	}
	if sel == nil || sel.Entity != entity.Name {
		return nil, compositionError(errs.ErrInvalidArgument, fmt.Errorf("selection does not belong to %s", entity.Name))
	}
	if limit < 0 {
		return nil, compositionError(errs.ErrInvalidArgument, fmt.Errorf("limit must not be negative, got %d", limit))
	}

	plan := &Plan{
		Entity:    entity,
		Selection: sel,
		Root:      &Relation{Entity: entity},
		Limit:     limit,
	}
	if err := c.project(plan, plan.Root, sel.Fields); err != nil {
		return nil, err
	}

	if strings.TrimSpace(filterText) != "" {
		if err := c.applyFilter(plan, filterText); err != nil {
			return nil, err
		}
	} else if err := c.applyDefaultFilters(plan); err != nil {
		return nil, err
	}

	if strings.TrimSpace(sortText) != "" {
		if err := c.applySort(plan, sortText); err != nil {
			return nil, err
		}
	} else if err := c.applyDefaultSort(plan); err != nil {
		return nil, err
	}

	plan.ProjectionClause = projectionClause(sel.Fields, "")
	plan.FilterClause = filterClause(plan)
	plan.SortClause = sortClause(plan.Sort)

	stmt, err := c.store.Prepare(plan)
	if err != nil {
		return nil, compositionError(errs.ErrInvalidOperation, fmt.Errorf("store rejected plan: %w", err))
	}
	plan.Statement = stmt

	c.logger.Debug("composed query plan",
		zap.String("entity", entity.Name),
		zap.String("projection", plan.ProjectionClause),
		zap.String("filter", plan.FilterClause),
		zap.String("sort", plan.SortClause),
		zap.Int("limit", plan.Limit),
	)
	return plan, nil
}

// ValidateDefaults parses and resolves every declared default filter so a
// bad annotation is reported before any request is served.
func (c *Composer) ValidateDefaults() error {
	for _, entity := range c.registry.Entities() {
		if entity.DefaultFilter != "" {
			if _, err := c.scopedFilter(&Relation{Entity: entity}, entity.DefaultFilter); err != nil {
				return fmt.Errorf("entity %s: default filter: %w", entity.Name, err)
			}
		}
		for _, nav := range entity.Navigations {
			if nav.DefaultFilter == "" {
				continue
			}
			target, err := c.registry.Lookup(nav.Target)
			if err != nil {
				return err
			}
			if _, err := c.scopedFilter(&Relation{Entity: target}, nav.DefaultFilter); err != nil {
				return fmt.Errorf("%s.%s: default filter: %w", entity.Name, nav.Name, err)
			}
		}
	}
	return nil
}

func compositionError(kind error, err error) error {
	return fmt.Errorf("%w: %w: %w", ErrComposition, kind, err)
}

// project mirrors the selection tree into relations and columns
func (c *Composer) project(plan *Plan, rel *Relation, nodes []*fieldspec.FieldNode) error {
	for _, node := range nodes {
		if node.IsLeaf() {
			col := &Column{
				Path:     node.FullPath,
				Alias:    node.Alias(),
				Property: node.Property,
				Relation: rel,
			}
			rel.Columns = append(rel.Columns, col)
			plan.Columns = append(plan.Columns, col)
			continue
		}
		target, err := c.registry.Lookup(node.Navigation.Target)
		if err != nil {
			return compositionError(errs.ErrInvalidOperation, err)
		}
		if err := c.project(plan, rel.addChild(node.Navigation, target), node.Children); err != nil {
			return err
		}
	}
	return nil
}

func (c *Composer) applyFilter(plan *Plan, text string) error {
	expr, err := ParseFilter(text)
	if err != nil {
		return compositionError(errs.ErrInvalidArgument, err)
	}
	for _, ref := range Paths(expr) {
		if err := c.resolve(plan.Root, ref, true); err != nil {
			return compositionError(errs.ErrInvalidArgument, fmt.Errorf("filter: %w", err))
		}
	}
	plan.Filter = expr
	return nil
}

// applyDefaultFilters installs the root entity's default filter and scopes
// each projected collection's default filter to that collection
func (c *Composer) applyDefaultFilters(plan *Plan) error {
	if plan.Entity.DefaultFilter != "" {
		expr, err := c.scopedFilter(plan.Root, plan.Entity.DefaultFilter)
		if err != nil {
			return compositionError(errs.ErrInvalidArgument, fmt.Errorf("default filter of %s: %w", plan.Entity.Name, err))
		}
		plan.Filter = expr
	}

	for _, rel := range plan.Relations() {
		if !rel.IsCollection() {
			continue
		}
		text := rel.Navigation.DefaultFilter
		if text == "" {
			text = rel.Entity.DefaultFilter
		}
		if text == "" {
			continue
		}
		expr, err := c.scopedFilter(rel, text)
		if err != nil {
			return compositionError(errs.ErrInvalidArgument, fmt.Errorf("default filter of %s: %w", rel.Path, err))
		}
		rel.Filter = expr
	}
	return nil
}

// scopedFilter parses a declared filter relative to rel. Declared filters may
// only follow single-valued navigations.
func (c *Composer) scopedFilter(rel *Relation, text string) (Expr, error) {
	expr, err := ParseFilter(text)
	if err != nil {
		return nil, err
	}
	for _, ref := range Paths(expr) {
		if err := c.resolve(rel, ref, false); err != nil {
			return nil, err
		}
	}
	return expr, nil
}

func (c *Composer) applySort(plan *Plan, text string) error {
	keys, err := ParseSort(text)
	if err != nil {
		return compositionError(errs.ErrInvalidArgument, err)
	}
	for _, key := range keys {
		if err := c.resolve(plan.Root, key.Path, true); err != nil {
			return compositionError(errs.ErrInvalidArgument, fmt.Errorf("sort: %w", err))
		}
	}
	plan.Sort = keys
	return nil
}

// applyDefaultSort orders by the root entity's declared sort, then by each
// projected collection's declared sort. Relations without a declared sort
// fall back to their primary key so the row order is always deterministic.
func (c *Composer) applyDefaultSort(plan *Plan) error {
	for _, rel := range plan.Relations() {
		if !rel.IsRoot() && !rel.IsCollection() {
			continue
		}
		specs := rel.Entity.DefaultSort
		if rel.IsCollection() && len(rel.Navigation.DefaultSort) > 0 {
			specs = rel.Navigation.DefaultSort
		}
		if len(specs) == 0 {
			for _, pk := range rel.Entity.PrimaryKey() {
				specs = append(specs, schema.SortSpec{Path: pk.Name})
			}
		}
		for _, spec := range specs {
			ref := &PathRef{Segments: strings.Split(spec.Path, ".")}
			if err := c.resolve(rel, ref, false); err != nil {
				return compositionError(errs.ErrInvalidArgument, fmt.Errorf("default sort of %s: %w", rel.Entity.Name, err))
			}
			if rel.Path != "" {
				ref.Segments = append(strings.Split(rel.Path, "."), ref.Segments...)
			}
			plan.Sort = append(plan.Sort, SortKey{Path: ref, Descending: spec.Descending})
		}
	}
	return nil
}

// resolve binds ref to a relation and scalar, starting at base. Single-valued
// navigations are joined on demand; collections must already be part of the
// selection and may only be crossed when allowCollections is set. On success
// ref.Segments holds the canonical member names.
func (c *Composer) resolve(base *Relation, ref *PathRef, allowCollections bool) error {
	rel := base
	canonical := make([]string, len(ref.Segments))
	for i, seg := range ref.Segments {
		if i == len(ref.Segments)-1 {
			if rel.Entity.IsNavigation(seg) {
				nav, _ := rel.Entity.Navigation(seg)
				return fmt.Errorf("%w: %s ends at navigation %s.%s", ErrNotAScalar, ref, rel.Entity.Name, nav.Name)
			}
			prop, err := rel.Entity.Property(seg)
			if err != nil {
				return err
			}
			canonical[i] = prop.Name
			ref.Relation = rel
			ref.Property = prop
			ref.Segments = canonical
			return nil
		}

		nav, err := rel.Entity.Navigation(seg)
		if err != nil {
			return err
		}
		canonical[i] = nav.Name
		if nav.IsCollection() {
			child := rel.Child(nav.Name)
			if !allowCollections || child == nil {
				return fmt.Errorf("%w: %s traverses %s.%s", ErrCollectionNotSelected, ref, rel.Entity.Name, nav.Name)
			}
			rel = child
			continue
		}
		target, err := c.registry.Lookup(nav.Target)
		if err != nil {
			return err
		}
		rel = rel.addChild(nav, target)
	}
	return nil
}

// projectionClause renders the selection as "path AS alias" items. Paths are
// relative to the innermost enclosing collection, written "name[...]".
func projectionClause(nodes []*fieldspec.FieldNode, scope string) string {
	parts := make([]string, 0, len(nodes))
	for _, node := range nodes {
		rel := strings.TrimPrefix(node.FullPath, scope)
		switch node.Kind {
		case fieldspec.KindScalar:
			parts = append(parts, rel+" AS "+node.Alias())
		case fieldspec.KindCollection:
			parts = append(parts, rel+"["+projectionClause(node.Children, node.FullPath+".")+"]")
		default:
			parts = append(parts, projectionClause(node.Children, scope))
		}
	}
	return strings.Join(parts, ", ")
}

// filterClause renders the root filter followed by scoped collection filters
// written "collection[expr]"
func filterClause(plan *Plan) string {
	conditions := plan.Conditions()
	var parts []string
	for _, cond := range conditions {
		if cond.Scope.IsRoot() {
			if len(conditions) > 1 {
				parts = append(parts, wrapOr(cond.Expr))
			} else {
				parts = append(parts, cond.Expr.String())
			}
			continue
		}
		parts = append(parts, cond.Scope.Path+"["+cond.Expr.String()+"]")
	}
	return strings.Join(parts, " AND ")
}

func wrapOr(e Expr) string {
	if l, ok := e.(*Logical); ok && l.Op == Or {
		return "(" + l.String() + ")"
	}
	return e.String()
}

func sortClause(keys []SortKey) string {
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k.String()
	}
	return strings.Join(parts, ", ")
}
