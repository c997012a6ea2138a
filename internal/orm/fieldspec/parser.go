package fieldspec

import (
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/conduit-lang/flatquery/internal/orm/errs"
	"github.com/conduit-lang/flatquery/internal/orm/schema"
)

// Depth limits
const (
	MinDepth     = 1
	MaxDepth     = 5
	DefaultDepth = 3
)

// Wildcard selects every scalar of the entity at its position
const Wildcard = "*"

// ErrDepthExceeded is returned when a path cannot fit within the depth limit
var ErrDepthExceeded = errors.New("depth limit exceeded")

// ErrAliasConflict is returned when two selected paths flatten to the same row key
var ErrAliasConflict = errors.New("alias conflict")

// Parser builds field trees against a registry. It holds no per-request
// state and is safe for concurrent use.
type Parser struct {
	registry *schema.Registry
	logger   *zap.Logger
}

// Option configures a Parser
type Option func(*Parser)

// WithLogger sets the parser logger
func WithLogger(logger *zap.Logger) Option {
	return func(p *Parser) {
		p.logger = logger
	}
}

// NewParser creates a parser over registry
func NewParser(registry *schema.Registry, opts ...Option) *Parser {
	p := &Parser{registry: registry, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ClampDepth limits depth to [MinDepth, MaxDepth]
func ClampDepth(depth int) int {
	if depth < MinDepth {
		return MinDepth
	}
	if depth > MaxDepth {
		return MaxDepth
	}
	return depth
}

// Parse resolves fieldSpecs against entityName.
//
// A path ending in a scalar selects that scalar. A path ending in a
// navigation, or in "*", expands all scalars of the target plus, recursively,
// its single-valued navigations while both maxDepth and the navigation's
// recursion cap allow. Collections are never expanded implicitly.
func (p *Parser) Parse(entityName string, fieldSpecs []string, maxDepth int) (*Selection, error) {
	root, err := p.registry.Lookup(entityName)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errs.ErrInvalidArgument, err)
	}
	if len(fieldSpecs) == 0 {
		return nil, fmt.Errorf("%w: at least one field is required", errs.ErrInvalidArgument)
	}

	b := &treeBuilder{registry: p.registry, maxDepth: ClampDepth(maxDepth)}
	for i, spec := range fieldSpecs {
		segments, err := splitPath(spec)
		if err != nil {
			return nil, fmt.Errorf("%w: field %d: %v", errs.ErrInvalidArgument, i, err)
		}
		if err := b.addPath(root, &b.roots, segments, "", 0); err != nil {
			return nil, err
		}
	}

	sel := &Selection{
		Entity:   root.Name,
		Fields:   b.roots,
		MaxDepth: b.maxDepth,
	}
	if err := checkAliases(sel); err != nil {
		return nil, err
	}
	for _, leaf := range sel.Leaves() {
		if d := leaf.Depth(); d > sel.ActualDepth {
			sel.ActualDepth = d
		}
	}

	p.logger.Debug("parsed field selection",
		zap.String("entity", sel.Entity),
		zap.Int("requested", len(fieldSpecs)),
		zap.Int("nodes", sel.TotalFieldCount()),
		zap.Int("max_depth", sel.MaxDepth),
		zap.Int("actual_depth", sel.ActualDepth),
	)
	return sel, nil
}

// checkAliases rejects selections where two leaves share a row key, such as
// a scalar named department_name next to department.name. Keys are compared
// case-insensitively because SQL column aliases may be.
func checkAliases(sel *Selection) error {
	seen := make(map[string]string)
	for _, leaf := range sel.Leaves() {
		key := strings.ToLower(leaf.Alias())
		if other, ok := seen[key]; ok {
			return fmt.Errorf("%w: %w: %s and %s both flatten to %s",
				errs.ErrInvalidOperation, ErrAliasConflict, other, leaf.FullPath, leaf.Alias())
		}
		seen[key] = leaf.FullPath
	}
	return nil
}

func splitPath(spec string) ([]string, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return nil, errors.New("field path is blank")
	}
	segments := strings.Split(spec, ".")
	for i, seg := range segments {
		seg = strings.TrimSpace(seg)
		if seg == "" {
			return nil, fmt.Errorf("malformed field path %q", spec)
		}
		if seg == Wildcard && i != len(segments)-1 {
			return nil, fmt.Errorf("%q: %s must be the last segment", spec, Wildcard)
		}
		segments[i] = seg
	}
	return segments, nil
}

type treeBuilder struct {
	registry *schema.Registry
	maxDepth int
	roots    []*FieldNode
}

func (b *treeBuilder) addPath(entity *schema.Entity, nodes *[]*FieldNode, segments []string, prefix string, depth int) error {
	seg := segments[0]
	last := len(segments) == 1

	if seg == Wildcard {
		// only reachable at the root; "nav.*" is handled below
		return b.expand(entity, nodes, prefix, b.maxDepth+1)
	}

	if !entity.IsNavigation(seg) {
		prop, err := entity.Property(seg)
		if err != nil {
			return fmt.Errorf("%w: %w", errs.ErrInvalidOperation, err)
		}
		if !last {
			return fmt.Errorf("%w: %w: %s.%s is a scalar and cannot be traversed",
				errs.ErrInvalidOperation, schema.ErrNotANavigation, entity.Name, prop.Name)
		}
		if depth > b.maxDepth {
			return fmt.Errorf("%w: %w: %s is deeper than %d",
				errs.ErrInvalidOperation, ErrDepthExceeded, joinPath(prefix, prop.Name), b.maxDepth)
		}
		mergeScalar(nodes, prop, prefix)
		return nil
	}

	nav, err := entity.Navigation(seg)
	if err != nil {
		return fmt.Errorf("%w: %w", errs.ErrInvalidOperation, err)
	}
	target, err := b.registry.Lookup(nav.Target)
	if err != nil {
		return fmt.Errorf("%w: %w", errs.ErrInvalidOperation, err)
	}
	node := mergeNavigation(nodes, nav, prefix)

	if last || (len(segments) == 2 && segments[1] == Wildcard) {
		remaining := capped(b.maxDepth-depth, nav.RecursionCap)
		if remaining < 1 {
			return fmt.Errorf("%w: %w: %s cannot be expanded within depth %d",
				errs.ErrInvalidOperation, ErrDepthExceeded, node.FullPath, b.maxDepth)
		}
		return b.expand(target, &node.Children, node.FullPath, remaining)
	}
	return b.addPath(target, &node.Children, segments[1:], node.FullPath, depth+1)
}

// expand adds every scalar of entity under prefix and recurses into its
// single-valued navigations. remaining is the number of levels the current
// wildcard may still descend, including the scalars added here.
func (b *treeBuilder) expand(entity *schema.Entity, nodes *[]*FieldNode, prefix string, remaining int) error {
	for _, prop := range entity.Scalars {
		mergeScalar(nodes, prop, prefix)
	}
	for _, nav := range entity.Navigations {
		if nav.IsCollection() {
			continue
		}
		next := capped(remaining-1, nav.RecursionCap)
		if next < 1 {
			continue
		}
		target, err := b.registry.Lookup(nav.Target)
		if err != nil {
			return fmt.Errorf("%w: %w", errs.ErrInvalidOperation, err)
		}
		child := mergeNavigation(nodes, nav, prefix)
		if err := b.expand(target, &child.Children, child.FullPath, next); err != nil {
			return err
		}
	}
	return nil
}

func capped(remaining, recursionCap int) int {
	if recursionCap > 0 && recursionCap < remaining {
		return recursionCap
	}
	return remaining
}

func mergeScalar(nodes *[]*FieldNode, prop *schema.Property, prefix string) {
	for _, n := range *nodes {
		if n.Name == prop.Name {
			return
		}
	}
	*nodes = append(*nodes, &FieldNode{
		Name:     prop.Name,
		FullPath: joinPath(prefix, prop.Name),
		Kind:     KindScalar,
		Property: prop,
	})
}

func mergeNavigation(nodes *[]*FieldNode, nav *schema.Navigation, prefix string) *FieldNode {
	for _, n := range *nodes {
		if n.Name == nav.Name {
			return n
		}
	}
	kind := KindNavigation
	if nav.IsCollection() {
		kind = KindCollection
	}
	node := &FieldNode{
		Name:       nav.Name,
		FullPath:   joinPath(prefix, nav.Name),
		Kind:       kind,
		Navigation: nav,
	}
	*nodes = append(*nodes, node)
	return node
}

func joinPath(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + "." + name
}
