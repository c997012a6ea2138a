package schema

import (
	"fmt"
	"math"
	"strings"

	"github.com/conduit-lang/flatquery/internal/orm/errs"
)

// Annotation names
const (
	AnnotationPrimary      = "primary"
	AnnotationOrderBy      = "order_by"
	AnnotationWhere        = "where"
	AnnotationRecursionCap = "recursion_cap"
)

func applyEntityAnnotations(e *Entity, annotations []Annotation) error {
	for _, a := range annotations {
		switch a.Name {
		case AnnotationOrderBy:
			spec, err := parseOrderBy(a)
			if err != nil {
				return fmt.Errorf("entity %s: %w", e.Name, err)
			}
			e.DefaultSort = append(e.DefaultSort, spec)
		case AnnotationWhere:
			if e.DefaultFilter != "" {
				return fmt.Errorf("%w: entity %s declares more than one @where", errs.ErrInvalidArgument, e.Name)
			}
			expr, err := parseWhere(a)
			if err != nil {
				return fmt.Errorf("entity %s: %w", e.Name, err)
			}
			e.DefaultFilter = expr
		default:
			return fmt.Errorf("%w: entity %s: annotation @%s is not allowed on entities", errs.ErrInvalidArgument, e.Name, a.Name)
		}
	}
	return nil
}

func applyPropertyAnnotations(owner string, p *Property, annotations []Annotation) error {
	for _, a := range annotations {
		switch a.Name {
		case AnnotationPrimary:
			if len(a.Args) != 0 {
				return fmt.Errorf("%w: %s.%s: @primary takes no arguments", errs.ErrInvalidArgument, owner, p.Name)
			}
			p.PrimaryKey = true
		default:
			return fmt.Errorf("%w: %s.%s: annotation @%s is not allowed on properties", errs.ErrInvalidArgument, owner, p.Name, a.Name)
		}
	}
	return nil
}

func applyNavigationAnnotations(owner string, n *Navigation, annotations []Annotation) error {
	for _, a := range annotations {
		switch a.Name {
		case AnnotationRecursionCap:
			if len(a.Args) != 1 {
				return fmt.Errorf("%w: %s.%s: @recursion_cap takes exactly one argument", errs.ErrInvalidArgument, owner, n.Name)
			}
			levels, err := intArg(a.Args[0])
			if err != nil || levels < 1 {
				return fmt.Errorf("%w: %s.%s: @recursion_cap must be a positive integer", errs.ErrInvalidArgument, owner, n.Name)
			}
			n.RecursionCap = levels
		case AnnotationOrderBy, AnnotationWhere:
			if !n.IsCollection() {
				return fmt.Errorf("%w: %s.%s: @%s is only allowed on collection navigations", errs.ErrInvalidArgument, owner, n.Name, a.Name)
			}
			if a.Name == AnnotationOrderBy {
				spec, err := parseOrderBy(a)
				if err != nil {
					return fmt.Errorf("%s.%s: %w", owner, n.Name, err)
				}
				n.DefaultSort = append(n.DefaultSort, spec)
				continue
			}
			if n.DefaultFilter != "" {
				return fmt.Errorf("%w: %s.%s declares more than one @where", errs.ErrInvalidArgument, owner, n.Name)
			}
			expr, err := parseWhere(a)
			if err != nil {
				return fmt.Errorf("%s.%s: %w", owner, n.Name, err)
			}
			n.DefaultFilter = expr
		default:
			return fmt.Errorf("%w: %s.%s: annotation @%s is not allowed on navigations", errs.ErrInvalidArgument, owner, n.Name, a.Name)
		}
	}
	return nil
}

// parseOrderBy reads @order_by(path [, "asc"|"desc"])
func parseOrderBy(a Annotation) (SortSpec, error) {
	if len(a.Args) < 1 || len(a.Args) > 2 {
		return SortSpec{}, fmt.Errorf("%w: @order_by takes a path and an optional direction", errs.ErrInvalidArgument)
	}
	path, ok := a.Args[0].(string)
	if !ok || strings.TrimSpace(path) == "" {
		return SortSpec{}, fmt.Errorf("%w: @order_by path must be a non-empty string", errs.ErrInvalidArgument)
	}
	spec := SortSpec{Path: strings.TrimSpace(path)}
	if len(a.Args) == 2 {
		dir, ok := a.Args[1].(string)
		if !ok {
			return SortSpec{}, fmt.Errorf("%w: @order_by direction must be a string", errs.ErrInvalidArgument)
		}
		switch strings.ToLower(dir) {
		case "asc":
		case "desc":
			spec.Descending = true
		default:
			return SortSpec{}, fmt.Errorf("%w: @order_by direction must be asc or desc, got %q", errs.ErrInvalidArgument, dir)
		}
	}
	return spec, nil
}

// parseWhere reads @where(expr)
func parseWhere(a Annotation) (string, error) {
	if len(a.Args) != 1 {
		return "", fmt.Errorf("%w: @where takes exactly one expression", errs.ErrInvalidArgument)
	}
	expr, ok := a.Args[0].(string)
	if !ok || strings.TrimSpace(expr) == "" {
		return "", fmt.Errorf("%w: @where expression must be a non-empty string", errs.ErrInvalidArgument)
	}
	return strings.TrimSpace(expr), nil
}

// intArg accepts Go integers as well as the float64 values produced by
// decoding YAML or JSON catalogues.
func intArg(v interface{}) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		if n != math.Trunc(n) {
			return 0, fmt.Errorf("%v is not an integer", n)
		}
		return int(n), nil
	default:
		return 0, fmt.Errorf("%v is not an integer", v)
	}
}
