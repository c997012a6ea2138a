package sqlstore

import (
	"errors"
	"fmt"
	"strings"

	"github.com/conduit-lang/flatquery/internal/orm/query"
	"github.com/conduit-lang/flatquery/internal/orm/schema"
)

// ErrUnsupportedPlan is returned by Prepare for plans the store cannot express
var ErrUnsupportedPlan = errors.New("plan cannot be expressed in SQL")

// renderer builds the SQL text and bind arguments for one plan
type renderer struct {
	dialect Dialect
	aliases map[*query.Relation]string
	args    []interface{}
	joins   int
}

func newRenderer(d Dialect) *renderer {
	return &renderer{
		dialect: d,
		aliases: make(map[*query.Relation]string),
	}
}

func unsupported(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrUnsupportedPlan, fmt.Sprintf(format, args...))
}

// render returns the SELECT statement for plan
func (r *renderer) render(plan *query.Plan) (string, error) {
	if plan == nil || plan.Root == nil {
		return "", unsupported("nil plan")
	}
	if len(plan.Columns) == 0 {
		return "", unsupported("empty projection")
	}

	relations := plan.Relations()
	for i, rel := range relations {
		r.aliases[rel] = fmt.Sprintf("t%d", i)
	}

	var b strings.Builder
	b.WriteString("SELECT ")
	for i, col := range plan.Columns {
		if i > 0 {
			b.WriteString(", ")
		}
		ref, err := r.column(col.Relation, col.Property)
		if err != nil {
			return "", err
		}
		b.WriteString(ref)
		b.WriteString(" AS ")
		b.WriteString(r.dialect.Quote(col.Alias))
	}

	b.WriteString(" FROM ")
	b.WriteString(r.table(plan.Root.Entity, r.aliases[plan.Root]))

	for _, rel := range relations[1:] {
		join, err := r.join(rel)
		if err != nil {
			return "", err
		}
		b.WriteString(join)
	}

	conditions := plan.Conditions()
	if len(conditions) > 0 {
		parts := make([]string, len(conditions))
		for i, cond := range conditions {
			sql, err := r.expr(cond.Expr)
			if err != nil {
				return "", err
			}
			if len(conditions) > 1 {
				sql = "(" + sql + ")"
			}
			parts[i] = sql
		}
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(parts, " AND "))
	}

	if len(plan.Sort) > 0 {
		parts := make([]string, len(plan.Sort))
		for i, key := range plan.Sort {
			ref, err := r.path(key.Path)
			if err != nil {
				return "", err
			}
			if key.Descending {
				parts[i] = ref + " DESC"
			} else {
				parts[i] = ref + " ASC"
			}
		}
		b.WriteString(" ORDER BY ")
		b.WriteString(strings.Join(parts, ", "))
	}

	if plan.Limit > 0 {
		b.WriteString(fmt.Sprintf(" LIMIT %d", plan.Limit))
	}

	return b.String(), nil
}

func (r *renderer) table(e *schema.Entity, alias string) string {
	return r.dialect.Quote(e.Table) + " " + alias
}

func (r *renderer) column(rel *query.Relation, prop *schema.Property) (string, error) {
	alias, ok := r.aliases[rel]
	if !ok || prop == nil {
		return "", unsupported("column is not bound to a relation of the plan")
	}
	return alias + "." + r.dialect.Quote(prop.Column), nil
}

func (r *renderer) path(ref *query.PathRef) (string, error) {
	if ref == nil || ref.Relation == nil || ref.Property == nil {
		return "", unsupported("unresolved path %v", ref)
	}
	return r.column(ref.Relation, ref.Property)
}

// join renders the JOIN clause that reaches rel from its parent
func (r *renderer) join(rel *query.Relation) (string, error) {
	nav := rel.Navigation
	parent := r.aliases[rel.Parent]
	alias := r.aliases[rel]
	q := r.dialect.Quote

	switch nav.Cardinality {
	case schema.ManyToOne:
		if nav.LocalKey == "" || nav.RemoteKey == "" {
			return "", unsupported("navigation %s has no key mapping", rel.Path)
		}
		return fmt.Sprintf(" LEFT JOIN %s ON %s.%s = %s.%s",
			r.table(rel.Entity, alias), alias, q(nav.RemoteKey), parent, q(nav.LocalKey)), nil

	case schema.OneToMany:
		if nav.LocalKey == "" || nav.RemoteKey == "" {
			return "", unsupported("navigation %s has no key mapping", rel.Path)
		}
		return fmt.Sprintf(" INNER JOIN %s ON %s.%s = %s.%s",
			r.table(rel.Entity, alias), alias, q(nav.RemoteKey), parent, q(nav.LocalKey)), nil

	case schema.ManyToMany:
		if nav.JoinTable == "" || nav.JoinLocalKey == "" || nav.JoinRemoteKey == "" ||
			nav.LocalKey == "" || nav.RemoteKey == "" {
			return "", unsupported("navigation %s has no join table mapping", rel.Path)
		}
		link := fmt.Sprintf("j%d", r.joins)
		r.joins++
		return fmt.Sprintf(" INNER JOIN %s %s ON %s.%s = %s.%s INNER JOIN %s ON %s.%s = %s.%s",
			q(nav.JoinTable), link, link, q(nav.JoinLocalKey), parent, q(nav.LocalKey),
			r.table(rel.Entity, alias), alias, q(nav.RemoteKey), link, q(nav.JoinRemoteKey)), nil

	default:
		return "", unsupported("navigation %s has unknown cardinality", rel.Path)
	}
}

func (r *renderer) bind(lit *query.Literal) (string, error) {
	switch lit.Kind {
	case query.LitNow:
		return r.dialect.Now(), nil
	case query.LitNull:
		return "", unsupported("null is only valid with IS [NOT] NULL")
	default:
		r.args = append(r.args, lit.Value)
		return r.dialect.Placeholder(len(r.args)), nil
	}
}

func (r *renderer) expr(e query.Expr) (string, error) {
	switch n := e.(type) {
	case *query.Comparison:
		return r.comparison(n)

	case *query.Logical:
		parts := make([]string, len(n.Terms))
		for i, term := range n.Terms {
			sql, err := r.expr(term)
			if err != nil {
				return "", err
			}
			if _, nested := term.(*query.Logical); nested {
				sql = "(" + sql + ")"
			}
			parts[i] = sql
		}
		return strings.Join(parts, " "+n.Op.String()+" "), nil

	case *query.Not:
		sql, err := r.expr(n.Operand)
		if err != nil {
			return "", err
		}
		return "NOT (" + sql + ")", nil

	default:
		return "", unsupported("expression %T is not a condition", e)
	}
}

func (r *renderer) comparison(c *query.Comparison) (string, error) {
	left, err := r.path(c.Left)
	if err != nil {
		return "", err
	}

	switch c.Op {
	case query.OpIsNull:
		return left + " IS NULL", nil
	case query.OpIsNotNull:
		return left + " IS NOT NULL", nil
	}

	if c.Op.Arity() > 0 && len(c.Values) != c.Op.Arity() {
		return "", unsupported("%s expects %d operands, got %d", c.Op, c.Op.Arity(), len(c.Values))
	}

	values := make([]string, len(c.Values))
	for i, v := range c.Values {
		if values[i], err = r.bind(v); err != nil {
			return "", err
		}
	}

	switch c.Op {
	case query.OpEqual:
		return left + " = " + values[0], nil
	case query.OpNotEqual:
		return left + " <> " + values[0], nil
	case query.OpGreaterThan, query.OpGreaterThanOrEqual, query.OpLessThan, query.OpLessThanOrEqual,
		query.OpLike, query.OpNotLike:
		return left + " " + c.Op.String() + " " + values[0], nil
	case query.OpILike:
		return r.dialect.ILike(left, values[0]), nil
	case query.OpBetween:
		return left + " BETWEEN " + values[0] + " AND " + values[1], nil
	case query.OpIn, query.OpNotIn:
		// IN with no operands matches nothing
		if len(values) == 0 {
			if c.Op == query.OpIn {
				return "1 = 0", nil
			}
			return "1 = 1", nil
		}
		return left + " " + c.Op.String() + " (" + strings.Join(values, ", ") + ")", nil
	default:
		return "", unsupported("operator %s", c.Op)
	}
}
