// Package query provides the restricted filter and sort expression language,
// the query plan model and the composer that turns a parsed field selection
// into a plan a Store can execute.
package query

import (
	"strconv"
	"strings"

	"github.com/conduit-lang/flatquery/internal/orm/schema"
)

// Operator represents a comparison operator
type Operator int

const (
	OpEqual Operator = iota
	OpNotEqual
	OpGreaterThan
	OpGreaterThanOrEqual
	OpLessThan
	OpLessThanOrEqual
	OpIn
	OpNotIn
	OpLike
	OpNotLike
	OpILike
	OpIsNull
	OpIsNotNull
	OpBetween
)

// String returns the string representation of the operator
func (o Operator) String() string {
	switch o {
	case OpEqual:
		return "="
	case OpNotEqual:
		return "!="
	case OpGreaterThan:
		return ">"
	case OpGreaterThanOrEqual:
		return ">="
	case OpLessThan:
		return "<"
	case OpLessThanOrEqual:
		return "<="
	case OpIn:
		return "IN"
	case OpNotIn:
		return "NOT IN"
	case OpLike:
		return "LIKE"
	case OpNotLike:
		return "NOT LIKE"
	case OpILike:
		return "ILIKE"
	case OpIsNull:
		return "IS NULL"
	case OpIsNotNull:
		return "IS NOT NULL"
	case OpBetween:
		return "BETWEEN"
	default:
		return "UNKNOWN"
	}
}

// Arity returns the number of literal operands the operator takes; -1 means
// a non-empty list.
func (o Operator) Arity() int {
	switch o {
	case OpIsNull, OpIsNotNull:
		return 0
	case OpBetween:
		return 2
	case OpIn, OpNotIn:
		return -1
	default:
		return 1
	}
}

// Expr is a node of a parsed filter expression
type Expr interface {
	String() string
	exprNode()
}

// PathRef is a dotted field path. Relation and Property are filled in when
// the composer resolves the path against a plan.
type PathRef struct {
	Segments []string

	Relation *Relation
	Property *schema.Property
}

// String renders the path using canonical member names once resolved
func (p *PathRef) String() string {
	return strings.Join(p.Segments, ".")
}

// LiteralKind classifies literal values
type LiteralKind int

const (
	LitString LiteralKind = iota
	LitInt
	LitFloat
	LitBool
	LitNull
	LitNow
)

// Literal is a constant operand. Value holds a string, int64, float64 or
// bool; it is nil for null and now().
type Literal struct {
	Kind  LiteralKind
	Value interface{}
}

// String renders the literal in filter syntax
func (l *Literal) String() string {
	switch l.Kind {
	case LitString:
		return "'" + strings.ReplaceAll(l.Value.(string), "'", "''") + "'"
	case LitInt:
		return strconv.FormatInt(l.Value.(int64), 10)
	case LitFloat:
		// decimal notation with a point, the only float form the lexer reads
		text := strconv.FormatFloat(l.Value.(float64), 'f', -1, 64)
		if !strings.Contains(text, ".") {
			text += ".0"
		}
		return text
	case LitBool:
		return strconv.FormatBool(l.Value.(bool))
	case LitNull:
		return "null"
	case LitNow:
		return "now()"
	default:
		return "?"
	}
}

// Comparison applies an operator to a path and its literal operands
type Comparison struct {
	Left   *PathRef
	Op     Operator
	Values []*Literal
}

// String renders the comparison in filter syntax
func (c *Comparison) String() string {
	left := c.Left.String()
	switch c.Op {
	case OpIsNull, OpIsNotNull:
		return left + " " + c.Op.String()
	case OpBetween:
		return left + " BETWEEN " + c.Values[0].String() + " AND " + c.Values[1].String()
	case OpIn, OpNotIn:
		items := make([]string, len(c.Values))
		for i, v := range c.Values {
			items[i] = v.String()
		}
		return left + " " + c.Op.String() + " (" + strings.Join(items, ", ") + ")"
	default:
		return left + " " + c.Op.String() + " " + c.Values[0].String()
	}
}

// LogicalOp combines terms
type LogicalOp int

const (
	And LogicalOp = iota
	Or
)

// String returns the keyword of the operator
func (o LogicalOp) String() string {
	if o == Or {
		return "OR"
	}
	return "AND"
}

// Logical joins two or more terms with AND or OR
type Logical struct {
	Op    LogicalOp
	Terms []Expr
}

// String renders the terms, parenthesising OR groups nested inside AND
func (l *Logical) String() string {
	parts := make([]string, len(l.Terms))
	for i, term := range l.Terms {
		s := term.String()
		if inner, ok := term.(*Logical); ok && inner.Op == Or && l.Op == And {
			s = "(" + s + ")"
		}
		parts[i] = s
	}
	return strings.Join(parts, " "+l.Op.String()+" ")
}

// Not negates its operand
type Not struct {
	Operand Expr
}

// String renders the negation
func (n *Not) String() string {
	if _, ok := n.Operand.(*Logical); ok {
		return "NOT (" + n.Operand.String() + ")"
	}
	return "NOT " + n.Operand.String()
}

func (*PathRef) exprNode()    {}
func (*Literal) exprNode()    {}
func (*Comparison) exprNode() {}
func (*Logical) exprNode()    {}
func (*Not) exprNode()        {}

// Walk calls fn for every node of the expression in depth-first order
func Walk(e Expr, fn func(Expr)) {
	if e == nil {
		return
	}
	fn(e)
	switch n := e.(type) {
	case *Comparison:
		fn(n.Left)
		for _, v := range n.Values {
			fn(v)
		}
	case *Logical:
		for _, term := range n.Terms {
			Walk(term, fn)
		}
	case *Not:
		Walk(n.Operand, fn)
	}
}

// Paths returns every path referenced by the expression
func Paths(e Expr) []*PathRef {
	var paths []*PathRef
	Walk(e, func(n Expr) {
		if p, ok := n.(*PathRef); ok {
			paths = append(paths, p)
		}
	})
	return paths
}

// SortKey is one (path, direction) pair of a sort expression
type SortKey struct {
	Path       *PathRef
	Descending bool
}

// String renders the key as "path ASC|DESC"
func (k SortKey) String() string {
	if k.Descending {
		return k.Path.String() + " DESC"
	}
	return k.Path.String() + " ASC"
}
