package query

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/conduit-lang/flatquery/internal/orm/errs"
)

// ErrSyntax is returned for malformed filter or sort text
var ErrSyntax = errors.New("syntax error")

func syntaxErrorf(pos int, format string, args ...interface{}) error {
	return fmt.Errorf("%w: %w at position %d: %s", errs.ErrInvalidArgument, ErrSyntax, pos, fmt.Sprintf(format, args...))
}

// ParseFilter parses filter text into an expression tree.
//
//	filter    := or
//	or        := and { (OR | "||") and }
//	and       := unary { (AND | "&&") unary }
//	unary     := (NOT | "!") unary | "(" filter ")" | predicate
//	predicate := path cmp literal
//	           | path IS [NOT] NULL
//	           | path [NOT] IN "(" literal { "," literal } ")"
//	           | path [NOT] LIKE string | path ILIKE string
//	           | path BETWEEN literal AND literal
func ParseFilter(text string) (Expr, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: %w: filter is empty", errs.ErrInvalidArgument, ErrSyntax)
	}
	tokens, err := tokenize(text)
	if err != nil {
		return nil, err
	}
	p := &exprParser{tokens: tokens}
	expr, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if tok := p.peek(); tok.kind != tokEOF {
		return nil, syntaxErrorf(tok.pos, "unexpected %s", tok.describe())
	}
	return expr, nil
}

// ParseSort parses a comma-separated list of "path [ASC|DESC]" or "-path" keys
func ParseSort(text string) ([]SortKey, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: %w: sort is empty", errs.ErrInvalidArgument, ErrSyntax)
	}
	tokens, err := tokenize(text)
	if err != nil {
		return nil, err
	}
	p := &exprParser{tokens: tokens}

	var keys []SortKey
	for {
		key := SortKey{}
		minus := false
		if p.peek().kind == tokMinus {
			p.next()
			minus = true
			key.Descending = true
		}
		path, err := p.parsePath()
		if err != nil {
			return nil, err
		}
		key.Path = path

		if tok := p.peek(); tok.is("ASC") || tok.is("DESC") {
			if minus {
				return nil, syntaxErrorf(tok.pos, "'-' prefix cannot be combined with %s", strings.ToUpper(tok.text))
			}
			p.next()
			key.Descending = tok.is("DESC")
		}
		keys = append(keys, key)

		tok := p.next()
		switch tok.kind {
		case tokEOF:
			return keys, nil
		case tokComma:
			continue
		default:
			return nil, syntaxErrorf(tok.pos, "expected ',' or end of input, got %s", tok.describe())
		}
	}
}

type exprParser struct {
	tokens []token
	pos    int
}

func (p *exprParser) peek() token {
	return p.tokens[p.pos]
}

func (p *exprParser) next() token {
	tok := p.tokens[p.pos]
	if tok.kind != tokEOF {
		p.pos++
	}
	return tok
}

func (p *exprParser) expect(kind tokenKind) (token, error) {
	tok := p.next()
	if tok.kind != kind {
		return tok, syntaxErrorf(tok.pos, "expected %s, got %s", kind, tok.describe())
	}
	return tok, nil
}

func (p *exprParser) expectKeyword(keyword string) error {
	tok := p.next()
	if !tok.is(keyword) {
		return syntaxErrorf(tok.pos, "expected %s, got %s", keyword, tok.describe())
	}
	return nil
}

func (p *exprParser) parseOr() (Expr, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	terms := []Expr{left}
	for tok := p.peek(); tok.is("OR") || tok.kind == tokOrOr; tok = p.peek() {
		p.next()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		terms = append(terms, right)
	}
	if len(terms) == 1 {
		return left, nil
	}
	return &Logical{Op: Or, Terms: terms}, nil
}

func (p *exprParser) parseAnd() (Expr, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	terms := []Expr{left}
	for tok := p.peek(); tok.is("AND") || tok.kind == tokAndAnd; tok = p.peek() {
		p.next()
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		terms = append(terms, right)
	}
	if len(terms) == 1 {
		return left, nil
	}
	return &Logical{Op: And, Terms: terms}, nil
}

func (p *exprParser) parseUnary() (Expr, error) {
	tok := p.peek()
	switch {
	case tok.is("NOT") || tok.kind == tokBang:
		p.next()
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &Not{Operand: operand}, nil
	case tok.kind == tokLParen:
		p.next()
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(tokRParen); err != nil {
			return nil, err
		}
		return inner, nil
	default:
		return p.parsePredicate()
	}
}

func (p *exprParser) parsePath() (*PathRef, error) {
	first, err := p.expect(tokIdent)
	if err != nil {
		return nil, err
	}
	if isReserved(first.text) {
		return nil, syntaxErrorf(first.pos, "expected field path, got keyword %s", strings.ToUpper(first.text))
	}
	segments := []string{first.text}
	for p.peek().kind == tokDot {
		p.next()
		seg, err := p.expect(tokIdent)
		if err != nil {
			return nil, err
		}
		segments = append(segments, seg.text)
	}
	return &PathRef{Segments: segments}, nil
}

func (p *exprParser) parsePredicate() (Expr, error) {
	path, err := p.parsePath()
	if err != nil {
		return nil, err
	}

	tok := p.next()
	switch {
	case tok.kind == tokCompare:
		lit, err := p.parseLiteral()
		if err != nil {
			return nil, err
		}
		op := compareOperator(tok.text)
		if lit.Kind == LitNull {
			switch op {
			case OpEqual:
				return &Comparison{Left: path, Op: OpIsNull}, nil
			case OpNotEqual:
				return &Comparison{Left: path, Op: OpIsNotNull}, nil
			default:
				return nil, syntaxErrorf(tok.pos, "null can only be compared with = or !=")
			}
		}
		return &Comparison{Left: path, Op: op, Values: []*Literal{lit}}, nil

	case tok.is("IS"):
		op := OpIsNull
		if p.peek().is("NOT") {
			p.next()
			op = OpIsNotNull
		}
		if err := p.expectKeyword("NULL"); err != nil {
			return nil, err
		}
		return &Comparison{Left: path, Op: op}, nil

	case tok.is("NOT"):
		next := p.next()
		switch {
		case next.is("IN"):
			return p.parseIn(path, OpNotIn)
		case next.is("LIKE"):
			return p.parsePattern(path, OpNotLike)
		default:
			return nil, syntaxErrorf(next.pos, "expected IN or LIKE after NOT, got %s", next.describe())
		}

	case tok.is("IN"):
		return p.parseIn(path, OpIn)

	case tok.is("LIKE"):
		return p.parsePattern(path, OpLike)

	case tok.is("ILIKE"):
		return p.parsePattern(path, OpILike)

	case tok.is("BETWEEN"):
		low, err := p.parseLiteral()
		if err != nil {
			return nil, err
		}
		if err := p.expectKeyword("AND"); err != nil {
			return nil, err
		}
		high, err := p.parseLiteral()
		if err != nil {
			return nil, err
		}
		if low.Kind == LitNull || high.Kind == LitNull {
			return nil, syntaxErrorf(tok.pos, "BETWEEN bounds cannot be null")
		}
		return &Comparison{Left: path, Op: OpBetween, Values: []*Literal{low, high}}, nil

	default:
		return nil, syntaxErrorf(tok.pos, "expected operator after %s, got %s", path, tok.describe())
	}
}

func (p *exprParser) parseIn(path *PathRef, op Operator) (Expr, error) {
	if _, err := p.expect(tokLParen); err != nil {
		return nil, err
	}
	var values []*Literal
	for {
		lit, err := p.parseLiteral()
		if err != nil {
			return nil, err
		}
		if lit.Kind == LitNull {
			return nil, syntaxErrorf(p.tokens[p.pos-1].pos, "null is not allowed in %s lists", op)
		}
		values = append(values, lit)
		tok := p.next()
		if tok.kind == tokRParen {
			break
		}
		if tok.kind != tokComma {
			return nil, syntaxErrorf(tok.pos, "expected ',' or ')', got %s", tok.describe())
		}
	}
	return &Comparison{Left: path, Op: op, Values: values}, nil
}

func (p *exprParser) parsePattern(path *PathRef, op Operator) (Expr, error) {
	tok, err := p.expect(tokString)
	if err != nil {
		return nil, err
	}
	return &Comparison{Left: path, Op: op, Values: []*Literal{{Kind: LitString, Value: tok.text}}}, nil
}

func (p *exprParser) parseLiteral() (*Literal, error) {
	tok := p.next()
	switch tok.kind {
	case tokString:
		return &Literal{Kind: LitString, Value: tok.text}, nil
	case tokMinus:
		num, err := p.expect(tokNumber)
		if err != nil {
			return nil, err
		}
		return numberLiteral("-"+num.text, num.pos)
	case tokNumber:
		return numberLiteral(tok.text, tok.pos)
	case tokIdent:
		switch {
		case tok.is("true"):
			return &Literal{Kind: LitBool, Value: true}, nil
		case tok.is("false"):
			return &Literal{Kind: LitBool, Value: false}, nil
		case tok.is("null"):
			return &Literal{Kind: LitNull}, nil
		case tok.is("now"):
			if _, err := p.expect(tokLParen); err != nil {
				return nil, err
			}
			if _, err := p.expect(tokRParen); err != nil {
				return nil, err
			}
			return &Literal{Kind: LitNow}, nil
		}
	}
	return nil, syntaxErrorf(tok.pos, "expected literal, got %s", tok.describe())
}

func numberLiteral(text string, pos int) (*Literal, error) {
	if strings.Contains(text, ".") {
		f, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return nil, syntaxErrorf(pos, "invalid number %s", text)
		}
		return &Literal{Kind: LitFloat, Value: f}, nil
	}
	n, err := strconv.ParseInt(text, 10, 64)
	if err != nil {
		return nil, syntaxErrorf(pos, "invalid number %s", text)
	}
	return &Literal{Kind: LitInt, Value: n}, nil
}

func compareOperator(text string) Operator {
	switch text {
	case "=", "==":
		return OpEqual
	case "!=", "<>":
		return OpNotEqual
	case "<":
		return OpLessThan
	case "<=":
		return OpLessThanOrEqual
	case ">":
		return OpGreaterThan
	default:
		return OpGreaterThanOrEqual
	}
}

var reserved = map[string]bool{
	"and": true, "or": true, "not": true, "in": true, "like": true, "ilike": true,
	"is": true, "null": true, "between": true, "true": true, "false": true,
	"asc": true, "desc": true,
}

func isReserved(word string) bool {
	return reserved[strings.ToLower(word)]
}
