package query

import (
	"fmt"
	"strings"
	"unicode"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokIdent
	tokString
	tokNumber
	tokCompare
	tokLParen
	tokRParen
	tokComma
	tokDot
	tokMinus
	tokAndAnd
	tokOrOr
	tokBang
)

func (k tokenKind) String() string {
	switch k {
	case tokEOF:
		return "end of input"
	case tokIdent:
		return "identifier"
	case tokString:
		return "string"
	case tokNumber:
		return "number"
	case tokCompare:
		return "comparison operator"
	case tokLParen:
		return "'('"
	case tokRParen:
		return "')'"
	case tokComma:
		return "','"
	case tokDot:
		return "'.'"
	case tokMinus:
		return "'-'"
	case tokAndAnd:
		return "'&&'"
	case tokOrOr:
		return "'||'"
	case tokBang:
		return "'!'"
	default:
		return "token"
	}
}

type token struct {
	kind tokenKind
	text string
	pos  int
}

// is reports whether the token is the given keyword, ignoring case
func (t token) is(keyword string) bool {
	return t.kind == tokIdent && strings.EqualFold(t.text, keyword)
}

func (t token) describe() string {
	if t.kind == tokEOF {
		return t.kind.String()
	}
	return fmt.Sprintf("%q", t.text)
}

// tokenize splits input into tokens. Positions are byte offsets.
func tokenize(input string) ([]token, error) {
	var tokens []token
	i := 0
	for i < len(input) {
		c := rune(input[i])
		switch {
		case unicode.IsSpace(c):
			i++
		case c == '(':
			tokens = append(tokens, token{tokLParen, "(", i})
			i++
		case c == ')':
			tokens = append(tokens, token{tokRParen, ")", i})
			i++
		case c == ',':
			tokens = append(tokens, token{tokComma, ",", i})
			i++
		case c == '.':
			tokens = append(tokens, token{tokDot, ".", i})
			i++
		case c == '-':
			tokens = append(tokens, token{tokMinus, "-", i})
			i++
		case c == '&':
			if !strings.HasPrefix(input[i:], "&&") {
				return nil, syntaxErrorf(i, "unexpected '&'")
			}
			tokens = append(tokens, token{tokAndAnd, "&&", i})
			i += 2
		case c == '|':
			if !strings.HasPrefix(input[i:], "||") {
				return nil, syntaxErrorf(i, "unexpected '|'")
			}
			tokens = append(tokens, token{tokOrOr, "||", i})
			i += 2
		case c == '=' || c == '<' || c == '>' || c == '!':
			op := string(c)
			if i+1 < len(input) {
				two := input[i : i+2]
				if two == "==" || two == "!=" || two == "<>" || two == "<=" || two == ">=" {
					op = two
				}
			}
			if op == "!" {
				tokens = append(tokens, token{tokBang, op, i})
			} else {
				tokens = append(tokens, token{tokCompare, op, i})
			}
			i += len(op)
		case c == '\'' || c == '"':
			text, next, err := lexString(input, i)
			if err != nil {
				return nil, err
			}
			tokens = append(tokens, token{tokString, text, i})
			i = next
		case c >= '0' && c <= '9':
			start := i
			for i < len(input) && input[i] >= '0' && input[i] <= '9' {
				i++
			}
			if i+1 < len(input) && input[i] == '.' && input[i+1] >= '0' && input[i+1] <= '9' {
				i++
				for i < len(input) && input[i] >= '0' && input[i] <= '9' {
					i++
				}
			}
			tokens = append(tokens, token{tokNumber, input[start:i], start})
		case isIdentStart(input[i]):
			start := i
			for i < len(input) && (isIdentStart(input[i]) || (input[i] >= '0' && input[i] <= '9')) {
				i++
			}
			tokens = append(tokens, token{tokIdent, input[start:i], start})
		default:
			return nil, syntaxErrorf(i, "unexpected character %q", c)
		}
	}
	tokens = append(tokens, token{tokEOF, "", len(input)})
	return tokens, nil
}

// lexString reads a quoted string starting at input[start]. A doubled quote
// character inside the string stands for one quote.
func lexString(input string, start int) (string, int, error) {
	quote := input[start]
	var b strings.Builder
	i := start + 1
	for i < len(input) {
		if input[i] == quote {
			if i+1 < len(input) && input[i+1] == quote {
				b.WriteByte(quote)
				i += 2
				continue
			}
			return b.String(), i + 1, nil
		}
		b.WriteByte(input[i])
		i++
	}
	return "", 0, syntaxErrorf(start, "unterminated string")
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}
