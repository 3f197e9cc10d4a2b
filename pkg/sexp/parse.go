package sexp

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

// SyntaxError describes malformed input at a byte offset.
type SyntaxError struct {
	Offset int
	Msg    string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("sexp: %s at offset %d", e.Msg, e.Offset)
}

// Parse reads exactly one form from input. Surrounding whitespace is allowed.
func Parse(input string) (Node, error) {
	p := &parser{input: input}
	p.skipSpace()
	if p.eof() {
		return Node{}, p.errorf("empty input")
	}
	node, err := p.parseExpr()
	if err != nil {
		return Node{}, err
	}
	p.skipSpace()
	if !p.eof() {
		return Node{}, p.errorf("unexpected trailing input")
	}
	return node, nil
}

// ParseAll reads every top-level form in input.
func ParseAll(input string) ([]Node, error) {
	p := &parser{input: input}
	var nodes []Node
	for {
		p.skipSpace()
		if p.eof() {
			return nodes, nil
		}
		node, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, node)
	}
}

type parser struct {
	input string
	pos   int
}

func (p *parser) eof() bool {
	return p.pos >= len(p.input)
}

func (p *parser) peek() rune {
	if p.eof() {
		return 0
	}
	r, _ := utf8.DecodeRuneInString(p.input[p.pos:])
	return r
}

func (p *parser) next() rune {
	if p.eof() {
		return 0
	}
	r, size := utf8.DecodeRuneInString(p.input[p.pos:])
	p.pos += size
	return r
}

func (p *parser) errorf(format string, args ...any) error {
	return &SyntaxError{Offset: p.pos, Msg: fmt.Sprintf(format, args...)}
}

func (p *parser) skipSpace() {
	for !p.eof() {
		r := p.peek()
		if r == ';' {
			for !p.eof() && p.peek() != '\n' {
				p.next()
			}
			continue
		}
		if !unicode.IsSpace(r) {
			return
		}
		p.next()
	}
}

func (p *parser) parseExpr() (Node, error) {
	p.skipSpace()
	if p.eof() {
		return Node{}, p.errorf("unexpected end of input")
	}

	switch r := p.peek(); {
	case r == '(':
		return p.parseList()
	case r == ')':
		return Node{}, p.errorf("unexpected ')'")
	case r == '"':
		return p.parseString()
	case r == '\'':
		p.next()
		return p.parseQuoted("quote")
	case strings.HasPrefix(p.input[p.pos:], "#'"):
		p.pos += 2
		return p.parseQuoted("function")
	case strings.HasPrefix(p.input[p.pos:], "#<"):
		return p.parseUnreadable()
	case r == '#':
		return p.parseDispatch()
	default:
		return p.parseAtom()
	}
}

func (p *parser) parseList() (Node, error) {
	start := p.pos
	p.next()
	items := []Node{}
	for {
		p.skipSpace()
		if p.eof() {
			return Node{}, &SyntaxError{Offset: start, Msg: "unterminated list"}
		}
		if p.peek() == ')' {
			p.next()
			return Lst(items...), nil
		}
		item, err := p.parseExpr()
		if err != nil {
			return Node{}, err
		}
		items = append(items, item)
	}
}

func (p *parser) parseQuoted(op string) (Node, error) {
	inner, err := p.parseExpr()
	if err != nil {
		return Node{}, err
	}
	return Lst(Sym(op), inner), nil
}

// parseString reads a Lisp string. A backslash escapes the following
// character verbatim; there are no C-style escapes.
func (p *parser) parseString() (Node, error) {
	start := p.pos
	p.next()
	var sb strings.Builder
	for !p.eof() {
		r := p.next()
		switch r {
		case '\\':
			if p.eof() {
				return Node{}, &SyntaxError{Offset: start, Msg: "unterminated string"}
			}
			sb.WriteRune(p.next())
		case '"':
			return Str(sb.String()), nil
		default:
			sb.WriteRune(r)
		}
	}
	return Node{}, &SyntaxError{Offset: start, Msg: "unterminated string"}
}

// parseDispatch reads #(...), #p"..." and similar objects as one node.
// Anything else starting with # (#\a, #:foo, #x1F, #*101) is an atom.
func (p *parser) parseDispatch() (Node, error) {
	start := p.pos
	i := start + 1
	for i < len(p.input) && isDispatchChar(p.input[i]) {
		i++
	}
	if i < len(p.input) && (p.input[i] == '(' || p.input[i] == '"') {
		prefix := p.input[start:i]
		p.pos = i
		inner, err := p.parseExpr()
		if err != nil {
			return Node{}, err
		}
		return Node{Kind: Dispatch, Text: prefix, List: []Node{inner}}, nil
	}
	if i == start+1 && (i == len(p.input) || unicode.IsSpace(rune(p.input[i])) || p.input[i] == ')') {
		return Node{}, p.errorf("lone #")
	}
	return p.parseAtom()
}

func isDispatchChar(b byte) bool {
	return b >= '0' && b <= '9' || b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z'
}

// parseUnreadable keeps #<...> objects as opaque symbols.
func (p *parser) parseUnreadable() (Node, error) {
	start := p.pos
	p.pos += 2
	depth := 1
	inString := false
	for !p.eof() {
		r := p.next()
		switch {
		case inString && r == '\\':
			p.next()
		case r == '"':
			inString = !inString
		case inString:
		case r == '<':
			depth++
		case r == '>':
			depth--
			if depth == 0 {
				return Sym(p.input[start:p.pos]), nil
			}
		}
	}
	return Node{}, &SyntaxError{Offset: start, Msg: "unterminated #< object"}
}

func (p *parser) parseAtom() (Node, error) {
	start := p.pos
	for !p.eof() {
		r := p.peek()
		if unicode.IsSpace(r) || r == '(' || r == ')' || r == '"' {
			break
		}
		p.next()
		// #\( and friends name a character, whatever it is.
		if r == '\\' && !p.eof() {
			p.next()
		}
		if r == '|' {
			for !p.eof() && p.next() != '|' {
			}
		}
	}
	text := p.input[start:p.pos]
	if text == "" {
		return Node{}, p.errorf("unexpected character %q", p.peek())
	}
	return atom(text), nil
}

func atom(text string) Node {
	if looksNumeric(text) {
		if n, err := strconv.ParseInt(text, 10, 64); err == nil {
			return Node{Kind: Integer, Text: text, Int: n}
		}
		if f, err := strconv.ParseFloat(floatExponent.Replace(text), 64); err == nil {
			return Node{Kind: Float, Text: text, Float: f}
		}
	}
	return Sym(text)
}

// Lisp writes double-float exponents with d, single-float with f.
var floatExponent = strings.NewReplacer("d", "e", "D", "e", "f", "e", "F", "e", "s", "e", "S", "e", "l", "e", "L", "e")

func looksNumeric(text string) bool {
	i := 0
	if text[0] == '+' || text[0] == '-' {
		i++
	}
	if i < len(text) && text[i] == '.' {
		i++
	}
	return i < len(text) && text[i] >= '0' && text[i] <= '9'
}
