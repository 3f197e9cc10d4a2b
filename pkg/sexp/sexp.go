// Package sexp reads the small s-expression subset emitted by Slynk/Swank:
// symbols and keywords, integers and floats, strings with backslash escapes,
// lists, quote shorthands, # dispatch objects such as #(1 2) and #p"/x",
// and unreadable #<...> objects.
package sexp

import (
	"strconv"
	"strings"
)

// Kind identifies what a Node holds.
type Kind int

const (
	Symbol Kind = iota
	String
	Integer
	Float
	List
	Dispatch // #(...), #p"...", #S(...): Text is the prefix, List holds the object
)

func (k Kind) String() string {
	switch k {
	case Symbol:
		return "symbol"
	case String:
		return "string"
	case Integer:
		return "integer"
	case Float:
		return "float"
	case List:
		return "list"
	case Dispatch:
		return "dispatch"
	default:
		return "unknown"
	}
}

// Node is one element of the parsed tree.
type Node struct {
	Kind  Kind
	Text  string // symbol name, string contents or numeric source text
	Int   int64
	Float float64
	List  []Node
}

// Constructors used by tests and by callers building forms.
func Sym(name string) Node     { return Node{Kind: Symbol, Text: name} }
func Str(s string) Node        { return Node{Kind: String, Text: s} }
func Int(n int64) Node         { return Node{Kind: Integer, Int: n, Text: strconv.FormatInt(n, 10)} }
func Lst(items ...Node) Node   { return Node{Kind: List, List: items} }
func (n Node) IsList() bool    { return n.Kind == List }
func (n Node) IsString() bool  { return n.Kind == String }
func (n Node) IsSymbol() bool  { return n.Kind == Symbol }
func (n Node) IsInteger() bool { return n.Kind == Integer }
func (n Node) Len() int        { return len(n.List) }
func (n Node) IsKeyword() bool { return n.Kind == Symbol && strings.HasPrefix(n.Text, ":") }

// IsNil reports whether n is the symbol nil or the empty list.
func (n Node) IsNil() bool {
	switch n.Kind {
	case Symbol:
		return strings.EqualFold(n.Text, "nil")
	case List:
		return len(n.List) == 0
	}
	return false
}

// IsTrue reports Lisp truthiness.
func (n Node) IsTrue() bool {
	return !n.IsNil()
}

// Is reports whether n is the symbol name, compared case-insensitively.
func (n Node) Is(name string) bool {
	return n.Kind == Symbol && strings.EqualFold(n.Text, name)
}

// Nth returns the i-th list element.
func (n Node) Nth(i int) (Node, bool) {
	if n.Kind != List || i < 0 || i >= len(n.List) {
		return Node{}, false
	}
	return n.List[i], true
}

// Head returns the first element of a non-empty list.
func (n Node) Head() (Node, bool) {
	return n.Nth(0)
}

// HasHead reports whether n is a list starting with the symbol name.
func (n Node) HasHead(name string) bool {
	head, ok := n.Head()
	return ok && head.Is(name)
}

// Get looks up key in a property list such as (:message "x" :severity :warning).
func (n Node) Get(key string) (Node, bool) {
	if n.Kind != List {
		return Node{}, false
	}
	for i := 0; i+1 < len(n.List); i++ {
		if n.List[i].Is(key) {
			return n.List[i+1], true
		}
	}
	return Node{}, false
}

// Find returns the first sub-list of n whose head is the symbol key, as in
// (:location (:file "a.lisp") (:position 1) nil).
func (n Node) Find(key string) (Node, bool) {
	if n.Kind != List {
		return Node{}, false
	}
	for _, child := range n.List {
		if child.HasHead(key) {
			return child, true
		}
	}
	return Node{}, false
}

// Value returns string contents for strings and the printed form otherwise.
func (n Node) Value() string {
	if n.Kind == String {
		return n.Text
	}
	return n.String()
}

// String prints n back as an s-expression.
func (n Node) String() string {
	var sb strings.Builder
	n.write(&sb)
	return sb.String()
}

func (n Node) write(sb *strings.Builder) {
	switch n.Kind {
	case String:
		sb.WriteString(Quote(n.Text))
	case Dispatch:
		sb.WriteString(n.Text)
		for _, child := range n.List {
			child.write(sb)
		}
	case List:
		if len(n.List) == 2 && n.List[0].Kind == Symbol {
			switch n.List[0].Text {
			case "quote":
				sb.WriteByte('\'')
				n.List[1].write(sb)
				return
			case "function":
				sb.WriteString("#'")
				n.List[1].write(sb)
				return
			}
		}
		sb.WriteByte('(')
		for i, child := range n.List {
			if i > 0 {
				sb.WriteByte(' ')
			}
			child.write(sb)
		}
		sb.WriteByte(')')
	default:
		sb.WriteString(n.Text)
	}
}

// Quote renders s as a Lisp string literal, escaping backslashes and quotes.
func Quote(s string) string {
	var sb strings.Builder
	sb.Grow(len(s) + 2)
	sb.WriteByte('"')
	for _, r := range s {
		if r == '"' || r == '\\' {
			sb.WriteByte('\\')
		}
		sb.WriteRune(r)
	}
	sb.WriteByte('"')
	return sb.String()
}

// Bool renders b as t or nil.
func Bool(b bool) string {
	if b {
		return "t"
	}
	return "nil"
}

// StringOrNil renders s as a string literal, or nil when empty.
func StringOrNil(s string) string {
	if s == "" {
		return "nil"
	}
	return Quote(s)
}
