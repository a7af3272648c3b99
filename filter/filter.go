// Package filter parses and evaluates LDAP-style filter expressions such as
//
//	(&(osgi.os=linux)(|(version>=1.2)(!(debug=*))))
//
// Filters are evaluated against attribute maps. Attribute names are matched
// case-insensitively; values are compared according to the Go type stored in
// the map (strings, integers, floats, booleans, versions and slices thereof).
package filter

import (
	"fmt"
	"strings"
)

// Op identifies the kind of a filter node.
type Op int

const (
	OpAnd Op = iota
	OpOr
	OpNot
	OpEqual
	OpApprox
	OpGreaterEqual
	OpLessEqual
	OpPresent
	OpSubstring
)

// Filter is a parsed filter expression. The zero value is not valid; use Parse.
type Filter struct {
	Op       Op
	Attr     string
	Value    string
	Children []*Filter

	// Substrings holds the literal pieces of a substring match; an empty
	// first or last piece means the pattern starts or ends with '*'.
	Substrings []string

	raw string
}

// SyntaxError reports a malformed filter string.
type SyntaxError struct {
	Filter string
	Pos    int
	Msg    string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("filter %q: %s at offset %d", e.Filter, e.Msg, e.Pos)
}

// Parse parses a filter string. Leading and trailing whitespace is ignored.
func Parse(s string) (*Filter, error) {
	p := &parser{src: strings.TrimSpace(s)}
	f, err := p.parseFilter()
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	if p.pos != len(p.src) {
		return nil, p.errorf("unexpected trailing characters")
	}
	f.raw = p.src
	return f, nil
}

// MustParse parses a filter or panics. Use only for constants/tests.
func MustParse(s string) *Filter {
	f, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return f
}

// String returns the source text the filter was parsed from, or a normalized
// rendering for filters built by hand.
func (f *Filter) String() string {
	if f == nil {
		return ""
	}
	if f.raw != "" {
		return f.raw
	}
	var b strings.Builder
	f.write(&b)
	return b.String()
}

func (f *Filter) write(b *strings.Builder) {
	b.WriteByte('(')
	switch f.Op {
	case OpAnd, OpOr:
		if f.Op == OpAnd {
			b.WriteByte('&')
		} else {
			b.WriteByte('|')
		}
		for _, c := range f.Children {
			c.write(b)
		}
	case OpNot:
		b.WriteByte('!')
		f.Children[0].write(b)
	case OpPresent:
		b.WriteString(f.Attr)
		b.WriteString("=*")
	case OpSubstring:
		b.WriteString(f.Attr)
		b.WriteByte('=')
		for i, piece := range f.Substrings {
			if i > 0 {
				b.WriteByte('*')
			}
			b.WriteString(escape(piece))
		}
	default:
		b.WriteString(f.Attr)
		b.WriteString(opToken(f.Op))
		b.WriteString(escape(f.Value))
	}
	b.WriteByte(')')
}

func opToken(op Op) string {
	switch op {
	case OpApprox:
		return "~="
	case OpGreaterEqual:
		return ">="
	case OpLessEqual:
		return "<="
	default:
		return "="
	}
}

func escape(s string) string {
	if !strings.ContainsAny(s, `()*\`) {
		return s
	}
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '(', ')', '*', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Attributes returns the attribute names referenced anywhere in the filter,
// lower-cased and in first-seen order.
func (f *Filter) Attributes() []string {
	var out []string
	seen := make(map[string]bool)
	var walk func(*Filter)
	walk = func(n *Filter) {
		if n.Attr != "" {
			key := strings.ToLower(n.Attr)
			if !seen[key] {
				seen[key] = true
				out = append(out, key)
			}
		}
		for _, c := range n.Children {
			walk(c)
		}
	}
	walk(f)
	return out
}

type parser struct {
	src string
	pos int
}

func (p *parser) errorf(format string, args ...any) error {
	return &SyntaxError{Filter: p.src, Pos: p.pos, Msg: fmt.Sprintf(format, args...)}
}

func (p *parser) skipSpace() {
	for p.pos < len(p.src) && p.src[p.pos] == ' ' {
		p.pos++
	}
}

func (p *parser) parseFilter() (*Filter, error) {
	p.skipSpace()
	if p.pos >= len(p.src) || p.src[p.pos] != '(' {
		return nil, p.errorf("expected '('")
	}
	p.pos++
	f, err := p.parseComp()
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	if p.pos >= len(p.src) || p.src[p.pos] != ')' {
		return nil, p.errorf("expected ')'")
	}
	p.pos++
	return f, nil
}

func (p *parser) parseComp() (*Filter, error) {
	p.skipSpace()
	if p.pos >= len(p.src) {
		return nil, p.errorf("unexpected end of filter")
	}
	switch p.src[p.pos] {
	case '&', '|':
		op := OpAnd
		if p.src[p.pos] == '|' {
			op = OpOr
		}
		p.pos++
		var children []*Filter
		for {
			p.skipSpace()
			if p.pos >= len(p.src) || p.src[p.pos] != '(' {
				break
			}
			c, err := p.parseFilter()
			if err != nil {
				return nil, err
			}
			children = append(children, c)
		}
		if len(children) == 0 {
			return nil, p.errorf("empty filter list")
		}
		return &Filter{Op: op, Children: children}, nil
	case '!':
		p.pos++
		c, err := p.parseFilter()
		if err != nil {
			return nil, err
		}
		return &Filter{Op: OpNot, Children: []*Filter{c}}, nil
	default:
		return p.parseItem()
	}
}

func (p *parser) parseItem() (*Filter, error) {
	start := p.pos
	for p.pos < len(p.src) && !strings.ContainsRune("=<>~()", rune(p.src[p.pos])) {
		p.pos++
	}
	attr := strings.TrimSpace(p.src[start:p.pos])
	if attr == "" {
		return nil, p.errorf("missing attribute name")
	}
	if p.pos >= len(p.src) {
		return nil, p.errorf("missing operator")
	}

	op := OpEqual
	switch p.src[p.pos] {
	case '~':
		op = OpApprox
	case '>':
		op = OpGreaterEqual
	case '<':
		op = OpLessEqual
	case '=':
	default:
		return nil, p.errorf("invalid operator")
	}
	if op != OpEqual {
		p.pos++
		if p.pos >= len(p.src) || p.src[p.pos] != '=' {
			return nil, p.errorf("expected '='")
		}
	}
	p.pos++

	pieces, wildcard, err := p.parseValue()
	if err != nil {
		return nil, err
	}

	if op == OpEqual && wildcard {
		if len(pieces) == 2 && pieces[0] == "" && pieces[1] == "" {
			return &Filter{Op: OpPresent, Attr: attr}, nil
		}
		return &Filter{Op: OpSubstring, Attr: attr, Substrings: pieces}, nil
	}
	if wildcard {
		return nil, p.errorf("wildcard only allowed with '='")
	}
	return &Filter{Op: op, Attr: attr, Value: pieces[0]}, nil
}

// parseValue reads up to the closing ')' splitting on unescaped '*'.
func (p *parser) parseValue() ([]string, bool, error) {
	var pieces []string
	var cur strings.Builder
	wildcard := false
	for p.pos < len(p.src) {
		c := p.src[p.pos]
		switch c {
		case ')':
			pieces = append(pieces, cur.String())
			return pieces, wildcard, nil
		case '(':
			return nil, false, p.errorf("unescaped '(' in value")
		case '*':
			wildcard = true
			pieces = append(pieces, cur.String())
			cur.Reset()
			p.pos++
		case '\\':
			p.pos++
			if p.pos >= len(p.src) {
				return nil, false, p.errorf("dangling escape")
			}
			cur.WriteByte(p.src[p.pos])
			p.pos++
		default:
			cur.WriteByte(c)
			p.pos++
		}
	}
	return nil, false, p.errorf("unterminated value")
}
