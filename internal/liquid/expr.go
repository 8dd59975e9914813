package liquid

import (
	"fmt"
	"strconv"
	"strings"
)

type exprTokenKind int

const (
	exIdent exprTokenKind = iota
	exString
	exNumber
	exDot
	exDotDot
	exLBracket
	exRBracket
	exLParen
	exRParen
	exPipe
	exColon
	exComma
	exOp
	exAssign
	exEOF
)

type exprToken struct {
	kind exprTokenKind
	text string
}

// scanExpr splits expression markup into tokens.
func scanExpr(src string) ([]exprToken, error) {
	var out []exprToken
	i := 0
	for i < len(src) {
		c := src[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++
		case c == '\'' || c == '"':
			end := strings.IndexByte(src[i+1:], c)
			if end < 0 {
				return nil, fmt.Errorf("unterminated string in %q", src)
			}
			out = append(out, exprToken{exString, src[i+1 : i+1+end]})
			i += end + 2
		case c == '.' && i+1 < len(src) && src[i+1] == '.':
			out = append(out, exprToken{exDotDot, ".."})
			i += 2
		case c == '.':
			out = append(out, exprToken{exDot, "."})
			i++
		case c == '[':
			out = append(out, exprToken{exLBracket, "["})
			i++
		case c == ']':
			out = append(out, exprToken{exRBracket, "]"})
			i++
		case c == '(':
			out = append(out, exprToken{exLParen, "("})
			i++
		case c == ')':
			out = append(out, exprToken{exRParen, ")"})
			i++
		case c == '|':
			out = append(out, exprToken{exPipe, "|"})
			i++
		case c == ':':
			out = append(out, exprToken{exColon, ":"})
			i++
		case c == ',':
			out = append(out, exprToken{exComma, ","})
			i++
		case c == '=' || c == '!' || c == '<' || c == '>':
			if i+1 < len(src) && src[i+1] == '=' {
				out = append(out, exprToken{exOp, src[i : i+2]})
				i += 2
			} else if c == '<' && i+1 < len(src) && src[i+1] == '>' {
				out = append(out, exprToken{exOp, "!="})
				i += 2
			} else if c == '=' {
				out = append(out, exprToken{exAssign, "="})
				i++
			} else if c == '!' {
				return nil, fmt.Errorf("unexpected %q in %q", c, src)
			} else {
				out = append(out, exprToken{exOp, string(c)})
				i++
			}
		case c == '-' || (c >= '0' && c <= '9'):
			j := i + 1
			for j < len(src) && (src[j] >= '0' && src[j] <= '9' || src[j] == '.' && !(j+1 < len(src) && src[j+1] == '.')) {
				j++
			}
			if c == '-' && j == i+1 {
				return nil, fmt.Errorf("unexpected '-' in %q", src)
			}
			out = append(out, exprToken{exNumber, src[i:j]})
			i = j
		case isIdentStart(c):
			j := i + 1
			for j < len(src) && isIdentPart(src[j]) {
				j++
			}
			// a trailing "?" is part of Ruby-style predicate names
			if j < len(src) && src[j] == '?' {
				j++
			}
			out = append(out, exprToken{exIdent, src[i:j]})
			i = j
		default:
			return nil, fmt.Errorf("unexpected %q in %q", c, src)
		}
	}
	return append(out, exprToken{kind: exEOF}), nil
}

func isIdentStart(c byte) bool {
	return c == '_' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || c >= '0' && c <= '9' || c == '-'
}

// expression is an evaluable Liquid expression.
type expression interface {
	eval(c *Context) (any, error)
}

type literal struct{ value any }

func (l literal) eval(*Context) (any, error) { return l.value, nil }

// pathStep is one ".name" or "[expr]" step of a variable path.
type pathStep struct {
	name string
	expr expression
}

type variable struct {
	root  string
	steps []pathStep
}

func (v *variable) eval(c *Context) (any, error) {
	val, ok := c.lookup(v.root)
	if !ok {
		return nil, nil
	}
	for _, step := range v.steps {
		if step.expr == nil {
			val, ok = property(val, step.name)
		} else {
			key, err := step.expr.eval(c)
			if err != nil {
				return nil, err
			}
			val, ok = index(val, key)
		}
		if !ok {
			return nil, nil
		}
	}
	return val, nil
}

// String returns the dotted path.
func (v *variable) String() string {
	var b strings.Builder
	b.WriteString(v.root)
	for _, s := range v.steps {
		if s.expr == nil {
			b.WriteByte('.')
			b.WriteString(s.name)
		} else {
			b.WriteString("[]")
		}
	}
	return b.String()
}

type rangeExpr struct {
	from, to expression
}

func (r rangeExpr) eval(c *Context) (any, error) {
	fv, err := r.from.eval(c)
	if err != nil {
		return nil, err
	}
	tv, err := r.to.eval(c)
	if err != nil {
		return nil, err
	}
	from, _ := toInt(fv)
	to, _ := toInt(tv)
	if to < from {
		return []any{}, nil
	}
	out := make([]any, 0, to-from+1)
	for i := from; i <= to; i++ {
		out = append(out, i)
	}
	return out, nil
}

type filterCall struct {
	name   string
	args   []expression
	kwargs map[string]expression
}

// filtered is an expression followed by a filter chain.
type filtered struct {
	base    expression
	filters []filterCall
}

func (f *filtered) eval(c *Context) (any, error) {
	val, err := f.base.eval(c)
	if err != nil {
		return nil, err
	}
	for _, call := range f.filters {
		val, err = c.applyFilter(call, val)
		if err != nil {
			return nil, err
		}
	}
	return val, nil
}

type comparison struct {
	op          string
	left, right expression
}

func (cmp *comparison) eval(c *Context) (any, error) {
	l, err := cmp.left.eval(c)
	if err != nil {
		return nil, err
	}
	r, err := cmp.right.eval(c)
	if err != nil {
		return nil, err
	}
	switch cmp.op {
	case "==":
		return equal(l, r), nil
	case "!=":
		return !equal(l, r), nil
	case "contains":
		return contains(l, r), nil
	}
	order, ok := compare(l, r)
	if !ok {
		return false, nil
	}
	switch cmp.op {
	case "<":
		return order < 0, nil
	case ">":
		return order > 0, nil
	case "<=":
		return order <= 0, nil
	case ">=":
		return order >= 0, nil
	}
	return nil, fmt.Errorf("unknown operator %q", cmp.op)
}

// logical evaluates and/or right to left, as Liquid does.
type logical struct {
	op          string
	left, right expression
}

func (l *logical) eval(c *Context) (any, error) {
	lv, err := l.left.eval(c)
	if err != nil {
		return nil, err
	}
	if l.op == "and" && !truthy(lv) {
		return false, nil
	}
	if l.op == "or" && truthy(lv) {
		return true, nil
	}
	rv, err := l.right.eval(c)
	if err != nil {
		return nil, err
	}
	return truthy(rv), nil
}

// exprParser is a recursive-descent parser over expression tokens.
type exprParser struct {
	toks []exprToken
	pos  int
	src  string
}

func newExprParser(src string) (*exprParser, error) {
	toks, err := scanExpr(src)
	if err != nil {
		return nil, err
	}
	return &exprParser{toks: toks, src: src}, nil
}

func (p *exprParser) peek() exprToken { return p.toks[p.pos] }

func (p *exprParser) next() exprToken {
	t := p.toks[p.pos]
	if t.kind != exEOF {
		p.pos++
	}
	return t
}

func (p *exprParser) atEnd() bool { return p.peek().kind == exEOF }

func (p *exprParser) accept(kind exprTokenKind) bool {
	if p.peek().kind == kind {
		p.next()
		return true
	}
	return false
}

func (p *exprParser) acceptIdent(name string) bool {
	if t := p.peek(); t.kind == exIdent && t.text == name {
		p.next()
		return true
	}
	return false
}

func (p *exprParser) expect(kind exprTokenKind, what string) (exprToken, error) {
	t := p.next()
	if t.kind != kind {
		return t, fmt.Errorf("expected %s in %q", what, p.src)
	}
	return t, nil
}

func (p *exprParser) ident() (string, error) {
	t, err := p.expect(exIdent, "identifier")
	return t.text, err
}

func (p *exprParser) done() error {
	if !p.atEnd() {
		return fmt.Errorf("unexpected %q in %q", p.peek().text, p.src)
	}
	return nil
}

// condition parses a boolean expression with and/or.
func (p *exprParser) condition() (expression, error) {
	left, err := p.comparison()
	if err != nil {
		return nil, err
	}
	if t := p.peek(); t.kind == exIdent && (t.text == "and" || t.text == "or") {
		p.next()
		right, err := p.condition()
		if err != nil {
			return nil, err
		}
		return &logical{op: t.text, left: left, right: right}, nil
	}
	return left, nil
}

func (p *exprParser) comparison() (expression, error) {
	left, err := p.primary()
	if err != nil {
		return nil, err
	}
	t := p.peek()
	if t.kind == exOp || t.kind == exIdent && t.text == "contains" {
		p.next()
		right, err := p.primary()
		if err != nil {
			return nil, err
		}
		return &comparison{op: t.text, left: left, right: right}, nil
	}
	return left, nil
}

// filteredExpr parses "primary | filter: args | filter".
func (p *exprParser) filteredExpr() (expression, error) {
	base, err := p.primary()
	if err != nil {
		return nil, err
	}
	var filters []filterCall
	for p.accept(exPipe) {
		call, err := p.filter()
		if err != nil {
			return nil, err
		}
		filters = append(filters, call)
	}
	if len(filters) == 0 {
		return base, nil
	}
	return &filtered{base: base, filters: filters}, nil
}

func (p *exprParser) filter() (filterCall, error) {
	name, err := p.ident()
	if err != nil {
		return filterCall{}, err
	}
	call := filterCall{name: name}
	if !p.accept(exColon) {
		return call, nil
	}
	for {
		if p.peek().kind == exIdent && p.toks[p.pos+1].kind == exColon {
			key := p.next().text
			p.next()
			val, err := p.primary()
			if err != nil {
				return call, err
			}
			if call.kwargs == nil {
				call.kwargs = make(map[string]expression)
			}
			call.kwargs[key] = val
		} else {
			arg, err := p.primary()
			if err != nil {
				return call, err
			}
			call.args = append(call.args, arg)
		}
		if !p.accept(exComma) {
			return call, nil
		}
	}
}

// primary parses a literal, a range or a variable path.
func (p *exprParser) primary() (expression, error) {
	t := p.next()
	switch t.kind {
	case exString:
		return literal{t.text}, nil
	case exNumber:
		if strings.Contains(t.text, ".") {
			f, err := strconv.ParseFloat(t.text, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid number %q", t.text)
			}
			return literal{f}, nil
		}
		n, err := strconv.Atoi(t.text)
		if err != nil {
			return nil, fmt.Errorf("invalid number %q", t.text)
		}
		return literal{n}, nil
	case exLParen:
		from, err := p.primary()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(exDotDot, "'..'"); err != nil {
			return nil, err
		}
		to, err := p.primary()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(exRParen, "')'"); err != nil {
			return nil, err
		}
		return rangeExpr{from: from, to: to}, nil
	case exLBracket:
		// ["key"] at the root
		key, err := p.primary()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(exRBracket, "']'"); err != nil {
			return nil, err
		}
		lit, ok := key.(literal)
		if !ok {
			return nil, fmt.Errorf("dynamic root lookup in %q", p.src)
		}
		return p.path(toString(lit.value))
	case exIdent:
		switch t.text {
		case "true":
			return literal{true}, nil
		case "false":
			return literal{false}, nil
		case "nil", "null":
			return literal{nil}, nil
		case "empty":
			return literal{emptyValue{}}, nil
		case "blank":
			return literal{blankValue{}}, nil
		}
		return p.path(t.text)
	}
	return nil, fmt.Errorf("unexpected %q in %q", t.text, p.src)
}

func (p *exprParser) path(root string) (expression, error) {
	v := &variable{root: root}
	for {
		switch {
		case p.accept(exDot):
			name, err := p.ident()
			if err != nil {
				return nil, err
			}
			v.steps = append(v.steps, pathStep{name: name})
		case p.accept(exLBracket):
			key, err := p.filteredExpr()
			if err != nil {
				return nil, err
			}
			if _, err := p.expect(exRBracket, "']'"); err != nil {
				return nil, err
			}
			v.steps = append(v.steps, pathStep{expr: key})
		default:
			return v, nil
		}
	}
}

// parseOutput parses the markup of an output or assign value.
func parseOutput(src string) (expression, error) {
	p, err := newExprParser(src)
	if err != nil {
		return nil, err
	}
	if p.atEnd() {
		return literal{nil}, nil
	}
	e, err := p.filteredExpr()
	if err != nil {
		return nil, err
	}
	return e, p.done()
}

// parseCondition parses the markup of an if/unless/elsif tag.
func parseCondition(src string) (expression, error) {
	p, err := newExprParser(src)
	if err != nil {
		return nil, err
	}
	e, err := p.condition()
	if err != nil {
		return nil, err
	}
	return e, p.done()
}
