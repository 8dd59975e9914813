package liquid

import (
	"fmt"
	"strings"
)

// SyntaxError is a compile-time error with the source line it occurred on.
type SyntaxError struct {
	Line int
	Msg  string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("line %d: %s", e.Line, e.Msg)
}

// node is one element of a compiled template.
type node interface {
	render(w *strings.Builder, c *Context) error
}

type textNode string

func (t textNode) render(w *strings.Builder, _ *Context) error {
	w.WriteString(string(t))
	return nil
}

type outputNode struct {
	expr expression
}

func (o *outputNode) render(w *strings.Builder, c *Context) error {
	v, err := o.expr.eval(c)
	if err != nil {
		return err
	}
	w.WriteString(toString(v))
	return nil
}

// renderNodes renders a node list, stopping at the first error.
func renderNodes(nodes []node, w *strings.Builder, c *Context) error {
	for _, n := range nodes {
		if err := n.render(w, c); err != nil {
			return err
		}
	}
	return nil
}

// tagParser compiles one tag. Block tags consume their body from p.
type tagParser func(p *parser, tok token, args string) (node, error)

type parser struct {
	tags map[string]tagParser
	toks []token
	pos  int
}

func (p *parser) errorf(tok token, format string, args ...any) error {
	return &SyntaxError{Line: tok.line, Msg: fmt.Sprintf(format, args...)}
}

// parseUntil parses nodes until a tag named in stop. It returns the nodes
// and the stopping tag token. With no stop names it parses to end of input.
func (p *parser) parseUntil(opener token, stop ...string) ([]node, token, error) {
	var nodes []node
	for p.pos < len(p.toks) {
		tok := p.toks[p.pos]
		p.pos++

		switch tok.kind {
		case tokenText:
			if tok.value != "" {
				nodes = append(nodes, textNode(tok.value))
			}
		case tokenOutput:
			expr, err := parseOutput(tok.value)
			if err != nil {
				return nil, tok, p.errorf(tok, "%v", err)
			}
			nodes = append(nodes, &outputNode{expr: expr})
		case tokenTag:
			name, args := splitTag(tok.value)
			for _, s := range stop {
				if name == s {
					return nodes, tok, nil
				}
			}
			compile, ok := p.tags[name]
			if !ok {
				if strings.HasPrefix(name, "end") || name == "else" || name == "elsif" || name == "when" {
					return nil, tok, p.errorf(tok, "unexpected %q", name)
				}
				return nil, tok, p.errorf(tok, "unknown tag %q", name)
			}
			n, err := compile(p, tok, args)
			if err != nil {
				return nil, tok, err
			}
			if n != nil {
				nodes = append(nodes, n)
			}
		}
	}

	if len(stop) > 0 {
		return nil, opener, p.errorf(opener, "tag %q not closed, expected %s", opener.name(), strings.Join(stop, " or "))
	}
	return nodes, token{}, nil
}

// rawBody consumes the verbatim body and closing tag of a raw block.
func (p *parser) rawBody(opener token) (string, error) {
	if p.pos+1 >= len(p.toks) || p.toks[p.pos].kind != tokenText {
		return "", p.errorf(opener, "tag %q not closed", opener.name())
	}
	body := p.toks[p.pos].value
	p.pos += 2
	return body, nil
}
