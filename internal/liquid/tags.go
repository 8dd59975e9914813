package liquid

import (
	"errors"
	"fmt"
	"html"
	"sort"
	"strconv"
	"strings"
)

var (
	errBreak    = errors.New("break")
	errContinue = errors.New("continue")
)

// standardTags returns the built-in tag table.
func standardTags() map[string]tagParser {
	return map[string]tagParser{
		"if":         parseIf,
		"unless":     parseUnless,
		"case":       parseCase,
		"for":        parseFor,
		"assign":     parseAssign,
		"capture":    parseCapture,
		"increment":  parseCounter(1),
		"decrement":  parseCounter(-1),
		"comment":    parseRawDiscard,
		"schema":     parseRawDiscard,
		"raw":        parseRaw,
		"cycle":      parseCycle,
		"break":      parseLoopControl(errBreak),
		"continue":   parseLoopControl(errContinue),
		"echo":       parseEcho,
		"render":     parsePartial(true),
		"include":    parsePartial(false),
		"section":    parseSection,
		"sections":   parseSectionGroup,
		"style":      parseAsset(assetCSS),
		"stylesheet": parseAsset(assetCSS),
		"javascript": parseAsset(assetJS),
		"script":     parseAsset(assetJS),
		"form":       parseForm,
		"paginate":   parsePaginate,
	}
}

// if / elsif / else

type condBranch struct {
	cond expression
	body []node
}

type ifNode struct {
	branches []condBranch
	elseBody []node
	negate   bool
}

func (n *ifNode) render(w *strings.Builder, c *Context) error {
	for i, b := range n.branches {
		v, err := b.cond.eval(c)
		if err != nil {
			return err
		}
		ok := truthy(v)
		if i == 0 && n.negate {
			ok = !ok
		}
		if ok {
			return renderNodes(b.body, w, c)
		}
	}
	return renderNodes(n.elseBody, w, c)
}

func parseIf(p *parser, tok token, args string) (node, error) {
	return parseConditional(p, tok, args, "endif", false)
}

func parseUnless(p *parser, tok token, args string) (node, error) {
	return parseConditional(p, tok, args, "endunless", true)
}

func parseConditional(p *parser, tok token, args, end string, negate bool) (node, error) {
	n := &ifNode{negate: negate}
	cond, err := parseCondition(args)
	if err != nil {
		return nil, p.errorf(tok, "%v", err)
	}
	for {
		body, stop, err := p.parseUntil(tok, "elsif", "else", end)
		if err != nil {
			return nil, err
		}
		n.branches = append(n.branches, condBranch{cond: cond, body: body})

		name, stopArgs := splitTag(stop.value)
		switch name {
		case "elsif":
			cond, err = parseCondition(stopArgs)
			if err != nil {
				return nil, p.errorf(stop, "%v", err)
			}
		case "else":
			n.elseBody, _, err = p.parseUntil(tok, end)
			return n, err
		default:
			return n, nil
		}
	}
}

// case / when

type whenBranch struct {
	values []expression
	body   []node
}

type caseNode struct {
	subject  expression
	whens    []whenBranch
	elseBody []node
}

func (n *caseNode) render(w *strings.Builder, c *Context) error {
	subject, err := n.subject.eval(c)
	if err != nil {
		return err
	}
	for _, when := range n.whens {
		for _, e := range when.values {
			v, err := e.eval(c)
			if err != nil {
				return err
			}
			if equal(subject, v) {
				return renderNodes(when.body, w, c)
			}
		}
	}
	return renderNodes(n.elseBody, w, c)
}

func parseCase(p *parser, tok token, args string) (node, error) {
	subject, err := parseOutput(args)
	if err != nil {
		return nil, p.errorf(tok, "%v", err)
	}
	n := &caseNode{subject: subject}

	// anything before the first when is ignored
	_, stop, err := p.parseUntil(tok, "when", "else", "endcase")
	if err != nil {
		return nil, err
	}
	for {
		name, stopArgs := splitTag(stop.value)
		switch name {
		case "when":
			values, err := parseWhenValues(stopArgs)
			if err != nil {
				return nil, p.errorf(stop, "%v", err)
			}
			var body []node
			body, stop, err = p.parseUntil(tok, "when", "else", "endcase")
			if err != nil {
				return nil, err
			}
			n.whens = append(n.whens, whenBranch{values: values, body: body})
		case "else":
			n.elseBody, _, err = p.parseUntil(tok, "endcase")
			return n, err
		default:
			return n, nil
		}
	}
}

func parseWhenValues(src string) ([]expression, error) {
	ep, err := newExprParser(src)
	if err != nil {
		return nil, err
	}
	var values []expression
	for {
		v, err := ep.primary()
		if err != nil {
			return nil, err
		}
		values = append(values, v)
		if !ep.accept(exComma) && !ep.acceptIdent("or") {
			return values, ep.done()
		}
	}
}

// for

type forNode struct {
	variable   string
	collection expression
	limit      expression
	offset     expression
	reversed   bool
	body       []node
	elseBody   []node
}

func (n *forNode) render(w *strings.Builder, c *Context) error {
	v, err := n.collection.eval(c)
	if err != nil {
		return err
	}
	items := toSlice(v)

	if n.offset != nil {
		ov, err := n.offset.eval(c)
		if err != nil {
			return err
		}
		if off, ok := toInt(ov); ok && off > 0 {
			if off >= len(items) {
				items = nil
			} else {
				items = items[off:]
			}
		}
	}
	if n.limit != nil {
		lv, err := n.limit.eval(c)
		if err != nil {
			return err
		}
		if lim, ok := toInt(lv); ok && lim >= 0 && lim < len(items) {
			items = items[:lim]
		}
	}
	if n.reversed {
		rev := make([]any, len(items))
		for i, item := range items {
			rev[len(items)-1-i] = item
		}
		items = rev
	}

	if len(items) == 0 {
		return renderNodes(n.elseBody, w, c)
	}

	parent := c.Get("forloop")
	for i, item := range items {
		if err := c.ctx.Err(); err != nil {
			return err
		}
		c.push(map[string]any{
			n.variable: item,
			"forloop":  forloop(i, len(items), parent),
		})
		err := renderNodes(n.body, w, c)
		c.pop()
		if errors.Is(err, errBreak) {
			break
		}
		if err != nil && !errors.Is(err, errContinue) {
			return err
		}
	}
	return nil
}

func forloop(i, length int, parent any) map[string]any {
	return map[string]any{
		"index":      i + 1,
		"index0":     i,
		"rindex":     length - i,
		"rindex0":    length - i - 1,
		"first":      i == 0,
		"last":       i == length-1,
		"length":     length,
		"parentloop": parent,
	}
}

func parseFor(p *parser, tok token, args string) (node, error) {
	ep, err := newExprParser(args)
	if err != nil {
		return nil, p.errorf(tok, "%v", err)
	}
	n := &forNode{}
	if n.variable, err = ep.ident(); err != nil {
		return nil, p.errorf(tok, "%v", err)
	}
	if !ep.acceptIdent("in") {
		return nil, p.errorf(tok, "expected 'in' in for tag")
	}
	if n.collection, err = ep.primary(); err != nil {
		return nil, p.errorf(tok, "%v", err)
	}
	for !ep.atEnd() {
		ep.accept(exComma)
		attr, err := ep.ident()
		if err != nil {
			return nil, p.errorf(tok, "%v", err)
		}
		switch attr {
		case "reversed":
			n.reversed = true
		case "limit", "offset":
			if _, err := ep.expect(exColon, "':'"); err != nil {
				return nil, p.errorf(tok, "%v", err)
			}
			val, err := ep.primary()
			if err != nil {
				return nil, p.errorf(tok, "%v", err)
			}
			if attr == "limit" {
				n.limit = val
			} else {
				n.offset = val
			}
		default:
			return nil, p.errorf(tok, "unknown for attribute %q", attr)
		}
	}

	body, stop, err := p.parseUntil(tok, "else", "endfor")
	if err != nil {
		return nil, err
	}
	n.body = body
	if stop.name() == "else" {
		if n.elseBody, _, err = p.parseUntil(tok, "endfor"); err != nil {
			return nil, err
		}
	}
	return n, nil
}

type loopControl struct{ err error }

func (n loopControl) render(*strings.Builder, *Context) error { return n.err }

func parseLoopControl(err error) tagParser {
	return func(*parser, token, string) (node, error) {
		return loopControl{err: err}, nil
	}
}

// assign / capture / counters / echo

type assignNode struct {
	name string
	expr expression
}

func (n *assignNode) render(_ *strings.Builder, c *Context) error {
	v, err := n.expr.eval(c)
	if err != nil {
		return err
	}
	c.assigns[n.name] = v
	return nil
}

func parseAssign(p *parser, tok token, args string) (node, error) {
	name, value, ok := strings.Cut(args, "=")
	name = strings.TrimSpace(name)
	if !ok || name == "" {
		return nil, p.errorf(tok, "invalid assign %q", args)
	}
	expr, err := parseOutput(value)
	if err != nil {
		return nil, p.errorf(tok, "%v", err)
	}
	return &assignNode{name: name, expr: expr}, nil
}

type captureNode struct {
	name string
	body []node
}

func (n *captureNode) render(_ *strings.Builder, c *Context) error {
	var b strings.Builder
	if err := renderNodes(n.body, &b, c); err != nil {
		return err
	}
	c.assigns[n.name] = b.String()
	return nil
}

func parseCapture(p *parser, tok token, args string) (node, error) {
	name := strings.Trim(strings.TrimSpace(args), `'"`)
	if name == "" {
		return nil, p.errorf(tok, "capture requires a variable name")
	}
	body, _, err := p.parseUntil(tok, "endcapture")
	if err != nil {
		return nil, err
	}
	return &captureNode{name: name, body: body}, nil
}

type counterNode struct {
	name  string
	delta int
}

func (n *counterNode) render(w *strings.Builder, c *Context) error {
	v := c.counters[n.name]
	if n.delta < 0 {
		v--
		c.counters[n.name] = v
		w.WriteString(strconv.Itoa(v))
		return nil
	}
	w.WriteString(strconv.Itoa(v))
	c.counters[n.name] = v + 1
	return nil
}

func parseCounter(delta int) tagParser {
	return func(p *parser, tok token, args string) (node, error) {
		name := strings.TrimSpace(args)
		if name == "" {
			return nil, p.errorf(tok, "%s requires a variable name", tok.name())
		}
		return &counterNode{name: name, delta: delta}, nil
	}
}

func parseEcho(p *parser, tok token, args string) (node, error) {
	expr, err := parseOutput(args)
	if err != nil {
		return nil, p.errorf(tok, "%v", err)
	}
	return &outputNode{expr: expr}, nil
}

// raw / comment / schema

func parseRaw(p *parser, tok token, _ string) (node, error) {
	body, err := p.rawBody(tok)
	if err != nil {
		return nil, err
	}
	return textNode(body), nil
}

func parseRawDiscard(p *parser, tok token, _ string) (node, error) {
	_, err := p.rawBody(tok)
	return nil, err
}

// cycle

type cycleNode struct {
	group  string
	values []expression
}

func (n *cycleNode) render(w *strings.Builder, c *Context) error {
	i := c.cycles[n.group]
	c.cycles[n.group] = i + 1
	v, err := n.values[i%len(n.values)].eval(c)
	if err != nil {
		return err
	}
	w.WriteString(toString(v))
	return nil
}

func parseCycle(p *parser, tok token, args string) (node, error) {
	group := args
	values := args
	if head, rest, ok := strings.Cut(args, ":"); ok && !strings.Contains(head, ",") {
		group = strings.TrimSpace(head)
		values = rest
	}
	ep, err := newExprParser(values)
	if err != nil {
		return nil, p.errorf(tok, "%v", err)
	}
	n := &cycleNode{group: group}
	for {
		v, err := ep.primary()
		if err != nil {
			return nil, p.errorf(tok, "%v", err)
		}
		n.values = append(n.values, v)
		if !ep.accept(exComma) {
			break
		}
	}
	if err := ep.done(); err != nil {
		return nil, p.errorf(tok, "%v", err)
	}
	return n, nil
}

// render / include

type partialNode struct {
	name     expression
	isolated bool
	with     expression
	forEach  bool
	alias    string
	args     map[string]expression
}

func (n *partialNode) render(w *strings.Builder, c *Context) error {
	nv, err := n.name.eval(c)
	if err != nil {
		return err
	}
	name := toString(nv)

	if c.depth >= c.engine.maxDepth {
		return fmt.Errorf("partial %q: nesting too deep", name)
	}
	if c.opts.Partials == nil {
		w.WriteString(fmt.Sprintf("<!-- Snippet '%s' not found -->", name))
		return nil
	}
	tpl, err := c.opts.Partials.LoadPartial(c.ctx, name)
	if errors.Is(err, ErrPartialNotFound) {
		w.WriteString(fmt.Sprintf("<!-- Snippet '%s' not found -->", name))
		return nil
	}
	if err != nil {
		return err
	}

	args := make(map[string]any, len(n.args)+1)
	for k, e := range n.args {
		v, err := e.eval(c)
		if err != nil {
			return err
		}
		args[k] = v
	}
	alias := n.alias
	if alias == "" {
		alias = name
		if i := strings.LastIndex(alias, "/"); i >= 0 {
			alias = alias[i+1:]
		}
	}

	var subject any
	if n.with != nil {
		if subject, err = n.with.eval(c); err != nil {
			return err
		}
	}

	renderOne := func(scope map[string]any) error {
		if n.isolated {
			return renderNodes(tpl.root, w, c.isolated(scope))
		}
		c.push(scope)
		c.depth++
		err := renderNodes(tpl.root, w, c)
		c.depth--
		c.pop()
		return err
	}

	if n.forEach {
		items := toSlice(subject)
		for i, item := range items {
			scope := copyArgs(args)
			scope[alias] = item
			scope["forloop"] = forloop(i, len(items), nil)
			if err := renderOne(scope); err != nil && !errors.Is(err, errBreak) && !errors.Is(err, errContinue) {
				return err
			}
		}
		return nil
	}

	scope := copyArgs(args)
	if n.with != nil {
		scope[alias] = subject
	}
	if err := renderOne(scope); err != nil && !errors.Is(err, errBreak) && !errors.Is(err, errContinue) {
		return err
	}
	return nil
}

func copyArgs(args map[string]any) map[string]any {
	out := make(map[string]any, len(args)+2)
	for k, v := range args {
		out[k] = v
	}
	return out
}

func parsePartial(isolated bool) tagParser {
	return func(p *parser, tok token, args string) (node, error) {
		ep, err := newExprParser(args)
		if err != nil {
			return nil, p.errorf(tok, "%v", err)
		}
		n := &partialNode{isolated: isolated}
		if n.name, err = ep.primary(); err != nil {
			return nil, p.errorf(tok, "%v", err)
		}
		if _, ok := n.name.(literal); !ok && isolated {
			return nil, p.errorf(tok, "render requires a quoted snippet name")
		}

		if t := ep.peek(); t.kind == exIdent && (t.text == "with" || t.text == "for") {
			ep.next()
			n.forEach = t.text == "for"
			if n.with, err = ep.primary(); err != nil {
				return nil, p.errorf(tok, "%v", err)
			}
			if ep.acceptIdent("as") {
				if n.alias, err = ep.ident(); err != nil {
					return nil, p.errorf(tok, "%v", err)
				}
			}
		}

		for !ep.atEnd() {
			ep.accept(exComma)
			key, err := ep.ident()
			if err != nil {
				return nil, p.errorf(tok, "%v", err)
			}
			if _, err := ep.expect(exColon, "':'"); err != nil {
				return nil, p.errorf(tok, "%v", err)
			}
			val, err := ep.primary()
			if err != nil {
				return nil, p.errorf(tok, "%v", err)
			}
			if n.args == nil {
				n.args = make(map[string]expression)
			}
			n.args[key] = val
		}
		return n, nil
	}
}

// walkNodes calls visit for every node of the tree, parents first.
func walkNodes(nodes []node, visit func(node)) {
	for _, nd := range nodes {
		visit(nd)
		switch t := nd.(type) {
		case *ifNode:
			for _, b := range t.branches {
				walkNodes(b.body, visit)
			}
			walkNodes(t.elseBody, visit)
		case *caseNode:
			for _, wb := range t.whens {
				walkNodes(wb.body, visit)
			}
			walkNodes(t.elseBody, visit)
		case *forNode:
			walkNodes(t.body, visit)
			walkNodes(t.elseBody, visit)
		case *captureNode:
			walkNodes(t.body, visit)
		case *assetNode:
			walkNodes(t.body, visit)
		case *formNode:
			walkNodes(t.body, visit)
		case *paginateNode:
			walkNodes(t.body, visit)
		}
	}
}

// snippetNames returns the literal snippet names a node list references.
func snippetNames(nodes []node, seen map[string]bool) {
	walkNodes(nodes, func(nd node) {
		if t, ok := nd.(*partialNode); ok {
			if lit, ok := t.name.(literal); ok {
				seen[toString(lit.value)] = true
			}
		}
	})
}

// section / sections

type sectionNode struct {
	name  string
	group bool
}

func (n *sectionNode) render(w *strings.Builder, c *Context) error {
	src := c.opts.Sections
	label := "Section"
	if n.group {
		src = c.opts.SectionGroups
		label = "Section group"
	}
	if out, ok := src[n.name]; ok {
		w.WriteString(out)
		return nil
	}
	w.WriteString(fmt.Sprintf("<!-- %s '%s' not found -->", label, n.name))
	return nil
}

func parseSection(p *parser, tok token, args string) (node, error) {
	name := strings.Trim(strings.TrimSpace(args), `'"`)
	if name == "" {
		return nil, p.errorf(tok, "section requires a name")
	}
	return &sectionNode{name: name}, nil
}

func parseSectionGroup(p *parser, tok token, args string) (node, error) {
	name := strings.Trim(strings.TrimSpace(args), `'"`)
	if name == "" {
		return nil, p.errorf(tok, "sections requires a group name")
	}
	return &sectionNode{name: name, group: true}, nil
}

// sectionRefs returns the section and section group names a node list
// references.
func sectionRefs(nodes []node, sections, groups map[string]bool) {
	walkNodes(nodes, func(nd node) {
		t, ok := nd.(*sectionNode)
		if !ok {
			return
		}
		if t.group {
			groups[t.name] = true
		} else {
			sections[t.name] = true
		}
	})
}

// style / stylesheet / javascript / script

type assetKind int

const (
	assetCSS assetKind = iota
	assetJS
)

type assetNode struct {
	kind assetKind
	body []node
}

func (n *assetNode) render(w *strings.Builder, c *Context) error {
	var b strings.Builder
	if err := renderNodes(n.body, &b, c); err != nil {
		return err
	}
	content := strings.TrimSpace(b.String())
	if content == "" {
		return nil
	}

	sink := c.opts.Assets
	if sink == nil {
		// no collector: emit inline
		if n.kind == assetCSS {
			w.WriteString("<style>" + content + "</style>")
		} else {
			w.WriteString("<script>" + content + "</script>")
		}
		return nil
	}
	if n.kind == assetCSS {
		sink.AddCSS(content)
	} else {
		sink.AddJS(content)
	}
	return nil
}

func parseAsset(kind assetKind) tagParser {
	return func(p *parser, tok token, _ string) (node, error) {
		body, _, err := p.parseUntil(tok, "end"+tok.name())
		if err != nil {
			return nil, err
		}
		return &assetNode{kind: kind, body: body}, nil
	}
}

// form

var formActions = map[string]string{
	"contact":          "/contact",
	"newsletter":       "/contact",
	"product":          "/cart/add",
	"cart":             "/cart",
	"search":           "/search",
	"customer_login":   "/account/login",
	"login":            "/account/login",
	"create_customer":  "/account",
	"register":         "/account/register",
	"recover_password": "/account/recover",
	"localization":     "/localization",
}

var formClasses = map[string]string{
	"contact":          "contact-form",
	"newsletter":       "newsletter-form",
	"product":          "product-form",
	"login":            "login-form",
	"register":         "register-form",
	"recover_password": "recover-form",
}

type formNode struct {
	formType string
	object   expression
	attrs    map[string]expression
	body     []node
}

func (n *formNode) render(w *strings.Builder, c *Context) error {
	action, ok := formActions[n.formType]
	if !ok {
		action = "/contact"
	}
	class, ok := formClasses[n.formType]
	if !ok {
		class = "form"
	}
	attrs := map[string]string{
		"action":         action,
		"method":         "post",
		"class":          class,
		"id":             n.formType + "_form",
		"accept-charset": "UTF-8",
	}
	for k, e := range n.attrs {
		v, err := e.eval(c)
		if err != nil {
			return err
		}
		attrs[k] = toString(v)
	}

	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	w.WriteString("<form")
	for _, k := range keys {
		fmt.Fprintf(w, ` %s="%s"`, html.EscapeString(k), html.EscapeString(attrs[k]))
	}
	w.WriteString(">")
	fmt.Fprintf(w, `<input type="hidden" name="form_type" value="%s">`, html.EscapeString(n.formType))
	w.WriteString(`<input type="hidden" name="utf8" value="✓">`)

	if n.object != nil && n.formType == "product" {
		obj, err := n.object.eval(c)
		if err != nil {
			return err
		}
		if id, ok := property(obj, "id"); ok {
			fmt.Fprintf(w, `<input type="hidden" name="product_id" value="%s">`, html.EscapeString(toString(id)))
		}
	}

	if err := renderNodes(n.body, w, c); err != nil {
		return err
	}
	w.WriteString("</form>")
	return nil
}

func parseForm(p *parser, tok token, args string) (node, error) {
	ep, err := newExprParser(args)
	if err != nil {
		return nil, p.errorf(tok, "%v", err)
	}
	typ, err := ep.primary()
	if err != nil {
		return nil, p.errorf(tok, "%v", err)
	}
	lit, ok := typ.(literal)
	if !ok {
		return nil, p.errorf(tok, "form requires a quoted form type")
	}
	n := &formNode{formType: toString(lit.value)}

	for ep.accept(exComma) {
		if ep.peek().kind == exIdent && ep.toks[ep.pos+1].kind == exColon {
			key := ep.next().text
			ep.next()
			val, err := ep.primary()
			if err != nil {
				return nil, p.errorf(tok, "%v", err)
			}
			if n.attrs == nil {
				n.attrs = make(map[string]expression)
			}
			n.attrs[key] = val
			continue
		}
		if n.object, err = ep.primary(); err != nil {
			return nil, p.errorf(tok, "%v", err)
		}
	}
	if err := ep.done(); err != nil {
		return nil, p.errorf(tok, "%v", err)
	}

	if n.body, _, err = p.parseUntil(tok, "endform"); err != nil {
		return nil, err
	}
	return n, nil
}

// paginate

type paginateNode struct {
	path    *variable
	perPage expression
	body    []node
}

func (n *paginateNode) render(w *strings.Builder, c *Context) error {
	coll, err := n.path.eval(c)
	if err != nil {
		return err
	}
	pv, err := n.perPage.eval(c)
	if err != nil {
		return err
	}
	perPage, ok := toInt(pv)
	if !ok || perPage <= 0 {
		perPage = 20
	}

	items := toSlice(coll)
	total := len(items)
	pages := (total + perPage - 1) / perPage
	current, ok := toInt(c.Get("current_page"))
	if !ok || current < 1 {
		current = 1
	}

	offset := (current - 1) * perPage
	var page []any
	if offset < total {
		end := offset + perPage
		if end > total {
			end = total
		}
		page = items[offset:end]
	}

	base := toString(c.GetPath("request", "path"))
	link := func(title string, to int) map[string]any {
		return map[string]any{
			"title":   title,
			"url":     fmt.Sprintf("%s?page=%d", base, to),
			"is_link": true,
		}
	}
	var parts []any
	for i := 1; i <= pages; i++ {
		part := link(strconv.Itoa(i), i)
		if i == current {
			part["is_link"] = false
		}
		parts = append(parts, part)
	}
	paginate := map[string]any{
		"current_page":   current,
		"current_offset": offset,
		"items":          total,
		"page_size":      perPage,
		"pages":          pages,
		"parts":          parts,
		"previous":       nil,
		"next":           nil,
	}
	if current > 1 {
		paginate["previous"] = link("« Previous", current-1)
	}
	if current < pages {
		paginate["next"] = link("Next »", current+1)
	}

	scope := map[string]any{"paginate": paginate}
	root, _ := c.lookup(n.path.root)
	scope[n.path.root] = replacePath(root, n.path.steps, page)

	c.push(scope)
	defer c.pop()
	return renderNodes(n.body, w, c)
}

// replacePath returns a shallow copy of v with the value at steps replaced.
// Only named steps through maps are followed.
func replacePath(v any, steps []pathStep, value any) any {
	if len(steps) == 0 {
		return value
	}
	m, ok := v.(map[string]any)
	if !ok || steps[0].expr != nil {
		return v
	}
	out := make(map[string]any, len(m))
	for k, val := range m {
		out[k] = val
	}
	out[steps[0].name] = replacePath(m[steps[0].name], steps[1:], value)
	return out
}

func parsePaginate(p *parser, tok token, args string) (node, error) {
	ep, err := newExprParser(args)
	if err != nil {
		return nil, p.errorf(tok, "%v", err)
	}
	target, err := ep.primary()
	if err != nil {
		return nil, p.errorf(tok, "%v", err)
	}
	path, ok := target.(*variable)
	if !ok {
		return nil, p.errorf(tok, "paginate requires a variable")
	}
	if !ep.acceptIdent("by") {
		return nil, p.errorf(tok, "expected 'by' in paginate tag")
	}
	perPage, err := ep.primary()
	if err != nil {
		return nil, p.errorf(tok, "%v", err)
	}
	if err := ep.done(); err != nil {
		return nil, p.errorf(tok, "%v", err)
	}

	body, _, err := p.parseUntil(tok, "endpaginate")
	if err != nil {
		return nil, err
	}
	return &paginateNode{path: path, perPage: perPage, body: body}, nil
}
