package liquid

import (
	"context"
	"errors"
	"fmt"

	rerrors "github.com/conneroisu/storefront/internal/errors"
)

// Context is the state of one render. Variables passed to Render are never
// mutated; assignments land in the context's own scope.
type Context struct {
	ctx    context.Context
	engine *Engine
	opts   *RenderOptions

	vars    map[string]any
	assigns map[string]any
	scopes  []map[string]any

	counters map[string]int
	cycles   map[string]int
	depth    int
}

func newContext(ctx context.Context, e *Engine, vars map[string]any, opts *RenderOptions) *Context {
	if vars == nil {
		vars = map[string]any{}
	}
	return &Context{
		ctx:      ctx,
		engine:   e,
		opts:     opts,
		vars:     vars,
		assigns:  make(map[string]any),
		counters: make(map[string]int),
		cycles:   make(map[string]int),
	}
}

// Go returns the request context of the render.
func (c *Context) Go() context.Context {
	return c.ctx
}

// Get resolves a top-level variable.
func (c *Context) Get(name string) any {
	v, _ := c.lookup(name)
	return v
}

// GetPath resolves a dotted path such as "shop.currency".
func (c *Context) GetPath(root string, keys ...string) any {
	v, ok := c.lookup(root)
	for _, k := range keys {
		if !ok {
			return nil
		}
		v, ok = property(v, k)
	}
	if !ok {
		return nil
	}
	return v
}

func (c *Context) lookup(name string) (any, bool) {
	for i := len(c.scopes) - 1; i >= 0; i-- {
		if v, ok := c.scopes[i][name]; ok {
			return v, true
		}
	}
	if v, ok := c.assigns[name]; ok {
		return v, true
	}
	v, ok := c.vars[name]
	return v, ok
}

func (c *Context) push(scope map[string]any) { c.scopes = append(c.scopes, scope) }

func (c *Context) pop() { c.scopes = c.scopes[:len(c.scopes)-1] }

// isolated returns a child context for the render tag: it sees the render
// variables and its own arguments, but no assignments of the caller.
func (c *Context) isolated(args map[string]any) *Context {
	child := newContext(c.ctx, c.engine, c.vars, c.opts)
	child.depth = c.depth + 1
	for k, v := range args {
		child.assigns[k] = v
	}
	return child
}

func (c *Context) applyFilter(call filterCall, input any) (any, error) {
	fn, ok := c.engine.filters.Lookup(call.name)
	if !ok {
		return nil, rerrors.NewUnknownFilterError(call.name)
	}

	args := make([]any, len(call.args))
	for i, a := range call.args {
		v, err := a.eval(c)
		if err != nil {
			return nil, err
		}
		args[i] = v
	}
	var kwargs map[string]any
	if len(call.kwargs) > 0 {
		kwargs = make(map[string]any, len(call.kwargs))
		for k, a := range call.kwargs {
			v, err := a.eval(c)
			if err != nil {
				return nil, err
			}
			kwargs[k] = v
		}
	}

	out, err := fn(c, input, args, kwargs)
	if err != nil {
		var re *rerrors.RenderError
		if errors.As(err, &re) {
			return nil, err
		}
		return nil, rerrors.NewRenderError(fmt.Sprintf("filter %s failed", call.name), err)
	}
	return out, nil
}
