// Package liquid is the storefront's Liquid-compatible template engine.
//
// Sources compile to node trees once and render many times. Filters and
// tags come from registries built when the Engine is created; an unknown
// tag fails compilation and an unknown filter fails the render that uses it.
package liquid

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"

	rerrors "github.com/conneroisu/storefront/internal/errors"
)

// ErrPartialNotFound is returned by a PartialLoader for a missing snippet.
var ErrPartialNotFound = errors.New("partial not found")

// PartialLoader resolves snippets for the render and include tags.
type PartialLoader interface {
	LoadPartial(ctx context.Context, name string) (*Template, error)
}

// AssetSink receives CSS and JavaScript emitted by asset tags.
type AssetSink interface {
	AddCSS(fragment string)
	AddJS(fragment string)
}

// RenderOptions carries the per-render collaborators.
type RenderOptions struct {
	Assets   AssetSink
	Partials PartialLoader
	// Sections holds pre-rendered HTML for the section tag, keyed by name.
	Sections map[string]string
	// SectionGroups holds pre-rendered HTML for the sections tag.
	SectionGroups map[string]string
}

// Template is a compiled source. It is immutable and safe for concurrent
// renders.
type Template struct {
	Name string
	Hash string
	root []node
	size int64
}

// Size approximates the memory held by the compiled tree for cache
// accounting.
func (t *Template) Size() int64 {
	return t.size
}

// Snippets returns the literal snippet names the template renders or
// includes.
func (t *Template) Snippets() []string {
	seen := make(map[string]bool)
	snippetNames(t.root, seen)
	return sortedKeys(seen)
}

// SectionRefs returns the names used by section and sections tags.
func (t *Template) SectionRefs() (sections, groups []string) {
	s, g := make(map[string]bool), make(map[string]bool)
	sectionRefs(t.root, s, g)
	return sortedKeys(s), sortedKeys(g)
}

// Engine compiles and renders templates.
type Engine struct {
	filters  *FilterRegistry
	tags     map[string]tagParser
	maxDepth int
}

// Option configures an Engine.
type Option func(*Engine)

// WithFilter registers or replaces a filter.
func WithFilter(name string, fn FilterFunc) Option {
	return func(e *Engine) { e.filters.Register(name, fn) }
}

// WithMaxDepth bounds render/include nesting.
func WithMaxDepth(n int) Option {
	return func(e *Engine) { e.maxDepth = n }
}

// NewEngine creates an engine with the standard tags and filters.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		filters:  StandardFilters(),
		tags:     standardTags(),
		maxDepth: 16,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Filters returns the engine's filter registry.
func (e *Engine) Filters() *FilterRegistry {
	return e.filters
}

// Compile compiles source. Syntax errors, including unknown tags, are
// reported as TemplateParseError naming the template.
func (e *Engine) Compile(name, source string) (*Template, error) {
	toks, err := tokenize(source)
	if err != nil {
		return nil, rerrors.NewTemplateParseError(name, err)
	}
	p := &parser{tags: e.tags, toks: toks}
	root, _, err := p.parseUntil(token{})
	if err != nil {
		return nil, rerrors.NewTemplateParseError(name, err)
	}
	return &Template{Name: name, Hash: SourceHash(source), root: root, size: int64(len(source)) * 3}, nil
}

// Render renders a compiled template against vars. vars is read only.
func (e *Engine) Render(ctx context.Context, t *Template, vars map[string]any, opts RenderOptions) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", rerrors.NewUpstreamTimeoutError("render "+t.Name, err)
	}

	c := newContext(ctx, e, vars, &opts)
	var b strings.Builder
	err := renderNodes(t.root, &b, c)
	switch {
	case err == nil, errors.Is(err, errBreak), errors.Is(err, errContinue):
		return b.String(), nil
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return "", rerrors.NewUpstreamTimeoutError("render "+t.Name, err)
	}

	var re *rerrors.RenderError
	if errors.As(err, &re) {
		return "", re.WithContext("template", t.Name)
	}
	return "", rerrors.NewRenderError("render "+t.Name, err)
}

// RenderString compiles and renders source in one step.
func (e *Engine) RenderString(ctx context.Context, source string, vars map[string]any, opts RenderOptions) (string, error) {
	t, err := e.Compile("inline", source)
	if err != nil {
		return "", err
	}
	return e.Render(ctx, t, vars, opts)
}

// SourceHash returns the content hash compiled templates are cached under.
func SourceHash(source string) string {
	sum := sha256.Sum256([]byte(source))
	return hex.EncodeToString(sum[:12])
}
