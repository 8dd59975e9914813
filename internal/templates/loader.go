// Package templates loads store themes from the object store: JSON page
// descriptors, section sources with their schemas, layouts and snippets.
// Raw sources and compiled trees are cached through the cache manager.
package templates

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/conneroisu/storefront/internal/cache"
	rerrors "github.com/conneroisu/storefront/internal/errors"
	"github.com/conneroisu/storefront/internal/liquid"
	"github.com/conneroisu/storefront/internal/logging"
	"github.com/conneroisu/storefront/internal/storage"
	"github.com/conneroisu/storefront/internal/tenant"
)

// DefaultPrefix is the object store prefix themes live under.
const DefaultPrefix = "templates"

// maxSnippets bounds snippet discovery for a single page.
const maxSnippets = 256

// Loader fetches and assembles store templates.
type Loader struct {
	store   storage.Store
	cache   *cache.Manager
	engine  *liquid.Engine
	prefix  string
	timeout time.Duration
	logger  logging.Logger
	flight  singleflight.Group
}

// Option configures a Loader.
type Option func(*Loader)

// WithPrefix sets the object key prefix.
func WithPrefix(prefix string) Option {
	return func(l *Loader) { l.prefix = prefix }
}

// WithTimeout bounds each object store fetch.
func WithTimeout(d time.Duration) Option {
	return func(l *Loader) { l.timeout = d }
}

// WithLogger sets the logger.
func WithLogger(lg logging.Logger) Option {
	return func(l *Loader) { l.logger = lg.WithComponent("templates") }
}

// NewLoader creates a loader reading from st.
func NewLoader(st storage.Store, cm *cache.Manager, engine *liquid.Engine, opts ...Option) *Loader {
	l := &Loader{
		store:   st,
		cache:   cm,
		engine:  engine,
		prefix:  DefaultPrefix,
		timeout: 10 * time.Second,
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// ErrUnsafePath is the cause of a lookup for a theme file outside the
// store's own theme directory.
var ErrUnsafePath = errors.New("path escapes the store theme")

// ObjectKey returns the object store key of a theme file.
func (l *Loader) ObjectKey(storeID, file string) string {
	return path.Join(l.prefix, storeID, file)
}

// themeKey is ObjectKey for names read from theme files. ok is false when
// storeID or file would reach outside prefix/storeID/.
func (l *Loader) themeKey(storeID, file string) (string, bool) {
	if storeID == "" || storeID == "." || storeID == ".." || strings.ContainsAny(storeID, "/\\\x00") {
		return "", false
	}
	if file == "" || strings.HasPrefix(file, "/") || strings.ContainsAny(file, "\\\x00") {
		return "", false
	}
	for _, seg := range strings.Split(file, "/") {
		if seg == ".." {
			return "", false
		}
	}
	key := l.ObjectKey(storeID, file)
	if !strings.HasPrefix(key, path.Join(l.prefix, storeID)+"/") {
		return "", false
	}
	return key, true
}

// LoadSource returns a theme file as text.
func (l *Loader) LoadSource(ctx context.Context, storeID, file string) (string, error) {
	data, err := l.fetch(ctx, storeID, file)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// LoadAsset returns a file from the theme's assets directory.
func (l *Loader) LoadAsset(ctx context.Context, storeID, file string) ([]byte, error) {
	return l.fetch(ctx, storeID, path.Join("assets", path.Clean("/"+file)))
}

// fetch reads a file through the template cache. Concurrent misses for the
// same file share one object store read.
func (l *Loader) fetch(ctx context.Context, storeID, file string) ([]byte, error) {
	objectKey, ok := l.themeKey(storeID, file)
	if !ok {
		return nil, rerrors.NewTemplateNotFoundError(file, ErrUnsafePath)
	}

	key := cache.TemplateKey(storeID, file)
	if v, ok := l.cache.Get(key); ok {
		if data, ok := v.([]byte); ok {
			return data, nil
		}
	}

	gen := l.cache.Generation(storeID)
	v, err, _ := l.flight.Do(key.String(), func() (any, error) {
		fctx, cancel := context.WithTimeout(ctx, l.timeout)
		defer cancel()

		data, err := l.store.Get(fctx, objectKey)
		if err != nil {
			return nil, err
		}
		l.cache.SetIfGeneration(key, data, l.cache.Policy().Template, gen)
		return data, nil
	})
	if err != nil {
		return nil, fetchError(file, err)
	}
	return v.([]byte), nil
}

func fetchError(file string, err error) error {
	if errors.Is(err, storage.ErrNotFound) {
		return rerrors.NewTemplateNotFoundError(file, err)
	}
	return rerrors.FromUpstream("fetch "+file, err, func(err error) *rerrors.RenderError {
		return rerrors.NewRenderError("failed to load "+file, err)
	})
}

// Compile compiles a source, reusing the cached tree for identical content.
func (l *Loader) Compile(storeID, file, source string) (*liquid.Template, error) {
	key := cache.CompiledKey(storeID, file, liquid.SourceHash(source))
	if v, ok := l.cache.Get(key); ok {
		if t, ok := v.(*liquid.Template); ok {
			return t, nil
		}
	}
	t, err := l.engine.Compile(file, source)
	if err != nil {
		return nil, err
	}
	l.cache.Set(key, t, l.cache.Policy().Template)
	return t, nil
}

// GetTemplate loads everything needed to render pageType for a store.
func (l *Loader) GetTemplate(ctx context.Context, store *tenant.Store, pageType string) (*Template, error) {
	pageType = NormalizePageType(pageType)
	file := GetTemplatePath(pageType)

	raw, err := l.fetch(ctx, store.ID, file)
	if err != nil {
		return nil, err
	}
	desc, err := ParseDescriptor(raw)
	if err != nil {
		return nil, rerrors.NewTemplateParseError(file, err)
	}

	t := &Template{
		StoreID:        store.ID,
		PageType:       pageType,
		Path:           file,
		Raw:            raw,
		Descriptor:     desc,
		LayoutSections: make(map[string]Section),
		Groups:         make(map[string]*Group),
		Snippets:       make(map[string]Source),
	}

	if t.Sections, err = l.loadSections(ctx, store.ID, desc); err != nil {
		return nil, err
	}

	var roots []*liquid.Template
	if !desc.NoLayout {
		layout, err := l.loadLayout(ctx, t, desc.Layout)
		if err != nil {
			return nil, err
		}
		roots = append(roots, layout)
	}
	for _, s := range t.Sections {
		if s.Missing {
			continue
		}
		ct, err := l.Compile(store.ID, s.Path, s.Source)
		if err != nil {
			return nil, err
		}
		roots = append(roots, ct)
	}
	for _, s := range t.LayoutSections {
		if s.Missing {
			continue
		}
		ct, err := l.Compile(store.ID, s.Path, s.Source)
		if err != nil {
			return nil, err
		}
		roots = append(roots, ct)
	}
	for _, g := range t.Groups {
		for _, s := range g.Sections {
			if s.Missing {
				continue
			}
			ct, err := l.Compile(store.ID, s.Path, s.Source)
			if err != nil {
				return nil, err
			}
			roots = append(roots, ct)
		}
	}

	if err := l.loadSnippets(ctx, t, roots); err != nil {
		return nil, err
	}
	return t, nil
}

// loadSections fetches the sections of a descriptor concurrently,
// preserving descriptor order.
func (l *Loader) loadSections(ctx context.Context, storeID string, desc *Descriptor) ([]Section, error) {
	ids := desc.OrderedIDs()
	out := make([]Section, len(ids))

	g, gctx := errgroup.WithContext(ctx)
	for i, id := range ids {
		g.Go(func() error {
			s, err := l.loadSection(gctx, storeID, id, desc.Sections[id])
			if err != nil {
				return err
			}
			out[i] = s
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// loadSection fetches one section source and splits off its schema. A
// missing file yields a Section marked Missing.
func (l *Loader) loadSection(ctx context.Context, storeID, id string, cfg SectionConfig) (Section, error) {
	s := Section{ID: id, Config: cfg, Path: SectionPath(cfg.Type)}

	src, err := l.LoadSource(ctx, storeID, s.Path)
	if errors.Is(err, rerrors.ErrTemplateNotFound) {
		l.logger.Debug(ctx, "Section source missing", "store_id", storeID, "path", s.Path)
		s.Missing = true
		return s, nil
	}
	if err != nil {
		return s, err
	}

	schema, body, err := ExtractSchema(src)
	if err != nil {
		return s, rerrors.NewTemplateParseError(s.Path, err)
	}
	s.Schema = schema
	s.Source = body
	return s, nil
}

// loadLayout fetches the layout and the sections and groups it references.
func (l *Loader) loadLayout(ctx context.Context, t *Template, name string) (*liquid.Template, error) {
	file := LayoutPath(name)
	src, err := l.LoadSource(ctx, t.StoreID, file)
	if err != nil {
		return nil, err
	}
	t.Layout = &Source{Path: file, Source: src}

	compiled, err := l.Compile(t.StoreID, file, src)
	if err != nil {
		return nil, err
	}

	sections, groups := compiled.SectionRefs()
	for _, name := range sections {
		s, err := l.loadSection(ctx, t.StoreID, name, SectionConfig{Type: name})
		if err != nil {
			return nil, err
		}
		t.LayoutSections[name] = s
	}
	for _, name := range groups {
		g, err := l.loadGroup(ctx, t.StoreID, name)
		if err != nil {
			return nil, err
		}
		if g != nil {
			t.Groups[name] = g
		}
	}
	return compiled, nil
}

// loadGroup fetches a section group descriptor and its sections. A missing
// group returns nil.
func (l *Loader) loadGroup(ctx context.Context, storeID, name string) (*Group, error) {
	file := SectionGroupPath(name)
	raw, err := l.fetch(ctx, storeID, file)
	if errors.Is(err, rerrors.ErrTemplateNotFound) {
		l.logger.Debug(ctx, "Section group missing", "store_id", storeID, "path", file)
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	desc, err := ParseDescriptor(raw)
	if err != nil {
		return nil, rerrors.NewTemplateParseError(file, err)
	}
	sections, err := l.loadSections(ctx, storeID, desc)
	if err != nil {
		return nil, err
	}
	return &Group{Name: name, Descriptor: desc, Sections: sections}, nil
}

// loadSnippets walks the snippet references of roots, breadth first,
// loading each snippet once. Missing snippets are skipped; the render tag
// prints a placeholder for them.
func (l *Loader) loadSnippets(ctx context.Context, t *Template, roots []*liquid.Template) error {
	var queue []string
	for _, r := range roots {
		queue = append(queue, r.Snippets()...)
	}
	missing := make(map[string]bool)

	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]
		if _, ok := t.Snippets[name]; ok || missing[name] {
			continue
		}
		if len(t.Snippets) >= maxSnippets {
			return rerrors.NewRenderError(fmt.Sprintf("too many snippets referenced by %s", t.Path), nil)
		}

		file := SnippetPath(name)
		src, err := l.LoadSource(ctx, t.StoreID, file)
		if errors.Is(err, rerrors.ErrTemplateNotFound) {
			l.logger.Debug(ctx, "Snippet missing", "store_id", t.StoreID, "path", file)
			missing[name] = true
			continue
		}
		if err != nil {
			return err
		}
		t.Snippets[name] = Source{Path: file, Source: src}

		compiled, err := l.Compile(t.StoreID, file, src)
		if err != nil {
			return err
		}
		queue = append(queue, compiled.Snippets()...)
	}
	return nil
}

// CompileTemplate compiles every source of t. Trees come from the compiled
// cache when the source is unchanged.
func (l *Loader) CompileTemplate(t *Template) (*Compiled, error) {
	c := &Compiled{
		Template:       t,
		Sections:       make(map[string]*liquid.Template, len(t.Sections)),
		LayoutSections: make(map[string]*liquid.Template, len(t.LayoutSections)),
		Groups:         make(map[string]map[string]*liquid.Template, len(t.Groups)),
		Snippets:       make(map[string]*liquid.Template, len(t.Snippets)),
	}

	var err error
	if t.Layout != nil {
		if c.Layout, err = l.Compile(t.StoreID, t.Layout.Path, t.Layout.Source); err != nil {
			return nil, err
		}
	}
	if err := l.compileSections(t.StoreID, t.Sections, c.Sections); err != nil {
		return nil, err
	}
	for name, s := range t.LayoutSections {
		if s.Missing {
			continue
		}
		if c.LayoutSections[name], err = l.Compile(t.StoreID, s.Path, s.Source); err != nil {
			return nil, err
		}
	}
	for name, g := range t.Groups {
		trees := make(map[string]*liquid.Template, len(g.Sections))
		if err := l.compileSections(t.StoreID, g.Sections, trees); err != nil {
			return nil, err
		}
		c.Groups[name] = trees
	}
	for name, s := range t.Snippets {
		if c.Snippets[name], err = l.Compile(t.StoreID, s.Path, s.Source); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (l *Loader) compileSections(storeID string, sections []Section, into map[string]*liquid.Template) error {
	for _, s := range sections {
		if s.Missing {
			continue
		}
		ct, err := l.Compile(storeID, s.Path, s.Source)
		if err != nil {
			return err
		}
		into[s.ID] = ct
	}
	return nil
}
