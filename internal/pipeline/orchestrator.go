// Package pipeline orchestrates a storefront render: resolve the store,
// load and compile its theme, build the context, render, inject assets and
// cache the page. Stages run in a fixed order and any failure aborts the
// render without partial output.
package pipeline

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/conneroisu/storefront/internal/assets"
	"github.com/conneroisu/storefront/internal/cache"
	"github.com/conneroisu/storefront/internal/errorpage"
	rerrors "github.com/conneroisu/storefront/internal/errors"
	"github.com/conneroisu/storefront/internal/logging"
	"github.com/conneroisu/storefront/internal/rendering"
	"github.com/conneroisu/storefront/internal/templates"
	"github.com/conneroisu/storefront/internal/tenant"
)

// Stage names, in execution order.
const (
	StageResolveStore     = "resolve-store"
	StageInitializeEngine = "initialize-engine"
	StageLoadTemplate     = "load-template"
	StageBuildContext     = "build-context"
	StageCompile          = "compile"
	StageRenderContent    = "render-content"
	StageInjectAssets     = "inject-assets"
	StageCacheStore       = "cache-store"
)

// StoreResolver maps a request host to its store.
type StoreResolver interface {
	ResolveStoreByDomain(ctx context.Context, host string) (*tenant.Store, error)
}

// TemplateSource loads and compiles store themes.
type TemplateSource interface {
	GetTemplate(ctx context.Context, store *tenant.Store, pageType string) (*templates.Template, error)
	CompileTemplate(t *templates.Template) (*templates.Compiled, error)
}

// ContextBuilder assembles rendering variables.
type ContextBuilder interface {
	BuildContext(ctx context.Context, store *tenant.Store, pageType string, params rendering.Params) (rendering.Context, error)
}

// Result is a successful render.
type Result struct {
	HTML       string
	StatusCode int
	CacheKey   string
	CacheTTL   time.Duration
	Cached     bool
}

// Response is a render outcome ready to be written to a client. Err holds
// the failure behind an error status and is never shown to visitors.
type Response struct {
	StatusCode int
	HTML       string
	CacheTTL   time.Duration
	Cached     bool
	Err        error
}

// Orchestrator runs the render pipeline.
type Orchestrator struct {
	resolver  StoreResolver
	templates TemplateSource
	builder   ContextBuilder
	renderer  Renderer
	cache     *cache.Manager
	logger    logging.Logger
	errors    *rerrors.ErrorHandler
	pipeline  *Pipeline
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger.
func WithLogger(l logging.Logger) Option {
	return func(o *Orchestrator) { o.logger = l.WithComponent("pipeline") }
}

// New wires an orchestrator and checks its stage contracts.
func New(resolver StoreResolver, tpl TemplateSource, builder ContextBuilder, renderer Renderer, cm *cache.Manager, opts ...Option) (*Orchestrator, error) {
	o := &Orchestrator{
		resolver:  resolver,
		templates: tpl,
		builder:   builder,
		renderer:  renderer,
		cache:     cm,
		logger:    logging.NewNop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.errors = rerrors.NewErrorHandler(o.logger)

	p, err := NewPipeline([]Field{FieldRequest}, o.stages()...)
	if err != nil {
		return nil, err
	}
	o.pipeline = p
	return o, nil
}

// Stages returns the stage names in execution order.
func (o *Orchestrator) Stages() []string {
	return o.pipeline.Stages()
}

func (o *Orchestrator) stages() []Stage {
	return []Stage{
		{
			Name:     StageResolveStore,
			Requires: []Field{FieldRequest},
			Provides: []Field{FieldStore, FieldGeneration},
			Run:      o.resolveStore,
		},
		{
			Name:     StageInitializeEngine,
			Requires: []Field{FieldStore},
			Provides: []Field{FieldAssets},
			Run:      initializeEngine,
		},
		{
			Name:     StageLoadTemplate,
			Requires: []Field{FieldRequest, FieldStore},
			Provides: []Field{FieldTemplate},
			Run:      o.loadTemplate,
		},
		{
			Name:     StageBuildContext,
			Requires: []Field{FieldRequest, FieldStore},
			Provides: []Field{FieldContext},
			Run:      o.buildContext,
		},
		{
			Name:     StageCompile,
			Requires: []Field{FieldTemplate},
			Provides: []Field{FieldCompiled},
			Run:      o.compile,
		},
		{
			Name:     StageRenderContent,
			Requires: []Field{FieldStore, FieldCompiled, FieldContext, FieldAssets},
			Provides: []Field{FieldContent},
			Run:      o.renderContent,
		},
		{
			Name:     StageInjectAssets,
			Requires: []Field{FieldContent, FieldAssets},
			Provides: []Field{FieldHTML},
			Run:      injectAssets,
		},
		{
			Name:     StageCacheStore,
			Requires: []Field{FieldRequest, FieldStore, FieldGeneration, FieldHTML},
			Provides: []Field{FieldCacheEntry},
			Run:      o.cacheStore,
		},
	}
}

func (o *Orchestrator) resolveStore(ctx context.Context, d Data) (Data, error) {
	store, err := o.resolver.ResolveStoreByDomain(ctx, d.Request().Domain)
	if err != nil {
		return d, err
	}
	// captured before any theme or catalog read so an invalidation during
	// this render blocks its cache write
	gen := o.cache.Generation(store.ID)

	if d, err = d.With(FieldStore, store); err != nil {
		return d, err
	}
	return d.With(FieldGeneration, gen)
}

func initializeEngine(_ context.Context, d Data) (Data, error) {
	return d.With(FieldAssets, assets.NewCollector())
}

func (o *Orchestrator) loadTemplate(ctx context.Context, d Data) (Data, error) {
	t, err := o.templates.GetTemplate(ctx, d.Store(), d.Request().PageType)
	if err != nil {
		return d, err
	}
	return d.With(FieldTemplate, t)
}

func (o *Orchestrator) buildContext(ctx context.Context, d Data) (Data, error) {
	req := d.Request()
	vars, err := o.builder.BuildContext(ctx, d.Store(), req.PageType, req.Params)
	if err != nil {
		return d, err
	}
	return d.With(FieldContext, vars)
}

func (o *Orchestrator) compile(_ context.Context, d Data) (Data, error) {
	c, err := o.templates.CompileTemplate(d.Template())
	if err != nil {
		return d, err
	}
	return d.With(FieldCompiled, c)
}

func (o *Orchestrator) renderContent(ctx context.Context, d Data) (Data, error) {
	out, err := o.renderer.RenderPage(ctx, Page{
		StoreID:  d.Store().ID,
		Template: d.Compiled(),
		Context:  d.Context(),
		Assets:   d.Assets(),
	})
	if err != nil {
		return d, rerrors.FromUpstream(StageRenderContent, err, func(err error) *rerrors.RenderError {
			return rerrors.NewRenderError("failed to render page", err)
		})
	}
	return d.With(FieldContent, out)
}

func injectAssets(_ context.Context, d Data) (Data, error) {
	return d.With(FieldHTML, assets.Inject(d.Content(), d.Assets()))
}

func (o *Orchestrator) cacheStore(_ context.Context, d Data) (Data, error) {
	key, ttl, ok := o.pageKey(d.Request(), d.Store())
	var entry CacheEntry
	if ok {
		entry.Key = key.String()
		entry.TTL = ttl
		entry.Stored = o.cache.SetIfGeneration(key, d.HTML(), ttl, d.Generation())
	}
	return d.With(FieldCacheEntry, entry)
}

// pageKey returns the page cache key of a request. ok is false when the
// page must not be cached: a zero TTL, an entity page without an entity,
// or a request carrying a visitor's cart.
func (o *Orchestrator) pageKey(req Request, store *tenant.Store) (cache.Key, time.Duration, bool) {
	if req.Params.CartToken != "" {
		return cache.Key{}, 0, false
	}
	ttl := o.cache.GetPageTTL(req.PageType)
	variant, ok := req.Params.Variant(req.PageType)
	if !ok || ttl <= 0 {
		return cache.Key{}, 0, false
	}
	return cache.PageKey(store.ID, req.PageType, variant), ttl, true
}

// lookupPage is the page cache check run right after resolve-store.
func (o *Orchestrator) lookupPage(d Data) (*Result, bool) {
	key, ttl, ok := o.pageKey(d.Request(), d.Store())
	if !ok {
		return nil, false
	}
	v, ok := o.cache.Get(key)
	if !ok {
		return nil, false
	}
	html, ok := v.(string)
	if !ok {
		return nil, false
	}
	return &Result{HTML: html, StatusCode: statusFor(d.Request().PageType), CacheKey: key.String(), CacheTTL: ttl, Cached: true}, true
}

// statusFor is the status a successful render of pageType is served with.
func statusFor(pageType string) int {
	if pageType == templates.PageNotFound {
		return http.StatusNotFound
	}
	return http.StatusOK
}

// Render renders pageType of the store serving domain.
func (o *Orchestrator) Render(ctx context.Context, domain, pageType string, params rendering.Params) (*Result, error) {
	req := Request{
		ID:       RequestIDFrom(ctx),
		Domain:   domain,
		PageType: templates.NormalizePageType(pageType),
		Params:   params,
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}

	logger := o.logger.With("request_id", req.ID, "domain", logging.SanitizeForLog(domain), "page_type", req.PageType)
	perf := logging.StartOperation(logger, "render")

	var cached *Result
	hook := func(_ context.Context, stage string, d Data) bool {
		if stage != StageResolveStore {
			return false
		}
		r, ok := o.lookupPage(d)
		cached = r
		return ok
	}

	d, err := o.pipeline.Run(ctx, NewData(req), hook)
	if err != nil {
		perf.EndWithError(ctx, err)
		o.errors.Handle(ctx, err, "request_id", req.ID, "page_type", req.PageType)
		return nil, err
	}
	if cached != nil {
		perf.End(ctx, "cached", true, "store_id", d.Store().ID)
		return cached, nil
	}

	entry := d.CacheEntry()
	perf.End(ctx, "cached", false, "store_id", d.Store().ID, "stored", entry.Stored, "bytes", len(d.HTML()))
	return &Result{
		HTML:       d.HTML(),
		StatusCode: statusFor(req.PageType),
		CacheKey:   entry.Key,
		CacheTTL:   entry.TTL,
	}, nil
}

// RenderResponse renders like Render but always yields a response. A
// not-found page of a resolved store is answered with the theme's 404
// page; other failures get the generic error page for their status.
func (o *Orchestrator) RenderResponse(ctx context.Context, domain, pageType string, params rendering.Params) *Response {
	res, err := o.Render(ctx, domain, pageType, params)
	if err == nil {
		return &Response{StatusCode: res.StatusCode, HTML: res.HTML, CacheTTL: res.CacheTTL, Cached: res.Cached}
	}

	status := rerrors.StatusCode(err)
	if status == http.StatusNotFound && storeResolved(err) && templates.NormalizePageType(pageType) != templates.PageNotFound {
		notFound, nfErr := o.Render(ctx, domain, templates.PageNotFound, rendering.Params{Path: params.Path, CartToken: params.CartToken})
		if nfErr == nil {
			return &Response{StatusCode: status, HTML: notFound.HTML, Err: err}
		}
	}

	page, perr := errorpage.Render(ctx, status, o.storeName(ctx, domain, err))
	if perr != nil {
		page = rerrors.PublicMessage(status)
	}
	return &Response{StatusCode: status, HTML: page, Err: err}
}

// storeName is the name shown on the error page of a failed render. It is
// empty unless the failure happened after the store was resolved.
func (o *Orchestrator) storeName(ctx context.Context, domain string, err error) string {
	if !storeResolved(err) {
		return ""
	}
	store, rerr := o.resolver.ResolveStoreByDomain(ctx, domain)
	if rerr != nil {
		return ""
	}
	return store.Name
}

func storeResolved(err error) bool {
	return !errors.Is(err, rerrors.ErrStoreNotFound) &&
		!errors.Is(err, rerrors.ErrDomainReserved) &&
		!errors.Is(err, rerrors.ErrStoreInactive)
}

type requestIDKey struct{}

// ContextWithRequestID attaches a request id for Render to log with.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDFrom returns the request id attached to ctx, if any.
func RequestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}
