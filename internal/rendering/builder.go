// Package rendering builds the variables a page renders against from the
// store record and catalog data.
package rendering

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/conneroisu/storefront/internal/catalog"
	rerrors "github.com/conneroisu/storefront/internal/errors"
	"github.com/conneroisu/storefront/internal/logging"
	"github.com/conneroisu/storefront/internal/tenant"
)

// Limits applied to catalog reads.
const (
	FeaturedLimit      = 8
	SearchLimit        = 50
	CollectionMaxItems = 250
)

// Context is the variable set of one render. It is never mutated after
// BuildContext returns.
type Context map[string]any

// SettingsSource supplies theme settings (config/settings_data.json).
type SettingsSource interface {
	ThemeSettings(ctx context.Context, storeID string) (map[string]any, error)
}

// Builder assembles rendering contexts.
type Builder struct {
	catalog  catalog.Provider
	settings SettingsSource
	timeout  time.Duration
	logger   logging.Logger
}

// Option configures a Builder.
type Option func(*Builder)

// WithSettings sets the theme settings source.
func WithSettings(s SettingsSource) Option {
	return func(b *Builder) { b.settings = s }
}

// WithTimeout bounds the catalog reads of one build.
func WithTimeout(d time.Duration) Option {
	return func(b *Builder) { b.timeout = d }
}

// WithLogger sets the logger.
func WithLogger(l logging.Logger) Option {
	return func(b *Builder) { b.logger = l.WithComponent("rendering") }
}

// NewBuilder creates a builder reading from provider.
func NewBuilder(provider catalog.Provider, opts ...Option) *Builder {
	b := &Builder{
		catalog: provider,
		timeout: 10 * time.Second,
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// BuildContext fetches what pageType needs and merges it with the global
// store variables.
func (b *Builder) BuildContext(ctx context.Context, store *tenant.Store, pageType string, params Params) (Context, error) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	shop := shopMap(store)
	vars := Context{
		"shop":             shop,
		"store":            shop,
		"page_type":        pageType,
		"template":         pageType,
		"page_title":       store.Name,
		"page_description": shop["description"],
		"current_page":     params.CurrentPage(),
		"request": map[string]any{
			"path":      params.Path,
			"host":      shop["domain"],
			"page_type": pageType,
			"locale":    store.Locale(),
		},
		"cart":      emptyCart(),
		"linklists": map[string]any{},
		"settings":  map[string]any{},
	}

	var (
		mu    sync.Mutex
		extra = make(map[string]any)
	)
	set := func(k string, v any) {
		mu.Lock()
		defer mu.Unlock()
		extra[k] = v
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		menus, err := b.catalog.Menus(gctx, store.ID)
		if err != nil {
			return providerError("menus", err)
		}
		set("linklists", linklists(menus))
		return nil
	})
	if b.settings != nil {
		g.Go(func() error {
			s, err := b.settings.ThemeSettings(gctx, store.ID)
			if err != nil {
				b.logger.Warn(gctx, err, "Theme settings unavailable", "store_id", store.ID)
				return nil
			}
			set("settings", s)
			return nil
		})
	}
	if params.CartToken != "" && pageType != "cart" && pageType != "checkout" && pageType != "checkout_start" {
		g.Go(func() error {
			cart, err := b.catalog.Cart(gctx, store.ID, params.CartToken)
			if errors.Is(err, catalog.ErrNotFound) {
				return nil
			}
			if err != nil {
				return providerError("cart", err)
			}
			set("cart", cartMap(cart))
			return nil
		})
	}
	g.Go(func() error {
		return b.pageData(gctx, store, pageType, params, set)
	})

	if err := g.Wait(); err != nil {
		if ctx.Err() != nil && !isRenderError(err) {
			return nil, rerrors.NewUpstreamTimeoutError("build context", ctx.Err())
		}
		return nil, err
	}

	for k, v := range extra {
		vars[k] = v
	}
	return vars, nil
}

func isRenderError(err error) bool {
	var re *rerrors.RenderError
	return errors.As(err, &re)
}

func providerError(what string, err error) error {
	return rerrors.FromUpstream("load "+what, err, func(err error) *rerrors.RenderError {
		return rerrors.NewContextBuildError("failed to load "+what, err)
	})
}

// entity maps a provider error for a required entity.
func entity(kind, ref string, err error) error {
	if errors.Is(err, catalog.ErrNotFound) {
		return rerrors.NewEntityNotFoundError(kind, ref)
	}
	return providerError(kind, err)
}

func (b *Builder) pageData(ctx context.Context, store *tenant.Store, pageType string, params Params, set func(string, any)) error {
	switch pageType {
	case "index":
		featured, err := b.catalog.FeaturedProducts(ctx, store.ID, FeaturedLimit)
		if err != nil {
			return providerError("featured products", err)
		}
		collections, err := b.catalog.Collections(ctx, store.ID)
		if err != nil {
			return providerError("collections", err)
		}
		set("products", productList(featured))
		set("collections", collectionList(collections))

	case "product":
		return b.productData(ctx, store, params, set)

	case "collection":
		return b.collectionData(ctx, store, params, set)

	case "page", "blog", "article":
		ref := params.Entity()
		if ref == "" {
			return rerrors.NewEntityNotFoundError(pageType, ref)
		}
		p, err := b.catalog.PageByHandle(ctx, store.ID, ref)
		if err != nil {
			return entity(pageType, ref, err)
		}
		m := pageMap(p)
		set("page", m)
		set(pageType, m)
		set("page_title", p.Title)

	case "search":
		var results []catalog.Product
		terms := strings.TrimSpace(params.Query)
		if terms != "" {
			var err error
			if results, err = b.catalog.SearchProducts(ctx, store.ID, terms, SearchLimit); err != nil {
				return providerError("search", err)
			}
		}
		list := productList(results)
		set("search", map[string]any{
			"terms":         terms,
			"performed":     terms != "",
			"results":       list,
			"results_count": len(list),
		})

	case "policies":
		policies := policyList(store.Policies)
		if h := params.Handle; h != "" {
			body, ok := store.Policies[h]
			if !ok {
				return rerrors.NewEntityNotFoundError("policy", h)
			}
			set("policy", map[string]any{"handle": h, "title": policyTitle(h), "body": body, "url": "/policies/" + h})
		}
		set("policies", policies)

	case "cart", "checkout", "checkout_start":
		return b.cartData(ctx, store, pageType, params, set)
	}
	return nil
}

func (b *Builder) productData(ctx context.Context, store *tenant.Store, params Params, set func(string, any)) error {
	var (
		p   *catalog.Product
		err error
	)
	switch {
	case params.Handle != "":
		p, err = b.catalog.ProductByHandle(ctx, store.ID, params.Handle)
	case params.ID != "":
		p, err = b.catalog.ProductByID(ctx, store.ID, params.ID)
	default:
		return rerrors.NewEntityNotFoundError("product", "")
	}
	if err != nil {
		return entity("product", params.Entity(), err)
	}

	collections := make([]any, 0, len(p.CollectionIDs))
	for _, cid := range p.CollectionIDs {
		c, err := b.catalog.CollectionByID(ctx, store.ID, cid)
		if errors.Is(err, catalog.ErrNotFound) {
			continue
		}
		if err != nil {
			return providerError("collection", err)
		}
		collections = append(collections, collectionMap(c))
	}

	m := productMap(p)
	m["collections"] = collections
	set("product", m)
	set("page_title", p.Title)
	return nil
}

func (b *Builder) collectionData(ctx context.Context, store *tenant.Store, params Params, set func(string, any)) error {
	var (
		c   *catalog.Collection
		err error
	)
	switch {
	case params.Handle != "":
		c, err = b.catalog.CollectionByHandle(ctx, store.ID, params.Handle)
	case params.ID != "":
		c, err = b.catalog.CollectionByID(ctx, store.ID, params.ID)
	default:
		return rerrors.NewEntityNotFoundError("collection", "")
	}
	if err != nil {
		return entity("collection", params.Entity(), err)
	}

	products, total, err := b.catalog.CollectionProducts(ctx, store.ID, c.ID, 0, CollectionMaxItems)
	if err != nil {
		return providerError("collection products", err)
	}

	m := collectionMap(c)
	m["products"] = productList(products)
	m["products_count"] = total
	set("collection", m)
	set("page_title", c.Title)
	return nil
}

func (b *Builder) cartData(ctx context.Context, store *tenant.Store, pageType string, params Params, set func(string, any)) error {
	var cart *catalog.Cart
	if params.CartToken != "" {
		c, err := b.catalog.Cart(ctx, store.ID, params.CartToken)
		switch {
		case err == nil:
			cart = c
		case !errors.Is(err, catalog.ErrNotFound):
			return providerError("cart", err)
		}
	}

	if pageType == "cart" {
		if cart != nil {
			set("cart", cartMap(cart))
		}
		return nil
	}

	if cart == nil || len(cart.Items) == 0 {
		return rerrors.NewEntityNotFoundError("cart", params.CartToken)
	}
	m := cartMap(cart)
	set("cart", m)
	set("checkout", map[string]any{
		"token":       cart.Token,
		"items":       m["items"],
		"item_count":  m["item_count"],
		"total_price": m["total_price"],
		"currency":    store.Currency(),
	})
	return nil
}
