package rendering

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/storefront/internal/catalog"
	rerrors "github.com/conneroisu/storefront/internal/errors"
	"github.com/conneroisu/storefront/internal/tenant"
)

func seeded(t *testing.T) (*tenant.Store, *catalog.Memory) {
	t.Helper()
	seed, err := tenant.LoadSeedFile("../tenant/testdata/stores.yml")
	require.NoError(t, err)
	dir := tenant.NewMemoryDirectory()
	cat := catalog.NewMemory()
	seed.Apply(dir, cat)
	store, err := dir.FindByID(context.Background(), "123")
	require.NoError(t, err)
	return store, cat
}

type staticSettings map[string]any

func (s staticSettings) ThemeSettings(context.Context, string) (map[string]any, error) {
	return s, nil
}

type brokenSettings struct{}

func (brokenSettings) ThemeSettings(context.Context, string) (map[string]any, error) {
	return nil, errors.New("bucket unavailable")
}

// slowMenus blocks menu reads until the context ends.
type slowMenus struct{ catalog.Provider }

func (slowMenus) Menus(ctx context.Context, _ string) ([]catalog.Menu, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

type brokenFeatured struct{ catalog.Provider }

func (brokenFeatured) FeaturedProducts(context.Context, string, int) ([]catalog.Product, error) {
	return nil, errors.New("connection refused")
}

func TestGlobalVariables(t *testing.T) {
	store, cat := seeded(t)
	b := NewBuilder(cat, WithSettings(staticSettings{"color_primary": "#0a7d52"}))

	vars, err := b.BuildContext(context.Background(), store, "index", Params{Path: "/"})
	require.NoError(t, err)

	shop := vars["shop"].(map[string]any)
	assert.Equal(t, "123", shop["id"])
	assert.Equal(t, "Mi Tienda", shop["name"])
	assert.Equal(t, "mitienda.com", shop["domain"])
	assert.Equal(t, "https://mitienda.com", shop["url"])
	assert.Equal(t, "COP", shop["currency"])
	assert.Equal(t, 0, shop["currency_decimal_places"])
	assert.Equal(t, "Tienda online de Mi Tienda", shop["description"])
	assert.Equal(t, vars["shop"], vars["store"])

	assert.Equal(t, "index", vars["template"])
	assert.Equal(t, "Mi Tienda", vars["page_title"])
	assert.Equal(t, 1, vars["current_page"])
	assert.Equal(t, "#0a7d52", vars["settings"].(map[string]any)["color_primary"])
	assert.Equal(t, 0, vars["cart"].(map[string]any)["item_count"])

	menu := vars["linklists"].(map[string]any)["main-menu"].(map[string]any)
	assert.Len(t, menu["links"], 2)

	products := vars["products"].([]any)
	require.Len(t, products, 2)
	assert.Equal(t, "camiseta-basica", products[0].(map[string]any)["handle"], "featured first")
	assert.Len(t, vars["collections"], 1)
}

func TestPageData(t *testing.T) {
	store, cat := seeded(t)
	b := NewBuilder(cat)
	ctx := context.Background()

	t.Run("product", func(t *testing.T) {
		vars, err := b.BuildContext(ctx, store, "product", Params{Handle: "camiseta-basica"})
		require.NoError(t, err)
		p := vars["product"].(map[string]any)
		assert.Equal(t, "Camiseta Básica", p["title"])
		assert.Equal(t, 45000.0, p["price"])
		assert.Equal(t, "/products/camiseta-basica", p["url"])
		assert.Len(t, p["collections"], 1)
		assert.Equal(t, "Camiseta Básica", vars["page_title"])
	})

	t.Run("product by id", func(t *testing.T) {
		vars, err := b.BuildContext(ctx, store, "product", Params{ID: "p2"})
		require.NoError(t, err)
		assert.Equal(t, "camiseta-estampada", vars["product"].(map[string]any)["handle"])
	})

	t.Run("collection", func(t *testing.T) {
		vars, err := b.BuildContext(ctx, store, "collection", Params{Handle: "camisetas"})
		require.NoError(t, err)
		c := vars["collection"].(map[string]any)
		assert.Equal(t, 2, c["products_count"])
		assert.Len(t, c["products"], 2)
	})

	t.Run("page", func(t *testing.T) {
		vars, err := b.BuildContext(ctx, store, "page", Params{Handle: "nosotros"})
		require.NoError(t, err)
		assert.Equal(t, "<p>Somos una tienda local.</p>", vars["page"].(map[string]any)["content"])
		assert.Equal(t, "Nosotros", vars["page_title"])
	})

	t.Run("search", func(t *testing.T) {
		vars, err := b.BuildContext(ctx, store, "search", Params{Query: " estampada "})
		require.NoError(t, err)
		s := vars["search"].(map[string]any)
		assert.Equal(t, "estampada", s["terms"])
		assert.Equal(t, true, s["performed"])
		assert.Equal(t, 1, s["results_count"])

		vars, err = b.BuildContext(ctx, store, "search", Params{})
		require.NoError(t, err)
		assert.Equal(t, false, vars["search"].(map[string]any)["performed"])
	})

	t.Run("policies", func(t *testing.T) {
		vars, err := b.BuildContext(ctx, store, "policies", Params{Handle: "refund_policy"})
		require.NoError(t, err)
		assert.Equal(t, "Política de reembolso", vars["policy"].(map[string]any)["title"])
		assert.Len(t, vars["policies"], 1)
	})

	t.Run("cart", func(t *testing.T) {
		vars, err := b.BuildContext(ctx, store, "cart", Params{CartToken: "abc"})
		require.NoError(t, err)
		cart := vars["cart"].(map[string]any)
		assert.Equal(t, 2, cart["item_count"])
		assert.Equal(t, 90000.0, cart["total_price"])
	})

	t.Run("unknown cart token", func(t *testing.T) {
		vars, err := b.BuildContext(ctx, store, "index", Params{CartToken: "zzz"})
		require.NoError(t, err)
		assert.Equal(t, 0, vars["cart"].(map[string]any)["item_count"])
	})

	t.Run("checkout", func(t *testing.T) {
		vars, err := b.BuildContext(ctx, store, "checkout", Params{CartToken: "abc"})
		require.NoError(t, err)
		co := vars["checkout"].(map[string]any)
		assert.Equal(t, "abc", co["token"])
		assert.Equal(t, "COP", co["currency"])
	})

	t.Run("404 has only globals", func(t *testing.T) {
		vars, err := b.BuildContext(ctx, store, "404", Params{})
		require.NoError(t, err)
		assert.NotContains(t, vars, "product")
		assert.Contains(t, vars, "shop")
	})
}

func TestMissingEntities(t *testing.T) {
	store, cat := seeded(t)
	b := NewBuilder(cat)
	ctx := context.Background()

	tests := []struct {
		name     string
		pageType string
		params   Params
	}{
		{"unknown product", "product", Params{Handle: "nope"}},
		{"product without handle", "product", Params{}},
		{"unknown collection", "collection", Params{Handle: "nope"}},
		{"unknown page", "page", Params{Handle: "nope"}},
		{"unknown policy", "policies", Params{Handle: "nope"}},
		{"checkout without cart", "checkout", Params{}},
		{"checkout with unknown cart", "checkout_start", Params{CartToken: "zzz"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := b.BuildContext(ctx, store, tt.pageType, tt.params)
			require.Error(t, err)
			assert.True(t, errors.Is(err, rerrors.ErrEntityNotFound), "%v", err)
			assert.Equal(t, 404, rerrors.StatusCode(err))
		})
	}
}

func TestProviderFailures(t *testing.T) {
	store, cat := seeded(t)

	t.Run("timeout", func(t *testing.T) {
		b := NewBuilder(slowMenus{cat}, WithTimeout(20*time.Millisecond))
		_, err := b.BuildContext(context.Background(), store, "index", Params{})
		assert.True(t, errors.Is(err, rerrors.ErrUpstreamTimeout), "%v", err)
		assert.Equal(t, 500, rerrors.StatusCode(err))
	})

	t.Run("provider error", func(t *testing.T) {
		b := NewBuilder(brokenFeatured{cat})
		_, err := b.BuildContext(context.Background(), store, "index", Params{})
		assert.True(t, errors.Is(err, rerrors.ErrContextBuild), "%v", err)
		assert.Equal(t, 500, rerrors.StatusCode(err))
	})

	t.Run("settings are optional", func(t *testing.T) {
		b := NewBuilder(cat, WithSettings(brokenSettings{}))
		vars, err := b.BuildContext(context.Background(), store, "index", Params{})
		require.NoError(t, err)
		assert.Empty(t, vars["settings"])
	})
}
