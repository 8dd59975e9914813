package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/storefront/internal/catalog"
	"github.com/conneroisu/storefront/internal/tenant"
)

func openTest(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "storefront.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	seed, err := tenant.LoadSeedFile("../tenant/testdata/stores.yml")
	require.NoError(t, err)
	require.NoError(t, db.Import(context.Background(), seed))
	return db
}

func TestOpenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "storefront.db")
	for i := 0; i < 2; i++ {
		db, err := Open(path)
		require.NoError(t, err)
		require.NoError(t, db.Close())
	}
}

func TestDirectory(t *testing.T) {
	db := openTest(t)
	ctx := context.Background()

	s, err := db.FindByCustomDomain(ctx, "MiTienda.com")
	require.NoError(t, err)
	assert.Equal(t, "123", s.ID)
	assert.Equal(t, []string{"mitienda.com", "www.mitienda.com"}, s.CustomDomains)
	assert.Equal(t, 0, s.DecimalPlaces())
	assert.Equal(t, "COP", s.Currency())
	assert.True(t, s.Active)
	assert.Contains(t, s.Policies, "refund_policy")

	s, err = db.FindByPrimaryDomain(ctx, "other.storefront.local")
	require.NoError(t, err)
	assert.False(t, s.Active)

	_, err = db.FindByID(ctx, "nope")
	assert.ErrorIs(t, err, tenant.ErrNotFound)
	_, err = db.FindByCustomDomain(ctx, "other.storefront.local")
	assert.ErrorIs(t, err, tenant.ErrNotFound)
}

func TestPutStoreReplacesDomains(t *testing.T) {
	db := openTest(t)
	ctx := context.Background()

	require.NoError(t, db.PutStore(ctx, &tenant.Store{
		ID: "123", Name: "Renamed", PrimaryDomain: "mitienda.storefront.local",
		CustomDomains: []string{"nueva.com"}, Active: true,
	}))

	_, err := db.FindByCustomDomain(ctx, "mitienda.com")
	assert.ErrorIs(t, err, tenant.ErrNotFound)

	s, err := db.FindByCustomDomain(ctx, "nueva.com")
	require.NoError(t, err)
	assert.Equal(t, "Renamed", s.Name)

	// catalog rows survive a store update
	_, err = db.ProductByID(ctx, "123", "p1")
	assert.NoError(t, err)
}

func TestCatalog(t *testing.T) {
	db := openTest(t)
	ctx := context.Background()

	p, err := db.ProductByHandle(ctx, "123", "camiseta-basica")
	require.NoError(t, err)
	assert.Equal(t, "p1", p.ID)
	assert.Equal(t, []string{"c1"}, p.CollectionIDs)

	_, err = db.ProductByHandle(ctx, "123", "missing")
	assert.ErrorIs(t, err, catalog.ErrNotFound)

	featured, err := db.FeaturedProducts(ctx, "123", 1)
	require.NoError(t, err)
	require.Len(t, featured, 1)
	assert.Equal(t, "p1", featured[0].ID)

	found, err := db.SearchProducts(ctx, "123", "Estampada", 10)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "p2", found[0].ID)

	c, err := db.CollectionByHandle(ctx, "123", "camisetas")
	require.NoError(t, err)
	members, total, err := db.CollectionProducts(ctx, "123", c.ID, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	require.Len(t, members, 1)
	assert.Equal(t, "p2", members[0].ID)

	page, err := db.PageByHandle(ctx, "123", "nosotros")
	require.NoError(t, err)
	assert.Equal(t, "Nosotros", page.Title)

	menus, err := db.Menus(ctx, "123")
	require.NoError(t, err)
	require.Len(t, menus, 1)
	assert.Len(t, menus[0].Links, 2)

	cart, err := db.Cart(ctx, "123", "abc")
	require.NoError(t, err)
	assert.Equal(t, 2, cart.ItemCount())
}

func TestImportReplacesCatalog(t *testing.T) {
	db := openTest(t)
	ctx := context.Background()

	seed := &tenant.Seed{Stores: []tenant.SeedStore{{
		Store:   tenant.Store{ID: "123", PrimaryDomain: "mitienda.storefront.local", Active: true},
		Catalog: catalog.Data{Products: []catalog.Product{{ID: "p9", Handle: "nuevo", Title: "Nuevo"}}},
	}}}
	require.NoError(t, db.Import(ctx, seed))

	_, err := db.ProductByID(ctx, "123", "p1")
	assert.ErrorIs(t, err, catalog.ErrNotFound)
	p, err := db.ProductByID(ctx, "123", "p9")
	require.NoError(t, err)
	assert.Equal(t, "nuevo", p.Handle)
}
