package catalog

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seeded() *Memory {
	m := NewMemory()
	m.Put("s1", Data{
		Products: []Product{
			{ID: "p1", Handle: "red-shirt", Title: "Red Shirt", Tags: []string{"cotton"}, CollectionIDs: []string{"c1"}},
			{ID: "p2", Handle: "blue-shirt", Title: "Blue Shirt", Featured: true, CollectionIDs: []string{"c1"}},
			{ID: "p3", Handle: "mug", Title: "Mug", Description: "A ceramic mug"},
		},
		Collections: []Collection{{ID: "c1", Handle: "shirts", Title: "Shirts"}},
		Pages:       []Page{{ID: "pg1", Handle: "about", Title: "About"}},
		Menus:       []Menu{{Handle: "main-menu", Links: []Link{{Title: "Home", URL: "/"}}}},
		Carts:       []Cart{{Token: "t1", Items: []CartItem{{ProductID: "p1", Quantity: 2, Price: 10}, {ProductID: "p3", Quantity: 1, Price: 5}}}},
	})
	return m
}

func TestProducts(t *testing.T) {
	ctx := context.Background()
	m := seeded()

	p, err := m.ProductByID(ctx, "s1", "p3")
	require.NoError(t, err)
	assert.Equal(t, "mug", p.Handle)

	_, err = m.ProductByHandle(ctx, "s1", "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = m.ProductByID(ctx, "other-store", "p1")
	assert.ErrorIs(t, err, ErrNotFound, "stores are isolated")

	featured, err := m.FeaturedProducts(ctx, "s1", 2)
	require.NoError(t, err)
	require.Len(t, featured, 2)
	assert.Equal(t, "p2", featured[0].ID)
	assert.Equal(t, "p1", featured[1].ID)
}

func TestSearchProducts(t *testing.T) {
	ctx := context.Background()
	m := seeded()

	tests := []struct {
		query string
		want  []string
	}{
		{"shirt", []string{"p1", "p2"}},
		{"CERAMIC", []string{"p3"}},
		{"cotton", []string{"p1"}},
		{"", nil},
		{"nothing", nil},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			got, err := m.SearchProducts(ctx, "s1", tt.query, 10)
			require.NoError(t, err)
			var ids []string
			for _, p := range got {
				ids = append(ids, p.ID)
			}
			assert.Equal(t, tt.want, ids)
		})
	}
}

func TestCollectionProductsPaging(t *testing.T) {
	ctx := context.Background()
	m := seeded()

	page, total, err := m.CollectionProducts(ctx, "s1", "c1", 0, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	require.Len(t, page, 1)
	assert.Equal(t, "p1", page[0].ID)

	page, total, err = m.CollectionProducts(ctx, "s1", "c1", 1, 10)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	require.Len(t, page, 1)
	assert.Equal(t, "p2", page[0].ID)

	page, _, err = m.CollectionProducts(ctx, "s1", "c1", 5, 10)
	require.NoError(t, err)
	assert.Empty(t, page)
}

func TestCartTotals(t *testing.T) {
	c, err := seeded().Cart(context.Background(), "s1", "t1")
	require.NoError(t, err)
	assert.Equal(t, 3, c.ItemCount())
	assert.InDelta(t, 25.0, c.TotalPrice(), 0.0001)
}

func TestCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := seeded().Menus(ctx, "s1")
	assert.ErrorIs(t, err, context.Canceled)
}
