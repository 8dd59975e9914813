package tenant

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/storefront/internal/catalog"
)

func TestNormalizeDomain(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"mitienda.com", "mitienda.com"},
		{"  MiTienda.COM  ", "mitienda.com"},
		{"mitienda.com:8080", "mitienda.com"},
		{"mitienda.com.", "mitienda.com"},
		{"[::1]:3000", "[::1]"},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeDomain(tt.in))
		})
	}
}

func TestStoreDefaults(t *testing.T) {
	s := &Store{}
	assert.Equal(t, "COP", s.Currency())
	assert.Equal(t, "es-CO", s.Locale())
	assert.Equal(t, "${{amount}}", s.MoneyFormat())
	assert.Equal(t, 2, s.DecimalPlaces())

	zero := 0
	s.Settings = Settings{Currency: "USD", Locale: "en-US", MoneyFormat: "${{amount}} USD", DecimalPlaces: &zero}
	assert.Equal(t, "USD", s.Currency())
	assert.Equal(t, 0, s.DecimalPlaces())
}

func TestMemoryDirectory(t *testing.T) {
	ctx := context.Background()
	d := NewMemoryDirectory(&Store{ID: "1", PrimaryDomain: "a.example", CustomDomains: []string{"A.com"}})

	s, err := d.FindByCustomDomain(ctx, "a.com")
	require.NoError(t, err)
	assert.Equal(t, "1", s.ID)

	_, err = d.FindByPrimaryDomain(ctx, "a.com")
	assert.ErrorIs(t, err, ErrNotFound)

	// replacing a store drops its old domains
	d.Put(&Store{ID: "1", PrimaryDomain: "b.example"})
	_, err = d.FindByCustomDomain(ctx, "a.com")
	assert.ErrorIs(t, err, ErrNotFound)
	s, err = d.FindByPrimaryDomain(ctx, "b.example")
	require.NoError(t, err)
	assert.Equal(t, "1", s.ID)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = d.FindByID(cancelled, "1")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLoadSeedFile(t *testing.T) {
	seed, err := LoadSeedFile("testdata/stores.yml")
	require.NoError(t, err)
	require.Len(t, seed.Stores, 2)

	dir := NewMemoryDirectory()
	cat := catalog.NewMemory()
	seed.Apply(dir, cat)

	ctx := context.Background()
	s, err := dir.FindByCustomDomain(ctx, "www.mitienda.com")
	require.NoError(t, err)
	assert.Equal(t, "Mi Tienda", s.Name)
	assert.Equal(t, 0, s.DecimalPlaces())
	assert.True(t, s.Active)
	assert.Contains(t, s.Policies["refund_policy"], "30 días")

	p, err := cat.ProductByHandle(ctx, "123", "camiseta-basica")
	require.NoError(t, err)
	assert.Equal(t, 45000.0, p.Price)

	other, err := dir.FindByID(ctx, "456")
	require.NoError(t, err)
	assert.False(t, other.Active)
}

func TestParseSeedValidation(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		wantErr string
	}{
		{name: "missing id", doc: "stores:\n  - primary_domain: a.com\n", wantErr: "id is required"},
		{name: "duplicate id", doc: "stores:\n  - {id: a, primary_domain: a.com}\n  - {id: a, primary_domain: b.com}\n", wantErr: "duplicate id"},
		{name: "missing domain", doc: "stores:\n  - id: a\n", wantErr: "primary_domain is required"},
		{name: "unknown field", doc: "stores:\n  - {id: a, primary_domain: a.com, colour: red}\n", wantErr: "failed to decode seed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseSeed(strings.NewReader(tt.doc))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}

	seed, err := ParseSeed(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, seed.Stores)
}
