package catalog

import (
	"context"
	"strings"
	"sync"
)

// Data is the catalog content of a single store.
type Data struct {
	Products    []Product    `yaml:"products" json:"products"`
	Collections []Collection `yaml:"collections" json:"collections"`
	Pages       []Page       `yaml:"pages" json:"pages"`
	Menus       []Menu       `yaml:"menus" json:"menus"`
	Carts       []Cart       `yaml:"carts" json:"carts"`
}

// Memory is an in-memory Provider keyed by store id.
type Memory struct {
	mu     sync.RWMutex
	stores map[string]*Data
}

var _ Provider = (*Memory)(nil)

// NewMemory creates an empty in-memory catalog.
func NewMemory() *Memory {
	return &Memory{stores: make(map[string]*Data)}
}

// Put replaces the catalog of a store.
func (m *Memory) Put(storeID string, data Data) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := data
	m.stores[storeID] = &d
}

func (m *Memory) data(ctx context.Context, storeID string) (*Data, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if d, ok := m.stores[storeID]; ok {
		return d, nil
	}
	return &Data{}, nil
}

// ProductByID implements Products.
func (m *Memory) ProductByID(ctx context.Context, storeID, id string) (*Product, error) {
	d, err := m.data(ctx, storeID)
	if err != nil {
		return nil, err
	}
	for i := range d.Products {
		if d.Products[i].ID == id {
			p := d.Products[i]
			return &p, nil
		}
	}
	return nil, ErrNotFound
}

// ProductByHandle implements Products.
func (m *Memory) ProductByHandle(ctx context.Context, storeID, handle string) (*Product, error) {
	d, err := m.data(ctx, storeID)
	if err != nil {
		return nil, err
	}
	for i := range d.Products {
		if d.Products[i].Handle == handle {
			p := d.Products[i]
			return &p, nil
		}
	}
	return nil, ErrNotFound
}

// FeaturedProducts implements Products. Featured products come first; the
// list is topped up with the rest of the catalog in order.
func (m *Memory) FeaturedProducts(ctx context.Context, storeID string, limit int) ([]Product, error) {
	d, err := m.data(ctx, storeID)
	if err != nil {
		return nil, err
	}
	out := make([]Product, 0, limit)
	for _, p := range d.Products {
		if p.Featured && len(out) < limit {
			out = append(out, p)
		}
	}
	for _, p := range d.Products {
		if !p.Featured && len(out) < limit {
			out = append(out, p)
		}
	}
	return out, nil
}

// SearchProducts implements Products with a case-insensitive substring match
// on title, description and tags.
func (m *Memory) SearchProducts(ctx context.Context, storeID, query string, limit int) ([]Product, error) {
	d, err := m.data(ctx, storeID)
	if err != nil {
		return nil, err
	}
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return nil, nil
	}
	var out []Product
	for _, p := range d.Products {
		if len(out) >= limit {
			break
		}
		if matches(p, q) {
			out = append(out, p)
		}
	}
	return out, nil
}

func matches(p Product, q string) bool {
	if strings.Contains(strings.ToLower(p.Title), q) || strings.Contains(strings.ToLower(p.Description), q) {
		return true
	}
	for _, tag := range p.Tags {
		if strings.EqualFold(tag, q) {
			return true
		}
	}
	return false
}

// CollectionByID implements Collections.
func (m *Memory) CollectionByID(ctx context.Context, storeID, id string) (*Collection, error) {
	d, err := m.data(ctx, storeID)
	if err != nil {
		return nil, err
	}
	for i := range d.Collections {
		if d.Collections[i].ID == id {
			c := d.Collections[i]
			return &c, nil
		}
	}
	return nil, ErrNotFound
}

// CollectionByHandle implements Collections.
func (m *Memory) CollectionByHandle(ctx context.Context, storeID, handle string) (*Collection, error) {
	d, err := m.data(ctx, storeID)
	if err != nil {
		return nil, err
	}
	for i := range d.Collections {
		if d.Collections[i].Handle == handle {
			c := d.Collections[i]
			return &c, nil
		}
	}
	return nil, ErrNotFound
}

// Collections implements Collections.
func (m *Memory) Collections(ctx context.Context, storeID string) ([]Collection, error) {
	d, err := m.data(ctx, storeID)
	if err != nil {
		return nil, err
	}
	return append([]Collection(nil), d.Collections...), nil
}

// CollectionProducts implements Collections. It returns one page of members
// and the total member count.
func (m *Memory) CollectionProducts(ctx context.Context, storeID, collectionID string, offset, limit int) ([]Product, int, error) {
	d, err := m.data(ctx, storeID)
	if err != nil {
		return nil, 0, err
	}
	var members []Product
	for _, p := range d.Products {
		for _, cid := range p.CollectionIDs {
			if cid == collectionID {
				members = append(members, p)
				break
			}
		}
	}
	total := len(members)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return members[offset:end], total, nil
}

// PageByHandle implements Pages.
func (m *Memory) PageByHandle(ctx context.Context, storeID, handle string) (*Page, error) {
	d, err := m.data(ctx, storeID)
	if err != nil {
		return nil, err
	}
	for i := range d.Pages {
		if d.Pages[i].Handle == handle {
			p := d.Pages[i]
			return &p, nil
		}
	}
	return nil, ErrNotFound
}

// Cart implements Carts.
func (m *Memory) Cart(ctx context.Context, storeID, token string) (*Cart, error) {
	d, err := m.data(ctx, storeID)
	if err != nil {
		return nil, err
	}
	for i := range d.Carts {
		if d.Carts[i].Token == token {
			c := d.Carts[i]
			return &c, nil
		}
	}
	return nil, ErrNotFound
}

// Menus implements Navigation.
func (m *Memory) Menus(ctx context.Context, storeID string) ([]Menu, error) {
	d, err := m.data(ctx, storeID)
	if err != nil {
		return nil, err
	}
	return append([]Menu(nil), d.Menus...), nil
}
