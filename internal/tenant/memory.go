package tenant

import (
	"context"
	"sync"
)

// MemoryDirectory is an in-memory Directory. It backs tests and the
// YAML-seeded development server.
type MemoryDirectory struct {
	mu       sync.RWMutex
	byID     map[string]*Store
	byCustom map[string]string
	byPrim   map[string]string
}

// NewMemoryDirectory creates a directory holding stores.
func NewMemoryDirectory(stores ...*Store) *MemoryDirectory {
	d := &MemoryDirectory{
		byID:     make(map[string]*Store),
		byCustom: make(map[string]string),
		byPrim:   make(map[string]string),
	}
	for _, s := range stores {
		d.Put(s)
	}
	return d
}

// Put adds or replaces a store.
func (d *MemoryDirectory) Put(s *Store) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if old, ok := d.byID[s.ID]; ok {
		delete(d.byPrim, NormalizeDomain(old.PrimaryDomain))
		for _, cd := range old.CustomDomains {
			delete(d.byCustom, NormalizeDomain(cd))
		}
	}

	d.byID[s.ID] = s
	if s.PrimaryDomain != "" {
		d.byPrim[NormalizeDomain(s.PrimaryDomain)] = s.ID
	}
	for _, cd := range s.CustomDomains {
		d.byCustom[NormalizeDomain(cd)] = s.ID
	}
}

// FindByCustomDomain implements Directory.
func (d *MemoryDirectory) FindByCustomDomain(ctx context.Context, domain string) (*Store, error) {
	return d.find(ctx, d.byCustom, domain)
}

// FindByPrimaryDomain implements Directory.
func (d *MemoryDirectory) FindByPrimaryDomain(ctx context.Context, domain string) (*Store, error) {
	return d.find(ctx, d.byPrim, domain)
}

// FindByID implements Directory.
func (d *MemoryDirectory) FindByID(ctx context.Context, id string) (*Store, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	if s, ok := d.byID[id]; ok {
		return s, nil
	}
	return nil, ErrNotFound
}

func (d *MemoryDirectory) find(ctx context.Context, index map[string]string, domain string) (*Store, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	id, ok := index[NormalizeDomain(domain)]
	if !ok {
		return nil, ErrNotFound
	}
	return d.byID[id], nil
}
