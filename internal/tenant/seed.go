package tenant

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/conneroisu/storefront/internal/catalog"
)

// SeedStore is one store entry of a seed file together with its catalog.
type SeedStore struct {
	Store   `yaml:",inline"`
	Catalog catalog.Data `yaml:"catalog"`
}

// Seed is the document shape of a directory seed file.
type Seed struct {
	Stores []SeedStore `yaml:"stores"`
}

// ParseSeed decodes a YAML seed document. Unknown fields are rejected so a
// typo in a store definition does not silently drop data.
func ParseSeed(r io.Reader) (*Seed, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var seed Seed
	if err := dec.Decode(&seed); err != nil {
		if err == io.EOF {
			return &seed, nil
		}
		return nil, fmt.Errorf("failed to decode seed: %w", err)
	}

	seen := make(map[string]bool, len(seed.Stores))
	for i, s := range seed.Stores {
		if s.ID == "" {
			return nil, fmt.Errorf("store %d: id is required", i)
		}
		if seen[s.ID] {
			return nil, fmt.Errorf("store %s: duplicate id", s.ID)
		}
		seen[s.ID] = true
		if s.PrimaryDomain == "" {
			return nil, fmt.Errorf("store %s: primary_domain is required", s.ID)
		}
	}

	return &seed, nil
}

// LoadSeedFile reads and parses a seed file.
func LoadSeedFile(path string) (*Seed, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open seed file: %w", err)
	}
	defer f.Close()

	return ParseSeed(f)
}

// Apply loads every store of the seed into a directory and its catalog into
// the in-memory catalog.
func (s *Seed) Apply(dir *MemoryDirectory, cat *catalog.Memory) {
	for i := range s.Stores {
		store := s.Stores[i].Store
		dir.Put(&store)
		if cat != nil {
			cat.Put(store.ID, s.Stores[i].Catalog)
		}
	}
}
