// Package storage is the object store theme files are read from. Keys are
// slash separated, e.g. "templates/123/sections/header.liquid".
package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// ErrNotFound is returned when no object exists under a key.
var ErrNotFound = errors.New("object not found")

// Store reads objects by key.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
}

// Lister is implemented by stores that can enumerate keys.
type Lister interface {
	List(ctx context.Context, prefix string) ([]string, error)
}

// cleanKey rejects keys escaping the store root.
func cleanKey(key string) (string, error) {
	k := path.Clean("/" + strings.TrimSpace(key))
	k = strings.TrimPrefix(k, "/")
	if k == "" || k == "." {
		return "", fmt.Errorf("invalid key %q", key)
	}
	return k, nil
}

// DirStore serves objects from a directory tree.
type DirStore struct {
	root string
}

// NewDirStore creates a store rooted at dir.
func NewDirStore(dir string) *DirStore {
	return &DirStore{root: dir}
}

// Root returns the directory the store reads from.
func (s *DirStore) Root() string {
	return s.root
}

// Get implements Store.
func (s *DirStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	k, err := cleanKey(key)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(filepath.Join(s.root, filepath.FromSlash(k)))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", k, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", k, err)
	}
	return data, nil
}

// List implements Lister.
func (s *DirStore) List(ctx context.Context, prefix string) ([]string, error) {
	k, err := cleanKey(prefix)
	if err != nil {
		return nil, err
	}

	var keys []string
	base := filepath.Join(s.root, filepath.FromSlash(k))
	err = filepath.WalkDir(base, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(s.root, p)
		if err != nil {
			return err
		}
		keys = append(keys, filepath.ToSlash(rel))
		return nil
	})
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	return keys, err
}

// MemStore is an in-memory Store.
type MemStore struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

// NewMemStore creates a store holding objects.
func NewMemStore(objects map[string]string) *MemStore {
	s := &MemStore{objects: make(map[string][]byte, len(objects))}
	for k, v := range objects {
		s.Put(k, []byte(v))
	}
	return s
}

// Put stores an object.
func (s *MemStore) Put(key string, data []byte) {
	k, err := cleanKey(key)
	if err != nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[k] = append([]byte(nil), data...)
}

// Delete removes an object.
func (s *MemStore) Delete(key string) {
	k, err := cleanKey(key)
	if err != nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, k)
}

// Get implements Store.
func (s *MemStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	k, err := cleanKey(key)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.objects[k]
	if !ok {
		return nil, fmt.Errorf("%s: %w", k, ErrNotFound)
	}
	return append([]byte(nil), data...), nil
}

// List implements Lister.
func (s *MemStore) List(ctx context.Context, prefix string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	k, err := cleanKey(prefix)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	var keys []string
	for key := range s.objects {
		if key == k || strings.HasPrefix(key, k+"/") {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}
