package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDirStore(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "templates", "123", "sections"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "templates", "123", "sections", "header.liquid"), []byte("<header/>"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "secret.txt"), []byte("x"), 0o644))

	s := NewDirStore(filepath.Join(root, "templates"))
	ctx := context.Background()

	data, err := s.Get(ctx, "123/sections/header.liquid")
	require.NoError(t, err)
	assert.Equal(t, "<header/>", string(data))

	_, err = s.Get(ctx, "123/sections/missing.liquid")
	assert.ErrorIs(t, err, ErrNotFound)

	// traversal is clamped to the root
	_, err = s.Get(ctx, "../secret.txt")
	assert.ErrorIs(t, err, ErrNotFound)

	keys, err := s.List(ctx, "123")
	require.NoError(t, err)
	assert.Equal(t, []string{"123/sections/header.liquid"}, keys)

	keys, err = s.List(ctx, "999")
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestMemStore(t *testing.T) {
	s := NewMemStore(map[string]string{
		"templates/1/layout/theme.liquid": "layout",
		"templates/1/sections/a.liquid":   "a",
		"templates/10/sections/b.liquid":  "b",
	})
	ctx := context.Background()

	data, err := s.Get(ctx, "/templates/1/layout/theme.liquid")
	require.NoError(t, err)
	assert.Equal(t, "layout", string(data))

	data[0] = 'X'
	again, _ := s.Get(ctx, "templates/1/layout/theme.liquid")
	assert.Equal(t, "layout", string(again), "returned bytes are a copy")

	keys, err := s.List(ctx, "templates/1")
	require.NoError(t, err)
	assert.Equal(t, []string{"templates/1/layout/theme.liquid", "templates/1/sections/a.liquid"}, keys)

	s.Delete("templates/1/sections/a.liquid")
	_, err = s.Get(ctx, "templates/1/sections/a.liquid")
	assert.ErrorIs(t, err, ErrNotFound)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = s.Get(cancelled, "templates/1/layout/theme.liquid")
	assert.ErrorIs(t, err, context.Canceled)

	_, err = s.Get(ctx, "")
	assert.Error(t, err)
}
