package library

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleCatalog = `items:
  - id: 1
    title: Dune
    author: Frank Herbert
    copies: 3
  - id: 2
    title: Emma
    author: Jane Austen
    copies: 0
  - id: 1
    title: Dune again
    author: Frank Herbert
    copies: 1
`

func TestParseCatalog(t *testing.T) {
	items, err := ParseCatalog(strings.NewReader(sampleCatalog))
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, Item{ID: 1, Title: "Dune", Author: "Frank Herbert", AvailableCopies: 3}, items[0])
}

func TestParseCatalogRejectsUnknownFields(t *testing.T) {
	_, err := ParseCatalog(strings.NewReader("items:\n  - id: 1\n    pages: 300\n"))
	assert.Error(t, err)
}

func TestParseCatalogEmpty(t *testing.T) {
	items, err := ParseCatalog(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestLoadCatalog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleCatalog), 0o644))

	items, err := ReadCatalogFile(path)
	require.NoError(t, err)

	e := newEngine(t)
	results := e.LoadCatalog(items)
	require.Len(t, results, 3)
	assert.NoError(t, results[0].Err)
	assert.ErrorIs(t, results[1].Err, ErrInvalidItem)
	assert.ErrorIs(t, results[2].Err, ErrDuplicateItem)

	catalog := e.Catalog().Snapshot()
	require.Len(t, catalog, 1)
	assert.Equal(t, "Dune", catalog[0].Title)
}
