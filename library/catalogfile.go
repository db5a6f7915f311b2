package library

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// catalogFile is the on-disk seed format:
//
//	items:
//	  - id: 1
//	    title: Dune
//	    author: Frank Herbert
//	    copies: 3
type catalogFile struct {
	Items []Item `yaml:"items"`
}

// LoadResult reports what happened to one entry of a catalog file.
type LoadResult struct {
	Item Item
	Err  error
}

// ParseCatalog decodes a YAML catalog. Entries are not validated here; the
// engine does that when they are loaded.
func ParseCatalog(r io.Reader) ([]Item, error) {
	var f catalogFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		if err == io.EOF {
			return []Item{}, nil
		}
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	return f.Items, nil
}

// ReadCatalogFile opens and parses the catalog at path.
func ReadCatalogFile(path string) ([]Item, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ParseCatalog(f)
}

// LoadCatalog adds items one at a time. A rejected entry does not stop the
// rest from loading.
func (e *Engine) LoadCatalog(items []Item) []LoadResult {
	results := make([]LoadResult, 0, len(items))
	for _, it := range items {
		results = append(results, LoadResult{Item: it, Err: e.AddItem(it)})
	}
	return results
}
