package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunReportsRejectedEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`items:
  - id: 1
    title: The Art of War
    author: Sun Tzu
    copies: 2
  - id: 1
    title: Duplicate
    author: Someone
    copies: 1
  - id: 2
    title: ""
    author: Nobody
    copies: 1
`), 0o644))

	var out bytes.Buffer
	rejected, err := run(path, &out)
	require.NoError(t, err)
	assert.Equal(t, 2, rejected)
	assert.Contains(t, out.String(), "Loading: The Art of War by Sun Tzu... OK (ID: 1)")
	assert.Contains(t, out.String(), "Accepted: 1 items")
	assert.Contains(t, out.String(), "Rejected: 2")
}

func TestRunMissingFile(t *testing.T) {
	_, err := run(filepath.Join(t.TempDir(), "nope.yaml"), &bytes.Buffer{})
	assert.Error(t, err)
}

func TestTruncateString(t *testing.T) {
	assert.Equal(t, "abc", truncateString("abcdef", 3))
	assert.Equal(t, "ab...", truncateString("abcdefgh", 5))
	assert.Equal(t, "abc", truncateString("abc", 5))
}
