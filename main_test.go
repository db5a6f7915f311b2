package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand(t *testing.T) {
	cmd := newRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "lending", cmd.Use)
	assert.Contains(t, cmd.Long, "borrowed")
}

func TestCommandPresence(t *testing.T) {
	cmd := newRootCommand()
	for _, name := range []string{"shell", "version"} {
		t.Run(name, func(t *testing.T) {
			sub, _, err := cmd.Find([]string{name})
			require.NoError(t, err, "command %s should exist", name)
			require.NotNil(t, sub)
			assert.Equal(t, name, sub.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := newRootCommand()

	verbose := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verbose)
	assert.Equal(t, "v", verbose.Shorthand)
	assert.Equal(t, "false", verbose.DefValue)

	format := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, format)
	assert.Equal(t, "text", format.DefValue)
}

func TestShellCommandFlags(t *testing.T) {
	cmd := newRootCommand()
	shellCmd, _, err := cmd.Find([]string{"shell"})
	require.NoError(t, err)

	for _, name := range []string{"catalog", "archive", "metrics-addr"} {
		f := shellCmd.Flags().Lookup(name)
		require.NotNil(t, f, name)
		assert.Equal(t, "", f.DefValue)
	}
}

func TestVersionCommand(t *testing.T) {
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"version"})
	require.NoError(t, cmd.Execute())
	assert.Equal(t, "lending "+version+"\n", out.String())
}

func TestInvalidFormat(t *testing.T) {
	cmd := newRootCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"--format", "xml", "version"})
	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}

func TestShellCommandWithCatalogAndArchive(t *testing.T) {
	dir := t.TempDir()
	catalog := filepath.Join(dir, "catalog.yaml")
	require.NoError(t, os.WriteFile(catalog, []byte(`items:
  - id: 42
    title: Dune
    author: Frank Herbert
    copies: 2
  - id: 43
    title: Broken
    author: Nobody
    copies: 0
`), 0o644))

	script := strings.Join([]string{
		"login", "1", "Alice",
		"borrow", "42", "1",
		"list items",
		"exit",
	}, "\n") + "\n"

	cmd := newRootCommand()
	var out, errOut bytes.Buffer
	cmd.SetIn(strings.NewReader(script))
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs([]string{"shell", "--catalog", catalog, "--archive", filepath.Join(dir, "history.db")})
	require.NoError(t, cmd.Execute())

	assert.Contains(t, out.String(), "Borrowed 1 x 'Dune'. 1 left on the shelf.")
	assert.NotContains(t, out.String(), "Broken")
	assert.Contains(t, errOut.String(), "catalog entry skipped")
	assert.Contains(t, errOut.String(), "archive attached")
}

func TestShellCommandMissingCatalog(t *testing.T) {
	cmd := newRootCommand()
	cmd.SetIn(strings.NewReader(""))
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"shell", "--catalog", filepath.Join(t.TempDir(), "missing.yaml")})
	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read catalog")
}

func TestTruncateString(t *testing.T) {
	assert.Equal(t, "short", truncateString("short", 10))
	assert.Equal(t, "abcdefg...", truncateString("abcdefghijklmnop", 10))
}
