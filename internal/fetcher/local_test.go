package fetcher

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, root, rel string, data []byte) {
	t.Helper()
	p := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, data, 0o644))
}

func paths(files []RawFile) []string {
	out := make([]string, len(files))
	for i, f := range files {
		out[i] = f.Path
	}
	return out
}

func TestLocalFetcher_FiltersAndSorts(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "src/b.ts", []byte("export const b = 1\n"))
	writeFile(t, root, "src/a.ts", []byte("export const a = 1\n"))
	writeFile(t, root, "README.md", []byte("# hello\n"))
	writeFile(t, root, "node_modules/dep/index.js", []byte("module.exports = {}\n"))
	writeFile(t, root, ".git/config", []byte("[core]\n"))
	writeFile(t, root, "package-lock.json", []byte("{}\n"))
	writeFile(t, root, "empty.txt", nil)
	writeFile(t, root, "logo.png", []byte{0x89, 'P', 'N', 'G', 0, 0, 0, 1})

	files, err := LocalFetcher{}.Fetch(context.Background(), root, Credentials{})
	require.NoError(t, err)

	assert.Equal(t, []string{"README.md", "src/a.ts", "src/b.ts"}, paths(files))
	assert.Equal(t, "export const a = 1\n", files[1].Content)
}

func TestLocalFetcher_IgnoreFile(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, IgnoreFile, []byte("# comment\ngenerated\n*.snap\n"))
	writeFile(t, root, "generated/api.go", []byte("package api\n"))
	writeFile(t, root, "main.go", []byte("package main\n"))

	files, err := LocalFetcher{}.Fetch(context.Background(), root, Credentials{})
	require.NoError(t, err)

	assert.Contains(t, paths(files), "main.go")
	assert.NotContains(t, paths(files), "generated/api.go")
	_, statErr := os.Stat(filepath.Join(root, IgnoreFile))
	assert.NoError(t, statErr)
}

func TestLocalFetcher_DoesNotCreateIgnoreFile(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "main.go", []byte("package main\n"))

	_, err := LocalFetcher{}.Fetch(context.Background(), root, Credentials{})
	require.NoError(t, err)

	_, statErr := os.Stat(filepath.Join(root, IgnoreFile))
	assert.True(t, os.IsNotExist(statErr))
}

func TestLocalFetcher_MissingDir(t *testing.T) {
	_, err := LocalFetcher{}.Fetch(context.Background(), filepath.Join(t.TempDir(), "nope"), Credentials{})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLocalFetcher_Canceled(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "main.go", []byte("package main\n"))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := LocalFetcher{}.Fetch(ctx, root, Credentials{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMatchesIgnore(t *testing.T) {
	patterns := []string{"node_modules", "third_party/vendor", "*.gen"}

	assert.True(t, matchesIgnore("node_modules", "web/node_modules", patterns))
	assert.True(t, matchesIgnore("vendor", "third_party/vendor", patterns))
	assert.True(t, matchesIgnore("x.gen", "x.gen", patterns))
	assert.False(t, matchesIgnore("src", "src", patterns))
	assert.False(t, matchesIgnore("third_party", "third_party", patterns))
}

func TestIgnoredDir(t *testing.T) {
	assert.True(t, IgnoredDir("node_modules"))
	assert.True(t, IgnoredDir(".git"))
	assert.False(t, IgnoredDir("src"))
}
