package cache

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamesainslie/packman/pkg/packman/operation"
)

func openCache(t *testing.T) *Cache {
	t.Helper()
	c, err := Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func packageDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	for rel, content := range map[string]string{
		"GameData/Demo/plugin.dll": "dll",
		"GameData/Demo/demo.cfg":   "cfg",
	} {
		path := filepath.Join(dir, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	return dir
}

func TestAddAndFetch(t *testing.T) {
	c := openCache(t)
	require.NoError(t, c.AddPackage("demo", "1.0", "demo-1.0", packageDir(t)))

	op, err := operation.New("cache-test", operation.Config{ScratchDir: t.TempDir()})
	require.NoError(t, err)
	defer op.Close()

	var last float64
	require.NoError(t, c.FetchVersion(op, "demo", "1.0", func(p float64) { last = p }))
	assert.Equal(t, 1.0, last)

	data, err := os.ReadFile(filepath.Join(op.LastPath(), "GameData", "Demo", "plugin.dll"))
	require.NoError(t, err)
	assert.Equal(t, "dll", string(data))

	entry, err := c.Lookup("demo", "1.0")
	require.NoError(t, err)
	assert.Equal(t, "demo-1.0", entry.Option)
	assert.Equal(t, ArchiveName("demo", "1.0"), entry.Archive)
	assert.Positive(t, entry.Size)
}

func TestFetchMiss(t *testing.T) {
	c := openCache(t)
	op, err := operation.New("cache-test", operation.Config{ScratchDir: t.TempDir()})
	require.NoError(t, err)
	defer op.Close()

	assert.ErrorIs(t, c.FetchVersion(op, "demo", "1.0", nil), ErrNotFound)
	assert.ErrorIs(t, c.FetchVersion(op, "demo", "", nil), ErrNotFound)
	assert.Empty(t, op.LastPath())
}

func TestMissingArchiveIsAMiss(t *testing.T) {
	c := openCache(t)
	require.NoError(t, c.AddPackage("demo", "1.0", "", packageDir(t)))
	require.NoError(t, os.Remove(filepath.Join(c.Dir(), "archives", ArchiveName("demo", "1.0"))))

	_, err := c.Lookup("demo", "1.0")
	assert.ErrorIs(t, err, ErrNotFound)
	entries, err := c.List("")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestAddReplacesPreviousArchive(t *testing.T) {
	c := openCache(t)
	dir := packageDir(t)
	require.NoError(t, c.AddPackage("demo", "1.0", "", dir))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "extra.txt"), []byte("x"), 0o644))
	require.NoError(t, c.AddPackage("demo", "1.0", "", dir))

	entries, err := c.List("demo")
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestStatsAndClear(t *testing.T) {
	c := openCache(t)
	dir := packageDir(t)
	require.NoError(t, c.AddPackage("a", "1", "", dir))
	require.NoError(t, c.AddPackage("a", "2", "", dir))
	require.NoError(t, c.AddPackage("b", "1", "", dir))

	st, err := c.Stats()
	require.NoError(t, err)
	assert.Equal(t, 3, st.Entries)
	assert.Equal(t, 2, st.Packages)
	assert.Positive(t, st.Bytes)

	removed, err := c.Clear("a")
	require.NoError(t, err)
	assert.Equal(t, 2, removed)
	assert.NoFileExists(t, filepath.Join(c.Dir(), "archives", ArchiveName("a", "1")))

	require.NoError(t, c.Remove("b", "1"))
	st, err = c.Stats()
	require.NoError(t, err)
	assert.Zero(t, st.Entries)
}
