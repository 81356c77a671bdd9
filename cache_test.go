package wavm

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFileCache_lookupStoreRoundTrip(t *testing.T) {
	c := NewCache().(*fileCache)
	require.NoError(t, c.WithCompilationCacheDirName(t.TempDir()))

	moduleBytes := []byte("\x00asm\x01\x00\x00\x00")
	_, ok := c.lookup(moduleBytes)
	require.False(t, ok, "must miss before any store")

	c.store(moduleBytes, []byte("object-bytes"))

	got, ok := c.lookup(moduleBytes)
	require.True(t, ok)
	require.Equal(t, []byte("object-bytes"), got)
}

func TestFileCache_noDirNameIsAlwaysAMiss(t *testing.T) {
	c := NewCache().(*fileCache)
	c.store([]byte("anything"), []byte("object"))
	_, ok := c.lookup([]byte("anything"))
	require.False(t, ok)
}

func TestFileCache_differentModulesDontCollide(t *testing.T) {
	c := NewCache().(*fileCache)
	require.NoError(t, c.WithCompilationCacheDirName(t.TempDir()))

	c.store([]byte("module-a"), []byte("object-a"))
	c.store([]byte("module-b"), []byte("object-b"))

	gotA, ok := c.lookup([]byte("module-a"))
	require.True(t, ok)
	require.Equal(t, []byte("object-a"), gotA)

	gotB, ok := c.lookup([]byte("module-b"))
	require.True(t, ok)
	require.Equal(t, []byte("object-b"), gotB)
}

func TestCacheKey_stableAndContentAddressed(t *testing.T) {
	require.Equal(t, cacheKey([]byte("same")), cacheKey([]byte("same")))
	require.NotEqual(t, cacheKey([]byte("a")), cacheKey([]byte("b")))
}

func TestFileCache_WithCompilationCacheDirName_creates(t *testing.T) {
	c := NewCache().(*fileCache)
	dir := filepath.Join(t.TempDir(), "nested", "cache")
	require.NoError(t, c.WithCompilationCacheDirName(dir))
	require.Equal(t, dir, c.dir)
}
