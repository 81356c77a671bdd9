package wavm

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"

	"github.com/wavmgo/wavm/api"
)

// Cache persists a compiled module's precompiled object across Runtime
// instances and process runs, keyed by the module's own bytes, so an
// embedder that recompiles the same binary repeatedly (spec.md §6
// "precompiled module loading") pays Codegen's cost once.
type Cache interface {
	api.Closer

	// WithCompilationCacheDirName roots this cache at a directory on disk,
	// created if it doesn't already exist. Safe to call more than once; the
	// most recent call wins for any lookup or store made afterward.
	WithCompilationCacheDirName(dirName string) error
}

// NewCache returns a Cache with no directory configured; RuntimeConfig.
// WithCompilationCache(cache) attaches it, and WithCompilationCacheDirName
// must still be called before it does anything besides no-op.
func NewCache() Cache { return &fileCache{} }

type fileCache struct {
	dir string
}

func (c *fileCache) WithCompilationCacheDirName(dirName string) error {
	if err := os.MkdirAll(dirName, 0o755); err != nil {
		return err
	}
	c.dir = dirName
	return nil
}

func (c *fileCache) Close(context.Context) error { return nil }

// lookup returns the previously stored precompiled object payload for
// moduleBytes, if this cache has a directory and a hit exists.
func (c *fileCache) lookup(moduleBytes []byte) ([]byte, bool) {
	if c.dir == "" {
		return nil, false
	}
	data, err := os.ReadFile(filepath.Join(c.dir, cacheKey(moduleBytes)))
	if err != nil {
		return nil, false
	}
	return data, true
}

// store saves object under moduleBytes' key, silently doing nothing if this
// cache has no directory or the write fails: a cache miss next time is the
// only consequence, never a hard error.
func (c *fileCache) store(moduleBytes, object []byte) {
	if c.dir == "" {
		return
	}
	_ = os.WriteFile(filepath.Join(c.dir, cacheKey(moduleBytes)), object, 0o644)
}

func cacheKey(moduleBytes []byte) string {
	sum := sha256.Sum256(moduleBytes)
	return hex.EncodeToString(sum[:]) + ".obj"
}
