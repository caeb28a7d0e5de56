package rasterizer

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
)

// DefaultRasterCacheSize is the default number of concurrently open
// documents.
const DefaultRasterCacheSize = 20

// RasterCache is an LRU of open Rasterizers keyed by document path.
// Evicted documents are closed.
type RasterCache struct {
	mu          sync.Mutex
	logger      *zap.Logger
	rasterizers *lru.Cache[string, *Rasterizer]
}

func NewRasterCache(size int, logger *zap.Logger) (*RasterCache, error) {
	if size <= 0 {
		size = DefaultRasterCacheSize
	}

	rc := &RasterCache{logger: logger}

	cache, err := lru.NewWithEvict[string, *Rasterizer](size, rc.onEvicted)
	if err != nil {
		return nil, err
	}
	rc.rasterizers = cache

	return rc, nil
}

// Get returns the cached Rasterizer for path, opening the document if
// needed.
func (rc *RasterCache) Get(path string) (*Rasterizer, error) {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	if raster, ok := rc.rasterizers.Get(path); ok {
		return raster, nil
	}

	rc.logger.Debug("Opening document", zap.String("path", path))

	raster, err := New(path, rc.logger)
	if err != nil {
		return nil, err
	}
	rc.rasterizers.Add(path, raster)

	return raster, nil
}

// Remove closes and drops the document if it is cached.
func (rc *RasterCache) Remove(path string) {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	rc.rasterizers.Remove(path)
}

// Purge closes every open document.
func (rc *RasterCache) Purge() {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	rc.rasterizers.Purge()
}

func (rc *RasterCache) onEvicted(path string, raster *Rasterizer) {
	rc.logger.Debug("Closing evicted document", zap.String("path", path))
	if err := raster.Close(); err != nil {
		rc.logger.Warn("Failed to close document",
			zap.String("path", path),
			zap.Error(err))
	}
}
