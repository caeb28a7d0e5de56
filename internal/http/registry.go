package http

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"chartview/internal/cache"
	"chartview/internal/doc_list"
	"chartview/internal/rasterizer"
)

// Registry hands out one tile cache per (document, page). Caches share the
// per-document disk directory; their sources resolve the rasterizer through
// the open-document LRU on every render, so caches stay valid across
// document eviction.
type Registry struct {
	logger    *zap.Logger
	cacheRoot string
	memoryTTL time.Duration
	rasters   *rasterizer.RasterCache
	scanner   *doc_list.Scanner

	mu     sync.Mutex
	caches map[string]*cache.Cache
}

func NewRegistry(cacheRoot string, memoryTTL time.Duration, rasters *rasterizer.RasterCache, scanner *doc_list.Scanner, logger *zap.Logger) *Registry {
	return &Registry{
		logger:    logger,
		cacheRoot: cacheRoot,
		memoryTTL: memoryTTL,
		rasters:   rasters,
		scanner:   scanner,
		caches:    make(map[string]*cache.Cache),
	}
}

func (reg *Registry) cacheKey(docID string, page int) string {
	return fmt.Sprintf("%s/%d", docID, page)
}

// GetCache returns the tile cache for one page of a document, creating it
// on first use.
func (reg *Registry) GetCache(docID string, page int) (*cache.Cache, error) {
	docInfo := reg.scanner.GetDocumentByID(docID)
	if docInfo == nil {
		return nil, fmt.Errorf("document not found: %s", docID)
	}
	if page < 0 || page >= docInfo.Pages {
		return nil, fmt.Errorf("page %d out of range for document %s", page, docID)
	}

	reg.mu.Lock()
	defer reg.mu.Unlock()

	key := reg.cacheKey(docID, page)
	if c, ok := reg.caches[key]; ok {
		return c, nil
	}

	source, err := rasterizer.NewDocumentSource(reg.rasters, reg.scanner.GetDocumentPathByID(docID), page)
	if err != nil {
		return nil, err
	}
	c := cache.New(source, cache.Config{MemoryTTL: reg.memoryTTL}, reg.logger)
	if err := c.SetCacheDirectory(filepath.Join(reg.cacheRoot, docID)); err != nil {
		c.Close()
		return nil, err
	}

	reg.caches[key] = c
	reg.logger.Debug("Created tile cache",
		zap.String("document", docID),
		zap.Int("page", page))
	return c, nil
}

// PurgeDocument drops all cache state for a document and closes it.
// Disk tiles are kept.
func (reg *Registry) PurgeDocument(docID string) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	prefix := docID + "/"
	for key, c := range reg.caches {
		if strings.HasPrefix(key, prefix) {
			c.Close()
			delete(reg.caches, key)
		}
	}
	reg.rasters.Remove(reg.scanner.GetDocumentPathByID(docID))
}

// Close shuts down every cache and closes all open documents.
func (reg *Registry) Close() {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	for key, c := range reg.caches {
		c.Close()
		delete(reg.caches, key)
	}
	reg.rasters.Purge()
}
