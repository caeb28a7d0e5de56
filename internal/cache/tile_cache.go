package cache

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"chartview/internal/img"
)

const (
	defaultMemoryTTL     = 30 * time.Second
	defaultSweepInterval = time.Second
)

// Config tunes the memory tier. Zero values pick the defaults.
type Config struct {
	// MemoryTTL is how long an untouched tile stays in the memory tier.
	MemoryTTL time.Duration

	// SweepInterval is how often the worker wakes up to evict stale
	// memory entries even when no loads are queued.
	SweepInterval time.Duration
}

type memEntry struct {
	image      *img.Image
	lastAccess time.Time
}

// Cache is a three-tier tile store: memory map, on-disk directory, and a
// background worker that renders misses through the Source. GetTile never
// waits for a render; a miss is queued and reported as "not yet available".
type Cache struct {
	source Source
	logger *zap.Logger
	ttl    time.Duration
	sweep  time.Duration

	mu       sync.Mutex
	cacheDir string
	memory   map[string]*memEntry
	pending  map[TileCoords]struct{}
	errored  map[TileCoords]struct{}
	alive    bool

	wake     chan struct{}
	quit     chan struct{}
	finished chan struct{}
}

// New creates the cache and starts its worker goroutine. Close must be
// called to stop it.
func New(source Source, cfg Config, logger *zap.Logger) *Cache {
	if cfg.MemoryTTL <= 0 {
		cfg.MemoryTTL = defaultMemoryTTL
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = defaultSweepInterval
	}

	c := &Cache{
		source:   source,
		logger:   logger,
		ttl:      cfg.MemoryTTL,
		sweep:    cfg.SweepInterval,
		memory:   make(map[string]*memEntry),
		pending:  make(map[TileCoords]struct{}),
		errored:  make(map[TileCoords]struct{}),
		alive:    true,
		wake:     make(chan struct{}, 1),
		quit:     make(chan struct{}),
		finished: make(chan struct{}),
	}
	go c.loadLoop()
	return c
}

// SetCacheDirectory points the disk tier at dir, creating it if absent.
func (c *Cache) SetCacheDirectory(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}

	c.mu.Lock()
	c.cacheDir = dir
	c.mu.Unlock()
	return nil
}

// GetTile returns the tile if it is resident in memory or on disk. A miss
// returns (nil, nil) and queues the tile for the background worker; callers
// poll again to observe completion. Coordinates the source rejects fail with
// ErrInvalidCoords, tiles that failed to render fail with ErrCorruptTile.
func (c *Cache) GetTile(x, y, zoom int) (*img.Image, error) {
	coords, ok := c.source.CorrectCoords(TileCoords{X: x, Y: y, Zoom: zoom})
	if !ok {
		return nil, fmt.Errorf("%w: %d/%d/%d", ErrInvalidCoords, zoom, x, y)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// Coords that had a load error stay broken until Purge
	if _, bad := c.errored[coords]; bad {
		return nil, fmt.Errorf("%w: %s", ErrCorruptTile, coords)
	}

	if image := c.getFromMemory(coords); image != nil {
		return image, nil
	}

	image, err := c.getFromDisk(coords)
	if err != nil {
		return nil, err
	}
	if image != nil {
		return image, nil
	}

	// Full miss: enqueue and report miss for now
	c.enqueue(coords)
	return nil, nil
}

// getFromMemory is called with the mutex held.
func (c *Cache) getFromMemory(coords TileCoords) *img.Image {
	entry, ok := c.memory[c.source.TilePath(coords)]
	if !ok {
		return nil
	}

	entry.lastAccess = time.Now()
	return entry.image
}

// getFromDisk is called with the mutex held. A disk hit is promoted into
// the memory tier for the next access.
func (c *Cache) getFromDisk(coords TileCoords) (*img.Image, error) {
	if c.cacheDir == "" {
		return nil, nil
	}

	fileName := filepath.Join(c.cacheDir, c.source.TilePath(coords))
	if _, err := os.Stat(fileName); err != nil {
		return nil, nil
	}

	image, err := img.Load(fileName)
	if err != nil {
		return nil, err
	}
	c.enterMemoryCache(coords, image)
	return image, nil
}

// enqueue is called with the mutex held. The pending set deduplicates
// concurrent requests for the same tile.
func (c *Cache) enqueue(coords TileCoords) {
	c.pending[coords] = struct{}{}
	c.notify()
}

func (c *Cache) notify() {
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// enterMemoryCache is called with the mutex held.
func (c *Cache) enterMemoryCache(coords TileCoords, image *img.Image) {
	c.memory[c.source.TilePath(coords)] = &memEntry{
		image:      image,
		lastAccess: time.Now(),
	}
}

func (c *Cache) loadLoop() {
	defer close(c.finished)

	ticker := time.NewTicker(c.sweep)
	defer ticker.Stop()

	for {
		select {
		case <-c.quit:
			return
		case <-c.wake:
		case <-ticker.C:
		}

		c.loadNext()
		c.flushStale()
	}
}

// loadNext pops one pending coordinate and renders it. The mutex is
// released around the render and the disk write so concurrent GetTile
// lookups are never blocked by a slow source.
func (c *Cache) loadNext() {
	c.mu.Lock()
	if !c.alive || len(c.pending) == 0 {
		c.mu.Unlock()
		return
	}

	var coords TileCoords
	for coords = range c.pending {
		break
	}
	delete(c.pending, coords)
	c.source.ResumeLoading()

	key := c.source.TilePath(coords)
	if _, resident := c.memory[key]; resident {
		// some sources produce several tiles per load, so another
		// coordinate pair may already have filled this one
		c.mu.Unlock()
		c.notifyIfPending()
		return
	}
	dir := c.cacheDir
	c.mu.Unlock()

	image, err := c.source.LoadTileImage(coords)
	if err != nil {
		if !errors.Is(err, ErrCancelled) {
			c.logger.Debug("Marking tile as error",
				zap.Stringer("tile", coords),
				zap.Error(err))
			c.mu.Lock()
			c.errored[coords] = struct{}{}
			c.mu.Unlock()
		}
		c.notifyIfPending()
		return
	}

	if dir != "" {
		fileName := filepath.Join(dir, key)
		if err := os.MkdirAll(filepath.Dir(fileName), 0755); err == nil {
			err = image.StoreAndClearEncoded(fileName)
		}
		if err != nil {
			c.logger.Warn("Failed to persist tile",
				zap.Stringer("tile", coords),
				zap.Error(err))
		}
	}

	c.mu.Lock()
	if c.alive {
		c.enterMemoryCache(coords, image)
	}
	c.mu.Unlock()

	c.notifyIfPending()
}

func (c *Cache) notifyIfPending() {
	c.mu.Lock()
	more := len(c.pending) > 0
	c.mu.Unlock()
	if more {
		c.notify()
	}
}

// flushStale evicts memory entries whose last access is older than the TTL.
// The disk tier is never evicted here.
func (c *Cache) flushStale() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	for key, entry := range c.memory {
		if now.Sub(entry.lastAccess) >= c.ttl {
			delete(c.memory, key)
		}
	}
}

// CancelPendingRequests drops all queued loads and forgets previous load
// errors. In-flight loads are cancelled cooperatively through the source.
func (c *Cache) CancelPendingRequests() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.source.CancelPendingLoads()
	c.pending = make(map[TileCoords]struct{})
	c.errored = make(map[TileCoords]struct{})
}

// Purge cancels pending work and clears the memory tier. Disk files are
// kept.
func (c *Cache) Purge() {
	c.CancelPendingRequests()

	c.mu.Lock()
	c.memory = make(map[string]*memEntry)
	c.mu.Unlock()
}

// Close cancels pending loads, stops the worker and waits for it.
// Idempotent.
func (c *Cache) Close() {
	c.mu.Lock()
	if !c.alive {
		c.mu.Unlock()
		<-c.finished
		return
	}
	c.alive = false
	c.source.CancelPendingLoads()
	c.mu.Unlock()

	close(c.quit)
	<-c.finished
}
