package rasterizer

import (
	"errors"
	"fmt"
	"image"
	"math"
	"sync/atomic"

	"chartview/internal/cache"
	"chartview/internal/img"
)

// Zoom levels a document source accepts. Negative zooms shrink the page.
// The upper bound keeps the full-page raster a tile is cut from within
// memory (8x linear scale, about 125 MB for a letter page).
const (
	MinZoom = -10
	MaxZoom = 6
)

// DocumentSource exposes one page of a document as a cache.Source. The
// rasterizer is resolved through the open-document LRU on every render,
// so a document evicted between renders is transparently reopened.
type DocumentSource struct {
	rasters   *RasterCache
	path      string
	page      int
	pageRect  image.Rectangle
	tileSize  int
	cancelled atomic.Bool
}

// NewDocumentSource opens the document if needed and captures the page
// geometry, which outlives any eviction of the rasterizer itself.
func NewDocumentSource(rasters *RasterCache, path string, page int) (*DocumentSource, error) {
	raster, err := rasters.Get(path)
	if err != nil {
		return nil, err
	}
	rect, err := raster.PageBounds(page)
	if err != nil {
		return nil, err
	}

	return &DocumentSource{
		rasters:  rasters,
		path:     path,
		page:     page,
		pageRect: rect,
		tileSize: raster.TileSize(),
	}, nil
}

// CorrectCoords accepts coordinates whose tile window overlaps the page at
// the requested zoom. Document pages have no wraparound, so nothing is
// corrected.
func (s *DocumentSource) CorrectCoords(coords cache.TileCoords) (cache.TileCoords, bool) {
	if coords.Zoom < MinZoom || coords.Zoom > MaxZoom {
		return coords, false
	}
	if coords.X < 0 || coords.Y < 0 {
		return coords, false
	}

	scale := zoomToScale(coords.Zoom)
	width := int(math.Round(float64(s.pageRect.Dx()) * scale))
	height := int(math.Round(float64(s.pageRect.Dy()) * scale))

	tilesX := (width + s.tileSize - 1) / s.tileSize
	tilesY := (height + s.tileSize - 1) / s.tileSize
	if tilesX < 1 {
		tilesX = 1
	}
	if tilesY < 1 {
		tilesY = 1
	}

	if coords.X >= tilesX || coords.Y >= tilesY {
		return coords, false
	}
	return coords, true
}

func (s *DocumentSource) TilePath(coords cache.TileCoords) string {
	return fmt.Sprintf("page%d/%d/%d_%d.png", s.page, coords.Zoom, coords.X, coords.Y)
}

func (s *DocumentSource) LoadTileImage(coords cache.TileCoords) (*img.Image, error) {
	for {
		if s.cancelled.Load() {
			return nil, cache.ErrCancelled
		}

		raster, err := s.rasters.Get(s.path)
		if err != nil {
			return nil, err
		}

		tile, err := raster.LoadTile(s.page, coords.X, coords.Y, coords.Zoom)
		if errors.Is(err, ErrDocumentClosed) {
			// evicted between the lookup and the render; reopen
			continue
		}
		return tile, err
	}
}

// ResumeLoading re-enables tile rendering after a cancellation.
func (s *DocumentSource) ResumeLoading() {
	s.cancelled.Store(false)
}

// CancelPendingLoads makes subsequent LoadTileImage calls fail fast with
// cache.ErrCancelled until ResumeLoading is called.
func (s *DocumentSource) CancelPendingLoads() {
	s.cancelled.Store(true)
}
