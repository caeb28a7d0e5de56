package rasterizer

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"
	"sync"

	"github.com/gen2brain/go-fitz"
	"go.uber.org/zap"

	"chartview/internal/img"
)

const DefaultTileSize = 256

var (
	// ErrOpenDocument means the backing library could not parse the
	// document container.
	ErrOpenDocument = errors.New("cannot open document")

	// ErrPageEnumeration means the page geometry could not be walked.
	ErrPageEnumeration = errors.New("cannot read page geometry")

	// ErrRender is fatal for a single tile request only.
	ErrRender = errors.New("cannot render page")

	// ErrDocumentClosed is returned by LoadTile once Close has released
	// the parser.
	ErrDocumentClosed = errors.New("document closed")
)

// Rasterizer opens a paginated document and renders square pixel tiles of
// its pages. One page raster is materialized at a time and reused across
// tile requests for the same page and zoom.
//
// LoadTile and Close may be called from any goroutine; a mutex serializes
// access to the parser and the materialized raster. Page geometry is
// captured at open time and read without locking.
type Rasterizer struct {
	logger    *zap.Logger
	pageRects []image.Rectangle
	tileSize  int

	mu     sync.Mutex
	doc    *fitz.Document
	closed bool

	currentPage   int
	currentZoom   int
	currentRaster *image.RGBA
}

// New opens the document at path and captures the bounding rectangle of
// every page. The caller must Close the returned Rasterizer.
func New(path string, logger *zap.Logger) (*Rasterizer, error) {
	doc, err := fitz.New(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrOpenDocument, path, err)
	}

	totalPages := doc.NumPage()
	rects := make([]image.Rectangle, 0, totalPages)
	for i := 0; i < totalPages; i++ {
		rect, err := doc.Bound(i)
		if err != nil {
			doc.Close()
			return nil, fmt.Errorf("%w: page %d: %v", ErrPageEnumeration, i, err)
		}
		rects = append(rects, rect)
	}

	logger.Info("Document loaded",
		zap.String("path", path),
		zap.Int("pages", totalPages))

	return &Rasterizer{
		logger:      logger,
		doc:         doc,
		pageRects:   rects,
		tileSize:    DefaultTileSize,
		currentPage: -1,
	}, nil
}

// zoomToScale maps an integer zoom level to a linear scale factor. Each
// zoom step doubles the rendered area.
func zoomToScale(zoom int) float64 {
	return math.Pow(math.Sqrt2, float64(zoom))
}

func (r *Rasterizer) TileSize() int {
	return r.tileSize
}

func (r *Rasterizer) PageCount() int {
	return len(r.pageRects)
}

// PageWidth returns the rendered pixel width of the page at the given zoom.
func (r *Rasterizer) PageWidth(page, zoom int) (int, error) {
	if page < 0 || page >= len(r.pageRects) {
		return 0, fmt.Errorf("page %d out of range", page)
	}
	return int(math.Round(float64(r.pageRects[page].Dx()) * zoomToScale(zoom))), nil
}

// PageHeight returns the rendered pixel height of the page at the given zoom.
func (r *Rasterizer) PageHeight(page, zoom int) (int, error) {
	if page < 0 || page >= len(r.pageRects) {
		return 0, fmt.Errorf("page %d out of range", page)
	}
	return int(math.Round(float64(r.pageRects[page].Dy()) * zoomToScale(zoom))), nil
}

// PageBounds returns the page rectangle in 72 dpi units.
func (r *Rasterizer) PageBounds(page int) (image.Rectangle, error) {
	if page < 0 || page >= len(r.pageRects) {
		return image.Rectangle{}, fmt.Errorf("page %d out of range", page)
	}
	return r.pageRects[page], nil
}

// LoadTile renders the tile covering the pixel window
// [x*tileSize, (x+1)*tileSize) x [y*tileSize, (y+1)*tileSize) of the page
// at the given zoom. Tile area beyond the page bounds stays zeroed; the
// page itself is rendered on a white background.
func (r *Rasterizer) LoadTile(page, x, y, zoom int) (*img.Image, error) {
	if page < 0 || page >= len(r.pageRects) {
		return nil, fmt.Errorf("page %d out of range", page)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, ErrDocumentClosed
	}

	if err := r.loadPage(page, zoom); err != nil {
		return nil, err
	}

	tile := img.New(r.tileSize, r.tileSize, color.RGBA{})

	window := image.Rect(x*r.tileSize, y*r.tileSize,
		(x+1)*r.tileSize, (y+1)*r.tileSize)
	covered := window.Intersect(r.currentRaster.Bounds())
	if !covered.Empty() {
		draw.Draw(tile.RGBA(), covered.Sub(window.Min), r.currentRaster,
			covered.Min, draw.Src)
	}

	return tile, nil
}

// loadPage materializes the page raster if the cached one does not match.
// Requesting another tile of the same page and zoom reuses the raster
// without touching the parser.
func (r *Rasterizer) loadPage(page, zoom int) error {
	if page == r.currentPage && zoom == r.currentZoom && r.currentRaster != nil {
		return nil
	}

	r.freeCurrentPage()

	r.logger.Debug("Rasterizing page", zap.Int("page", page), zap.Int("zoom", zoom))

	// page bounds are 72 dpi units
	raster, err := r.doc.ImageDPI(page, 72*zoomToScale(zoom))
	if err != nil {
		return fmt.Errorf("%w: page %d: %v", ErrRender, page, err)
	}

	r.currentRaster = raster
	r.currentPage = page
	r.currentZoom = zoom
	return nil
}

func (r *Rasterizer) freeCurrentPage() {
	r.currentRaster = nil
	r.currentPage = -1
}

// Close releases the page raster and the document handle. Idempotent.
// Blocks until an in-flight LoadTile finishes.
func (r *Rasterizer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true
	r.freeCurrentPage()
	return r.doc.Close()
}
