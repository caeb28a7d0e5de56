package cache

import (
	"errors"
	"fmt"

	"chartview/internal/img"
)

// TileCoords addresses one tile of a pyramid.
type TileCoords struct {
	X    int
	Y    int
	Zoom int
}

func (c TileCoords) String() string {
	return fmt.Sprintf("%d/%d/%d", c.Zoom, c.X, c.Y)
}

var (
	// ErrInvalidCoords is returned for coordinates the source rejects.
	ErrInvalidCoords = errors.New("invalid tile coordinates")

	// ErrCorruptTile is returned for coordinates that previously failed to
	// render in this session. Cleared by Purge.
	ErrCorruptTile = errors.New("corrupt tile")

	// ErrCancelled is returned by sources whose pending loads were
	// cancelled. The cache drops such tiles silently.
	ErrCancelled = errors.New("tile load cancelled")
)

// Source produces tiles for a Cache. Implementations are a document
// rasterizer, a slippy-map tile server, or a test stub.
type Source interface {
	// CorrectCoords validates coordinates, correcting recoverable ones
	// (e.g. horizontal wraparound on a world map). It returns false only
	// for genuinely invalid requests.
	CorrectCoords(coords TileCoords) (TileCoords, bool)

	// TilePath returns a stable relative path for the tile, used both as
	// the memory cache key and as the on-disk file name.
	TilePath(coords TileCoords) string

	// LoadTileImage renders or fetches the tile. It is synchronous and may
	// be slow; after CancelPendingLoads it must fail fast with ErrCancelled
	// until ResumeLoading is called.
	LoadTileImage(coords TileCoords) (*img.Image, error)

	ResumeLoading()
	CancelPendingLoads()
}
