package rasterizer

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"chartview/internal/cache"
	"chartview/internal/testpdf"
)

func openTestSource(t *testing.T, rasters *RasterCache, pages, page int) *DocumentSource {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.pdf")
	require.NoError(t, testpdf.Write(path, pages))

	source, err := NewDocumentSource(rasters, path, page)
	require.NoError(t, err)
	return source
}

func TestDocumentSourceCoordinateValidation(t *testing.T) {
	rasters, err := NewRasterCache(2, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer rasters.Purge()

	source := openTestSource(t, rasters, 2, 0)

	// 612x792 at zoom 0 needs 3x4 tiles of 256
	tests := []struct {
		name   string
		coords cache.TileCoords
		valid  bool
	}{
		{"origin", cache.TileCoords{X: 0, Y: 0, Zoom: 0}, true},
		{"last tile", cache.TileCoords{X: 2, Y: 3, Zoom: 0}, true},
		{"x past page", cache.TileCoords{X: 3, Y: 0, Zoom: 0}, false},
		{"y past page", cache.TileCoords{X: 0, Y: 4, Zoom: 0}, false},
		{"negative x", cache.TileCoords{X: -1, Y: 0, Zoom: 0}, false},
		{"zoom too deep", cache.TileCoords{X: 0, Y: 0, Zoom: MaxZoom + 1}, false},
		{"shrunk page keeps origin", cache.TileCoords{X: 0, Y: 0, Zoom: -8}, true},
		{"shrunk page rejects rest", cache.TileCoords{X: 1, Y: 0, Zoom: -8}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := source.CorrectCoords(tt.coords)
			assert.Equal(t, tt.valid, ok)
			if ok {
				// document coordinates are never rewritten
				assert.Equal(t, tt.coords, got)
			}
		})
	}
}

func TestDocumentSourceTilePathIsStable(t *testing.T) {
	rasters, err := NewRasterCache(2, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer rasters.Purge()

	path := filepath.Join(t.TempDir(), "test.pdf")
	require.NoError(t, testpdf.Write(path, 2))

	page0, err := NewDocumentSource(rasters, path, 0)
	require.NoError(t, err)
	page1, err := NewDocumentSource(rasters, path, 1)
	require.NoError(t, err)

	coords := cache.TileCoords{X: 1, Y: 2, Zoom: 3}
	assert.Equal(t, "page0/3/1_2.png", page0.TilePath(coords))
	assert.Equal(t, "page1/3/1_2.png", page1.TilePath(coords))
	assert.Equal(t, page0.TilePath(coords), page0.TilePath(coords))
}

func TestDocumentSourcePageOutOfRange(t *testing.T) {
	rasters, err := NewRasterCache(2, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer rasters.Purge()

	path := filepath.Join(t.TempDir(), "test.pdf")
	require.NoError(t, testpdf.Write(path, 1))

	_, err = NewDocumentSource(rasters, path, 5)
	assert.Error(t, err)
}

func TestDocumentSourceRendersThroughCache(t *testing.T) {
	rasters, err := NewRasterCache(2, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer rasters.Purge()

	source := openTestSource(t, rasters, 2, 0)

	image, err := source.LoadTileImage(cache.TileCoords{X: 0, Y: 0, Zoom: 0})
	require.NoError(t, err)
	assert.Equal(t, 256, image.Width())

	source.CancelPendingLoads()
	_, err = source.LoadTileImage(cache.TileCoords{X: 0, Y: 0, Zoom: 0})
	assert.ErrorIs(t, err, cache.ErrCancelled)

	source.ResumeLoading()
	_, err = source.LoadTileImage(cache.TileCoords{X: 0, Y: 0, Zoom: 0})
	assert.NoError(t, err)
}

func TestDocumentSourceSurvivesEviction(t *testing.T) {
	rasters, err := NewRasterCache(1, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer rasters.Purge()

	source := openTestSource(t, rasters, 1, 0)

	first, err := rasters.Get(source.path)
	require.NoError(t, err)

	_, err = source.LoadTileImage(cache.TileCoords{X: 0, Y: 0, Zoom: 0})
	require.NoError(t, err)

	// touching another document pushes ours out of the LRU and closes it
	other := filepath.Join(t.TempDir(), "other.pdf")
	require.NoError(t, testpdf.Write(other, 1))
	_, err = rasters.Get(other)
	require.NoError(t, err)
	require.True(t, first.closed)

	// the source reopens the document instead of memoizing a render error
	image, err := source.LoadTileImage(cache.TileCoords{X: 0, Y: 0, Zoom: 0})
	require.NoError(t, err)
	assert.Equal(t, 256, image.Width())

	// coordinate validation never needed the live rasterizer
	_, ok := source.CorrectCoords(cache.TileCoords{X: 0, Y: 0, Zoom: 0})
	assert.True(t, ok)
}
