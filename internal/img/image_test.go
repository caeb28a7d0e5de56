package img

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildPNG(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 2, 2))))
	return buf.Bytes()
}

func TestNewFillsPixels(t *testing.T) {
	red := color.RGBA{R: 255, A: 255}
	image := New(16, 8, red)

	assert.Equal(t, 16, image.Width())
	assert.Equal(t, 8, image.Height())
	assert.Equal(t, red, image.RGBA().RGBAAt(0, 0))
	assert.Equal(t, red, image.RGBA().RGBAAt(15, 7))
}

func TestNewZeroFill(t *testing.T) {
	image := New(4, 4, color.RGBA{})
	assert.Equal(t, color.RGBA{}, image.RGBA().RGBAAt(2, 2))
}

func TestStoreAndClearEncodedFromPixels(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tile.png")

	blue := color.RGBA{B: 255, A: 255}
	image := New(8, 8, blue)
	require.Nil(t, image.Encoded())

	require.NoError(t, image.StoreAndClearEncoded(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 8, loaded.Width())
	assert.Equal(t, blue, loaded.RGBA().RGBAAt(3, 3))
}

func TestStoreAndClearEncodedReleasesBuffer(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tile.png")

	image := New(2, 2, color.RGBA{A: 255})
	encoded := buildPNG(t)
	image.SetEncoded(encoded)

	require.NoError(t, image.StoreAndClearEncoded(path))

	// the written file holds the encoded bytes verbatim
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, encoded, data)

	// the buffer is released but the pixels remain
	assert.Nil(t, image.Encoded())
	assert.Equal(t, 2, image.Width())
}

func TestStoreFailsOnMissingDirectory(t *testing.T) {
	image := New(2, 2, color.RGBA{})
	err := image.StoreAndClearEncoded(filepath.Join(t.TempDir(), "missing", "tile.png"))
	assert.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.png"))
	assert.Error(t, err)
}

func TestLoadCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.png")
	require.NoError(t, os.WriteFile(path, []byte("not a png"), 0644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestFromEncodedKeepsBytes(t *testing.T) {
	encoded := buildPNG(t)

	image, err := FromEncoded(encoded)
	require.NoError(t, err)
	assert.Equal(t, 2, image.Width())
	assert.Equal(t, 2, image.Height())
	assert.Equal(t, encoded, image.Encoded())
}

func TestFromEncodedRejectsGarbage(t *testing.T) {
	_, err := FromEncoded([]byte("garbage"))
	assert.Error(t, err)
}
