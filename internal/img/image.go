package img

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"os"

	_ "image/jpeg"
)

// Image owns a decoded RGBA pixel buffer and, optionally, the encoded bytes
// it was produced from. The encoded bytes are what the tile cache persists
// to disk; they are released after a successful store.
type Image struct {
	rgba    *image.RGBA
	encoded []byte
}

// New creates an image of the given size with every pixel set to fill.
// No decode step is involved.
func New(width, height int, fill color.RGBA) *Image {
	rgba := image.NewRGBA(image.Rect(0, 0, width, height))
	if fill != (color.RGBA{}) {
		draw.Draw(rgba, rgba.Bounds(), image.NewUniform(fill), image.Point{}, draw.Src)
	}
	return &Image{rgba: rgba}
}

// FromRGBA wraps an existing pixel buffer without copying.
func FromRGBA(rgba *image.RGBA) *Image {
	return &Image{rgba: rgba}
}

// Load reads and decodes an image file. The decoded pixels are kept, the
// encoded bytes are not: a loaded file is already persisted.
func Load(path string) (*Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read image file: %w", err)
	}

	image, err := decode(data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return image, nil
}

// FromEncoded decodes in-memory PNG/JPEG bytes and keeps them as the
// encoded representation, e.g. a tile fetched from a map server.
func FromEncoded(data []byte) (*Image, error) {
	image, err := decode(data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image data: %w", err)
	}
	image.encoded = data
	return image, nil
}

func decode(data []byte) (*Image, error) {
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}

	rgba, ok := src.(*image.RGBA)
	if !ok {
		rgba = image.NewRGBA(src.Bounds())
		draw.Draw(rgba, rgba.Bounds(), src, src.Bounds().Min, draw.Src)
	}
	return &Image{rgba: rgba}, nil
}

func (i *Image) Width() int {
	return i.rgba.Bounds().Dx()
}

func (i *Image) Height() int {
	return i.rgba.Bounds().Dy()
}

// RGBA returns the backing pixel buffer.
func (i *Image) RGBA() *image.RGBA {
	return i.rgba
}

// SetEncoded attaches the encoded representation of the pixels, e.g. the
// PNG bytes a tile server responded with.
func (i *Image) SetEncoded(data []byte) {
	i.encoded = data
}

func (i *Image) Encoded() []byte {
	return i.encoded
}

// StoreAndClearEncoded writes the encoded bytes to path and releases them,
// keeping only the decoded pixels. Images that never had encoded bytes are
// encoded as PNG first. The write is atomic (tmp + rename).
func (i *Image) StoreAndClearEncoded(path string) error {
	data := i.encoded
	if data == nil {
		var buf bytes.Buffer
		if err := png.Encode(&buf, i.rgba); err != nil {
			return fmt.Errorf("failed to encode image: %w", err)
		}
		data = buf.Bytes()
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write image file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename image file: %w", err)
	}

	i.encoded = nil
	return nil
}
