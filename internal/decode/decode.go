package decode

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"
)

// GridSize is the fixed side length of the normalized luminance grid consumed
// by the hasher. Changing it changes the fingerprint format.
const GridSize = 32

// ErrInvalidImage indicates an unreadable or unsupported image payload.
var ErrInvalidImage = errors.New("decode: invalid or unsupported image")

// Grid is a GridSize×GridSize grayscale view of a decoded image, stored
// row-major as luminance values in [0, 255].
type Grid struct {
	pix [GridSize * GridSize]float64
}

// At returns the luminance at (x, y).
func (g *Grid) At(x, y int) float64 { return g.pix[y*GridSize+x] }

// Set assigns the luminance at (x, y).
func (g *Grid) Set(x, y int, v float64) { g.pix[y*GridSize+x] = v }

// Decode parses the payload as JPEG, PNG, GIF or WebP and normalizes it to a
// Grid. Pure transform: no I/O, no reference kept to the input buffer.
func Decode(data []byte) (*Grid, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	return FromImage(img), nil
}

// FromImage normalizes an already-decoded image to a Grid: Lanczos resize to
// GridSize×GridSize, then grayscale conversion.
func FromImage(img image.Image) *Grid {
	resized := imaging.Resize(img, GridSize, GridSize, imaging.Lanczos)
	gray := imaging.Grayscale(resized)
	var g Grid
	for y := 0; y < GridSize; y++ {
		for x := 0; x < GridSize; x++ {
			g.pix[y*GridSize+x] = float64(gray.NRGBAAt(x, y).R)
		}
	}
	return &g
}
