package phash

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"math"
	"regexp"
	"testing"

	"github.com/snapmatch/snapmatch-go/internal/compare"
	"github.com/snapmatch/snapmatch-go/internal/decode"
)

var hexPattern = regexp.MustCompile(`^[0-9a-f]{64}$`)

// testImage renders a fixed textured scene at the requested size. The scene is
// defined in normalized coordinates so renderings at different resolutions
// depict the same picture.
func testImage(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			u := float64(x) / float64(w)
			v := float64(y) / float64(h)
			val := 128 +
				60*math.Sin(2*math.Pi*3*u)*math.Cos(2*math.Pi*2*v) +
				20*math.Sin(2*math.Pi*5*(u+v))
			c := uint8(math.Max(0, math.Min(255, val)))
			img.SetNRGBA(x, y, color.NRGBA{R: c, G: c, B: c, A: 255})
		}
	}
	return img
}

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

// textureGrid fills a grid with a fixed band-limited texture. The values are
// generic reals, so no DCT coefficient lands exactly on the median by
// coincidence.
func textureGrid() *decode.Grid {
	var g decode.Grid
	for y := 0; y < decode.GridSize; y++ {
		for x := 0; x < decode.GridSize; x++ {
			v := 128 +
				60*math.Sin(0.35*float64(x))*math.Cos(0.21*float64(y)) +
				20*math.Sin(0.13*float64(x+y))
			g.Set(x, y, v)
		}
	}
	return &g
}

func TestFromGridFormat(t *testing.T) {
	t.Parallel()

	fp := NewEngine().FromGrid(textureGrid())
	if !hexPattern.MatchString(fp) {
		t.Fatalf("fingerprint %q does not match ^[0-9a-f]{64}$", fp)
	}
}

func TestFromGridDeterminism(t *testing.T) {
	t.Parallel()

	engine := NewEngine()
	first := engine.FromGrid(textureGrid())
	for i := 0; i < 10; i++ {
		if got := engine.FromGrid(textureGrid()); got != first {
			t.Fatalf("run %d produced %q, want %q", i, got, first)
		}
	}
}

func TestFromBytesDeterminism(t *testing.T) {
	t.Parallel()

	data := encodePNG(t, testImage(64, 64))
	engine := NewEngine()
	first, err := engine.FromBytes(data)
	if err != nil {
		t.Fatalf("FromBytes: %v", err)
	}
	second, err := engine.FromBytes(data)
	if err != nil {
		t.Fatalf("FromBytes: %v", err)
	}
	if first != second {
		t.Fatalf("repeated hashing diverged: %q vs %q", first, second)
	}
	if !hexPattern.MatchString(first) {
		t.Fatalf("fingerprint %q does not match ^[0-9a-f]{64}$", first)
	}
}

func TestFromBytesRejectsCorruptInput(t *testing.T) {
	t.Parallel()

	if _, err := NewEngine().FromBytes([]byte("definitely not an image")); err == nil {
		t.Fatal("expected error for corrupt input")
	}
}

// A uniform brightness shift only moves the DC coefficient, which is excluded
// from the median and always sits far above it, so the fingerprint must not
// change.
func TestBrightnessShiftInvariance(t *testing.T) {
	t.Parallel()

	engine := NewEngine()
	base := textureGrid()

	shifted := textureGrid()
	for y := 0; y < decode.GridSize; y++ {
		for x := 0; x < decode.GridSize; x++ {
			shifted.Set(x, y, shifted.At(x, y)+10)
		}
	}

	if got, want := engine.FromGrid(shifted), engine.FromGrid(base); got != want {
		dist, err := compare.Distance(got, want)
		if err != nil {
			t.Fatalf("distance: %v", err)
		}
		t.Fatalf("brightness shift changed fingerprint by %d bits", dist)
	}
}

func TestDifferentImagesProduceDifferentFingerprints(t *testing.T) {
	t.Parallel()

	engine := NewEngine()
	textured := engine.FromGrid(textureGrid())

	var checker decode.Grid
	for y := 0; y < decode.GridSize; y++ {
		for x := 0; x < decode.GridSize; x++ {
			if (x+y)%2 == 0 {
				checker.Set(x, y, 230)
			} else {
				checker.Set(x, y, 25)
			}
		}
	}

	if engine.FromGrid(&checker) == textured {
		t.Fatal("distinct images produced identical fingerprints")
	}
}

// Renderings of the same scene at different resolutions must land close in
// Hamming distance once normalized to the fixed grid.
func TestScaledRenderingsAreSimilar(t *testing.T) {
	t.Parallel()

	engine := NewEngine()
	small, err := engine.FromBytes(encodePNG(t, testImage(64, 64)))
	if err != nil {
		t.Fatalf("FromBytes small: %v", err)
	}
	large, err := engine.FromBytes(encodePNG(t, testImage(256, 256)))
	if err != nil {
		t.Fatalf("FromBytes large: %v", err)
	}

	dist, err := compare.Distance(small, large)
	if err != nil {
		t.Fatalf("distance: %v", err)
	}
	if dist > compare.TotalBits/4 {
		t.Fatalf("scaled renderings differ by %d bits, want at most %d", dist, compare.TotalBits/4)
	}
}
