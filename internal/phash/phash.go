// Package phash derives fixed-length perceptual fingerprints from normalized
// luminance grids. The fingerprint format (grid size, retained block, bit
// order) is frozen: any change to these constants is a breaking change to
// every previously issued hash.
package phash

import (
	"encoding/hex"
	"sort"

	"github.com/snapmatch/snapmatch-go/internal/decode"
)

// dctBlock is the side of the retained low-frequency DCT block. One bit per
// retained coefficient: 16×16 = 256 bits = 64 hex characters.
const dctBlock = 16

// Engine computes perceptual hashes over normalized pixel grids.
type Engine struct{}

// NewEngine builds a pHash engine with the fixed fingerprint parameters.
func NewEngine() *Engine {
	return &Engine{}
}

// FromBytes decodes the provided buffer and returns its fingerprint.
func (e *Engine) FromBytes(data []byte) (string, error) {
	g, err := decode.Decode(data)
	if err != nil {
		return "", err
	}
	return e.FromGrid(g), nil
}

// FromGrid reduces the grid to the frequency domain and quantizes the retained
// low-frequency block into a 256-bit fingerprint: a coefficient strictly above
// the median becomes 1, everything else (including an exact tie) becomes 0.
// The median is taken over the retained block minus the DC term, which tracks
// absolute brightness and would otherwise skew it; bits are emitted in raster
// order, packed MSB-first, and rendered as lowercase hex.
func (e *Engine) FromGrid(g *decode.Grid) string {
	coeffs := dct2d(g)

	retained := make([]float64, 0, dctBlock*dctBlock)
	for v := 0; v < dctBlock; v++ {
		for u := 0; u < dctBlock; u++ {
			retained = append(retained, coeffs[v*decode.GridSize+u])
		}
	}

	med := medianExcludingDC(retained)
	packed := make([]byte, len(retained)/8)
	for i, c := range retained {
		if c > med {
			packed[i/8] |= 1 << (7 - uint(i%8))
		}
	}
	return hex.EncodeToString(packed)
}

func medianExcludingDC(coeffs []float64) float64 {
	ac := make([]float64, len(coeffs)-1)
	copy(ac, coeffs[1:])
	sort.Float64s(ac)
	return ac[len(ac)/2]
}
