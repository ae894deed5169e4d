package phash

import (
	"math"

	"github.com/snapmatch/snapmatch-go/internal/decode"
)

// cosTable[k][i] = cos((2i+1)kπ / 2N), precomputed for the fixed grid size.
var cosTable [decode.GridSize][decode.GridSize]float64

func init() {
	n := float64(decode.GridSize)
	for k := 0; k < decode.GridSize; k++ {
		for i := 0; i < decode.GridSize; i++ {
			cosTable[k][i] = math.Cos((2*float64(i) + 1) * float64(k) * math.Pi / (2 * n))
		}
	}
}

// dct2d applies an orthonormal 2-D DCT-II to the grid, rows first, then
// columns. The returned slice is row-major with the frequency pair (u, v) at
// index v*GridSize+u; (0, 0) is the DC term. The summation order is fixed so
// identical grids always produce bit-identical coefficients.
func dct2d(g *decode.Grid) []float64 {
	const n = decode.GridSize
	scale0 := math.Sqrt(1.0 / float64(n))
	scale := math.Sqrt(2.0 / float64(n))

	rows := make([]float64, n*n)
	for y := 0; y < n; y++ {
		for k := 0; k < n; k++ {
			var sum float64
			for x := 0; x < n; x++ {
				sum += g.At(x, y) * cosTable[k][x]
			}
			s := scale
			if k == 0 {
				s = scale0
			}
			rows[y*n+k] = sum * s
		}
	}

	out := make([]float64, n*n)
	for x := 0; x < n; x++ {
		for k := 0; k < n; k++ {
			var sum float64
			for y := 0; y < n; y++ {
				sum += rows[y*n+x] * cosTable[k][y]
			}
			s := scale
			if k == 0 {
				s = scale0
			}
			out[k*n+x] = sum * s
		}
	}
	return out
}
