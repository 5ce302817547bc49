package utils

import (
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"

	"github.com/thzll2001/timenorm/params"
)

func RandomArray(size int, v float64) []float64 {
	min := -1.0 / math.Sqrt(v+1e-12)
	max := 1.0 / math.Sqrt(v+1e-12)
	out := make([]float64, size)
	for i := 0; i < size; i++ {
		out[i] = min + (max-min)*rand.Float64()
	}
	return out
}

// Helper functions

func ToDense(m mat.Matrix) *mat.Dense {
	if d, ok := m.(*mat.Dense); ok {
		return d
	}
	return mat.DenseCopyOf(m)
}

func ZerosLike(a *mat.Dense) *mat.Dense {
	r, c := a.Dims()
	return mat.NewDense(r, c, nil)
}

// ZeroState builds an all-zero (dim x 1) state vector. Decoder and encoder
// initial states come from here rather than from shape inference.
func ZeroState(dim int) *mat.Dense {
	return mat.NewDense(dim, 1, nil)
}

func MatrixNorm(m *mat.Dense) float64 {
	r, c := m.Dims()
	s := 0.0
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			v := m.At(i, j)
			s += v * v
		}
	}
	return math.Sqrt(s)
}

// debugging and clipping.

// ClipGrads scales all grads so their combined norm <= maxNorm.
// Returns the scale actually applied (<=1.0) or 1.0 if no clip.
func ClipGrads(maxNorm float64, grads ...*mat.Dense) float64 {
	if maxNorm <= 0 {
		return 1.0
	}
	sum := 0.0
	for _, g := range grads {
		if g == nil {
			continue
		}
		n := MatrixNorm(g)
		sum += n * n
	}
	gn := math.Sqrt(sum)
	if gn <= maxNorm || gn == 0 {
		return 1.0
	}
	s := maxNorm / gn
	for _, g := range grads {
		if g != nil {
			scaleInPlace(g, s)
		}
	}
	return s
}

func scaleInPlace(a *mat.Dense, s float64) {
	if s == 1.0 {
		return
	}
	r, c := a.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			a.Set(i, j, a.At(i, j)*s)
		}
	}
}

// ------- LR schedule: inverse time decay --------
func LRSchedule(step int, base float64) float64 {
	if step <= 0 {
		return base
	}
	d := params.Config.LRDecay
	if d <= 0 {
		return base
	}
	return base / (1.0 + d*float64(step))
}

func Debugf(format string, args ...any) {
	if params.Config.Debug {
		fmt.Printf("[debug] "+format+"\n", args...)
	}
}

// FiniteAll reports whether every entry of every matrix is finite.
func FiniteAll(ms ...*mat.Dense) bool {
	for _, m := range ms {
		if m == nil {
			continue
		}
		r, c := m.Dims()
		for i := 0; i < r; i++ {
			for j := 0; j < c; j++ {
				v := m.At(i, j)
				if math.IsNaN(v) || math.IsInf(v, 0) {
					return false
				}
			}
		}
	}
	return true
}
