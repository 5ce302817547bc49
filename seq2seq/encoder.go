package seq2seq

import (
	"fmt"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"

	"github.com/thzll2001/timenorm/utils"
)

// Encoder runs two recurrent passes over the input timesteps, one in each
// direction, and concatenates them per timestep. It never sees decoder
// state; its output is computed once per example and read-only afterwards.
type Encoder struct {
	Fwd   *LSTMCell
	Bwd   *LSTMCell
	Units int
}

func NewEncoder(inSize, units int) *Encoder {
	return &Encoder{
		Fwd:   NewLSTMCell(inSize, units),
		Bwd:   NewLSTMCell(inSize, units),
		Units: units,
	}
}

type encCache struct {
	fwd []*lstmCache // indexed by timestep
	bwd []*lstmCache // indexed by timestep
}

// Forward maps a one-hot input (Tx x Vin) to features (Tx x 2*Units).
// The two directions have no data dependency on each other and run
// concurrently.
func (e *Encoder) Forward(X *mat.Dense) (*mat.Dense, *encCache) {
	Tx, vin := X.Dims()
	if vin != e.Fwd.InSize {
		panic(fmt.Sprintf("encoder: input width %d does not match vocab size %d", vin, e.Fwd.InSize))
	}
	A := mat.NewDense(Tx, 2*e.Units, nil)
	cache := &encCache{
		fwd: make([]*lstmCache, Tx),
		bwd: make([]*lstmCache, Tx),
	}

	var eg errgroup.Group
	eg.Go(func() error {
		h, c := utils.ZeroState(e.Units), utils.ZeroState(e.Units)
		for t := 0; t < Tx; t++ {
			h, c, cache.fwd[t] = e.Fwd.Step(rowAsCol(X, t), h, c)
			for k := 0; k < e.Units; k++ {
				A.Set(t, k, h.At(k, 0))
			}
		}
		return nil
	})
	eg.Go(func() error {
		h, c := utils.ZeroState(e.Units), utils.ZeroState(e.Units)
		for t := Tx - 1; t >= 0; t-- {
			h, c, cache.bwd[t] = e.Bwd.Step(rowAsCol(X, t), h, c)
			for k := 0; k < e.Units; k++ {
				A.Set(t, e.Units+k, h.At(k, 0))
			}
		}
		return nil
	})
	_ = eg.Wait()

	return A, cache
}

// Backward runs BPTT on both directions given dA (Tx x 2*Units),
// accumulating parameter gradients into gFwd and gBwd.
func (e *Encoder) Backward(cache *encCache, dA *mat.Dense, gFwd, gBwd []*mat.Dense) {
	Tx, _ := dA.Dims()

	// forward direction: state flowed t-1 -> t, so walk t descending
	dh, dc := utils.ZeroState(e.Units), utils.ZeroState(e.Units)
	for t := Tx - 1; t >= 0; t-- {
		for k := 0; k < e.Units; k++ {
			dh.Set(k, 0, dh.At(k, 0)+dA.At(t, k))
		}
		_, dh, dc = e.Fwd.StepBackward(cache.fwd[t], dh, dc, gFwd)
	}

	// backward direction: state flowed t+1 -> t, so walk t ascending
	dh, dc = utils.ZeroState(e.Units), utils.ZeroState(e.Units)
	for t := 0; t < Tx; t++ {
		for k := 0; k < e.Units; k++ {
			dh.Set(k, 0, dh.At(k, 0)+dA.At(t, e.Units+k))
		}
		_, dh, dc = e.Bwd.StepBackward(cache.bwd[t], dh, dc, gBwd)
	}
}

// rowAsCol copies row t of X into a fresh (cols x 1) vector.
func rowAsCol(X *mat.Dense, t int) *mat.Dense {
	_, c := X.Dims()
	out := mat.NewDense(c, 1, nil)
	for j := 0; j < c; j++ {
		out.Set(j, 0, X.At(t, j))
	}
	return out
}
