package seq2seq

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/thzll2001/timenorm/utils"
)

func TestAttentionWeightsSumToOne(t *testing.T) {
	Tx, d, h2 := 7, 6, 5
	at := NewAttention(d, h2, 4)
	a := mat.NewDense(Tx, d, utils.RandomArray(Tx*d, 1))
	sPrev := mat.NewDense(h2, 1, utils.RandomArray(h2, 1))

	for step := 0; step < 3; step++ {
		_, alphas, _ := at.Step(a, sPrev)
		r, c := alphas.Dims()
		if r != Tx || c != 1 {
			t.Fatalf("alphas are (%d x %d), want (%d x 1)", r, c, Tx)
		}
		sum := 0.0
		for k := 0; k < Tx; k++ {
			v := alphas.At(k, 0)
			if v < 0 {
				t.Fatalf("negative weight %g at %d", v, k)
			}
			sum += v
		}
		if math.Abs(sum-1.0) > 1e-5 {
			t.Fatalf("weights sum to %g", sum)
		}
		// perturb the state between steps; the same parameters are reused
		sPrev.Set(0, 0, sPrev.At(0, 0)+0.1)
	}
}

func TestAttentionContextShape(t *testing.T) {
	Tx, d, h2 := 5, 8, 6
	at := NewAttention(d, h2, 4)
	a := mat.NewDense(Tx, d, utils.RandomArray(Tx*d, 1))
	ctx, _, _ := at.Step(a, mat.NewDense(h2, 1, nil))
	r, c := ctx.Dims()
	if r != d || c != 1 {
		t.Fatalf("context is (%d x %d), want (%d x 1)", r, c, d)
	}
}

// Loss: L = w . ctx for a fixed w, so dL/dctx = w.
func TestAttentionGradCheck(t *testing.T) {
	Tx, d, h2, nh := 6, 4, 3, 5
	at := NewAttention(d, h2, nh)
	a := mat.NewDense(Tx, d, utils.RandomArray(Tx*d, 1))
	sPrev := mat.NewDense(h2, 1, utils.RandomArray(h2, 1))
	w := mat.NewDense(d, 1, []float64{1.0, -0.5, 0.75, 2.0})

	forward := func() float64 {
		ctx, _, _ := at.Step(a, sPrev)
		l := 0.0
		for k := 0; k < d; k++ {
			l += w.At(k, 0) * ctx.At(k, 0)
		}
		return l
	}

	_, _, cache := at.Step(a, sPrev)
	grads := zerosLikeAll(at.Params())
	dA, dSPrev := at.StepBackward(cache, w, grads)

	finiteDiffCheck(t, "W1", at.W1, grads[0], forward, 0, 0)
	finiteDiffCheck(t, "W1", at.W1, grads[0], forward, 2, d+1)
	finiteDiffCheck(t, "B1", at.B1, grads[1], forward, 1, 0)
	finiteDiffCheck(t, "W2", at.W2, grads[2], forward, 0, 3)
	finiteDiffCheck(t, "B2", at.B2, grads[3], forward, 0, 0)
	finiteDiffCheck(t, "a", a, dA, forward, 2, 1)
	finiteDiffCheck(t, "sPrev", sPrev, dSPrev, forward, 1, 0)
}
