package seq2seq

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"
)

func finiteDiffCheck(t *testing.T, name string, param, grad *mat.Dense,
	forward func() float64, i, j int) {
	t.Helper()

	eps := 1e-5
	w0 := param.At(i, j)

	param.Set(i, j, w0+eps)
	lp := forward()

	param.Set(i, j, w0-eps)
	lm := forward()

	param.Set(i, j, w0) // restore

	numGrad := (lp - lm) / (2.0 * eps)
	anaGrad := grad.At(i, j)

	if math.Abs(numGrad-anaGrad) > 1e-4*(1.0+math.Abs(anaGrad)) {
		t.Fatalf("%s[%d,%d] grad mismatch: num=%.6g ana=%.6g",
			name, i, j, numGrad, anaGrad)
	}
}

// Loss for the cell checks: L = wh . h + wc . c with fixed weight vectors,
// so dL/dh = wh and dL/dc = wc exercise both backward inputs.
func TestLSTMCellGradCheck(t *testing.T) {
	cell := NewLSTMCell(3, 4)
	x := mat.NewDense(3, 1, []float64{0.05, -0.2, 0.13})
	hPrev := mat.NewDense(4, 1, []float64{0.1, -0.05, 0.2, 0.0})
	cPrev := mat.NewDense(4, 1, []float64{-0.1, 0.3, 0.0, 0.07})
	wh := mat.NewDense(4, 1, []float64{1.0, -0.5, 0.25, 2.0})
	wc := mat.NewDense(4, 1, []float64{0.5, 1.5, -1.0, 0.1})

	forward := func() float64 {
		h, c, _ := cell.Step(x, hPrev, cPrev)
		l := 0.0
		for k := 0; k < 4; k++ {
			l += wh.At(k, 0)*h.At(k, 0) + wc.At(k, 0)*c.At(k, 0)
		}
		return l
	}

	_, _, cache := cell.Step(x, hPrev, cPrev)
	grads := zerosLikeAll(cell.Params())
	cell.StepBackward(cache, wh, wc, grads)

	names := []string{"Wi", "Ui", "Bi", "Wf", "Uf", "Bf", "Wo", "Uo", "Bo", "Wc", "Uc", "Bc"}
	for k, p := range cell.Params() {
		finiteDiffCheck(t, names[k], p, grads[k], forward, 0, 0)
	}
	// off-corner spot checks on the recurrent weights
	finiteDiffCheck(t, "Ui", cell.Ui, grads[1], forward, 2, 3)
	finiteDiffCheck(t, "Wc", cell.Wc, grads[9], forward, 3, 1)
}

func TestLSTMCellInputGradCheck(t *testing.T) {
	cell := NewLSTMCell(3, 4)
	x := mat.NewDense(3, 1, []float64{0.05, -0.2, 0.13})
	hPrev := mat.NewDense(4, 1, []float64{0.1, -0.05, 0.2, 0.0})
	cPrev := mat.NewDense(4, 1, []float64{-0.1, 0.3, 0.0, 0.07})
	wh := mat.NewDense(4, 1, []float64{1.0, -0.5, 0.25, 2.0})
	zero := mat.NewDense(4, 1, nil)

	forward := func() float64 {
		h, _, _ := cell.Step(x, hPrev, cPrev)
		l := 0.0
		for k := 0; k < 4; k++ {
			l += wh.At(k, 0) * h.At(k, 0)
		}
		return l
	}

	_, _, cache := cell.Step(x, hPrev, cPrev)
	grads := zerosLikeAll(cell.Params())
	dx, dhPrev, dcPrev := cell.StepBackward(cache, wh, zero, grads)

	finiteDiffCheck(t, "x", x, dx, forward, 1, 0)
	finiteDiffCheck(t, "hPrev", hPrev, dhPrev, forward, 2, 0)
	finiteDiffCheck(t, "cPrev", cPrev, dcPrev, forward, 0, 0)
}

func TestLSTMCellRejectsBadInput(t *testing.T) {
	cell := NewLSTMCell(3, 4)
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on mis-sized input")
		}
	}()
	cell.Step(mat.NewDense(5, 1, nil), mat.NewDense(4, 1, nil), mat.NewDense(4, 1, nil))
}
