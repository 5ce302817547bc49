package utils

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// Matrix functions used throughout the model.

func Dot(m, n mat.Matrix) mat.Matrix {
	r, _ := m.Dims()
	_, c := n.Dims()
	o := mat.NewDense(r, c, nil)
	o.Product(m, n)
	return o
}

func Apply(fn func(i, j int, v float64) float64, m mat.Matrix) mat.Matrix {
	r, c := m.Dims()
	o := mat.NewDense(r, c, nil)
	o.Apply(fn, m)
	return o
}

func Multiply(m, n mat.Matrix) mat.Matrix {
	r, c := m.Dims()
	o := mat.NewDense(r, c, nil)
	o.MulElem(m, n)
	return o
}

func Add(m, n mat.Matrix) mat.Matrix {
	r, c := m.Dims()
	o := mat.NewDense(r, c, nil)
	o.Add(m, n)
	return o
}

// ---------- Elementwise activations ----------

func SigmoidApply(i, j int, x float64) float64 {
	return 1.0 / (1.0 + math.Exp(-x))
}

func TanhApply(i, j int, x float64) float64 {
	return math.Tanh(x)
}

func ReluApply(i, j int, x float64) float64 {
	if x > 0 {
		return x
	}
	return 0
}

// ---------- Softmax variants ----------

// ColVectorSoftmax applies softmax across the single column of a (r x 1) vector.
// Used for attention weights over timesteps and for output-head probabilities.
func ColVectorSoftmax(v *mat.Dense) *mat.Dense {
	r, c := v.Dims()
	if c != 1 {
		panic("ColVectorSoftmax expects a (r x 1) column vector")
	}
	out := mat.NewDense(r, 1, nil)
	// stability: subtract max
	mx := v.At(0, 0)
	for i := 1; i < r; i++ {
		if v.At(i, 0) > mx {
			mx = v.At(i, 0)
		}
	}
	sum := 0.0
	for i := 0; i < r; i++ {
		e := math.Exp(v.At(i, 0) - mx)
		out.Set(i, 0, e)
		sum += e
	}
	for i := 0; i < r; i++ {
		out.Set(i, 0, out.At(i, 0)/sum)
	}
	return out
}

// SoftmaxBackwardVec is the vector-JVP for a column softmax:
// s = sum_k dA[k] * A[k]; dS[j] = A[j] * (dA[j] - s)
func SoftmaxBackwardVec(dA, A *mat.Dense) *mat.Dense {
	r, c := A.Dims()
	if c != 1 {
		panic("SoftmaxBackwardVec expects (r x 1) vectors")
	}
	s := 0.0
	for k := 0; k < r; k++ {
		s += dA.At(k, 0) * A.At(k, 0)
	}
	dS := mat.NewDense(r, 1, nil)
	for j := 0; j < r; j++ {
		dS.Set(j, 0, A.At(j, 0)*(dA.At(j, 0)-s))
	}
	return dS
}

// ---------- Loss ----------

// CrossEntropyWithIndex returns -log p[gold] and the logits gradient (p - onehot).
func CrossEntropyWithIndex(logits *mat.Dense, gold int) (float64, *mat.Dense) {
	r, c := logits.Dims()
	if c != 1 {
		panic("CrossEntropyWithIndex expects (r x 1) logits vector")
	}
	prob := ColVectorSoftmax(logits)
	if gold < 0 || gold >= r {
		gold = 0
	}
	loss := -math.Log(prob.At(gold, 0) + 1e-12)
	grad := mat.NewDense(r, 1, nil)
	for i := 0; i < r; i++ {
		grad.Set(i, 0, prob.At(i, 0))
	}
	grad.Set(gold, 0, grad.At(gold, 0)-1.0)
	return loss, grad
}

// ArgmaxCol returns the row index of the largest entry of a (r x 1) vector.
func ArgmaxCol(v *mat.Dense) int {
	r, c := v.Dims()
	if c != 1 {
		panic("ArgmaxCol expects a (r x 1) column vector")
	}
	best := 0
	for i := 1; i < r; i++ {
		if v.At(i, 0) > v.At(best, 0) {
			best = i
		}
	}
	return best
}
