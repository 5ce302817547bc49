package seq2seq

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/thzll2001/timenorm/utils"
)

// Attention scores every encoder timestep against the current decoder state
// and aggregates encoder features into one context vector. One parameter set
// serves every decode step of every example; Step itself is stateless.
//
// Scoring is a two-layer energy network: concat(a_t, sPrev) -> tanh
// projection of width AttnHidden -> relu scalar, then softmax over the
// timestep axis. Pad positions are scored like any other; there is no mask.
type Attention struct {
	FeatDim    int // encoder feature width (2 * encoder units)
	StateDim   int // decoder hidden size
	AttnHidden int

	W1 *mat.Dense // (AttnHidden x (FeatDim+StateDim))
	B1 *mat.Dense // (AttnHidden x 1)
	W2 *mat.Dense // (1 x AttnHidden)
	B2 *mat.Dense // (1 x 1)
}

func NewAttention(featDim, stateDim, attnHidden int) *Attention {
	in := featDim + stateDim
	return &Attention{
		FeatDim:    featDim,
		StateDim:   stateDim,
		AttnHidden: attnHidden,
		W1:         mat.NewDense(attnHidden, in, utils.RandomArray(attnHidden*in, float64(in))),
		B1:         mat.NewDense(attnHidden, 1, nil),
		W2:         mat.NewDense(1, attnHidden, utils.RandomArray(attnHidden, float64(attnHidden))),
		B2:         mat.NewDense(1, 1, nil),
	}
}

func (at *Attention) Params() []*mat.Dense {
	return []*mat.Dense{at.W1, at.B1, at.W2, at.B2}
}

type attnCache struct {
	a      *mat.Dense // (Tx x FeatDim), shared, read-only
	m      *mat.Dense // (Tx x (FeatDim+StateDim)) concat rows
	e1     *mat.Dense // (Tx x AttnHidden) post-tanh
	pre    *mat.Dense // (Tx x 1) pre-relu scores
	alphas *mat.Dense // (Tx x 1)
}

// Step computes the context vector for one decode step. a is the encoder
// output (Tx x FeatDim); sPrev is the decoder hidden state (StateDim x 1).
// Returns the context (FeatDim x 1) and the attention weights (Tx x 1),
// which are non-negative and sum to 1.
func (at *Attention) Step(a, sPrev *mat.Dense) (ctx, alphas *mat.Dense, cache *attnCache) {
	Tx, d := a.Dims()
	if d != at.FeatDim {
		panic(fmt.Sprintf("attention: feature width %d, want %d", d, at.FeatDim))
	}
	if r, c := sPrev.Dims(); r != at.StateDim || c != 1 {
		panic(fmt.Sprintf("attention: state is (%d x %d), want (%d x 1)", r, c, at.StateDim))
	}

	// broadcast sPrev to every row and concat with the encoder features
	m := mat.NewDense(Tx, at.FeatDim+at.StateDim, nil)
	for t := 0; t < Tx; t++ {
		for j := 0; j < at.FeatDim; j++ {
			m.Set(t, j, a.At(t, j))
		}
		for j := 0; j < at.StateDim; j++ {
			m.Set(t, at.FeatDim+j, sPrev.At(j, 0))
		}
	}

	// energies: tanh(M W1^T + b1) -> relu(. W2^T + b2)
	z1 := utils.ToDense(utils.Dot(m, at.W1.T()))
	for t := 0; t < Tx; t++ {
		for j := 0; j < at.AttnHidden; j++ {
			z1.Set(t, j, z1.At(t, j)+at.B1.At(j, 0))
		}
	}
	e1 := utils.ToDense(utils.Apply(utils.TanhApply, z1))

	pre := utils.ToDense(utils.Dot(e1, at.W2.T()))
	for t := 0; t < Tx; t++ {
		pre.Set(t, 0, pre.At(t, 0)+at.B2.At(0, 0))
	}
	scores := utils.ToDense(utils.Apply(utils.ReluApply, pre))

	// softmax over the Tx axis
	alphas = utils.ColVectorSoftmax(scores)

	// context = sum_t alphas[t] * a[t,:]
	ctx = utils.ToDense(utils.Dot(a.T(), alphas))

	cache = &attnCache{a: a, m: m, e1: e1, pre: pre, alphas: alphas}
	return ctx, alphas, cache
}

// StepBackward backpropagates one attention step. dCtx is the gradient at
// the context vector. Parameter gradients accumulate into g (Params()
// order). Returns gradients for the encoder output and the decoder state.
func (at *Attention) StepBackward(cache *attnCache, dCtx *mat.Dense, g []*mat.Dense) (dA, dSPrev *mat.Dense) {
	Tx, _ := cache.a.Dims()

	// ctx = a^T alphas
	dAlphas := utils.ToDense(utils.Dot(cache.a, dCtx))          // (Tx x 1)
	dA = utils.ToDense(utils.Dot(cache.alphas, dCtx.T()))       // (Tx x FeatDim)
	dScores := utils.SoftmaxBackwardVec(dAlphas, cache.alphas)  // (Tx x 1)

	// relu
	dPre := mat.NewDense(Tx, 1, nil)
	for t := 0; t < Tx; t++ {
		if cache.pre.At(t, 0) > 0 {
			dPre.Set(t, 0, dScores.At(t, 0))
		}
	}

	// scalar projection
	g[2].Add(g[2], utils.Dot(dPre.T(), cache.e1)) // dW2 (1 x AttnHidden)
	sum := 0.0
	for t := 0; t < Tx; t++ {
		sum += dPre.At(t, 0)
	}
	g[3].Set(0, 0, g[3].At(0, 0)+sum) // dB2

	// tanh projection
	dE1 := utils.ToDense(utils.Dot(dPre, at.W2)) // (Tx x AttnHidden)
	dZ1 := utils.ToDense(utils.Multiply(dE1,
		utils.Apply(func(i, j int, v float64) float64 { return 1 - v*v }, cache.e1)))
	g[0].Add(g[0], utils.Dot(dZ1.T(), cache.m)) // dW1
	for j := 0; j < at.AttnHidden; j++ {
		s := 0.0
		for t := 0; t < Tx; t++ {
			s += dZ1.At(t, j)
		}
		g[1].Set(j, 0, g[1].At(j, 0)+s) // dB1
	}

	// split concat gradient back into encoder and state parts
	dM := utils.ToDense(utils.Dot(dZ1, at.W1)) // (Tx x (FeatDim+StateDim))
	dSPrev = mat.NewDense(at.StateDim, 1, nil)
	for t := 0; t < Tx; t++ {
		for j := 0; j < at.FeatDim; j++ {
			dA.Set(t, j, dA.At(t, j)+dM.At(t, j))
		}
		for j := 0; j < at.StateDim; j++ {
			dSPrev.Set(j, 0, dSPrev.At(j, 0)+dM.At(t, at.FeatDim+j))
		}
	}
	return dA, dSPrev
}
