package seq2seq

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/thzll2001/timenorm/IO"
	"github.com/thzll2001/timenorm/optimizations"
	"github.com/thzll2001/timenorm/params"
	"github.com/thzll2001/timenorm/utils"
)

// Model ties the encoder, the attention mechanism and the decoder together
// with both vocabularies. Parameters are created once at construction and
// shared by reference; Forward never mutates them, so concurrent forward
// passes over different examples are safe. Only ApplyGrads writes.
type Model struct {
	Human   params.Vocabulary
	Machine params.Vocabulary
	Tx, Ty  int

	Enc  *Encoder
	Attn *Attention
	Dec  *Decoder

	// Adam state, parallel to Params()
	AdamM []*mat.Dense
	AdamV []*mat.Dense
	AdamT int
}

func NewModel(human, machine params.Vocabulary, cfg params.TrainingConfig) (*Model, error) {
	if err := human.Check(); err != nil {
		return nil, fmt.Errorf("human vocab: %w", err)
	}
	if err := machine.Check(); err != nil {
		return nil, fmt.Errorf("machine vocab: %w", err)
	}
	if cfg.Tx <= 0 || cfg.Ty <= 0 {
		return nil, fmt.Errorf("bad sequence lengths Tx=%d Ty=%d", cfg.Tx, cfg.Ty)
	}
	featDim := 2 * cfg.EncoderUnits
	m := &Model{
		Human:   human,
		Machine: machine,
		Tx:      cfg.Tx,
		Ty:      cfg.Ty,
		Enc:     NewEncoder(human.Size(), cfg.EncoderUnits),
		Attn:    NewAttention(featDim, cfg.DecoderUnits, cfg.AttnHidden),
		Dec:     NewDecoder(featDim, cfg.DecoderUnits, machine.Size()),
	}
	m.AdamM = zerosLikeAll(m.Params())
	m.AdamV = zerosLikeAll(m.Params())
	return m, nil
}

// Params returns every trainable matrix in a fixed order shared with Grads
// and the Adam state.
func (m *Model) Params() []*mat.Dense {
	out := make([]*mat.Dense, 0, 42)
	out = append(out, m.Enc.Fwd.Params()...)
	out = append(out, m.Enc.Bwd.Params()...)
	out = append(out, m.Attn.Params()...)
	out = append(out, m.Dec.Cell.Params()...)
	out = append(out, m.Dec.Wout, m.Dec.Bout)
	return out
}

// forwardCache carries everything Backward needs for one example.
type forwardCache struct {
	enc  *encCache
	a    *mat.Dense
	attn []*attnCache
	dec  []*decCache
}

// Forward runs one example through encoder, attention and decoder.
// X is the one-hot input (Tx x |human|). Returns Ty probability columns
// (each |machine| x 1), the attention-weight matrix (Tx x Ty, one column
// per decode step), and the backward cache.
func (m *Model) Forward(X *mat.Dense) ([]*mat.Dense, *mat.Dense, *forwardCache) {
	if r, c := X.Dims(); r != m.Tx || c != m.Human.Size() {
		panic(fmt.Sprintf("model: input is (%d x %d), want (%d x %d)", r, c, m.Tx, m.Human.Size()))
	}
	a, encCache := m.Enc.Forward(X)

	cache := &forwardCache{
		enc:  encCache,
		a:    a,
		attn: make([]*attnCache, m.Ty),
		dec:  make([]*decCache, m.Ty),
	}
	probs := make([]*mat.Dense, m.Ty)
	alphaMat := mat.NewDense(m.Tx, m.Ty, nil)

	s := utils.ZeroState(m.Dec.Units)
	c := utils.ZeroState(m.Dec.Units)
	for t := 0; t < m.Ty; t++ {
		ctx, alphas, ac := m.Attn.Step(a, s)
		cache.attn[t] = ac
		s, c, probs[t], cache.dec[t] = m.Dec.Step(ctx, s, c)
		for k := 0; k < m.Tx; k++ {
			alphaMat.Set(k, t, alphas.At(k, 0))
		}
	}
	return probs, alphaMat, cache
}

// Backward accumulates gradients for one example into g and returns the
// summed per-step cross-entropy loss. golds must have length Ty.
func (m *Model) Backward(cache *forwardCache, golds []int, g *Grads) float64 {
	if len(golds) != m.Ty {
		panic(fmt.Sprintf("model: %d targets, want %d", len(golds), m.Ty))
	}
	loss := 0.0
	dA := utils.ZerosLike(cache.a)
	dh := utils.ZeroState(m.Dec.Units)
	dc := utils.ZeroState(m.Dec.Units)

	for t := m.Ty - 1; t >= 0; t-- {
		stepLoss, dCtx, dhPrev, dcPrev := m.Dec.StepBackward(cache.dec[t], golds[t], dh, dc, g.DecCell, g.Wout, g.Bout)
		loss += stepLoss
		dAstep, dsAttn := m.Attn.StepBackward(cache.attn[t], dCtx, g.Attn)
		dA.Add(dA, dAstep)
		// attention and the cell both read s_{t-1}
		dh = utils.ToDense(utils.Add(dhPrev, dsAttn))
		dc = dcPrev
	}

	m.Enc.Backward(cache.enc, dA, g.EncFwd, g.EncBwd)
	return loss
}

// ApplyGrads performs one clipped Adam update over every parameter.
// Callers must ensure no concurrent reader is mid-forward: finish the
// mini-batch, reduce gradients, then update.
func (m *Model) ApplyGrads(g *Grads, lr float64) {
	if clip := params.Config.GradClip; clip > 0 {
		s := utils.ClipGrads(clip, g.All()...)
		if s < 1.0 {
			utils.Debugf("clipped grads by %.4f at step %d", s, m.AdamT+1)
		}
	}
	m.AdamT++
	ps, gs := m.Params(), g.All()
	for k := range ps {
		optimizations.AdamUpdateInPlace(ps[k], gs[k], m.AdamM[k], m.AdamV[k], m.AdamT,
			lr, params.Config.AdamBeta1, params.Config.AdamBeta2, params.Config.AdamEps)
	}
}

// Predict normalizes one free-form time expression.
func (m *Model) Predict(input string) (string, error) {
	out, _, err := m.PredictWithAttention(input)
	return out, err
}

// PredictWithAttention additionally returns the (Tx x Ty) attention-weight
// matrix for visualization.
func (m *Model) PredictWithAttention(input string) (string, *mat.Dense, error) {
	ids := IO.Tokenize(input, m.Human, m.Tx)
	X := IO.OneHot(ids, m.Human.Size())
	probs, alphas, _ := m.Forward(X)

	outIDs := make([]int, m.Ty)
	for t, p := range probs {
		outIDs[t] = utils.ArgmaxCol(p)
	}
	return IO.Detokenize(outIDs, m.Machine), alphas, nil
}
