package seq2seq

import (
	"gonum.org/v1/gonum/mat"

	"github.com/thzll2001/timenorm/utils"
)

// Decoder is the post-attention recurrent cell plus the shared output head.
// It runs exactly Ty steps per example; each step consumes the context
// vector only (no feeding of the previous emitted character).
type Decoder struct {
	Cell    *LSTMCell  // input FeatDim, hidden Units
	Wout    *mat.Dense // (OutSize x Units)
	Bout    *mat.Dense // (OutSize x 1)
	Units   int
	OutSize int
}

func NewDecoder(featDim, units, outSize int) *Decoder {
	return &Decoder{
		Cell:    NewLSTMCell(featDim, units),
		Wout:    mat.NewDense(outSize, units, utils.RandomArray(outSize*units, float64(units))),
		Bout:    mat.NewDense(outSize, 1, nil),
		Units:   units,
		OutSize: outSize,
	}
}

type decCache struct {
	cell   *lstmCache
	s      *mat.Dense // new hidden state, kept for the output-head gradient
	logits *mat.Dense // pre-softmax, kept for the loss gradient
}

// Step advances the decoder one timestep: context -> cell -> shared
// projection -> softmax over the output vocabulary.
func (d *Decoder) Step(ctx, sPrev, cPrev *mat.Dense) (s, c, probs *mat.Dense, cache *decCache) {
	s, c, cellCache := d.Cell.Step(ctx, sPrev, cPrev)
	logits := utils.ToDense(utils.Add(utils.Dot(d.Wout, s), d.Bout))
	probs = utils.ColVectorSoftmax(logits)
	cache = &decCache{cell: cellCache, s: s, logits: logits}
	return s, c, probs, cache
}

// StepBackward backpropagates one decode step given the gold output id and
// the state gradients flowing back from step t+1. The softmax+cross-entropy
// pair collapses to probs - onehot at the logits. Cell gradients accumulate
// into gCell; the head gradients into gWout/gBout. Returns the step loss,
// the context gradient and the gradients for the previous state.
func (d *Decoder) StepBackward(cache *decCache, gold int, dhNext, dcNext *mat.Dense, gCell []*mat.Dense, gWout, gBout *mat.Dense) (loss float64, dCtx, dhPrev, dcPrev *mat.Dense) {
	loss, dLogits := utils.CrossEntropyWithIndex(cache.logits, gold)

	gWout.Add(gWout, utils.Dot(dLogits, cache.s.T()))
	gBout.Add(gBout, dLogits)

	dh := utils.ToDense(utils.Add(utils.Dot(d.Wout.T(), dLogits), dhNext))
	dCtx, dhPrev, dcPrev = d.Cell.StepBackward(cache.cell, dh, dcNext, gCell)
	return loss, dCtx, dhPrev, dcPrev
}
