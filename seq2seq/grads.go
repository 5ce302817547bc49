package seq2seq

import (
	"gonum.org/v1/gonum/mat"

	"github.com/thzll2001/timenorm/utils"
)

// Grads is one accumulator for every parameter in the model, laid out to
// mirror Model.Params(). Each training worker owns its own Grads; they are
// reduced with Add before the optimizer runs.
type Grads struct {
	EncFwd  []*mat.Dense
	EncBwd  []*mat.Dense
	Attn    []*mat.Dense
	DecCell []*mat.Dense
	Wout    *mat.Dense
	Bout    *mat.Dense
}

func NewGrads(m *Model) *Grads {
	return &Grads{
		EncFwd:  zerosLikeAll(m.Enc.Fwd.Params()),
		EncBwd:  zerosLikeAll(m.Enc.Bwd.Params()),
		Attn:    zerosLikeAll(m.Attn.Params()),
		DecCell: zerosLikeAll(m.Dec.Cell.Params()),
		Wout:    utils.ZerosLike(m.Dec.Wout),
		Bout:    utils.ZerosLike(m.Dec.Bout),
	}
}

// All returns every gradient matrix in Model.Params() order.
func (g *Grads) All() []*mat.Dense {
	out := make([]*mat.Dense, 0, len(g.EncFwd)+len(g.EncBwd)+len(g.Attn)+len(g.DecCell)+2)
	out = append(out, g.EncFwd...)
	out = append(out, g.EncBwd...)
	out = append(out, g.Attn...)
	out = append(out, g.DecCell...)
	out = append(out, g.Wout, g.Bout)
	return out
}

func (g *Grads) Add(o *Grads) {
	dst, src := g.All(), o.All()
	for k := range dst {
		dst[k].Add(dst[k], src[k])
	}
}

// Scale multiplies every gradient by s (used to average over a mini-batch).
func (g *Grads) Scale(s float64) {
	for _, m := range g.All() {
		m.Scale(s, m)
	}
}

func zerosLikeAll(ps []*mat.Dense) []*mat.Dense {
	out := make([]*mat.Dense, len(ps))
	for k, p := range ps {
		out[k] = utils.ZerosLike(p)
	}
	return out
}
