package seq2seq

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/thzll2001/timenorm/utils"
)

// LSTMCell is one shared set of gate parameters, invoked once per timestep.
// Step carries no state of its own: (h, c) are threaded explicitly by the
// caller, so the same cell can serve every timestep and every example.
type LSTMCell struct {
	InSize int
	Units  int

	Wi, Ui, Bi *mat.Dense // input gate
	Wf, Uf, Bf *mat.Dense // forget gate
	Wo, Uo, Bo *mat.Dense // output gate
	Wc, Uc, Bc *mat.Dense // candidate
}

func NewLSTMCell(inSize, units int) *LSTMCell {
	w := func() *mat.Dense {
		return mat.NewDense(units, inSize, utils.RandomArray(units*inSize, float64(inSize)))
	}
	u := func() *mat.Dense {
		return mat.NewDense(units, units, utils.RandomArray(units*units, float64(units)))
	}
	b := func() *mat.Dense { return mat.NewDense(units, 1, nil) }
	return &LSTMCell{
		InSize: inSize, Units: units,
		Wi: w(), Ui: u(), Bi: b(),
		Wf: w(), Uf: u(), Bf: b(),
		Wo: w(), Uo: u(), Bo: b(),
		Wc: w(), Uc: u(), Bc: b(),
	}
}

// Params returns the cell's parameters in a fixed order shared with
// gradient accumulators and the optimizer.
func (c *LSTMCell) Params() []*mat.Dense {
	return []*mat.Dense{
		c.Wi, c.Ui, c.Bi,
		c.Wf, c.Uf, c.Bf,
		c.Wo, c.Uo, c.Bo,
		c.Wc, c.Uc, c.Bc,
	}
}

// lstmCache holds everything Step computed that StepBackward needs.
type lstmCache struct {
	x, hPrev, cPrev *mat.Dense
	i, f, o, g      *mat.Dense
	cNew, tanhC     *mat.Dense
}

// Step runs one LSTM transition. x is (InSize x 1); hPrev, cPrev are
// (Units x 1). Returns the new state and the backward cache.
func (c *LSTMCell) Step(x, hPrev, cPrev *mat.Dense) (h, cNew *mat.Dense, cache *lstmCache) {
	if r, cc := x.Dims(); r != c.InSize || cc != 1 {
		panic(fmt.Sprintf("lstm step: input is (%d x %d), want (%d x 1)", r, cc, c.InSize))
	}
	gate := func(W, U, B *mat.Dense, act func(int, int, float64) float64) *mat.Dense {
		pre := utils.Add(utils.Add(utils.Dot(W, x), utils.Dot(U, hPrev)), B)
		return utils.ToDense(utils.Apply(act, pre))
	}
	i := gate(c.Wi, c.Ui, c.Bi, utils.SigmoidApply)
	f := gate(c.Wf, c.Uf, c.Bf, utils.SigmoidApply)
	o := gate(c.Wo, c.Uo, c.Bo, utils.SigmoidApply)
	g := gate(c.Wc, c.Uc, c.Bc, utils.TanhApply)

	cNew = utils.ToDense(utils.Add(utils.Multiply(f, cPrev), utils.Multiply(i, g)))
	tanhC := utils.ToDense(utils.Apply(utils.TanhApply, cNew))
	h = utils.ToDense(utils.Multiply(o, tanhC))

	cache = &lstmCache{
		x: x, hPrev: hPrev, cPrev: cPrev,
		i: i, f: f, o: o, g: g,
		cNew: cNew, tanhC: tanhC,
	}
	return h, cNew, cache
}

// StepBackward backpropagates one transition. dh and dc are the gradients
// arriving at this step's h and c outputs. Parameter gradients accumulate
// into g, which must be laid out like Params(). Returns gradients for the
// step inputs.
func (c *LSTMCell) StepBackward(cache *lstmCache, dh, dc *mat.Dense, g []*mat.Dense) (dx, dhPrev, dcPrev *mat.Dense) {
	one := func(m *mat.Dense) mat.Matrix {
		return utils.Apply(func(i, j int, v float64) float64 { return 1 - v }, m)
	}

	do := utils.ToDense(utils.Multiply(dh, cache.tanhC))
	// dcTotal = dc + dh*o*(1 - tanh(c)^2)
	dTanhC := utils.Apply(func(i, j int, v float64) float64 { return 1 - v*v }, cache.tanhC)
	dcTotal := utils.ToDense(utils.Add(dc, utils.Multiply(utils.Multiply(dh, cache.o), dTanhC)))

	di := utils.Multiply(dcTotal, cache.g)
	dg := utils.Multiply(dcTotal, cache.i)
	df := utils.Multiply(dcTotal, cache.cPrev)
	dcPrev = utils.ToDense(utils.Multiply(dcTotal, cache.f))

	// pre-activation gradients
	dai := utils.ToDense(utils.Multiply(utils.Multiply(di, cache.i), one(cache.i)))
	daf := utils.ToDense(utils.Multiply(utils.Multiply(df, cache.f), one(cache.f)))
	dao := utils.ToDense(utils.Multiply(utils.Multiply(do, cache.o), one(cache.o)))
	dag := utils.ToDense(utils.Multiply(dg, utils.Apply(func(i, j int, v float64) float64 { return 1 - v*v }, cache.g)))

	// accumulate parameter grads, Params() order
	acc := func(idx int, grad mat.Matrix) { g[idx].Add(g[idx], grad) }
	xT, hT := cache.x.T(), cache.hPrev.T()
	acc(0, utils.Dot(dai, xT))
	acc(1, utils.Dot(dai, hT))
	acc(2, dai)
	acc(3, utils.Dot(daf, xT))
	acc(4, utils.Dot(daf, hT))
	acc(5, daf)
	acc(6, utils.Dot(dao, xT))
	acc(7, utils.Dot(dao, hT))
	acc(8, dao)
	acc(9, utils.Dot(dag, xT))
	acc(10, utils.Dot(dag, hT))
	acc(11, dag)

	dx = utils.ToDense(utils.Add(
		utils.Add(utils.Dot(c.Wi.T(), dai), utils.Dot(c.Wf.T(), daf)),
		utils.Add(utils.Dot(c.Wo.T(), dao), utils.Dot(c.Wc.T(), dag)),
	))
	dhPrev = utils.ToDense(utils.Add(
		utils.Add(utils.Dot(c.Ui.T(), dai), utils.Dot(c.Uf.T(), daf)),
		utils.Add(utils.Dot(c.Uo.T(), dao), utils.Dot(c.Uc.T(), dag)),
	))
	return dx, dhPrev, dcPrev
}
