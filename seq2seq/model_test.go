package seq2seq

import (
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/thzll2001/timenorm/IO"
	"github.com/thzll2001/timenorm/params"
)

func testConfig() params.TrainingConfig {
	cfg := params.Config
	cfg.Tx = 8
	cfg.Ty = 5
	cfg.EncoderUnits = 6
	cfg.DecoderUnits = 8
	cfg.AttnHidden = 5
	return cfg
}

func testModel(t *testing.T) *Model {
	t.Helper()
	human := IO.BuildVocab([]string{"0123456789:. "})
	machine := IO.BuildVocab([]string{"0123456789:"})
	m, err := NewModel(human, machine, testConfig())
	require.NoError(t, err)
	return m
}

func TestForwardShapes(t *testing.T) {
	m := testModel(t)
	X := IO.OneHot(IO.Tokenize("8:25", m.Human, m.Tx), m.Human.Size())
	probs, alphas, _ := m.Forward(X)

	require.Len(t, probs, m.Ty, "decoder must emit exactly Ty distributions")
	for tt, p := range probs {
		r, c := p.Dims()
		require.Equal(t, m.Machine.Size(), r)
		require.Equal(t, 1, c)
		sum := 0.0
		for i := 0; i < r; i++ {
			sum += p.At(i, 0)
		}
		assert.InDelta(t, 1.0, sum, 1e-9, "output %d", tt)
	}

	ar, ac := alphas.Dims()
	require.Equal(t, m.Tx, ar)
	require.Equal(t, m.Ty, ac)
	for j := 0; j < ac; j++ {
		sum := 0.0
		for i := 0; i < ar; i++ {
			assert.GreaterOrEqual(t, alphas.At(i, j), 0.0)
			sum += alphas.At(i, j)
		}
		assert.InDelta(t, 1.0, sum, 1e-5, "decode step %d", j)
	}
}

func TestPredictDegenerateInputs(t *testing.T) {
	m := testModel(t)
	for _, in := range []string{"", "xxxx", "        "} {
		_, alphas, err := m.PredictWithAttention(in)
		require.NoError(t, err, "input %q", in)
		r, c := alphas.Dims()
		assert.Equal(t, m.Tx, r)
		assert.Equal(t, m.Ty, c)
	}
}

func TestBackwardLossMatchesForwardProbs(t *testing.T) {
	m := testModel(t)
	X := IO.OneHot(IO.Tokenize("8:25", m.Human, m.Tx), m.Human.Size())
	probs, _, cache := m.Forward(X)
	golds := IO.Tokenize("08:25", m.Machine, m.Ty)

	want := 0.0
	for tt, p := range probs {
		want += -math.Log(p.At(golds[tt], 0) + 1e-12)
	}
	got := m.Backward(cache, golds, NewGrads(m))
	assert.InDelta(t, want, got, 1e-9)
}

// End-to-end gradient check through encoder, attention and decoder against
// the summed per-step cross-entropy.
func TestModelGradCheck(t *testing.T) {
	m := testModel(t)
	X := IO.OneHot(IO.Tokenize("8:25", m.Human, m.Tx), m.Human.Size())
	golds := IO.Tokenize("08:25", m.Machine, m.Ty)

	forward := func() float64 {
		probs, _, _ := m.Forward(X)
		l := 0.0
		for tt, p := range probs {
			l += -math.Log(p.At(golds[tt], 0) + 1e-12)
		}
		return l
	}

	_, _, cache := m.Forward(X)
	g := NewGrads(m)
	loss := m.Backward(cache, golds, g)
	assert.InDelta(t, forward(), loss, 1e-9)

	finiteDiffCheck(t, "Enc.Fwd.Wi", m.Enc.Fwd.Wi, g.EncFwd[0], forward, 0, 0)
	finiteDiffCheck(t, "Enc.Fwd.Uc", m.Enc.Fwd.Uc, g.EncFwd[10], forward, 1, 2)
	finiteDiffCheck(t, "Enc.Bwd.Wf", m.Enc.Bwd.Wf, g.EncBwd[3], forward, 2, 1)
	finiteDiffCheck(t, "Attn.W1", m.Attn.W1, g.Attn[0], forward, 0, 1)
	finiteDiffCheck(t, "Attn.W2", m.Attn.W2, g.Attn[2], forward, 0, 0)
	finiteDiffCheck(t, "Dec.Cell.Wi", m.Dec.Cell.Wi, g.DecCell[0], forward, 0, 0)
	finiteDiffCheck(t, "Dec.Wout", m.Dec.Wout, g.Wout, forward, 1, 3)
	finiteDiffCheck(t, "Dec.Bout", m.Dec.Bout, g.Bout, forward, 2, 0)
}

func TestTrainingStepReducesLoss(t *testing.T) {
	m := testModel(t)
	pairs := [][2]string{
		{"3.20", "03:20"},
		{"7.57", "07:57"},
		{"8:25", "08:25"},
		{"4.03", "04:03"},
	}
	type ex struct {
		X     *mat.Dense
		golds []int
	}
	exs := make([]ex, len(pairs))
	for i, p := range pairs {
		exs[i] = ex{
			X:     IO.OneHot(IO.Tokenize(p[0], m.Human, m.Tx), m.Human.Size()),
			golds: IO.Tokenize(p[1], m.Machine, m.Ty),
		}
	}

	batchLoss := func() float64 {
		l := 0.0
		for _, e := range exs {
			probs, _, _ := m.Forward(e.X)
			for tt, pr := range probs {
				l += -math.Log(pr.At(e.golds[tt], 0) + 1e-12)
			}
		}
		return l
	}

	initial := batchLoss()
	for iter := 0; iter < 150; iter++ {
		g := NewGrads(m)
		for _, e := range exs {
			_, _, cache := m.Forward(e.X)
			m.Backward(cache, e.golds, g)
		}
		g.Scale(1.0 / float64(len(exs)))
		m.ApplyGrads(g, 0.01)
	}
	final := batchLoss()

	require.False(t, math.IsNaN(final) || math.IsInf(final, 0), "loss went non-finite")
	assert.Less(t, final, initial, "training did not reduce the loss")
}

func TestSaveLoadRoundTrip(t *testing.T) {
	m := testModel(t)
	path := filepath.Join(t.TempDir(), "model.gob")
	m.AdamT = 7
	require.NoError(t, SaveModel(m, path))

	loaded, err := LoadModel(path)
	require.NoError(t, err)
	assert.Equal(t, m.Tx, loaded.Tx)
	assert.Equal(t, m.Ty, loaded.Ty)
	assert.Equal(t, 7, loaded.AdamT)
	assert.Equal(t, m.Human.IDToToken, loaded.Human.IDToToken)

	in := "7.57"
	a, _, err := m.PredictWithAttention(in)
	require.NoError(t, err)
	b, _, err := loaded.PredictWithAttention(in)
	require.NoError(t, err)
	assert.Equal(t, a, b, "loaded model must predict identically")

	ps, ls := m.Params(), loaded.Params()
	for k := range ps {
		assert.True(t, mat.EqualApprox(ps[k], ls[k], 1e-12), "param block %d differs", k)
	}
}

func TestForwardRejectsShapeMismatch(t *testing.T) {
	m := testModel(t)
	assert.Panics(t, func() {
		m.Forward(mat.NewDense(m.Tx, m.Human.Size()+1, nil))
	})
	assert.Panics(t, func() {
		m.Forward(mat.NewDense(m.Tx+2, m.Human.Size(), nil))
	})
}
