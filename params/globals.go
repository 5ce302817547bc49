package params

import "fmt"

// Vocabulary stuff
type Vocabulary struct {
	TokenToID map[string]int
	IDToToken []string
}

// Reserved tokens present in every vocabulary.
const (
	PadToken = "<pad>"
	UnkToken = "<unk>"
)

func (v Vocabulary) Size() int { return len(v.IDToToken) }

// Lookup maps a character to its id, falling back to <unk>.
func (v Vocabulary) Lookup(tok string) int {
	if id, ok := v.TokenToID[tok]; ok {
		return id
	}
	return v.UnkID()
}

func (v Vocabulary) PadID() int { return v.TokenToID[PadToken] }
func (v Vocabulary) UnkID() int { return v.TokenToID[UnkToken] }

// Check verifies the char<->id bijection and the reserved entries.
// A broken vocabulary is a configuration error, not something to limp past.
func (v Vocabulary) Check() error {
	if len(v.TokenToID) != len(v.IDToToken) {
		return fmt.Errorf("vocab: %d tokens but %d ids", len(v.TokenToID), len(v.IDToToken))
	}
	for tok, id := range v.TokenToID {
		if id < 0 || id >= len(v.IDToToken) {
			return fmt.Errorf("vocab: token %q has out-of-range id %d", tok, id)
		}
		if v.IDToToken[id] != tok {
			return fmt.Errorf("vocab: id %d maps back to %q, not %q", id, v.IDToToken[id], tok)
		}
	}
	for _, tok := range []string{PadToken, UnkToken} {
		if _, ok := v.TokenToID[tok]; !ok {
			return fmt.Errorf("vocab: missing reserved token %q", tok)
		}
	}
	return nil
}

type TrainingConfig struct {
	// Core model parameters
	Tx           int // input sequence length (chars)
	Ty           int // output sequence length (chars)
	EncoderUnits int // per-direction encoder LSTM size; features are 2x this
	DecoderUnits int // post-attention LSTM size
	AttnHidden   int // width of the attention energy projection

	// Optimization parameters
	LearningRate float64
	LRDecay      float64 // lr_t = lr / (1 + decay*t), t = update count
	AdamBeta1    float64 // default 0.9
	AdamBeta2    float64 // default 0.999
	AdamEps      float64 // default 1e-8

	MaxEpochs int     // fixed number of epochs
	BatchSize int     // mini-batch size
	ValFrac   float64 // fraction of data held out for evaluation
	Epsilon   float64 // stop between epochs if train loss < epsilon (0 = never)

	// Stability parameters
	GradClip   float64 // global grad norm clip; <=0 disables
	Workers    int     // parallel examples per mini-batch (0 = GOMAXPROCS)
	Debug      bool    // enable periodic debug logs
	DebugEvery int     // print every N optimizer steps
}

var Config = TrainingConfig{
	Tx:           41,
	Ty:           5,
	EncoderUnits: 32,
	DecoderUnits: 64,
	AttnHidden:   10,

	LearningRate: 0.005,
	LRDecay:      0.01,
	AdamBeta1:    0.9,
	AdamBeta2:    0.999,
	AdamEps:      1e-8,

	MaxEpochs: 30,
	BatchSize: 100,
	ValFrac:   0.1,
	Epsilon:   1e-4,

	GradClip:   1.0,
	Workers:    0,
	Debug:      false,
	DebugEvery: 100,
}
