package seq2seq

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"

	"gonum.org/v1/gonum/mat"

	"github.com/thzll2001/timenorm/params"
)

// modelData is the flat on-disk form: dims, both vocabularies, and every
// parameter plus its Adam state in Params() order.
type modelData struct {
	Tx, Ty       int
	EncoderUnits int
	DecoderUnits int
	AttnHidden   int

	HumanTokens   []string
	MachineTokens []string

	Rows, Cols []int
	Weights    [][]float64
	AdamM      [][]float64
	AdamV      [][]float64
	AdamT      int
}

// SaveModel persists the model (weights, Adam state, vocabularies) with gob.
func SaveModel(m *Model, filename string) error {
	ps := m.Params()
	data := modelData{
		Tx:            m.Tx,
		Ty:            m.Ty,
		EncoderUnits:  m.Enc.Units,
		DecoderUnits:  m.Dec.Units,
		AttnHidden:    m.Attn.AttnHidden,
		HumanTokens:   append([]string(nil), m.Human.IDToToken...),
		MachineTokens: append([]string(nil), m.Machine.IDToToken...),
		Rows:          make([]int, len(ps)),
		Cols:          make([]int, len(ps)),
		Weights:       make([][]float64, len(ps)),
		AdamM:         make([][]float64, len(ps)),
		AdamV:         make([][]float64, len(ps)),
		AdamT:         m.AdamT,
	}
	for k, p := range ps {
		r, c := p.Dims()
		data.Rows[k], data.Cols[k] = r, c
		data.Weights[k] = append([]float64(nil), mat.DenseCopyOf(p).RawMatrix().Data...)
		data.AdamM[k] = append([]float64(nil), mat.DenseCopyOf(m.AdamM[k]).RawMatrix().Data...)
		data.AdamV[k] = append([]float64(nil), mat.DenseCopyOf(m.AdamV[k]).RawMatrix().Data...)
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(data); err != nil {
		return err
	}
	if dir := filepath.Dir(filename); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(filename, buf.Bytes(), 0o644)
}

// LoadModel restores a model saved by SaveModel.
func LoadModel(filename string) (*Model, error) {
	raw, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	var data modelData
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&data); err != nil {
		return nil, err
	}

	cfg := params.Config
	cfg.Tx = data.Tx
	cfg.Ty = data.Ty
	cfg.EncoderUnits = data.EncoderUnits
	cfg.DecoderUnits = data.DecoderUnits
	cfg.AttnHidden = data.AttnHidden

	m, err := NewModel(vocabFromTokens(data.HumanTokens), vocabFromTokens(data.MachineTokens), cfg)
	if err != nil {
		return nil, err
	}

	ps := m.Params()
	if len(ps) != len(data.Weights) {
		return nil, fmt.Errorf("load %s: %d parameter blocks, want %d", filename, len(data.Weights), len(ps))
	}
	for k, p := range ps {
		r, c := p.Dims()
		if r != data.Rows[k] || c != data.Cols[k] {
			return nil, fmt.Errorf("load %s: block %d is (%d x %d), want (%d x %d)",
				filename, k, data.Rows[k], data.Cols[k], r, c)
		}
		p.Copy(mat.NewDense(r, c, data.Weights[k]))
		m.AdamM[k].Copy(mat.NewDense(r, c, data.AdamM[k]))
		m.AdamV[k].Copy(mat.NewDense(r, c, data.AdamV[k]))
	}
	m.AdamT = data.AdamT
	return m, nil
}

func vocabFromTokens(toks []string) params.Vocabulary {
	v := params.Vocabulary{
		TokenToID: make(map[string]int, len(toks)),
		IDToToken: append([]string(nil), toks...),
	}
	for i, tok := range v.IDToToken {
		v.TokenToID[tok] = i
	}
	return v
}
