package IO

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/thzll2001/timenorm/params"
)

// Example is one labeled pair: free-form time expression in, military time out.
type Example struct {
	Input  string
	Target string
}

// LoadDataset reads a JSON array of [input, output] pairs.
func LoadDataset(path string) ([]Example, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var pairs [][]string
	if err := json.Unmarshal(raw, &pairs); err != nil {
		return nil, fmt.Errorf("dataset %s: %w", path, err)
	}
	out := make([]Example, 0, len(pairs))
	for i, p := range pairs {
		if len(p) != 2 {
			return nil, fmt.Errorf("dataset %s: entry %d has %d fields, want 2", path, i, len(p))
		}
		out = append(out, Example{Input: p[0], Target: p[1]})
	}
	return out, nil
}

// LoadVocabs reads the vocabulary file: two independent char->id maps.
func LoadVocabs(path string) (human, machine params.Vocabulary, err error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return human, machine, err
	}
	var data struct {
		HumanVocab   map[string]int `json:"human_vocab"`
		MachineVocab map[string]int `json:"machine_vocab"`
	}
	if err := json.Unmarshal(raw, &data); err != nil {
		return human, machine, fmt.Errorf("vocab %s: %w", path, err)
	}
	if human, err = vocabFromMap(data.HumanVocab); err != nil {
		return human, machine, fmt.Errorf("vocab %s: human_vocab: %w", path, err)
	}
	if machine, err = vocabFromMap(data.MachineVocab); err != nil {
		return human, machine, fmt.Errorf("vocab %s: machine_vocab: %w", path, err)
	}
	return human, machine, nil
}

// BuildVocabs derives both vocabularies from the dataset itself, for when no
// vocabulary file is supplied.
func BuildVocabs(ds []Example) (human, machine params.Vocabulary) {
	ins := make([]string, len(ds))
	outs := make([]string, len(ds))
	for i, ex := range ds {
		ins[i] = ex.Input
		outs[i] = ex.Target
	}
	return BuildVocab(ins), BuildVocab(outs)
}

func vocabFromMap(m map[string]int) (params.Vocabulary, error) {
	v := params.Vocabulary{
		TokenToID: make(map[string]int, len(m)),
		IDToToken: make([]string, len(m)),
	}
	for tok, id := range m {
		if id < 0 || id >= len(m) {
			return v, fmt.Errorf("token %q has out-of-range id %d", tok, id)
		}
		if v.IDToToken[id] != "" {
			return v, fmt.Errorf("ids %q and %q collide at %d", v.IDToToken[id], tok, id)
		}
		v.TokenToID[tok] = id
		v.IDToToken[id] = tok
	}
	if err := v.Check(); err != nil {
		return v, err
	}
	return v, nil
}
