package IO

import (
	"fmt"
	"sort"
	"strings"

	"gonum.org/v1/gonum/mat"

	"github.com/thzll2001/timenorm/params"
)

// Tokenize maps text to a fixed-length id sequence: position i takes text's
// i-th character, <pad> past the end, <unk> for anything the vocabulary does
// not know. Over-long input is truncated. Never errors.
func Tokenize(text string, vocab params.Vocabulary, length int) []int {
	runes := []rune(text)
	ids := make([]int, length)
	for i := 0; i < length; i++ {
		if i < len(runes) {
			ids[i] = vocab.Lookup(string(runes[i]))
		} else {
			ids[i] = vocab.PadID()
		}
	}
	return ids
}

// Detokenize inverts Tokenize for ids the vocabulary knows.
func Detokenize(ids []int, vocab params.Vocabulary) string {
	var sb strings.Builder
	for _, id := range ids {
		if id < 0 || id >= vocab.Size() {
			panic(fmt.Sprintf("detokenize: id %d outside vocab of size %d", id, vocab.Size()))
		}
		tok := vocab.IDToToken[id]
		if tok == params.PadToken {
			continue
		}
		sb.WriteString(tok)
	}
	return sb.String()
}

// OneHot expands an id sequence to a (len x vocabSize) matrix with exactly
// one 1 per row. An id outside [0, vocabSize) means the vocabulary and the
// model dimensions disagree, which is fatal.
func OneHot(ids []int, vocabSize int) *mat.Dense {
	out := mat.NewDense(len(ids), vocabSize, nil)
	for t, id := range ids {
		if id < 0 || id >= vocabSize {
			panic(fmt.Sprintf("oneHot: id %d outside vocab of size %d", id, vocabSize))
		}
		out.Set(t, id, 1.0)
	}
	return out
}

// BuildVocab constructs a vocabulary from raw strings: sorted unique
// characters first, then <unk>, then <pad>. The ordering is what the
// dataset tooling has always produced, so ids stay stable across runs.
func BuildVocab(texts []string) params.Vocabulary {
	seen := map[rune]bool{}
	for _, s := range texts {
		for _, r := range s {
			seen[r] = true
		}
	}
	chars := make([]string, 0, len(seen))
	for r := range seen {
		chars = append(chars, string(r))
	}
	sort.Strings(chars)
	chars = append(chars, params.UnkToken, params.PadToken)

	v := params.Vocabulary{
		TokenToID: make(map[string]int, len(chars)),
		IDToToken: chars,
	}
	for i, tok := range chars {
		v.TokenToID[tok] = i
	}
	return v
}
