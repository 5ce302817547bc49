package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/olekukonko/tablewriter"

	"github.com/thzll2001/timenorm/IO"
	"github.com/thzll2001/timenorm/seq2seq"
)

var attnJSONPath string

// NormalizeCLI reads expressions from stdin and prints the normalized time.
func NormalizeCLI(model *seq2seq.Model) {
	reader := bufio.NewReader(os.Stdin)
	fmt.Println("Time normalizer CLI. Type 'exit' to quit.")
	for {
		fmt.Print("> ")
		input, err := reader.ReadString('\n')
		if err != nil {
			break
		}
		input = strings.TrimSpace(input)
		if input == "exit" {
			break
		}
		out, err := model.Predict(input)
		if err != nil {
			fmt.Println("error:", err)
			continue
		}
		fmt.Println(out)
	}
}

// ShowAttention prints the per-step attention weights as a table: one row
// per input character, one column per output character. Optionally writes
// the raw matrix as JSON for external plotting.
func ShowAttention(model *seq2seq.Model, input, jsonPath string) error {
	out, alphas, err := model.PredictWithAttention(input)
	if err != nil {
		return err
	}
	fmt.Printf("%q -> %q\n", input, out)

	inIDs := IO.Tokenize(input, model.Human, model.Tx)

	table := tablewriter.NewWriter(os.Stdout)
	header := []string{"in"}
	outRunes := []rune(out)
	for j := 0; j < model.Ty; j++ {
		if j < len(outRunes) {
			header = append(header, string(outRunes[j]))
		} else {
			header = append(header, fmt.Sprintf("t%d", j))
		}
	}
	table.SetHeader(header)
	for t := 0; t < model.Tx; t++ {
		row := []string{model.Human.IDToToken[inIDs[t]]}
		for j := 0; j < model.Ty; j++ {
			row = append(row, fmt.Sprintf("%.3f", alphas.At(t, j)))
		}
		table.Append(row)
	}
	table.Render()

	if jsonPath != "" {
		grid := make([][]float64, model.Tx)
		for t := range grid {
			grid[t] = make([]float64, model.Ty)
			for j := 0; j < model.Ty; j++ {
				grid[t][j] = alphas.At(t, j)
			}
		}
		raw, err := json.MarshalIndent(grid, "", "  ")
		if err != nil {
			return err
		}
		if err := os.WriteFile(jsonPath, raw, 0o644); err != nil {
			return err
		}
		fmt.Println("Wrote attention matrix to", jsonPath)
	}
	return nil
}
