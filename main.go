package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/thzll2001/timenorm/IO"
	"github.com/thzll2001/timenorm/params"
	"github.com/thzll2001/timenorm/seq2seq"
)

var (
	dataPath  string
	vocabPath string
	modelPath string
)

func main() {
	root := &cobra.Command{
		Use:   "timenorm",
		Short: "Attention-based normalizer for written time expressions",
		Long:  `timenorm turns free-form time expressions ("48 min before 10 a.m") into 5-character military time ("09:12") with a character-level attention model.`,
	}
	root.PersistentFlags().StringVar(&modelPath, "model", "models/best_model.gob", "model file")

	trainCmd := &cobra.Command{
		Use:   "train",
		Short: "Train on a dataset of [input, output] pairs",
		RunE: func(cmd *cobra.Command, args []string) error {
			ds, err := IO.LoadDataset(dataPath)
			if err != nil {
				return err
			}
			var human, machine params.Vocabulary
			if vocabPath != "" {
				if human, machine, err = IO.LoadVocabs(vocabPath); err != nil {
					return err
				}
			} else {
				human, machine = IO.BuildVocabs(ds)
			}
			model, err := seq2seq.NewModel(human, machine, params.Config)
			if err != nil {
				return err
			}
			fmt.Printf("Training on %d examples (|human|=%d |machine|=%d Tx=%d Ty=%d)\n",
				len(ds), human.Size(), machine.Size(), params.Config.Tx, params.Config.Ty)
			return TrainModel(model, ds, modelPath)
		},
	}
	trainCmd.Flags().StringVar(&dataPath, "data", "data/dataset.json", "dataset file")
	trainCmd.Flags().StringVar(&vocabPath, "vocab", "", "vocabulary file (default: build from dataset)")
	trainCmd.Flags().IntVar(&params.Config.MaxEpochs, "epochs", params.Config.MaxEpochs, "epochs")
	trainCmd.Flags().IntVar(&params.Config.BatchSize, "batch", params.Config.BatchSize, "mini-batch size")
	trainCmd.Flags().Float64Var(&params.Config.LearningRate, "lr", params.Config.LearningRate, "learning rate")
	trainCmd.Flags().Float64Var(&params.Config.LRDecay, "decay", params.Config.LRDecay, "learning-rate decay")
	trainCmd.Flags().Float64Var(&params.Config.GradClip, "clip", params.Config.GradClip, "gradient-norm clip")
	trainCmd.Flags().BoolVar(&params.Config.Debug, "debug", false, "periodic debug logs")

	predictCmd := &cobra.Command{
		Use:   "predict [expression]",
		Short: "Normalize one time expression",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			model, err := seq2seq.LoadModel(modelPath)
			if err != nil {
				return err
			}
			out, err := model.Predict(args[0])
			if err != nil {
				return err
			}
			fmt.Println(out)
			return nil
		},
	}

	chatCmd := &cobra.Command{
		Use:   "chat",
		Short: "Interactive normalization loop",
		RunE: func(cmd *cobra.Command, args []string) error {
			model, err := seq2seq.LoadModel(modelPath)
			if err != nil {
				return err
			}
			NormalizeCLI(model)
			return nil
		},
	}

	attnCmd := &cobra.Command{
		Use:   "attention [expression]",
		Short: "Show the attention-weight matrix for one expression",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			model, err := seq2seq.LoadModel(modelPath)
			if err != nil {
				return err
			}
			return ShowAttention(model, args[0], attnJSONPath)
		},
	}
	attnCmd.Flags().StringVar(&attnJSONPath, "json", "", "also write the matrix as JSON to this path")

	root.AddCommand(trainCmd, predictCmd, chatCmd, attnCmd)
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
