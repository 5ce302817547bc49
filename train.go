package main

import (
	"fmt"
	"math"
	"math/rand"
	"runtime"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"

	"github.com/thzll2001/timenorm/IO"
	"github.com/thzll2001/timenorm/params"
	"github.com/thzll2001/timenorm/seq2seq"
	"github.com/thzll2001/timenorm/utils"
)

// encoded is one example pre-tokenized and one-hot expanded.
type encoded struct {
	X     *mat.Dense
	Golds []int
}

// TrainModel fits the model on ds for Config.MaxEpochs epochs of shuffled
// mini-batches. Within a batch, examples run forward/backward in parallel
// workers; each worker accumulates into its own gradient set, and the one
// Adam update happens only after all workers have finished and reduced.
// Returns an error as soon as the loss stops being finite.
func TrainModel(model *seq2seq.Model, ds []IO.Example, checkpointPath string) error {
	if len(ds) == 0 {
		return fmt.Errorf("train: empty dataset")
	}

	all := encodeExamples(model, ds)
	nVal := int(params.Config.ValFrac * float64(len(all)))
	train, val := all[:len(all)-nVal], all[len(all)-nVal:]
	if len(train) == 0 {
		return fmt.Errorf("train: no examples left after holding out %d for eval", nVal)
	}

	workers := params.Config.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	bestLoss := math.Inf(1)
	step := 0

	for e := 0; e < params.Config.MaxEpochs; e++ {
		start := time.Now()
		rand.Shuffle(len(train), func(i, j int) { train[i], train[j] = train[j], train[i] })

		epochLoss := 0.0
		for lo := 0; lo < len(train); lo += params.Config.BatchSize {
			hi := min(lo+params.Config.BatchSize, len(train))
			batch := train[lo:hi]

			total := seq2seq.NewGrads(model)
			batchLoss := 0.0
			var mu sync.Mutex

			var eg errgroup.Group
			chunk := (len(batch) + workers - 1) / workers
			for w := 0; w < workers && w*chunk < len(batch); w++ {
				part := batch[w*chunk : min((w+1)*chunk, len(batch))]
				eg.Go(func() error {
					local := seq2seq.NewGrads(model)
					localLoss := 0.0
					for _, ex := range part {
						_, _, cache := model.Forward(ex.X)
						localLoss += model.Backward(cache, ex.Golds, local)
					}
					if math.IsNaN(localLoss) || math.IsInf(localLoss, 0) {
						return fmt.Errorf("non-finite loss at step %d", step+1)
					}
					mu.Lock()
					total.Add(local)
					batchLoss += localLoss
					mu.Unlock()
					return nil
				})
			}
			if err := eg.Wait(); err != nil {
				return fmt.Errorf("training diverged: %w", err)
			}
			if !utils.FiniteAll(total.All()...) {
				return fmt.Errorf("training diverged: non-finite gradients at step %d", step+1)
			}

			total.Scale(1.0 / float64(len(batch)))
			step++
			lr := utils.LRSchedule(step, params.Config.LearningRate)
			model.ApplyGrads(total, lr)
			epochLoss += batchLoss

			if params.Config.Debug && step%params.Config.DebugEvery == 0 {
				utils.Debugf("step %d lr=%.5f batch loss=%.4f", step, lr, batchLoss/float64(len(batch)))
			}
		}

		avgLoss := epochLoss / float64(len(train))
		valLoss, headAcc := evaluate(model, val)
		fmt.Printf("Epoch %d - TrainLoss: %.4f, EvalLoss: %.4f, HeadAcc: %s, Time: %v\n",
			e, avgLoss, valLoss, fmtAccs(headAcc), time.Since(start))

		if checkpointPath != "" && avgLoss < bestLoss {
			bestLoss = avgLoss
			if err := seq2seq.SaveModel(model, checkpointPath); err != nil {
				return fmt.Errorf("checkpoint: %w", err)
			}
		}

		// early-stop threshold checked between epochs only
		if params.Config.Epsilon > 0 && avgLoss < params.Config.Epsilon {
			fmt.Println("Stopping early: loss below epsilon.")
			break
		}
	}
	return nil
}

// evaluate returns the mean summed cross-entropy and per-head accuracy on a
// held-out split. Forward only, no gradient tracking.
func evaluate(model *seq2seq.Model, val []encoded) (float64, []float64) {
	if len(val) == 0 {
		return 0, nil
	}
	correct := make([]int, model.Ty)
	lossSum := 0.0
	for _, ex := range val {
		probs, _, _ := model.Forward(ex.X)
		for t, p := range probs {
			lossSum += -math.Log(p.At(ex.Golds[t], 0) + 1e-12)
			if utils.ArgmaxCol(p) == ex.Golds[t] {
				correct[t]++
			}
		}
	}
	acc := make([]float64, model.Ty)
	for t := range acc {
		acc[t] = float64(correct[t]) / float64(len(val))
	}
	return lossSum / float64(len(val)), acc
}

func encodeExamples(model *seq2seq.Model, ds []IO.Example) []encoded {
	out := make([]encoded, len(ds))
	for i, ex := range ds {
		ids := IO.Tokenize(ex.Input, model.Human, model.Tx)
		out[i] = encoded{
			X:     IO.OneHot(ids, model.Human.Size()),
			Golds: IO.Tokenize(ex.Target, model.Machine, model.Ty),
		}
	}
	return out
}

func fmtAccs(accs []float64) string {
	s := "["
	for t, a := range accs {
		if t > 0 {
			s += " "
		}
		s += fmt.Sprintf("%.2f", a)
	}
	return s + "]"
}
