// Package train runs the hashing network training and evaluation loop for
// one bit-length at a time.
package train

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/cheggaaa/pb/v3"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/mat"

	"gonhash/config"
	"gonhash/dataset"
	"gonhash/neuralnet"
	"gonhash/retrieval"
)

var ErrSplits = errors.New("splits do not match the run")

// Evaluation is the outcome of one mAP measurement.
type Evaluation struct {
	Epoch int
	MAP   float64
	Best  float64
	// Saved is set when the score improved and a checkpoint was written.
	Saved *Checkpoint
}

// Result summarises one bit-length run.
type Result struct {
	RunID       string
	Bit         int
	Losses      []float64
	Evaluations []Evaluation
	BestMAP     float64
	Checkpoints []Checkpoint
}

// Trainer owns the network, optimizer and loss memories of one bit-length.
type Trainer struct {
	run    config.Run
	bit    int
	id     string
	logger zerolog.Logger

	net  neuralnet.Network
	opt  neuralnet.Optimizer
	loss *neuralnet.PairwiseLoss

	train    *dataset.Loader
	test     *dataset.Loader
	database *dataset.Loader

	best float64
}

// New prepares a run for bit. The splits must be the ones run was derived
// from.
func New(run config.Run, bit int, splits *dataset.Splits, logger zerolog.Logger) (*Trainer, error) {
	if splits.Train.Len() != run.NumTrain || splits.Test.Len() != run.NumTest ||
		splits.Database.Len() != run.NumDatabase {
		return nil, fmt.Errorf("%w: sizes %d/%d/%d, run has %d/%d/%d", ErrSplits,
			splits.Train.Len(), splits.Test.Len(), splits.Database.Len(),
			run.NumTrain, run.NumTest, run.NumDatabase)
	}
	if splits.Train.Classes() != run.NClass {
		return nil, fmt.Errorf("%w: %d classes, run has %d", ErrSplits, splits.Train.Classes(), run.NClass)
	}
	if bit <= 0 {
		return nil, fmt.Errorf("%w: bit length %d", config.ErrInvalid, bit)
	}

	inputSize := 1
	for _, d := range splits.Train.Shape() {
		inputSize *= d
	}
	activation, err := neuralnet.ActivationByName(run.Activation)
	if err != nil {
		return nil, err
	}
	net, err := neuralnet.New(run.Net, inputSize, run.Hidden, bit, run.Seed, neuralnet.WithActivation(activation))
	if err != nil {
		return nil, err
	}
	opt, err := neuralnet.NewOptimizer(run.Optimizer)
	if err != nil {
		return nil, err
	}

	id := uuid.NewString()
	loaderOpts := func(shuffle bool) dataset.LoaderOptions {
		return dataset.LoaderOptions{
			BatchSize: run.BatchSize,
			Shuffle:   shuffle,
			Workers:   run.Workers,
			Prefetch:  run.Prefetch,
			Seed:      run.Seed + int64(bit),
		}
	}
	return &Trainer{
		run: run,
		bit: bit,
		id:  id,
		logger: logger.With().
			Str("run", id).
			Int("bit", bit).
			Str("dataset", run.Dataset).
			Logger(),
		net:      net,
		opt:      opt,
		loss:     neuralnet.NewPairwiseLoss(run.NumTrain, bit, run.NClass, run.Alpha),
		train:    dataset.NewLoader(splits.Train, loaderOpts(true)),
		test:     dataset.NewLoader(splits.Test, loaderOpts(false)),
		database: dataset.NewLoader(splits.Database, loaderOpts(false)),
	}, nil
}

func (t *Trainer) Network() neuralnet.Network { return t.net }

// Loss exposes the code and label memories of the run.
func (t *Trainer) Loss() *neuralnet.PairwiseLoss { return t.loss }

// Run trains for the configured number of epochs, evaluating every TestMAP
// epochs and checkpointing each improvement of the best mAP. The first error
// ends the run; the returned Result then covers the epochs completed so far.
func (t *Trainer) Run(ctx context.Context) (Result, error) {
	res := Result{RunID: t.id, Bit: t.bit}
	t.logger.Info().
		Str("device", t.run.Device.String()).
		Str("net", fmt.Sprint(t.net)).
		Msg("start")

	for epoch := 0; epoch < t.run.Epochs; epoch++ {
		t.logger.Info().Msgf("%s[%2d/%2d][%s] bit:%d, dataset:%s, training....",
			t.run.Info, epoch+1, t.run.Epochs, time.Now().Format("15:04:05"), t.bit, t.run.Dataset)

		loss, err := t.TrainEpoch(ctx, epoch)
		if err != nil {
			return res, fmt.Errorf("epoch %d: %w", epoch+1, err)
		}
		res.Losses = append(res.Losses, loss)
		t.logger.Info().
			Int("epoch", epoch+1).
			Float64("lr", t.opt.LR()).
			Msgf("loss:%.3f", loss)

		if (epoch+1)%t.run.TestMAP != 0 {
			continue
		}
		ev, err := t.evaluate(ctx, epoch+1)
		res.BestMAP = t.best
		if err != nil {
			return res, fmt.Errorf("epoch %d: %w", epoch+1, err)
		}
		res.Evaluations = append(res.Evaluations, ev)
		if ev.Saved != nil {
			res.Checkpoints = append(res.Checkpoints, *ev.Saved)
		}
	}
	return res, nil
}

// TrainEpoch makes one pass over the train split and returns the mean batch
// loss.
func (t *Trainer) TrainEpoch(ctx context.Context, epoch int) (float64, error) {
	t.opt.SetLR(neuralnet.ScheduledLR(t.run.Optimizer, epoch, t.run.Epochs))

	var bar *pb.ProgressBar
	if t.run.Progress {
		bar = pb.New(t.train.Len()).SetWriter(os.Stdout).Start()
		defer bar.Finish()
	}

	it := t.train.Iter(ctx)
	defer it.Close()
	var total float64
	batches := 0
	for it.Next() {
		b := it.Batch()
		t.net.ZeroGrad()
		codes, err := t.net.Forward(b.Images)
		if err != nil {
			return 0, err
		}
		loss, grad, err := t.loss.Compute(codes, b.Labels, b.Indices)
		if err != nil {
			return 0, err
		}
		total += loss
		batches++
		if err := t.net.Backward(grad); err != nil {
			return 0, err
		}
		if err := t.opt.Step(t.net.Params()); err != nil {
			return 0, err
		}
		if bar != nil {
			bar.Increment()
		}
	}
	if err := it.Err(); err != nil {
		return 0, err
	}
	if batches == 0 {
		return 0, fmt.Errorf("%w: train split is empty", ErrSplits)
	}
	return total / float64(batches), nil
}

// Evaluate encodes the test and database splits and returns the top-K mAP
// together with the database codes.
func (t *Trainer) Evaluate(ctx context.Context) (float64, *mat.Dense, error) {
	testCodes, testLabels, err := retrieval.Encode(ctx, t.net, t.test)
	if err != nil {
		return 0, nil, err
	}
	dbCodes, dbLabels, err := retrieval.Encode(ctx, t.net, t.database)
	if err != nil {
		return 0, nil, err
	}
	mAP, err := retrieval.TopKMAP(dbCodes, testCodes, dbLabels, testLabels, t.run.TopK)
	if err != nil {
		return 0, nil, err
	}
	return mAP, dbCodes, nil
}

func (t *Trainer) evaluate(ctx context.Context, epoch int) (Evaluation, error) {
	mAP, dbCodes, err := t.Evaluate(ctx)
	if err != nil {
		return Evaluation{}, err
	}
	ev := Evaluation{Epoch: epoch, MAP: mAP}
	if mAP > t.best {
		t.best = mAP
		if t.run.SavePath != "" {
			t.logger.Info().Str("path", t.run.SavePath).Msg("save in")
			cp, err := Save(t.run.SavePath, t.run.Dataset, mAP, dbCodes, t.net)
			if err != nil {
				return Evaluation{}, err
			}
			ev.Saved = &cp
		}
	}
	ev.Best = t.best

	t.logger.Info().
		Int("epoch", epoch).
		Float64("mAP", mAP).
		Float64("best", t.best).
		Msgf("%s epoch:%d, bit:%d, dataset:%s, MAP:%.3f, Best MAP: %.3f",
			t.run.Info, epoch, t.bit, t.run.Dataset, mAP, t.best)
	t.logger.Info().Msg(t.run.String())
	return ev, nil
}

// RunAll trains one model per configured bit-length, in order.
func RunAll(ctx context.Context, run config.Run, splits *dataset.Splits, logger zerolog.Logger) ([]Result, error) {
	results := make([]Result, 0, len(run.Bits))
	for _, bit := range run.Bits {
		t, err := New(run, bit, splits, logger)
		if err != nil {
			return results, err
		}
		res, err := t.Run(ctx)
		if err != nil {
			return results, fmt.Errorf("bit %d: %w", bit, err)
		}
		results = append(results, res)
	}
	return results, nil
}
