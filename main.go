package main

import (
	"context"
	"os"
	"os/signal"
	"time"

	"github.com/rs/zerolog"

	"gonhash/config"
	"gonhash/dataset"
	"gonhash/train"
)

func main() {
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.TimeOnly}).
		With().Timestamp().Logger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, config.Default(), logger); err != nil {
		logger.Error().Err(err).Msg("training failed")
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, c config.Config, logger zerolog.Logger) error {
	if err := c.Validate(); err != nil {
		return err
	}
	info, err := dataset.Lookup(c.Dataset, c.DataRoot)
	if err != nil {
		return err
	}
	splits, err := dataset.Open(info, dataset.Options{Resize: c.ResizeSize, Crop: c.CropSize, Seed: c.Seed})
	if err != nil {
		return err
	}
	r, err := config.Derive(c, splits.Derived(info))
	if err != nil {
		return err
	}
	logger.Info().Msg(r.String())
	if len(splits.ClassNames) > 0 {
		logger.Info().Strs("classes", splits.ClassNames).Msg("class names")
	}

	results, err := train.RunAll(ctx, r, splits, logger)
	for _, res := range results {
		logger.Info().
			Str("run", res.RunID).
			Int("bit", res.Bit).
			Float64("best", res.BestMAP).
			Int("checkpoints", len(res.Checkpoints)).
			Msg("done")
	}
	return err
}
