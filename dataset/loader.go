package dataset

import (
	"context"
	"errors"
	"fmt"
	"math/rand"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"
	"gorgonia.org/tensor"
)

// Batch is one step of a loader. Indices are dataset positions.
type Batch struct {
	Images  *tensor.Dense // B × C × H × W
	Labels  *mat.Dense    // B × classes
	Indices []int
}

// LoaderOptions configures batching.
type LoaderOptions struct {
	BatchSize int
	Shuffle   bool
	// Workers bounds the samples decoded concurrently within a batch.
	Workers int
	// Prefetch is the number of batches prepared ahead of the consumer.
	Prefetch int
	Seed     int64
}

// Loader iterates a Dataset in batches. Every epoch draws its order and the
// per-sample augmentation seeds from one seeded generator, so the sequence of
// batches is reproducible for a given seed.
type Loader struct {
	ds   Dataset
	opts LoaderOptions
	rng  *rand.Rand
}

func NewLoader(ds Dataset, opts LoaderOptions) *Loader {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 1
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.Prefetch < 0 {
		opts.Prefetch = 0
	}
	return &Loader{ds: ds, opts: opts, rng: rand.New(rand.NewSource(opts.Seed))}
}

func (l *Loader) Dataset() Dataset { return l.ds }

// Len is the number of batches per pass.
func (l *Loader) Len() int {
	return (l.ds.Len() + l.opts.BatchSize - 1) / l.opts.BatchSize
}

// Iter starts one pass over the dataset. The caller must Close the iterator.
func (l *Loader) Iter(ctx context.Context) *Iterator {
	n := l.ds.Len()
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	if l.opts.Shuffle {
		l.rng.Shuffle(n, func(i, j int) { order[i], order[j] = order[j], order[i] })
	}
	seeds := make([]int64, n)
	for i := range seeds {
		seeds[i] = l.rng.Int63()
	}

	ctx, cancel := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(ctx)
	ch := make(chan Batch, l.opts.Prefetch)
	g.Go(func() error {
		defer close(ch)
		for start := 0; start < n; start += l.opts.BatchSize {
			end := min(start+l.opts.BatchSize, n)
			b, err := l.assemble(gctx, order[start:end], seeds[start:end])
			if err != nil {
				return err
			}
			select {
			case ch <- b:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})
	return &Iterator{ch: ch, g: g, cancel: cancel}
}

func (l *Loader) assemble(ctx context.Context, indices []int, seeds []int64) (Batch, error) {
	shape := l.ds.Shape()
	size := 1
	for _, d := range shape {
		size *= d
	}
	classes := l.ds.Classes()
	pixels := make([]float32, len(indices)*size)
	labels := mat.NewDense(len(indices), classes, nil)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(l.opts.Workers)
	for k, idx := range indices {
		k, idx := k, idx
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			px, lb, err := l.ds.Sample(idx, rand.New(rand.NewSource(seeds[k])))
			if err != nil {
				return fmt.Errorf("sample %d: %w", idx, err)
			}
			if len(px) != size || len(lb) != classes {
				return fmt.Errorf("sample %d: %d values and %d classes, want %d and %d: %w",
					idx, len(px), len(lb), size, classes, ErrShape)
			}
			copy(pixels[k*size:(k+1)*size], px)
			labels.SetRow(k, lb)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Batch{}, err
	}

	images := tensor.New(
		tensor.Of(tensor.Float32),
		tensor.WithShape(append([]int{len(indices)}, shape...)...),
		tensor.WithBacking(pixels),
	)
	return Batch{Images: images, Labels: labels, Indices: append([]int(nil), indices...)}, nil
}

// Iterator yields the batches of one pass in order.
type Iterator struct {
	ch     <-chan Batch
	g      *errgroup.Group
	cancel context.CancelFunc
	cur    Batch
	err    error
	done   bool
}

// Next advances to the next batch. It returns false at the end of the pass
// or on the first error.
func (it *Iterator) Next() bool {
	if it.done {
		return false
	}
	b, ok := <-it.ch
	if !ok {
		it.finish()
		return false
	}
	it.cur = b
	return true
}

func (it *Iterator) Batch() Batch { return it.cur }

func (it *Iterator) Err() error { return it.err }

// Close stops the background producer and releases its batches.
func (it *Iterator) Close() {
	if it.done {
		return
	}
	it.cancel()
	for range it.ch {
	}
	it.finish()
	if errors.Is(it.err, context.Canceled) {
		it.err = nil
	}
}

func (it *Iterator) finish() {
	it.done = true
	it.err = it.g.Wait()
	it.cancel()
}
