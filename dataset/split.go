package dataset

import (
	"fmt"
	"math/rand"
	"path/filepath"
)

// Options controls how the splits are built and transformed.
type Options struct {
	Resize int
	Crop   int
	// Seed fixes the per-class permutation of the CIFAR protocols.
	Seed int64
}

// Splits are the three views a training run consumes. Train positions are
// the sample indices of the loss memories.
type Splits struct {
	Train    Dataset
	Test     Dataset
	Database Dataset
	// ClassNames are set when the source knows them.
	ClassNames []string
}

// ClassSource is a Source whose samples carry a single class id.
type ClassSource interface {
	Source
	Class(i int) int
}

// Named is implemented by sources that ship human-readable class names.
type Named interface {
	ClassNames() []string
}

// Open reads the dataset described by info and builds its splits.
func Open(info Info, opts Options) (*Splits, error) {
	switch info.Format {
	case FormatCIFAR10:
		src, err := LoadCIFAR10(info.Path)
		if err != nil {
			return nil, err
		}
		return SplitByClass(src, info, opts)
	case FormatImageList:
		return openImageLists(info, opts)
	}
	return nil, fmt.Errorf("%w: %q has no reader", ErrUnknownDataset, info.Name)
}

// SplitByClass applies a CIFAR protocol: for every class a seeded
// permutation is cut into test, train and database parts.
func SplitByClass(src ClassSource, info Info, opts Options) (*Splits, error) {
	byClass := make([][]int, src.Classes())
	for i := 0; i < src.Len(); i++ {
		c := src.Class(i)
		if c < 0 || c >= len(byClass) {
			return nil, fmt.Errorf("sample %d has class %d of %d: %w", i, c, len(byClass), ErrShape)
		}
		byClass[c] = append(byClass[c], i)
	}

	rng := rand.New(rand.NewSource(opts.Seed))
	var test, train, database []int
	for c, idx := range byClass {
		if len(idx) < info.testPerClass+info.trainPerClass {
			return nil, fmt.Errorf("class %d has %d samples, protocol needs %d: %w",
				c, len(idx), info.testPerClass+info.trainPerClass, ErrShape)
		}
		rng.Shuffle(len(idx), func(i, j int) { idx[i], idx[j] = idx[j], idx[i] })
		test = append(test, idx[:info.testPerClass]...)
		train = append(train, idx[info.testPerClass:info.testPerClass+info.trainPerClass]...)
		database = append(database, idx[info.testPerClass+info.trainPerClass:]...)
	}
	switch {
	case info.databaseIsTrain:
		database = append([]int(nil), train...)
	case info.databaseWithTrain:
		database = append(append([]int(nil), train...), database...)
	}

	splits := &Splits{
		Train:    NewSubset(src, train, NewTransform(opts.Resize, opts.Crop, true)),
		Test:     NewSubset(src, test, NewTransform(opts.Resize, opts.Crop, false)),
		Database: NewSubset(src, database, NewTransform(opts.Resize, opts.Crop, false)),
	}
	if n, ok := src.(Named); ok {
		splits.ClassNames = n.ClassNames()
	}
	return splits, nil
}

func openImageLists(info Info, opts Options) (*Splits, error) {
	load := func(name string, train bool) (Dataset, error) {
		list, err := LoadImageList(info.Path, filepath.Join(info.Path, name), info.NClass)
		if err != nil {
			return nil, err
		}
		all := make([]int, list.Len())
		for i := range all {
			all[i] = i
		}
		return NewSubset(list, all, NewTransform(opts.Resize, opts.Crop, train)), nil
	}
	train, err := load("train.txt", true)
	if err != nil {
		return nil, err
	}
	test, err := load("test.txt", false)
	if err != nil {
		return nil, err
	}
	database, err := load("database.txt", false)
	if err != nil {
		return nil, err
	}
	return &Splits{Train: train, Test: test, Database: database}, nil
}
