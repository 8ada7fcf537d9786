// Package dataset resolves dataset ids, reads the supported image formats,
// splits them into train, test and database sets and batches them.
package dataset

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"

	"gonhash/config"
)

var ErrUnknownDataset = errors.New("unknown dataset")

// Format is the on-disk layout of a dataset.
type Format int

const (
	// FormatCIFAR10 is the CIFAR-10 binary version: five data batches and a
	// test batch of 1 label byte + 3072 CHW pixel bytes per record.
	FormatCIFAR10 Format = iota
	// FormatImageList is a directory of images described by train.txt,
	// test.txt and database.txt lines of "relative/path l1 l2 ... lN".
	FormatImageList
)

// Info is what the dataset id determines before any file is read.
type Info struct {
	Name   string
	NClass int
	// TopK <= 0 retrieves against the whole database.
	TopK   int
	Format Format
	Path   string

	// Per-class sizes for the CIFAR protocols.
	testPerClass  int
	trainPerClass int
	// databaseWithTrain adds the train split to the database.
	databaseWithTrain bool
	// databaseIsTrain makes the database exactly the train split.
	databaseIsTrain bool
}

type entry struct {
	nClass int
	topK   int
	format Format
	dir    string

	testPerClass      int
	trainPerClass     int
	databaseWithTrain bool
	databaseIsTrain   bool
}

var table = map[string]entry{
	// test 1000, train 5000, database 54000
	"cifar10": {nClass: 10, topK: -1, format: FormatCIFAR10, dir: "cifar10", testPerClass: 100, trainPerClass: 500},
	// test 1000, train 5000, database 59000
	"cifar10-1": {nClass: 10, topK: -1, format: FormatCIFAR10, dir: "cifar10", testPerClass: 100, trainPerClass: 500, databaseWithTrain: true},
	// test 10000, train 50000, database 50000
	"cifar10-2": {nClass: 10, topK: -1, format: FormatCIFAR10, dir: "cifar10", testPerClass: 1000, trainPerClass: 5000, databaseIsTrain: true},

	"nuswide_21":   {nClass: 21, topK: 5000, format: FormatImageList, dir: "nuswide_21"},
	"nuswide_21_m": {nClass: 21, topK: 5000, format: FormatImageList, dir: "nuswide_21_m"},
	"nuswide_81_m": {nClass: 81, topK: 5000, format: FormatImageList, dir: "nuswide_81_m"},
	"coco":         {nClass: 80, topK: 5000, format: FormatImageList, dir: "coco"},
	"imagenet":     {nClass: 100, topK: 1000, format: FormatImageList, dir: "imagenet"},
	"mirflickr":    {nClass: 38, topK: -1, format: FormatImageList, dir: "mirflickr"},
	"voc2012":      {nClass: 20, topK: -1, format: FormatImageList, dir: "voc2012"},
}

// Lookup resolves a dataset id. It reads nothing from disk and always returns
// the same Info for the same arguments.
func Lookup(name, root string) (Info, error) {
	e, ok := table[name]
	if !ok {
		return Info{}, fmt.Errorf("%w: %q (known: %v)", ErrUnknownDataset, name, Names())
	}
	return Info{
		Name:              name,
		NClass:            e.nClass,
		TopK:              e.topK,
		Format:            e.format,
		Path:              filepath.Join(root, e.dir),
		testPerClass:      e.testPerClass,
		trainPerClass:     e.trainPerClass,
		databaseWithTrain: e.databaseWithTrain,
		databaseIsTrain:   e.databaseIsTrain,
	}, nil
}

// Names lists the known dataset ids in order.
func Names() []string {
	names := make([]string, 0, len(table))
	for n := range table {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Derived combines the lookup result with the split sizes.
func (s *Splits) Derived(info Info) config.Derived {
	return config.Derived{
		NumTrain:    s.Train.Len(),
		NumTest:     s.Test.Len(),
		NumDatabase: s.Database.Len(),
		NClass:      info.NClass,
		TopK:        info.TopK,
		DataPath:    info.Path,
	}
}
