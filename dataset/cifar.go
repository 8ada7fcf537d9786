package dataset

import (
	"bufio"
	"errors"
	"fmt"
	"image"
	"image/color"
	"io"
	"os"
	"path/filepath"
)

const (
	ImageSize = 32 * 32 * 3
	LabelSize = 1
	Row       = LabelSize + ImageSize

	// BatchRecords is the record count of a full CIFAR-10 batch file.
	BatchRecords = 10000

	cifarClasses = 10
)

// CIFAR10 holds the raw records of all six binary batches: the five training
// batches first, then the test batch.
type CIFAR10 struct {
	images [][]byte
	labels []int
	names  []string
}

// LoadCIFAR10 reads data_batch_1.bin … data_batch_5.bin and test_batch.bin
// from dir.
func LoadCIFAR10(dir string) (*CIFAR10, error) {
	ds := &CIFAR10{
		images: make([][]byte, 0, 6*BatchRecords),
		labels: make([]int, 0, 6*BatchRecords),
	}
	files := []string{
		"data_batch_1.bin", "data_batch_2.bin", "data_batch_3.bin",
		"data_batch_4.bin", "data_batch_5.bin", "test_batch.bin",
	}
	for _, name := range files {
		if err := ds.readBatch(filepath.Join(dir, name)); err != nil {
			return nil, err
		}
	}
	names, err := readLabels(filepath.Join(dir, "batches.meta.txt"))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	ds.names = names
	return ds, nil
}

func (ds *CIFAR10) readBatch(filePath string) error {
	file, err := os.Open(filePath)
	if err != nil {
		return err
	}
	defer file.Close()

	r := bufio.NewReaderSize(file, Row*64)
	for {
		row := make([]byte, Row)
		_, err := io.ReadFull(r, row)
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return fmt.Errorf("%s: record %d: %w", filePath, len(ds.labels), err)
		}
		label := int(row[0])
		if label >= cifarClasses {
			return fmt.Errorf("%s: record %d: label %d out of range", filePath, len(ds.labels), label)
		}
		ds.labels = append(ds.labels, label)
		ds.images = append(ds.images, row[LabelSize:])
	}
}

func readLabels(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	var words []string
	for scanner.Scan() {
		if w := scanner.Text(); w != "" {
			words = append(words, w)
		}
	}
	return words, scanner.Err()
}

func (ds *CIFAR10) Len() int     { return len(ds.labels) }
func (ds *CIFAR10) Classes() int { return cifarClasses }

// Class returns the class id of record i.
// ClassNames returns the names read from batches.meta.txt, or nil when the
// file is absent.
func (ds *CIFAR10) ClassNames() []string { return ds.names }

func (ds *CIFAR10) Class(i int) int { return ds.labels[i] }

func (ds *CIFAR10) Label(i int) []float64 {
	return OneHot(ds.labels[i], cifarClasses)
}

// Image converts record i from planar CHW bytes to an RGBA image.
func (ds *CIFAR10) Image(i int) (image.Image, error) {
	if i < 0 || i >= len(ds.images) {
		return nil, fmt.Errorf("record %d of %d: %w", i, len(ds.images), ErrShape)
	}
	data := ds.images[i]
	img := image.NewRGBA(image.Rect(0, 0, 32, 32))
	for y := 0; y < 32; y++ {
		for x := 0; x < 32; x++ {
			p := y*32 + x
			img.SetRGBA(x, y, color.RGBA{data[p], data[1024+p], data[2048+p], 255})
		}
	}
	return img, nil
}
