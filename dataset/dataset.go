package dataset

import (
	"errors"
	"fmt"
	"image"
	"math/rand"
)

var ErrShape = errors.New("sample shape mismatch")

// Dataset is random access to labelled, model-ready samples.
type Dataset interface {
	Len() int
	Classes() int
	// Shape is the per-sample tensor shape, e.g. (3, 32, 32).
	Shape() []int
	// Sample returns the flattened pixels and the label vector of sample i.
	// rng drives augmentation and may be ignored.
	Sample(i int, rng *rand.Rand) ([]float32, []float64, error)
}

// Source is random access to raw labelled images.
type Source interface {
	Len() int
	Classes() int
	Image(i int) (image.Image, error)
	Label(i int) []float64
}

// Subset exposes the indices of src through a transform. Position k of the
// subset is src sample indices[k].
type Subset struct {
	src       Source
	indices   []int
	transform Transform
}

func NewSubset(src Source, indices []int, transform Transform) *Subset {
	return &Subset{src: src, indices: indices, transform: transform}
}

func (s *Subset) Len() int       { return len(s.indices) }
func (s *Subset) Classes() int   { return s.src.Classes() }
func (s *Subset) Shape() []int   { return s.transform.Shape() }
func (s *Subset) Indices() []int { return s.indices }

func (s *Subset) Sample(i int, rng *rand.Rand) ([]float32, []float64, error) {
	if i < 0 || i >= len(s.indices) {
		return nil, nil, fmt.Errorf("sample %d of %d: %w", i, len(s.indices), ErrShape)
	}
	img, err := s.src.Image(s.indices[i])
	if err != nil {
		return nil, nil, err
	}
	return s.transform.Apply(img, rng), s.src.Label(s.indices[i]), nil
}

// Memory is a Dataset of pre-processed samples held in memory.
type Memory struct {
	shape  []int
	pixels [][]float32
	labels [][]float64
}

// NewMemory checks that every sample matches shape and every label has the
// same width.
func NewMemory(shape []int, pixels [][]float32, labels [][]float64) (*Memory, error) {
	if len(pixels) != len(labels) || len(pixels) == 0 {
		return nil, fmt.Errorf("%w: %d samples with %d labels", ErrShape, len(pixels), len(labels))
	}
	size := 1
	for _, d := range shape {
		size *= d
	}
	for i := range pixels {
		if len(pixels[i]) != size {
			return nil, fmt.Errorf("%w: sample %d has %d values, shape %v needs %d", ErrShape, i, len(pixels[i]), shape, size)
		}
		if len(labels[i]) != len(labels[0]) {
			return nil, fmt.Errorf("%w: label %d has %d classes, want %d", ErrShape, i, len(labels[i]), len(labels[0]))
		}
	}
	return &Memory{shape: shape, pixels: pixels, labels: labels}, nil
}

func (m *Memory) Len() int     { return len(m.pixels) }
func (m *Memory) Classes() int { return len(m.labels[0]) }
func (m *Memory) Shape() []int { return m.shape }

func (m *Memory) Sample(i int, _ *rand.Rand) ([]float32, []float64, error) {
	if i < 0 || i >= len(m.pixels) {
		return nil, nil, fmt.Errorf("sample %d of %d: %w", i, len(m.pixels), ErrShape)
	}
	return m.pixels[i], m.labels[i], nil
}

// OneHot encodes a class id as a label vector.
func OneHot(label, numClasses int) []float64 {
	v := make([]float64, numClasses)
	v[label] = 1
	return v
}
