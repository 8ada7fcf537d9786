package neuralnet

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

var (
	ErrShape = errors.New("shape mismatch")
	ErrIndex = errors.New("sample index out of range")
)

// LossFunction computes a scalar loss for a batch of codes together with
// its gradient with respect to those codes.
type LossFunction interface {
	Compute(codes, labels *mat.Dense, indices []int) (float64, *mat.Dense, error)
}

// PairwiseLoss is the similarity-preserving hashing loss. It keeps the latest
// code and label of every training sample and scores each batch against all
// of them, which streams the full pairwise likelihood at O(B·N) per batch.
//
// U and Y are owned by one training run and mutated only by Compute.
type PairwiseLoss struct {
	alpha float64
	u     *mat.Dense // numTrain × bit
	y     *mat.Dense // numTrain × nClass
}

var _ LossFunction = (*PairwiseLoss)(nil)

// NewPairwiseLoss allocates zeroed code and label memories.
func NewPairwiseLoss(numTrain, bit, nClass int, alpha float64) *PairwiseLoss {
	return &PairwiseLoss{
		alpha: alpha,
		u:     mat.NewDense(numTrain, bit, nil),
		y:     mat.NewDense(numTrain, nClass, nil),
	}
}

// Compute records codes and labels at indices, then returns the pairwise
// log-likelihood loss plus the binarization penalty and dLoss/dcodes. The
// memory writes carry no gradient: U is a constant of the returned gradient.
func (l *PairwiseLoss) Compute(codes, labels *mat.Dense, indices []int) (float64, *mat.Dense, error) {
	b, bit := codes.Dims()
	numTrain, memBit := l.u.Dims()
	_, nClass := l.y.Dims()
	if bit != memBit {
		return 0, nil, fmt.Errorf("%w: codes have %d bits, memory has %d", ErrShape, bit, memBit)
	}
	if lr, lc := labels.Dims(); lr != b || lc != nClass {
		return 0, nil, fmt.Errorf("%w: labels are %dx%d, want %dx%d", ErrShape, lr, lc, b, nClass)
	}
	if len(indices) != b {
		return 0, nil, fmt.Errorf("%w: %d indices for %d codes", ErrShape, len(indices), b)
	}
	seen := make(map[int]struct{}, b)
	for _, idx := range indices {
		if idx < 0 || idx >= numTrain {
			return 0, nil, fmt.Errorf("%w: %d not in [0, %d)", ErrIndex, idx, numTrain)
		}
		if _, dup := seen[idx]; dup {
			return 0, nil, fmt.Errorf("%w: %d repeated in batch", ErrIndex, idx)
		}
		seen[idx] = struct{}{}
	}

	for k, idx := range indices {
		l.u.SetRow(idx, codes.RawRowView(k))
		l.y.SetRow(idx, labels.RawRowView(k))
	}

	s := Similarity(labels, l.y)
	var ip mat.Dense
	ip.Mul(codes, l.u.T())
	ip.Scale(0.5, &ip)

	n := float64(b * numTrain)
	var sum float64
	// coef holds dLoss1/dIP scaled by dIP/d(codes·Uᵀ) = 0.5.
	coef := mat.NewDense(b, numTrain, nil)
	for i := 0; i < b; i++ {
		ipRow := ip.RawRowView(i)
		sRow := s.RawRowView(i)
		cRow := coef.RawRowView(i)
		for j, x := range ipRow {
			sum += StableSoftplus(x) - sRow[j]*x
			cRow[j] = 0.5 * (Sigmoid{}.Activate(x) - sRow[j]) / n
		}
	}
	loss1 := sum / n

	grad := mat.NewDense(b, bit, nil)
	grad.Mul(coef, l.u)

	loss2 := l.alpha * BinarizationPenalty(codes)
	if l.alpha != 0 {
		scale := l.alpha / float64(b*bit)
		for i := 0; i < b; i++ {
			cRow := codes.RawRowView(i)
			gRow := grad.RawRowView(i)
			for j, c := range cRow {
				gRow[j] += scale * sign(math.Abs(c)-1) * sign(c)
			}
		}
	}
	return loss1 + loss2, grad, nil
}

// CodeRow returns a copy of the stored code for sample i.
func (l *PairwiseLoss) CodeRow(i int) []float64 {
	return mat.Row(nil, i, l.u)
}

// LabelRow returns a copy of the stored label for sample i.
func (l *PairwiseLoss) LabelRow(i int) []float64 {
	return mat.Row(nil, i, l.y)
}

// Similarity returns S with S[i,j] = 1 when batch label i shares a class with
// memory label j and 0 otherwise.
func Similarity(labels, memory *mat.Dense) *mat.Dense {
	var s mat.Dense
	s.Mul(labels, memory.T())
	s.Apply(func(_, _ int, v float64) float64 {
		if v > 0 {
			return 1
		}
		return 0
	}, &s)
	return &s
}

// StableSoftplus computes log(1+exp(x)) as log(1+exp(-|x|)) + max(x, 0).
func StableSoftplus(x float64) float64 {
	return math.Log1p(math.Exp(-math.Abs(x))) + math.Max(x, 0)
}

// BinarizationPenalty is mean(| |c| - 1 |) over every entry of codes.
func BinarizationPenalty(codes *mat.Dense) float64 {
	r, c := codes.Dims()
	var sum float64
	for i := 0; i < r; i++ {
		for _, v := range codes.RawRowView(i) {
			sum += math.Abs(math.Abs(v) - 1)
		}
	}
	return sum / float64(r*c)
}

func sign(x float64) float64 {
	switch {
	case x > 0:
		return 1
	case x < 0:
		return -1
	}
	return 0
}
