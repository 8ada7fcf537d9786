package neuralnet

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"gonhash/config"
)

var ErrUnknownActivation = errors.New("unknown activation")

type ActivationFunction interface {
	Activate(x float64) float64
	Derivative(x float64) float64
}

type ReLU struct{}

func (r ReLU) Activate(x float64) float64 {
	return math.Max(x, 0)
}

func (r ReLU) Derivative(x float64) float64 {
	if x > 0 {
		return 1
	}
	return 0
}

type LeakyReLU struct {
	alpha float64
}

func NewLeakyReLU(alpha float64) LeakyReLU {
	return LeakyReLU{alpha: alpha}
}

func (l LeakyReLU) Activate(x float64) float64 {
	if x > 0 {
		return x
	}
	return l.alpha * x
}

func (l LeakyReLU) Derivative(x float64) float64 {
	if x > 0 {
		return 1
	}
	return l.alpha
}

type Sigmoid struct{}

func (s Sigmoid) Activate(x float64) float64 {
	if x >= 0 {
		return 1 / (1 + math.Exp(-x))
	}
	e := math.Exp(x)
	return e / (1 + e)
}

func (s Sigmoid) Derivative(x float64) float64 {
	sigmoid := s.Activate(x)
	return sigmoid * (1 - sigmoid)
}

type Tanh struct{}

func (t Tanh) Activate(x float64) float64 {
	return math.Tanh(x)
}

func (t Tanh) Derivative(x float64) float64 {
	tanh := t.Activate(x)
	return 1 - tanh*tanh
}

type Linear struct{}

func (t Linear) Activate(x float64) float64 {
	return x
}

func (t Linear) Derivative(x float64) float64 {
	return 1
}

// ActivationByName maps a configured hidden-layer activation to its
// implementation. The empty name selects ReLU.
func ActivationByName(name string) (ActivationFunction, error) {
	switch name {
	case "", config.ActivationReLU:
		return ReLU{}, nil
	case config.ActivationLeakyReLU:
		return NewLeakyReLU(0.01), nil
	case config.ActivationTanh:
		return Tanh{}, nil
	case config.ActivationSigmoid:
		return Sigmoid{}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownActivation, name)
}

// activate writes f(src) into dst element-wise.
func activate(dst, src *mat.Dense, f ActivationFunction) {
	dst.Apply(func(_, _ int, v float64) float64 { return f.Activate(v) }, src)
}

// backprop multiplies grad in place by f'(pre).
func backprop(grad, pre *mat.Dense, f ActivationFunction) {
	grad.Apply(func(i, j int, v float64) float64 { return v * f.Derivative(pre.At(i, j)) }, grad)
}
