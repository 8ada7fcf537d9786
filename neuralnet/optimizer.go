package neuralnet

import (
	"errors"
	"fmt"
	"math"

	"gonhash/config"
)

var ErrOptimizer = errors.New("invalid optimizer")

// Optimizer applies accumulated gradients to parameters.
type Optimizer interface {
	Step(params []*Param) error
	LR() float64
	SetLR(lr float64)
}

// NewOptimizer builds the optimizer described by the configuration.
func NewOptimizer(c config.Optimizer) (Optimizer, error) {
	switch c.Type {
	case config.OptimizerSGD:
		return &SGD{Lr: c.LR, Momentum: c.Momentum, WeightDecay: c.WeightDecay}, nil
	case config.OptimizerRMSprop:
		alpha := c.Alpha
		if alpha == 0 {
			alpha = 0.99
		}
		eps := c.Eps
		if eps == 0 {
			eps = 1e-8
		}
		return &RMSprop{Lr: c.LR, Alpha: alpha, Eps: eps, Momentum: c.Momentum, WeightDecay: c.WeightDecay}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrOptimizer, c.Type)
}

// SGD implements stochastic gradient descent with momentum and L2 weight decay.
type SGD struct {
	Lr          float64
	Momentum    float64
	WeightDecay float64

	velocity map[*Param][]float64
}

func (o *SGD) LR() float64       { return o.Lr }
func (o *SGD) SetLR(lr float64) { o.Lr = lr }

func (o *SGD) Step(params []*Param) error {
	if o.velocity == nil {
		o.velocity = make(map[*Param][]float64)
	}
	for _, p := range params {
		if len(p.Grad) != len(p.Value) {
			return fmt.Errorf("%w: %s has %d gradients for %d values", ErrShape, p.Name, len(p.Grad), len(p.Value))
		}
		v, ok := o.velocity[p]
		if !ok && o.Momentum != 0 {
			v = make([]float64, len(p.Value))
			o.velocity[p] = v
		}
		for k, w := range p.Value {
			g := p.Grad[k] + o.WeightDecay*w
			if o.Momentum != 0 {
				if ok {
					v[k] = o.Momentum*v[k] + g
				} else {
					v[k] = g
				}
				g = v[k]
			}
			p.Value[k] = w - o.Lr*g
		}
	}
	return nil
}

// RMSprop scales every step by a running average of squared gradients.
type RMSprop struct {
	Lr          float64
	Alpha       float64
	Eps         float64
	Momentum    float64
	WeightDecay float64

	square map[*Param][]float64
	buf    map[*Param][]float64
}

func (o *RMSprop) LR() float64       { return o.Lr }
func (o *RMSprop) SetLR(lr float64) { o.Lr = lr }

func (o *RMSprop) Step(params []*Param) error {
	if o.square == nil {
		o.square = make(map[*Param][]float64)
		o.buf = make(map[*Param][]float64)
	}
	for _, p := range params {
		if len(p.Grad) != len(p.Value) {
			return fmt.Errorf("%w: %s has %d gradients for %d values", ErrShape, p.Name, len(p.Grad), len(p.Value))
		}
		sq, ok := o.square[p]
		if !ok {
			sq = make([]float64, len(p.Value))
			o.square[p] = sq
		}
		var buf []float64
		if o.Momentum != 0 {
			if buf, ok = o.buf[p]; !ok {
				buf = make([]float64, len(p.Value))
				o.buf[p] = buf
			}
		}
		for k, w := range p.Value {
			g := p.Grad[k] + o.WeightDecay*w
			sq[k] = o.Alpha*sq[k] + (1-o.Alpha)*g*g
			step := g / (math.Sqrt(sq[k]) + o.Eps)
			if buf != nil {
				buf[k] = o.Momentum*buf[k] + step
				step = buf[k]
			}
			p.Value[k] = w - o.Lr*step
		}
	}
	return nil
}

// ScheduledLR returns the learning rate for a zero-based epoch.
func ScheduledLR(c config.Optimizer, epoch, epochs int) float64 {
	switch c.Schedule {
	case config.ScheduleStep:
		if c.StepSize <= 0 {
			return c.LR
		}
		gamma := c.Gamma
		if gamma == 0 {
			gamma = 0.1
		}
		return c.LR * math.Pow(gamma, float64(epoch/c.StepSize))
	case config.ScheduleExponential:
		return c.LR * math.Pow(c.Gamma, float64(epoch))
	case config.ScheduleCosine:
		if epochs <= 0 {
			return c.LR
		}
		frac := math.Min(float64(epoch)/float64(epochs), 1)
		return c.LR * 0.5 * (1 + math.Cos(math.Pi*frac))
	}
	return c.LR
}
