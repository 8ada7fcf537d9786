package neuralnet

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"strings"

	"gonum.org/v1/gonum/mat"
	"gorgonia.org/tensor"

	"gonhash/config"
)

var (
	ErrUnknownNet = errors.New("unknown network kind")
	ErrNoForward  = errors.New("backward called before forward")
)

// Network maps a batch of images to real-valued codes of Bit() dimensions.
type Network interface {
	Forward(images tensor.Tensor) (*mat.Dense, error)
	// Backward accumulates parameter gradients for the last Forward call
	// given dLoss/dcodes.
	Backward(grad *mat.Dense) error
	Params() []*Param
	ZeroGrad()
	Bit() int
	Kind() string
}

// Param is a learned matrix with its accumulated gradient. Value and Grad are
// row-major and back the layer matrices directly.
type Param struct {
	Name  string
	Rows  int
	Cols  int
	Value []float64
	Grad  []float64
}

func newParam(name string, rows, cols int) *Param {
	return &Param{
		Name:  name,
		Rows:  rows,
		Cols:  cols,
		Value: make([]float64, rows*cols),
		Grad:  make([]float64, rows*cols),
	}
}

func (p *Param) dense() *mat.Dense {
	return mat.NewDense(p.Rows, p.Cols, p.Value)
}

func (p *Param) gradDense() *mat.Dense {
	return mat.NewDense(p.Rows, p.Cols, p.Grad)
}

type Layer struct {
	weights    *Param // in × out
	bias       *Param // 1 × out
	activation ActivationFunction

	input *mat.Dense
	pre   *mat.Dense
}

func newLayer(index, in, out int, activation ActivationFunction, rng *rand.Rand) *Layer {
	l := &Layer{
		weights:    newParam(fmt.Sprintf("layer%d.weight", index), in, out),
		bias:       newParam(fmt.Sprintf("layer%d.bias", index), 1, out),
		activation: activation,
	}
	for k := range l.weights.Value {
		l.weights.Value[k] = xavierInit(in, out, rng)
	}
	return l
}

func (l *Layer) forward(x *mat.Dense) *mat.Dense {
	l.input = x
	var z mat.Dense
	z.Mul(x, l.weights.dense())
	r, _ := z.Dims()
	for i := 0; i < r; i++ {
		row := z.RawRowView(i)
		for j, b := range l.bias.Value {
			row[j] += b
		}
	}
	l.pre = &z
	var a mat.Dense
	activate(&a, &z, l.activation)
	return &a
}

// backward consumes dLoss/dA and returns dLoss/dX.
func (l *Layer) backward(grad *mat.Dense) *mat.Dense {
	dz := mat.DenseCopyOf(grad)
	backprop(dz, l.pre, l.activation)

	var dw mat.Dense
	dw.Mul(l.input.T(), dz)
	wg := l.weights.gradDense()
	wg.Add(wg, &dw)

	r, _ := dz.Dims()
	for i := 0; i < r; i++ {
		for j, v := range dz.RawRowView(i) {
			l.bias.Grad[j] += v
		}
	}

	var dx mat.Dense
	dx.Mul(dz, l.weights.dense().T())
	return &dx
}

// MLP is a dense hashing network: hidden layers (ReLU unless configured
// otherwise) followed by a linear hash layer of Bit() units.
type MLP struct {
	kind   string
	inputs int
	bit    int
	layers []*Layer
}

// NewMLP builds a network with Xavier-initialised weights and zero biases.
func NewMLP(inputSize int, hidden []int, bit int, activation ActivationFunction, rng *rand.Rand) *MLP {
	nn := &MLP{
		kind:   config.NetMLP,
		inputs: inputSize,
		bit:    bit,
		layers: make([]*Layer, 0, len(hidden)+1),
	}
	in := inputSize
	for i, size := range hidden {
		nn.layers = append(nn.layers, newLayer(i, in, size, activation, rng))
		in = size
	}
	nn.layers = append(nn.layers, newLayer(len(hidden), in, bit, Linear{}, rng))
	if len(hidden) == 0 {
		nn.kind = config.NetLinear
	}
	return nn
}

type options struct {
	activation ActivationFunction
}

// Option customises New.
type Option func(*options)

// WithActivation sets the activation of the hidden layers.
func WithActivation(f ActivationFunction) Option {
	return func(o *options) { o.activation = f }
}

// New builds the network kind selected by configuration.
func New(kind string, inputSize int, hidden []int, bit int, seed int64, opts ...Option) (Network, error) {
	o := options{activation: ReLU{}}
	for _, opt := range opts {
		opt(&o)
	}
	rng := rand.New(rand.NewSource(NNSeed(seed, inputSize, hidden, bit)))
	switch kind {
	case config.NetMLP:
		return NewMLP(inputSize, hidden, bit, o.activation, rng), nil
	case config.NetLinear:
		return NewMLP(inputSize, nil, bit, o.activation, rng), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownNet, kind)
}

// NNSeed mixes the run seed with the architecture so that every bit-length
// gets its own deterministic initialisation.
func NNSeed(seed int64, inputSize int, hidden []int, bit int) int64 {
	s := seed*31 + int64(inputSize)
	for _, h := range hidden {
		s = s*31 + int64(h)
	}
	return s*31 + int64(bit)
}

func (nn *MLP) Forward(images tensor.Tensor) (*mat.Dense, error) {
	x, err := flatten(images)
	if err != nil {
		return nil, err
	}
	if _, c := x.Dims(); c != nn.inputs {
		return nil, fmt.Errorf("%w: %d input features, network expects %d", ErrShape, c, nn.inputs)
	}
	for _, layer := range nn.layers {
		x = layer.forward(x)
	}
	return x, nil
}

func (nn *MLP) Backward(grad *mat.Dense) error {
	last := nn.layers[len(nn.layers)-1]
	if last.pre == nil {
		return ErrNoForward
	}
	batch, _ := last.pre.Dims()
	if r, c := grad.Dims(); r != batch || c != nn.bit {
		return fmt.Errorf("%w: gradient is %dx%d, want %dx%d", ErrShape, r, c, batch, nn.bit)
	}
	for i := len(nn.layers) - 1; i >= 0; i-- {
		grad = nn.layers[i].backward(grad)
	}
	return nil
}

func (nn *MLP) Params() []*Param {
	params := make([]*Param, 0, 2*len(nn.layers))
	for _, l := range nn.layers {
		params = append(params, l.weights, l.bias)
	}
	return params
}

func (nn *MLP) ZeroGrad() {
	for _, p := range nn.Params() {
		for k := range p.Grad {
			p.Grad[k] = 0
		}
	}
}

func (nn *MLP) Bit() int    { return nn.bit }
func (nn *MLP) Kind() string { return nn.kind }

func (nn *MLP) String() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%s(%d", nn.kind, nn.inputs))
	for _, l := range nn.layers {
		sb.WriteString(fmt.Sprintf(" -> %d", l.weights.Cols))
	}
	sb.WriteString(")")
	return sb.String()
}

// flatten turns an N×… image tensor into an N×features matrix.
func flatten(t tensor.Tensor) (*mat.Dense, error) {
	shape := t.Shape()
	if len(shape) < 2 || shape[0] == 0 {
		return nil, fmt.Errorf("%w: image batch shape %v", ErrShape, shape)
	}
	n := shape[0]
	features := shape.TotalSize() / n
	out := make([]float64, n*features)
	switch data := t.Data().(type) {
	case []float32:
		if len(data) != len(out) {
			return nil, fmt.Errorf("%w: %d values for shape %v", ErrShape, len(data), shape)
		}
		for i, v := range data {
			out[i] = float64(v)
		}
	case []float64:
		if len(data) != len(out) {
			return nil, fmt.Errorf("%w: %d values for shape %v", ErrShape, len(data), shape)
		}
		copy(out, data)
	default:
		return nil, fmt.Errorf("%w: unsupported dtype %v", ErrShape, t.Dtype())
	}
	return mat.NewDense(n, features, out), nil
}

func xavierInit(numInputs int, numOutputs int, rng *rand.Rand) float64 {
	limit := math.Sqrt(6.0 / float64(numInputs+numOutputs))
	return 2*rng.Float64()*limit - limit
}
