// Package config holds the typed training configuration and the fields derived
// from the selected dataset.
package config

import (
	"errors"
	"fmt"
)

var (
	ErrInvalid = errors.New("invalid configuration")
)

// Optimizer types.
const (
	OptimizerRMSprop = "rmsprop"
	OptimizerSGD     = "sgd"
)

// Learning rate schedules, applied once per epoch.
const (
	ScheduleNone        = "none"
	ScheduleStep        = "step"
	ScheduleExponential = "exponential"
	ScheduleCosine      = "cosine"
)

// Network kinds.
const (
	NetMLP    = "mlp"
	NetLinear = "linear"
)

// Hidden layer activations.
const (
	ActivationReLU      = "relu"
	ActivationLeakyReLU = "leaky_relu"
	ActivationTanh      = "tanh"
	ActivationSigmoid   = "sigmoid"
)

// Optimizer describes the optimizer and its hyperparameters.
type Optimizer struct {
	Type        string
	LR          float64
	WeightDecay float64
	// Momentum is used by SGD and, when non-zero, by RMSprop.
	Momentum float64
	// Alpha is the RMSprop smoothing constant.
	Alpha float64
	Eps   float64

	Schedule string
	// StepSize and Gamma drive the step and exponential schedules.
	StepSize int
	Gamma    float64
}

// Config is the full set of recognised options. It is treated as immutable once
// passed to Derive.
type Config struct {
	// Alpha weights the binarization penalty.
	Alpha     float64
	Optimizer Optimizer
	// Info prefixes every progress line.
	Info string

	ResizeSize int
	CropSize   int
	BatchSize  int

	Net        string
	Hidden     []int
	Activation string

	Dataset  string
	DataRoot string

	Epochs int
	// TestMAP is the evaluation interval in epochs.
	TestMAP  int
	SavePath string
	GPU      bool
	Bits     []int

	// Seed drives weight init, shuffling, splits and augmentation.
	Seed int64
	// Workers bounds parallel sample decoding and mAP scoring.
	Workers  int
	Prefetch int
	Progress bool
}

// Default returns the DHN hyperparameters, sized for the CPU network.
func Default() Config {
	return Config{
		Alpha: 0.1,
		Optimizer: Optimizer{
			Type:        OptimizerRMSprop,
			LR:          1e-5,
			WeightDecay: 1e-5,
			Alpha:       0.99,
			Eps:         1e-8,
			Schedule:    ScheduleNone,
		},
		Info:       "[DHN]",
		ResizeSize: 32,
		CropSize:   32,
		BatchSize:  64,
		Net:        NetMLP,
		Hidden:     []int{1024, 512},
		Activation: ActivationReLU,
		Dataset:    "cifar10-1",
		DataRoot:   "data",
		Epochs:     90,
		TestMAP:    15,
		SavePath:   "save/DHN",
		GPU:        false,
		Bits:       []int{48},
		Seed:       42,
		Workers:    4,
		Prefetch:   2,
		Progress:   true,
	}
}

// Validate reports the first option that cannot be used.
func (c Config) Validate() error {
	switch {
	case c.Alpha < 0:
		return fmt.Errorf("%w: alpha must be non-negative", ErrInvalid)
	case c.BatchSize <= 0:
		return fmt.Errorf("%w: batch size must be positive", ErrInvalid)
	case c.ResizeSize <= 0 || c.CropSize <= 0:
		return fmt.Errorf("%w: resize and crop sizes must be positive", ErrInvalid)
	case c.CropSize > c.ResizeSize:
		return fmt.Errorf("%w: crop size %d exceeds resize size %d", ErrInvalid, c.CropSize, c.ResizeSize)
	case c.Epochs <= 0:
		return fmt.Errorf("%w: epoch count must be positive", ErrInvalid)
	case c.TestMAP <= 0:
		return fmt.Errorf("%w: evaluation interval must be positive", ErrInvalid)
	case len(c.Bits) == 0:
		return fmt.Errorf("%w: bit list is empty", ErrInvalid)
	case c.Dataset == "":
		return fmt.Errorf("%w: dataset is not set", ErrInvalid)
	}
	for _, b := range c.Bits {
		if b <= 0 {
			return fmt.Errorf("%w: bit length %d", ErrInvalid, b)
		}
	}
	for _, h := range c.Hidden {
		if h <= 0 {
			return fmt.Errorf("%w: hidden layer size %d", ErrInvalid, h)
		}
	}
	switch c.Net {
	case NetMLP, NetLinear:
	default:
		return fmt.Errorf("%w: unknown network %q", ErrInvalid, c.Net)
	}
	switch c.Activation {
	case "", ActivationReLU, ActivationLeakyReLU, ActivationTanh, ActivationSigmoid:
	default:
		return fmt.Errorf("%w: unknown activation %q", ErrInvalid, c.Activation)
	}
	return c.Optimizer.validate()
}

func (o Optimizer) validate() error {
	switch o.Type {
	case OptimizerRMSprop, OptimizerSGD:
	default:
		return fmt.Errorf("%w: unknown optimizer %q", ErrInvalid, o.Type)
	}
	if o.LR <= 0 {
		return fmt.Errorf("%w: learning rate must be positive", ErrInvalid)
	}
	switch o.Schedule {
	case "", ScheduleNone, ScheduleCosine:
	case ScheduleStep:
		if o.StepSize <= 0 {
			return fmt.Errorf("%w: step schedule needs a positive step size", ErrInvalid)
		}
	case ScheduleExponential:
		if o.Gamma <= 0 {
			return fmt.Errorf("%w: exponential schedule needs a positive gamma", ErrInvalid)
		}
	default:
		return fmt.Errorf("%w: unknown schedule %q", ErrInvalid, o.Schedule)
	}
	return nil
}

// Derived holds the dataset-specific fields resolved after the dataset is opened.
type Derived struct {
	NumTrain    int
	NumTest     int
	NumDatabase int
	NClass      int
	// TopK <= 0 means the whole database.
	TopK     int
	DataPath string
}

// Run is a validated Config plus its derived fields and execution target.
type Run struct {
	Config
	Derived
	Device Device
}

// Derive validates c and combines it with the dataset fields. It does not modify c.
func Derive(c Config, d Derived) (Run, error) {
	if err := c.Validate(); err != nil {
		return Run{}, err
	}
	if d.NumTrain <= 0 || d.NumTest <= 0 || d.NumDatabase <= 0 {
		return Run{}, fmt.Errorf("%w: empty split (train %d, test %d, database %d)",
			ErrInvalid, d.NumTrain, d.NumTest, d.NumDatabase)
	}
	if d.NClass <= 0 {
		return Run{}, fmt.Errorf("%w: class count must be positive", ErrInvalid)
	}
	if d.TopK <= 0 || d.TopK > d.NumDatabase {
		d.TopK = d.NumDatabase
	}
	dev, err := ResolveDevice(c.GPU)
	if err != nil {
		return Run{}, err
	}
	// Copy the slices so the Run stays independent of the caller's Config.
	c.Bits = append([]int(nil), c.Bits...)
	c.Hidden = append([]int(nil), c.Hidden...)
	return Run{Config: c, Derived: d, Device: dev}, nil
}

// String renders the run the way it is logged after every evaluation.
func (r Run) String() string {
	return fmt.Sprintf("dataset=%s net=%s hidden=%v activation=%s bits=%v alpha=%g optimizer=%s lr=%g wd=%g schedule=%s "+
		"batch=%d epochs=%d test_map=%d num_train=%d num_test=%d num_database=%d n_class=%d topK=%d device=%s save=%s",
		r.Dataset, r.Net, r.Hidden, r.Activation, r.Bits, r.Alpha, r.Optimizer.Type, r.Optimizer.LR, r.Optimizer.WeightDecay,
		r.Optimizer.Schedule, r.BatchSize, r.Epochs, r.TestMAP, r.NumTrain, r.NumTest, r.NumDatabase,
		r.NClass, r.TopK, r.Device, r.SavePath)
}
