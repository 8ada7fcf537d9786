package config

import "errors"

// ErrNoAccelerator is returned when an accelerator is requested but this build
// only computes on the CPU.
var ErrNoAccelerator = errors.New("no accelerator available")

// Device is the execution target every tensor and parameter of a run lives on.
// It is resolved once per run.
type Device int

const (
	CPU Device = iota
	GPU
)

func (d Device) String() string {
	switch d {
	case CPU:
		return "cpu"
	case GPU:
		return "gpu"
	}
	return "unknown"
}

// ResolveDevice picks the execution target for the GPU flag.
func ResolveDevice(gpu bool) (Device, error) {
	if gpu {
		return GPU, ErrNoAccelerator
	}
	return CPU, nil
}
