package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	c := Default()
	require.NoError(t, c.Validate())
	assert.Equal(t, ScheduleNone, c.Optimizer.Schedule, "learning rate is constant unless a schedule is chosen")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		description string
		mutate      func(c *Config)
	}{
		{"negative alpha", func(c *Config) { c.Alpha = -1 }},
		{"zero batch", func(c *Config) { c.BatchSize = 0 }},
		{"crop larger than resize", func(c *Config) { c.CropSize = c.ResizeSize + 1 }},
		{"no epochs", func(c *Config) { c.Epochs = 0 }},
		{"no evaluation interval", func(c *Config) { c.TestMAP = 0 }},
		{"empty bit list", func(c *Config) { c.Bits = nil }},
		{"zero bit", func(c *Config) { c.Bits = []int{16, 0} }},
		{"unknown net", func(c *Config) { c.Net = "resnet" }},
		{"unknown optimizer", func(c *Config) { c.Optimizer.Type = "adagrad" }},
		{"zero learning rate", func(c *Config) { c.Optimizer.LR = 0 }},
		{"step schedule without step", func(c *Config) {
			c.Optimizer.Schedule = ScheduleStep
			c.Optimizer.StepSize = 0
		}},
		{"exponential schedule without gamma", func(c *Config) { c.Optimizer.Schedule = ScheduleExponential }},
		{"unknown schedule", func(c *Config) { c.Optimizer.Schedule = "linear" }},
		{"no dataset", func(c *Config) { c.Dataset = "" }},
		{"bad hidden layer", func(c *Config) { c.Hidden = []int{-3} }},
		{"unknown activation", func(c *Config) { c.Activation = "gelu" }},
	}
	for _, tt := range tests {
		t.Run(tt.description, func(t *testing.T) {
			c := Default()
			tt.mutate(&c)
			assert.ErrorIs(t, c.Validate(), ErrInvalid)
		})
	}
}

func TestDerive(t *testing.T) {
	c := Default()
	d := Derived{NumTrain: 5000, NumTest: 1000, NumDatabase: 59000, NClass: 10, TopK: -1, DataPath: "data/cifar10"}

	run, err := Derive(c, d)
	require.NoError(t, err)
	assert.Equal(t, 59000, run.TopK, "non-positive topK covers the whole database")
	assert.Equal(t, CPU, run.Device)
	assert.Equal(t, 5000, run.NumTrain)
	assert.Equal(t, -1, d.TopK, "derived input is not modified")

	run.Bits[0] = 7
	assert.Equal(t, 48, c.Bits[0], "run owns its own bit list")
}

func TestDeriveRejectsEmptySplits(t *testing.T) {
	_, err := Derive(Default(), Derived{NumTrain: 0, NumTest: 1, NumDatabase: 1, NClass: 2})
	assert.ErrorIs(t, err, ErrInvalid)

	_, err = Derive(Default(), Derived{NumTrain: 1, NumTest: 1, NumDatabase: 1, NClass: 0})
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestDeriveClampsTopK(t *testing.T) {
	run, err := Derive(Default(), Derived{NumTrain: 10, NumTest: 5, NumDatabase: 20, NClass: 2, TopK: 500})
	require.NoError(t, err)
	assert.Equal(t, 20, run.TopK)
}

func TestResolveDevice(t *testing.T) {
	dev, err := ResolveDevice(false)
	require.NoError(t, err)
	assert.Equal(t, "cpu", dev.String())

	_, err = ResolveDevice(true)
	assert.ErrorIs(t, err, ErrNoAccelerator)

	c := Default()
	c.GPU = true
	_, err = Derive(c, Derived{NumTrain: 1, NumTest: 1, NumDatabase: 1, NClass: 1})
	assert.ErrorIs(t, err, ErrNoAccelerator)
}
