package neuralnet

import (
	"bytes"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshotRestoresOutputs(t *testing.T) {
	rng := rand.New(rand.NewSource(9))
	images := randomImages(rng, 3, 2, 2, 2)

	trained, err := New("mlp", 8, []int{4}, 6, 1)
	require.NoError(t, err)
	for _, p := range trained.Params() {
		for k := range p.Value {
			p.Value[k] += rng.NormFloat64() * 0.1
		}
	}
	want, err := trained.Forward(images)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WriteSnapshot(&buf, TakeSnapshot(trained)))

	snap, err := ReadSnapshot(&buf)
	require.NoError(t, err)
	assert.Equal(t, "mlp", snap.Kind)
	assert.Equal(t, 6, snap.Bit)

	fresh, err := New("mlp", 8, []int{4}, 6, 2)
	require.NoError(t, err)
	require.NoError(t, snap.Restore(fresh))

	got, err := fresh.Forward(images)
	require.NoError(t, err)
	assert.Equal(t, want.RawMatrix().Data, got.RawMatrix().Data)
}

func TestSnapshotIsACopy(t *testing.T) {
	nn, err := New("linear", 4, nil, 2, 1)
	require.NoError(t, err)
	snap := TakeSnapshot(nn)
	before := snap.Params[0].Value[0]
	nn.Params()[0].Value[0] += 1
	assert.Equal(t, before, snap.Params[0].Value[0])
}

func TestSnapshotRejectsOtherLayouts(t *testing.T) {
	small, err := New("mlp", 8, []int{4}, 6, 1)
	require.NoError(t, err)
	snap := TakeSnapshot(small)

	tests := []struct {
		description string
		hidden      []int
		bit         int
	}{
		{"other bit length", []int{4}, 12},
		{"other hidden width", []int{5}, 6},
		{"other depth", []int{4, 4}, 6},
	}
	for _, tt := range tests {
		t.Run(tt.description, func(t *testing.T) {
			other, err := New("mlp", 8, tt.hidden, tt.bit, 1)
			require.NoError(t, err)
			assert.ErrorIs(t, snap.Restore(other), ErrSnapshot)
		})
	}
}

func TestReadSnapshotRejectsGarbage(t *testing.T) {
	_, err := ReadSnapshot(bytes.NewReader([]byte("not a snapshot")))
	assert.Error(t, err)
}
