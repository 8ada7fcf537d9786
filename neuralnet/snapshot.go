package neuralnet

import (
	"encoding/gob"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
)

var ErrSnapshot = errors.New("snapshot does not match network")

// ParamState is the persisted value of one Param.
type ParamState struct {
	Name  string
	Rows  int
	Cols  int
	Value []float64
}

// Snapshot holds the learned parameters of a network.
type Snapshot struct {
	Kind   string
	Bit    int
	Params []ParamState
}

// TakeSnapshot copies the current parameters of nn.
func TakeSnapshot(nn Network) Snapshot {
	s := Snapshot{Kind: nn.Kind(), Bit: nn.Bit()}
	for _, p := range nn.Params() {
		s.Params = append(s.Params, ParamState{
			Name:  p.Name,
			Rows:  p.Rows,
			Cols:  p.Cols,
			Value: append([]float64(nil), p.Value...),
		})
	}
	return s
}

// Restore loads the snapshot values into nn, which must have the same layout.
func (s Snapshot) Restore(nn Network) error {
	params := nn.Params()
	if s.Bit != nn.Bit() || len(s.Params) != len(params) {
		return fmt.Errorf("%w: %d params for %d bits, network has %d params for %d bits",
			ErrSnapshot, len(s.Params), s.Bit, len(params), nn.Bit())
	}
	for i, p := range params {
		st := s.Params[i]
		if st.Name != p.Name || st.Rows != p.Rows || st.Cols != p.Cols || len(st.Value) != len(p.Value) {
			return fmt.Errorf("%w: %s %dx%d against %s %dx%d",
				ErrSnapshot, st.Name, st.Rows, st.Cols, p.Name, p.Rows, p.Cols)
		}
	}
	for i, p := range params {
		copy(p.Value, s.Params[i].Value)
	}
	return nil
}

// WriteSnapshot gob-encodes s into a zstd stream.
func WriteSnapshot(w io.Writer, s Snapshot) error {
	enc, err := zstd.NewWriter(w)
	if err != nil {
		return err
	}
	if err := gob.NewEncoder(enc).Encode(s); err != nil {
		enc.Close()
		return err
	}
	return enc.Close()
}

// ReadSnapshot decodes a snapshot written by WriteSnapshot.
func ReadSnapshot(r io.Reader) (Snapshot, error) {
	dec, err := zstd.NewReader(r)
	if err != nil {
		return Snapshot{}, err
	}
	defer dec.Close()
	var s Snapshot
	if err := gob.NewDecoder(dec).Decode(&s); err != nil {
		return Snapshot{}, err
	}
	return s, nil
}
