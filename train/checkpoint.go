package train

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gonum.org/v1/gonum/mat"

	"gonhash/neuralnet"
)

// Checkpoint names the files written for one improved evaluation.
type Checkpoint struct {
	MAP   float64
	Codes string
	Model string
}

// CheckpointPaths returns the code matrix and model paths for a dataset and
// score. The same score always maps to the same names.
func CheckpointPaths(dir, dataset string, mAP float64) Checkpoint {
	score := strconv.FormatFloat(mAP, 'f', -1, 64)
	return Checkpoint{
		MAP:   mAP,
		Codes: filepath.Join(dir, dataset+"-"+score+"-trn_binary.mat"),
		Model: filepath.Join(dir, dataset+"-"+score+"-model.gob.zst"),
	}
}

// Save writes the database codes and the network parameters into dir,
// creating it if needed and replacing files of the same name.
func Save(dir, dataset string, mAP float64, codes *mat.Dense, net neuralnet.Network) (Checkpoint, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Checkpoint{}, err
	}
	cp := CheckpointPaths(dir, dataset, mAP)
	if err := writeFile(cp.Codes, func(w *bufio.Writer) error {
		_, err := codes.MarshalBinaryTo(w)
		return err
	}); err != nil {
		return Checkpoint{}, err
	}
	if err := writeFile(cp.Model, func(w *bufio.Writer) error {
		return neuralnet.WriteSnapshot(w, neuralnet.TakeSnapshot(net))
	}); err != nil {
		return Checkpoint{}, err
	}
	return cp, nil
}

func writeFile(path string, write func(w *bufio.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)
	if err := write(w); err != nil {
		f.Close()
		return fmt.Errorf("%s: %w", path, err)
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("%s: %w", path, err)
	}
	return f.Close()
}

// LoadCodes reads a code matrix written by Save.
func LoadCodes(path string) (*mat.Dense, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var codes mat.Dense
	if _, err := codes.UnmarshalBinaryFrom(bufio.NewReader(f)); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &codes, nil
}

// LoadCheckpoint restores the parameters saved at path into net.
func LoadCheckpoint(path string, net neuralnet.Network) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	s, err := neuralnet.ReadSnapshot(bufio.NewReader(f))
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return s.Restore(net)
}
