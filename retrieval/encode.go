package retrieval

import (
	"context"
	"fmt"

	"gonum.org/v1/gonum/mat"

	"gonhash/dataset"
	"gonhash/neuralnet"
)

// Encode runs net over every batch of loader and returns the sign of its
// outputs as ±1 codes together with the labels. Row i belongs to dataset
// sample i regardless of the loader's order.
func Encode(ctx context.Context, net neuralnet.Network, loader *dataset.Loader) (*mat.Dense, *mat.Dense, error) {
	ds := loader.Dataset()
	codes := mat.NewDense(ds.Len(), net.Bit(), nil)
	labels := mat.NewDense(ds.Len(), ds.Classes(), nil)

	it := loader.Iter(ctx)
	defer it.Close()
	for it.Next() {
		b := it.Batch()
		out, err := net.Forward(b.Images)
		if err != nil {
			return nil, nil, fmt.Errorf("encode: %w", err)
		}
		for k, i := range b.Indices {
			row := codes.RawRowView(i)
			for j, v := range out.RawRowView(k) {
				if v >= 0 {
					row[j] = 1
				} else {
					row[j] = -1
				}
			}
			labels.SetRow(i, b.Labels.RawRowView(k))
		}
	}
	if err := it.Err(); err != nil {
		return nil, nil, fmt.Errorf("encode: %w", err)
	}
	return codes, labels, nil
}
