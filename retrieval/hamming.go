// Package retrieval turns network outputs into binary codes and scores
// Hamming-ranked retrieval with top-K mean average precision.
package retrieval

import (
	"errors"
	"math/bits"

	"gonum.org/v1/gonum/mat"
)

var ErrShape = errors.New("retrieval shape mismatch")

// Pack converts ±1 codes (one row per item) to bit strings of
// ceil(bit/64) words. Non-negative values set their bit.
func Pack(codes *mat.Dense) [][]uint64 {
	n, bit := codes.Dims()
	words := (bit + 63) / 64
	backing := make([]uint64, n*words)
	packed := make([][]uint64, n)
	for i := 0; i < n; i++ {
		row := backing[i*words : (i+1)*words : (i+1)*words]
		for j, v := range codes.RawRowView(i) {
			if v >= 0 {
				row[j/64] |= 1 << (j % 64)
			}
		}
		packed[i] = row
	}
	return packed
}

// Hamming counts the differing bits of two packed codes of equal length.
func Hamming(a, b []uint64) int {
	var dist int
	for i := range a {
		dist += bits.OnesCount64(a[i] ^ b[i])
	}
	return dist
}
