package retrieval

import (
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// TopKMAP ranks the database for every query by Hamming distance and returns
// the mean average precision over the first topK results.
//
// An item is relevant when its label vector shares a class with the query.
// Ties keep database order. A query with no relevant item in its top K
// scores 0 and still counts in the mean. topK <= 0 or larger than the
// database ranks the whole database.
func TopKMAP(dbCodes, queryCodes, dbLabels, queryLabels *mat.Dense, topK int) (float64, error) {
	nDB, bit := dbCodes.Dims()
	nQuery, qBit := queryCodes.Dims()
	if bit != qBit {
		return 0, fmt.Errorf("%w: database codes have %d bits, queries %d", ErrShape, bit, qBit)
	}
	dr, dc := dbLabels.Dims()
	qr, qc := queryLabels.Dims()
	switch {
	case dr != nDB:
		return 0, fmt.Errorf("%w: %d database codes with %d labels", ErrShape, nDB, dr)
	case qr != nQuery:
		return 0, fmt.Errorf("%w: %d query codes with %d labels", ErrShape, nQuery, qr)
	case dc != qc:
		return 0, fmt.Errorf("%w: database labels have %d classes, queries %d", ErrShape, dc, qc)
	}
	if topK <= 0 || topK > nDB {
		topK = nDB
	}

	db := Pack(dbCodes)
	queries := Pack(queryCodes)
	ap := make([]float64, nQuery)

	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0))
	for q := range queries {
		q := q
		g.Go(func() error {
			order := rank(queries[q], db, bit)
			ap[q] = averagePrecision(order[:topK], queryLabels.RawRowView(q), dbLabels)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}
	return floats.Sum(ap) / float64(nQuery), nil
}

// rank orders database positions by distance to query with a counting sort
// over the bit+1 possible distances, which keeps ties in database order.
func rank(query []uint64, db [][]uint64, bit int) []int {
	dist := make([]int, len(db))
	counts := make([]int, bit+2)
	for i, code := range db {
		d := Hamming(query, code)
		dist[i] = d
		counts[d+1]++
	}
	for d := 1; d < len(counts); d++ {
		counts[d] += counts[d-1]
	}
	order := make([]int, len(db))
	for i, d := range dist {
		order[counts[d]] = i
		counts[d]++
	}
	return order
}

func averagePrecision(ranked []int, query []float64, dbLabels *mat.Dense) float64 {
	var hits int
	var sum float64
	for pos, i := range ranked {
		if floats.Dot(query, dbLabels.RawRowView(i)) > 0 {
			hits++
			sum += float64(hits) / float64(pos+1)
		}
	}
	if hits == 0 {
		return 0
	}
	return sum / float64(hits)
}
