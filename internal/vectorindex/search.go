package vectorindex

import (
	"fmt"
	"math"
	"sort"
)

// norm is the Euclidean length of v.
func norm(v []float32) float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return float32(math.Sqrt(sum))
}

// Search returns the k entries most similar to query by cosine similarity,
// nearest first. Equal similarities keep insertion order. A k of zero, or
// one larger than the index, returns every entry.
func (idx *Index) Search(query []float32, k int) ([]Result, error) {
	if len(idx.entries) == 0 {
		return nil, ErrEmptyIndex
	}
	if len(query) != idx.dims {
		return nil, fmt.Errorf("%w: query has %d dimensions, index has %d", ErrDimensionMismatch, len(query), idx.dims)
	}
	if i := nonFinite(query); i >= 0 {
		return nil, fmt.Errorf("%w: query component %d is %v", ErrInvalidVector, i, query[i])
	}
	if k < 0 {
		return nil, ErrNegativeLimit
	}

	qNorm := norm(query)
	results := make([]Result, len(idx.entries))
	for i, e := range idx.entries {
		results[i] = Result{
			ID:         e.ID,
			Text:       e.Text,
			Source:     e.Source,
			Page:       e.Page,
			Similarity: similarity(query, qNorm, e.Vector, idx.norms[i]),
		}
	}

	// Stable sort keeps insertion order among ties
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Similarity > results[j].Similarity
	})

	if k > 0 && len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// similarity is the cosine of the angle between q and v given their norms.
// A zero vector has similarity 0 to everything. Products are accumulated in
// float64 so finite inputs never overflow.
func similarity(q []float32, qNorm float32, v []float32, vNorm float32) float32 {
	denominator := float64(qNorm) * float64(vNorm)
	if denominator == 0 {
		return 0
	}
	var dot float64
	for i := range q {
		dot += float64(q[i]) * float64(v[i])
	}
	return float32(dot / denominator)
}
