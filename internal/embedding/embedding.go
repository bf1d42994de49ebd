// Package embedding turns text into fixed-length vectors using a pretrained
// sentence-embedding model served over HTTP.
package embedding

import (
	"errors"

	"github.com/matsen/lungrag/internal/vectorindex"
)

// Errors returned by providers.
var (
	// ErrDimensionMismatch means the backend returned a vector whose length
	// differs from the configured dimensionality. It is the index's error so
	// callers need only one check.
	ErrDimensionMismatch = vectorindex.ErrDimensionMismatch

	// ErrUnavailable means the embedding backend could not be reached or
	// answered with a non-success status.
	ErrUnavailable = errors.New("embedding backend unavailable")
)

// Embedding represents a vector embedding of text.
type Embedding struct {
	Vector []float32 // The embedding vector (e.g., 384 dimensions for all-minilm)
}

// Dimensions returns the dimensionality of the embedding.
func (e Embedding) Dimensions() int {
	return len(e.Vector)
}
