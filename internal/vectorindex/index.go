package vectorindex

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// Errors returned by index operations.
var (
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
	ErrEmptyIndex        = errors.New("vector index is empty")
	ErrDuplicateEntry    = errors.New("duplicate index entry")
	ErrNegativeLimit     = errors.New("limit must not be negative")
	ErrInvalidVector     = errors.New("vector has a NaN or infinite component")
)

// Index holds entries in insertion order. Dimensionality is fixed by the
// first inserted vector.
//
// An Index is mutated only while it is being built. Once handed to readers
// it must be treated as read-only; concurrent Search calls are then safe.
type Index struct {
	model     string
	createdAt time.Time
	dims      int
	entries   []Entry
	norms     []float32
	byID      map[string]int
}

// New creates an empty index for vectors produced by the named model.
func New(model string) *Index {
	return &Index{
		model:     model,
		createdAt: time.Now().UTC(),
		byID:      make(map[string]int),
	}
}

// Model returns the embedding model the vectors came from.
func (idx *Index) Model() string { return idx.model }

// CreatedAt returns when the index was created.
func (idx *Index) CreatedAt() time.Time { return idx.createdAt }

// Dimensions returns the vector length, or 0 before the first insert.
func (idx *Index) Dimensions() int { return idx.dims }

// Size returns the number of entries.
func (idx *Index) Size() int { return len(idx.entries) }

// Info returns a summary of the index.
func (idx *Index) Info() Info {
	return Info{
		Version:    CurrentVersion,
		Model:      idx.model,
		Dimensions: idx.dims,
		Entries:    len(idx.entries),
		CreatedAt:  idx.createdAt,
	}
}

// InsertBatch appends all entries or none of them. It fails with
// ErrDimensionMismatch if any vector's length differs from the index's
// dimensionality (or from the first vector of the batch when the index is
// still empty), with ErrInvalidVector on a NaN or infinite component, and
// with ErrDuplicateEntry on a repeated ID.
func (idx *Index) InsertBatch(entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}

	dims := idx.dims
	if dims == 0 {
		dims = len(entries[0].Vector)
		if dims == 0 {
			return fmt.Errorf("%w: entry %q has an empty vector", ErrDimensionMismatch, entries[0].ID)
		}
	}

	batchIDs := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		if len(e.Vector) != dims {
			return fmt.Errorf("%w: entry %q has %d dimensions, want %d", ErrDimensionMismatch, e.ID, len(e.Vector), dims)
		}
		if i := nonFinite(e.Vector); i >= 0 {
			return fmt.Errorf("%w: entry %q component %d is %v", ErrInvalidVector, e.ID, i, e.Vector[i])
		}
		if _, ok := idx.byID[e.ID]; ok {
			return fmt.Errorf("%w: %q already indexed", ErrDuplicateEntry, e.ID)
		}
		if _, ok := batchIDs[e.ID]; ok {
			return fmt.Errorf("%w: %q repeated in batch", ErrDuplicateEntry, e.ID)
		}
		batchIDs[e.ID] = struct{}{}
	}

	idx.dims = dims
	for _, e := range entries {
		vec := make([]float32, dims)
		copy(vec, e.Vector)
		e.Vector = vec

		idx.byID[e.ID] = len(idx.entries)
		idx.entries = append(idx.entries, e)
		idx.norms = append(idx.norms, norm(vec))
	}
	return nil
}

// Get returns the entry with the given ID.
func (idx *Index) Get(id string) (Entry, bool) {
	i, ok := idx.byID[id]
	if !ok {
		return Entry{}, false
	}
	return idx.entries[i], true
}

// Has reports whether an entry with the given ID is indexed.
func (idx *Index) Has(id string) bool {
	_, ok := idx.byID[id]
	return ok
}

// Entries returns a copy of all entries in insertion order.
func (idx *Index) Entries() []Entry {
	out := make([]Entry, len(idx.entries))
	copy(out, idx.entries)
	return out
}

// nonFinite returns the index of the first NaN or infinite component of v,
// or -1.
func nonFinite(v []float32) int {
	for i, x := range v {
		f := float64(x)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return i
		}
	}
	return -1
}
