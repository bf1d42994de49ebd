// Package chunker splits page text into overlapping fixed-size windows.
package chunker

import (
	"errors"
	"fmt"
	"strings"

	"github.com/matsen/lungrag/internal/document"
)

const (
	// DefaultChunkSize is the default window length in characters.
	DefaultChunkSize = 500

	// DefaultChunkOverlap is the default number of characters repeated at
	// each window boundary.
	DefaultChunkOverlap = 200
)

// ErrInvalidConfig is returned when the size/overlap pair cannot produce
// forward progress.
var ErrInvalidConfig = errors.New("invalid chunker configuration")

// Chunker cuts pages into windows of at most size characters, each sharing
// overlap characters with the previous window of the same page.
//
// Characters are Unicode code points. Windows never cross a page boundary,
// so every chunk carries exact {source, page} provenance.
type Chunker struct {
	size    int
	overlap int
}

// New creates a chunker. Overlap must be non-negative and strictly less
// than size.
func New(size, overlap int) (*Chunker, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: chunk size must be positive, got %d", ErrInvalidConfig, size)
	}
	if overlap < 0 {
		return nil, fmt.Errorf("%w: chunk overlap must not be negative, got %d", ErrInvalidConfig, overlap)
	}
	if overlap >= size {
		return nil, fmt.Errorf("%w: chunk overlap %d must be less than chunk size %d", ErrInvalidConfig, overlap, size)
	}
	return &Chunker{size: size, overlap: overlap}, nil
}

// Size returns the target window length.
func (c *Chunker) Size() int { return c.size }

// Overlap returns the number of characters shared by consecutive windows.
func (c *Chunker) Overlap() int { return c.overlap }

// Split chunks every page in order.
func (c *Chunker) Split(pages []document.Page) []document.Chunk {
	var chunks []document.Chunk
	for _, p := range pages {
		chunks = append(chunks, c.ChunkPage(p)...)
	}
	return chunks
}

// ChunkPage chunks a single page. Surrounding whitespace is trimmed first;
// a blank page produces no chunks.
func (c *Chunker) ChunkPage(p document.Page) []document.Chunk {
	text := strings.TrimSpace(p.Text)
	if text == "" {
		return nil
	}

	runes := []rune(text)
	stride := c.size - c.overlap
	chunks := make([]document.Chunk, 0, len(runes)/stride+1)

	for start, idx := 0, 0; ; start, idx = start+stride, idx+1 {
		end := start + c.size
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, document.Chunk{
			ID:     document.ChunkID(p.Source, p.Number, idx),
			Source: p.Source,
			Page:   p.Number,
			Index:  idx,
			Text:   string(runes[start:end]),
		})
		if end == len(runes) {
			break
		}
	}

	return chunks
}
