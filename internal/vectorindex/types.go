// Package vectorindex stores embedded text chunks and answers cosine
// nearest-neighbour queries over them.
package vectorindex

import (
	"time"

	"github.com/matsen/lungrag/internal/document"
)

// Entry is one stored chunk and its embedding.
type Entry struct {
	ID     string    `json:"id"`
	Vector []float32 `json:"-"`
	Text   string    `json:"text"`
	Source string    `json:"source"`
	Page   int       `json:"page"`
}

// EntryFromChunk builds an index entry from an embedded chunk.
func EntryFromChunk(c document.EmbeddedChunk) Entry {
	return Entry{
		ID:     c.ID,
		Vector: c.Vector,
		Text:   c.Text,
		Source: c.Source,
		Page:   c.Page,
	}
}

// Citation returns the entry's provenance.
func (e Entry) Citation() document.Citation {
	return document.Citation{Source: e.Source, Page: e.Page}
}

// Result is an entry returned by Search, with its similarity to the query.
type Result struct {
	ID         string  `json:"id"`
	Text       string  `json:"text"`
	Source     string  `json:"source"`
	Page       int     `json:"page"`
	Similarity float32 `json:"similarity"`
}

// Citation returns the result's provenance.
func (r Result) Citation() document.Citation {
	return document.Citation{Source: r.Source, Page: r.Page}
}

// Info summarises an index for status reports.
type Info struct {
	Version    int       `json:"version"`
	Model      string    `json:"model"`
	Dimensions int       `json:"dimensions"`
	Entries    int       `json:"entries"`
	CreatedAt  time.Time `json:"created_at"`
}
