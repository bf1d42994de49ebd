// Package document defines the values that flow through the ingestion
// pipeline: source files, extracted pages, and the chunks cut from them.
package document

import "fmt"

// Origin records how a page's text was obtained.
type Origin string

const (
	// OriginText means the text came from the PDF's text layer.
	OriginText Origin = "text"

	// OriginOCR means the page was rasterized and run through OCR.
	OriginOCR Origin = "ocr"
)

// SourceDocument identifies one input PDF.
type SourceDocument struct {
	Name        string `json:"name"`                  // Base file name, used in citations
	Path        string `json:"path"`                  // Full path on disk
	Fingerprint string `json:"fingerprint,omitempty"` // BLAKE2b-256 of the file bytes
}

// Page is the text of a single PDF page.
type Page struct {
	Source string `json:"source"`
	Number int    `json:"page"` // 1-based
	Text   string `json:"text"`
	Origin Origin `json:"origin"`
}

// Chunk is a contiguous window of one page's text.
type Chunk struct {
	ID     string `json:"id"`
	Source string `json:"source"`
	Page   int    `json:"page"`
	Index  int    `json:"index"` // Position of the window within its page
	Text   string `json:"text"`
}

// Citation returns the provenance of the chunk.
func (c Chunk) Citation() Citation {
	return Citation{Source: c.Source, Page: c.Page}
}

// EmbeddedChunk pairs a chunk with the vector computed from its text.
type EmbeddedChunk struct {
	Chunk
	Vector []float32 `json:"-"`
}

// Citation points at a page of a source document.
type Citation struct {
	Source string `json:"source"`
	Page   int    `json:"page"`
}

// String formats the citation as "name p.N".
func (c Citation) String() string {
	return fmt.Sprintf("%s p.%d", c.Source, c.Page)
}

// DedupeCitations removes repeated (source, page) pairs, keeping the first
// occurrence so that rank order is preserved.
func DedupeCitations(cites []Citation) []Citation {
	seen := make(map[Citation]struct{}, len(cites))
	out := make([]Citation, 0, len(cites))
	for _, c := range cites {
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out
}
