package rag

import (
	"context"
	"fmt"

	"github.com/matsen/lungrag/internal/chunker"
	"github.com/matsen/lungrag/internal/document"
	"github.com/matsen/lungrag/internal/embedding"
	"github.com/matsen/lungrag/internal/logger"
	"github.com/matsen/lungrag/internal/pdf"
	"github.com/matsen/lungrag/internal/vectorindex"
)

// DocumentLoader reads the corpus directory into pages.
type DocumentLoader interface {
	Load(ctx context.Context, dir string) (*pdf.LoadResult, error)
}

// IndexBuilder runs load, chunk, embed and insert for one corpus.
type IndexBuilder struct {
	loader      DocumentLoader
	chunker     *chunker.Chunker
	embedder    embedding.Provider
	concurrency int
	progress    embedding.ProgressReporter
}

// NewIndexBuilder creates a builder embedding with up to concurrency
// requests in flight.
func NewIndexBuilder(loader DocumentLoader, ch *chunker.Chunker, embedder embedding.Provider, concurrency int) *IndexBuilder {
	return &IndexBuilder{
		loader:      loader,
		chunker:     ch,
		embedder:    embedder,
		concurrency: concurrency,
	}
}

// SetProgressReporter sets the reporter for embedding progress.
func (b *IndexBuilder) SetProgressReporter(reporter embedding.ProgressReporter) {
	b.progress = reporter
}

// Chunker returns the builder's chunker.
func (b *IndexBuilder) Chunker() *chunker.Chunker {
	return b.chunker
}

// ModelName returns the embedding model name.
func (b *IndexBuilder) ModelName() string {
	return b.embedder.ModelName()
}

// Build produces a new in-memory index for dir. The load result is returned
// whenever loading got far enough to produce per-file reports, including
// when it failed with pdf.ErrNoUsableText.
func (b *IndexBuilder) Build(ctx context.Context, dir string) (*vectorindex.Index, *pdf.LoadResult, error) {
	log := logger.FromContext(ctx).With("component", "builder")

	loaded, err := b.loader.Load(ctx, dir)
	if err != nil {
		return nil, loaded, fmt.Errorf("loading corpus: %w", err)
	}
	log.Info("corpus loaded", "files", len(loaded.Files), "pages", len(loaded.Pages), "ocr_pages", loaded.OCRPages())

	chunks := b.chunker.Split(loaded.Pages)
	if len(chunks) == 0 {
		return nil, loaded, fmt.Errorf("chunking corpus: %w", pdf.ErrNoUsableText)
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vectors, err := embedding.EmbedAll(ctx, b.embedder, texts, b.concurrency, b.progress)
	if err != nil {
		return nil, loaded, fmt.Errorf("embedding chunks: %w", err)
	}

	entries := make([]vectorindex.Entry, len(chunks))
	for i, c := range chunks {
		entries[i] = vectorindex.EntryFromChunk(document.EmbeddedChunk{Chunk: c, Vector: vectors[i]})
	}

	idx := vectorindex.New(b.embedder.ModelName())
	if err := idx.InsertBatch(entries); err != nil {
		return nil, loaded, fmt.Errorf("inserting chunks: %w", err)
	}
	log.Info("index built", "chunks", idx.Size(), "dimensions", idx.Dimensions())
	return idx, loaded, nil
}
