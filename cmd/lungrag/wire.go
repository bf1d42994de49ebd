package main

import (
	"context"
	"errors"
	"net/http"

	"github.com/matsen/lungrag/internal/catalog"
	"github.com/matsen/lungrag/internal/chunker"
	"github.com/matsen/lungrag/internal/config"
	"github.com/matsen/lungrag/internal/embedding"
	"github.com/matsen/lungrag/internal/llm"
	"github.com/matsen/lungrag/internal/logger"
	"github.com/matsen/lungrag/internal/pdf"
	"github.com/matsen/lungrag/internal/rag"
	"github.com/matsen/lungrag/internal/vectorindex"
)

// newEmbedder returns the configured embedding provider.
func newEmbedder(c *config.Config) embedding.Provider {
	e := c.Embedding
	if e.Provider == config.ProviderOpenAI {
		opts := []embedding.OpenAIOption{
			embedding.WithOpenAIModel(e.Model),
			embedding.WithOpenAIDimensions(e.Dimensions),
			embedding.WithOpenAITimeout(e.Timeout),
		}
		if e.OpenAIURL != "" {
			opts = append(opts, embedding.WithOpenAIBaseURL(e.OpenAIURL))
		}
		if e.RateLimit != 0 {
			opts = append(opts, embedding.WithOpenAIRate(e.RateLimit))
		}
		return embedding.NewOpenAIProvider(e.APIKey, opts...)
	}
	return embedding.NewOllamaProvider(
		embedding.WithBaseURL(e.OllamaURL),
		embedding.WithModel(e.Model),
		embedding.WithDimensions(e.Dimensions),
		embedding.WithTimeout(e.Timeout),
	)
}

// checkEmbedder verifies a local Ollama server has the model, exiting with
// a hint if not. Hosted providers are checked on first use.
func checkEmbedder(ctx context.Context, p embedding.Provider) {
	ollama, ok := p.(*embedding.OllamaProvider)
	if !ok {
		return
	}
	if err := ollama.IsAvailable(ctx); err != nil {
		exitWithError(ExitUpstream, "Ollama is not reachable at %s\n\nStart Ollama with 'ollama serve' or set embedding.ollama_url", cfg.Embedding.OllamaURL)
	}
	hasModel, err := ollama.HasModel(ctx)
	if err != nil {
		exitWithError(ExitUpstream, "checking model availability: %v", err)
	}
	if !hasModel {
		exitWithError(ExitModelNotFound, "Embedding model '%s' not found\n\nRun 'ollama pull %s' to download it.", ollama.ModelName(), ollama.ModelName())
	}
}

// newLoader returns the PDF loader, with OCR unless disabled.
func newLoader(c *config.Config) *pdf.Loader {
	if !c.OCR.Enabled {
		return pdf.NewLoader(pdf.WithoutOCR())
	}
	rec := pdf.NewTesseractRecognizer(c.OCR.Tesseract, c.OCR.Language, c.OCR.Timeout)
	if err := rec.Available(); err != nil {
		logger.WithComponent("cli").Warn("OCR enabled but tesseract not found; scanned pages will fail to OCR",
			"tesseract", c.OCR.Tesseract, "error", err)
	}
	return pdf.NewLoader(pdf.WithOCR(pdf.NewFitzRasterizer(c.OCR.DPI), rec))
}

// newChatClient returns the chat-completion client.
func newChatClient(c *config.Config) *llm.Client {
	return llm.NewClient(
		llm.WithAPIKey(c.LLM.APIKey),
		llm.WithBaseURL(c.LLM.BaseURL),
		llm.WithModel(c.LLM.Model),
		llm.WithTemperature(c.LLM.Temperature),
		llm.WithMaxTokens(c.LLM.MaxTokens),
		llm.WithRateLimit(c.LLM.RateLimit),
		llm.WithHTTPClient(&http.Client{Timeout: c.LLM.Timeout}),
	)
}

// app bundles the long-lived objects a command needs.
type app struct {
	embedder embedding.Provider
	builder  *rag.IndexBuilder
	catalog  *catalog.Catalog
	pipeline *rag.Pipeline
}

// newApp wires the build pipeline from configuration and loads any saved
// index. The catalog is optional: failing to open it only disables build
// history.
func newApp(ctx context.Context, c *config.Config, opts ...rag.PipelineOption) *app {
	ch, err := chunker.New(c.Chunk.Size, c.Chunk.Overlap)
	if err != nil {
		exitWithError(ExitConfigError, "%v", err)
	}

	a := &app{embedder: newEmbedder(c)}
	a.builder = rag.NewIndexBuilder(newLoader(c), ch, a.embedder, c.Embedding.Concurrency)

	cat, err := catalog.Open(c.CatalogPath)
	if err != nil {
		logger.WithComponent("cli").Warn("build catalog unavailable", "path", c.CatalogPath, "error", err)
	} else {
		a.catalog = cat
		opts = append(opts, rag.WithCatalog(cat))
	}

	a.pipeline = rag.NewPipeline(c.CorpusDir, c.IndexPath, a.builder, opts...)
	if err := a.pipeline.Open(ctx); err != nil {
		exitWithError(ExitError, "opening index: %v", err)
	}
	return a
}

func (a *app) answerer(c *config.Config, opts ...rag.AnswererOption) *rag.Answerer {
	opts = append([]rag.AnswererOption{
		rag.WithTopK(c.Retrieval.TopK),
		rag.WithMaxContextChars(c.Retrieval.MaxContextChars),
	}, opts...)
	return rag.NewAnswerer(a.pipeline, a.embedder, newChatClient(c), opts...)
}

func (a *app) Close() {
	if a.catalog != nil {
		a.catalog.Close()
	}
}

// exitCodeFor maps a pipeline error to a process exit code.
func exitCodeFor(err error) int {
	switch {
	case errors.Is(err, config.ErrInvalid), errors.Is(err, chunker.ErrInvalidConfig):
		return ExitConfigError
	case errors.Is(err, pdf.ErrNoUsableText), errors.Is(err, pdf.ErrIO):
		return ExitDataError
	case errors.Is(err, rag.ErrIndexNotBuilt), errors.Is(err, vectorindex.ErrNotFound):
		return ExitIndexNotBuilt
	case errors.Is(err, rag.ErrUpstreamUnavailable), errors.Is(err, embedding.ErrUnavailable):
		return ExitUpstream
	default:
		return ExitError
	}
}
