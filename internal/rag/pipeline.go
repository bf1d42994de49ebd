package rag

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/matsen/lungrag/internal/catalog"
	"github.com/matsen/lungrag/internal/logger"
	"github.com/matsen/lungrag/internal/pdf"
	"github.com/matsen/lungrag/internal/vectorindex"
)

// State is the lifecycle state of a Pipeline.
type State string

// Pipeline states.
const (
	StateUninitialized State = "uninitialized"
	StateBuilding      State = "building"
	StateReady         State = "ready"
)

// BuildStats describes a finished build.
type BuildStats struct {
	BuildID    int64            `json:"build_id,omitempty"`
	StartedAt  time.Time        `json:"started_at"`
	FinishedAt time.Time        `json:"finished_at"`
	Duration   time.Duration    `json:"duration_ns"`
	Documents  int              `json:"documents"`
	Pages      int              `json:"pages"`
	OCRPages   int              `json:"ocr_pages"`
	Chunks     int              `json:"chunks"`
	Dimensions int              `json:"dimensions"`
	Model      string           `json:"model"`
	IndexPath  string           `json:"index_path"`
	IndexBytes int64            `json:"index_bytes"`
	Files      []pdf.FileReport `json:"files,omitempty"`
}

// Status is a snapshot of the pipeline.
type Status struct {
	State          State       `json:"state"`
	Entries        int         `json:"entries"`
	Dimensions     int         `json:"dimensions"`
	Model          string      `json:"model,omitempty"`
	IndexPath      string      `json:"index_path"`
	IndexCreatedAt *time.Time  `json:"index_created_at,omitempty"`
	LastBuild      *BuildStats `json:"last_build,omitempty"`
	LastError      string      `json:"last_error,omitempty"`
	BuildStartedAt *time.Time  `json:"build_started_at,omitempty"`
}

// Pipeline owns the live index and serializes rebuilds of it. Queries read
// the live index through Current while a build prepares its replacement.
type Pipeline struct {
	corpusDir string
	indexPath string
	builder   *IndexBuilder
	catalog   *catalog.Catalog
	observer  Observer
	log       *slog.Logger

	current atomic.Pointer[vectorindex.Index]

	mu           sync.Mutex
	building     bool
	buildStarted time.Time
	lastBuild    *BuildStats
	lastErr      error
	wg           sync.WaitGroup
}

// PipelineOption configures a Pipeline.
type PipelineOption func(*Pipeline)

// WithCatalog records builds in c.
func WithCatalog(c *catalog.Catalog) PipelineOption {
	return func(p *Pipeline) { p.catalog = c }
}

// WithBuildObserver reports build outcomes to o.
func WithBuildObserver(o Observer) PipelineOption {
	return func(p *Pipeline) {
		if o != nil {
			p.observer = o
		}
	}
}

// NewPipeline creates an uninitialized pipeline building corpusDir into
// indexPath.
func NewPipeline(corpusDir, indexPath string, builder *IndexBuilder, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		corpusDir: corpusDir,
		indexPath: indexPath,
		builder:   builder,
		observer:  nopObserver{},
		log:       logger.WithComponent("pipeline"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Open loads a previously saved index if one exists. A missing or corrupt
// file leaves the pipeline uninitialized; other read errors are returned.
func (p *Pipeline) Open(ctx context.Context) error {
	idx, err := vectorindex.Load(p.indexPath)
	switch {
	case err == nil:
	case errors.Is(err, vectorindex.ErrNotFound):
		p.log.Info("no saved index", "path", p.indexPath)
		return nil
	case errors.Is(err, vectorindex.ErrCorruptIndex):
		p.log.Warn("saved index is unreadable, rebuild required", "path", p.indexPath, "error", err)
		p.mu.Lock()
		p.lastErr = err
		p.mu.Unlock()
		return nil
	default:
		return err
	}

	if m := p.builder.ModelName(); idx.Model() != m {
		p.log.Warn("saved index was built with a different model", "index_model", idx.Model(), "embedder", m)
	}
	p.current.Store(idx)
	p.observer.SetIndexEntries(idx.Size())
	p.log.Info("index loaded", "path", p.indexPath, "entries", idx.Size(), "dimensions", idx.Dimensions())
	return nil
}

// Current returns the live index, or nil before the first build or load.
func (p *Pipeline) Current() *vectorindex.Index {
	return p.current.Load()
}

// State returns the lifecycle state.
func (p *Pipeline) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stateLocked()
}

func (p *Pipeline) stateLocked() State {
	switch {
	case p.building:
		return StateBuilding
	case p.current.Load() != nil:
		return StateReady
	default:
		return StateUninitialized
	}
}

// Status returns a snapshot of the pipeline.
func (p *Pipeline) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()

	s := Status{State: p.stateLocked(), IndexPath: p.indexPath, LastBuild: p.lastBuild}
	if idx := p.current.Load(); idx != nil {
		s.Entries = idx.Size()
		s.Dimensions = idx.Dimensions()
		s.Model = idx.Model()
		created := idx.CreatedAt()
		s.IndexCreatedAt = &created
	}
	if p.lastErr != nil {
		s.LastError = p.lastErr.Error()
	}
	if p.building {
		started := p.buildStarted
		s.BuildStartedAt = &started
	}
	return s
}

// Build rebuilds the index synchronously.
func (p *Pipeline) Build(ctx context.Context) (*BuildStats, error) {
	if err := p.begin(); err != nil {
		return nil, err
	}
	return p.run(ctx)
}

// StartBuild rebuilds the index on a new goroutine and returns at once.
// ctx governs the build, so it should outlive the caller's request.
func (p *Pipeline) StartBuild(ctx context.Context) error {
	if err := p.begin(); err != nil {
		return err
	}
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		_, _ = p.run(ctx)
	}()
	return nil
}

// Wait blocks until builds started with StartBuild have finished.
func (p *Pipeline) Wait() {
	p.wg.Wait()
}

func (p *Pipeline) begin() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.building {
		return ErrBuildInProgress
	}
	p.building = true
	p.buildStarted = time.Now()
	return nil
}

func (p *Pipeline) run(ctx context.Context) (stats *BuildStats, err error) {
	started := p.buildStarted
	log := p.log.With("corpus", p.corpusDir)
	log.Info("index build started")

	buildID := p.beginCatalog()

	defer func() {
		elapsed := time.Since(started)
		p.mu.Lock()
		p.building = false
		if err != nil {
			p.lastErr = err
		} else {
			p.lastErr = nil
			p.lastBuild = stats
		}
		p.mu.Unlock()

		if err != nil {
			p.observer.ObserveBuild(string(catalog.StatusFailed), elapsed, 0, 0)
			p.failCatalog(buildID, err)
			log.Error("index build failed", "error", err, "elapsed", elapsed)
			return
		}
		p.observer.ObserveBuild(string(catalog.StatusSucceeded), elapsed, stats.Chunks, stats.OCRPages)
		log.Info("index build finished", "chunks", stats.Chunks, "elapsed", elapsed)
	}()

	idx, loaded, err := p.builder.Build(ctx, p.corpusDir)
	if loaded != nil {
		p.recordDocuments(buildID, loaded)
	}
	if err != nil {
		return nil, err
	}

	if err := idx.Save(p.indexPath); err != nil {
		return nil, fmt.Errorf("saving index: %w", err)
	}
	size, err := vectorindex.FileSize(p.indexPath)
	if err != nil {
		return nil, fmt.Errorf("saving index: %w", err)
	}

	finished := time.Now()
	stats = &BuildStats{
		BuildID:    buildID,
		StartedAt:  started,
		FinishedAt: finished,
		Duration:   finished.Sub(started),
		Documents:  len(loaded.Files),
		Pages:      len(loaded.Pages),
		OCRPages:   loaded.OCRPages(),
		Chunks:     idx.Size(),
		Dimensions: idx.Dimensions(),
		Model:      idx.Model(),
		IndexPath:  p.indexPath,
		IndexBytes: size,
		Files:      loaded.Files,
	}
	p.finishCatalog(buildID, stats)

	p.current.Store(idx)
	return stats, nil
}

func (p *Pipeline) beginCatalog() int64 {
	if p.catalog == nil {
		return 0
	}
	ch := p.builder.Chunker()
	id, err := p.catalog.BeginBuild(catalog.BuildParams{
		Model:        p.builder.ModelName(),
		ChunkSize:    ch.Size(),
		ChunkOverlap: ch.Overlap(),
	})
	if err != nil {
		p.log.Warn("catalog: recording build start", "error", err)
		return 0
	}
	return id
}

func (p *Pipeline) recordDocuments(buildID int64, loaded *pdf.LoadResult) {
	if p.catalog == nil || buildID == 0 {
		return
	}
	docs := make([]catalog.DocumentRecord, len(loaded.Files))
	for i, f := range loaded.Files {
		docs[i] = catalog.DocumentRecord{
			Name:         f.Document.Name,
			Fingerprint:  f.Document.Fingerprint,
			Pages:        f.Pages,
			OCRPages:     f.OCRPages,
			DroppedPages: f.DroppedPages,
			Error:        f.ErrorMessage(),
		}
	}
	if err := p.catalog.RecordDocuments(buildID, docs); err != nil {
		p.log.Warn("catalog: recording documents", "build_id", buildID, "error", err)
	}
}

func (p *Pipeline) finishCatalog(buildID int64, s *BuildStats) {
	if p.catalog == nil || buildID == 0 {
		return
	}
	err := p.catalog.FinishBuild(buildID, catalog.BuildTotals{
		Documents:  s.Documents,
		Pages:      s.Pages,
		OCRPages:   s.OCRPages,
		Chunks:     s.Chunks,
		IndexBytes: s.IndexBytes,
	})
	if err != nil {
		p.log.Warn("catalog: recording build finish", "build_id", buildID, "error", err)
	}
}

func (p *Pipeline) failCatalog(buildID int64, buildErr error) {
	if p.catalog == nil || buildID == 0 {
		return
	}
	if err := p.catalog.FailBuild(buildID, buildErr.Error()); err != nil {
		p.log.Warn("catalog: recording build failure", "build_id", buildID, "error", err)
	}
}
