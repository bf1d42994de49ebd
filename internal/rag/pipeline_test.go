package rag

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matsen/lungrag/internal/catalog"
	"github.com/matsen/lungrag/internal/chunker"
	"github.com/matsen/lungrag/internal/document"
	"github.com/matsen/lungrag/internal/pdf"
	"github.com/matsen/lungrag/internal/pdf/pdftest"
	"github.com/matsen/lungrag/internal/vectorindex"
)

func newTestPipeline(t *testing.T, loader DocumentLoader, e *wordEmbedder, opts ...PipelineOption) (*Pipeline, string) {
	t.Helper()
	ch, err := chunker.New(40, 10)
	require.NoError(t, err)
	indexPath := filepath.Join(t.TempDir(), "index", "lungrag.idx")
	b := NewIndexBuilder(loader, ch, e, 2)
	return NewPipeline("corpus", indexPath, b, opts...), indexPath
}

func TestPipeline_EndToEnd_SinglePagePDF(t *testing.T) {
	corpus := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(corpus, "xray.pdf"), pdftest.Minimal("Lungs are clear bilaterally."), 0o644))

	e := newWordEmbedder()
	ch, err := chunker.New(chunker.DefaultChunkSize, chunker.DefaultChunkOverlap)
	require.NoError(t, err)
	indexPath := filepath.Join(t.TempDir(), "lungrag.idx")
	p := NewPipeline(corpus, indexPath, NewIndexBuilder(pdf.NewLoader(pdf.WithoutOCR()), ch, e, 1))

	stats, err := p.Build(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Chunks)
	assert.Equal(t, 1, stats.Documents)

	a := NewAnswerer(p, e, &fakeCompleter{answer: "Yes."}, WithTopK(1))
	ret, err := a.Retrieve(context.Background(), "Are the lungs clear?", 1)
	require.NoError(t, err)
	require.Len(t, ret.Results, 1)
	top := ret.Results[0]
	assert.Equal(t, "xray.pdf", top.Source)
	assert.Equal(t, 1, top.Page)
	assert.Contains(t, top.Text, "Lungs are clear bilaterally.")
	assert.Equal(t, document.ChunkID("xray.pdf", 1, 0), top.ID)
}

func TestPipeline_AnswerBeforeBuild(t *testing.T) {
	e := newWordEmbedder()
	p, _ := newTestPipeline(t, &fakeLoader{}, e)
	require.NoError(t, p.Open(context.Background()))
	assert.Equal(t, StateUninitialized, p.State())

	a := NewAnswerer(p, e, &fakeCompleter{answer: "x"})
	ans, err := a.Answer(context.Background(), "Are the lungs clear?")
	assert.Nil(t, ans)
	assert.ErrorIs(t, err, ErrIndexNotBuilt)
}

func TestPipeline_BuildSaveReopen(t *testing.T) {
	e := newWordEmbedder()
	loader := &fakeLoader{pages: []document.Page{
		textPage("pneumonia.pdf", 1, "Pneumonia is an infection of the lungs that is often treated with antibiotics."),
		textPage("asthma.pdf", 1, "Asthma narrows the airway."),
	}}
	obs := newRecordingObserver()
	p, indexPath := newTestPipeline(t, loader, e, WithBuildObserver(obs))

	stats, err := p.Build(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateReady, p.State())
	assert.Equal(t, 2, stats.Documents)
	assert.Equal(t, 2, stats.Pages)
	assert.Equal(t, p.Current().Size(), stats.Chunks)
	assert.Greater(t, stats.Chunks, 2, "long page splits into several chunks")
	assert.Equal(t, e.Dimensions(), stats.Dimensions)
	assert.Equal(t, "bag-of-words", stats.Model)
	assert.Positive(t, stats.IndexBytes)
	assert.FileExists(t, indexPath)
	assert.NoFileExists(t, indexPath+".tmp")
	assert.Equal(t, 1, obs.builds["succeeded"])
	assert.Equal(t, stats.Chunks, obs.entries)

	status := p.Status()
	assert.Equal(t, StateReady, status.State)
	assert.Equal(t, stats.Chunks, status.Entries)
	assert.Same(t, stats, status.LastBuild)
	assert.Empty(t, status.LastError)
	assert.Nil(t, status.BuildStartedAt)

	reopened := NewPipeline("corpus", indexPath, p.builder, WithBuildObserver(newRecordingObserver()))
	require.NoError(t, reopened.Open(context.Background()))
	assert.Equal(t, StateReady, reopened.State())
	assert.Equal(t, p.Current().Entries(), reopened.Current().Entries())

	q, err := e.Embed(context.Background(), "antibiotics")
	require.NoError(t, err)
	want, err := p.Current().Search(q.Vector, 3)
	require.NoError(t, err)
	got, err := reopened.Current().Search(q.Vector, 3)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestPipeline_NoUsableText(t *testing.T) {
	e := newWordEmbedder()
	obs := newRecordingObserver()
	p, indexPath := newTestPipeline(t, &fakeLoader{}, e, WithBuildObserver(obs))

	_, err := p.Build(context.Background())
	require.ErrorIs(t, err, pdf.ErrNoUsableText)
	assert.Equal(t, StateUninitialized, p.State())
	assert.Nil(t, p.Current())
	assert.NoFileExists(t, indexPath)
	assert.Contains(t, p.Status().LastError, "no usable text")
	assert.Equal(t, 1, obs.builds["failed"])
}

func TestPipeline_FailedRebuildKeepsLiveIndex(t *testing.T) {
	e := newWordEmbedder()
	loader := &fakeLoader{pages: []document.Page{textPage("a.pdf", 1, "Lungs are clear bilaterally.")}}
	p, _ := newTestPipeline(t, loader, e)

	_, err := p.Build(context.Background())
	require.NoError(t, err)
	before := p.Current()

	loader.err = errors.New("disk went away")
	_, err = p.Build(context.Background())
	require.Error(t, err)

	assert.Equal(t, StateReady, p.State())
	assert.Same(t, before, p.Current())
	assert.Contains(t, p.Status().LastError, "disk went away")
	assert.NotNil(t, p.Status().LastBuild, "last successful build is kept")
}

func TestPipeline_EmbeddingFailure(t *testing.T) {
	e := newWordEmbedder()
	e.err = errors.New("ollama down")
	p, _ := newTestPipeline(t, &fakeLoader{pages: []document.Page{textPage("a.pdf", 1, "lungs")}}, e)

	_, err := p.Build(context.Background())
	assert.ErrorContains(t, err, "ollama down")
	assert.Equal(t, StateUninitialized, p.State())
}

func TestPipeline_StartBuildRejectsConcurrentBuild(t *testing.T) {
	e := newWordEmbedder()
	loader := &fakeLoader{
		pages:   []document.Page{textPage("a.pdf", 1, "Asthma narrows the airway.")},
		release: make(chan struct{}),
		started: make(chan struct{}, 1),
	}
	p, _ := newTestPipeline(t, loader, e)

	require.NoError(t, p.StartBuild(context.Background()))
	<-loader.started

	assert.Equal(t, StateBuilding, p.State())
	assert.NotNil(t, p.Status().BuildStartedAt)
	assert.ErrorIs(t, p.StartBuild(context.Background()), ErrBuildInProgress)
	_, err := p.Build(context.Background())
	assert.ErrorIs(t, err, ErrBuildInProgress)

	a := NewAnswerer(p, e, &fakeCompleter{answer: "x"})
	_, err = a.Answer(context.Background(), "asthma")
	assert.ErrorIs(t, err, ErrIndexNotBuilt, "queries never see a partial index")

	close(loader.release)
	p.Wait()

	assert.Equal(t, StateReady, p.State())
	assert.Equal(t, int32(1), loader.calls.Load())
	assert.NotNil(t, p.Current())
}

func TestPipeline_OpenCorruptIndex(t *testing.T) {
	e := newWordEmbedder()
	p, indexPath := newTestPipeline(t, &fakeLoader{}, e)
	require.NoError(t, os.MkdirAll(filepath.Dir(indexPath), 0o755))
	require.NoError(t, os.WriteFile(indexPath, []byte("\x80\x04\x95pickle"), 0o644))

	require.NoError(t, p.Open(context.Background()))
	assert.Equal(t, StateUninitialized, p.State())
	assert.Contains(t, p.Status().LastError, "corrupt")
}

func TestPipeline_Catalog(t *testing.T) {
	cat, err := catalog.Open(filepath.Join(t.TempDir(), "catalog.db"))
	require.NoError(t, err)
	defer cat.Close()

	e := newWordEmbedder()
	loader := &fakeLoader{pages: []document.Page{
		textPage("copd.pdf", 1, "Chronic airway obstruction."),
		textPage("tb.pdf", 1, "Tuberculosis infection of the lungs."),
	}}
	p, _ := newTestPipeline(t, loader, e, WithCatalog(cat))

	stats, err := p.Build(context.Background())
	require.NoError(t, err)
	require.NotZero(t, stats.BuildID)

	last, err := cat.LastSuccessfulBuild()
	require.NoError(t, err)
	assert.Equal(t, stats.BuildID, last.ID)
	assert.Equal(t, stats.Chunks, last.Chunks)
	assert.Equal(t, 40, last.ChunkSize)
	assert.Equal(t, 10, last.ChunkOverlap)
	assert.Equal(t, "bag-of-words", last.Model)

	docs, err := cat.DocumentsForBuild(last.ID)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "copd.pdf", docs[0].Name)
	assert.Equal(t, "fp-copd.pdf", docs[0].Fingerprint)

	loader.pages = nil
	_, err = p.Build(context.Background())
	require.Error(t, err)
	builds, err := cat.ListBuilds(0)
	require.NoError(t, err)
	require.Len(t, builds, 2)
	assert.Equal(t, catalog.StatusFailed, builds[0].Status)
	assert.Contains(t, builds[0].Error, "no usable text")
}

func TestPipeline_CurrentSatisfiesIndexSource(t *testing.T) {
	var _ IndexSource = (*Pipeline)(nil)
	var _ IndexSource = staticSource{}
	var idx *vectorindex.Index
	assert.Nil(t, staticSource{idx}.Current())
}
