package rag

import (
	"context"
	"strings"
	"sync/atomic"
	"time"
	"unicode"

	"github.com/matsen/lungrag/internal/document"
	"github.com/matsen/lungrag/internal/embedding"
	"github.com/matsen/lungrag/internal/llm"
	"github.com/matsen/lungrag/internal/pdf"
	"github.com/matsen/lungrag/internal/vectorindex"
)

// wordEmbedder is a bag-of-words embedder over a fixed vocabulary plus a
// constant bias dimension, so no vector is all zeros.
type wordEmbedder struct {
	vocab []string
	calls atomic.Int32
	err   error
}

func newWordEmbedder() *wordEmbedder {
	return &wordEmbedder{vocab: []string{
		"lungs", "clear", "bilaterally", "pneumonia", "asthma",
		"infection", "airway", "inhaler", "antibiotics",
	}}
}

func (e *wordEmbedder) Embed(ctx context.Context, text string) (embedding.Embedding, error) {
	e.calls.Add(1)
	if e.err != nil {
		return embedding.Embedding{}, e.err
	}
	vec := make([]float32, len(e.vocab)+1)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool { return !unicode.IsLetter(r) })
	for _, w := range words {
		for i, v := range e.vocab {
			if w == v {
				vec[i]++
			}
		}
	}
	vec[len(e.vocab)] = 0.1
	return embedding.Embedding{Vector: vec}, nil
}

func (e *wordEmbedder) ModelName() string { return "bag-of-words" }
func (e *wordEmbedder) Dimensions() int   { return len(e.vocab) + 1 }

// fakeCompleter returns a canned answer and records the prompt.
type fakeCompleter struct {
	answer string
	err    error
	got    []llm.Message
}

func (c *fakeCompleter) Complete(ctx context.Context, messages []llm.Message) (string, error) {
	c.got = messages
	if c.err != nil {
		return "", c.err
	}
	return c.answer, nil
}

func (c *fakeCompleter) Model() string { return "fake-chat" }

// staticSource serves a fixed index.
type staticSource struct{ idx *vectorindex.Index }

func (s staticSource) Current() *vectorindex.Index { return s.idx }

// fakeLoader returns canned pages, optionally waiting for release first.
type fakeLoader struct {
	pages   []document.Page
	err     error
	release chan struct{}
	started chan struct{}
	calls   atomic.Int32
}

func (l *fakeLoader) Load(ctx context.Context, dir string) (*pdf.LoadResult, error) {
	l.calls.Add(1)
	if l.started != nil {
		l.started <- struct{}{}
	}
	if l.release != nil {
		select {
		case <-l.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(10 * time.Second):
		}
	}
	res := &pdf.LoadResult{Pages: l.pages}
	seen := map[string]bool{}
	for _, p := range l.pages {
		if !seen[p.Source] {
			seen[p.Source] = true
			res.Files = append(res.Files, pdf.FileReport{
				Document: document.SourceDocument{Name: p.Source, Fingerprint: "fp-" + p.Source},
				Pages:    1,
			})
		}
	}
	if l.err != nil {
		return res, l.err
	}
	if len(l.pages) == 0 {
		return res, pdf.ErrNoUsableText
	}
	return res, nil
}

func textPage(source string, number int, text string) document.Page {
	return document.Page{Source: source, Number: number, Text: text, Origin: document.OriginText}
}

// recordingObserver counts observer callbacks.
type recordingObserver struct {
	queries map[string]int
	builds  map[string]int
	entries int
}

func newRecordingObserver() *recordingObserver {
	return &recordingObserver{queries: map[string]int{}, builds: map[string]int{}}
}

func (o *recordingObserver) ObserveQuery(outcome string, _ time.Duration) { o.queries[outcome]++ }
func (o *recordingObserver) ObserveBuild(status string, _ time.Duration, entries, _ int) {
	o.builds[status]++
	if entries > 0 {
		o.entries = entries
	}
}
func (o *recordingObserver) SetIndexEntries(n int) { o.entries = n }
