// Package rag retrieves the passages nearest to a question and asks a chat
// model for a grounded answer, and owns the lifecycle of the index those
// passages come from.
package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/matsen/lungrag/internal/document"
	"github.com/matsen/lungrag/internal/embedding"
	"github.com/matsen/lungrag/internal/llm"
	"github.com/matsen/lungrag/internal/logger"
	"github.com/matsen/lungrag/internal/vectorindex"
)

// DefaultTopK is the number of passages retrieved per question.
const DefaultTopK = 4

// IndexSource yields the live index, or nil when none is loaded.
type IndexSource interface {
	Current() *vectorindex.Index
}

// Retrieval is the result of the retrieval half of answering.
type Retrieval struct {
	Query   string               `json:"query"`
	Results []vectorindex.Result `json:"results"`
	Sources []document.Citation  `json:"sources"`
}

// Answer is a grounded answer with its sources.
type Answer struct {
	Query     string               `json:"query"`
	Text      string               `json:"answer"`
	Sources   []document.Citation  `json:"sources"`
	Retrieved []vectorindex.Result `json:"retrieved,omitempty"`
	Model     string               `json:"model"`
}

// Answerer answers questions against an IndexSource.
type Answerer struct {
	source     IndexSource
	embedder   embedding.Provider
	completer  llm.Completer
	topK       int
	maxContext int
	observer   Observer
}

// AnswererOption configures an Answerer.
type AnswererOption func(*Answerer)

// WithTopK sets the number of passages retrieved.
func WithTopK(k int) AnswererOption {
	return func(a *Answerer) {
		if k > 0 {
			a.topK = k
		}
	}
}

// WithMaxContextChars bounds the passage text in the prompt.
func WithMaxContextChars(n int) AnswererOption {
	return func(a *Answerer) {
		if n > 0 {
			a.maxContext = n
		}
	}
}

// WithQueryObserver reports query outcomes to o.
func WithQueryObserver(o Observer) AnswererOption {
	return func(a *Answerer) {
		if o != nil {
			a.observer = o
		}
	}
}

// NewAnswerer creates an Answerer.
func NewAnswerer(source IndexSource, embedder embedding.Provider, completer llm.Completer, opts ...AnswererOption) *Answerer {
	a := &Answerer{
		source:     source,
		embedder:   embedder,
		completer:  completer,
		topK:       DefaultTopK,
		maxContext: DefaultMaxContextChars,
		observer:   nopObserver{},
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// TopK returns the default retrieval depth.
func (a *Answerer) TopK() int {
	return a.topK
}

// Retrieve embeds the query and returns the k nearest passages with their
// deduplicated citations. A non-positive k selects the configured default.
func (a *Answerer) Retrieve(ctx context.Context, query string, k int) (*Retrieval, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}
	if k <= 0 {
		k = a.topK
	}

	idx := a.source.Current()
	if idx == nil {
		return nil, ErrIndexNotBuilt
	}
	if m := a.embedder.ModelName(); idx.Model() != "" && m != idx.Model() {
		logger.FromContext(ctx).Warn("query embedder differs from index model",
			"embedder", m, "index", idx.Model())
	}

	emb, err := a.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	results, err := idx.Search(emb.Vector, k)
	if err != nil {
		return nil, fmt.Errorf("searching index: %w", err)
	}

	return &Retrieval{Query: query, Results: results, Sources: citations(results)}, nil
}

// Answer retrieves passages for the query and asks the chat model for an
// answer grounded in them. A chat failure yields *UpstreamError carrying
// the retrieval.
func (a *Answerer) Answer(ctx context.Context, query string) (*Answer, error) {
	start := time.Now()
	ans, err := a.answer(ctx, query)
	a.observer.ObserveQuery(outcome(err), time.Since(start))
	return ans, err
}

func (a *Answerer) answer(ctx context.Context, query string) (*Answer, error) {
	log := logger.FromContext(ctx)

	ret, err := a.Retrieve(ctx, query, a.topK)
	if err != nil {
		return nil, err
	}

	messages := BuildPrompt(ret.Query, ret.Results, a.maxContext)
	text, err := a.completer.Complete(ctx, messages)
	if err != nil {
		log.Warn("chat completion failed", "error", err, "sources", len(ret.Sources))
		return nil, &UpstreamError{Query: ret.Query, Sources: ret.Sources, Retrieved: ret.Results, Err: err}
	}

	log.Info("answered query", "retrieved", len(ret.Results), "sources", len(ret.Sources))
	return &Answer{
		Query:     ret.Query,
		Text:      text,
		Sources:   ret.Sources,
		Retrieved: ret.Results,
		Model:     a.completer.Model(),
	}, nil
}

func citations(results []vectorindex.Result) []document.Citation {
	cites := make([]document.Citation, len(results))
	for i, r := range results {
		cites[i] = r.Citation()
	}
	return document.DedupeCitations(cites)
}

func outcome(err error) string {
	switch {
	case err == nil:
		return OutcomeSuccess
	case errors.Is(err, ErrIndexNotBuilt):
		return OutcomeNotBuilt
	case errors.Is(err, ErrUpstreamUnavailable):
		return OutcomeUpstreamError
	default:
		return OutcomeError
	}
}
