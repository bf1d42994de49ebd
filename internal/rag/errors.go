package rag

import (
	"errors"
	"fmt"

	"github.com/matsen/lungrag/internal/document"
	"github.com/matsen/lungrag/internal/llm"
	"github.com/matsen/lungrag/internal/vectorindex"
)

var (
	// ErrIndexNotBuilt means no index is loaded yet.
	ErrIndexNotBuilt = errors.New("index not built")

	// ErrBuildInProgress means another build is already running.
	ErrBuildInProgress = errors.New("index build already in progress")

	// ErrEmptyQuery means the query was blank.
	ErrEmptyQuery = errors.New("query is empty")

	// ErrUpstreamUnavailable means the hosted model failed to answer.
	ErrUpstreamUnavailable = llm.ErrUpstreamUnavailable
)

// UpstreamError is returned by Answer when retrieval succeeded but the chat
// model failed. It keeps the retrieval so callers can show sources or retry.
type UpstreamError struct {
	Query     string
	Sources   []document.Citation
	Retrieved []vectorindex.Result
	Err       error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("answering %q: %v", e.Query, e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// Is makes every UpstreamError match ErrUpstreamUnavailable.
func (e *UpstreamError) Is(target error) bool {
	return target == ErrUpstreamUnavailable
}
