// Package server exposes the build and query pipeline over HTTP.
package server

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/matsen/lungrag/internal/logger"
	"github.com/matsen/lungrag/internal/metrics"
	"github.com/matsen/lungrag/internal/rag"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// Pipeline is the index lifecycle the server drives.
type Pipeline interface {
	StartBuild(ctx context.Context) error
	State() rag.State
	Status() rag.Status
}

// Answerer answers and retrieves against the live index.
type Answerer interface {
	Answer(ctx context.Context, query string) (*rag.Answer, error)
	Retrieve(ctx context.Context, query string, k int) (*rag.Retrieval, error)
	TopK() int
}

// Server routes HTTP requests to the pipeline and answerer.
type Server struct {
	pipeline Pipeline
	answerer Answerer
	metrics  *metrics.Metrics
	cors     CORSConfig
	maxK     int
	buildCtx context.Context
	log      *slog.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithMetrics records request metrics and serves /metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) {
		s.metrics = m
	}
}

// WithCORS replaces the default CORS configuration.
func WithCORS(cfg CORSConfig) Option {
	return func(s *Server) {
		s.cors = cfg
	}
}

// WithBuildContext sets the context background builds run under. Builds
// started by a request outlive it, so this should be the server's lifetime
// context.
func WithBuildContext(ctx context.Context) Option {
	return func(s *Server) {
		if ctx != nil {
			s.buildCtx = ctx
		}
	}
}

// WithMaxK caps the k accepted by /search.
func WithMaxK(k int) Option {
	return func(s *Server) {
		if k > 0 {
			s.maxK = k
		}
	}
}

// New creates a Server.
func New(p Pipeline, a Answerer, opts ...Option) *Server {
	s := &Server{
		pipeline: p,
		answerer: a,
		cors:     DefaultCORSConfig(),
		maxK:     50,
		buildCtx: context.Background(),
		log:      logger.WithComponent("server"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the routed handler wrapped in middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /build", s.handleBuild)
	mux.HandleFunc("POST /query", s.handleQuery)
	mux.HandleFunc("POST /search", s.handleSearch)
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	// Paths the chest X-ray dashboard posts to.
	mux.HandleFunc("POST /train", s.handleBuild)
	mux.HandleFunc("POST /llmanswers", s.handleQuery)
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics.Handler())
	}

	var h http.Handler = mux
	h = CORS(s.cors)(h)
	if s.metrics != nil {
		h = Metrics(s.metrics)(h)
	}
	h = RequestID(h)
	return h
}
