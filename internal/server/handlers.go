package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/matsen/lungrag/internal/document"
	"github.com/matsen/lungrag/internal/logger"
	"github.com/matsen/lungrag/internal/rag"
	"github.com/matsen/lungrag/internal/vectorindex"
)

// Response envelope status values.
const (
	statusSuccess  = "success"
	statusBuilding = "building"
	statusError    = "error"
)

type queryRequest struct {
	Query string `json:"query"`
	K     int    `json:"k,omitempty"`
}

type queryResponse struct {
	Status  string              `json:"status"`
	Query   string              `json:"query"`
	Answer  string              `json:"answer"`
	Sources []document.Citation `json:"sources"`
	Model   string              `json:"model,omitempty"`
}

type searchResponse struct {
	Status  string               `json:"status"`
	Query   string               `json:"query"`
	Results []vectorindex.Result `json:"results"`
	Sources []document.Citation  `json:"sources"`
}

type errorResponse struct {
	Status  string              `json:"status"`
	Code    string              `json:"code"`
	Error   string              `json:"error"`
	Message string              `json:"message"` // same text as Error, for the dashboard
	Sources []document.Citation `json:"sources,omitempty"`
}

func (s *Server) handleBuild(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())

	if err := s.pipeline.StartBuild(s.buildCtx); err != nil {
		log.Warn("build rejected", "error", err)
		s.writeError(w, r, err)
		return
	}
	log.Info("build started")
	s.writeJSON(w, http.StatusAccepted, map[string]string{"status": statusBuilding})
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	req, err := decodeQuery(w, r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	ans, err := s.answerer.Answer(r.Context(), req.Query)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, queryResponse{
		Status:  statusSuccess,
		Query:   ans.Query,
		Answer:  ans.Text,
		Sources: nonNil(ans.Sources),
		Model:   ans.Model,
	})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	req, err := decodeQuery(w, r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.K < 0 {
		s.writeError(w, r, vectorindex.ErrNegativeLimit)
		return
	}
	k := req.K
	if k == 0 {
		k = s.answerer.TopK()
	}
	if k > s.maxK {
		k = s.maxK
	}

	ret, err := s.answerer.Retrieve(r.Context(), req.Query, k)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	results := ret.Results
	if results == nil {
		results = []vectorindex.Result{}
	}
	s.writeJSON(w, http.StatusOK, searchResponse{
		Status:  statusSuccess,
		Query:   ret.Query,
		Results: results,
		Sources: nonNil(ret.Sources),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.pipeline.Status())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	state := s.pipeline.State()
	code := http.StatusOK
	if state != rag.StateReady {
		code = http.StatusServiceUnavailable
	}
	s.writeJSON(w, code, map[string]string{"status": string(state)})
}

// errBadRequest marks malformed request bodies.
var errBadRequest = errors.New("malformed request body")

func decodeQuery(w http.ResponseWriter, r *http.Request) (queryRequest, error) {
	var req queryRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&req); err != nil {
		if errors.Is(err, io.EOF) {
			return req, rag.ErrEmptyQuery
		}
		return req, fmt.Errorf("%w: %v", errBadRequest, err)
	}
	if strings.TrimSpace(req.Query) == "" {
		return req, rag.ErrEmptyQuery
	}
	return req, nil
}

func nonNil(c []document.Citation) []document.Citation {
	if c == nil {
		return []document.Citation{}
	}
	return c
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Error("failed to write response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := classify(err)
	resp := errorResponse{Status: statusError, Code: code, Error: err.Error(), Message: err.Error()}

	var upstream *rag.UpstreamError
	if errors.As(err, &upstream) {
		resp.Sources = upstream.Sources
	}
	if status >= http.StatusInternalServerError {
		logger.FromContext(r.Context()).Error("request failed",
			"path", r.URL.Path, "status", status, "error", err)
	}
	s.writeJSON(w, status, resp)
}
