package server

import (
	"errors"
	"net/http"

	"github.com/matsen/lungrag/internal/embedding"
	"github.com/matsen/lungrag/internal/pdf"
	"github.com/matsen/lungrag/internal/rag"
	"github.com/matsen/lungrag/internal/vectorindex"
)

// classify maps an error to an HTTP status and a stable error code.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, errBadRequest):
		return http.StatusBadRequest, "BadRequest"
	case errors.Is(err, rag.ErrEmptyQuery):
		return http.StatusBadRequest, "EmptyQuery"
	case errors.Is(err, vectorindex.ErrNegativeLimit):
		return http.StatusBadRequest, "InvalidLimit"
	case errors.Is(err, rag.ErrIndexNotBuilt):
		return http.StatusConflict, "IndexNotBuilt"
	case errors.Is(err, rag.ErrBuildInProgress):
		return http.StatusConflict, "BuildInProgress"
	case errors.Is(err, rag.ErrUpstreamUnavailable):
		return http.StatusBadGateway, "UpstreamUnavailable"
	case errors.Is(err, embedding.ErrUnavailable):
		return http.StatusBadGateway, "EmbedderUnavailable"
	case errors.Is(err, vectorindex.ErrDimensionMismatch):
		return http.StatusInternalServerError, "DimensionMismatch"
	case errors.Is(err, vectorindex.ErrInvalidVector):
		return http.StatusInternalServerError, "InvalidVector"
	case errors.Is(err, vectorindex.ErrEmptyIndex):
		return http.StatusConflict, "EmptyIndex"
	case errors.Is(err, pdf.ErrNoUsableText):
		return http.StatusUnprocessableEntity, "NoUsableText"
	default:
		return http.StatusInternalServerError, "Internal"
	}
}
