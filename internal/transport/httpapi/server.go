// Package httpapi exposes the question-answering pipeline over HTTP.
package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/smartbookqa/bookqa/internal/domain"
	askuc "github.com/smartbookqa/bookqa/internal/usecase/ask"
	corpusuc "github.com/smartbookqa/bookqa/internal/usecase/corpus"
	healthuc "github.com/smartbookqa/bookqa/internal/usecase/health"
	ingestuc "github.com/smartbookqa/bookqa/internal/usecase/ingest"
	"github.com/smartbookqa/bookqa/internal/usecase/retrieve"
)

// Error codes returned to clients.
const (
	codeBadRequest       = "bad_request"
	codeValidationFailed = "validation_failed"
	codeDimMismatch      = "dimension_mismatch"
	codeNotFound         = "document_not_found"
	codeProviderError    = "provider_error"
	codeGenerationError  = "generation_error"
	codeTimeout          = "timeout"
	codeInternalError    = "internal_error"
)

// errorResponse is the JSON error payload.
type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// Server holds the pipeline services behind the HTTP handlers.
type Server struct {
	ingest        *ingestuc.Service
	ask           *askuc.Service
	retriever     *retrieve.Service
	corpus        *corpusuc.Service
	health        *healthuc.Service
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server.
func NewServer(
	ingest *ingestuc.Service,
	ask *askuc.Service,
	retriever *retrieve.Service,
	corpus *corpusuc.Service,
	health *healthuc.Service,
	logger *zap.Logger,
) *Server {
	s := &Server{
		ingest:    ingest,
		ask:       ask,
		retriever: retriever,
		corpus:    corpus,
		health:    health,
		logger:    logger,
	}
	s.errorHandlers = []errorHandler{
		sentinelHandler(domain.ErrValidation, http.StatusBadRequest, codeValidationFailed),
		sentinelHandler(domain.ErrDimensionMismatch, http.StatusBadRequest, codeDimMismatch),
		sentinelHandler(domain.ErrDocumentNotFound, http.StatusNotFound, codeNotFound),
		sentinelHandler(domain.ErrTimeout, http.StatusGatewayTimeout, codeTimeout),
		sentinelHandler(domain.ErrProvider, http.StatusBadGateway, codeProviderError),
		sentinelHandler(domain.ErrGeneration, http.StatusBadGateway, codeGenerationError),
	}
	return s
}

// Routes mounts all API routes on the router.
func (s *Server) Routes(r chi.Router) {
	r.Post("/documents", s.IngestDocument)
	r.Delete("/documents/{id}", s.DeleteDocument)
	r.Post("/ask", s.Ask)
	r.Post("/search", s.Search)
	r.Delete("/corpus", s.ClearCorpus)
	r.Get("/stats", s.Stats)
	r.Get("/health", s.HealthCheck)
	r.Get("/metrics", s.Metrics)
}

type ingestRequest struct {
	ID         string `json:"id"`
	SourceName string `json:"source_name"`
	Text       string `json:"text"`
}

// IngestDocument handles POST /documents.
func (s *Server) IngestDocument(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	res, err := s.ingest.Ingest(r.Context(), domain.Document{
		ID:         req.ID,
		SourceName: req.SourceName,
		Text:       req.Text,
	})
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, res)
}

// DeleteDocument handles DELETE /documents/{id}.
func (s *Server) DeleteDocument(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	n, err := s.ingest.Delete(r.Context(), id)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"document_id":    id,
		"chunks_removed": n,
	})
}

type askRequest struct {
	Question string            `json:"question"`
	TopK     int               `json:"top_k"`
	MinScore *float64          `json:"min_score"`
	Filter   map[string]string `json:"filter"`
}

// Ask handles POST /ask.
func (s *Server) Ask(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	resp, err := s.ask.Ask(r.Context(), req.Question, retrieve.Options{
		TopK:     req.TopK,
		MinScore: req.MinScore,
		Filter:   req.Filter,
	})
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

type searchRequest struct {
	Query    string            `json:"query"`
	TopK     int               `json:"top_k"`
	MinScore *float64          `json:"min_score"`
	Filter   map[string]string `json:"filter"`
}

type searchResponse struct {
	Results []domain.RetrievalResult `json:"results"`
	Total   int                      `json:"total"`
}

// Search handles POST /search: retrieval only, no generation.
func (s *Server) Search(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	results, err := s.retriever.Retrieve(r.Context(), req.Query, retrieve.Options{
		TopK:     req.TopK,
		MinScore: req.MinScore,
		Filter:   req.Filter,
	})
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	if results == nil {
		results = []domain.RetrievalResult{}
	}

	writeJSON(w, http.StatusOK, searchResponse{Results: results, Total: len(results)})
}

// ClearCorpus handles DELETE /corpus.
func (s *Server) ClearCorpus(w http.ResponseWriter, r *http.Request) {
	if err := s.corpus.Clear(r.Context()); err != nil {
		s.handleDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Stats handles GET /stats.
func (s *Server) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.corpus.Stats(r.Context())
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	httpStatus := http.StatusOK
	if report.Status != healthuc.Healthy {
		httpStatus = http.StatusServiceUnavailable
	}
	writeJSON(w, httpStatus, report)
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Code: code, Message: message})
}

// safeDomainMessage returns a sentinel error message for the client without exposing internals.
func safeDomainMessage(err error) string {
	sentinels := []error{
		domain.ErrValidation,
		domain.ErrDimensionMismatch,
		domain.ErrDocumentNotFound,
		domain.ErrTimeout,
		domain.ErrProvider,
		domain.ErrGeneration,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code string) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

func (s *Server) handleDomainError(w http.ResponseWriter, err error) {
	s.logger.Warn("domain error", zap.Error(err))
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			return
		}
	}
	s.logger.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
}
