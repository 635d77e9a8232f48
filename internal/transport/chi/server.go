// Package chi exposes catalog retrieval and grounded answering over HTTP.
package chi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	chirouter "github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/retidev/preciorag/internal/domain"
	"github.com/retidev/preciorag/internal/domain/product"
	"github.com/retidev/preciorag/internal/logger"
	answeruc "github.com/retidev/preciorag/internal/usecase/answer"
	healthuc "github.com/retidev/preciorag/internal/usecase/health"
	retrieveuc "github.com/retidev/preciorag/internal/usecase/retrieve"
)

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// Server wires the usecases to their routes.
type Server struct {
	retrieve      *retrieveuc.Service
	answer        *answeruc.Service
	health        *healthuc.Service
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server.
func NewServer(
	retrieve *retrieveuc.Service,
	answer *answeruc.Service,
	health *healthuc.Service,
	logger *zap.Logger,
) *Server {
	s := &Server{
		retrieve: retrieve,
		answer:   answer,
		health:   health,
		logger:   logger,
	}
	s.errorHandlers = []errorHandler{
		sentinelHandler(domain.ErrBadRequest, http.StatusBadRequest, "bad_request"),
		sentinelHandler(domain.ErrEmbeddingBackend, http.StatusBadGateway, "embedding_backend_error"),
		sentinelHandler(domain.ErrGenerationBackend, http.StatusBadGateway, "generation_backend_error"),
		sentinelHandler(domain.ErrConnection, http.StatusServiceUnavailable, "store_unavailable"),
		sentinelHandler(domain.ErrSchemaMismatch, http.StatusInternalServerError, "schema_mismatch"),
		sentinelHandler(domain.ErrDimensionMismatch, http.StatusInternalServerError, "dimension_mismatch"),
	}
	return s
}

// Routes mounts all endpoints on the router.
func (s *Server) Routes(r chirouter.Router) {
	r.Post("/products/list", s.listProducts)
	r.Post("/products/aggregate", s.aggregateProducts)
	r.Post("/ask", s.ask)
	r.Post("/ask/stream", s.askStream)
	r.Get("/health", s.healthCheck)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
}

// listProducts handles POST /products/list.
func (s *Server) listProducts(w http.ResponseWriter, r *http.Request) {
	var req listRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Invalid request body: "+err.Error())
		return
	}

	items, truncated, err := s.retrieve.List(r.Context(), req.filters(), req.Offset, req.Limit)
	if err != nil {
		s.handleDomainError(r, w, err)
		return
	}
	if items == nil {
		items = []product.Record{}
	}

	writeJSON(w, http.StatusOK, listResponse{Items: items, Total: len(items), Truncated: truncated})
}

// aggregateProducts handles POST /products/aggregate.
func (s *Server) aggregateProducts(w http.ResponseWriter, r *http.Request) {
	var req aggregateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Invalid request body: "+err.Error())
		return
	}

	spec, err := req.filters()
	if err != nil {
		s.handleDomainError(r, w, err)
		return
	}

	groups, truncated, err := s.retrieve.Aggregate(r.Context(), spec, req.By)
	if err != nil {
		s.handleDomainError(r, w, err)
		return
	}

	writeJSON(w, http.StatusOK, aggregateResponse{Groups: groups, Total: len(groups), Truncated: truncated})
}

// ask handles POST /ask.
func (s *Server) ask(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeAsk(w, r)
	if !ok {
		return
	}

	res, err := s.answer.Ask(r.Context(), req.Query, req.TopK, req.AbstainThreshold)
	if err != nil {
		s.handleDomainError(r, w, err)
		return
	}

	writeJSON(w, http.StatusOK, res)
}

// askStream handles POST /ask/stream with server-sent events. Once the
// first chunk is written the status is fixed; later failures can only be
// logged and the stream closed.
func (s *Server) askStream(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeAsk(w, r)
	if !ok {
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "internal_error", "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	started := false
	emit := func(chunk string) error {
		if err := writeSSE(w, chunk); err != nil {
			return err
		}
		started = true
		flusher.Flush()
		return nil
	}

	if err := s.answer.AskStream(r.Context(), req.Query, req.TopK, req.AbstainThreshold, emit); err != nil {
		if !started {
			s.handleDomainError(r, w, err)
			return
		}
		logger.FromContext(r.Context()).Warn("Stream aborted", zap.Error(err))
	}
}

// healthCheck handles GET /health.
func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	status := http.StatusOK
	if report.Status != healthuc.Healthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, report)
}

func decodeAsk(w http.ResponseWriter, r *http.Request) (askRequest, bool) {
	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Invalid request body: "+err.Error())
		return askRequest{}, false
	}
	if strings.TrimSpace(req.Query) == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "query is required")
		return askRequest{}, false
	}
	return req, true
}

// writeSSE writes one chunk as a server-sent event. Chunks containing
// newlines become multi-line data fields of the same event.
func writeSSE(w http.ResponseWriter, chunk string) error {
	for _, line := range strings.Split(chunk, "\n") {
		if _, err := fmt.Fprintf(w, "data: %s\n", line); err != nil {
			return fmt.Errorf("write sse: %w", err)
		}
	}
	if _, err := fmt.Fprint(w, "\n"); err != nil {
		return fmt.Errorf("write sse: %w", err)
	}
	return nil
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
		domain.ErrBadRequest,
		domain.ErrEmbeddingBackend,
		domain.ErrGenerationBackend,
		domain.ErrConnection,
		domain.ErrSchemaMismatch,
		domain.ErrDimensionMismatch,
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

func (s *Server) handleDomainError(r *http.Request, w http.ResponseWriter, err error) {
	s.logger.Warn("domain error", zap.Error(err))
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			return
		}
	}
	s.logger.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, "internal_error", "internal error")
}
