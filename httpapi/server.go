// Package httpapi exposes the assistant over HTTP.
//
// Routes:
//
//	POST /v1/ask          {"question": "..."}        -> rag.Answer
//	POST /v1/index/drive  {"folder_id": "..."}       -> rag.IndexReport
//	POST /v1/index/web    {"query": "..."}           -> rag.IndexReport
//	GET  /healthz                                    -> liveness probe
//	GET  /metrics                                    -> Prometheus scrape
//
// Errors are returned as a JSON envelope:
//
//	{"error": {"code": "invalid_request", "message": "question is empty"}}
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/zero1hq/rag-assistant/rag"
)

const maxRequestBody = 1 << 20

// Assistant is the part of the pipeline the HTTP layer needs.
type Assistant interface {
	Ask(ctx context.Context, question string) (rag.Answer, error)
	IndexDrive(ctx context.Context, folderID string) (rag.IndexReport, error)
	IndexWeb(ctx context.Context, query string, topK int) (rag.IndexReport, error)
	Ping(ctx context.Context) error
}

// Server routes HTTP requests to the assistant.
type Server struct {
	assistant     Assistant
	logger        *slog.Logger
	router        *mux.Router
	limiter       *ipRateLimiter
	defaultFolder string
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithServerLogger sets the request logger.
func WithServerLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithDefaultDriveFolder sets the folder used when an index request
// does not name one.
func WithDefaultDriveFolder(folderID string) ServerOption {
	return func(s *Server) {
		s.defaultFolder = folderID
	}
}

// WithRateLimit enables per-client rate limiting.
func WithRateLimit(rps float64, burst int) ServerOption {
	return func(s *Server) {
		s.limiter = newIPRateLimiter(rps, burst)
	}
}

// NewServer creates a Server. The metrics registry is exposed on
// /metrics; pass nil to expose the default registry.
func NewServer(assistant Assistant, registry *prometheus.Registry, opts ...ServerOption) *Server {
	s := &Server{
		assistant: assistant,
		logger:    slog.Default(),
		router:    mux.NewRouter(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.router.Use(s.requestLogging)
	if s.limiter != nil {
		s.router.Use(s.limiter.middleware)
	}

	s.router.HandleFunc("/v1/ask", s.handleAsk).Methods(http.MethodPost)
	s.router.HandleFunc("/v1/index/drive", s.handleIndexDrive).Methods(http.MethodPost)
	s.router.HandleFunc("/v1/index/web", s.handleIndexWeb).Methods(http.MethodPost)
	s.router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)

	var metricsHandler http.Handler
	if registry != nil {
		metricsHandler = promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
	} else {
		metricsHandler = promhttp.Handler()
	}
	s.router.Handle("/metrics", metricsHandler).Methods(http.MethodGet)

	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

type askRequest struct {
	Question string `json:"question"`
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if !s.decode(w, r, &req) {
		return
	}

	answer, err := s.assistant.Ask(r.Context(), req.Question)
	if err != nil {
		if errors.Is(err, rag.ErrEmptyQuestion) {
			s.writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
			return
		}
		s.logger.Error("ask failed", "error", err)
		s.writeError(w, http.StatusBadGateway, "upstream_error", "failed to answer question")
		return
	}
	s.writeJSON(w, http.StatusOK, answer)
}

type indexDriveRequest struct {
	FolderID string `json:"folder_id"`
}

func (s *Server) handleIndexDrive(w http.ResponseWriter, r *http.Request) {
	var req indexDriveRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.FolderID == "" {
		req.FolderID = s.defaultFolder
	}
	if req.FolderID == "" {
		s.writeError(w, http.StatusBadRequest, "invalid_request", "folder_id is required")
		return
	}

	report, err := s.assistant.IndexDrive(r.Context(), req.FolderID)
	if err != nil {
		s.logger.Error("drive indexing failed", "folder_id", req.FolderID, "error", err)
		s.writeError(w, http.StatusBadGateway, "upstream_error", "failed to index Drive folder")
		return
	}
	s.writeJSON(w, http.StatusOK, report)
}

type indexWebRequest struct {
	Query string `json:"query"`
	TopK  int    `json:"top_k,omitempty"`
}

func (s *Server) handleIndexWeb(w http.ResponseWriter, r *http.Request) {
	var req indexWebRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.Query == "" {
		s.writeError(w, http.StatusBadRequest, "invalid_request", "query is required")
		return
	}

	report, err := s.assistant.IndexWeb(r.Context(), req.Query, req.TopK)
	if err != nil {
		s.logger.Error("web indexing failed", "query", req.Query, "error", err)
		s.writeError(w, http.StatusBadGateway, "upstream_error", "failed to index web results")
		return
	}
	s.writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.assistant.Ping(r.Context()); err != nil {
		s.logger.Error("health check failed", "error", err)
		s.writeError(w, http.StatusServiceUnavailable, "unhealthy", "vector store unreachable")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// decode reads a JSON request body, writing an error response and
// returning false on failure.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return false
	}
	return true
}

type errorEnvelope struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (s *Server) writeError(w http.ResponseWriter, status int, code, message string) {
	s.writeJSON(w, status, errorEnvelope{Error: errorBody{Code: code, Message: message}})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}
