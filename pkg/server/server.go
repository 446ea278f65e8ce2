// Package server exposes the HTTP API: a session-aware chat endpoint,
// a direct query endpoint that bypasses routing, and health checks.
package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/harperhq/clientiq/pkg/metrics"
	"github.com/harperhq/clientiq/pkg/pipeline"
	"github.com/harperhq/clientiq/pkg/router"
)

// Orchestrator answers chat questions end to end.
type Orchestrator interface {
	Answer(ctx context.Context, sessionID, question string, companyID int64) router.Response
}

// Server holds the HTTP handlers and their collaborators.
type Server struct {
	orchestrator     Orchestrator
	executor         router.QueryExecutor
	log              *slog.Logger
	defaultCompanyID int64
	allowedOrigins   []string
}

// Config holds the server's collaborators.
type Config struct {
	Logger           *slog.Logger
	Orchestrator     Orchestrator
	Executor         router.QueryExecutor
	DefaultCompanyID int64
	AllowedOrigins   []string
}

// New creates a Server and its router.
func New(cfg Config) *Server {
	log := cfg.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:5173"}
	}
	return &Server{
		orchestrator:     cfg.Orchestrator,
		executor:         cfg.Executor,
		log:              log,
		defaultCompanyID: cfg.DefaultCompanyID,
		allowedOrigins:   origins,
	}
}

// Handler builds the chi router with middleware and routes.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/healthz", s.handleHealth)
	r.Post("/api/chat", s.handleChat)
	r.Post("/api/query", s.handleQuery)

	return r
}

// ChatRequest is the incoming chat message.
type ChatRequest struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
	CompanyID int64  `json:"company_id"`
}

// ChatResponse is the answer returned to the UI.
type ChatResponse struct {
	Answer  string                 `json:"answer"`
	Route   string                 `json:"route"`
	Outcome *pipeline.QueryOutcome `json:"outcome,omitempty"`
	Error   string                 `json:"error,omitempty"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if strings.TrimSpace(req.Message) == "" {
		http.Error(w, "Message is required", http.StatusBadRequest)
		return
	}
	if req.SessionID == "" {
		req.SessionID = middleware.GetReqID(r.Context())
	}
	if req.CompanyID == 0 {
		req.CompanyID = s.defaultCompanyID
	}

	resp := s.orchestrator.Answer(r.Context(), req.SessionID, req.Message, req.CompanyID)

	writeJSON(w, s.log, ChatResponse{
		Answer:  resp.Answer,
		Route:   string(resp.Route),
		Outcome: resp.Outcome,
	})
}

// QueryRequest asks for one question to be run straight through the SQL
// pipeline, without routing or session memory.
type QueryRequest struct {
	Question  string `json:"question"`
	CompanyID int64  `json:"company_id"`
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if strings.TrimSpace(req.Question) == "" {
		http.Error(w, "Question is required", http.StatusBadRequest)
		return
	}
	if req.CompanyID == 0 {
		req.CompanyID = s.defaultCompanyID
	}

	outcome := s.executor.ProcessQuery(r.Context(), req.Question, req.CompanyID, nil)
	writeJSON(w, s.log, outcome)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.log, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, log *slog.Logger, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error("failed to encode response", "error", err)
	}
}
