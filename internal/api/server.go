// Package api serves the watchdog's HTTP surface: status, history,
// manual cycle triggering, and Prometheus metrics.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/sells-group/pipewarden/internal/model"
)

// Service is the orchestrator surface the handlers consume.
type Service interface {
	Cycle(ctx context.Context) model.OrchestrationRun
	Status(ctx context.Context) model.OrchestratorStatus
	Summary(ctx context.Context) string
	RecentRuns(limit int) []model.OrchestrationRun
}

// HistoryReader exposes the decision and action logs.
type HistoryReader interface {
	RecentDecisions(limit int) []model.Decision
	RecentActions(limit int) []model.ActionResult
}

// Server is the HTTP API over a running orchestrator.
type Server struct {
	svc     Service
	history HistoryReader
	router  chi.Router
	http    *http.Server
}

// New builds the router and its middleware stack. The CORS policy is
// wide open so dashboards can poll from anywhere.
func New(svc Service, history HistoryReader, port int) *Server {
	s := &Server{svc: svc, history: history}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/healthz", s.handleHealth)
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Post("/cycle", s.handleCycle)
		r.Get("/summary", s.handleSummary)
		r.Get("/decisions", s.handleDecisions)
		r.Get("/actions", s.handleActions)
		r.Get("/runs", s.handleRuns)
	})

	s.router = r
	s.http = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute, // cycle may wait on the LLM
		IdleTimeout:  120 * time.Second,
	}
	return s
}

// Handler returns the routed handler, for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe blocks until the server stops.
func (s *Server) ListenAndServe() error {
	zap.L().Info("api: listening", zap.String("addr", s.http.Addr))
	return s.http.ListenAndServe()
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.svc.Status(r.Context()))
}

func (s *Server) handleCycle(w http.ResponseWriter, r *http.Request) {
	run := s.svc.Cycle(r.Context())
	writeJSON(w, http.StatusOK, run)
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"summary": s.svc.Summary(r.Context())})
}

func (s *Server) handleDecisions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.history.RecentDecisions(limitParam(r)))
}

func (s *Server) handleActions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.history.RecentActions(limitParam(r)))
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.svc.RecentRuns(limitParam(r)))
}

// limitParam parses ?limit=, falling back to the history default.
func limitParam(r *http.Request) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("api: write response failed", zap.Error(err))
	}
}

// requestLogger logs each request through the global zap logger.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		zap.L().Info("api: request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("took", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}
