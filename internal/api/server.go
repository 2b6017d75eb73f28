// Package api exposes the HTTP interface for the harvester service.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fisatech/datasheet-harvester/internal/cache/memory"
	"github.com/fisatech/datasheet-harvester/internal/engine"
	"github.com/fisatech/datasheet-harvester/internal/harvester"
	"github.com/fisatech/datasheet-harvester/internal/telemetry"
)

// BatchRunner is the engine surface the server needs; tests substitute
// fakes.
type BatchRunner interface {
	ProcessBatch(ctx context.Context, targets []harvester.Target, opts engine.ProcessOptions) ([]*harvester.AttemptResult, error)
	Statistics() engine.Statistics
	CheckURL(ctx context.Context, url string) engine.CheckReport
}

// BatchStatus is the lifecycle state of a submitted batch.
type BatchStatus string

// Batch states.
const (
	BatchRunning   BatchStatus = "running"
	BatchCompleted BatchStatus = "completed"
	BatchAborted   BatchStatus = "aborted"
)

// Batch tracks one submitted batch and its results.
type Batch struct {
	ID        string                     `json:"id"`
	Status    BatchStatus                `json:"status"`
	Submitted time.Time                  `json:"submitted"`
	Total     int                        `json:"total"`
	Done      int                        `json:"done"`
	Results   []*harvester.AttemptResult `json:"results,omitempty"`
}

// Server wires HTTP handlers to the engine and cache.
type Server struct {
	router chi.Router
	runner BatchRunner
	cache  harvester.ResultCache
	idGen  harvester.IDGenerator
	clock  harvester.Clock
	logger *zap.Logger

	mu      sync.Mutex
	batches map[string]*Batch
}

// NewServer constructs a Server with middleware and routes.
func NewServer(runner BatchRunner, cache harvester.ResultCache, idGen harvester.IDGenerator, clock harvester.Clock, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		runner:  runner,
		cache:   cache,
		idGen:   idGen,
		clock:   clock,
		logger:  logger,
		batches: make(map[string]*Batch),
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", telemetry.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Route("/batches", func(r chi.Router) {
			r.Post("/", s.submitBatch)
			r.Get("/{batch_id}", s.getBatch)
		})
		r.Get("/check", s.checkURL)
		r.Get("/statistics", s.statistics)
	})

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if _, err := s.cache.Stats(r.Context()); err != nil {
		s.writeError(w, http.StatusServiceUnavailable, "cache unavailable")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type batchRequest struct {
	Targets []harvester.Target `json:"targets"`
	URLs    []string           `json:"urls"`
}

// submitBatch accepts either explicit targets or a bare URL list, starts
// processing in the background and returns the batch id immediately.
func (s *Server) submitBatch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	targets := req.Targets
	for _, u := range req.URLs {
		targets = append(targets, harvester.Target{URL: u})
	}
	if len(targets) == 0 {
		s.writeError(w, http.StatusBadRequest, "at least one URL required")
		return
	}

	id, err := s.idGen.NewID()
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "generate batch id")
		return
	}
	batch := &Batch{
		ID:        id,
		Status:    BatchRunning,
		Submitted: s.clock.Now(),
		Total:     len(targets),
	}
	s.mu.Lock()
	s.batches[batch.ID] = batch
	s.mu.Unlock()

	go s.runBatch(batch.ID, targets)

	s.writeJSON(w, http.StatusAccepted, map[string]string{"batch_id": batch.ID})
}

// runBatch drives the engine on its own context; the submitting request
// has long since returned.
func (s *Server) runBatch(id string, targets []harvester.Target) {
	results, err := s.runner.ProcessBatch(context.Background(), targets, engine.ProcessOptions{
		OnProgress: func(done, _ int, _ string) {
			s.mu.Lock()
			if b, ok := s.batches[id]; ok {
				b.Done = done
			}
			s.mu.Unlock()
		},
	})

	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.batches[id]
	if !ok {
		return
	}
	b.Results = results
	b.Done = len(results)
	if err != nil {
		b.Status = BatchAborted
		s.logger.Warn("batch aborted", zap.String("batch_id", id), zap.Error(err))
		return
	}
	b.Status = BatchCompleted
}

func (s *Server) getBatch(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "batch_id")
	s.mu.Lock()
	batch, ok := s.batches[id]
	var snapshot Batch
	if ok {
		snapshot = *batch
	}
	s.mu.Unlock()

	if !ok {
		s.writeError(w, http.StatusNotFound, "batch not found")
		return
	}
	s.writeJSON(w, http.StatusOK, snapshot)
}

func (s *Server) checkURL(w http.ResponseWriter, r *http.Request) {
	url := r.URL.Query().Get("url")
	if url == "" {
		s.writeError(w, http.StatusBadRequest, "url parameter required")
		return
	}
	s.writeJSON(w, http.StatusOK, s.runner.CheckURL(r.Context(), url))
}

func (s *Server) statistics(w http.ResponseWriter, r *http.Request) {
	cacheStats, err := s.cache.Stats(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "cache statistics unavailable")
		return
	}
	payload := map[string]any{
		"engine": s.runner.Statistics(),
		"cache":  cacheStats,
	}
	if ms, ok := s.cache.(interface{ MemoryStats() memory.Stats }); ok {
		payload["memory"] = ms.MemoryStats()
	}
	s.writeJSON(w, http.StatusOK, payload)
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Request-ID", uuid.NewString())
		next.ServeHTTP(w, r)
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		s.logger.Info("request completed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.status),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
		)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered", zap.Any("panic", rec))
				s.writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (sw *statusWriter) WriteHeader(code int) {
	sw.status = code
	sw.ResponseWriter.WriteHeader(code)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("write JSON failed", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
