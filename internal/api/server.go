package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/wikicrawler/internal/crawler"
	"github.com/JakeFAU/wikicrawler/internal/metrics"
	"github.com/JakeFAU/wikicrawler/internal/store"
)

const defaultRequestTimeout = 30 * time.Second

// Engine is the crawl surface the server drives.
type Engine interface {
	Submit(ctx context.Context, rawURL string, depth int) (*crawler.CrawlTask, error)
	InFlight() *crawler.InFlightSet
}

// Searcher answers term queries.
type Searcher interface {
	Find(term string) ([]string, error)
}

// Options carries the optional server collaborators.
type Options struct {
	// Runs backs the /crawls routes. They answer 503 when nil.
	Runs store.RunRepository
	// BaseContext parents every submitted crawl. Crawls outlive the request
	// that started them and end when it is canceled.
	BaseContext context.Context
	// Ready reports whether downstream dependencies are usable.
	Ready          func(ctx context.Context) error
	RequestTimeout time.Duration
	Logger         *zap.Logger
}

// Server wires HTTP handlers to the engine, the index and the run store.
type Server struct {
	router  chi.Router
	engine  Engine
	index   Searcher
	runs    *RunHandler
	baseCtx context.Context
	ready   func(ctx context.Context) error
	logger  *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(engine Engine, index Searcher, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	baseCtx := opts.BaseContext
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	timeout := opts.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	s := &Server{
		engine:  engine,
		index:   index,
		runs:    NewRunHandler(opts.Runs, logger),
		baseCtx: baseCtx,
		ready:   opts.Ready,
		logger:  logger,
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(metrics.Middleware)
	r.Use(timeoutMiddleware(timeout))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Put("/create", s.create)
	r.Get("/urls", s.urls)
	r.Get("/count", s.count)
	r.Get("/find/{word}", s.find)
	r.Route("/crawls", func(r chi.Router) {
		r.Get("/", s.runs.ListRuns)
		r.Get("/{task_id}", s.runs.GetRun)
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		if err := s.ready(r.Context()); err != nil {
			s.logger.Warn("readiness check failed", zap.Error(err))
			writeError(w, http.StatusServiceUnavailable, "not ready")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type createRequest struct {
	URL   string `json:"url"`
	Depth int    `json:"depth"`
}

type createResponse struct {
	TaskID string `json:"task_id,omitempty"`
	URL    string `json:"url"`
	Depth  int    `json:"depth"`
}

func (s *Server) create(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	task, err := s.engine.Submit(s.baseCtx, strings.TrimSpace(req.URL), req.Depth)
	if err != nil {
		if errors.Is(err, crawler.ErrValidation) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.logger.Error("submit crawl failed", zap.String("url", req.URL), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to submit crawl")
		return
	}
	writeJSON(w, http.StatusAccepted, createResponse{
		TaskID: task.ID(),
		URL:    task.URL(),
		Depth:  task.MaxDepth(),
	})
}

func (s *Server) urls(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.InFlight().Keys())
}

func (s *Server) count(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.InFlight().Len())
}

func (s *Server) find(w http.ResponseWriter, r *http.Request) {
	word := chi.URLParam(r, "word")
	docs, err := s.index.Find(word)
	if err != nil {
		if errors.Is(err, crawler.ErrValidation) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.logger.Error("find failed", zap.String("word", word), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "search failed")
		return
	}
	writeJSON(w, http.StatusOK, docs)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(fmt.Errorf("encode response: %w", err)))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
