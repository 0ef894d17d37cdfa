// Package server exposes health, metrics and batch controls for the watch loop.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"articleforge/internal/logger"
	"articleforge/internal/metrics"
	"articleforge/internal/pipeline"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

// ErrBatchRunning is returned when a batch is requested while one is in flight.
var ErrBatchRunning = errors.New("a batch is already running")

// BatchRunner runs one batch of pending articles.
type BatchRunner interface {
	RunBatch(ctx context.Context, limit int) (pipeline.BatchStats, error)
}

// HealthCheck reports whether a dependency is reachable.
type HealthCheck func(ctx context.Context) error

// Options configures the server
type Options struct {
	Addr       string
	AdminToken string // empty disables POST /api/runs
	BatchSize  int
	Gatherer   prometheus.Gatherer
	Checks     map[string]HealthCheck
}

// Server represents the HTTP server
type Server struct {
	router     *chi.Mux
	httpServer *http.Server
	runner     BatchRunner
	options    Options
	started    time.Time

	// lifetime of batches triggered over HTTP; cancelled by Shutdown
	baseCtx   context.Context
	cancelRun context.CancelFunc
	triggered sync.WaitGroup

	// guards the batch slot and last-run state
	mu        sync.Mutex
	running   bool
	lastStats *pipeline.BatchStats
	lastErr   error
	lastRun   time.Time
}

// New creates a new HTTP server instance
func New(runner BatchRunner, opts Options) *Server {
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}

	s := &Server{
		router:  chi.NewRouter(),
		runner:  runner,
		options: opts,
		started: time.Now(),
	}
	s.baseCtx, s.cancelRun = context.WithCancel(context.Background())

	s.setupMiddleware()
	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         opts.Addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	return s
}

// setupMiddleware configures middleware for the server
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)

	// Recovery middleware (recover from panics)
	s.router.Use(middleware.Recoverer)

	s.router.Use(middleware.Timeout(30 * time.Second))
}

// setupRoutes configures routes for the server
func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)
	s.router.Method(http.MethodGet, "/metrics", metrics.Handler(s.options.Gatherer))

	s.router.Route("/api", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Post("/score", s.handleScore)
		r.With(s.requireAdminToken).Post("/runs", s.handleTriggerRun)
	})
}

// RunBatch runs one batch unless another is in flight, and records its outcome.
func (s *Server) RunBatch(ctx context.Context) (pipeline.BatchStats, error) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return pipeline.BatchStats{}, ErrBatchRunning
	}
	s.running = true
	s.mu.Unlock()

	stats, err := s.runner.RunBatch(ctx, s.options.BatchSize)

	s.mu.Lock()
	s.running = false
	s.lastStats = &stats
	s.lastErr = err
	s.lastRun = time.Now()
	s.mu.Unlock()

	if err != nil {
		logger.Error("Batch failed", err, "run_id", stats.RunID)
	}
	return stats, err
}

// Start starts the HTTP server
func (s *Server) Start() error {
	logger.Info("Starting HTTP server", "addr", s.httpServer.Addr)

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed to start: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the HTTP server. Triggered batches are
// cancelled and stop before their next article; Shutdown waits for them
// until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	logger.Info("Shutting down HTTP server gracefully...")
	s.cancelRun()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	done := make(chan struct{})
	go func() {
		s.triggered.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return fmt.Errorf("triggered batch still running: %w", ctx.Err())
	}

	logger.Info("HTTP server stopped")
	return nil
}

// Router returns the chi router instance (useful for testing)
func (s *Server) Router() *chi.Mux {
	return s.router
}
