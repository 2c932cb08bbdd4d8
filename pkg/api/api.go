// Package api serves the tracker over HTTP.
//
// Routes:
//
//	GET  /healthz
//	GET  /commands                 command history, filtered by query
//	POST /commands                 start a command given as tagged JSON
//	GET  /commands/{id}
//	GET  /commands/{id}/attempts
//	GET  /jobs/{id}                job status tree
//	POST /jobs/{id}/cancel
//	GET  /stats                    per-minute command statistics
//	GET  /metrics/cache            block read counters
//	GET  /events                   server-sent coordinator events
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/jdziat/durable-cmd-tracker/pkg/coordinator"
	"github.com/jdziat/durable-cmd-tracker/pkg/core"
	"github.com/jdziat/durable-cmd-tracker/pkg/metrics"
	"github.com/jdziat/durable-cmd-tracker/pkg/stats"
	"github.com/jdziat/durable-cmd-tracker/pkg/storage"
)

// Commands starts commands and publishes their events.
type Commands interface {
	Start(ctx context.Context, cmd core.CmdConfig) (string, <-chan *coordinator.Result, error)
	Events() <-chan core.Event
	Unsubscribe(ch <-chan core.Event)
}

// History reads recorded command runs.
type History interface {
	SearchCommands(ctx context.Context, filter storage.CommandFilter) ([]*core.CommandRun, int64, error)
	GetCommandRun(ctx context.Context, id string) (*core.CommandRun, error)
	GetAttempts(ctx context.Context, commandID string) ([]*core.AttemptRecord, error)
}

// Jobs controls the job-execution subsystem.
type Jobs interface {
	Status(ctx context.Context, jobID string) (*core.JobInfo, error)
	Cancel(ctx context.Context, jobID string) error
	Counts(ctx context.Context) (map[core.Status]int64, error)
	CacheMetrics() metrics.CacheMetrics
}

// Server holds the handler dependencies.
type Server struct {
	commands Commands
	history  History
	jobs     Jobs
	stats    stats.Store
	runCtx   context.Context
	logger   *slog.Logger
}

// Option configures a Server.
type Option interface {
	apply(*Server)
}

type optionFunc func(*Server)

func (f optionFunc) apply(s *Server) { f(s) }

// WithStats enables GET /stats.
func WithStats(st stats.Store) Option {
	return optionFunc(func(s *Server) {
		s.stats = st
	})
}

// WithRunContext sets the context commands started over HTTP run under.
// Cancelling it cancels them.
func WithRunContext(ctx context.Context) Option {
	return optionFunc(func(s *Server) {
		s.runCtx = ctx
	})
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return optionFunc(func(s *Server) {
		s.logger = l
	})
}

// NewServer creates a Server.
func NewServer(commands Commands, history History, jobs Jobs, opts ...Option) *Server {
	s := &Server{
		commands: commands,
		history:  history,
		jobs:     jobs,
		runCtx:   context.Background(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt.apply(s)
	}
	return s
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Get("/healthz", s.handleHealth)

	r.Route("/commands", func(r chi.Router) {
		r.Get("/", s.handleListCommands)
		r.Post("/", s.handleStartCommand)
		r.Get("/{id}", s.handleGetCommand)
		r.Get("/{id}/attempts", s.handleGetAttempts)
	})

	r.Route("/jobs/{id}", func(r chi.Router) {
		r.Get("/", s.handleJobStatus)
		r.Post("/cancel", s.handleCancelJob)
	})

	r.Get("/stats", s.handleStats)
	r.Get("/metrics/cache", s.handleCacheMetrics)
	r.Get("/events", s.handleEvents)
	return r
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()))
	})
}
