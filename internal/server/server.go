// Package server is the HTTP surface of the application: health and
// metrics endpoints, a JSON view of the observed sequence, write endpoints
// that go through the store watcher, and the socket.io mount.
//
// Handlers never touch the sequence directly. Every read and write is
// handed to the owner goroutine through a Runner.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/specialistvlad/observedseq/internal/broadcast"
	"github.com/specialistvlad/observedseq/internal/ctxlog"
	"github.com/specialistvlad/observedseq/internal/index"
)

// Runner executes fn on the goroutine that owns the sequence and waits for
// its result.
type Runner interface {
	Do(ctx context.Context, fn func() error) error
}

// Reader exposes the sequence as wire payloads.
type Reader interface {
	Frame() (broadcast.Frame, error)
	Value(p index.Path) (json.RawMessage, error)
}

// Store accepts writes to the watched table.
type Store interface {
	Insert(ctx context.Context, values map[string]any) error
	Update(ctx context.Context, key string, values map[string]any) error
	Delete(ctx context.Context, key string) error
}

// Deps are the collaborators the server is wired to. Store, Socket and
// Gatherer are optional.
type Deps struct {
	Runner   Runner
	Reader   Reader
	Store    Store
	Socket   http.Handler
	Gatherer prometheus.Gatherer
}

// Server is the HTTP server.
type Server struct {
	deps   Deps
	router *chi.Mux
	server *http.Server
	logger *slog.Logger
}

// New creates a Server and configures its routes.
func New(ctx context.Context, deps Deps) *Server {
	s := &Server{
		deps:   deps,
		router: chi.NewRouter(),
		logger: ctxlog.FromContext(ctx).With("component", "http"),
	}
	s.setupMiddleware()
	s.setupRoutes()
	s.server = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.requestLogger)
	s.router.Use(middleware.Recoverer)
}

func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)
	if s.deps.Gatherer != nil {
		s.router.Handle("/metrics", promhttp.HandlerFor(s.deps.Gatherer, promhttp.HandlerOpts{}))
	}
	if s.deps.Socket != nil {
		s.router.Handle("/socket.io/*", s.deps.Socket)
	}

	s.router.Get("/snapshot", s.handleSnapshot)
	s.router.Get("/rows/{path}", s.handleRow)

	if s.deps.Store != nil {
		s.router.Route("/items", func(r chi.Router) {
			r.Post("/", s.handleInsert)
			r.Patch("/{key}", s.handleUpdate)
			r.Delete("/{key}", s.handleDelete)
		})
	}
}

// Router returns the underlying chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// ListenAndServe serves on addr until Shutdown is called. It returns
// immediately when Shutdown ran first.
func (s *Server) ListenAndServe(addr string) error {
	s.server.Addr = addr
	s.logger.Info("HTTP server starting", "address", addr)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down HTTP server...")
	return s.server.Shutdown(ctx)
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("Request served.",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
