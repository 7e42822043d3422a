// Package server exposes the analysis pipeline over HTTP: session
// lifecycle, dependency processing, completion analysis, and code
// generation, mirroring the CLI command set. Every response uses the
// same JSON envelope as the CLI so callers can script either surface
// interchangeably.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/harvest-ai/harvest/pkg/config"
	"github.com/harvest-ai/harvest/pkg/observability"
	"github.com/harvest-ai/harvest/pkg/session"
)

// Options wires a server. Config and Manager are required.
type Options struct {
	Config  *config.Config
	Manager *session.Manager

	// Observability supplies the tracer and metrics recorder for HTTP
	// middleware and the /metrics handler. Nil disables both.
	Observability *observability.Manager
}

// Server is the HTTP API over a session manager.
type Server struct {
	cfg     *config.Config
	manager *session.Manager
	obs     *observability.Manager
	router  chi.Router
	http    *http.Server
}

// New builds the server and its routes.
func New(opts Options) (*Server, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if opts.Manager == nil {
		return nil, fmt.Errorf("session manager is required")
	}

	obs := opts.Observability
	if obs == nil {
		obs = observability.NoopManager()
	}

	s := &Server{
		cfg:     opts.Config,
		manager: opts.Manager,
		obs:     obs,
	}
	s.router = s.buildRouter()
	return s, nil
}

// Handler returns the routed handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start listens on the configured address and serves until ctx is
// cancelled, then drains within the configured shutdown timeout.
func (s *Server) Start(ctx context.Context) error {
	serverCfg := s.cfg.Server
	s.http = &http.Server{
		Addr:         serverCfg.Address(),
		Handler:      s.router,
		ReadTimeout:  serverCfg.ReadTimeout.Duration(),
		WriteTimeout: serverCfg.WriteTimeout.Duration(),
		IdleTimeout:  serverCfg.IdleTimeout.Duration(),
	}

	listener, err := net.Listen("tcp", s.http.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.http.Addr, err)
	}
	slog.Info("HTTP server listening", "address", listener.Addr().String())

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		if err := s.http.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), serverCfg.ShutdownTimeout.Duration())
		defer cancel()
		return s.http.Shutdown(shutdownCtx)
	})
	return group.Wait()
}

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(observability.HTTPMiddleware(s.obs.GetTracer("harvest.server"), s.obs.GetMetrics()))

	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", s.obs.GetMetrics().Handler())

	r.Route("/sessions", func(r chi.Router) {
		r.Post("/", s.handleCreateSession)
		r.Get("/", s.handleListSessions)
		r.Delete("/", s.handleClearSessions)

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.handleGetSession)
			r.Delete("/", s.handleDeleteSession)
			r.Post("/workflow", s.handleIdentifyWorkflow)
			r.Post("/process", s.handleProcessNext)
			r.Post("/variables", s.handleAddVariable)
			r.Get("/complete", s.handleCompletion)
			r.Get("/blockers", s.handleBlockers)
			r.Get("/unresolved", s.handleUnresolved)
			r.Get("/requests", s.handleRequests)
			r.Get("/graph", s.handleGraph)
			r.Get("/logs", s.handleLogs)
			r.Post("/generate", s.handleGenerate)
		})
	})
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeResult(w, http.StatusOK, map[string]interface{}{
		"status":   "ok",
		"sessions": s.manager.Len(),
		"time":     time.Now().UTC().Format(time.RFC3339),
	})
}
