// Package web provides the HTTP API for triggering validation runs and
// inspecting registered templates.
package web

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/JonMunkholm/dqgate/internal/config"
	"github.com/JonMunkholm/dqgate/internal/pipeline"
	"github.com/JonMunkholm/dqgate/internal/routing"
	"github.com/JonMunkholm/dqgate/internal/template"
	mw "github.com/JonMunkholm/dqgate/internal/web/middleware"
)

// Runner executes validation runs. *pipeline.Orchestrator satisfies it.
type Runner interface {
	Run(ctx context.Context, locator string) (*pipeline.Report, error)
	RunSuite(ctx context.Context, locator, suite string) (*pipeline.Report, error)
}

// Catalog lists registered templates. *template.Registry satisfies it.
type Catalog interface {
	All() []*template.TemplateDef
	Get(templateID string) (*template.TemplateDef, bool)
}

// Publisher writes run artifacts. *routing.Router satisfies it.
type Publisher interface {
	Route(ctx context.Context, report *pipeline.Report) (routing.Routed, error)
}

// Deps are the collaborators of a Server. Publisher may be nil, in which
// case runs are not routed.
type Deps struct {
	Runner    Runner
	Templates Catalog
	Publisher Publisher
}

// Server is the HTTP server for dqgate.
type Server struct {
	deps    Deps
	cfg     *config.Config
	limiter *RunLimiter
	router  *chi.Mux
	server  *http.Server
}

// NewServer creates a new Server instance.
func NewServer(deps Deps, cfg *config.Config) *Server {
	s := &Server{
		deps:    deps,
		cfg:     cfg,
		limiter: NewRunLimiter(cfg.Run.MaxConcurrent, cfg.Run.MaxWaitTime),
		router:  chi.NewRouter(),
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

// setupMiddleware configures middleware for all routes.
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(mw.TrustedRealIP(s.cfg.Security.TrustedProxies))
	s.router.Use(mw.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(securityHeaders)
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		r.Use(mw.APIKeyAuth(&s.cfg.Security))

		// Templates
		r.Get("/templates", s.handleListTemplates)
		r.Get("/templates/{templateID}", s.handleGetTemplate)

		// Runs
		r.Post("/runs", s.handleRun)
		r.Get("/runs/status", s.handleRunStatus)
	})
}

// Start begins listening for HTTP requests.
func (s *Server) Start() error {
	addr := s.cfg.Server.Addr()
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
		IdleTimeout:  s.cfg.Server.IdleTimeout,
	}

	slog.Info("starting server", "addr", addr)
	return s.server.ListenAndServe()
}

// Shutdown stops accepting requests and waits for in-flight runs to finish.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	if err := s.server.Shutdown(ctx); err != nil {
		return err
	}
	return s.limiter.WaitForDrain(ctx)
}

// Router returns the underlying chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// securityHeaders adds security headers to all responses.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Prevent MIME type sniffing
		w.Header().Set("X-Content-Type-Options", "nosniff")

		// Prevent clickjacking
		w.Header().Set("X-Frame-Options", "DENY")

		// JSON only, nothing to load
		w.Header().Set("Content-Security-Policy", "default-src 'none'")

		next.ServeHTTP(w, r)
	})
}
