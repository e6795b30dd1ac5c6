// Package web exposes the onboarding engine over a JSON REST API.
package web

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/JonMunkholm/agrionboard/internal/config"
	"github.com/JonMunkholm/agrionboard/internal/core"
	webmw "github.com/JonMunkholm/agrionboard/internal/web/middleware"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Server is the HTTP server for the onboarding API.
type Server struct {
	service *core.Service
	cfg     *config.Config
	router  *chi.Mux
	server  *http.Server
}

// NewServer creates a Server with middleware and routes installed.
func NewServer(service *core.Service, cfg *config.Config) *Server {
	s := &Server{
		service: service,
		cfg:     cfg,
		router:  chi.NewRouter(),
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(webmw.TrustedRealIP(s.cfg.Security.TrustedProxies))
	s.router.Use(webmw.Logger)
	s.router.Use(middleware.Recoverer)
	if s.cfg.Server.RequestTimeout > 0 {
		s.router.Use(middleware.Timeout(s.cfg.Server.RequestTimeout))
	}
	s.router.Use(webmw.SecurityHeaders(s.cfg.Security.EnableCSP))
	if s.cfg.Rate.Enabled {
		s.router.Use(webmw.NewRateLimiter(s.cfg.Rate.RequestsPerMinute).Middleware)
	}
	s.router.Use(requestMetadata)
}

func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		r.Use(webmw.APIKeyAuth(s.cfg.Security))

		r.Get("/workflow", s.handleWorkflow)
		r.Get("/statistics", s.handleStatistics)

		r.Route("/records", func(r chi.Router) {
			r.Get("/", s.handleListRecords)
			r.Post("/", s.handleCreateRecord)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetRecord)
				r.Get("/progress", s.handleProgress)
				r.Post("/advance", s.handleAdvance)
				r.Post("/override", s.handleOverride)
				r.Post("/status", s.handleStatus)
				r.Post("/notes", s.handleNote)
				r.Post("/documents", s.handleDocument)
				r.Post("/training", s.handleTraining)
				r.Post("/assign", s.handleAssign)
				r.Post("/follow-up", s.handleFollowUp)
				r.Post("/messages", s.handleSendMessage)
			})
		})

		r.Group(func(r chi.Router) {
			if s.cfg.Rate.Enabled {
				r.Use(webmw.NewRateLimiter(s.cfg.Rate.ImportLimit).Middleware)
			}
			r.Post("/import", s.handleImport)
		})
		r.Get("/import/status", s.handleImportStatus)
		r.Get("/export", s.handleExport)

		r.Get("/templates", s.handleListTemplates)
		r.Post("/templates", s.handleCreateTemplate)
		r.Post("/templates/{id}/render", s.handleRenderTemplate)
	})
}

// Start listens on the configured address until Shutdown.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.cfg.Server.Addr(),
		Handler:      s.router,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
		IdleTimeout:  s.cfg.Server.IdleTimeout,
	}
	slog.Info("starting server", "addr", s.server.Addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the underlying chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}
