package web

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/mkratky/rollcall/internal/attendance"
	"github.com/mkratky/rollcall/internal/matching"
	"github.com/mkratky/rollcall/internal/session"
	"github.com/mkratky/rollcall/internal/store"
	"github.com/mkratky/rollcall/internal/web/middleware"
)

// Server exposes the attendance core over HTTP.
type Server struct {
	router     *chi.Mux
	httpServer *http.Server
	log        *slog.Logger
}

// Deps carries everything the HTTP layer needs from the core.
type Deps struct {
	Controller *session.Controller
	Ledger     *attendance.Ledger
	Matcher    *matching.Engine
	Identities store.IdentityRepository
	Groups     store.GroupRepository
	Registry   *prometheus.Registry
	Logger     *slog.Logger
}

// NewServer builds the HTTP server and its routes.
func NewServer(deps Deps, host string, port int) *Server {
	r := chi.NewRouter()

	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}

	s := &Server{
		router: r,
		log:    log,
	}

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Timeout(60 * time.Second))
	r.Use(middleware.CORS())

	s.setupRoutes(deps)

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", host, port),
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	s.log.Info("starting web server", slog.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("shutting down web server")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down server: %w", err)
	}
	return nil
}

// Router returns the chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}
