package web

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/kozaktomas/classmark/internal/attendance"
	"github.com/kozaktomas/classmark/internal/config"
	"github.com/kozaktomas/classmark/internal/database"
	"github.com/kozaktomas/classmark/internal/gallery"
	"github.com/kozaktomas/classmark/internal/session"
	"github.com/kozaktomas/classmark/internal/web/middleware"
)

// Services bundles the domain dependencies the web layer sits on top of.
type Services struct {
	Students database.StudentStore
	Teachers database.TeacherStore
	Branches database.BranchStore
	Marks    database.AttendanceStore
	Audit    database.AuditStore

	Sessions *session.Manager
	Pipeline *attendance.Pipeline

	// Resolver answers face login probes; Embedder and Index feed
	// enrollment. All three may be nil when no gallery backend is
	// configured.
	Resolver gallery.Resolver
	Embedder gallery.Embedder
	Index    *gallery.IndexedResolver
}

// Server represents the web server
type Server struct {
	config       *config.Config
	router       *chi.Mux
	httpServer   *http.Server
	loginManager *middleware.LoginManager
}

// NewServer creates a new web server
func NewServer(cfg *config.Config, services Services) *Server {
	r := chi.NewRouter()

	loginManager := middleware.NewLoginManager(cfg.Server.CookieSecret)

	s := &Server{
		config:       cfg,
		router:       r,
		loginManager: loginManager,
	}

	// Set up middleware stack
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Timeout(60 * time.Second))
	r.Use(middleware.CORS())
	r.Use(middleware.SecurityHeaders())

	// Set up routes
	s.setupRoutes(services)

	// Create HTTP server
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second, // Capture uploads can be slow on classroom Wi-Fi
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Start starts the HTTP server
func (s *Server) Start() error {
	log.Printf("Starting web server on %s", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	log.Println("Shutting down web server...")

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down server: %w", err)
	}
	return nil
}

// Router returns the chi router for testing
func (s *Server) Router() *chi.Mux {
	return s.router
}
