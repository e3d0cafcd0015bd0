// Package web provides the HTTP server and JSON API for table access.
package web

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/rowforge/rowforge/internal/engine"
)

// TableService is the surface the handlers call. *engine.Engine satisfies
// it; tests substitute a fake.
type TableService interface {
	Query(ctx context.Context, schema, table string, filters []engine.Filter, limit int) (*engine.QueryResult, error)
	GetByPK(ctx context.Context, schema, table string, pk map[string]interface{}) (engine.Row, error)
	ValidatePatch(ctx context.Context, schema, table string, pk, set map[string]interface{}) (map[string]interface{}, error)
	Update(ctx context.Context, schema, table string, pk, set map[string]interface{}, reason string) (*engine.UpdateResult, error)
	GetMetadata(ctx context.Context, schema, table string) (*engine.TableMetadata, error)
}

// AuditReader lists recent audit events. Nil when auditing is disabled.
type AuditReader interface {
	Recent(ctx context.Context, limit int) ([]engine.AuditEvent, error)
}

// Options configures the Server beyond its service dependency.
type Options struct {
	// Audit serves GET /api/audit; nil disables the endpoint.
	Audit AuditReader

	// ClearCache invalidates the table metadata cache; nil disables the
	// endpoint.
	ClearCache func()

	// RequestTimeout bounds each request via chi middleware (default: 60s).
	RequestTimeout time.Duration

	// ReadTimeout, WriteTimeout and IdleTimeout are applied to the
	// http.Server in Start.
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// Server is the HTTP server for the table access API.
type Server struct {
	service TableService
	opts    Options
	router  *chi.Mux
	server  *http.Server
}

// NewServer creates a new Server instance.
func NewServer(service TableService, opts Options) *Server {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 60 * time.Second
	}
	s := &Server{
		service: service,
		opts:    opts,
		router:  chi.NewRouter(),
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

// setupMiddleware configures middleware for all routes.
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Compress(5))
	s.router.Use(middleware.Timeout(s.opts.RequestTimeout))

	// Security hardening
	s.router.Use(securityHeaders)
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		r.Route("/tables/{schema}/{table}", func(r chi.Router) {
			r.Post("/query", s.handleQuery)
			r.Post("/get", s.handleGet)
			r.Post("/validate", s.handleValidate)
			r.Post("/update", s.handleUpdate)
			r.Get("/metadata", s.handleMetadata)
		})

		// Audit log
		r.Get("/audit", s.handleAudit)

		// Metadata cache invalidation
		r.Post("/cache/clear", s.handleClearCache)
	})
}

// Start begins listening for HTTP requests.
func (s *Server) Start(addr string) error {
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.opts.ReadTimeout,
		WriteTimeout: s.opts.WriteTimeout,
		IdleTimeout:  s.opts.IdleTimeout,
	}

	log.Printf("Starting server on %s", addr)
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

// securityHeaders adds security headers to all responses.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Prevent MIME type sniffing
		w.Header().Set("X-Content-Type-Options", "nosniff")

		// Prevent clickjacking
		w.Header().Set("X-Frame-Options", "DENY")

		// Control referrer information
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")

		next.ServeHTTP(w, r)
	})
}

// writeJSON encodes v as JSON and writes it to w.
// Logs encoding errors since headers are already sent.
func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("json encode error: %v", err)
	}
}
