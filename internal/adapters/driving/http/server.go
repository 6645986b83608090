package http

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/datalex-labs/datalex-core/internal/core/ports/driven"
	"github.com/datalex-labs/datalex-core/internal/core/ports/driving"
)

// Pinger is a simple health check interface
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server represents the HTTP server
type Server struct {
	httpServer *http.Server
	router     *http.ServeMux
	version    string

	// Services
	orchestrator driving.PipelineOrchestrator
	stageRunner  driving.StageRunner
	ingest       driving.IngestService

	// Infrastructure
	jobStore  driven.JobStore
	documents driven.DocumentStore
	db        Pinger // PostgreSQL health check
	redis     Pinger // Redis health check (optional)

	internalKeys []string
}

// Config holds server configuration
type Config struct {
	Host    string
	Port    int
	Version string

	// InternalKeys authenticate service-to-service calls. Two slots allow
	// zero-downtime rotation.
	InternalKeys []string
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		Host:    "0.0.0.0",
		Port:    8080,
		Version: "dev",
	}
}

// NewServer creates a new HTTP server
func NewServer(
	cfg Config,
	orchestrator driving.PipelineOrchestrator,
	stageRunner driving.StageRunner,
	ingest driving.IngestService,
	jobStore driven.JobStore,
	documents driven.DocumentStore,
	db Pinger,
	redis Pinger, // can be nil
) *Server {
	s := &Server{
		router:       http.NewServeMux(),
		version:      cfg.Version,
		orchestrator: orchestrator,
		stageRunner:  stageRunner,
		ingest:       ingest,
		jobStore:     jobStore,
		documents:    documents,
		db:           db,
		redis:        redis,
		internalKeys: cfg.InternalKeys,
	}

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 10 * time.Minute, // stage runs are long requests
		IdleTimeout:  60 * time.Second,
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	internalAuth := NewInternalAuthMiddleware(s.internalKeys...)

	// Health endpoints (no auth)
	s.router.HandleFunc("GET /health", s.handleHealth)
	s.router.HandleFunc("GET /ready", s.handleReady)
	s.router.HandleFunc("GET /version", s.handleVersion)

	// Pipeline control (cron scheduler and orchestrator)
	s.router.Handle("POST /internal/pipeline/tick",
		internalAuth.Authenticate(http.HandlerFunc(s.handleTick)))
	s.router.Handle("GET /internal/pipeline/stats",
		internalAuth.Authenticate(http.HandlerFunc(s.handlePipelineStats)))
	s.router.Handle("GET /internal/pipeline/jobs",
		internalAuth.Authenticate(http.HandlerFunc(s.handleListJobs)))

	// Stage workers (orchestrator to worker)
	s.router.Handle("POST /internal/workers/{stage}",
		internalAuth.Authenticate(http.HandlerFunc(s.handleStageWorker)))

	// Ingestion (extractors and merge cron)
	s.router.Handle("POST /internal/sources",
		internalAuth.Authenticate(http.HandlerFunc(s.handleRegisterSource)))
	s.router.Handle("POST /internal/merge",
		internalAuth.Authenticate(http.HandlerFunc(s.handleMerge)))

	// Documents
	s.router.Handle("GET /internal/documents",
		internalAuth.Authenticate(http.HandlerFunc(s.handleListDocuments)))
	s.router.Handle("GET /internal/documents/{id}",
		internalAuth.Authenticate(http.HandlerFunc(s.handleGetDocument)))
	s.router.Handle("GET /internal/documents/{id}/audit",
		internalAuth.Authenticate(http.HandlerFunc(s.handleAuditDocument)))
}

// Handler returns the root handler with logging and recovery applied.
// Exposed for tests.
func (s *Server) Handler() http.Handler {
	logging := NewLoggingMiddleware()
	recovery := NewRecoveryMiddleware()
	return recovery.Handler(logging.Handler(s.router))
}

// Start starts the HTTP server with graceful shutdown
func (s *Server) Start() error {
	s.httpServer.Handler = s.Handler()

	// Channel to listen for OS signals
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	// Start server in goroutine
	go func() {
		log.Printf("Starting server on %s", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Wait for shutdown signal
	<-stop
	log.Println("Shutting down server...")

	// Create shutdown context with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Attempt graceful shutdown
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	log.Println("Server stopped")
	return nil
}

// Stop stops the server
func (s *Server) Stop(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
