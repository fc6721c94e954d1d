// Package server wires the queue, pipeline, and HTTP API together.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/seforimlab/folio/internal/api"
	"github.com/seforimlab/folio/internal/config"
	"github.com/seforimlab/folio/internal/content"
	"github.com/seforimlab/folio/internal/footnotes"
	"github.com/seforimlab/folio/internal/home"
	"github.com/seforimlab/folio/internal/ocr"
	"github.com/seforimlab/folio/internal/pdftext"
	"github.com/seforimlab/folio/internal/pipeline"
	"github.com/seforimlab/folio/internal/queue"
	"github.com/seforimlab/folio/internal/server/endpoints"
	"github.com/seforimlab/folio/internal/svcctx"
)

// Server is the main Folio HTTP server. It owns the job queue worker and
// the periodic cleanup sweep for their whole lifetime.
type Server struct {
	httpServer    *http.Server
	configMgr     *config.Manager
	home          *home.Dir
	logger        *slog.Logger
	contentClient *content.Client
	jobQueue      *queue.Queue

	// services holds all core services for context enrichment
	services *svcctx.Services

	// endpoints registry for HTTP routes
	endpointRegistry *api.Registry

	mu      sync.RWMutex
	running bool
}

// Config holds server configuration.
type Config struct {
	// Host is the address to bind to (default: 127.0.0.1)
	Host string
	// Port is the port to listen on (default: 8080)
	Port string
	// Home is the folio home directory holding config and queue state
	Home *home.Dir
	// ConfigManager provides configuration with hot-reload support
	ConfigManager *config.Manager
	// Logger is the structured logger to use
	Logger *slog.Logger
}

// New creates a new Server with the given configuration.
func New(cfg Config) (*Server, error) {
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == "" {
		cfg.Port = "8080"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Home == nil {
		return nil, errors.New("home directory is required")
	}
	if cfg.ConfigManager == nil {
		return nil, errors.New("config manager is required")
	}

	s := &Server{
		configMgr: cfg.ConfigManager,
		home:      cfg.Home,
		logger:    cfg.Logger,
	}

	// Create endpoint registry and register all endpoints
	s.endpointRegistry = api.NewRegistry()
	for _, ep := range endpoints.All() {
		s.endpointRegistry.Register(ep)
	}

	// Set up HTTP server
	mux := http.NewServeMux()
	s.endpointRegistry.RegisterRoutes(mux, s.requireInit)

	s.httpServer = &http.Server{
		Addr:         net.JoinHostPort(cfg.Host, cfg.Port),
		Handler:      s.withServices(mux),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s, nil
}

// Start builds the processing stack and runs the server. It blocks until
// the context is cancelled or an error occurs.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.New("server already running")
	}
	s.running = true
	s.mu.Unlock()

	cfg := s.configMgr.Get()

	// Content store client. Reachability is a readiness concern, not a
	// startup gate: jobs queue up fine while the store is down.
	s.contentClient = content.NewClient(content.Config{
		URL:        cfg.ContentStore.URL,
		Token:      config.ResolveEnvVars(cfg.ContentStore.Token),
		Timeout:    time.Duration(cfg.ContentStore.TimeoutSeconds) * time.Second,
		MaxRetries: cfg.ContentStore.MaxRetries,
	})
	if err := s.contentClient.HealthCheck(ctx); err != nil {
		s.logger.Warn("content store not reachable at startup", "url", cfg.ContentStore.URL, "error", err)
	}

	store, err := queue.NewStore(s.home.QueuePath(), s.logger)
	if err != nil {
		s.setNotRunning()
		return fmt.Errorf("failed to open job store: %w", err)
	}

	var engine ocr.Engine
	if cfg.OCR.Enabled {
		openAIEngine, err := ocr.NewOpenAIEngine(ocr.OpenAIConfig{
			APIKey:    config.ResolveEnvVars(cfg.OCR.APIKey),
			Model:     cfg.OCR.Model,
			RenderDPI: cfg.OCR.RenderDPI,
			Timeout:   time.Duration(cfg.OCR.TimeoutSeconds) * time.Second,
			Logger:    s.logger,
		})
		if err != nil {
			s.logger.Warn("OCR engine unavailable, documents needing OCR fall back to native text", "error", err)
		} else {
			engine = openAIEngine
		}
	}

	proc := pipeline.New(pipeline.Config{
		Reader:   pdftext.NewReader(),
		Detector: footnotes.NewDetector(),
		Engine:   engine,
		Store:    s.contentClient,
		Logger:   s.logger,
	})

	s.jobQueue = queue.New(queue.Config{
		Store:        store,
		Runner:       proc,
		Logger:       s.logger,
		PollInterval: time.Duration(cfg.Queue.PollIntervalSeconds) * time.Second,
		ErrorBackoff: time.Duration(cfg.Queue.ErrorBackoffSeconds) * time.Second,
	})

	// Create services struct for context enrichment
	s.services = &svcctx.Services{
		Queue:         s.jobQueue,
		ContentClient: s.contentClient,
		ConfigManager: s.configMgr,
		Logger:        s.logger,
		Home:          s.home,
	}

	// Start the worker and the cleanup sweep
	workerCtx, cancelWorker := context.WithCancel(context.Background())
	defer cancelWorker()

	go s.jobQueue.Run(workerCtx)
	go s.jobQueue.RunCleanupSweep(workerCtx,
		time.Duration(cfg.Queue.CleanupIntervalMinutes)*time.Minute,
		time.Duration(cfg.Queue.CleanupMaxAgeHours)*time.Hour,
	)

	// Start HTTP server in goroutine
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for context cancellation or error
	select {
	case <-ctx.Done():
		s.logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			s.setNotRunning()
			return fmt.Errorf("HTTP server error: %w", err)
		}
	}

	return s.shutdown()
}

// shutdown performs graceful shutdown of the HTTP server. The worker
// goroutines stop via their context when Start returns.
func (s *Server) shutdown() error {
	s.logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("HTTP server shutdown error", "error", err)
	}

	s.setNotRunning()
	s.logger.Info("server stopped")
	return nil
}

func (s *Server) setNotRunning() {
	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
}

// withServices wraps a handler to enrich the request context with services.
func (s *Server) withServices(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if s.services != nil {
			ctx = svcctx.WithServices(ctx, s.services)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireInit is middleware that ensures the server is fully initialized.
// Returns 503 Service Unavailable until the queue is up.
func (s *Server) requireInit(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.jobQueue == nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"error":"server not fully initialized"}`))
			return
		}
		next(w, r)
	}
}
