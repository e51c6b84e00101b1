// Package worker provides the HTTP service in front of the taste engine.
package worker

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/thebtf/tasteid/internal/config"
	"github.com/thebtf/tasteid/internal/db/gorm"
	"github.com/thebtf/tasteid/internal/tasteid"
)

// Service configuration constants
const (
	// DefaultHTTPTimeout is the default timeout for HTTP requests.
	DefaultHTTPTimeout = 30 * time.Second

	// MaxRequestBodyBytes bounds rating imports.
	MaxRequestBodyBytes = 8 << 20

	// MaxImportBatch is the largest number of ratings accepted per import.
	MaxImportBatch = 5000
)

// Service is the worker HTTP service.
type Service struct {
	startTime time.Time
	config    *config.Config
	store     *gorm.Store
	ratings   *gorm.RatingStore
	taste     *tasteid.Service
	limiter   *KeyedRateLimiter
	router    *chi.Mux
	server    *http.Server
	logger    zerolog.Logger
	version   string
	wg        sync.WaitGroup
	mu        sync.RWMutex
}

// NewService wires the HTTP surface over an opened store and recompute service.
func NewService(version string, cfg *config.Config, store *gorm.Store, ratings *gorm.RatingStore, taste *tasteid.Service, logger zerolog.Logger) *Service {
	s := &Service{
		version:   version,
		config:    cfg,
		store:     store,
		ratings:   ratings,
		taste:     taste,
		limiter:   NewKeyedRateLimiter(cfg.RecomputePerMinute/60, cfg.RecomputeBurst),
		router:    chi.NewRouter(),
		logger:    logger.With().Str("component", "worker").Logger(),
		startTime: time.Now(),
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

// Handler returns the HTTP handler of the service.
func (s *Service) Handler() http.Handler {
	return s.router
}

// ApplyConfig swaps in a reloaded configuration. Engine thresholds take effect
// on the next recompute; listener and database settings need a restart.
func (s *Service) ApplyConfig(cfg *config.Config) {
	s.mu.Lock()
	s.config = cfg
	s.mu.Unlock()

	s.taste.Engine().UpdateConfig(cfg.Engine)
	s.logger.Info().
		Int("min_events", cfg.Engine.MinEvents).
		Float64("signature_delta", cfg.Engine.Drift.SignatureDelta).
		Msg("Engine configuration updated")
}

// currentConfig returns the configuration in effect.
func (s *Service) currentConfig() *config.Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.config
}

// setupMiddleware configures HTTP middleware.
func (s *Service) setupMiddleware() {
	s.router.Use(RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(RequestLogger(s.logger))
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(DefaultHTTPTimeout))
	s.router.Use(SecurityHeaders)
	s.router.Use(MaxBodySize(MaxRequestBodyBytes))
	s.router.Use(RequireJSONContentType)
}

// setupRoutes configures HTTP routes.
func (s *Service) setupRoutes() {
	s.router.Get("/health", s.handleHealth)
	s.router.Get("/api/health", s.handleHealth)
	s.router.Get("/api/version", s.handleVersion)

	s.router.Route("/api/users/{userID}", func(r chi.Router) {
		r.Use(RequireUserID)

		r.Post("/ratings", s.handleImportRatings)
		r.With(PerUserRateLimitMiddleware(s.limiter)).Post("/recompute", s.handleRecompute)
		r.Get("/profile", s.handleGetProfile)
		r.Get("/patterns", s.handleGetPatterns)
		r.Get("/drifts", s.handleGetDrifts)
		r.Get("/episodes", s.handleGetEpisodes)
		r.Get("/tastes", s.handleGetTastes)
		r.Get("/preview", s.handlePreview)
	})
}

// Start starts listening in the background.
func (s *Service) Start() error {
	cfg := s.currentConfig()
	addr := net.JoinHostPort(cfg.WorkerHost, strconv.Itoa(cfg.WorkerPort))

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}

	s.server = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error().Err(err).Msg("HTTP server error")
		}
	}()

	s.logger.Info().Str("addr", addr).Str("version", s.version).Msg("Worker HTTP server started")
	return nil
}

// Shutdown gracefully shuts down the service and closes the store.
func (s *Service) Shutdown(ctx context.Context) error {
	if s.server != nil {
		if err := s.server.Shutdown(ctx); err != nil {
			s.logger.Error().Err(err).Msg("HTTP server shutdown error")
		}
	}
	s.wg.Wait()

	if err := s.store.Close(); err != nil {
		s.logger.Error().Err(err).Msg("Database close error")
	}

	s.logger.Info().Msg("Worker service shutdown complete")
	return nil
}
