// Package server exposes the detector over HTTP and WebSocket.
//
// Responsibilities:
//   - REST API for engine status, anomaly history, and device management
//   - WebSocket fan-out of findings to connected observers
//   - Health/readiness probes and Prometheus metrics endpoint
package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/gridpulse/gridpulse-detector/internal/db"
	"github.com/gridpulse/gridpulse-detector/internal/detector"
	"github.com/gridpulse/gridpulse-detector/internal/registry"
)

// Config holds the HTTP server settings.
type Config struct {
	Port           int
	AllowedOrigins []string
}

// Server represents the detector HTTP/WebSocket server
type Server struct {
	config *Config
	log    *zap.Logger

	// Core components
	engine   *detector.Engine
	store    db.Store
	registry *registry.Registry
	hub      *Hub

	// HTTP server
	httpServer *http.Server

	// Lifecycle
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// State
	mu      sync.RWMutex
	running bool
}

// NewServer creates a new detector server
func NewServer(cfg *Config, engine *detector.Engine, store db.Store, reg *registry.Registry, log *zap.Logger) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if engine == nil {
		return nil, fmt.Errorf("engine cannot be nil")
	}

	ctx, cancel := context.WithCancel(context.Background())

	srv := &Server{
		config:   cfg,
		log:      log,
		engine:   engine,
		store:    store,
		registry: reg,
		ctx:      ctx,
		cancel:   cancel,
	}
	srv.hub = newHub(log, cfg.AllowedOrigins)

	return srv, nil
}

// Hub returns the WebSocket broadcast hub, for wiring into the ingestion
// pipeline.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Start starts the server
func (s *Server) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("server is already running")
	}
	s.running = true
	s.mu.Unlock()

	mux := http.NewServeMux()
	s.registerHandlers(mux)

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.hub.run(s.ctx)
	}()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.log.Info("HTTP server starting", zap.Int("port", s.config.Port))
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.Error("HTTP server error", zap.Error(err))
		}
	}()

	return nil
}

// Stop gracefully stops the server
func (s *Server) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return fmt.Errorf("server is not running")
	}
	s.running = false
	s.mu.Unlock()

	s.log.Info("stopping server")

	if s.httpServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			s.log.Warn("HTTP server shutdown error", zap.Error(err))
		}
	}

	s.cancel()
	s.wg.Wait()

	s.log.Info("server stopped")
	return nil
}

// IsRunning returns whether the server is running
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// registerHandlers registers HTTP handlers
func (s *Server) registerHandlers(mux *http.ServeMux) {
	// Probes and metrics
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/readyz", s.handleReady)
	mux.Handle("/metrics", promhttp.Handler())

	// Detector API
	mux.HandleFunc("/api/v1/status", s.handleStatus)
	mux.HandleFunc("/api/v1/anomalies", s.handleAnomalies)
	mux.HandleFunc("/api/v1/anomalies/summary", s.handleAnomalySummary)
	mux.HandleFunc("/api/v1/samples", s.handleSamples)
	mux.HandleFunc("/api/v1/devices", s.handleDevices)
	mux.HandleFunc("/api/v1/devices/", s.handleDeviceByID)

	// WebSocket findings stream
	mux.HandleFunc("/ws/findings", s.hub.handleWebSocket)
}
