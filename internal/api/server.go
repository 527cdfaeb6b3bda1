// Package api provides the HTTP API server implementation.
package api

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/coinscan/internal/adapter"
	"github.com/coinscan/internal/storage"
	"github.com/coinscan/internal/types"
	"github.com/gorilla/mux"
)

// AnalyzerService defines the analysis operation the server exposes
type AnalyzerService interface {
	AnalyzeWallet(ctx context.Context, wallet string, balances []types.TokenBalance, history adapter.HistoryProvider) (*types.PortfolioAnalytics, error)
}

// Server represents the HTTP API server.
type Server struct {
	router     *mux.Router
	httpServer *http.Server
	analyzer   AnalyzerService
	balances   adapter.BalanceProvider
	history    adapter.HistoryProvider
	snapshots  *storage.SnapshotRepository // nil when snapshot persistence is disabled
	config     *ServerConfig
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	AnalyzeTimeout  time.Duration // Upper bound for one full wallet analysis
}

// NewServer creates a new API server instance.
func NewServer(
	config *ServerConfig,
	analyzer AnalyzerService,
	balances adapter.BalanceProvider,
	history adapter.HistoryProvider,
	snapshots *storage.SnapshotRepository,
) *Server {
	s := &Server{
		router:    mux.NewRouter(),
		analyzer:  analyzer,
		balances:  balances,
		history:   history,
		snapshots: snapshots,
		config:    config,
	}

	s.setupRouter()

	return s
}

// setupRouter configures the router with middleware and routes
func (s *Server) setupRouter() {
	// Set up middleware (order matters!)
	s.router.Use(RequestIDMiddleware)
	s.router.Use(LoggingMiddleware)
	s.router.Use(RecoveryMiddleware)
	s.router.Use(CORSMiddleware)

	// Set up routes
	s.setupRoutes()

	// Create HTTP server
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%s", s.config.Host, s.config.Port),
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}
}

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() {
	// Health check endpoint
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")

	// API v1 routes
	api := s.router.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/wallets/{address}/analyze", s.handleAnalyzeWallet).Methods("POST")
	api.HandleFunc("/wallets/{address}/snapshots", s.handleGetSnapshots).Methods("GET")
}

// handleHealth handles health check requests.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "coinscan",
	})
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	log.Printf("Starting API server on %s", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	log.Println("Shutting down API server...")
	return s.httpServer.Shutdown(ctx)
}
