// Package api serves the local dashboard: a small JSON API over the market
// store plus a WebSocket stream of market and trade events.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"fhemarket/internal/config"
)

// Server runs the HTTP/WebSocket API for the dashboard.
type Server struct {
	cfg      config.DashboardConfig
	hub      *Hub
	handlers *Handlers
	server   *http.Server
	logger   *slog.Logger
	stopHub  context.CancelFunc
}

// NewServer creates a dashboard server.
func NewServer(cfg config.DashboardConfig, markets MarketProvider, positions PositionProvider, decrypter Decrypter, logger *slog.Logger) *Server {
	hub := NewHub(logger)
	handlers := NewHandlers(markets, positions, decrypter, cfg, hub, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", handlers.HandleHealth)
	mux.HandleFunc("GET /api/markets", handlers.HandleMarkets)
	mux.HandleFunc("GET /api/markets/{id}", handlers.HandleMarket)
	mux.HandleFunc("GET /api/positions", handlers.HandlePositions)
	mux.HandleFunc("POST /api/decrypt", handlers.HandleDecrypt)
	mux.HandleFunc("/ws", handlers.HandleWebSocket)

	// Serve static files (web dashboard)
	mux.Handle("/", http.FileServer(http.Dir("web")))

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		cfg:      cfg,
		hub:      hub,
		handlers: handlers,
		server:   server,
		logger:   logger.With("component", "api-server"),
	}
}

// Hub exposes the broadcast hub so it can be wired in as the trade notifier
// and the watcher sink.
func (s *Server) Hub() *Hub { return s.hub }

// Start starts the API server and hub. Blocks until the listener stops.
func (s *Server) Start() error {
	hubCtx, cancel := context.WithCancel(context.Background())
	s.stopHub = cancel
	go s.hub.Run(hubCtx)

	s.logger.Info("dashboard server starting", "addr", s.server.Addr)

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Stop gracefully stops the server and shuts the hub loop down.
func (s *Server) Stop() error {
	s.logger.Info("stopping dashboard server")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err := s.server.Shutdown(ctx)
	if s.stopHub != nil {
		s.stopHub()
	}
	return err
}
