// Package status serves the read-only HTTP/WebSocket surface that exposes
// the running engine's metrics summary, risk posture, and tracked-asset
// state as JSON. It never accepts writes: there is no order-placement or
// config-mutation route here, only observation.
package status

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// Server runs the status HTTP/WebSocket API.
type Server struct {
	provider Provider
	hub      *hub
	handlers *handlers
	server   *http.Server
	logger   *slog.Logger
}

// NewServer builds a Server bound to port, gated by allowedOrigins for
// websocket upgrades (empty means localhost/same-host only).
func NewServer(port int, allowedOrigins []string, provider Provider, logger *slog.Logger) *Server {
	h := newHub(logger)
	hs := newHandlers(provider, AllowedOrigins{Origins: allowedOrigins}, h, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("/health", hs.handleHealth)
	mux.HandleFunc("/api/snapshot", hs.handleSnapshot)
	mux.HandleFunc("/ws", hs.handleWebSocket)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		provider: provider,
		hub:      h,
		handlers: hs,
		server:   srv,
		logger:   logger.With("component", "status-server"),
	}
}

// Start runs the hub and the HTTP listener. Blocks until the server stops.
func (s *Server) Start() error {
	go s.hub.run()

	s.logger.Info("status server starting", "addr", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("status server: %w", err)
	}
	return nil
}

// Stop gracefully shuts the server down within 10 seconds.
func (s *Server) Stop() error {
	s.logger.Info("stopping status server")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

// BroadcastSnapshot pushes a fresh snapshot to every connected websocket
// client; the caller decides the cadence. Nothing in this module calls it,
// so a connected client receives only the snapshot sent when it connects.
func (s *Server) BroadcastSnapshot() {
	s.hub.broadcastSnapshot(buildSnapshot(s.provider))
}
