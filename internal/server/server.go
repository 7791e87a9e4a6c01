// Package server constructs and starts the space HTTP service with helpers
// that apply sensible production defaults.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// Server owns the connection hub and the HTTP handlers built around it.
type Server struct {
	cfg      Config
	svc      *Services
	hub      *Hub
	origins  *originPolicy
	upgrader websocket.Upgrader
}

// NewServer validates the injected collaborators and prepares a Server. The
// hub is not running until Start is called.
func NewServer(cfg Config, svc *Services) (*Server, error) {
	if err := svc.validate(); err != nil {
		return nil, fmt.Errorf("new server: %w", err)
	}
	cfg = sanitizeConfig(cfg)

	s := &Server{
		cfg:     cfg,
		svc:     svc,
		hub:     NewHub(),
		origins: newOriginPolicy(cfg.AllowedOrigins),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.origins.checkOrigin,
	}
	return s, nil
}

// Hub returns the server's connection hub for shutdown coordination.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Start launches the hub in a separate goroutine. It must be called before
// the HTTP server accepts WebSocket connections.
func (s *Server) Start() {
	go s.hub.Run()
	log.Info().Msg("hub started and ready to manage WebSocket connections")
}

// Shutdown closes every connection and waits up to timeout for their pumps.
func (s *Server) Shutdown(timeout time.Duration) error {
	return s.hub.Shutdown(timeout)
}

// CreateServer creates and configures an HTTP server with the specified port and handler.
// It sets reasonable timeout values for production use.
func CreateServer(port string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              port,
		Handler:           handler,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

// StartServer starts the HTTP server and begins listening for connections.
// It returns an error if the server fails to start.
func StartServer(server *http.Server) error {
	log.Info().Str("addr", server.Addr).Msg("server listening")
	return server.ListenAndServe()
}

// ShutdownServer gracefully shuts down the HTTP server without interrupting active connections.
// It waits for active connections to close or until the timeout is reached.
func ShutdownServer(server *http.Server, timeout time.Duration) error {
	log.Info().Msg("shutting down HTTP server")

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
		return err
	}

	log.Info().Msg("HTTP server shutdown completed")
	return nil
}
