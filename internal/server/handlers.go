// Package server exposes HTTP handlers, including WebSocket upgrades and
// health checks.
package server

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"
)

// HealthStatus is the body served by the health endpoint.
type HealthStatus struct {
	Status      string `json:"status"`
	Rooms       int    `json:"rooms"`
	Members     int    `json:"members"`
	Connections int    `json:"connections"`
}

// WebSocketHandler handles WebSocket upgrade requests. It validates that the
// request uses the GET method, upgrades the HTTP connection to WebSocket and
// registers a new Client with the hub, which starts its pumps.
func (s *Server) WebSocketHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Str("addr", r.RemoteAddr).Msg("WebSocket upgrade failed")
		return
	}

	client := NewClient(conn, s.hub, s.svc, s.cfg, r.RemoteAddr)
	if !s.hub.registerClient(client) {
		client.Close()
	}
}

// HealthHandler reports that the server is running along with live room and
// connection counts.
func (s *Server) HealthHandler(w http.ResponseWriter, _ *http.Request) {
	rooms, members := s.svc.Registry.Stats()
	status := HealthStatus{
		Status:      "ok",
		Rooms:       rooms,
		Members:     members,
		Connections: s.hub.Count(),
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(status); err != nil {
		log.Error().Err(err).Msg("error writing health response")
	}
}
