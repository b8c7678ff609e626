package server

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/apiprobe/apiprobe/event"
	"github.com/apiprobe/apiprobe/version"
)

// newUpgrader creates a WebSocket upgrader with origin checking from config
func (s *Server) newUpgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
}

// checkOrigin validates an Origin header against the configured allowed
// origins. Prefix matching keeps any port on an allowed host acceptable.
// Requests without an Origin header (direct WebSocket clients, curl,
// tests) pass.
func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}

	for _, allowed := range s.config().GetServerAllowedOrigins() {
		if strings.HasPrefix(origin, allowed) {
			return true
		}
	}
	return false
}

// HandleWebSocket upgrades the connection and streams execution events for
// one project to the client
// GET /ws?project_id={project_id}
func (s *Server) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	projectID := strings.TrimSpace(r.URL.Query().Get("project_id"))
	if projectID == "" {
		writeError(w, http.StatusBadRequest, "project_id query parameter is required")
		return
	}

	upgrader := s.newUpgrader()
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error response.
		s.logger.Errorw("WebSocket upgrade failed",
			"error", err.Error(),
			"remote_addr", r.RemoteAddr,
		)
		return
	}

	client := &Client{
		server:    s,
		conn:      conn,
		projectID: projectID,
		send:      make(chan event.Event, sendBufferSize),
		done:      make(chan struct{}),
		id:        fmt.Sprintf("%s_%d", r.RemoteAddr, time.Now().UnixNano()),
	}

	// Subscribe first: once the client has read the greeting, no later
	// event can slip past it.
	events, unsubscribe := s.publisher.Subscribe(projectID)

	// Greet BEFORE starting writePump (avoid concurrent writes)
	welcome := connectedFrame{
		Type:      "connected",
		ProjectID: projectID,
		Version:   version.Get().Short(),
	}
	if err := conn.WriteJSON(welcome); err != nil {
		s.logger.Debugw("Failed to send welcome frame",
			"client_id", client.id,
			"error", err,
		)
	}

	s.register <- client

	s.wg.Add(3)
	go func() {
		defer s.wg.Done()
		client.pumpEvents(events, unsubscribe)
	}()
	go func() {
		defer s.wg.Done()
		client.readPump()
	}()
	go func() {
		defer s.wg.Done()
		client.writePump()
	}()
}
