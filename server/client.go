package server

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/apiprobe/apiprobe/event"
)

// WebSocket timeout constants following Gorilla best practices
// See: https://github.com/gorilla/websocket/blob/master/examples/chat/client.go
const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = 54 * time.Second

	// Maximum message size allowed from peer. The stream is one-way; inbound
	// frames are control traffic only.
	maxMessageSize = 512
)

// sendBufferSize is the per-client event queue. A client that falls further
// behind than this starts losing events rather than stalling the pump.
const sendBufferSize = 256

// eventFrame is the wire shape for execution events pushed to clients.
type eventFrame struct {
	Type  string      `json:"type"`
	Event event.Event `json:"event"`
}

// connectedFrame greets a client right after the upgrade, before any events.
type connectedFrame struct {
	Type      string `json:"type"`
	ProjectID string `json:"project_id"`
	Version   string `json:"version"`
}

// Client represents a WebSocket client connection subscribed to one
// project's execution events.
type Client struct {
	server    *Server
	conn      *websocket.Conn
	projectID string
	send      chan event.Event
	done      chan struct{}
	id        string
	closeOnce sync.Once // Prevents double-close panics
}

// readPump drains the connection until the peer goes away. Inbound frames
// carry no protocol meaning, but the read loop still matters: it services
// the pong handler and detects disconnects.
func (c *Client) readPump() {
	defer func() {
		select {
		case c.server.unregister <- c:
		case <-c.server.ctx.Done():
		}
		c.conn.Close()
	}()

	// Configure connection limits and timeouts per Gorilla best practices
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	c.server.logger.Debugw("Read pump started", "client_id", c.id)

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			c.handleReadError(err)
			break
		}
	}
}

// handleReadError logs unexpected WebSocket read errors.
// Expected closure codes (going away, abnormal, no status) are silently ignored.
func (c *Client) handleReadError(err error) {
	if websocket.IsUnexpectedCloseError(err,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure,
		websocket.CloseNoStatusReceived,
	) {
		c.server.logger.Warnw("WebSocket read error",
			"error", err.Error(),
			"client_id", c.id,
		)
	}
}

// writePump writes event frames and pings to the WebSocket connection
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	c.server.logger.Debugw("Write pump started", "client_id", c.id)

	for {
		select {
		case <-c.server.ctx.Done():
			c.server.logger.Debugw("Write pump stopping due to server shutdown", "client_id", c.id)
			return
		case e, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			frame := eventFrame{Type: "execution_event", Event: e}
			if err := c.conn.WriteJSON(frame); err != nil {
				c.server.logger.Debugw("Event write error",
					"error", err.Error(),
					"client_id", c.id,
				)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// pumpEvents forwards publisher events into the client's send channel. It is
// the only writer on send and the only goroutine that closes it; writePump
// treats the close as the end of the session.
func (c *Client) pumpEvents(events <-chan event.Event, unsubscribe func()) {
	defer func() {
		unsubscribe()
		close(c.send)
	}()

	for {
		select {
		case <-c.server.ctx.Done():
			return
		case <-c.done:
			return
		case e := <-events:
			select {
			case c.send <- e:
			default:
				c.server.eventDrops.Add(1)
				c.server.logger.Warnw("Client send channel full, dropping event",
					"client_id", c.id,
					"execution_id", e.ExecutionID,
					"total_drops", c.server.eventDrops.Load(),
				)
			}
		}
	}
}

// close signals the client's goroutines to stop. The send channel itself is
// closed by pumpEvents, its single writer.
func (c *Client) close() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}
