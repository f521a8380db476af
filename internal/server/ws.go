package server

import (
	"encoding/json"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/A2AHUB/internal/types"
	"github.com/gorilla/websocket"
)

var allowedOrigins = initAllowedOrigins()

func initAllowedOrigins() []string {
	// Always allow localhost on common ports
	defaults := []string{
		"http://localhost:3000",
		"http://localhost:8200",
		"http://127.0.0.1:3000",
		"http://127.0.0.1:8200",
	}

	envOrigins := os.Getenv("A2AHUB_ALLOWED_ORIGINS")
	if envOrigins != "" {
		for _, origin := range strings.Split(envOrigins, ",") {
			origin = strings.TrimSpace(origin)
			if origin != "" {
				defaults = append(defaults, origin)
			}
		}
	}

	return defaults
}

// checkWebSocketOrigin validates the Origin header for WebSocket
// connections.
func checkWebSocketOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")

	// No origin header means same-origin request
	if origin == "" {
		return true
	}

	originURL, err := url.Parse(origin)
	if err != nil {
		return false
	}

	// Allow all localhost origins (any port)
	host := originURL.Hostname()
	if host == "localhost" || host == "127.0.0.1" || host == "::1" {
		return true
	}

	for _, allowed := range allowedOrigins {
		if origin == allowed {
			return true
		}

		allowedURL, err := url.Parse(allowed)
		if err != nil {
			continue
		}
		if originURL.Hostname() != allowedURL.Hostname() {
			continue
		}
		if allowedURL.Port() != "" {
			if originURL.Port() == allowedURL.Port() && originURL.Scheme == allowedURL.Scheme {
				return true
			}
		} else if originURL.Scheme == allowedURL.Scheme {
			return true
		}
	}

	return false
}

var upgrader = websocket.Upgrader{
	CheckOrigin: checkWebSocketOrigin,
}

// handleWebSocket upgrades to WebSocket and streams state snapshots.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	client := &Client{
		hub:  s.hub,
		conn: conn,
		send: make(chan []byte, WebSocketBufferSize),
	}

	s.hub.Register(client)

	// Send current state immediately
	data, _ := json.Marshal(types.WSMessage{
		Type: types.WSTypeStateUpdate,
		Data: s.currentState(),
	})
	client.send <- data

	go client.readPump()
	go client.writePump()
}

// readPump drains client messages; the stream is one-way but the read
// loop detects disconnects.
func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(1024)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// writePump forwards hub broadcasts to the client connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
