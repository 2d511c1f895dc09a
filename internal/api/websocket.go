package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/fota-core/internal/broadcast"
)

// WebSocket message types.
const (
	WSTypePing  = "ping"
	WSTypePong  = "pong"
	WSTypeEvent = "event"
	WSTypeError = "error"

	// wsReplyBuffer bounds queued pong/error replies per connection.
	wsReplyBuffer = 16
)

// Fallbacks when the websocket config section is zero.
const (
	defaultPingInterval   = 30 * time.Second
	defaultPongTimeout    = 10 * time.Second
	defaultMaxMessageSize = 8192
)

// WSMessage represents a message sent to/from a WebSocket client.
type WSMessage struct {
	Type      string `json:"type"`
	ID        string `json:"id,omitempty"`
	EventType string `json:"event_type,omitempty"`
	Seq       uint64 `json:"seq,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Payload   any    `json:"payload,omitempty"`
}

// upgrader configures the WebSocket upgrader.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		// Origin checking is handled by CORS middleware
		return true
	},
}

// wsClient relays one observer's events to one connection.
type wsClient struct {
	server  *Server
	conn    *websocket.Conn
	obs     *broadcast.Observer
	replies chan []byte
	done    chan struct{}
	actor   string
}

// handleWebSocket upgrades the connection and relays registry events.
// When tokens are required the caller passes ?ticket= from POST /auth/ws-ticket.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if s.events == nil {
		writeUnavailable(w, "event hub")
		return
	}

	actor := DefaultActor
	if s.auth.Enabled() {
		ticket := r.URL.Query().Get("ticket")
		if ticket == "" {
			writeUnauthorized(w, "ticket query parameter is required")
			return
		}
		var ok bool
		if actor, ok = s.tickets.redeem(ticket, time.Now()); !ok {
			writeUnauthorized(w, "invalid or expired ticket")
			return
		}
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	client := &wsClient{
		server:  s,
		conn:    conn,
		obs:     s.events.Subscribe(),
		replies: make(chan []byte, wsReplyBuffer),
		done:    make(chan struct{}),
		actor:   actor,
	}
	s.logger.Debug("websocket observer connected", "actor", actor, "observers", s.events.ObserverCount())

	go client.writePump()
	go client.readPump()
}

func (s *Server) wsTimings() (pingInterval, pongWait time.Duration, maxSize int64) {
	pingInterval = time.Duration(s.wsCfg.PingInterval) * time.Second
	if pingInterval <= 0 {
		pingInterval = defaultPingInterval
	}
	pongWait = time.Duration(s.wsCfg.PongTimeout) * time.Second
	if pongWait <= 0 {
		pongWait = defaultPongTimeout
	}
	maxSize = int64(s.wsCfg.MaxMessageSize)
	if maxSize <= 0 {
		maxSize = defaultMaxMessageSize
	}
	return pingInterval, pongWait, maxSize
}

// readPump reads client messages until the connection fails.
func (c *wsClient) readPump() {
	defer close(c.done)

	pingInterval, pongWait, maxSize := c.server.wsTimings()
	c.conn.SetReadLimit(maxSize)
	//nolint:errcheck // Best-effort deadline on connection setup
	c.conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.server.logger.Warn("websocket read error", "error", err)
			} else {
				c.server.logger.Debug("websocket closed", "error", err)
			}
			return
		}
		// Any client message resets the read deadline.
		//nolint:errcheck // Best-effort deadline reset
		c.conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
		c.handleMessage(message)
	}
}

// writePump is the only writer on the connection. It exits when the
// observer is closed (hub shutdown) or the reader stops.
func (c *wsClient) writePump() {
	pingInterval, pongWait, _ := c.server.wsTimings()
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		if n := c.obs.Dropped(); n > 0 {
			c.server.logger.Warn("websocket observer dropped events", "actor", c.actor, "dropped", n)
		}
		c.obs.Close()
		c.conn.Close()
	}()

	write := func(msgType int, data []byte) error {
		//nolint:errcheck // Best-effort deadline; write error caught by caller
		c.conn.SetWriteDeadline(time.Now().Add(pongWait))
		return c.conn.WriteMessage(msgType, data)
	}

	for {
		select {
		case ev, ok := <-c.obs.Events():
			if !ok {
				//nolint:errcheck // Best-effort close message
				write(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
				return
			}
			data, err := json.Marshal(WSMessage{
				Type:      WSTypeEvent,
				EventType: ev.Name,
				Seq:       ev.Seq,
				Timestamp: ev.Timestamp.Format(time.RFC3339Nano),
				Payload:   ev.Payload,
			})
			if err != nil {
				c.server.logger.Error("failed to marshal event", "event", ev.Name, "error", err)
				continue
			}
			if err := write(websocket.TextMessage, data); err != nil {
				return
			}
		case reply := <-c.replies:
			if err := write(websocket.TextMessage, reply); err != nil {
				return
			}
		case <-ticker.C:
			if err := write(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

// handleMessage answers JSON pings; the stream is otherwise one-way.
func (c *wsClient) handleMessage(data []byte) {
	var msg WSMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		c.reply(WSMessage{Type: WSTypeError, Payload: map[string]string{"message": "invalid JSON message"}})
		return
	}

	switch msg.Type {
	case WSTypePing:
		c.reply(WSMessage{Type: WSTypePong, ID: msg.ID})
	default:
		c.reply(WSMessage{Type: WSTypeError, ID: msg.ID, Payload: map[string]string{"message": "unknown message type: " + msg.Type}})
	}
}

// reply queues a message for writePump, dropping it if the queue is full.
func (c *wsClient) reply(msg WSMessage) {
	msg.Timestamp = time.Now().UTC().Format(time.RFC3339)
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	select {
	case c.replies <- data:
	default:
	}
}
