package webmonitor

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/dj-oyu/rdk-x5_smart-pet-camera/diff-monitor/internal/logger"
)

const (
	// writeWait is how long to wait for a write to complete
	writeWait = 10 * time.Second

	// maxMessageSize bounds client messages; clients only send control frames
	maxMessageSize = 4 * 1024
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 64 * 1024,
}

// wsClient pushes broadcaster frames to one websocket connection.
type wsClient struct {
	id         uuid.UUID
	conn       *websocket.Conn
	frames     <-chan []byte
	pingPeriod time.Duration
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("WebSocket", "Upgrade failed: %v", err)
		return
	}

	id, frames := s.broadcaster.Subscribe()
	c := &wsClient{id: id, conn: conn, frames: frames, pingPeriod: s.cfg.WSPingInterval}
	logger.Debug("WebSocket", "Client %s connected from %s", id, r.RemoteAddr)

	go c.writePump()
	c.readPump()
	s.broadcaster.Unsubscribe(id)
	logger.Debug("WebSocket", "Client %s disconnected", id)
}

// readPump consumes control frames and detects disconnection.
func (c *wsClient) readPump() {
	defer c.conn.Close()

	pongWait := c.pingPeriod * 10 / 9
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// writePump is the only writer on the connection.
func (c *wsClient) writePump() {
	ticker := time.NewTicker(c.pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.frames:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
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
