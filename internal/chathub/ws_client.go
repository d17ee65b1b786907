package chathub

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"mingle/backend/internal/config"
	"mingle/backend/internal/models"
)

// WebSocketClient implements the Client interface over gorilla/websocket.
type WebSocketClient struct {
	ConnID string
	Conn   *websocket.Conn
	Hub    *Hub

	mu     sync.RWMutex
	userID string
	closed bool
	send   chan models.Event
}

func NewWebSocketClient(conn *websocket.Conn, hub *Hub) *WebSocketClient {
	return &WebSocketClient{
		ConnID: uuid.New().String(),
		Conn:   conn,
		Hub:    hub,
		send:   make(chan models.Event, config.SendBufferSize),
	}
}

func (c *WebSocketClient) GetID() string { return c.ConnID }

func (c *WebSocketClient) GetUserID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.userID
}

func (c *WebSocketClient) SetUserID(id string) {
	c.mu.Lock()
	c.userID = id
	c.mu.Unlock()
}

// Send enqueues an event without blocking. False means the connection is
// closed or has fallen SendBufferSize events behind.
func (c *WebSocketClient) Send(ev models.Event) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- ev:
		return true
	default:
		return false
	}
}

// Run starts the read and write pumps.
func (c *WebSocketClient) Run() {
	go c.writePump()
	go c.readPump()
}

// Close stops the write pump by closing the send channel. Safe to call
// more than once; the read pump exits on its own when the transport drops.
func (c *WebSocketClient) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// readPump reads events off the websocket and hands them to the hub,
// preserving arrival order for this connection.
func (c *WebSocketClient) readPump() {
	defer func() {
		c.Hub.HandleDisconnect(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(config.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(config.PongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(config.PongWait))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("ws %s: read error: %v", c.ConnID, err)
			}
			break
		}

		var ev models.Event
		if err := json.Unmarshal(message, &ev); err != nil {
			log.Printf("ws %s: dropping undecodable frame: %v", c.ConnID, err)
			continue
		}
		c.Hub.HandleEvent(c, ev)
	}
}

// writePump drains the send channel onto the websocket and keeps the
// connection alive with pings.
func (c *WebSocketClient) writePump() {
	ticker := time.NewTicker(config.PingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case ev, ok := <-c.send:
			c.Conn.SetWriteDeadline(time.Now().Add(config.WriteWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			data, err := json.Marshal(ev)
			if err != nil {
				log.Printf("ws %s: encode error: %v", c.ConnID, err)
				continue
			}

			w, err := c.Conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(data)

			// Flush whatever else is already queued into the same frame.
			n := len(c.send)
			for i := 0; i < n; i++ {
				next, ok := <-c.send
				if !ok {
					break
				}
				w.Write([]byte{'\n'})
				if extra, err := json.Marshal(next); err == nil {
					w.Write(extra)
				}
			}

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(config.WriteWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
