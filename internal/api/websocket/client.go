package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/KevinKickass/aquanest/internal/device"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 8192

	// Send channel buffer size
	sendBufferSize = 256

	// Time allowed for a command from the peer
	commandTimeout = 5 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Client represents a WebSocket client watching one view
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	viewID uuid.UUID
	logger *zap.Logger
}

// readPump handles reading messages from the WebSocket connection
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.quit:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var msg ClientMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseAbnormalClosure) {
				c.logger.Warn("WebSocket read error",
					zap.Error(err),
					zap.String("remote_addr", c.conn.RemoteAddr().String()))
			}
			break
		}

		c.handleMessage(msg)
	}
}

func (c *Client) handleMessage(msg ClientMessage) {
	c.logger.Debug("Received client message",
		zap.String("remote_addr", c.conn.RemoteAddr().String()),
		zap.String("type", msg.Type))

	if msg.Type != ClientMessageToggle || c.hub.commands == nil {
		return
	}

	result := CommandResultData{Kind: msg.Kind}
	kind, ok := device.ParseKind(msg.Kind)
	if !ok || !kind.IsActuator() {
		result.Error = "unknown actuator kind"
	} else {
		ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
		snap, err := c.hub.commands.Toggle(ctx, c.viewID, kind)
		cancel()
		if err != nil {
			result.Error = err.Error()
		} else {
			result.Actuator = &snap
		}
	}

	c.enqueue(NewMessage(MessageTypeCommandResult, c.viewID, result))
}

// enqueue queues a direct reply. It is dropped if the client is gone or
// its buffer is full.
func (c *Client) enqueue(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}

	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()
	if !c.hub.clients[c] {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}

// writePump handles writing messages to the WebSocket connection
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub closed the channel
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			if err := w.Close(); err != nil {
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

// Initial produces the first message of a new client through send. It runs
// after the client is registered, so send keeps it in order with the live
// events of the view.
type Initial func(send func(Message)) error

// ServeWs upgrades the request and subscribes the client to viewID. The
// message initial sends precedes every event it does not already reflect.
func ServeWs(hub *Hub, w http.ResponseWriter, r *http.Request, viewID uuid.UUID, initial Initial) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		hub.logger.Error("WebSocket upgrade error",
			zap.Error(err),
			zap.String("remote_addr", r.RemoteAddr))
		return
	}

	client := &Client{
		hub:    hub,
		conn:   conn,
		send:   make(chan []byte, sendBufferSize),
		viewID: viewID,
		logger: hub.logger,
	}

	select {
	case hub.register <- client:
	case <-hub.quit:
		conn.Close()
		return
	}

	// Start read and write pumps in separate goroutines
	go client.writePump()
	go client.readPump()

	if initial == nil {
		return
	}
	if err := initial(func(m Message) { hub.sendTo(client, m) }); err != nil {
		hub.logger.Warn("WebSocket initial message failed",
			zap.String("view_id", viewID.String()),
			zap.Error(err))
		select {
		case hub.unregister <- client:
		case <-hub.quit:
		}
	}
}
