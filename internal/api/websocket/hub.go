package websocket

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/KevinKickass/aquanest/internal/device"
	"github.com/KevinKickass/aquanest/internal/telemetry"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// CommandHandler executes commands received over a view socket.
type CommandHandler interface {
	Toggle(ctx context.Context, viewID uuid.UUID, kind device.Kind) (telemetry.ActuatorSnapshot, error)
}

// Hub maintains active WebSocket clients and fans view events out to the
// clients watching that view.
type Hub struct {
	// Registered clients
	clients map[*Client]bool

	// Inbound messages to broadcast
	broadcast chan Message

	// Register requests from clients
	register chan *Client

	// Unregister requests from clients
	unregister chan *Client

	// Views whose clients must be disconnected
	closeView chan uuid.UUID

	quit     chan struct{}
	stopOnce sync.Once

	mu sync.RWMutex

	logger *zap.Logger

	commands CommandHandler
}

// NewHub creates a new Hub instance
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		broadcast:  make(chan Message, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		closeView:  make(chan uuid.UUID, 16),
		quit:       make(chan struct{}),
		clients:    make(map[*Client]bool),
		logger:     logger,
	}
}

// SetCommandHandler enables commands from clients.
func (h *Hub) SetCommandHandler(commands CommandHandler) {
	h.commands = commands
}

// Run starts the hub's main event loop
func (h *Hub) Run() {
	h.logger.Info("WebSocket Hub started")
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			h.logger.Info("WebSocket client registered",
				zap.String("view_id", client.viewID.String()),
				zap.String("remote_addr", client.conn.RemoteAddr().String()),
				zap.Int("total_clients", h.ClientCount()))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				h.drop(client)
				h.logger.Info("WebSocket client unregistered",
					zap.String("view_id", client.viewID.String()),
					zap.String("remote_addr", client.conn.RemoteAddr().String()))
			}
			h.mu.Unlock()

		case message := <-h.broadcast:
			data, err := json.Marshal(message)
			if err != nil {
				h.logger.Error("Failed to marshal broadcast message",
					zap.String("message_type", string(message.Type)),
					zap.Error(err))
				continue
			}

			h.mu.Lock()
			for client := range h.clients {
				if client.viewID != message.ViewID {
					continue
				}
				if message.target != nil && message.target != client {
					continue
				}
				select {
				case client.send <- data:
				default:
					// Slow or dead client
					h.drop(client)
					h.logger.Warn("Client send buffer full, unregistering",
						zap.String("remote_addr", client.conn.RemoteAddr().String()))
				}
			}
			h.mu.Unlock()

		case viewID := <-h.closeView:
			data, _ := json.Marshal(NewMessage(MessageTypeViewClosed, viewID, nil))
			h.mu.Lock()
			for client := range h.clients {
				if client.viewID != viewID {
					continue
				}
				select {
				case client.send <- data:
				default:
				}
				h.drop(client)
			}
			h.mu.Unlock()

		case <-h.quit:
			h.mu.Lock()
			for client := range h.clients {
				h.drop(client)
			}
			h.mu.Unlock()
			h.logger.Info("WebSocket Hub stopped")
			return
		}
	}
}

// drop must be called with mu held.
func (h *Hub) drop(client *Client) {
	delete(h.clients, client)
	close(client.send)
}

// Stop disconnects every client and ends Run.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.quit) })
}

// Broadcast sends a message to all clients of its view
func (h *Hub) Broadcast(msg Message) {
	select {
	case h.broadcast <- msg:
	default:
		h.logger.Warn("Hub broadcast channel full, message dropped",
			zap.String("message_type", string(msg.Type)))
	}
}

// sendTo queues msg for one client behind every message already queued.
// Unlike Broadcast it waits for room rather than dropping.
func (h *Hub) sendTo(client *Client, msg Message) {
	msg.ViewID = client.viewID
	msg.target = client
	select {
	case h.broadcast <- msg:
	case <-h.quit:
	}
}

// Publish forwards a view event. It never blocks the caller.
func (h *Hub) Publish(viewID uuid.UUID, e telemetry.Event) {
	h.Broadcast(NewEventMessage(viewID, e))
}

// CloseView tells the clients of a view that it is gone and disconnects
// them.
func (h *Hub) CloseView(viewID uuid.UUID) {
	select {
	case h.closeView <- viewID:
	case <-h.quit:
	}
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ViewClientCount returns the number of clients watching viewID.
func (h *Hub) ViewClientCount(viewID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for client := range h.clients {
		if client.viewID == viewID {
			n++
		}
	}
	return n
}
