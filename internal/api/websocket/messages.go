package websocket

import (
	"time"

	"github.com/KevinKickass/aquanest/internal/telemetry"
	"github.com/google/uuid"
)

// MessageType defines the type of WebSocket message
type MessageType string

const (
	// View state, sent once after the upgrade
	MessageTypeSnapshot MessageType = "snapshot"

	// Live view events
	MessageTypeRoster        MessageType = MessageType(telemetry.EventRoster)
	MessageTypeSample        MessageType = MessageType(telemetry.EventSample)
	MessageTypeNotification  MessageType = MessageType(telemetry.EventNotification)
	MessageTypeNotifications MessageType = MessageType(telemetry.EventNotifications)
	MessageTypeActuator      MessageType = MessageType(telemetry.EventActuator)
	MessageTypeConnection    MessageType = MessageType(telemetry.EventConnection)
	MessageTypeBanner        MessageType = MessageType(telemetry.EventBanner)

	// Replies to client commands
	MessageTypeCommandResult MessageType = "command_result"

	// The view was unmounted; the server closes the socket afterwards
	MessageTypeViewClosed MessageType = "view_closed"
)

// Message represents a WebSocket message
type Message struct {
	Type      MessageType `json:"type"`
	ViewID    uuid.UUID   `json:"view_id"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data,omitempty"`

	// target, when set, restricts delivery to one client of the view.
	target *Client
}

// ClientMessage is what browsers may send.
type ClientMessage struct {
	Type string `json:"type"`
	Kind string `json:"kind,omitempty"`
}

const ClientMessageToggle = "toggle"

type CommandResultData struct {
	Kind     string                      `json:"kind"`
	Error    string                      `json:"error,omitempty"`
	Actuator *telemetry.ActuatorSnapshot `json:"actuator,omitempty"`
}

// NewMessage creates a new message with current timestamp
func NewMessage(msgType MessageType, viewID uuid.UUID, data interface{}) Message {
	return Message{
		Type:      msgType,
		ViewID:    viewID,
		Timestamp: time.Now(),
		Data:      data,
	}
}

func NewEventMessage(viewID uuid.UUID, e telemetry.Event) Message {
	return Message{
		Type:      MessageType(e.Type),
		ViewID:    viewID,
		Timestamp: e.Timestamp,
		Data:      e.Data,
	}
}

func NewSnapshotMessage(viewID uuid.UUID, snap telemetry.Snapshot) Message {
	return NewMessage(MessageTypeSnapshot, viewID, snap)
}
