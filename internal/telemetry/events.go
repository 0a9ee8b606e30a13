package telemetry

import "time"

type EventType string

const (
	EventRoster        EventType = "roster"
	EventSample        EventType = "sensor_sample"
	EventNotification  EventType = "notification"
	EventNotifications EventType = "notifications"
	EventActuator      EventType = "actuator_state"
	EventConnection    EventType = "connection"
	EventBanner        EventType = "banner"
)

// Event is pushed to the observer on every state change of a View.
type Event struct {
	Type      EventType `json:"type"`
	PondID    int       `json:"pond_id"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
}

type SampleData struct {
	SensorID int    `json:"sensor_id"`
	Kind     string `json:"kind"`
	Sample   Sample `json:"sample"`
}

type ConnectionData struct {
	Connected bool   `json:"connected"`
	Error     string `json:"error,omitempty"`
}

// Banner holds the user-visible error messages of a view.
type Banner struct {
	Connection   string `json:"connection,omitempty"`
	Command      string `json:"command,omitempty"`
	Subscription string `json:"subscription,omitempty"`
	Load         string `json:"load,omitempty"`
	History      string `json:"history,omitempty"`
}
