package telemetry

import (
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/KevinKickass/aquanest/internal/types"
)

// DefaultMaxNotifications caps the notification log.
const DefaultMaxNotifications = 20

type NotificationType string

const (
	TypeHistoricalSensorAlert    NotificationType = "historical sensor alert"
	TypeHistoricalHeartbeatError NotificationType = "historical actuator heartbeat error"
	TypeHistoricalStatusUpdate   NotificationType = "historical actuator status update"
	TypeLiveAnomaly              NotificationType = "real-time anomaly alert"
	TypeLiveHeartbeatError       NotificationType = "real-time heartbeat error"
)

// Id prefixes keep historical and live items unique within one log.
const (
	idPrefixAPIAlert  = "api-alert-"
	idPrefixAPILog    = "api-log-"
	idPrefixLiveAlert = "mqtt-alert-"
	idPrefixLiveError = "mqtt-error-"
)

type Notification struct {
	ID        string           `json:"id"`
	Type      NotificationType `json:"type"`
	Timestamp time.Time        `json:"timestamp"`
	Message   string           `json:"message"`
}

// NotificationLog keeps the newest notifications first, bounded by limit.
type NotificationLog struct {
	limit int
	items []Notification
}

func NewNotificationLog(limit int) *NotificationLog {
	if limit <= 0 {
		limit = DefaultMaxNotifications
	}
	return &NotificationLog{limit: limit}
}

// Prepend adds a live item at the head and drops the oldest past the cap.
func (l *NotificationLog) Prepend(n Notification) {
	items := make([]Notification, 0, len(l.items)+1)
	items = append(items, n)
	items = append(items, l.items...)
	l.items = l.truncate(items)
}

// Merge combines items with what the log already holds, newest first.
// Items whose id is already present are skipped.
func (l *NotificationLog) Merge(items []Notification) {
	seen := make(map[string]bool, len(l.items))
	all := make([]Notification, 0, len(l.items)+len(items))
	for _, n := range l.items {
		seen[n.ID] = true
		all = append(all, n)
	}
	for _, n := range items {
		if seen[n.ID] {
			continue
		}
		seen[n.ID] = true
		all = append(all, n)
	}
	sort.SliceStable(all, func(i, j int) bool {
		return all[i].Timestamp.After(all[j].Timestamp)
	})
	l.items = l.truncate(all)
}

func (l *NotificationLog) truncate(items []Notification) []Notification {
	if len(items) > l.limit {
		items = items[:l.limit]
	}
	return items
}

func (l *NotificationLog) Len() int { return len(l.items) }

func (l *NotificationLog) Items() []Notification {
	out := make([]Notification, len(l.items))
	copy(out, l.items)
	return out
}

// HistoricalNotifications turns backend alerts and logs into notifications,
// keeping only items that belong to devices of pond.
func HistoricalNotifications(pond *types.Pond, alerts []types.Alert, logs []types.LogEntry) []Notification {
	if pond == nil {
		return nil
	}

	sensorIDs := pond.SensorIDs()
	actuatorIDs := pond.ActuatorIDs()
	out := make([]Notification, 0)

	for _, a := range alerts {
		if a.Sensor == nil || !sensorIDs[a.Sensor.ID] {
			continue
		}
		msg := a.Mensaje
		if msg == "" {
			msg = "sensor alert"
		}
		out = append(out, Notification{
			ID:        idPrefixAPIAlert + strconv.Itoa(a.ID),
			Type:      TypeHistoricalSensorAlert,
			Timestamp: a.Timestamp,
			Message:   msg,
		})
	}

	for _, entry := range logs {
		if entry.Actuador == nil || !actuatorIDs[entry.Actuador.ID] {
			continue
		}
		var typ NotificationType
		switch entry.Accion {
		case types.ActionHeartbeatError:
			typ = TypeHistoricalHeartbeatError
		case types.ActionStatusUpdate:
			typ = TypeHistoricalStatusUpdate
		default:
			continue
		}
		out = append(out, Notification{
			ID:        idPrefixAPILog + strconv.Itoa(entry.ID),
			Type:      typ,
			Timestamp: entry.Timestamp,
			Message:   fmt.Sprintf("actuator id %d - %s: %s", entry.Actuador.ID, entry.Accion, entry.Resultado),
		})
	}

	return out
}
