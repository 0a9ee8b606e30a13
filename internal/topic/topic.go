// Package topic builds and parses broker topics of the form
// <namespace>/E<pond>/<device>/<channel>...
package topic

import (
	"strings"

	"github.com/KevinKickass/aquanest/internal/device"
)

const (
	Separator = "/"
	// Wildcard is the broker's single-level wildcard.
	Wildcard = "+"

	DefaultNamespace = "aquanest"
)

// Deriver formats the topics of one namespace.
type Deriver struct {
	Namespace string
}

func NewDeriver(namespace string) Deriver {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	return Deriver{Namespace: namespace}
}

func (d Deriver) pond(pondID int) string {
	return d.Namespace + Separator + device.Encode(device.KindPond, pondID)
}

func (d Deriver) join(pondID int, parts ...string) string {
	return d.pond(pondID) + Separator + strings.Join(parts, Separator)
}

// Data is the sensor telemetry topic, sensor -> dashboard.
func (d Deriver) Data(pondID int, dev device.Identifier) string {
	return d.join(pondID, dev.String(), "data", Wildcard)
}

// Command is where actuator commands are published, dashboard -> device.
func (d Deriver) Command(pondID int, dev device.Identifier) string {
	return d.join(pondID, dev.String(), "action")
}

// Response carries the actuator's confirmed state, device -> dashboard.
func (d Deriver) Response(pondID int, dev device.Identifier) string {
	return d.join(pondID, dev.String(), "response")
}

// Alerts is the pond-wide anomaly topic.
func (d Deriver) Alerts(pondID int) string {
	return d.join(pondID, Wildcard, "alert", "anomalous")
}

// Heartbeats is the pond-wide heartbeat failure topic.
func (d Deriver) Heartbeats(pondID int) string {
	return d.join(pondID, Wildcard, "heartbeat", "error")
}

// PondDeleted announces that a pond was removed.
func (d Deriver) PondDeleted(pondID int) string {
	return d.join(pondID, "delete")
}
