package telemetry

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/KevinKickass/aquanest/internal/device"
	"github.com/KevinKickass/aquanest/internal/topic"
	"go.uber.org/zap"
)

// HandleMessage routes one inbound broker message into the view state.
// Malformed topics, ids and payloads are dropped with a debug log.
func (v *View) HandleMessage(t string, payload []byte) {
	if !v.alive {
		return
	}

	route, err := topic.Parse(v.topics.Namespace, t)
	if err != nil {
		v.drop(t, "unparseable topic", zap.Error(err))
		return
	}
	if route.PondID != v.pondID {
		v.drop(t, "foreign pond", zap.Int("topic_pond_id", route.PondID))
		return
	}

	switch route.Shape {
	case topic.ShapeData:
		v.handleSample(route, payload)
	case topic.ShapeAlert:
		v.handleAlert(route, payload)
	case topic.ShapeHeartbeat:
		v.handleHeartbeat(route, payload)
	case topic.ShapeResponse:
		v.handleResponse(route, payload)
	default:
		v.drop(t, "unhandled topic shape")
	}
}

func (v *View) drop(t, reason string, fields ...zap.Field) {
	v.logger.Debug("Dropping message",
		append([]zap.Field{zap.String("topic", t), zap.String("reason", reason)}, fields...)...)
}

func (v *View) handleSample(route topic.Route, payload []byte) {
	ident, ok := device.Decode(route.Device)
	if !ok || !ident.Kind.IsSensor() {
		v.drop(route.Topic, "bad sensor id")
		return
	}
	if v.pond == nil {
		v.drop(route.Topic, "roster not loaded")
		return
	}
	sensor, ok := v.pond.SensorByID(ident.ID)
	if !ok || v.catalog.KindOf(sensor.Tipo) != ident.Kind {
		v.drop(route.Topic, "unknown sensor")
		return
	}
	series, ok := v.series[ident.ID]
	if !ok {
		v.drop(route.Topic, "unknown sensor")
		return
	}

	value, err := strconv.ParseFloat(strings.TrimSpace(string(payload)), 64)
	if err != nil || math.IsNaN(value) || math.IsInf(value, 0) {
		v.drop(route.Topic, "non-numeric payload")
		return
	}

	sample := Sample{Timestamp: v.hooks.Now(), Value: value}
	series.Append(sample)
	v.emit(EventSample, SampleData{
		SensorID: ident.ID,
		Kind:     ident.Kind.String(),
		Sample:   sample,
	})
}

func (v *View) handleAlert(route topic.Route, payload []byte) {
	ident, ok := device.Decode(route.Device)
	if !ok || ident.Kind == device.KindPond {
		v.drop(route.Topic, "bad device id")
		return
	}

	detail := strings.TrimSpace(string(payload))
	if detail == "" {
		detail = "anomalous reading"
	}
	v.notify(Notification{
		ID:      idPrefixLiveAlert + v.hooks.NewID(),
		Type:    TypeLiveAnomaly,
		Message: fmt.Sprintf("%s: %s", v.deviceLabel(ident, route.Device), detail),
	})
}

func (v *View) handleHeartbeat(route topic.Route, payload []byte) {
	ident, ok := device.Decode(route.Device)
	if !ok {
		v.drop(route.Topic, "bad device id")
		return
	}
	class := ident.Kind.Class()
	if class != device.ClassSensor && class != device.ClassActuator {
		class = device.ClassUnknown
	}

	detail := strings.TrimSpace(string(payload))
	if detail == "" {
		detail = "no heartbeat"
	}
	v.notify(Notification{
		ID:      idPrefixLiveError + v.hooks.NewID(),
		Type:    TypeLiveHeartbeatError,
		Message: fmt.Sprintf("%s id %d heartbeat error: %s", class, ident.ID, detail),
	})
}

func (v *View) handleResponse(route topic.Route, payload []byte) {
	ident, ok := device.Decode(route.Device)
	if !ok || !ident.Kind.IsActuator() {
		v.drop(route.Topic, "bad actuator id")
		return
	}
	a, ok := v.actuators[ident.Kind]
	if !ok || a.ID != ident.ID {
		v.drop(route.Topic, "unknown actuator")
		return
	}
	state, ok := ParseControlState(string(payload))
	if !ok {
		v.drop(route.Topic, "bad actuator state", zap.ByteString("payload", payload))
		return
	}
	v.confirm(a, state)
}

func (v *View) notify(n Notification) {
	n.Timestamp = v.hooks.Now()
	v.log.Prepend(n)
	v.emit(EventNotification, n)
}
