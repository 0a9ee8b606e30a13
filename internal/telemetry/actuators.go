package telemetry

import (
	"strings"

	"github.com/KevinKickass/aquanest/internal/device"
)

// ControlState is the client-side state of an actuator switch.
type ControlState string

const (
	StateOff ControlState = "OFF"
	StateOn  ControlState = "ON"
	// StatePending is entered on a user command and left on a broker
	// confirmation or a failed publish.
	StatePending ControlState = "PENDING"
)

// ParseControlState accepts ON or OFF in any case.
func ParseControlState(s string) (ControlState, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case string(StateOn):
		return StateOn, true
	case string(StateOff):
		return StateOff, true
	default:
		return "", false
	}
}

func (s ControlState) opposite() ControlState {
	if s == StateOn {
		return StateOff
	}
	return StateOn
}

// Actuator is the controllable device of one kind in the current roster.
type Actuator struct {
	ID    int
	Kind  device.Kind
	State ControlState
	// Confirmed is the last state the device (or the backend snapshot)
	// reported. State falls back to it when a command fails.
	Confirmed ControlState

	// seq invalidates callbacks of earlier commands.
	seq       uint64
	stopTimer func() bool
}

func newActuator(id int, kind device.Kind, estado string) *Actuator {
	st, ok := ParseControlState(estado)
	if !ok {
		st = StateOff
	}
	return &Actuator{ID: id, Kind: kind, State: st, Confirmed: st}
}

func (a *Actuator) Identifier() device.Identifier {
	return device.Identifier{Kind: a.Kind, ID: a.ID}
}

func (a *Actuator) Pending() bool { return a.State == StatePending }

func (a *Actuator) cancelTimer() {
	if a.stopTimer != nil {
		a.stopTimer()
		a.stopTimer = nil
	}
}

// ActuatorSnapshot is the read-only view of an actuator.
type ActuatorSnapshot struct {
	ID        int          `json:"id"`
	Kind      string       `json:"kind"`
	Label     string       `json:"label"`
	Device    string       `json:"device"`
	State     ControlState `json:"state"`
	Confirmed ControlState `json:"confirmed"`
}
