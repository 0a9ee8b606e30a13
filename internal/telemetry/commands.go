package telemetry

import (
	"fmt"

	"github.com/KevinKickass/aquanest/internal/device"
	"go.uber.org/zap"
)

// Toggle asks the actuator of kind to switch to the opposite of its last
// confirmed state. The actuator stays PENDING until the device answers on
// its response topic or the publish fails.
func (v *View) Toggle(kind device.Kind) error {
	if !v.alive {
		return ErrClosed
	}
	a, ok := v.actuators[kind]
	if !ok {
		return ErrUnknownActuator
	}
	if a.Pending() {
		return ErrCommandPending
	}

	want := a.Confirmed.opposite()
	a.seq++
	seq := a.seq
	a.State = StatePending

	if !v.connected {
		v.revert(a, fmt.Sprintf("cannot switch %s: broker not connected", v.catalog.Label(kind)))
		return ErrNotConnected
	}
	v.emit(EventActuator, v.actuatorSnapshot(a))

	if v.commandTimeout > 0 {
		a.stopTimer = v.hooks.AfterFunc(v.commandTimeout, func() {
			v.post(func() { v.expired(a, seq) })
		})
	}

	t := v.topics.Command(v.pondID, a.Identifier())
	v.logger.Info("Publishing actuator command",
		zap.String("topic", t),
		zap.String("state", string(want)))
	v.broker.Publish(t, []byte(want), func(err error) {
		v.post(func() { v.published(a, seq, err) })
	})
	return nil
}

// current reports whether a callback issued for seq still applies to a.
func (v *View) current(a *Actuator, seq uint64) bool {
	return v.alive && v.actuators[a.Kind] == a && a.seq == seq && a.Pending()
}

func (v *View) published(a *Actuator, seq uint64, err error) {
	if err == nil || !v.current(a, seq) {
		return
	}
	v.revert(a, fmt.Sprintf("could not switch %s: %v", v.catalog.Label(a.Kind), err))
}

func (v *View) expired(a *Actuator, seq uint64) {
	if !v.current(a, seq) {
		return
	}
	a.stopTimer = nil
	v.revert(a, fmt.Sprintf("no response from %s within %s", v.catalog.Label(a.Kind), v.commandTimeout))
}

func (v *View) revert(a *Actuator, msg string) {
	a.seq++
	a.cancelTimer()
	a.State = a.Confirmed
	v.banner.Command = msg
	v.logger.Warn("Actuator command failed",
		zap.String("device", a.Identifier().String()),
		zap.String("reason", msg))
	v.emit(EventActuator, v.actuatorSnapshot(a))
	v.emit(EventBanner, v.banner)
}

// confirm applies a state reported by the device.
func (v *View) confirm(a *Actuator, state ControlState) {
	a.seq++
	a.cancelTimer()
	a.State = state
	a.Confirmed = state
	v.emit(EventActuator, v.actuatorSnapshot(a))
	if v.banner.Command != "" {
		v.banner.Command = ""
		v.emit(EventBanner, v.banner)
	}
}
