package views

import (
	"context"

	"github.com/KevinKickass/aquanest/internal/device"
	"github.com/KevinKickass/aquanest/internal/telemetry"
	"github.com/google/uuid"
)

// Toggle flips an actuator of a mounted view. Ownership was checked when
// the socket was opened.
func (m *Manager) Toggle(ctx context.Context, viewID uuid.UUID, kind device.Kind) (telemetry.ActuatorSnapshot, error) {
	m.mu.RLock()
	view, ok := m.views[viewID]
	m.mu.RUnlock()
	if !ok {
		return telemetry.ActuatorSnapshot{}, ErrViewNotFound
	}
	return view.sync.Toggle(ctx, kind)
}
