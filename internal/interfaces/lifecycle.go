package interfaces

import "context"

// SystemStatus represents the current gateway state
type SystemStatus struct {
	State            string `json:"state"`
	BrokerConnected  bool   `json:"broker_connected"`
	MountedViews     int    `json:"mounted_views"`
	ConnectedClients int    `json:"connected_clients"`
	Error            string `json:"error,omitempty"`
}

type LifecycleManager interface {
	GetCurrentStatus() SystemStatus
	Shutdown(ctx context.Context) error
}
