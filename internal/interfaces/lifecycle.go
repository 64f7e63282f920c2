package interfaces

import (
	"context"

	"github.com/KevinKickass/OpenSimCore/internal/config"
	"github.com/KevinKickass/OpenSimCore/internal/host"
	"github.com/KevinKickass/OpenSimCore/internal/model"
)

// SystemStatus represents the current system state
type SystemStatus struct {
	State       string   `json:"state"`
	DeviceCount int      `json:"device_count"`
	Devices     []string `json:"devices"`
	Models      []string `json:"models"`
	Paused      []string `json:"paused,omitempty"`
}

type LifecycleManager interface {
	Config() *config.Config
	Host() *host.Server
	Models() *model.Registry
	GetCurrentStatus() SystemStatus
	Shutdown(ctx context.Context) error
}
