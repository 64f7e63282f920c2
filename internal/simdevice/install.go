package simdevice

import (
	"context"
	"fmt"

	"github.com/KevinKickass/OpenSimCore/internal/host"
)

// DefaultControlSuffix names the control device after the main device.
const DefaultControlSuffix = "_control"

// Install registers both classes on srv and creates the main device and
// its control device. An empty controlName uses DefaultControlSuffix.
func Install(ctx context.Context, srv *host.Server, asm *Assembly, deviceName, controlName string) (*host.Instance, *host.Instance, error) {
	if controlName == "" {
		controlName = deviceName + DefaultControlSuffix
	}

	if err := srv.RegisterClass(asm.Main); err != nil {
		return nil, nil, fmt.Errorf("failed to register class %s: %w", asm.Main.Name, err)
	}
	if err := srv.RegisterClass(asm.Control); err != nil {
		return nil, nil, fmt.Errorf("failed to register class %s: %w", asm.Control.Name, err)
	}

	main, err := srv.CreateDevice(ctx, asm.Main.Name, deviceName)
	if err != nil {
		return nil, nil, err
	}
	control, err := srv.CreateDevice(ctx, asm.Control.Name, controlName)
	if err != nil {
		return nil, nil, err
	}
	return main, control, nil
}
