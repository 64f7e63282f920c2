package system

import (
	"context"
	"testing"
	"time"

	"github.com/KevinKickass/OpenSimCore/internal/config"
	_ "github.com/KevinKickass/OpenSimCore/internal/overrides/dish"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func dishConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{HTTPPort: 0, ShutdownTimeout: 5 * time.Second},
		Simulation: config.SimulationConfig{
			DeviceName:          "mid_d0001/elt/master",
			DescriptionFiles:    []string{"DishElementMaster.xmi", "DishElementMaster_SIMDD.json"},
			SearchPaths:         []string{"../overrides/dish/testdata"},
			MinUpdatePeriod:     0.99,
			PollInterval:        50 * time.Millisecond,
			ControlDeviceSuffix: "_control",
		},
	}
}

func TestLoadSimulation(t *testing.T) {
	lm := NewLifecycleManager(dishConfig(), nil, zap.NewNop())

	sim, err := lm.LoadSimulation(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "mid_d0001/elt/master", sim.Device.Name)
	assert.Equal(t, "mid_d0001/elt/master_control", sim.Control.Name)
	assert.Equal(t, "DishElementMaster", sim.Device.Class)

	m, ok := lm.Models().Get("mid_d0001/elt/master")
	require.True(t, ok)
	assert.Same(t, sim.Model, m)

	status := lm.GetCurrentStatus()
	assert.Equal(t, "INITIALIZING", status.State)
	assert.Equal(t, 2, status.DeviceCount)
	assert.Equal(t, []string{"mid_d0001/elt/master"}, status.Models)
	assert.Empty(t, status.Paused)
}

func TestLoadSimulationErrors(t *testing.T) {
	cfg := dishConfig()
	cfg.Simulation.DescriptionFiles = nil
	_, err := NewLifecycleManager(cfg, nil, zap.NewNop()).LoadSimulation(context.Background())
	assert.Error(t, err)

	cfg = dishConfig()
	cfg.Simulation.DescriptionFiles = []string{"Missing.xmi"}
	lm := NewLifecycleManager(cfg, nil, zap.NewNop())
	_, err = lm.LoadSimulation(context.Background())
	assert.Error(t, err)
	assert.Empty(t, lm.Models().Names())
}

func TestStartAndShutdown(t *testing.T) {
	lm := NewLifecycleManager(dishConfig(), nil, zap.NewNop())

	require.NoError(t, lm.Start(context.Background()))
	assert.Equal(t, StateRunning, lm.State())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, lm.Shutdown(ctx))
	assert.Equal(t, StateStopped, lm.State())

	// A second call is a no-op.
	assert.NoError(t, lm.Shutdown(ctx))
}

func TestValidateTransition(t *testing.T) {
	assert.NoError(t, ValidateTransition(StateInitializing, StateRunning))
	assert.NoError(t, ValidateTransition(StateRunning, StateStopping))
	assert.NoError(t, ValidateTransition(StateStopping, StateStopped))
	assert.Error(t, ValidateTransition(StateStopped, StateRunning))
	assert.Error(t, ValidateTransition(SystemState(42), StateRunning))
	assert.Equal(t, "UNKNOWN", SystemState(42).String())
}
