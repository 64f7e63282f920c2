package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.HTTPPort)
	assert.Equal(t, 30*time.Second, cfg.Server.ShutdownTimeout)
	assert.False(t, cfg.Database.Enabled)
	assert.Equal(t, time.Second, cfg.Simulation.PollInterval)
	assert.Equal(t, "_control", cfg.Simulation.ControlDeviceSuffix)
	assert.InDelta(t, 0.99, cfg.Simulation.MinUpdatePeriod, 1e-9)
}

func TestLoadFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  http_port: 9000
simulation:
  device_name: mkat/dish/1
  description_files: [DishElementMaster.xmi, DishElementMaster_SIMDD.json]
  poll_interval: 250ms
database:
  enabled: true
  host: db
  user: sim
  password: secret
`), 0o644))
	t.Setenv("OSC_SERVER_GRPC_PORT", "6000")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.HTTPPort)
	assert.Equal(t, 6000, cfg.Server.GRPCPort)
	assert.Equal(t, "mkat/dish/1", cfg.Simulation.DeviceName)
	assert.Equal(t, []string{"DishElementMaster.xmi", "DishElementMaster_SIMDD.json"}, cfg.Simulation.DescriptionFiles)
	assert.Equal(t, 250*time.Millisecond, cfg.Simulation.PollInterval)
	assert.Equal(t, "postgres://sim:secret@db:5432/opensimcore?sslmode=disable", cfg.Database.DSN())
}

func TestLoadRejectsBrokenYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [unterminated"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestJWTSecret(t *testing.T) {
	a := AuthConfig{JWTSecretEnv: "OSC_TEST_SECRET"}
	t.Setenv("OSC_TEST_SECRET", "")
	assert.Equal(t, DevJWTSecret, a.GetJWTSecret())
	assert.False(t, a.IsProductionReady())

	t.Setenv("OSC_TEST_SECRET", "0123456789abcdef0123456789abcdef")
	assert.True(t, a.IsProductionReady())
}
