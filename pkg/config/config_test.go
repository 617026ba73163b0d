package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/kalifun/tracilink/errors"
	"github.com/kalifun/tracilink/pkg/core"
	"github.com/kalifun/tracilink/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const full = `
federate: city
vehicle_prefix: car_
simulator:
  backend: libsumo
  options:
    libraryName: libsumojni.so
    args: ["-c", "grid.sumocfg"]
  extras:
    leader: true
    taxi: true
    leader_lookahead: 50
control:
  step_length: 0.5
  steps: 100
subscriptions:
  vehicles: [cab_3]
  traffic_lights: [tl0]
publish:
  mqtt:
    broker: tcp://localhost:1883
    clientId: tracilink
  telemetry:
    prefix: sim
  qos: 1
  kinds: [vehicle]
  dispatch: true
metrics:
  listen: ":9090"
`

func TestLoad(t *testing.T) {
	c, err := LoadBytes([]byte(full))
	require.NoError(t, err)

	assert.Equal(t, "city", c.Federate)
	assert.Equal(t, "car_", c.VehiclePrefix)
	assert.Equal(t, core.BackendLibsumo, c.Simulator.Backend)
	assert.Equal(t, []interface{}{"-c", "grid.sumocfg"}, c.Simulator.Options["args"])
	assert.Equal(t, 0.5, c.Control.StepLength)
	assert.Equal(t, 100, c.Control.Steps)
	assert.Equal(t, DefaultBusBuffer, c.BusBuffer)
	assert.Equal(t, []string{"cab_3"}, c.Subscriptions.ByKind()[types.KindVehicle])
	assert.Equal(t, types.Window{}, c.Subscriptions.TypesWindow())
	require.NotNil(t, c.Publish)
	assert.Equal(t, "tcp://localhost:1883", c.Publish.MQTT["broker"])
	assert.Equal(t, []types.EntityKind{types.KindVehicle}, c.Publish.Kinds)
	assert.True(t, c.Publish.Dispatch)
	assert.Equal(t, DefaultMetricsPath, c.Metrics.Path)

	opts := c.Simulator.TransportOptions()
	assert.Equal(t, types.VehicleExtras{Leader: true, Taxi: true, LeaderLookahead: 50}, opts["extras"])
	assert.Equal(t, "libsumojni.so", opts["libraryName"])
	_, leaked := c.Simulator.Options["extras"]
	assert.False(t, leaked)
}

func TestDefaults(t *testing.T) {
	c, err := LoadBytes([]byte("simulator:\n  options:\n    port: 8813\n"))
	require.NoError(t, err)
	assert.Equal(t, "sumo", c.Federate)
	assert.Equal(t, core.BackendTraCI, c.Simulator.Backend)
	assert.Equal(t, DefaultStepLength, c.Control.StepLength)
	assert.Nil(t, c.Publish)
	assert.Empty(t, c.Metrics.Path)
}

func TestLoadRejects(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{name: "empty", yaml: ""},
		{name: "unknown field", yaml: "federate: x\nspeed: 3\n"},
		{name: "unknown backend", yaml: "simulator:\n  backend: carla\n"},
		{name: "negative step", yaml: "control:\n  step_length: -1\n"},
		{name: "negative steps", yaml: "control:\n  steps: -1\n"},
		{name: "inverted window", yaml: "subscriptions:\n  window: {begin: 10, end: 5}\n"},
		{name: "publish without mqtt", yaml: "publish:\n  qos: 1\n"},
		{name: "bad qos", yaml: "publish:\n  mqtt: {broker: tcp://b:1883}\n  qos: 3\n"},
		{name: "bad kind", yaml: "publish:\n  mqtt: {broker: tcp://b:1883}\n  kinds: [tram]\n"},
		{name: "not yaml", yaml: "federate: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadBytes([]byte(tt.yaml))
			require.Error(t, err)
			assert.True(t, errors.Is(err, errors.ConfigurationError))
		})
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bridge.yaml")
	require.NoError(t, os.WriteFile(path, []byte(full), 0o600))

	c, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "city", c.Federate)

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.True(t, errors.Is(err, errors.ConfigurationError))
}
