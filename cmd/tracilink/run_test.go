package main

import (
	"context"
	"encoding/base64"
	"testing"

	"github.com/kalifun/tracilink/errors"
	"github.com/kalifun/tracilink/pkg/config"
	"github.com/kalifun/tracilink/pkg/core"
	"github.com/kalifun/tracilink/pkg/simtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun(t *testing.T) {
	w := simtest.NewWorld(1).
		AddVehicle(simtest.Vehicle{ID: "v1", X: 0, Y: 0, Speed: 2, Angle: 90})
	w.At(2, func(w *simtest.World) { w.Arrive("v1") })

	cfg := &config.Config{
		Federate:  "test",
		BusBuffer: 8,
		Simulator: config.Simulator{
			Backend: core.BackendLibsumo,
			Options: map[string]interface{}{"library": simtest.NewLibrary(w)},
		},
		Control: config.Control{StepLength: 1, Steps: 3},
		Subscriptions: config.Subscriptions{
			// ghost is rejected by the simulator and only logged
			Vehicles: []string{"v1", "ghost"},
		},
	}

	require.NoError(t, run(context.Background(), cfg))
	assert.InDelta(t, 3.0, w.Time(), 1e-9)
	assert.True(t, w.Closed())
}

func TestLoadConfig(t *testing.T) {
	t.Cleanup(func() { configPath, configData = "", "" })

	configData = base64.StdEncoding.EncodeToString([]byte("federate: city\nsimulator:\n  backend: libsumo\n"))
	cfg, err := loadConfig()
	require.NoError(t, err)
	assert.Equal(t, "city", cfg.Federate)
	assert.Equal(t, core.BackendLibsumo, cfg.Simulator.Backend)

	configData = "not base64!"
	_, err = loadConfig()
	assert.True(t, errors.Is(err, errors.ConfigurationError))
}

func TestNewTransportUnknownBackend(t *testing.T) {
	cfg := &config.Config{Simulator: config.Simulator{Backend: "carla"}}
	_, err := newTransport(newRegistry(), cfg)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ConfigurationError))
	assert.Contains(t, err.Error(), "libsumo")
}
