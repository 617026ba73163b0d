package metrics

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/kalifun/tracilink/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{name: "success", want: "ok"},
		{name: "recoverable", err: errors.CommandFailed.Args("vehicle.subscribe", "Vehicle 'x' is not known"), want: "recoverable"},
		{name: "fatal", err: errors.ProtocolDesync.Args("simulation.step"), want: "fatal"},
		{name: "uncoded", err: fmt.Errorf("boom"), want: "fatal"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Status(tt.err))
		})
	}
}

func TestCollector(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := NewCollector(reg)
	require.NoError(t, err)

	c.ObserveCommand("traci", "vehicle.subscribe", time.Millisecond, nil)
	c.ObserveCommand("traci", "vehicle.subscribe", time.Millisecond, errors.CommandFailed.Args("vehicle.subscribe", "unknown"))
	c.ObserveStep(10*time.Millisecond, 3, map[string]int{"vehicle": 2})
	c.ObserveStep(10*time.Millisecond, 4, map[string]int{"vehicle": 1})
	c.SetSubscriptions("vehicle", 5)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.commands.WithLabelValues("traci", "vehicle.subscribe", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.commands.WithLabelValues("traci", "vehicle.subscribe", "recoverable")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.steps))
	assert.Equal(t, 4.0, testutil.ToFloat64(c.simulationTime))
	assert.Equal(t, 3.0, testutil.ToFloat64(c.stepResults.WithLabelValues("vehicle")))
	assert.Equal(t, 5.0, testutil.ToFloat64(c.subscriptions.WithLabelValues("vehicle")))

	// registering twice on one registry fails
	_, err = NewCollector(reg)
	assert.Error(t, err)
}

func TestNilCollector(t *testing.T) {
	var c *Collector
	assert.NotPanics(t, func() {
		c.ObserveCommand("libsumo", "simulation.step", time.Second, nil)
		c.ObserveStep(time.Second, 1, nil)
		c.SetSubscriptions("person", 1)
	})
}

func TestServer(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := NewCollector(reg)
	require.NoError(t, err)
	c.ObserveStep(10*time.Millisecond, 1, map[string]int{"vehicle": 2})

	srv := NewServer("127.0.0.1:0", "", reg)
	ctx := context.Background()
	require.NoError(t, srv.Start(ctx))
	assert.True(t, errors.Is(srv.Start(ctx), errors.TransportAlreadyRunning))

	resp, err := http.Get("http://" + srv.Addr().String() + "/metrics")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "tracilink_step_total 1")

	resp, err = http.Get("http://" + srv.Addr().String() + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	require.NoError(t, srv.Stop(ctx))
	assert.True(t, errors.Is(srv.Stop(ctx), errors.TransportNotRunning))
}
