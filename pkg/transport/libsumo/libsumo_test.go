package libsumo_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/kalifun/tracilink/errors"
	"github.com/kalifun/tracilink/pkg/core"
	"github.com/kalifun/tracilink/pkg/simtest"
	"github.com/kalifun/tracilink/pkg/transport/libsumo"
	"github.com/kalifun/tracilink/pkg/types"
	"github.com/kalifun/tracilink/pkg/version"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSearchPaths(t *testing.T) {
	t.Setenv("SUMO_HOME", "/opt/sumo")
	t.Setenv("LD_LIBRARY_PATH", "/usr/lib::/opt/sumo/bin")

	assert.Equal(t, []string{
		"/opt/sumo/bin/libsumo.so",
		"/usr/lib/libsumo.so",
	}, libsumo.SearchPaths("libsumo.so"))

	t.Setenv("SUMO_HOME", "")
	t.Setenv("LD_LIBRARY_PATH", "")
	assert.Empty(t, libsumo.SearchPaths("libsumo.so"))
}

func TestLoadFallsBackInOrder(t *testing.T) {
	t.Setenv("SUMO_HOME", "/opt/sumo")
	t.Setenv("LD_LIBRARY_PATH", "/usr/local/lib")

	lib := simtest.NewLibrary(simtest.NewWorld(1))
	var tried []string
	restore := libsumo.SetOpener(func(path string) (libsumo.Library, error) {
		tried = append(tried, path)
		if path == "/usr/local/lib/libsumo.so" {
			return lib, nil
		}
		return nil, fmt.Errorf("cannot open shared object file")
	})
	defer restore()

	got, path, err := libsumo.Load("")
	require.NoError(t, err)
	assert.Same(t, lib, got)
	assert.Equal(t, "/usr/local/lib/libsumo.so", path)
	assert.Equal(t, []string{"/opt/sumo/bin/libsumo.so", "/usr/local/lib/libsumo.so"}, tried)

	// loaded once per process
	again, _, err := libsumo.Load("libsumo.so")
	require.NoError(t, err)
	assert.Same(t, lib, again)
	assert.Len(t, tried, 2)

	// an incompatible second library fails loudly
	_, _, err = libsumo.Load("libsumo-debug.so")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.LibraryLoad))
	assert.Contains(t, err.Error(), "already loaded from /usr/local/lib/libsumo.so")
}

func TestLoadFailureListsAttempts(t *testing.T) {
	t.Setenv("SUMO_HOME", "/opt/sumo")
	t.Setenv("LD_LIBRARY_PATH", "/usr/local/lib")

	restore := libsumo.SetOpener(func(path string) (libsumo.Library, error) {
		return nil, fmt.Errorf("no such file")
	})
	defer restore()

	_, _, err := libsumo.Load("libsumo.so")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.LibraryLoad))
	assert.True(t, errors.IsFatal(err))
	assert.Contains(t, err.Error(), "/opt/sumo/bin/libsumo.so")
	assert.Contains(t, err.Error(), "/usr/local/lib/libsumo.so")
	assert.Contains(t, err.Error(), "add $SUMO_HOME/bin to LD_LIBRARY_PATH")

	t.Setenv("SUMO_HOME", "")
	t.Setenv("LD_LIBRARY_PATH", "")
	_, _, err = libsumo.Load("libsumo.so")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "neither SUMO_HOME nor LD_LIBRARY_PATH is set")
}

func TestTransportUsesLoader(t *testing.T) {
	t.Setenv("SUMO_HOME", "/opt/sumo")
	t.Setenv("LD_LIBRARY_PATH", "")

	lib := simtest.NewLibrary(simtest.NewWorld(1))
	restore := libsumo.SetOpener(func(path string) (libsumo.Library, error) { return lib, nil })
	defer restore()

	tr := libsumo.NewTransport(libsumo.Config{Args: []string{"-c", "grid.sumocfg"}})
	require.NoError(t, tr.Start(context.Background()))
	assert.Equal(t, version.API22, tr.APIVersion())
	assert.Equal(t, simtest.Release, tr.SimulatorVersion())
	assert.Equal(t, []string{"-c", "grid.sumocfg"}, lib.LoadArgs())
	assert.Equal(t, core.BackendLibsumo, tr.Backend())
}

func startTransport(t *testing.T, w *simtest.World, extras types.VehicleExtras) (*libsumo.Transport, *simtest.Library) {
	t.Helper()
	lib := simtest.NewLibrary(w)
	tr := libsumo.NewTransport(libsumo.Config{ID: "libsumo-test", Library: lib, Extras: extras})
	require.NoError(t, tr.Start(context.Background()))
	t.Cleanup(func() { _ = tr.Stop(context.Background()) })
	return tr, lib
}

func TestStartLifecycle(t *testing.T) {
	lib := simtest.NewLibrary(simtest.NewWorld(1))
	tr := libsumo.NewTransport(libsumo.Config{Library: lib})
	ctx := context.Background()

	err := tr.Commands().SimulationSetOrder.Run(ctx, 1)
	assert.True(t, errors.Is(err, errors.TransportNotRunning))

	require.NoError(t, tr.Start(ctx))
	assert.True(t, errors.Is(tr.Start(ctx), errors.TransportAlreadyRunning))
	assert.NoError(t, tr.Commands().SimulationSetOrder.Run(ctx, 1))
	require.NoError(t, tr.Stop(ctx))
	assert.True(t, errors.Is(tr.Stop(ctx), errors.TransportNotRunning))
}

func TestVersionCheck(t *testing.T) {
	tests := []struct {
		name    string
		release string
		level   int
		wantErr bool
	}{
		{name: "accepted", release: "1.23.1", level: 22},
		{name: "older release", release: "1.22.0", level: 22, wantErr: true},
		{name: "newer release", release: "1.24.0", level: 23, wantErr: true},
		{name: "too old api", release: "1.23.0", level: 17, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lib := simtest.NewLibrary(simtest.NewWorld(1)).WithVersion(tt.release, tt.level)
			err := libsumo.NewTransport(libsumo.Config{Library: lib}).Start(context.Background())
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, errors.Is(err, errors.VersionMismatch))
			assert.Contains(t, err.Error(), tt.release)
		})
	}
}

func TestUnknownIDIsRecoverable(t *testing.T) {
	tr, _ := startTransport(t, simtest.NewWorld(1), types.VehicleExtras{})
	ctx := context.Background()

	err := tr.Commands().VehicleSubscribe.Run(ctx, "ghost", types.WholeRun())
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.CommandFailed))
	assert.True(t, errors.IsRecoverable(err))
	assert.Contains(t, err.Error(), "Vehicle 'ghost' is not known")

	// still usable
	_, err = tr.Commands().SimulationStep.Run(ctx, 1, core.SubscriptionSnapshot{})
	assert.NoError(t, err)
}

func TestNativePanicPoisonsTransport(t *testing.T) {
	w := simtest.NewWorld(1).AddVehicle(simtest.Vehicle{ID: "veh_0", Taxi: true})
	tr, lib := startTransport(t, w, types.VehicleExtras{})
	ctx := context.Background()

	lib.PanicOn("vehicle.getTaxiFleet")
	_, err := tr.Commands().VehicleGetTaxiFleet.Run(ctx, types.FleetAll)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.NativeCrash))
	assert.True(t, errors.IsFatal(err))

	_, err = tr.Commands().SimulationStep.Run(ctx, 1, core.SubscriptionSnapshot{})
	assert.True(t, errors.Is(err, errors.TransportClosed))
}

func TestStepCollectsSubscribedEntities(t *testing.T) {
	w := simtest.NewWorld(1).
		AddVehicle(simtest.Vehicle{ID: "veh_0", X: 10, Y: 5, Speed: 2, Angle: 90, RoadID: "e0", LeaderID: "veh_1", LeaderGap: 8}).
		AddVehicle(simtest.Vehicle{ID: "veh_1", X: 18, Y: 5, OffNetwork: true}).
		AddTrafficLight(simtest.TrafficLight{ID: "tl0", Program: "0", Phase: 1, State: "GGrr"})
	w.At(2, func(w *simtest.World) { w.Arrive("veh_0") })

	tr, _ := startTransport(t, w, types.VehicleExtras{Leader: true})
	ctx := context.Background()
	cmds := tr.Commands()

	require.NoError(t, cmds.VehicleSubscribe.Run(ctx, "veh_0", types.WholeRun()))
	require.NoError(t, cmds.VehicleSubscribe.Run(ctx, "veh_1", types.WholeRun()))
	require.NoError(t, cmds.TrafficLightSubscribe.Run(ctx, "tl0", types.Window{Begin: 0, End: 1}))
	snapshot := core.SubscriptionSnapshot{
		types.KindVehicle:      {"veh_0", "veh_1"},
		types.KindTrafficLight: {"tl0"},
	}

	res, err := cmds.SimulationStep.Run(ctx, 1, snapshot)
	require.NoError(t, err)
	assert.Equal(t, 1.0, res.Time)
	require.Len(t, res.Results, 2)

	v := res.Results[0].(*types.VehicleResult)
	assert.Equal(t, "veh_0", v.ID)
	assert.InDelta(t, 12, v.Position.X, 1e-9)
	assert.Equal(t, &types.Leader{ID: "veh_1", Distance: 8}, v.Leader)
	assert.Equal(t, &types.TrafficLightResult{ID: "tl0", ProgramID: "0", Phase: 1, State: "GGrr"}, res.Results[1])

	res, err = cmds.SimulationStep.Run(ctx, 2, snapshot)
	require.NoError(t, err)
	assert.Empty(t, res.Results, "arrived vehicle, off-network vehicle and expired window")
	assert.Equal(t, []string{"veh_0"}, res.ArrivedIDs[types.KindVehicle])
	assert.Empty(t, res.ArrivedIDs[types.KindPerson])
	assert.Equal(t, 1, tr.Subscribed(types.KindVehicle), "arrived veh_0 is forgotten")
	assert.Equal(t, 1, tr.Subscribed(types.KindTrafficLight))
}

func TestCanceledContextIsRecoverable(t *testing.T) {
	tr, _ := startTransport(t, simtest.NewWorld(1), types.VehicleExtras{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := tr.Commands().SimulationStep.Run(ctx, 1, core.SubscriptionSnapshot{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.Canceled))
	assert.True(t, errors.IsRecoverable(err))

	res, err := tr.Commands().SimulationStep.Run(context.Background(), 1, core.SubscriptionSnapshot{})
	require.NoError(t, err)
	assert.Equal(t, 1.0, res.Time)
}

func TestTaxiCommands(t *testing.T) {
	w := simtest.NewWorld(1).
		AddVehicle(simtest.Vehicle{ID: "cab_3", Taxi: true}).
		AddPerson(simtest.Person{ID: "p0", TypeID: "DEFAULT_PEDTYPE"}).
		AddReservation(types.TaxiReservation{ID: "r0", PersonIDs: []string{"p0"}, FromEdge: "A", ToEdge: "B"})
	tr, _ := startTransport(t, w, types.VehicleExtras{})
	ctx := context.Background()
	cmds := tr.Commands()

	fleet, err := cmds.VehicleGetTaxiFleet.Run(ctx, types.FleetEmpty)
	require.NoError(t, err)
	assert.Equal(t, []string{"cab_3"}, fleet)

	rs, err := cmds.PersonGetTaxiReservations.Run(ctx, types.ReservationNew)
	require.NoError(t, err)
	require.Len(t, rs, 1)
	assert.Equal(t, types.ReservationNew, rs[0].State)
	assert.Equal(t, []string{"p0"}, rs[0].PersonIDs)

	require.NoError(t, cmds.VehicleDispatchTaxi.Run(ctx, "cab_3", []string{"r0"}))
	cab, _ := w.Vehicle("cab_3")
	assert.Equal(t, types.TaxiPickup, cab.TaxiState)

	err = cmds.VehicleDispatchTaxi.Run(ctx, "cab_3", []string{"r9"})
	assert.True(t, errors.IsRecoverable(err))

	typeID, err := cmds.PersonGetTypeID.Run(ctx, "p0")
	require.NoError(t, err)
	assert.Equal(t, "DEFAULT_PEDTYPE", typeID)

	require.NoError(t, cmds.SimulationClose.Run(ctx))
	assert.True(t, w.Closed())
	_, err = cmds.SimulationStep.Run(ctx, 1, nil)
	assert.True(t, errors.Is(err, errors.TransportClosed))
}

func TestFactory(t *testing.T) {
	lib := simtest.NewLibrary(simtest.NewWorld(1))
	tr, err := libsumo.NewTransportFactory()(map[string]interface{}{
		"id":      "native",
		"args":    []interface{}{"-n", "net.xml"},
		"library": libsumo.Library(lib),
	})
	require.NoError(t, err)
	assert.Equal(t, "native", tr.ID())
	require.NoError(t, tr.Start(context.Background()))
	assert.Equal(t, []string{"-n", "net.xml"}, lib.LoadArgs())

	_, err = libsumo.NewTransportFactory()(map[string]interface{}{"args": []interface{}{1}})
	assert.True(t, errors.Is(err, errors.ConfigurationError))
}
