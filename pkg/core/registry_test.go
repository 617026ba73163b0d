package core

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kalifun/tracilink/errors"
	"github.com/kalifun/tracilink/pkg/protocol"
	"github.com/kalifun/tracilink/pkg/types"
	"github.com/kalifun/tracilink/pkg/version"
)

func stubTable() CommandTable {
	subscribe := func(ctx context.Context, nativeID string, window types.Window) error { return nil }
	unsubscribe := func(ctx context.Context, nativeID string) error { return nil }
	ids := func(ctx context.Context) ([]string, error) { return []string{"p1"}, nil }
	step := func(ctx context.Context, targetTime float64, subscribed SubscriptionSnapshot) (*types.StepResult, error) {
		return &types.StepResult{Time: targetTime}, nil
	}
	setOrder := func(ctx context.Context, order int) error { return nil }
	closeSim := func(ctx context.Context) error { return nil }
	fleet := func(ctx context.Context, filter types.TaxiFleetFilter) ([]string, error) { return []string{"cab_1"}, nil }
	dispatch := func(ctx context.Context, vehicleID string, reservationIDs []string) error { return nil }
	reservations := func(ctx context.Context, state types.ReservationState) ([]types.TaxiReservation, error) { return nil, nil }
	typeID := func(ctx context.Context, personID string) (string, error) { return "DEFAULT_PEDTYPE", nil }

	vehicleSub := version.Variable(protocol.CmdSubscribeVehicleVariable, protocol.VarSpeed)
	personSub := version.Command(protocol.CmdSubscribePersonVariable)
	loopSub := version.Command(protocol.CmdSubscribeInductionLoopVariable)
	laneAreaSub := version.Command(protocol.CmdSubscribeLaneAreaVariable)
	lightSub := version.Command(protocol.CmdSubscribeTrafficLightVariable)
	fleetDesc := version.Variable(protocol.CmdGetVehicleVariable, protocol.VarTaxiFleet).WithSince(version.API20)
	dispatchDesc := version.Variable(protocol.CmdSetVehicleVariable, protocol.VarTaxiDispatch).WithSince(version.API20)
	reservationsDesc := version.Variable(protocol.CmdGetPersonVariable, protocol.VarTaxiReservations).WithSince(version.API20).WithUntil(version.API22)

	return CommandTable{
		VehicleSubscribe:          NewCommand[SubscribeFunc](vehicleSub, subscribe),
		VehicleUnsubscribe:        NewCommand[UnsubscribeFunc](vehicleSub, unsubscribe),
		PersonSubscribe:           NewCommand[SubscribeFunc](personSub, subscribe),
		PersonUnsubscribe:         NewCommand[UnsubscribeFunc](personSub, unsubscribe),
		InductionLoopSubscribe:    NewCommand[SubscribeFunc](loopSub, subscribe),
		InductionLoopUnsubscribe:  NewCommand[UnsubscribeFunc](loopSub, unsubscribe),
		LaneAreaSubscribe:         NewCommand[SubscribeFunc](laneAreaSub, subscribe),
		LaneAreaUnsubscribe:       NewCommand[UnsubscribeFunc](laneAreaSub, unsubscribe),
		TrafficLightSubscribe:     NewCommand[SubscribeFunc](lightSub, subscribe),
		TrafficLightUnsubscribe:   NewCommand[UnsubscribeFunc](lightSub, unsubscribe),
		SimulationStep:            NewCommand[StepFunc](version.Command(protocol.CmdSimStep), step),
		SimulationSetOrder:        NewCommand[SetOrderFunc](version.Command(protocol.CmdSetOrder), setOrder),
		SimulationDepartedPersons: NewCommand[IDListFunc](version.Variable(protocol.CmdGetSimulationVariable, protocol.VarDepartedPersonIDs), ids),
		SimulationArrivedPersons:  NewCommand[IDListFunc](version.Variable(protocol.CmdGetSimulationVariable, protocol.VarArrivedPersonIDs), ids),
		SimulationClose:           NewCommand[CloseFunc](version.Command(protocol.CmdClose), closeSim),
		VehicleGetTaxiFleet:       NewCommand[TaxiFleetFunc](fleetDesc, fleet),
		VehicleDispatchTaxi:       NewCommand[DispatchTaxiFunc](dispatchDesc, dispatch),
		PersonGetTaxiReservations: NewCommand[TaxiReservationsFunc](reservationsDesc, reservations),
		PersonGetTypeID:           NewCommand[TypeIDFunc](version.Variable(protocol.CmdGetPersonVariable, protocol.VarTypeID), typeID),
	}
}

func TestRegisterBackend(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.RegisterBackend(BackendTraCI, stubTable()))
	assert.Equal(t, []Backend{BackendTraCI}, r.ListBackends())

	err := r.RegisterBackend(BackendTraCI, stubTable())
	assert.Error(t, err, "registering the same backend twice")

	incomplete := stubTable()
	incomplete.VehicleDispatchTaxi = Command[DispatchTaxiFunc]{}
	err = r.RegisterBackend(BackendLibsumo, incomplete)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.UnknownCommand))
	assert.Contains(t, err.Error(), string(VehicleDispatchTaxi))

	// nothing of the rejected table is visible
	_, ok := r.Descriptor(BackendLibsumo, SimulationStep)
	assert.False(t, ok)
}

func TestResolve(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.RegisterBackend(BackendTraCI, stubTable()))

	step, err := Resolve[StepFunc](r, BackendTraCI, SimulationStep, version.API22)
	require.NoError(t, err)
	result, err := step(context.Background(), 3, nil)
	require.NoError(t, err)
	assert.Equal(t, 3.0, result.Time)

	t.Run("unknown backend", func(t *testing.T) {
		_, err := Resolve[StepFunc](r, BackendLibsumo, SimulationStep, version.API22)
		assert.True(t, errors.Is(err, errors.UnknownCommand))
		assert.True(t, errors.IsFatal(err))
	})

	t.Run("wrong function type", func(t *testing.T) {
		_, err := Resolve[CloseFunc](r, BackendTraCI, SimulationStep, version.API22)
		assert.True(t, errors.Is(err, errors.UnknownCommand))
	})

	tests := []struct {
		name      string
		contract  Contract
		current   version.APIVersion
		available bool
	}{
		{name: "fleet below minimum", contract: VehicleGetTaxiFleet, current: version.API19, available: false},
		{name: "fleet at minimum", contract: VehicleGetTaxiFleet, current: version.API20, available: true},
		{name: "reservations at minimum", contract: PersonGetTaxiReservations, current: version.API20, available: true},
		{name: "reservations below deprecation", contract: PersonGetTaxiReservations, current: version.API21, available: true},
		{name: "reservations at deprecation", contract: PersonGetTaxiReservations, current: version.API22, available: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var err error
			switch tt.contract {
			case VehicleGetTaxiFleet:
				_, err = Resolve[TaxiFleetFunc](r, BackendTraCI, tt.contract, tt.current)
			case PersonGetTaxiReservations:
				_, err = Resolve[TaxiReservationsFunc](r, BackendTraCI, tt.contract, tt.current)
			}
			if tt.available {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, errors.Is(err, errors.NotSupported))
			assert.True(t, errors.IsRecoverable(err))
			if version.Deprecated(descriptorOf(t, r, tt.contract), tt.current) {
				assert.Contains(t, err.Error(), "removed at")
			}
		})
	}
}

func descriptorOf(t *testing.T, r *Registry, contract Contract) version.Descriptor {
	d, ok := r.Descriptor(BackendTraCI, contract)
	require.True(t, ok)
	return d
}

func TestRegistryFactories(t *testing.T) {
	r := NewRegistry()
	factory := func(config map[string]interface{}) (Transport, error) { return nil, nil }

	require.NoError(t, r.RegisterTransport("traci", factory))
	require.NoError(t, r.RegisterTransport("libsumo", factory))
	assert.Error(t, r.RegisterTransport("traci", factory))
	assert.Equal(t, []string{"libsumo", "traci"}, r.ListTransports())

	_, err := r.GetTransport("traci")
	assert.NoError(t, err)
	_, err = r.GetTransport("carla")
	assert.Error(t, err)

	_, err = r.GetConverter("json")
	assert.Error(t, err)
	assert.Empty(t, r.ListConverters())
}

func TestContractsPerKind(t *testing.T) {
	for _, kind := range types.EntityKinds {
		sub, ok := SubscribeContract(kind)
		assert.True(t, ok, "subscribe contract for %s", kind)
		unsub, ok := UnsubscribeContract(kind)
		assert.True(t, ok, "unsubscribe contract for %s", kind)
		assert.NotEqual(t, sub, unsub)
	}
	_, ok := SubscribeContract(types.KindWildcard)
	assert.False(t, ok)
}

func TestContracts(t *testing.T) {
	contracts := Contracts()
	assert.Len(t, contracts, 19)
	assert.IsIncreasing(t, contracts)
	assert.Contains(t, contracts, SimulationStep)
	assert.Contains(t, contracts, PersonGetTypeID)
}
