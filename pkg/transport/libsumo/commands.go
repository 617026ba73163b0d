package libsumo

import (
	"context"
	"fmt"

	"github.com/kalifun/tracilink/errors"
	"github.com/kalifun/tracilink/pkg/core"
	"github.com/kalifun/tracilink/pkg/protocol"
	"github.com/kalifun/tracilink/pkg/types"
	"github.com/kalifun/tracilink/pkg/version"
	"github.com/samber/lo"
)

// Commands returns the libsumo command table. Descriptors are shared with the
// socket backend so both are gated on the same API ranges.
func (t *Transport) Commands() core.CommandTable {
	return core.CommandTable{
		VehicleSubscribe:          core.NewCommand(protocol.SubscribeDescriptor(types.KindVehicle), t.subscribe(types.KindVehicle, core.VehicleSubscribe)),
		VehicleUnsubscribe:        core.NewCommand(protocol.SubscribeDescriptor(types.KindVehicle), t.unsubscribe(types.KindVehicle, core.VehicleUnsubscribe)),
		PersonSubscribe:           core.NewCommand(protocol.SubscribeDescriptor(types.KindPerson), t.subscribe(types.KindPerson, core.PersonSubscribe)),
		PersonUnsubscribe:         core.NewCommand(protocol.SubscribeDescriptor(types.KindPerson), t.unsubscribe(types.KindPerson, core.PersonUnsubscribe)),
		InductionLoopSubscribe:    core.NewCommand(protocol.SubscribeDescriptor(types.KindInductionLoop), t.subscribe(types.KindInductionLoop, core.InductionLoopSubscribe)),
		InductionLoopUnsubscribe:  core.NewCommand(protocol.SubscribeDescriptor(types.KindInductionLoop), t.unsubscribe(types.KindInductionLoop, core.InductionLoopUnsubscribe)),
		LaneAreaSubscribe:         core.NewCommand(protocol.SubscribeDescriptor(types.KindLaneArea), t.subscribe(types.KindLaneArea, core.LaneAreaSubscribe)),
		LaneAreaUnsubscribe:       core.NewCommand(protocol.SubscribeDescriptor(types.KindLaneArea), t.unsubscribe(types.KindLaneArea, core.LaneAreaUnsubscribe)),
		TrafficLightSubscribe:     core.NewCommand(protocol.SubscribeDescriptor(types.KindTrafficLight), t.subscribe(types.KindTrafficLight, core.TrafficLightSubscribe)),
		TrafficLightUnsubscribe:   core.NewCommand(protocol.SubscribeDescriptor(types.KindTrafficLight), t.unsubscribe(types.KindTrafficLight, core.TrafficLightUnsubscribe)),
		SimulationStep:            core.NewCommand[core.StepFunc](protocol.DescSimStep, t.step),
		SimulationSetOrder:        core.NewCommand[core.SetOrderFunc](protocol.DescSetOrder, t.setOrder),
		SimulationDepartedPersons: core.NewCommand[core.IDListFunc](protocol.DescDepartedPersons, t.departedPersons),
		SimulationArrivedPersons:  core.NewCommand[core.IDListFunc](protocol.DescArrivedPersons, t.arrivedPersons),
		SimulationClose:           core.NewCommand[core.CloseFunc](protocol.DescClose, t.close),
		VehicleGetTaxiFleet:       core.NewCommand[core.TaxiFleetFunc](protocol.DescTaxiFleet, t.taxiFleet),
		VehicleDispatchTaxi:       core.NewCommand[core.DispatchTaxiFunc](protocol.DescDispatchTaxi, t.dispatchTaxi),
		PersonGetTaxiReservations: core.NewCommand[core.TaxiReservationsFunc](protocol.DescTaxiReservations, t.taxiReservations),
		PersonGetTypeID:           core.NewCommand[core.TypeIDFunc](protocol.DescPersonTypeID, t.personTypeID),
	}
}

func (t *Transport) subscribe(kind types.EntityKind, contract core.Contract) core.SubscribeFunc {
	return func(ctx context.Context, nativeID string, window types.Window) error {
		return t.invoke(ctx, contract, func() error {
			// the socket backend rejects unknown IDs at subscribe time
			if err := t.probe(kind, nativeID); err != nil {
				return err
			}
			if t.windows[kind] == nil {
				t.windows[kind] = make(map[string]types.Window)
			}
			t.windows[kind][nativeID] = window
			return nil
		})
	}
}

func (t *Transport) unsubscribe(kind types.EntityKind, contract core.Contract) core.UnsubscribeFunc {
	return func(ctx context.Context, nativeID string) error {
		return t.invoke(ctx, contract, func() error {
			delete(t.windows[kind], nativeID)
			return nil
		})
	}
}

func (t *Transport) probe(kind types.EntityKind, id string) error {
	var err error
	switch kind {
	case types.KindVehicle:
		_, err = t.lib.Vehicle().GetSpeed(id)
	case types.KindPerson:
		_, err = t.lib.Person().GetSpeed(id)
	case types.KindInductionLoop:
		_, err = t.lib.InductionLoop().GetLastStepMeanSpeed(id)
	case types.KindLaneArea:
		_, err = t.lib.LaneArea().GetLength(id)
	case types.KindTrafficLight:
		_, err = t.lib.TrafficLight().GetPhase(id)
	default:
		err = fmt.Errorf("unknown entity kind %q", kind)
	}
	return err
}

func (t *Transport) step(ctx context.Context, targetTime float64, subscribed core.SubscriptionSnapshot) (*types.StepResult, error) {
	res := &types.StepResult{ArrivedIDs: make(map[types.EntityKind][]string)}
	err := t.invoke(ctx, core.SimulationStep, func() error {
		sim := t.lib.Simulation()
		if err := sim.Step(targetTime); err != nil {
			return err
		}
		now, err := sim.GetTime()
		if err != nil {
			return err
		}
		res.Time = now

		if res.ArrivedIDs[types.KindVehicle], err = sim.GetArrivedIDList(); err != nil {
			return err
		}
		if version.IsAvailable(protocol.DescArrivedPersons, t.api) {
			if res.ArrivedIDs[types.KindPerson], err = sim.GetArrivedPersonIDList(); err != nil {
				return err
			}
		}
		// arrived entities never come back under the same subscription
		for kind, ids := range res.ArrivedIDs {
			for _, id := range ids {
				delete(t.windows[kind], id)
			}
		}

		for _, kind := range types.EntityKinds {
			vars := protocol.SubscriptionVars(kind, t.config.Extras, t.api)
			for _, id := range subscribed[kind] {
				w, ok := t.windows[kind][id]
				if !ok || !inWindow(w, now) {
					continue
				}
				r, err := protocol.BuildResult(kind, id, t.collect(kind, id, vars))
				if err != nil {
					return errors.ProtocolDesync.Wrap(err, "libsumo result assembly")
				}
				if r != nil {
					res.Results = append(res.Results, r)
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func inWindow(w types.Window, now float64) bool {
	begin, end := w.Bounds()
	return begin <= now && now <= end
}

// collect reads every subscribed variable. A getter error is reported as a
// failed variable, the way the simulator reports it inside a subscription.
func (t *Transport) collect(kind types.EntityKind, id string, vars []protocol.SubscriptionVar) []protocol.VariableResult {
	out := make([]protocol.VariableResult, 0, len(vars))
	for _, sv := range vars {
		v, err := t.read(kind, id, sv)
		if err != nil {
			out = append(out, protocol.VariableResult{Var: sv.Var, Status: protocol.StatusErr, Value: protocol.Str(err.Error())})
			continue
		}
		out = append(out, protocol.VariableResult{Var: sv.Var, Status: protocol.StatusOK, Value: v})
	}
	return out
}

func (t *Transport) read(kind types.EntityKind, id string, sv protocol.SubscriptionVar) (protocol.Value, error) {
	switch kind {
	case types.KindVehicle:
		return readVehicle(t.lib.Vehicle(), id, sv)
	case types.KindPerson:
		return readPerson(t.lib.Person(), id, sv.Var)
	case types.KindInductionLoop:
		return readInductionLoop(t.lib.InductionLoop(), id, sv.Var)
	case types.KindLaneArea:
		return readLaneArea(t.lib.LaneArea(), id, sv.Var)
	case types.KindTrafficLight:
		return readTrafficLight(t.lib.TrafficLight(), id, sv.Var)
	}
	return nil, fmt.Errorf("unknown entity kind %q", kind)
}

func (t *Transport) setOrder(ctx context.Context, order int) error {
	// a single in-process client has nothing to order against
	return t.invoke(ctx, core.SimulationSetOrder, func() error { return nil })
}

func (t *Transport) departedPersons(ctx context.Context) ([]string, error) {
	var ids []string
	err := t.invoke(ctx, core.SimulationGetDepartedPersons, func() (err error) {
		ids, err = t.lib.Simulation().GetDepartedPersonIDList()
		return err
	})
	return nonNil(ids), err
}

func (t *Transport) arrivedPersons(ctx context.Context) ([]string, error) {
	var ids []string
	err := t.invoke(ctx, core.SimulationGetArrivedPersons, func() (err error) {
		ids, err = t.lib.Simulation().GetArrivedPersonIDList()
		return err
	})
	return nonNil(ids), err
}

func (t *Transport) close(ctx context.Context) error {
	err := t.invoke(ctx, core.SimulationClose, func() error {
		return t.lib.Simulation().Close()
	})
	if err == nil {
		t.mu.Lock()
		t.closed = true
		t.mu.Unlock()
	}
	return err
}

func (t *Transport) taxiFleet(ctx context.Context, filter types.TaxiFleetFilter) ([]string, error) {
	var ids []string
	err := t.invoke(ctx, core.VehicleGetTaxiFleet, func() (err error) {
		ids, err = t.lib.Vehicle().GetTaxiFleet(int(filter))
		return err
	})
	return nonNil(ids), err
}

func (t *Transport) dispatchTaxi(ctx context.Context, vehicleID string, reservationIDs []string) error {
	return t.invoke(ctx, core.VehicleDispatchTaxi, func() error {
		return t.lib.Vehicle().DispatchTaxi(vehicleID, reservationIDs)
	})
}

func (t *Transport) taxiReservations(ctx context.Context, state types.ReservationState) ([]types.TaxiReservation, error) {
	var out []types.TaxiReservation
	err := t.invoke(ctx, core.PersonGetTaxiReservations, func() error {
		rs, err := t.lib.Person().GetTaxiReservations(int(state))
		if err != nil {
			return err
		}
		out = lo.Map(rs, func(r Reservation, _ int) types.TaxiReservation { return r.toTypes() })
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (t *Transport) personTypeID(ctx context.Context, personID string) (string, error) {
	var typeID string
	err := t.invoke(ctx, core.PersonGetTypeID, func() (err error) {
		typeID, err = t.lib.Person().GetTypeID(personID)
		return err
	})
	return typeID, err
}

func nonNil(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}
