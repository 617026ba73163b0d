package bridge

import (
	"context"
	"fmt"

	"github.com/kalifun/tracilink/errors"
	"github.com/kalifun/tracilink/pkg/core"
	"github.com/kalifun/tracilink/pkg/types"
	"github.com/sirupsen/logrus"
)

// VehicleFacade exposes the vehicle commands in canonical IDs.
type VehicleFacade struct {
	b *Bridge
}

// Subscribe includes the vehicle in every step result from now on.
// Subscribing a member again is a no-op.
func (f *VehicleFacade) Subscribe(ctx context.Context, id string, window types.Window) error {
	return f.b.subscribe(ctx, types.KindVehicle, id, window)
}

// Unsubscribe removes the vehicle. Unsubscribing a non-member is a no-op.
func (f *VehicleFacade) Unsubscribe(ctx context.Context, id string) error {
	return f.b.unsubscribe(ctx, types.KindVehicle, id)
}

// GetTaxiFleet returns the canonical IDs of the taxis matching filter. Taxis
// seen for the first time get a fresh canonical ID.
func (f *VehicleFacade) GetTaxiFleet(ctx context.Context, filter types.TaxiFleetFilter) ([]string, error) {
	if !filter.Valid() {
		return nil, wrap(string(core.VehicleGetTaxiFleet), errors.InvalidArgument.Args(fmt.Sprintf("taxi fleet filter %d", filter)))
	}

	var fleet []string
	err := invoke(f.b, core.VehicleGetTaxiFleet, func(run core.TaxiFleetFunc) error {
		native, err := run(ctx, filter)
		if err != nil {
			return err
		}
		fleet = make([]string, 0, len(native))
		for _, id := range native {
			canonical, err := f.b.vehicles.FromNative(id)
			if err != nil {
				return errors.IdentifierConflict.Wrap(err, id)
			}
			fleet = append(fleet, canonical)
		}
		return nil
	})
	if err != nil {
		return nil, wrap(string(core.VehicleGetTaxiFleet), err)
	}
	return fleet, nil
}

// DispatchTaxi assigns the reservations to the taxi. SUMO acknowledges the
// command only; the new taxi state shows up in later step results.
func (f *VehicleFacade) DispatchTaxi(ctx context.Context, id string, reservationIDs []string) error {
	op := string(core.VehicleDispatchTaxi)
	if id == "" {
		return wrap(op, errors.InvalidArgument.Args("empty vehicle id"))
	}
	if len(reservationIDs) == 0 {
		return wrap(op, errors.InvalidArgument.Args("no reservations to dispatch"))
	}
	native, err := f.b.vehicles.ToNative(id)
	if err != nil {
		return wrap(op, errors.IdentifierConflict.Wrap(err, id))
	}

	err = invoke(f.b, core.VehicleDispatchTaxi, func(run core.DispatchTaxiFunc) error {
		return run(ctx, native, reservationIDs)
	})
	if err != nil {
		return wrap(op, err)
	}
	f.b.logger.WithFields(logrus.Fields{
		"vehicle_id":   id,
		"reservations": reservationIDs,
	}).Debug("Taxi dispatched")
	return nil
}

// PersonFacade exposes the person commands in canonical IDs.
type PersonFacade struct {
	b *Bridge
}

func (f *PersonFacade) Subscribe(ctx context.Context, id string, window types.Window) error {
	return f.b.subscribe(ctx, types.KindPerson, id, window)
}

func (f *PersonFacade) Unsubscribe(ctx context.Context, id string) error {
	return f.b.unsubscribe(ctx, types.KindPerson, id)
}

// GetTaxiReservations returns the reservations whose state matches the OR of
// the requested state bits, or all of them for types.ReservationAny.
func (f *PersonFacade) GetTaxiReservations(ctx context.Context, state types.ReservationState) ([]types.TaxiReservation, error) {
	op := string(core.PersonGetTaxiReservations)
	if !state.Valid() {
		return nil, wrap(op, errors.InvalidArgument.Args(fmt.Sprintf("reservation state %d", state)))
	}

	var reservations []types.TaxiReservation
	err := invoke(f.b, core.PersonGetTaxiReservations, func(run core.TaxiReservationsFunc) error {
		native, err := run(ctx, state)
		if err != nil {
			return err
		}
		for i := range native {
			for j, id := range native[i].PersonIDs {
				canonical, err := f.b.persons.FromNative(id)
				if err != nil {
					return errors.IdentifierConflict.Wrap(err, id)
				}
				native[i].PersonIDs[j] = canonical
			}
		}
		reservations = native
		return nil
	})
	if err != nil {
		return nil, wrap(op, err)
	}
	if reservations == nil {
		reservations = []types.TaxiReservation{}
	}
	return reservations, nil
}

// GetTypeID returns the vehicle type of the person.
func (f *PersonFacade) GetTypeID(ctx context.Context, id string) (string, error) {
	op := string(core.PersonGetTypeID)
	native, err := f.b.persons.ToNative(id)
	if err != nil {
		return "", wrap(op, errors.IdentifierConflict.Wrap(err, id))
	}

	var typeID string
	err = invoke(f.b, core.PersonGetTypeID, func(run core.TypeIDFunc) error {
		t, err := run(ctx, native)
		typeID = t
		return err
	})
	if err != nil {
		return "", wrap(op, err)
	}
	return typeID, nil
}

// Departed returns the persons that entered the simulation in the last step.
func (f *PersonFacade) Departed(ctx context.Context) ([]string, error) {
	return f.list(ctx, core.SimulationGetDepartedPersons)
}

// Arrived returns the persons that left the simulation in the last step.
func (f *PersonFacade) Arrived(ctx context.Context) ([]string, error) {
	return f.list(ctx, core.SimulationGetArrivedPersons)
}

func (f *PersonFacade) list(ctx context.Context, contract core.Contract) ([]string, error) {
	ids := []string{}
	err := invoke(f.b, contract, func(run core.IDListFunc) error {
		native, err := run(ctx)
		if err != nil {
			return err
		}
		for _, id := range native {
			canonical, err := f.b.persons.FromNative(id)
			if err != nil {
				return errors.IdentifierConflict.Wrap(err, id)
			}
			ids = append(ids, canonical)
		}
		return nil
	})
	if err != nil {
		return nil, wrap(string(contract), err)
	}
	return ids, nil
}

// SimulationFacade exposes stepping, detectors and traffic lights. Detector
// and traffic light IDs are native IDs.
type SimulationFacade struct {
	b *Bridge
}

func (f *SimulationFacade) Advance(ctx context.Context, dt float64) ([]types.SubscriptionResult, error) {
	results, err := f.b.Advance(ctx, dt)
	return results, wrap(string(core.SimulationStep), err)
}

func (f *SimulationFacade) Time() float64 {
	return f.b.Time()
}

// SetOrder sets this client's execution order among several TraCI clients.
func (f *SimulationFacade) SetOrder(ctx context.Context, order int) error {
	err := invoke(f.b, core.SimulationSetOrder, func(run core.SetOrderFunc) error {
		return run(ctx, order)
	})
	return wrap(string(core.SimulationSetOrder), err)
}

func (f *SimulationFacade) SubscribeInductionLoop(ctx context.Context, id string, window types.Window) error {
	return f.b.subscribe(ctx, types.KindInductionLoop, id, window)
}

func (f *SimulationFacade) UnsubscribeInductionLoop(ctx context.Context, id string) error {
	return f.b.unsubscribe(ctx, types.KindInductionLoop, id)
}

func (f *SimulationFacade) SubscribeLaneArea(ctx context.Context, id string, window types.Window) error {
	return f.b.subscribe(ctx, types.KindLaneArea, id, window)
}

func (f *SimulationFacade) UnsubscribeLaneArea(ctx context.Context, id string) error {
	return f.b.unsubscribe(ctx, types.KindLaneArea, id)
}

func (f *SimulationFacade) SubscribeTrafficLight(ctx context.Context, id string, window types.Window) error {
	return f.b.subscribe(ctx, types.KindTrafficLight, id, window)
}

func (f *SimulationFacade) UnsubscribeTrafficLight(ctx context.Context, id string) error {
	return f.b.unsubscribe(ctx, types.KindTrafficLight, id)
}

// Close ends the simulation. The transport stays open until Stop.
func (f *SimulationFacade) Close(ctx context.Context) error {
	b := f.b
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.usable(); err != nil {
		return wrap(string(core.SimulationClose), err)
	}
	return wrap(string(core.SimulationClose), b.closeLocked(ctx))
}

// subscribe translates id and sends the subscription unless the entity is
// already a member. A rejected subscription leaves the set unchanged.
func (b *Bridge) subscribe(ctx context.Context, kind types.EntityKind, id string, window types.Window) error {
	contract, _ := core.SubscribeContract(kind)
	op := string(contract)
	if id == "" {
		return wrap(op, errors.InvalidArgument.Args("empty "+string(kind)+" id"))
	}
	if window.End < window.Begin {
		return wrap(op, errors.InvalidArgument.Args(fmt.Sprintf("window ends at %g before it begins at %g", window.End, window.Begin)))
	}

	native := id
	if m := b.transformer(kind); m != nil {
		var err error
		if native, err = m.ToNative(id); err != nil {
			return wrap(op, errors.IdentifierConflict.Wrap(err, id))
		}
	}

	err := invoke(b, contract, func(run core.SubscribeFunc) error {
		if b.subs.Contains(kind, native) {
			return nil
		}
		if err := run(ctx, native, window); err != nil {
			return err
		}
		b.subs.Subscribe(kind, native)
		b.config.Metrics.SetSubscriptions(string(kind), b.subs.Len(kind))
		return nil
	})
	if err != nil {
		return wrap(op, err)
	}
	b.logger.WithFields(logrus.Fields{"kind": kind, "id": id}).Debug("Subscribed")
	return nil
}

func (b *Bridge) unsubscribe(ctx context.Context, kind types.EntityKind, id string) error {
	contract, _ := core.UnsubscribeContract(kind)

	native := id
	if m := b.transformer(kind); m != nil {
		var ok bool
		if native, ok = m.Native(id); !ok {
			return nil
		}
	}

	err := invoke(b, contract, func(run core.UnsubscribeFunc) error {
		if !b.subs.Contains(kind, native) {
			return nil
		}
		if err := run(ctx, native); err != nil {
			return err
		}
		b.subs.Unsubscribe(kind, native)
		b.config.Metrics.SetSubscriptions(string(kind), b.subs.Len(kind))
		return nil
	})
	return wrap(string(contract), err)
}
