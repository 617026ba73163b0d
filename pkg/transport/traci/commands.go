package traci

import (
	"context"
	"fmt"

	"github.com/kalifun/tracilink/pkg/core"
	"github.com/kalifun/tracilink/pkg/protocol"
	"github.com/kalifun/tracilink/pkg/types"
)

// Commands returns the socket command table.
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
		SimulationDepartedPersons: core.NewCommand[core.IDListFunc](protocol.DescDepartedPersons, t.personList(core.SimulationGetDepartedPersons, protocol.VarDepartedPersonIDs)),
		SimulationArrivedPersons:  core.NewCommand[core.IDListFunc](protocol.DescArrivedPersons, t.personList(core.SimulationGetArrivedPersons, protocol.VarArrivedPersonIDs)),
		SimulationClose:           core.NewCommand[core.CloseFunc](protocol.DescClose, t.close),
		VehicleGetTaxiFleet:       core.NewCommand[core.TaxiFleetFunc](protocol.DescTaxiFleet, t.taxiFleet),
		VehicleDispatchTaxi:       core.NewCommand[core.DispatchTaxiFunc](protocol.DescDispatchTaxi, t.dispatchTaxi),
		PersonGetTaxiReservations: core.NewCommand[core.TaxiReservationsFunc](protocol.DescTaxiReservations, t.taxiReservations),
		PersonGetTypeID:           core.NewCommand[core.TypeIDFunc](protocol.DescPersonTypeID, t.personTypeID),
	}
}

func (t *Transport) subscribe(kind types.EntityKind, contract core.Contract) core.SubscribeFunc {
	cmd, respCmd, _ := protocol.SubscribeCommand(kind)
	return func(ctx context.Context, nativeID string, window types.Window) error {
		return t.invoke(contract, func() error {
			begin, end := window.Bounds()
			vars := protocol.SubscriptionVars(kind, t.config.Extras, t.api)
			resp, err := t.exchange(ctx, string(contract), protocol.NewSubscribeRequest(cmd, begin, end, nativeID, vars))
			if err != nil {
				return err
			}
			// the immediate values are dropped; the next step reports them again
			if _, err := resp.Subscription(respCmd); err != nil {
				return t.desync(contract, err)
			}
			return nil
		})
	}
}

func (t *Transport) unsubscribe(kind types.EntityKind, contract core.Contract) core.UnsubscribeFunc {
	cmd, respCmd, _ := protocol.SubscribeCommand(kind)
	return func(ctx context.Context, nativeID string) error {
		return t.invoke(contract, func() error {
			begin, end := types.WholeRun().Bounds()
			resp, err := t.exchange(ctx, string(contract), protocol.NewSubscribeRequest(cmd, begin, end, nativeID, nil))
			if err != nil {
				return err
			}
			if _, err := resp.Subscription(respCmd); err != nil {
				return t.desync(contract, err)
			}
			return nil
		})
	}
}

func (t *Transport) step(ctx context.Context, targetTime float64, subscribed core.SubscriptionSnapshot) (*types.StepResult, error) {
	res := &types.StepResult{Time: targetTime, ArrivedIDs: make(map[types.EntityKind][]string)}
	err := t.invoke(core.SimulationStep, func() error {
		resp, err := t.exchange(ctx, string(core.SimulationStep), protocol.NewRequest(protocol.CmdSimStep).Double(targetTime))
		if err != nil {
			return err
		}
		responses, err := resp.StepResponses()
		if err != nil {
			return t.desync(core.SimulationStep, err)
		}

		for _, sr := range responses {
			if sr.Response == protocol.RespSubscribeSimulation {
				if err := t.readSimulation(sr, res); err != nil {
					return t.desync(core.SimulationStep, err)
				}
				continue
			}
			kind, ok := protocol.KindOfResponse(sr.Response)
			if !ok {
				return t.desync(core.SimulationStep, fmt.Errorf("unexpected subscription response 0x%02x", sr.Response))
			}
			if !subscribed.Contains(kind, sr.ObjectID) {
				continue
			}
			r, err := protocol.BuildResult(kind, sr.ObjectID, sr.Variables)
			if err != nil {
				return t.desync(core.SimulationStep, err)
			}
			if r != nil {
				res.Results = append(res.Results, r)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (t *Transport) readSimulation(sr *protocol.SubscriptionResponse, res *types.StepResult) error {
	for _, vr := range sr.Variables {
		if !vr.OK() {
			continue
		}
		switch vr.Var {
		case protocol.VarTime:
			now, err := protocol.AsDouble(vr.Value)
			if err != nil {
				return err
			}
			res.Time = now
		case protocol.VarArrivedVehicleIDs:
			ids, err := protocol.AsStringList(vr.Value)
			if err != nil {
				return err
			}
			res.ArrivedIDs[types.KindVehicle] = ids
		case protocol.VarArrivedPersonIDs:
			ids, err := protocol.AsStringList(vr.Value)
			if err != nil {
				return err
			}
			res.ArrivedIDs[types.KindPerson] = ids
		}
	}
	return nil
}

func (t *Transport) setOrder(ctx context.Context, order int) error {
	return t.invoke(core.SimulationSetOrder, func() error {
		_, err := t.exchange(ctx, string(core.SimulationSetOrder), protocol.NewRequest(protocol.CmdSetOrder).Int(int32(order)))
		return err
	})
}

func (t *Transport) personList(contract core.Contract, variable byte) core.IDListFunc {
	return func(ctx context.Context) ([]string, error) {
		var ids []string
		err := t.invoke(contract, func() error {
			v, err := t.get(ctx, contract, protocol.NewRequest(protocol.CmdGetSimulationVariable).Variable(variable).ID(""), protocol.RespGetSimulationVariable)
			if err != nil {
				return err
			}
			if ids, err = protocol.AsStringList(v); err != nil {
				return t.desync(contract, err)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
		return ids, nil
	}
}

// get runs a value retrieval and returns the single value of its response.
func (t *Transport) get(ctx context.Context, contract core.Contract, q *protocol.Request, respCmd byte) (protocol.Value, error) {
	resp, err := t.exchange(ctx, string(contract), q)
	if err != nil {
		return nil, err
	}
	variable := q.Content()[0]
	_, v, err := resp.Variable(respCmd, variable)
	if err != nil {
		return nil, t.desync(contract, err)
	}
	return v, nil
}

func (t *Transport) close(ctx context.Context) error {
	return t.invoke(core.SimulationClose, func() error {
		if _, err := t.exchange(ctx, string(core.SimulationClose), protocol.NewRequest(protocol.CmdClose)); err != nil {
			return err
		}
		t.closed = true
		_ = t.conn.Close()
		t.logger.Info("Simulation closed")
		return nil
	})
}

func (t *Transport) taxiFleet(ctx context.Context, filter types.TaxiFleetFilter) ([]string, error) {
	var ids []string
	err := t.invoke(core.VehicleGetTaxiFleet, func() error {
		q := protocol.NewRequest(protocol.CmdGetVehicleVariable).Variable(protocol.VarTaxiFleet).ID("").Param(protocol.Int(filter))
		v, err := t.get(ctx, core.VehicleGetTaxiFleet, q, protocol.RespGetVehicleVariable)
		if err != nil {
			return err
		}
		if ids, err = protocol.AsStringList(v); err != nil {
			return t.desync(core.VehicleGetTaxiFleet, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (t *Transport) dispatchTaxi(ctx context.Context, vehicleID string, reservationIDs []string) error {
	return t.invoke(core.VehicleDispatchTaxi, func() error {
		q := protocol.NewRequest(protocol.CmdSetVehicleVariable).Variable(protocol.VarTaxiDispatch).ID(vehicleID).Param(protocol.StringList(reservationIDs))
		_, err := t.exchange(ctx, string(core.VehicleDispatchTaxi), q)
		return err
	})
}

func (t *Transport) taxiReservations(ctx context.Context, state types.ReservationState) ([]types.TaxiReservation, error) {
	var out []types.TaxiReservation
	err := t.invoke(core.PersonGetTaxiReservations, func() error {
		q := protocol.NewRequest(protocol.CmdGetPersonVariable).Variable(protocol.VarTaxiReservations).ID("").Param(protocol.Int(state))
		v, err := t.get(ctx, core.PersonGetTaxiReservations, q, protocol.RespGetPersonVariable)
		if err != nil {
			return err
		}
		if out, err = protocol.DecodeReservations(v); err != nil {
			return t.desync(core.PersonGetTaxiReservations, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (t *Transport) personTypeID(ctx context.Context, personID string) (string, error) {
	var typeID string
	err := t.invoke(core.PersonGetTypeID, func() error {
		q := protocol.NewRequest(protocol.CmdGetPersonVariable).Variable(protocol.VarTypeID).ID(personID)
		v, err := t.get(ctx, core.PersonGetTypeID, q, protocol.RespGetPersonVariable)
		if err != nil {
			return err
		}
		if typeID, err = protocol.AsString(v); err != nil {
			return t.desync(core.PersonGetTypeID, err)
		}
		return nil
	})
	return typeID, err
}
