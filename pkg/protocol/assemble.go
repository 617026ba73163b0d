package protocol

import (
	"fmt"

	"github.com/kalifun/tracilink/pkg/types"
)

// BuildResult assembles the typed result of one subscribed entity from its
// variables. A nil result with a nil error means the entity is skipped for
// this step, which happens for vehicles that are not on the network.
// Variables with a non-OK status are treated as absent.
func BuildResult(kind types.EntityKind, objectID string, vars []VariableResult) (types.SubscriptionResult, error) {
	var (
		res types.SubscriptionResult
		err error
	)
	switch kind {
	case types.KindVehicle:
		res, err = buildVehicle(objectID, vars)
	case types.KindPerson:
		res, err = buildPerson(objectID, vars)
	case types.KindInductionLoop:
		res, err = buildInductionLoop(objectID, vars)
	case types.KindLaneArea:
		res, err = buildLaneArea(objectID, vars)
	case types.KindTrafficLight:
		res, err = buildTrafficLight(objectID, vars)
	default:
		return nil, fmt.Errorf("no result type for kind %q", kind)
	}
	if err != nil {
		return nil, &DesyncError{Stage: fmt.Sprintf("%s %q", kind, objectID), Err: err}
	}
	return res, nil
}

func double(dst *float64, v Value) error {
	d, err := AsDouble(v)
	*dst = d
	return err
}

func integer(dst *int, v Value) error {
	n, err := AsInt(v)
	*dst = int(n)
	return err
}

func str(dst *string, v Value) error {
	s, err := AsString(v)
	*dst = s
	return err
}

func buildVehicle(id string, vars []VariableResult) (types.SubscriptionResult, error) {
	r := &types.VehicleResult{ID: id}
	var (
		emissions  types.Emissions
		hasEmis    bool
		positioned bool
	)
	for _, v := range vars {
		if !v.OK() {
			continue
		}
		var err error
		switch v.Var {
		case VarPosition3D:
			var p Position3D
			if p, err = AsPosition3D(v.Value); err != nil {
				break
			}
			pos, onNetwork := types.NetworkPosition(p.X, p.Y, p.Z)
			if !onNetwork {
				return nil, nil
			}
			r.Position = pos
			positioned = true
		case VarSpeed:
			err = double(&r.Speed, v.Value)
		case VarAngle:
			err = double(&r.Heading, v.Value)
		case VarSlope:
			err = double(&r.Slope, v.Value)
		case VarAcceleration:
			err = double(&r.Acceleration, v.Value)
		case VarMinGap:
			err = double(&r.MinGap, v.Value)
		case VarDistance:
			err = double(&r.Distance, v.Value)
		case VarRouteID:
			err = str(&r.RouteID, v.Value)
		case VarRoadID:
			err = str(&r.EdgeID, v.Value)
		case VarLaneIndex:
			err = integer(&r.LaneIndex, v.Value)
		case VarLanePosition:
			err = double(&r.LanePosition, v.Value)
		case VarLanePositionLat:
			err = double(&r.LateralLanePosition, v.Value)
		case VarStopState:
			err = integer(&r.StopState, v.Value)
		case VarSignals:
			var n int
			if err = integer(&n, v.Value); err == nil {
				s := types.VehicleSignals(n)
				r.Signals = &s
			}
		case VarCO2Emission:
			err, hasEmis = double(&emissions.CO2, v.Value), true
		case VarCOEmission:
			err, hasEmis = double(&emissions.CO, v.Value), true
		case VarHCEmission:
			err, hasEmis = double(&emissions.HC, v.Value), true
		case VarPMxEmission:
			err, hasEmis = double(&emissions.PMx, v.Value), true
		case VarNOxEmission:
			err, hasEmis = double(&emissions.NOx, v.Value), true
		case VarFuelConsumption:
			err, hasEmis = double(&emissions.Fuel, v.Value), true
		case VarLeader:
			r.Leader, err = DecodeLeader(v.Value)
		case VarParameter:
			var s string
			if err = str(&s, v.Value); err == nil {
				r.TaxiState = types.ParseTaxiState(s)
			}
		}
		if err != nil {
			return nil, fmt.Errorf("variable 0x%02x: %w", v.Var, err)
		}
	}
	// without a position the vehicle left the network between subscribe and step
	if !positioned {
		return nil, nil
	}
	if hasEmis {
		r.Emissions = &emissions
	}
	return r, nil
}

func buildPerson(id string, vars []VariableResult) (types.SubscriptionResult, error) {
	r := &types.PersonResult{ID: id}
	for _, v := range vars {
		if !v.OK() {
			continue
		}
		var err error
		switch v.Var {
		case VarPosition3D:
			var p Position3D
			if p, err = AsPosition3D(v.Value); err == nil {
				if pos, onNetwork := types.NetworkPosition(p.X, p.Y, p.Z); onNetwork {
					r.Position = &pos
				}
			}
		case VarSpeed:
			err = double(&r.Speed, v.Value)
		case VarAngle:
			err = double(&r.Heading, v.Value)
		}
		if err != nil {
			return nil, fmt.Errorf("variable 0x%02x: %w", v.Var, err)
		}
	}
	return r, nil
}

func buildInductionLoop(id string, vars []VariableResult) (types.SubscriptionResult, error) {
	r := &types.InductionLoopResult{ID: id, Vehicles: []types.DetectedVehicle{}}
	for _, v := range vars {
		if !v.OK() {
			continue
		}
		var err error
		switch v.Var {
		case VarLastStepMeanSpeed:
			err = double(&r.MeanSpeed, v.Value)
		case VarLastStepMeanLength:
			err = double(&r.MeanVehicleLength, v.Value)
		case VarLastStepVehicleData:
			r.Vehicles, err = DecodeVehicleData(v.Value)
		}
		if err != nil {
			return nil, fmt.Errorf("variable 0x%02x: %w", v.Var, err)
		}
	}
	return r, nil
}

func buildLaneArea(id string, vars []VariableResult) (types.SubscriptionResult, error) {
	r := &types.LaneAreaResult{ID: id, Vehicles: []string{}}
	for _, v := range vars {
		if !v.OK() {
			continue
		}
		var err error
		switch v.Var {
		case VarLastStepVehicleNumber:
			err = integer(&r.VehicleCount, v.Value)
		case VarLastStepMeanSpeed:
			err = double(&r.MeanSpeed, v.Value)
		case VarLastStepHaltingNumber:
			err = integer(&r.HaltingVehicles, v.Value)
		case VarLength:
			err = double(&r.Length, v.Value)
		case VarLastStepVehicleIDList:
			var ids []string
			if ids, err = AsStringList(v.Value); err == nil {
				r.Vehicles = append([]string{}, ids...)
			}
		}
		if err != nil {
			return nil, fmt.Errorf("variable 0x%02x: %w", v.Var, err)
		}
	}
	return r, nil
}

func buildTrafficLight(id string, vars []VariableResult) (types.SubscriptionResult, error) {
	r := &types.TrafficLightResult{ID: id}
	for _, v := range vars {
		if !v.OK() {
			continue
		}
		var err error
		switch v.Var {
		case VarTLCurrentProgram:
			err = str(&r.ProgramID, v.Value)
		case VarTLCurrentPhase:
			err = integer(&r.Phase, v.Value)
		case VarTLNextSwitch:
			err = double(&r.NextSwitch, v.Value)
		case VarTLRedYellowGreenState:
			err = str(&r.State, v.Value)
		}
		if err != nil {
			return nil, fmt.Errorf("variable 0x%02x: %w", v.Var, err)
		}
	}
	return r, nil
}

// DecodeLeader reads the (id, distance) leader compound.
func DecodeLeader(v Value) (*types.Leader, error) {
	c, err := AsCompound(v)
	if err != nil {
		return nil, err
	}
	if len(c) != 2 {
		return nil, fmt.Errorf("leader compound has %d items", len(c))
	}
	id, err := AsString(c[0])
	if err != nil {
		return nil, err
	}
	dist, err := AsDouble(c[1])
	if err != nil {
		return nil, err
	}
	return types.NewLeader(id, dist), nil
}

// LeaderValue encodes a leader the way SUMO reports it.
func LeaderValue(id string, distance float64) Compound {
	return Compound{Str(id), Double(distance)}
}

// DecodeVehicleData reads an induction loop's last step vehicle data: a
// count followed by five values per vehicle.
func DecodeVehicleData(v Value) ([]types.DetectedVehicle, error) {
	c, err := AsCompound(v)
	if err != nil {
		return nil, err
	}
	if len(c) == 0 {
		return nil, fmt.Errorf("empty vehicle data")
	}
	n, err := AsInt(c[0])
	if err != nil {
		return nil, err
	}
	if n < 0 || len(c) != 1+5*int(n) {
		return nil, fmt.Errorf("vehicle data announces %d vehicles in %d items", n, len(c))
	}
	data := make([]types.DetectedVehicle, n)
	for i := range data {
		item := c[1+5*i:]
		d := &data[i]
		if err := str(&d.VehicleID, item[0]); err != nil {
			return nil, err
		}
		if err := double(&d.Length, item[1]); err != nil {
			return nil, err
		}
		if err := double(&d.EntryTime, item[2]); err != nil {
			return nil, err
		}
		if err := double(&d.LeaveTime, item[3]); err != nil {
			return nil, err
		}
		if err := str(&d.TypeID, item[4]); err != nil {
			return nil, err
		}
	}
	return data, nil
}

// VehicleDataValue encodes induction loop vehicle data.
func VehicleDataValue(data []types.DetectedVehicle) Compound {
	c := make(Compound, 0, 1+5*len(data))
	c = append(c, Int(len(data)))
	for _, d := range data {
		c = append(c, Str(d.VehicleID), Double(d.Length), Double(d.EntryTime), Double(d.LeaveTime), Str(d.TypeID))
	}
	return c
}

const reservationItems = 10

// DecodeReservations reads the reply of a taxi reservation query: a compound
// holding one ten item compound per reservation.
func DecodeReservations(v Value) ([]types.TaxiReservation, error) {
	outer, err := AsCompound(v)
	if err != nil {
		return nil, err
	}
	out := make([]types.TaxiReservation, 0, len(outer))
	for i, item := range outer {
		c, err := AsCompound(item)
		if err != nil {
			return nil, fmt.Errorf("reservation %d: %w", i, err)
		}
		if len(c) != reservationItems {
			return nil, fmt.Errorf("reservation %d has %d items", i, len(c))
		}
		var (
			r       types.TaxiReservation
			persons []string
			state   int
		)
		if err = str(&r.ID, c[0]); err == nil {
			persons, err = AsStringList(c[1])
		}
		for _, step := range []func() error{
			func() error { return str(&r.Group, c[2]) },
			func() error { return str(&r.FromEdge, c[3]) },
			func() error { return str(&r.ToEdge, c[4]) },
			func() error { return double(&r.DepartPos, c[5]) },
			func() error { return double(&r.ArrivalPos, c[6]) },
			func() error { return double(&r.Depart, c[7]) },
			func() error { return double(&r.ReservationTime, c[8]) },
			func() error { return integer(&state, c[9]) },
		} {
			if err != nil {
				break
			}
			err = step()
		}
		if err != nil {
			return nil, fmt.Errorf("reservation %d: %w", i, err)
		}
		r.PersonIDs = append([]string{}, persons...)
		r.State = types.ReservationState(state)
		out = append(out, r)
	}
	return out, nil
}

// ReservationsValue encodes reservations the way SUMO reports them.
func ReservationsValue(rs []types.TaxiReservation) Compound {
	out := make(Compound, 0, len(rs))
	for _, r := range rs {
		out = append(out, Compound{
			Str(r.ID),
			StringList(append([]string{}, r.PersonIDs...)),
			Str(r.Group),
			Str(r.FromEdge),
			Str(r.ToEdge),
			Double(r.DepartPos),
			Double(r.ArrivalPos),
			Double(r.Depart),
			Double(r.ReservationTime),
			Int(r.State),
		})
	}
	return out
}
