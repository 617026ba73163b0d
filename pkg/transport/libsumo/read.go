package libsumo

import (
	"fmt"

	"github.com/kalifun/tracilink/pkg/protocol"
	"github.com/kalifun/tracilink/pkg/types"
	"github.com/samber/lo"
)

// Getter adapters converting native return values into protocol values of
// the tag the socket backend receives for the same variable.

func double(get func(string) (float64, error), id string) (protocol.Value, error) {
	v, err := get(id)
	return protocol.Double(v), err
}

func integer(get func(string) (int, error), id string) (protocol.Value, error) {
	v, err := get(id)
	return protocol.Int(v), err
}

func str(get func(string) (string, error), id string) (protocol.Value, error) {
	v, err := get(id)
	return protocol.Str(v), err
}

func position(get func(string) (float64, float64, float64, error), id string) (protocol.Value, error) {
	x, y, z, err := get(id)
	return protocol.Position3D{X: x, Y: y, Z: z}, err
}

func unknownVariable(v byte) error {
	return fmt.Errorf("variable 0x%02x is not readable in-process", v)
}

func readVehicle(api VehicleAPI, id string, sv protocol.SubscriptionVar) (protocol.Value, error) {
	switch sv.Var {
	case protocol.VarPosition3D:
		return position(api.GetPosition3D, id)
	case protocol.VarSpeed:
		return double(api.GetSpeed, id)
	case protocol.VarDistance:
		return double(api.GetDistance, id)
	case protocol.VarAngle:
		return double(api.GetAngle, id)
	case protocol.VarSlope:
		return double(api.GetSlope, id)
	case protocol.VarAcceleration:
		return double(api.GetAcceleration, id)
	case protocol.VarMinGap:
		return double(api.GetMinGap, id)
	case protocol.VarStopState:
		return integer(api.GetStopState, id)
	case protocol.VarRouteID:
		return str(api.GetRouteID, id)
	case protocol.VarRoadID:
		return str(api.GetRoadID, id)
	case protocol.VarLanePosition:
		return double(api.GetLanePosition, id)
	case protocol.VarLanePositionLat:
		return double(api.GetLateralLanePosition, id)
	case protocol.VarLaneIndex:
		return integer(api.GetLaneIndex, id)
	case protocol.VarSignals:
		return integer(api.GetSignals, id)
	case protocol.VarCO2Emission:
		return double(api.GetCO2Emission, id)
	case protocol.VarCOEmission:
		return double(api.GetCOEmission, id)
	case protocol.VarHCEmission:
		return double(api.GetHCEmission, id)
	case protocol.VarPMxEmission:
		return double(api.GetPMxEmission, id)
	case protocol.VarNOxEmission:
		return double(api.GetNOxEmission, id)
	case protocol.VarFuelConsumption:
		return double(api.GetFuelConsumption, id)
	case protocol.VarLeader:
		dist, err := protocol.AsDouble(sv.Param)
		if err != nil {
			return nil, err
		}
		leader, gap, err := api.GetLeader(id, dist)
		return protocol.LeaderValue(leader, gap), err
	case protocol.VarParameter:
		key, err := protocol.AsString(sv.Param)
		if err != nil {
			return nil, err
		}
		v, err := api.GetParameter(id, key)
		return protocol.Str(v), err
	}
	return nil, unknownVariable(sv.Var)
}

func readPerson(api PersonAPI, id string, v byte) (protocol.Value, error) {
	switch v {
	case protocol.VarPosition3D:
		return position(api.GetPosition3D, id)
	case protocol.VarSpeed:
		return double(api.GetSpeed, id)
	case protocol.VarAngle:
		return double(api.GetAngle, id)
	}
	return nil, unknownVariable(v)
}

func readInductionLoop(api InductionLoopAPI, id string, v byte) (protocol.Value, error) {
	switch v {
	case protocol.VarLastStepMeanSpeed:
		return double(api.GetLastStepMeanSpeed, id)
	case protocol.VarLastStepMeanLength:
		return double(api.GetLastStepMeanLength, id)
	case protocol.VarLastStepVehicleData:
		data, err := api.GetVehicleData(id)
		if err != nil {
			return nil, err
		}
		return protocol.VehicleDataValue(lo.Map(data, func(d VehicleData, _ int) types.DetectedVehicle {
			return d.toTypes()
		})), nil
	}
	return nil, unknownVariable(v)
}

func readLaneArea(api LaneAreaAPI, id string, v byte) (protocol.Value, error) {
	switch v {
	case protocol.VarLastStepVehicleNumber:
		return integer(api.GetLastStepVehicleNumber, id)
	case protocol.VarLastStepMeanSpeed:
		return double(api.GetLastStepMeanSpeed, id)
	case protocol.VarLastStepHaltingNumber:
		return integer(api.GetLastStepHaltingNumber, id)
	case protocol.VarLength:
		return double(api.GetLength, id)
	case protocol.VarLastStepVehicleIDList:
		ids, err := api.GetLastStepVehicleIDs(id)
		return protocol.StringList(nonNil(ids)), err
	}
	return nil, unknownVariable(v)
}

func readTrafficLight(api TrafficLightAPI, id string, v byte) (protocol.Value, error) {
	switch v {
	case protocol.VarTLCurrentProgram:
		return str(api.GetProgram, id)
	case protocol.VarTLCurrentPhase:
		return integer(api.GetPhase, id)
	case protocol.VarTLNextSwitch:
		return double(api.GetNextSwitch, id)
	case protocol.VarTLRedYellowGreenState:
		return str(api.GetRedYellowGreenState, id)
	}
	return nil, unknownVariable(v)
}
