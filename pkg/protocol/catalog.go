package protocol

import (
	"github.com/kalifun/tracilink/pkg/types"
	"github.com/kalifun/tracilink/pkg/version"
)

// Command descriptors shared by both backends. The in-process backend has no
// wire opcodes but gates its calls on the same API ranges.
var (
	DescGetVersion       = version.Command(CmdGetVersion)
	DescSimStep          = version.Command(CmdSimStep)
	DescSetOrder         = version.Command(CmdSetOrder).WithSince(version.API19)
	DescClose            = version.Command(CmdClose)
	DescTaxiFleet        = version.Variable(CmdGetVehicleVariable, VarTaxiFleet).WithSince(version.API20)
	DescDispatchTaxi     = version.Variable(CmdSetVehicleVariable, VarTaxiDispatch).WithSince(version.API20)
	DescTaxiReservations = version.Variable(CmdGetPersonVariable, VarTaxiReservations).WithSince(version.API20)
	DescPersonTypeID     = version.Variable(CmdGetPersonVariable, VarTypeID)
	DescDepartedPersons  = version.Variable(CmdGetSimulationVariable, VarDepartedPersonIDs).WithSince(version.API20)
	DescArrivedPersons   = version.Variable(CmdGetSimulationVariable, VarArrivedPersonIDs).WithSince(version.API20)
	DescSimulationTime   = version.Variable(CmdGetSimulationVariable, VarTime)
)

// SubscribeCommand returns the subscribe opcode and its response opcode for a kind.
func SubscribeCommand(kind types.EntityKind) (cmd, resp byte, ok bool) {
	switch kind {
	case types.KindVehicle:
		return CmdSubscribeVehicleVariable, RespSubscribeVehicle, true
	case types.KindPerson:
		return CmdSubscribePersonVariable, RespSubscribePerson, true
	case types.KindInductionLoop:
		return CmdSubscribeInductionLoopVariable, RespSubscribeInductionLoop, true
	case types.KindLaneArea:
		return CmdSubscribeLaneAreaVariable, RespSubscribeLaneArea, true
	case types.KindTrafficLight:
		return CmdSubscribeTrafficLightVariable, RespSubscribeTrafficLight, true
	default:
		return 0, 0, false
	}
}

// KindOfResponse maps a subscription response opcode back to its kind.
func KindOfResponse(resp byte) (types.EntityKind, bool) {
	for _, kind := range types.EntityKinds {
		if _, r, _ := SubscribeCommand(kind); r == resp {
			return kind, true
		}
	}
	return "", false
}

// SubscribeDescriptor returns the descriptor of a kind's subscribe command.
func SubscribeDescriptor(kind types.EntityKind) version.Descriptor {
	cmd, _, _ := SubscribeCommand(kind)
	return version.Command(cmd)
}

// SubscriptionVar is one subscribed variable with its optional parameter.
type SubscriptionVar struct {
	Var   byte
	Param Value
	Desc  version.Descriptor
}

func subVar(cmd, v byte) SubscriptionVar {
	return SubscriptionVar{Var: v, Desc: version.Variable(cmd, v)}
}

func (s SubscriptionVar) since(v version.APIVersion) SubscriptionVar {
	s.Desc = s.Desc.WithSince(v)
	return s
}

func (s SubscriptionVar) with(param Value) SubscriptionVar {
	s.Param = param
	return s
}

// SubscriptionVars returns the variables subscribed for a kind, dropping the
// ones the negotiated version does not know.
func SubscriptionVars(kind types.EntityKind, extras types.VehicleExtras, current version.APIVersion) []SubscriptionVar {
	var all []SubscriptionVar
	switch kind {
	case types.KindVehicle:
		all = vehicleVars(extras)
	case types.KindPerson:
		c := CmdSubscribePersonVariable
		all = []SubscriptionVar{subVar(c, VarPosition3D), subVar(c, VarSpeed), subVar(c, VarAngle)}
	case types.KindInductionLoop:
		c := CmdSubscribeInductionLoopVariable
		all = []SubscriptionVar{subVar(c, VarLastStepMeanSpeed), subVar(c, VarLastStepMeanLength), subVar(c, VarLastStepVehicleData)}
	case types.KindLaneArea:
		c := CmdSubscribeLaneAreaVariable
		all = []SubscriptionVar{
			subVar(c, VarLastStepVehicleNumber),
			subVar(c, VarLastStepMeanSpeed),
			subVar(c, VarLastStepHaltingNumber),
			subVar(c, VarLength),
			subVar(c, VarLastStepVehicleIDList),
		}
	case types.KindTrafficLight:
		c := CmdSubscribeTrafficLightVariable
		all = []SubscriptionVar{
			subVar(c, VarTLCurrentProgram),
			subVar(c, VarTLCurrentPhase),
			subVar(c, VarTLNextSwitch),
			subVar(c, VarTLRedYellowGreenState),
		}
	}

	vars := make([]SubscriptionVar, 0, len(all))
	for _, sv := range all {
		if version.IsAvailable(sv.Desc, current) {
			vars = append(vars, sv)
		}
	}
	return vars
}

func vehicleVars(extras types.VehicleExtras) []SubscriptionVar {
	c := CmdSubscribeVehicleVariable
	vars := []SubscriptionVar{
		subVar(c, VarPosition3D),
		subVar(c, VarSpeed),
		subVar(c, VarDistance),
		subVar(c, VarAngle),
		subVar(c, VarSlope),
		subVar(c, VarAcceleration),
		subVar(c, VarMinGap),
		subVar(c, VarStopState),
		subVar(c, VarRouteID),
		subVar(c, VarRoadID),
		subVar(c, VarLanePosition),
		subVar(c, VarLanePositionLat).since(version.API19),
		subVar(c, VarLaneIndex),
	}
	if extras.Signals {
		vars = append(vars, subVar(c, VarSignals))
	}
	if extras.Emissions {
		vars = append(vars,
			subVar(c, VarCO2Emission),
			subVar(c, VarCOEmission),
			subVar(c, VarHCEmission),
			subVar(c, VarPMxEmission),
			subVar(c, VarNOxEmission),
			subVar(c, VarFuelConsumption),
		)
	}
	// parameterized subscriptions need API 20
	if extras.Leader {
		vars = append(vars, subVar(c, VarLeader).since(version.API20).with(Double(extras.Lookahead())))
	}
	if extras.Taxi {
		vars = append(vars, subVar(c, VarParameter).since(version.API20).with(Str(TaxiStateParameter)))
	}
	return vars
}

// ArrivalVars are the simulation variables subscribed once at startup to learn
// which entities left the simulation during a step.
var ArrivalVars = []SubscriptionVar{
	subVar(CmdSubscribeSimulationVariable, VarArrivedVehicleIDs),
	subVar(CmdSubscribeSimulationVariable, VarArrivedPersonIDs).since(version.API20),
}
