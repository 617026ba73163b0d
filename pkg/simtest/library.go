package simtest

import (
	"fmt"
	"sync"

	"github.com/kalifun/tracilink/pkg/protocol"
	"github.com/kalifun/tracilink/pkg/transport/libsumo"
	"github.com/kalifun/tracilink/pkg/types"
)

// Library is an in-process libsumo stand-in reading from a World.
type Library struct {
	world *World

	mu       sync.Mutex
	release  string
	apiLevel int
	panicOn  map[string]bool
	loadArgs []string
}

var _ libsumo.Library = (*Library)(nil)

func NewLibrary(w *World) *Library {
	return &Library{world: w, release: Release, apiLevel: APILevel, panicOn: make(map[string]bool)}
}

// WithVersion changes the reported release and API level.
func (l *Library) WithVersion(release string, apiLevel int) *Library {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.release, l.apiLevel = release, apiLevel
	return l
}

// PanicOn makes the named call panic, as a crashing native library would.
func (l *Library) PanicOn(call string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.panicOn[call] = true
}

// LoadArgs returns the arguments of the last Load call.
func (l *Library) LoadArgs() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.loadArgs
}

func (l *Library) enter(call string) {
	l.mu.Lock()
	crash := l.panicOn[call]
	l.mu.Unlock()
	if crash {
		panic(fmt.Sprintf("SIGSEGV in %s", call))
	}
}

func (l *Library) Simulation() libsumo.SimulationAPI       { return simulationAPI{l} }
func (l *Library) Vehicle() libsumo.VehicleAPI             { return vehicleAPI{l} }
func (l *Library) Person() libsumo.PersonAPI               { return personAPI{l} }
func (l *Library) InductionLoop() libsumo.InductionLoopAPI { return loopAPI{l} }
func (l *Library) LaneArea() libsumo.LaneAreaAPI           { return laneAreaAPI{l} }
func (l *Library) TrafficLight() libsumo.TrafficLightAPI   { return lightAPI{l} }

// Getters go through World.value so both fakes read identical state.

func (l *Library) value(call string, kind types.EntityKind, id string, sv protocol.SubscriptionVar) (protocol.Value, error) {
	l.enter(call)
	return l.world.value(kind, id, sv)
}

func (l *Library) double(call string, kind types.EntityKind, id string, v byte) (float64, error) {
	val, err := l.value(call, kind, id, protocol.SubscriptionVar{Var: v})
	if err != nil {
		return 0, err
	}
	return protocol.AsDouble(val)
}

func (l *Library) integer(call string, kind types.EntityKind, id string, v byte) (int, error) {
	val, err := l.value(call, kind, id, protocol.SubscriptionVar{Var: v})
	if err != nil {
		return 0, err
	}
	n, err := protocol.AsInt(val)
	return int(n), err
}

func (l *Library) str(call string, kind types.EntityKind, id string, v byte) (string, error) {
	val, err := l.value(call, kind, id, protocol.SubscriptionVar{Var: v})
	if err != nil {
		return "", err
	}
	return protocol.AsString(val)
}

func (l *Library) position(call string, kind types.EntityKind, id string) (float64, float64, float64, error) {
	val, err := l.value(call, kind, id, protocol.SubscriptionVar{Var: protocol.VarPosition3D})
	if err != nil {
		return 0, 0, 0, err
	}
	p, err := protocol.AsPosition3D(val)
	return p.X, p.Y, p.Z, err
}

type simulationAPI struct{ l *Library }

func (a simulationAPI) Load(args []string) error {
	a.l.enter("simulation.load")
	a.l.mu.Lock()
	defer a.l.mu.Unlock()
	a.l.loadArgs = append([]string{}, args...)
	return nil
}

func (a simulationAPI) GetVersion() (int, string, error) {
	a.l.enter("simulation.getVersion")
	a.l.mu.Lock()
	defer a.l.mu.Unlock()
	return a.l.apiLevel, a.l.release, nil
}

func (a simulationAPI) Step(targetTime float64) error {
	a.l.enter("simulation.step")
	return a.l.world.step(targetTime)
}

func (a simulationAPI) GetTime() (float64, error) {
	return a.l.world.Time(), nil
}

func (a simulationAPI) GetArrivedIDList() ([]string, error) {
	arrived, _, _ := a.l.world.stepLists()
	return arrived, nil
}

func (a simulationAPI) GetDepartedPersonIDList() ([]string, error) {
	_, _, departed := a.l.world.stepLists()
	return departed, nil
}

func (a simulationAPI) GetArrivedPersonIDList() ([]string, error) {
	_, arrived, _ := a.l.world.stepLists()
	return arrived, nil
}

func (a simulationAPI) Close() error {
	a.l.enter("simulation.close")
	a.l.world.close()
	return nil
}

type vehicleAPI struct{ l *Library }

const veh = types.KindVehicle

func (a vehicleAPI) GetPosition3D(id string) (float64, float64, float64, error) {
	return a.l.position("vehicle.getPosition3D", veh, id)
}

func (a vehicleAPI) GetSpeed(id string) (float64, error) {
	return a.l.double("vehicle.getSpeed", veh, id, protocol.VarSpeed)
}

func (a vehicleAPI) GetAngle(id string) (float64, error) {
	return a.l.double("vehicle.getAngle", veh, id, protocol.VarAngle)
}

func (a vehicleAPI) GetSlope(id string) (float64, error) {
	return a.l.double("vehicle.getSlope", veh, id, protocol.VarSlope)
}

func (a vehicleAPI) GetAcceleration(id string) (float64, error) {
	return a.l.double("vehicle.getAcceleration", veh, id, protocol.VarAcceleration)
}

func (a vehicleAPI) GetMinGap(id string) (float64, error) {
	return a.l.double("vehicle.getMinGap", veh, id, protocol.VarMinGap)
}

func (a vehicleAPI) GetDistance(id string) (float64, error) {
	return a.l.double("vehicle.getDistance", veh, id, protocol.VarDistance)
}

func (a vehicleAPI) GetRouteID(id string) (string, error) {
	return a.l.str("vehicle.getRouteID", veh, id, protocol.VarRouteID)
}

func (a vehicleAPI) GetRoadID(id string) (string, error) {
	return a.l.str("vehicle.getRoadID", veh, id, protocol.VarRoadID)
}

func (a vehicleAPI) GetLaneIndex(id string) (int, error) {
	return a.l.integer("vehicle.getLaneIndex", veh, id, protocol.VarLaneIndex)
}

func (a vehicleAPI) GetLanePosition(id string) (float64, error) {
	return a.l.double("vehicle.getLanePosition", veh, id, protocol.VarLanePosition)
}

func (a vehicleAPI) GetLateralLanePosition(id string) (float64, error) {
	return a.l.double("vehicle.getLateralLanePosition", veh, id, protocol.VarLanePositionLat)
}

func (a vehicleAPI) GetStopState(id string) (int, error) {
	return a.l.integer("vehicle.getStopState", veh, id, protocol.VarStopState)
}

func (a vehicleAPI) GetSignals(id string) (int, error) {
	return a.l.integer("vehicle.getSignals", veh, id, protocol.VarSignals)
}

func (a vehicleAPI) GetCO2Emission(id string) (float64, error) {
	return a.l.double("vehicle.getCO2Emission", veh, id, protocol.VarCO2Emission)
}

func (a vehicleAPI) GetCOEmission(id string) (float64, error) {
	return a.l.double("vehicle.getCOEmission", veh, id, protocol.VarCOEmission)
}

func (a vehicleAPI) GetHCEmission(id string) (float64, error) {
	return a.l.double("vehicle.getHCEmission", veh, id, protocol.VarHCEmission)
}

func (a vehicleAPI) GetPMxEmission(id string) (float64, error) {
	return a.l.double("vehicle.getPMxEmission", veh, id, protocol.VarPMxEmission)
}

func (a vehicleAPI) GetNOxEmission(id string) (float64, error) {
	return a.l.double("vehicle.getNOxEmission", veh, id, protocol.VarNOxEmission)
}

func (a vehicleAPI) GetFuelConsumption(id string) (float64, error) {
	return a.l.double("vehicle.getFuelConsumption", veh, id, protocol.VarFuelConsumption)
}

func (a vehicleAPI) GetLeader(id string, distance float64) (string, float64, error) {
	val, err := a.l.value("vehicle.getLeader", veh, id, protocol.SubscriptionVar{Var: protocol.VarLeader, Param: protocol.Double(distance)})
	if err != nil {
		return "", 0, err
	}
	c, err := protocol.AsCompound(val)
	if err != nil {
		return "", 0, err
	}
	leader, _ := protocol.AsString(c[0])
	gap, _ := protocol.AsDouble(c[1])
	return leader, gap, nil
}

func (a vehicleAPI) GetParameter(id, key string) (string, error) {
	val, err := a.l.value("vehicle.getParameter", veh, id, protocol.SubscriptionVar{Var: protocol.VarParameter, Param: protocol.Str(key)})
	if err != nil {
		return "", err
	}
	return protocol.AsString(val)
}

func (a vehicleAPI) GetTaxiFleet(flag int) ([]string, error) {
	a.l.enter("vehicle.getTaxiFleet")
	return a.l.world.taxiFleet(flag)
}

func (a vehicleAPI) DispatchTaxi(id string, reservationIDs []string) error {
	a.l.enter("vehicle.dispatchTaxi")
	return a.l.world.dispatchTaxi(id, reservationIDs)
}

type personAPI struct{ l *Library }

func (a personAPI) GetPosition3D(id string) (float64, float64, float64, error) {
	return a.l.position("person.getPosition3D", types.KindPerson, id)
}

func (a personAPI) GetSpeed(id string) (float64, error) {
	return a.l.double("person.getSpeed", types.KindPerson, id, protocol.VarSpeed)
}

func (a personAPI) GetAngle(id string) (float64, error) {
	return a.l.double("person.getAngle", types.KindPerson, id, protocol.VarAngle)
}

func (a personAPI) GetTypeID(id string) (string, error) {
	a.l.enter("person.getTypeID")
	return a.l.world.personTypeID(id)
}

func (a personAPI) GetTaxiReservations(onlyNew int) ([]libsumo.Reservation, error) {
	a.l.enter("person.getTaxiReservations")
	rs, err := a.l.world.taxiReservations(onlyNew)
	if err != nil {
		return nil, err
	}
	out := make([]libsumo.Reservation, 0, len(rs))
	for _, r := range rs {
		out = append(out, libsumo.Reservation{
			ID:              r.ID,
			Persons:         r.PersonIDs,
			Group:           r.Group,
			FromEdge:        r.FromEdge,
			ToEdge:          r.ToEdge,
			DepartPos:       r.DepartPos,
			ArrivalPos:      r.ArrivalPos,
			Depart:          r.Depart,
			ReservationTime: r.ReservationTime,
			State:           int(r.State),
		})
	}
	return out, nil
}

type loopAPI struct{ l *Library }

func (a loopAPI) GetLastStepMeanSpeed(id string) (float64, error) {
	return a.l.double("inductionloop.getLastStepMeanSpeed", types.KindInductionLoop, id, protocol.VarLastStepMeanSpeed)
}

func (a loopAPI) GetLastStepMeanLength(id string) (float64, error) {
	return a.l.double("inductionloop.getLastStepMeanLength", types.KindInductionLoop, id, protocol.VarLastStepMeanLength)
}

func (a loopAPI) GetVehicleData(id string) ([]libsumo.VehicleData, error) {
	val, err := a.l.value("inductionloop.getVehicleData", types.KindInductionLoop, id, protocol.SubscriptionVar{Var: protocol.VarLastStepVehicleData})
	if err != nil {
		return nil, err
	}
	data, err := protocol.DecodeVehicleData(val)
	if err != nil {
		return nil, err
	}
	out := make([]libsumo.VehicleData, 0, len(data))
	for _, d := range data {
		out = append(out, libsumo.VehicleData{ID: d.VehicleID, Length: d.Length, EntryTime: d.EntryTime, LeaveTime: d.LeaveTime, TypeID: d.TypeID})
	}
	return out, nil
}

type laneAreaAPI struct{ l *Library }

func (a laneAreaAPI) GetLastStepVehicleNumber(id string) (int, error) {
	return a.l.integer("lanearea.getLastStepVehicleNumber", types.KindLaneArea, id, protocol.VarLastStepVehicleNumber)
}

func (a laneAreaAPI) GetLastStepMeanSpeed(id string) (float64, error) {
	return a.l.double("lanearea.getLastStepMeanSpeed", types.KindLaneArea, id, protocol.VarLastStepMeanSpeed)
}

func (a laneAreaAPI) GetLastStepHaltingNumber(id string) (int, error) {
	return a.l.integer("lanearea.getLastStepHaltingNumber", types.KindLaneArea, id, protocol.VarLastStepHaltingNumber)
}

func (a laneAreaAPI) GetLength(id string) (float64, error) {
	return a.l.double("lanearea.getLength", types.KindLaneArea, id, protocol.VarLength)
}

func (a laneAreaAPI) GetLastStepVehicleIDs(id string) ([]string, error) {
	val, err := a.l.value("lanearea.getLastStepVehicleIDs", types.KindLaneArea, id, protocol.SubscriptionVar{Var: protocol.VarLastStepVehicleIDList})
	if err != nil {
		return nil, err
	}
	return protocol.AsStringList(val)
}

type lightAPI struct{ l *Library }

func (a lightAPI) GetProgram(id string) (string, error) {
	return a.l.str("trafficlight.getProgram", types.KindTrafficLight, id, protocol.VarTLCurrentProgram)
}

func (a lightAPI) GetPhase(id string) (int, error) {
	return a.l.integer("trafficlight.getPhase", types.KindTrafficLight, id, protocol.VarTLCurrentPhase)
}

func (a lightAPI) GetNextSwitch(id string) (float64, error) {
	return a.l.double("trafficlight.getNextSwitch", types.KindTrafficLight, id, protocol.VarTLNextSwitch)
}

func (a lightAPI) GetRedYellowGreenState(id string) (string, error) {
	return a.l.str("trafficlight.getRedYellowGreenState", types.KindTrafficLight, id, protocol.VarTLRedYellowGreenState)
}
