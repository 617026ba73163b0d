package libsumo

import "github.com/kalifun/tracilink/pkg/types"

// Library is the native call surface of an in-process SUMO. A plugin exports
// it through a NewLibrary function; tests provide their own implementation.
// Every method may return the simulator's own error for unknown IDs or
// invalid arguments.
type Library interface {
	Simulation() SimulationAPI
	Vehicle() VehicleAPI
	Person() PersonAPI
	InductionLoop() InductionLoopAPI
	LaneArea() LaneAreaAPI
	TrafficLight() TrafficLightAPI
}

type SimulationAPI interface {
	// Load starts a simulation with sumo command line arguments.
	Load(args []string) error
	// GetVersion returns the API level and the version identifier.
	GetVersion() (int, string, error)
	Step(targetTime float64) error
	GetTime() (float64, error)
	GetArrivedIDList() ([]string, error)
	GetDepartedPersonIDList() ([]string, error)
	GetArrivedPersonIDList() ([]string, error)
	Close() error
}

type VehicleAPI interface {
	GetPosition3D(id string) (x, y, z float64, err error)
	GetSpeed(id string) (float64, error)
	GetAngle(id string) (float64, error)
	GetSlope(id string) (float64, error)
	GetAcceleration(id string) (float64, error)
	GetMinGap(id string) (float64, error)
	GetDistance(id string) (float64, error)
	GetRouteID(id string) (string, error)
	GetRoadID(id string) (string, error)
	GetLaneIndex(id string) (int, error)
	GetLanePosition(id string) (float64, error)
	GetLateralLanePosition(id string) (float64, error)
	GetStopState(id string) (int, error)
	GetSignals(id string) (int, error)
	GetCO2Emission(id string) (float64, error)
	GetCOEmission(id string) (float64, error)
	GetHCEmission(id string) (float64, error)
	GetPMxEmission(id string) (float64, error)
	GetNOxEmission(id string) (float64, error)
	GetFuelConsumption(id string) (float64, error)
	// GetLeader returns ("", -1) when there is no leader within distance.
	GetLeader(id string, distance float64) (string, float64, error)
	GetParameter(id, key string) (string, error)
	GetTaxiFleet(flag int) ([]string, error)
	DispatchTaxi(id string, reservationIDs []string) error
}

type PersonAPI interface {
	GetPosition3D(id string) (x, y, z float64, err error)
	GetSpeed(id string) (float64, error)
	GetAngle(id string) (float64, error)
	GetTypeID(id string) (string, error)
	GetTaxiReservations(onlyNew int) ([]Reservation, error)
}

type InductionLoopAPI interface {
	GetLastStepMeanSpeed(id string) (float64, error)
	GetLastStepMeanLength(id string) (float64, error)
	GetVehicleData(id string) ([]VehicleData, error)
}

type LaneAreaAPI interface {
	GetLastStepVehicleNumber(id string) (int, error)
	GetLastStepMeanSpeed(id string) (float64, error)
	GetLastStepHaltingNumber(id string) (int, error)
	GetLength(id string) (float64, error)
	GetLastStepVehicleIDs(id string) ([]string, error)
}

type TrafficLightAPI interface {
	GetProgram(id string) (string, error)
	GetPhase(id string) (int, error)
	GetNextSwitch(id string) (float64, error)
	GetRedYellowGreenState(id string) (string, error)
}

// Reservation mirrors libsumo's TraCIReservation.
type Reservation struct {
	ID              string
	Persons         []string
	Group           string
	FromEdge        string
	ToEdge          string
	DepartPos       float64
	ArrivalPos      float64
	Depart          float64
	ReservationTime float64
	State           int
}

// VehicleData mirrors libsumo's TraCIVehicleData.
type VehicleData struct {
	ID        string
	Length    float64
	EntryTime float64
	LeaveTime float64
	TypeID    string
}

func (r Reservation) toTypes() types.TaxiReservation {
	return types.TaxiReservation{
		ID:              r.ID,
		State:           types.ReservationState(r.State),
		PersonIDs:       append([]string{}, r.Persons...),
		Group:           r.Group,
		FromEdge:        r.FromEdge,
		ToEdge:          r.ToEdge,
		DepartPos:       r.DepartPos,
		ArrivalPos:      r.ArrivalPos,
		Depart:          r.Depart,
		ReservationTime: r.ReservationTime,
	}
}

func (d VehicleData) toTypes() types.DetectedVehicle {
	return types.DetectedVehicle{
		VehicleID: d.ID,
		Length:    d.Length,
		EntryTime: d.EntryTime,
		LeaveTime: d.LeaveTime,
		TypeID:    d.TypeID,
	}
}
