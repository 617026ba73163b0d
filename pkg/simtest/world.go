// Package simtest provides a scripted SUMO stand-in for tests. One World
// backs both a TraCI server speaking the wire protocol and an in-process
// Library, so the two backends can be run against identical state.
package simtest

import (
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/kalifun/tracilink/pkg/protocol"
	"github.com/kalifun/tracilink/pkg/types"
)

// Release is the SUMO release the fakes report.
const (
	Release  = "1.23.1"
	APILevel = 22
)

type Vehicle struct {
	ID                  string
	X, Y, Z             float64
	Speed               float64
	Angle               float64
	Slope               float64
	Acceleration        float64
	MinGap              float64
	Distance            float64
	RouteID             string
	RoadID              string
	LaneIndex           int
	LanePosition        float64
	LateralLanePosition float64
	StopState           int
	Signals             int
	Emissions           types.Emissions
	LeaderID            string
	LeaderGap           float64
	Taxi                bool
	TaxiState           types.TaxiFleetState
	// OffNetwork vehicles report SUMO's invalid position.
	OffNetwork bool
}

type Person struct {
	ID       string
	X, Y, Z  float64
	Speed    float64
	Angle    float64
	TypeID   string
	Departed bool
}

type InductionLoop struct {
	ID         string
	MeanSpeed  float64
	MeanLength float64
	Vehicles   []types.DetectedVehicle
}

type LaneArea struct {
	ID         string
	Length     float64
	MeanSpeed  float64
	Halting    int
	VehicleIDs []string
}

type TrafficLight struct {
	ID         string
	Program    string
	Phase      int
	NextSwitch float64
	State      string
}

// World is the mutable scenario state. All exported methods are safe for
// concurrent use; fields must only be set before the world is served.
type World struct {
	mu         sync.Mutex
	time       float64
	stepLength float64

	vehicles     map[string]*Vehicle
	persons      map[string]*Person
	loops        map[string]*InductionLoop
	laneAreas    map[string]*LaneArea
	lights       map[string]*TrafficLight
	reservations []*types.TaxiReservation

	events map[int64][]func(w *World)

	arrivedVehicles []string
	arrivedPersons  []string
	departedPersons []string
	closed          bool
}

// NewWorld creates an empty world advancing stepLength seconds per step.
func NewWorld(stepLength float64) *World {
	if stepLength <= 0 {
		stepLength = 1
	}
	return &World{
		stepLength: stepLength,
		vehicles:   make(map[string]*Vehicle),
		persons:    make(map[string]*Person),
		loops:      make(map[string]*InductionLoop),
		laneAreas:  make(map[string]*LaneArea),
		lights:     make(map[string]*TrafficLight),
		events:     make(map[int64][]func(w *World)),
	}
}

func timeKey(t float64) int64 {
	return int64(math.Round(t * 1000))
}

func (w *World) AddVehicle(v Vehicle) *World {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.vehicles[v.ID] = &v
	return w
}

func (w *World) AddPerson(p Person) *World {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.persons[p.ID] = &p
	return w
}

func (w *World) AddInductionLoop(l InductionLoop) *World {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.loops[l.ID] = &l
	return w
}

func (w *World) AddLaneArea(l LaneArea) *World {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.laneAreas[l.ID] = &l
	return w
}

func (w *World) AddTrafficLight(l TrafficLight) *World {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.lights[l.ID] = &l
	return w
}

func (w *World) AddReservation(r types.TaxiReservation) *World {
	w.mu.Lock()
	defer w.mu.Unlock()
	if r.State == types.ReservationAny {
		r.State = types.ReservationNew
	}
	w.reservations = append(w.reservations, &r)
	return w
}

// At schedules fn to run at the end of the step reaching time t. Events run
// with the world locked and use the unexported mutators below through the
// passed world.
func (w *World) At(t float64, fn func(w *World)) *World {
	w.mu.Lock()
	defer w.mu.Unlock()
	k := timeKey(t)
	w.events[k] = append(w.events[k], fn)
	return w
}

// Vehicle returns a copy of a vehicle's current state.
func (w *World) Vehicle(id string) (Vehicle, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	v, ok := w.vehicles[id]
	if !ok {
		return Vehicle{}, false
	}
	return *v, true
}

// Reservation returns a copy of a reservation.
func (w *World) Reservation(id string) (types.TaxiReservation, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, r := range w.reservations {
		if r.ID == id {
			return *r, true
		}
	}
	return types.TaxiReservation{}, false
}

func (w *World) Time() float64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.time
}

func (w *World) Closed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closed
}

// Mutators for use inside At events, where the world is already locked.

// Move updates a vehicle in place.
func (w *World) Move(id string, fn func(v *Vehicle)) {
	if v, ok := w.vehicles[id]; ok {
		fn(v)
	}
}

// Arrive removes a vehicle and reports it as arrived in this step.
func (w *World) Arrive(id string) {
	if _, ok := w.vehicles[id]; ok {
		delete(w.vehicles, id)
		w.arrivedVehicles = append(w.arrivedVehicles, id)
	}
}

// Depart lets a person enter the network.
func (w *World) Depart(id string, x, y float64) {
	if p, ok := w.persons[id]; ok && !p.Departed {
		p.Departed, p.X, p.Y = true, x, y
		w.departedPersons = append(w.departedPersons, id)
	}
}

// ArrivePerson removes a person and reports it as arrived in this step.
func (w *World) ArrivePerson(id string) {
	if _, ok := w.persons[id]; ok {
		delete(w.persons, id)
		w.arrivedPersons = append(w.arrivedPersons, id)
	}
}

// step advances until targetTime, at least one step. Vehicles move along
// their heading by speed times step length.
func (w *World) step(targetTime float64) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return fmt.Errorf("simulation is closed")
	}
	w.arrivedVehicles, w.arrivedPersons, w.departedPersons = nil, nil, nil
	for {
		w.time = float64(timeKey(w.time+w.stepLength)) / 1000
		for _, id := range sortedKeys(w.vehicles) {
			v := w.vehicles[id]
			rad := (90 - v.Angle) * math.Pi / 180
			dx := v.Speed * w.stepLength
			v.X += dx * math.Cos(rad)
			v.Y += dx * math.Sin(rad)
			v.Distance += dx
			v.LanePosition += dx
		}
		for _, fn := range w.events[timeKey(w.time)] {
			fn(w)
		}
		if w.time >= targetTime-1e-9 {
			return nil
		}
	}
}

func (w *World) close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
}

func sortedKeys[T any](m map[string]T) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Unknown-ID errors carry the simulator's wording so both fakes report the
// same text.

func unknownVehicle(id string) error { return fmt.Errorf("Vehicle '%s' is not known", id) }

func unknownPerson(id string) error { return fmt.Errorf("Person '%s' is not known", id) }

func unknownLoop(id string) error { return fmt.Errorf("Induction loop '%s' is not known", id) }

func unknownLaneArea(id string) error { return fmt.Errorf("Lane area detector '%s' is not known", id) }

func unknownLight(id string) error { return fmt.Errorf("Traffic light '%s' is not known", id) }

// exists reports whether an entity can be subscribed.
func (w *World) exists(kind types.EntityKind, id string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.existsLocked(kind, id)
}

func (w *World) existsLocked(kind types.EntityKind, id string) error {
	var ok bool
	switch kind {
	case types.KindVehicle:
		if _, ok = w.vehicles[id]; !ok {
			return unknownVehicle(id)
		}
	case types.KindPerson:
		if _, ok = w.persons[id]; !ok {
			return unknownPerson(id)
		}
	case types.KindInductionLoop:
		if _, ok = w.loops[id]; !ok {
			return unknownLoop(id)
		}
	case types.KindLaneArea:
		if _, ok = w.laneAreas[id]; !ok {
			return unknownLaneArea(id)
		}
	case types.KindTrafficLight:
		if _, ok = w.lights[id]; !ok {
			return unknownLight(id)
		}
	default:
		return fmt.Errorf("unknown domain %q", kind)
	}
	return nil
}

func (w *World) vehicle(id string) (*Vehicle, error) {
	v, ok := w.vehicles[id]
	if !ok {
		return nil, unknownVehicle(id)
	}
	return v, nil
}

func (w *World) person(id string) (*Person, error) {
	p, ok := w.persons[id]
	if !ok {
		return nil, unknownPerson(id)
	}
	return p, nil
}

func (w *World) taxiFleet(flag int) ([]string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if flag < int(types.FleetAll) || flag > int(types.FleetOccupiedAndPickup) {
		return nil, fmt.Errorf("Invalid taxi fleet flag %d", flag)
	}
	ids := []string{}
	for _, id := range sortedKeys(w.vehicles) {
		v := w.vehicles[id]
		if v.Taxi && (flag == int(types.FleetAll) || int(v.TaxiState) == flag) {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (w *World) dispatchTaxi(id string, reservationIDs []string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	v, err := w.vehicle(id)
	if err != nil {
		return err
	}
	if !v.Taxi {
		return fmt.Errorf("Vehicle '%s' is not a taxi", id)
	}
	if len(reservationIDs) == 0 {
		return fmt.Errorf("No reservations given to dispatch vehicle '%s'", id)
	}
	var picked []*types.TaxiReservation
	for _, rid := range reservationIDs {
		var found *types.TaxiReservation
		for _, r := range w.reservations {
			if r.ID == rid {
				found = r
			}
		}
		if found == nil {
			return fmt.Errorf("Reservation id '%s' is not known", rid)
		}
		if found.State.Has(types.ReservationAssigned) || found.State.Has(types.ReservationPickedUp) {
			return fmt.Errorf("Reservation id '%s' is already assigned", rid)
		}
		picked = append(picked, found)
	}
	for _, r := range picked {
		r.State = types.ReservationAssigned
	}
	if v.TaxiState == types.TaxiOccupied {
		v.TaxiState = types.TaxiOccupiedAndPickup
	} else if v.TaxiState == types.TaxiEmpty {
		v.TaxiState = types.TaxiPickup
	}
	return nil
}

// taxiReservations returns reservations matching any bit of the filter, or
// all of them for filter 0. New reservations become retrieved once reported.
func (w *World) taxiReservations(filter int) ([]types.TaxiReservation, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	state := types.ReservationState(filter)
	if !state.Valid() {
		return nil, fmt.Errorf("Invalid reservation state filter %d", filter)
	}
	out := []types.TaxiReservation{}
	for _, r := range w.reservations {
		if state != types.ReservationAny && r.State&state == 0 {
			continue
		}
		c := *r
		c.PersonIDs = append([]string{}, r.PersonIDs...)
		out = append(out, c)
		if r.State == types.ReservationNew {
			r.State = types.ReservationRetrieved
		}
	}
	return out, nil
}

func (w *World) personTypeID(id string) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	p, err := w.person(id)
	if err != nil {
		return "", err
	}
	return p.TypeID, nil
}

func (w *World) stepLists() (arrivedVehicles, arrivedPersons, departedPersons []string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string{}, w.arrivedVehicles...),
		append([]string{}, w.arrivedPersons...),
		append([]string{}, w.departedPersons...)
}

// value reads one subscription variable with the tag SUMO sends it with.
func (w *World) value(kind types.EntityKind, id string, sv protocol.SubscriptionVar) (protocol.Value, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	switch kind {
	case types.KindVehicle:
		v, err := w.vehicle(id)
		if err != nil {
			return nil, err
		}
		return vehicleValue(v, sv)
	case types.KindPerson:
		p, err := w.person(id)
		if err != nil {
			return nil, err
		}
		return personValue(p, sv.Var)
	case types.KindInductionLoop:
		l, ok := w.loops[id]
		if !ok {
			return nil, unknownLoop(id)
		}
		switch sv.Var {
		case protocol.VarLastStepMeanSpeed:
			return protocol.Double(l.MeanSpeed), nil
		case protocol.VarLastStepMeanLength:
			return protocol.Double(l.MeanLength), nil
		case protocol.VarLastStepVehicleData:
			return protocol.VehicleDataValue(l.Vehicles), nil
		}
	case types.KindLaneArea:
		l, ok := w.laneAreas[id]
		if !ok {
			return nil, unknownLaneArea(id)
		}
		switch sv.Var {
		case protocol.VarLastStepVehicleNumber:
			return protocol.Int(len(l.VehicleIDs)), nil
		case protocol.VarLastStepMeanSpeed:
			return protocol.Double(l.MeanSpeed), nil
		case protocol.VarLastStepHaltingNumber:
			return protocol.Int(l.Halting), nil
		case protocol.VarLength:
			return protocol.Double(l.Length), nil
		case protocol.VarLastStepVehicleIDList:
			return protocol.StringList(append([]string{}, l.VehicleIDs...)), nil
		}
	case types.KindTrafficLight:
		l, ok := w.lights[id]
		if !ok {
			return nil, unknownLight(id)
		}
		switch sv.Var {
		case protocol.VarTLCurrentProgram:
			return protocol.Str(l.Program), nil
		case protocol.VarTLCurrentPhase:
			return protocol.Int(l.Phase), nil
		case protocol.VarTLNextSwitch:
			return protocol.Double(l.NextSwitch), nil
		case protocol.VarTLRedYellowGreenState:
			return protocol.Str(l.State), nil
		}
	}
	return nil, fmt.Errorf("Variable 0x%02x is not supported for %s", sv.Var, kind)
}

func vehicleValue(v *Vehicle, sv protocol.SubscriptionVar) (protocol.Value, error) {
	switch sv.Var {
	case protocol.VarPosition3D:
		if v.OffNetwork {
			return protocol.Position3D{X: protocol.InvalidDouble, Y: protocol.InvalidDouble, Z: protocol.InvalidDouble}, nil
		}
		return protocol.Position3D{X: v.X, Y: v.Y, Z: v.Z}, nil
	case protocol.VarSpeed:
		return protocol.Double(v.Speed), nil
	case protocol.VarDistance:
		return protocol.Double(v.Distance), nil
	case protocol.VarAngle:
		return protocol.Double(v.Angle), nil
	case protocol.VarSlope:
		return protocol.Double(v.Slope), nil
	case protocol.VarAcceleration:
		return protocol.Double(v.Acceleration), nil
	case protocol.VarMinGap:
		return protocol.Double(v.MinGap), nil
	case protocol.VarStopState:
		return protocol.Ubyte(v.StopState), nil
	case protocol.VarRouteID:
		return protocol.Str(v.RouteID), nil
	case protocol.VarRoadID:
		return protocol.Str(v.RoadID), nil
	case protocol.VarLanePosition:
		return protocol.Double(v.LanePosition), nil
	case protocol.VarLanePositionLat:
		return protocol.Double(v.LateralLanePosition), nil
	case protocol.VarLaneIndex:
		return protocol.Int(v.LaneIndex), nil
	case protocol.VarSignals:
		return protocol.Int(v.Signals), nil
	case protocol.VarCO2Emission:
		return protocol.Double(v.Emissions.CO2), nil
	case protocol.VarCOEmission:
		return protocol.Double(v.Emissions.CO), nil
	case protocol.VarHCEmission:
		return protocol.Double(v.Emissions.HC), nil
	case protocol.VarPMxEmission:
		return protocol.Double(v.Emissions.PMx), nil
	case protocol.VarNOxEmission:
		return protocol.Double(v.Emissions.NOx), nil
	case protocol.VarFuelConsumption:
		return protocol.Double(v.Emissions.Fuel), nil
	case protocol.VarLeader:
		if v.LeaderID == "" {
			return protocol.LeaderValue("", -1), nil
		}
		return protocol.LeaderValue(v.LeaderID, v.LeaderGap), nil
	case protocol.VarParameter:
		key, err := protocol.AsString(sv.Param)
		if err != nil {
			return nil, err
		}
		if key != protocol.TaxiStateParameter || !v.Taxi {
			return protocol.Str(""), nil
		}
		return protocol.Str(fmt.Sprintf("%d", int(v.TaxiState))), nil
	}
	return nil, fmt.Errorf("Variable 0x%02x is not supported for vehicle", sv.Var)
}

func personValue(p *Person, v byte) (protocol.Value, error) {
	switch v {
	case protocol.VarPosition3D:
		if !p.Departed {
			return protocol.Position3D{X: protocol.InvalidDouble, Y: protocol.InvalidDouble, Z: protocol.InvalidDouble}, nil
		}
		return protocol.Position3D{X: p.X, Y: p.Y, Z: p.Z}, nil
	case protocol.VarSpeed:
		return protocol.Double(p.Speed), nil
	case protocol.VarAngle:
		return protocol.Double(p.Angle), nil
	}
	return nil, fmt.Errorf("Variable 0x%02x is not supported for person", v)
}
