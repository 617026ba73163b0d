package types

// SubscriptionResult is one decoded per-entity record of a step.
type SubscriptionResult interface {
	Kind() EntityKind
	EntityID() string
}

// Position is a network position in meters.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Emissions of the last step, in mg/s (fuel in ml/s).
type Emissions struct {
	CO2  float64 `json:"co2"`
	CO   float64 `json:"co"`
	HC   float64 `json:"hc"`
	PMx  float64 `json:"pmx"`
	NOx  float64 `json:"nox"`
	Fuel float64 `json:"fuel"`
}

// Leader is the vehicle ahead and the gap to it.
type Leader struct {
	ID       string  `json:"id"`
	Distance float64 `json:"distance"`
}

// VehicleSignals is SUMO's signal bit set.
type VehicleSignals int32

const (
	SignalBlinkerRight VehicleSignals = 1 << iota
	SignalBlinkerLeft
	SignalBlinkerEmergency
	SignalBrakeLight
	SignalFrontLight
)

// Has reports whether every bit of s2 is set.
func (s VehicleSignals) Has(s2 VehicleSignals) bool {
	return s&s2 == s2
}

// VehicleResult is the per-step state of a subscribed vehicle. Optional
// parts are nil when not requested or not reported.
type VehicleResult struct {
	ID                  string          `json:"id"`
	Position            Position        `json:"position"`
	Speed               float64         `json:"speed"`
	Heading             float64         `json:"heading"`
	Slope               float64         `json:"slope"`
	Acceleration        float64         `json:"acceleration"`
	MinGap              float64         `json:"minGap"`
	Distance            float64         `json:"distance"`
	RouteID             string          `json:"routeId"`
	EdgeID              string          `json:"edgeId"`
	LaneIndex           int             `json:"laneIndex"`
	LanePosition        float64         `json:"lanePosition"`
	LateralLanePosition float64         `json:"lateralLanePosition"`
	StopState           int             `json:"stopState"`
	Signals             *VehicleSignals `json:"signals,omitempty"`
	Emissions           *Emissions      `json:"emissions,omitempty"`
	Leader              *Leader         `json:"leader,omitempty"`
	TaxiState           *TaxiFleetState `json:"taxiState,omitempty"`
}

func (*VehicleResult) Kind() EntityKind { return KindVehicle }
func (r *VehicleResult) EntityID() string { return r.ID }

// PersonResult is the per-step state of a subscribed person. Position is nil
// while the person has not departed yet.
type PersonResult struct {
	ID       string    `json:"id"`
	Position *Position `json:"position,omitempty"`
	Speed    float64   `json:"speed"`
	Heading  float64   `json:"heading"`
}

func (*PersonResult) Kind() EntityKind { return KindPerson }
func (r *PersonResult) EntityID() string { return r.ID }

// DetectedVehicle is one vehicle seen by an induction loop in the last step.
type DetectedVehicle struct {
	VehicleID string  `json:"vehicleId"`
	Length    float64 `json:"length"`
	EntryTime float64 `json:"entryTime"`
	LeaveTime float64 `json:"leaveTime"`
	TypeID    string  `json:"typeId"`
}

type InductionLoopResult struct {
	ID                string            `json:"id"`
	MeanSpeed         float64           `json:"meanSpeed"`
	MeanVehicleLength float64           `json:"meanVehicleLength"`
	Vehicles          []DetectedVehicle `json:"vehicles"`
}

func (*InductionLoopResult) Kind() EntityKind { return KindInductionLoop }
func (r *InductionLoopResult) EntityID() string { return r.ID }

type LaneAreaResult struct {
	ID              string   `json:"id"`
	VehicleCount    int      `json:"vehicleCount"`
	MeanSpeed       float64  `json:"meanSpeed"`
	HaltingVehicles int      `json:"haltingVehicles"`
	Length          float64  `json:"length"`
	Vehicles        []string `json:"vehicles"`
}

func (*LaneAreaResult) Kind() EntityKind { return KindLaneArea }
func (r *LaneAreaResult) EntityID() string { return r.ID }

type TrafficLightResult struct {
	ID         string  `json:"id"`
	ProgramID  string  `json:"programId"`
	Phase      int     `json:"phase"`
	NextSwitch float64 `json:"nextSwitch"`
	State      string  `json:"state"`
}

func (*TrafficLightResult) Kind() EntityKind { return KindTrafficLight }
func (r *TrafficLightResult) EntityID() string { return r.ID }

// StepResult is the outcome of one simulation step as reported by a backend,
// still in native identifiers.
type StepResult struct {
	Time       float64
	Results    []SubscriptionResult
	ArrivedIDs map[EntityKind][]string
}

// offNetworkBound is below any coordinate SUMO reports for entities on the
// network; SUMO uses -2^30 as the placeholder.
const offNetworkBound = -1000

// NetworkPosition converts a raw position and reports whether it lies on the
// network. A height below the bound is reported as 0.
func NetworkPosition(x, y, z float64) (Position, bool) {
	if x < offNetworkBound && y < offNetworkBound {
		return Position{}, false
	}
	if z < offNetworkBound {
		z = 0
	}
	return Position{X: x, Y: y, Z: z}, true
}

// VehicleExtras selects the optional parts of vehicle results.
type VehicleExtras struct {
	Emissions       bool
	Leader          bool
	Signals         bool
	Taxi            bool
	LeaderLookahead float64
}

// DefaultLeaderLookahead is the distance searched for a leader, in meters.
const DefaultLeaderLookahead = 100.0

// Lookahead returns the leader search distance with the default applied.
func (e VehicleExtras) Lookahead() float64 {
	if e.LeaderLookahead <= 0 {
		return DefaultLeaderLookahead
	}
	return e.LeaderLookahead
}

// NewLeader converts SUMO's leader pair. SUMO reports an empty ID when there
// is no leader; that is returned as nil.
func NewLeader(id string, distance float64) *Leader {
	if id == "" {
		return nil
	}
	return &Leader{ID: id, Distance: distance}
}
