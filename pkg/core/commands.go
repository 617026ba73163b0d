package core

import (
	"context"
	"maps"
	"slices"

	"github.com/kalifun/tracilink/pkg/types"
	"github.com/kalifun/tracilink/pkg/version"
)

// Contract names an abstract simulator operation.
type Contract string

const (
	VehicleSubscribe             Contract = "vehicle.subscribe"
	VehicleUnsubscribe           Contract = "vehicle.unsubscribe"
	PersonSubscribe              Contract = "person.subscribe"
	PersonUnsubscribe            Contract = "person.unsubscribe"
	InductionLoopSubscribe       Contract = "inductionloop.subscribe"
	InductionLoopUnsubscribe     Contract = "inductionloop.unsubscribe"
	LaneAreaSubscribe            Contract = "lanearea.subscribe"
	LaneAreaUnsubscribe          Contract = "lanearea.unsubscribe"
	TrafficLightSubscribe        Contract = "trafficlight.subscribe"
	TrafficLightUnsubscribe      Contract = "trafficlight.unsubscribe"
	SimulationStep               Contract = "simulation.step"
	SimulationSetOrder           Contract = "simulation.setOrder"
	SimulationGetDepartedPersons Contract = "simulation.getDepartedPersons"
	SimulationGetArrivedPersons  Contract = "simulation.getArrivedPersons"
	SimulationClose              Contract = "simulation.close"
	VehicleGetTaxiFleet          Contract = "vehicle.getTaxiFleet"
	VehicleDispatchTaxi          Contract = "vehicle.dispatchTaxi"
	PersonGetTaxiReservations    Contract = "person.getTaxiReservations"
	PersonGetTypeID              Contract = "person.getTypeId"
)

// Contracts returns every contract a backend table implements, sorted.
func Contracts() []Contract {
	return slices.Sorted(maps.Keys(CommandTable{}.entries()))
}

// SubscribeContract returns the subscribe contract of an entity kind.
func SubscribeContract(kind types.EntityKind) (Contract, bool) {
	c, ok := subscribeContracts[kind]
	return c, ok
}

// UnsubscribeContract returns the unsubscribe contract of an entity kind.
func UnsubscribeContract(kind types.EntityKind) (Contract, bool) {
	c, ok := unsubscribeContracts[kind]
	return c, ok
}

var subscribeContracts = map[types.EntityKind]Contract{
	types.KindVehicle:       VehicleSubscribe,
	types.KindPerson:        PersonSubscribe,
	types.KindInductionLoop: InductionLoopSubscribe,
	types.KindLaneArea:      LaneAreaSubscribe,
	types.KindTrafficLight:  TrafficLightSubscribe,
}

var unsubscribeContracts = map[types.EntityKind]Contract{
	types.KindVehicle:       VehicleUnsubscribe,
	types.KindPerson:        PersonUnsubscribe,
	types.KindInductionLoop: InductionLoopUnsubscribe,
	types.KindLaneArea:      LaneAreaUnsubscribe,
	types.KindTrafficLight:  TrafficLightUnsubscribe,
}

// Command signatures, one per shape of contract.
type (
	SubscribeFunc        func(ctx context.Context, nativeID string, window types.Window) error
	UnsubscribeFunc      func(ctx context.Context, nativeID string) error
	StepFunc             func(ctx context.Context, targetTime float64, subscribed SubscriptionSnapshot) (*types.StepResult, error)
	SetOrderFunc         func(ctx context.Context, order int) error
	TaxiFleetFunc        func(ctx context.Context, filter types.TaxiFleetFilter) ([]string, error)
	DispatchTaxiFunc     func(ctx context.Context, vehicleID string, reservationIDs []string) error
	TaxiReservationsFunc func(ctx context.Context, state types.ReservationState) ([]types.TaxiReservation, error)
	IDListFunc           func(ctx context.Context) ([]string, error)
	TypeIDFunc           func(ctx context.Context, personID string) (string, error)
	CloseFunc            func(ctx context.Context) error
)

// Command pairs an implementation with the descriptor checked against the
// negotiated version before it runs.
type Command[F any] struct {
	Descriptor version.Descriptor
	Run        F
}

// NewCommand is a shorthand for Command literals.
func NewCommand[F any](d version.Descriptor, run F) Command[F] {
	return Command[F]{Descriptor: d, Run: run}
}

// CommandTable is a backend's complete set of command implementations. Every
// field must be set; Registry.RegisterBackend rejects incomplete tables.
type CommandTable struct {
	VehicleSubscribe          Command[SubscribeFunc]
	VehicleUnsubscribe        Command[UnsubscribeFunc]
	PersonSubscribe           Command[SubscribeFunc]
	PersonUnsubscribe         Command[UnsubscribeFunc]
	InductionLoopSubscribe    Command[SubscribeFunc]
	InductionLoopUnsubscribe  Command[UnsubscribeFunc]
	LaneAreaSubscribe         Command[SubscribeFunc]
	LaneAreaUnsubscribe       Command[UnsubscribeFunc]
	TrafficLightSubscribe     Command[SubscribeFunc]
	TrafficLightUnsubscribe   Command[UnsubscribeFunc]
	SimulationStep            Command[StepFunc]
	SimulationSetOrder        Command[SetOrderFunc]
	SimulationDepartedPersons Command[IDListFunc]
	SimulationArrivedPersons  Command[IDListFunc]
	SimulationClose           Command[CloseFunc]
	VehicleGetTaxiFleet       Command[TaxiFleetFunc]
	VehicleDispatchTaxi       Command[DispatchTaxiFunc]
	PersonGetTaxiReservations Command[TaxiReservationsFunc]
	PersonGetTypeID           Command[TypeIDFunc]
}

type entry struct {
	descriptor version.Descriptor
	run        interface{}
	set        bool
}

func entryOf[F any](c Command[F], isNil bool) entry {
	return entry{descriptor: c.Descriptor, run: c.Run, set: !isNil}
}

// entries expands the table into contract keyed entries.
func (t CommandTable) entries() map[Contract]entry {
	return map[Contract]entry{
		VehicleSubscribe:             entryOf(t.VehicleSubscribe, t.VehicleSubscribe.Run == nil),
		VehicleUnsubscribe:           entryOf(t.VehicleUnsubscribe, t.VehicleUnsubscribe.Run == nil),
		PersonSubscribe:              entryOf(t.PersonSubscribe, t.PersonSubscribe.Run == nil),
		PersonUnsubscribe:            entryOf(t.PersonUnsubscribe, t.PersonUnsubscribe.Run == nil),
		InductionLoopSubscribe:       entryOf(t.InductionLoopSubscribe, t.InductionLoopSubscribe.Run == nil),
		InductionLoopUnsubscribe:     entryOf(t.InductionLoopUnsubscribe, t.InductionLoopUnsubscribe.Run == nil),
		LaneAreaSubscribe:            entryOf(t.LaneAreaSubscribe, t.LaneAreaSubscribe.Run == nil),
		LaneAreaUnsubscribe:          entryOf(t.LaneAreaUnsubscribe, t.LaneAreaUnsubscribe.Run == nil),
		TrafficLightSubscribe:        entryOf(t.TrafficLightSubscribe, t.TrafficLightSubscribe.Run == nil),
		TrafficLightUnsubscribe:      entryOf(t.TrafficLightUnsubscribe, t.TrafficLightUnsubscribe.Run == nil),
		SimulationStep:               entryOf(t.SimulationStep, t.SimulationStep.Run == nil),
		SimulationSetOrder:           entryOf(t.SimulationSetOrder, t.SimulationSetOrder.Run == nil),
		SimulationGetDepartedPersons: entryOf(t.SimulationDepartedPersons, t.SimulationDepartedPersons.Run == nil),
		SimulationGetArrivedPersons:  entryOf(t.SimulationArrivedPersons, t.SimulationArrivedPersons.Run == nil),
		SimulationClose:              entryOf(t.SimulationClose, t.SimulationClose.Run == nil),
		VehicleGetTaxiFleet:          entryOf(t.VehicleGetTaxiFleet, t.VehicleGetTaxiFleet.Run == nil),
		VehicleDispatchTaxi:          entryOf(t.VehicleDispatchTaxi, t.VehicleDispatchTaxi.Run == nil),
		PersonGetTaxiReservations:    entryOf(t.PersonGetTaxiReservations, t.PersonGetTaxiReservations.Run == nil),
		PersonGetTypeID:              entryOf(t.PersonGetTypeID, t.PersonGetTypeID.Run == nil),
	}
}

// SubscriptionSnapshot is a read-only copy of the subscribed native IDs per
// kind, taken before a step.
type SubscriptionSnapshot map[types.EntityKind][]string

// Contains reports whether id was subscribed under kind.
func (s SubscriptionSnapshot) Contains(kind types.EntityKind, id string) bool {
	return slices.Contains(s[kind], id)
}
