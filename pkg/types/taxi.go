package types

import (
	"fmt"
	"strconv"
	"strings"
)

// TaxiFleetState is a taxi's current role in the fleet.
type TaxiFleetState int

const (
	TaxiEmpty             TaxiFleetState = 0
	TaxiPickup            TaxiFleetState = 1
	TaxiOccupied          TaxiFleetState = 2
	TaxiOccupiedAndPickup TaxiFleetState = 3
)

func (s TaxiFleetState) String() string {
	switch s {
	case TaxiEmpty:
		return "empty"
	case TaxiPickup:
		return "pickup"
	case TaxiOccupied:
		return "occupied"
	case TaxiOccupiedAndPickup:
		return "occupied+pickup"
	default:
		return fmt.Sprintf("taxistate(%d)", int(s))
	}
}

// TaxiFleetFilter selects taxis by state in a fleet query.
type TaxiFleetFilter int

const (
	FleetAll               TaxiFleetFilter = -1
	FleetEmpty             TaxiFleetFilter = TaxiFleetFilter(TaxiEmpty)
	FleetPickup            TaxiFleetFilter = TaxiFleetFilter(TaxiPickup)
	FleetOccupied          TaxiFleetFilter = TaxiFleetFilter(TaxiOccupied)
	FleetOccupiedAndPickup TaxiFleetFilter = TaxiFleetFilter(TaxiOccupiedAndPickup)
)

// Valid reports whether f is a filter SUMO understands.
func (f TaxiFleetFilter) Valid() bool {
	return f >= FleetAll && f <= FleetOccupiedAndPickup
}

// ReservationState is a bit set over the reservation lifecycle. Query filters
// combine states with bitwise OR only.
type ReservationState int

const (
	ReservationNew       ReservationState = 1
	ReservationRetrieved ReservationState = 2
	ReservationAssigned  ReservationState = 4
	ReservationPickedUp  ReservationState = 8

	// ReservationAny matches every reservation regardless of state.
	ReservationAny ReservationState = 0
	reservationAll                  = ReservationNew | ReservationRetrieved | ReservationAssigned | ReservationPickedUp
)

// Has reports whether every bit of other is set.
func (s ReservationState) Has(other ReservationState) bool {
	return s&other == other
}

// Valid reports whether s only uses known bits.
func (s ReservationState) Valid() bool {
	return s >= 0 && s&^reservationAll == 0
}

func (s ReservationState) String() string {
	if s == ReservationAny {
		return "any"
	}
	var parts []string
	for _, f := range []struct {
		bit  ReservationState
		name string
	}{
		{ReservationNew, "new"},
		{ReservationRetrieved, "retrieved"},
		{ReservationAssigned, "assigned"},
		{ReservationPickedUp, "picked-up"},
	} {
		if s.Has(f.bit) {
			parts = append(parts, f.name)
		}
	}
	if rest := s &^ reservationAll; rest != 0 {
		parts = append(parts, fmt.Sprintf("0x%x", int(rest)))
	}
	return strings.Join(parts, "|")
}

// TaxiReservation is a pending or served ride request as reported by SUMO.
// Person IDs are canonical once returned by the bridge.
type TaxiReservation struct {
	ID              string           `json:"id"`
	State           ReservationState `json:"state"`
	PersonIDs       []string         `json:"personIds"`
	Group           string           `json:"group"`
	FromEdge        string           `json:"fromEdge"`
	ToEdge          string           `json:"toEdge"`
	DepartPos       float64          `json:"departPos"`
	ArrivalPos      float64          `json:"arrivalPos"`
	Depart          float64          `json:"depart"`
	ReservationTime float64          `json:"reservationTime"`
}

// ParseTaxiState reads the value of the taxi device state parameter. Vehicles
// without a taxi device report an empty value, which yields nil.
func ParseTaxiState(value string) *TaxiFleetState {
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil || n < int(TaxiEmpty) || n > int(TaxiOccupiedAndPickup) {
		return nil
	}
	s := TaxiFleetState(n)
	return &s
}
