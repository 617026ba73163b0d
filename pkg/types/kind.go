package types

import "fmt"

// EntityKind names one of the subscribable simulator domains.
type EntityKind string

const (
	KindVehicle       EntityKind = "vehicle"
	KindPerson        EntityKind = "person"
	KindInductionLoop EntityKind = "inductionloop"
	KindLaneArea      EntityKind = "lanearea"
	KindTrafficLight  EntityKind = "trafficlight"
	KindWildcard      EntityKind = "*"
)

// EntityKinds lists the subscribable kinds in result order.
var EntityKinds = []EntityKind{
	KindVehicle,
	KindPerson,
	KindInductionLoop,
	KindLaneArea,
	KindTrafficLight,
}

// Valid reports whether k is one of EntityKinds.
func (k EntityKind) Valid() bool {
	for _, known := range EntityKinds {
		if k == known {
			return true
		}
	}
	return false
}

// ParseEntityKind converts a configuration value into a kind.
func ParseEntityKind(s string) (EntityKind, error) {
	k := EntityKind(s)
	if !k.Valid() {
		return "", fmt.Errorf("unknown entity kind: %s", s)
	}
	return k, nil
}

// Window bounds a subscription in simulation seconds. The zero value
// subscribes for the whole run.
type Window struct {
	Begin float64
	End   float64
}

// WholeRun returns the window SUMO uses for open-ended subscriptions.
func WholeRun() Window {
	return Window{Begin: 0, End: 1e15}
}

// Bounds returns the window with the zero value replaced by WholeRun.
func (w Window) Bounds() (float64, float64) {
	if w.Begin == 0 && w.End == 0 {
		all := WholeRun()
		return all.Begin, all.End
	}
	return w.Begin, w.End
}
