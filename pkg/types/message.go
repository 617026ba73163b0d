package types

// StepUpdate is what the bridge hands to downstream consumers after each step.
type StepUpdate struct {
	Federate string
	Time     float64
	Step     uint64
	Kind     EntityKind
	Results  []SubscriptionResult
}

// StepUpdateTopic is the bus topic for updates of one entity kind.
func StepUpdateTopic(kind EntityKind) string {
	return "step." + string(kind)
}

// TransportMessage is a message received by an outer transport.
type TransportMessage struct {
	Topic   string
	Payload []byte
	Meta    map[string]interface{}
}

// TransportPublish is a message handed to an outer transport for publishing.
type TransportPublish struct {
	Topic   string
	Payload []byte
}

// DispatchRequest asks for a taxi to serve reservations in the given order.
// IDs are canonical.
type DispatchRequest struct {
	VehicleID      string   `json:"vehicleId"`
	ReservationIDs []string `json:"reservationIds"`
}
