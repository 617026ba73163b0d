package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReservationState(t *testing.T) {
	tests := []struct {
		name  string
		state ReservationState
		valid bool
		text  string
	}{
		{name: "any", state: ReservationAny, valid: true, text: "any"},
		{name: "new", state: ReservationNew, valid: true, text: "new"},
		{name: "new or retrieved", state: ReservationNew | ReservationRetrieved, valid: true, text: "new|retrieved"},
		{name: "all", state: 15, valid: true, text: "new|retrieved|assigned|picked-up"},
		{name: "unknown bit", state: 16 | ReservationAssigned, valid: false, text: "assigned|0x10"},
		{name: "negative", state: -1, valid: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.valid, tt.state.Valid())
			if tt.text != "" {
				assert.Equal(t, tt.text, tt.state.String())
			}
		})
	}

	combined := ReservationNew | ReservationAssigned
	assert.True(t, combined.Has(ReservationNew))
	assert.True(t, combined.Has(ReservationAssigned))
	assert.False(t, combined.Has(ReservationRetrieved))
	assert.False(t, combined.Has(ReservationNew|ReservationPickedUp))
}

func TestTaxiFleetFilter(t *testing.T) {
	for _, f := range []TaxiFleetFilter{FleetAll, FleetEmpty, FleetPickup, FleetOccupied, FleetOccupiedAndPickup} {
		assert.True(t, f.Valid(), "filter %d", f)
	}
	assert.False(t, TaxiFleetFilter(-2).Valid())
	assert.False(t, TaxiFleetFilter(4).Valid())
	assert.Equal(t, "occupied+pickup", TaxiOccupiedAndPickup.String())
}

func TestEntityKind(t *testing.T) {
	for _, k := range EntityKinds {
		parsed, err := ParseEntityKind(string(k))
		assert.NoError(t, err)
		assert.Equal(t, k, parsed)
	}

	_, err := ParseEntityKind("bicycle")
	assert.Error(t, err)
	assert.False(t, KindWildcard.Valid())
}

func TestWindowBounds(t *testing.T) {
	begin, end := Window{}.Bounds()
	assert.Equal(t, 0.0, begin)
	assert.Equal(t, 1e15, end)

	begin, end = Window{Begin: 10, End: 20}.Bounds()
	assert.Equal(t, 10.0, begin)
	assert.Equal(t, 20.0, end)
}

func TestResultKinds(t *testing.T) {
	results := []SubscriptionResult{
		&VehicleResult{ID: "veh_0"},
		&PersonResult{ID: "p0"},
		&InductionLoopResult{ID: "il"},
		&LaneAreaResult{ID: "la"},
		&TrafficLightResult{ID: "tl"},
	}
	for i, r := range results {
		assert.Equal(t, EntityKinds[i], r.Kind())
	}
	assert.Equal(t, "veh_0", results[0].EntityID())

	signals := SignalBlinkerLeft | SignalBrakeLight
	assert.True(t, signals.Has(SignalBrakeLight))
	assert.False(t, signals.Has(SignalBlinkerRight))
}

func TestNetworkPosition(t *testing.T) {
	tests := []struct {
		name      string
		x, y, z   float64
		want      Position
		onNetwork bool
	}{
		{name: "on network", x: 10, y: 20, z: 1.5, want: Position{X: 10, Y: 20, Z: 1.5}, onNetwork: true},
		{name: "placeholder", x: -1073741824, y: -1073741824, z: -1073741824, onNetwork: false},
		{name: "only x negative", x: -2000, y: 5, z: 0, want: Position{X: -2000, Y: 5}, onNetwork: true},
		{name: "invalid height", x: 1, y: 2, z: -1073741824, want: Position{X: 1, Y: 2}, onNetwork: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := NetworkPosition(tt.x, tt.y, tt.z)
			assert.Equal(t, tt.onNetwork, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNewLeader(t *testing.T) {
	assert.Nil(t, NewLeader("", -1))
	assert.Equal(t, &Leader{ID: "v2", Distance: 12.5}, NewLeader("v2", 12.5))
}

func TestParseTaxiState(t *testing.T) {
	assert.Nil(t, ParseTaxiState(""))
	assert.Nil(t, ParseTaxiState("7"))
	assert.Nil(t, ParseTaxiState("busy"))

	state := ParseTaxiState("1")
	if assert.NotNil(t, state) {
		assert.Equal(t, TaxiPickup, *state)
	}
}

func TestLookahead(t *testing.T) {
	assert.Equal(t, DefaultLeaderLookahead, VehicleExtras{}.Lookahead())
	assert.Equal(t, 50.0, VehicleExtras{LeaderLookahead: 50}.Lookahead())
}
