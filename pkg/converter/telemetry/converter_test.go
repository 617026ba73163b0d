package telemetry

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/kalifun/tracilink/errors"
	"github.com/kalifun/tracilink/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromUpdate(t *testing.T) {
	c := New(Config{})
	update := &types.StepUpdate{
		Federate: "city",
		Time:     12.5,
		Step:     25,
		Kind:     types.KindVehicle,
		Results: []types.SubscriptionResult{
			&types.VehicleResult{ID: "veh_0", Speed: 4, Position: types.Position{X: 1, Y: 2}},
			&types.VehicleResult{ID: "bus/7", Speed: 0},
		},
	}

	msgs, err := c.FromUpdate(context.Background(), update)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "tracilink/city/vehicle/veh_0", msgs[0].Topic)
	assert.Equal(t, "tracilink/city/vehicle/bus%2F7", msgs[1].Topic)

	var env struct {
		Federate string  `json:"federate"`
		Step     uint64  `json:"step"`
		Time     float64 `json:"time"`
		Kind     string  `json:"kind"`
		ID       string  `json:"id"`
		Data     struct {
			ID       string         `json:"id"`
			Speed    float64        `json:"speed"`
			Position types.Position `json:"position"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(msgs[0].Payload, &env))
	assert.Equal(t, "city", env.Federate)
	assert.Equal(t, uint64(25), env.Step)
	assert.Equal(t, 12.5, env.Time)
	assert.Equal(t, "vehicle", env.Kind)
	assert.Equal(t, "veh_0", env.ID)
	assert.Equal(t, 4.0, env.Data.Speed)
	assert.Equal(t, types.Position{X: 1, Y: 2}, env.Data.Position)
}

func TestValidate(t *testing.T) {
	c := New(Config{})
	tests := []struct {
		name   string
		update *types.StepUpdate
	}{
		{name: "nil", update: nil},
		{name: "no federate", update: &types.StepUpdate{Kind: types.KindPerson}},
		{name: "wildcard kind", update: &types.StepUpdate{Federate: "f", Kind: types.KindWildcard}},
		{name: "mixed kinds", update: &types.StepUpdate{
			Federate: "f",
			Kind:     types.KindPerson,
			Results:  []types.SubscriptionResult{&types.VehicleResult{ID: "v"}},
		}},
		{name: "empty id", update: &types.StepUpdate{
			Federate: "f",
			Kind:     types.KindTrafficLight,
			Results:  []types.SubscriptionResult{&types.TrafficLightResult{}},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := c.Validate(context.Background(), tt.update)
			require.Error(t, err)
			assert.True(t, errors.Is(err, errors.InvalidArgument))
		})
	}

	assert.NoError(t, c.Validate(context.Background(), &types.StepUpdate{Federate: "f", Kind: types.KindLaneArea}))
}

func TestToDispatch(t *testing.T) {
	c := New(Config{Prefix: "sim"})
	assert.Equal(t, "sim/city/dispatch", c.DispatchTopic("city"))

	tests := []struct {
		name    string
		topic   string
		payload string
		want    *types.DispatchRequest
	}{
		{
			name:    "valid",
			topic:   "sim/city/dispatch",
			payload: `{"vehicleId":"veh_3","reservationIds":["res_7","res_9"]}`,
			want:    &types.DispatchRequest{VehicleID: "veh_3", ReservationIDs: []string{"res_7", "res_9"}},
		},
		{name: "wrong prefix", topic: "other/city/dispatch", payload: `{"vehicleId":"v","reservationIds":["r"]}`},
		{name: "wrong level", topic: "sim/city/vehicle", payload: `{"vehicleId":"v","reservationIds":["r"]}`},
		{name: "broken json", topic: "sim/city/dispatch", payload: `{"vehicleId":`},
		{name: "no vehicle", topic: "sim/city/dispatch", payload: `{"reservationIds":["r"]}`},
		{name: "no reservations", topic: "sim/city/dispatch", payload: `{"vehicleId":"v","reservationIds":[]}`},
		{name: "empty reservation", topic: "sim/city/dispatch", payload: `{"vehicleId":"v","reservationIds":[""]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := c.ToDispatch(context.Background(), &types.TransportMessage{Topic: tt.topic, Payload: []byte(tt.payload)})
			if tt.want == nil {
				require.Error(t, err)
				assert.True(t, errors.Is(err, errors.InvalidArgument))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, req)
		})
	}
}

func TestFactory(t *testing.T) {
	factory := NewConverterFactory()

	conv, err := factory(map[string]interface{}{"prefix": "sumo", "indent": true})
	require.NoError(t, err)
	assert.Equal(t, "sumo/x/dispatch", conv.(*Converter).DispatchTopic("x"))
	assert.Equal(t, types.EntityKinds, conv.GetSupportedKinds())

	_, err = factory(map[string]interface{}{"prefix": "a/b"})
	assert.True(t, errors.Is(err, errors.ConfigurationError))
	_, err = factory(map[string]interface{}{"indent": "yes"})
	assert.True(t, errors.Is(err, errors.ConfigurationError))
}
