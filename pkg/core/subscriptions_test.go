package core

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kalifun/tracilink/pkg/types"
)

func TestSubscribeIsIdempotent(t *testing.T) {
	sm := NewSubscriptionManager()

	assert.True(t, sm.Subscribe(types.KindVehicle, "v1"))
	assert.False(t, sm.Subscribe(types.KindVehicle, "v1"))
	assert.Equal(t, 1, sm.Len(types.KindVehicle))

	// the same id under another kind is a different entity
	assert.True(t, sm.Subscribe(types.KindPerson, "v1"))
	assert.Equal(t, []string{"v1"}, sm.CurrentlySubscribed(types.KindPerson))
}

func TestUnsubscribeNonMemberIsNoop(t *testing.T) {
	sm := NewSubscriptionManager()
	sm.Subscribe(types.KindLaneArea, "e2_0")

	assert.False(t, sm.Unsubscribe(types.KindLaneArea, "e2_9"))
	assert.False(t, sm.Unsubscribe(types.KindTrafficLight, "e2_0"))
	assert.Equal(t, 1, sm.Len(types.KindLaneArea))

	assert.True(t, sm.Unsubscribe(types.KindLaneArea, "e2_0"))
	assert.Empty(t, sm.CurrentlySubscribed(types.KindLaneArea))
}

func TestUnknownKindIsRejected(t *testing.T) {
	sm := NewSubscriptionManager()
	assert.False(t, sm.Subscribe(types.KindWildcard, "x"))
	assert.False(t, sm.Contains(types.KindWildcard, "x"))
}

func TestRemoveDeparted(t *testing.T) {
	sm := NewSubscriptionManager()
	for _, id := range []string{"v1", "v2", "v3"} {
		sm.Subscribe(types.KindVehicle, id)
	}

	removed := sm.RemoveDeparted(types.KindVehicle, []string{"v2", "v9", "v2"})
	assert.Equal(t, []string{"v2"}, removed)
	assert.Equal(t, []string{"v1", "v3"}, sm.CurrentlySubscribed(types.KindVehicle))
}

func TestSnapshotIsACopy(t *testing.T) {
	sm := NewSubscriptionManager()
	sm.Subscribe(types.KindVehicle, "b")
	sm.Subscribe(types.KindVehicle, "a")
	sm.Subscribe(types.KindInductionLoop, "loop0")

	snapshot := sm.Snapshot()
	assert.Equal(t, []string{"a", "b"}, snapshot[types.KindVehicle])
	assert.True(t, snapshot.Contains(types.KindInductionLoop, "loop0"))
	assert.Len(t, snapshot, len(types.EntityKinds))

	sm.Subscribe(types.KindVehicle, "c")
	sm.Unsubscribe(types.KindInductionLoop, "loop0")
	assert.False(t, snapshot.Contains(types.KindVehicle, "c"))
	assert.True(t, snapshot.Contains(types.KindInductionLoop, "loop0"))
}

func TestClear(t *testing.T) {
	sm := NewSubscriptionManager()
	sm.Subscribe(types.KindVehicle, "v1")
	sm.Subscribe(types.KindTrafficLight, "tl0")

	sm.Clear()
	for _, kind := range types.EntityKinds {
		assert.Zero(t, sm.Len(kind))
	}
	assert.True(t, sm.Subscribe(types.KindVehicle, "v1"))
}
