package router

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/kalifun/tracilink/pkg/bus/memory"
	"github.com/kalifun/tracilink/pkg/core"
	"github.com/kalifun/tracilink/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	kind types.EntityKind
	mu   sync.Mutex
	got  []*types.StepUpdate
}

func (r *recorder) Kind() types.EntityKind { return r.kind }

func (r *recorder) Process(ctx context.Context, update *types.StepUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, update)
	return nil
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.got)
}

func TestRouterDispatchesByKind(t *testing.T) {
	ctx := context.Background()
	bus := memory.NewUpdateBus("bus", 8)
	require.NoError(t, bus.Start(ctx))

	vehicles := &recorder{kind: types.KindVehicle}
	all := &recorder{kind: types.KindWildcard}
	r := New(bus, []core.Processor{vehicles, all})
	require.NoError(t, r.Start(ctx))

	require.NoError(t, bus.Publish(ctx, &types.StepUpdate{Kind: types.KindVehicle, Step: 1}))
	require.NoError(t, bus.Publish(ctx, &types.StepUpdate{Kind: types.KindPerson, Step: 1}))

	assert.Eventually(t, func() bool { return vehicles.count() == 1 && all.count() == 2 }, time.Second, 5*time.Millisecond)

	require.NoError(t, bus.Stop(ctx))
	require.NoError(t, r.Stop(ctx))
}
