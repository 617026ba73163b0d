package core

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingComponent struct {
	id       string
	log      *[]string
	startErr error
}

func (c *recordingComponent) ID() string { return c.id }

func (c *recordingComponent) Start(ctx context.Context) error {
	if c.startErr != nil {
		return c.startErr
	}
	*c.log = append(*c.log, "start "+c.id)
	return nil
}

func (c *recordingComponent) Stop(ctx context.Context) error {
	*c.log = append(*c.log, "stop "+c.id)
	return nil
}

func TestLifecycleOrder(t *testing.T) {
	var log []string
	lm := NewLifecycleManager(time.Second)

	require.NoError(t, lm.AddComponent(&recordingComponent{id: "bridge", log: &log}, "bus", "publisher"))
	require.NoError(t, lm.AddComponent(&recordingComponent{id: "publisher", log: &log}, "router"))
	require.NoError(t, lm.AddComponent(&recordingComponent{id: "router", log: &log}, "bus"))
	require.NoError(t, lm.AddComponent(&recordingComponent{id: "bus", log: &log}))

	order, err := lm.StartOrder()
	require.NoError(t, err)
	assert.Equal(t, []string{"bus", "router", "publisher", "bridge"}, order)

	ctx := context.Background()
	require.NoError(t, lm.Start(ctx))
	assert.Error(t, lm.Start(ctx))
	require.NoError(t, lm.Stop(ctx))
	require.NoError(t, lm.Stop(ctx))

	assert.Equal(t, []string{
		"start bus", "start router", "start publisher", "start bridge",
		"stop bridge", "stop publisher", "stop router", "stop bus",
	}, log)
}

func TestLifecycleRollsBackOnStartFailure(t *testing.T) {
	var log []string
	lm := NewLifecycleManager(time.Second)

	require.NoError(t, lm.AddComponent(&recordingComponent{id: "bus", log: &log}))
	require.NoError(t, lm.AddComponent(&recordingComponent{id: "bridge", log: &log, startErr: fmt.Errorf("refused")}, "bus"))

	err := lm.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bridge")
	assert.Equal(t, []string{"start bus", "stop bus"}, log)
}

func TestLifecycleDependencyErrors(t *testing.T) {
	var log []string

	t.Run("self dependency", func(t *testing.T) {
		lm := NewLifecycleManager(time.Second)
		err := lm.AddComponent(&recordingComponent{id: "bus", log: &log}, "bus")
		assert.Error(t, err)
	})

	t.Run("unknown dependency", func(t *testing.T) {
		lm := NewLifecycleManager(time.Second)
		require.NoError(t, lm.AddComponent(&recordingComponent{id: "router", log: &log}, "bus"))
		assert.Error(t, lm.Start(context.Background()))
	})

	t.Run("duplicate id", func(t *testing.T) {
		lm := NewLifecycleManager(time.Second)
		require.NoError(t, lm.AddComponent(&recordingComponent{id: "bus", log: &log}))
		assert.Error(t, lm.AddComponent(&recordingComponent{id: "bus", log: &log}))
	})
}
