package router

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/kalifun/tracilink/pkg/core"
	"github.com/kalifun/tracilink/pkg/types"
	"github.com/sirupsen/logrus"
)

// Router subscribes to the update bus and routes step updates to the
// processor of their entity kind. A processor of types.KindWildcard
// receives the updates of every kind.
type Router struct {
	id         string
	bus        core.UpdateBus
	processors map[types.EntityKind][]core.Processor
	logger     *logrus.Entry
	wg         sync.WaitGroup
	cancel     context.CancelFunc
}

// New creates a new Router.
func New(bus core.UpdateBus, processors []core.Processor) *Router {
	id := fmt.Sprintf("router-%s", uuid.New().String())
	procMap := make(map[types.EntityKind][]core.Processor)
	for _, p := range processors {
		if p.Kind() == types.KindWildcard {
			for _, kind := range types.EntityKinds {
				procMap[kind] = append(procMap[kind], p)
			}
			continue
		}
		procMap[p.Kind()] = append(procMap[p.Kind()], p)
	}

	return &Router{
		bus:        bus,
		id:         id,
		processors: procMap,
		logger:     logrus.WithField("component", id),
	}
}

// ID returns the unique identifier of the router.
func (r *Router) ID() string {
	return r.id
}

// Start subscribes one goroutine per entity kind with processors. The
// goroutines outlive ctx and run until Stop.
func (r *Router) Start(ctx context.Context) error {
	ctx, r.cancel = context.WithCancel(context.WithoutCancel(ctx))

	for _, kind := range types.EntityKinds {
		procs := r.processors[kind]
		if len(procs) == 0 {
			r.logger.WithField("kind", kind).Debug("No processor registered")
			continue
		}

		topic := types.StepUpdateTopic(kind)
		updates, err := r.bus.Subscribe(ctx, topic)
		if err != nil {
			r.cancel()
			return fmt.Errorf("router failed to subscribe to topic %s: %w", topic, err)
		}
		r.wg.Add(1)
		go r.route(ctx, kind, updates, procs)
	}

	r.logger.Info("Router started")
	return nil
}

func (r *Router) route(ctx context.Context, kind types.EntityKind, updates <-chan *types.StepUpdate, procs []core.Processor) {
	defer r.wg.Done()
	r.logger.Infof("Starting processors for kind: %s", kind)
	for {
		select {
		case <-ctx.Done():
			r.logger.Infof("Stopping processors for kind: %s", kind)
			return
		case update, ok := <-updates:
			if !ok {
				r.logger.Infof("Channel closed for kind: %s", kind)
				return
			}
			for _, p := range procs {
				if err := p.Process(ctx, update); err != nil {
					r.logger.WithError(err).Errorf("Error processing %s update of step %d", kind, update.Step)
				}
			}
		}
	}
}

// Stop gracefully shuts down the router.
func (r *Router) Stop(ctx context.Context) error {
	if r.cancel != nil {
		r.cancel()
	}
	r.wg.Wait()
	r.logger.Info("Router stopped")
	return nil
}
