package bridge

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/kalifun/tracilink/errors"
	"github.com/kalifun/tracilink/pkg/core"
	"github.com/kalifun/tracilink/pkg/types"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
)

var kindOrder = lo.SliceToMap(types.EntityKinds, func(k types.EntityKind) (types.EntityKind, int) {
	return k, lo.IndexOf(types.EntityKinds, k)
})

// Advance drives exactly one step of length dt and returns the results of the
// entities subscribed before the call, in canonical IDs, ordered by kind and
// ID. Vehicles and persons that arrived during the step are unsubscribed and
// not reported. On a fatal error nothing is returned and the bridge is
// unusable afterwards. An identifier conflict while translating results also
// returns nothing, but the step counts as taken.
func (b *Bridge) Advance(ctx context.Context, dt float64) ([]types.SubscriptionResult, error) {
	if !(dt > 0) || math.IsInf(dt, 1) {
		return nil, errors.InvalidArgument.Args(fmt.Sprintf("step length must be positive and finite, got %g", dt))
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.usable(); err != nil {
		return nil, err
	}
	step, err := resolve[core.StepFunc](b, core.SimulationStep)
	if err != nil {
		return nil, err
	}

	snapshot := b.subs.Snapshot()
	started := time.Now()
	res, err := step(ctx, b.time+dt, snapshot)
	b.observe(core.SimulationStep, started, err)
	if err != nil {
		return nil, b.check(err)
	}

	// The simulator has advanced; time and arrivals are committed even when
	// the results cannot be translated.
	b.time = res.Time
	b.step++
	results, err := b.collect(res, snapshot)
	if err != nil {
		b.logger.WithError(err).WithField("step", b.step).Warn("Step results dropped")
		return nil, b.check(err)
	}

	counts := lo.CountValuesBy(results, func(r types.SubscriptionResult) string { return string(r.Kind()) })
	b.config.Metrics.ObserveStep(time.Since(started), b.time, counts)
	for _, kind := range types.EntityKinds {
		b.config.Metrics.SetSubscriptions(string(kind), b.subs.Len(kind))
	}

	b.logger.WithFields(logrus.Fields{
		"step":    b.step,
		"time":    b.time,
		"results": len(results),
	}).Debug("Step completed")

	b.publish(ctx, results)
	return results, nil
}

// collect filters, unsubscribes arrivals, rewrites IDs and orders the results.
func (b *Bridge) collect(res *types.StepResult, snapshot core.SubscriptionSnapshot) ([]types.SubscriptionResult, error) {
	members := make(map[types.EntityKind]map[string]bool, len(snapshot))
	for kind, ids := range snapshot {
		members[kind] = lo.SliceToMap(ids, func(id string) (string, bool) { return id, true })
	}

	for kind, ids := range res.ArrivedIDs {
		removed := b.subs.RemoveDeparted(kind, ids)
		for _, id := range removed {
			delete(members[kind], id)
		}
		if len(removed) > 0 {
			b.logger.WithFields(logrus.Fields{
				"kind": kind,
				"ids":  removed,
			}).Debug("Arrived entities unsubscribed")
		}
	}

	results := lo.Filter(res.Results, func(r types.SubscriptionResult, _ int) bool {
		return members[r.Kind()][r.EntityID()]
	})
	for _, r := range results {
		if err := b.canonicalize(r); err != nil {
			return nil, err
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		ki, kj := kindOrder[results[i].Kind()], kindOrder[results[j].Kind()]
		if ki != kj {
			return ki < kj
		}
		return results[i].EntityID() < results[j].EntityID()
	})
	return results, nil
}

// canonicalize rewrites every native vehicle and person ID inside r.
func (b *Bridge) canonicalize(r types.SubscriptionResult) error {
	vehicle := func(id *string) error {
		canonical, err := b.vehicles.FromNative(*id)
		if err != nil {
			return errors.IdentifierConflict.Wrap(err, *id)
		}
		*id = canonical
		return nil
	}

	switch v := r.(type) {
	case *types.VehicleResult:
		if err := vehicle(&v.ID); err != nil {
			return err
		}
		if v.Leader != nil {
			return vehicle(&v.Leader.ID)
		}
	case *types.PersonResult:
		canonical, err := b.persons.FromNative(v.ID)
		if err != nil {
			return errors.IdentifierConflict.Wrap(err, v.ID)
		}
		v.ID = canonical
	case *types.InductionLoopResult:
		for i := range v.Vehicles {
			if err := vehicle(&v.Vehicles[i].VehicleID); err != nil {
				return err
			}
		}
	case *types.LaneAreaResult:
		for i := range v.Vehicles {
			if err := vehicle(&v.Vehicles[i]); err != nil {
				return err
			}
		}
	}
	return nil
}

// publish hands one update per kind to the bus. Delivery problems are
// logged; the step itself has already happened.
func (b *Bridge) publish(ctx context.Context, results []types.SubscriptionResult) {
	if b.config.Bus == nil {
		return
	}
	byKind := lo.GroupBy(results, func(r types.SubscriptionResult) types.EntityKind { return r.Kind() })
	for _, kind := range types.EntityKinds {
		if len(byKind[kind]) == 0 {
			continue
		}
		update := &types.StepUpdate{
			Federate: b.config.Federate,
			Time:     b.time,
			Step:     b.step,
			Kind:     kind,
			Results:  byKind[kind],
		}
		if err := b.config.Bus.Publish(ctx, update); err != nil {
			b.logger.WithError(err).WithField("kind", kind).Warn("Failed to publish step update")
		}
	}
}
