// Package bridge is the control surface a co-simulation orchestrator uses to
// drive SUMO. A Bridge owns one transport, the subscription sets and the
// identifier mappings, and serializes every command through one mutex.
package bridge

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/kalifun/tracilink/errors"
	"github.com/kalifun/tracilink/pkg/core"
	"github.com/kalifun/tracilink/pkg/idmap"
	"github.com/kalifun/tracilink/pkg/metrics"
	"github.com/kalifun/tracilink/pkg/types"
	"github.com/sirupsen/logrus"
)

const (
	DefaultFederate      = "sumo"
	DefaultVehiclePrefix = "veh_"
	DefaultPersonPrefix  = "per_"
)

type Config struct {
	// Federate names this bridge in step updates and logs.
	Federate string `json:"federate" yaml:"federate"`
	// Prefixes of synthesized canonical IDs.
	VehiclePrefix string `json:"vehiclePrefix" yaml:"vehiclePrefix"`
	PersonPrefix  string `json:"personPrefix" yaml:"personPrefix"`

	// Bus receives one update per entity kind after every step. Optional.
	Bus core.UpdateBus `json:"-" yaml:"-"`
	// Metrics is optional.
	Metrics *metrics.Collector `json:"-" yaml:"-"`
	// VehicleIDs and PersonIDs replace the prefix generators.
	VehicleIDs idmap.Generator `json:"-" yaml:"-"`
	PersonIDs  idmap.Generator `json:"-" yaml:"-"`
}

// Bridge drives one simulator through one transport.
type Bridge struct {
	id        string
	config    Config
	transport core.Transport
	registry  *core.Registry
	subs      *core.SubscriptionManager
	vehicles  *idmap.Transformer
	persons   *idmap.Transformer
	logger    *logrus.Entry

	mu      sync.Mutex
	running bool
	closed  bool
	broken  error
	time    float64
	step    uint64
}

// New registers the transport's command table and prepares an idle bridge.
// An incomplete command table is rejected here.
func New(transport core.Transport, config Config) (*Bridge, error) {
	if config.Federate == "" {
		config.Federate = DefaultFederate
	}
	if config.VehiclePrefix == "" {
		config.VehiclePrefix = DefaultVehiclePrefix
	}
	if config.PersonPrefix == "" {
		config.PersonPrefix = DefaultPersonPrefix
	}
	if config.VehicleIDs == nil {
		config.VehicleIDs = idmap.SequenceGenerator(config.VehiclePrefix)
	}
	if config.PersonIDs == nil {
		config.PersonIDs = idmap.SequenceGenerator(config.PersonPrefix)
	}

	registry := core.NewRegistry()
	if err := registry.RegisterBackend(transport.Backend(), transport.Commands()); err != nil {
		return nil, err
	}

	id := "bridge-" + config.Federate
	return &Bridge{
		id:        id,
		config:    config,
		transport: transport,
		registry:  registry,
		subs:      core.NewSubscriptionManager(),
		vehicles:  idmap.NewTransformer("vehicle", config.VehicleIDs),
		persons:   idmap.NewTransformer("person", config.PersonIDs),
		logger: logrus.WithFields(logrus.Fields{
			"component": id,
			"backend":   transport.Backend(),
		}),
	}, nil
}

func (b *Bridge) ID() string {
	return b.id
}

func (b *Bridge) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.running {
		return errors.TransportAlreadyRunning.Args(b.id)
	}
	if b.broken != nil {
		return errors.TransportClosed.Wrap(b.broken, b.id)
	}
	if err := b.transport.Start(ctx); err != nil {
		b.broken = err
		return err
	}
	b.running = true
	b.logger.WithFields(logrus.Fields{
		"transport_id": b.transport.ID(),
		"simulator":    b.transport.SimulatorVersion(),
		"api_version":  b.transport.APIVersion().String(),
	}).Info("Bridge started")
	return nil
}

// Stop closes the simulation if it is still healthy, stops the transport and
// forgets all subscriptions and identifier mappings.
func (b *Bridge) Stop(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.running {
		return errors.TransportNotRunning.Args(b.id)
	}

	if b.broken == nil && !b.closed {
		if err := b.closeLocked(ctx); err != nil {
			b.logger.WithError(err).Warn("Closing the simulation failed")
		}
	}
	err := b.transport.Stop(ctx)

	b.running = false
	b.subs.Clear()
	b.vehicles.Reset()
	b.persons.Reset()
	for _, kind := range types.EntityKinds {
		b.config.Metrics.SetSubscriptions(string(kind), 0)
	}
	b.logger.WithField("steps", b.step).Info("Bridge stopped")
	return err
}

// Time returns the simulation time reached by the last step.
func (b *Bridge) Time() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.time
}

// Steps returns the number of completed steps.
func (b *Bridge) Steps() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.step
}

// Err returns the fatal error that ended the session, if any.
func (b *Bridge) Err() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.broken
}

// CurrentlySubscribed returns the canonical IDs subscribed under kind.
func (b *Bridge) CurrentlySubscribed(kind types.EntityKind) []string {
	native := b.subs.CurrentlySubscribed(kind)
	m := b.transformer(kind)
	if m == nil {
		return native
	}
	out := make([]string, 0, len(native))
	for _, id := range native {
		if canonical, ok := m.Canonical(id); ok {
			out = append(out, canonical)
		} else {
			out = append(out, id)
		}
	}
	return out
}

func (b *Bridge) Vehicles() *VehicleFacade {
	return &VehicleFacade{b: b}
}

func (b *Bridge) Persons() *PersonFacade {
	return &PersonFacade{b: b}
}

func (b *Bridge) Simulation() *SimulationFacade {
	return &SimulationFacade{b: b}
}

// transformer returns the identifier mapping of kind; detectors and traffic
// lights keep their native IDs.
func (b *Bridge) transformer(kind types.EntityKind) *idmap.Transformer {
	switch kind {
	case types.KindVehicle:
		return b.vehicles
	case types.KindPerson:
		return b.persons
	}
	return nil
}

// usable must be called with mu held.
func (b *Bridge) usable() error {
	if b.broken != nil {
		return errors.TransportClosed.Wrap(b.broken, b.id)
	}
	if !b.running {
		return errors.TransportNotRunning.Args(b.id)
	}
	if b.closed {
		return errors.TransportClosed.Args(b.id)
	}
	return nil
}

// check records a fatal error; the bridge refuses every later command.
func (b *Bridge) check(err error) error {
	if err != nil && errors.IsFatal(err) && b.broken == nil {
		b.broken = err
		b.logger.WithError(err).Error("Fatal simulator error, bridge is unusable")
	}
	return err
}

func (b *Bridge) observe(contract core.Contract, started time.Time, err error) {
	b.config.Metrics.ObserveCommand(string(b.transport.Backend()), string(contract), time.Since(started), err)
}

// resolve must be called with mu held.
func resolve[F any](b *Bridge, contract core.Contract) (F, error) {
	return core.Resolve[F](b.registry, b.transport.Backend(), contract, b.transport.APIVersion())
}

// invoke runs one command with the bridge locked. exec receives the resolved
// implementation.
func invoke[F any](b *Bridge, contract core.Contract, exec func(F) error) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.usable(); err != nil {
		return err
	}
	run, err := resolve[F](b, contract)
	if err != nil {
		return err
	}
	started := time.Now()
	err = exec(run)
	b.observe(contract, started, err)
	return b.check(err)
}

func (b *Bridge) closeLocked(ctx context.Context) error {
	closeSim, err := resolve[core.CloseFunc](b, core.SimulationClose)
	if err != nil {
		return err
	}
	started := time.Now()
	err = closeSim(ctx)
	b.observe(core.SimulationClose, started, err)
	if err != nil {
		return b.check(err)
	}
	b.closed = true
	return nil
}

func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", op, err)
}
