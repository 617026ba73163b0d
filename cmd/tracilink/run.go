package main

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kalifun/tracilink/errors"
	"github.com/kalifun/tracilink/pkg/bridge"
	"github.com/kalifun/tracilink/pkg/bus/memory"
	"github.com/kalifun/tracilink/pkg/config"
	"github.com/kalifun/tracilink/pkg/converter/telemetry"
	"github.com/kalifun/tracilink/pkg/core"
	"github.com/kalifun/tracilink/pkg/metrics"
	"github.com/kalifun/tracilink/pkg/relay"
	"github.com/kalifun/tracilink/pkg/router"
	"github.com/kalifun/tracilink/pkg/transport/libsumo"
	"github.com/kalifun/tracilink/pkg/transport/mqtt"
	"github.com/kalifun/tracilink/pkg/transport/traci"
	"github.com/kalifun/tracilink/pkg/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

const lifecycleTimeout = 30 * time.Second

var (
	configPath string
	configData string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the simulation and step it",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return run(ctx, cfg)
	},
}

func init() {
	for _, c := range []*cobra.Command{runCmd, checkCmd} {
		c.Flags().StringVar(&configPath, "config", "", "config file path")
		c.Flags().StringVar(&configData, "config-data", "", "config file base64 encoded data")
		c.MarkFlagsMutuallyExclusive("config", "config-data")
		c.MarkFlagsOneRequired("config", "config-data")
	}
}

func loadConfig() (*config.Config, error) {
	if configPath != "" {
		return config.LoadFile(configPath)
	}
	data, err := base64.StdEncoding.DecodeString(configData)
	if err != nil {
		return nil, errors.ConfigurationError.Wrap(err, "config-data is not base64")
	}
	return config.LoadBytes(data)
}

func newRegistry() *core.Registry {
	registry := core.NewRegistry()
	lo.Must0(registry.RegisterTransport(string(core.BackendTraCI), traci.NewTransportFactory()))
	lo.Must0(registry.RegisterTransport(string(core.BackendLibsumo), libsumo.NewTransportFactory()))
	lo.Must0(registry.RegisterConverter("telemetry", telemetry.NewConverterFactory()))
	return registry
}

func newTransport(registry *core.Registry, cfg *config.Config) (core.Transport, error) {
	factory, err := registry.GetTransport(string(cfg.Simulator.Backend))
	if err != nil {
		return nil, errors.ConfigurationError.Wrap(err, fmt.Sprintf("backend %s, registered: %v", cfg.Simulator.Backend, registry.ListTransports()))
	}
	return factory(cfg.Simulator.TransportOptions())
}

func run(ctx context.Context, cfg *config.Config) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector, err := metrics.NewCollector(reg)
	if err != nil {
		return err
	}

	registry := newRegistry()
	transport, err := newTransport(registry, cfg)
	if err != nil {
		return err
	}

	bus := memory.NewUpdateBus("bus", cfg.BusBuffer)
	b, err := bridge.New(transport, bridge.Config{
		Federate:      cfg.Federate,
		VehiclePrefix: cfg.VehiclePrefix,
		PersonPrefix:  cfg.PersonPrefix,
		Bus:           bus,
		Metrics:       collector,
	})
	if err != nil {
		return err
	}

	lm := core.NewLifecycleManager(lifecycleTimeout)
	if err := lm.AddComponent(bus); err != nil {
		return err
	}
	if err := lm.AddComponent(b, bus.ID()); err != nil {
		return err
	}
	if cfg.Publish != nil {
		if err := addPublishing(lm, registry, cfg, bus, b); err != nil {
			return err
		}
	}
	if cfg.Metrics.Listen != "" {
		if err := lm.AddComponent(metrics.NewServer(cfg.Metrics.Listen, cfg.Metrics.Path, reg)); err != nil {
			return err
		}
	}

	if err := lm.Start(ctx); err != nil {
		return err
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), lifecycleTimeout)
		defer cancel()
		if err := lm.Stop(stopCtx); err != nil {
			log.WithError(err).Warn("Shutdown incomplete")
		}
	}()

	if err := subscribe(ctx, b, cfg.Subscriptions); err != nil {
		return err
	}
	return loop(ctx, b, cfg.Control)
}

// addPublishing wires bus -> router -> relay publishers -> MQTT, and MQTT
// dispatch requests -> bridge when enabled.
func addPublishing(lm *core.LifecycleManager, registry *core.Registry, cfg *config.Config, bus core.UpdateBus, b *bridge.Bridge) error {
	p := cfg.Publish
	broker, err := mqtt.NewTransportFactory().CreateTransport("mqtt", p.MQTT)
	if err != nil {
		return err
	}
	factory, err := registry.GetConverter("telemetry")
	if err != nil {
		return err
	}
	conv, err := factory(p.Telemetry)
	if err != nil {
		return err
	}

	opts := core.PublishOptions{QoS: p.QoS, Retain: p.Retain, TimeOut: 10 * time.Second}
	kinds := p.Kinds
	if len(kinds) == 0 {
		kinds = []types.EntityKind{types.KindWildcard}
	}
	processors := lo.Map(kinds, func(kind types.EntityKind, _ int) core.Processor {
		return relay.NewPublisher(broker, conv, kind, opts)
	})
	r := router.New(bus, processors)

	if err := lm.AddComponent(broker); err != nil {
		return err
	}
	if err := lm.AddComponent(r, core.ComponentID(bus), broker.ID()); err != nil {
		return err
	}
	if !p.Dispatch {
		return nil
	}

	topic := conv.(*telemetry.Converter).DispatchTopic(cfg.Federate)
	d := relay.NewDispatcher("dispatcher", broker, conv, topic, b.Vehicles().DispatchTaxi)
	return lm.AddComponent(d, broker.ID(), b.ID())
}

func subscribe(ctx context.Context, b *bridge.Bridge, subs config.Subscriptions) error {
	window := subs.TypesWindow()
	sim := b.Simulation()
	calls := map[types.EntityKind]func(context.Context, string, types.Window) error{
		types.KindVehicle:       b.Vehicles().Subscribe,
		types.KindPerson:        b.Persons().Subscribe,
		types.KindInductionLoop: sim.SubscribeInductionLoop,
		types.KindLaneArea:      sim.SubscribeLaneArea,
		types.KindTrafficLight:  sim.SubscribeTrafficLight,
	}
	byKind := subs.ByKind()
	for _, kind := range types.EntityKinds {
		for _, id := range byKind[kind] {
			err := calls[kind](ctx, id, window)
			if err == nil {
				continue
			}
			if errors.IsFatal(err) {
				return err
			}
			log.WithError(err).WithFields(logrus.Fields{"kind": kind, "id": id}).Warn("Subscription rejected")
		}
	}
	return nil
}

// loop steps until the configured step count, an interrupt, or a fatal error.
// Recoverable step errors are logged and the loop continues.
func loop(ctx context.Context, b *bridge.Bridge, control config.Control) error {
	sim := b.Simulation()
	pace := time.Duration(control.StepLength * control.Pace * float64(time.Second))

	for n := 0; control.Steps == 0 || n < control.Steps; n++ {
		started := time.Now()
		results, err := sim.Advance(ctx, control.StepLength)
		switch {
		case err == nil:
			log.WithFields(logrus.Fields{
				"time":    sim.Time(),
				"results": len(results),
			}).Trace("Step")
		case ctx.Err() != nil:
			log.Info("Interrupted")
			return nil
		case errors.IsFatal(err):
			return err
		default:
			log.WithError(err).Warn("Step failed")
		}

		if wait := pace - time.Since(started); wait > 0 {
			select {
			case <-ctx.Done():
				log.Info("Interrupted")
				return nil
			case <-time.After(wait):
			}
		}
		if ctx.Err() != nil {
			log.Info("Interrupted")
			return nil
		}
	}
	log.WithFields(logrus.Fields{"steps": b.Steps(), "time": b.Time()}).Info("Run complete")
	return nil
}
