// Package metrics exposes Prometheus instruments for simulator commands and steps.
package metrics

import (
	"time"

	"github.com/kalifun/tracilink/errors"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "tracilink"

// Collector holds the bridge metrics. A nil *Collector records nothing.
type Collector struct {
	commands        *prometheus.CounterVec   // backend, contract, status
	commandDuration *prometheus.HistogramVec // backend, contract
	steps           prometheus.Counter
	stepDuration    prometheus.Histogram
	simulationTime  prometheus.Gauge
	subscriptions   *prometheus.GaugeVec // kind
	stepResults     *prometheus.CounterVec
}

// NewCollector creates the instruments and registers them with reg.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	c := &Collector{
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "command",
			Name:      "total",
			Help:      "Simulator commands executed, by outcome",
		}, []string{"backend", "contract", "status"}), // status: ok, recoverable, fatal

		commandDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "command",
			Name:      "duration_seconds",
			Help:      "Simulator command round trip in seconds",
			Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		}, []string{"backend", "contract"}),

		steps: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "step",
			Name:      "total",
			Help:      "Simulation steps completed",
		}),

		stepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "step",
			Name:      "duration_seconds",
			Help:      "Wall time of one simulation step including result decoding",
			Buckets:   prometheus.DefBuckets,
		}),

		simulationTime: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "step",
			Name:      "simulation_time_seconds",
			Help:      "Simulation time reached by the last step",
		}),

		subscriptions: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "subscription",
			Name:      "active",
			Help:      "Subscribed entities by kind",
		}, []string{"kind"}),

		stepResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "step",
			Name:      "results_total",
			Help:      "Subscription results reported, by kind",
		}, []string{"kind"}),
	}

	for _, col := range []prometheus.Collector{
		c.commands, c.commandDuration, c.steps, c.stepDuration,
		c.simulationTime, c.subscriptions, c.stepResults,
	} {
		if err := reg.Register(col); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// ObserveCommand records one command execution.
func (c *Collector) ObserveCommand(backend, contract string, duration time.Duration, err error) {
	if c == nil {
		return
	}
	c.commands.WithLabelValues(backend, contract, Status(err)).Inc()
	c.commandDuration.WithLabelValues(backend, contract).Observe(duration.Seconds())
}

// ObserveStep records a completed step and its per-kind result counts.
func (c *Collector) ObserveStep(duration time.Duration, simTime float64, results map[string]int) {
	if c == nil {
		return
	}
	c.steps.Inc()
	c.stepDuration.Observe(duration.Seconds())
	c.simulationTime.Set(simTime)
	for kind, n := range results {
		c.stepResults.WithLabelValues(kind).Add(float64(n))
	}
}

// SetSubscriptions records the size of one kind's subscription set.
func (c *Collector) SetSubscriptions(kind string, n int) {
	if c == nil {
		return
	}
	c.subscriptions.WithLabelValues(kind).Set(float64(n))
}

// Status is the status label of an error.
func Status(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.IsRecoverable(err):
		return "recoverable"
	default:
		return "fatal"
	}
}
