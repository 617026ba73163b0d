// Package config loads the YAML file describing one bridge process.
package config

import (
	"bytes"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/kalifun/tracilink/errors"
	"github.com/kalifun/tracilink/pkg/core"
	"github.com/kalifun/tracilink/pkg/types"
	"gopkg.in/yaml.v3"
)

// Extras selects the optional parts of vehicle results.
type Extras struct {
	Emissions       bool    `yaml:"emissions"`
	Leader          bool    `yaml:"leader"`
	Signals         bool    `yaml:"signals"`
	Taxi            bool    `yaml:"taxi"`
	LeaderLookahead float64 `yaml:"leader_lookahead,omitempty"` // meters
}

func (e Extras) VehicleExtras() types.VehicleExtras {
	return types.VehicleExtras{
		Emissions:       e.Emissions,
		Leader:          e.Leader,
		Signals:         e.Signals,
		Taxi:            e.Taxi,
		LeaderLookahead: e.LeaderLookahead,
	}
}

// Simulator selects and configures the backend.
type Simulator struct {
	Backend core.Backend `yaml:"backend"`
	// Options is handed to the backend's transport factory unchanged.
	Options map[string]interface{} `yaml:"options"`
	Extras  Extras                 `yaml:"extras"`
}

// TransportOptions returns Options with the vehicle extras added.
func (s Simulator) TransportOptions() map[string]interface{} {
	out := make(map[string]interface{}, len(s.Options)+1)
	for k, v := range s.Options {
		out[k] = v
	}
	out["extras"] = s.Extras.VehicleExtras()
	return out
}

// Control is the stepping loop of the run command.
type Control struct {
	StepLength float64 `yaml:"step_length"`    // seconds per Advance
	Steps      int     `yaml:"steps"`          // 0 runs until interrupted
	Pace       float64 `yaml:"pace,omitempty"` // wall-clock seconds per simulated second, 0 is unpaced
}

type Window struct {
	Begin float64 `yaml:"begin"`
	End   float64 `yaml:"end"`
}

// Subscriptions are made once after start. Vehicle and person IDs are
// canonical, the others native.
type Subscriptions struct {
	Window         Window   `yaml:"window,omitempty"`
	Vehicles       []string `yaml:"vehicles,omitempty"`
	Persons        []string `yaml:"persons,omitempty"`
	InductionLoops []string `yaml:"induction_loops,omitempty"`
	LaneAreas      []string `yaml:"lane_areas,omitempty"`
	TrafficLights  []string `yaml:"traffic_lights,omitempty"`
}

// ByKind returns the configured IDs per entity kind.
func (s Subscriptions) ByKind() map[types.EntityKind][]string {
	return map[types.EntityKind][]string{
		types.KindVehicle:       s.Vehicles,
		types.KindPerson:        s.Persons,
		types.KindInductionLoop: s.InductionLoops,
		types.KindLaneArea:      s.LaneAreas,
		types.KindTrafficLight:  s.TrafficLights,
	}
}

func (s Subscriptions) TypesWindow() types.Window {
	return types.Window{Begin: s.Window.Begin, End: s.Window.End}
}

// Publish forwards step updates to MQTT. Nil disables it.
type Publish struct {
	MQTT      map[string]interface{} `yaml:"mqtt"`
	Telemetry map[string]interface{} `yaml:"telemetry,omitempty"`
	QoS       byte                   `yaml:"qos"`
	Retain    bool                   `yaml:"retain"`
	Kinds     []types.EntityKind     `yaml:"kinds,omitempty"` // empty publishes every kind
	Dispatch  bool                   `yaml:"dispatch"`        // accept dispatch requests
}

type Metrics struct {
	Listen string `yaml:"listen"` // e.g. ":9090"; empty disables the endpoint
	Path   string `yaml:"path,omitempty"`
}

type Config struct {
	Federate      string        `yaml:"federate"`
	VehiclePrefix string        `yaml:"vehicle_prefix,omitempty"`
	PersonPrefix  string        `yaml:"person_prefix,omitempty"`
	BusBuffer     int           `yaml:"bus_buffer,omitempty"`
	Simulator     Simulator     `yaml:"simulator"`
	Control       Control       `yaml:"control"`
	Subscriptions Subscriptions `yaml:"subscriptions"`
	Publish       *Publish      `yaml:"publish,omitempty"`
	Metrics       Metrics       `yaml:"metrics"`
}

const (
	DefaultStepLength  = 1.0
	DefaultBusBuffer   = 64
	DefaultMetricsPath = "/metrics"
)

// Load decodes a configuration. Unknown fields are rejected.
func Load(r io.Reader) (*Config, error) {
	var c Config
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&c); err != nil {
		if err == io.EOF {
			return nil, errors.ConfigurationError.Args("empty configuration")
		}
		return nil, errors.ConfigurationError.Wrap(err, err.Error())
	}
	c.setDefaults()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func LoadBytes(data []byte) (*Config, error) {
	return Load(bytes.NewReader(data))
}

func LoadFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.ConfigurationError.Wrap(err, fmt.Sprintf("open %s", path))
	}
	defer f.Close()
	return Load(f)
}

func (c *Config) setDefaults() {
	if c.Federate == "" {
		c.Federate = "sumo"
	}
	if c.Simulator.Backend == "" {
		c.Simulator.Backend = core.BackendTraCI
	}
	if c.Control.StepLength == 0 {
		c.Control.StepLength = DefaultStepLength
	}
	if c.BusBuffer == 0 {
		c.BusBuffer = DefaultBusBuffer
	}
	if c.Metrics.Listen != "" && c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}
}

func (c *Config) Validate() error {
	switch c.Simulator.Backend {
	case core.BackendTraCI, core.BackendLibsumo:
	default:
		return errors.ConfigurationError.Args(fmt.Sprintf("unknown backend %q", c.Simulator.Backend))
	}
	if math.IsNaN(c.Control.StepLength) || math.IsInf(c.Control.StepLength, 0) || c.Control.StepLength <= 0 {
		return errors.ConfigurationError.Args("control.step_length must be positive")
	}
	if c.Control.Steps < 0 {
		return errors.ConfigurationError.Args("control.steps must not be negative")
	}
	if c.Control.Pace < 0 {
		return errors.ConfigurationError.Args("control.pace must not be negative")
	}
	if c.BusBuffer < 0 {
		return errors.ConfigurationError.Args("bus_buffer must not be negative")
	}
	if w := c.Subscriptions.Window; w.End < w.Begin {
		return errors.ConfigurationError.Args("subscriptions.window ends before it begins")
	}
	if p := c.Publish; p != nil {
		if len(p.MQTT) == 0 {
			return errors.ConfigurationError.Args("publish.mqtt is required when publishing")
		}
		if p.QoS > 2 {
			return errors.ConfigurationError.Args("publish.qos must be 0, 1, or 2")
		}
		for _, k := range p.Kinds {
			if !k.Valid() {
				return errors.ConfigurationError.Args(fmt.Sprintf("publish.kinds: unknown entity kind %q", k))
			}
		}
	}
	return nil
}
