// Package telemetry converts step updates into JSON messages for an outer
// transport, one message per entity, and reads dispatch requests back.
package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kalifun/tracilink/errors"
	"github.com/kalifun/tracilink/pkg/converter"
	"github.com/kalifun/tracilink/pkg/types"
)

const (
	DefaultPrefix = "tracilink"
	dispatchLevel = "dispatch"
)

// topicEscaper keeps IDs within one topic level and free of MQTT wildcards.
var topicEscaper = strings.NewReplacer("/", "%2F", "+", "%2B", "#", "%23")

// Envelope is the payload of every published entity message.
type Envelope struct {
	Federate string                   `json:"federate"`
	Step     uint64                   `json:"step"`
	Time     float64                  `json:"time"`
	Kind     types.EntityKind         `json:"kind"`
	ID       string                   `json:"id"`
	Data     types.SubscriptionResult `json:"data"`
}

type Config struct {
	// Prefix is the first topic level.
	Prefix string `json:"prefix" yaml:"prefix"`
	Indent bool   `json:"indent" yaml:"indent"`
}

// Converter implements converter.Converter. Entity messages go to
// <prefix>/<federate>/<kind>/<id>, dispatch requests are read from
// <prefix>/<federate>/dispatch.
type Converter struct {
	config Config
}

var _ converter.Converter = (*Converter)(nil)

func New(config Config) *Converter {
	if config.Prefix == "" {
		config.Prefix = DefaultPrefix
	}
	return &Converter{config: config}
}

// EntityTopic is the topic one entity's state is published on.
func (c *Converter) EntityTopic(federate string, kind types.EntityKind, id string) string {
	return fmt.Sprintf("%s/%s/%s/%s", c.config.Prefix, topicEscaper.Replace(federate), kind, topicEscaper.Replace(id))
}

// DispatchTopic is the topic dispatch requests for federate arrive on.
func (c *Converter) DispatchTopic(federate string) string {
	return fmt.Sprintf("%s/%s/%s", c.config.Prefix, topicEscaper.Replace(federate), dispatchLevel)
}

// ToDispatch reads a dispatch request. The topic must end in the dispatch level.
func (c *Converter) ToDispatch(ctx context.Context, tmsg *types.TransportMessage) (*types.DispatchRequest, error) {
	if tmsg == nil {
		return nil, errors.InvalidArgument.Args("transport message cannot be nil")
	}
	parts := strings.Split(tmsg.Topic, "/")
	if len(parts) != 3 || parts[0] != c.config.Prefix || parts[2] != dispatchLevel {
		return nil, errors.InvalidArgument.Args(fmt.Sprintf("invalid dispatch topic %s, expected %s/<federate>/%s", tmsg.Topic, c.config.Prefix, dispatchLevel))
	}

	var req types.DispatchRequest
	if err := json.Unmarshal(tmsg.Payload, &req); err != nil {
		return nil, errors.InvalidArgument.Wrap(err, "dispatch payload is not valid JSON")
	}
	if req.VehicleID == "" {
		return nil, errors.InvalidArgument.Args("dispatch request without vehicleId")
	}
	if len(req.ReservationIDs) == 0 {
		return nil, errors.InvalidArgument.Args("dispatch request without reservationIds")
	}
	for _, id := range req.ReservationIDs {
		if id == "" {
			return nil, errors.InvalidArgument.Args("dispatch request with an empty reservation id")
		}
	}
	return &req, nil
}

// FromUpdate converts a step update to one publish message per result.
func (c *Converter) FromUpdate(ctx context.Context, update *types.StepUpdate) ([]*types.TransportPublish, error) {
	if err := c.Validate(ctx, update); err != nil {
		return nil, err
	}

	out := make([]*types.TransportPublish, 0, len(update.Results))
	for _, r := range update.Results {
		env := Envelope{
			Federate: update.Federate,
			Step:     update.Step,
			Time:     update.Time,
			Kind:     r.Kind(),
			ID:       r.EntityID(),
			Data:     r,
		}
		var (
			payload []byte
			err     error
		)
		if c.config.Indent {
			payload, err = json.MarshalIndent(env, "", "  ")
		} else {
			payload, err = json.Marshal(env)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to marshal %s %s: %w", r.Kind(), r.EntityID(), err)
		}
		out = append(out, &types.TransportPublish{
			Topic:   c.EntityTopic(update.Federate, r.Kind(), r.EntityID()),
			Payload: payload,
		})
	}
	return out, nil
}

// GetSupportedKinds returns the entity kinds this converter supports
func (c *Converter) GetSupportedKinds() []types.EntityKind {
	return append([]types.EntityKind{}, types.EntityKinds...)
}

// Validate validates a step update
func (c *Converter) Validate(ctx context.Context, update *types.StepUpdate) error {
	if update == nil {
		return errors.InvalidArgument.Args("step update cannot be nil")
	}
	if update.Federate == "" {
		return errors.InvalidArgument.Args("step update without federate")
	}
	if !update.Kind.Valid() {
		return errors.InvalidArgument.Args(fmt.Sprintf("unsupported entity kind %q", update.Kind))
	}
	for _, r := range update.Results {
		if r == nil {
			return errors.InvalidArgument.Args("step update with a nil result")
		}
		if r.Kind() != update.Kind {
			return errors.InvalidArgument.Args(fmt.Sprintf("%s result in a %s update", r.Kind(), update.Kind))
		}
		if r.EntityID() == "" {
			return errors.InvalidArgument.Args(fmt.Sprintf("%s result without id", r.Kind()))
		}
	}
	return nil
}

// NewConverterFactory reads "prefix" and "indent".
func NewConverterFactory() converter.ConverterFactory {
	return func(config map[string]interface{}) (converter.Converter, error) {
		var cfg Config
		if v, ok := config["prefix"]; ok {
			prefix, ok := v.(string)
			if !ok || prefix == "" || strings.ContainsAny(prefix, "/+#") {
				return nil, errors.ConfigurationError.Args("telemetry prefix must be a single topic level")
			}
			cfg.Prefix = prefix
		}
		if v, ok := config["indent"]; ok {
			indent, ok := v.(bool)
			if !ok {
				return nil, errors.ConfigurationError.Args("telemetry indent must be a boolean")
			}
			cfg.Indent = indent
		}
		return New(cfg), nil
	}
}
