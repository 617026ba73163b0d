package converter

import (
	"context"

	"github.com/kalifun/tracilink/pkg/types"
)

// Converter maps between bridge values and outer transport messages
type Converter interface {
	// ToDispatch converts an inbound transport message to a taxi dispatch request
	ToDispatch(ctx context.Context, tmsg *types.TransportMessage) (*types.DispatchRequest, error)

	// FromUpdate converts a step update to one publish message per result
	FromUpdate(ctx context.Context, update *types.StepUpdate) ([]*types.TransportPublish, error)

	// GetSupportedKinds returns the entity kinds this converter supports
	GetSupportedKinds() []types.EntityKind

	// Validate validates a step update
	Validate(ctx context.Context, update *types.StepUpdate) error
}

// ConverterFactory creates converter instances
type ConverterFactory func(config map[string]interface{}) (Converter, error)
