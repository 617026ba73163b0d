package core

import (
	"context"
	"time"

	"github.com/kalifun/tracilink/pkg/types"
	"github.com/kalifun/tracilink/pkg/version"
)

// Backend names a simulator transport variant.
type Backend string

const (
	BackendTraCI   Backend = "traci"
	BackendLibsumo Backend = "libsumo"
)

// Transport is one simulator backend. Both implementations satisfy the same
// command contracts through their CommandTable.
type Transport interface {
	LifecycleComponent
	ID() string
	Backend() Backend
	// APIVersion is the negotiated version; zero before Start.
	APIVersion() version.APIVersion
	// SimulatorVersion is the identifier the simulator reported at Start.
	SimulatorVersion() string
	// Commands returns the backend's command implementations. The table is
	// fixed for the transport's lifetime and may be taken before Start.
	Commands() CommandTable
}

// TransportFactory creates transport instances
type TransportFactory func(config map[string]interface{}) (Transport, error)

// Publisher is an outer message transport that decoded updates are sent through.
type Publisher interface {
	LifecycleComponent
	ID() string
	Publish(ctx context.Context, topic string, payload []byte, opts PublishOptions) error
	Subscribe(ctx context.Context, topic string, handler MessageHandler) (Subscription, error)
}

// PublishOptions for publishing messages
type PublishOptions struct {
	QoS     byte
	Retain  bool
	TimeOut time.Duration
}

type MessageHandler = func(ctx context.Context, msg *Message) error

// Message represents a transport-level message
type Message struct {
	Topic   string
	Payload []byte
	Meta    map[string]string
	Time    time.Time
}

// Subscription represents a message subscription
type Subscription interface {
	Unsubscribe(ctx context.Context) error
	Topic() string
}

// UpdateBus fans step updates out to in-process consumers.
type UpdateBus interface {
	LifecycleComponent
	Publish(ctx context.Context, update *types.StepUpdate) error
	Subscribe(ctx context.Context, topic string) (<-chan *types.StepUpdate, error)
	Unsubscribe(ctx context.Context, topic string, sub <-chan *types.StepUpdate) error
}

// Processor consumes step updates of one entity kind.
type Processor interface {
	Process(ctx context.Context, update *types.StepUpdate) error
	Kind() types.EntityKind // Returns the entity kind this processor handles
}
