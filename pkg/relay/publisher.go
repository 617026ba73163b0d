// Package relay connects the bridge to an outer message transport: step
// updates go out as telemetry, dispatch requests come back in.
package relay

import (
	"context"

	"github.com/google/uuid"
	"github.com/kalifun/tracilink/pkg/converter"
	"github.com/kalifun/tracilink/pkg/core"
	"github.com/kalifun/tracilink/pkg/types"
	"github.com/sirupsen/logrus"
)

// Publisher is a processor that converts every step update and publishes
// the resulting messages.
type Publisher struct {
	id        string
	transport core.Publisher
	conv      converter.Converter
	kind      types.EntityKind
	opts      core.PublishOptions
	logger    *logrus.Entry
}

var _ core.Processor = (*Publisher)(nil)

// NewPublisher handles updates of kind; types.KindWildcard handles all kinds.
func NewPublisher(transport core.Publisher, conv converter.Converter, kind types.EntityKind, opts core.PublishOptions) *Publisher {
	id := "publisher-" + uuid.NewString()[:8]
	return &Publisher{
		id:        id,
		transport: transport,
		conv:      conv,
		kind:      kind,
		opts:      opts,
		logger: logrus.WithFields(logrus.Fields{
			"component":    id,
			"transport_id": transport.ID(),
		}),
	}
}

func (p *Publisher) ID() string {
	return p.id
}

func (p *Publisher) Kind() types.EntityKind {
	return p.kind
}

// Process publishes one message per result. Every message is attempted;
// the first failure is returned.
func (p *Publisher) Process(ctx context.Context, update *types.StepUpdate) error {
	msgs, err := p.conv.FromUpdate(ctx, update)
	if err != nil {
		return err
	}

	var first error
	failed := 0
	for _, msg := range msgs {
		if err := p.transport.Publish(ctx, msg.Topic, msg.Payload, p.opts); err != nil {
			failed++
			if first == nil {
				first = err
			}
		}
	}
	if failed > 0 {
		p.logger.WithFields(logrus.Fields{
			"kind":   update.Kind,
			"step":   update.Step,
			"failed": failed,
			"total":  len(msgs),
		}).Warn("Some step messages were not published")
	}
	return first
}
