package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/kalifun/tracilink/pkg/core"
	"github.com/kalifun/tracilink/pkg/types"
	"github.com/sirupsen/logrus"
)

// DefaultBufferSize is the channel capacity of each subscriber.
const DefaultBufferSize = 64

// UpdateBus is an in-memory implementation of core.UpdateBus. Topics are
// types.StepUpdateTopic values.
type UpdateBus struct {
	id          string
	bufferSize  int
	mu          sync.RWMutex
	subscribers map[string][]chan *types.StepUpdate
	ctx         context.Context
	cancel      context.CancelFunc
	logger      *logrus.Entry
}

var _ core.UpdateBus = (*UpdateBus)(nil)

func NewUpdateBus(id string, bufferSize int) *UpdateBus {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	return &UpdateBus{
		id:          id,
		bufferSize:  bufferSize,
		subscribers: make(map[string][]chan *types.StepUpdate),
		logger:      logrus.WithField("component", id),
	}
}

func (b *UpdateBus) ID() string {
	return b.id
}

func (b *UpdateBus) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.cancel != nil {
		return fmt.Errorf("update bus %s is already running", b.id)
	}

	b.ctx, b.cancel = context.WithCancel(context.WithoutCancel(ctx))
	b.logger.Info("Update bus started")
	return nil
}

func (b *UpdateBus) Stop(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.cancel == nil {
		return fmt.Errorf("update bus %s is not running", b.id)
	}

	b.cancel()
	b.cancel = nil

	// closing signals completion to every consumer
	for topic, subscribers := range b.subscribers {
		for _, ch := range subscribers {
			close(ch)
		}
		delete(b.subscribers, topic)
	}
	b.logger.Info("Update bus stopped")
	return nil
}

func (b *UpdateBus) stopped() error {
	if b.ctx == nil {
		return fmt.Errorf("update bus %s is not running", b.id)
	}
	if err := b.ctx.Err(); err != nil {
		return fmt.Errorf("update bus is stopped: %w", err)
	}
	return nil
}

// Publish hands update to every subscriber of its kind's topic. A full
// subscriber drops the update instead of blocking the step loop.
func (b *UpdateBus) Publish(ctx context.Context, update *types.StepUpdate) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if err := b.stopped(); err != nil {
		return err
	}

	topic := types.StepUpdateTopic(update.Kind)
	subscribers, ok := b.subscribers[topic]
	if !ok {
		b.logger.WithField("topic", topic).Debug("No subscribers for topic")
		return nil
	}

	b.logger.WithFields(logrus.Fields{
		"topic":   topic,
		"count":   len(subscribers),
		"step":    update.Step,
		"results": len(update.Results),
	}).Debug("Publishing update to subscribers")

	for _, ch := range subscribers {
		select {
		case ch <- update:
		case <-ctx.Done():
			return ctx.Err()
		default:
			b.logger.WithField("topic", topic).Warn("Subscriber channel is full. Update dropped.")
		}
	}
	return nil
}

func (b *UpdateBus) Subscribe(ctx context.Context, topic string) (<-chan *types.StepUpdate, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.stopped(); err != nil {
		return nil, err
	}

	ch := make(chan *types.StepUpdate, b.bufferSize)
	b.subscribers[topic] = append(b.subscribers[topic], ch)
	b.logger.WithField("topic", topic).Debug("New subscription added")
	return ch, nil
}

func (b *UpdateBus) Unsubscribe(ctx context.Context, topic string, sub <-chan *types.StepUpdate) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.stopped(); err != nil {
		return err
	}

	subscribers, ok := b.subscribers[topic]
	if !ok {
		return fmt.Errorf("no subscribers for topic: %s", topic)
	}

	for i, ch := range subscribers {
		if ch == sub {
			close(ch)
			subscribers[i] = subscribers[len(subscribers)-1]
			b.subscribers[topic] = subscribers[:len(subscribers)-1]
			b.logger.WithField("topic", topic).Debug("Subscription removed")
			return nil
		}
	}
	return fmt.Errorf("subscription channel not found for topic: %s", topic)
}
