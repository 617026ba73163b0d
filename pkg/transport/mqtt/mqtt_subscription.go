package mqtt

import (
	"context"
	"sync"

	"github.com/kalifun/tracilink/errors"
	"github.com/sirupsen/logrus"
)

// Subscription is one active topic subscription of a Transport.
type Subscription struct {
	topic     string
	transport *Transport
	mu        sync.RWMutex
	active    bool
}

func (ms *Subscription) Unsubscribe(ctx context.Context) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	if !ms.active {
		return errors.SubscriptionFailed.Args(ms.topic)
	}

	client := ms.transport.client
	if client == nil || !client.IsConnected() {
		return errors.ClientNotConnected.Args(ms.transport.config.ClientID)
	}

	logger := ms.transport.logger.WithField("topic", ms.topic)
	logger.Info("Unsubscribing from MQTT topic")

	token := client.Unsubscribe(ms.topic)
	if token.Wait() && token.Error() != nil {
		logger.WithError(token.Error()).Error("MQTT unsubscribe failed")
		return errors.SubscriptionFailed.Wrap(token.Error(), ms.topic)
	}

	ms.transport.removeSubscription(ms.topic)
	ms.active = false

	logger.WithFields(logrus.Fields{"transport_id": ms.transport.id}).Info("Successfully unsubscribed from MQTT topic")
	return nil
}

func (ms *Subscription) Topic() string {
	return ms.topic
}

func (ms *Subscription) Active() bool {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	return ms.active
}

func (ms *Subscription) deactivate() {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.active = false
}
