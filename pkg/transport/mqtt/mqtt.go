// Package mqtt publishes bridge telemetry to an MQTT broker and receives
// dispatch requests from it.
package mqtt

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/kalifun/tracilink/errors"
	"github.com/kalifun/tracilink/pkg/core"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
)

type Config struct {
	Broker               string        `json:"broker" yaml:"broker"`
	ClientID             string        `json:"clientId" yaml:"clientId"`
	Username             string        `json:"username" yaml:"username"`
	Password             string        `json:"password" yaml:"password"`
	QoS                  byte          `json:"qos" yaml:"qos"`
	CleanSession         bool          `json:"cleanSession" yaml:"cleanSession"`
	KeepAlive            uint16        `json:"keepAlive" yaml:"keepAlive"`
	ConnectTimeout       time.Duration `json:"connectTimeout" yaml:"connectTimeout"`
	MaxReconnectInterval time.Duration `json:"maxReconnectInterval" yaml:"maxReconnectInterval"`
	AutoReconnect        bool          `json:"autoReconnect" yaml:"autoReconnect"`
	TLSConfig            *TLSConfig    `json:"tlsConfig,omitempty" yaml:"tlsConfig,omitempty"`
	WillMessage          *WillMessage  `json:"willMessage,omitempty" yaml:"willMessage,omitempty"`
}

type TLSConfig struct {
	CAFile   string `json:"caFile" yaml:"caFile"`
	CertFile string `json:"certFile" yaml:"certFile"`
	KeyFile  string `json:"keyFile" yaml:"keyFile"`
	Insecure bool   `json:"insecure" yaml:"insecure"`
}

// WillMessage is published by the broker when the bridge disappears without
// disconnecting, typically a retained "offline" status.
type WillMessage struct {
	Topic    string `json:"topic" yaml:"topic"`
	QoS      byte   `json:"qos" yaml:"qos"`
	Retained bool   `json:"retained" yaml:"retained"`
	Payload  string `json:"payload" yaml:"payload"`
}

// Transport implements core.Publisher on a paho client.
type Transport struct {
	id            string
	config        Config
	client        mqtt.Client
	logger        *logrus.Entry
	mu            sync.RWMutex
	running       bool
	handlers      map[string]core.MessageHandler
	subscriptions map[string]*Subscription
	ctx           context.Context
	cancel        context.CancelFunc
	wg            sync.WaitGroup
}

var _ core.Publisher = (*Transport)(nil)

func NewTransport(id string, config Config) *Transport {
	return &Transport{
		id:            id,
		config:        config,
		logger:        logrus.WithFields(logrus.Fields{"component": "mqtt", "transport_id": id}),
		handlers:      make(map[string]core.MessageHandler),
		subscriptions: make(map[string]*Subscription),
	}
}

func (mt *Transport) ID() string {
	return mt.id
}

func (mt *Transport) GetConfig() Config {
	mt.mu.RLock()
	defer mt.mu.RUnlock()
	return mt.config
}

func (mt *Transport) IsRunning() bool {
	mt.mu.RLock()
	defer mt.mu.RUnlock()
	return mt.running
}

func (mt *Transport) Start(ctx context.Context) error {
	mt.mu.Lock()
	defer mt.mu.Unlock()

	if mt.running {
		return errors.TransportAlreadyRunning.Args(mt.id)
	}

	if err := mt.validateConfig(); err != nil {
		return err
	}

	mt.logger.WithFields(logrus.Fields{
		"broker":    mt.config.Broker,
		"client_id": mt.config.ClientID,
	}).Info("Starting MQTT transport")

	mt.ctx, mt.cancel = context.WithCancel(context.Background())
	if err := mt.connect(); err != nil {
		mt.cancel()
		return errors.ConnectionFailed.Wrap(err, mt.config.Broker)
	}

	mt.running = true
	mt.logger.Info("MQTT transport started successfully")
	return nil
}

func (mt *Transport) Stop(ctx context.Context) error {
	mt.mu.Lock()
	if !mt.running {
		mt.mu.Unlock()
		return errors.TransportNotRunning.Args(mt.id)
	}

	mt.logger.Info("Stopping MQTT transport")
	mt.cancel()
	if mt.client != nil && mt.client.IsConnected() {
		mt.client.Disconnect(250)
	}
	mt.running = false
	subs := lo.Values(mt.subscriptions)
	mt.subscriptions = make(map[string]*Subscription)
	mt.handlers = make(map[string]core.MessageHandler)
	mt.mu.Unlock()

	for _, sub := range subs {
		sub.deactivate()
	}

	// in-flight handlers see a cancelled context
	mt.wg.Wait()
	mt.logger.Info("MQTT transport stopped successfully")
	return nil
}

func (mt *Transport) Publish(ctx context.Context, topic string, payload []byte, opts core.PublishOptions) error {
	mt.mu.RLock()
	defer mt.mu.RUnlock()

	if !mt.running {
		return errors.TransportNotRunning.Args(mt.id)
	}
	if mt.client == nil || !mt.client.IsConnected() {
		return errors.ClientNotConnected.Args(mt.config.ClientID)
	}

	mt.logger.WithFields(logrus.Fields{
		"topic":        topic,
		"payload_size": len(payload),
		"qos":          opts.QoS,
		"retain":       opts.Retain,
	}).Debug("Publishing MQTT message")

	token := mt.client.Publish(topic, opts.QoS, opts.Retain, payload)
	if opts.TimeOut > 0 {
		select {
		case <-token.Done():
			if token.Error() != nil {
				mt.logger.WithError(token.Error()).Error("MQTT publish failed")
				return errors.PublishFailed.Wrap(token.Error(), topic)
			}
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(opts.TimeOut):
			return errors.TimeoutError.Args("publish to " + topic)
		}
	} else if token.Wait() && token.Error() != nil {
		mt.logger.WithError(token.Error()).Error("MQTT publish failed")
		return errors.PublishFailed.Wrap(token.Error(), topic)
	}

	mt.logger.WithField("topic", topic).Debug("MQTT message published successfully")
	return nil
}

func (mt *Transport) Subscribe(ctx context.Context, topic string, handler core.MessageHandler) (core.Subscription, error) {
	mt.mu.Lock()
	defer mt.mu.Unlock()
	if !mt.running {
		return nil, errors.TransportNotRunning.Args(mt.id)
	}
	if mt.client == nil || !mt.client.IsConnected() {
		return nil, errors.ClientNotConnected.Args(mt.config.ClientID)
	}

	mt.logger.WithFields(logrus.Fields{
		"topic": topic,
		"qos":   mt.config.QoS,
	}).Info("Subscribing to MQTT topic")

	token := mt.client.Subscribe(topic, mt.config.QoS, func(c mqtt.Client, m mqtt.Message) {
		mt.handleMessage(m, handler)
	})
	if token.WaitTimeout(mt.config.ConnectTimeout) && token.Error() != nil {
		mt.logger.WithError(token.Error()).Error("MQTT subscription failed")
		return nil, errors.SubscriptionFailed.Wrap(token.Error(), topic)
	}

	sub := &Subscription{
		topic:     topic,
		transport: mt,
		active:    true,
	}
	mt.handlers[topic] = handler
	mt.subscriptions[topic] = sub

	mt.logger.WithField("topic", topic).Info("Successfully subscribed to MQTT topic")
	return sub, nil
}

// validateConfig validates MQTT configuration
func (mt *Transport) validateConfig() error {
	if mt.config.Broker == "" {
		return errors.ConfigurationError.Args("broker URL is required")
	}

	if mt.config.ClientID == "" {
		return errors.ConfigurationError.Args("client ID is required")
	}

	if mt.config.QoS > 2 {
		return errors.ConfigurationError.Args("QoS must be 0, 1, or 2")
	}

	if mt.config.WillMessage != nil && mt.config.WillMessage.Topic == "" {
		return errors.ConfigurationError.Args("will message needs a topic")
	}

	if mt.config.ConnectTimeout <= 0 {
		mt.config.ConnectTimeout = 30 * time.Second
	}

	if mt.config.MaxReconnectInterval <= 0 {
		mt.config.MaxReconnectInterval = 10 * time.Minute
	}
	return nil
}

func (mt *Transport) connect() error {
	mqttOpts := mqtt.NewClientOptions()
	mqttOpts.AddBroker(mt.config.Broker)
	mqttOpts.SetClientID(mt.config.ClientID)
	mqttOpts.SetUsername(mt.config.Username)
	mqttOpts.SetPassword(mt.config.Password)
	mqttOpts.SetCleanSession(mt.config.CleanSession)
	mqttOpts.SetKeepAlive(time.Duration(mt.config.KeepAlive) * time.Second)
	mqttOpts.SetAutoReconnect(mt.config.AutoReconnect)
	mqttOpts.SetMaxReconnectInterval(mt.config.MaxReconnectInterval)
	mqttOpts.SetConnectTimeout(mt.config.ConnectTimeout)

	if mt.config.TLSConfig != nil {
		tlsConfig, err := newTLSConfig(mt.config.TLSConfig)
		if err != nil {
			return err
		}
		mqttOpts.SetTLSConfig(tlsConfig)
	}

	if mt.config.WillMessage != nil {
		mqttOpts.SetWill(mt.config.WillMessage.Topic,
			mt.config.WillMessage.Payload,
			mt.config.WillMessage.QoS,
			mt.config.WillMessage.Retained)
	}

	mqttOpts.OnConnect = mt.onConnect
	mqttOpts.OnReconnecting = mt.onReconnecting
	mqttOpts.OnConnectionLost = mt.onConnectionLost

	mt.client = mqtt.NewClient(mqttOpts)
	connectToken := mt.client.Connect()
	if connectToken.WaitTimeout(mt.config.ConnectTimeout) {
		return connectToken.Error()
	}
	return fmt.Errorf("no answer from broker within %s", mt.config.ConnectTimeout)
}

func newTLSConfig(c *TLSConfig) (*tls.Config, error) {
	config := &tls.Config{InsecureSkipVerify: c.Insecure}
	if c.CAFile != "" {
		pem, err := os.ReadFile(c.CAFile)
		if err != nil {
			return nil, errors.ConfigurationError.Wrap(err, "reading CA file "+c.CAFile)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, errors.ConfigurationError.Args("no certificates in " + c.CAFile)
		}
		config.RootCAs = pool
	}
	if c.CertFile != "" || c.KeyFile != "" {
		cert, err := tls.LoadX509KeyPair(c.CertFile, c.KeyFile)
		if err != nil {
			return nil, errors.ConfigurationError.Wrap(err, "loading client certificate")
		}
		config.Certificates = []tls.Certificate{cert}
	}
	return config, nil
}

func (mt *Transport) onConnect(client mqtt.Client) {
	mt.logger.WithField("broker", mt.config.Broker).Info("MQTT connection established")
}

func (mt *Transport) onConnectionLost(client mqtt.Client, err error) {
	mt.logger.WithError(err).Error("MQTT connection lost")
}

func (mt *Transport) onReconnecting(client mqtt.Client, opts *mqtt.ClientOptions) {
	mt.logger.WithField("broker", mt.config.Broker).Info("Attempting to reconnect to MQTT broker")
}

// handleMessage processes incoming MQTT messages
func (mt *Transport) handleMessage(msg mqtt.Message, handler core.MessageHandler) {
	mt.logger.WithFields(logrus.Fields{
		"topic":        msg.Topic(),
		"payload_size": len(msg.Payload()),
		"qos":          msg.Qos(),
		"retained":     msg.Retained(),
	}).Debug("Received MQTT message")

	message := &core.Message{
		Topic:   msg.Topic(),
		Payload: msg.Payload(),
		Meta: map[string]string{
			"source":     "mqtt",
			"qos":        fmt.Sprintf("%d", msg.Qos()),
			"retained":   fmt.Sprintf("%t", msg.Retained()),
			"message_id": fmt.Sprintf("%d", msg.MessageID()),
		},
		Time: time.Now(),
	}

	mt.mu.RLock()
	ctx := mt.ctx
	if !mt.running {
		mt.mu.RUnlock()
		return
	}
	mt.wg.Add(1)
	mt.mu.RUnlock()

	go func() {
		defer mt.wg.Done()
		if err := handler(ctx, message); err != nil {
			mt.logger.WithFields(logrus.Fields{
				"topic": msg.Topic(),
				"error": err.Error(),
			}).Error("MQTT message handler error")
		}
		msg.Ack()
	}()
}

// removeSubscription removes a subscription from internal tracking
func (mt *Transport) removeSubscription(topic string) {
	mt.mu.Lock()
	defer mt.mu.Unlock()

	delete(mt.handlers, topic)
	delete(mt.subscriptions, topic)
}
