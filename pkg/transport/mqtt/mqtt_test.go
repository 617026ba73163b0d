package mqtt

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/kalifun/tracilink/errors"
	"github.com/kalifun/tracilink/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestTransportCreation tests creating a new MQTT transport
func TestTransportCreation(t *testing.T) {
	config := Config{
		Broker:       "tcp://localhost:1883",
		ClientID:     "test-client",
		Username:     "test-user",
		Password:     "test-pass",
		QoS:          1,
		CleanSession: true,
		KeepAlive:    30,
	}

	transport := NewTransport("test-transport", config)

	assert.NotNil(t, transport)
	assert.Equal(t, "test-transport", transport.ID())
	assert.Equal(t, config, transport.GetConfig())
	assert.False(t, transport.IsRunning())
}

// TestTransportConfigValidation tests configuration validation
func TestTransportConfigValidation(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{
			name: "Valid config",
			config: Config{
				Broker:   "tcp://localhost:1883",
				ClientID: "test-client",
				QoS:      1,
			},
		},
		{
			name: "Missing broker",
			config: Config{
				ClientID: "test-client",
				QoS:      1,
			},
			wantErr: true,
		},
		{
			name: "Missing client ID",
			config: Config{
				Broker: "tcp://localhost:1883",
				QoS:    1,
			},
			wantErr: true,
		},
		{
			name: "Invalid QoS",
			config: Config{
				Broker:   "tcp://localhost:1883",
				ClientID: "test-client",
				QoS:      3,
			},
			wantErr: true,
		},
		{
			name: "Will without topic",
			config: Config{
				Broker:      "tcp://localhost:1883",
				ClientID:    "test-client",
				WillMessage: &WillMessage{Payload: "offline"},
			},
			wantErr: true,
		},
		{
			name: "Valid QoS values",
			config: Config{
				Broker:   "tcp://localhost:1883",
				ClientID: "test-client",
				QoS:      2,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			transport := NewTransport("test", tt.config)
			err := transport.validateConfig()

			if tt.wantErr {
				assert.True(t, errors.Is(err, errors.ConfigurationError))
			} else {
				assert.NoError(t, err)
				assert.Equal(t, 30*time.Second, transport.config.ConnectTimeout)
			}
		})
	}
}

func TestNotRunning(t *testing.T) {
	transport := NewTransport("idle", Config{Broker: "tcp://localhost:1883", ClientID: "c"})
	ctx := context.Background()

	err := transport.Publish(ctx, "a/b", []byte("x"), core.PublishOptions{})
	assert.True(t, errors.Is(err, errors.TransportNotRunning))
	_, err = transport.Subscribe(ctx, "a/b", func(ctx context.Context, msg *core.Message) error { return nil })
	assert.True(t, errors.Is(err, errors.TransportNotRunning))
	assert.True(t, errors.Is(transport.Stop(ctx), errors.TransportNotRunning))
}

func TestTLSConfig(t *testing.T) {
	dir := t.TempDir()
	ca := filepath.Join(dir, "ca.pem")
	require.NoError(t, os.WriteFile(ca, []byte("not a certificate"), 0o600))

	_, err := newTLSConfig(&TLSConfig{CAFile: ca})
	assert.True(t, errors.Is(err, errors.ConfigurationError))

	_, err = newTLSConfig(&TLSConfig{CAFile: filepath.Join(dir, "missing.pem")})
	assert.True(t, errors.Is(err, errors.ConfigurationError))

	_, err = newTLSConfig(&TLSConfig{CertFile: filepath.Join(dir, "client.pem")})
	assert.True(t, errors.Is(err, errors.ConfigurationError))

	config, err := newTLSConfig(&TLSConfig{Insecure: true})
	require.NoError(t, err)
	assert.True(t, config.InsecureSkipVerify)
}

// TestMQTTTransportFactory tests the MQTT transport factory
func TestMQTTTransportFactory(t *testing.T) {
	factory := NewTransportFactory()
	assert.NotNil(t, factory)

	config := map[string]interface{}{
		"broker":         "tcp://localhost:1883",
		"clientId":       "factory-client",
		"username":       "factory-user",
		"password":       "factory-pass",
		"qos":            float64(2),
		"cleanSession":   false,
		"keepAlive":      10,
		"connectTimeout": 5,
		"willMessage": map[string]interface{}{
			"topic":    "tracilink/sumo/status",
			"qos":      1,
			"retained": true,
			"payload":  "offline",
		},
	}

	transport, err := factory.CreateTransport("factory-transport", config)
	require.NoError(t, err)
	assert.Equal(t, "factory-transport", transport.ID())

	got := transport.(*Transport).GetConfig()
	assert.Equal(t, byte(2), got.QoS)
	assert.False(t, got.CleanSession)
	assert.Equal(t, uint16(10), got.KeepAlive)
	assert.Equal(t, 5*time.Second, got.ConnectTimeout)
	assert.Equal(t, 10*time.Minute, got.MaxReconnectInterval)
	assert.True(t, got.AutoReconnect)
	assert.Equal(t, &WillMessage{Topic: "tracilink/sumo/status", QoS: 1, Retained: true, Payload: "offline"}, got.WillMessage)

	_, err = factory.CreateTransport("x", map[string]interface{}{"clientId": "c"})
	assert.True(t, errors.Is(err, errors.ConfigurationError))
	_, err = factory.CreateTransport("x", map[string]interface{}{"broker": "tcp://b:1883", "clientId": "c", "qos": 5})
	assert.True(t, errors.Is(err, errors.ConfigurationError))
}
