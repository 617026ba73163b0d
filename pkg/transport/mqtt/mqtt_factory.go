package mqtt

import (
	"fmt"
	"time"

	"github.com/kalifun/tracilink/errors"
	"github.com/kalifun/tracilink/pkg/core"
)

// TransportFactory creates MQTT transport instances
type TransportFactory struct{}

// NewTransportFactory creates a new MQTT transport factory
func NewTransportFactory() *TransportFactory {
	return &TransportFactory{}
}

// CreateTransport creates a new MQTT transport instance
func (f *TransportFactory) CreateTransport(id string, config map[string]interface{}) (core.Publisher, error) {
	mqttConfig, err := parseConfig(config)
	if err != nil {
		return nil, fmt.Errorf("failed to parse MQTT config: %w", err)
	}

	return NewTransport(id, mqttConfig), nil
}

// number accepts the integer shapes YAML and JSON decoders produce.
func number(v interface{}) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), n == float64(int(n))
	}
	return 0, false
}

// parseConfig parses configuration map into Config
func parseConfig(config map[string]interface{}) (Config, error) {
	var mqttConfig Config

	if broker, ok := config["broker"].(string); ok {
		mqttConfig.Broker = broker
	} else {
		return Config{}, errors.ConfigurationError.Args("broker is required and must be a string")
	}

	if clientID, ok := config["clientId"].(string); ok {
		mqttConfig.ClientID = clientID
	} else {
		return Config{}, errors.ConfigurationError.Args("clientId is required and must be a string")
	}

	if username, ok := config["username"].(string); ok {
		mqttConfig.Username = username
	}

	if password, ok := config["password"].(string); ok {
		mqttConfig.Password = password
	}

	if qos, ok := number(config["qos"]); ok {
		if qos >= 0 && qos <= 2 {
			mqttConfig.QoS = byte(qos)
		} else {
			return Config{}, errors.ConfigurationError.Args("QoS must be 0, 1, or 2")
		}
	} else {
		mqttConfig.QoS = 1 // Default QoS
	}

	if cleanSession, ok := config["cleanSession"].(bool); ok {
		mqttConfig.CleanSession = cleanSession
	} else {
		mqttConfig.CleanSession = true
	}

	if keepAlive, ok := number(config["keepAlive"]); ok && keepAlive > 0 {
		mqttConfig.KeepAlive = uint16(keepAlive)
	} else {
		mqttConfig.KeepAlive = 30
	}

	if connectTimeout, ok := number(config["connectTimeout"]); ok && connectTimeout > 0 {
		mqttConfig.ConnectTimeout = time.Duration(connectTimeout) * time.Second
	} else {
		mqttConfig.ConnectTimeout = 30 * time.Second
	}

	if maxReconnectInterval, ok := number(config["maxReconnectInterval"]); ok && maxReconnectInterval > 0 {
		mqttConfig.MaxReconnectInterval = time.Duration(maxReconnectInterval) * time.Second
	} else {
		mqttConfig.MaxReconnectInterval = 10 * time.Minute
	}

	if autoReconnect, ok := config["autoReconnect"].(bool); ok {
		mqttConfig.AutoReconnect = autoReconnect
	} else {
		mqttConfig.AutoReconnect = true
	}

	if tlsConfig, ok := config["tlsConfig"].(map[string]interface{}); ok {
		mqttConfig.TLSConfig = &TLSConfig{}
		if caFile, ok := tlsConfig["caFile"].(string); ok {
			mqttConfig.TLSConfig.CAFile = caFile
		}
		if certFile, ok := tlsConfig["certFile"].(string); ok {
			mqttConfig.TLSConfig.CertFile = certFile
		}
		if keyFile, ok := tlsConfig["keyFile"].(string); ok {
			mqttConfig.TLSConfig.KeyFile = keyFile
		}
		if insecure, ok := tlsConfig["insecure"].(bool); ok {
			mqttConfig.TLSConfig.Insecure = insecure
		}
	}

	if willMessage, ok := config["willMessage"].(map[string]interface{}); ok {
		mqttConfig.WillMessage = &WillMessage{}
		if topic, ok := willMessage["topic"].(string); ok {
			mqttConfig.WillMessage.Topic = topic
		}
		if qos, ok := number(willMessage["qos"]); ok && qos >= 0 && qos <= 2 {
			mqttConfig.WillMessage.QoS = byte(qos)
		}
		if retained, ok := willMessage["retained"].(bool); ok {
			mqttConfig.WillMessage.Retained = retained
		}
		if payload, ok := willMessage["payload"].(string); ok {
			mqttConfig.WillMessage.Payload = payload
		}
	}

	return mqttConfig, nil
}
