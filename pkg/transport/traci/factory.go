package traci

import (
	"time"

	"github.com/kalifun/tracilink/errors"
	"github.com/kalifun/tracilink/pkg/core"
	"github.com/kalifun/tracilink/pkg/types"
)

// NewTransportFactory returns a core.TransportFactory building socket
// transports from a generic configuration map.
func NewTransportFactory() core.TransportFactory {
	return func(config map[string]interface{}) (core.Transport, error) {
		cfg, err := parseConfig(config)
		if err != nil {
			return nil, err
		}
		return NewTransport(cfg), nil
	}
}

func parseConfig(config map[string]interface{}) (Config, error) {
	var cfg Config

	if id, ok := config["id"].(string); ok {
		cfg.ID = id
	}

	if host, ok := config["host"].(string); ok {
		cfg.Host = host
	} else {
		cfg.Host = "127.0.0.1"
	}

	if port, ok := intValue(config["port"]); ok {
		if port < 0 || port > 65535 {
			return Config{}, errors.ConfigurationError.Args("port must be between 0 and 65535")
		}
		cfg.Port = port
	}

	if order, ok := intValue(config["order"]); ok {
		cfg.Order = order
	}

	if timeout, ok := intValue(config["connectTimeout"]); ok && timeout > 0 {
		cfg.ConnectTimeout = time.Duration(timeout) * time.Second
	} else {
		cfg.ConnectTimeout = 10 * time.Second
	}

	if launch, ok := config["launch"].(map[string]interface{}); ok {
		cfg.Launch = &LaunchConfig{}
		if binary, ok := launch["binary"].(string); ok {
			cfg.Launch.Binary = binary
		}
		args, err := stringList(launch["args"])
		if err != nil {
			return Config{}, err
		}
		cfg.Launch.Args = args
		if grace, ok := intValue(launch["gracefulTimeout"]); ok && grace > 0 {
			cfg.Launch.GracefulTimeout = time.Duration(grace) * time.Second
		}
	}

	if cfg.Port == 0 && cfg.Launch == nil {
		return Config{}, errors.ConfigurationError.Args("port is required unless sumo is launched by the transport")
	}

	if extras, ok := config["extras"].(types.VehicleExtras); ok {
		cfg.Extras = extras
	}
	return cfg, nil
}

// intValue accepts the integer shapes yaml and json decoders produce.
func intValue(v interface{}) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	}
	return 0, false
}

func stringList(v interface{}) ([]string, error) {
	switch list := v.(type) {
	case nil:
		return nil, nil
	case []string:
		return append([]string{}, list...), nil
	case []interface{}:
		out := make([]string, 0, len(list))
		for _, a := range list {
			s, ok := a.(string)
			if !ok {
				return nil, errors.ConfigurationError.Args("launch args must be strings")
			}
			out = append(out, s)
		}
		return out, nil
	}
	return nil, errors.ConfigurationError.Args("launch args must be a list")
}
