package libsumo

import (
	"github.com/kalifun/tracilink/errors"
	"github.com/kalifun/tracilink/pkg/core"
	"github.com/kalifun/tracilink/pkg/types"
)

// NewTransportFactory returns a core.TransportFactory building libsumo
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

	if name, ok := config["libraryName"].(string); ok {
		cfg.LibraryName = name
	} else {
		cfg.LibraryName = DefaultLibraryName
	}

	switch args := config["args"].(type) {
	case nil:
	case []string:
		cfg.Args = append([]string{}, args...)
	case []interface{}:
		for _, a := range args {
			s, ok := a.(string)
			if !ok {
				return Config{}, errors.ConfigurationError.Args("libsumo args must be strings")
			}
			cfg.Args = append(cfg.Args, s)
		}
	default:
		return Config{}, errors.ConfigurationError.Args("libsumo args must be a list")
	}

	if extras, ok := config["extras"].(types.VehicleExtras); ok {
		cfg.Extras = extras
	}

	if lib, ok := config["library"].(Library); ok {
		cfg.Library = lib
	}
	return cfg, nil
}
