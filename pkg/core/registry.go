package core

import (
	"fmt"
	"sort"
	"sync"

	"github.com/kalifun/tracilink/errors"
	"github.com/kalifun/tracilink/pkg/converter"
	"github.com/kalifun/tracilink/pkg/version"
)

type commandKey struct {
	backend  Backend
	contract Contract
}

// Registry holds everything selected by name at startup: transport and
// converter factories, and the backend × contract command table.
type Registry struct {
	transports map[string]TransportFactory
	converters map[string]converter.ConverterFactory
	commands   map[commandKey]entry
	mu         sync.RWMutex
}

func NewRegistry() *Registry {
	return &Registry{
		transports: make(map[string]TransportFactory),
		converters: make(map[string]converter.ConverterFactory),
		commands:   make(map[commandKey]entry),
	}
}

func (r *Registry) RegisterTransport(name string, factory TransportFactory) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.transports[name]; exists {
		return fmt.Errorf("transport already registered: %s", name)
	}
	r.transports[name] = factory
	return nil
}

func (r *Registry) RegisterConverter(name string, factory converter.ConverterFactory) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.converters[name]; exists {
		return fmt.Errorf("converter already registered: %s", name)
	}
	r.converters[name] = factory
	return nil
}

// RegisterBackend expands a backend's command table. A table with a missing
// implementation is rejected as a whole, so an incomplete backend fails at
// startup instead of at first use.
func (r *Registry) RegisterBackend(backend Backend, table CommandTable) error {
	entries := table.entries()

	var missing []string
	for contract, e := range entries {
		if !e.set {
			missing = append(missing, string(contract))
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return errors.UnknownCommand.Args(fmt.Sprintf("%v", missing), backend)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for contract := range entries {
		if _, exists := r.commands[commandKey{backend, contract}]; exists {
			return fmt.Errorf("backend already registered: %s", backend)
		}
	}
	for contract, e := range entries {
		r.commands[commandKey{backend, contract}] = e
	}
	return nil
}

func (r *Registry) GetTransport(name string) (TransportFactory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	factory, exists := r.transports[name]
	if !exists {
		return nil, fmt.Errorf("transport not found: %s", name)
	}
	return factory, nil
}

func (r *Registry) GetConverter(name string) (converter.ConverterFactory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	factory, exists := r.converters[name]
	if !exists {
		return nil, fmt.Errorf("converter not found: %s", name)
	}
	return factory, nil
}

// Descriptor returns the descriptor registered for a backend and contract.
func (r *Registry) Descriptor(backend Backend, contract Contract) (version.Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.commands[commandKey{backend, contract}]
	return e.descriptor, ok
}

func (r *Registry) ListTransports() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.transports))
	for name := range r.transports {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *Registry) ListConverters() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.converters))
	for name := range r.converters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ListBackends returns the backends with a registered command table.
func (r *Registry) ListBackends() []Backend {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[Backend]bool)
	backends := make([]Backend, 0, 2)
	for key := range r.commands {
		if !seen[key.backend] {
			seen[key.backend] = true
			backends = append(backends, key.backend)
		}
	}
	sort.Slice(backends, func(i, j int) bool { return backends[i] < backends[j] })
	return backends
}

// Resolve returns the implementation of contract for backend, refusing it
// when the negotiated version is outside the command's range.
func Resolve[F any](r *Registry, backend Backend, contract Contract, current version.APIVersion) (F, error) {
	var zero F

	r.mu.RLock()
	e, ok := r.commands[commandKey{backend, contract}]
	r.mu.RUnlock()

	if !ok {
		return zero, errors.UnknownCommand.Args(contract, backend)
	}
	run, ok := e.run.(F)
	if !ok {
		return zero, errors.UnknownCommand.Wrap(fmt.Errorf("implementation has type %T", e.run), contract, backend)
	}
	if !version.IsAvailable(e.descriptor, current) {
		if version.Deprecated(e.descriptor, current) {
			return zero, errors.NotSupported.Wrap(fmt.Errorf("removed at %s", e.descriptor.Until), contract, current)
		}
		return zero, errors.NotSupported.Args(contract, current)
	}
	return run, nil
}
