package core

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// LifecycleManager starts components after their dependencies and stops them
// in reverse. A typical bridge process:
//
//	startOrder = []string{
//		"bus",       // no dependencies
//		"router",    // depends on bus
//		"publisher", // depends on router
//		"bridge",    // depends on bus, publisher
//	}
type LifecycleManager struct {
	components      map[string]LifecycleComponent
	dependencies    map[string][]string // component -> dependencies
	startOrder      []string
	started         []string
	mu              sync.Mutex
	running         bool
	stopped         bool
	shutdownTimeout time.Duration
	logger          *logrus.Entry
}

type LifecycleComponent interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// Identified components are registered under their ID instead of their type name.
type Identified interface {
	ID() string
}

func NewLifecycleManager(timeout time.Duration) *LifecycleManager {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &LifecycleManager{
		components:      make(map[string]LifecycleComponent),
		dependencies:    make(map[string][]string),
		shutdownTimeout: timeout,
		logger:          logrus.WithField("component", "lifecycle"),
	}
}

func (lm *LifecycleManager) Start(ctx context.Context) error {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	if lm.running {
		return fmt.Errorf("lifecycle already started")
	}
	if err := lm.calculateStartOrder(); err != nil {
		return err
	}

	for _, componentID := range lm.startOrder {
		component := lm.components[componentID]

		startCtx, cancel := context.WithTimeout(ctx, lm.shutdownTimeout)
		err := component.Start(startCtx)
		cancel()
		if err != nil {
			lm.logger.WithError(err).WithField("component_id", componentID).Error("Failed to start component")
			// Stop already started components
			_ = lm.stopComponents(ctx)
			return fmt.Errorf("failed to start component %s: %w", componentID, err)
		}
		lm.started = append(lm.started, componentID)
		lm.logger.WithField("component_id", componentID).Debug("Component started")
	}

	lm.running = true
	lm.stopped = false
	return nil
}

func (lm *LifecycleManager) Stop(ctx context.Context) error {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	if lm.stopped || !lm.running {
		return nil
	}

	lm.stopped = true
	lm.running = false
	return lm.stopComponents(ctx)
}

// AddComponent registers a component with the IDs of the components it
// depends on. Dependencies may be added later but must exist by Start.
func (lm *LifecycleManager) AddComponent(component LifecycleComponent, dependencies ...string) error {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	componentID := ComponentID(component)
	if _, exists := lm.components[componentID]; exists {
		return fmt.Errorf("component already registered: %s", componentID)
	}

	if err := lm.checkCircularDependency(componentID, dependencies); err != nil {
		return fmt.Errorf("circular dependency detected: %w", err)
	}

	lm.components[componentID] = component
	lm.dependencies[componentID] = dependencies
	return nil
}

// StartOrder returns the order Start uses.
func (lm *LifecycleManager) StartOrder() ([]string, error) {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	if err := lm.calculateStartOrder(); err != nil {
		return nil, err
	}
	return append([]string(nil), lm.startOrder...), nil
}

// ComponentID returns the ID a component is registered under.
func ComponentID(component LifecycleComponent) string {
	if c, ok := component.(Identified); ok {
		return c.ID()
	}
	return fmt.Sprintf("%T", component)
}

func (lm *LifecycleManager) checkCircularDependency(componentID string, dependencies []string) error {
	visited := make(map[string]bool)
	return lm.checkCircularDependencyRecursive(componentID, dependencies, visited)
}

func (lm *LifecycleManager) checkCircularDependencyRecursive(currentID string, dependencies []string, visited map[string]bool) error {
	for _, dep := range dependencies {
		if dep == currentID {
			return fmt.Errorf("circular dependency: %s depends on itself", currentID)
		}

		if visited[dep] {
			return fmt.Errorf("circular dependency detected involving %s", dep)
		}

		visited[dep] = true
		if deps, exist := lm.dependencies[dep]; exist {
			if err := lm.checkCircularDependencyRecursive(currentID, deps, visited); err != nil {
				return err
			}
		}

		delete(visited, dep)
	}
	return nil
}

// calculateStartOrder sorts components topologically, dependencies first.
// Ties are broken by ID so the order is stable.
func (lm *LifecycleManager) calculateStartOrder() error {
	pending := make(map[string]int, len(lm.dependencies)) // component -> unmet dependencies
	dependents := make(map[string][]string)

	for componentID, deps := range lm.dependencies {
		pending[componentID] = len(deps)
		for _, dep := range deps {
			if _, exists := lm.components[dep]; !exists {
				return fmt.Errorf("component %s depends on unknown component %s", componentID, dep)
			}
			dependents[dep] = append(dependents[dep], componentID)
		}
	}

	queue := make([]string, 0)
	for componentID, unmet := range pending {
		if unmet == 0 {
			queue = append(queue, componentID)
		}
	}
	sort.Strings(queue)

	order := make([]string, 0, len(pending))
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		order = append(order, current)

		next := dependents[current]
		sort.Strings(next)
		for _, dependent := range next {
			pending[dependent]--
			if pending[dependent] == 0 {
				queue = append(queue, dependent)
			}
		}
	}

	if len(order) != len(lm.dependencies) {
		return fmt.Errorf("circular dependency detected")
	}

	lm.startOrder = order
	return nil
}

func (lm *LifecycleManager) stopComponents(ctx context.Context) error {
	var lastErr error

	for i := len(lm.started) - 1; i >= 0; i-- {
		componentID := lm.started[i]
		component := lm.components[componentID]

		stopCtx, cancel := context.WithTimeout(ctx, lm.shutdownTimeout)
		err := component.Stop(stopCtx)
		cancel()
		if err != nil {
			lm.logger.WithError(err).WithField("component_id", componentID).Warn("Failed to stop component")
			lastErr = fmt.Errorf("failed to stop component %s: %w", componentID, err)
		}
	}
	lm.started = nil

	return lastErr
}
