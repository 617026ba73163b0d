package core

import (
	"sort"
	"sync"

	"github.com/samber/lo"

	"github.com/kalifun/tracilink/pkg/types"
)

// SubscriptionManager keeps one set of subscribed native IDs per entity
// kind. Membership lasts until Unsubscribe, RemoveDeparted or Clear.
type SubscriptionManager struct {
	sets map[types.EntityKind]map[string]struct{} // kind -> native id
	mu   sync.RWMutex
}

func NewSubscriptionManager() *SubscriptionManager {
	sm := &SubscriptionManager{}
	sm.Clear()
	return sm
}

// Subscribe adds id and reports whether it was not subscribed before.
func (sm *SubscriptionManager) Subscribe(kind types.EntityKind, id string) bool {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	set, ok := sm.sets[kind]
	if !ok {
		return false
	}
	if _, exists := set[id]; exists {
		return false
	}
	set[id] = struct{}{}
	return true
}

// Unsubscribe removes id and reports whether it was subscribed. Removing a
// non-member is a no-op.
func (sm *SubscriptionManager) Unsubscribe(kind types.EntityKind, id string) bool {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	set := sm.sets[kind]
	if _, exists := set[id]; !exists {
		return false
	}
	delete(set, id)
	return true
}

func (sm *SubscriptionManager) Contains(kind types.EntityKind, id string) bool {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	_, exists := sm.sets[kind][id]
	return exists
}

// CurrentlySubscribed returns the sorted members of kind.
func (sm *SubscriptionManager) CurrentlySubscribed(kind types.EntityKind) []string {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	return sortedKeys(sm.sets[kind])
}

func (sm *SubscriptionManager) Len(kind types.EntityKind) int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	return len(sm.sets[kind])
}

// Snapshot copies all sets.
func (sm *SubscriptionManager) Snapshot() SubscriptionSnapshot {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	snapshot := make(SubscriptionSnapshot, len(sm.sets))
	for kind, set := range sm.sets {
		snapshot[kind] = sortedKeys(set)
	}
	return snapshot
}

// RemoveDeparted drops ids that left the simulation and returns the ones
// that were members.
func (sm *SubscriptionManager) RemoveDeparted(kind types.EntityKind, ids []string) []string {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	set := sm.sets[kind]
	removed := lo.Filter(lo.Uniq(ids), func(id string, _ int) bool {
		_, exists := set[id]
		return exists
	})
	for _, id := range removed {
		delete(set, id)
	}
	return removed
}

// Clear empties every set.
func (sm *SubscriptionManager) Clear() {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	sm.sets = make(map[types.EntityKind]map[string]struct{}, len(types.EntityKinds))
	for _, kind := range types.EntityKinds {
		sm.sets[kind] = make(map[string]struct{})
	}
}

func sortedKeys(set map[string]struct{}) []string {
	keys := lo.Keys(set)
	sort.Strings(keys)
	return keys
}
