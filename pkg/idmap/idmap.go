// Package idmap keeps the bijection between canonical entity IDs and the
// simulator's native IDs.
package idmap

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

// maxGenerateAttempts bounds how many generated names FromNative skips
// because they are already taken by a canonical-first registration.
const maxGenerateAttempts = 1024

// Generator returns a fresh canonical ID on every call.
type Generator func() string

// SequenceGenerator returns prefix0, prefix1, ... Counting is not reset by
// Transformer.Reset, so a reset never hands out a name twice.
func SequenceGenerator(prefix string) Generator {
	var next atomic.Uint64
	return func() string {
		return fmt.Sprintf("%s%d", prefix, next.Add(1)-1)
	}
}

// Transformer maps native IDs to canonical IDs and back. The mapping only
// grows until Reset.
type Transformer struct {
	name     string
	generate Generator
	toCanon  map[string]string // native -> canonical
	toNative map[string]string // canonical -> native
	logger   *logrus.Entry
	mu       sync.Mutex
}

// NewTransformer creates an empty transformer. name appears in log fields.
func NewTransformer(name string, generate Generator) *Transformer {
	return &Transformer{
		name:     name,
		generate: generate,
		toCanon:  make(map[string]string),
		toNative: make(map[string]string),
		logger:   logrus.WithField("component", "idmap").WithField("kind", name),
	}
}

// FromNative returns the canonical ID for nativeID, synthesizing and recording
// a new one the first time nativeID is seen.
func (t *Transformer) FromNative(nativeID string) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if canonical, ok := t.toCanon[nativeID]; ok {
		return canonical, nil
	}

	for i := 0; i < maxGenerateAttempts; i++ {
		candidate := t.generate()
		if _, taken := t.toNative[candidate]; taken {
			continue
		}
		t.bind(nativeID, candidate)
		t.logger.WithFields(logrus.Fields{
			"canonical_id": candidate,
			"native_id":    nativeID,
		}).Debug("Assigned canonical ID")
		return candidate, nil
	}
	return "", fmt.Errorf("%s: no free canonical id for %q after %d attempts", t.name, nativeID, maxGenerateAttempts)
}

// ToNative returns the native ID for canonicalID. An unknown canonical ID is
// registered as its own native ID, which fails if that native ID already
// belongs to another canonical ID.
func (t *Transformer) ToNative(canonicalID string) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if nativeID, ok := t.toNative[canonicalID]; ok {
		return nativeID, nil
	}
	if owner, taken := t.toCanon[canonicalID]; taken {
		return "", fmt.Errorf("%s: native id %q already maps to %q", t.name, canonicalID, owner)
	}
	t.bind(canonicalID, canonicalID)
	return canonicalID, nil
}

// Canonical looks up nativeID without registering it.
func (t *Transformer) Canonical(nativeID string) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	canonical, ok := t.toCanon[nativeID]
	return canonical, ok
}

// Native looks up canonicalID without registering it.
func (t *Transformer) Native(canonicalID string) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	nativeID, ok := t.toNative[canonicalID]
	return nativeID, ok
}

// Len returns the number of recorded pairs.
func (t *Transformer) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return len(t.toCanon)
}

// Reset clears all pairs. Only call it between independent runs.
func (t *Transformer) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.toCanon = make(map[string]string)
	t.toNative = make(map[string]string)
	t.logger.Info("Identifier mapping reset")
}

func (t *Transformer) bind(nativeID, canonicalID string) {
	t.toCanon[nativeID] = canonicalID
	t.toNative[canonicalID] = nativeID
}
