// Package creationid maps client-chosen creation keys to server-assigned ids.
package creationid

import (
	"errors"
	"fmt"
	"maps"
	"sync"
)

// ErrNotYetResolved is returned for a creation key with no server id
var ErrNotYetResolved = errors.New("creation id not yet resolved")

// Tracker records creation keys and the ids the server assigned to them.
// A key is pending from Expect until Register; pending and unknown keys both
// fail to resolve.
type Tracker struct {
	mu       sync.RWMutex
	resolved map[string]string
	pending  map[string]bool
}

// NewTracker creates an empty tracker
func NewTracker() *Tracker {
	return &Tracker{
		resolved: make(map[string]string),
		pending:  make(map[string]bool),
	}
}

// Expect marks a creation key as sent but not yet confirmed. Keys of a batch
// that is abandoned stay pending.
func (t *Tracker) Expect(createKey string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.resolved[createKey]; !ok {
		t.pending[createKey] = true
	}
}

// Register associates a creation key with its server id
func (t *Tracker) Register(createKey, serverID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.pending, createKey)
	t.resolved[createKey] = serverID
}

// Resolve returns the server id for a creation key
func (t *Tracker) Resolve(createKey string) (string, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if id, ok := t.resolved[createKey]; ok {
		return id, nil
	}
	if t.pending[createKey] {
		return "", fmt.Errorf("creation key %q is pending: %w", createKey, ErrNotYetResolved)
	}
	return "", fmt.Errorf("creation key %q is unknown: %w", createKey, ErrNotYetResolved)
}

// Known reports whether the key has been expected or registered
func (t *Tracker) Known(createKey string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.resolved[createKey]
	return ok || t.pending[createKey]
}

// Snapshot returns a copy of the resolved entries
func (t *Tracker) Snapshot() map[string]string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return maps.Clone(t.resolved)
}

// Merge copies the resolved entries of other into t
func (t *Tracker) Merge(other *Tracker) {
	if other == nil || other == t {
		return
	}
	entries := other.Snapshot()
	t.mu.Lock()
	defer t.mu.Unlock()
	for key, id := range entries {
		delete(t.pending, key)
		t.resolved[key] = id
	}
}
