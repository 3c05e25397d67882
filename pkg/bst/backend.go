// SPDX-License-Identifier: MPL-2.0

package bst

import (
	"context"
	"encoding/json"
	"sync"
)

// Backend persists current state and transition history per object and
// definition. Implementations must treat an unknown object as absent
// rather than an error: CurrentStateInfo returns nil and History returns
// an empty slice.
type Backend interface {
	// CurrentStateInfo returns the raw transition record of the
	// object's current state, or nil when the object is unknown.
	CurrentStateInfo(ctx context.Context, defTag, objectTag string) (json.RawMessage, error)

	// History returns the object's transition records, oldest first.
	History(ctx context.Context, defTag, objectTag string) ([]json.RawMessage, error)

	// SetCurrentStateInfo stores the record as the object's current
	// state and appends it to the object's history.
	SetCurrentStateInfo(ctx context.Context, defTag, objectTag string, info json.RawMessage) error
}

// MemoryBackend is an in-process Backend. It is safe for concurrent use
// and intended for tests and single-process deployments.
type MemoryBackend struct {
	mu      sync.RWMutex
	current map[string]json.RawMessage
	history map[string][]json.RawMessage
}

// NewMemoryBackend creates an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		current: make(map[string]json.RawMessage),
		history: make(map[string][]json.RawMessage),
	}
}

// CurrentStateInfo implements Backend.
func (b *MemoryBackend) CurrentStateInfo(_ context.Context, defTag, objectTag string) (json.RawMessage, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.current[stateKey(defTag, objectTag)], nil
}

// History implements Backend.
func (b *MemoryBackend) History(_ context.Context, defTag, objectTag string) ([]json.RawMessage, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	stored := b.history[stateKey(defTag, objectTag)]
	out := make([]json.RawMessage, len(stored))
	copy(out, stored)
	return out, nil
}

// SetCurrentStateInfo implements Backend.
func (b *MemoryBackend) SetCurrentStateInfo(_ context.Context, defTag, objectTag string, info json.RawMessage) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	key := stateKey(defTag, objectTag)
	b.current[key] = info
	b.history[key] = append(b.history[key], info)
	return nil
}

func stateKey(defTag, objectTag string) string {
	return defTag + "\x00" + objectTag
}
