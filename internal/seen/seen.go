// Package seen remembers which messages the agent has already picked up.
package seen

import (
	"context"
	"sync"
)

// Set is a grow-only set of message IDs.
type Set interface {
	Contains(ctx context.Context, id string) (bool, error)
	Add(ctx context.Context, id string) error
	Close() error
}

// Open returns a Redis-backed set when url is set and an in-memory set otherwise.
// namespace scopes the keys, typically the mailbox address.
func Open(ctx context.Context, url, namespace string) (Set, error) {
	if url == "" {
		return NewMemory(), nil
	}
	return NewRedis(ctx, url, namespace, DefaultTTL)
}

// Memory is a per-process Set. Nothing is persisted.
type Memory struct {
	mu  sync.Mutex
	ids map[string]struct{}
}

var _ Set = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{ids: make(map[string]struct{})}
}

func (m *Memory) Contains(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.ids[id]
	return ok, nil
}

func (m *Memory) Add(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ids[id] = struct{}{}
	return nil
}

// Len returns the number of IDs in the set.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.ids)
}

func (m *Memory) Close() error { return nil }
