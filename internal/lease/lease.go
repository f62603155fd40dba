// Package lease collapses duplicate escalation triggers for the same task.
// A lease is a short-lived claim on a key; it expires on its own.
package lease

import (
	"context"
	"sync"
	"time"
)

type Locker interface {
	// Acquire claims key for ttl. It reports false when the key is already held.
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

// Memory is a process-local Locker.
type Memory struct {
	mu    sync.Mutex
	items map[string]time.Time
	now   func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		items: make(map[string]time.Time),
		now:   time.Now,
	}
}

func (m *Memory) Acquire(_ context.Context, key string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if expires, ok := m.items[key]; ok && now.Before(expires) {
		return false, nil
	}
	m.items[key] = now.Add(ttl)
	return true, nil
}

func (m *Memory) Release(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.items, key)
	return nil
}
