package cache

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	value     string
	expiresAt time.Time
}

// Memory is an in-process Cache with the same semantics as the Redis
// backend. Suitable for single-instance deployments and tests.
type Memory struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	waiters map[string][]chan struct{}
}

func NewMemory() *Memory {
	return &Memory{
		entries: make(map[string]memoryEntry),
		waiters: make(map[string][]chan struct{}),
	}
}

func memoryKey(namespace, key string) string {
	return namespace + ":" + key
}

// getLocked applies lazy TTL expiry. Callers hold m.mu.
func (m *Memory) getLocked(k string) (memoryEntry, bool) {
	entry, ok := m.entries[k]
	if !ok {
		return memoryEntry{}, false
	}
	if !entry.expiresAt.IsZero() && time.Now().After(entry.expiresAt) {
		delete(m.entries, k)
		return memoryEntry{}, false
	}
	return entry, true
}

func (m *Memory) notifyLocked(k string) {
	for _, waiter := range m.waiters[k] {
		close(waiter)
	}
	delete(m.waiters, k)
}

func (m *Memory) Get(_ context.Context, namespace, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.getLocked(memoryKey(namespace, key))
	return entry.value, ok, nil
}

func (m *Memory) Set(_ context.Context, namespace, key, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := memoryKey(namespace, key)
	entry := memoryEntry{value: value}
	if ttl > 0 {
		entry.expiresAt = time.Now().Add(ttl)
	}
	m.entries[k] = entry
	m.notifyLocked(k)
	return nil
}

func (m *Memory) SetIfNotExist(_ context.Context, namespace, key, value string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := memoryKey(namespace, key)
	if _, ok := m.getLocked(k); ok {
		return false, nil
	}
	entry := memoryEntry{value: value}
	if ttl > 0 {
		entry.expiresAt = time.Now().Add(ttl)
	}
	m.entries[k] = entry
	m.notifyLocked(k)
	return true, nil
}

func (m *Memory) Remove(_ context.Context, namespace, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := memoryKey(namespace, key)
	_, ok := m.getLocked(k)
	if !ok {
		return false, nil
	}
	delete(m.entries, k)
	m.notifyLocked(k)
	return true, nil
}

func (m *Memory) Exists(_ context.Context, namespace, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.getLocked(memoryKey(namespace, key))
	return ok, nil
}

func (m *Memory) OnChange(ctx context.Context, namespace, key string, wait time.Duration) (string, bool, error) {
	k := memoryKey(namespace, key)

	m.mu.Lock()
	waiter := make(chan struct{})
	m.waiters[k] = append(m.waiters[k], waiter)
	m.mu.Unlock()

	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case <-waiter:
	case <-timer.C:
	case <-ctx.Done():
		m.dropWaiter(k, waiter)
		return "", false, ctx.Err()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.getLocked(k)
	return entry.value, ok, nil
}

func (m *Memory) dropWaiter(k string, waiter chan struct{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	waiters := m.waiters[k]
	for i, w := range waiters {
		if w == waiter {
			m.waiters[k] = append(waiters[:i], waiters[i+1:]...)
			break
		}
	}
}
