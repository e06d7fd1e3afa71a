package memory

import (
	"sync"
	"time"
)

type item[T any] struct {
	value     T
	expiresAt time.Time
}

// ttlMap is a mutex-guarded map whose entries expire lazily on read and are
// reaped by an optional background sweeper.
type ttlMap[T any] struct {
	mu    sync.Mutex
	items map[string]item[T]
	now   func() time.Time

	stop     chan struct{}
	stopOnce sync.Once
}

func newTTLMap[T any](now func() time.Time, sweepEvery time.Duration) *ttlMap[T] {
	if now == nil {
		now = time.Now
	}
	m := &ttlMap[T]{
		items: make(map[string]item[T]),
		now:   now,
		stop:  make(chan struct{}),
	}
	if sweepEvery > 0 {
		go m.sweepLoop(sweepEvery)
	}
	return m
}

// load returns the live value for key, purging it if it has expired.
// Callers must hold mu.
func (m *ttlMap[T]) load(key string) (T, bool) {
	it, ok := m.items[key]
	if !ok {
		var zero T
		return zero, false
	}
	if m.now().After(it.expiresAt) {
		delete(m.items, key)
		var zero T
		return zero, false
	}
	return it.value, true
}

func (m *ttlMap[T]) get(key string) (T, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.load(key)
}

func (m *ttlMap[T]) set(key string, v T, ttl time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[key] = item[T]{value: v, expiresAt: m.now().Add(ttl)}
}

func (m *ttlMap[T]) delete(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, key)
}

// deleteIf removes key when its live value satisfies match.
func (m *ttlMap[T]) deleteIf(key string, match func(T) bool) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.load(key)
	if !ok || !match(v) {
		return false
	}
	delete(m.items, key)
	return true
}

func (m *ttlMap[T]) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}

func (m *ttlMap[T]) sweep() {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	for k, it := range m.items {
		if now.After(it.expiresAt) {
			delete(m.items, k)
		}
	}
}

func (m *ttlMap[T]) sweepLoop(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.sweep()
		case <-m.stop:
			return
		}
	}
}

func (m *ttlMap[T]) close() {
	m.stopOnce.Do(func() { close(m.stop) })
}
