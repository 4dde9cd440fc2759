package cache

import (
	"context"
	"sync"
	"time"

	"tip-dispatcher/internal/domain"
)

// Memory реализует domain.Cache в памяти процесса.
// Подходит для одной реплики и тестов.
type Memory struct {
	mu        sync.Mutex
	keys      map[string]memoryEntry
	seq       uint64
	now       func() time.Time
	lastSweep time.Time
}

// memorySweepEvery как часто из карты удаляются истёкшие ключи.
const memorySweepEvery = time.Minute

type memoryEntry struct {
	expires time.Time
	token   uint64
}

// NewMemory создаёт кэш в памяти.
func NewMemory() *Memory {
	return &Memory{keys: make(map[string]memoryEntry), now: time.Now}
}

func (m *Memory) acquire(key string, ttl time.Duration) (uint64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	m.sweepLocked(now)
	if e, ok := m.keys[key]; ok && now.Before(e.expires) {
		return 0, false
	}
	m.seq++
	m.keys[key] = memoryEntry{expires: now.Add(ttl), token: m.seq}
	return m.seq, true
}

func (m *Memory) sweepLocked(now time.Time) {
	if now.Sub(m.lastSweep) < memorySweepEvery {
		return
	}
	m.lastSweep = now
	for k, e := range m.keys {
		if !now.Before(e.expires) {
			delete(m.keys, k)
		}
	}
}

// Len возвращает число хранимых ключей, включая ещё не убранные истёкшие.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.keys)
}

func (m *Memory) drop(key string, token uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.keys[key]; ok && e.token == token {
		delete(m.keys, key)
	}
}

// Once выполняет функцию, если ключ ещё не задан.
func (m *Memory) Once(_ context.Context, key string, ttl time.Duration, fn func() error) error {
	token, ok := m.acquire(key, ttl)
	if !ok {
		return nil
	}
	if err := fn(); err != nil {
		m.drop(key, token)
		return err
	}
	return nil
}

// Lock захватывает аренду ключа на ttl.
func (m *Memory) Lock(_ context.Context, key string, ttl time.Duration) (func(), bool, error) {
	token, ok := m.acquire(key, ttl)
	if !ok {
		return nil, false, nil
	}
	return func() { m.drop(key, token) }, true, nil
}

var _ domain.Cache = (*Memory)(nil)
