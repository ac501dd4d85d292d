package storage

import (
	"context"
	"sync"
)

// MemoryKV keeps documents in process memory. It is the default backend for
// development and the fake used by tests.
type MemoryKV struct {
	mu      sync.Mutex
	docs    map[string][]byte
	saves   map[string]int
	saveErr error
	loadErr error
}

func NewMemoryKV() *MemoryKV {
	return &MemoryKV{
		docs:  make(map[string][]byte),
		saves: make(map[string]int),
	}
}

// Load returns a copy of the stored document.
func (m *MemoryKV) Load(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	v, ok := m.docs[key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

// Save stores a copy of value under key.
func (m *MemoryKV) Save(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.docs[key] = append([]byte(nil), value...)
	m.saves[key]++
	return nil
}

func (m *MemoryKV) Close() error { return nil }

// Put seeds a raw document, bypassing failure injection.
func (m *MemoryKV) Put(key string, value []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs[key] = append([]byte(nil), value...)
}

// SaveCount reports how many successful saves hit key.
func (m *MemoryKV) SaveCount(key string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves[key]
}

// FailSaves makes every subsequent Save return err. A nil err restores
// normal behaviour.
func (m *MemoryKV) FailSaves(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saveErr = err
}

// FailLoads makes every subsequent Load return err.
func (m *MemoryKV) FailLoads(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loadErr = err
}
