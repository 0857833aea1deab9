package storage

import (
	"context"
	"encoding/json"
	"sync"
)

// MemKV is an in-memory KV used by package tests in place of a live
// Postgres-backed Storage. It honors the same failure-tolerant contract:
// a missing key returns the caller's default, never an error.
type MemKV struct {
	mu   sync.Mutex
	data map[string][]byte
}

func NewMemKV() *MemKV {
	return &MemKV{data: make(map[string][]byte)}
}

func (m *MemKV) Get(_ context.Context, key, store string, def []byte) []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[dedupKey(store, key)]
	if !ok {
		return def
	}
	return v
}

func (m *MemKV) GetJSON(ctx context.Context, key, store string, def any) any {
	raw := m.Get(ctx, key, store, nil)
	if raw == nil {
		return def
	}
	if err := json.Unmarshal(raw, def); err != nil {
		return def
	}
	return def
}

func (m *MemKV) Set(_ context.Context, key, store string, value []byte, _ bool) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[dedupKey(store, key)] = value
	return true
}

func (m *MemKV) SetJSON(ctx context.Context, key, store string, value any, immediate bool) bool {
	raw, err := json.Marshal(value)
	if err != nil {
		return false
	}
	return m.Set(ctx, key, store, raw, immediate)
}

func (m *MemKV) Delete(_ context.Context, key, store string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, dedupKey(store, key))
	return true
}
