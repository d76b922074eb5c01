package kvstore

import (
	"context"
	"encoding/json"
	"sync"
)

// Memory is a map-backed store for dev and tests.
type Memory struct {
	mu   sync.Mutex
	data map[string]json.RawMessage
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{data: make(map[string]json.RawMessage)}
}

// Get returns the stored document or ErrNotFound.
func (m *Memory) Get(ctx context.Context, key string) (json.RawMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	val, ok := m.data[key]
	if !ok {
		return nil, ErrNotFound
	}
	out := make(json.RawMessage, len(val))
	copy(out, val)
	return out, nil
}

// Set marshals and stores the value under key.
func (m *Memory) Set(ctx context.Context, key string, value any) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = payload
	return nil
}

// ExportAll copies out every entry.
func (m *Memory) ExportAll(ctx context.Context) (map[string]json.RawMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]json.RawMessage, len(m.data))
	for k, v := range m.data {
		doc := make(json.RawMessage, len(v))
		copy(doc, v)
		out[k] = doc
	}
	return out, nil
}

// ImportAll replaces the whole store contents.
func (m *Memory) ImportAll(ctx context.Context, data map[string]json.RawMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = make(map[string]json.RawMessage, len(data))
	for k, v := range data {
		doc := make(json.RawMessage, len(v))
		copy(doc, v)
		m.data[k] = doc
	}
	return nil
}

// Close is a no-op for the memory backend.
func (m *Memory) Close() error { return nil }
