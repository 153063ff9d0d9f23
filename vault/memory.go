package vault

import (
	"context"
	"sync"
)

// Memory keeps sealed entries in process memory. Entries are sealed exactly
// as the durable backends seal them, so tests exercise the same decode path.
type Memory struct {
	namespace string
	codec     entryCodec

	mu      sync.RWMutex
	entries map[string][]byte
}

var (
	_ Vault  = (*Memory)(nil)
	_ Purger = (*Memory)(nil)
)

// NewMemory creates an in-memory vault for namespace.
func NewMemory(namespace string, sealer *Sealer) (*Memory, error) {
	if err := validateNamespace(namespace); err != nil {
		return nil, err
	}
	codec, err := newEntryCodec(sealer)
	if err != nil {
		return nil, err
	}
	return &Memory{
		namespace: namespace,
		codec:     codec,
		entries:   make(map[string][]byte),
	}, nil
}

func (m *Memory) Namespace() string { return m.namespace }

func (m *Memory) Put(_ context.Context, id string, params Params) error {
	blob, err := m.codec.encode(params)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.entries[id] = blob
	m.mu.Unlock()
	return nil
}

func (m *Memory) Get(_ context.Context, id string) (Params, error) {
	m.mu.RLock()
	blob, ok := m.entries[id]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return m.codec.decode(blob)
}

func (m *Memory) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	delete(m.entries, id)
	m.mu.Unlock()
	return nil
}

func (m *Memory) Purge(_ context.Context) (int, error) {
	m.mu.Lock()
	n := len(m.entries)
	m.entries = make(map[string][]byte)
	m.mu.Unlock()
	return n, nil
}

// Len returns the number of stored entries.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// putRaw stores blob unmodified. Tests use it to plant corrupt entries.
func (m *Memory) putRaw(id string, blob []byte) {
	m.mu.Lock()
	m.entries[id] = blob
	m.mu.Unlock()
}
