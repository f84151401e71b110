package blobstore

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// MemoryStore is an in-memory Store for tests and ephemeral deployments.
// Thread-safe for concurrent reads and writes.
type MemoryStore struct {
	mu    sync.RWMutex
	blobs map[Ref][]byte
}

// NewMemoryStore creates a new in-memory blob store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		blobs: make(map[Ref][]byte),
	}
}

// Save writes data under a fresh ref.
func (m *MemoryStore) Save(_ context.Context, owner string, data []byte) (Ref, error) {
	ref, err := NewRef(owner)
	if err != nil {
		return "", err
	}

	// Copy to prevent external mutation
	copied := make([]byte, len(data))
	copy(copied, data)

	m.mu.Lock()
	m.blobs[ref] = copied
	m.mu.Unlock()

	return ref, nil
}

// Load reads a blob.
func (m *MemoryStore) Load(_ context.Context, ref Ref) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, ok := m.blobs[ref]
	if !ok {
		return nil, ErrNotFound
	}

	copied := make([]byte, len(data))
	copy(copied, data)
	return copied, nil
}

// Delete removes a blob. Missing blobs are ignored.
func (m *MemoryStore) Delete(_ context.Context, ref Ref) error {
	m.mu.Lock()
	delete(m.blobs, ref)
	m.mu.Unlock()
	return nil
}

// List returns all refs belonging to owner, sorted.
func (m *MemoryStore) List(_ context.Context, owner string) ([]Ref, error) {
	prefix := owner + "/"

	m.mu.RLock()
	refs := make([]Ref, 0, len(m.blobs))
	for ref := range m.blobs {
		if strings.HasPrefix(string(ref), prefix) {
			refs = append(refs, ref)
		}
	}
	m.mu.RUnlock()

	sort.Slice(refs, func(i, j int) bool { return refs[i] < refs[j] })
	return refs, nil
}

// Len returns the number of stored blobs.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.blobs)
}
