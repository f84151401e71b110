package engine

import (
	"context"
	"sync"

	"github.com/quivigo/quivigo/blobstore"
)

// VersionStore tracks, per owner, which blob ref holds the current committed
// snapshot. The s3 package provides a DynamoDB-backed implementation for
// multi-writer deployments; MemoryVersionStore is the single-process default.
type VersionStore interface {
	// Current returns the committed version and ref for owner.
	// A never-committed owner yields version 0 and an empty ref.
	Current(ctx context.Context, owner string) (uint64, blobstore.Ref, error)

	// Commit advances owner's pointer to ref at version. Implementations
	// backed by shared storage must reject commits that skip or replay a
	// version.
	Commit(ctx context.Context, owner string, version uint64, ref blobstore.Ref) error
}

// MemoryVersionStore is an in-process VersionStore.
type MemoryVersionStore struct {
	mu      sync.RWMutex
	current map[string]versionRef
}

type versionRef struct {
	version uint64
	ref     blobstore.Ref
}

// NewMemoryVersionStore creates an empty in-process version store.
func NewMemoryVersionStore() *MemoryVersionStore {
	return &MemoryVersionStore{current: make(map[string]versionRef)}
}

func (m *MemoryVersionStore) Current(_ context.Context, owner string) (uint64, blobstore.Ref, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	vr := m.current[owner]
	return vr.version, vr.ref, nil
}

func (m *MemoryVersionStore) Commit(_ context.Context, owner string, version uint64, ref blobstore.Ref) error {
	m.mu.Lock()
	m.current[owner] = versionRef{version: version, ref: ref}
	m.mu.Unlock()
	return nil
}
