package blobstore

import (
	"context"

	lru "github.com/hashicorp/golang-lru/v2"
)

// CachingStore wraps a Store with an LRU cache of whole blobs, keyed by ref.
// Refs are immutable once written, so cached entries never go stale; Delete
// still evicts to free memory promptly.
type CachingStore struct {
	inner Store
	cache *lru.Cache[Ref, []byte]
}

// NewCachingStore creates a CachingStore holding at most size blobs.
// size defaults to 128 if <= 0.
func NewCachingStore(inner Store, size int) (*CachingStore, error) {
	if size <= 0 {
		size = 128
	}
	cache, err := lru.New[Ref, []byte](size)
	if err != nil {
		return nil, err
	}
	return &CachingStore{inner: inner, cache: cache}, nil
}

// Save writes through to the inner store and caches the result.
func (s *CachingStore) Save(ctx context.Context, owner string, data []byte) (Ref, error) {
	ref, err := s.inner.Save(ctx, owner, data)
	if err != nil {
		return "", err
	}

	copied := make([]byte, len(data))
	copy(copied, data)
	s.cache.Add(ref, copied)

	return ref, nil
}

// Load returns the cached blob when present, falling back to the inner store.
func (s *CachingStore) Load(ctx context.Context, ref Ref) ([]byte, error) {
	if data, ok := s.cache.Get(ref); ok {
		copied := make([]byte, len(data))
		copy(copied, data)
		return copied, nil
	}

	data, err := s.inner.Load(ctx, ref)
	if err != nil {
		return nil, err
	}

	copied := make([]byte, len(data))
	copy(copied, data)
	s.cache.Add(ref, copied)

	return data, nil
}

// Delete evicts the ref and deletes it from the inner store.
func (s *CachingStore) Delete(ctx context.Context, ref Ref) error {
	s.cache.Remove(ref)
	return s.inner.Delete(ctx, ref)
}

// List passes through to the inner store.
func (s *CachingStore) List(ctx context.Context, owner string) ([]Ref, error) {
	return s.inner.List(ctx, owner)
}
