package blobstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRef(t *testing.T) {
	ref, err := NewRef("tenant-a")
	require.NoError(t, err)
	assert.Equal(t, "tenant-a", ref.Owner())

	_, err = NewRef("")
	assert.Error(t, err)

	_, err = NewRef("a/b")
	assert.Error(t, err)
}

func TestRefOwnerMalformed(t *testing.T) {
	assert.Equal(t, "", Ref("noslash").Owner())
}

// storeContract runs the behavior shared by every Store implementation.
func storeContract(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()

	ref1, err := store.Save(ctx, "owner-a", []byte("first"))
	require.NoError(t, err)
	ref2, err := store.Save(ctx, "owner-a", []byte("second"))
	require.NoError(t, err)
	ref3, err := store.Save(ctx, "owner-b", []byte("other"))
	require.NoError(t, err)

	assert.NotEqual(t, ref1, ref2, "each save must mint a fresh ref")

	data, err := store.Load(ctx, ref1)
	require.NoError(t, err)
	assert.Equal(t, []byte("first"), data)

	data, err = store.Load(ctx, ref2)
	require.NoError(t, err)
	assert.Equal(t, []byte("second"), data)

	refs, err := store.List(ctx, "owner-a")
	require.NoError(t, err)
	assert.ElementsMatch(t, []Ref{ref1, ref2}, refs)

	refs, err = store.List(ctx, "owner-b")
	require.NoError(t, err)
	assert.Equal(t, []Ref{ref3}, refs)

	require.NoError(t, store.Delete(ctx, ref1))
	_, err = store.Load(ctx, ref1)
	assert.ErrorIs(t, err, ErrNotFound)

	// Deleting a missing blob is a no-op.
	assert.NoError(t, store.Delete(ctx, ref1))

	refs, err = store.List(ctx, "owner-a")
	require.NoError(t, err)
	assert.Equal(t, []Ref{ref2}, refs)

	refs, err = store.List(ctx, "owner-without-blobs")
	require.NoError(t, err)
	assert.Empty(t, refs)
}

func TestMemoryStore(t *testing.T) {
	storeContract(t, NewMemoryStore())
}

func TestLocalStore(t *testing.T) {
	storeContract(t, NewLocalStore(t.TempDir()))
}

func TestCachingStore(t *testing.T) {
	cached, err := NewCachingStore(NewMemoryStore(), 16)
	require.NoError(t, err)
	storeContract(t, cached)
}

func TestMemoryStoreCopiesData(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	data := []byte("mutable")
	ref, err := store.Save(ctx, "o", data)
	require.NoError(t, err)
	data[0] = 'X'

	got, err := store.Load(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, []byte("mutable"), got)

	got[0] = 'Y'
	again, err := store.Load(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, []byte("mutable"), again)
}

func TestCachingStoreServesFromCache(t *testing.T) {
	ctx := context.Background()
	inner := NewMemoryStore()
	cached, err := NewCachingStore(inner, 4)
	require.NoError(t, err)

	ref, err := cached.Save(ctx, "o", []byte("payload"))
	require.NoError(t, err)

	// Remove from the inner store; the cache must still answer.
	require.NoError(t, inner.Delete(ctx, ref))

	got, err := cached.Load(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), got)
}

func TestCachingStoreDeleteEvicts(t *testing.T) {
	ctx := context.Background()
	cached, err := NewCachingStore(NewMemoryStore(), 4)
	require.NoError(t, err)

	ref, err := cached.Save(ctx, "o", []byte("payload"))
	require.NoError(t, err)
	require.NoError(t, cached.Delete(ctx, ref))

	_, err = cached.Load(ctx, ref)
	assert.ErrorIs(t, err, ErrNotFound)
}
