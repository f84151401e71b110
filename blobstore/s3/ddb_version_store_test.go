package s3

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quivigo/quivigo/blobstore"
)

// fakeDDB implements DDBClient with conditional-write semantics in memory.
type fakeDDB struct {
	items map[string]map[string]types.AttributeValue
}

func newFakeDDB() *fakeDDB {
	return &fakeDDB{items: make(map[string]map[string]types.AttributeValue)}
}

func itemOwner(item map[string]types.AttributeValue) string {
	return item["owner"].(*types.AttributeValueMemberS).Value
}

func (f *fakeDDB) PutItem(_ context.Context, params *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	owner := itemOwner(params.Item)
	existing, exists := f.items[owner]

	if params.ConditionExpression != nil {
		prev := params.ExpressionAttributeValues[":prev"].(*types.AttributeValueMemberN).Value
		ok := false
		if !exists {
			// Only the attribute_not_exists form tolerates a missing item.
			ok = params.ExpressionAttributeNames != nil
		} else {
			ok = existing["version"].(*types.AttributeValueMemberN).Value == prev
		}
		if !ok {
			return nil, &types.ConditionalCheckFailedException{}
		}
	}

	f.items[owner] = params.Item
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeDDB) GetItem(_ context.Context, params *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	owner := params.Key["owner"].(*types.AttributeValueMemberS).Value
	item, ok := f.items[owner]
	if !ok {
		return &dynamodb.GetItemOutput{}, nil
	}
	return &dynamodb.GetItemOutput{Item: item}, nil
}

func (f *fakeDDB) DeleteItem(_ context.Context, params *dynamodb.DeleteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	owner := params.Key["owner"].(*types.AttributeValueMemberS).Value
	delete(f.items, owner)
	return &dynamodb.DeleteItemOutput{}, nil
}

func TestVersionStoreCommitAndCurrent(t *testing.T) {
	ctx := context.Background()
	store := NewDDBVersionStore(newFakeDDB(), "versions")

	version, ref, err := store.Current(ctx, "tenant-a")
	require.NoError(t, err)
	assert.Equal(t, uint64(0), version)
	assert.Empty(t, ref)

	require.NoError(t, store.Commit(ctx, "tenant-a", 1, blobstore.Ref("tenant-a/blob-1")))
	require.NoError(t, store.Commit(ctx, "tenant-a", 2, blobstore.Ref("tenant-a/blob-2")))

	version, ref, err = store.Current(ctx, "tenant-a")
	require.NoError(t, err)
	assert.Equal(t, uint64(2), version)
	assert.Equal(t, blobstore.Ref("tenant-a/blob-2"), ref)
}

func TestVersionStoreConflict(t *testing.T) {
	ctx := context.Background()
	store := NewDDBVersionStore(newFakeDDB(), "versions")

	require.NoError(t, store.Commit(ctx, "tenant-a", 1, blobstore.Ref("tenant-a/blob-1")))

	// Skipping a version fails the compare-and-swap.
	err := store.Commit(ctx, "tenant-a", 3, blobstore.Ref("tenant-a/blob-3"))
	assert.ErrorIs(t, err, ErrVersionConflict)

	// Replaying an already-committed version fails too.
	err = store.Commit(ctx, "tenant-a", 1, blobstore.Ref("tenant-a/blob-1b"))
	assert.ErrorIs(t, err, ErrVersionConflict)
}

func TestVersionStoreCommitZero(t *testing.T) {
	store := NewDDBVersionStore(newFakeDDB(), "versions")
	assert.Error(t, store.Commit(context.Background(), "tenant-a", 0, blobstore.Ref("x")))
}

func TestVersionStoreForget(t *testing.T) {
	ctx := context.Background()
	store := NewDDBVersionStore(newFakeDDB(), "versions")

	require.NoError(t, store.Commit(ctx, "tenant-a", 1, blobstore.Ref("tenant-a/blob-1")))
	require.NoError(t, store.Forget(ctx, "tenant-a"))

	version, _, err := store.Current(ctx, "tenant-a")
	require.NoError(t, err)
	assert.Equal(t, uint64(0), version)

	// First commit works again after a forget.
	require.NoError(t, store.Commit(ctx, "tenant-a", 1, blobstore.Ref("tenant-a/blob-1b")))
}

func TestVersionStoreOwnersIndependent(t *testing.T) {
	ctx := context.Background()
	store := NewDDBVersionStore(newFakeDDB(), "versions")

	require.NoError(t, store.Commit(ctx, "tenant-a", 1, blobstore.Ref("tenant-a/blob-1")))
	require.NoError(t, store.Commit(ctx, "tenant-b", 1, blobstore.Ref("tenant-b/blob-1")))

	version, ref, err := store.Current(ctx, "tenant-b")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), version)
	assert.Equal(t, blobstore.Ref("tenant-b/blob-1"), ref)
}
