package s3

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/quivigo/quivigo/blobstore"
)

// ErrVersionConflict is returned when a commit loses a compare-and-swap race
// against another writer for the same owner.
var ErrVersionConflict = errors.New("s3: version conflict")

// DDBClient is the subset of the DynamoDB API the version store uses.
type DDBClient interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
}

// DDBVersionStore records, per owner, which blob ref holds the current
// snapshot and at which version. S3 has no compare-and-swap, so the pointer
// lives in DynamoDB and commits use conditional writes; concurrent writers
// for the same owner serialize on the version number.
//
// Table schema: partition key "owner" (string). Create with:
//
//	aws dynamodb create-table \
//	  --table-name quivigo-versions \
//	  --attribute-definitions AttributeName=owner,AttributeType=S \
//	  --key-schema AttributeName=owner,KeyType=HASH \
//	  --billing-mode PAY_PER_REQUEST
type DDBVersionStore struct {
	client    DDBClient
	tableName string
}

// NewDDBVersionStore creates a version store on an existing DynamoDB table.
func NewDDBVersionStore(client DDBClient, tableName string) *DDBVersionStore {
	return &DDBVersionStore{client: client, tableName: tableName}
}

// Current returns the committed version and ref for owner. A never-committed
// owner yields version 0 and an empty ref, not an error.
func (s *DDBVersionStore) Current(ctx context.Context, owner string) (uint64, blobstore.Ref, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.tableName),
		ConsistentRead: aws.Bool(true),
		Key: map[string]types.AttributeValue{
			"owner": &types.AttributeValueMemberS{Value: owner},
		},
	})
	if err != nil {
		return 0, "", fmt.Errorf("s3: get version: %w", err)
	}
	if len(out.Item) == 0 {
		return 0, "", nil
	}

	versionAttr, ok := out.Item["version"].(*types.AttributeValueMemberN)
	if !ok {
		return 0, "", errors.New("s3: malformed version attribute")
	}
	version, err := strconv.ParseUint(versionAttr.Value, 10, 64)
	if err != nil {
		return 0, "", fmt.Errorf("s3: parse version: %w", err)
	}

	refAttr, ok := out.Item["ref"].(*types.AttributeValueMemberS)
	if !ok {
		return 0, "", errors.New("s3: malformed ref attribute")
	}

	return version, blobstore.Ref(refAttr.Value), nil
}

// Commit advances owner's pointer to ref at version. The write succeeds only
// if the stored version is exactly version-1 (or the item does not exist for
// version 1); otherwise ErrVersionConflict is returned.
func (s *DDBVersionStore) Commit(ctx context.Context, owner string, version uint64, ref blobstore.Ref) error {
	if version == 0 {
		return errors.New("s3: commit version must be positive")
	}

	input := &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item: map[string]types.AttributeValue{
			"owner":   &types.AttributeValueMemberS{Value: owner},
			"version": &types.AttributeValueMemberN{Value: strconv.FormatUint(version, 10)},
			"ref":     &types.AttributeValueMemberS{Value: string(ref)},
		},
	}

	if version == 1 {
		input.ConditionExpression = aws.String("attribute_not_exists(#o) OR version = :prev")
		input.ExpressionAttributeNames = map[string]string{"#o": "owner"}
	} else {
		input.ConditionExpression = aws.String("version = :prev")
	}
	input.ExpressionAttributeValues = map[string]types.AttributeValue{
		":prev": &types.AttributeValueMemberN{Value: strconv.FormatUint(version-1, 10)},
	}

	_, err := s.client.PutItem(ctx, input)
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return fmt.Errorf("%w: owner %q version %d", ErrVersionConflict, owner, version)
		}
		return fmt.Errorf("s3: commit version: %w", err)
	}
	return nil
}

// Forget removes owner's pointer entirely.
func (s *DDBVersionStore) Forget(ctx context.Context, owner string) error {
	_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"owner": &types.AttributeValueMemberS{Value: owner},
		},
	})
	return err
}
