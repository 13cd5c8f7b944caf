package dynamodb

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/tendant/simple-blobstore/pkg/blobstore"
)

// Client is the interface for DynamoDB operations the store needs, narrow
// enough to substitute in tests.
type Client interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
}

// Store implements blobstore.DocumentStore backed by a DynamoDB table with
// blob_id as partition key.
//
// Create the table with:
//
//	aws dynamodb create-table \
//	  --table-name blob-attributes \
//	  --attribute-definitions AttributeName=blob_id,AttributeType=S \
//	  --key-schema AttributeName=blob_id,KeyType=HASH \
//	  --billing-mode PAY_PER_REQUEST
type Store struct {
	client Client
	table  string
}

// New creates a new DynamoDB document store.
func New(client Client, table string) *Store {
	return &Store{client: client, table: table}
}

// record is the table item shape; one item per blob id.
type record struct {
	BlobID        string            `dynamodbav:"blob_id"`
	CreationTime  int64             `dynamodbav:"creation_time"`
	Size          int64             `dynamodbav:"size"`
	SHA1          string            `dynamodbav:"sha1"`
	Headers       map[string]string `dynamodbav:"headers,omitempty"`
	Deleted       bool              `dynamodbav:"deleted"`
	DeletedReason string            `dynamodbav:"deleted_reason,omitempty"`
}

func (s *Store) Put(ctx context.Context, rec *blobstore.AttributeRecord) error {
	item, err := attributevalue.MarshalMap(record{
		BlobID:        rec.BlobID,
		CreationTime:  rec.CreationTime.UnixMilli(),
		Size:          rec.Size,
		SHA1:          rec.SHA1,
		Headers:       rec.Headers,
		Deleted:       rec.Deleted,
		DeletedReason: rec.DeletedReason,
	})
	if err != nil {
		return &blobstore.StorageError{Backend: "dynamodb", Key: rec.BlobID, Op: "put", Err: err}
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.table),
		Item:      item,
	})
	if err != nil {
		return &blobstore.StorageError{Backend: "dynamodb", Key: rec.BlobID, Op: "put", Err: err}
	}
	return nil
}

func (s *Store) Get(ctx context.Context, blobID string) (*blobstore.AttributeRecord, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.table),
		Key: map[string]types.AttributeValue{
			"blob_id": &types.AttributeValueMemberS{Value: blobID},
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, &blobstore.StorageError{Backend: "dynamodb", Key: blobID, Op: "get", Err: err}
	}
	if len(out.Item) == 0 {
		return nil, blobstore.ErrDocumentNotFound
	}

	var rec record
	if err := attributevalue.UnmarshalMap(out.Item, &rec); err != nil {
		return nil, &blobstore.StorageError{Backend: "dynamodb", Key: blobID, Op: "get",
			Err: fmt.Errorf("failed to unmarshal item: %w", err)}
	}
	return toAttributeRecord(&rec), nil
}

func toAttributeRecord(rec *record) *blobstore.AttributeRecord {
	return &blobstore.AttributeRecord{
		BlobID:        rec.BlobID,
		CreationTime:  time.UnixMilli(rec.CreationTime).UTC(),
		Size:          rec.Size,
		SHA1:          rec.SHA1,
		Headers:       rec.Headers,
		Deleted:       rec.Deleted,
		DeletedReason: rec.DeletedReason,
	}
}
