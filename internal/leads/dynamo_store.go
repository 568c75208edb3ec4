package leads

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

type dynamoAPI interface {
	PutItem(context.Context, *dynamodb.PutItemInput, ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(context.Context, *dynamodb.GetItemInput, ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	Scan(context.Context, *dynamodb.ScanInput, ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
}

// dynamoItem is the table layout: one partition key, the record attributes and
// an epoch-seconds expiresAt attribute configured as the table TTL.
type dynamoItem struct {
	PK string `dynamodbav:"pk"`
	Record
	ExpiresAt int64 `dynamodbav:"expiresAt"`
}

type dynamoIndexItem struct {
	PK        string `dynamodbav:"pk"`
	Ticket    string `dynamodbav:"ticket"`
	ExpiresAt int64  `dynamodbav:"expiresAt"`
}

// DynamoStore persists lead records in a DynamoDB table keyed by "pk".
type DynamoStore struct {
	client    dynamoAPI
	tableName string
	keys      Keys
	now       func() time.Time
}

// NewDynamoStore builds a store backed by the provided DynamoDB client.
func NewDynamoStore(client dynamoAPI, tableName, prefix string) *DynamoStore {
	if client == nil {
		panic("leads: dynamodb client cannot be nil")
	}
	if tableName == "" {
		panic("leads: table name cannot be empty")
	}
	return &DynamoStore{
		client:    client,
		tableName: tableName,
		keys:      Keys{Prefix: prefix},
		now:       time.Now,
	}
}

// Put inserts the record guarded by attribute_not_exists(pk).
func (s *DynamoStore) Put(ctx context.Context, rec *Record, ttl time.Duration) error {
	item, err := attributevalue.MarshalMap(dynamoItem{
		PK:        s.keys.Record(rec.Ticket),
		Record:    *rec,
		ExpiresAt: s.now().Add(ttl).Unix(),
	})
	if err != nil {
		return fmt.Errorf("leads: marshal record: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.tableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(pk)"),
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return ErrTicketExists
		}
		return fmt.Errorf("leads: dynamodb put: %w", err)
	}
	return nil
}

// Get reads a record. Items past expiresAt are treated as absent because
// DynamoDB removes expired items lazily.
func (s *DynamoStore) Get(ctx context.Context, ticket string) (*Record, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"pk": &types.AttributeValueMemberS{Value: s.keys.Record(ticket)},
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("leads: dynamodb get: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, ErrNotFound
	}

	var item dynamoItem
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return nil, fmt.Errorf("leads: decode record: %w", err)
	}
	if item.ExpiresAt != 0 && item.ExpiresAt <= s.now().Unix() {
		return nil, ErrNotFound
	}
	rec := item.Record
	return &rec, nil
}

// IndexByTime writes a marker item whose key sorts by submission time.
func (s *DynamoStore) IndexByTime(ctx context.Context, rec *Record, ttl time.Duration) error {
	item, err := attributevalue.MarshalMap(dynamoIndexItem{
		PK:        s.keys.TimeIndex(rec),
		Ticket:    rec.Ticket,
		ExpiresAt: s.now().Add(ttl).Unix(),
	})
	if err != nil {
		return fmt.Errorf("leads: marshal index: %w", err)
	}
	if _, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item:      item,
	}); err != nil {
		return fmt.Errorf("leads: dynamodb index: %w", err)
	}
	return nil
}

// ListRecent scans index markers that have not expired yet.
func (s *DynamoStore) ListRecent(ctx context.Context, limit int) ([]IndexEntry, error) {
	prefix := s.keys.TimeIndexPrefix()
	input := &dynamodb.ScanInput{
		TableName:            aws.String(s.tableName),
		FilterExpression:     aws.String("begins_with(pk, :prefix) AND expiresAt > :now"),
		ProjectionExpression: aws.String("pk"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":prefix": &types.AttributeValueMemberS{Value: prefix},
			":now":    &types.AttributeValueMemberN{Value: strconv.FormatInt(s.now().Unix(), 10)},
		},
	}

	var keys []string
	for {
		out, err := s.client.Scan(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("leads: dynamodb scan: %w", err)
		}
		for _, item := range out.Items {
			if pk, ok := item["pk"].(*types.AttributeValueMemberS); ok {
				keys = append(keys, pk.Value)
			}
		}
		if len(out.LastEvaluatedKey) == 0 {
			break
		}
		input.ExclusiveStartKey = out.LastEvaluatedKey
	}
	return entriesFromKeys(keys, prefix, limit), nil
}

var _ Store = (*DynamoStore)(nil)
