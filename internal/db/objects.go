package db

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/jarrod-lowe/jmap-client-core/internal/schema"
	"github.com/jarrod-lowe/jmap-client-core/internal/statesync"
)

// ObjectRecord marks a server object as known to the cache. Stale objects
// have changed since they were last fetched.
type ObjectRecord struct {
	PK        string `dynamodbav:"pk"`
	SK        string `dynamodbav:"sk"`
	Entity    string `dynamodbav:"entity"`
	ObjectID  string `dynamodbav:"objectId"`
	Stale     bool   `dynamodbav:"stale"`
	UpdatedAt string `dynamodbav:"updatedAt"`
}

func objectPrefix(entity schema.EntityName) string {
	return SKPrefixObject + string(entity) + "#"
}

// ApplyChanges records one round of changes in the object index: created
// and updated objects are marked stale, destroyed ones are removed. Writes
// are grouped into transactions of at most 100 items.
func (c *Client) ApplyChanges(ctx context.Context, accountID string, entity schema.EntityName, created, updated, destroyed []string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	pk := PKPrefixAccount + accountID
	prefix := objectPrefix(entity)

	var items []types.TransactWriteItem
	seen := make(map[string]bool)
	for _, id := range destroyed {
		if seen[id] {
			continue
		}
		seen[id] = true
		items = append(items, types.TransactWriteItem{
			Delete: &types.Delete{
				TableName: aws.String(c.tableName),
				Key: map[string]types.AttributeValue{
					"pk": &types.AttributeValueMemberS{Value: pk},
					"sk": &types.AttributeValueMemberS{Value: prefix + id},
				},
			},
		})
	}
	for _, id := range slices.Concat(created, updated) {
		if seen[id] {
			continue
		}
		seen[id] = true
		item, err := attributevalue.MarshalMap(ObjectRecord{
			PK:        pk,
			SK:        prefix + id,
			Entity:    string(entity),
			ObjectID:  id,
			Stale:     true,
			UpdatedAt: now,
		})
		if err != nil {
			return fmt.Errorf("failed to marshal object record: %w", err)
		}
		items = append(items, types.TransactWriteItem{
			Put: &types.Put{
				TableName: aws.String(c.tableName),
				Item:      item,
			},
		})
	}

	return c.transactWrite(ctx, items)
}

// ApplyFunc adapts ApplyChanges for a sync loop of one account and entity
func (c *Client) ApplyFunc(accountID string, entity schema.EntityName) statesync.ApplyFunc {
	return func(ctx context.Context, created, updated, destroyed []string) error {
		return c.ApplyChanges(ctx, accountID, entity, created, updated, destroyed)
	}
}

// ListObjects returns the index records of an entity type
func (c *Client) ListObjects(ctx context.Context, accountID string, entity schema.EntityName) ([]ObjectRecord, error) {
	keyCond := expression.Key("pk").Equal(expression.Value(PKPrefixAccount + accountID)).
		And(expression.Key("sk").BeginsWith(objectPrefix(entity)))
	expr, err := expression.NewBuilder().WithKeyCondition(keyCond).Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build expression: %w", err)
	}

	var records []ObjectRecord
	var startKey map[string]types.AttributeValue
	for {
		output, err := c.ddb.Query(ctx, &dynamodb.QueryInput{
			TableName:                 aws.String(c.tableName),
			KeyConditionExpression:    expr.KeyCondition(),
			ExpressionAttributeNames:  expr.Names(),
			ExpressionAttributeValues: expr.Values(),
			ExclusiveStartKey:         startKey,
		})
		if err != nil {
			return nil, err
		}

		var page []ObjectRecord
		if err := attributevalue.UnmarshalListOfMaps(output.Items, &page); err != nil {
			return nil, fmt.Errorf("failed to unmarshal object records: %w", err)
		}
		records = append(records, page...)

		if len(output.LastEvaluatedKey) == 0 {
			return records, nil
		}
		startKey = output.LastEvaluatedKey
	}
}

// ResetEntity drops the index and state token of an entity type so the
// next sync starts from a new baseline
func (c *Client) ResetEntity(ctx context.Context, accountID string, entity schema.EntityName) error {
	records, err := c.ListObjects(ctx, accountID, entity)
	if err != nil {
		return err
	}

	items := []types.TransactWriteItem{{
		Delete: &types.Delete{
			TableName: aws.String(c.tableName),
			Key:       stateKey(statesync.Key{AccountID: accountID, Entity: entity}),
		},
	}}
	for _, r := range records {
		items = append(items, types.TransactWriteItem{
			Delete: &types.Delete{
				TableName: aws.String(c.tableName),
				Key: map[string]types.AttributeValue{
					"pk": &types.AttributeValueMemberS{Value: r.PK},
					"sk": &types.AttributeValueMemberS{Value: r.SK},
				},
			},
		})
	}
	return c.transactWrite(ctx, items)
}

func (c *Client) transactWrite(ctx context.Context, items []types.TransactWriteItem) error {
	for chunk := range slices.Chunk(items, maxTransactItems) {
		_, err := c.ddb.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
			TransactItems: chunk,
		})
		if err != nil {
			return fmt.Errorf("failed to write %d items: %w", len(chunk), err)
		}
	}
	return nil
}
