package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/jarrod-lowe/jmap-client-core/internal/statesync"
)

// StateRecord is a stored state token
type StateRecord struct {
	PK        string `dynamodbav:"pk"`
	SK        string `dynamodbav:"sk"`
	State     string `dynamodbav:"state"`
	UpdatedAt string `dynamodbav:"updatedAt"`
}

func stateKey(key statesync.Key) map[string]types.AttributeValue {
	sk := SKPrefixState + string(key.Entity)
	if key.Query != "" {
		sk += "#" + key.Query
	}
	return map[string]types.AttributeValue{
		"pk": &types.AttributeValueMemberS{Value: PKPrefixAccount + key.AccountID},
		"sk": &types.AttributeValueMemberS{Value: sk},
	}
}

// GetState implements statesync.TokenStore
func (c *Client) GetState(ctx context.Context, key statesync.Key) (string, bool, error) {
	output, err := c.ddb.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(c.tableName),
		Key:            stateKey(key),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return "", false, err
	}
	if output.Item == nil {
		return "", false, nil
	}

	var record StateRecord
	if err := attributevalue.UnmarshalMap(output.Item, &record); err != nil {
		return "", false, fmt.Errorf("failed to unmarshal state: %w", err)
	}
	return record.State, true, nil
}

// CompareAndSwapState implements statesync.TokenStore with a conditional
// update
func (c *Client) CompareAndSwapState(ctx context.Context, key statesync.Key, oldState, newState string) error {
	now := time.Now().UTC().Format(time.RFC3339)

	update := expression.Set(
		expression.Name("state"),
		expression.Value(newState),
	).Set(
		expression.Name("updatedAt"),
		expression.Value(now),
	)

	var cond expression.ConditionBuilder
	if oldState == "" {
		cond = expression.AttributeNotExists(expression.Name("pk"))
	} else {
		cond = expression.Name("state").Equal(expression.Value(oldState))
	}

	expr, err := expression.NewBuilder().WithUpdate(update).WithCondition(cond).Build()
	if err != nil {
		return fmt.Errorf("failed to build expression: %w", err)
	}

	_, err = c.ddb.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(c.tableName),
		Key:                       stateKey(key),
		UpdateExpression:          expr.Update(),
		ConditionExpression:       expr.Condition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	if err != nil {
		var condErr *types.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			return fmt.Errorf("state for %s is no longer %q: %w", key, oldState, statesync.ErrStateConflict)
		}
		return err
	}
	return nil
}
