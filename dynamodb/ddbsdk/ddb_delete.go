package ddbsdk

import (
	"context"
	"fmt"

	dynamodbv2 "github.com/aws/aws-sdk-go-v2/service/dynamodb"

	"github.com/acksell/ddbq/dynamodb/expr"
	"github.com/acksell/ddbq/dynamodb/table"
)

type Delete struct {
	Table *table.Table
	Key   table.Key

	conditions []expr.Node
}

func NewDelete(t *table.Table, key table.Key) *Delete {
	return &Delete{
		Table: t,
		Key:   key,
	}
}

func (d *Delete) WithCondition(preds ...expr.Node) *Delete {
	d.conditions = append(d.conditions, preds...)
	return d
}

func (d *Delete) Build() (*dynamodbv2.DeleteItemInput, error) {
	if err := checkKey(d.Table, d.Key); err != nil {
		return nil, err
	}
	input := &dynamodbv2.DeleteItemInput{
		TableName: ptr(d.Table.Name()),
		Key:       d.Key.DDB(),
	}
	if len(d.conditions) > 0 {
		c, err := expr.Compile(d.Table, d.conditions)
		if err != nil {
			return nil, fmt.Errorf("failed to compile delete condition: %w", err)
		}
		input.ConditionExpression = c.ConditionExpression()
		input.ExpressionAttributeNames = c.Names
		input.ExpressionAttributeValues = c.Values
	}
	return input, nil
}

// DeleteItem removes the item. Deleting a missing item is not an error
// unless a condition says otherwise.
func (c *Client) DeleteItem(ctx context.Context, d *Delete) error {
	input, err := d.Build()
	if err != nil {
		return err
	}
	c.log.Debug().Str("table", d.Table.Name()).Stringer("key", d.Key).Msg("delete item")
	if _, err := c.awsddb.DeleteItem(ctx, input); err != nil {
		return fmt.Errorf("delete item failed: %w", conditionFailed(err))
	}
	return nil
}
