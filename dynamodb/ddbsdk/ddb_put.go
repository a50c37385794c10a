package ddbsdk

import (
	"context"
	"fmt"
	"maps"
	"time"

	dynamodbv2 "github.com/aws/aws-sdk-go-v2/service/dynamodb"

	"github.com/acksell/ddbq/dynamodb/expr"
	"github.com/acksell/ddbq/dynamodb/table"
)

// Put writes a full item, replacing any item with the same primary key.
type Put struct {
	Table *table.Table
	Item  Item

	conditions []expr.Node
	ttlExpiry  *time.Time
}

func NewPut(t *table.Table, item Item) *Put {
	return &Put{
		Table: t,
		Item:  item,
	}
}

// WithTTL stores expiry in the table's time to live attribute.
func (p *Put) WithTTL(expiry time.Time) *Put {
	p.ttlExpiry = &expiry
	return p
}

// WithCondition makes the put conditional. The predicates are joined with
// AND and evaluated against the stored item.
func (p *Put) WithCondition(preds ...expr.Node) *Put {
	p.conditions = append(p.conditions, preds...)
	return p
}

// Build validates the item's primary key and assembles the request.
func (p *Put) Build() (*dynamodbv2.PutItemInput, error) {
	if _, err := p.Table.KeyFromItem(p.Item); err != nil {
		return nil, fmt.Errorf("invalid item for table %q: %w", p.Table.Name(), err)
	}
	item := p.Item
	if p.ttlExpiry != nil {
		if p.Table.TimeToLiveKey() == "" {
			return nil, fmt.Errorf("table %q has no time to live attribute", p.Table.Name())
		}
		item = maps.Clone(item)
		item[p.Table.TimeToLiveKey()] = ttlDDB(*p.ttlExpiry)
	}

	input := &dynamodbv2.PutItemInput{
		TableName: ptr(p.Table.Name()),
		Item:      item,
	}
	if len(p.conditions) > 0 {
		c, err := expr.Compile(p.Table, p.conditions)
		if err != nil {
			return nil, fmt.Errorf("failed to compile put condition: %w", err)
		}
		input.ConditionExpression = c.ConditionExpression()
		input.ExpressionAttributeNames = c.Names
		input.ExpressionAttributeValues = c.Values
	}
	return input, nil
}

// PutItem writes the item. A failed condition is reported as
// ErrConditionFailed.
func (c *Client) PutItem(ctx context.Context, p *Put) error {
	input, err := p.Build()
	if err != nil {
		return err
	}
	c.log.Debug().Str("table", p.Table.Name()).Bool("conditional", input.ConditionExpression != nil).Msg("put item")
	if _, err := c.awsddb.PutItem(ctx, input); err != nil {
		return fmt.Errorf("put item failed: %w", conditionFailed(err))
	}
	return nil
}
