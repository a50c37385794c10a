package ddbsdk

import (
	"context"
	"fmt"

	dynamodbv2 "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/rs/zerolog"

	"github.com/acksell/ddbq/dynamodb/table"
)

// Getter looks items up by primary key.
//
// ConsistentReads are enabled by default.
// To use EventuallyConsistent reads, add the WithEventualConsistency option.
type Getter struct {
	awsddb AWSDynamoClientV2
	log    zerolog.Logger

	opts getOpts
}

const maxGetItems = 100

func NewGetter(ddb AWSDynamoClientV2, opts ...GetOption) *Getter {
	g := &Getter{
		awsddb: ddb,
		log:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(&g.opts)
	}
	return g
}

// GetItemRequest identifies an item to retrieve with optional projection.
// Projection is per-item since different items may have different schemas.
type GetItemRequest struct {
	Table      *table.Table
	Key        table.Key
	Projection []string // Optional: limits which attributes are returned
}

// GetItem retrieves a single item. A missing item is returned as nil
// without error.
func (g *Getter) GetItem(ctx context.Context, item GetItemRequest) (Item, error) {
	input := &dynamodbv2.GetItemInput{
		TableName:      ptr(item.Table.Name()),
		Key:            item.Key.DDB(),
		ConsistentRead: ptr(!g.opts.eventuallyConsistent),
	}

	if err := applyProjectionToGetInput(input, item.Projection); err != nil {
		return nil, fmt.Errorf("failed to apply projection: %w", err)
	}

	g.log.Debug().Str("table", item.Table.Name()).Stringer("key", item.Key).Msg("get item")

	res, err := g.awsddb.GetItem(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("get item failed: %w", err)
	}

	if len(res.Item) == 0 {
		return nil, nil
	}

	return res.Item, nil
}

// GetItemsTx retrieves multiple items atomically using TransactGetItems.
// Missing items are left out of the result.
// Maximum 100 items per transaction (DynamoDB limit).
func (g *Getter) GetItemsTx(ctx context.Context, items ...GetItemRequest) ([]Item, error) {
	if len(items) == 0 {
		return nil, nil
	}

	if len(items) > maxGetItems {
		return nil, fmt.Errorf("transact get items limited to %d items, got %d", maxGetItems, len(items))
	}

	transactItems := make([]types.TransactGetItem, 0, len(items))
	for _, item := range items {
		get := &types.Get{
			TableName: ptr(item.Table.Name()),
			Key:       item.Key.DDB(),
		}

		proj, names, err := projection(item.Projection)
		if err != nil {
			return nil, fmt.Errorf("failed to apply projection: %w", err)
		}
		get.ProjectionExpression = proj
		get.ExpressionAttributeNames = names

		transactItems = append(transactItems, types.TransactGetItem{Get: get})
	}

	res, err := g.awsddb.TransactGetItems(ctx, &dynamodbv2.TransactGetItemsInput{
		TransactItems: transactItems,
	})
	if err != nil {
		return nil, fmt.Errorf("transact get items failed: %w", err)
	}

	found := make([]Item, 0, len(res.Responses))
	for _, resp := range res.Responses {
		if len(resp.Item) > 0 {
			found = append(found, resp.Item)
		}
	}
	return found, nil
}

// GetItemsBatch retrieves multiple items using BatchGetItem, resending
// unprocessed keys until every key has been served.
//
// As a batch unit, not serializable isolation. Only read-committed isolation.
// Projection is per table, the first request for a table decides it.
// Maximum 100 items per batch (DynamoDB limit).
func (g *Getter) GetItemsBatch(ctx context.Context, items ...GetItemRequest) ([]Item, error) {
	if len(items) == 0 {
		return nil, nil
	}

	if len(items) > maxGetItems {
		return nil, fmt.Errorf("batch get items limited to %d items, got %d", maxGetItems, len(items))
	}

	requestItems, err := g.buildBatchRequestItems(items)
	if err != nil {
		return nil, err
	}

	var allItems []Item

	for len(requestItems) > 0 {
		res, err := g.awsddb.BatchGetItem(ctx, &dynamodbv2.BatchGetItemInput{
			RequestItems: requestItems,
		})
		if err != nil {
			return nil, fmt.Errorf("batch get item failed: %w", err)
		}

		for _, tableItems := range res.Responses {
			allItems = append(allItems, tableItems...)
		}

		requestItems = res.UnprocessedKeys
	}

	return allItems, nil
}

func (g *Getter) buildBatchRequestItems(items []GetItemRequest) (map[string]types.KeysAndAttributes, error) {
	requestItems := make(map[string]types.KeysAndAttributes)

	for _, item := range items {
		tableName := item.Table.Name()

		keysAndAttrs, exists := requestItems[tableName]
		if !exists {
			keysAndAttrs = types.KeysAndAttributes{
				ConsistentRead: ptr(!g.opts.eventuallyConsistent),
			}
			proj, names, err := projection(item.Projection)
			if err != nil {
				return nil, fmt.Errorf("failed to apply projection: %w", err)
			}
			keysAndAttrs.ProjectionExpression = proj
			keysAndAttrs.ExpressionAttributeNames = names
		}

		keysAndAttrs.Keys = append(keysAndAttrs.Keys, item.Key.DDB())
		requestItems[tableName] = keysAndAttrs
	}

	return requestItems, nil
}

func applyProjectionToGetInput(input *dynamodbv2.GetItemInput, attrs []string) error {
	proj, names, err := projection(attrs)
	if err != nil {
		return err
	}
	input.ProjectionExpression = proj
	input.ExpressionAttributeNames = names
	return nil
}

// GetOption configures the getter behavior.
type GetOption func(*getOpts)

type getOpts struct {
	eventuallyConsistent bool
}

// WithEventualConsistency enables eventually consistent reads for lookups.
// By default, reads are strongly consistent.
// It has no effect on GetItemsTx, which always uses serializable isolation.
func WithEventualConsistency() GetOption {
	return func(o *getOpts) {
		o.eventuallyConsistent = true
	}
}
