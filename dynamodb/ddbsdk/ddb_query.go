package ddbsdk

import (
	"context"
	"fmt"

	dynamodbv2 "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/rs/zerolog"

	"github.com/acksell/ddbq/dynamodb/expr"
	"github.com/acksell/ddbq/dynamodb/table"
)

// Querier pages through the items matching a predicate list. It is not safe
// for concurrent use.
type Querier struct {
	awsddb AWSDynamoClientV2
	log    zerolog.Logger

	table *table.Table
	preds []expr.Node

	//internal, not exposed to user
	compiled   *expr.Compiled
	lastCursor map[string]types.AttributeValue
	done       bool

	opts queryOptions
}

type queryOptions struct {
	// default to consistent reads
	// because if you don't know what you're doing you may introduce race conditions.
	eventuallyConsistent bool
	pageSize             int32
	descending           bool
	index                []expr.Option
	projectionAttributes []string
}

const defaultPageSize = 10

func NewQuerier(ddb AWSDynamoClientV2, t *table.Table, preds ...expr.Node) *Querier {
	return &Querier{
		awsddb: ddb,
		log:    zerolog.Nop(),
		table:  t,
		preds:  preds,
		opts: queryOptions{
			pageSize: defaultPageSize,
		},
	}
}

type QueryResult struct {
	Items  []Item
	IsDone bool
}

// Compiled returns the compiled predicates the querier sends.
func (q *Querier) Compiled() (*expr.Compiled, error) {
	if q.compiled != nil {
		return q.compiled, nil
	}
	c, err := expr.Compile(q.table, q.preds, q.opts.index...)
	if err != nil {
		return nil, err
	}
	q.compiled = c
	return c, nil
}

func (q *Querier) Next(ctx context.Context) (*QueryResult, error) {
	if q.done {
		return &QueryResult{IsDone: true}, nil
	}
	c, err := q.Compiled()
	if err != nil {
		return nil, err
	}
	if c.IsSimpleGet() {
		return q.get(ctx, c)
	}
	if c.KeyCondition == nil {
		return nil, fmt.Errorf("%w: table %q", ErrNoKeyCondition, q.table.Name())
	}

	proj, projNames, err := projection(q.opts.projectionAttributes)
	if err != nil {
		return nil, err
	}
	names, err := mergeNames(c.Names, projNames)
	if err != nil {
		return nil, err
	}

	q.log.Debug().
		Str("table", q.table.Name()).
		Str("key_condition", *c.KeyCondition).
		Bool("filtered", c.FilterCondition != nil).
		Msg("query")

	res, err := q.awsddb.Query(ctx, &dynamodbv2.QueryInput{
		TableName:                 ptr(q.table.Name()),
		IndexName:                 c.IndexName(),
		KeyConditionExpression:    c.KeyCondition,
		FilterExpression:          c.FilterCondition,
		ProjectionExpression:      proj,
		ExpressionAttributeValues: c.Values,
		ExpressionAttributeNames:  names,
		ConsistentRead:            ptr(consistentRead(q.table, c, q.opts.eventuallyConsistent)),
		Limit:                     ptr(q.opts.pageSize),
		ScanIndexForward:          ptr(!q.opts.descending),
		ExclusiveStartKey:         q.lastCursor,
	})
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}

	q.lastCursor = res.LastEvaluatedKey
	q.done = res.LastEvaluatedKey == nil
	return &QueryResult{
		Items:  res.Items,
		IsDone: q.done,
	}, nil
}

// get serves a query that pins one item by its full primary key.
func (q *Querier) get(ctx context.Context, c *expr.Compiled) (*QueryResult, error) {
	q.log.Debug().
		Str("table", q.table.Name()).
		Stringer("key", c.SimpleGetKey).
		Msg("query served by get item")

	item, err := q.getItem(ctx, c.SimpleGetKey)
	if err != nil {
		return nil, err
	}
	q.done = true
	res := &QueryResult{IsDone: true}
	if item != nil {
		res.Items = []Item{item}
	}
	return res, nil
}

func (q *Querier) getItem(ctx context.Context, key *table.Key) (Item, error) {
	input := &dynamodbv2.GetItemInput{
		TableName:      ptr(q.table.Name()),
		Key:            key.DDB(),
		ConsistentRead: ptr(!q.opts.eventuallyConsistent),
	}
	if err := applyProjectionToGetInput(input, q.opts.projectionAttributes); err != nil {
		return nil, fmt.Errorf("failed to apply projection: %w", err)
	}
	res, err := q.awsddb.GetItem(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("get item failed: %w", err)
	}
	if len(res.Item) == 0 {
		return nil, nil
	}
	return res.Item, nil
}

func (q *Querier) QueryAll(ctx context.Context) (*QueryResult, error) {
	var allItems []Item
	for {
		res, err := q.Next(ctx)
		if err != nil {
			return nil, err
		}
		allItems = append(allItems, res.Items...)
		if res.IsDone {
			break
		}
	}
	return &QueryResult{
		Items:  allItems,
		IsDone: true,
	}, nil
}

func (q *Querier) WithEventuallyConsistentReads() *Querier {
	q.opts.eventuallyConsistent = true
	return q
}

func (q *Querier) WithDescending() *Querier {
	q.opts.descending = true
	return q
}

func (q *Querier) WithPageSize(limit int) *Querier {
	q.opts.pageSize = int32(limit)
	return q
}

// WithIndex queries the index referenced by c. Key classification follows
// the index's keys.
func (q *Querier) WithIndex(c *table.Column) *Querier {
	q.opts.index = []expr.Option{expr.WithIndex(c)}
	q.compiled = nil
	return q
}

// WithIndexName queries the named secondary index.
func (q *Querier) WithIndexName(name string) *Querier {
	q.opts.index = []expr.Option{expr.WithIndexName(name)}
	q.compiled = nil
	return q
}

// WithProjection limits the attributes returned in the response.
// Only the specified attributes will be retrieved from DynamoDB.
func (q *Querier) WithProjection(attrs ...string) *Querier {
	q.opts.projectionAttributes = attrs
	return q
}

// consistentRead reports whether a read can be strongly consistent. Global
// indices only support eventually consistent reads.
func consistentRead(t *table.Table, c *expr.Compiled, eventual bool) bool {
	if eventual {
		return false
	}
	if c.Index == nil {
		return true
	}
	idx, ok := t.Index(c.Index.Name())
	return !ok || idx.Kind != table.IndexGlobal
}
