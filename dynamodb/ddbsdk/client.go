// Package ddbsdk issues requests compiled by the expr package against
// DynamoDB.
//
//	c := ddbsdk.New(dynamodb.NewFromConfig(cfg))
//	res, err := c.NewQuery(example.Products,
//		expr.Equal(example.Products.Column("id"), "p1"),
//		expr.Greater(example.Products.Column("price"), 10),
//	).WithPageSize(50).QueryAll(ctx)
//
// A query whose predicates pin the full primary key with equality is sent
// as a GetItem instead.
//
// Writes are built as Put, Update and Delete values. They run one at a
// time through the Client, grouped with NewBatch, or atomically with NewTx:
//
//	tx := c.NewTx()
//	tx.AddAction(
//		ddbsdk.NewPut(example.Products, item).WithCondition(expr.NotExists(id)),
//		ddbsdk.NewUpdate(example.Products, key).AddOp(ddbsdk.AddToSetOp(tags, "sale")),
//	)
//	err := tx.Commit(ctx)
package ddbsdk

import (
	"github.com/rs/zerolog"

	"github.com/acksell/ddbq/dynamodb/expr"
	"github.com/acksell/ddbq/dynamodb/table"
)

type ClientOption func(*Client)

// WithLogger logs every request at debug level.
func WithLogger(l zerolog.Logger) ClientOption {
	return func(c *Client) {
		c.log = l
	}
}

func New(awsddb AWSDynamoClientV2, opts ...ClientOption) *Client {
	c := &Client{
		awsddb: awsddb,
		log:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type Client struct {
	awsddb AWSDynamoClientV2
	log    zerolog.Logger
}

var _ IO = &Client{}

// NewQuery creates a new querier for t. The predicates are joined with AND.
//
// Configure with method chaining: WithIndex, WithDescending, WithPageSize,
// WithProjection, WithEventuallyConsistentReads.
func (c *Client) NewQuery(t *table.Table, preds ...expr.Node) *Querier {
	q := NewQuerier(c.awsddb, t, preds...)
	q.log = c.log
	return q
}

// NewScan creates a scanner reading the whole table or index, keeping the
// items matching preds.
func (c *Client) NewScan(t *table.Table, preds ...expr.Node) *Scanner {
	s := NewScanner(c.awsddb, t, preds...)
	s.log = c.log
	return s
}

// NewLookup creates a new getter for direct lookups by primary key.
//
// Options: [WithEventualConsistency]
func (c *Client) NewLookup(opts ...GetOption) *Getter {
	g := NewGetter(c.awsddb, opts...)
	g.log = c.log
	return g
}
