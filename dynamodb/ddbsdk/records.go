package ddbsdk

import (
	"context"
	"fmt"

	"github.com/acksell/ddbq/dynamodb/codec"
	"github.com/acksell/ddbq/dynamodb/expr"
	"github.com/acksell/ddbq/dynamodb/table"
)

// GetRecord looks up key in t and decodes the item into a T. A missing item
// is reported as ErrNotFound.
func GetRecord[T any](ctx context.Context, c *Client, t *table.Table, key table.Key, opts ...GetOption) (T, error) {
	var zero T
	cdc, err := codec.For[T]()
	if err != nil {
		return zero, err
	}
	item, err := c.NewLookup(opts...).GetItem(ctx, GetItemRequest{Table: t, Key: key})
	if err != nil {
		return zero, err
	}
	if item == nil {
		return zero, fmt.Errorf("%w: %s in %q", ErrNotFound, key, t.Name())
	}
	return cdc.Read(item)
}

// QueryRecords drains q and decodes every item into a T.
func QueryRecords[T any](ctx context.Context, q *Querier) ([]T, error) {
	cdc, err := codec.For[T]()
	if err != nil {
		return nil, err
	}
	res, err := q.QueryAll(ctx)
	if err != nil {
		return nil, err
	}
	return readAll(cdc, res.Items)
}

// ScanRecords drains s and decodes every item into a T.
func ScanRecords[T any](ctx context.Context, s *Scanner) ([]T, error) {
	cdc, err := codec.For[T]()
	if err != nil {
		return nil, err
	}
	res, err := s.ScanAll(ctx)
	if err != nil {
		return nil, err
	}
	return readAll(cdc, res.Items)
}

func readAll[T any](cdc *codec.Codec[T], items []Item) ([]T, error) {
	out := make([]T, 0, len(items))
	for i, item := range items {
		v, err := cdc.Read(item)
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
		out = append(out, v)
	}
	return out, nil
}

// NewRecordPut encodes v into a put on t, for use in batches and
// transactions.
func NewRecordPut[T any](t *table.Table, v *T) (*Put, error) {
	cdc, err := codec.For[T]()
	if err != nil {
		return nil, err
	}
	item, err := cdc.Write(v)
	if err != nil {
		return nil, err
	}
	return NewPut(t, item), nil
}

// PutRecord encodes v and writes it to t. The optional predicates make the
// write conditional.
func PutRecord[T any](ctx context.Context, c *Client, t *table.Table, v *T, conds ...expr.Node) error {
	p, err := NewRecordPut(t, v)
	if err != nil {
		return err
	}
	return c.PutItem(ctx, p.WithCondition(conds...))
}

// BatchPutRecords writes every record of vs to t with BatchWriteItem,
// retrying unprocessed items as configured by opts. With no opts it
// retries up to 5 times.
func BatchPutRecords[T any](ctx context.Context, c *Client, t *table.Table, vs []T, opts ...BatchOption) error {
	if len(opts) == 0 {
		opts = []BatchOption{WithMaxRetries(5)}
	}
	b := c.NewBatch(opts...)
	for i := range vs {
		p, err := NewRecordPut(t, &vs[i])
		if err != nil {
			return fmt.Errorf("record %d: %w", i, err)
		}
		if err := b.AddAction(p); err != nil {
			return fmt.Errorf("record %d: %w", i, err)
		}
	}
	return b.ExecAndRetry(ctx)
}

// DeleteKey removes the item identified by key from t.
func DeleteKey(ctx context.Context, c *Client, t *table.Table, key table.Key, conds ...expr.Node) error {
	return c.DeleteItem(ctx, NewDelete(t, key).WithCondition(conds...))
}
