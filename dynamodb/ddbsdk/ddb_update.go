package ddbsdk

import (
	"context"
	"errors"
	"fmt"
	"time"

	expression2 "github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	dynamodbv2 "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/acksell/ddbq/dynamodb/expr"
	"github.com/acksell/ddbq/dynamodb/table"
)

var (
	ErrEmptyUpdate = errors.New("ddbq: update has no operations")

	// ErrNonIdempotent is returned when an update holds an operation that
	// changes the item again on every retry, without WithAccidentalIdempotency.
	ErrNonIdempotent = errors.New("ddbq: non-idempotent update operation")
)

// Update modifies attributes of one item in place, creating the item if it
// doesn't exist.
//
// It does not check the invariants of the record type stored in the item.
// Use WithCondition for optimistic locking against concurrent writers.
type Update struct {
	Table *table.Table
	Key   table.Key

	ops                []UpdateOp
	conditions         []expr.Node
	ttlExpiry          *time.Time
	allowNonIdempotent bool
	returnValues       types.ReturnValue
}

func NewUpdate(t *table.Table, key table.Key) *Update {
	return &Update{
		Table: t,
		Key:   key,
	}
}

// AddOp appends operations. Each attribute can be the target of only one.
func (u *Update) AddOp(ops ...UpdateOp) *Update {
	u.ops = append(u.ops, ops...)
	return u
}

// RefreshTTL sets the table's time to live attribute to expiry.
func (u *Update) RefreshTTL(expiry time.Time) *Update {
	u.ttlExpiry = &expiry
	return u
}

// WithCondition makes the update conditional. The predicates are joined
// with AND and evaluated against the stored item.
func (u *Update) WithCondition(preds ...expr.Node) *Update {
	u.conditions = append(u.conditions, preds...)
	return u
}

// WithAccidentalIdempotency allows operations that are not idempotent:
// AddNumberOp and AppendToListOp. Retrying such an update applies it twice.
//
// Prefer sets over lists, and recording each increment over counters.
func (u *Update) WithAccidentalIdempotency() *Update {
	u.allowNonIdempotent = true
	return u
}

// WithReturnValues selects the attributes UpdateItem returns.
func (u *Update) WithReturnValues(rv types.ReturnValue) *Update {
	u.returnValues = rv
	return u
}

// Build validates the operations and assembles the request.
func (u *Update) Build() (*dynamodbv2.UpdateItemInput, error) {
	if err := checkKey(u.Table, u.Key); err != nil {
		return nil, err
	}
	if len(u.ops) == 0 && u.ttlExpiry == nil {
		return nil, fmt.Errorf("%w: %s on %q", ErrEmptyUpdate, u.Key, u.Table.Name())
	}

	var ub expression2.UpdateBuilder
	seen := make(map[string]bool, len(u.ops)+1)
	for _, op := range u.ops {
		c := op.Column()
		switch {
		case c == nil:
			return nil, expr.ErrNilColumn
		case c.Table() != u.Table:
			return nil, fmt.Errorf("%w: %s is not a column of %q", expr.ErrForeignColumn, c, u.Table.Name())
		case c == u.Table.PartitionColumn() || c == u.Table.SortColumn():
			return nil, fmt.Errorf("can't update primary key attribute %s", c)
		case seen[c.Name()]:
			return nil, fmt.Errorf("attribute %s is the target of more than one operation", c)
		case !u.allowNonIdempotent && !op.IsIdempotent():
			return nil, fmt.Errorf("%w: %T on %s", ErrNonIdempotent, op, c)
		}
		seen[c.Name()] = true

		var err error
		if ub, err = op.Apply(ub); err != nil {
			return nil, fmt.Errorf("failed to apply %T on %s: %w", op, c, err)
		}
	}
	if u.ttlExpiry != nil {
		ttl := u.Table.TimeToLiveKey()
		switch {
		case ttl == "":
			return nil, fmt.Errorf("table %q has no time to live attribute", u.Table.Name())
		case seen[ttl]:
			return nil, fmt.Errorf("attribute %s is the target of more than one operation", ttl)
		}
		ub = ub.Set(expression2.NameNoDotSplit(ttl), operand(ttlDDB(*u.ttlExpiry)))
	}

	e, err := expression2.NewBuilder().WithUpdate(ub).Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build update expression: %w", err)
	}
	input := &dynamodbv2.UpdateItemInput{
		TableName:                 ptr(u.Table.Name()),
		Key:                       u.Key.DDB(),
		UpdateExpression:          e.Update(),
		ExpressionAttributeNames:  e.Names(),
		ExpressionAttributeValues: e.Values(),
		ReturnValues:              u.returnValues,
	}
	if len(u.conditions) > 0 {
		c, err := expr.Compile(u.Table, u.conditions)
		if err != nil {
			return nil, fmt.Errorf("failed to compile update condition: %w", err)
		}
		input.ConditionExpression = c.ConditionExpression()
		if input.ExpressionAttributeNames, err = mergeNames(input.ExpressionAttributeNames, c.Names); err != nil {
			return nil, err
		}
		if input.ExpressionAttributeValues, err = mergeValues(input.ExpressionAttributeValues, c.Values); err != nil {
			return nil, err
		}
	}
	return input, nil
}

// UpdateItem applies the update and returns the attributes selected by
// WithReturnValues, nil by default. A failed condition is reported as
// ErrConditionFailed.
func (c *Client) UpdateItem(ctx context.Context, u *Update) (Item, error) {
	input, err := u.Build()
	if err != nil {
		return nil, err
	}
	c.log.Debug().Str("table", u.Table.Name()).Stringer("key", u.Key).Int("ops", len(u.ops)).Msg("update item")
	out, err := c.awsddb.UpdateItem(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("update item failed: %w", conditionFailed(err))
	}
	return out.Attributes, nil
}
