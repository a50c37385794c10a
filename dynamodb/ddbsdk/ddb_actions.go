package ddbsdk

import (
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/acksell/ddbq/dynamodb/expr"
	"github.com/acksell/ddbq/dynamodb/table"
)

// Action is a write that can be staged in a transaction.
type Action interface {
	TableName() *string
	PrimaryKey() (table.Key, error)
	ToTransactWriteItem() (types.TransactWriteItem, error)
}

// BatchAction is a write that can be staged in a batch. Batches carry no
// conditions, so only unconditional puts and deletes qualify.
type BatchAction interface {
	Action
	ToBatchWriteRequest() (types.WriteRequest, error)
}

var (
	_ BatchAction = &Put{}
	_ BatchAction = &Delete{}
	_ Action      = &Update{}
	_ Action      = &ConditionCheck{}
)

// ErrConditionalBatch is returned when a conditional write is added to a
// batch.
var ErrConditionalBatch = errors.New("ddbq: batch writes can't be conditional")

func (p *Put) TableName() *string {
	return ptr(p.Table.Name())
}

func (p *Put) PrimaryKey() (table.Key, error) {
	return p.Table.KeyFromItem(p.Item)
}

func (p *Put) ToTransactWriteItem() (types.TransactWriteItem, error) {
	in, err := p.Build()
	if err != nil {
		return types.TransactWriteItem{}, err
	}
	return types.TransactWriteItem{
		Put: &types.Put{
			TableName:                 in.TableName,
			Item:                      in.Item,
			ConditionExpression:       in.ConditionExpression,
			ExpressionAttributeNames:  in.ExpressionAttributeNames,
			ExpressionAttributeValues: in.ExpressionAttributeValues,
		},
	}, nil
}

func (p *Put) ToBatchWriteRequest() (types.WriteRequest, error) {
	if len(p.conditions) > 0 {
		return types.WriteRequest{}, fmt.Errorf("%w: put on %q", ErrConditionalBatch, p.Table.Name())
	}
	in, err := p.Build()
	if err != nil {
		return types.WriteRequest{}, err
	}
	return types.WriteRequest{PutRequest: &types.PutRequest{Item: in.Item}}, nil
}

func (d *Delete) TableName() *string {
	return ptr(d.Table.Name())
}

func (d *Delete) PrimaryKey() (table.Key, error) {
	return d.Key, checkKey(d.Table, d.Key)
}

func (d *Delete) ToTransactWriteItem() (types.TransactWriteItem, error) {
	in, err := d.Build()
	if err != nil {
		return types.TransactWriteItem{}, err
	}
	return types.TransactWriteItem{
		Delete: &types.Delete{
			TableName:                 in.TableName,
			Key:                       in.Key,
			ConditionExpression:       in.ConditionExpression,
			ExpressionAttributeNames:  in.ExpressionAttributeNames,
			ExpressionAttributeValues: in.ExpressionAttributeValues,
		},
	}, nil
}

func (d *Delete) ToBatchWriteRequest() (types.WriteRequest, error) {
	if len(d.conditions) > 0 {
		return types.WriteRequest{}, fmt.Errorf("%w: delete on %q", ErrConditionalBatch, d.Table.Name())
	}
	if err := checkKey(d.Table, d.Key); err != nil {
		return types.WriteRequest{}, err
	}
	return types.WriteRequest{DeleteRequest: &types.DeleteRequest{Key: d.Key.DDB()}}, nil
}

func (u *Update) TableName() *string {
	return ptr(u.Table.Name())
}

func (u *Update) PrimaryKey() (table.Key, error) {
	return u.Key, checkKey(u.Table, u.Key)
}

func (u *Update) ToTransactWriteItem() (types.TransactWriteItem, error) {
	in, err := u.Build()
	if err != nil {
		return types.TransactWriteItem{}, err
	}
	return types.TransactWriteItem{
		Update: &types.Update{
			TableName:                 in.TableName,
			Key:                       in.Key,
			UpdateExpression:          in.UpdateExpression,
			ConditionExpression:       in.ConditionExpression,
			ExpressionAttributeNames:  in.ExpressionAttributeNames,
			ExpressionAttributeValues: in.ExpressionAttributeValues,
		},
	}, nil
}

// ConditionCheck fails a transaction unless the item addressed by Key
// matches the predicates. It writes nothing.
type ConditionCheck struct {
	Table *table.Table
	Key   table.Key

	conditions []expr.Node
}

func NewConditionCheck(t *table.Table, key table.Key, preds ...expr.Node) *ConditionCheck {
	return &ConditionCheck{
		Table:      t,
		Key:        key,
		conditions: preds,
	}
}

func (c *ConditionCheck) TableName() *string {
	return ptr(c.Table.Name())
}

func (c *ConditionCheck) PrimaryKey() (table.Key, error) {
	return c.Key, checkKey(c.Table, c.Key)
}

func (c *ConditionCheck) ToTransactWriteItem() (types.TransactWriteItem, error) {
	if err := checkKey(c.Table, c.Key); err != nil {
		return types.TransactWriteItem{}, err
	}
	if len(c.conditions) == 0 {
		return types.TransactWriteItem{}, fmt.Errorf("condition check on %q has no predicates", c.Table.Name())
	}
	compiled, err := expr.Compile(c.Table, c.conditions)
	if err != nil {
		return types.TransactWriteItem{}, fmt.Errorf("failed to compile condition check: %w", err)
	}
	return types.TransactWriteItem{
		ConditionCheck: &types.ConditionCheck{
			TableName:                 ptr(c.Table.Name()),
			Key:                       c.Key.DDB(),
			ConditionExpression:       compiled.ConditionExpression(),
			ExpressionAttributeNames:  compiled.Names,
			ExpressionAttributeValues: compiled.Values,
		},
	}, nil
}

// checkKey reports whether k addresses an item of t.
func checkKey(t *table.Table, k table.Key) error {
	sort := t.SortColumn()
	switch {
	case k.PartitionName != t.PartitionColumn().Name() || k.PartitionValue == nil:
	case sort == nil && !k.HasSort():
		return nil
	case sort != nil && k.SortName == sort.Name() && k.SortValue != nil:
		return nil
	}
	return fmt.Errorf("key %s does not address table %q", k, t.Name())
}
