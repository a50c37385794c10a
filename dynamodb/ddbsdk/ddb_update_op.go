package ddbsdk

import (
	"fmt"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	expression2 "github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"golang.org/x/exp/constraints"

	"github.com/acksell/ddbq/dynamodb/table"
)

// UpdateOp changes one attribute of an item.
type UpdateOp interface {
	Column() *table.Column
	IsIdempotent() bool
	Apply(expression2.UpdateBuilder) (expression2.UpdateBuilder, error)
}

type number interface {
	constraints.Integer | constraints.Float
}

// rawValue passes an already marshalled value through the expression
// builder unchanged.
type rawValue struct {
	av types.AttributeValue
}

func (r rawValue) MarshalDynamoDBAttributeValue() (types.AttributeValue, error) {
	return r.av, nil
}

func operand(v any) expression2.ValueBuilder {
	if av, ok := v.(types.AttributeValue); ok {
		return expression2.Value(rawValue{av})
	}
	return expression2.Value(v)
}

func attrName(c *table.Column) expression2.NameBuilder {
	return expression2.NameNoDotSplit(c.Name())
}

// setOp overwrites the attribute.
type setOp[T any] struct {
	col   *table.Column
	value T
}

// SetOp sets the attribute to value. A types.AttributeValue is stored as
// is, anything else is marshalled with attributevalue.Marshal.
func SetOp[T any](c *table.Column, value T) UpdateOp {
	return setOp[T]{col: c, value: value}
}

func (o setOp[T]) Column() *table.Column { return o.col }
func (o setOp[T]) IsIdempotent() bool    { return true }

func (o setOp[T]) Apply(ub expression2.UpdateBuilder) (expression2.UpdateBuilder, error) {
	return ub.Set(attrName(o.col), operand(any(o.value))), nil
}

type setIfMissingOp[T any] struct {
	col   *table.Column
	value T
}

// SetIfMissingOp sets the attribute only if the item doesn't have it yet.
func SetIfMissingOp[T any](c *table.Column, value T) UpdateOp {
	return setIfMissingOp[T]{col: c, value: value}
}

func (o setIfMissingOp[T]) Column() *table.Column { return o.col }
func (o setIfMissingOp[T]) IsIdempotent() bool    { return true }

func (o setIfMissingOp[T]) Apply(ub expression2.UpdateBuilder) (expression2.UpdateBuilder, error) {
	return ub.Set(attrName(o.col), expression2.IfNotExists(attrName(o.col), operand(any(o.value)))), nil
}

type removeOp struct {
	col *table.Column
}

func RemoveOp(c *table.Column) UpdateOp {
	return removeOp{col: c}
}

func (o removeOp) Column() *table.Column { return o.col }
func (o removeOp) IsIdempotent() bool    { return true }

func (o removeOp) Apply(ub expression2.UpdateBuilder) (expression2.UpdateBuilder, error) {
	return ub.Remove(attrName(o.col)), nil
}

type addNumberOp[T number] struct {
	col   *table.Column
	value T
}

// AddNumberOp adds value to a numeric attribute, starting from 0 when the
// attribute is missing. Not idempotent.
func AddNumberOp[T number](c *table.Column, value T) UpdateOp {
	return addNumberOp[T]{col: c, value: value}
}

func (o addNumberOp[T]) Column() *table.Column { return o.col }
func (o addNumberOp[T]) IsIdempotent() bool    { return false }

func (o addNumberOp[T]) Apply(ub expression2.UpdateBuilder) (expression2.UpdateBuilder, error) {
	if o.col.Type() != table.AttrN {
		return ub, fmt.Errorf("%s is %s, not N", o.col, o.col.Type())
	}
	return ub.Add(attrName(o.col), expression2.Value(o.value)), nil
}

type appendToListOp[T any] struct {
	col    *table.Column
	values []T
}

// AppendToListOp appends values to a list attribute, creating the list when
// missing. Not idempotent.
func AppendToListOp[T any](c *table.Column, values ...T) UpdateOp {
	return appendToListOp[T]{col: c, values: values}
}

func (o appendToListOp[T]) Column() *table.Column { return o.col }
func (o appendToListOp[T]) IsIdempotent() bool    { return false }

func (o appendToListOp[T]) Apply(ub expression2.UpdateBuilder) (expression2.UpdateBuilder, error) {
	if len(o.values) == 0 {
		return ub, fmt.Errorf("nothing to append to %s", o.col)
	}
	list := &types.AttributeValueMemberL{Value: make([]types.AttributeValue, len(o.values))}
	for i, v := range o.values {
		av, err := attributevalue.Marshal(v)
		if err != nil {
			return ub, err
		}
		list.Value[i] = av
	}
	empty := operand(&types.AttributeValueMemberL{Value: []types.AttributeValue{}})
	current := expression2.IfNotExists(attrName(o.col), empty)
	return ub.Set(attrName(o.col), expression2.ListAppend(current, operand(list))), nil
}

type setMembersOp struct {
	col    *table.Column
	values []any
	remove bool
}

// AddToSetOp adds members to a set attribute, creating the set when
// missing. The column must be SS, NS or BS.
func AddToSetOp(c *table.Column, values ...any) UpdateOp {
	return setMembersOp{col: c, values: values}
}

// DeleteFromSetOp removes members from a set attribute.
func DeleteFromSetOp(c *table.Column, values ...any) UpdateOp {
	return setMembersOp{col: c, values: values, remove: true}
}

func (o setMembersOp) Column() *table.Column { return o.col }
func (o setMembersOp) IsIdempotent() bool    { return true }

func (o setMembersOp) Apply(ub expression2.UpdateBuilder) (expression2.UpdateBuilder, error) {
	set, err := setValue(o.col, o.values)
	if err != nil {
		return ub, err
	}
	if o.remove {
		return ub.Delete(attrName(o.col), operand(set)), nil
	}
	return ub.Add(attrName(o.col), operand(set)), nil
}

// setValue marshals values into the set type of c.
func setValue(c *table.Column, values []any) (types.AttributeValue, error) {
	if len(values) == 0 {
		return nil, fmt.Errorf("empty set for %s", c)
	}
	var (
		ss []string
		bs [][]byte
	)
	for _, v := range values {
		av, err := attributevalue.Marshal(v)
		if err != nil {
			return nil, err
		}
		switch m := av.(type) {
		case *types.AttributeValueMemberS:
			if c.Type() == table.AttrSS {
				ss = append(ss, m.Value)
				continue
			}
		case *types.AttributeValueMemberN:
			if c.Type() == table.AttrNS {
				ss = append(ss, m.Value)
				continue
			}
		case *types.AttributeValueMemberB:
			if c.Type() == table.AttrBS {
				bs = append(bs, m.Value)
				continue
			}
		}
		return nil, fmt.Errorf("%T is not a member of %s, a %s", v, c, c.Type())
	}
	switch c.Type() {
	case table.AttrSS:
		return &types.AttributeValueMemberSS{Value: ss}, nil
	case table.AttrNS:
		return &types.AttributeValueMemberNS{Value: ss}, nil
	}
	return &types.AttributeValueMemberBS{Value: bs}, nil
}
