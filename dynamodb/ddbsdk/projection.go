package ddbsdk

import (
	"fmt"
	"maps"
	"reflect"

	expression2 "github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// projection builds a ProjectionExpression for attrs. Both results are nil
// when attrs is empty.
func projection(attrs []string) (*string, map[string]string, error) {
	if len(attrs) == 0 {
		return nil, nil, nil
	}

	var proj expression2.ProjectionBuilder
	for i, attr := range attrs {
		if i == 0 {
			proj = expression2.NamesList(expression2.Name(attr))
		} else {
			proj = proj.AddNames(expression2.Name(attr))
		}
	}

	expr, err := expression2.NewBuilder().WithProjection(proj).Build()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build projection expression: %w", err)
	}
	return expr.Projection(), expr.Names(), nil
}

// mergeNames combines predicate and projection aliases into one
// ExpressionAttributeNames map.
func mergeNames(a, b map[string]string) (map[string]string, error) {
	if len(a) == 0 {
		return b, nil
	}
	if len(b) == 0 {
		return a, nil
	}
	out := maps.Clone(a)
	for alias, name := range b {
		if prev, ok := out[alias]; ok && prev != name {
			return nil, fmt.Errorf("%w: %s refers to %q and %q", ErrNameCollision, alias, prev, name)
		}
		out[alias] = name
	}
	return out, nil
}

// mergeValues combines the value placeholders of two expressions.
func mergeValues(a, b map[string]types.AttributeValue) (map[string]types.AttributeValue, error) {
	if len(a) == 0 {
		return b, nil
	}
	if len(b) == 0 {
		return a, nil
	}
	out := maps.Clone(a)
	for token, v := range b {
		if prev, ok := out[token]; ok && !reflect.DeepEqual(prev, v) {
			return nil, fmt.Errorf("%w: %s is bound to two different values", ErrNameCollision, token)
		}
		out[token] = v
	}
	return out, nil
}
