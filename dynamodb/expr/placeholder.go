package expr

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/acksell/ddbq/dynamodb/table"
)

// sanitize maps an attribute name to the characters allowed in
// expression placeholders.
func sanitize(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			return r
		}
		return '_'
	}, name)
}

// NameAlias is the placeholder used for an attribute name.
func NameAlias(name string) string {
	return "#" + sanitize(name)
}

// ValueToken is the placeholder used for the value compared to an attribute.
// Inside one expression a column whose token is already owned by another
// column gets a numbered suffix instead.
func ValueToken(name string) string {
	return ":" + sanitize(name)
}

func (r *renderer) bindName(c *table.Column) (string, error) {
	alias := NameAlias(c.Name())
	if prev, ok := r.names[alias]; ok && prev != c.Name() {
		return "", fmt.Errorf("%w: %q and %q both map to %s", ErrAliasCollision, prev, c.Name(), alias)
	}
	r.names[alias] = c.Name()
	return alias, nil
}

// token returns the value placeholder c uses for base. A placeholder is
// owned by the first column that binds it; other columns whose names
// sanitize or suffix to the same text get base_2, base_3 and so on.
func (r *renderer) token(c *table.Column, base string) string {
	tok := base
	for i := 2; ; i++ {
		owner, ok := r.owners[tok]
		if !ok || owner == c {
			return tok
		}
		tok = fmt.Sprintf("%s_%d", base, i)
	}
}

// bindValue marshals v and binds it to the placeholder c owns for base,
// which it returns. Binding the same placeholder twice is only allowed with
// equal values. When checkType is set, values bound to key typed columns
// must have the column's type.
func (r *renderer) bindValue(base string, c *table.Column, v any, checkType bool) (string, error) {
	av, err := marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to marshal value for %s: %w", c, err)
	}
	if checkType && c.Type().IsKeyType() {
		if got := table.TypeOf(av); got != c.Type() {
			return "", fmt.Errorf("%w: %s is %s, got %s", ErrValueType, c, c.Type(), got)
		}
	}
	tok := r.token(c, base)
	if prev, ok := r.values[tok]; ok && !reflect.DeepEqual(prev, av) {
		return "", fmt.Errorf("%w: %s bound twice to different values on %s", ErrBindingConflict, tok, c)
	}
	r.owners[tok] = c
	r.values[tok] = av
	return tok, nil
}

// boundValue returns the value bound to c's plain placeholder, if any.
func (r *renderer) boundValue(c *table.Column) types.AttributeValue {
	tok := r.token(c, ValueToken(c.Name()))
	if r.owners[tok] != c {
		return nil
	}
	return r.values[tok]
}

func marshal(v any) (types.AttributeValue, error) {
	if av, ok := v.(types.AttributeValue); ok {
		return av, nil
	}
	return attributevalue.Marshal(v)
}
