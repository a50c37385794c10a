package table

import (
	"fmt"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// Key identifies exactly one item. The sort part is set iff the table or
// index addressed has a sort key.
type Key struct {
	PartitionName  string
	PartitionValue types.AttributeValue
	SortName       string
	SortValue      types.AttributeValue
}

func (k Key) HasSort() bool {
	return k.SortName != ""
}

// DDB returns the key in the shape expected by GetItem and DeleteItem.
func (k Key) DDB() map[string]types.AttributeValue {
	m := map[string]types.AttributeValue{
		k.PartitionName: k.PartitionValue,
	}
	if k.HasSort() {
		m[k.SortName] = k.SortValue
	}
	return m
}

func (k Key) String() string {
	if !k.HasSort() {
		return fmt.Sprintf("%s=%s", k.PartitionName, avString(k.PartitionValue))
	}
	return fmt.Sprintf("%s=%s,%s=%s", k.PartitionName, avString(k.PartitionValue), k.SortName, avString(k.SortValue))
}

// Key marshals the partition and sort values into a Key for the table.
// sortValue is ignored for tables without a sort key.
func (t *Table) Key(partitionValue, sortValue any) (Key, error) {
	pk, err := attributevalue.Marshal(partitionValue)
	if err != nil {
		return Key{}, fmt.Errorf("failed to marshal partition key of type %T with value %v: %w", partitionValue, partitionValue, err)
	}
	if err := attributeMatchesType(t.partition.typ, pk); err != nil {
		return Key{}, fmt.Errorf("partition key %q: %w", t.partition.name, err)
	}
	k := Key{PartitionName: t.partition.name, PartitionValue: pk}
	if t.sort == nil {
		return k, nil
	}
	if sortValue == nil {
		return Key{}, fmt.Errorf("sort key %q is required but got nil", t.sort.name)
	}
	sk, err := attributevalue.Marshal(sortValue)
	if err != nil {
		return Key{}, fmt.Errorf("failed to marshal sort key of type %T with value %v: %w", sortValue, sortValue, err)
	}
	if err := attributeMatchesType(t.sort.typ, sk); err != nil {
		return Key{}, fmt.Errorf("sort key %q: %w", t.sort.name, err)
	}
	k.SortName = t.sort.name
	k.SortValue = sk
	return k, nil
}

// KeyFromItem extracts the table's primary key from a full item.
func (t *Table) KeyFromItem(item map[string]types.AttributeValue) (Key, error) {
	pk, ok := item[t.partition.name]
	if !ok {
		return Key{}, fmt.Errorf("partition key %q not found in item", t.partition.name)
	}
	if err := attributeMatchesType(t.partition.typ, pk); err != nil {
		return Key{}, fmt.Errorf("partition key %q: %w", t.partition.name, err)
	}
	k := Key{PartitionName: t.partition.name, PartitionValue: pk}
	if t.sort == nil {
		return k, nil
	}
	sk, ok := item[t.sort.name]
	if !ok {
		return Key{}, fmt.Errorf("sort key %q not found in item", t.sort.name)
	}
	if err := attributeMatchesType(t.sort.typ, sk); err != nil {
		return Key{}, fmt.Errorf("sort key %q: %w", t.sort.name, err)
	}
	k.SortName = t.sort.name
	k.SortValue = sk
	return k, nil
}

// TypeOf returns the type descriptor of a wire value.
func TypeOf(v types.AttributeValue) AttrType {
	switch v.(type) {
	case *types.AttributeValueMemberS:
		return AttrS
	case *types.AttributeValueMemberN:
		return AttrN
	case *types.AttributeValueMemberB:
		return AttrB
	case *types.AttributeValueMemberBOOL:
		return AttrBOOL
	case *types.AttributeValueMemberNULL:
		return AttrNULL
	case *types.AttributeValueMemberL:
		return AttrL
	case *types.AttributeValueMemberM:
		return AttrM
	case *types.AttributeValueMemberSS:
		return AttrSS
	case *types.AttributeValueMemberNS:
		return AttrNS
	case *types.AttributeValueMemberBS:
		return AttrBS
	}
	return ""
}

func attributeMatchesType(want AttrType, v types.AttributeValue) error {
	got := TypeOf(v)
	if got == "" {
		return fmt.Errorf("unexpected key attribute type %T", v)
	}
	if got != want {
		return fmt.Errorf("got type %q want %q", got, want)
	}
	return nil
}

func avString(v types.AttributeValue) string {
	switch v := v.(type) {
	case *types.AttributeValueMemberS:
		return v.Value
	case *types.AttributeValueMemberN:
		return v.Value
	case *types.AttributeValueMemberB:
		return fmt.Sprintf("%x", v.Value)
	}
	return fmt.Sprintf("%v", v)
}
