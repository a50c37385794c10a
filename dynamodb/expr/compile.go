package expr

import (
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/acksell/ddbq/dynamodb/table"
)

// Compiled is the result of compiling a predicate list. A new value is
// returned by every call to Compile.
type Compiled struct {
	KeyCondition    *string
	FilterCondition *string
	Names           map[string]string
	Values          map[string]types.AttributeValue

	// Index is the column referencing the queried index, nil for the table.
	Index *table.Column

	// SimpleGetKey is set when the predicates select exactly one item by
	// its full primary key. Callers should issue a GetItem instead of a
	// Query in that case.
	SimpleGetKey *table.Key
}

func (c *Compiled) IsSimpleGet() bool {
	return c.SimpleGetKey != nil
}

// IndexName returns the name to pass as IndexName in a request.
func (c *Compiled) IndexName() *string {
	if c.Index == nil {
		return nil
	}
	name := c.Index.Name()
	return &name
}

// ScanFilter joins the key and filter conditions into one expression.
// Scans have no key condition, every predicate becomes a filter.
func (c *Compiled) ScanFilter() *string {
	switch {
	case c.KeyCondition == nil:
		return c.FilterCondition
	case c.FilterCondition == nil:
		return c.KeyCondition
	}
	s := group(*c.KeyCondition) + " AND " + group(*c.FilterCondition)
	return &s
}

// ConditionExpression returns the predicates as a single condition for
// PutItem, UpdateItem and DeleteItem.
func (c *Compiled) ConditionExpression() *string {
	return c.ScanFilter()
}

func group(s string) string {
	if !strings.Contains(s, " OR ") || enclosed(s) {
		return s
	}
	return "(" + s + ")"
}

// enclosed reports whether s is one parenthesized group.
func enclosed(s string) bool {
	if !strings.HasPrefix(s, "(") || !strings.HasSuffix(s, ")") {
		return false
	}
	depth := 0
	for i, r := range s {
		switch r {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 && i < len(s)-1 {
				return false
			}
		}
	}
	return true
}

type options struct {
	index     *table.Column
	indexName string
}

type Option func(*options)

// WithIndex queries the index referenced by c instead of the table.
func WithIndex(c *table.Column) Option {
	return func(o *options) {
		o.index = c
	}
}

// WithIndexName queries the named index. See table.Table.IndexRef.
func WithIndexName(name string) Option {
	return func(o *options) {
		o.indexName = name
	}
}

// Compile renders the predicates, implicitly joined with AND, into key and
// filter conditions for t.
func Compile(t *table.Table, nodes []Node, opts ...Option) (*Compiled, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	index, err := resolveIndex(t, o)
	if err != nil {
		return nil, err
	}

	r := newRenderer(t, index)
	elems := make([]Element, len(nodes))
	for i, n := range nodes {
		elems[i] = Element{Node: n, Op: BoundaryAnd}
	}
	if err := r.renderList(elems); err != nil {
		return nil, fmt.Errorf("failed to compile expression for table %q: %w", t.Name(), err)
	}

	c := &Compiled{
		KeyCondition:    normalize(r.key),
		FilterCondition: normalize(r.filter),
		Index:           index,
	}
	if len(r.names) > 0 {
		c.Names = r.names
	}
	if len(r.values) > 0 {
		c.Values = r.values
	}
	if key, ok := simpleGetKey(r, nodes); ok {
		c.SimpleGetKey = &key
	}
	return c, nil
}

// resolveIndex returns the index column selected by o, nil for the table.
func resolveIndex(t *table.Table, o options) (*table.Column, error) {
	index := o.index
	if o.indexName != "" {
		ref, err := t.IndexRef(o.indexName)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrUnknownIndex, err)
		}
		index = ref
	}
	if index != nil && index.Table() != t {
		return nil, fmt.Errorf("%w: index %s is not part of %q", ErrForeignColumn, index, t.Name())
	}
	return index, nil
}

// KeyBound reports whether the leaf n belongs in the key condition when
// querying index, nil meaning the table. Compounds can't be classified.
func KeyBound(n Node, index *table.Column) (bool, error) {
	c, err := column(n)
	if err != nil {
		return false, err
	}
	return c.IsKey(index), nil
}

// simpleGetKey decides whether the predicates address one item by its full
// primary key: exactly the partition and sort columns, compared with = and
// joined with AND, on the table itself.
func simpleGetKey(r *renderer, nodes []Node) (table.Key, bool) {
	pk, sk := r.table.PartitionColumn(), r.table.SortColumn()
	if r.index != nil || sk == nil || len(nodes) == 0 || len(nodes) > 2 {
		return table.Key{}, false
	}
	cols := make(map[string]*table.Column, 2)
	for _, n := range nodes {
		for _, b := range boundaries(n) {
			if b != BoundaryAnd {
				return table.Key{}, false
			}
		}
		for _, l := range leaves(n) {
			c, ok := l.(*Condition)
			if !ok || c.Op != Eq {
				return table.Key{}, false
			}
			cols[c.Column.Name()] = c.Column
		}
	}
	if len(cols) != 2 || cols[pk.Name()] != pk || cols[sk.Name()] != sk {
		return table.Key{}, false
	}
	pv, sv := r.boundValue(pk), r.boundValue(sk)
	if pv == nil || sv == nil {
		return table.Key{}, false
	}
	return table.Key{
		PartitionName:  pk.Name(),
		PartitionValue: pv,
		SortName:       sk.Name(),
		SortValue:      sv,
	}, true
}
