// Package expr models predicates over table columns and compiles them into
// DynamoDB key condition and filter expressions.
//
// Predicates are built from columns of a table.Table:
//
//	id := products.Column("id")
//	price := products.Column("price")
//	compiled, err := expr.Compile(products, []expr.Node{
//	    expr.Equal(id, "p1"),
//	    expr.Group(expr.Less(price, 10)).Or(expr.IsTrue(products.Column("in_stock"))),
//	})
//
// Each leaf references exactly one column. Leaves on key columns of the
// table, or of the index passed with WithIndex, go to the key condition,
// everything else goes to the filter.
package expr

import (
	"fmt"
	"strings"

	"github.com/acksell/ddbq/dynamodb/table"
)

// Node is a predicate. The set of implementations is closed.
type Node interface {
	fmt.Stringer
	node()
}

// Comparator is a binary comparison operator.
type Comparator string

const (
	Eq Comparator = "="
	Ne Comparator = "<>"
	Lt Comparator = "<"
	Le Comparator = "<="
	Gt Comparator = ">"
	Ge Comparator = ">="
)

// Boundary joins a Compound element to the element after it.
type Boundary int

const (
	BoundaryNone Boundary = iota
	BoundaryAnd
	BoundaryOr
	// BoundaryNot joins with AND and negates the following element.
	BoundaryNot
)

func (b Boundary) String() string {
	switch b {
	case BoundaryAnd:
		return "AND"
	case BoundaryOr:
		return "OR"
	case BoundaryNot:
		return "NOT"
	}
	return ""
}

type Condition struct {
	Column *table.Column
	Op     Comparator
	Value  any
}

type BeginsWith struct {
	Column *table.Column
	Prefix any
}

type Contains struct {
	Column *table.Column
	Value  any
}

type Between struct {
	Column    *table.Column
	Low, High any
}

type In struct {
	Column *table.Column
	Values []any
}

type AttributeExists struct {
	Column *table.Column
}

type AttributeNotExists struct {
	Column *table.Column
}

type TypeCheck struct {
	Column *table.Column
	Type   table.AttrType
}

type BooleanEquals struct {
	Column *table.Column
	Value  bool
}

// Element is one member of a Compound along with the operator joining it
// to the next member.
type Element struct {
	Node Node
	Op   Boundary
}

// Compound is an ordered group of predicates. Use Group to start one.
type Compound struct {
	Elements []Element
}

func (*Condition) node()          {}
func (*BeginsWith) node()         {}
func (*Contains) node()           {}
func (*Between) node()            {}
func (*In) node()                 {}
func (*AttributeExists) node()    {}
func (*AttributeNotExists) node() {}
func (*TypeCheck) node()          {}
func (*BooleanEquals) node()      {}
func (*Compound) node()           {}

func (n *Condition) String() string {
	return fmt.Sprintf("%s %s %v", colName(n.Column), n.Op, n.Value)
}

func (n *BeginsWith) String() string {
	return fmt.Sprintf("begins_with(%s, %v)", colName(n.Column), n.Prefix)
}

func (n *Contains) String() string {
	return fmt.Sprintf("contains(%s, %v)", colName(n.Column), n.Value)
}

func (n *Between) String() string {
	return fmt.Sprintf("%s BETWEEN %v AND %v", colName(n.Column), n.Low, n.High)
}

func (n *In) String() string {
	vals := make([]string, len(n.Values))
	for i, v := range n.Values {
		vals[i] = fmt.Sprint(v)
	}
	return fmt.Sprintf("%s IN (%s)", colName(n.Column), strings.Join(vals, ", "))
}

func (n *AttributeExists) String() string {
	return fmt.Sprintf("attribute_exists(%s)", colName(n.Column))
}

func (n *AttributeNotExists) String() string {
	return fmt.Sprintf("attribute_not_exists(%s)", colName(n.Column))
}

func (n *TypeCheck) String() string {
	return fmt.Sprintf("attribute_type(%s, %s)", colName(n.Column), n.Type)
}

func (n *BooleanEquals) String() string {
	return fmt.Sprintf("%s = %t", colName(n.Column), n.Value)
}

func (n *Compound) String() string {
	var sb strings.Builder
	sb.WriteString("(")
	for i, el := range n.Elements {
		if i > 0 {
			sb.WriteString(" ")
		}
		sb.WriteString(el.Node.String())
		if el.Op != BoundaryNone && i < len(n.Elements)-1 {
			sb.WriteString(" ")
			sb.WriteString(el.Op.String())
		}
	}
	sb.WriteString(")")
	return sb.String()
}

func colName(c *table.Column) string {
	if c == nil {
		return "<nil>"
	}
	return c.Name()
}

// column returns the single column a leaf references. Compounds reference
// many columns and can't be classified as a whole.
func column(n Node) (*table.Column, error) {
	var c *table.Column
	switch n := n.(type) {
	case *Condition:
		c = n.Column
	case *BeginsWith:
		c = n.Column
	case *Contains:
		c = n.Column
	case *Between:
		c = n.Column
	case *In:
		c = n.Column
	case *AttributeExists:
		c = n.Column
	case *AttributeNotExists:
		c = n.Column
	case *TypeCheck:
		c = n.Column
	case *BooleanEquals:
		c = n.Column
	case *Compound:
		return nil, fmt.Errorf("%w: %s", ErrMultiColumn, n)
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownNode, n)
	}
	if c == nil {
		return nil, fmt.Errorf("%w: %s", ErrNilColumn, n)
	}
	return c, nil
}

// leaves flattens n into its leaf predicates in rendering order.
func leaves(n Node) []Node {
	c, ok := n.(*Compound)
	if !ok {
		return []Node{n}
	}
	var out []Node
	for _, el := range c.Elements {
		out = append(out, leaves(el.Node)...)
	}
	return out
}

// boundaries reports every boundary operator between elements of n,
// including nested compounds.
func boundaries(n Node) []Boundary {
	c, ok := n.(*Compound)
	if !ok {
		return nil
	}
	var out []Boundary
	for i, el := range c.Elements {
		out = append(out, boundaries(el.Node)...)
		if i < len(c.Elements)-1 {
			out = append(out, joinOp(el.Op))
		}
	}
	return out
}

// joinOp treats a missing operator between two elements as AND.
func joinOp(b Boundary) Boundary {
	if b == BoundaryNone {
		return BoundaryAnd
	}
	return b
}
