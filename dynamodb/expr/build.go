package expr

import "github.com/acksell/ddbq/dynamodb/table"

func Equal(c *table.Column, v any) *Condition {
	return &Condition{Column: c, Op: Eq, Value: v}
}

func NotEqual(c *table.Column, v any) *Condition {
	return &Condition{Column: c, Op: Ne, Value: v}
}

func Less(c *table.Column, v any) *Condition {
	return &Condition{Column: c, Op: Lt, Value: v}
}

func LessOrEqual(c *table.Column, v any) *Condition {
	return &Condition{Column: c, Op: Le, Value: v}
}

func Greater(c *table.Column, v any) *Condition {
	return &Condition{Column: c, Op: Gt, Value: v}
}

func GreaterOrEqual(c *table.Column, v any) *Condition {
	return &Condition{Column: c, Op: Ge, Value: v}
}

// Prefix matches string or binary values starting with prefix.
func Prefix(c *table.Column, prefix any) *BeginsWith {
	return &BeginsWith{Column: c, Prefix: prefix}
}

// Has matches strings containing a substring, or sets and lists
// containing an element.
func Has(c *table.Column, v any) *Contains {
	return &Contains{Column: c, Value: v}
}

// Range matches values in the inclusive range [lo, hi].
func Range(c *table.Column, lo, hi any) *Between {
	return &Between{Column: c, Low: lo, High: hi}
}

func OneOf(c *table.Column, values ...any) *In {
	return &In{Column: c, Values: values}
}

func Exists(c *table.Column) *AttributeExists {
	return &AttributeExists{Column: c}
}

func NotExists(c *table.Column) *AttributeNotExists {
	return &AttributeNotExists{Column: c}
}

func IsType(c *table.Column, t table.AttrType) *TypeCheck {
	return &TypeCheck{Column: c, Type: t}
}

// IsNull matches attributes stored with the NULL marker.
func IsNull(c *table.Column) *TypeCheck {
	return &TypeCheck{Column: c, Type: table.AttrNULL}
}

func IsTrue(c *table.Column) *BooleanEquals {
	return &BooleanEquals{Column: c, Value: true}
}

func IsFalse(c *table.Column) *BooleanEquals {
	return &BooleanEquals{Column: c, Value: false}
}

// Group starts a compound predicate with n as its first element.
//
//	expr.Group(expr.Equal(category, "shoes")).Or(expr.Equal(department, "outdoor"))
func Group(n Node) *Compound {
	return &Compound{Elements: []Element{{Node: n}}}
}

func (c *Compound) And(n Node) *Compound {
	return c.join(BoundaryAnd, n)
}

func (c *Compound) Or(n Node) *Compound {
	return c.join(BoundaryOr, n)
}

// AndNot appends the negation of n.
func (c *Compound) AndNot(n Node) *Compound {
	return c.join(BoundaryNot, n)
}

func (c *Compound) join(op Boundary, n Node) *Compound {
	if len(c.Elements) > 0 {
		c.Elements[len(c.Elements)-1].Op = op
	}
	c.Elements = append(c.Elements, Element{Node: n})
	return c
}
