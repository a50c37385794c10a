package table

import "fmt"

// Role is the part a column plays in the table's primary key.
type Role int

const (
	RoleNormal Role = iota
	RolePartition
	RoleSort
)

// IsKey reports whether the role is part of the table's primary key.
func (r Role) IsKey() bool {
	return r == RolePartition || r == RoleSort
}

func (r Role) String() string {
	switch r {
	case RolePartition:
		return "partition"
	case RoleSort:
		return "sort"
	default:
		return "normal"
	}
}

// AttrType is a DynamoDB attribute type descriptor.
type AttrType string

const (
	AttrS    AttrType = "S"
	AttrN    AttrType = "N"
	AttrB    AttrType = "B"
	AttrBOOL AttrType = "BOOL"
	AttrNULL AttrType = "NULL"
	AttrL    AttrType = "L"
	AttrM    AttrType = "M"
	AttrSS   AttrType = "SS"
	AttrNS   AttrType = "NS"
	AttrBS   AttrType = "BS"
)

// Valid reports whether t is one of the descriptors DynamoDB understands.
func (t AttrType) Valid() bool {
	switch t {
	case AttrS, AttrN, AttrB, AttrBOOL, AttrNULL, AttrL, AttrM, AttrSS, AttrNS, AttrBS:
		return true
	}
	return false
}

// IsKeyType reports whether t may be used for a key attribute.
func (t AttrType) IsKeyType() bool {
	return t == AttrS || t == AttrN || t == AttrB
}

// Column is a typed attribute of a Table.
//
// Columns are created by the table Builder and are immutable afterwards.
// Two columns are the same column iff they belong to the same table and
// have the same name, which the builder guarantees maps to one pointer.
type Column struct {
	name  string
	role  Role
	typ   AttrType
	table *Table
}

// Name is the attribute name on the wire.
func (c *Column) Name() string { return c.name }

func (c *Column) Role() Role { return c.role }

func (c *Column) Type() AttrType { return c.typ }

// Table returns the owning table.
func (c *Column) Table() *Table { return c.table }

func (c *Column) String() string {
	if c.table == nil {
		return c.name
	}
	return fmt.Sprintf("%s.%s", c.table.name, c.name)
}

// IsKey reports whether conditions on c can be part of a key condition
// when querying with the given index, nil meaning the base table.
//
// An index is referenced by a column sharing its name. A column is a key of
// the index if it is the index's own column, or the registered index
// declares it as its partition or sort key. Local indices also keep the
// base table's keys as part of their identity.
func (c *Column) IsKey(index *Column) bool {
	if index == nil {
		return c.role.IsKey()
	}
	if index.name == c.name {
		return true
	}
	if c.table == nil {
		return false
	}
	idx, ok := c.table.indices[index.name]
	if !ok {
		return false
	}
	if idx.Kind == IndexLocal {
		return idx.IsKey(c.name) || c.role.IsKey()
	}
	return idx.IsKey(c.name)
}
