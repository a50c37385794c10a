// Package table describes DynamoDB tables as typed columns, key layout and
// secondary indices. Tables are built once, usually as package level
// variables, and are safe for concurrent use afterwards.
package table

import (
	"errors"
	"fmt"
	"slices"
	"sort"
)

// ErrSchema is wrapped by every error reported while building a table.
var ErrSchema = errors.New("ddbq: invalid table schema")

// Table is an immutable table definition.
type Table struct {
	name          string
	columns       []*Column
	byName        map[string]*Column
	partition     *Column
	sort          *Column
	indices       map[string]Index
	timeToLiveKey string
}

func (t *Table) Name() string { return t.name }

// Columns returns the columns in declaration order.
func (t *Table) Columns() []*Column {
	return slices.Clone(t.columns)
}

// Column returns the column with the given attribute name, or nil.
func (t *Table) Column(name string) *Column {
	return t.byName[name]
}

func (t *Table) PartitionColumn() *Column { return t.partition }

// SortColumn returns the native sort key column, or nil if the table only
// has a partition key.
func (t *Table) SortColumn() *Column { return t.sort }

func (t *Table) TimeToLiveKey() string { return t.timeToLiveKey }

// Index returns the registered secondary index with the given name.
func (t *Table) Index(name string) (Index, bool) {
	idx, ok := t.indices[name]
	return idx, ok
}

// Indices returns all secondary indices ordered by name.
func (t *Table) Indices() []Index {
	out := make([]Index, 0, len(t.indices))
	for _, idx := range t.indices {
		out = append(out, idx)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// IndexRef returns the column used to select the named index in queries.
// If no column shares the index's name a detached column is returned, which
// only serves as a reference to the index.
func (t *Table) IndexRef(name string) (*Column, error) {
	if _, ok := t.indices[name]; !ok {
		if c := t.byName[name]; c != nil {
			return c, nil
		}
		return nil, fmt.Errorf("table %q has no index %q", t.name, name)
	}
	if c := t.byName[name]; c != nil {
		return c, nil
	}
	return &Column{name: name, role: RoleNormal, table: t}, nil
}

type columnDef struct {
	name string
	role Role
	typ  AttrType
}

// Builder collects a table definition. Errors are reported by Build.
type Builder struct {
	name    string
	columns []columnDef
	indices []Index
	ttl     string
}

func NewBuilder(name string) *Builder {
	return &Builder{name: name}
}

// Partition declares the partition key column.
func (b *Builder) Partition(name string, typ AttrType) *Builder {
	b.columns = append(b.columns, columnDef{name, RolePartition, typ})
	return b
}

// Sort declares the native sort key column.
func (b *Builder) Sort(name string, typ AttrType) *Builder {
	b.columns = append(b.columns, columnDef{name, RoleSort, typ})
	return b
}

// Attr declares a non-key column.
func (b *Builder) Attr(name string, typ AttrType) *Builder {
	b.columns = append(b.columns, columnDef{name, RoleNormal, typ})
	return b
}

// TTL names the attribute holding the item expiry time.
func (b *Builder) TTL(name string) *Builder {
	b.ttl = name
	return b
}

// LocalIndex adds a local secondary index named after its sort key column.
func (b *Builder) LocalIndex(sortKey string, p Projection) *Builder {
	return b.NamedLocalIndex(sortKey, sortKey, p)
}

func (b *Builder) NamedLocalIndex(name, sortKey string, p Projection) *Builder {
	b.indices = append(b.indices, Index{
		Name:       name,
		Kind:       IndexLocal,
		SortKey:    sortKey,
		Projection: p,
	})
	return b
}

// GlobalIndex adds a global secondary index. sortKey may be empty.
func (b *Builder) GlobalIndex(name, partitionKey, sortKey string, p Projection) *Builder {
	b.indices = append(b.indices, Index{
		Name:         name,
		Kind:         IndexGlobal,
		PartitionKey: partitionKey,
		SortKey:      sortKey,
		Projection:   p,
	})
	return b
}

// Build validates the definition and returns the table.
func (b *Builder) Build() (*Table, error) {
	var errs []error
	fail := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if b.name == "" {
		fail("table name is required")
	}

	t := &Table{
		name:          b.name,
		byName:        make(map[string]*Column, len(b.columns)),
		indices:       make(map[string]Index, len(b.indices)),
		timeToLiveKey: b.ttl,
	}

	for _, def := range b.columns {
		if def.name == "" {
			fail("column name is required")
			continue
		}
		if _, dup := t.byName[def.name]; dup {
			fail("column %q declared twice", def.name)
			continue
		}
		if !def.typ.Valid() {
			fail("column %q has unknown type %q", def.name, def.typ)
		}
		c := &Column{name: def.name, role: def.role, typ: def.typ, table: t}
		switch def.role {
		case RolePartition:
			if t.partition != nil {
				fail("table has more than one partition key: %q and %q", t.partition.name, def.name)
			}
			t.partition = c
		case RoleSort:
			if t.sort != nil {
				fail("table has more than one sort key: %q and %q", t.sort.name, def.name)
			}
			t.sort = c
		}
		if def.role.IsKey() && !def.typ.IsKeyType() {
			fail("key column %q must be of type S, N or B, got %q", def.name, def.typ)
		}
		t.columns = append(t.columns, c)
		t.byName[def.name] = c
	}

	if t.partition == nil {
		fail("partition key column is required")
	}

	var locals, globals int
	for _, idx := range b.indices {
		if idx.Name == "" {
			fail("index name is required")
			continue
		}
		if _, dup := t.indices[idx.Name]; dup {
			fail("index %q declared twice", idx.Name)
			continue
		}
		switch idx.Kind {
		case IndexLocal:
			locals++
			if t.sort == nil {
				fail("local index %q requires a table with a sort key", idx.Name)
			}
			if t.partition != nil {
				idx.PartitionKey = t.partition.name
			}
			if idx.SortKey == "" {
				fail("local index %q requires a sort key", idx.Name)
			}
		case IndexGlobal:
			globals++
			if idx.PartitionKey == "" {
				fail("global index %q requires a partition key", idx.Name)
			}
		default:
			fail("index %q has unknown kind %q", idx.Name, idx.Kind)
		}
		for _, key := range []string{idx.PartitionKey, idx.SortKey} {
			if key == "" {
				continue
			}
			c := t.byName[key]
			if c == nil {
				fail("index %q references undeclared column %q", idx.Name, key)
				continue
			}
			if !c.typ.IsKeyType() {
				fail("index %q key column %q must be of type S, N or B, got %q", idx.Name, key, c.typ)
			}
		}
		if idx.Projection.Kind == "" {
			idx.Projection = ProjectAll()
		}
		t.indices[idx.Name] = idx
	}

	if locals > MaxLocalIndices {
		fail("only %d local indices are allowed, got %d", MaxLocalIndices, locals)
	}
	if globals > MaxGlobalIndices {
		fail("only %d global indices are allowed, got %d", MaxGlobalIndices, globals)
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("%w %q: %w", ErrSchema, b.name, errors.Join(errs...))
	}
	return t, nil
}

// MustBuild is like Build but panics on error. Intended for package level
// table variables.
func (b *Builder) MustBuild() *Table {
	t, err := b.Build()
	if err != nil {
		panic(err)
	}
	return t
}
