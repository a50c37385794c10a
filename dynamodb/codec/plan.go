package codec

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/acksell/ddbq/dynamodb/table"
)

// Shape is the wire representation chosen for a field.
type Shape int

const (
	ShapeScalar Shape = iota + 1
	ShapeNullable
	ShapeSpecial
	ShapeList
	ShapeSet
	ShapeComplexList
	ShapeMap
	ShapeComplex
)

func (s Shape) String() string {
	switch s {
	case ShapeScalar:
		return "scalar"
	case ShapeNullable:
		return "nullable"
	case ShapeSpecial:
		return "special"
	case ShapeList:
		return "list"
	case ShapeSet:
		return "set"
	case ShapeComplexList:
		return "complex list"
	case ShapeMap:
		return "map"
	case ShapeComplex:
		return "complex"
	}
	return "unknown"
}

// Field is one persisted struct field of a record.
type Field struct {
	Name      string // Go field name
	Attr      string // attribute name
	Role      table.Role
	Shape     Shape
	Type      reflect.Type
	Index     int
	OmitEmpty bool

	coder coder
}

type tagOptions struct {
	set       bool
	omitEmpty bool
}

var errUnsupported = errors.New("unsupported")

// builder builds the records of one cache miss. It runs with buildMu held.
type builder struct {
	visiting map[reflect.Type]bool
	built    map[reflect.Type]*Record
	order    []*Record
}

func newBuilder() *builder {
	return &builder{
		visiting: make(map[reflect.Type]bool),
		built:    make(map[reflect.Type]*Record),
	}
}

func (b *builder) lookup(t reflect.Type) (*Record, bool) {
	if r, ok := cache.Load(t); ok {
		return r.(*Record), true
	}
	r, ok := b.built[t]
	return r, ok
}

func (b *builder) record(t reflect.Type) (*Record, error) {
	if t.Kind() != reflect.Struct {
		return nil, &CompileError{Type: t, Err: ErrNotRecord}
	}
	if r, ok := b.lookup(t); ok {
		return r, nil
	}
	if b.visiting[t] {
		return nil, &CompileError{Type: t, Err: ErrCyclicType}
	}
	b.visiting[t] = true
	defer delete(b.visiting, t)

	rec := &Record{typ: t}
	attrs := make(map[string]string)
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		if !sf.IsExported() {
			continue
		}
		attr, opts := parseTag(sf)
		if attr == "-" {
			continue
		}
		fail := func(err error) error {
			return &CompileError{Type: t, Field: sf.Name, FieldType: sf.Type, Err: err}
		}

		role, alias, err := parseRole(sf.Tag.Get("ddb"))
		if err != nil {
			return nil, fail(err)
		}
		if alias != "" {
			attr = alias
		}
		if prev, dup := attrs[attr]; dup {
			return nil, fail(fmt.Errorf("%w: %q also used by %s", ErrDuplicateAttribute, attr, prev))
		}
		attrs[attr] = sf.Name

		c, shape, err := b.coderFor(sf.Type, opts)
		if errors.Is(err, errUnsupported) {
			return nil, fail(ErrUnsupportedField)
		}
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", t, sf.Name, err)
		}

		switch role {
		case table.RolePartition, table.RoleSort:
			if !keyShape(sf.Type, shape) {
				return nil, fail(fmt.Errorf("%w: %s keys must be strings, numbers or binary", ErrInvalidKeyField, role))
			}
			if role == table.RolePartition {
				if rec.partition != "" {
					return nil, fail(fmt.Errorf("%w: second partition key", ErrInvalidKeyField))
				}
				rec.partition = attr
			} else {
				if rec.sort != "" {
					return nil, fail(fmt.Errorf("%w: second sort key", ErrInvalidKeyField))
				}
				rec.sort = attr
			}
		}

		rec.fields = append(rec.fields, Field{
			Name:      sf.Name,
			Attr:      attr,
			Role:      role,
			Shape:     shape,
			Type:      sf.Type,
			Index:     i,
			OmitEmpty: opts.omitEmpty,
			coder:     c,
		})
	}
	rec.read = rec.readPlan
	rec.write = rec.writePlan

	builds.Add(1)
	b.built[t] = rec
	b.order = append(b.order, rec)
	return rec, nil
}

// coderFor resolves the shape of t. The first matching shape wins.
func (b *builder) coderFor(t reflect.Type, opts tagOptions) (coder, Shape, error) {
	if c, ok := specialCoder(t); ok {
		return c, ShapeSpecial, nil
	}
	if c, ok := scalarCoder(t); ok {
		return c, ShapeScalar, nil
	}

	switch t.Kind() {
	case reflect.Pointer:
		elem := t.Elem()
		if c, ok := leafCoder(elem); ok {
			return nullableCoder(t, c), ShapeNullable, nil
		}
		if elem.Kind() == reflect.Struct {
			rec, err := b.record(elem)
			if err != nil {
				return coder{}, 0, err
			}
			return nullableCoder(t, complexCoder(rec)), ShapeComplex, nil
		}
	case reflect.Slice:
		if opts.set {
			c, ok := setCoder(t)
			if !ok {
				return coder{}, 0, errUnsupported
			}
			return c, ShapeSet, nil
		}
		elem, shape, err := b.elemCoder(t.Elem())
		if err != nil {
			return coder{}, 0, err
		}
		if shape == ShapeComplex {
			return listCoder(t, elem), ShapeComplexList, nil
		}
		return listCoder(t, elem), ShapeList, nil
	case reflect.Map:
		if t.Key().Kind() != reflect.String {
			return coder{}, 0, errUnsupported
		}
		elem, _, err := b.elemCoder(t.Elem())
		if err != nil {
			return coder{}, 0, err
		}
		return mapCoder(t, elem), ShapeMap, nil
	case reflect.Struct:
		rec, err := b.record(t)
		if err != nil {
			return coder{}, 0, err
		}
		return complexCoder(rec), ShapeComplex, nil
	}
	return coder{}, 0, errUnsupported
}

// elemCoder resolves collection elements. Nested collections are not
// supported.
func (b *builder) elemCoder(t reflect.Type) (coder, Shape, error) {
	if c, ok := leafCoder(t); ok {
		return c, ShapeScalar, nil
	}
	switch {
	case t.Kind() == reflect.Struct:
		rec, err := b.record(t)
		if err != nil {
			return coder{}, 0, err
		}
		return complexCoder(rec), ShapeComplex, nil
	case t.Kind() == reflect.Pointer && t.Elem().Kind() == reflect.Struct:
		rec, err := b.record(t.Elem())
		if err != nil {
			return coder{}, 0, err
		}
		return nullableCoder(t, complexCoder(rec)), ShapeComplex, nil
	case t.Kind() == reflect.Pointer:
		if c, ok := leafCoder(t.Elem()); ok {
			return nullableCoder(t, c), ShapeScalar, nil
		}
	}
	return coder{}, 0, errUnsupported
}

func leafCoder(t reflect.Type) (coder, bool) {
	if c, ok := specialCoder(t); ok {
		return c, true
	}
	return scalarCoder(t)
}

func keyShape(t reflect.Type, shape Shape) bool {
	switch shape {
	case ShapeSpecial:
		return true
	case ShapeScalar:
		return t.Kind() != reflect.Bool
	}
	return false
}

// parseTag returns the attribute name of a field, preferring the
// dynamodbav tag, then json, then the field name.
func parseTag(sf reflect.StructField) (string, tagOptions) {
	tag, ok := sf.Tag.Lookup("dynamodbav")
	if !ok {
		tag, ok = sf.Tag.Lookup("json")
	}
	if !ok {
		return sf.Name, tagOptions{}
	}
	name, rest, _ := strings.Cut(tag, ",")
	var opts tagOptions
	for _, o := range strings.Split(rest, ",") {
		switch o {
		case "set", "stringset", "numberset", "binaryset":
			opts.set = true
		case "omitempty":
			opts.omitEmpty = true
		}
	}
	if name == "" {
		name = sf.Name
	}
	return name, opts
}

// parseRole reads the ddb tag: "partition", "sort", optionally followed by
// "=alias" to rename the attribute.
func parseRole(tag string) (table.Role, string, error) {
	if tag == "" {
		return table.RoleNormal, "", nil
	}
	role, alias, _ := strings.Cut(tag, "=")
	switch role {
	case "partition":
		return table.RolePartition, alias, nil
	case "sort":
		return table.RoleSort, alias, nil
	}
	return table.RoleNormal, "", fmt.Errorf("%w: unknown ddb tag %q", ErrInvalidKeyField, tag)
}
